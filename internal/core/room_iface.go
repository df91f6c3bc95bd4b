package core

import (
	"github.com/dkeye/p2pcall/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []domain.MemberDTO
	Has(sid domain.SessionID) bool

	// AddMember reports false when sid was already a member.
	AddMember(ms MemberSession) bool
	RemoveMember(sid domain.SessionID) bool
	Broadcast(from domain.SessionID, data Frame) PublishResult
}

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"client_count"`
}

type RoomManager interface {
	GetOrCreate(name domain.RoomName) RoomService
	Get(name domain.RoomName) (RoomService, bool)
	List() []RoomInfo
	// RemoveIfEmpty drops the room when nobody is left in it.
	RemoveIfEmpty(name domain.RoomName) bool
	StopRoom(name domain.RoomName)
}
