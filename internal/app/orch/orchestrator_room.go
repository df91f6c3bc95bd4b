package orch

import (
	"context"
	"time"

	"github.com/dkeye/p2pcall/internal/core"
	"github.com/dkeye/p2pcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// JoinResult is what the joiner learns about the room it entered.
type JoinResult struct {
	Room  domain.RoomName
	State domain.RoomState
	// Rejoined is set when the session was already a member; membership is
	// unchanged but user-connected is announced again.
	Rejoined bool
}

// Connect registers a freshly connected session. It is not in any room yet.
func (o *Orchestrator) Connect(sess core.MemberSession, cancel context.CancelFunc) {
	o.Registry.BindSignal(sess, cancel)
}

func (o *Orchestrator) Join(sid domain.SessionID, roomName domain.RoomName) (JoinResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	session, ok := o.Registry.GetSession(sid)
	if !ok {
		return JoinResult{}, ErrUnknownSession
	}
	if current, _, ok := o.Registry.RoomOf(sid); ok && current != roomName {
		o.leaveLocked(sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(current)).Msg("left previous room")
	}

	room := o.Rooms.GetOrCreate(roomName)
	added := room.AddMember(session)
	if added {
		session.Meta().JoinedAt = time.Now()
	}
	o.Registry.UpdateRoom(sid, roomName)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomName)).Bool("rejoin", !added).Msg("joined room")

	o.publish(roomName, sid, domain.Message{
		Type: domain.KindUserConnected,
		Room: roomName,
		From: sid,
	})

	return JoinResult{
		Room: roomName,
		State: domain.RoomState{
			Members: room.MembersSnapshot(),
			Count:   room.MemberCount(),
		},
		Rejoined: !added,
	}, nil
}

// Leave removes the session from its room and tells the remaining members.
// It reports the room that was left.
func (o *Orchestrator) Leave(sid domain.SessionID) (domain.RoomName, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.leaveLocked(sid)
}

func (o *Orchestrator) leaveLocked(sid domain.SessionID) (domain.RoomName, bool) {
	roomName, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		return "", false
	}
	o.Registry.RemoveRoom(sid)
	room, ok := o.Rooms.Get(roomName)
	if !ok {
		return roomName, true
	}
	room.RemoveMember(sid)

	o.publish(roomName, sid, domain.Message{
		Type: domain.KindUserDisconnected,
		Room: roomName,
		From: sid,
	})
	o.Rooms.RemoveIfEmpty(roomName)
	return roomName, true
}

// OnDisconnect runs when the session's transport is gone.
func (o *Orchestrator) OnDisconnect(sid domain.SessionID) {
	if roomName, ok := o.Leave(sid); ok {
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomName)).Msg("evicted on disconnect")
	}
	o.Registry.Unbind(sid)
}

func (o *Orchestrator) Members(roomName domain.RoomName) ([]domain.MemberDTO, bool) {
	room, ok := o.Rooms.Get(roomName)
	if !ok {
		return nil, false
	}
	return room.MembersSnapshot(), true
}

// CloseRoom disconnects every member and drops the room. Members are
// detached first so no user-disconnected notices go out.
func (o *Orchestrator) CloseRoom(roomName domain.RoomName) int {
	o.mu.Lock()
	members := o.Registry.MembersOfRoom(roomName)
	for _, m := range members {
		o.Registry.RemoveRoom(m.SID)
	}
	o.Rooms.StopRoom(roomName)
	o.mu.Unlock()

	for _, m := range members {
		o.Kick(m.SID)
	}
	log.Info().Str("module", "orch").Str("room", string(roomName)).Int("members", len(members)).Msg("room closed")
	return len(members)
}

// Shutdown closes every room and reports how many sessions were dropped.
func (o *Orchestrator) Shutdown() int {
	total := 0
	for _, info := range o.Rooms.List() {
		total += o.CloseRoom(info.Name)
	}
	return total
}
