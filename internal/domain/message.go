package domain

import (
	"encoding/json"
	"errors"
)

type Kind string

const (
	// client -> server
	KindJoin   Kind = "join"
	KindLeave  Kind = "leave"
	KindPing   Kind = "ping"
	KindWhoAmI Kind = "whoami"

	// relayed to the room, tagged with the sender
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindCandidate Kind = "candidate"
	KindEndCall   Kind = "end-call"
	KindChat      Kind = "chat-message"

	// server -> client
	KindUserConnected    Kind = "user-connected"
	KindUserDisconnected Kind = "user-disconnected"
	KindWelcome          Kind = "welcome"
	KindRoomState        Kind = "room-state"
	KindPong             Kind = "pong"
	KindError            Kind = "error"
)

// Error codes carried in Message.Error.
const (
	ErrCodeBadPayload     = "bad_payload"
	ErrCodeBadRoom        = "bad_room"
	ErrCodeNotInRoom      = "not_in_room"
	ErrCodeRoomMismatch   = "room_mismatch"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeUnknownType    = "unknown_type"
	ErrCodeUnknownSession = "unknown_session"
	ErrCodeJoinFailed     = "join_failed"
)

var ErrNoPayload = errors.New("message has no payload")

// Relayed reports whether messages of this kind are fanned out to the
// sender's room.
func (k Kind) Relayed() bool {
	switch k {
	case KindOffer, KindAnswer, KindCandidate, KindEndCall, KindChat:
		return true
	}
	return false
}

// Message is the single envelope used in both directions on the signaling
// channel. From is always set by the server, never trusted from a client.
type Message struct {
	Type    Kind            `json:"type"`
	Room    RoomName        `json:"room,omitempty"`
	From    SessionID       `json:"from,omitempty"`
	To      SessionID       `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// NewMessage builds a message with v marshalled as its payload. A nil v
// leaves the payload empty.
func NewMessage(kind Kind, v any) (Message, error) {
	m := Message{Type: kind}
	if v == nil {
		return m, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return m, err
	}
	m.Payload = b
	return m, nil
}

func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return ErrNoPayload
	}
	return json.Unmarshal(m.Payload, v)
}

// AddressedTo reports whether a message is meant for sid. Messages without a
// target are meant for everyone in the room.
func (m Message) AddressedTo(sid SessionID) bool {
	return m.To == "" || m.To == sid
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	SID SessionID `json:"sid"`
}

type RoomState struct {
	Members []MemberDTO `json:"members"`
	Count   int         `json:"count"`
}
