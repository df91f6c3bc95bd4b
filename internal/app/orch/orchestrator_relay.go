package orch

import (
	"github.com/dkeye/p2pcall/internal/core"
	"github.com/dkeye/p2pcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Relay forwards a client message to the sender's current room, tagged with
// the sender. The target room always comes from the session record; a room
// named in the message only has to agree with it.
func (o *Orchestrator) Relay(sid domain.SessionID, msg domain.Message) (core.PublishResult, error) {
	if !msg.Type.Relayed() {
		return core.PublishResult{}, ErrNotRelayable
	}
	roomName, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		return core.PublishResult{}, ErrNotInRoom
	}
	if msg.Room != "" && msg.Room != roomName {
		return core.PublishResult{}, ErrRoomMismatch
	}

	out := domain.Message{
		Type:    msg.Type,
		Room:    roomName,
		From:    sid,
		To:      msg.To,
		Payload: msg.Payload,
	}
	res := o.publish(roomName, sid, out)
	log.Debug().
		Str("module", "orch").
		Str("sid", string(sid)).
		Str("room", string(roomName)).
		Str("type", string(msg.Type)).
		Int("sent_to", res.SendTo).
		Msg("relayed")
	return res, nil
}
