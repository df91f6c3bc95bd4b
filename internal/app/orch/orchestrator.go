package orch

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/p2pcall/internal/app"
	"github.com/dkeye/p2pcall/internal/core"
	"github.com/dkeye/p2pcall/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrNotInRoom      = errors.New("session has not joined a room")
	ErrRoomMismatch   = errors.New("message room differs from current room")
	ErrNotRelayable   = errors.New("message kind is not relayed")
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy

	// mu serializes membership changes so a room is never dropped by
	// RemoveIfEmpty between GetOrCreate and AddMember.
	mu sync.Mutex
}

func New(reg *app.Registry, rooms core.RoomManager, policy app.Policy) *Orchestrator {
	return &Orchestrator{Registry: reg, Rooms: rooms, Policy: policy}
}

// publish fans msg out to every member of roomName except the session
// given in except.
func (o *Orchestrator) publish(roomName domain.RoomName, except domain.SessionID, msg domain.Message) core.PublishResult {
	room, ok := o.Rooms.Get(roomName)
	if !ok {
		return core.PublishResult{}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", string(msg.Type)).Msg("marshal")
		return core.PublishResult{}
	}

	res := room.Broadcast(except, data)
	o.applyPolicy(room, res)
	return res
}

func (o *Orchestrator) applyPolicy(room core.RoomService, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			o.Kick(slow.ID())
		case app.DropFrame, app.NoAction:
			log.Warn().Str("module", "orch").Str("sid", string(slow.ID())).Msg("frame dropped")
		}
	}
}

// Kick closes the session's transport. The read pump exits on the closed
// connection and the regular disconnect path does the room cleanup.
func (o *Orchestrator) Kick(sid domain.SessionID) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("kicking session")
	o.Registry.Cancel(sid)
	sess.Signal().Close()
}
