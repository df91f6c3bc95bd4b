package signal

import (
	"github.com/dkeye/p2pcall/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(
	sid domain.SessionID,
	conn *WsSignalConn,
	msg domain.Message,
) {
	raw := string(msg.Room)
	if raw == "" {
		// Room may also be given as the payload.
		_ = msg.Decode(&raw)
	}
	name, err := domain.ParseRoomName(raw)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad join room")
		ctl.sendError(conn, domain.ErrCodeBadRoom)
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(name)).Msg("join")
	res, err := ctl.Orch.Join(sid, name)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join failed")
		ctl.sendError(conn, joinErrorCode(err))
		return
	}

	resp, err := domain.NewMessage(domain.KindRoomState, res.State)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("room state marshal")
		return
	}
	resp.Room = res.Room
	resp.From = sid
	ctl.sendJSON(conn, resp)
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(
	sid domain.SessionID,
	conn *WsSignalConn,
) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	roomName, _ := ctl.Orch.Leave(sid)
	ctl.sendJSON(conn, domain.Message{Type: domain.KindLeave, Room: roomName})
}
