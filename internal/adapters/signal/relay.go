package signal

import (
	"errors"

	"github.com/dkeye/p2pcall/internal/app/orch"
	"github.com/dkeye/p2pcall/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleRelay(
	sid domain.SessionID,
	conn *WsSignalConn,
	msg domain.Message,
) {
	if _, err := ctl.Orch.Relay(sid, msg); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("type", string(msg.Type)).Msg("relay rejected")
		ctl.sendError(conn, relayErrorCode(err))
	}
}

func (ctl *SignalWSController) handleChat(
	sid domain.SessionID,
	conn *WsSignalConn,
	msg domain.Message,
) {
	var text string
	if err := msg.Decode(&text); err != nil || text == "" {
		ctl.sendError(conn, domain.ErrCodeBadPayload)
		return
	}
	if !ctl.chat.Allow(sid) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("chat rate limited")
		ctl.sendError(conn, domain.ErrCodeRateLimited)
		return
	}
	ctl.handleRelay(sid, conn, msg)
}

func relayErrorCode(err error) string {
	switch {
	case errors.Is(err, orch.ErrNotInRoom):
		return domain.ErrCodeNotInRoom
	case errors.Is(err, orch.ErrRoomMismatch):
		return domain.ErrCodeRoomMismatch
	default:
		return domain.ErrCodeUnknownType
	}
}

func joinErrorCode(err error) string {
	if errors.Is(err, orch.ErrUnknownSession) {
		return domain.ErrCodeUnknownSession
	}
	return domain.ErrCodeJoinFailed
}
