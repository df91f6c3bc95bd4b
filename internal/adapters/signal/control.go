package signal

import "github.com/dkeye/p2pcall/internal/domain"

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	ctl.sendJSON(conn, domain.Message{Type: domain.KindPong})
}

// handleWhoAmI tells the client its session id. It is also sent unprompted
// right after connect.
func (ctl *SignalWSController) handleWhoAmI(
	sid domain.SessionID,
	conn *WsSignalConn,
) {
	resp := domain.Message{
		Type: domain.KindWelcome,
		From: sid,
	}
	if roomName, _, ok := ctl.Orch.Registry.RoomOf(sid); ok {
		resp.Room = roomName
	}
	ctl.sendJSON(conn, resp)
}
