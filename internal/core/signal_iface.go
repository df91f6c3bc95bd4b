package core

import "github.com/dkeye/p2pcall/internal/domain"

//go:generate mockgen -source=signal_iface.go -destination=mocks/mock_signal.go -package=mocks

// Frame is a raw encoded signaling message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Signaler sends one message to the signaling server. Safe for concurrent use.
type Signaler interface {
	Send(domain.Message) error
}
