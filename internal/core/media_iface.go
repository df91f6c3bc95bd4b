package core

import (
	"context"

	"github.com/dkeye/p2pcall/internal/domain"
	"github.com/pion/webrtc/v4"
)

//go:generate mockgen -source=media_iface.go -destination=mocks/mock_media.go -package=mocks

// PeerTransport is one peer connection as seen by the negotiation layer.
// Callbacks must be registered before the first description is applied.
type PeerTransport interface {
	// CreateOffer creates an offer and sets it as the local description.
	CreateOffer() (webrtc.SessionDescription, error)
	// ApplyOffer sets a remote offer as the remote description.
	ApplyOffer(offer webrtc.SessionDescription) error
	// CreateAnswer creates an answer and sets it as the local description.
	// Only valid after ApplyOffer.
	CreateAnswer() (webrtc.SessionDescription, error)
	ApplyAnswer(answer webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// AddLocalTrack attaches a local track for outbound media.
	AddLocalTrack(track webrtc.TrackLocal) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	OnConnected(func())
	// OnClosed fires once when the connection fails or is closed.
	OnClosed(func())
	Close() error
}

// TransportFactory builds a fresh transport for a remote session.
type TransportFactory func(remote domain.SessionID) (PeerTransport, error)

// LocalStream is the captured media of one call. Its tracks are shared by all
// peer transports; only the owner stops it.
type LocalStream interface {
	Tracks() []webrtc.TrackLocal
	Stop()
}

type MediaSource interface {
	Acquire(ctx context.Context, mode domain.CallMode) (LocalStream, error)
}
