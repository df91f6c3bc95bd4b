// Package negotiate runs the offer/answer/candidate exchange with every
// remote peer of the current call.
package negotiate

import (
	"errors"
	"sync"

	"github.com/dkeye/p2pcall/internal/app/peer"
	"github.com/dkeye/p2pcall/internal/core"
	"github.com/dkeye/p2pcall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// MaxQueuedCandidates bounds the remote candidates kept for one peer while
// it has no remote description.
const MaxQueuedCandidates = 64

type TrackHandler func(remote domain.SessionID, track *webrtc.TrackRemote)

// Coordinator is driven by a single dispatch goroutine. Transport callbacks
// only reach it through the peer manager's candidate and connected hooks.
type Coordinator struct {
	peers  *peer.Manager
	signal core.Signaler

	mu      sync.Mutex
	self    domain.SessionID
	stream  core.LocalStream
	onTrack TrackHandler
	// remote candidates that arrived before their entry could take them
	queued map[domain.SessionID][]webrtc.ICECandidateInit
}

func New(peers *peer.Manager, signal core.Signaler) *Coordinator {
	c := &Coordinator{
		peers:  peers,
		signal: signal,
		queued: make(map[domain.SessionID][]webrtc.ICECandidateInit),
	}
	peers.OnLocalCandidate(c.sendCandidate)
	peers.OnConnected(c.onConnected)
	peers.OnLost(c.dropQueue)
	return c
}

func (c *Coordinator) SetSelf(sid domain.SessionID) {
	c.mu.Lock()
	c.self = sid
	c.mu.Unlock()
}

func (c *Coordinator) Self() domain.SessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

func (c *Coordinator) OnRemoteTrack(fn TrackHandler) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

// Begin marks a call active with stream as the local media for every peer.
func (c *Coordinator) Begin(stream core.LocalStream) {
	c.mu.Lock()
	c.stream = stream
	c.mu.Unlock()
}

// Reset closes every peer and forgets queued candidates. The stream is left
// to its owner.
func (c *Coordinator) Reset() int {
	c.mu.Lock()
	c.stream = nil
	c.queued = make(map[domain.SessionID][]webrtc.ICECandidateInit)
	c.mu.Unlock()
	return c.peers.CloseAll()
}

func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

// OnPeerJoined prepares an entry for a peer that just entered the room. The
// newcomer offers; this side waits for it.
func (c *Coordinator) OnPeerJoined(remote domain.SessionID) error {
	if !c.Active() {
		log.Debug().Str("module", "negotiate").Str("peer", string(remote)).Msg("peer joined, no active call")
		return nil
	}
	if remote == c.Self() {
		return nil
	}
	if c.peers.Close(remote) {
		log.Info().Str("module", "negotiate").Str("peer", string(remote)).Msg("peer rejoined, replacing entry")
	}

	if _, err := c.open(remote); err != nil {
		return &Error{Op: "create", Peer: remote, Err: err}
	}
	log.Info().Str("module", "negotiate").Str("peer", string(remote)).Msg("peer joined, waiting for offer")
	return nil
}

// OfferAll offers to every member already in the room when this side
// starts a call. A failure with one member does not stop the others.
func (c *Coordinator) OfferAll(members []domain.SessionID) error {
	var errs []error
	for _, remote := range members {
		if err := c.Offer(remote); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Offer creates a fresh entry for remote and sends it an offer.
func (c *Coordinator) Offer(remote domain.SessionID) error {
	if !c.Active() {
		log.Debug().Str("module", "negotiate").Str("peer", string(remote)).Msg("offer without active call skipped")
		return nil
	}
	if remote == c.Self() {
		return nil
	}
	if c.peers.Close(remote) {
		log.Info().Str("module", "negotiate").Str("peer", string(remote)).Msg("replacing entry before offer")
	}

	e, err := c.open(remote)
	if err != nil {
		return &Error{Op: "create", Peer: remote, Err: err}
	}
	e.SetRole(peer.RoleCaller)

	offer, err := e.Transport.CreateOffer()
	if err != nil {
		return c.fail(e, "create offer", err)
	}
	if !c.peers.Current(e) {
		return &Error{Op: "create offer", Peer: remote, Err: ErrStale}
	}
	e.MarkLocalDescriptionSet()
	e.Transition(peer.StateOfferSent, peer.StateIdle)

	if err := c.send(domain.KindOffer, remote, offer); err != nil {
		return c.fail(e, "send offer", err)
	}
	log.Info().Str("module", "negotiate").Str("peer", string(remote)).Msg("offer sent")
	return nil
}

// HandleOffer answers an offer from remote. The answer goes out only after
// the offer is applied and the early candidates are replayed.
func (c *Coordinator) HandleOffer(remote domain.SessionID, offer webrtc.SessionDescription) error {
	if !c.Active() {
		log.Warn().Str("module", "negotiate").Str("peer", string(remote)).Msg("offer without active call ignored")
		return nil
	}

	if e, ok := c.peers.Get(remote); ok {
		switch e.State() {
		case peer.StateIdle:
		case peer.StateOfferSent:
			// glare: the lower session id stays the offerer
			if c.Self().Less(remote) {
				log.Info().Str("module", "negotiate").Str("peer", string(remote)).Msg("glare, keeping our offer")
				return nil
			}
			log.Info().Str("module", "negotiate").Str("peer", string(remote)).Msg("glare, yielding to remote offer")
			c.peers.Close(remote)
		default:
			log.Info().Str("module", "negotiate").Str("peer", string(remote)).Str("state", string(e.State())).Msg("renegotiation, replacing entry")
			c.peers.Close(remote)
		}
	}

	e, err := c.open(remote)
	if err != nil {
		return &Error{Op: "create", Peer: remote, Err: err}
	}
	e.SetRole(peer.RoleCallee)
	e.Transition(peer.StateOfferReceived, peer.StateIdle)

	if err := e.Transport.ApplyOffer(offer); err != nil {
		return c.fail(e, "apply offer", err)
	}
	if !c.peers.Current(e) {
		return &Error{Op: "apply offer", Peer: remote, Err: ErrStale}
	}
	e.MarkRemoteDescriptionSet()
	if err := c.flush(e); err != nil {
		return err
	}

	answer, err := e.Transport.CreateAnswer()
	if err != nil {
		return c.fail(e, "create answer", err)
	}
	if !c.peers.Current(e) {
		return &Error{Op: "create answer", Peer: remote, Err: ErrStale}
	}
	e.MarkLocalDescriptionSet()
	e.Transition(peer.StateAnswerSent, peer.StateOfferReceived)

	if err := c.send(domain.KindAnswer, remote, answer); err != nil {
		return c.fail(e, "send answer", err)
	}
	log.Info().Str("module", "negotiate").Str("peer", string(remote)).Msg("answer sent")
	return nil
}

func (c *Coordinator) HandleAnswer(remote domain.SessionID, answer webrtc.SessionDescription) error {
	e, ok := c.peers.Get(remote)
	if !ok || e.State() != peer.StateOfferSent {
		state := peer.StateClosed
		if ok {
			state = e.State()
		}
		log.Warn().Str("module", "negotiate").Str("peer", string(remote)).Str("state", string(state)).Msg("unexpected answer ignored")
		return nil
	}

	if err := e.Transport.ApplyAnswer(answer); err != nil {
		return c.fail(e, "apply answer", err)
	}
	if !c.peers.Current(e) {
		return &Error{Op: "apply answer", Peer: remote, Err: ErrStale}
	}
	e.MarkRemoteDescriptionSet()
	e.Transition(peer.StateAnswerReceived, peer.StateOfferSent)
	if err := c.flush(e); err != nil {
		return err
	}
	e.Transition(peer.StateConnected, peer.StateAnswerReceived)
	log.Info().Str("module", "negotiate").Str("peer", string(remote)).Msg("answer applied")
	return nil
}

// HandleCandidate applies a remote candidate, or queues it until the entry
// for remote exists and has its remote description.
func (c *Coordinator) HandleCandidate(remote domain.SessionID, cand webrtc.ICECandidateInit) error {
	e, ok := c.peers.Get(remote)
	if ok && !e.Closed() && e.RemoteDescriptionSet() {
		if err := e.Transport.AddICECandidate(cand); err != nil {
			return c.fail(e, "add candidate", err)
		}
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		log.Debug().Str("module", "negotiate").Str("peer", string(remote)).Msg("candidate without active call dropped")
		return nil
	}
	if len(c.queued[remote]) >= MaxQueuedCandidates {
		log.Warn().Str("module", "negotiate").Str("peer", string(remote)).Msg("candidate queue full, candidate dropped")
		return nil
	}
	c.queued[remote] = append(c.queued[remote], cand)
	log.Debug().Str("module", "negotiate").Str("peer", string(remote)).Int("queued", len(c.queued[remote])).Msg("candidate queued")
	return nil
}

// OnPeerLeft closes the peer's entry and drops its queued candidates.
func (c *Coordinator) OnPeerLeft(remote domain.SessionID) bool {
	c.mu.Lock()
	delete(c.queued, remote)
	c.mu.Unlock()
	return c.peers.Close(remote)
}

// dropQueue forgets candidates for a peer whose transport went away on its own.
func (c *Coordinator) dropQueue(remote domain.SessionID) {
	c.mu.Lock()
	n := len(c.queued[remote])
	delete(c.queued, remote)
	c.mu.Unlock()
	if n > 0 {
		log.Debug().Str("module", "negotiate").Str("peer", string(remote)).Int("dropped", n).Msg("queued candidates dropped")
	}
}

// Queued reports how many remote candidates wait for remote.
func (c *Coordinator) Queued(remote domain.SessionID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queued[remote])
}

func (c *Coordinator) open(remote domain.SessionID) (*peer.Entry, error) {
	e, created, err := c.peers.Create(remote)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	stream := c.stream
	onTrack := c.onTrack
	c.mu.Unlock()

	// the call may have ended between the caller's Active check and Create
	if stream == nil {
		if c.peers.Current(e) {
			c.peers.Close(remote)
		}
		return nil, ErrNoCall
	}
	if !created {
		return e, nil
	}

	if onTrack != nil {
		c.peers.OnRemoteTrack(e, onTrack)
	}
	if err := c.peers.AttachLocalTracks(e, stream); err != nil {
		c.peers.Close(remote)
		return nil, err
	}
	return e, nil
}

func (c *Coordinator) flush(e *peer.Entry) error {
	c.mu.Lock()
	pending := c.queued[e.Remote]
	delete(c.queued, e.Remote)
	c.mu.Unlock()

	for _, cand := range pending {
		if !c.peers.Current(e) {
			return &Error{Op: "add queued candidate", Peer: e.Remote, Err: ErrStale}
		}
		if err := e.Transport.AddICECandidate(cand); err != nil {
			return c.fail(e, "add queued candidate", err)
		}
	}
	if len(pending) > 0 {
		log.Debug().Str("module", "negotiate").Str("peer", string(e.Remote)).Int("count", len(pending)).Msg("queued candidates applied")
	}
	return nil
}

// fail abandons one peer; other peers are untouched.
func (c *Coordinator) fail(e *peer.Entry, op string, err error) error {
	if !c.peers.Current(e) {
		log.Debug().Err(err).Str("module", "negotiate").Str("peer", string(e.Remote)).Str("op", op).Msg("step failed on a stale entry")
		return &Error{Op: op, Peer: e.Remote, Err: ErrStale}
	}
	log.Error().Err(err).Str("module", "negotiate").Str("peer", string(e.Remote)).Str("op", op).Msg("negotiation failed")
	c.OnPeerLeft(e.Remote)
	return &Error{Op: op, Peer: e.Remote, Err: err}
}

func (c *Coordinator) send(kind domain.Kind, to domain.SessionID, v any) error {
	msg, err := domain.NewMessage(kind, v)
	if err != nil {
		return err
	}
	msg.To = to
	return c.signal.Send(msg)
}

func (c *Coordinator) sendCandidate(remote domain.SessionID, cand webrtc.ICECandidateInit) {
	if err := c.send(domain.KindCandidate, remote, cand); err != nil {
		log.Warn().Err(err).Str("module", "negotiate").Str("peer", string(remote)).Msg("send candidate")
	}
}

func (c *Coordinator) onConnected(e *peer.Entry) {
	if e.Transition(peer.StateConnected, peer.StateAnswerSent, peer.StateAnswerReceived) {
		log.Info().Str("module", "negotiate").Str("peer", string(e.Remote)).Str("role", e.Role().String()).Msg("peer connected")
	}
}
