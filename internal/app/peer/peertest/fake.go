// Package peertest provides in-memory transports for tests of the peer,
// negotiate and call packages.
package peertest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/p2pcall/internal/core"
	"github.com/dkeye/p2pcall/internal/domain"
	"github.com/pion/webrtc/v4"
)

var ErrInjected = errors.New("injected failure")

// Transport records what the negotiation layer did to it. Set Fail to a
// call name ("create-offer", "apply-offer", ...) to make that call fail.
type Transport struct {
	Remote domain.SessionID

	mu          sync.Mutex
	calls       []string
	candidates  []webrtc.ICECandidateInit
	remoteDesc  *webrtc.SessionDescription
	tracks      int
	closed      bool
	fail        string
	before      map[string]func()
	onICE       func(webrtc.ICECandidateInit)
	onConnected func()
	onClosed    func()
}

func (t *Transport) FailOn(call string) {
	t.mu.Lock()
	t.fail = call
	t.mu.Unlock()
}

// Before runs fn when call starts, outside the transport's lock.
func (t *Transport) Before(call string, fn func()) {
	t.mu.Lock()
	if t.before == nil {
		t.before = make(map[string]func())
	}
	t.before[call] = fn
	t.mu.Unlock()
}

func (t *Transport) enter(call string) error {
	t.mu.Lock()
	hook := t.before[call]
	t.mu.Unlock()
	if hook != nil {
		hook()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, call)
	if t.closed && call != "close" {
		return fmt.Errorf("%s on closed transport", call)
	}
	if t.fail == call {
		return ErrInjected
	}
	return nil
}

func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	if err := t.enter("create-offer"); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-for-" + string(t.Remote)}, nil
}

func (t *Transport) ApplyOffer(offer webrtc.SessionDescription) error {
	if err := t.enter("apply-offer"); err != nil {
		return err
	}
	t.mu.Lock()
	t.remoteDesc = &offer
	t.mu.Unlock()
	return nil
}

func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) {
	if err := t.enter("create-answer"); err != nil {
		return webrtc.SessionDescription{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remoteDesc == nil {
		return webrtc.SessionDescription{}, errors.New("answer before offer")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-for-" + string(t.Remote)}, nil
}

func (t *Transport) ApplyAnswer(answer webrtc.SessionDescription) error {
	if err := t.enter("apply-answer"); err != nil {
		return err
	}
	t.mu.Lock()
	t.remoteDesc = &answer
	t.mu.Unlock()
	return nil
}

func (t *Transport) AddICECandidate(c webrtc.ICECandidateInit) error {
	if err := t.enter("add-candidate"); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remoteDesc == nil {
		return errors.New("candidate before remote description")
	}
	t.candidates = append(t.candidates, c)
	return nil
}

func (t *Transport) AddLocalTrack(webrtc.TrackLocal) error {
	if err := t.enter("add-track"); err != nil {
		return err
	}
	t.mu.Lock()
	t.tracks++
	t.mu.Unlock()
	return nil
}

func (t *Transport) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	t.mu.Lock()
	t.onICE = fn
	t.mu.Unlock()
}

func (t *Transport) OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {}

func (t *Transport) OnConnected(fn func()) {
	t.mu.Lock()
	t.onConnected = fn
	t.mu.Unlock()
}

func (t *Transport) OnClosed(fn func()) {
	t.mu.Lock()
	t.onClosed = fn
	t.mu.Unlock()
}

func (t *Transport) Close() error {
	_ = t.enter("close")
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	fn := t.onClosed
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

// Gather simulates a locally gathered ICE candidate.
func (t *Transport) Gather(c webrtc.ICECandidateInit) {
	t.mu.Lock()
	fn := t.onICE
	t.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// Connect simulates the transport reaching the connected state.
func (t *Transport) Connect() {
	t.mu.Lock()
	fn := t.onConnected
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *Transport) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

func (t *Transport) Candidates() []webrtc.ICECandidateInit {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), t.candidates...)
}

func (t *Transport) Tracks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracks
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Network hands out Transports and remembers every one it made.
type Network struct {
	mu      sync.Mutex
	made    map[domain.SessionID][]*Transport
	prepare func(*Transport)
}

func NewNetwork() *Network {
	return &Network{made: make(map[domain.SessionID][]*Transport)}
}

// Prepare runs fn on every transport before it is handed out.
func (n *Network) Prepare(fn func(*Transport)) {
	n.mu.Lock()
	n.prepare = fn
	n.mu.Unlock()
}

func (n *Network) Factory() core.TransportFactory {
	return func(remote domain.SessionID) (core.PeerTransport, error) {
		t := &Transport{Remote: remote}
		n.mu.Lock()
		prepare := n.prepare
		n.made[remote] = append(n.made[remote], t)
		n.mu.Unlock()
		if prepare != nil {
			prepare(t)
		}
		return t, nil
	}
}

// Last is the most recent transport made for remote, or nil.
func (n *Network) Last(remote domain.SessionID) *Transport {
	n.mu.Lock()
	defer n.mu.Unlock()
	ts := n.made[remote]
	if len(ts) == 0 {
		return nil
	}
	return ts[len(ts)-1]
}

func (n *Network) Made(remote domain.SessionID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.made[remote])
}

// Outbox is a core.Signaler that keeps what was sent.
type Outbox struct {
	mu   sync.Mutex
	msgs []domain.Message
	err  error
}

func (o *Outbox) Send(msg domain.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *Outbox) FailWith(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

// Take returns and clears the sent messages.
func (o *Outbox) Take() []domain.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.msgs
	o.msgs = nil
	return out
}

// OfType returns and clears the sent messages, keeping those of kind.
func (o *Outbox) OfType(kind domain.Kind) []domain.Message {
	var out []domain.Message
	for _, m := range o.Take() {
		if m.Type == kind {
			out = append(out, m)
		}
	}
	return out
}

// Stream is a LocalStream with fixed tracks.
type Stream struct {
	mu      sync.Mutex
	tracks  []webrtc.TrackLocal
	stopped int
}

func NewStream(mode domain.CallMode) (*Stream, error) {
	s := &Stream{}
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "test")
	if err != nil {
		return nil, err
	}
	s.tracks = append(s.tracks, audio)
	if mode.WantsVideo() {
		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "test")
		if err != nil {
			return nil, err
		}
		s.tracks = append(s.tracks, video)
	}
	return s, nil
}

func (s *Stream) Tracks() []webrtc.TrackLocal { return s.tracks }

func (s *Stream) Stop() {
	s.mu.Lock()
	s.stopped++
	s.mu.Unlock()
}

func (s *Stream) Stopped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
