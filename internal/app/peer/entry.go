package peer

import (
	"sync"

	"github.com/dkeye/p2pcall/internal/core"
	"github.com/dkeye/p2pcall/internal/domain"
	"github.com/pion/webrtc/v4"
)

type State string

const (
	StateIdle           State = "idle"
	StateOfferSent      State = "offer-sent"
	StateAnswerReceived State = "answer-received"
	StateOfferReceived  State = "offer-received"
	StateAnswerSent     State = "answer-sent"
	StateConnected      State = "connected"
	StateClosed         State = "closed"
)

type Role int

const (
	RoleNone Role = iota
	RoleCaller
	RoleCallee
)

func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleCallee:
		return "callee"
	}
	return "none"
}

// Entry is the connection to one remote peer. Its fields are touched from
// pion callback goroutines, so everything goes through mu.
type Entry struct {
	Remote    domain.SessionID
	Transport core.PeerTransport

	mu        sync.Mutex
	state     State
	role      Role
	localSet  bool
	remoteSet bool
	tracks    int
	// local candidates gathered before the local description was set
	pending []webrtc.ICECandidateInit
	emit    func(webrtc.ICECandidateInit)
}

func newEntry(remote domain.SessionID, t core.PeerTransport) *Entry {
	return &Entry{Remote: remote, Transport: t, state: StateIdle}
}

func (e *Entry) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Entry) Role() Role {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.role
}

func (e *Entry) SetRole(r Role) {
	e.mu.Lock()
	e.role = r
	e.mu.Unlock()
}

// Transition moves the entry to next if it is currently in one of from.
// A closed entry never moves.
func (e *Entry) Transition(next State, from ...State) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return false
	}
	for _, s := range from {
		if e.state == s {
			e.state = next
			return true
		}
	}
	return false
}

func (e *Entry) Closed() bool {
	return e.State() == StateClosed
}

func (e *Entry) RemoteDescriptionSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remoteSet
}

func (e *Entry) MarkRemoteDescriptionSet() {
	e.mu.Lock()
	e.remoteSet = true
	e.mu.Unlock()
}

// MarkLocalDescriptionSet releases candidates buffered so far; later ones
// are emitted as soon as they are gathered.
func (e *Entry) MarkLocalDescriptionSet() {
	e.mu.Lock()
	e.localSet = true
	pending := e.pending
	e.pending = nil
	emit := e.emit
	closed := e.state == StateClosed
	e.mu.Unlock()

	if closed || emit == nil {
		return
	}
	for _, c := range pending {
		emit(c)
	}
}

func (e *Entry) TrackCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracks
}

func (e *Entry) localCandidate(c webrtc.ICECandidateInit) {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	if !e.localSet {
		e.pending = append(e.pending, c)
		e.mu.Unlock()
		return
	}
	emit := e.emit
	e.mu.Unlock()
	if emit != nil {
		emit(c)
	}
}

// close marks the entry closed and reports whether it was open.
func (e *Entry) close() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return false
	}
	e.state = StateClosed
	e.pending = nil
	return true
}
