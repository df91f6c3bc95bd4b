// Package peer owns the client's peer connections, one per remote session.
package peer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/p2pcall/internal/core"
	"github.com/dkeye/p2pcall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Manager struct {
	factory core.TransportFactory

	mu      sync.Mutex
	entries map[domain.SessionID]*Entry

	hmu         sync.RWMutex
	onCandidate func(remote domain.SessionID, c webrtc.ICECandidateInit)
	onConnected func(e *Entry)
	onLost      func(remote domain.SessionID)
}

func NewManager(factory core.TransportFactory) *Manager {
	return &Manager{
		factory: factory,
		entries: make(map[domain.SessionID]*Entry),
	}
}

// OnLocalCandidate sets where local candidates go once an entry's local
// description is set. fn runs on transport goroutines.
func (m *Manager) OnLocalCandidate(fn func(remote domain.SessionID, c webrtc.ICECandidateInit)) {
	m.hmu.Lock()
	m.onCandidate = fn
	m.hmu.Unlock()
}

// OnConnected is called when an entry's transport reports connected.
func (m *Manager) OnConnected(fn func(e *Entry)) {
	m.hmu.Lock()
	m.onConnected = fn
	m.hmu.Unlock()
}

// OnLost is called after an entry was removed because its transport failed
// or closed on its own. Entries removed through Close do not trigger it.
func (m *Manager) OnLost(fn func(remote domain.SessionID)) {
	m.hmu.Lock()
	m.onLost = fn
	m.hmu.Unlock()
}

// Create returns the entry for remote, building a new transport only when
// there is none. created reports which happened.
func (m *Manager) Create(remote domain.SessionID) (e *Entry, created bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[remote]; ok {
		return e, false, nil
	}

	t, err := m.factory(remote)
	if err != nil {
		return nil, false, fmt.Errorf("create transport for %s: %w", remote, err)
	}
	e = newEntry(remote, t)
	e.emit = func(c webrtc.ICECandidateInit) {
		m.hmu.RLock()
		fn := m.onCandidate
		m.hmu.RUnlock()
		if fn != nil {
			fn(remote, c)
		}
	}

	t.OnICECandidate(e.localCandidate)
	t.OnConnected(func() {
		m.hmu.RLock()
		fn := m.onConnected
		m.hmu.RUnlock()
		if fn != nil && !e.Closed() {
			fn(e)
		}
	})
	t.OnClosed(func() {
		if !m.forget(e) {
			return
		}
		log.Info().Str("module", "peer").Str("peer", string(remote)).Msg("transport closed, entry removed")
		m.hmu.RLock()
		fn := m.onLost
		m.hmu.RUnlock()
		if fn != nil {
			fn(remote)
		}
	})

	m.entries[remote] = e
	log.Info().Str("module", "peer").Str("peer", string(remote)).Msg("entry created")
	return e, true, nil
}

func (m *Manager) Get(remote domain.SessionID) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[remote]
	return e, ok
}

// Current reports whether e is still the live entry for its remote.
func (m *Manager) Current(e *Entry) bool {
	if e == nil || e.Closed() {
		return false
	}
	cur, ok := m.Get(e.Remote)
	return ok && cur == e
}

// AttachLocalTracks adds every track of stream to the entry's transport.
func (m *Manager) AttachLocalTracks(e *Entry, stream core.LocalStream) error {
	if stream == nil {
		return nil
	}
	for _, track := range stream.Tracks() {
		if err := e.Transport.AddLocalTrack(track); err != nil {
			return fmt.Errorf("attach %s track: %w", track.Kind(), err)
		}
		e.mu.Lock()
		e.tracks++
		e.mu.Unlock()
	}
	return nil
}

// OnRemoteTrack registers cb for tracks arriving on e.
func (m *Manager) OnRemoteTrack(e *Entry, cb func(remote domain.SessionID, track *webrtc.TrackRemote)) {
	e.Transport.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if e.Closed() {
			return
		}
		cb(e.Remote, track)
	})
}

// Close closes and removes the entry for remote. Closing an unknown remote
// is a no-op.
func (m *Manager) Close(remote domain.SessionID) bool {
	m.mu.Lock()
	e, ok := m.entries[remote]
	if ok {
		delete(m.entries, remote)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.closeEntry(e)
	return true
}

func (m *Manager) CloseAll() int {
	m.mu.Lock()
	entries := make([]*Entry, 0, len(m.entries))
	for id, e := range m.entries {
		entries = append(entries, e)
		delete(m.entries, id)
	}
	m.mu.Unlock()

	for _, e := range entries {
		m.closeEntry(e)
	}
	return len(entries)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) IDs() []domain.SessionID {
	m.mu.Lock()
	ids := make([]domain.SessionID, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

func (m *Manager) closeEntry(e *Entry) {
	if !e.close() {
		return
	}
	if err := e.Transport.Close(); err != nil {
		log.Warn().Err(err).Str("module", "peer").Str("peer", string(e.Remote)).Msg("transport close")
	}
	log.Info().Str("module", "peer").Str("peer", string(e.Remote)).Msg("entry closed")
}

// forget drops e after its transport went away on its own.
func (m *Manager) forget(e *Entry) bool {
	m.mu.Lock()
	cur, ok := m.entries[e.Remote]
	if ok && cur == e {
		delete(m.entries, e.Remote)
	}
	m.mu.Unlock()

	return ok && cur == e && e.close()
}
