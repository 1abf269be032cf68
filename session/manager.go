// Package session owns the outer handshake lifecycle the engine itself is
// deliberately agnostic to: mapping peers to in-flight or completed
// handshakes, enforcing handshake and idle timeouts, and handing off
// derived traffic keys once an engine reaches Ready. It corresponds to the
// "session manager" collaborator described in spec.md §6.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaultnoise/noisexx/crypto"
	"github.com/vaultnoise/noisexx/noise"
	"github.com/vaultnoise/noisexx/vault"
)

// ErrReplayedHandshake indicates a responder rejected message 1 because its
// ephemeral public key was already seen within the replay window.
var ErrReplayedHandshake = errors.New("session: replayed handshake ephemeral key")

const (
	// HandshakeTimeout bounds how long an incomplete handshake may sit idle
	// before the manager reclaims it.
	HandshakeTimeout = 30 * time.Second
	// IdleTimeout bounds how long a completed session may sit unused before
	// the manager reclaims its traffic keys.
	IdleTimeout = 5 * time.Minute
	// CleanupInterval is how often the manager sweeps for stale sessions.
	CleanupInterval = 10 * time.Second
)

// Peer tracks one in-flight or completed handshake and its derived traffic
// keys. It is not safe for concurrent use from multiple goroutines without
// going through Manager's methods, which serialize access per peer.
type Peer struct {
	mu         sync.Mutex
	ID         string
	Addr       string
	Role       noise.Role
	engine     *noise.Engine
	complete   bool
	createdAt  time.Time
	lastActive time.Time
}

// Engine returns the underlying handshake engine for driving encode/decode
// calls. Callers must not retain it past the Peer's removal from the manager.
func (p *Peer) Engine() *noise.Engine {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine
}

// Keys returns the derived traffic keys once the handshake is complete.
func (p *Peer) Keys() (encryption, decryption vault.Handle, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.HandshakeKeys()
}

func (p *Peer) touch(now time.Time) {
	p.mu.Lock()
	p.lastActive = now
	p.mu.Unlock()
}

func (p *Peer) markComplete(now time.Time) {
	p.mu.Lock()
	p.complete = true
	p.lastActive = now
	p.mu.Unlock()
}

// Manager owns every peer's handshake engine, reclaiming stale or abandoned
// ones on a background sweep.
type Manager struct {
	v         vault.Vault
	staticKey vault.Handle

	mu       sync.RWMutex
	peers    map[string]*Peer
	addrToID map[string]string

	logger *crypto.LoggerHelper
	clock  crypto.TimeProvider
	replay *ReplayGuard

	handshakeTimeout time.Duration
	idleTimeout      time.Duration
	cleanupInterval  time.Duration
	stop             chan struct{}
	stopped          bool
}

// NewManager constructs a Manager bound to v and the local static key
// handle, using the package's default timeouts, and starts its background
// cleanup sweep. It has no replay guard; use NewManagerWithReplayGuard for a
// responder that must reject replayed message-1 ephemeral keys.
func NewManager(v vault.Vault, staticKey vault.Handle) *Manager {
	return NewManagerWithTimeouts(v, staticKey, HandshakeTimeout, IdleTimeout, CleanupInterval)
}

// NewManagerWithTimeouts is NewManager with explicit timeout overrides,
// wired from config.SessionConfig.
func NewManagerWithTimeouts(v vault.Vault, staticKey vault.Handle, handshakeTimeout, idleTimeout, cleanupInterval time.Duration) *Manager {
	return newManager(v, staticKey, handshakeTimeout, idleTimeout, cleanupInterval, crypto.DefaultTimeProvider{}, nil)
}

// NewManagerWithClock is NewManagerWithTimeouts with an injected
// crypto.TimeProvider, letting tests drive the handshake/idle sweep with a
// crypto.MockTimeProvider instead of real sleeps.
func NewManagerWithClock(v vault.Vault, staticKey vault.Handle, handshakeTimeout, idleTimeout, cleanupInterval time.Duration, clock crypto.TimeProvider) *Manager {
	return newManager(v, staticKey, handshakeTimeout, idleTimeout, cleanupInterval, clock, nil)
}

// NewManagerWithReplayGuard is NewManagerWithClock plus a ReplayGuard: every
// call to DecodeMessage1 is checked against it before reaching the engine,
// rejecting an initiator ephemeral key already seen within the replay
// window. Pass a nil clock to use the real wall clock.
func NewManagerWithReplayGuard(v vault.Vault, staticKey vault.Handle, handshakeTimeout, idleTimeout, cleanupInterval time.Duration, clock crypto.TimeProvider, replay *ReplayGuard) *Manager {
	if clock == nil {
		clock = crypto.DefaultTimeProvider{}
	}
	return newManager(v, staticKey, handshakeTimeout, idleTimeout, cleanupInterval, clock, replay)
}

func newManager(v vault.Vault, staticKey vault.Handle, handshakeTimeout, idleTimeout, cleanupInterval time.Duration, clock crypto.TimeProvider, replay *ReplayGuard) *Manager {
	m := &Manager{
		v:                v,
		staticKey:        staticKey,
		peers:            make(map[string]*Peer),
		addrToID:         make(map[string]string),
		logger:           crypto.NewLogger("session.Manager"),
		clock:            clock,
		replay:           replay,
		handshakeTimeout: handshakeTimeout,
		idleTimeout:      idleTimeout,
		cleanupInterval:  cleanupInterval,
		stop:             make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Start allocates a new Peer and handshake engine for addr in the given
// role, replacing any prior session for the same address.
func (m *Manager) Start(addr string, role noise.Role) (*Peer, error) {
	engine, err := noise.New(m.v, m.staticKey, role)
	if err != nil {
		return nil, fmt.Errorf("session: failed to start handshake for %s: %w", addr, err)
	}
	if err := engine.Initialize(); err != nil {
		return nil, fmt.Errorf("session: failed to initialize handshake for %s: %w", addr, err)
	}

	now := m.clock.Now()
	peer := &Peer{
		ID:         uuid.NewString(),
		Addr:       addr,
		Role:       role,
		engine:     engine,
		createdAt:  now,
		lastActive: now,
	}

	m.mu.Lock()
	if oldID, ok := m.addrToID[addr]; ok {
		if old, ok := m.peers[oldID]; ok {
			old.engine.Abort()
			delete(m.peers, oldID)
		}
	}
	m.peers[peer.ID] = peer
	m.addrToID[addr] = peer.ID
	m.mu.Unlock()

	m.logger.WithField("peer_addr", addr).WithField("role", role.String()).Debug("started handshake session")
	return peer, nil
}

// DecodeMessage1 decodes a responder's first received handshake message for
// the given session, rejecting it outright via the manager's ReplayGuard (if
// one is configured) before the engine ever sees it. Message 1's wire layout
// places the initiator's ephemeral public key in its first 32 bytes.
func (m *Manager) DecodeMessage1(id string, msg1 []byte) ([]byte, error) {
	peer, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("session: unknown session %s", id)
	}

	if m.replay != nil {
		if len(msg1) < vault.PublicKeySize {
			return nil, noise.ErrMessageLenMismatch
		}
		var ephemeral [32]byte
		copy(ephemeral[:], msg1[:vault.PublicKeySize])
		if !m.replay.Admit(ephemeral, m.clock.Now()) {
			m.logger.WithField("peer_addr", peer.Addr).Warn("rejected replayed handshake ephemeral key")
			return nil, ErrReplayedHandshake
		}
	}

	payload, err := peer.Engine().DecodeMessage1(msg1)
	if err != nil {
		return nil, err
	}
	peer.touch(m.clock.Now())
	return payload, nil
}

// Get returns the session for a given session ID.
func (m *Manager) Get(id string) (*Peer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.peers[id]
	return p, ok
}

// GetByAddr returns the session currently associated with a peer address.
func (m *Manager) GetByAddr(addr string) (*Peer, bool) {
	m.mu.RLock()
	id, ok := m.addrToID[addr]
	if !ok {
		m.mu.RUnlock()
		return nil, false
	}
	p, ok := m.peers[id]
	m.mu.RUnlock()
	return p, ok
}

// Touch records activity on a session, resetting its idle-timeout clock.
func (m *Manager) Touch(id string) {
	if p, ok := m.Get(id); ok {
		p.touch(m.clock.Now())
	}
}

// Complete marks a session's handshake finished, switching it onto the idle
// (rather than handshake) timeout budget.
func (m *Manager) Complete(id string) {
	if p, ok := m.Get(id); ok {
		p.markComplete(m.clock.Now())
	}
}

// Remove evicts a session outright, aborting its engine if still in flight.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	p, ok := m.peers[id]
	if ok {
		delete(m.peers, id)
		if m.addrToID[p.Addr] == id {
			delete(m.addrToID, p.Addr)
		}
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	p.mu.Lock()
	if !p.complete {
		p.engine.Abort()
	}
	p.mu.Unlock()
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) sweep() {
	m.mu.RLock()
	stale := make([]string, 0)
	for id, p := range m.peers {
		p.mu.Lock()
		age := m.clock.Since(p.lastActive)
		expired := (!p.complete && age > m.handshakeTimeout) || (p.complete && age > m.idleTimeout)
		p.mu.Unlock()
		if expired {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		m.logger.WithField("session_id", id).Debug("reclaiming stale session")
		m.Remove(id)
	}
}

// Close stops the cleanup sweep and aborts every in-flight session.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	ids := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	close(m.stop)
	for _, id := range ids {
		m.Remove(id)
	}
}
