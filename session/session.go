// Package session tracks which users currently hold active
// connections. It is the only concurrently-mutated shared structure in
// the process; everything else lives in the external store.
//
// The registry maps a user id to the set of that user's connections,
// so a user with several tabs or devices receives targeted sends on
// every socket. Registration and lookup are symmetric: there is no
// separate broadcast-room membership to fall out of sync with.
package session

import (
	"errors"
	"sync"
)

// Common errors.
var (
	ErrClosed    = errors.New("session registry closed")
	ErrInvalidID = errors.New("invalid user id")
)

// Conn is the handle the registry holds for an active connection.
// Send must not block: implementations queue and drop when the peer
// cannot keep up, since delivery is fire-and-forget.
type Conn interface {
	// ID uniquely identifies the connection.
	ID() string

	// Send queues an encoded event for delivery.
	Send(data []byte) error
}

// Entry pairs a user id with one of their active connections.
type Entry struct {
	UserID string
	Conn   Conn
}

// Registry is the in-memory user-to-connections mapping.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]map[string]Conn // userID -> connID -> conn
	closed bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]map[string]Conn)}
}

// Register adds a connection under the user id. Registering the same
// connection twice is a no-op.
func (r *Registry) Register(userID string, conn Conn) error {
	if userID == "" {
		return ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]Conn)
		r.conns[userID] = set
	}
	set[conn.ID()] = conn
	return nil
}

// Unregister removes a connection from the user's set. Idempotent:
// removing an absent connection or user is a no-op.
func (r *Registry) Unregister(userID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	set, ok := r.conns[userID]
	if !ok {
		return
	}
	delete(set, conn.ID())
	if len(set) == 0 {
		delete(r.conns, userID)
	}
}

// Lookup returns all active connections for the user. Returns nil when
// the user has no session.
func (r *Registry) Lookup(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.conns[userID]
	if !ok {
		return nil
	}
	conns := make([]Conn, 0, len(set))
	for _, c := range set {
		conns = append(conns, c)
	}
	return conns
}

// All returns every (user, connection) pair.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []Entry
	for userID, set := range r.conns {
		for _, c := range set {
			entries = append(entries, Entry{UserID: userID, Conn: c})
		}
	}
	return entries
}

// Connected reports whether the user has at least one active connection.
func (r *Registry) Connected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns[userID]) > 0
}

// Count returns the number of users with at least one connection.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// Users returns the ids of all connected users.
func (r *Registry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.conns))
	for userID := range r.conns {
		users = append(users, userID)
	}
	return users
}

// Close drops all entries. Subsequent registrations fail with ErrClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.conns = nil
	return nil
}
