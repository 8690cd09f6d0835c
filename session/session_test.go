package session

import (
	"sync"
	"testing"
)

// fakeConn records sent payloads for assertions.
type fakeConn struct {
	id   string
	mu   sync.Mutex
	sent [][]byte
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return nil
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	conn := &fakeConn{id: "c-1"}
	if err := r.Register("u-1", conn); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	conns := r.Lookup("u-1")
	if len(conns) != 1 || conns[0].ID() != "c-1" {
		t.Errorf("Lookup = %v", conns)
	}
	if !r.Connected("u-1") {
		t.Error("Connected should be true")
	}
	if r.Connected("u-2") {
		t.Error("unknown user should not be connected")
	}
}

func TestRegisterSecondConnectionKeepsBoth(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	first := &fakeConn{id: "c-1"}
	second := &fakeConn{id: "c-2"}
	r.Register("u-1", first)
	r.Register("u-1", second)

	conns := r.Lookup("u-1")
	if len(conns) != 2 {
		t.Fatalf("Lookup returned %d conns, want 2", len(conns))
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1 user", r.Count())
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	conn := &fakeConn{id: "c-1"}
	r.Register("u-1", conn)

	r.Unregister("u-1", conn)
	if r.Lookup("u-1") != nil {
		t.Error("Lookup should return nil after unregister")
	}

	// Unregistering an absent connection is a no-op.
	r.Unregister("u-1", conn)
	r.Unregister("never-registered", conn)
}

func TestUnregisterLeavesOtherConnections(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	first := &fakeConn{id: "c-1"}
	second := &fakeConn{id: "c-2"}
	r.Register("u-1", first)
	r.Register("u-1", second)

	r.Unregister("u-1", first)

	conns := r.Lookup("u-1")
	if len(conns) != 1 || conns[0].ID() != "c-2" {
		t.Errorf("Lookup = %v, want only c-2", conns)
	}
}

func TestAll(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	r.Register("u-1", &fakeConn{id: "c-1"})
	r.Register("u-1", &fakeConn{id: "c-2"})
	r.Register("u-2", &fakeConn{id: "c-3"})

	entries := r.All()
	if len(entries) != 3 {
		t.Errorf("All returned %d entries, want 3", len(entries))
	}

	users := r.Users()
	if len(users) != 2 {
		t.Errorf("Users returned %d, want 2", len(users))
	}
}

func TestRegisterEmptyUserID(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	if err := r.Register("", &fakeConn{id: "c-1"}); err != ErrInvalidID {
		t.Errorf("expected ErrInvalidID, got %v", err)
	}
}

func TestClosedRegistry(t *testing.T) {
	r := NewRegistry()
	r.Close()

	if err := r.Register("u-1", &fakeConn{id: "c-1"}); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if r.Lookup("u-1") != nil {
		t.Error("Lookup on closed registry should return nil")
	}
	// Close is idempotent.
	if err := r.Close(); err != nil {
		t.Errorf("second Close error: %v", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			conn := &fakeConn{id: string(rune('a' + n%26))}
			r.Register("u-shared", conn)
			r.Lookup("u-shared")
			r.All()
			r.Unregister("u-shared", conn)
		}(i)
	}
	wg.Wait()
}
