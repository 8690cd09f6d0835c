// Package shutdown coordinates graceful teardown: stop accepting
// connections first, drain the realtime layer, then release storage.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// Common errors.
var (
	// ErrAlreadyShutdown indicates shutdown was already initiated.
	ErrAlreadyShutdown = errors.New("shutdown already initiated")

	// ErrHandlerFailed indicates one or more handlers failed.
	ErrHandlerFailed = errors.New("one or more handlers failed")
)

// Func is a component teardown step. The context is cancelled when the
// grace period runs out.
type Func func(ctx context.Context) error

type registration struct {
	name  string
	fn    Func
	phase int
}

// Coordinator runs registered teardown steps in phase order. Lower
// phases run first; steps in the same phase run concurrently.
type Coordinator struct {
	timeout time.Duration
	onStep  func(name string, err error)

	mu       sync.Mutex
	handlers []registration

	once sync.Once
	err  error
	done chan struct{}
}

// New creates a coordinator with the given grace period. onStep, if
// non-nil, is called as each step finishes.
func New(timeout time.Duration, onStep func(name string, err error)) *Coordinator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Coordinator{
		timeout: timeout,
		onStep:  onStep,
		done:    make(chan struct{}),
	}
}

// Register adds a teardown step to the given phase.
func (c *Coordinator) Register(name string, phase int, fn Func) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, fn: fn, phase: phase})
}

// Shutdown runs every registered step once. Subsequent calls return
// the first run's result.
func (c *Coordinator) Shutdown() error {
	c.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		c.err = c.run(ctx)
		close(c.done)
	})
	<-c.done
	return c.err
}

// HandleSignals triggers shutdown on SIGTERM or SIGINT.
func (c *Coordinator) HandleSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-ch
		c.Shutdown()
	}()
}

// Done is closed when shutdown has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) run(ctx context.Context) error {
	c.mu.Lock()
	handlers := append([]registration(nil), c.handlers...)
	c.mu.Unlock()

	// Stable sort keeps registration order within a phase meaningful
	// for reporting, even though the phase runs concurrently.
	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	failed := 0
	for start := 0; start < len(handlers); {
		end := start
		for end < len(handlers) && handlers[end].phase == handlers[start].phase {
			end++
		}

		var wg sync.WaitGroup
		errs := make([]error, end-start)
		for i, reg := range handlers[start:end] {
			wg.Add(1)
			go func(i int, reg registration) {
				defer wg.Done()
				errs[i] = reg.fn(ctx)
				if c.onStep != nil {
					c.onStep(reg.name, errs[i])
				}
			}(i, reg)
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				failed++
			}
		}
		start = end
	}

	if failed > 0 {
		return fmt.Errorf("%w (%d failed)", ErrHandlerFailed, failed)
	}
	return nil
}
