// Package device runs output devices through their lifecycle.
//
// A Runner repeatedly sets its device up, polls its health, and tears it down
// again when either step fails, waiting RetryDelay between attempts. Stopping
// the runner requests a graceful stop from the device and always ends with a
// teardown.
package device

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

var afterFn = time.After

// Device is an output device as seen by its owner. Setup, WriteOutput and
// Close are only called from the runner goroutine; Stop may be called from
// any goroutine.
type Device interface {
	Name() string
	Setup() error
	WriteOutput() error
	Close()
	Stop()
}

const (
	StateIdle    = "idle"
	StateSetup   = "setup"
	StateRunning = "running"
	StateFailed  = "failed"
	StateStopped = "stopped"
	defaultRetry = 10 * time.Second
)

type Config struct {
	RetryDelay time.Duration
	Logger     *log.Logger

	// OnChange, if set, is called after every state transition.
	OnChange func(Snapshot)
}

type Snapshot struct {
	Name             string    `json:"name"`
	State            string    `json:"state"`
	Healthy          bool      `json:"healthy"`
	Setups           uint64    `json:"setups"`
	SetupFailures    uint64    `json:"setup_failures"`
	WatchdogFailures uint64    `json:"watchdog_failures"`
	Callbacks        uint64    `json:"callbacks"`
	LastError        string    `json:"last_error,omitempty"`
	LastChangeAt     time.Time `json:"last_change_utc,omitempty"`
}

// callbackCounter is implemented by devices that count realtime callbacks.
type callbackCounter interface {
	Callbacks() uint64
}

type Runner struct {
	dev Device
	cfg Config

	mu   sync.RWMutex
	snap Snapshot

	startOnce sync.Once
	done      chan struct{}
}

func NewRunner(dev Device, cfg Config) *Runner {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetry
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Runner{
		dev:  dev,
		cfg:  cfg,
		snap: Snapshot{Name: dev.Name(), State: StateIdle},
		done: make(chan struct{}),
	}
}

// Start runs the device until ctx is canceled. It does not block.
func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.dev == nil {
		return fmt.Errorf("device runner is nil")
	}
	started := false
	r.startOnce.Do(func() {
		started = true
		go func() {
			<-ctx.Done()
			r.dev.Stop()
		}()
		go func() {
			defer close(r.done)
			r.run(ctx)
		}()
	})
	if !started {
		return fmt.Errorf("%s: runner already started", r.dev.Name())
	}
	return nil
}

// Wait blocks until the runner has torn the device down after ctx ended.
func (r *Runner) Wait() {
	<-r.done
}

func (r *Runner) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	r.mu.RLock()
	snap := r.snap
	r.mu.RUnlock()
	if c, ok := r.dev.(callbackCounter); ok {
		snap.Callbacks = c.Callbacks()
	}
	return snap
}

func (r *Runner) setState(update func(*Snapshot)) {
	r.mu.Lock()
	update(&r.snap)
	r.snap.LastChangeAt = time.Now().UTC()
	snap := r.snap
	r.mu.Unlock()
	if r.cfg.OnChange != nil {
		r.cfg.OnChange(snap)
	}
}

func (r *Runner) run(ctx context.Context) {
	name := r.dev.Name()
	for {
		if ctx.Err() != nil {
			r.setState(func(s *Snapshot) { s.State = StateStopped; s.Healthy = false })
			return
		}

		r.setState(func(s *Snapshot) { s.State = StateSetup; s.Setups++ })
		if err := r.dev.Setup(); err != nil {
			r.dev.Close()
			r.setState(func(s *Snapshot) {
				s.State = StateFailed
				s.Healthy = false
				s.SetupFailures++
				s.LastError = err.Error()
			})
			if !r.sleep(ctx) {
				r.setState(func(s *Snapshot) { s.State = StateStopped })
				return
			}
			continue
		}

		r.cfg.Logger.Printf("%s setup succeeded", name)
		r.setState(func(s *Snapshot) { s.State = StateRunning; s.Healthy = true; s.LastError = "" })

		err := r.watch(ctx)
		r.dev.Close()
		if err == nil {
			r.setState(func(s *Snapshot) { s.State = StateStopped; s.Healthy = false })
			return
		}

		r.setState(func(s *Snapshot) {
			s.State = StateFailed
			s.Healthy = false
			s.WatchdogFailures++
			s.LastError = err.Error()
		})
		if !r.sleep(ctx) {
			r.setState(func(s *Snapshot) { s.State = StateStopped })
			return
		}
	}
}

// watch polls WriteOutput until it fails or ctx ends; nil means ctx ended.
func (r *Runner) watch(ctx context.Context) error {
	for ctx.Err() == nil {
		if err := r.dev.WriteOutput(); err != nil {
			return err
		}
	}
	return nil
}

// sleep waits RetryDelay and reports false if ctx ended first.
func (r *Runner) sleep(ctx context.Context) bool {
	r.cfg.Logger.Printf("%s retrying in %s", r.dev.Name(), r.cfg.RetryDelay)
	select {
	case <-afterFn(r.cfg.RetryDelay):
		return true
	case <-ctx.Done():
		return false
	}
}
