package device

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeDevice struct {
	setupErrs []error // consumed one per Setup; nil entries succeed
	writeErr  error

	mu       sync.Mutex
	calls    []string
	setups   atomic.Int64
	closes   atomic.Int64
	stopped  chan struct{}
	stopOnce sync.Once
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{stopped: make(chan struct{})}
}

func (d *fakeDevice) record(c string) {
	d.mu.Lock()
	d.calls = append(d.calls, c)
	d.mu.Unlock()
}

func (d *fakeDevice) Name() string { return "fake" }

func (d *fakeDevice) Setup() error {
	n := int(d.setups.Add(1)) - 1
	d.record("setup")
	if n < len(d.setupErrs) {
		return d.setupErrs[n]
	}
	return nil
}

func (d *fakeDevice) WriteOutput() error {
	select {
	case <-d.stopped:
		return nil
	case <-time.After(5 * time.Millisecond):
	}
	d.mu.Lock()
	err := d.writeErr
	d.writeErr = nil
	d.mu.Unlock()
	return err
}

func (d *fakeDevice) Close() {
	d.closes.Add(1)
	d.record("close")
}

func (d *fakeDevice) Stop() {
	d.stopOnce.Do(func() { close(d.stopped) })
}

func (d *fakeDevice) Callbacks() uint64 { return 99 }

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestRunner_RunsUntilCanceledThenCloses(t *testing.T) {
	dev := newFakeDevice()
	r := NewRunner(dev, Config{Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return r.Snapshot().State == StateRunning })

	snap := r.Snapshot()
	if !snap.Healthy || snap.Callbacks != 99 {
		t.Fatalf("snapshot=%+v", snap)
	}

	cancel()
	r.Wait()
	if dev.closes.Load() != 1 {
		t.Fatalf("closes=%d want 1", dev.closes.Load())
	}
	if s := r.Snapshot().State; s != StateStopped {
		t.Fatalf("state=%q want %q", s, StateStopped)
	}
}

func TestRunner_RetriesFailedSetup(t *testing.T) {
	oldAfter := afterFn
	afterFn = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	t.Cleanup(func() { afterFn = oldAfter })

	dev := newFakeDevice()
	dev.setupErrs = []error{errors.New("device not found"), errors.New("device not found")}
	r := NewRunner(dev, Config{Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return r.Snapshot().State == StateRunning })

	snap := r.Snapshot()
	if snap.Setups != 3 || snap.SetupFailures != 2 {
		t.Fatalf("setups=%d failures=%d want 3/2", snap.Setups, snap.SetupFailures)
	}
	// Every failed setup is unwound.
	if dev.closes.Load() != 2 {
		t.Fatalf("closes=%d want 2", dev.closes.Load())
	}
	if snap.LastError != "" {
		t.Fatalf("last error not cleared after recovery: %q", snap.LastError)
	}
	cancel()
	r.Wait()
}

func TestRunner_WatchdogFailureTriggersReSetup(t *testing.T) {
	oldAfter := afterFn
	afterFn = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	t.Cleanup(func() { afterFn = oldAfter })

	dev := newFakeDevice()
	dev.writeErr = errors.New("audio callback not responding")

	var mu sync.Mutex
	var states []string
	r := NewRunner(dev, Config{Logger: quietLogger(), OnChange: func(s Snapshot) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return dev.setups.Load() >= 2 && r.Snapshot().State == StateRunning })

	if n := r.Snapshot().WatchdogFailures; n != 1 {
		t.Fatalf("watchdog failures=%d want 1", n)
	}
	cancel()
	r.Wait()

	mu.Lock()
	defer mu.Unlock()
	want := []string{StateSetup, StateRunning, StateFailed, StateSetup, StateRunning, StateStopped}
	if len(states) != len(want) {
		t.Fatalf("states=%v want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states=%v want %v", states, want)
		}
	}
}

func TestRunner_StartTwiceFails(t *testing.T) {
	r := NewRunner(newFakeDevice(), Config{Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(ctx); err == nil {
		t.Fatalf("expected second Start to fail")
	}
	cancel()
	r.Wait()
}
