package sound

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"pwmaudio/internal/clock"
)

var afterFn = time.After

const (
	DefaultFirstWait  = 1 * time.Second
	DefaultSecondWait = 1 * time.Second
)

type Config struct {
	// Name identifies the device in logs.
	Name string
	// Output is the exact backend device name to open.
	Output string
	// Channels is the number of interleaved output channels.
	Channels   int
	SampleRate int
	// Period is frames per callback; 0 lets the backend choose.
	Period  int
	Latency time.Duration

	// FirstWait and SecondWait bound how long WriteOutput waits for the
	// callback to run before declaring the device unresponsive.
	FirstWait  time.Duration
	SecondWait time.Duration

	Logger *log.Logger
	// Now is the monotonic clock handed to the provider. Nil uses clock.Now.
	Now clock.Func
}

// Device is a PWM sound output. Setup, WriteOutput and Close are called from
// one control goroutine; the encoder runs on the backend's callback thread.
type Device struct {
	cfg      Config
	gate     *Gate
	backend  Backend
	provider Provider

	// Lifecycle flags, control goroutine only. Each is set once its stage
	// fully succeeds and drives which teardown steps run.
	initialized bool
	opened      bool
	started     bool

	stream  Stream
	encoder *Encoder

	alive     atomic.Bool
	stopped   atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	callbacks atomic.Uint64
	lastCall  atomic.Int64
}

// New returns an unopened device. provider must outlive the device.
func New(cfg Config, gate *Gate, backend Backend, provider Provider) *Device {
	if cfg.FirstWait <= 0 {
		cfg.FirstWait = DefaultFirstWait
	}
	if cfg.SecondWait <= 0 {
		cfg.SecondWait = DefaultSecondWait
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Now == nil {
		cfg.Now = clock.Now
	}
	return &Device{
		cfg:      cfg,
		gate:     gate,
		backend:  backend,
		provider: provider,
		stopCh:   make(chan struct{}),
	}
}

func (d *Device) Name() string { return d.cfg.Name }

func (d *Device) logf(format string, args ...any) {
	d.cfg.Logger.Printf("%s "+format, append([]any{d.cfg.Name}, args...)...)
}

// Setup initializes the backend, negotiates the output and starts the stream.
// On error the flags of the stages that did succeed stay set; call Close to
// unwind them.
func (d *Device) Setup() error {
	if d.gate == nil || d.backend == nil {
		return fmt.Errorf("%s: device has no backend", d.cfg.Name)
	}
	if d.initialized || d.opened || d.started {
		return fmt.Errorf("%s: device already set up", d.cfg.Name)
	}

	if err := d.gate.Acquire(d.backend); err != nil {
		d.logf("error: %v", err)
		return fmt.Errorf("%s: initialize %s: %w", d.cfg.Name, d.backend.Name(), err)
	}
	d.initialized = true

	sc, err := d.negotiate()
	if err != nil {
		d.logf("%v", err)
		return fmt.Errorf("%s: %w", d.cfg.Name, err)
	}

	d.encoder = NewEncoder(sc.SampleRate, sc.Channels, d.provider, d.cfg.Now)
	d.alive.Store(false)

	stream, err := d.backend.OpenStream(sc, d.callback)
	if err != nil {
		d.logf("error: %v", err)
		return fmt.Errorf("%s: open stream: %w", d.cfg.Name, err)
	}
	d.stream = stream
	d.opened = true

	if err := stream.Start(); err != nil {
		d.logf("error: %v", err)
		return fmt.Errorf("%s: start stream: %w", d.cfg.Name, err)
	}
	d.started = true

	d.logf("pwm period %d samples at %d Hz, %d channels", d.encoder.Period(), sc.SampleRate, sc.Channels)
	return nil
}

// negotiate matches the configured output against the backend's devices and
// checks that it can play the requested format.
func (d *Device) negotiate() (StreamConfig, error) {
	devices, err := d.backend.Devices()
	if err != nil {
		return StreamConfig{}, fmt.Errorf("enumerate devices: %w", err)
	}
	if len(devices) == 0 {
		return StreamConfig{}, ErrNoDevices
	}

	d.logf("found %d %s devices", len(devices), d.backend.Name())
	for _, info := range devices {
		if info.MaxOutputChannels > 0 {
			d.cfg.Logger.Printf("n:%2d channels:%3d api:%s name:%s", info.Index, info.MaxOutputChannels, info.HostAPI, info.Name)
		}
	}

	matched := -1
	for i := range devices {
		if devices[i].Name == d.cfg.Output {
			matched = i
			break
		}
	}
	if matched < 0 {
		return StreamConfig{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, d.cfg.Output)
	}
	info := devices[matched]
	if info.MaxOutputChannels < d.cfg.Channels {
		return StreamConfig{}, fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientChannels, d.cfg.Output, info.MaxOutputChannels, d.cfg.Channels)
	}
	d.logf("using device %d", info.Index)

	sc := StreamConfig{
		Device:     info,
		Channels:   d.cfg.Channels,
		SampleRate: d.cfg.SampleRate,
		Period:     d.cfg.Period,
		Latency:    d.cfg.Latency,
	}
	if err := d.backend.IsFormatSupported(sc); err != nil {
		return StreamConfig{}, fmt.Errorf("%w: %v", ErrFormatNotSupported, err)
	}
	return sc, nil
}

// callback runs on the backend's realtime thread.
func (d *Device) callback(out []int16) CallbackResult {
	d.encoder.Fill(out)
	d.callbacks.Add(1)
	d.lastCall.Store(int64(d.cfg.Now()))
	d.alive.Store(true)
	if d.stopped.Load() {
		return Abort
	}
	return Continue
}

// WriteOutput checks that the callback has produced a buffer recently.
// Samples are written asynchronously by the callback, so this only watches.
//
// It waits up to FirstWait, then up to SecondWait, for the callback to report
// in. A stop request during either wait counts as success.
func (d *Device) WriteOutput() error {
	d.alive.Store(false)

	if d.wait(d.cfg.FirstWait) {
		return nil
	}
	if d.alive.Load() {
		return nil
	}

	if d.wait(d.cfg.SecondWait) {
		return nil
	}
	if d.alive.Load() {
		return nil
	}

	d.logf("%v", ErrNotResponding)
	return fmt.Errorf("%s: %w", d.cfg.Name, ErrNotResponding)
}

// wait blocks for dur and reports whether a stop was requested.
func (d *Device) wait(dur time.Duration) bool {
	if d.stopped.Load() {
		return true
	}
	select {
	case <-afterFn(dur):
		return d.stopped.Load()
	case <-d.stopCh:
		return true
	}
}

// Stop requests a graceful shutdown. The callback aborts after its current
// buffer and any pending WriteOutput returns. Stop is permanent.
func (d *Device) Stop() {
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.stopCh)
	})
}

// Close unwinds whatever Setup completed, in reverse order. Errors are
// logged and never stop the remaining steps.
func (d *Device) Close() {
	if d.started {
		if err := d.stream.Abort(); err != nil {
			d.logf("error: abort stream: %v", err)
		}
		d.started = false
	}

	if d.opened {
		if err := d.stream.Close(); err != nil {
			d.logf("error: close stream: %v", err)
		}
		d.stream = nil
		d.opened = false
	}

	if d.initialized {
		if err := d.gate.Release(d.backend); err != nil {
			d.logf("error: terminate %s: %v", d.backend.Name(), err)
		}
		d.initialized = false
	}
}

// Lifecycle reports which setup stages are currently in effect.
func (d *Device) Lifecycle() (initialized, opened, started bool) {
	return d.initialized, d.opened, d.started
}

// Callbacks returns the number of buffers filled since the device was created.
func (d *Device) Callbacks() uint64 {
	return d.callbacks.Load()
}

// LastCallback returns the monotonic timestamp of the latest buffer, or 0.
func (d *Device) LastCallback() time.Duration {
	return time.Duration(d.lastCall.Load())
}
