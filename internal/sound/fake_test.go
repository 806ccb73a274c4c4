package sound

import (
	"errors"
	"sync"
	"sync/atomic"
)

// fakeBackend records calls and lets tests fail individual stages.
type fakeBackend struct {
	devices []DeviceInfo

	initErr      error
	termErr      error
	devicesErr   error
	formatErr    error
	openErr      error
	startErr     error
	abortErr     error
	closeErr     error
	noCallbacks  bool
	initCalls    atomic.Int64
	termCalls    atomic.Int64
	formatConfig StreamConfig

	mu     sync.Mutex
	stream *fakeStream
	calls  []string
}

func (b *fakeBackend) record(call string) {
	b.mu.Lock()
	b.calls = append(b.calls, call)
	b.mu.Unlock()
}

func (b *fakeBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Initialize() error {
	b.initCalls.Add(1)
	b.record("init")
	return b.initErr
}

func (b *fakeBackend) Terminate() error {
	b.termCalls.Add(1)
	b.record("terminate")
	return b.termErr
}

func (b *fakeBackend) Devices() ([]DeviceInfo, error) {
	if b.devicesErr != nil {
		return nil, b.devicesErr
	}
	return b.devices, nil
}

func (b *fakeBackend) IsFormatSupported(cfg StreamConfig) error {
	b.formatConfig = cfg
	return b.formatErr
}

func (b *fakeBackend) OpenStream(cfg StreamConfig, cb Callback) (Stream, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.record("open")
	s := &fakeStream{b: b, cb: cb, frames: 64, channels: cfg.Channels, stop: make(chan struct{}), done: make(chan struct{})}
	b.mu.Lock()
	b.stream = s
	b.mu.Unlock()
	return s, nil
}

func (b *fakeBackend) Stream() *fakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stream
}

// fakeStream invokes the callback from its own goroutine, like a real
// audio thread, until aborted or the callback returns Abort.
type fakeStream struct {
	b        *fakeBackend
	cb       Callback
	frames   int
	channels int

	stop    chan struct{}
	done    chan struct{}
	running bool
	result  atomic.Int64
}

func (s *fakeStream) Start() error {
	if s.b.startErr != nil {
		return s.b.startErr
	}
	s.b.record("start")
	s.running = true
	if s.b.noCallbacks {
		close(s.done)
		return nil
	}
	go func() {
		defer close(s.done)
		out := make([]int16, s.frames*s.channels)
		for {
			select {
			case <-s.stop:
				return
			default:
			}
			if s.cb(out) == Abort {
				s.result.Store(int64(Abort))
				return
			}
		}
	}()
	return nil
}

func (s *fakeStream) Abort() error {
	s.b.record("abort")
	if s.running {
		close(s.stop)
		<-s.done
		s.running = false
	}
	return s.b.abortErr
}

func (s *fakeStream) Close() error {
	s.b.record("close")
	return s.b.closeErr
}

var errFake = errors.New("fake failure")
