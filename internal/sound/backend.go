package sound

import (
	"fmt"
	"strings"
	"time"
)

const (
	BackendPortAudio = "portaudio"
	BackendMalgo     = "malgo"
	BackendOto       = "oto"
)

// DeviceInfo is one enumerated output as reported by a backend.
type DeviceInfo struct {
	Index             int
	Name              string
	MaxOutputChannels int
	HostAPI           string
}

// StreamConfig describes an output stream. It is immutable once opened.
//
// Samples are always interleaved signed 16-bit.
type StreamConfig struct {
	Device     DeviceInfo
	Channels   int
	SampleRate int
	// Period is the number of frames per callback; 0 lets the backend choose.
	Period int
	// Latency is the requested output latency; 0 uses the device default.
	Latency time.Duration
}

type CallbackResult int

const (
	Continue CallbackResult = iota
	Abort
)

// Callback fills out, which holds len(out)/channels interleaved frames.
// It runs on the backend's realtime thread and must not block.
type Callback func(out []int16) CallbackResult

// Backend wraps a native audio library.
//
// Initialize and Terminate are process-global in most libraries; callers go
// through a Gate instead of calling them directly.
type Backend interface {
	Name() string
	Initialize() error
	Terminate() error
	Devices() ([]DeviceInfo, error)
	IsFormatSupported(cfg StreamConfig) error
	OpenStream(cfg StreamConfig, cb Callback) (Stream, error)
}

// Stream is an opened callback-driven output stream.
type Stream interface {
	Start() error
	// Abort stops the stream without draining queued buffers.
	Abort() error
	Close() error
}

var (
	newPortAudioFn = newPortAudio
	newMalgoFn     = newMalgo
	newOtoFn       = newOto
)

// NewBackend returns a fresh backend instance. An empty name selects portaudio.
func NewBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendPortAudio:
		return newPortAudioFn()
	case BackendMalgo:
		return newMalgoFn()
	case BackendOto:
		return newOtoFn()
	default:
		return nil, fmt.Errorf("unknown audio backend %q", name)
	}
}

// abortLatch emulates a callback return code for bindings whose callbacks
// cannot return one: after the first Abort every later buffer is silence.
type abortLatch struct {
	cb      Callback
	aborted bool
}

func (l *abortLatch) fill(out []int16) {
	if l.aborted {
		clear(out)
		return
	}
	if l.cb(out) == Abort {
		l.aborted = true
	}
}
