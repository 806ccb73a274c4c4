//go:build cgo

package sound

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// OtoOutputName is the single output exposed by the oto backend; oto always
// plays through the system default device.
const OtoOutputName = "default"

// oto allows one context per process, so it is shared by every device using
// this backend and must be created with the first stream's format.
var (
	otoMu       sync.Mutex
	otoCtx      *oto.Context
	otoRate     int
	otoChannels int
)

type otoBackend struct{}

func newOto() (Backend, error) {
	return &otoBackend{}, nil
}

func (o *otoBackend) Name() string { return BackendOto }

func (o *otoBackend) Initialize() error {
	otoMu.Lock()
	defer otoMu.Unlock()
	if otoCtx != nil {
		return otoCtx.Resume()
	}
	return nil
}

// Terminate suspends output; the process-wide context cannot be destroyed.
func (o *otoBackend) Terminate() error {
	otoMu.Lock()
	defer otoMu.Unlock()
	if otoCtx == nil {
		return nil
	}
	return otoCtx.Suspend()
}

func (o *otoBackend) Devices() ([]DeviceInfo, error) {
	otoMu.Lock()
	defer otoMu.Unlock()
	maxCh := 8
	if otoCtx != nil {
		maxCh = otoChannels
	}
	return []DeviceInfo{{Index: 0, Name: OtoOutputName, MaxOutputChannels: maxCh, HostAPI: "oto"}}, nil
}

func (o *otoBackend) IsFormatSupported(cfg StreamConfig) error {
	otoMu.Lock()
	defer otoMu.Unlock()
	if otoCtx == nil {
		return nil
	}
	if cfg.SampleRate != otoRate || cfg.Channels != otoChannels {
		return fmt.Errorf("oto: context already running %d Hz %d ch", otoRate, otoChannels)
	}
	return nil
}

func (o *otoBackend) OpenStream(cfg StreamConfig, cb Callback) (Stream, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: cfg.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   cfg.Latency,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			return nil, fmt.Errorf("oto: create context: %w", err)
		}
		<-ready
		otoCtx = ctx
		otoRate = cfg.SampleRate
		otoChannels = cfg.Channels
	} else if cfg.SampleRate != otoRate || cfg.Channels != otoChannels {
		return nil, fmt.Errorf("oto: context already running %d Hz %d ch", otoRate, otoChannels)
	}

	r := &otoReader{latch: abortLatch{cb: cb}, channels: cfg.Channels}
	if cfg.Period > 0 {
		r.buf = make([]int16, cfg.Period*cfg.Channels)
	}
	player := otoCtx.NewPlayer(r)
	if cfg.Period > 0 {
		player.SetBufferSize(cfg.Period * cfg.Channels * 2)
	}
	return &otoStream{player: player}, nil
}

// otoReader adapts the callback to the io.Reader oto pulls from on its own
// goroutine.
type otoReader struct {
	latch    abortLatch
	channels int
	buf      []int16
}

func (r *otoReader) Read(p []byte) (int, error) {
	frameBytes := 2 * r.channels
	n := len(p) / frameBytes * frameBytes
	if n == 0 {
		return 0, nil
	}
	samples := n / 2
	if cap(r.buf) < samples {
		r.buf = make([]int16, samples)
	}
	buf := r.buf[:samples]
	r.latch.fill(buf)
	for i, s := range buf {
		p[2*i] = byte(s)
		p[2*i+1] = byte(uint16(s) >> 8)
	}
	return n, nil
}

type otoStream struct {
	player *oto.Player
}

func (s *otoStream) Start() error {
	s.player.Play()
	return nil
}

func (s *otoStream) Abort() error {
	s.player.Pause()
	return nil
}

func (s *otoStream) Close() error {
	return s.player.Close()
}
