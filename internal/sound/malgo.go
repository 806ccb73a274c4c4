//go:build cgo

package sound

import (
	"fmt"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// miniaudio reports 0 channels for devices that accept any channel count.
const malgoMaxChannels = 254

type malgoBackend struct {
	ctx     *malgo.AllocatedContext
	devices []malgo.DeviceInfo
}

func newMalgo() (Backend, error) {
	return &malgoBackend{}, nil
}

func (m *malgoBackend) Name() string { return BackendMalgo }

func (m *malgoBackend) Initialize() error {
	if m.ctx != nil {
		return nil
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("malgo: init context: %w", err)
	}
	m.ctx = ctx
	return nil
}

func (m *malgoBackend) Terminate() error {
	if m.ctx == nil {
		return nil
	}
	err := m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	m.devices = nil
	return err
}

func (m *malgoBackend) Devices() ([]DeviceInfo, error) {
	if m.ctx == nil {
		return nil, fmt.Errorf("malgo: not initialized")
	}
	infos, err := m.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, err
	}

	m.devices = make([]malgo.DeviceInfo, 0, len(infos))
	out := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		full, err := m.ctx.DeviceInfo(malgo.Playback, infos[i].ID, malgo.Shared)
		if err != nil {
			full = infos[i]
		}
		m.devices = append(m.devices, full)

		maxCh := 0
		for _, f := range full.Formats[:full.FormatCount] {
			ch := int(f.Channels)
			if ch == 0 {
				ch = malgoMaxChannels
			}
			if ch > maxCh {
				maxCh = ch
			}
		}
		if full.FormatCount == 0 {
			maxCh = malgoMaxChannels
		}
		out = append(out, DeviceInfo{
			Index:             i,
			Name:              infos[i].Name(),
			MaxOutputChannels: maxCh,
			HostAPI:           "miniaudio",
		})
	}
	return out, nil
}

func (m *malgoBackend) device(cfg StreamConfig) (*malgo.DeviceInfo, error) {
	i := cfg.Device.Index
	if i < 0 || i >= len(m.devices) {
		return nil, fmt.Errorf("malgo: device %d not enumerated", i)
	}
	return &m.devices[i], nil
}

func (m *malgoBackend) IsFormatSupported(cfg StreamConfig) error {
	info, err := m.device(cfg)
	if err != nil {
		return err
	}
	if info.FormatCount == 0 {
		// Nothing reported; miniaudio converts on the fly.
		return nil
	}
	for _, f := range info.Formats[:info.FormatCount] {
		if f.Format != malgo.FormatS16 && f.Format != malgo.FormatUnknown {
			continue
		}
		if f.Channels != 0 && int(f.Channels) != cfg.Channels {
			continue
		}
		if f.SampleRate != 0 && int(f.SampleRate) != cfg.SampleRate {
			continue
		}
		return nil
	}
	return fmt.Errorf("malgo: %s does not support s16 %d ch at %d Hz", cfg.Device.Name, cfg.Channels, cfg.SampleRate)
}

func (m *malgoBackend) OpenStream(cfg StreamConfig, cb Callback) (Stream, error) {
	info, err := m.device(cfg)
	if err != nil {
		return nil, err
	}

	s := &malgoStream{id: info.ID, latch: abortLatch{cb: cb}}

	dc := malgo.DefaultDeviceConfig(malgo.Playback)
	dc.Playback.Format = malgo.FormatS16
	dc.Playback.Channels = uint32(cfg.Channels)
	dc.Playback.DeviceID = s.id.Pointer()
	dc.SampleRate = uint32(cfg.SampleRate)
	dc.PeriodSizeInFrames = uint32(cfg.Period)
	if cfg.Period == 0 && cfg.Latency > 0 {
		dc.PeriodSizeInMilliseconds = uint32(cfg.Latency.Milliseconds())
	}
	dc.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			if len(pOutput) < 2 {
				return
			}
			out := unsafe.Slice((*int16)(unsafe.Pointer(&pOutput[0])), len(pOutput)/2)
			s.latch.fill(out)
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, dc, callbacks)
	if err != nil {
		return nil, err
	}
	s.dev = dev
	return s, nil
}

type malgoStream struct {
	id    malgo.DeviceID
	dev   *malgo.Device
	latch abortLatch
}

func (s *malgoStream) Start() error { return s.dev.Start() }

func (s *malgoStream) Abort() error { return s.dev.Stop() }

func (s *malgoStream) Close() error {
	s.dev.Uninit()
	return nil
}
