//go:build cgo

package sound

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

type portAudio struct {
	devices []*portaudio.DeviceInfo
}

func newPortAudio() (Backend, error) {
	return &portAudio{}, nil
}

func (p *portAudio) Name() string { return BackendPortAudio }

func (p *portAudio) Initialize() error { return portaudio.Initialize() }

func (p *portAudio) Terminate() error {
	p.devices = nil
	return portaudio.Terminate()
}

func (p *portAudio) Devices() ([]DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	p.devices = devs

	out := make([]DeviceInfo, 0, len(devs))
	for i, d := range devs {
		api := ""
		if d.HostApi != nil {
			api = d.HostApi.Name
		}
		out = append(out, DeviceInfo{
			Index:             i,
			Name:              d.Name,
			MaxOutputChannels: d.MaxOutputChannels,
			HostAPI:           api,
		})
	}
	return out, nil
}

func (p *portAudio) params(cfg StreamConfig) (portaudio.StreamParameters, error) {
	i := cfg.Device.Index
	if i < 0 || i >= len(p.devices) {
		return portaudio.StreamParameters{}, fmt.Errorf("portaudio: device %d not enumerated", i)
	}
	return portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   p.devices[i],
			Channels: cfg.Channels,
			Latency:  cfg.Latency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.Period,
	}, nil
}

func (p *portAudio) IsFormatSupported(cfg StreamConfig) error {
	params, err := p.params(cfg)
	if err != nil {
		return err
	}
	// The callback signature selects paInt16.
	return portaudio.IsFormatSupported(params, func(out []int16) {})
}

func (p *portAudio) OpenStream(cfg StreamConfig, cb Callback) (Stream, error) {
	params, err := p.params(cfg)
	if err != nil {
		return nil, err
	}
	latch := &abortLatch{cb: cb}
	s, err := portaudio.OpenStream(params, func(out []int16) {
		latch.fill(out)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
