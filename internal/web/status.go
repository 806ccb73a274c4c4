package web

import (
	"sync/atomic"
	"time"

	"pwmaudio/internal/channels"
	"pwmaudio/internal/device"
)

const serviceName = "pwmaudio"

// Status aggregates live state for the HTTP API. Sources are registered once
// at startup and polled on every request.
type Status struct {
	startUnixNano int64
	devices       atomic.Value // []func() device.Snapshot
	channels      atomic.Value // func() map[string]float64
	input         atomic.Value // func() channels.ServerSnapshot
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.devices.Store([]func() device.Snapshot{})
	s.channels.Store(func() map[string]float64 { return map[string]float64{} })
	s.input.Store(func() channels.ServerSnapshot { return channels.ServerSnapshot{} })
	return s
}

func (s *Status) AddDevice(src func() device.Snapshot) {
	if src == nil {
		return
	}
	cur := s.devices.Load().([]func() device.Snapshot)
	next := append(append([]func() device.Snapshot(nil), cur...), src)
	s.devices.Store(next)
}

func (s *Status) SetChannels(src func() map[string]float64) {
	if src != nil {
		s.channels.Store(src)
	}
}

func (s *Status) SetInput(src func() channels.ServerSnapshot) {
	if src != nil {
		s.input.Store(src)
	}
}

type StatusSnapshot struct {
	Service   string                  `json:"service"`
	NowUTC    string                  `json:"now_utc"`
	UptimeSec int64                   `json:"uptime_sec"`
	Healthy   bool                    `json:"healthy"`
	Devices   []device.Snapshot       `json:"devices"`
	Channels  map[string]float64      `json:"channels"`
	Input     channels.ServerSnapshot `json:"input"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	srcs := s.devices.Load().([]func() device.Snapshot)
	devs := make([]device.Snapshot, 0, len(srcs))
	healthy := len(srcs) > 0
	for _, src := range srcs {
		d := src()
		if !d.Healthy {
			healthy = false
		}
		devs = append(devs, d)
	}

	return StatusSnapshot{
		Service:   serviceName,
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Healthy:   healthy,
		Devices:   devs,
		Channels:  s.channels.Load().(func() map[string]float64)(),
		Input:     s.input.Load().(func() channels.ServerSnapshot)(),
	}
}
