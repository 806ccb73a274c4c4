package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"pwmaudio/internal/channels"
	"pwmaudio/internal/config"
	"pwmaudio/internal/device"
	"pwmaudio/internal/discovery"
	"pwmaudio/internal/indicator"
	"pwmaudio/internal/sound"
	"pwmaudio/internal/web"
)

var newBackendFn = sound.NewBackend

type runtime struct {
	cfg config.Config

	gate      *sound.Gate
	store     *channels.Store
	input     *channels.Server
	advert    *discovery.Advertiser
	indicator *indicator.Indicator
	status    *web.Status
	http      *http.Server
	runners   []*device.Runner
}

// newRuntime builds every component and starts the device runners. Optional
// components (mDNS, indicator, web) log and continue when they fail to start.
func newRuntime(ctx context.Context, cfg config.Config, logs *web.LogBuffer) (*runtime, error) {
	c := cfg
	if err := config.DefaultAndValidate(&c); err != nil {
		return nil, err
	}

	r := &runtime{
		cfg:    c,
		gate:   sound.NewGate(),
		store:  channels.NewStore(nil),
		status: web.NewStatus(),
	}
	r.status.SetChannels(r.store.Snapshot)

	for _, d := range c.Devices {
		for _, name := range d.Channels {
			if _, err := r.store.Add(name); err != nil {
				return nil, err
			}
		}
	}

	input, err := channels.NewServer(channels.ServerConfig{Listen: c.Input.Listen}, r.store)
	if err != nil {
		return nil, err
	}
	if err := input.Start(ctx); err != nil {
		return nil, err
	}
	r.input = input
	r.status.SetInput(input.Snapshot)
	log.Printf("channel input listening on %s", input.Addr())

	if c.Input.MDNS.Enable {
		r.startAdvertiser()
	}

	if c.Indicator.Enable {
		ind, err := indicator.Open(c.Indicator.Chip, c.Indicator.Line)
		if err != nil {
			// Keep running without the status line.
			log.Printf("indicator init failed: %v", err)
		} else {
			r.indicator = ind
		}
	}

	runners := make([]*device.Runner, 0, len(c.Devices))
	for _, d := range c.Devices {
		runner, err := r.newRunner(d)
		if err != nil {
			r.closeShared()
			return nil, err
		}
		runners = append(runners, runner)
		r.status.AddDevice(runner.Snapshot)
		r.indicator.Track(d.Name)
	}
	for _, runner := range runners {
		if err := runner.Start(ctx); err != nil {
			// Already-started runners exit once ctx is canceled by main.
			r.closeShared()
			return nil, err
		}
		r.runners = append(r.runners, runner)
	}

	if c.Web.Listen != "" {
		r.startWeb(logs)
	}

	return r, nil
}

func (r *runtime) newRunner(d config.DeviceConfig) (*device.Runner, error) {
	group, err := r.store.Bind(d.Channels)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}
	backend, err := newBackendFn(d.Backend)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}

	dev := sound.New(sound.Config{
		Name:       d.Name,
		Output:     d.Output,
		Channels:   group.Len(),
		SampleRate: d.Rate,
		Period:     d.Period,
		Latency:    d.Latency(),
		FirstWait:  d.Watchdog.FirstWait,
		SecondWait: d.Watchdog.SecondWait,
	}, r.gate, backend, group)

	ind := r.indicator
	return device.NewRunner(dev, device.Config{
		RetryDelay: d.RetryDelay,
		OnChange: func(s device.Snapshot) {
			if err := ind.Set(s.Name, s.Healthy); err != nil {
				log.Printf("indicator update failed: %v", err)
			}
		},
	}), nil
}

func (r *runtime) startAdvertiser() {
	addr, ok := r.input.Addr().(*net.TCPAddr)
	if !ok {
		log.Printf("mdns disabled: input address %v is not tcp", r.input.Addr())
		return
	}
	adv, err := discovery.NewAdvertiser(discovery.Config{
		Instance: r.cfg.Input.MDNS.Name,
		Port:     addr.Port,
		Channels: r.store.Names(),
	})
	if err == nil {
		err = adv.Start()
	}
	if err != nil {
		log.Printf("mdns init failed: %v", err)
		return
	}
	r.advert = adv
}

func (r *runtime) startWeb(logs *web.LogBuffer) {
	r.http = &http.Server{
		Addr:              r.cfg.Web.Listen,
		Handler:           web.Handler(r.status, logs),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := r.http
	go func() {
		log.Printf("web listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("web server stopped: %v", err)
		}
	}()
}

// Close waits for every runner to tear its device down after ctx ends, then
// releases the shared services.
func (r *runtime) Close() {
	if r == nil {
		return
	}
	for _, runner := range r.runners {
		runner.Wait()
	}
	r.closeShared()
}

func (r *runtime) closeShared() {
	if r.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = r.http.Shutdown(ctx)
		cancel()
	}
	if r.advert != nil {
		_ = r.advert.Close()
	}
	r.input.Close()
	if err := r.indicator.Close(); err != nil {
		log.Printf("indicator close failed: %v", err)
	}
}
