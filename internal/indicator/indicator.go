// Package indicator drives a GPIO line that is high while every output
// device is healthy, so a status LED can be wired next to the circuitry the
// audio outputs feed.
package indicator

import (
	"fmt"
	"sync"
)

// line is the minimal output the indicator needs from a GPIO backend.
type line interface {
	SetValue(v int) error
	Close() error
}

var openLineFn = openLine

type Indicator struct {
	mu     sync.Mutex
	l      line
	health map[string]bool
	value  int
}

// Open requests offset on chip as an output, initially low.
func Open(chip string, offset int) (*Indicator, error) {
	l, err := openLineFn(chip, offset)
	if err != nil {
		return nil, fmt.Errorf("indicator: %w", err)
	}
	return &Indicator{l: l, health: make(map[string]bool)}, nil
}

// Track registers a device; unreported devices count as unhealthy.
func (ind *Indicator) Track(name string) {
	if ind == nil {
		return
	}
	ind.mu.Lock()
	defer ind.mu.Unlock()
	if _, ok := ind.health[name]; !ok {
		ind.health[name] = false
	}
	_ = ind.applyLocked()
}

// Set records a device's health and updates the line.
func (ind *Indicator) Set(name string, healthy bool) error {
	if ind == nil {
		return nil
	}
	ind.mu.Lock()
	defer ind.mu.Unlock()
	ind.health[name] = healthy
	return ind.applyLocked()
}

func (ind *Indicator) applyLocked() error {
	if ind.l == nil {
		return nil
	}
	v := 0
	if len(ind.health) > 0 {
		v = 1
		for _, ok := range ind.health {
			if !ok {
				v = 0
				break
			}
		}
	}
	if v == ind.value {
		return nil
	}
	if err := ind.l.SetValue(v); err != nil {
		return err
	}
	ind.value = v
	return nil
}

// Close drives the line low and releases it.
func (ind *Indicator) Close() error {
	if ind == nil {
		return nil
	}
	ind.mu.Lock()
	defer ind.mu.Unlock()
	if ind.l == nil {
		return nil
	}
	_ = ind.l.SetValue(0)
	err := ind.l.Close()
	ind.l = nil
	return err
}
