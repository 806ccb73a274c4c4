// Package channels holds the intensity values that output devices encode.
//
// A Store owns every channel known to the daemon. Devices bind the subset they
// drive into a Group, which fills a caller-provided slice with the values at a
// given timestamp without locking or allocating.
package channels

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"pwmaudio/internal/clock"
)

type Store struct {
	now clock.Func

	mu     sync.RWMutex
	byName map[string]*Channel
}

// NewStore returns a store with no channels. A nil now uses clock.Now.
func NewStore(now clock.Func) *Store {
	if now == nil {
		now = clock.Now
	}
	return &Store{now: now, byName: make(map[string]*Channel)}
}

// Add registers a channel. Adding an existing name returns the existing
// channel so several devices can share it.
func (s *Store) Add(name string) (*Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("channel name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byName[name]; ok {
		return c, nil
	}
	c := newChannel(name)
	s.byName[name] = c
	return c, nil
}

func (s *Store) lookup(name string) (*Channel, error) {
	s.mu.RLock()
	c, ok := s.byName[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown channel %q", name)
	}
	return c, nil
}

// Set changes a channel immediately. Values are clamped to [0,1].
func (s *Store) Set(name string, v float64) error {
	c, err := s.lookup(name)
	if err != nil {
		return err
	}
	c.set(v)
	return nil
}

// Fade ramps a channel linearly from its current value to v over d.
func (s *Store) Fade(name string, v float64, d time.Duration) error {
	c, err := s.lookup(name)
	if err != nil {
		return err
	}
	c.fade(v, s.now(), d)
	return nil
}

// Get returns the current value of a channel.
func (s *Store) Get(name string) (float64, error) {
	c, err := s.lookup(name)
	if err != nil {
		return 0, err
	}
	return c.ValueAt(s.now()), nil
}

// Names returns all channel names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byName))
	for name := range s.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns the current value of every channel.
func (s *Store) Snapshot() map[string]float64 {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.byName))
	for name, c := range s.byName {
		out[name] = c.ValueAt(now)
	}
	return out
}

// Bind resolves names into an ordered Group. Order is preserved: the i-th
// name becomes the i-th interleaved output channel.
func (s *Store) Bind(names []string) (*Group, error) {
	g := &Group{chans: make([]*Channel, 0, len(names))}
	for _, name := range names {
		c, err := s.lookup(name)
		if err != nil {
			return nil, err
		}
		g.chans = append(g.chans, c)
	}
	return g, nil
}

// Group is an ordered, fixed set of channels driven by one device.
type Group struct {
	chans []*Channel
}

func (g *Group) Len() int { return len(g.chans) }

// FillChannels writes the value of each channel at now into dst.
// dst must have room for Len values; extra entries are left untouched.
func (g *Group) FillChannels(dst []float64, now time.Duration) {
	for i, c := range g.chans {
		if i >= len(dst) {
			return
		}
		dst[i] = c.ValueAt(now)
	}
}
