package channels

import (
	"math"
	"sync/atomic"
	"time"
)

// ramp is an immutable linear transition. A plain set is a ramp with
// end <= start.
type ramp struct {
	from  float64
	to    float64
	start time.Duration
	end   time.Duration
}

func (r *ramp) valueAt(now time.Duration) float64 {
	if now >= r.end || r.end <= r.start {
		return r.to
	}
	if now <= r.start {
		return r.from
	}
	f := float64(now-r.start) / float64(r.end-r.start)
	return r.from + (r.to-r.from)*f
}

// Channel is a single named intensity in [0,1].
//
// ValueAt is lock-free and does not allocate, so it may be called from an
// audio callback. Writers swap in a new immutable ramp.
type Channel struct {
	name  string
	state atomic.Pointer[ramp]
}

func newChannel(name string) *Channel {
	c := &Channel{name: name}
	c.state.Store(&ramp{})
	return c
}

func (c *Channel) Name() string { return c.name }

// ValueAt returns the intensity at the monotonic timestamp now.
func (c *Channel) ValueAt(now time.Duration) float64 {
	return c.state.Load().valueAt(now)
}

func (c *Channel) set(v float64) {
	v = Clamp(v)
	c.state.Store(&ramp{from: v, to: v})
}

func (c *Channel) fade(v float64, now, d time.Duration) {
	v = Clamp(v)
	if d <= 0 {
		c.set(v)
		return
	}
	from := c.ValueAt(now)
	c.state.Store(&ramp{from: from, to: v, start: now, end: now + d})
}

// Clamp limits v to [0,1]. NaN maps to 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
