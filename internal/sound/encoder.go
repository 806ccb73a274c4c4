package sound

import (
	"math"
	"time"

	"pwmaudio/internal/clock"
)

const (
	// CarrierFrequency is the number of PWM half-cycles per second. At 48 kHz
	// it gives a 512 sample period.
	CarrierFrequency = 93.75

	// Amplitude is the magnitude of a non-silent sample.
	Amplitude = math.MaxInt16
)

// Provider supplies channel intensities in [0,1] at a monotonic timestamp.
// FillChannels is called from the realtime callback and must not block.
type Provider interface {
	FillChannels(dst []float64, now time.Duration)
}

// PWMPeriod returns the carrier period in samples for a sample rate.
// It is never less than 1.
func PWMPeriod(sampleRate int) int {
	p := int(math.Round(float64(sampleRate) / CarrierFrequency))
	if p < 1 {
		return 1
	}
	return p
}

// DutyCount converts an intensity into the number of non-silent samples per
// period: round(v*period) clamped to [0, period]. NaN counts as 0.
func DutyCount(v float64, period int) int {
	if math.IsNaN(v) {
		return 0
	}
	d := math.Round(v * float64(period))
	if d <= 0 {
		return 0
	}
	if d >= float64(period) {
		return period
	}
	return int(d)
}

// Encoder turns channel intensities into PWM samples.
//
// Its carrier state belongs to whichever goroutine calls Fill; it is not safe
// for concurrent use.
type Encoder struct {
	provider Provider
	now      clock.Func
	channels int

	period int
	phase  int16
	count  int

	intensities []float64
	duty        []int
}

func NewEncoder(sampleRate, channels int, provider Provider, now clock.Func) *Encoder {
	if now == nil {
		now = clock.Now
	}
	return &Encoder{
		provider:    provider,
		now:         now,
		channels:    channels,
		period:      PWMPeriod(sampleRate),
		phase:       Amplitude,
		intensities: make([]float64, channels),
		duty:        make([]int, channels),
	}
}

func (e *Encoder) Period() int { return e.period }

// Phase returns the amplitude written for non-silent samples in the current
// period.
func (e *Encoder) Phase() int16 { return e.phase }

// Count returns the position within the current period.
func (e *Encoder) Count() int { return e.count }

// Fill writes len(out)/channels frames of interleaved samples into out.
// A trailing partial frame is zeroed.
func (e *Encoder) Fill(out []int16) {
	if e.channels <= 0 {
		clear(out)
		return
	}

	now := e.now()
	if e.provider != nil {
		e.provider.FillChannels(e.intensities, now)
	}
	for j, v := range e.intensities {
		e.duty[j] = DutyCount(v, e.period)
	}

	clear(out)

	frames := len(out) / e.channels
	i := 0
	for f := 0; f < frames; f++ {
		for j := 0; j < e.channels; j++ {
			if e.count < e.duty[j] {
				out[i] = e.phase
			}
			i++
		}
		e.count++
		if e.count == e.period {
			e.count = 0
			e.phase = -e.phase
		}
	}
}
