// Package clock provides the monotonic timestamps used to query channel values.
//
// Timestamps are durations since an arbitrary fixed origin. They never go
// backwards and are unaffected by wall-clock adjustments, so they are safe to
// compare across goroutines and to store as fade endpoints.
package clock

import "time"

// Func returns the current monotonic timestamp.
type Func func() time.Duration

// Now returns the current monotonic timestamp.
func Now() time.Duration {
	return now()
}
