//go:build !linux

package clock

import "time"

var start = time.Now()

// time.Since uses the monotonic reading captured in start.
func now() time.Duration {
	return time.Since(start)
}
