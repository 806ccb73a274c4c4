package clock

import (
	"testing"
	"time"
)

func TestNow_IsMonotonic(t *testing.T) {
	prev := Now()
	for i := 0; i < 1000; i++ {
		cur := Now()
		if cur < prev {
			t.Fatalf("clock went backwards: %v -> %v", prev, cur)
		}
		prev = cur
	}
}

func TestNow_Advances(t *testing.T) {
	a := Now()
	time.Sleep(5 * time.Millisecond)
	b := Now()
	if d := b - a; d < 5*time.Millisecond {
		t.Fatalf("elapsed=%v want >= 5ms", d)
	}
}
