package channels

import (
	"math"
	"testing"
	"time"
)

type fakeClock struct{ t time.Duration }

func (c *fakeClock) now() time.Duration { return c.t }

func newTestStore(t *testing.T, names ...string) (*Store, *fakeClock) {
	t.Helper()
	fc := &fakeClock{t: time.Second}
	s := NewStore(fc.now)
	for _, n := range names {
		if _, err := s.Add(n); err != nil {
			t.Fatalf("Add(%q): %v", n, err)
		}
	}
	return s, fc
}

func TestClamp(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.25, 0.25},
		{1, 1},
		{7, 1},
		{math.NaN(), 0},
		{math.Inf(1), 1},
		{math.Inf(-1), 0},
	}
	for _, tc := range cases {
		if got := Clamp(tc.in); got != tc.want {
			t.Fatalf("Clamp(%v)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func TestStore_SetAndGet(t *testing.T) {
	s, _ := newTestStore(t, "red")
	if err := s.Set("red", 0.5); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := s.Get("red")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != 0.5 {
		t.Fatalf("value=%v want 0.5", v)
	}
	if err := s.Set("red", 3); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _ := s.Get("red"); v != 1 {
		t.Fatalf("value=%v want clamped 1", v)
	}
}

func TestStore_UnknownChannel(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Set("nope", 1); err == nil {
		t.Fatalf("expected error for unknown channel")
	}
	if _, err := s.Bind([]string{"nope"}); err == nil {
		t.Fatalf("expected bind error for unknown channel")
	}
}

func TestStore_AddRejectsEmptyAndReusesExisting(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Add("  "); err == nil {
		t.Fatalf("expected error for empty name")
	}
	a, _ := s.Add("x")
	b, _ := s.Add("x")
	if a != b {
		t.Fatalf("Add returned a different channel for an existing name")
	}
}

func TestStore_FadeInterpolates(t *testing.T) {
	s, fc := newTestStore(t, "w")
	if err := s.Fade("w", 1, 100*time.Millisecond); err != nil {
		t.Fatalf("Fade: %v", err)
	}
	fc.t += 50 * time.Millisecond
	v, _ := s.Get("w")
	if math.Abs(v-0.5) > 1e-9 {
		t.Fatalf("mid-fade value=%v want 0.5", v)
	}
	fc.t += time.Second
	if v, _ := s.Get("w"); v != 1 {
		t.Fatalf("post-fade value=%v want 1", v)
	}
}

func TestGroup_FillChannelsPreservesOrder(t *testing.T) {
	s, _ := newTestStore(t, "a", "b", "c")
	_ = s.Set("a", 0)
	_ = s.Set("b", 0.5)
	_ = s.Set("c", 1)

	g, err := s.Bind([]string{"c", "a", "b"})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if g.Len() != 3 {
		t.Fatalf("len=%d want 3", g.Len())
	}
	dst := make([]float64, 3)
	g.FillChannels(dst, 0)
	want := []float64{1, 0, 0.5}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("dst[%d]=%v want %v", i, dst[i], want[i])
		}
	}
}

func TestGroup_FillChannelsDoesNotAllocate(t *testing.T) {
	s, _ := newTestStore(t, "a", "b")
	g, _ := s.Bind([]string{"a", "b"})
	dst := make([]float64, 2)
	allocs := testing.AllocsPerRun(100, func() {
		g.FillChannels(dst, time.Second)
	})
	if allocs != 0 {
		t.Fatalf("FillChannels allocs=%v want 0", allocs)
	}
}

func TestStore_NamesSorted(t *testing.T) {
	s, _ := newTestStore(t, "green", "blue", "red")
	got := s.Names()
	want := []string{"blue", "green", "red"}
	if len(got) != len(want) {
		t.Fatalf("names=%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names=%v want %v", got, want)
		}
	}
}
