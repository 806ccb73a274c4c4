package sound

import "sync"

// Gate serializes global audio library initialization across devices.
//
// Native libraries are not safe to initialize concurrently, so every device
// shares one Gate created at process start. Each successful Acquire must be
// paired with exactly one Release.
type Gate struct {
	mu     sync.Mutex
	active int
}

func NewGate() *Gate {
	return &Gate{}
}

func (g *Gate) Acquire(b Backend) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := b.Initialize(); err != nil {
		return err
	}
	g.active++
	return nil
}

func (g *Gate) Release(b Backend) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active > 0 {
		g.active--
	}
	return b.Terminate()
}

// Active returns the number of acquisitions not yet released.
func (g *Gate) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
