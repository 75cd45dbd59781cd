package pipeline

import "sync"

// runGuard admits one run per key at a time; a duplicate gets ErrInFlight.
type runGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunGuard() *runGuard {
	return &runGuard{running: make(map[string]struct{})}
}

// acquire registers key and returns its release func, or ErrInFlight.
func (g *runGuard) acquire(key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.running[key]; busy {
		return nil, ErrInFlight
	}
	g.running[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.running, key)
			g.mu.Unlock()
		})
	}, nil
}

// active returns the number of runs holding a key.
func (g *runGuard) active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.running)
}
