package adapter

import (
	"context"
	"sync"
)

// Registry owns the process-wide embedding handle. The model is expensive to
// initialize, so the first caller starts the load and every concurrent caller
// awaits that same in-progress initialization; the result (handle or error)
// is cached for the life of the process.
type Registry struct {
	factory func() (Embedder, error)

	mu    sync.Mutex
	state *initState
}

type initState struct {
	done chan struct{}
	emb  Embedder
	err  error
}

// NewRegistry creates a Registry that builds its Embedder on first use.
func NewRegistry(factory func() (Embedder, error)) *Registry {
	return &Registry{factory: factory}
}

// Get returns the shared Embedder, initializing it on first call. The load
// itself is not cancelled when ctx is: it is expensive and the result is
// cached, so only the wait is abandoned.
func (r *Registry) Get(ctx context.Context) (Embedder, error) {
	r.mu.Lock()
	st := r.state
	if st == nil {
		st = &initState{done: make(chan struct{})}
		r.state = st
		go func() {
			st.emb, st.err = r.factory()
			close(st.done)
		}()
	}
	r.mu.Unlock()

	select {
	case <-st.done:
		return st.emb, st.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reset discards the cached handle so the next Get re-initializes. Tests use
// this to swap providers; production code never calls it.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.state = nil
	r.mu.Unlock()
}

// SetForTest installs a ready-made Embedder, bypassing the factory.
func (r *Registry) SetForTest(e Embedder) {
	r.mu.Lock()
	st := &initState{done: make(chan struct{}), emb: e}
	close(st.done)
	r.state = st
	r.mu.Unlock()
}
