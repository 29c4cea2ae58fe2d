package rail

import (
	"context"
	"fmt"
	"sync"
)

// Registry selects the Dialer for a session's provider tag.
type Registry struct {
	mu      sync.RWMutex
	dialers map[Provider]Dialer
}

func NewRegistry() *Registry {
	return &Registry{dialers: make(map[Provider]Dialer)}
}

func (r *Registry) Register(p Provider, d Dialer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialers[p] = d
}

func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Provider
	for _, p := range []Provider{SRT, KTX} {
		if _, ok := r.dialers[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) Login(ctx context.Context, p Provider, user, pass string) (Client, error) {
	r.mu.RLock()
	d, ok := r.dialers[p]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}
	return d.Login(ctx, user, pass)
}
