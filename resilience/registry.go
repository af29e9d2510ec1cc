package resilience

import (
	"log/slog"
	"sort"
	"sync"
)

// BreakerRegistry hands out one breaker per protected resource name for the
// registry's lifetime. It is an explicit object owned by the composition
// root, passed by reference to call sites; there is no package-level global.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	defaults CircuitBreakerConfig
	logger   *slog.Logger
}

// NewBreakerRegistry creates a registry. defaults applies to breakers created
// through Get; zero fields fall back to the breaker defaults.
func NewBreakerRegistry(defaults CircuitBreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		defaults: defaults.withDefaults(),
	}
}

// SetLogger attaches a logger to the registry and to breakers created from
// this point on.
func (r *BreakerRegistry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Get returns the breaker for name, creating it with the registry defaults on
// first request.
func (r *BreakerRegistry) Get(name string) *CircuitBreaker {
	return r.GetWithConfig(name, r.defaults)
}

// GetWithConfig returns the breaker for name, creating it with config on
// first request. Configuration is fixed at creation: subsequent lookups for
// the same name ignore config and return the existing instance.
func (r *BreakerRegistry) GetWithConfig(name string, config CircuitBreakerConfig) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := NewCircuitBreaker(name, config)
	cb.logger = r.logger
	r.breakers[name] = cb
	return cb
}

// Names returns the registered breaker names in sorted order.
func (r *BreakerRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllStats returns a snapshot for every registered breaker, keyed by name.
func (r *BreakerRegistry) AllStats() map[string]BreakerStats {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.Unlock()

	stats := make(map[string]BreakerStats, len(breakers))
	for _, cb := range breakers {
		stats[cb.Name()] = cb.Stats()
	}
	return stats
}

// ResetAll forces every registered breaker to closed.
func (r *BreakerRegistry) ResetAll() {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.Unlock()

	for _, cb := range breakers {
		cb.Reset()
	}
}
