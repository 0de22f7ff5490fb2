package rbac

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics counts resolution cache hits and misses.
type CacheMetrics struct {
	hits   prometheus.Counter
	misses prometheus.Counter
}

// NewCacheMetrics registers the cache collectors. A nil registerer uses the
// default Prometheus registerer. Collectors already registered are reused.
func NewCacheMetrics(reg prometheus.Registerer) (*CacheMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	hits, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_resolver_cache_hits_total",
		Help: "Number of role bundle resolutions served from cache.",
	}))
	if err != nil {
		return nil, err
	}
	misses, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_resolver_cache_miss_total",
		Help: "Number of role bundle resolutions computed from the matrix.",
	}))
	if err != nil {
		return nil, err
	}
	return &CacheMetrics{hits: hits, misses: misses}, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

func (m *CacheMetrics) hit() {
	if m == nil {
		return
	}
	m.hits.Inc()
}

func (m *CacheMetrics) miss() {
	if m == nil {
		return
	}
	m.misses.Inc()
}
