package session

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the session manager.
type Metrics struct {
	active      prometheus.Gauge
	granted     prometheus.Counter
	denied      prometheus.Counter
	dropped     prometheus.Counter
	expired     prometheus.Counter
	memoryBytes prometheus.Gauge
	overTarget  prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the session metrics against the provided registerer.
// When the registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "authz_sessions_active",
		Help: "Compressed sessions currently registered.",
	})
	checks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_permission_checks_total",
		Help: "Bitmap permission checks partitioned by result.",
	}, []string{"result"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_session_permissions_dropped_total",
		Help: "Permissions not stored because the bitmap capacity was exceeded.",
	})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_sessions_expired_total",
		Help: "Sessions removed by the expiry sweep.",
	})
	memoryBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "authz_session_memory_estimate_bytes",
		Help: "Estimated memory held by compressed sessions.",
	})
	overTarget := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_session_memory_target_breaches_total",
		Help: "Times the average session footprint exceeded the soft target.",
	})
	registerer.MustRegister(active, checks, dropped, expired, memoryBytes, overTarget)
	return &Metrics{
		active:      active,
		granted:     checks.WithLabelValues("granted"),
		denied:      checks.WithLabelValues("denied"),
		dropped:     dropped,
		expired:     expired,
		memoryBytes: memoryBytes,
		overTarget:  overTarget,
	}
}

func (m *Metrics) setActive(n int) {
	if m == nil {
		return
	}
	m.active.Set(float64(n))
}

func (m *Metrics) check(granted bool) {
	if m == nil {
		return
	}
	if granted {
		m.granted.Inc()
		return
	}
	m.denied.Inc()
}

func (m *Metrics) addDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dropped.Add(float64(n))
}

func (m *Metrics) addExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

func (m *Metrics) observeMemory(total int64, over bool) {
	if m == nil {
		return
	}
	m.memoryBytes.Set(float64(total))
	if over {
		m.overTarget.Inc()
	}
}
