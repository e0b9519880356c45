package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"
)

// maxSamples bounds the response times kept per service
const maxSamples = 100

// Core services registered at start
var DefaultServices = []string{"voice", "browser", "email", "workflow"}

// ServiceMetrics is a point-in-time view of one service
type ServiceMetrics struct {
	Service       string     `json:"service"`
	StartTime     time.Time  `json:"start_time"`
	Uptime        string     `json:"uptime"`
	Total         int64      `json:"requests_total"`
	Success       int64      `json:"requests_success"`
	Errors        int64      `json:"requests_error"`
	SuccessRate   *float64   `json:"success_rate"`
	AvgResponseMS *float64   `json:"avg_response_ms"`
	Samples       int        `json:"samples"`
	LastError     string     `json:"last_error,omitempty"`
	LastErrorTime *time.Time `json:"last_error_time,omitempty"`
}

// SystemMetrics summarizes the whole process
type SystemMetrics struct {
	StartTime     time.Time `json:"start_time"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	ServicesCount int       `json:"services_count"`
	TotalRequests int64     `json:"total_requests"`
	Goroutines    int       `json:"goroutines"`
	HeapAllocMB   float64   `json:"heap_alloc_mb"`
}

type service struct {
	name          string
	start         time.Time
	total         int64
	success       int64
	errors        int64
	samples       []time.Duration
	lastError     string
	lastErrorTime time.Time
}

func (s *service) record(success bool, elapsed time.Duration, err error, now time.Time) {
	s.total++
	if success {
		s.success++
	} else {
		s.errors++
		if err != nil {
			s.lastError = err.Error()
		}
		s.lastErrorTime = now
	}

	s.samples = append(s.samples, elapsed)
	if len(s.samples) > maxSamples {
		s.samples = s.samples[len(s.samples)-maxSamples:]
	}
}

func (s *service) snapshot(now time.Time) ServiceMetrics {
	m := ServiceMetrics{
		Service:   s.name,
		StartTime: s.start,
		Uptime:    formatUptime(now.Sub(s.start)),
		Total:     s.total,
		Success:   s.success,
		Errors:    s.errors,
		Samples:   len(s.samples),
		LastError: s.lastError,
	}
	if s.total > 0 {
		rate := float64(s.success) / float64(s.total) * 100
		m.SuccessRate = &rate
	}
	if len(s.samples) > 0 {
		var sum time.Duration
		for _, d := range s.samples {
			sum += d
		}
		avg := float64(sum) / float64(len(s.samples)) / float64(time.Millisecond)
		m.AvgResponseMS = &avg
	}
	if !s.lastErrorTime.IsZero() {
		t := s.lastErrorTime
		m.LastErrorTime = &t
	}
	return m
}

// Monitor collects per-service request metrics
type Monitor struct {
	mu       sync.RWMutex
	services map[string]*service
	start    time.Time
	log      *slog.Logger
	now      func() time.Time
}

// New creates a monitor with the given services registered
func New(logger *slog.Logger, services ...string) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		services: make(map[string]*service),
		start:    time.Now(),
		log:      logger.With("component", "monitor"),
		now:      time.Now,
	}
	for _, name := range services {
		m.Register(name)
	}
	return m
}

// Register adds a service; registering twice is a no-op
func (m *Monitor) Register(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.register(name)
}

func (m *Monitor) register(name string) *service {
	if s, ok := m.services[name]; ok {
		return s
	}
	s := &service{name: name, start: m.now()}
	m.services[name] = s
	return s
}

// Record adds one request outcome for service, registering it if needed
func (m *Monitor) Record(name string, success bool, elapsed time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.services[name]
	if !ok {
		m.log.Warn("service not registered, registering now", "service", name)
		s = m.register(name)
	}
	s.record(success, elapsed, err, m.now())
}

// Track starts timing a request and returns a func that records it
func (m *Monitor) Track(name string) func(err error) {
	start := m.now()
	return func(err error) {
		m.Record(name, err == nil, m.now().Sub(start), err)
	}
}

// Service returns the metrics of one service
func (m *Monitor) Service(name string) (ServiceMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.services[name]
	if !ok {
		return ServiceMetrics{}, false
	}
	return s.snapshot(m.now()), true
}

// Snapshot returns every service's metrics sorted by name
func (m *Monitor) Snapshot() []ServiceMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	out := make([]ServiceMetrics, 0, len(m.services))
	for _, s := range m.services {
		out = append(out, s.snapshot(now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// System returns process-wide metrics
func (m *Monitor) System() SystemMetrics {
	m.mu.RLock()
	var total int64
	for _, s := range m.services {
		total += s.total
	}
	count := len(m.services)
	m.mu.RUnlock()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return SystemMetrics{
		StartTime:     m.start,
		UptimeSeconds: m.now().Sub(m.start).Seconds(),
		ServicesCount: count,
		TotalRequests: total,
		Goroutines:    runtime.NumGoroutine(),
		HeapAllocMB:   float64(mem.HeapAlloc) / (1 << 20),
	}
}

// Run logs each service's status every interval until ctx is done
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	m.log.Info("starting service monitoring", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range m.Snapshot() {
				m.log.Info("service status",
					"service", s.Service,
					"uptime", s.Uptime,
					"requests", s.Total,
					"success_rate", formatPercent(s.SuccessRate),
					"avg_response", formatMillis(s.AvgResponseMS),
				)
			}
		}
	}
}

func formatUptime(d time.Duration) string {
	secs := int64(d.Seconds())
	days, secs := secs/86400, secs%86400
	hours, secs := secs/3600, secs%3600
	minutes, secs := secs/60, secs%60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, secs)
}

func formatPercent(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", *v)
}

func formatMillis(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2fms", *v)
}
