package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records store command statistics. Counters are exported through
// Prometheus; GetStats returns an in-process snapshot of the same data.
type Metrics struct {
	cmdCount      int64
	startTime     time.Time
	activeConns   int32
	commandStats  map[string]*CommandStats
	mu            sync.RWMutex

	commandsTotal    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	connectedClients prometheus.Gauge
}

type CommandStats struct {
	Calls        int64
	Errors       int64
	TotalTime    int64
	LastExecTime time.Time
}

// NewMetrics registers the store collectors on reg. A nil reg leaves the
// collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		startTime:    time.Now(),
		commandStats: make(map[string]*CommandStats),
		commandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crystalstream",
				Subsystem: "store",
				Name:      "commands_total",
				Help:      "Total number of commands executed by the store",
			},
			[]string{"command", "status"},
		),
		commandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "crystalstream",
				Subsystem: "store",
				Name:      "command_duration_seconds",
				Help:      "Command execution time in seconds, excluding time spent blocked",
				Buckets:   []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"command"},
		),
		connectedClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "crystalstream",
				Subsystem: "store",
				Name:      "connected_clients",
				Help:      "Number of open client connections",
			},
		),
	}
}

func (m *Metrics) IncrCommandCount() {
	atomic.AddInt64(&m.cmdCount, 1)
}

func (m *Metrics) GetCommandCount() int64 {
	return atomic.LoadInt64(&m.cmdCount)
}

func (m *Metrics) ClientConnected() {
	atomic.AddInt32(&m.activeConns, 1)
	m.connectedClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	atomic.AddInt32(&m.activeConns, -1)
	m.connectedClients.Dec()
}

func (m *Metrics) AddCommandExecution(cmd string, duration time.Duration, failed bool) {
	m.IncrCommandCount()

	status := "ok"
	if failed {
		status = "error"
	}
	m.commandsTotal.WithLabelValues(cmd, status).Inc()
	m.commandDuration.WithLabelValues(cmd).Observe(duration.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	stats, exists := m.commandStats[cmd]
	if !exists {
		stats = &CommandStats{}
		m.commandStats[cmd] = stats
	}

	stats.Calls++
	if failed {
		stats.Errors++
	}
	stats.TotalTime += duration.Nanoseconds()
	stats.LastExecTime = time.Now()
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]interface{})
	stats["uptime_in_seconds"] = int(time.Since(m.startTime).Seconds())
	stats["total_commands_processed"] = m.GetCommandCount()
	stats["connected_clients"] = atomic.LoadInt32(&m.activeConns)

	cmdStats := make(map[string]map[string]interface{})
	for cmd, stat := range m.commandStats {
		cmdStats[cmd] = map[string]interface{}{
			"calls":          stat.Calls,
			"errors":         stat.Errors,
			"total_time_us":  stat.TotalTime / 1000,
			"avg_time_us":    stat.TotalTime / stat.Calls / 1000,
			"last_exec_time": stat.LastExecTime,
		}
	}
	stats["commandstats"] = cmdStats

	return stats
}
