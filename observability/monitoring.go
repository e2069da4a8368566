package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats aggregates every counter exposed by /health and the debug inspector.
type Stats struct {
	StartedAt        time.Time `json:"started_at"`
	UptimeSeconds    int64     `json:"uptime_seconds"`
	OpenSessions     int64     `json:"open_sessions"`
	OnlineUsers      int64     `json:"online_users"`
	MessagesSent     uint64    `json:"messages_sent"`
	MessagesCensored uint64    `json:"messages_censored"`
	DeliveryFailures uint64    `json:"delivery_failures"`
	RejectedCommands uint64    `json:"rejected_commands"`
	WorkerRestarts   uint64    `json:"worker_restarts"`
	RSSBytes         uint64    `json:"rss_bytes"`
	CPUPercent       float64   `json:"cpu_percent"`
	AllocMemMb       uint64    `json:"alloc_mem_mb"`
	NumGC            uint32    `json:"num_gc"`
	NumGoroutine     int       `json:"num_goroutine"`
	SampledAt        time.Time `json:"sampled_at"`
}

// ProcessSample is the part of Stats refreshed by the telemetry worker.
type ProcessSample struct {
	RSSBytes     uint64
	CPUPercent   float64
	AllocMemMb   uint64
	NumGC        uint32
	NumGoroutine int
	At           time.Time
}

// Monitoring is safe for concurrent use. A nil *Monitoring ignores every update.
type Monitoring struct {
	startedAt time.Time

	openSessions     atomic.Int64
	onlineUsers      atomic.Int64
	messagesSent     atomic.Uint64
	messagesCensored atomic.Uint64
	deliveryFailures atomic.Uint64
	rejectedCommands atomic.Uint64
	workerRestarts   atomic.Uint64

	mu     sync.RWMutex
	sample ProcessSample
}

func NewMonitoring() *Monitoring {
	return &Monitoring{startedAt: time.Now()}
}

func (m *Monitoring) SessionOpened() {
	if m != nil {
		m.openSessions.Add(1)
	}
}

func (m *Monitoring) SessionClosed() {
	if m != nil {
		m.openSessions.Add(-1)
	}
}

func (m *Monitoring) SetOnlineUsers(n int) {
	if m != nil {
		m.onlineUsers.Store(int64(n))
	}
}

func (m *Monitoring) IncrMessagesSent() {
	if m != nil {
		m.messagesSent.Add(1)
	}
}

func (m *Monitoring) IncrMessagesCensored() {
	if m != nil {
		m.messagesCensored.Add(1)
	}
}

func (m *Monitoring) IncrDeliveryFailures() {
	if m != nil {
		m.deliveryFailures.Add(1)
	}
}

func (m *Monitoring) IncrRejectedCommands() {
	if m != nil {
		m.rejectedCommands.Add(1)
	}
}

func (m *Monitoring) IncrWorkerRestarts() {
	if m != nil {
		m.workerRestarts.Add(1)
	}
}

func (m *Monitoring) RecordSample(s ProcessSample) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sample = s
}

func (m *Monitoring) Snapshot() Stats {
	if m == nil {
		return Stats{}
	}
	m.mu.RLock()
	sample := m.sample
	m.mu.RUnlock()
	return Stats{
		StartedAt:        m.startedAt,
		UptimeSeconds:    int64(time.Since(m.startedAt).Seconds()),
		OpenSessions:     m.openSessions.Load(),
		OnlineUsers:      m.onlineUsers.Load(),
		MessagesSent:     m.messagesSent.Load(),
		MessagesCensored: m.messagesCensored.Load(),
		DeliveryFailures: m.deliveryFailures.Load(),
		RejectedCommands: m.rejectedCommands.Load(),
		WorkerRestarts:   m.workerRestarts.Load(),
		RSSBytes:         sample.RSSBytes,
		CPUPercent:       sample.CPUPercent,
		AllocMemMb:       sample.AllocMemMb,
		NumGC:            sample.NumGC,
		NumGoroutine:     sample.NumGoroutine,
		SampledAt:        sample.At,
	}
}

// Map flattens the counters for the debug inspector dashboard.
func (s Stats) Map() map[string]any {
	return map[string]any{
		"uptime_seconds":    s.UptimeSeconds,
		"open_sessions":     s.OpenSessions,
		"online_users":      s.OnlineUsers,
		"messages_sent":     s.MessagesSent,
		"messages_censored": s.MessagesCensored,
		"delivery_failures": s.DeliveryFailures,
		"rejected_commands": s.RejectedCommands,
		"worker_restarts":   s.WorkerRestarts,
		"rss_bytes":         s.RSSBytes,
		"cpu_percent":       s.CPUPercent,
		"alloc_mem_mb":      s.AllocMemMb,
		"num_gc":            s.NumGC,
		"num_goroutine":     s.NumGoroutine,
	}
}
