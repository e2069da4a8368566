package workers

import (
	"channel-chat/observability"
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

const defaultMetricInterval = 10 * time.Second

// TelemetryWorker samples the process footprint into the monitoring snapshot.
type TelemetryWorker struct {
	log            *slog.Logger
	monitoring     *observability.Monitoring
	metricInterval time.Duration
}

func NewTelemetryWorker(log *slog.Logger, monitoring *observability.Monitoring, metricInterval time.Duration) *TelemetryWorker {
	if metricInterval <= 0 {
		metricInterval = defaultMetricInterval
	}
	return &TelemetryWorker{log: log, monitoring: monitoring, metricInterval: metricInterval}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	w.collect(p)

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.collect(p)
		}
	}
}

func (w *TelemetryWorker) collect(p *process.Process) {
	sample := observability.ProcessSample{At: time.Now(), NumGoroutine: runtime.NumGoroutine()}

	if memInfo, err := p.MemoryInfo(); err != nil {
		w.log.Warn("Failed to read process memory", "error", err)
	} else {
		sample.RSSBytes = memInfo.RSS
	}
	if cpu, err := p.CPUPercent(); err != nil {
		w.log.Warn("Failed to read process cpu", "error", err)
	} else {
		sample.CPUPercent = cpu
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	sample.AllocMemMb = m.Alloc / 1024 / 1024
	sample.NumGC = m.NumGC

	w.monitoring.RecordSample(sample)
	w.log.Debug("Telemetry sampled", "rss", sample.RSSBytes, "cpu", sample.CPUPercent, "goroutines", sample.NumGoroutine)
}
