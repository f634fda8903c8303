package stats

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rcrowley/go-metrics"
)

// Metrics counts transfer activity for one process run.
type Metrics struct {
	registry  metrics.Registry
	startedAt time.Time
	now       func() time.Time

	Attempts         metrics.Counter
	Completed        metrics.Counter
	AlreadyComplete  metrics.Counter
	Failed           metrics.Counter
	BytesTransferred metrics.Counter
	Speed            metrics.Meter
}

// New registers a fresh set of transfer metrics.
func New() *Metrics {
	return newWithNow(time.Now)
}

func newWithNow(now func() time.Time) *Metrics {
	r := metrics.NewRegistry()
	return &Metrics{
		registry:         r,
		startedAt:        now(),
		now:              now,
		Attempts:         metrics.NewRegisteredCounter("attempts", r),
		Completed:        metrics.NewRegisteredCounter("completed", r),
		AlreadyComplete:  metrics.NewRegisteredCounter("already_complete", r),
		Failed:           metrics.NewRegisteredCounter("failed", r),
		BytesTransferred: metrics.NewRegisteredCounter("bytes_transferred", r),
		Speed:            metrics.NewRegisteredMeter("speed", r),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() metrics.Registry {
	return m.registry
}

// AddBytes records n freshly transferred bytes.
func (m *Metrics) AddBytes(n int64) {
	if n <= 0 {
		return
	}
	m.BytesTransferred.Inc(n)
	m.Speed.Mark(n)
}

// Close stops the meter's background ticker.
func (m *Metrics) Close() {
	m.Speed.Stop()
}

// Summary is a point-in-time view of the counters.
type Summary struct {
	Attempts         int64
	Completed        int64
	AlreadyComplete  int64
	Failed           int64
	BytesTransferred int64
	Elapsed          time.Duration
	AvgBps           float64
}

// Summary snapshots the counters.
func (m *Metrics) Summary() Summary {
	elapsed := m.now().Sub(m.startedAt)
	s := Summary{
		Attempts:         m.Attempts.Count(),
		Completed:        m.Completed.Count(),
		AlreadyComplete:  m.AlreadyComplete.Count(),
		Failed:           m.Failed.Count(),
		BytesTransferred: m.BytesTransferred.Count(),
		Elapsed:          elapsed,
	}
	if elapsed > 0 {
		s.AvgBps = float64(s.BytesTransferred) / elapsed.Seconds()
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("attempts=%d completed=%d already_complete=%d failed=%d bytes=%d dur=%.1fs avg=%.2fMB/s",
		s.Attempts,
		s.Completed,
		s.AlreadyComplete,
		s.Failed,
		s.BytesTransferred,
		s.Elapsed.Seconds(),
		s.AvgBps/(1024*1024),
	)
}

// Log writes the summary as a single structured record.
func (s Summary) Log(logger *slog.Logger) {
	logger.Info("transfer summary",
		"attempts", s.Attempts,
		"completed", s.Completed,
		"already_complete", s.AlreadyComplete,
		"failed", s.Failed,
		"bytes", s.BytesTransferred,
		"elapsed", s.Elapsed.Round(time.Millisecond),
		"avg_bps", int64(s.AvgBps),
	)
}
