package progress

import (
	"sync"
	"time"
)

const (
	rateAlpha = 0.2
	// Chunks arriving closer together than this are folded into one sample.
	minSampleWindow = 100 * time.Millisecond
)

// Stats is a point-in-time view of one session's progress.
type Stats struct {
	Offset    int64 // bytes already at the destination when the session began
	BytesDone int64 // bytes moved by this session
	Total     int64 // full size of the source
	RateBps   float64
	ETA       time.Duration
	Percent   float64 // of Total, counting Offset
	StartedAt time.Time
}

// Remaining returns the bytes still to move.
func (s Stats) Remaining() int64 {
	return max(s.Total-s.Offset-s.BytesDone, 0)
}

type ewma struct {
	alpha  float64
	value  float64
	primed bool
}

func (e *ewma) observe(x float64) {
	if !e.primed {
		e.value, e.primed = x, true
		return
	}
	e.value = e.alpha*x + (1-e.alpha)*e.value
}

// Meter turns cumulative byte counts into a smoothed rate and an ETA.
type Meter struct {
	now func() time.Time

	mu         sync.Mutex
	offset     int64
	total      int64
	done       int64
	startedAt  time.Time
	sampleAt   time.Time
	sampleDone int64
	rate       ewma
}

// NewMeter returns a meter on the wall clock.
func NewMeter() *Meter {
	return NewMeterWithNow(time.Now)
}

// NewMeterWithNow returns a meter reading time from now.
func NewMeterWithNow(now func() time.Time) *Meter {
	if now == nil {
		now = time.Now
	}
	return &Meter{now: now, rate: ewma{alpha: rateAlpha}}
}

// Start resets the meter for a session resuming at offset of a total-byte source.
func (m *Meter) Start(offset, total int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.now()
	m.offset, m.total, m.done = offset, total, 0
	m.startedAt, m.sampleAt, m.sampleDone = t, t, 0
	m.rate = ewma{alpha: rateAlpha}
}

// Set records the cumulative number of bytes moved by the session.
// Values lower than the current count are ignored.
func (m *Meter) Set(done int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if done <= m.done {
		return
	}
	m.done = done
	t := m.now()
	window := t.Sub(m.sampleAt)
	if window < minSampleWindow {
		return
	}
	m.rate.observe(float64(m.done-m.sampleDone) / window.Seconds())
	m.sampleAt, m.sampleDone = t, m.done
}

// Snapshot returns the current stats.
func (m *Meter) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{
		Offset:    m.offset,
		BytesDone: m.done,
		Total:     m.total,
		RateBps:   m.rate.value,
		StartedAt: m.startedAt,
	}
	if m.total > 0 {
		s.Percent = float64(m.offset+m.done) / float64(m.total) * 100
	}
	if left := s.Remaining(); s.RateBps > 0 && left > 0 {
		s.ETA = time.Duration(float64(left) / s.RateBps * float64(time.Second))
	}
	return s
}
