package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	ttyInterval  = 250 * time.Millisecond
	pipeInterval = 1 * time.Second
)

// IsTTY reports whether w is a terminal. Wrappers can expose their file
// through a File method.
func IsTTY(w io.Writer) bool {
	var f *os.File
	switch v := w.(type) {
	case *os.File:
		f = v
	case interface{ File() *os.File }:
		f = v.File()
	}
	if f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Reporter renders the progress of one session. On a terminal it redraws a
// single line; otherwise it prints one line per tick.
type Reporter struct {
	w        io.Writer
	tty      bool
	interval time.Duration
	meter    *Meter

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewReporter returns a reporter writing to w.
func NewReporter(w io.Writer) *Reporter {
	tty := IsTTY(w)
	interval := pipeInterval
	if tty {
		interval = ttyInterval
	}
	return &Reporter{w: w, tty: tty, interval: interval, meter: NewMeter()}
}

// WithInterval overrides the redraw interval.
func (r *Reporter) WithInterval(d time.Duration) *Reporter {
	if d > 0 {
		r.interval = d
	}
	return r
}

// Begin announces the transfer and starts the redraw loop.
func (r *Reporter) Begin(src, dst string, offset, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		return
	}
	r.meter.Start(offset, total)
	fmt.Fprintf(r.w, "Starting transfer: %s --> %s\n", src, dst)
	if offset > 0 {
		fmt.Fprintf(r.w, "Resuming at byte %d of %d\n", offset, total)
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(r.stop, r.done)
}

// Update records cumulative session bytes. Its signature matches
// resume.ProgressFunc.
func (r *Reporter) Update(done, _ int64) {
	r.meter.Set(done)
}

// Stats returns the current snapshot.
func (r *Reporter) Stats() Stats {
	return r.meter.Snapshot()
}

// End stops the redraw loop and prints the final line. err is the session
// outcome; nil means completed.
func (r *Reporter) End(err error) {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done

	r.render()
	if r.tty {
		fmt.Fprintln(r.w)
	}
	if err != nil {
		fmt.Fprintf(r.w, "Transfer failed: %v\n", err)
		return
	}
	fmt.Fprintln(r.w, "Transfer complete.")
}

func (r *Reporter) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.render()
		}
	}
}

func (r *Reporter) render() {
	line := FormatLine(r.meter.Snapshot())
	if r.tty {
		fmt.Fprintf(r.w, "\r%s\033[K", line)
		return
	}
	fmt.Fprintln(r.w, line)
}

// FormatLine renders stats as a single progress line.
func FormatLine(s Stats) string {
	session := s.Total - s.Offset
	sessionPct := 0.0
	if session > 0 {
		sessionPct = float64(s.BytesDone) / float64(session) * 100
	}
	return fmt.Sprintf("%s %5.1f%%  %s  ETA %s  Transferred %d of %d bytes (%.2f%%)",
		renderBar(s.Percent, 20),
		s.Percent,
		formatRate(s.RateBps),
		formatETA(s.ETA),
		s.BytesDone,
		session,
		sessionPct,
	)
}

func renderBar(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int((percent / 100) * float64(width))
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func formatRate(bps float64) string {
	const (
		k = 1024
		m = 1024 * k
		g = 1024 * m
	)
	if bps >= g {
		return fmt.Sprintf("%.2f GB/s", bps/float64(g))
	}
	if bps >= m {
		return fmt.Sprintf("%.1f MB/s", bps/float64(m))
	}
	if bps >= k {
		return fmt.Sprintf("%.0f KB/s", bps/float64(k))
	}
	return fmt.Sprintf("%.0f B/s", bps)
}

func formatETA(d time.Duration) string {
	if d <= 0 {
		return "--:--:--"
	}
	secs := int(d.Seconds())
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
