package transport

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Meter prints a single-line, self-overwriting rate display to an
// io.Writer (normally os.Stderr) while bytes move through Track. It only
// emits when the target looks like a terminal, mirroring the original
// tool's "don't spam a log file" behavior.
type Meter struct {
	w         io.Writer
	label     string
	total     int64
	start     time.Time
	lastPrint time.Time
	isTTY     bool
}

// NewMeter creates a progress meter labeled for display. total may be 0
// if the final size is unknown.
func NewMeter(w io.Writer, label string, total int64) *Meter {
	return &Meter{
		w:     w,
		label: label,
		total: total,
		start: time.Now(),
		isTTY: isTerminal(w),
	}
}

// Track wraps r so that every read updates the meter's displayed rate.
func (m *Meter) Track(r io.Reader) io.Reader {
	return &trackingReader{r: r, m: m}
}

func (m *Meter) update(n int64) {
	if !m.isTTY {
		return
	}
	now := time.Now()
	if now.Sub(m.lastPrint) < time.Second {
		return
	}
	m.lastPrint = now
	elapsed := now.Sub(m.start).Seconds()
	rate := float64(n)
	if elapsed > 0 {
		rate = float64(n) / elapsed
	}
	fmt.Fprintf(m.w, "\r%s: %s (%s/s)\x1b[K", m.label, humanBytes(n), humanBytes(int64(rate)))
}

// Done clears the progress line.
func (m *Meter) Done() {
	if !m.isTTY {
		return
	}
	fmt.Fprintf(m.w, "\r\x1b[K")
}

type trackingReader struct {
	r    io.Reader
	m    *Meter
	read int64
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	t.read += int64(n)
	t.m.update(t.read)
	return n, err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
