package encoder

import (
	"bytes"
	"math"
	"regexp"
	"strconv"
	"time"

	"mediaforge/models"
)

// frame= 2071 fps=  0 q=-1.0 size=   34623kB time=00:01:25.89 bitrate=3302.3kbits/s
var timeRe = regexp.MustCompile(`time=\s*(-?)(\d+):(\d+):(\d+(?:\.\d+)?)`)

// ParseTime extracts the encoded position in seconds from an ffmpeg status
// line.
func ParseTime(line string) (float64, bool) {
	m := timeRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	hours, _ := strconv.Atoi(m[2])
	minutes, _ := strconv.Atoi(m[3])
	seconds, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return 0, false
	}
	t := float64(hours*3600+minutes*60) + seconds
	if m[1] == "-" {
		t = -t
	}
	return t, true
}

// Ratio returns position/duration clamped to [0,1]. An unknown or zero
// duration counts as complete.
func Ratio(position, duration float64) float64 {
	if duration <= 0 {
		return 1
	}
	r := position / duration
	switch {
	case math.IsNaN(r) || r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}

// ETA estimates the remaining seconds from the time spent so far. A zero
// ratio gives no estimate (0).
func ETA(elapsed time.Duration, ratio float64) int64 {
	if ratio <= 0 {
		return 0
	}
	eta := math.Floor(elapsed.Seconds() * (1 - ratio) / ratio)
	if eta < 0 {
		return 0
	}
	return int64(eta)
}

// Tracker turns encoder status lines into task statuses. Progress never
// moves backwards.
type Tracker struct {
	duration float64
	start    time.Time
	now      func() time.Time
	ratio    float64
}

// NewTracker starts tracking an encode of duration seconds at start.
func NewTracker(duration float64, start time.Time, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{duration: duration, start: start, now: now}
}

// Observe parses line and returns the new status if it carried a position.
func (t *Tracker) Observe(line string) (models.TaskStatus, bool) {
	pos, ok := ParseTime(line)
	if !ok {
		return models.TaskStatus{}, false
	}
	ratio := Ratio(pos, t.duration)
	if ratio < t.ratio {
		ratio = t.ratio
	}
	t.ratio = ratio
	return models.TaskStatus{
		ETA:      ETA(t.now().Sub(t.start), ratio),
		Progress: ratio * 100,
	}, true
}

// ScanStatusLines is a bufio.SplitFunc splitting on either '\r' or '\n'.
// ffmpeg rewrites its status line with '\r', so a plain line scanner would
// only see it at exit. Empty tokens are dropped.
func ScanStatusLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
		start++
	}
	if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
		return start + i + 1, data[start : start+i], nil
	}
	if atEOF {
		if start < len(data) {
			return len(data), data[start:], nil
		}
		return len(data), nil, nil
	}
	return start, nil, nil
}

// tail keeps the last n lines written to it.
type tail struct {
	lines []string
	n     int
}

func newTail(n int) *tail { return &tail{n: n} }

func (t *tail) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *tail) snapshot() []string {
	return append([]string(nil), t.lines...)
}
