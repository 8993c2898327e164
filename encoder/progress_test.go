package encoder

import (
	"bufio"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaforge/models"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		line string
		want float64
		ok   bool
	}{
		{"frame= 2071 fps=  0 q=-1.0 size=   34623kB time=00:01:25.89 bitrate=3302.3kbits/s", 85.89, true},
		{"size=N/A time=01:00:00.00 bitrate=N/A speed=1x", 3600, true},
		{"time=-00:00:00.02", -0.02, true},
		{"time=N/A", 0, false},
		{"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'in.mp4':", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseTime(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.InDelta(t, tt.want, got, 1e-9, tt.line)
	}
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 0.5, Ratio(86, 172))
	assert.Equal(t, 1.0, Ratio(200, 172))
	assert.Equal(t, 0.0, Ratio(-1, 172))
	assert.Equal(t, 1.0, Ratio(10, 0))
}

func TestETA(t *testing.T) {
	assert.Equal(t, int64(0), ETA(10*time.Second, 0))
	assert.Equal(t, int64(0), ETA(10*time.Second, 1))
	assert.Equal(t, int64(10), ETA(10*time.Second, 0.5))
	assert.Equal(t, int64(30), ETA(10*time.Second, 0.25))
	assert.Equal(t, int64(2), ETA(2500*time.Millisecond, 0.5))
}

func TestRatioAndETABounds(t *testing.T) {
	for _, pos := range []float64{-5, 0, 1, 50, 171.9, 172, 500} {
		for _, dur := range []float64{0, 1, 172} {
			r := Ratio(pos, dur)
			assert.GreaterOrEqual(t, r, 0.0)
			assert.LessOrEqual(t, r, 1.0)
			assert.GreaterOrEqual(t, ETA(time.Minute, r), int64(0))
		}
	}
}

func TestTracker_Halfway(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(37 * time.Second)
	tr := NewTracker(172.0, start, func() time.Time { return now })

	status, ok := tr.Observe("frame= 100 fps=25 q=28.0 size= 1024kB time=00:01:26.00 bitrate= 97.5kbits/s")
	require.True(t, ok)
	assert.InDelta(t, 50.0, status.Progress, 1e-9)
	assert.Equal(t, int64(37), status.ETA)
}

func TestTracker_Monotonic(t *testing.T) {
	start := time.Now()
	tr := NewTracker(100, start, func() time.Time { return start.Add(10 * time.Second) })

	s, _ := tr.Observe("time=00:00:50.00")
	assert.Equal(t, 50.0, s.Progress)
	s, _ = tr.Observe("time=00:00:40.00")
	assert.Equal(t, 50.0, s.Progress, "progress must not move backwards")
	s, _ = tr.Observe("time=00:02:00.00")
	assert.Equal(t, models.TaskStatus{ETA: 0, Progress: 100}, s)

	_, ok := tr.Observe("no position here")
	assert.False(t, ok)
}

func TestScanStatusLines(t *testing.T) {
	input := "header\nframe=1 time=00:00:01.00\rframe=2 time=00:00:02.00\r\nlast"
	// one byte per read exercises partial tokens across reads
	scanner := bufio.NewScanner(iotest.OneByteReader(strings.NewReader(input)))
	scanner.Split(ScanStatusLines)

	var got []string
	for scanner.Scan() {
		got = append(got, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"header", "frame=1 time=00:00:01.00", "frame=2 time=00:00:02.00", "last"}, got)
}

func TestTail(t *testing.T) {
	tl := newTail(2)
	tl.add("a")
	tl.add("b")
	tl.add("c")
	assert.Equal(t, []string{"b", "c"}, tl.snapshot())
}
