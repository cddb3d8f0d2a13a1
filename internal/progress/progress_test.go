package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/guarzo/offerscout/internal/concurrent"
)

func newTestBar(buf *bytes.Buffer, enabled bool) (*Bar, *time.Time) {
	clock := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	b := New(buf, "Collecting", enabled)
	b.now = func() time.Time { return clock }
	return b, &clock
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		pct      float64
		expected string
	}{
		{0.0, "▓░░░░░░░░░░░░░░░░░░░░░░░░░░░░░"},
		{50.0, "███████████████▓░░░░░░░░░░░░░░"},
		{100.0, "██████████████████████████████"},
	}

	for _, tt := range tests {
		if got := renderBar(tt.pct); got != tt.expected {
			t.Errorf("renderBar(%.1f): expected %q, got %q", tt.pct, tt.expected, got)
		}
	}

	for _, pct := range []float64{0.1, 33.33, 66.67, 99.9} {
		if n := len([]rune(renderBar(pct))); n != barWidth {
			t.Errorf("renderBar(%.2f) has %d cells, want %d", pct, n, barWidth)
		}
	}
}

func TestObserve(t *testing.T) {
	var buf bytes.Buffer
	b, clock := newTestBar(&buf, true)
	start := *clock

	*clock = start.Add(2 * time.Second)
	b.Observe(concurrent.Progress{Completed: 1, Total: 4, Current: "B000000001", StartTime: start})
	out := buf.String()
	for _, want := range []string{"Collecting", "1/4", "(25.0%)", "ETA 6.0s", "B000000001"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}

	// throttled
	buf.Reset()
	*clock = clock.Add(10 * time.Millisecond)
	b.Observe(concurrent.Progress{Completed: 2, Total: 4, StartTime: start})
	if buf.Len() != 0 {
		t.Errorf("expected redraw to be throttled, got %q", buf.String())
	}

	// the last product always draws
	b.Observe(concurrent.Progress{Completed: 4, Total: 4, Errors: 1, StartTime: start})
	out = buf.String()
	if !strings.Contains(out, "4/4") || !strings.Contains(out, "1 failed") {
		t.Errorf("unexpected final line %q", out)
	}
	if strings.Contains(out, "ETA") {
		t.Errorf("no ETA expected when done: %q", out)
	}
}

func TestObserveWithoutTotal(t *testing.T) {
	var buf bytes.Buffer
	b, _ := newTestBar(&buf, true)
	b.Observe(concurrent.Progress{Completed: 3})
	if !strings.Contains(buf.String(), "3 done") {
		t.Errorf("expected spinner line, got %q", buf.String())
	}
}

func TestFinish(t *testing.T) {
	var buf bytes.Buffer
	b, clock := newTestBar(&buf, true)
	b.Finish(concurrent.Stats{
		Products:  5,
		Succeeded: 3,
		NoOffers:  1,
		Failed:    1,
		Retries:   2,
		StartTime: *clock,
		EndTime:   clock.Add(90 * time.Second),
	})
	out := buf.String()
	for _, want := range []string{"✗", "5 products in 1.5m", "3 ok", "1 no offers", "1 failed", "2 retries"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}

func TestDisabledBarWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	b, _ := newTestBar(&buf, false)
	b.Observe(concurrent.Progress{Completed: 1, Total: 1})
	b.Finish(concurrent.Stats{Products: 1})
	if buf.Len() != 0 {
		t.Errorf("disabled bar wrote %q", buf.String())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{50 * time.Millisecond, "50ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1.5m"},
		{3600 * time.Second, "1.0h"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.duration); got != tt.expected {
			t.Errorf("formatDuration(%v): expected %q, got %q", tt.duration, tt.expected, got)
		}
	}
}
