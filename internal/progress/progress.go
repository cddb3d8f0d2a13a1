package progress

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/guarzo/offerscout/internal/concurrent"
)

const barWidth = 30

// Bar renders collector progress on one terminal line.
type Bar struct {
	out        io.Writer
	enabled    bool
	label      string
	interval   time.Duration
	now        func() time.Time
	lastDraw   time.Time
	spinnerIdx int
}

// New returns a Bar writing to out. A disabled Bar ignores every call.
func New(out io.Writer, label string, enabled bool) *Bar {
	return &Bar{
		out:      out,
		enabled:  enabled,
		label:    label,
		interval: 100 * time.Millisecond,
		now:      time.Now,
	}
}

// Observe draws p. Redraws are throttled except for the final product.
// Its signature matches concurrent.Config.OnProgress.
func (b *Bar) Observe(p concurrent.Progress) {
	if !b.enabled {
		return
	}
	now := b.now()
	if now.Sub(b.lastDraw) < b.interval && p.Completed < p.Total {
		return
	}
	b.lastDraw = now
	fmt.Fprintf(b.out, "\r%s", b.line(p, now))
}

func (b *Bar) line(p concurrent.Progress, now time.Time) string {
	elapsed := now.Sub(p.StartTime)
	if p.Total <= 0 {
		b.spinnerIdx = (b.spinnerIdx + 1) % len(spinner)
		return fmt.Sprintf("%s %s %d done", b.label, spinner[b.spinnerIdx], p.Completed)
	}

	pct := float64(p.Completed) / float64(p.Total) * 100
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s] %d/%d (%.1f%%)", b.label, renderBar(pct), p.Completed, p.Total, pct)
	if p.Errors > 0 {
		fmt.Fprintf(&sb, " %d failed", p.Errors)
	}
	if p.Completed > 0 && p.Completed < p.Total && elapsed > 0 {
		perItem := elapsed / time.Duration(p.Completed)
		fmt.Fprintf(&sb, " ETA %s", formatDuration(perItem*time.Duration(p.Total-p.Completed)))
	}
	if p.Current != "" {
		fmt.Fprintf(&sb, " %s", p.Current)
	}
	return sb.String()
}

// Finish prints the closing line.
func (b *Bar) Finish(stats concurrent.Stats) {
	if !b.enabled {
		return
	}
	elapsed := stats.EndTime.Sub(stats.StartTime)
	mark := "✓"
	if stats.Failed > 0 {
		mark = "✗"
	}
	fmt.Fprintf(b.out, "\r%s %s %d products in %s (%d ok, %d no offers, %d failed, %d retries)\n",
		b.label, mark, stats.Products, formatDuration(elapsed),
		stats.Succeeded, stats.NoOffers, stats.Failed, stats.Retries)
}

var spinner = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func renderBar(pct float64) string {
	filled := int(pct / 100 * barWidth)
	var sb strings.Builder
	for i := 0; i < barWidth; i++ {
		switch {
		case i < filled:
			sb.WriteString("█")
		case i == filled && pct < 100:
			sb.WriteString("▓")
		default:
			sb.WriteString("░")
		}
	}
	return sb.String()
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
