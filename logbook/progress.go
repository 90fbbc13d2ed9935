package logbook

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Progress draws a single-line progress bar with ETA.
type Progress struct {
	w       io.Writer
	label   string
	enabled bool
	start   time.Time
}

// NewProgress creates a progress bar. A disabled bar writes nothing.
func NewProgress(w io.Writer, label string, enabled bool) *Progress {
	return &Progress{w: w, label: label, enabled: enabled, start: time.Now()}
}

// Update redraws the bar for current out of total.
func (p *Progress) Update(current, total int) {
	if !p.enabled || total <= 0 {
		return
	}
	fmt.Fprintf(p.w, "\r%s", RenderBar(p.label, current, total, time.Since(p.start)))
}

// Done finishes the line.
func (p *Progress) Done() {
	if !p.enabled {
		return
	}
	fmt.Fprintln(p.w)
}

// RenderBar formats a bar such as "Hashing ████░░ 2/4 (50.0%) ETA: 3s".
func RenderBar(label string, current, total int, elapsed time.Duration) string {
	if total <= 0 {
		total = 1
	}
	if current > total {
		current = total
	}
	percentage := float64(current) / float64(total)
	barWidth := 30
	filled := int(percentage * float64(barWidth))

	filledStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7D56F4")).
		Background(lipgloss.Color("#7D56F4"))
	emptyStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#3c3c3c")).
		Background(lipgloss.Color("#3c3c3c"))

	var bar strings.Builder
	bar.WriteString(filledStyle.Render(strings.Repeat("█", filled)))
	bar.WriteString(emptyStyle.Render(strings.Repeat("░", barWidth-filled)))

	eta := "..."
	if current > 0 {
		remaining := float64(total-current) * (elapsed.Seconds() / float64(current))
		eta = FormatDuration(remaining)
	}

	return fmt.Sprintf("%s %s %d/%d (%.1f%%) ETA: %s", label, bar.String(), current, total, percentage*100, eta)
}

// FormatDuration converts seconds to a human-readable duration.
func FormatDuration(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%.0fs", seconds)
	}
	minutes := int(seconds / 60)
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, int(seconds)%60)
	}
	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
