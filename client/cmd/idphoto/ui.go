package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"idPhoto/client/models"
)

var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "2", Dark: "2"}
	colorError   = lipgloss.AdaptiveColor{Light: "1", Dark: "1"}
	colorPrimary = lipgloss.AdaptiveColor{Light: "5", Dark: "5"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "6", Dark: "6"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "8", Dark: "8"}
	colorWarning = lipgloss.AdaptiveColor{Light: "3", Dark: "3"}

	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleHeader  = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	styleInfo    = lipgloss.NewStyle().Foreground(colorInfo)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	styleBar     = lipgloss.NewStyle().Foreground(colorPrimary)
)

func formatSuccess(msg string) string { return styleSuccess.Render("✔ " + msg) }
func formatError(msg string) string   { return styleError.Render("✘ " + msg) }
func formatInfo(msg string) string    { return styleInfo.Render("ℹ " + msg) }
func formatWarning(msg string) string { return styleWarning.Render("⚠ " + msg) }
func formatMuted(msg string) string   { return styleMuted.Render(msg) }

const barWidth = 30

// progressBar renders percent (0..100) as a fixed-width bar.
func progressBar(percent float64) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(percent / 100 * barWidth)
	return styleBar.Render(strings.Repeat("█", filled)) +
		styleMuted.Render(strings.Repeat("░", barWidth-filled)) +
		fmt.Sprintf(" %3.0f%%", percent)
}

var stateLabels = map[models.SessionState]string{
	models.StateAuthorizing: "authorizing",
	models.StateUploading:   "uploading",
	models.StatePolling:     "removing background",
	models.StateCompositing: "compositing",
	models.StateCompleted:   "done",
	models.StateFailed:      "failed",
}

// terminalObserver prints session progress, one line per change. A label
// prefixes every line so batch output stays readable.
type terminalObserver struct {
	mu    sync.Mutex
	out   io.Writer
	label string
	last  int
}

func newTerminalObserver(out io.Writer, label string) *terminalObserver {
	return &terminalObserver{out: out, label: label, last: -1}
}

func (o *terminalObserver) OnProgress(percent float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	// Only whole-step changes are printed.
	step := int(percent / 10)
	if step == o.last {
		return
	}
	o.last = step
	fmt.Fprintln(o.out, o.prefix()+progressBar(percent))
}

func (o *terminalObserver) OnStateChange(state models.SessionState) {
	label, ok := stateLabels[state]
	if !ok {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintln(o.out, o.prefix()+formatMuted(label))
}

func (o *terminalObserver) OnStatus(message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintln(o.out, o.prefix()+formatInfo(message))
}

func (o *terminalObserver) prefix() string {
	if o.label == "" {
		return ""
	}
	return styleHeader.Render(o.label) + " "
}

// renderTable lays rows out in left-aligned columns sized to their content.
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	var b strings.Builder
	b.WriteString(styleHeader.Render(line(headers)))
	b.WriteString("\n")
	seps := make([]string, len(widths))
	for i, w := range widths {
		seps[i] = strings.Repeat("─", w)
	}
	b.WriteString(styleMuted.Render(strings.Join(seps, "  ")))
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString(line(row))
		b.WriteString("\n")
	}
	return b.String()
}
