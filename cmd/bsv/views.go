package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"github.com/daviddao/boxslice_viewer/internal/boxslice"
	"github.com/daviddao/boxslice_viewer/internal/geometry"
	"github.com/daviddao/boxslice_viewer/internal/render"
	"github.com/daviddao/boxslice_viewer/internal/snapshot"
)

// --- Styles ---

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Background(lipgloss.Color("#1E1E2E")).
			Padding(0, 1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#6C7086")).
				Background(lipgloss.Color("#313244")).
				Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#89B4FA"))

	upStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6E3A1"))

	downStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F38BA8"))

	accentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAB387"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F38BA8")).
			Background(lipgloss.Color("#1E1E2E")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C7086"))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#1E1E2E"))
)

func directionStyle(d boxslice.Direction) lipgloss.Style {
	if d == boxslice.Up {
		return upStyle
	}
	return downStyle
}

func directionGlyph(d boxslice.Direction) string {
	if d == boxslice.Up {
		return "▲"
	}
	return "▼"
}

// --- View rendering ---

func (m uiModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderTitleBar())
	b.WriteRune('\n')
	b.WriteString(m.renderTabBar())
	b.WriteRune('\n')
	b.WriteRune('\n')

	_, contentHeight := m.chartSize()
	contentHeight++ // the chart's hover line

	var content string
	switch m.activeView {
	case viewChart:
		content = m.renderChart()
	case viewFrames:
		if m.width >= 120 {
			leftWidth := m.width/2 - 1
			rightWidth := m.width - leftWidth - 3
			content = renderSplitPane(m.renderFrames(contentHeight), m.renderDetailFor(m.cursorIndex()), leftWidth, rightWidth, contentHeight)
		} else {
			content = m.renderFrames(contentHeight)
		}
	case viewDetail:
		content = m.renderDetailFor(m.chart.selected)
		lines := strings.Split(content, "\n")
		scrollPos := m.scrollPos
		if scrollPos >= len(lines) {
			scrollPos = max(0, len(lines)-1)
		}
		lines = lines[scrollPos:]
		if len(lines) > contentHeight {
			lines = lines[:contentHeight]
		}
		content = strings.Join(lines, "\n")
	}

	b.WriteString(truncateLines(content, m.width))

	footer := m.renderStatusBar()
	if m.showHelp {
		footer = m.help.View(keys)
	}

	// Pad to fill screen.
	rendered := strings.Count(b.String(), "\n")
	for rendered < m.height-lipgloss.Height(footer) {
		b.WriteRune('\n')
		rendered++
	}
	b.WriteString(footer)
	return b.String()
}

func (m uiModel) renderTitleBar() string {
	title := titleStyle.Render("box-slice viewer")
	snap := m.chart.snap
	stats := fmt.Sprintf("%s | %s frames | %s %d %s %d",
		m.pair().Label(),
		humanize.Comma(int64(len(snap.Frames))),
		directionGlyph(boxslice.Up), snap.UpFrames,
		directionGlyph(boxslice.Down), snap.DownFrames)
	if snap.TotalElements > 0 {
		w := snap.Window
		stats += fmt.Sprintf(" | boxes %d-%d of %d", w.Offset+1, min(w.Offset+w.VisibleCount, snap.TotalElements), snap.TotalElements)
	}
	statsR := dimStyle.Render(stats)
	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(title)-lipgloss.Width(statsR)-1))
	return title + gap + statsR
}

func (m uiModel) renderTabBar() string {
	var tabs []string
	for i := viewID(0); i < viewCount; i++ {
		if i == m.activeView {
			tabs = append(tabs, tabActiveStyle.Render(i.String()))
		} else {
			tabs = append(tabs, tabInactiveStyle.Render(i.String()))
		}
	}
	return strings.Join(tabs, " ")
}

func (m uiModel) renderStatusBar() string {
	left := " " + contextHelp(m.activeView)
	var right string
	switch {
	case m.lastErr != nil:
		right = "fetch failed: " + m.lastErr.Error() + " "
	case m.lastRefresh.IsZero():
		right = "waiting for " + m.source + " "
	default:
		right = fmt.Sprintf("refreshed %s ", humanize.Time(m.lastRefresh))
	}
	// Help text gives way to the status on narrow terminals.
	if room := m.width - lipgloss.Width(right); lipgloss.Width(left) > room {
		left = ansi.Truncate(left, max(room, 0), "")
	}
	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right)))
	if m.lastErr != nil {
		return statusBarStyle.Render(left+gap) + errStyle.Render(right)
	}
	return statusBarStyle.Render(left + gap + right)
}

// --- Chart view ---

// renderChart shows the last painted surface and a hover readout. The surface
// is repainted on repaint ticks, not here.
func (m uiModel) renderChart() string {
	var b strings.Builder
	b.WriteString(m.chart.surface.String())
	b.WriteRune('\n')
	b.WriteString(m.renderHoverLine())
	return b.String()
}

func (m uiModel) renderHoverLine() string {
	vp := m.chart.vp
	var left string
	if h := m.chart.hover; h != nil {
		left = directionStyle(h.Direction).Render(fmt.Sprintf(" %s %s", directionGlyph(h.Direction), formatTime(h.Timestamp))) +
			dimStyle.Render(fmt.Sprintf("  high %s  low %s", formatPrice(h.High), formatPrice(h.Low)))
	} else {
		left = dimStyle.Render(" hover a frame for details")
	}

	lo, hi := vp.VisibleRange()
	pos := "following"
	if !vp.Follow() {
		pos = fmt.Sprintf("frames %d-%d of %d", lo+1, hi, len(m.chart.snap.Frames))
	}
	right := dimStyle.Render(pos + " ")
	gap := strings.Repeat(" ", max(1, m.width-lipgloss.Width(left)-lipgloss.Width(right)))
	return left + gap + right
}

// --- Frames view ---

// cursorIndex maps the Frames view cursor to a snapshot index.
func (m uiModel) cursorIndex() int {
	return len(m.chart.snap.Frames) - 1 - m.frameCursor
}

func (m uiModel) renderFrames(height int) string {
	var b strings.Builder
	snap := m.chart.snap

	b.WriteString(headerStyle.Render("Frames"))
	b.WriteRune('\n')
	if len(snap.Frames) == 0 {
		b.WriteString(dimStyle.Render("  (" + render.NoDataMessage + ")"))
		b.WriteRune('\n')
		return b.String()
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %-12s %-6s %-7s %-8s %s",
		"Time", "Dir", "Up/Dn", "Meeting", "Range")))
	b.WriteRune('\n')

	// Keep the cursor row on screen.
	rows := max(height-2, 1)
	first := max(0, m.frameCursor-rows+1)
	for row := first; row < len(snap.Frames) && row < first+rows; row++ {
		i := len(snap.Frames) - 1 - row
		f, l := snap.Frames[i], snap.Layouts[i]
		rng := "-"
		if rep, ok := geometry.Representative(l.Visible); ok {
			rng = formatPrice(rep.Low) + "-" + formatPrice(rep.High)
		}
		cursor := "  "
		if row == m.frameCursor {
			cursor = "> "
		}
		line := fmt.Sprintf("%s%-12s %-6s %3d/%-3d %-8.1f %s",
			cursor, formatTime(f.Timestamp), directionGlyph(f.Direction())+" "+f.Direction().String(),
			l.Assignment.Up(), l.Assignment.Down(), l.MeetingPoint, rng)
		style := directionStyle(f.Direction())
		if row == m.frameCursor {
			style = style.Bold(true)
		}
		if i == m.chart.selected {
			line += accentStyle.Render(" *")
		}
		b.WriteString(style.Render(line))
		b.WriteRune('\n')
	}
	return b.String()
}

// --- Detail view ---

func (m uiModel) renderDetailFor(i int) string {
	var b strings.Builder
	snap := m.chart.snap
	if i < 0 || i >= len(snap.Frames) {
		b.WriteString(headerStyle.Render("Frame"))
		b.WriteRune('\n')
		b.WriteString(dimStyle.Render("  (no frame selected: press enter on the chart or in the frames list)"))
		b.WriteRune('\n')
		return b.String()
	}
	f, l := snap.Frames[i], snap.Layouts[i]

	b.WriteString(headerStyle.Render(fmt.Sprintf("Frame %s", f.Timestamp.Local().Format("2006-01-02 15:04:05.000"))))
	b.WriteRune('\n')
	b.WriteString(fmt.Sprintf("  Direction:  %s\n", directionStyle(f.Direction()).Render(f.Direction().String())))
	b.WriteString(fmt.Sprintf("  Boxes:      %d (showing %d from #%d)\n", f.Len(), len(l.Visible), l.Base))
	b.WriteString(fmt.Sprintf("  Stack:      %d up / %d down\n", l.Assignment.Up(), l.Assignment.Down()))
	b.WriteString(fmt.Sprintf("  Meeting:    %.1f of %.0f\n", l.MeetingPoint, snap.Height))
	if rep, ok := geometry.Representative(l.Visible); ok {
		b.WriteString(fmt.Sprintf("  Nearest:    %s - %s (value %g)\n", formatPrice(rep.Low), formatPrice(rep.High), rep.Value))
	}
	b.WriteRune('\n')

	b.WriteString(headerStyle.Render("  Stack (top to bottom)"))
	b.WriteRune('\n')
	b.WriteString(dimStyle.Render(fmt.Sprintf("    %-5s %-5s %-12s %-12s %-8s %s", "Slot", "Box", "High", "Low", "Value", "Range")))
	b.WriteRune('\n')
	b.WriteString(renderStack(l))
	return b.String()
}

// renderStack lists a layout's boxes in slot order.
func renderStack(l snapshot.FrameLayout) string {
	var b strings.Builder
	for _, p := range l.Assignment.InSlotOrder() {
		box := l.Visible[p.Box-l.Base]
		bar := strings.Repeat("█", max(1, int(box.RangeRatio()*10+0.5)))
		line := fmt.Sprintf("    %-5d #%-4d %-12s %-12s %-8g %s",
			p.Slot, p.Box, formatPrice(box.High), formatPrice(box.Low), box.Value, bar)
		b.WriteString(directionStyle(box.Direction()).Render(line))
		b.WriteRune('\n')
	}
	if l.Assignment.Empty() {
		b.WriteString(dimStyle.Render("    (no boxes in window)"))
		b.WriteRune('\n')
	}
	return b.String()
}

// --- Split-pane rendering ---

// renderSplitPane renders two content panes side by side with a vertical separator.
func renderSplitPane(left, right string, leftWidth, rightWidth, maxHeight int) string {
	leftLines := strings.Split(left, "\n")
	rightLines := strings.Split(right, "\n")

	maxLines := min(max(len(leftLines), len(rightLines)), maxHeight)
	for len(leftLines) < maxLines {
		leftLines = append(leftLines, "")
	}
	for len(rightLines) < maxLines {
		rightLines = append(rightLines, "")
	}

	sep := dimStyle.Render("│")
	var b strings.Builder
	for i := 0; i < maxLines; i++ {
		b.WriteString(padOrTruncate(leftLines[i], leftWidth))
		b.WriteString(" ")
		b.WriteString(sep)
		b.WriteString(" ")
		b.WriteString(ansi.Truncate(rightLines[i], rightWidth, ""))
		b.WriteRune('\n')
	}
	return b.String()
}

// padOrTruncate fits a styled line to exactly width visible cells.
func padOrTruncate(s string, width int) string {
	w := lipgloss.Width(s)
	if w > width {
		return ansi.Truncate(s, width, "")
	}
	return s + strings.Repeat(" ", width-w)
}

// --- Helpers ---

// truncateLines truncates each line in content to at most width visible
// characters, preserving ANSI escape codes.
func truncateLines(content string, width int) string {
	if width <= 0 {
		return content
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if lipgloss.Width(line) > width {
			lines[i] = ansi.Truncate(line, width, "")
		}
	}
	return strings.Join(lines, "\n")
}

func formatTime(t time.Time) string {
	return t.Local().Format("15:04:05.000")
}

// formatPrice trims trailing zeros but keeps at least two decimals.
func formatPrice(v float64) string {
	s := fmt.Sprintf("%.6f", v)
	s = strings.TrimRight(s, "0")
	if dot := strings.IndexByte(s, '.'); dot >= 0 && len(s)-dot-1 < 2 {
		s += strings.Repeat("0", 2-(len(s)-dot-1))
	}
	return s
}
