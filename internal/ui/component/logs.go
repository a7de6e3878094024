package component

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/solana-testlab/internal/logger"
	"github.com/rovshanmuradov/solana-testlab/internal/ui/style"
)

const logWindow = 200

// LogSource is what the viewer reads entries from; *logger.LogBuffer
// satisfies it.
type LogSource interface {
	GetRecentLogs(limit int) []logger.LogEntry
}

// LogViewer shows the recent log entries with a level filter.
type LogViewer struct {
	source   LogSource
	viewport viewport.Model
	minLevel int
	follow   bool

	timestamp lipgloss.Style
	name      lipgloss.Style
	fields    lipgloss.Style
	levels    map[string]lipgloss.Style
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "warning": 2, "error": 3, "dpanic": 4, "panic": 4, "fatal": 4}

// LevelNames lists the filter thresholds in the order Cycle walks them.
var LevelNames = []string{"debug", "info", "warn", "error"}

func NewLogViewer(source LogSource) *LogViewer {
	palette := style.DefaultPalette()
	return &LogViewer{
		source:    source,
		viewport:  viewport.New(80, 10),
		minLevel:  1,
		follow:    true,
		timestamp: lipgloss.NewStyle().Foreground(palette.TextMuted),
		name:      lipgloss.NewStyle().Foreground(palette.Secondary),
		fields:    lipgloss.NewStyle().Foreground(palette.TextSecondary),
		levels: map[string]lipgloss.Style{
			"debug": lipgloss.NewStyle().Foreground(palette.TextMuted),
			"info":  lipgloss.NewStyle().Foreground(palette.Info),
			"warn":  lipgloss.NewStyle().Foreground(palette.Warning).Bold(true),
			"error": lipgloss.NewStyle().Foreground(palette.Error).Bold(true),
		},
	}
}

func (lv *LogViewer) SetSize(width, height int) {
	lv.viewport.Width = max(width, 10)
	lv.viewport.Height = max(height, 2)
	lv.Refresh()
}

// CycleLevel raises the minimum level shown, wrapping back to debug.
func (lv *LogViewer) CycleLevel() {
	lv.minLevel = (lv.minLevel + 1) % len(LevelNames)
	lv.Refresh()
}

func (lv *LogViewer) Level() string { return LevelNames[lv.minLevel] }

// Update scrolls the viewport. Scrolling up stops following new entries.
func (lv *LogViewer) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	lv.viewport, cmd = lv.viewport.Update(msg)
	lv.follow = lv.viewport.AtBottom()
	return cmd
}

// Refresh reloads entries from the source.
func (lv *LogViewer) Refresh() {
	if lv.source == nil {
		lv.viewport.SetContent("No log buffer available")
		return
	}

	var lines []string
	for _, e := range lv.source.GetRecentLogs(logWindow) {
		rank, ok := levelRank[strings.ToLower(e.Level)]
		if !ok {
			rank = 1
		}
		if rank < lv.minLevel {
			continue
		}
		lines = append(lines, lv.format(e))
	}
	if len(lines) == 0 {
		lv.viewport.SetContent("No logs match current filter")
		return
	}

	lv.viewport.SetContent(strings.Join(lines, "\n"))
	if lv.follow {
		lv.viewport.GotoBottom()
	}
}

func (lv *LogViewer) format(e logger.LogEntry) string {
	level := strings.ToLower(e.Level)
	if level == "warning" {
		level = "warn"
	}
	st, ok := lv.levels[level]
	if !ok {
		st = lv.levels["info"]
	}

	var b strings.Builder
	b.WriteString(lv.timestamp.Render(e.Timestamp.Format("15:04:05")))
	b.WriteByte(' ')
	b.WriteString(st.Render(fmt.Sprintf("%-5s", strings.ToUpper(level))))
	if e.Logger != "" {
		b.WriteByte(' ')
		b.WriteString(lv.name.Render(e.Logger))
	}
	b.WriteByte(' ')
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		b.WriteByte(' ')
		b.WriteString(lv.fields.Render(formatFields(e.Fields)))
	}
	return b.String()
}

func formatFields(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "caller" || k == "stacktrace" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}

func (lv *LogViewer) View() string {
	return lv.viewport.View()
}
