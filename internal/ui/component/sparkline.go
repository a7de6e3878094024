package component

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/solana-testlab/internal/ui/style"
)

var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline is a mini graph of the most recent prices of a campaign.
type Sparkline struct {
	data  []float64
	width int
	color lipgloss.Color
}

// NewSparkline creates a new sparkline component
func NewSparkline(width int) *Sparkline {
	if width < 1 {
		width = 1
	}
	return &Sparkline{
		width: width,
		color: style.DefaultPalette().Primary,
	}
}

// Push appends a price and keeps only the last width points.
func (s *Sparkline) Push(value float64) {
	s.data = append(s.data, value)
	if len(s.data) > s.width {
		s.data = s.data[len(s.data)-s.width:]
	}
}

func (s *Sparkline) Len() int { return len(s.data) }

// Plain renders the spark characters without styling.
func (s *Sparkline) Plain() string {
	if len(s.data) == 0 {
		return strings.Repeat("▁", s.width)
	}

	lo, hi := s.data[0], s.data[0]
	for _, v := range s.data {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	var b strings.Builder
	for _, v := range s.data {
		idx := len(sparkChars) / 2
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(sparkChars)-1))
		}
		b.WriteRune(sparkChars[idx])
	}
	for i := len(s.data); i < s.width; i++ {
		b.WriteRune(' ')
	}
	return b.String()
}

// View renders the sparkline
func (s *Sparkline) View() string {
	return lipgloss.NewStyle().Foreground(s.color).Render(s.Plain())
}

// Trend returns an arrow for the last move.
func (s *Sparkline) Trend() string {
	if len(s.data) < 2 {
		return "→"
	}
	last, prev := s.data[len(s.data)-1], s.data[len(s.data)-2]
	switch {
	case last > prev:
		return "↗"
	case last < prev:
		return "↘"
	default:
		return "→"
	}
}
