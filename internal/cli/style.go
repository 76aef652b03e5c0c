// Package cli holds presentation helpers shared by the disk-watchdogd
// subcommands: level-colored text and formatted byte counts, adapted
// from the teacher's approval.tui color palette.
package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/diskwatchd/disk-watchdogd/internal/level"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	harshStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8700")).Bold(true)
	actStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
)

// LevelStyle renders l's name in the color the teacher's approval TUI
// used for the matching risk tier (ok/notice map to the low/medium-risk
// greens, warn/harsh to the yellow/orange warning tiers, pause/stop/kill
// to the critical red).
func LevelStyle(l level.Level) lipgloss.Style {
	switch l {
	case level.OK:
		return okStyle
	case level.Notice:
		return noticeStyle
	case level.Warn:
		return warnStyle
	case level.Harsh:
		return harshStyle
	default: // Pause, Stop, Kill
		return actStyle
	}
}

// Level renders l's name styled by severity.
func Level(l level.Level) string {
	return LevelStyle(l).Render(l.String())
}

// Title renders a banner-style header line.
func Title(s string) string {
	return titleStyle.Render(s)
}

// Subtle renders de-emphasized supporting text.
func Subtle(s string) string {
	return subtleStyle.Render(s)
}

// FormatBytes renders n as GB/MB/KB with one decimal place, per
// spec.md §6's "writers" output contract ("formatted byte counts
// (GB/MB/KB, one decimal, C locale)").
func FormatBytes(n int64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
		gb = 1 << 30
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.1f GB", float64(n)/gb)
	case n >= mb:
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	default:
		return fmt.Sprintf("%.1f KB", float64(n)/kb)
	}
}
