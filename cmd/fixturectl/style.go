package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/woxQAQ/wasm-guest-fixture/pkg/report"
)

var (
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#EF4444")
	warningColor = lipgloss.Color("#F59E0B")
	dimColor     = lipgloss.Color("#9CA3AF")
	borderColor  = lipgloss.Color("#374151")

	headerStyle  = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	dimStyle     = lipgloss.NewStyle().Foreground(dimColor)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	borderStyle  = lipgloss.NewStyle().Foreground(borderColor)
)

func statusStyle(s report.Status) lipgloss.Style {
	switch s {
	case report.StatusPassed:
		return successStyle
	case report.StatusFailed:
		return errorStyle
	}
	return warningStyle
}
