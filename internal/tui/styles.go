package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/user/hsafe/internal/model"
)

var (
	// Colors
	Primary   = lipgloss.Color("205")
	Secondary = lipgloss.Color("86")
	Subtle    = lipgloss.Color("241")
	Success   = lipgloss.Color("46")
	Warning   = lipgloss.Color("214")
	Error     = lipgloss.Color("196")

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(Primary).
			Padding(0, 2).
			Align(lipgloss.Center)

	SectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Subtle).
			Padding(0, 2)

	SectionTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(Primary)

	LabelStyle = lipgloss.NewStyle().
			Foreground(Subtle).
			Width(10)

	ValueStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(Subtle).
			Italic(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(Subtle).
			MarginTop(1)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(Subtle)
)

// ActionStyle returns the colour used for an action.
func ActionStyle(a model.Action) lipgloss.Style {
	switch a {
	case model.ActionDeny:
		return ErrorStyle
	case model.ActionAlert:
		return WarningStyle
	default:
		return SuccessStyle
	}
}

// RenderAction returns a styled, fixed-width action label.
func RenderAction(a model.Action) string {
	return ActionStyle(a).Render(padRight(string(a), 5))
}

func padRight(s string, n int) string {
	for len(s) < n {
		s += " "
	}
	return s
}
