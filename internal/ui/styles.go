package ui

import "github.com/charmbracelet/lipgloss"

// Palette (ANSI 256).
const (
	ColorAccent   = "39"
	ColorAccentLo = "31"
	ColorGray     = "245"
	ColorDarkGray = "238"
	ColorRed      = "196"
	ColorYellow   = "220"
	ColorGreen    = "78"
)

// Styles holds the styles used by the renderers.
type Styles struct {
	Header    lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Dim       lipgloss.Style
	Active    lipgloss.Style
	Label     lipgloss.Style
	Border    lipgloss.Style
	Sparkline lipgloss.Style
}

// DefaultStyles returns colored styles.
func DefaultStyles() Styles {
	fg := func(c string) lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color(c)) }
	return Styles{
		Header:    fg(ColorAccent).Bold(true),
		Success:   fg(ColorGreen),
		Warning:   fg(ColorYellow),
		Error:     fg(ColorRed),
		Dim:       fg(ColorDarkGray),
		Active:    fg(ColorAccent).Bold(true),
		Label:     fg(ColorGray),
		Border:    fg(ColorDarkGray),
		Sparkline: fg(ColorAccentLo),
	}
}

// GetStyles returns unstyled components when noColor is set.
func GetStyles(noColor bool) Styles {
	if noColor {
		plain := lipgloss.NewStyle()
		return Styles{
			Header: plain, Success: plain, Warning: plain, Error: plain, Dim: plain,
			Active: plain, Label: plain, Border: plain, Sparkline: plain,
		}
	}
	return DefaultStyles()
}
