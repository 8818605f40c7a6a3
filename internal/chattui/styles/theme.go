// Package styles holds the theme tokens and lipgloss styles for the chat TUI.
package styles

import "github.com/charmbracelet/lipgloss"

// BaseColors defines global UI colors.
type BaseColors struct {
	Background string
	Foreground string
	Muted      string
	Accent     string
	Border     string
	Error      string
}

// MessageColors defines colors by message origin.
type MessageColors struct {
	Own     string
	Other   string
	Pending string
}

// ConnectionColors defines colors for push channel state.
type ConnectionColors struct {
	Open       string
	Connecting string
	Closed     string
}

// ChromeColors defines non-content UI colors.
type ChromeColors struct {
	Header       string
	Footer       string
	SelectedItem string
}

// BorderColors defines border colors for pane state.
type BorderColors struct {
	ActivePane   string
	InactivePane string
	Divider      string
}

// Theme defines the chat TUI style tokens.
type Theme struct {
	Name        string
	BorderStyle string   // "rounded", "sharp", "double", "hidden"
	Palette     []string // identity colors for counterparties (ANSI-256 codes)

	Base       BaseColors
	Message    MessageColors
	Connection ConnectionColors
	Chrome     ChromeColors
	Borders    BorderColors
}

// Themes lists available palettes by name.
var Themes = map[string]Theme{
	"default":       DefaultTheme,
	"high-contrast": HighContrastTheme,
}

// Lookup returns the named theme, falling back to DefaultTheme.
func Lookup(name string) Theme {
	if theme, ok := Themes[name]; ok {
		return theme
	}
	return DefaultTheme
}

// Muted renders secondary text.
func (t Theme) Muted() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Base.Muted))
}

// Accent renders highlighted text.
func (t Theme) Accent() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Base.Accent))
}

// ErrorText renders failures.
func (t Theme) ErrorText() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Base.Error)).Bold(true)
}

// Header renders the top bar.
func (t Theme) Header() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Chrome.Header)).Bold(true)
}

// Footer renders the key hint bar.
func (t Theme) Footer() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Chrome.Footer))
}

// Selected renders the highlighted roster row.
func (t Theme) Selected() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Chrome.SelectedItem)).Bold(true)
}
