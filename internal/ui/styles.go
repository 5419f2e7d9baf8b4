package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette for the monitor
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple - headers, borders
	SuccessColor = lipgloss.Color("#43BF6D") // Green - heating done, on base
	ErrorColor   = lipgloss.Color("#FF5555") // Red - device faults
	WarningColor = lipgloss.Color("#FFA500") // Orange - heating in progress
	MutedColor   = lipgloss.Color("#626262") // Gray - labels, help
	TextColor    = lipgloss.Color("#FFFFFF") // White - values
)

// Layout constants
const (
	MinTerminalWidth = 60 // Minimum supported terminal width
	MaxContentWidth  = 96 // Maximum content width before capping
)

// Shared styles
var (
	// TitleStyle is for the monitor header line
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	// DeviceStyle is for the device identity line under the title
	DeviceStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	// LabelStyle is for status field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Width(14)

	// ValueStyle is for status field values
	ValueStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	// TempStyle is for the large current-temperature readout
	TempStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Bold(true)

	// HeatingStyle marks an active heating stage
	HeatingStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	// IdleStyle marks the idle stage
	IdleStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	// ErrorStyle is for device fault lines
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	// EventStyle is for the scrolling event log at the bottom
	EventStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	// SpinnerStyle is for the connecting spinner
	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	// PanelStyle frames the status panel
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(PrimaryColor).
			Padding(1, 2)
)

// GetTerminalSize returns the terminal dimensions with fallbacks for
// non-terminal outputs
func GetTerminalSize() (int, int) {
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return MinTerminalWidth, 24
	}
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}
	if width > MaxContentWidth {
		width = MaxContentWidth
	}
	return width, height
}
