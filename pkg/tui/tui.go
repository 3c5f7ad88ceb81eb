// Package tui provides a terminal scale explorer for tunecraft
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tunecraft/pkg/pitch"
	"tunecraft/pkg/scale"
	"tunecraft/pkg/tuning"
)

var (
	// Primary colors
	accentGreen = lipgloss.Color("#39FF14")
	amberYellow = lipgloss.Color("#FFFF00")
	silverGray  = lipgloss.Color("#C0C0C0")
	darkGray    = lipgloss.Color("#333333")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentGreen).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	menuStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			Foreground(accentGreen).
			Bold(true).
			PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().
			Foreground(amberYellow).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)
)

// State represents the current TUI state
type State int

const (
	StateMenu State = iota
	StateInput
	StateTable
)

// MenuItem represents a scale-construction choice
type MenuItem struct {
	Title       string
	Description string
	Prompt      string
	Build       func(input string) (*scale.Scale, error)
}

var menuItems = []MenuItem{
	{
		Title:       "Equal temperament",
		Description: "Divide a period into equal steps, e.g. 1:31:2 or 100.0c",
		Prompt:      "Step size",
		Build: func(input string) (*scale.Scale, error) {
			step, err := pitch.ParseRatio(input)
			if err != nil {
				return nil, err
			}
			return scale.Equal(step)
		},
	},
	{
		Title:       "Rank-2 temperament",
		Description: "Stack a generator, e.g. '3/2 6 1' for six fifths up and one down",
		Prompt:      "Generator, positive and negative generations",
		Build:       buildRank2,
	},
	{
		Title:       "Harmonic series",
		Description: "A segment of the harmonic series, e.g. '8'",
		Prompt:      "Lowest harmonic",
		Build:       buildHarmonics,
	},
	{
		Title:       "Custom scale",
		Description: "Explicit items, e.g. '9/8 5/4 4/3 3/2 2'",
		Prompt:      "Scale items",
		Build:       buildCustom,
	},
	{Title: "Exit", Description: "Exit the explorer"},
}

// Model represents the TUI model
type Model struct {
	state     State
	menuIndex int
	input     textinput.Model
	sc        *scale.Scale
	rows      []string
	offset    int
	err       error
	width     int
	height    int
}

// New creates a new TUI model
func New() Model {
	ti := textinput.New()
	ti.Placeholder = "1:12:2"
	ti.CharLimit = 64
	ti.Width = 40

	return Model{
		state: StateMenu,
		input: ti,
	}
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case StateMenu:
			return m.updateMenu(msg)
		case StateInput:
			return m.updateInput(msg)
		case StateTable:
			return m.updateTable(msg)
		}
	}
	return m, nil
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.menuIndex > 0 {
			m.menuIndex--
		}
	case "down", "j":
		if m.menuIndex < len(menuItems)-1 {
			m.menuIndex++
		}
	case "enter":
		if m.menuIndex == len(menuItems)-1 {
			return m, tea.Quit
		}
		m.state = StateInput
		m.err = nil
		m.input.SetValue("")
		m.input.Focus()
		return m, textinput.Blink
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.state = StateMenu
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	case "enter":
		sc, err := menuItems[m.menuIndex].Build(strings.TrimSpace(m.input.Value()))
		if err != nil {
			m.err = err
			return m, nil
		}
		rows, err := pitchRows(sc)
		if err != nil {
			m.err = err
			return m, nil
		}
		m.sc = sc
		m.rows = rows
		m.offset = 0
		m.err = nil
		m.state = StateTable
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateTable(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.offset > 0 {
			m.offset--
		}
	case "down", "j":
		if m.offset < len(m.rows)-1 {
			m.offset++
		}
	case "esc", "enter":
		m.state = StateMenu
		return m, nil
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

// pitchRows renders the pitch table of a scale anchored at standard
// concert pitch.
func pitchRows(sc *scale.Scale) ([]string, error) {
	t, err := tuning.New(sc, tuning.Linear(pitch.A4Key, pitch.FromHz(pitch.A4Hz), pitch.A4Key))
	if err != nil {
		return nil, err
	}
	rows := make([]string, 0, 128)
	for key := 0; key < 128; key++ {
		freq, err := t.FrequencyOf(key)
		if err != nil {
			continue
		}
		interval, err := pitch.RatioBetween(pitch.FromHz(pitch.A4Hz), freq)
		if err != nil {
			return nil, err
		}
		approx, err := pitch.NearestFractionOfRatio(interval, 11, 0)
		if err != nil {
			return nil, err
		}
		rows = append(rows, fmt.Sprintf("%3d | %9.3f Hz | %s", key, freq.Hz(), approx))
	}
	return rows, nil
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("tunecraft scale explorer"))
	s.WriteString("\n")

	switch m.state {
	case StateMenu:
		s.WriteString(m.viewMenu())
	case StateInput:
		s.WriteString(m.viewInput())
	case StateTable:
		s.WriteString(m.viewTable())
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/↓: navigate • enter: select • esc: back • q: quit"))
	return s.String()
}

func (m Model) viewMenu() string {
	var s strings.Builder
	for i, item := range menuItems {
		line := fmt.Sprintf("%s — %s", item.Title, item.Description)
		if i == m.menuIndex {
			s.WriteString(selectedStyle.Render("> " + line))
		} else {
			s.WriteString(menuStyle.Render("  " + line))
		}
		s.WriteString("\n")
	}
	return s.String()
}

func (m Model) viewInput() string {
	var s strings.Builder
	s.WriteString(statusStyle.Render(menuItems[m.menuIndex].Prompt + ":"))
	s.WriteString("\n")
	s.WriteString(m.input.View())
	s.WriteString("\n")
	if m.err != nil {
		s.WriteString(errorStyle.Render(m.err.Error()))
		s.WriteString("\n")
	}
	return s.String()
}

func (m Model) viewTable() string {
	var s strings.Builder
	s.WriteString(statusStyle.Render(m.sc.Name()))
	s.WriteString("\n")

	visible := m.height - 8
	if visible < 4 {
		visible = 16
	}
	end := m.offset + visible
	if end > len(m.rows) {
		end = len(m.rows)
	}
	for _, row := range m.rows[m.offset:end] {
		s.WriteString(menuStyle.Render(row))
		s.WriteString("\n")
	}
	return s.String()
}

func buildRank2(input string) (*scale.Scale, error) {
	fields := strings.Fields(input)
	if len(fields) < 2 {
		return nil, fmt.Errorf("need a generator and a generation count, e.g. '3/2 6 1'")
	}
	generator, err := pitch.ParseRatio(fields[0])
	if err != nil {
		return nil, err
	}
	var numPos, numNeg uint16
	if _, err := fmt.Sscanf(fields[1], "%d", &numPos); err != nil {
		return nil, fmt.Errorf("invalid generation count %q", fields[1])
	}
	if len(fields) > 2 {
		if _, err := fmt.Sscanf(fields[2], "%d", &numNeg); err != nil {
			return nil, fmt.Errorf("invalid generation count %q", fields[2])
		}
	}
	return scale.Rank2(generator, numPos, numNeg, pitch.Octave)
}

func buildHarmonics(input string) (*scale.Scale, error) {
	var lowest uint32
	if _, err := fmt.Sscanf(strings.TrimSpace(input), "%d", &lowest); err != nil {
		return nil, fmt.Errorf("invalid harmonic %q", input)
	}
	return scale.Harmonics(lowest, 0, false)
}

func buildCustom(input string) (*scale.Scale, error) {
	builder := scale.NewBuilder("Custom scale")
	for _, field := range strings.Fields(input) {
		r, err := pitch.ParseRatio(field)
		if err != nil {
			return nil, err
		}
		builder.PushRatio(r)
	}
	return builder.Build()
}

// Run starts the TUI
func Run() error {
	p := tea.NewProgram(New(), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
