package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rygwdn/CosoriKettleBLE/internal/kettle"
	"github.com/rygwdn/CosoriKettleBLE/internal/protocol"
)

// How long a key-initiated command may take before the monitor reports it
// failed. Covers the legacy choreography's sequential delays plus one ack
// timeout.
const commandTimeout = 5 * time.Second

// How often the monitor re-polls when the kettle is quiet. Off base the
// kettle stops notifying; polling keeps the panel honest.
const pollInterval = 5 * time.Second

// eventMsg wraps a Feed event for the Bubble Tea loop
type eventMsg Event

// commandDoneMsg reports the outcome of a key-initiated command
type commandDoneMsg struct {
	label string
	err   error
}

// pollMsg triggers a background status poll
type pollMsg struct{}

// monitorKeyMap defines the monitor's key bindings
type monitorKeyMap struct {
	Boil     key.Binding
	GreenTea key.Binding
	Oolong   key.Binding
	Coffee   key.Binding
	TempUp   key.Binding
	TempDown key.Binding
	HeatTo   key.Binding
	Stop     key.Binding
	Baby     key.Binding
	Refresh  key.Binding
	Quit     key.Binding
}

// ShortHelp returns keybindings shown in the mini help view
func (k monitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Boil, k.HeatTo, k.Stop, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k monitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Boil, k.GreenTea, k.Oolong, k.Coffee},
		{k.TempUp, k.TempDown, k.HeatTo, k.Baby},
		{k.Stop, k.Refresh, k.Quit},
	}
}

func defaultKeyMap() monitorKeyMap {
	return monitorKeyMap{
		Boil:     key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "boil")),
		GreenTea: key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "green tea")),
		Oolong:   key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "oolong")),
		Coffee:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "coffee")),
		TempUp:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "target up")),
		TempDown: key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "target down")),
		HeatTo:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "heat to target")),
		Stop:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		Baby:     key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "baby formula")),
		Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// Monitor is the live dashboard model for one connected kettle
type Monitor struct {
	kettle *kettle.Kettle
	feed   *Feed

	status   *protocol.StatusPacket
	statusAt time.Time
	targetF  int // °F heated to on enter, adjusted with +/-
	busy     bool
	lastNote string

	width  int
	height int

	spinner spinner.Model
	help    help.Model
	keys    monitorKeyMap
}

// NewMonitor creates the dashboard for a connected kettle. The feed must be
// the one whose Events() were passed into the session options.
func NewMonitor(k *kettle.Kettle, feed *Feed) Monitor {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	width, height := GetTerminalSize()

	return Monitor{
		kettle:  k,
		feed:    feed,
		targetF: 200,
		width:   width,
		height:  height,
		spinner: s,
		help:    help.New(),
		keys:    defaultKeyMap(),
	}
}

// Init implements tea.Model
func (m Monitor) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent(), m.schedulePoll())
}

// waitForEvent blocks on the feed and re-arms after every delivery
func (m Monitor) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return eventMsg(m.feed.Next())
	}
}

func (m Monitor) schedulePoll() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return pollMsg{}
	})
}

// issue runs a session command off the UI goroutine and reports its outcome
func (m Monitor) issue(label string, run func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return commandDoneMsg{label: label, err: run(ctx)}
	}
}

// Update implements tea.Model
func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		return m.handleEvent(Event(msg))

	case commandDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.lastNote = fmt.Sprintf("✗ %s: %s", msg.label, kettle.GetShortErrorMessage(msg.err))
		} else {
			m.lastNote = "✓ " + msg.label
		}
		return m, nil

	case pollMsg:
		k := m.kettle
		poll := func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()
			// Background poll; a quiet failure just means no fresh status
			_ = k.Session().RequestStatus(ctx)
			return nil
		}
		return m, tea.Batch(poll, m.schedulePoll())

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Monitor) handleEvent(ev Event) (tea.Model, tea.Cmd) {
	switch ev.Kind {
	case EventStatus:
		m.status = ev.Status
		m.statusAt = time.Now()
	case EventHeatingDone:
		m.lastNote = "✓ heating complete"
	case EventHoldDone:
		m.lastNote = "✓ keep-warm hold finished"
	case EventFault:
		m.lastNote = fmt.Sprintf("✗ device fault (code %d)", ev.Code)
	}
	return m, m.waitForEvent()
}

func (m Monitor) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	// Target adjustment is local; everything below issues a command
	switch {
	case key.Matches(msg, m.keys.TempUp):
		m.targetF = protocol.ClampTargetTemp(m.targetF + 1)
		return m, nil
	case key.Matches(msg, m.keys.TempDown):
		m.targetF = protocol.ClampTargetTemp(m.targetF - 1)
		return m, nil
	}

	if m.busy {
		return m, nil
	}

	var label string
	var run func(context.Context) error

	switch {
	case key.Matches(msg, m.keys.Boil):
		label, run = "boil", func(ctx context.Context) error {
			return m.kettle.Boil(ctx, 0)
		}
	case key.Matches(msg, m.keys.GreenTea):
		label, run = "green tea", func(ctx context.Context) error {
			return m.kettle.HeatGreenTea(ctx, 0)
		}
	case key.Matches(msg, m.keys.Oolong):
		label, run = "oolong", func(ctx context.Context) error {
			return m.kettle.HeatOolong(ctx, 0)
		}
	case key.Matches(msg, m.keys.Coffee):
		label, run = "coffee", func(ctx context.Context) error {
			return m.kettle.HeatCoffee(ctx, 0)
		}
	case key.Matches(msg, m.keys.HeatTo):
		target := m.targetF
		label, run = fmt.Sprintf("heat to %d°F", target), func(ctx context.Context) error {
			return m.kettle.HeatToTemperature(ctx, target)
		}
	case key.Matches(msg, m.keys.Stop):
		label, run = "stop", func(ctx context.Context) error {
			return m.kettle.Stop(ctx)
		}
	case key.Matches(msg, m.keys.Baby):
		enable := m.status == nil || !m.status.BabyFormula
		verb := "baby formula on"
		if !enable {
			verb = "baby formula off"
		}
		label, run = verb, func(ctx context.Context) error {
			return m.kettle.SetBabyFormulaMode(ctx, enable)
		}
	case key.Matches(msg, m.keys.Refresh):
		label, run = "status refresh", func(ctx context.Context) error {
			return m.kettle.Session().RequestStatus(ctx)
		}
	default:
		return m, nil
	}

	m.busy = true
	m.lastNote = label + "…"
	return m, m.issue(label, run)
}

// View implements tea.Model
func (m Monitor) View() string {
	info := m.kettle.Info()

	title := TitleStyle.Render("KETTLE MONITOR")
	device := DeviceStyle.Render(fmt.Sprintf("%s  %s  %s protocol",
		orUnknown(info.Name), orUnknown(info.Address), m.kettle.Version()))

	var panel string
	if m.status == nil {
		panel = PanelStyle.Render(fmt.Sprintf("%s waiting for first status…", m.spinner.View()))
	} else {
		panel = PanelStyle.Render(m.renderStatus())
	}

	note := ""
	if m.lastNote != "" {
		note = EventStyle.Render(m.lastNote)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		device,
		"",
		panel,
		"",
		note,
		m.help.View(m.keys),
	)
}

func (m Monitor) renderStatus() string {
	s := m.status

	temp := TempStyle.Render(fmt.Sprintf("%d°F", s.TemperatureF))
	stage := IdleStyle.Render(s.Stage.String())
	if s.Heating {
		stage = HeatingStyle.Render(s.Stage.String())
	}

	lines := []string{
		LabelStyle.Render("Temperature") + temp + "  " + stage,
		LabelStyle.Render("Setpoint") + ValueStyle.Render(fmt.Sprintf("%d°F", s.SetpointF)),
		LabelStyle.Render("Mode") + ValueStyle.Render(s.Mode.String()),
		LabelStyle.Render("Target") + ValueStyle.Render(fmt.Sprintf("%d°F (+/- to adjust)", m.targetF)),
	}

	if s.Extended {
		base := "off base"
		if s.OnBase {
			base = "on base"
		}
		lines = append(lines, LabelStyle.Render("Base")+ValueStyle.Render(base))
		if s.HoldRemaining > 0 {
			hold := time.Duration(s.HoldRemaining) * time.Second
			lines = append(lines, LabelStyle.Render("Hold left")+ValueStyle.Render(hold.String()))
		}
		if s.BabyFormula {
			lines = append(lines, LabelStyle.Render("Baby formula")+ValueStyle.Render("on"))
		}
		if s.ErrorCode != 0 {
			lines = append(lines, ErrorStyle.Render(fmt.Sprintf("DEVICE FAULT: code %d", s.ErrorCode)))
		}
	}

	lines = append(lines, "",
		EventStyle.Render("updated "+m.statusAt.Format("15:04:05")))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func orUnknown(s string) string {
	if s == "" {
		return "(unknown)"
	}
	return s
}

// Run connects the monitor to the terminal and blocks until quit
func Run(k *kettle.Kettle, feed *Feed) error {
	p := tea.NewProgram(NewMonitor(k, feed), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
