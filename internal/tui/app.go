// Package tui provides the terminal playback viewer.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/playback"
)

// tickBuffer bounds the ticks queued between the scheduler and the UI.
// Ticks beyond it are dropped; the view reads the scheduler directly.
const tickBuffer = 64

// App plays a timeline in the terminal.
type App struct {
	sched    *playback.Scheduler
	timeline []model.TimelineEvent
	title    string
}

// NewApp creates a viewer for timeline driven by sched.
func NewApp(sched *playback.Scheduler, timeline []model.TimelineEvent, title string) *App {
	return &App{
		sched:    sched,
		timeline: timeline,
		title:    title,
	}
}

// Run starts playback and blocks until the user quits.
func (a *App) Run() error {
	ticks := make(chan playback.Tick, tickBuffer)
	unsubscribe := a.sched.Subscribe(func(t playback.Tick) {
		select {
		case ticks <- t:
		default:
		}
	})
	defer unsubscribe()

	a.sched.Start(a.timeline, 0)
	defer a.sched.Stop()

	p := tea.NewProgram(newModel(a.sched, a.title, ticks), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// appModel is the bubbletea model.
type appModel struct {
	sched     *playback.Scheduler
	ticks     <-chan playback.Tick
	dashboard *Dashboard
	spinner   spinner.Model
	width     int
	height    int
}

func newModel(sched *playback.Scheduler, title string, ticks <-chan playback.Tick) appModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(Primary)

	p := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())

	return appModel{
		sched:     sched,
		ticks:     ticks,
		spinner:   s,
		dashboard: NewDashboard(title, p),
	}
}

// Init initializes the model.
func (m appModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForTick(m.ticks),
	)
}

// Update handles messages.
func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ", "space", "p":
			m.togglePause()
		case "s":
			m.sched.Stop()
		case "r":
			m.sched.Restart()
		}
		m.refresh()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.dashboard.SetSize(msg.Width, msg.Height)

	case tickMsg:
		m.refresh()
		return m, waitForTick(m.ticks)

	case spinner.TickMsg:
		m.refresh()
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the UI.
func (m appModel) View() string {
	return m.dashboard.View(m.spinner.View())
}

func (m appModel) togglePause() {
	switch m.sched.State() {
	case playback.StatePlaying:
		m.sched.Pause()
	case playback.StatePaused:
		m.sched.Resume()
	}
}

func (m appModel) refresh() {
	m.dashboard.Update(m.sched.Snapshot(), m.sched.Window())
}

// Messages
type tickMsg playback.Tick

func waitForTick(ticks <-chan playback.Tick) tea.Cmd {
	return func() tea.Msg {
		select {
		case t := <-ticks:
			return tickMsg(t)
		case <-time.After(time.Second):
			// Wake periodically so a quiet scheduler still re-renders.
			return tickMsg{}
		}
	}
}
