package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"iiifload/internal/runner"
	"iiifload/internal/tui/live"
	"iiifload/internal/tui/styles"
)

// StatsMsg carries a snapshot from the runner.
type StatsMsg runner.StatsSnapshot

// runDoneMsg is sent once Runner.Run returned.
type runDoneMsg struct{}

// Model is the live dashboard shown while a run is in progress.
type Model struct {
	Runner  *runner.Runner
	Updates runner.StatsUpdateChan
	Live    live.Model

	Title    string
	Tasks    []string
	Done     <-chan struct{}
	Cancel   context.CancelFunc
	Quitting bool
	Finished bool
}

func NewModel(r *runner.Runner, tasks []string, done <-chan struct{}, cancel context.CancelFunc) Model {
	return Model{
		Runner:  r,
		Updates: r.Updates,
		Live: live.NewModel(live.Target{
			Duration:    r.Cfg.Duration,
			MaxRequests: r.Cfg.MaxRequests,
		}),
		Title:  "IIIF Image API load test",
		Tasks:  tasks,
		Done:   done,
		Cancel: cancel,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForUpdate(m.Updates),
		waitForDone(m.Done),
	)
}

func waitForUpdate(sub runner.StatsUpdateChan) tea.Cmd {
	return func() tea.Msg {
		return StatsMsg(<-sub)
	}
}

func waitForDone(done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-done
		return runDoneMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.Quitting = true
			if m.Cancel != nil {
				m.Cancel()
			}
			return m, tea.Quit
		}
		return m, nil

	case runDoneMsg:
		m.Finished = true
		return m, tea.Quit

	case StatsMsg:
		var cmd tea.Cmd
		m.Live, cmd = m.Live.Update(runner.StatsSnapshot(msg))
		return m, tea.Batch(cmd, waitForUpdate(m.Updates))
	}

	var cmd tea.Cmd
	m.Live, cmd = m.Live.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.Quitting {
		return "Stopping run.\n"
	}
	if m.Finished {
		return "Run finished.\n"
	}

	s := strings.Builder{}

	// Header
	s.WriteString(styles.Title.Render(m.Title))
	s.WriteString("\n")

	cfg := m.Runner.Cfg
	s.WriteString(fmt.Sprintf("Run: %s | Users: %d | Spawn rate: %.1f/s | Think time: %s\n",
		m.Runner.ID, cfg.Users, cfg.SpawnRate, cfg.ThinkTime))
	s.WriteString(styles.Subtle.Render("Tasks: " + strings.Join(m.Tasks, ", ")))
	s.WriteString("\n\n")

	s.WriteString(m.Live.View())
	s.WriteString("\n\n")
	s.WriteString(styles.RenderKey("q", "stop the run"))

	return s.String()
}

// Run shows the dashboard while r runs and returns once the run ended or
// the user quit.
func Run(ctx context.Context, r *runner.Runner, tasks []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	p := tea.NewProgram(NewModel(r, tasks, done, cancel), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()

	cancel()
	<-done
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
