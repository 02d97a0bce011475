package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"iiifload/internal/outcome"
	"iiifload/internal/runner"
	"iiifload/internal/tui/components"
	"iiifload/internal/tui/styles"
)

// Target describes when a run ends. Zero fields are unbounded.
type Target struct {
	Duration    time.Duration
	MaxRequests uint64
}

// Percent returns how far snap is towards t, or -1 when the run has no bound.
func (t Target) Percent(snap runner.StatsSnapshot) float64 {
	pct := -1.0
	if t.Duration > 0 {
		pct = max(pct, float64(snap.Elapsed)/float64(t.Duration))
	}
	if t.MaxRequests > 0 {
		pct = max(pct, float64(snap.Requests)/float64(t.MaxRequests))
	}
	return min(pct, 1.0)
}

type Model struct {
	Stats    runner.StatsSnapshot
	Target   Target
	Progress progress.Model

	RpsLine     components.Sparkline
	LatencyLine components.Sparkline

	LastUpdate time.Time
	LastReqs   uint64

	Width  int
	Height int
}

func NewModel(target Target) Model {
	slRps := components.NewSparkline(
		40,
		"Throughput",
		"req/s",
		styles.Active,
	)

	slLat := components.NewSparkline(
		40,
		"Latency P90",
		"ms",
		styles.Warn,
	)

	return Model{
		Target:      target,
		Progress:    progress.New(progress.WithDefaultGradient()),
		RpsLine:     slRps,
		LatencyLine: slLat,
		LastUpdate:  time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runner.StatsSnapshot:
		now := time.Now()
		dt := now.Sub(m.LastUpdate).Seconds()
		if dt < 0.01 {
			dt = 0.01
		}

		// 1. Throughput since the previous snapshot
		var delta uint64
		if msg.Requests > m.LastReqs {
			delta = msg.Requests - m.LastReqs
		}
		m.RpsLine.Add(float64(delta) / dt)
		m.LatencyLine.Add(msg.P90ServiceMs)

		// 2. Update State
		m.Stats = msg
		m.LastReqs = msg.Requests
		m.LastUpdate = now

		// 3. Update Progress
		if pct := m.Target.Percent(msg); pct >= 0 {
			return m, m.Progress.SetPercent(pct)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = max(msg.Width-4, 10)

		half := max((msg.Width/2)-6, 10)
		m.RpsLine.Width = half
		m.LatencyLine.Width = half
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m Model) count(o outcome.Outcome) uint64 {
	switch o {
	case outcome.Success:
		return m.Stats.Success
	case outcome.Slow:
		return m.Stats.Slow
	case outcome.VerySlow:
		return m.Stats.VerySlow
	case outcome.Failure:
		return m.Stats.Fail
	}
	return 0
}

func (m Model) View() string {
	s := strings.Builder{}

	// Top Grid: Metrics
	reqs := m.Stats.Requests
	errRate := 0.0
	if reqs > 0 {
		errRate = (float64(m.Stats.Fail) / float64(reqs)) * 100
	}

	var errColor lipgloss.Style
	if errRate > 5.0 {
		errColor = styles.Error
	} else if errRate > 1.0 {
		errColor = styles.Warn
	} else {
		errColor = styles.Active
	}

	boxes := []string{
		styles.Box.Render(fmt.Sprintf("REQ:   %d\nUSERS: %d\nINF:   %d", reqs, m.Stats.Users, m.Stats.Inflight)),
	}
	for _, o := range outcome.All {
		boxes = append(boxes, styles.Box.Render(
			styles.ForOutcome(o).Render(fmt.Sprintf("%s\n%d", strings.ToUpper(o.String()), m.count(o))),
		))
	}
	boxes = append(boxes, styles.Box.Render(errColor.Render(
		fmt.Sprintf("ERR: %.2f%%\nKB:  %d", errRate, m.Stats.Bytes/1024),
	)))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	s.WriteString("\n\n")

	// Sparklines
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.RpsLine.View()),
		styles.Box.Render(m.LatencyLine.View()),
	))
	s.WriteString("\n\n")

	// Detailed Latency
	latencies := fmt.Sprintf(
		"P50: %.2f ms  |  P90: %.2f ms  |  P99: %.2f ms  |  Max: %d ms",
		m.Stats.P50ServiceMs,
		m.Stats.P90ServiceMs,
		m.Stats.P99ServiceMs,
		m.Stats.MaxServiceMs,
	)
	if m.Width > 8 {
		s.WriteString(styles.Box.Width(m.Width - 4).Render(latencies))
	} else {
		s.WriteString(styles.Box.Render(latencies))
	}
	s.WriteString("\n\n")

	// Progress
	if m.Target.Percent(m.Stats) >= 0 {
		s.WriteString(m.Progress.View())
	} else {
		s.WriteString(styles.Subtle.Render(fmt.Sprintf("Elapsed %s, running until interrupted", m.Stats.Elapsed.Round(time.Second))))
	}

	return s.String()
}
