package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iiifload/internal/corpus"
	"iiifload/internal/iiif"
	"iiifload/internal/outcome"
	"iiifload/internal/runner"
	"iiifload/internal/stats"
)

func newRunner(t *testing.T) *runner.Runner {
	t.Helper()
	c, err := corpus.New("http://localhost/iiif/a/info.json")
	require.NoError(t, err)
	st := stats.NewStats()
	r, err := runner.NewRunner(runner.Config{Users: 2, Duration: time.Minute}, runner.Deps{
		Corpus:   c,
		Catalog:  runner.DefaultCatalog(),
		Geometry: iiif.DefaultBuilder(),
		Recorder: outcome.NewRecorder(nil, nil, st),
		Stats:    st,
	}, make(runner.StatsUpdateChan, 1))
	require.NoError(t, err)
	return r
}

func TestModelQuitCancelsRun(t *testing.T) {
	cancelled := false
	m := NewModel(newRunner(t), []string{"halfScale"}, make(chan struct{}), func() { cancelled = true })

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, cancelled)
	assert.True(t, next.(Model).Quitting)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModelQuitsWhenRunEnds(t *testing.T) {
	m := NewModel(newRunner(t), nil, make(chan struct{}), nil)

	next, cmd := m.Update(runDoneMsg{})
	require.NotNil(t, cmd)
	assert.True(t, next.(Model).Finished)
	assert.Equal(t, "Run finished.\n", next.View())
}

func TestModelRendersSnapshots(t *testing.T) {
	r := newRunner(t)
	m := NewModel(r, []string{"grayScale", "halfScale"}, make(chan struct{}), nil)

	next, cmd := m.Update(StatsMsg{Requests: 12, Success: 12, Users: 2})
	assert.NotNil(t, cmd)

	view := next.View()
	assert.Contains(t, view, r.ID)
	assert.Contains(t, view, "grayScale, halfScale")
	assert.Contains(t, view, "REQ:   12")
}

func TestWaitForDone(t *testing.T) {
	done := make(chan struct{})
	close(done)
	assert.Equal(t, runDoneMsg{}, waitForDone(done)())
}
