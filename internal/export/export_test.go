package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iiifload/internal/outcome"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func event(elapsed time.Duration, status int, err error) outcome.Event {
	return outcome.Event{
		Task:    "halfScale",
		Name:    "Full image request at half scale",
		Method:  "GET",
		URL:     "http://localhost/iiif/a/full/pct:50/0/default.jpg",
		Client:  "client-1",
		Start:   start,
		Elapsed: elapsed,
		Status:  status,
		Bytes:   512,
		Err:     err,
	}
}

func TestCSVRows(t *testing.T) {
	var buf bytes.Buffer
	c, err := NewCSV(&buf)
	require.NoError(t, err)

	c.Observe(event(120*time.Millisecond, 200, nil), outcome.Success)
	c.Observe(event(30*time.Millisecond, 503, errors.New("HTTP 503 Service Unavailable")), outcome.Failure)
	require.NoError(t, c.Flush())

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])

	assert.Equal(t, "1772366400000", rows[1][0])
	assert.Equal(t, "120", rows[1][1])
	assert.Equal(t, "Full image request at half scale", rows[1][2])
	assert.Equal(t, "OK", rows[1][4])
	assert.Equal(t, "true", rows[1][6])
	assert.Equal(t, "halfScale", rows[1][10])
	assert.Equal(t, "success", rows[1][11])

	assert.Equal(t, "503", rows[2][3])
	assert.Equal(t, "false", rows[2][6])
	assert.Equal(t, "HTTP 503 Service Unavailable", rows[2][7])
}

func TestCreateAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.csv")
	c, err := Create(path)
	require.NoError(t, err)

	c.Observe(event(10*time.Millisecond, 200, nil), outcome.Success)
	require.NoError(t, c.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestCreateBadDir(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "missing", "requests.csv"))
	assert.Error(t, err)
}
