package corpus

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRead(t *testing.T) {
	t.Run("keeps only info.json urls", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		input := strings.Join([]string{
			"https://iiif.example.org/iiif/a/info.json",
			"https://iiif.example.org/iiif/b/full/full/0/default.jpg",
			"https://iiif.example.org/iiif/c/info.json",
			"not a url",
			"",
		}, "\n")

		c, err := Read(strings.NewReader(input), zap.New(core))
		require.NoError(t, err)

		assert.Equal(t, []string{
			"https://iiif.example.org/iiif/a/info.json",
			"https://iiif.example.org/iiif/c/info.json",
		}, c.Entries())
		assert.Equal(t, 2, logs.FilterMessageSnippet("skipping url").Len())
		for _, e := range c.Entries() {
			assert.True(t, strings.HasSuffix(e, DescriptorSuffix))
		}
	})

	t.Run("strips windows line endings", func(t *testing.T) {
		c, err := Read(strings.NewReader("http://h/x/info.json\r\nhttp://h/y/info.json\r\n"), nil)
		require.NoError(t, err)
		assert.Equal(t, 2, c.Len())
		assert.Equal(t, "http://h/x/info.json", c.At(0))
	})

	t.Run("empty input is fatal", func(t *testing.T) {
		_, err := Read(strings.NewReader(""), nil)
		assert.ErrorIs(t, err, ErrEmpty)
	})

	t.Run("all invalid input is fatal", func(t *testing.T) {
		_, err := Read(strings.NewReader("http://h/x/default.jpg\nhttp://h/info.jsonx\n"), nil)
		assert.ErrorIs(t, err, ErrEmpty)
	})
}

func TestLoad(t *testing.T) {
	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "urls.txt")
		require.NoError(t, os.WriteFile(path, []byte("http://h/img1/info.json\n"), 0644))

		c, err := Load(path, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.txt"), zap.NewNop())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrEmpty)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, "http://h/iiif/2/abc", Identifier("http://h/iiif/2/abc/info.json"))
}

func TestRandom(t *testing.T) {
	c, err := New("http://h/a/info.json", "http://h/b/info.json", "http://h/c/jpg")
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	rng := rand.New(rand.NewSource(7))
	seen := map[string]bool{}
	for range 200 {
		seen[c.RandomIdentifier(rng)] = true
	}
	assert.Equal(t, map[string]bool{"http://h/a": true, "http://h/b": true}, seen)
}
