package dummy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iiifload/internal/corpus"
	"iiifload/internal/iiif"
)

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestCatalog(t *testing.T) {
	images := Catalog(10, nil)
	require.Len(t, images, 10)

	seen := map[string]bool{}
	versions := map[int]bool{}
	for _, img := range images {
		assert.False(t, seen[img.Path()], "duplicate %s", img.Path())
		seen[img.Path()] = true
		versions[img.Version] = true
		assert.Positive(t, img.Width)
		assert.Positive(t, img.Height)
	}
	assert.Equal(t, map[int]bool{2: true, 3: true}, versions)
	assert.Equal(t, ProfileError, images[4].Profile)

	assert.Equal(t, images, Catalog(10, nil))
}

func TestHandlerServesParsableDescriptors(t *testing.T) {
	images := Catalog(6, []string{ProfileFast})
	srv := httptest.NewServer(Handler(images))
	defer srv.Close()

	for _, url := range URLList(srv.URL, images) {
		status, body := get(t, url)
		require.Equal(t, http.StatusOK, status, url)

		info, err := iiif.ParseInfo(body)
		require.NoError(t, err, string(body))
		assert.Equal(t, strings.TrimSuffix(url, "/info.json"), info.ID)
	}

	status, body := get(t, URLList(srv.URL, images[:1])[0])
	require.Equal(t, http.StatusOK, status)
	info, err := iiif.ParseInfo(body)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Version)
	assert.False(t, info.HasScaleFactors())
	assert.Empty(t, info.Sizes)

	status, body = get(t, URLList(srv.URL, images[1:2])[0])
	require.Equal(t, http.StatusOK, status)
	info, err = iiif.ParseInfo(body)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Version)
	assert.True(t, info.HasScaleFactors())
	assert.Equal(t, 512, info.Tiles[0].Height)
	assert.NotEmpty(t, info.Sizes)
}

func TestHandlerImageRequests(t *testing.T) {
	images := Catalog(1, []string{ProfileFast})
	srv := httptest.NewServer(Handler(images))
	defer srv.Close()
	base := srv.URL + images[0].Path()

	status, body := get(t, base+"/full/200,/0/default.jpg")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body, 1600)

	status, _ = get(t, base+"/full/full/0/gray.jpg")
	assert.Equal(t, http.StatusOK, status)

	status, _ = get(t, base+"/full/full/0")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = get(t, srv.URL+"/iiif/fast/missing/info.json")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = get(t, srv.URL+"/iiif/fast")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestErrorProfileFails(t *testing.T) {
	images := Catalog(1, []string{ProfileError})
	srv := httptest.NewServer(Handler(images))
	defer srv.Close()

	failures := 0
	for range 60 {
		status, _ := get(t, srv.URL+images[0].Path()+"/full/90,/0/default.jpg")
		if status != http.StatusOK {
			assert.Contains(t, []int{http.StatusInternalServerError, http.StatusTooManyRequests}, status)
			failures++
		}
	}
	assert.Positive(t, failures)
	assert.Less(t, failures, 60)
}

func TestWriteURLListLoadsAsCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	images := Catalog(7, nil)
	require.NoError(t, WriteURLList(path, "http://localhost:8080/", images))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "http://localhost:8080/iiif/fast/img000/info.json\n"))

	c, err := corpus.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, c.Len())
}

func TestRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, ServerConfig{Port: 0, Images: 2}, nil)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
