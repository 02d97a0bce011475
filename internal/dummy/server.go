// Package dummy serves synthetic image descriptors and image responses with
// configurable latency, for trying the load generator without a real image
// server.
package dummy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Latency profiles
const (
	ProfileFast   = "fast"
	ProfileMedium = "medium"
	ProfileSlow   = "slow"
	ProfileSpike  = "spike"
	ProfileError  = "error"
)

// Profiles lists the profiles images are spread over, in order.
var Profiles = []string{ProfileFast, ProfileMedium, ProfileSlow, ProfileSpike, ProfileError}

// PathPrefix is where the images are mounted.
const PathPrefix = "/iiif/"

type ServerConfig struct {
	Port   int
	Images int
	// Profiles limits the profiles in use. Empty means all.
	Profiles []string
}

// Image is one synthetic picture.
type Image struct {
	Name    string
	Profile string
	Version int
	Width   int
	Height  int
	Tiled   bool
	Sized   bool
}

// Path returns the identifier path of the image below the server root.
func (img Image) Path() string {
	return PathPrefix + img.Profile + "/" + img.Name
}

// Catalog builds a deterministic set of n images spread over profiles.
func Catalog(n int, profiles []string) []Image {
	if len(profiles) == 0 {
		profiles = Profiles
	}
	images := make([]Image, 0, n)
	for i := range n {
		images = append(images, Image{
			Name:    fmt.Sprintf("img%03d", i),
			Profile: profiles[i%len(profiles)],
			Version: 2 + i%2,
			Width:   1000 + (i*733)%5000,
			Height:  800 + (i*517)%4000,
			Tiled:   i%3 != 0,
			Sized:   i%4 != 0,
		})
	}
	return images
}

// URLList returns the descriptor URL of every image below base.
func URLList(base string, images []Image) []string {
	base = strings.TrimRight(base, "/")
	out := make([]string, 0, len(images))
	for _, img := range images {
		out = append(out, base+img.Path()+"/info.json")
	}
	return out
}

// WriteURLList writes the descriptor URLs to path, one per line.
func WriteURLList(path, base string, images []Image) error {
	data := strings.Join(URLList(base, images), "\n") + "\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Errorf("dummy: write url list: %w", err)
	}
	return nil
}

// Handler serves the images.
func Handler(images []Image) http.Handler {
	byPath := make(map[string]Image, len(images))
	for _, img := range images {
		byPath[img.Path()] = img
	}

	mux := http.NewServeMux()
	mux.HandleFunc(PathPrefix, func(w http.ResponseWriter, r *http.Request) {
		// /iiif/{profile}/{name}/...
		parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, PathPrefix), "/", 3)
		if len(parts) < 3 {
			http.NotFound(w, r)
			return
		}
		img, ok := byPath[PathPrefix+parts[0]+"/"+parts[1]]
		if !ok {
			http.NotFound(w, r)
			return
		}

		if status := delay(r.Context(), img.Profile); status != http.StatusOK {
			http.Error(w, http.StatusText(status), status)
			return
		}

		if parts[2] == "info.json" {
			serveInfo(w, r, img)
			return
		}
		serveImage(w, parts[2])
	})
	return mux
}

// delay sleeps according to profile and returns the status to answer with.
func delay(ctx context.Context, profile string) int {
	var d time.Duration
	status := http.StatusOK

	switch profile {
	case ProfileFast:
		// 10-50ms
		d = time.Duration(rand.Intn(40)+10) * time.Millisecond
	case ProfileMedium:
		// 100-300ms
		d = time.Duration(rand.Intn(200)+100) * time.Millisecond
	case ProfileSlow:
		// 1s-2s, every request lands in the slow class
		d = time.Duration(rand.Intn(1000)+1000) * time.Millisecond
	case ProfileSpike:
		// Usually fast, randomly very slow
		if rand.Float32() < 0.05 {
			d = 2 * time.Second
		} else {
			d = 20 * time.Millisecond
		}
	case ProfileError:
		d = 20 * time.Millisecond
		rnd := rand.Float32()
		if rnd < 0.2 {
			status = http.StatusInternalServerError
		} else if rnd < 0.4 {
			status = http.StatusTooManyRequests
		}
	}

	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
	return status
}

type tileDoc struct {
	Width        int   `json:"width"`
	Height       int   `json:"height,omitempty"`
	ScaleFactors []int `json:"scaleFactors"`
}

type sizeDoc struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func serveInfo(w http.ResponseWriter, r *http.Request, img Image) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	id := scheme + "://" + r.Host + img.Path()

	doc := map[string]any{
		"width":    img.Width,
		"height":   img.Height,
		"protocol": "http://iiif.io/api/image",
	}
	if img.Version >= 3 {
		doc["@context"] = "http://iiif.io/api/image/3/context.json"
		doc["id"] = id
		doc["type"] = "ImageService3"
		doc["profile"] = "level2"
	} else {
		doc["@context"] = "http://iiif.io/api/image/2/context.json"
		doc["@id"] = id
		doc["profile"] = []string{"http://iiif.io/api/image/2/level2.json"}
	}

	if img.Sized {
		var sizes []sizeDoc
		for sf := 32; sf >= 4; sf /= 2 {
			sizes = append(sizes, sizeDoc{Width: ceilDiv(img.Width, sf), Height: ceilDiv(img.Height, sf)})
		}
		doc["sizes"] = sizes
	}
	if img.Tiled {
		doc["tiles"] = []tileDoc{{Width: 512, ScaleFactors: []int{1, 2, 4, 8, 16}}}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_ = json.NewEncoder(w).Encode(doc)
}

// serveImage answers {region}/{size}/{rotation}/{quality}.{format} with a
// body whose length follows the requested size.
func serveImage(w http.ResponseWriter, params string) {
	segs := strings.Split(params, "/")
	if len(segs) != 4 || !strings.Contains(segs[3], ".") {
		http.Error(w, "expected {region}/{size}/{rotation}/{quality}.{format}", http.StatusBadRequest)
		return
	}

	n := 2048
	if wh := strings.TrimPrefix(segs[1], "!"); strings.Contains(wh, ",") {
		ws, _, _ := strings.Cut(wh, ",")
		if v, err := strconv.Atoi(ws); err == nil && v > 0 {
			n = min(v*8, 1<<20)
		}
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(make([]byte, n))
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Run serves images on cfg.Port until ctx is done.
func Run(ctx context.Context, cfg ServerConfig, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	images := Catalog(cfg.Images, cfg.Profiles)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           Handler(images),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("dummy server running",
		zap.String("addr", "http://localhost"+addr),
		zap.Int("images", len(images)),
		zap.Strings("profiles", profilesOf(cfg)),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dummy: %w", err)
	}
}

func profilesOf(cfg ServerConfig) []string {
	if len(cfg.Profiles) == 0 {
		return Profiles
	}
	return cfg.Profiles
}
