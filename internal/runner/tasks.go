package runner

import (
	"context"
	"strconv"
	"strings"

	"iiifload/internal/corpus"
	"iiifload/internal/iiif"
	"iiifload/internal/scheduler"
)

// TaskFunc performs one task invocation for a simulated client.
type TaskFunc func(ctx context.Context, c *client)

// Task names
const (
	TaskMiradorThumbnail   = "getMiradorThumbnail"
	TaskUVThumbnail        = "getUVThumbnail"
	TaskThumbnailPanel     = "getThumbnailPanel"
	TaskZoomToPoint        = "zoomToPoint"
	TaskVirtualReading     = "virtualReading"
	TaskCustomRegion       = "customRegion"
	TaskFullImageSized     = "fullImageSized"
	TaskFullImage          = "fullImage"
	TaskHalfScale          = "halfScale"
	TaskGrayScale          = "grayScale"
	TaskBitonalQuality     = "bitonalQuality"
	TaskMirroringFull      = "mirroringFull"
	TaskRotationRandomSize = "rotationRandomSize"
)

// DefaultEntries lists every task with its default weight.
func DefaultEntries() []scheduler.Entry[TaskFunc] {
	return []scheduler.Entry[TaskFunc]{
		{Name: TaskMiradorThumbnail, Weight: 6, Value: getMiradorThumbnail},
		{Name: TaskUVThumbnail, Weight: 6, Value: getUVThumbnail},
		{Name: TaskThumbnailPanel, Weight: 6, Value: getThumbnailPanel},
		{Name: TaskZoomToPoint, Weight: 3, Value: zoomToPoint},
		{Name: TaskVirtualReading, Weight: 2, Value: virtualReading},
		{Name: TaskCustomRegion, Weight: 1, Value: customRegion},
		{Name: TaskFullImageSized, Weight: 5, Value: fullImageSized},
		{Name: TaskFullImage, Weight: 4, Value: fullImage},
		{Name: TaskHalfScale, Weight: 7, Value: halfScale},
		{Name: TaskGrayScale, Weight: 8, Value: grayScale},
		{Name: TaskBitonalQuality, Weight: 1, Value: bitonalQuality},
		{Name: TaskMirroringFull, Weight: 1, Value: mirroringFull},
		{Name: TaskRotationRandomSize, Weight: 1, Value: rotationRandomSize},
	}
}

// DefaultCatalog returns the weighted catalog of every task.
func DefaultCatalog() *scheduler.Catalog[TaskFunc] {
	c, err := scheduler.New(DefaultEntries())
	if err != nil {
		panic(err)
	}
	return c
}

// Template only tasks need nothing but an identifier.

func getMiradorThumbnail(ctx context.Context, c *client) {
	id := c.r.corpus.RandomIdentifier(c.rng)
	c.get(ctx, "Mirador thumbnail", iiif.Path(id, iiif.RegionFull, ",120", "0", "default"))
}

func getUVThumbnail(ctx context.Context, c *client) {
	id := c.r.corpus.RandomIdentifier(c.rng)
	c.get(ctx, "UV thumbnail", iiif.Path(id, iiif.RegionFull, "90,", "0", "default"))
}

func halfScale(ctx context.Context, c *client) {
	id := c.r.corpus.RandomIdentifier(c.rng)
	c.get(ctx, "Full image request at half scale", iiif.Path(id, iiif.RegionFull, "pct:50", "0", "default"))
}

func grayScale(ctx context.Context, c *client) {
	id := c.r.corpus.RandomIdentifier(c.rng)
	c.get(ctx, "Full image gray scale", iiif.Path(id, iiif.RegionFull, iiif.SizeFull, "0", "gray"))
}

func bitonalQuality(ctx context.Context, c *client) {
	id := c.r.corpus.RandomIdentifier(c.rng)
	c.get(ctx, "Full image but bitonal scale", iiif.Path(id, iiif.RegionFull, iiif.SizeFull, "0", "bitonal"))
}

func mirroringFull(ctx context.Context, c *client) {
	id := c.r.corpus.RandomIdentifier(c.rng)
	c.get(ctx, "Full image but mirrored", iiif.Path(id, iiif.RegionFull, iiif.SizeFull, "!0", "default"))
}

// Descriptor driven tasks fetch info.json first and give up when it fails.

const thumbnailPanelSize = 125

func getThumbnailPanel(ctx context.Context, c *client) {
	info, ok := c.fetchInfo(ctx, c.r.corpus.Random(c.rng))
	if !ok {
		return
	}
	url := c.r.geometry.URL(info, iiif.RegionFull, thumbnailPanelHint(info))
	c.get(ctx, "Thumbnail panel thumbnail", url)
}

// thumbnailPanelHint picks the first preset that covers the thumbnail box,
// falling back to a bounded fit.
func thumbnailPanelHint(info *iiif.Info) iiif.SizeHint {
	for _, s := range info.Sizes {
		if s.Width >= thumbnailPanelSize && s.Height >= thumbnailPanelSize {
			return iiif.SizeHint{Width: s.Width, Height: s.Height}
		}
	}
	return iiif.SizeHint{Width: thumbnailPanelSize, Height: thumbnailPanelSize, Bounded: true}
}

func zoomToPoint(ctx context.Context, c *client) {
	info, ok := c.fetchInfo(ctx, c.r.corpus.Random(c.rng))
	if !ok {
		return
	}
	x := c.rng.Intn(info.Width)
	y := c.rng.Intn(info.Height)
	for _, req := range c.r.geometry.ZoomSequence(info, x, y) {
		c.get(ctx, "Zoom to point", c.r.geometry.URL(info, req.Region, iiif.SizeHint{Size: req.Size}))
	}
}

func virtualReading(ctx context.Context, c *client) {
	info, ok := c.fetchInfo(ctx, c.r.corpus.Random(c.rng))
	if !ok {
		return
	}
	c.get(ctx, "Virtual Reading", c.r.geometry.URL(info, iiif.RegionFull, iiif.SizeHint{Width: 90}))

	if !info.HasScaleFactors() {
		return
	}
	levels := c.r.geometry.LevelsWithTiles(info)
	if len(levels) == 0 {
		return
	}
	sf := levels[c.rng.Intn(len(levels))]
	for _, row := range c.r.geometry.TileGrid(info, sf) {
		for _, tile := range row {
			c.get(ctx, "Virtual Reading", c.r.geometry.URL(info, tile.Region, iiif.SizeHint{Size: tile.Size}))
		}
	}
}

const (
	customRegionMin = 200
	customRegionMax = 400
)

func customRegion(ctx context.Context, c *client) {
	info, ok := c.fetchInfo(ctx, c.r.corpus.Random(c.rng))
	if !ok {
		return
	}
	x, y, w, h, ok := pickCustomRegion(info, c.rng.Intn)
	if !ok {
		return
	}
	url := c.r.geometry.URL(info, iiif.Region(x, y, w, h), iiif.SizeHint{Width: w, Height: h})
	c.get(ctx, "Custom region", url)
}

// pickCustomRegion draws a region between 200 and 400 pixels a side that
// lies inside the image. Images smaller than 200 pixels a side are skipped.
func pickCustomRegion(info *iiif.Info, intn func(int) int) (x, y, w, h int, ok bool) {
	if info.Width < customRegionMin || info.Height < customRegionMin {
		return 0, 0, 0, 0, false
	}
	between := func(lo, hi int) int { return lo + intn(hi-lo+1) }

	w = between(customRegionMin, min(customRegionMax, info.Width))
	h = between(customRegionMin, min(customRegionMax, info.Height))
	x = between(0, info.Width-w)
	y = between(0, info.Height-h)
	return x, y, w, h, true
}

var fullImageSizes = []string{",200", "150,", "200,", "400,", "650,", "675,", "800,", "!1024,1024"}

func fullImageSized(ctx context.Context, c *client) {
	entry := c.r.corpus.Random(c.rng)
	info, ok := c.fetchInfo(ctx, entry)
	if !ok {
		return
	}
	size := fullImageSizes[c.rng.Intn(len(fullImageSizes))]
	if !sizeAllowed(size, info) {
		return
	}
	c.get(ctx, "Full image scaled", iiif.Path(corpus.Identifier(entry), iiif.RegionFull, size, "0", "default"))
}

// sizeAllowed reports whether no requested dimension of the size token is
// smaller than the image.
func sizeAllowed(size string, info *iiif.Info) bool {
	w, h, _ := strings.Cut(strings.TrimPrefix(size, "!"), ",")
	if n, err := strconv.Atoi(w); err == nil && n < info.Width {
		return false
	}
	if n, err := strconv.Atoi(h); err == nil && n < info.Height {
		return false
	}
	return true
}

func fullImage(ctx context.Context, c *client) {
	info, ok := c.fetchInfo(ctx, c.r.corpus.Random(c.rng))
	if !ok {
		return
	}
	c.get(ctx, "Full/full image request", c.r.geometry.URL(info, iiif.RegionFull, iiif.SizeHint{Size: iiif.SizeFull}))
}

var rotations = []string{"0", "90", "180", "270"}

func rotationRandomSize(ctx context.Context, c *client) {
	info, ok := c.fetchInfo(ctx, c.r.corpus.Random(c.rng))
	if !ok {
		return
	}
	size := iiif.Size{Width: info.Width, Height: info.Height}
	if len(info.Sizes) > 0 {
		size = info.Sizes[c.rng.Intn(len(info.Sizes))]
	}
	rotation := rotations[c.rng.Intn(len(rotations))]
	wh := strconv.Itoa(size.Width) + "," + strconv.Itoa(size.Height)
	c.get(ctx, "Rotate image", iiif.Path(info.ID, iiif.RegionFull, wh, rotation, "default"))
}
