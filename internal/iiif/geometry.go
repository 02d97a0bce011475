package iiif

import (
	"fmt"
	"sort"
	"strconv"
)

const (
	// RegionFull requests the whole image.
	RegionFull = "full"
	// SizeFull requests the native size. Rendered as "max" for IIIF 3 servers.
	SizeFull = "full"
)

// Request is one region/size pair to fetch from an image server.
type Request struct {
	Region string
	Size   string
}

// SizeHint tells URL how to encode the size parameter. Size, when set, is
// used verbatim. Bounded fits Width x Height into the image keeping its
// aspect ratio.
type SizeHint struct {
	Width   int
	Height  int
	Size    string
	Bounded bool
}

// Builder computes viewer style request sequences for a descriptor.
type Builder struct {
	// ZoomOutput is the square viewport every zoom step is fitted into.
	ZoomOutput int
	// MinZoomRegion stops zooming once a region side would drop below it.
	MinZoomRegion int
	// MaxZoomSteps caps the length of a zoom sequence.
	MaxZoomSteps int
}

// DefaultBuilder returns a Builder that mimics a desktop viewer.
func DefaultBuilder() Builder {
	return Builder{
		ZoomOutput:    1024,
		MinZoomRegion: 256,
		MaxZoomSteps:  6,
	}
}

// Region renders a pixel region.
func Region(x, y, w, h int) string {
	return fmt.Sprintf("%d,%d,%d,%d", x, y, w, h)
}

// Path renders a literal image request below base.
func Path(base, region, size, rotation, quality string) string {
	return base + "/" + region + "/" + size + "/" + rotation + "/" + quality + ".jpg"
}

// BoundedFit returns the largest size inside targetWidth x targetHeight with
// the aspect ratio of the image. It never upscales.
func (b Builder) BoundedFit(info *Info, targetWidth, targetHeight int) (int, int) {
	return fit(info.Width, info.Height, targetWidth, targetHeight)
}

func fit(w, h, tw, th int) (int, int) {
	if w <= 0 || h <= 0 {
		return tw, th
	}
	if w <= tw && h <= th {
		return w, h
	}
	if tw*h <= th*w {
		return tw, max(h*tw/w, 1)
	}
	return max(w*th/h, 1), th
}

// URL renders a default quality jpg request for region of info.
func (b Builder) URL(info *Info, region string, hint SizeHint) string {
	return Path(info.ID, region, b.size(info, hint), "0", "default")
}

func (b Builder) size(info *Info, hint SizeHint) string {
	switch {
	case hint.Size != "":
		if hint.Size == SizeFull && info.Version >= 3 {
			return "max"
		}
		return hint.Size
	case hint.Bounded:
		w, h := b.BoundedFit(info, hint.Width, hint.Height)
		return strconv.Itoa(w) + "," + strconv.Itoa(h)
	case hint.Width > 0 && hint.Height > 0:
		return strconv.Itoa(hint.Width) + "," + strconv.Itoa(hint.Height)
	case hint.Width > 0:
		return strconv.Itoa(hint.Width) + ","
	case hint.Height > 0:
		return "," + strconv.Itoa(hint.Height)
	}
	if info.Version >= 3 {
		return "max"
	}
	return SizeFull
}

// ZoomSequence simulates a viewer zooming towards (x, y): the first request
// shows the whole image, each following one halves the viewport centered on
// the point.
func (b Builder) ZoomSequence(info *Info, x, y int) []Request {
	out := b.ZoomOutput
	if out <= 0 {
		out = 1024
	}
	fw, fh := fit(info.Width, info.Height, out, out)
	seq := []Request{{Region: RegionFull, Size: strconv.Itoa(fw) + "," + strconv.Itoa(fh)}}

	w, h := info.Width, info.Height
	for step := 1; step < b.MaxZoomSteps; step++ {
		w, h = w/2, h/2
		if w < b.MinZoomRegion || h < b.MinZoomRegion || w < 1 || h < 1 {
			break
		}
		rx := clamp(x-w/2, 0, info.Width-w)
		ry := clamp(y-h/2, 0, info.Height-h)
		sw, sh := fit(w, h, out, out)
		seq = append(seq, Request{
			Region: Region(rx, ry, w, h),
			Size:   strconv.Itoa(sw) + "," + strconv.Itoa(sh),
		})
	}
	return seq
}

// LevelsWithTiles returns the scale factors of the first tile entry in
// ascending order.
func (b Builder) LevelsWithTiles(info *Info) []int {
	if !info.HasScaleFactors() {
		return nil
	}
	seen := make(map[int]bool)
	var levels []int
	for _, sf := range info.Tiles[0].ScaleFactors {
		if sf > 0 && !seen[sf] {
			seen[sf] = true
			levels = append(levels, sf)
		}
	}
	sort.Ints(levels)
	return levels
}

// TileGrid returns every tile covering the image at scale factor sf, indexed
// by row then column.
func (b Builder) TileGrid(info *Info, sf int) [][]Request {
	if sf <= 0 || len(info.Tiles) == 0 {
		return nil
	}
	tile := info.Tiles[0]
	spanX := tile.Width * sf
	spanY := tile.Height * sf
	if spanX <= 0 || spanY <= 0 {
		return nil
	}

	cols := ceilDiv(info.Width, spanX)
	rows := ceilDiv(info.Height, spanY)
	grid := make([][]Request, rows)
	for r := range rows {
		grid[r] = make([]Request, cols)
		y := r * spanY
		h := min(spanY, info.Height-y)
		for c := range cols {
			x := c * spanX
			w := min(spanX, info.Width-x)
			grid[r][c] = Request{
				Region: Region(x, y, w, h),
				Size:   strconv.Itoa(ceilDiv(w, sf)) + ",",
			}
		}
	}
	return grid
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return max(lo, min(v, hi))
}
