// Package iiif parses IIIF Image API descriptors (info.json) and computes the
// regions, sizes and request URLs that image viewers ask an image server for.
package iiif

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidInfo is returned for descriptors missing a required field.
var ErrInvalidInfo = errors.New("iiif: invalid info.json")

// Size is a preset size advertised in the sizes list.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TileInfo describes one tile pyramid entry.
type TileInfo struct {
	Width        int   `json:"width"`
	Height       int   `json:"height"`
	ScaleFactors []int `json:"scaleFactors"`
}

// Info is a parsed image descriptor. Sizes and Tiles are nil when the
// descriptor does not advertise them or advertises them in an unusable shape.
type Info struct {
	ID      string
	Version int
	Width   int
	Height  int
	Sizes   []Size
	Tiles   []TileInfo
}

type rawInfo struct {
	Context json.RawMessage `json:"@context"`
	AtID    string          `json:"@id"`
	ID      string          `json:"id"`
	Width   *float64        `json:"width"`
	Height  *float64        `json:"height"`
	Sizes   json.RawMessage `json:"sizes"`
	Tiles   json.RawMessage `json:"tiles"`
}

type rawSize struct {
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
}

type rawTile struct {
	Width        *float64  `json:"width"`
	Height       *float64  `json:"height"`
	ScaleFactors []float64 `json:"scaleFactors"`
}

// ParseInfo decodes an info.json body.
func ParseInfo(data []byte) (*Info, error) {
	var raw rawInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInfo, err)
	}

	id := raw.AtID
	if id == "" {
		id = raw.ID
	}
	id = strings.TrimRight(id, "/")
	if id == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidInfo)
	}

	width, ok := positiveInt(raw.Width)
	if !ok {
		return nil, fmt.Errorf("%w: missing or invalid width", ErrInvalidInfo)
	}
	height, ok := positiveInt(raw.Height)
	if !ok {
		return nil, fmt.Errorf("%w: missing or invalid height", ErrInvalidInfo)
	}

	return &Info{
		ID:      id,
		Version: detectVersion(raw.Context),
		Width:   width,
		Height:  height,
		Sizes:   parseSizes(raw.Sizes),
		Tiles:   parseTiles(raw.Tiles),
	}, nil
}

func positiveInt(v *float64) (int, bool) {
	if v == nil || *v < 1 || *v != math.Trunc(*v) {
		return 0, false
	}
	return int(*v), true
}

func detectVersion(ctx json.RawMessage) int {
	if len(ctx) == 0 {
		return 2
	}
	var contexts []string
	var single string
	if err := json.Unmarshal(ctx, &single); err == nil {
		contexts = []string{single}
	} else {
		var many []json.RawMessage
		if err := json.Unmarshal(ctx, &many); err == nil {
			for _, m := range many {
				var s string
				if json.Unmarshal(m, &s) == nil {
					contexts = append(contexts, s)
				}
			}
		}
	}
	for _, c := range contexts {
		if strings.Contains(c, "/image/3/") {
			return 3
		}
	}
	return 2
}

func parseSizes(data json.RawMessage) []Size {
	if len(data) == 0 {
		return nil
	}
	var raw []rawSize
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	var sizes []Size
	for _, s := range raw {
		w, okW := positiveInt(s.Width)
		h, okH := positiveInt(s.Height)
		if okW && okH {
			sizes = append(sizes, Size{Width: w, Height: h})
		}
	}
	return sizes
}

func parseTiles(data json.RawMessage) []TileInfo {
	if len(data) == 0 {
		return nil
	}
	var raw []rawTile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	var tiles []TileInfo
	for _, t := range raw {
		w, ok := positiveInt(t.Width)
		if !ok {
			continue
		}
		h, ok := positiveInt(t.Height)
		if !ok {
			h = w
		}
		var factors []int
		for _, f := range t.ScaleFactors {
			if sf, ok := positiveInt(&f); ok {
				factors = append(factors, sf)
			}
		}
		tiles = append(tiles, TileInfo{Width: w, Height: h, ScaleFactors: factors})
	}
	return tiles
}

// HasScaleFactors reports whether the first tile entry lists any scale factor.
func (i *Info) HasScaleFactors() bool {
	return len(i.Tiles) > 0 && len(i.Tiles[0].ScaleFactors) > 0
}
