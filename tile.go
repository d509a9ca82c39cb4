package main

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// ZoomMax is the deepest zoom a seed task accepts.
const ZoomMax = 22

// Tile is one fetched tile ready to be written.
type Tile struct {
	T maptile.Tile
	C []byte
}

// Layer is one zoom level of a seed area.
type Layer struct {
	Zoom       int
	Count      int64
	Collection orb.Collection
	Tiles      maptile.Set
}

// Constants representing tile formats.
const (
	PNG  = "png"
	JPG  = "jpg"
	WEBP = "webp"
)

// extFor picks the file extension of a served content type, keeping the
// configured format when the type is unknown.
func extFor(contentType, format string) string {
	switch contentType {
	case "image/png":
		return PNG
	case "image/jpeg":
		return JPG
	case "image/webp":
		return WEBP
	}
	if format == "" {
		return PNG
	}
	return format
}
