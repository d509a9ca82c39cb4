package corrections

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
)

// DefaultExtent is the local coordinate range of a vector tile.
const DefaultExtent = mvt.DefaultExtent

// Feature is one decoded vector feature in tile local coordinates, y down.
type Feature struct {
	ID           interface{}
	GeometryType string
	Properties   map[string]interface{}
	// Geometry lists the feature's point sequences: line strings, polygon
	// rings, or single points.
	Geometry []orb.LineString
	Extent   uint32
}

// Result maps archive layer names to their features for one tile. Results
// handed out by a Source are shared and must not be modified.
type Result map[string][]Feature

// Count returns the number of features over all layers.
func (r Result) Count() int {
	n := 0
	for _, fs := range r {
		n += len(fs)
	}
	return n
}

// CountLayers returns the number of features in the named layers.
func (r Result) CountLayers(layers []string) int {
	n := 0
	for _, name := range layers {
		n += len(r[name])
	}
	return n
}

// subset returns the requested layers; absent layers map to nil.
func (r Result) subset(layers []string) Result {
	out := make(Result, len(layers))
	for _, name := range layers {
		out[name] = r[name]
	}
	return out
}

// Decode decodes every layer of a vector tile into tile local features.
func Decode(data []byte) (Result, error) {
	layers, err := mvt.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	out := make(Result, len(layers))
	for _, l := range layers {
		extent := l.Extent
		if extent == 0 {
			extent = DefaultExtent
		}
		features := make([]Feature, 0, len(l.Features))
		for _, f := range l.Features {
			features = append(features, fromGeoJSON(f, extent))
		}
		out[l.Name] = append(out[l.Name], features...)
	}
	return out, nil
}

func fromGeoJSON(f *geojson.Feature, extent uint32) Feature {
	feat := Feature{
		ID:         f.ID,
		Properties: map[string]interface{}(f.Properties),
		Extent:     extent,
	}
	if f.Geometry != nil {
		feat.GeometryType = f.Geometry.GeoJSONType()
		feat.Geometry = flatten(f.Geometry, nil)
	}
	return feat
}

func flatten(g orb.Geometry, out []orb.LineString) []orb.LineString {
	switch g := g.(type) {
	case orb.Point:
		out = append(out, orb.LineString{g})
	case orb.MultiPoint:
		for _, p := range g {
			out = append(out, orb.LineString{p})
		}
	case orb.LineString:
		out = append(out, g)
	case orb.MultiLineString:
		out = append(out, g...)
	case orb.Ring:
		out = append(out, orb.LineString(g))
	case orb.Polygon:
		for _, r := range g {
			out = append(out, orb.LineString(r))
		}
	case orb.MultiPolygon:
		for _, p := range g {
			out = flatten(p, out)
		}
	case orb.Collection:
		for _, c := range g {
			out = flatten(c, out)
		}
	}
	return out
}
