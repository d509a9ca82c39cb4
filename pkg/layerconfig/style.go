package layerconfig

import (
	"math"
)

// NoEndZoom marks a style that stays active at every zoom above StartZoom.
const NoEndZoom = math.MaxInt32

// Style defaults.
const (
	DefaultWidthFraction  = 1.0
	DefaultAlpha          = 1.0
	DefaultDelWidthFactor = 1.5
)

// LineStyle describes how one correction dataset is drawn over a tile.
type LineStyle struct {
	// Color of the replacement stroke, CSS notation.
	Color string
	// LayerSuffix names the correction dataset; it expands to the
	// to-add-<suffix> and to-del-<suffix> archive layers.
	LayerSuffix string
	// WidthFraction scales the zoom dependent base width.
	WidthFraction float64
	// DashArray is expressed in multiples of the stroke width.
	DashArray []float64
	Alpha     float64
	StartZoom int
	EndZoom   int
	// LineExtensionFactor extends addition line ends by this many mask
	// widths so the new line covers the seam left by the mask.
	LineExtensionFactor float64
	// DelWidthFactor widens the mask stroke relative to the widest active
	// addition stroke.
	DelWidthFactor float64

	// HaloColor enables a wider, translucent stroke drawn under the line.
	HaloColor       string
	HaloWidthFactor float64
	HaloAlpha       float64
}

// StyleOption customises a LineStyle built with NewLineStyle.
type StyleOption func(*LineStyle)

// NewLineStyle returns a style with the documented defaults applied.
func NewLineStyle(color, layerSuffix string, opts ...StyleOption) LineStyle {
	s := LineStyle{
		Color:          color,
		LayerSuffix:    layerSuffix,
		WidthFraction:  DefaultWidthFraction,
		Alpha:          DefaultAlpha,
		StartZoom:      0,
		EndZoom:        NoEndZoom,
		DelWidthFactor: DefaultDelWidthFactor,
	}
	for _, o := range opts {
		o(&s)
	}
	return s
}

func WithWidthFraction(f float64) StyleOption { return func(s *LineStyle) { s.WidthFraction = f } }

func WithDashArray(d ...float64) StyleOption {
	return func(s *LineStyle) { s.DashArray = append([]float64(nil), d...) }
}

func WithAlpha(a float64) StyleOption { return func(s *LineStyle) { s.Alpha = a } }

// WithZoomRange limits the style to start <= z <= end. Use NoEndZoom for an
// open range.
func WithZoomRange(start, end int) StyleOption {
	return func(s *LineStyle) {
		s.StartZoom = start
		s.EndZoom = end
	}
}

func WithLineExtension(f float64) StyleOption {
	return func(s *LineStyle) { s.LineExtensionFactor = f }
}

func WithDelWidthFactor(f float64) StyleOption {
	return func(s *LineStyle) { s.DelWidthFactor = f }
}

func WithHalo(color string, widthFactor, alpha float64) StyleOption {
	return func(s *LineStyle) {
		s.HaloColor = color
		s.HaloWidthFactor = widthFactor
		s.HaloAlpha = alpha
	}
}

// Active reports whether the style applies at zoom z.
func (s LineStyle) Active(z int) bool {
	return s.StartZoom <= z && z <= s.EndZoom
}

// HasHalo reports whether halo parameters are configured.
func (s LineStyle) HasHalo() bool {
	return s.HaloColor != "" && s.HaloWidthFactor > 0
}

// AddLayer is the archive layer holding the lines to draw.
func (s LineStyle) AddLayer() string { return AddLayerName(s.LayerSuffix) }

// DelLayer is the archive layer holding the lines to mask.
func (s LineStyle) DelLayer() string { return DelLayerName(s.LayerSuffix) }

// AddLayerName returns the addition layer name for a suffix.
func AddLayerName(suffix string) string { return "to-add-" + suffix }

// DelLayerName returns the deletion layer name for a suffix.
func DelLayerName(suffix string) string { return "to-del-" + suffix }

func (s LineStyle) clone() LineStyle {
	s.DashArray = append([]float64(nil), s.DashArray...)
	return s
}
