// Package layerconfig describes tile providers whose boundaries get
// corrected: which URLs they serve, how wide the boundary lines are at each
// zoom, and which correction datasets are drawn with which style.
package layerconfig

import (
	"sort"

	"github.com/paulmach/orb/maptile"

	"tilefix/pkg/tilematch"
)

// Configuration defaults.
const (
	DefaultMaskColor    = "#f2efe9"
	DefaultMinLineWidth = 0.5
)

type stop struct {
	zoom  int
	width float64
}

// Config is an immutable description of one tile provider. Build it with New
// from trusted code or with FromJSON from untrusted data.
type Config struct {
	id           string
	templates    tilematch.Set
	stops        []stop
	styles       []LineStyle
	maskColor    string
	minLineWidth float64
}

// Option customises a Config built with New.
type Option func(*Config)

// WithMaskColor sets the colour that matches the provider's land background.
func WithMaskColor(c string) Option { return func(cfg *Config) { cfg.maskColor = c } }

// WithMinLineWidth sets the floor applied to interpolated widths.
func WithMinLineWidth(w float64) Option { return func(cfg *Config) { cfg.minLineWidth = w } }

// New builds a configuration. Only the templates are checked, since they
// have to compile; the rest is trusted.
func New(id string, templates []string, widthStops map[int]float64, styles []LineStyle, opts ...Option) (*Config, error) {
	set, err := tilematch.ParseSet(templates)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		id:           id,
		templates:    set,
		maskColor:    DefaultMaskColor,
		minLineWidth: DefaultMinLineWidth,
	}
	for z, w := range widthStops {
		cfg.stops = append(cfg.stops, stop{zoom: z, width: w})
	}
	sort.Slice(cfg.stops, func(i, j int) bool { return cfg.stops[i].zoom < cfg.stops[j].zoom })
	for _, s := range styles {
		cfg.styles = append(cfg.styles, s.clone())
	}
	for _, o := range opts {
		o(cfg)
	}
	return cfg, nil
}

// MustNew is like New but panics on error.
func MustNew(id string, templates []string, widthStops map[int]float64, styles []LineStyle, opts ...Option) *Config {
	cfg, err := New(id, templates, widthStops, styles, opts...)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) ID() string            { return c.id }
func (c *Config) MaskColor() string     { return c.maskColor }
func (c *Config) MinLineWidth() float64 { return c.minLineWidth }

// Templates returns the raw tile URL templates in declared order.
func (c *Config) Templates() []string { return c.templates.Strings() }

// TemplateSet returns the compiled templates.
func (c *Config) TemplateSet() tilematch.Set { return c.templates }

// LineWidthStops returns a copy of the zoom to width table.
func (c *Config) LineWidthStops() map[int]float64 {
	out := make(map[int]float64, len(c.stops))
	for _, s := range c.stops {
		out[s.zoom] = s.width
	}
	return out
}

// LineStyles returns a copy of every style in declared order.
func (c *Config) LineStyles() []LineStyle {
	out := make([]LineStyle, len(c.styles))
	for i, s := range c.styles {
		out[i] = s.clone()
	}
	return out
}

// ActiveStyles returns, in declared order, the styles active at zoom z.
func (c *Config) ActiveStyles(z int) []LineStyle {
	var out []LineStyle
	for _, s := range c.styles {
		if s.Active(z) {
			out = append(out, s.clone())
		}
	}
	return out
}

// LayerSuffixes returns the distinct layer suffixes of the styles active at
// z, in first-seen order.
func (c *Config) LayerSuffixes(z int) []string {
	var (
		out  []string
		seen = map[string]bool{}
	)
	for _, s := range c.styles {
		if s.Active(z) && !seen[s.LayerSuffix] {
			seen[s.LayerSuffix] = true
			out = append(out, s.LayerSuffix)
		}
	}
	return out
}

// LayerNames returns the addition and deletion layer names needed at z.
func (c *Config) LayerNames(z int) []string {
	var out []string
	for _, suffix := range c.LayerSuffixes(z) {
		out = append(out, AddLayerName(suffix), DelLayerName(suffix))
	}
	return out
}

// LayerNamesForAllZooms returns the layer names referenced by any style.
func (c *Config) LayerNamesForAllZooms() []string {
	var (
		out  []string
		seen = map[string]bool{}
	)
	for _, s := range c.styles {
		if !seen[s.LayerSuffix] {
			seen[s.LayerSuffix] = true
			out = append(out, AddLayerName(s.LayerSuffix), DelLayerName(s.LayerSuffix))
		}
	}
	return out
}

// MaxWidthFraction is the widest WidthFraction among the styles active at z,
// 0 when none is active.
func (c *Config) MaxWidthFraction(z int) float64 {
	max := 0.0
	for _, s := range c.styles {
		if s.Active(z) && s.WidthFraction > max {
			max = s.WidthFraction
		}
	}
	return max
}

// LineWidth interpolates the base line width at zoom z. Outside the table the
// nearest segment is extrapolated; the result never drops below the
// configured minimum.
func (c *Config) LineWidth(z float64) float64 {
	return clampWidth(interpolate(c.stops, z), c.minLineWidth)
}

func interpolate(stops []stop, z float64) float64 {
	switch len(stops) {
	case 0:
		return 1
	case 1:
		return stops[0].width
	}
	i := sort.Search(len(stops), func(i int) bool { return float64(stops[i].zoom) >= z })
	if i < len(stops) && float64(stops[i].zoom) == z {
		return stops[i].width
	}
	// pick the segment [a, b] covering z, or the nearest one outside the table
	var a, b stop
	switch {
	case i == 0:
		a, b = stops[0], stops[1]
	case i == len(stops):
		a, b = stops[len(stops)-2], stops[len(stops)-1]
	default:
		a, b = stops[i-1], stops[i]
	}
	slope := (b.width - a.width) / float64(b.zoom-a.zoom)
	return a.width + slope*(z-float64(a.zoom))
}

func clampWidth(w, min float64) float64 {
	if w < min {
		return min
	}
	return w
}

// MatchesTemplate reports whether any of the provider's templates accepts
// candidate.
func (c *Config) MatchesTemplate(candidate string) bool {
	return c.templates.MatchesTemplate(candidate)
}

// MatchesInstance reports whether url is a tile request of this provider.
func (c *Config) MatchesInstance(url string) bool {
	return c.templates.MatchesInstance(url)
}

// ExtractCoordinates parses the tile coordinate out of url.
func (c *Config) ExtractCoordinates(url string) (maptile.Tile, bool) {
	return c.templates.ExtractCoordinates(url)
}
