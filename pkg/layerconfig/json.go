package layerconfig

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"tilefix/pkg/tilematch"
)

// SchemaVersion is the version written by MarshalJSON. Documents without a
// version field are read as version 1.
const SchemaVersion = 1

var suffixPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidationError reports a configuration rejected at the deserialization
// boundary.
type ValidationError struct {
	Config string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Config == "" {
		return fmt.Sprintf("layerconfig: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("layerconfig: %s: %s: %s", e.Config, e.Field, e.Reason)
}

type styleJSON struct {
	Color               string    `json:"color"`
	LayerSuffix         string    `json:"layerSuffix"`
	WidthFraction       *float64  `json:"widthFraction,omitempty"`
	DashArray           []float64 `json:"dashArray,omitempty"`
	Alpha               *float64  `json:"alpha,omitempty"`
	StartZoom           *int      `json:"startZoom,omitempty"`
	EndZoom             *int      `json:"endZoom,omitempty"`
	LineExtensionFactor *float64  `json:"lineExtensionFactor,omitempty"`
	DelWidthFactor      *float64  `json:"delWidthFactor,omitempty"`
	HaloColor           string    `json:"haloColor,omitempty"`
	HaloWidthFactor     *float64  `json:"haloWidthFactor,omitempty"`
	HaloAlpha           *float64  `json:"haloAlpha,omitempty"`
}

type configJSON struct {
	Version          int                `json:"version,omitempty"`
	ID               string             `json:"id"`
	TileURLTemplates []string           `json:"tileUrlTemplates"`
	LineWidthStops   map[string]float64 `json:"lineWidthStops"`
	LineStyles       []styleJSON        `json:"lineStyles"`
	MaskColor        string             `json:"maskColor,omitempty"`
	MinLineWidth     *float64           `json:"minLineWidth,omitempty"`
}

func float(v float64) *float64 { return &v }
func integer(v int) *int       { return &v }

func (s LineStyle) toJSON() styleJSON {
	out := styleJSON{
		Color:               s.Color,
		LayerSuffix:         s.LayerSuffix,
		WidthFraction:       float(s.WidthFraction),
		DashArray:           s.DashArray,
		Alpha:               float(s.Alpha),
		StartZoom:           integer(s.StartZoom),
		LineExtensionFactor: float(s.LineExtensionFactor),
		DelWidthFactor:      float(s.DelWidthFactor),
	}
	if s.EndZoom != NoEndZoom {
		out.EndZoom = integer(s.EndZoom)
	}
	if s.HaloColor != "" {
		out.HaloColor = s.HaloColor
		out.HaloWidthFactor = float(s.HaloWidthFactor)
		out.HaloAlpha = float(s.HaloAlpha)
	}
	return out
}

func (j styleJSON) toStyle() LineStyle {
	s := NewLineStyle(j.Color, j.LayerSuffix)
	if j.WidthFraction != nil {
		s.WidthFraction = *j.WidthFraction
	}
	s.DashArray = j.DashArray
	if j.Alpha != nil {
		s.Alpha = *j.Alpha
	}
	if j.StartZoom != nil {
		s.StartZoom = *j.StartZoom
	}
	if j.EndZoom != nil {
		s.EndZoom = *j.EndZoom
	}
	if j.LineExtensionFactor != nil {
		s.LineExtensionFactor = *j.LineExtensionFactor
	}
	if j.DelWidthFactor != nil {
		s.DelWidthFactor = *j.DelWidthFactor
	}
	s.HaloColor = j.HaloColor
	if j.HaloWidthFactor != nil {
		s.HaloWidthFactor = *j.HaloWidthFactor
	}
	if j.HaloAlpha != nil {
		s.HaloAlpha = *j.HaloAlpha
	} else if j.HaloColor != "" {
		s.HaloAlpha = 1
	}
	return s
}

// MarshalJSON encodes the style as a plain object.
func (s LineStyle) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.toJSON())
}

// StyleFromJSON decodes and validates a single style.
func StyleFromJSON(data []byte) (LineStyle, error) {
	var j styleJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return LineStyle{}, errors.Wrap(err, "layerconfig: decode style")
	}
	s := j.toStyle()
	if err := validateStyle(s, "lineStyle"); err != nil {
		return LineStyle{}, err
	}
	return s, nil
}

// MarshalJSON encodes the configuration in the versioned plain object schema.
func (c *Config) MarshalJSON() ([]byte, error) {
	out := configJSON{
		Version:          SchemaVersion,
		ID:               c.id,
		TileURLTemplates: c.Templates(),
		LineWidthStops:   make(map[string]float64, len(c.stops)),
		MaskColor:        c.maskColor,
		MinLineWidth:     float(c.minLineWidth),
	}
	for _, s := range c.stops {
		out.LineWidthStops[strconv.Itoa(s.zoom)] = s.width
	}
	for _, s := range c.styles {
		out.LineStyles = append(out.LineStyles, s.toJSON())
	}
	return json.Marshal(out)
}

// FromJSON decodes and validates a configuration. Every problem is reported as
// a *ValidationError; nothing is defaulted silently.
func FromJSON(data []byte) (*Config, error) {
	var j configJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, errors.Wrap(err, "layerconfig: decode config")
	}
	return j.build()
}

func (j configJSON) build() (*Config, error) {
	fail := func(field, reason string) error {
		return &ValidationError{Config: j.ID, Field: field, Reason: reason}
	}
	if j.Version != 0 && j.Version != SchemaVersion {
		return nil, fail("version", fmt.Sprintf("unsupported schema version %d", j.Version))
	}
	if err := validateID(j.ID); err != nil {
		return nil, err
	}
	for i, raw := range j.TileURLTemplates {
		if _, err := tilematch.Parse(raw); err != nil {
			return nil, fail(fmt.Sprintf("tileUrlTemplates[%d]", i), err.Error())
		}
	}

	if len(j.LineWidthStops) < 2 {
		return nil, fail("lineWidthStops", "at least two stops are required")
	}
	stops := make(map[int]float64, len(j.LineWidthStops))
	for k, w := range j.LineWidthStops {
		z, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || z < 0 {
			return nil, fail("lineWidthStops", fmt.Sprintf("zoom %q is not a non-negative integer", k))
		}
		if _, dup := stops[z]; dup {
			return nil, fail("lineWidthStops", fmt.Sprintf("zoom %d is listed twice", z))
		}
		if !(w > 0) || math.IsInf(w, 0) {
			return nil, fail("lineWidthStops", fmt.Sprintf("width at zoom %d must be positive", z))
		}
		stops[z] = w
	}

	if len(j.LineStyles) == 0 {
		return nil, fail("lineStyles", "at least one style is required")
	}
	styles := make([]LineStyle, 0, len(j.LineStyles))
	for i, sj := range j.LineStyles {
		s := sj.toStyle()
		if err := validateStyle(s, fmt.Sprintf("lineStyles[%d]", i)); err != nil {
			err.(*ValidationError).Config = j.ID
			return nil, err
		}
		styles = append(styles, s)
	}

	var opts []Option
	if j.MaskColor != "" {
		if _, err := ParseColor(j.MaskColor); err != nil {
			return nil, fail("maskColor", err.Error())
		}
		opts = append(opts, WithMaskColor(j.MaskColor))
	}
	if j.MinLineWidth != nil {
		if !(*j.MinLineWidth > 0) {
			return nil, fail("minLineWidth", "must be positive")
		}
		opts = append(opts, WithMinLineWidth(*j.MinLineWidth))
	}
	if len(j.TileURLTemplates) == 0 {
		return nil, fail("tileUrlTemplates", "at least one template is required")
	}
	return New(j.ID, j.TileURLTemplates, stops, styles, opts...)
}

func validateID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	case strings.ContainsAny(id, `/\`):
		return &ValidationError{Config: id, Field: "id", Reason: "must not contain path separators"}
	case id == "." || id == "..":
		return &ValidationError{Config: id, Field: "id", Reason: "must not be a relative path"}
	}
	return nil
}

// validateStyle always returns a *ValidationError or nil.
func validateStyle(s LineStyle, field string) error {
	fail := func(sub, reason string) error {
		return &ValidationError{Field: field + "." + sub, Reason: reason}
	}
	if _, err := ParseColor(s.Color); err != nil || s.Color == "" {
		return fail("color", fmt.Sprintf("invalid colour %q", s.Color))
	}
	if !suffixPattern.MatchString(s.LayerSuffix) {
		return fail("layerSuffix", fmt.Sprintf("%q must match %s", s.LayerSuffix, suffixPattern))
	}
	if !(s.WidthFraction > 0) {
		return fail("widthFraction", "must be positive")
	}
	if s.Alpha < 0 || s.Alpha > 1 {
		return fail("alpha", "must be within [0, 1]")
	}
	if s.StartZoom < 0 {
		return fail("startZoom", "must not be negative")
	}
	if s.EndZoom < s.StartZoom {
		return fail("endZoom", "must not be lower than startZoom")
	}
	if s.LineExtensionFactor < 0 {
		return fail("lineExtensionFactor", "must not be negative")
	}
	if !(s.DelWidthFactor > 0) {
		return fail("delWidthFactor", "must be positive")
	}
	for i, d := range s.DashArray {
		if !(d > 0) {
			return fail(fmt.Sprintf("dashArray[%d]", i), "must be positive")
		}
	}
	if s.HaloColor != "" {
		if _, err := ParseColor(s.HaloColor); err != nil {
			return fail("haloColor", fmt.Sprintf("invalid colour %q", s.HaloColor))
		}
		if !(s.HaloWidthFactor > 0) {
			return fail("haloWidthFactor", "must be positive")
		}
		if s.HaloAlpha < 0 || s.HaloAlpha > 1 {
			return fail("haloAlpha", "must be within [0, 1]")
		}
	}
	return nil
}
