package fixer

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"time"

	"github.com/fogleman/gg"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"

	"tilefix/internal/metrics"
	"tilefix/pkg/corrections"
	"tilefix/pkg/layerconfig"
)

const jpegQuality = 90

// acquire returns a cleared w×h surface from the pool.
func (f *Fixer) acquire(w, h int) *image.RGBA {
	s := f.surfaces.Get().(*image.RGBA)
	n := 4 * w * h
	if cap(s.Pix) < n {
		s.Pix = make([]uint8, n)
	} else {
		s.Pix = s.Pix[:n]
		clear(s.Pix)
	}
	s.Stride = 4 * w
	s.Rect = image.Rect(0, 0, w, h)
	return s
}

func (f *Fixer) release(s *image.RGBA) { f.surfaces.Put(s) }

// Render draws the corrections for tile over the raster image data and
// returns the encoded result with its content type. JPEG input stays JPEG;
// everything else is encoded as PNG.
//
// All mask strokes are drawn before any addition stroke so a later style's
// mask never erases an earlier style's line.
func (f *Fixer) Render(data []byte, tile maptile.Tile, cfg *layerconfig.Config, corr corrections.Result) ([]byte, string, error) {
	start := time.Now()
	defer func() {
		metrics.RenderDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	}()

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.Wrap(err, "decode raster")
	}
	b := img.Bounds()
	surface := f.acquire(b.Dx(), b.Dy())
	defer f.release(surface)
	draw.Draw(surface, surface.Rect, img, b.Min, draw.Src)

	z := int(tile.Z)
	styles := cfg.ActiveStyles(z)
	base := cfg.LineWidth(float64(z))
	maskWidth := base * cfg.MaxWidthFraction(z)

	maskColor, err := layerconfig.ParseColor(cfg.MaskColor())
	if err != nil {
		return nil, "", err
	}
	dc := gg.NewContextForRGBA(surface)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()

	for _, s := range styles {
		strokeLayer(dc, corr[s.DelLayer()], pen{
			color: maskColor,
			width: maskWidth * s.DelWidthFactor,
		})
	}
	for _, s := range styles {
		c, err := layerconfig.ParseColor(s.Color)
		if err != nil {
			return nil, "", errors.Wrapf(err, "style %s", s.LayerSuffix)
		}
		width := base * s.WidthFraction
		ext := s.LineExtensionFactor * maskWidth * s.DelWidthFactor
		if s.HasHalo() {
			hc, err := layerconfig.ParseColor(s.HaloColor)
			if err != nil {
				return nil, "", errors.Wrapf(err, "style %s halo", s.LayerSuffix)
			}
			strokeLayer(dc, corr[s.AddLayer()], pen{
				color:  layerconfig.Fade(hc, s.HaloAlpha),
				width:  width * s.HaloWidthFactor,
				extend: ext,
			})
		}
		strokeLayer(dc, corr[s.AddLayer()], pen{
			color:  layerconfig.Fade(c, s.Alpha),
			width:  width,
			dash:   s.DashArray,
			extend: ext,
		})
	}

	var buf bytes.Buffer
	if format == "jpeg" {
		if err := jpeg.Encode(&buf, surface, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, "", errors.Wrap(err, "encode jpeg")
		}
		return buf.Bytes(), "image/jpeg", nil
	}
	if err := png.Encode(&buf, surface); err != nil {
		return nil, "", errors.Wrap(err, "encode png")
	}
	return buf.Bytes(), "image/png", nil
}

type pen struct {
	color color.NRGBA
	width float64
	// dash lengths in multiples of width
	dash []float64
	// extend pushes open line ends outwards by this many pixels
	extend float64
}

// strokeLayer strokes every line of features as one path. Feature
// coordinates are scaled from their extent to the surface size.
func strokeLayer(dc *gg.Context, features []corrections.Feature, p pen) {
	if len(features) == 0 || p.width <= 0 || p.color.A == 0 {
		return
	}
	w, h := float64(dc.Width()), float64(dc.Height())
	drawn := false
	for _, f := range features {
		extent := float64(f.Extent)
		if extent == 0 {
			extent = corrections.DefaultExtent
		}
		sx, sy := w/extent, h/extent
		for _, ls := range f.Geometry {
			if len(ls) < 2 {
				continue
			}
			pts := make([]orb.Point, len(ls))
			for i, pt := range ls {
				pts[i] = orb.Point{pt[0] * sx, pt[1] * sy}
			}
			if p.extend > 0 && !pts[0].Equal(pts[len(pts)-1]) {
				pts[0] = push(pts[1], pts[0], p.extend)
				pts[len(pts)-1] = push(pts[len(pts)-2], pts[len(pts)-1], p.extend)
			}
			dc.MoveTo(pts[0][0], pts[0][1])
			for _, pt := range pts[1:] {
				dc.LineTo(pt[0], pt[1])
			}
			drawn = true
		}
	}
	if !drawn {
		return
	}
	dc.SetColor(p.color)
	dc.SetLineWidth(p.width)
	if len(p.dash) > 0 {
		scaled := make([]float64, len(p.dash))
		for i, d := range p.dash {
			scaled[i] = d * p.width
		}
		dc.SetDash(scaled...)
	} else {
		dc.SetDash()
	}
	dc.Stroke()
}

// push moves to away from from by d along the segment direction.
func push(from, to orb.Point, d float64) orb.Point {
	dx, dy := to[0]-from[0], to[1]-from[1]
	l := math.Hypot(dx, dy)
	if l == 0 {
		return to
	}
	return orb.Point{to[0] + dx/l*d, to[1] + dy/l*d}
}
