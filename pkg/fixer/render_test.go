package fixer

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"tilefix/pkg/corrections"
	"tilefix/pkg/layerconfig"
)

var green = color.NRGBA{0, 0xff, 0, 0xff}

func solidTile(t *testing.T, c color.NRGBA) []byte {
	t.Helper()
	im := image.NewNRGBA(image.Rect(0, 0, 256, 256))
	draw.Draw(im, im.Rect, image.NewUniform(c), image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, im); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func lines(name string, ls ...orb.LineString) corrections.Result {
	return corrections.Result{name: {{Geometry: ls, Extent: corrections.DefaultExtent}}}
}

func renderConfig(t *testing.T, stops map[int]float64, styles ...layerconfig.LineStyle) *layerconfig.Config {
	t.Helper()
	cfg, err := layerconfig.New("render", []string{"https://tiles.example.com/{z}/{x}/{y}.png"},
		stops, styles, layerconfig.WithMaskColor("#f2efe9"))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func render(t *testing.T, raster []byte, z maptile.Zoom, cfg *layerconfig.Config, corr corrections.Result) []byte {
	t.Helper()
	out, _, err := New(nil).Render(raster, maptile.New(0, 0, z), cfg, corr)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

type spot struct {
	x, y int
	want color.NRGBA
}

func checkPixels(t *testing.T, name string, data []byte, spots []spot) {
	t.Helper()
	for _, p := range spots {
		if got := pixel(t, data, p.x, p.y); got != p.want {
			t.Errorf("%s: pixel (%d,%d) = %v, want %v", name, p.x, p.y, got, p.want)
		}
	}
}

// The mask is base × widest active fraction × delWidthFactor wide. A base
// width of 10 and a factor of 1.5 cover rows 120.5 to 135.5 around row 128.
func TestMaskWidth(t *testing.T) {
	raster := solidTile(t, black)
	corr := lines("to-del-osm", horizontal)
	stops := map[int]float64{0: 10, 10: 10}

	narrow := renderConfig(t, stops, layerconfig.NewLineStyle("#0000ff", "osm"))
	checkPixels(t, "fraction 1", render(t, raster, 5, narrow, corr), []spot{
		{128, 122, background},
		{128, 134, background},
		{128, 117, black},
		{128, 138, black},
	})

	// a second active style with a wider fraction widens every mask to 30
	wide := renderConfig(t, stops,
		layerconfig.NewLineStyle("#0000ff", "osm"),
		layerconfig.NewLineStyle("#ff0000", "wide", layerconfig.WithWidthFraction(2)),
	)
	checkPixels(t, "fraction 2", render(t, raster, 5, wide, corr), []spot{
		{128, 117, background},
		{128, 138, background},
		{128, 110, black},
		{128, 146, black},
	})
}

// Dash lengths are multiples of the stroke width. With [1 3] and round caps a
// dash covers [-w/2, 1.5w] and the gap [1.5w, 3.5w] of every 4w period.
func TestDashScalesWithWidth(t *testing.T) {
	raster := solidTile(t, background)
	corr := lines("to-add-osm", horizontal)
	cfg := renderConfig(t, map[int]float64{0: 8, 10: 16},
		layerconfig.NewLineStyle("#ff0000", "osm", layerconfig.WithDashArray(1, 3)))

	if w := cfg.LineWidth(0); w != 8 {
		t.Fatalf("width at z0 %v", w)
	}
	checkPixels(t, "width 8", render(t, raster, 0, cfg, corr), []spot{
		{4, 128, red},
		{20, 128, background},
		{36, 128, red},
		{52, 128, background},
	})
	checkPixels(t, "width 16", render(t, raster, 10, cfg, corr), []spot{
		{8, 128, red},
		{20, 128, red},
		{40, 128, background},
		{72, 128, red},
	})
}

func TestHaloUnderLine(t *testing.T) {
	raster := solidTile(t, background)
	corr := lines("to-add-osm", horizontal)
	cfg := renderConfig(t, map[int]float64{0: 8, 10: 8},
		layerconfig.NewLineStyle("#ff0000", "osm", layerconfig.WithHalo("#00ff00", 3, 1)))

	// line covers 124..132, halo 116..140
	checkPixels(t, "halo", render(t, raster, 5, cfg, corr), []spot{
		{128, 128, red},
		{128, 135, green},
		{128, 119, green},
		{128, 143, background},
		{128, 112, background},
	})
}

// Line ends move out by lineExtensionFactor × mask width. Width 8 and a
// factor of 1.5 make a mask of 12, so a factor of 2 adds 24 pixels per end.
func TestLineExtension(t *testing.T) {
	raster := solidTile(t, background)
	corr := lines("to-add-osm", orb.LineString{{1024, 2048}, {3072, 2048}})
	stops := map[int]float64{0: 8, 10: 8}

	plain := renderConfig(t, stops, layerconfig.NewLineStyle("#ff0000", "osm"))
	checkPixels(t, "no extension", render(t, raster, 5, plain, corr), []spot{
		{128, 128, red},
		{194, 128, red},
		{210, 128, background},
		{45, 128, background},
	})

	extended := renderConfig(t, stops,
		layerconfig.NewLineStyle("#ff0000", "osm", layerconfig.WithLineExtension(2)))
	checkPixels(t, "extension", render(t, raster, 5, extended, corr), []spot{
		{210, 128, red},
		{45, 128, red},
		{225, 128, background},
		{30, 128, background},
	})

	// closed rings keep their shape
	ring := lines("to-add-osm", orb.LineString{{1024, 1024}, {3072, 1024}, {3072, 3072}, {1024, 1024}})
	checkPixels(t, "ring", render(t, raster, 5, extended, ring), []spot{
		{128, 64, red},
		{210, 64, background},
	})
}
