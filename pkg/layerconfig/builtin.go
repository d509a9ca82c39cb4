package layerconfig

// NaturalEarthMaxZoom is the last zoom drawn from the Natural Earth dataset
// by the built-in providers; OpenStreetMap data takes over above it.
const NaturalEarthMaxZoom = 4

// Built-in dataset suffixes.
const (
	SuffixNaturalEarth = "ne"
	SuffixOSM          = "osm"
)

var defaultWidthStops = map[int]float64{1: 0.5, 10: 2.5}

// twoDatasetStyles is the Natural Earth / OpenStreetMap switch expressed as
// an ordinary style list.
func twoDatasetStyles(color string, opts ...StyleOption) []LineStyle {
	ne := append([]StyleOption{WithZoomRange(0, NaturalEarthMaxZoom)}, opts...)
	osm := append([]StyleOption{WithZoomRange(NaturalEarthMaxZoom+1, NoEndZoom)}, opts...)
	return []LineStyle{
		NewLineStyle(color, SuffixNaturalEarth, ne...),
		NewLineStyle(color, SuffixOSM, osm...),
	}
}

// Builtin returns freshly built configurations for well known providers.
func Builtin() []*Config {
	return []*Config{
		MustNew("osm-carto",
			[]string{
				"https://tile.openstreetmap.org/{z}/{x}/{y}.png",
				"https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
			},
			defaultWidthStops,
			twoDatasetStyles("rgb(165, 126, 168)", WithLineExtension(0.5)),
			WithMaskColor("#f2efe9"),
		),
		MustNew("osm-de",
			[]string{
				"https://tile.openstreetmap.de/{z}/{x}/{y}.png",
				"https://{s}.tile.openstreetmap.de/{z}/{x}/{y}.png",
			},
			defaultWidthStops,
			twoDatasetStyles("rgb(165, 126, 168)", WithLineExtension(0.5)),
			WithMaskColor("#f2efe9"),
		),
		MustNew("osm-fr",
			[]string{"https://{s}.tile.openstreetmap.fr/osmfr/{z}/{x}/{y}.png"},
			defaultWidthStops,
			twoDatasetStyles("rgb(190, 140, 190)", WithLineExtension(0.5)),
			WithMaskColor("#f2efe9"),
		),
		MustNew("osm-hot",
			[]string{"https://{s}.tile.openstreetmap.fr/hot/{z}/{x}/{y}.png"},
			defaultWidthStops,
			twoDatasetStyles("rgb(181, 155, 181)", WithLineExtension(0.5)),
			WithMaskColor("#f2efe9"),
		),
		MustNew("cartodb-positron",
			[]string{
				"https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}{r}.png",
				"https://{s}.basemaps.cartocdn.com/rastertiles/light_all/{z}/{x}/{y}{r}.png",
				"https://{s}.basemaps.cartocdn.com/light_nolabels/{z}/{x}/{y}{r}.png",
			},
			map[int]float64{1: 0.5, 5: 1, 10: 2},
			twoDatasetStyles("rgb(200, 200, 200)", WithDashArray(3, 2)),
			WithMaskColor("#fafaf8"),
		),
		MustNew("cartodb-voyager",
			[]string{
				"https://{s}.basemaps.cartocdn.com/rastertiles/voyager/{z}/{x}/{y}{r}.png",
				"https://{s}.basemaps.cartocdn.com/rastertiles/voyager_nolabels/{z}/{x}/{y}{r}.png",
			},
			map[int]float64{1: 0.5, 5: 1, 10: 2.5},
			twoDatasetStyles("rgb(230, 190, 210)"),
			WithMaskColor("#f7f6f2"),
		),
		MustNew("cartodb-dark",
			[]string{
				"https://{s}.basemaps.cartocdn.com/dark_all/{z}/{x}/{y}{r}.png",
				"https://{s}.basemaps.cartocdn.com/rastertiles/dark_all/{z}/{x}/{y}{r}.png",
				"https://{s}.basemaps.cartocdn.com/dark_nolabels/{z}/{x}/{y}{r}.png",
			},
			map[int]float64{1: 0.5, 5: 1, 10: 2},
			twoDatasetStyles("rgb(90, 90, 90)", WithDashArray(3, 2)),
			WithMaskColor("#0e0e0e"),
		),
		MustNew("opentopomap",
			[]string{"https://{s}.tile.opentopomap.org/{z}/{x}/{y}.png"},
			map[int]float64{1: 1, 10: 3},
			twoDatasetStyles("rgb(123, 95, 161)",
				WithHalo("#ffffff", 2, 0.5),
				WithDashArray(4, 1.5, 1, 1.5),
			),
			WithMaskColor("#f5f3ea"),
		),
	}
}
