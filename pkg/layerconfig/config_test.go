package layerconfig

import (
	"math"
	"testing"

	"github.com/go-test/deep"
)

func testConfig(t *testing.T, stops map[int]float64) *Config {
	t.Helper()
	cfg, err := New("test",
		[]string{"https://tiles.example.com/{z}/{x}/{y}.png"},
		stops,
		[]LineStyle{
			NewLineStyle("#ff0000", "ne", WithZoomRange(0, 4)),
			NewLineStyle("#00ff00", "osm", WithZoomRange(5, NoEndZoom), WithWidthFraction(0.5)),
			NewLineStyle("#0000ff", "osm", WithZoomRange(8, 12), WithWidthFraction(1.5)),
			NewLineStyle("#0000ff", "disputed", WithZoomRange(10, NoEndZoom), WithDashArray(2, 1)),
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestLineWidth(t *testing.T) {
	cfg := testConfig(t, map[int]float64{1: 0.5, 10: 2.5})
	tests := []struct {
		z    float64
		want float64
	}{
		{1, 0.5},
		{10, 2.5},
		{5.5, 1.5},
		{0, DefaultMinLineWidth},
		{12, 2.5 + 2*(2.0/9)},
	}
	for _, tc := range tests {
		if got := cfg.LineWidth(tc.z); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("LineWidth(%v) = %v, want %v", tc.z, got, tc.want)
		}
	}
}

func TestLineWidthProperties(t *testing.T) {
	tables := []map[int]float64{
		{1: 0.5, 10: 2.5},
		{0: 4, 10: 1},
		{2: 1, 6: 3, 12: 3.5, 18: 8},
		{3: 5, 4: 0.75},
	}
	for _, stops := range tables {
		cfg := testConfig(t, stops)
		zooms := sortedKeys(stops)
		for i := 0; i+1 < len(zooms); i++ {
			lo, hi := zooms[i], zooms[i+1]
			rising := stops[hi] >= stops[lo]
			prev := cfg.LineWidth(float64(lo))
			for z := float64(lo); z <= float64(hi); z += 0.125 {
				w := cfg.LineWidth(z)
				if rising && w < prev-1e-9 || !rising && w > prev+1e-9 {
					t.Fatalf("stops %v: width not monotonic at z=%v (%v after %v)", stops, z, w, prev)
				}
				prev = w
			}
		}
		for _, z := range zooms {
			want := math.Max(stops[z], DefaultMinLineWidth)
			for _, eps := range []float64{-1e-7, 1e-7} {
				if got := cfg.LineWidth(float64(z) + eps); math.Abs(got-want) > 1e-5 {
					t.Fatalf("stops %v: discontinuity at %d: %v vs %v", stops, z, got, want)
				}
			}
		}
		for z := -5.0; z <= 30; z += 0.5 {
			if w := cfg.LineWidth(z); w < DefaultMinLineWidth {
				t.Fatalf("stops %v: width %v below floor at z=%v", stops, w, z)
			}
		}
	}
}

func sortedKeys(m map[int]float64) []int {
	var out []int
	for z := 0; len(out) < len(m); z++ {
		if _, ok := m[z]; ok {
			out = append(out, z)
		}
	}
	return out
}

func TestActiveStyles(t *testing.T) {
	cfg := testConfig(t, map[int]float64{1: 0.5, 10: 2.5})

	colorsAt := func(z int) []string {
		var out []string
		for _, s := range cfg.ActiveStyles(z) {
			out = append(out, s.Color+"/"+s.LayerSuffix)
		}
		return out
	}
	if diff := deep.Equal(colorsAt(4), []string{"#ff0000/ne"}); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(colorsAt(5), []string{"#00ff00/osm"}); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(colorsAt(10), []string{"#00ff00/osm", "#0000ff/osm", "#0000ff/disputed"}); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(cfg.LayerSuffixes(10), []string{"osm", "disputed"}); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(cfg.LayerNames(3), []string{"to-add-ne", "to-del-ne"}); diff != nil {
		t.Error(diff)
	}
	if got := cfg.MaxWidthFraction(9); got != 1.5 {
		t.Errorf("MaxWidthFraction(9) = %v", got)
	}
	if got := cfg.MaxWidthFraction(14); got != 1 {
		t.Errorf("MaxWidthFraction(14) = %v", got)
	}
}

func TestConfigIsImmutable(t *testing.T) {
	cfg := testConfig(t, map[int]float64{1: 0.5, 10: 2.5})
	styles := cfg.LineStyles()
	styles[3].DashArray[0] = 99
	styles[0].Color = "#000000"
	stops := cfg.LineWidthStops()
	stops[1] = 100

	again := cfg.LineStyles()
	if again[3].DashArray[0] != 2 || again[0].Color != "#ff0000" {
		t.Fatal("styles leaked a reference")
	}
	if cfg.LineWidth(1) != 0.5 {
		t.Fatal("stops leaked a reference")
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want [4]uint8
	}{
		{"#fff", [4]uint8{255, 255, 255, 255}},
		{"#A57EA8", [4]uint8{165, 126, 168, 255}},
		{"rgb(165, 126, 168)", [4]uint8{165, 126, 168, 255}},
		{"rgba(0,0,0,0.5)", [4]uint8{0, 0, 0, 128}},
		{"Green", [4]uint8{0, 128, 0, 255}},
	}
	for _, tc := range tests {
		c, err := ParseColor(tc.in)
		if err != nil {
			t.Errorf("%s: %v", tc.in, err)
			continue
		}
		if got := [4]uint8{c.R, c.G, c.B, c.A}; got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := ParseColor("not-a-colour"); err == nil {
		t.Error("expected an error")
	}
}
