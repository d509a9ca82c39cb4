package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/go-test/deep"

	"tilefix/pkg/layerconfig"
	"tilefix/pkg/pmarchive"
)

func TestCountArchive(t *testing.T) {
	f := newFixture(t)
	src, err := pmarchive.Open(f.archive, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer src.(*pmarchive.FileReader).Close()

	report, err := countArchive(context.Background(), pmarchive.New(src))
	if err != nil {
		t.Fatal(err)
	}
	want := &CountReport{Tiles: 1, Features: 2, Layers: map[string]int{"to-add-osm": 1, "to-del-osm": 1}}
	if diff := deep.Equal(report, want); diff != nil {
		t.Fatal(diff)
	}

	var buf bytes.Buffer
	report.Print(&buf)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 || !strings.HasPrefix(lines[0], "to-add-osm") || !strings.HasSuffix(lines[3], " 1") {
		t.Fatalf("unexpected report:\n%s", buf.String())
	}
}

func TestCountMarksUnreferencedLayers(t *testing.T) {
	f := newFixture(t)
	report, err := countArchive(context.Background(), f.engine.Archive)
	if err != nil {
		t.Fatal(err)
	}
	report.markUnreferenced(f.engine.Registry)
	if len(report.Unreferenced) != 0 {
		t.Fatalf("unexpected unreferenced layers %v", report.Unreferenced)
	}

	ne := layerconfig.MustNew("ne-only", []string{"https://tiles.example.com/{z}/{x}/{y}.png"},
		map[int]float64{0: 1, 10: 2},
		[]layerconfig.LineStyle{layerconfig.NewLineStyle("#ff0000", "ne")})
	report.markUnreferenced(layerconfig.NewRegistry(ne))
	if diff := deep.Equal(report.Unreferenced, []string{"to-add-osm", "to-del-osm"}); diff != nil {
		t.Fatal(diff)
	}

	var buf bytes.Buffer
	report.Print(&buf)
	if !strings.Contains(buf.String(), "unreferenced         to-del-osm") {
		t.Fatalf("report:\n%s", buf.String())
	}
}
