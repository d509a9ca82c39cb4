package main

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"tilefix/pkg/layerconfig"
)

func seedTask(t *testing.T, f *fixture, out string, bp *BreakPoint) *Task {
	t.Helper()
	cfg, _ := f.engine.Registry.Get("test")
	tm, err := NewTileMap("test-seed", PNG, "", cfg)
	if err != nil {
		t.Fatal(err)
	}
	// two points: the tile with corrections and one without
	area := orb.Collection{
		maptile.New(0, 0, 5).Center(),
		maptile.New(3, 3, 5).Center(),
	}
	task, err := NewTask([]Layer{{Zoom: 5, Collection: area}}, tm, f.engine, bp, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	task.File = out
	return task
}

func TestSeedWritesTilesAndResumes(t *testing.T) {
	f := newFixture(t)
	out := t.TempDir()
	bpDir := t.TempDir()

	bp, err := OpenBreakPoint(bpDir, "test-seed", 4)
	if err != nil {
		t.Fatal(err)
	}
	task := seedTask(t, f, out, bp)
	if task.Total != 2 {
		t.Fatalf("%d tiles covered", task.Total)
	}
	task.Download(context.Background())
	bp.BreakPointSafeFun()

	if task.Fixed != 1 || task.Unchanged != 1 || task.Failed != 0 {
		t.Fatalf("fixed %d, unchanged %d, failed %d", task.Fixed, task.Unchanged, task.Failed)
	}
	for _, p := range []string{"5/0/0.png", "5/3/3.png"} {
		if _, err := os.Stat(filepath.Join(out, p)); err != nil {
			t.Fatal(err)
		}
	}

	hits := atomic.LoadInt64(f.hits)
	bp, err = OpenBreakPoint(bpDir, "test-seed", 4)
	if err != nil {
		t.Fatal(err)
	}
	defer bp.BreakPointSafeFun()
	if !bp.IsSuccessed(maptile.New(0, 0, 5)) || !bp.IsSuccessed(maptile.New(3, 3, 5)) {
		t.Fatal("break point did not record the seeded tiles")
	}
	seedTask(t, f, out, bp).Download(context.Background())
	if got := atomic.LoadInt64(f.hits); got != hits {
		t.Fatalf("resumed task fetched %d tiles again", got-hits)
	}
}

func TestSeedAbort(t *testing.T) {
	f := newFixture(t)
	task := seedTask(t, f, t.TempDir(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	task.Download(ctx)
	task.AbortFun()
	if task.Fixed+task.Unchanged != 0 {
		t.Fatalf("canceled task saved %d tiles", task.Fixed+task.Unchanged)
	}
}

func TestNewTaskRejectsEmpty(t *testing.T) {
	f := newFixture(t)
	cfg, _ := f.engine.Registry.Get("test")
	tm, err := NewTileMap("x", PNG, "", cfg)
	if err != nil {
		t.Fatal(err)
	}
	bare := layerconfig.MustNew("bare", nil, map[int]float64{0: 1, 10: 2},
		[]layerconfig.LineStyle{layerconfig.NewLineStyle("#ff0000", "osm")})
	if _, err := NewTileMap("x", PNG, "", bare); err == nil {
		t.Fatal("tile map without a url template accepted")
	}
	if _, err := NewTask(nil, tm, f.engine, nil, 1, 0); err == nil {
		t.Fatal("empty task accepted")
	}
	if _, err := NewTask([]Layer{{Zoom: ZoomMax + 1}}, tm, f.engine, nil, 1, 0); err == nil {
		t.Fatal("zoom out of range accepted")
	}
}

func TestGetTileURL(t *testing.T) {
	f := newFixture(t)
	cfg, _ := f.engine.Registry.Get("test")
	tm, err := NewTileMap("x", PNG, "https://{s}.tiles.example.com/{z}/{x}/{y}{r}.png?key={key}", cfg)
	if err != nil {
		t.Fatal(err)
	}
	tm.Values = map[string]string{"key": "k"}
	tm.Retina = true
	if got, want := tm.GetTileURL(maptile.New(3, 4, 5)), "https://b.tiles.example.com/5/3/4@2x.png?key=k"; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}
