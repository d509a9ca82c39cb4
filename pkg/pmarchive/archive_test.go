package pmarchive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb/maptile"
	"github.com/protomaps/go-pmtiles/pmtiles"
)

func sampleTiles() map[maptile.Tile][]byte {
	tiles := map[maptile.Tile][]byte{}
	for z := maptile.Zoom(0); z <= 3; z++ {
		n := uint32(1) << z
		for x := uint32(0); x < n; x++ {
			for y := uint32(0); y < n; y++ {
				tiles[maptile.New(x, y, z)] = []byte(fmt.Sprintf("tile %d/%d/%d", z, x, y))
			}
		}
	}
	// a run of identical tiles
	tiles[maptile.New(0, 0, 4)] = []byte("same")
	tiles[maptile.New(0, 1, 4)] = []byte("same")
	tiles[maptile.New(1, 1, 4)] = []byte("same")
	return tiles
}

func serve(t *testing.T, data []byte) (*httptest.Server, *int64) {
	t.Helper()
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		http.ServeContent(w, r, "a.pmtiles", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestTileLookup(t *testing.T) {
	tiles := sampleTiles()
	for _, leafSize := range []int{0, 7} {
		data := Build(tiles, BuildOptions{LeafSize: leafSize})
		srv, _ := serve(t, data)
		a := New(NewHTTPReader(srv.URL, nil))
		ctx := context.Background()

		for tile, want := range tiles {
			got, err := a.Tile(ctx, uint8(tile.Z), tile.X, tile.Y)
			if err != nil {
				t.Fatalf("leaf %d, %v: %v", leafSize, tile, err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("leaf %d, %v: got %q, want %q", leafSize, tile, got, want)
			}
		}
		got, err := a.Tile(ctx, 4, 5, 5)
		if err != nil || got != nil {
			t.Fatalf("missing tile: %q %v", got, err)
		}
		got, err = a.Tile(ctx, 9, 0, 0)
		if err != nil || got != nil {
			t.Fatalf("tile above max zoom: %q %v", got, err)
		}

		h, err := a.Header(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if h.MaxZoom != 4 || h.MinZoom != 0 {
			t.Fatalf("zoom range %d-%d", h.MinZoom, h.MaxZoom)
		}
	}
}

func TestHeaderLoadedOnce(t *testing.T) {
	srv, hits := serve(t, Build(sampleTiles(), BuildOptions{}))
	a := New(NewHTTPReader(srv.URL, nil))
	for i := 0; i < 5; i++ {
		if _, err := a.Tile(context.Background(), 2, 1, 1); err != nil {
			t.Fatal(err)
		}
	}
	// one request for header and root, one per tile read
	if got := atomic.LoadInt64(hits); got != 6 {
		t.Fatalf("%d requests", got)
	}
}

func TestWalk(t *testing.T) {
	tiles := sampleTiles()
	path := filepath.Join(t.TempDir(), "a.pmtiles")
	if err := os.WriteFile(path, Build(tiles, BuildOptions{LeafSize: 5}), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer src.(*FileReader).Close()

	seen := map[maptile.Tile]string{}
	err = New(src).Walk(context.Background(), func(z uint8, x, y uint32, data []byte) error {
		seen[maptile.New(x, y, maptile.Zoom(z))] = string(data)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != len(tiles) {
		t.Fatalf("walked %d tiles, want %d", len(seen), len(tiles))
	}
	for tile, want := range tiles {
		if seen[tile] != string(want) {
			t.Fatalf("%v: got %q", tile, seen[tile])
		}
	}
}

func TestMalformed(t *testing.T) {
	ctx := context.Background()

	srv, _ := serve(t, bytes.Repeat([]byte("x"), 512))
	_, err := New(NewHTTPReader(srv.URL, nil)).Tile(ctx, 0, 0, 0)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("garbage archive: %v", err)
	}

	short, _ := serve(t, []byte("PMTiles"))
	_, err = New(NewHTTPReader(short.URL, nil)).Tile(ctx, 0, 0, 0)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("short archive: %v", err)
	}

	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()
	_, err = New(NewHTTPReader(missing.URL, nil)).Tile(ctx, 0, 0, 0)
	var status *StatusError
	if !errors.As(err, &status) || status.Status != http.StatusNotFound {
		t.Fatalf("missing archive: %v", err)
	}
}

func TestCanceled(t *testing.T) {
	srv, _ := serve(t, Build(sampleTiles(), BuildOptions{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(NewHTTPReader(srv.URL, nil)).Tile(ctx, 0, 0, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
}

func TestEntriesRoundTrip(t *testing.T) {
	data := Build(sampleTiles(), BuildOptions{})
	a := New(&memReader{data: data})
	_, root, err := a.load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	back, err := decodeEntries(mustGunzip(t, pmtiles.SerializeEntries(root, pmtiles.Gzip)))
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != len(root) {
		t.Fatalf("%d entries, want %d", len(back), len(root))
	}
	for i := range root {
		if back[i] != root[i] {
			t.Fatalf("entry %d: %+v != %+v", i, back[i], root[i])
		}
	}
	if _, err := decodeEntries([]byte{0x05, 0x01}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("truncated directory: %v", err)
	}
}

func mustGunzip(t *testing.T, data []byte) []byte {
	t.Helper()
	out, err := gunzip(data)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

type memReader struct{ data []byte }

func (m *memReader) ReadRange(ctx context.Context, offset, length uint64) ([]byte, error) {
	if offset >= uint64(len(m.data)) {
		return nil, nil
	}
	end := offset + length
	if end > uint64(len(m.data)) {
		end = uint64(len(m.data))
	}
	return m.data[offset:end], nil
}
