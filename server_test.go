package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/paulmach/orb/maptile"

	"tilefix/pkg/layerconfig"
)

func get(t *testing.T, h http.Handler, target string) *http.Response {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec.Result()
}

func TestProxyFixesKnownTiles(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f.engine)

	resp := get(t, h, "/proxy/"+url.PathEscape(f.raster.URL+"/5/0/0.png"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Tilefix-Corrections"); got != "applied" {
		t.Fatalf("corrections header %q", got)
	}
	if got := resp.Header.Get("Content-Type"); got != "image/png" {
		t.Fatalf("content type %q", got)
	}

	// no corrections in the archive for this tile
	resp = get(t, h, "/proxy/"+url.PathEscape(f.raster.URL+"/5/3/3.png"))
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Tilefix-Corrections") != "" {
		t.Fatalf("status %d, header %q", resp.StatusCode, resp.Header.Get("X-Tilefix-Corrections"))
	}
}

func TestProxyPassesUnknownTilesThrough(t *testing.T) {
	f := newFixture(t)
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "tilefix-test" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("untouched"))
	}))
	defer other.Close()

	resp := get(t, newRouter(f.engine), "/proxy/"+url.PathEscape(other.URL+"/static/logo.txt"))
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "untouched" {
		t.Fatalf("status %d, body %q", resp.StatusCode, body)
	}

	resp = get(t, newRouter(f.engine), "/proxy/"+url.PathEscape("ftp://example.com/1/2/3.png"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("ftp upstream: status %d", resp.StatusCode)
	}
}

func TestTileRoute(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f.engine)

	resp := get(t, h, "/tiles/test/5/0/0.png")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Tilefix-Corrections") != "applied" {
		t.Fatalf("status %d", resp.StatusCode)
	}
	for target, want := range map[string]int{
		"/tiles/nope/5/0/0.png":  http.StatusNotFound,
		"/tiles/test/5/32/0.png": http.StatusBadRequest,
		"/tiles/test/x/0/0.png":  http.StatusBadRequest,
	} {
		if resp := get(t, h, target); resp.StatusCode != want {
			t.Errorf("%s: status %d, want %d", target, resp.StatusCode, want)
		}
	}
}

func TestLayersAndHealth(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f.engine)

	resp := get(t, h, "/layers")
	var layers []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&layers); err != nil {
		t.Fatal(err)
	}
	if len(layers) != f.engine.Registry.Len() {
		t.Fatalf("%d layers, want %d", len(layers), f.engine.Registry.Len())
	}
	if resp := get(t, h, "/healthz"); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz %d", resp.StatusCode)
	}
	if resp := get(t, h, "/metrics"); resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics %d", resp.StatusCode)
	}
}

func TestUpstreamURL(t *testing.T) {
	for _, tc := range []struct {
		target string
		want   string
		ok     bool
	}{
		{"/proxy/" + url.PathEscape("https://a.tile.example.com/1/2/3.png"), "https://a.tile.example.com/1/2/3.png", true},
		{"/proxy/" + url.PathEscape("https://t.example.com/1/2/3.png?key=a&style=b"), "https://t.example.com/1/2/3.png?key=a&style=b", true},
		{"/proxy/" + url.PathEscape("https://t.example.com/1/2/3.png") + "?key=k", "https://t.example.com/1/2/3.png?key=k", true},
		{"/proxy/" + url.PathEscape("file:///etc/passwd"), "", false},
	} {
		got, err := upstreamURL(httptest.NewRequest(http.MethodGet, tc.target, nil))
		if (err == nil) != tc.ok || got != tc.want {
			t.Errorf("%s: got %q, %v", tc.target, got, err)
		}
	}
}

func TestParseTile(t *testing.T) {
	for _, tc := range []struct {
		z, x, y string
		want    maptile.Tile
		ok      bool
	}{
		{"5", "1", "2.png", maptile.New(1, 2, 5), true},
		{"18", "131072", "87381@2x.png", maptile.New(131072, 87381, 18), true},
		{"0", "0", "0", maptile.New(0, 0, 0), true},
		{"1", "2", "0.png", maptile.Tile{}, false},
		{"31", "0", "0", maptile.Tile{}, false},
		{"a", "0", "0", maptile.Tile{}, false},
	} {
		got, ok := parseTile(tc.z, tc.x, tc.y)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("%s/%s/%s: got %v %t", tc.z, tc.x, tc.y, got, ok)
		}
	}
}

func TestTileRouteLayerWithoutTemplate(t *testing.T) {
	f := newFixture(t)
	bare := layerconfig.MustNew("bare", nil, map[int]float64{0: 1, 10: 2},
		[]layerconfig.LineStyle{layerconfig.NewLineStyle("#ff0000", "osm")})
	f.engine.Registry.Register(bare)

	if resp := get(t, newRouter(f.engine), "/tiles/bare/5/0/0.png"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d", resp.StatusCode)
	}
}
