package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dimfeld/httptreemux"
	"github.com/paulmach/orb/maptile"
	"github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"

	"tilefix/internal/logger"
	"tilefix/internal/metrics"
	"tilefix/pkg/fixer"
	"tilefix/pkg/tilematch"
)

// Serve runs the correcting tile proxy until a stop signal arrives.
func Serve() {
	srv := &http.Server{
		Addr:         conf.Server.Addr,
		Handler:      newRouter(engine),
		ReadTimeout:  time.Duration(conf.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(conf.Server.WriteTimeout) * time.Second,
	}
	SafeExitInst.Register(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		log.Infof("server stopped")
	})
	log.Infof("%s %s listening on %s", conf.App.Title, conf.App.Version, conf.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("listen error, details: %s", err)
	}
}

type proxy struct {
	e *Engine
	// passthrough fetches tiles no configuration claims.
	passthrough *http.Client
}

func newRouter(e *Engine) http.Handler {
	p := &proxy{e: e, passthrough: &http.Client{Timeout: 30 * time.Second}}

	router := httptreemux.New()
	// upstream urls are percent-encoded into the path and must not be cleaned
	router.RedirectCleanPath = false
	router.GET("/proxy/*url", p.handleProxy)
	router.GET("/tiles/:layer/:z/:x/:y", p.handleTile)
	router.GET("/layers", p.handleLayers)
	router.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		w.Write([]byte("ok"))
	})
	router.GET("/metrics", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		metrics.Handler().ServeHTTP(w, r)
	})
	return router
}

// upstreamURL recovers the percent-encoded upstream url following /proxy/.
func upstreamURL(r *http.Request) (string, error) {
	raw := strings.TrimPrefix(r.URL.EscapedPath(), "/proxy/")
	target, err := url.PathUnescape(raw)
	if err != nil {
		return "", err
	}
	if r.URL.RawQuery != "" {
		if strings.Contains(target, "?") {
			target += "&" + r.URL.RawQuery
		} else {
			target += "?" + r.URL.RawQuery
		}
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("unsupported scheme")
	}
	return target, nil
}

func (p *proxy) handleProxy(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	target, err := upstreamURL(r)
	if err != nil {
		p.reply(w, "proxy", http.StatusBadRequest, "text/plain", []byte("bad upstream url"))
		return
	}
	cfg, tile, ok := p.e.Registry.ParseTileURL(target)
	if !ok {
		p.passThrough(w, r, target)
		return
	}
	res, err := p.e.Fixer.FetchAndFixTile(r.Context(), target, tile, cfg, p.e.fetchOptions(), p.e.Fallback)
	p.respond(w, r, "proxy", tile, target, res, err)
}

func (p *proxy) handleTile(w http.ResponseWriter, r *http.Request, params map[string]string) {
	cfg, ok := p.e.Registry.Get(params["layer"])
	if !ok {
		p.reply(w, "tiles", http.StatusNotFound, "text/plain", []byte("unknown layer"))
		return
	}
	tile, ok := parseTile(params["z"], params["x"], params["y"])
	if !ok {
		p.reply(w, "tiles", http.StatusBadRequest, "text/plain", []byte("bad tile coordinate"))
		return
	}
	set := cfg.TemplateSet()
	if len(set) == 0 {
		p.reply(w, "tiles", http.StatusNotFound, "text/plain", []byte("layer has no tile url template"))
		return
	}
	tmpl := set[0]
	opts := tilematch.RenderOptions{Values: queryValues(r.URL.Query())}
	if strings.Contains(params["y"], "@2x") && tmpl.HasRetina() {
		opts.Retina = "@2x"
	}
	target := tmpl.Render(tile, opts)
	res, err := p.e.Fixer.FetchAndFixTile(r.Context(), target, tile, cfg, p.e.fetchOptions(), p.e.Fallback)
	p.respond(w, r, "tiles", tile, target, res, err)
}

func (p *proxy) handleLayers(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	data, err := json.Marshal(p.e.Registry.All())
	if err != nil {
		p.reply(w, "layers", http.StatusInternalServerError, "text/plain", []byte(err.Error()))
		return
	}
	p.reply(w, "layers", http.StatusOK, "application/json", data)
}

func (p *proxy) respond(w http.ResponseWriter, r *http.Request, route string, tile maptile.Tile, target string, res *fixer.Result, err error) {
	metrics.CacheFeatures.Set(float64(p.e.Source.Cache().TotalFeatures()))
	id, _ := shortid.Generate()
	entry := logger.L().WithFields(logrus.Fields{"req": id, "tile": tileKey(tile)})

	if err != nil {
		if fixer.IsCanceled(err) {
			return
		}
		var fe *fixer.FetchError
		if errors.As(err, &fe) && fe.Status != 0 {
			entry.Debugf("upstream %s answered %d", target, fe.Status)
			p.reply(w, route, fe.Status, "text/plain", fe.Body)
			return
		}
		entry.Warnf("%s: %v", target, err)
		p.reply(w, route, http.StatusBadGateway, "text/plain", []byte(err.Error()))
		return
	}
	if res.CorrectionsFailed {
		w.Header().Set("X-Tilefix-Corrections", "failed")
	} else if res.WasFixed {
		w.Header().Set("X-Tilefix-Corrections", "applied")
	}
	entry.Debugf("%s fixed=%t", target, res.WasFixed)
	p.reply(w, route, http.StatusOK, res.ContentType, res.Data)
}

func (p *proxy) passThrough(w http.ResponseWriter, r *http.Request, target string) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		p.reply(w, "passthrough", http.StatusBadRequest, "text/plain", []byte(err.Error()))
		return
	}
	for k, vs := range p.e.Header {
		req.Header[k] = vs
	}
	resp, err := p.passthrough.Do(req)
	if err != nil {
		if r.Context().Err() == nil {
			p.reply(w, "passthrough", http.StatusBadGateway, "text/plain", []byte(err.Error()))
		}
		return
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
	metrics.ProxyRequestsTotal.WithLabelValues("passthrough", strconv.Itoa(resp.StatusCode)).Inc()
}

func (p *proxy) reply(w http.ResponseWriter, route string, code int, contentType string, body []byte) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(code)
	w.Write(body)
	metrics.ProxyRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// parseTile reads a coordinate; y may carry a retina suffix and a file
// extension, e.g. 12@2x.png.
func parseTile(zs, xs, ys string) (maptile.Tile, bool) {
	if i := strings.IndexAny(ys, "@."); i >= 0 {
		ys = ys[:i]
	}
	z, err := strconv.ParseUint(zs, 10, 8)
	if err != nil || z > tilematch.MaxZoom {
		return maptile.Tile{}, false
	}
	x, err := strconv.ParseUint(xs, 10, 32)
	if err != nil {
		return maptile.Tile{}, false
	}
	y, err := strconv.ParseUint(ys, 10, 32)
	if err != nil {
		return maptile.Tile{}, false
	}
	t := maptile.New(uint32(x), uint32(y), maptile.Zoom(z))
	return t, tilematch.Valid(t)
}

func queryValues(q url.Values) map[string]string {
	out := make(map[string]string, len(q))
	for k := range q {
		out[k] = q.Get(k)
	}
	return out
}

func tileKey(t maptile.Tile) string {
	return strconv.Itoa(int(t.Z)) + "/" + strconv.FormatUint(uint64(t.X), 10) + "/" + strconv.FormatUint(uint64(t.Y), 10)
}
