// Package fixer fetches raster map tiles and redraws boundary corrections on
// top of them.
package fixer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"sync"
	"time"

	"github.com/paulmach/orb/maptile"
	"github.com/sirupsen/logrus"

	"tilefix/internal/logger"
	"tilefix/internal/metrics"
	"tilefix/pkg/corrections"
	"tilefix/pkg/layerconfig"
)

// ErrNoConfig is returned by FixTileURL when no configuration matches the URL.
var ErrNoConfig = errors.New("fixer: no layer configuration matches the tile url")

// CorrectionSource provides decoded corrections per tile.
// *corrections.Source implements it.
type CorrectionSource interface {
	GetCorrections(ctx context.Context, tile maptile.Tile, layers []string) (corrections.Result, error)
}

// CorrectionFailure is delivered to subscribers when corrections for a tile
// could not be obtained.
type CorrectionFailure struct {
	Err     error
	Tile    maptile.Tile
	TileURL string
}

// Result is the outcome of FetchAndFixTile.
type Result struct {
	Data        []byte
	ContentType string
	// WasFixed is set when corrections were drawn onto the tile.
	WasFixed bool
	// CorrectionsFailed is set when the original tile was returned because
	// corrections could not be obtained or drawn.
	CorrectionsFailed bool
	CorrectionsErr    error
}

// Fixer is safe for concurrent use.
type Fixer struct {
	source CorrectionSource
	client *http.Client

	mu     sync.RWMutex
	subs   map[int]func(CorrectionFailure)
	nextID int

	surfaces sync.Pool
}

// Option configures a Fixer.
type Option func(*Fixer)

// WithHTTPClient sets the client used for raster fetches.
func WithHTTPClient(c *http.Client) Option { return func(f *Fixer) { f.client = c } }

// New returns a Fixer drawing corrections from source.
func New(source CorrectionSource, opts ...Option) *Fixer {
	f := &Fixer{
		source: source,
		client: &http.Client{Timeout: 30 * time.Second},
		subs:   make(map[int]func(CorrectionFailure)),
	}
	f.surfaces.New = func() interface{} { return new(image.RGBA) }
	for _, o := range opts {
		o(f)
	}
	return f
}

// Subscribe registers fn for correction failure notifications. Calling the
// returned function removes it.
func (f *Fixer) Subscribe(fn func(CorrectionFailure)) (unsubscribe func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *Fixer) notify(ev CorrectionFailure) {
	metrics.CorrectionFailuresTotal.Inc()
	logger.L().WithFields(logrus.Fields{
		"tile": tileString(ev.Tile),
		"url":  ev.TileURL,
	}).Warnf("corrections unavailable: %v", ev.Err)

	f.mu.RLock()
	fns := make([]func(CorrectionFailure), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// IsCanceled reports whether err stems from a canceled or expired context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

type correctionsReply struct {
	result corrections.Result
	err    error
}

// FetchAndFixTile fetches the raster tile at tileURL and the corrections for
// tile concurrently, then draws the corrections configured by cfg.
//
// A failed raster fetch always fails the call with a *FetchError. When the
// corrections cannot be obtained or drawn and fallback is set, the original
// bytes are returned with CorrectionsFailed; otherwise the error is returned.
// A tile without corrections at its zoom is returned unchanged. When ctx ends
// the context error is returned and no failure is reported.
func (f *Fixer) FetchAndFixTile(ctx context.Context, tileURL string, tile maptile.Tile, cfg *layerconfig.Config, opts FetchOptions, fallback bool) (*Result, error) {
	layers := cfg.LayerNames(int(tile.Z))

	replies := make(chan correctionsReply, 1)
	if len(layers) > 0 {
		go func() {
			r, err := f.source.GetCorrections(ctx, tile, layers)
			replies <- correctionsReply{r, err}
		}()
	} else {
		replies <- correctionsReply{}
	}
	rast, rastErr := f.fetchRaster(ctx, tileURL, opts)
	reply := <-replies

	log := logger.L().WithFields(logrus.Fields{"tile": tileString(tile), "layer": cfg.ID()})
	if err := ctx.Err(); err != nil {
		metrics.TilesTotal.WithLabelValues(metrics.OutcomeCanceled).Inc()
		log.Debug("canceled")
		return nil, err
	}
	if reply.err != nil {
		f.notify(CorrectionFailure{Err: reply.err, Tile: tile, TileURL: tileURL})
	}
	if rastErr != nil {
		metrics.TilesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return nil, rastErr
	}

	original := &Result{Data: rast.data, ContentType: rast.contentType}
	if reply.err != nil {
		if !fallback {
			metrics.TilesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
			return nil, reply.err
		}
		metrics.TilesTotal.WithLabelValues(metrics.OutcomeFallback).Inc()
		original.CorrectionsFailed = true
		original.CorrectionsErr = reply.err
		return original, nil
	}
	if reply.result.CountLayers(layers) == 0 {
		metrics.TilesTotal.WithLabelValues(metrics.OutcomeUnchanged).Inc()
		log.Debug("no corrections")
		return original, nil
	}

	data, ct, err := f.Render(rast.data, tile, cfg, reply.result)
	if err != nil {
		err = fmt.Errorf("render %s: %w", tileString(tile), err)
		f.notify(CorrectionFailure{Err: err, Tile: tile, TileURL: tileURL})
		if !fallback {
			metrics.TilesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
			return nil, err
		}
		metrics.TilesTotal.WithLabelValues(metrics.OutcomeFallback).Inc()
		original.CorrectionsFailed = true
		original.CorrectionsErr = err
		return original, nil
	}
	metrics.TilesTotal.WithLabelValues(metrics.OutcomeFixed).Inc()
	log.Debugf("fixed, %d features", reply.result.CountLayers(layers))
	return &Result{Data: data, ContentType: ct, WasFixed: true}, nil
}

// FixTileURL resolves the configuration and coordinate of tileURL through reg
// and fixes the tile with fallback enabled. ErrNoConfig is returned when no
// configuration claims the URL.
func (f *Fixer) FixTileURL(ctx context.Context, tileURL string, reg *layerconfig.Registry, opts FetchOptions) (*Result, error) {
	cfg, tile, ok := reg.ParseTileURL(tileURL)
	if !ok {
		return nil, ErrNoConfig
	}
	return f.FetchAndFixTile(ctx, tileURL, tile, cfg, opts, true)
}

func tileString(t maptile.Tile) string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}
