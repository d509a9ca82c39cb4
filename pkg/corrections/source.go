// Package corrections turns an archive of boundary correction vector tiles
// into decoded features per tile coordinate, with a shared bounded cache.
package corrections

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/pkg/errors"
	"github.com/protomaps/go-pmtiles/pmtiles"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"tilefix/internal/logger"
)

// ErrCorrections matches every failure to obtain corrections for a tile.
var ErrCorrections = errors.New("corrections unavailable")

// Error reports why corrections for Tile could not be obtained.
type Error struct {
	Tile maptile.Tile
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("corrections %d/%d/%d: %v", e.Tile.Z, e.Tile.X, e.Tile.Y, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCorrections) true for any *Error.
func (e *Error) Is(target error) bool { return target == ErrCorrections }

// TileReader is the archive a Source reads from. *pmarchive.Archive
// implements it.
type TileReader interface {
	Header(ctx context.Context) (pmtiles.HeaderV3, error)
	// Tile returns decompressed tile bytes, or nil when the archive has no
	// tile at z/x/y.
	Tile(ctx context.Context, z uint8, x, y uint32) ([]byte, error)
}

// Source answers correction lookups from an archive through a cache. At most
// one archive read per coordinate is in flight at a time.
type Source struct {
	reader TileReader
	cache  *Cache
	group  singleflight.Group
}

// NewSource returns a source reading from r. A nil cache gets a default one.
func NewSource(r TileReader, cache *Cache) *Source {
	if cache == nil {
		cache = NewCache(0)
	}
	return &Source{reader: r, cache: cache}
}

// Cache returns the cache shared by every lookup through s.
func (s *Source) Cache() *Cache { return s.cache }

// GetCorrections returns the features of the requested layers at tile. Layers
// the archive does not carry map to nil. A tile absent from the archive is an
// empty result, not an error.
//
// When the context ends the context error is returned as is; every other
// failure is an *Error.
func (s *Source) GetCorrections(ctx context.Context, tile maptile.Tile, layers []string) (Result, error) {
	h, err := s.reader.Header(ctx)
	if err != nil {
		return nil, s.fail(ctx, tile, err)
	}

	src := tile
	if maxZoom := maptile.Zoom(h.MaxZoom); tile.Z > maxZoom {
		src = tile.Parent()
		for src.Z > maxZoom {
			src = src.Parent()
		}
	}

	full, err := s.load(ctx, src)
	if err != nil {
		return nil, s.fail(ctx, tile, err)
	}
	out := full.subset(layers)
	if src != tile {
		out = overzoom(out, src, tile)
	}
	return out, nil
}

func (s *Source) fail(ctx context.Context, tile maptile.Tile, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &Error{Tile: tile, Err: err}
}

// load returns every decoded layer of the archive tile src.
func (s *Source) load(ctx context.Context, src maptile.Tile) (Result, error) {
	if r, ok := s.cache.Get(src); ok {
		return r, nil
	}
	key := fmt.Sprintf("%d/%d/%d", src.Z, src.X, src.Y)
	for {
		ch := s.group.DoChan(key, func() (interface{}, error) {
			return s.fetch(ctx, src)
		})
		var res singleflight.Result
		select {
		case res = <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if res.Err == nil {
			return res.Val.(Result), nil
		}
		// The leader may have been canceled while this caller is still live.
		if isContextErr(res.Err) && ctx.Err() == nil {
			continue
		}
		return nil, res.Err
	}
}

func (s *Source) fetch(ctx context.Context, src maptile.Tile) (Result, error) {
	start := time.Now()
	data, err := s.reader.Tile(ctx, uint8(src.Z), src.X, src.Y)
	if err != nil {
		return nil, err
	}
	var r Result
	if len(data) == 0 {
		r = Result{}
	} else if r, err = Decode(data); err != nil {
		return nil, errors.Wrap(err, "decode vector tile")
	}
	s.cache.Put(src, r)
	logger.L().WithFields(logrus.Fields{
		"tile":     fmt.Sprintf("%d/%d/%d", src.Z, src.X, src.Y),
		"bytes":    len(data),
		"features": r.Count(),
		"elapsed":  time.Since(start),
	}).Debug("corrections decoded")
	return r, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// overzoom rescales features of the ancestor tile src into the local
// coordinates of its descendant dst, dropping features that miss dst.
func overzoom(r Result, src, dst maptile.Tile) Result {
	dz := uint32(dst.Z - src.Z)
	scale := float64(uint32(1) << dz)
	ox := float64(dst.X - src.X<<dz)
	oy := float64(dst.Y - src.Y<<dz)

	out := make(Result, len(r))
	for name, features := range r {
		if features == nil {
			out[name] = nil
			continue
		}
		kept := make([]Feature, 0, len(features))
		for _, f := range features {
			extent := float64(f.Extent)
			view := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{extent, extent}}
			geom := make([]orb.LineString, 0, len(f.Geometry))
			for _, ls := range f.Geometry {
				moved := make(orb.LineString, len(ls))
				for i, p := range ls {
					moved[i] = orb.Point{p[0]*scale - ox*extent, p[1]*scale - oy*extent}
				}
				if moved.Bound().Intersects(view) {
					geom = append(geom, moved)
				}
			}
			if len(geom) == 0 {
				continue
			}
			f.Geometry = geom
			kept = append(kept, f)
		}
		out[name] = kept
	}
	return out
}
