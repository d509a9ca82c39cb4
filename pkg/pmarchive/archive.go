// Package pmarchive reads tiles out of a PMTiles v3 archive over any byte
// range source, local or remote.
package pmarchive

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/protomaps/go-pmtiles/pmtiles"
)

// ErrMalformed is wrapped by every error caused by the archive content rather
// than by the transport.
var ErrMalformed = errors.New("pmarchive: malformed archive")

const (
	// initialFetch covers the header and, for most archives, the root
	// directory in one request.
	initialFetch = 16384
	maxDepth     = 4
	maxLeaves    = 256
)

// Archive is a lazily opened PMTiles archive. It is safe for concurrent use;
// no lock is held while reading from the underlying source.
type Archive struct {
	src RangeReader

	mu     sync.Mutex
	header *pmtiles.HeaderV3
	root   []pmtiles.EntryV3
	leaves map[uint64][]pmtiles.EntryV3
}

// New wraps a range source.
func New(src RangeReader) *Archive {
	return &Archive{src: src, leaves: make(map[uint64][]pmtiles.EntryV3)}
}

// Header returns the archive header, loading it on first use.
func (a *Archive) Header(ctx context.Context) (pmtiles.HeaderV3, error) {
	h, _, err := a.load(ctx)
	if err != nil {
		return pmtiles.HeaderV3{}, err
	}
	return h, nil
}

func (a *Archive) load(ctx context.Context) (pmtiles.HeaderV3, []pmtiles.EntryV3, error) {
	a.mu.Lock()
	if a.header != nil {
		h, root := *a.header, a.root
		a.mu.Unlock()
		return h, root, nil
	}
	a.mu.Unlock()

	buf, err := a.src.ReadRange(ctx, 0, initialFetch)
	if err != nil {
		return pmtiles.HeaderV3{}, nil, err
	}
	if len(buf) < pmtiles.HeaderV3LenBytes {
		return pmtiles.HeaderV3{}, nil, errors.Wrap(ErrMalformed, "archive shorter than its header")
	}
	h, err := pmtiles.DeserializeHeader(buf[:pmtiles.HeaderV3LenBytes])
	if err != nil {
		return pmtiles.HeaderV3{}, nil, errors.Wrap(ErrMalformed, err.Error())
	}
	if h.SpecVersion != 3 {
		return pmtiles.HeaderV3{}, nil, errors.Wrapf(ErrMalformed, "unsupported spec version %d", h.SpecVersion)
	}

	var rootData []byte
	if end := h.RootOffset + h.RootLength; end <= uint64(len(buf)) {
		rootData = buf[h.RootOffset:end]
	} else if rootData, err = a.readExact(ctx, h.RootOffset, h.RootLength); err != nil {
		return pmtiles.HeaderV3{}, nil, err
	}
	root, err := a.decodeDirectory(rootData, h.InternalCompression)
	if err != nil {
		return pmtiles.HeaderV3{}, nil, err
	}

	a.mu.Lock()
	if a.header == nil {
		a.header, a.root = &h, root
	}
	h, root = *a.header, a.root
	a.mu.Unlock()
	return h, root, nil
}

func (a *Archive) readExact(ctx context.Context, offset, length uint64) ([]byte, error) {
	data, err := a.src.ReadRange(ctx, offset, length)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) != length {
		return nil, errors.Wrapf(ErrMalformed, "range %d+%d is truncated", offset, length)
	}
	return data, nil
}

func (a *Archive) decodeDirectory(data []byte, c pmtiles.Compression) ([]pmtiles.EntryV3, error) {
	raw, err := decompress(data, c)
	if err != nil {
		return nil, err
	}
	return decodeEntries(raw)
}

func (a *Archive) leaf(ctx context.Context, h pmtiles.HeaderV3, offset, length uint64) ([]pmtiles.EntryV3, error) {
	a.mu.Lock()
	entries, ok := a.leaves[offset]
	a.mu.Unlock()
	if ok {
		return entries, nil
	}

	data, err := a.readExact(ctx, h.LeafDirectoryOffset+offset, length)
	if err != nil {
		return nil, err
	}
	if entries, err = a.decodeDirectory(data, h.InternalCompression); err != nil {
		return nil, err
	}

	a.mu.Lock()
	if len(a.leaves) >= maxLeaves {
		a.leaves = make(map[uint64][]pmtiles.EntryV3)
	}
	a.leaves[offset] = entries
	a.mu.Unlock()
	return entries, nil
}

// Tile returns the decompressed tile at z/x/y. A tile missing from the
// archive yields nil data and a nil error.
func (a *Archive) Tile(ctx context.Context, z uint8, x, y uint32) ([]byte, error) {
	h, entries, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	if z < h.MinZoom || z > h.MaxZoom {
		return nil, nil
	}
	id := pmtiles.ZxyToID(z, x, y)
	for depth := 0; depth < maxDepth; depth++ {
		entry, ok := pmtiles.FindTile(entries, id)
		if !ok {
			return nil, nil
		}
		if entry.RunLength > 0 {
			data, err := a.readExact(ctx, h.TileDataOffset+entry.Offset, uint64(entry.Length))
			if err != nil {
				return nil, err
			}
			return decompress(data, h.TileCompression)
		}
		if entries, err = a.leaf(ctx, h, entry.Offset, uint64(entry.Length)); err != nil {
			return nil, err
		}
	}
	return nil, errors.Wrap(ErrMalformed, "directory nesting too deep")
}

// Walk calls fn for every addressed tile, leaves included. Tiles sharing data
// through a run length are reported once per tile id.
func (a *Archive) Walk(ctx context.Context, fn func(z uint8, x, y uint32, data []byte) error) error {
	h, root, err := a.load(ctx)
	if err != nil {
		return err
	}
	return a.walk(ctx, h, root, 0, fn)
}

func (a *Archive) walk(ctx context.Context, h pmtiles.HeaderV3, entries []pmtiles.EntryV3, depth int, fn func(z uint8, x, y uint32, data []byte) error) error {
	if depth >= maxDepth {
		return errors.Wrap(ErrMalformed, "directory nesting too deep")
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.RunLength == 0 {
			leaf, err := a.leaf(ctx, h, e.Offset, uint64(e.Length))
			if err != nil {
				return err
			}
			if err := a.walk(ctx, h, leaf, depth+1, fn); err != nil {
				return err
			}
			continue
		}
		data, err := a.readExact(ctx, h.TileDataOffset+e.Offset, uint64(e.Length))
		if err != nil {
			return err
		}
		if data, err = decompress(data, h.TileCompression); err != nil {
			return err
		}
		for i := uint32(0); i < e.RunLength; i++ {
			z, x, y := pmtiles.IDToZxy(e.TileID + uint64(i))
			if err := fn(z, x, y, data); err != nil {
				return err
			}
		}
	}
	return nil
}
