package pmarchive

import (
	"bytes"
	"compress/gzip"
	"sort"

	"github.com/paulmach/orb/maptile"
	"github.com/protomaps/go-pmtiles/pmtiles"
)

// BuildOptions controls Build.
type BuildOptions struct {
	// LeafSize moves entries into leaf directories of this many entries when
	// there are more tiles than that. Zero keeps everything in the root.
	LeafSize int
	// TileType defaults to MVT.
	TileType pmtiles.TileType
}

// Build packs tiles into a gzip compressed, clustered PMTiles v3 archive.
// Identical consecutive tiles share one run-length entry.
func Build(tiles map[maptile.Tile][]byte, opts BuildOptions) []byte {
	type item struct {
		id   uint64
		data []byte
	}
	items := make([]item, 0, len(tiles))
	minZoom, maxZoom := uint8(255), uint8(0)
	for t, data := range tiles {
		z := uint8(t.Z)
		if z < minZoom {
			minZoom = z
		}
		if z > maxZoom {
			maxZoom = z
		}
		items = append(items, item{id: pmtiles.ZxyToID(z, t.X, t.Y), data: gzipBytes(data)})
	}
	if len(items) == 0 {
		minZoom = 0
	}
	sort.Slice(items, func(i, j int) bool { return items[i].id < items[j].id })

	var (
		tileData bytes.Buffer
		entries  []pmtiles.EntryV3
	)
	for _, it := range items {
		if n := len(entries); n > 0 {
			last := &entries[n-1]
			prev := tileData.Bytes()[last.Offset : last.Offset+uint64(last.Length)]
			if last.TileID+uint64(last.RunLength) == it.id && bytes.Equal(prev, it.data) {
				last.RunLength++
				continue
			}
		}
		entries = append(entries, pmtiles.EntryV3{
			TileID:    it.id,
			Offset:    uint64(tileData.Len()),
			Length:    uint32(len(it.data)),
			RunLength: 1,
		})
		tileData.Write(it.data)
	}

	root, leaves := entries, []byte(nil)
	if opts.LeafSize > 0 && len(entries) > opts.LeafSize {
		root = nil
		var leafBuf bytes.Buffer
		for i := 0; i < len(entries); i += opts.LeafSize {
			end := i + opts.LeafSize
			if end > len(entries) {
				end = len(entries)
			}
			chunk := pmtiles.SerializeEntries(entries[i:end], pmtiles.Gzip)
			root = append(root, pmtiles.EntryV3{
				TileID: entries[i].TileID,
				Offset: uint64(leafBuf.Len()),
				Length: uint32(len(chunk)),
			})
			leafBuf.Write(chunk)
		}
		leaves = leafBuf.Bytes()
	}

	rootData := pmtiles.SerializeEntries(root, pmtiles.Gzip)
	metadata := gzipBytes([]byte("{}"))
	tileType := opts.TileType
	if tileType == pmtiles.UnknownTileType {
		tileType = pmtiles.Mvt
	}

	h := pmtiles.HeaderV3{
		SpecVersion:         3,
		RootOffset:          pmtiles.HeaderV3LenBytes,
		RootLength:          uint64(len(rootData)),
		AddressedTilesCount: uint64(len(items)),
		TileEntriesCount:    uint64(len(entries)),
		TileContentsCount:   uint64(len(entries)),
		Clustered:           true,
		InternalCompression: pmtiles.Gzip,
		TileCompression:     pmtiles.Gzip,
		TileType:            tileType,
		MinZoom:             minZoom,
		MaxZoom:             maxZoom,
		MinLonE7:            -180 * 10000000,
		MinLatE7:            -85 * 10000000,
		MaxLonE7:            180 * 10000000,
		MaxLatE7:            85 * 10000000,
	}
	h.MetadataOffset = h.RootOffset + h.RootLength
	h.MetadataLength = uint64(len(metadata))
	h.LeafDirectoryOffset = h.MetadataOffset + h.MetadataLength
	h.LeafDirectoryLength = uint64(len(leaves))
	h.TileDataOffset = h.LeafDirectoryOffset + h.LeafDirectoryLength
	h.TileDataLength = uint64(tileData.Len())

	var out bytes.Buffer
	out.Write(pmtiles.SerializeHeader(h))
	out.Write(rootData)
	out.Write(metadata)
	out.Write(leaves)
	out.Write(tileData.Bytes())
	return out.Bytes()
}

func gzipBytes(data []byte) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write(data)
	zw.Close()
	return buf.Bytes()
}
