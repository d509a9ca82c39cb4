package pmarchive

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/protomaps/go-pmtiles/pmtiles"
)

// decompress undoes the archive's internal or tile compression.
func decompress(data []byte, c pmtiles.Compression) ([]byte, error) {
	switch c {
	case pmtiles.NoCompression, pmtiles.UnknownCompression:
		// some writers leave tile compression unset for raw MVT
		if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
			return gunzip(data)
		}
		return data, nil
	case pmtiles.Gzip:
		return gunzip(data)
	}
	return nil, errors.Wrapf(ErrMalformed, "unsupported compression %d", c)
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	return out, nil
}

// decodeEntries reads a serialized v3 directory: an entry count followed by
// column-wise varints for tile id deltas, run lengths, lengths and offsets.
// pmtiles.DeserializeEntries has no error return, so truncated or oversized
// directories are checked here and reported as ErrMalformed.
func decodeEntries(data []byte) ([]pmtiles.EntryV3, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	read := func() (uint64, error) {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return 0, errors.Wrap(ErrMalformed, "truncated directory")
		}
		return v, nil
	}

	n, err := read()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(data)) {
		return nil, errors.Wrap(ErrMalformed, "directory entry count exceeds its size")
	}
	entries := make([]pmtiles.EntryV3, n)

	var last uint64
	for i := range entries {
		v, err := read()
		if err != nil {
			return nil, err
		}
		last += v
		entries[i].TileID = last
	}
	for i := range entries {
		v, err := read()
		if err != nil {
			return nil, err
		}
		entries[i].RunLength = uint32(v)
	}
	for i := range entries {
		v, err := read()
		if err != nil {
			return nil, err
		}
		entries[i].Length = uint32(v)
	}
	for i := range entries {
		v, err := read()
		if err != nil {
			return nil, err
		}
		if v == 0 && i > 0 {
			entries[i].Offset = entries[i-1].Offset + uint64(entries[i-1].Length)
		} else {
			entries[i].Offset = v - 1
		}
	}
	return entries, nil
}
