package pmarchive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// RangeReader reads a byte range of an archive. Reads past the end return the
// available bytes without error.
type RangeReader interface {
	ReadRange(ctx context.Context, offset, length uint64) ([]byte, error)
}

// HTTPReader reads ranges of a remote archive with HTTP range requests.
type HTTPReader struct {
	URL    string
	Client *http.Client
	Header http.Header
}

// NewHTTPReader returns a reader for the archive at rawURL.
func NewHTTPReader(rawURL string, client *http.Client) *HTTPReader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPReader{URL: rawURL, Client: client}
}

// StatusError is returned when the archive server answers with an unexpected
// status.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pmarchive: GET %s: status %d", e.URL, e.Status)
}

func (h *HTTPReader) ReadRange(ctx context.Context, offset, length uint64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range h.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		return io.ReadAll(io.LimitReader(resp.Body, int64(length)))
	case http.StatusOK:
		// server ignored the range header
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if offset >= uint64(len(body)) {
			return nil, nil
		}
		end := offset + length
		if end > uint64(len(body)) {
			end = uint64(len(body))
		}
		return body[offset:end], nil
	case http.StatusRequestedRangeNotSatisfiable:
		return nil, nil
	}
	return nil, &StatusError{URL: h.URL, Status: resp.StatusCode}
}

// FileReader reads ranges of a local archive.
type FileReader struct {
	f *os.File
}

// OpenFile opens a local archive.
func OpenFile(path string) (*FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open archive %s", path)
	}
	return &FileReader{f: f}, nil
}

func (r *FileReader) ReadRange(ctx context.Context, offset, length uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	n, err := r.f.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// Close releases the file.
func (r *FileReader) Close() error { return r.f.Close() }

// Open picks a reader for location: http(s) URLs are read remotely, file://
// URLs and plain paths from disk.
func Open(location string, client *http.Client) (RangeReader, error) {
	lower := strings.ToLower(location)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return NewHTTPReader(location, client), nil
	case strings.HasPrefix(lower, "file://"):
		u, err := url.Parse(location)
		if err != nil {
			return nil, errors.Wrapf(err, "parse archive location %s", location)
		}
		return OpenFile(u.Path)
	}
	return OpenFile(location)
}
