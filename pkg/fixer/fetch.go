package fixer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"tilefix/internal/metrics"
)

// maxErrorBody caps how much of an upstream error response is kept.
const maxErrorBody = 64 << 10

// FetchError reports a failed raster tile fetch. Status and Body are set when
// the upstream answered with a non success status.
type FetchError struct {
	URL    string
	Status int
	Body   []byte
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetchOptions adjusts the upstream raster request.
type FetchOptions struct {
	// Header is added to the request, e.g. a Referer or User-Agent the
	// provider requires.
	Header http.Header
	// Client overrides the Fixer's client for this request.
	Client *http.Client
}

type raster struct {
	data        []byte
	contentType string
}

func (f *Fixer) fetchRaster(ctx context.Context, url string, opts FetchOptions) (raster, error) {
	start := time.Now()
	defer func() {
		metrics.RasterFetchDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return raster{}, &FetchError{URL: url, Err: err}
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	client := opts.Client
	if client == nil {
		client = f.client
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return raster{}, ctx.Err()
		}
		return raster{}, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return raster{}, &FetchError{URL: url, Status: resp.StatusCode, Body: body}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return raster{}, ctx.Err()
		}
		return raster{}, &FetchError{URL: url, Status: resp.StatusCode, Err: errors.Wrap(err, "read body")}
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return raster{data: data, contentType: ct}, nil
}
