package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"

	"tilefix/pkg/corrections"
	"tilefix/pkg/layerconfig"
	"tilefix/pkg/pmarchive"
)

// CountReport summarises the features of a corrections archive.
type CountReport struct {
	Tiles    int
	Features int
	Layers   map[string]int

	// Unreferenced lists archive layers no registered config draws.
	Unreferenced []string
}

func InitCount() {
	start := time.Now()
	report, err := countArchive(SafeExitInst.Context(), engine.Archive)
	if err != nil {
		log.Fatal(err)
	}
	report.markUnreferenced(engine.Registry)
	report.Print(os.Stdout)
	for _, name := range report.Unreferenced {
		log.Warnf("layer %s is not drawn by any layer config", name)
	}
	log.Infof("%.3fs finished", time.Since(start).Seconds())
}

// countArchive decodes every tile of a and counts features per layer.
func countArchive(ctx context.Context, a *pmarchive.Archive) (*CountReport, error) {
	report := &CountReport{Layers: map[string]int{}}
	err := a.Walk(ctx, func(z uint8, x, y uint32, data []byte) error {
		res, err := corrections.Decode(data)
		if err != nil {
			return errors.Wrapf(err, "decode %d/%d/%d", z, x, y)
		}
		report.Tiles++
		for name, fs := range res {
			report.Layers[name] += len(fs)
			report.Features += len(fs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (r *CountReport) markUnreferenced(reg *layerconfig.Registry) {
	known := map[string]bool{}
	for _, cfg := range reg.All() {
		for _, name := range cfg.LayerNamesForAllZooms() {
			known[name] = true
		}
	}
	r.Unreferenced = nil
	for name := range r.Layers {
		if !known[name] {
			r.Unreferenced = append(r.Unreferenced, name)
		}
	}
	sort.Strings(r.Unreferenced)
}

// Print writes one line per layer, sorted by name, then the totals.
func (r *CountReport) Print(w io.Writer) {
	names := make([]string, 0, len(r.Layers))
	for name := range r.Layers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%-20s %d\n", name, r.Layers[name])
	}
	fmt.Fprintf(w, "%-20s %d\n", "total features", r.Features)
	fmt.Fprintf(w, "%-20s %d\n", "tiles", r.Tiles)
	for _, name := range r.Unreferenced {
		fmt.Fprintf(w, "%-20s %s\n", "unreferenced", name)
	}
}
