package main

import (
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"tilefix/pkg/corrections"
	"tilefix/pkg/fixer"
	"tilefix/pkg/layerconfig"
	"tilefix/pkg/pmarchive"
)

// Engine bundles the pieces every command shares.
type Engine struct {
	Registry *layerconfig.Registry
	Archive  *pmarchive.Archive
	Source   *corrections.Source
	Fixer    *fixer.Fixer
	Header   http.Header
	Fallback bool

	closer io.Closer
}

var engine *Engine

func InitEngine() {
	e, err := NewEngine(conf)
	if err != nil {
		log.Fatalf("init engine error, details: %s", err)
	}
	engine = e
	if e.closer != nil {
		SafeExitInst.Register(func() { e.closer.Close() })
	}
	log.Infof("engine ready, %d layer configs, archive %s", e.Registry.Len(), conf.Corrections.Archive)
}

// NewEngine builds the registry, archive and fixer described by c.
func NewEngine(c *Conf) (*Engine, error) {
	reg := layerconfig.DefaultRegistry()
	if c.Layers.File != "" {
		extra, err := layerconfig.LoadFile(c.Layers.File)
		if err != nil {
			return nil, err
		}
		reg = reg.CreateMergedRegistry(extra...)
	}

	if c.Corrections.Archive == "" {
		return nil, errors.New("corrections.archive is not set")
	}
	client := &http.Client{Timeout: time.Duration(c.Upstream.Timeout) * time.Second}
	src, err := pmarchive.Open(c.Corrections.Archive, client)
	if err != nil {
		return nil, errors.Wrapf(err, "open archive %s", c.Corrections.Archive)
	}
	archive := pmarchive.New(src)
	source := corrections.NewSource(archive, corrections.NewCache(c.Corrections.MaxFeatures))

	header := http.Header{}
	if c.Upstream.UserAgent != "" {
		header.Set("User-Agent", c.Upstream.UserAgent)
	}
	if c.Upstream.Referer != "" {
		header.Set("Referer", c.Upstream.Referer)
	}

	e := &Engine{
		Registry: reg,
		Archive:  archive,
		Source:   source,
		Fixer:    fixer.New(source, fixer.WithHTTPClient(client)),
		Header:   header,
		Fallback: c.Corrections.Fallback,
	}
	if cl, ok := src.(io.Closer); ok {
		e.closer = cl
	}
	return e, nil
}

func (e *Engine) fetchOptions() fixer.FetchOptions {
	return fixer.FetchOptions{Header: e.Header}
}
