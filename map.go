package main

import (
	"github.com/paulmach/orb/maptile"
	"github.com/pkg/errors"

	"tilefix/pkg/layerconfig"
	"tilefix/pkg/tilematch"
)

// TileMap is the provider a seed task fetches from.
type TileMap struct {
	Name   string
	Format string
	URL    string
	Config *layerconfig.Config
	Values map[string]string
	Retina bool

	template *tilematch.Template
}

// NewTileMap binds a provider url to the layer configuration whose styles
// are drawn. An empty url falls back to the configuration's first template.
func NewTileMap(name, format, url string, cfg *layerconfig.Config) (*TileMap, error) {
	if url == "" {
		templates := cfg.Templates()
		if len(templates) == 0 {
			return nil, errors.Errorf("tile map %s: layer %s has no tile url template", name, cfg.ID())
		}
		url = templates[0]
	}
	t, err := tilematch.Parse(url)
	if err != nil {
		return nil, errors.Wrapf(err, "tile map %s", name)
	}
	return &TileMap{Name: name, Format: format, URL: url, Config: cfg, template: t}, nil
}

// GetTileURL renders the url of tile t.
func (m *TileMap) GetTileURL(t maptile.Tile) string {
	opts := tilematch.RenderOptions{Values: m.Values}
	if m.Retina {
		opts.Retina = "@2x"
	}
	return m.template.Render(t, opts)
}
