package tilematch

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb/maptile"
)

var defaultSubdomains = []string{"a", "b", "c"}

// RenderOptions controls how placeholders without a coordinate value are
// filled in by Render.
type RenderOptions struct {
	// Subdomain overrides the subdomain rotation.
	Subdomain string
	// Retina is written for {r}, e.g. "@2x". Empty requests standard tiles.
	Retina string
	// Values fills free placeholders such as {apikey}.
	Values map[string]string
}

// Render builds the instance URL of tile t.
func (t *Template) Render(tile maptile.Tile, opts RenderOptions) string {
	var b strings.Builder
	for _, tok := range t.tokens {
		switch tok.kind {
		case tokLiteral:
			b.WriteString(tok.text)
		case tokZ:
			b.WriteString(strconv.Itoa(int(tile.Z)))
		case tokX:
			b.WriteString(strconv.FormatUint(uint64(tile.X), 10))
		case tokY:
			b.WriteString(strconv.FormatUint(uint64(tile.Y), 10))
		case tokSubdomain:
			b.WriteString(pickSubdomain(tok, tile, opts.Subdomain))
		case tokRetina:
			b.WriteString(opts.Retina)
		case tokWildcard:
			b.WriteString(opts.Values[tok.text])
		}
	}
	q := t.query
	for k, v := range opts.Values {
		q = strings.Replace(q, "{"+k+"}", v, -1)
	}
	b.WriteString(q)
	return b.String()
}

// pickSubdomain spreads tiles over the subdomains by (x+y) so neighbouring
// tiles go to different hosts.
func pickSubdomain(tok token, tile maptile.Tile, override string) string {
	if override != "" {
		return override
	}
	choices := tok.choices
	if len(choices) == 0 {
		choices = defaultSubdomains
	}
	return choices[(uint64(tile.X)+uint64(tile.Y))%uint64(len(choices))]
}
