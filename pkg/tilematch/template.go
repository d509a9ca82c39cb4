// Package tilematch recognises tile URL templates and the concrete tile
// requests they produce.
//
// A template is a URL containing positional placeholders:
//
//	{z} {x} {y}          tile coordinate
//	{s} {a-c} {1-4}      subdomain, all spellings are equivalent
//	{a,b,c} {mt0|mt1}    subdomain as an explicit list
//	{r}                  optional retina suffix such as @2x
//	{anything}           free value (api keys, style names)
//
// Templates are compiled once into two matchers: one that accepts other
// templates written with an equivalent placeholder syntax, and one that
// accepts instance URLs.
package tilematch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb/maptile"
)

// MaxZoom is the deepest zoom level an instance URL may address.
const MaxZoom = 30

// Template is a compiled tile URL template. It is immutable and safe for
// concurrent use.
type Template struct {
	raw      string
	query    string
	tokens   []token
	instance *regexp.Regexp
	template *regexp.Regexp
	zIdx     int
	xIdx     int
	yIdx     int
	retina   bool
}

// Parse compiles a template. Templates without {z}, {x} and {y} are rejected.
func Parse(raw string) (*Template, error) {
	t := &Template{raw: raw}
	path := raw
	if i := queryIndex(raw); i >= 0 {
		path, t.query = raw[:i], raw[i:]
	}
	t.tokens = tokenize(path)

	seen := map[tokenKind]bool{}
	for _, tok := range t.tokens {
		seen[tok.kind] = true
	}
	for _, k := range []tokenKind{tokZ, tokX, tokY} {
		if !seen[k] {
			return nil, fmt.Errorf("tilematch: template %q has no %s placeholder", raw, k)
		}
	}
	t.retina = seen[tokRetina]

	var err error
	if t.instance, err = regexp.Compile(t.instancePattern()); err != nil {
		return nil, fmt.Errorf("tilematch: compile %q: %w", raw, err)
	}
	if t.template, err = regexp.Compile(t.templatePattern()); err != nil {
		return nil, fmt.Errorf("tilematch: compile %q: %w", raw, err)
	}
	t.zIdx = t.instance.SubexpIndex("z")
	t.xIdx = t.instance.SubexpIndex("x")
	t.yIdx = t.instance.SubexpIndex("y")
	return t, nil
}

// MustParse is like Parse but panics on error. Meant for built-in templates.
func MustParse(raw string) *Template {
	t, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the template as it was written.
func (t *Template) String() string { return t.raw }

// HasRetina reports whether the template declares a {r} placeholder.
func (t *Template) HasRetina() bool { return t.retina }

// MatchesTemplate reports whether candidate is the same template modulo
// placeholder spelling. A subdomain placeholder also accepts a concrete
// subdomain value in the candidate.
func (t *Template) MatchesTemplate(candidate string) bool {
	return t.template.MatchString(stripQuery(candidate))
}

// MatchesInstance reports whether url is a tile request produced by this
// template. The scheme may be http or https and any query string is ignored.
func (t *Template) MatchesInstance(url string) bool {
	_, ok := t.ExtractCoordinates(url)
	return ok
}

// ExtractCoordinates parses the tile coordinate out of an instance URL. It
// returns false when the URL does not fit the template or addresses a tile
// outside the zoom's grid.
func (t *Template) ExtractCoordinates(url string) (maptile.Tile, bool) {
	m := t.instance.FindStringSubmatch(stripQuery(url))
	if m == nil {
		return maptile.Tile{}, false
	}
	z, err := strconv.ParseUint(m[t.zIdx], 10, 32)
	if err != nil || z > MaxZoom {
		return maptile.Tile{}, false
	}
	x, err := strconv.ParseUint(m[t.xIdx], 10, 32)
	if err != nil {
		return maptile.Tile{}, false
	}
	y, err := strconv.ParseUint(m[t.yIdx], 10, 32)
	if err != nil {
		return maptile.Tile{}, false
	}
	tile := maptile.New(uint32(x), uint32(y), maptile.Zoom(z))
	if !Valid(tile) {
		return maptile.Tile{}, false
	}
	return tile, true
}

// Valid reports whether x and y lie inside the 2^z grid.
func Valid(t maptile.Tile) bool {
	if t.Z > MaxZoom {
		return false
	}
	n := uint64(1) << uint(t.Z)
	return uint64(t.X) < n && uint64(t.Y) < n
}

func (t *Template) instancePattern() string {
	var b strings.Builder
	b.WriteString(`(?i)^`)
	named := map[tokenKind]bool{}
	for i, tok := range t.tokens {
		switch tok.kind {
		case tokLiteral:
			b.WriteString(literalPattern(tok.text, i == 0))
		case tokZ, tokX, tokY:
			if named[tok.kind] {
				b.WriteString(`\d+`)
				continue
			}
			named[tok.kind] = true
			name := tok.kind.String()[1:2]
			b.WriteString(`(?P<` + name + `>\d+)`)
		case tokSubdomain:
			b.WriteString(subdomainValue(tok))
		case tokRetina:
			b.WriteString(`(?:@\d+(?:\.\d+)?x)?`)
		case tokWildcard:
			b.WriteString(`[^/?#]*`)
		}
	}
	b.WriteString(`$`)
	return b.String()
}

func (t *Template) templatePattern() string {
	var b strings.Builder
	b.WriteString(`(?i)^`)
	for i, tok := range t.tokens {
		switch tok.kind {
		case tokLiteral:
			b.WriteString(literalPattern(tok.text, i == 0))
		case tokZ, tokX, tokY:
			b.WriteString(regexp.QuoteMeta(tok.kind.String()))
		case tokSubdomain:
			b.WriteString(`(?:\{s\}|\{[a-z0-9]-[a-z0-9]\}|\{[a-z0-9-]+(?:\s*[,|]\s*[a-z0-9-]+)+\}|`)
			b.WriteString(subdomainValue(tok))
			b.WriteString(`)`)
		case tokRetina:
			b.WriteString(`(?:\{r\})?`)
		case tokWildcard:
			b.WriteString(`(?:\{[^{}/]*\}|[^/?#{}]*)`)
		}
	}
	b.WriteString(`$`)
	return b.String()
}

// literalPattern quotes literal text; a leading http or https scheme matches
// either scheme.
func literalPattern(text string, first bool) string {
	if first {
		lower := strings.ToLower(text)
		for _, scheme := range []string{"https://", "http://"} {
			if strings.HasPrefix(lower, scheme) {
				return `https?://` + regexp.QuoteMeta(text[len(scheme):])
			}
		}
	}
	return regexp.QuoteMeta(text)
}

func subdomainValue(tok token) string {
	if len(tok.choices) == 0 {
		return `[a-z0-9]+`
	}
	quoted := make([]string, len(tok.choices))
	for i, c := range tok.choices {
		quoted[i] = regexp.QuoteMeta(c)
	}
	return `(?:` + strings.Join(quoted, "|") + `)`
}

// queryIndex finds the first '?' that is not inside a placeholder.
func queryIndex(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case '?':
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func stripQuery(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i]
	}
	return s
}
