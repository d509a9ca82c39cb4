package tilematch

import "github.com/paulmach/orb/maptile"

// Set is an ordered list of templates belonging to one provider. The first
// template that matches wins.
type Set []*Template

// ParseSet compiles every template in order.
func ParseSet(raws []string) (Set, error) {
	set := make(Set, 0, len(raws))
	for _, raw := range raws {
		t, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		set = append(set, t)
	}
	return set, nil
}

// MatchesTemplate reports whether any template accepts candidate.
func (s Set) MatchesTemplate(candidate string) bool {
	for _, t := range s {
		if t.MatchesTemplate(candidate) {
			return true
		}
	}
	return false
}

// MatchesInstance reports whether any template accepts url.
func (s Set) MatchesInstance(url string) bool {
	_, ok := s.ExtractCoordinates(url)
	return ok
}

// ExtractCoordinates returns the coordinate parsed by the first matching
// template.
func (s Set) ExtractCoordinates(url string) (maptile.Tile, bool) {
	for _, t := range s {
		if tile, ok := t.ExtractCoordinates(url); ok {
			return tile, true
		}
	}
	return maptile.Tile{}, false
}

// Strings returns the raw templates.
func (s Set) Strings() []string {
	out := make([]string, len(s))
	for i, t := range s {
		out[i] = t.raw
	}
	return out
}
