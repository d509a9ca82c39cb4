package tilematch

import (
	"strings"
)

type tokenKind int

const (
	tokLiteral tokenKind = iota
	tokZ
	tokX
	tokY
	tokSubdomain
	tokRetina
	tokWildcard
)

func (k tokenKind) String() string {
	switch k {
	case tokLiteral:
		return "literal"
	case tokZ:
		return "{z}"
	case tokX:
		return "{x}"
	case tokY:
		return "{y}"
	case tokSubdomain:
		return "{s}"
	case tokRetina:
		return "{r}"
	}
	return "{*}"
}

// token is one element of a parsed template. For placeholders text holds the
// raw body between the braces.
type token struct {
	kind tokenKind
	text string
	// choices lists the subdomain values of a range or list placeholder,
	// nil for the open {s} form.
	choices []string
}

// tokenize splits the path part of a template into literal and placeholder
// tokens. An unclosed brace is kept as literal text.
func tokenize(s string) []token {
	var (
		toks []token
		lit  strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			toks = append(toks, token{kind: tokLiteral, text: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(s); {
		if s[i] != '{' {
			lit.WriteByte(s[i])
			i++
			continue
		}
		end := strings.IndexByte(s[i:], '}')
		if end < 0 {
			lit.WriteString(s[i:])
			break
		}
		body := s[i+1 : i+end]
		if strings.ContainsAny(body, "{/") {
			lit.WriteByte(s[i])
			i++
			continue
		}
		flush()
		toks = append(toks, classify(body))
		i += end + 1
	}
	flush()
	return toks
}

func classify(body string) token {
	switch strings.ToLower(body) {
	case "z":
		return token{kind: tokZ, text: body}
	case "x":
		return token{kind: tokX, text: body}
	case "y":
		return token{kind: tokY, text: body}
	case "s":
		return token{kind: tokSubdomain, text: body}
	case "r":
		return token{kind: tokRetina, text: body}
	}
	if choices, ok := rangeChoices(body); ok {
		return token{kind: tokSubdomain, text: body, choices: choices}
	}
	if choices, ok := listChoices(body); ok {
		return token{kind: tokSubdomain, text: body, choices: choices}
	}
	return token{kind: tokWildcard, text: body}
}

// rangeChoices expands OpenLayers style {a-c} and {1-4} ranges.
func rangeChoices(body string) ([]string, bool) {
	if len(body) != 3 || body[1] != '-' {
		return nil, false
	}
	lo, hi := lower(body[0]), lower(body[2])
	if !isAlnum(lo) || !isAlnum(hi) || lo > hi || isDigit(lo) != isDigit(hi) {
		return nil, false
	}
	var out []string
	for c := lo; c <= hi; c++ {
		out = append(out, string(c))
	}
	return out, true
}

// listChoices expands {a,b,c} or {mt0|mt1} alternations.
func listChoices(body string) ([]string, bool) {
	sep := ","
	if strings.Contains(body, "|") {
		sep = "|"
	}
	parts := strings.Split(body, sep)
	if len(parts) < 2 {
		return nil, false
	}
	for i, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			return nil, false
		}
		for j := 0; j < len(p); j++ {
			if !isAlnum(p[j]) && p[j] != '-' {
				return nil, false
			}
		}
		parts[i] = p
	}
	return parts, true
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlnum(c byte) bool { return isDigit(c) || (c >= 'a' && c <= 'z') }
