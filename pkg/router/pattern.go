// Package router implements the path-parameter router from spec §4.D,
// grounded on original_source/examples/http_server/routing_example.cpp's
// pattern syntax (":name", ":name(regex)", a trailing ".+" greedy
// wildcard) and dispatch order (exact-literal bucket first, then
// parameterized routes in insertion order).
package router

import (
	"regexp"
	"strings"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/errors"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/httpcodec"
)

// segmentKind discriminates the three pattern segment forms from spec §3
// "Route": literal, named capture, named capture with constraint.
type segmentKind int

const (
	segLiteral segmentKind = iota
	segCapture
)

type segment struct {
	kind    segmentKind
	literal string         // valid when kind == segLiteral
	name    string         // valid when kind == segCapture
	re      *regexp.Regexp // nil => unconstrained capture (matches one segment, no '/')
	greedy  bool           // true when re's pattern is exactly ".+" (absorbs remaining path)
}

// Pattern is a compiled route pattern: an ordered sequence of segments
// plus the ordered list of parameter names it captures.
type Pattern struct {
	raw      string
	segments []segment
	isExact  bool     // true when the pattern has no captures at all
	params   []string // parameter names in declaration order
}

// Compile parses a pattern string, tokenized on '/', into a Pattern.
// Rejects a greedy wildcard placed before other segments (spec §9 "Regex
// in routes": "the .+ greedy wildcard must be the last segment; reject
// patterns that place a greedy wildcard before other segments").
func Compile(pattern string) (*Pattern, error) {
	if pattern == "" || pattern[0] != '/' {
		return nil, errors.NewValidationError("route pattern must start with '/': " + pattern)
	}
	parts := strings.Split(strings.TrimPrefix(pattern, "/"), "/")
	p := &Pattern{raw: pattern, isExact: true}

	for i, part := range parts {
		seg, err := compileSegment(part)
		if err != nil {
			return nil, err
		}
		if seg.kind == segCapture {
			p.isExact = false
			p.params = append(p.params, seg.name)
			if seg.greedy && i != len(parts)-1 {
				return nil, errors.NewValidationError("greedy wildcard capture must be the last segment: " + pattern)
			}
		}
		p.segments = append(p.segments, seg)
	}
	return p, nil
}

func compileSegment(part string) (segment, error) {
	if !strings.HasPrefix(part, ":") {
		return segment{kind: segLiteral, literal: part}, nil
	}
	body := part[1:]
	name := body
	var reSrc string
	if idx := strings.IndexByte(body, '('); idx >= 0 {
		if !strings.HasSuffix(body, ")") {
			return segment{}, errors.NewValidationError("unterminated capture constraint: " + part)
		}
		name = body[:idx]
		reSrc = body[idx+1 : len(body)-1]
	}
	if name == "" {
		return segment{}, errors.NewValidationError("capture segment missing a name: " + part)
	}

	seg := segment{kind: segCapture, name: name}
	if reSrc == "" {
		return seg, nil
	}
	greedy := reSrc == ".+"
	re, err := regexp.Compile("^(?:" + reSrc + ")$")
	if err != nil {
		return segment{}, errors.NewValidationError("invalid capture regex in " + part + ": " + err.Error())
	}
	seg.re = re
	seg.greedy = greedy
	return seg, nil
}

// Match attempts to match a normalized path (no leading/trailing slash
// collapsing needed — the caller normalizes first) against the pattern,
// returning captured parameter values keyed by name.
func (p *Pattern) Match(path string) (map[string]string, bool) {
	trimmed := strings.TrimPrefix(path, "/")
	var parts []string
	if trimmed != "" {
		for _, raw := range strings.Split(trimmed, "/") {
			parts = append(parts, httpcodec.PathDecode(raw))
		}
	}

	params := map[string]string{}
	pi := 0
	for si, seg := range p.segments {
		isLast := si == len(p.segments)-1
		if seg.kind == segCapture && seg.greedy {
			if pi >= len(parts) {
				return nil, false
			}
			rest := strings.Join(parts[pi:], "/")
			if seg.re != nil && !seg.re.MatchString(rest) {
				return nil, false
			}
			params[seg.name] = rest
			pi = len(parts)
			continue
		}

		if pi >= len(parts) {
			return nil, false
		}
		value := parts[pi]
		pi++

		switch seg.kind {
		case segLiteral:
			if value != seg.literal {
				return nil, false
			}
		case segCapture:
			if seg.re != nil && !seg.re.MatchString(value) {
				return nil, false
			}
			params[seg.name] = value
		}
		_ = isLast
	}

	if pi != len(parts) {
		return nil, false
	}
	return params, true
}

// String returns the original pattern text.
func (p *Pattern) String() string { return p.raw }

// ParamNames returns the capture names in declaration order.
func (p *Pattern) ParamNames() []string { return p.params }
