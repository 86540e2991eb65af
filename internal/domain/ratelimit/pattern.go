package ratelimit

import (
	"fmt"
	"strings"
)

type segmentKind int

const (
	segmentLiteral segmentKind = iota
	segmentParam
	segmentCatchAll
)

type segment struct {
	kind  segmentKind
	value string
}

// Pattern is a compiled route pattern in router syntax: "/threads/:id/root", "/admin/*rest".
type Pattern struct {
	raw      string
	segments []segment
}

// ParsePattern compiles raw. A catch-all may only be the final segment.
func ParsePattern(raw string) (Pattern, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "/") {
		return Pattern{}, fmt.Errorf("pattern %q must start with /", raw)
	}
	p := Pattern{raw: raw}
	parts := splitPath(raw)
	for i, part := range parts {
		switch {
		case strings.HasPrefix(part, ":"):
			if len(part) == 1 {
				return Pattern{}, fmt.Errorf("pattern %q has an unnamed parameter", raw)
			}
			p.segments = append(p.segments, segment{kind: segmentParam, value: part[1:]})
		case strings.HasPrefix(part, "*"):
			if i != len(parts)-1 {
				return Pattern{}, fmt.Errorf("pattern %q has a catch-all before the last segment", raw)
			}
			p.segments = append(p.segments, segment{kind: segmentCatchAll, value: part[1:]})
		default:
			p.segments = append(p.segments, segment{kind: segmentLiteral, value: part})
		}
	}
	return p, nil
}

func (p Pattern) String() string { return p.raw }

// Match reports whether path is covered by p.
func (p Pattern) Match(path string) bool {
	parts := splitPath(path)
	for i, seg := range p.segments {
		if seg.kind == segmentCatchAll {
			return true
		}
		if i >= len(parts) {
			return false
		}
		if seg.kind == segmentLiteral && seg.value != parts[i] {
			return false
		}
	}
	return len(parts) == len(p.segments)
}

// specificity orders overlapping patterns: more fixed segments first, then more literals.
func (p Pattern) specificity() (fixed, literals int) {
	for _, seg := range p.segments {
		switch seg.kind {
		case segmentLiteral:
			fixed++
			literals++
		case segmentParam:
			fixed++
		}
	}
	return fixed, literals
}

// moreSpecific reports whether a should win over b when both match.
func moreSpecific(a, b Pattern) bool {
	af, al := a.specificity()
	bf, bl := b.specificity()
	if af != bf {
		return af > bf
	}
	if al != bl {
		return al > bl
	}
	return len(a.segments) < len(b.segments)
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
