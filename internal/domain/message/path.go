package message

import (
	"errors"
	"strconv"
	"strings"
)

const (
	// SegmentWidth keeps segments fixed width so lexicographic order equals numeric order.
	SegmentWidth  = 6
	PathSeparator = "."
	maxSegment    = 2176782335 // 36^6 - 1
)

var ErrSegmentOverflow = errors.New("path segment exceeds six base-36 digits")

// Segment renders counter as a zero-padded base-36 path segment.
func Segment(counter int64) (string, error) {
	if counter < 0 || counter > maxSegment {
		return "", ErrSegmentOverflow
	}
	s := strconv.FormatInt(counter, 36)
	return strings.Repeat("0", SegmentWidth-len(s)) + s, nil
}

// ChildPath appends the segment for counter to parent.
func ChildPath(parent string, counter int64) (string, error) {
	seg, err := Segment(counter)
	if err != nil {
		return "", err
	}
	if parent == "" {
		return seg, nil
	}
	return parent + PathSeparator + seg, nil
}

// Depth is the number of segments in path.
func Depth(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, PathSeparator) + 1
}

// AncestorPaths lists the paths from the root down to and including path.
func AncestorPaths(path string) []string {
	if path == "" {
		return nil
	}
	segs := strings.Split(path, PathSeparator)
	out := make([]string, len(segs))
	for i := range segs {
		out[i] = strings.Join(segs[:i+1], PathSeparator)
	}
	return out
}

// ParentPath returns the path without its last segment.
func ParentPath(path string) string {
	if i := strings.LastIndex(path, PathSeparator); i >= 0 {
		return path[:i]
	}
	return ""
}

// ValidPath reports whether path is made of well-formed segments.
func ValidPath(path string) bool {
	if path == "" {
		return false
	}
	for _, seg := range strings.Split(path, PathSeparator) {
		if len(seg) != SegmentWidth {
			return false
		}
		for _, r := range seg {
			if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z') {
				return false
			}
		}
	}
	return true
}
