package message

import (
	"sort"
	"testing"
)

func TestSegmentOrdering(t *testing.T) {
	var paths []string
	for _, n := range []int64{1, 2, 9, 10, 35, 36, 1295, 1296, 46656} {
		p, err := ChildPath("000001", n)
		if err != nil {
			t.Fatalf("ChildPath(%d): %v", n, err)
		}
		paths = append(paths, p)
	}
	if !sort.StringsAreSorted(paths) {
		t.Fatalf("paths not in creation order: %v", paths)
	}
}

func TestSegmentBounds(t *testing.T) {
	if _, err := Segment(-1); err == nil {
		t.Fatal("expected error for negative counter")
	}
	if _, err := Segment(maxSegment + 1); err == nil {
		t.Fatal("expected overflow")
	}
	got, err := Segment(maxSegment)
	if err != nil || got != "zzzzzz" {
		t.Fatalf("Segment(max) = %q, %v", got, err)
	}
}

func TestDepthFirstOrder(t *testing.T) {
	root, _ := ChildPath("", 1)
	a, _ := ChildPath(root, 1)
	b, _ := ChildPath(root, 2)
	aChild, _ := ChildPath(a, 1)

	ordered := []string{b, aChild, root, a}
	sort.Strings(ordered)
	want := []string{root, a, aChild, b}
	for i := range want {
		if ordered[i] != want[i] {
			t.Fatalf("order = %v, want %v", ordered, want)
		}
	}
}

func TestPathHelpers(t *testing.T) {
	tests := []struct {
		path   string
		depth  int
		parent string
		valid  bool
	}{
		{"000001", 1, "", true},
		{"000001.00000a", 2, "000001", true},
		{"000001.00000a.000003", 3, "000001.00000a", true},
		{"1.2", 2, "1", false},
		{"00000A", 1, "", false},
	}
	for _, tt := range tests {
		if got := Depth(tt.path); got != tt.depth {
			t.Errorf("Depth(%q) = %d, want %d", tt.path, got, tt.depth)
		}
		if got := ParentPath(tt.path); got != tt.parent {
			t.Errorf("ParentPath(%q) = %q, want %q", tt.path, got, tt.parent)
		}
		if got := ValidPath(tt.path); got != tt.valid {
			t.Errorf("ValidPath(%q) = %v, want %v", tt.path, got, tt.valid)
		}
	}

	anc := AncestorPaths("000001.00000a.000003")
	if len(anc) != 3 || anc[0] != "000001" || anc[2] != "000001.00000a.000003" {
		t.Fatalf("AncestorPaths = %v", anc)
	}
}
