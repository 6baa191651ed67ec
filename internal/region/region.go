// Package region provides source positions for diagnostics.
//
// Regions are byte-offset half-open intervals into the module source.
// Canonicalization stamps every expression and pattern with one; the
// constraint builder threads them through to problems unchanged.
package region

import "fmt"

// Region is a half-open [Start, End) byte range in the module source.
// The zero Region is valid and means "no source location".
type Region struct {
	Start uint32
	End   uint32
}

// New returns a region spanning [start, end).
func New(start, end uint32) Region {
	return Region{Start: start, End: end}
}

// Zero reports whether the region carries no location.
func (r Region) Zero() bool {
	return r.Start == 0 && r.End == 0
}

// Contains reports whether other lies entirely within r.
func (r Region) Contains(other Region) bool {
	return r.Start <= other.Start && other.End <= r.End
}

// Span returns the smallest region covering both r and other.
func (r Region) Span(other Region) Region {
	if r.Zero() {
		return other
	}
	if other.Zero() {
		return r
	}
	out := r
	if other.Start < out.Start {
		out.Start = other.Start
	}
	if other.End > out.End {
		out.End = other.End
	}
	return out
}

func (r Region) String() string {
	return fmt.Sprintf("%d..%d", r.Start, r.End)
}
