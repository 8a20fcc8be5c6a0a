package timeslot

import (
	"slices"
	"time"
)

// Interval is a half-open span between two absolute instants. Start is
// expected to precede End, but producers are not forced to guarantee it:
// a zero- or negative-length span simply overlaps nothing.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the two spans share at least one instant.
// Touching at a boundary is not overlap, and a zero- or negative-length
// span contains no instants so it never overlaps.
func (iv Interval) Overlaps(other Interval) bool {
	if !iv.Start.Before(iv.End) || !other.Start.Before(other.End) {
		return false
	}
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Pad widens the span symmetrically by p on both ends.
func (iv Interval) Pad(p time.Duration) Interval {
	return Interval{Start: iv.Start.Add(-p), End: iv.End.Add(p)}
}

// Merge returns the minimal set of non-overlapping intervals covering the
// input, sorted ascending by start. Spans that merely touch are joined:
// merging is about the absence of a gap, where Overlaps is about a shared
// instant. The input slice and its elements are left untouched.
func Merge(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}

	sorted := slices.Clone(intervals)
	slices.SortStableFunc(sorted, func(a, b Interval) int {
		return a.Start.Compare(b.Start)
	})

	merged := make([]Interval, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		if !next.Start.After(current.End) {
			if next.End.After(current.End) {
				current.End = next.End
			}
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}
