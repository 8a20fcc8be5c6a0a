package timeslot

import "time"

// PotentialSlots expands a weekly template across the inclusive day range
// [start, end] into candidate intervals of length slot.
//
// Days are enumerated in a fixed UTC frame so weekday lookups and wall-clock
// placement never depend on a caller's timezone. Each window is cut into
// consecutive slot-length pieces from its start; a trailing remainder shorter
// than slot is dropped, never shortened. The pieces are then run through
// Merge, which coalesces duplicates from overlapping windows and joins
// touching pieces across adjoining windows, so the result is the minimal
// sorted set of candidates. Every returned interval is a whole multiple of
// slot long.
//
// A start that is not strictly before end, or a non-positive slot, yields no
// candidates rather than an error.
func PotentialSlots(start, end Day, slot time.Duration, tpl WeeklyTemplate) []Interval {
	if !start.Before(end) || slot <= 0 {
		return nil
	}

	var pieces []Interval
	for d := start; !d.After(end); d = d.AddDays(1) {
		for _, w := range tpl[d.Weekday()] {
			winStart := d.at(w.Start)
			winEnd := d.at(w.End)
			for cur := winStart; !cur.Add(slot).After(winEnd); cur = cur.Add(slot) {
				pieces = append(pieces, Interval{Start: cur, End: cur.Add(slot)})
			}
		}
	}
	return Merge(pieces)
}
