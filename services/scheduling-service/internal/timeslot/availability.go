package timeslot

import "time"

// OpenSlots filters candidate intervals down to the ones a caller may offer.
//
// Every busy interval is widened by padding on both ends before the overlap
// test. A positive leadTime contributes one synthetic busy interval
// [now, now+leadTime], which is padded exactly like real busy time.
// Candidates that do not start strictly after now are never offered.
// Surviving candidates are returned whole and in their original order:
// a candidate is all-or-nothing free, never trimmed.
//
// now must be captured once by the caller and passed in, so a whole
// resolution sees a single consistent timestamp. A nil potential or busy
// list means the data is not there yet; the result is no availability,
// not an error.
func OpenSlots(potential, busy []Interval, padding, leadTime time.Duration, now time.Time) []Interval {
	if potential == nil || busy == nil {
		return nil
	}

	blocked := busy
	if leadTime > 0 {
		blocked = make([]Interval, 0, len(busy)+1)
		blocked = append(blocked, busy...)
		blocked = append(blocked, Interval{Start: now, End: now.Add(leadTime)})
	}

	var open []Interval
	for _, candidate := range potential {
		if !candidate.Start.After(now) {
			continue
		}
		free := true
		for _, b := range blocked {
			if candidate.Overlaps(b.Pad(padding)) {
				free = false
				break
			}
		}
		if free {
			open = append(open, candidate)
		}
	}
	return open
}
