package capture

import "slices"

// Log is a capacity-bounded, insertion-ordered sequence of captures. Values
// are immutable: every mutating method returns a new Log and leaves the
// receiver and any slices previously handed out untouched.
type Log struct {
	entries  []CapturedRequest
	capacity int
	version  uint64
	evicted  uint64
}

// NewLog returns an empty log holding at most capacity entries.
func NewLog(capacity int) Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return Log{capacity: capacity}
}

// Append adds r at the tail, dropping the oldest entries when the log is full.
func (l Log) Append(r CapturedRequest) Log {
	keep := l.entries
	dropped := 0
	if len(keep) >= l.capacity {
		dropped = len(keep) - l.capacity + 1
		keep = keep[dropped:]
	}

	next := make([]CapturedRequest, 0, len(keep)+1)
	next = append(next, keep...)
	next = append(next, r)

	l.entries = next
	l.version++
	l.evicted += uint64(dropped)
	return l
}

// RemoveTab drops every entry recorded for tabID and reports how many were
// removed. The log is returned unchanged (same version) when nothing matched.
func (l Log) RemoveTab(tabID int) (Log, int) {
	n := 0
	for _, r := range l.entries {
		if r.TabID == tabID {
			n++
		}
	}
	if n == 0 {
		return l, 0
	}

	next := make([]CapturedRequest, 0, len(l.entries)-n)
	for _, r := range l.entries {
		if r.TabID != tabID {
			next = append(next, r)
		}
	}
	l.entries = next
	l.version++
	return l, n
}

// Clear empties the log.
func (l Log) Clear() Log {
	l.entries = nil
	l.version++
	return l
}

// Entries returns a copy of all entries, oldest first.
func (l Log) Entries() []CapturedRequest {
	return slices.Clone(l.entries)
}

// ForTab returns a copy of the entries recorded for tabID, oldest first.
func (l Log) ForTab(tabID int) []CapturedRequest {
	out := make([]CapturedRequest, 0)
	for _, r := range l.entries {
		if r.TabID == tabID {
			out = append(out, r)
		}
	}
	return out
}

// CountTab returns the number of entries recorded for tabID.
func (l Log) CountTab(tabID int) int {
	n := 0
	for _, r := range l.entries {
		if r.TabID == tabID {
			n++
		}
	}
	return n
}

func (l Log) Len() int        { return len(l.entries) }
func (l Log) Capacity() int   { return l.capacity }
func (l Log) Version() uint64 { return l.version }
func (l Log) Evicted() uint64 { return l.evicted }
