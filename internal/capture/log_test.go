package capture

import (
	"fmt"
	"testing"
)

func entry(i, tab int) CapturedRequest {
	return CapturedRequest{ID: fmt.Sprintf("r%d", i), URL: "https://a.s3-us-east-1.amazonaws.com/" + fmt.Sprint(i), Method: "GET", TabID: tab}
}

func TestLogFIFOEviction(t *testing.T) {
	l := NewLog(DefaultCapacity)
	for i := 0; i < DefaultCapacity; i++ {
		l = l.Append(entry(i, 1))
	}
	if l.Len() != DefaultCapacity {
		t.Fatalf("Len() = %d; want %d", l.Len(), DefaultCapacity)
	}

	l = l.Append(entry(DefaultCapacity, 1))
	if l.Len() != DefaultCapacity {
		t.Fatalf("Len() after overflow = %d; want %d", l.Len(), DefaultCapacity)
	}
	if l.Evicted() != 1 {
		t.Fatalf("Evicted() = %d; want 1", l.Evicted())
	}

	got := l.Entries()
	for i, r := range got {
		if want := fmt.Sprintf("r%d", i+1); r.ID != want {
			t.Fatalf("entry %d = %s; want %s", i, r.ID, want)
		}
	}
}

func TestLogNeverExceedsCapacity(t *testing.T) {
	l := NewLog(3)
	for i := 0; i < 10; i++ {
		l = l.Append(entry(i, i%2))
		if l.Len() > 3 {
			t.Fatalf("Len() = %d after %d appends; want <= 3", l.Len(), i+1)
		}
	}
	got := l.Entries()
	if got[0].ID != "r7" || got[2].ID != "r9" {
		t.Fatalf("Entries() = %v; want r7..r9", got)
	}
}

func TestLogIsImmutable(t *testing.T) {
	base := NewLog(2).Append(entry(0, 1)).Append(entry(1, 1))
	snapshot := base.Entries()

	_ = base.Append(entry(2, 1))
	_, _ = base.RemoveTab(1)
	_ = base.Clear()

	if base.Len() != 2 || base.Entries()[0].ID != "r0" {
		t.Fatalf("receiver changed by mutation: %v", base.Entries())
	}
	if snapshot[0].ID != "r0" || snapshot[1].ID != "r1" {
		t.Fatalf("snapshot changed by mutation: %v", snapshot)
	}
}

func TestLogRemoveTab(t *testing.T) {
	l := NewLog(10)
	for i, tab := range []int{1, 2, 1, 3, 2, 1} {
		l = l.Append(entry(i, tab))
	}
	before := l.Version()

	l, removed := l.RemoveTab(1)
	if removed != 3 {
		t.Fatalf("RemoveTab(1) removed %d; want 3", removed)
	}
	if l.Version() == before {
		t.Fatalf("Version() unchanged after removal")
	}

	var ids []string
	for _, r := range l.Entries() {
		ids = append(ids, r.ID)
	}
	if fmt.Sprint(ids) != "[r1 r3 r4]" {
		t.Fatalf("remaining = %v; want [r1 r3 r4]", ids)
	}

	same, removed := l.RemoveTab(42)
	if removed != 0 || same.Version() != l.Version() {
		t.Fatalf("RemoveTab(42) = (%d, v%d); want no-op", removed, same.Version())
	}
}

func TestLogForTab(t *testing.T) {
	l := NewLog(10).Append(entry(0, 1)).Append(entry(1, NoTab)).Append(entry(2, 1))

	if got := l.ForTab(1); len(got) != 2 || got[0].ID != "r0" || got[1].ID != "r2" {
		t.Fatalf("ForTab(1) = %v", got)
	}
	if got := l.ForTab(9); got == nil || len(got) != 0 {
		t.Fatalf("ForTab(9) = %#v; want empty non-nil slice", got)
	}
	if l.CountTab(NoTab) != 1 {
		t.Fatalf("CountTab(NoTab) = %d; want 1", l.CountTab(NoTab))
	}
}

func TestNewLogDefaultsCapacity(t *testing.T) {
	if c := NewLog(0).Capacity(); c != DefaultCapacity {
		t.Fatalf("NewLog(0).Capacity() = %d; want %d", c, DefaultCapacity)
	}
}
