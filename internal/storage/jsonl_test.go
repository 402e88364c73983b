package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgnsrekt/bucketspy/internal/capture"
)

func TestJournalWritesDatedFile(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir, 8, 1)
	j.now = func() time.Time { return time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC) }

	want := []capture.CapturedRequest{
		{ID: "a", URL: "https://alpha.s3-us-east-1.amazonaws.com/x", Method: "GET", TabID: 1},
		{ID: "b", URL: "https://beta.s3-eu-west-1.amazonaws.com/", Method: "PUT", TabID: capture.NoTab},
	}
	for _, r := range want {
		j.OnCapture(r)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "2024-05-01", "captures.jsonl"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()

	var got []capture.CapturedRequest
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r capture.CapturedRequest
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("unmarshal line %q: %v", sc.Text(), err)
		}
		got = append(got, r)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("journal = %+v; want a, b", got)
	}
}

func TestJournalRejectsAfterClose(t *testing.T) {
	j := NewJournal(t.TempDir(), 1, 1)
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := j.Write(capture.CapturedRequest{ID: "late"}); err == nil {
		t.Fatalf("Write() after Close = nil; want error")
	}
	if err := j.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
