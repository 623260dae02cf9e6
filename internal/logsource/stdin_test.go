package logsource

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestStdinSourceStopClosesRecords(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer func() { _ = w.Close() }()
	defer func() { _ = r.Close() }()

	src := newStdinSourceWithReader(context.Background(), r)
	src.Stop()

	select {
	case _, ok := <-src.Records():
		if ok {
			t.Fatal("expected records channel to be closed after Stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for records channel to close")
	}
}

func TestStdinSourceStopIsIdempotent(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer func() { _ = w.Close() }()
	defer func() { _ = r.Close() }()

	src := newStdinSourceWithReader(context.Background(), r)
	src.Stop()
	src.Stop()
}

func TestStdinSourceReadsRecordsAndSkipsBlankLines(t *testing.T) {
	input := "1000;I;{\"x\":5}\n\n1001;N;$GPGLL,1,2\r\n"
	src := newStdinSourceWithReader(context.Background(), strings.NewReader(input))
	defer src.Stop()

	var got []string
	for rec := range src.Records() {
		if rec.Source != "stdin" {
			t.Fatalf("source = %q, want stdin", rec.Source)
		}
		got = append(got, string(rec.Record))
	}

	want := []string{"1000;I;{\"x\":5}", "1001;N;$GPGLL,1,2"}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d: %q", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("record %d = %q, want %q", i, got[i], want[i])
		}
	}
}
