package eventlog_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/specdeck/specdeck/internal/domain"
	"github.com/specdeck/specdeck/internal/eventlog"
)

func testEvents(t *testing.T, n int) []domain.Event {
	t.Helper()

	events := make([]domain.Event, n)
	for i := range events {
		payload, err := json.Marshal(map[string]string{"name": fmt.Sprintf("rename %d", i)})
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}

		events[i] = domain.Event{
			SpecID:        "spec-1",
			Type:          domain.TypeSpecRenamed,
			SchemaVersion: 1,
			Timestamp:     time.Date(2026, 3, 14, 12, 0, i, 0, time.UTC),
			Payload:       payload,
		}
	}

	return events
}

func openLog(t *testing.T, path string) *eventlog.Log {
	t.Helper()

	log, report, err := eventlog.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}

	if report.TruncatedBytes != 0 {
		t.Fatalf("unexpected truncation on clean open: %d bytes", report.TruncatedBytes)
	}

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func Test_Append_Assigns_Contiguous_Seqs(t *testing.T) {
	t.Parallel()

	log := openLog(t, filepath.Join(t.TempDir(), "events.log"))

	first, last, err := log.Append(testEvents(t, 3))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if first != 1 || last != 3 {
		t.Fatalf("first,last = %d,%d, want 1,3", first, last)
	}

	first, last, err = log.Append(testEvents(t, 2))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if first != 4 || last != 5 {
		t.Fatalf("first,last = %d,%d, want 4,5", first, last)
	}
}

func Test_Reader_Returns_Events_After_Seq(t *testing.T) {
	t.Parallel()

	log := openLog(t, filepath.Join(t.TempDir(), "events.log"))

	_, _, err := log.Append(testEvents(t, 5))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	reader, err := log.ReadFrom(2)
	if err != nil {
		t.Fatalf("read from: %v", err)
	}
	defer reader.Close()

	events, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("read all: %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}

	for i, ev := range events {
		if want := uint64(3 + i); ev.Seq != want {
			t.Fatalf("event %d seq = %d, want %d", i, ev.Seq, want)
		}
	}
}

// Contract: a reader never sees records appended after it was opened, only
// the state committed at ReadFrom time.
func Test_Reader_Ignores_Later_Appends(t *testing.T) {
	t.Parallel()

	log := openLog(t, filepath.Join(t.TempDir(), "events.log"))

	_, _, err := log.Append(testEvents(t, 2))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	reader, err := log.ReadFrom(0)
	if err != nil {
		t.Fatalf("read from: %v", err)
	}
	defer reader.Close()

	_, _, err = log.Append(testEvents(t, 2))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	events, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("read all: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
}

func Test_Open_Survives_Reopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "events.log")

	log := openLog(t, path)

	_, _, err := log.Append(testEvents(t, 4))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	err = log.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openLog(t, path)

	if reopened.LastSeq() != 4 {
		t.Fatalf("last seq = %d, want 4", reopened.LastSeq())
	}

	first, last, err := reopened.Append(testEvents(t, 1))
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}

	if first != 5 || last != 5 {
		t.Fatalf("first,last = %d,%d, want 5,5", first, last)
	}
}

// Contract: a torn tail write is truncated on open; all fully written
// records before it survive.
func Test_Open_Truncates_Torn_Tail(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "events.log")

	log := openLog(t, path)

	_, _, err := log.Append(testEvents(t, 3))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	err = log.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	committed, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	// Simulate a crash at every byte of a fourth, partially flushed record.
	full := append([]byte(nil), committed...)
	full = appendRecordBytes(t, full, 4)

	for cut := len(committed) + 1; cut < len(full); cut++ {
		err = os.WriteFile(path, full[:cut], 0o600)
		if err != nil {
			t.Fatalf("write torn log: %v", err)
		}

		torn, report, err := eventlog.Open(path)
		if err != nil {
			t.Fatalf("open torn at %d: %v", cut, err)
		}

		if report.TruncatedBytes != int64(cut-len(committed)) {
			t.Fatalf("cut %d: truncated = %d, want %d", cut, report.TruncatedBytes, cut-len(committed))
		}

		if torn.LastSeq() != 3 {
			t.Fatalf("cut %d: last seq = %d, want 3", cut, torn.LastSeq())
		}

		_ = torn.Close()
	}
}

// Contract: a bit flip inside a committed record is detected, and the log
// is truncated at the corruption boundary.
func Test_Open_Truncates_At_Corrupt_Record(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "events.log")

	log := openLog(t, path)

	_, _, err := log.Append(testEvents(t, 2))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	afterFirst := recordEnd(t, path, 1)

	_, _, err = log.Append(testEvents(t, 1))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	err = log.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	// Flip one byte in the body of record 2.
	data[afterFirst+10] ^= 0xff

	err = os.WriteFile(path, data, 0o600)
	if err != nil {
		t.Fatalf("write corrupted: %v", err)
	}

	corrupted, report, err := eventlog.Open(path)
	if err != nil {
		t.Fatalf("open corrupted: %v", err)
	}
	defer corrupted.Close()

	if report.TruncatedBytes == 0 {
		t.Fatal("expected truncation report")
	}

	// Record 2 and everything after it is gone.
	if corrupted.LastSeq() != 1 {
		t.Fatalf("last seq = %d, want 1", corrupted.LastSeq())
	}
}

func Test_Open_Rejects_Foreign_Header(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "events.log")

	err := os.WriteFile(path, []byte("XXLOG999 something else entirely"), 0o600)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	_, _, err = eventlog.Open(path)
	if !errors.Is(err, eventlog.ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
}

// Contract: Reserve keeps sequence numbering stable when the log starts
// empty because a snapshot already covers a prefix.
func Test_Reserve_Preserves_Numbering(t *testing.T) {
	t.Parallel()

	log := openLog(t, filepath.Join(t.TempDir(), "events.log"))

	log.Reserve(7)

	first, last, err := log.Append(testEvents(t, 2))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if first != 8 || last != 9 {
		t.Fatalf("first,last = %d,%d, want 8,9", first, last)
	}
}

func Test_Compact_Drops_Covered_Prefix(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "events.log")
	log := openLog(t, path)

	_, _, err := log.Append(testEvents(t, 10))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	err = log.Compact(6)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}

	if log.FirstSeq() != 7 {
		t.Fatalf("first seq = %d, want 7", log.FirstSeq())
	}

	if log.LastSeq() != 10 {
		t.Fatalf("last seq = %d, want 10", log.LastSeq())
	}

	reader, err := log.ReadFrom(0)
	if err != nil {
		t.Fatalf("read from: %v", err)
	}
	defer reader.Close()

	events, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("read all: %v", err)
	}

	if len(events) != 4 || events[0].Seq != 7 {
		t.Fatalf("events = %d starting at %d, want 4 starting at 7", len(events), events[0].Seq)
	}

	// Appends keep the numbering after compaction.
	first, _, err := log.Append(testEvents(t, 1))
	if err != nil {
		t.Fatalf("append after compact: %v", err)
	}

	if first != 11 {
		t.Fatalf("first = %d, want 11", first)
	}
}

func Test_Compact_All_Keeps_Numbering(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "events.log")
	log := openLog(t, path)

	_, _, err := log.Append(testEvents(t, 5))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	err = log.Compact(5)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}

	first, _, err := log.Append(testEvents(t, 1))
	if err != nil {
		t.Fatalf("append after full compact: %v", err)
	}

	if first != 6 {
		t.Fatalf("first = %d, want 6", first)
	}
}

// Contract: compaction requests racing each other never destroy acknowledged
// records; everything past the highest compaction point survives a reopen
// with no repair.
func Test_Concurrent_Compacts_Keep_Acknowledged_Records(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "events.log")
	log := openLog(t, path)

	_, _, err := log.Append(testEvents(t, 400))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	var wg sync.WaitGroup

	for _, upTo := range []uint64{100, 200} {
		upTo := upTo

		wg.Add(1)

		go func() {
			defer wg.Done()

			if compactErr := log.Compact(upTo); compactErr != nil {
				t.Errorf("compact %d: %v", upTo, compactErr)
			}
		}()
	}

	wg.Wait()

	_, last, err := log.Append(testEvents(t, 10))
	if err != nil {
		t.Fatalf("append after compact: %v", err)
	}

	if last != 410 {
		t.Fatalf("last = %d, want 410", last)
	}

	err = log.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, report, err := eventlog.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if report.TruncatedBytes != 0 {
		t.Fatalf("reopen discarded %d bytes of acknowledged records", report.TruncatedBytes)
	}

	reader, err := reopened.ReadFrom(0)
	if err != nil {
		t.Fatalf("read from: %v", err)
	}

	events, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("read all: %v", err)
	}

	if len(events) != 210 || events[0].Seq != 201 {
		t.Fatalf("events = %d starting at %d, want 210 starting at 201",
			len(events), events[0].Seq)
	}

	for i, ev := range events {
		if ev.Seq != uint64(201+i) {
			t.Fatalf("event %d has seq %d, want %d", i, ev.Seq, 201+i)
		}
	}
}

// Contract: a reader opened before a compaction keeps its consistent view of
// the records it was given; the file swap never makes it misread or fail.
func Test_Reader_Survives_Compaction_Swap(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "events.log")
	log := openLog(t, path)

	_, _, err := log.Append(testEvents(t, 20))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	reader, err := log.ReadFrom(0)
	if err != nil {
		t.Fatalf("read from: %v", err)
	}

	err = log.Compact(10)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}

	events, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("read all: %v", err)
	}

	if len(events) != 20 || events[0].Seq != 1 || events[19].Seq != 20 {
		t.Fatalf("events = %d spanning %d..%d, want 20 spanning 1..20",
			len(events), events[0].Seq, events[len(events)-1].Seq)
	}
}

func Test_Append_After_Close_Fails(t *testing.T) {
	t.Parallel()

	log := openLog(t, filepath.Join(t.TempDir(), "events.log"))

	err := log.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	_, _, err = log.Append(testEvents(t, 1))
	if !errors.Is(err, eventlog.ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
