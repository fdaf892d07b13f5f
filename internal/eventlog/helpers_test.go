package eventlog_test

import (
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"os"
	"testing"
	"time"

	"github.com/specdeck/specdeck/internal/domain"
)

var testCRC32C = crc32.MakeTable(crc32.Castagnoli)

// appendRecordBytes appends one correctly framed record to buf, the way
// the log writes it: 4-byte length, 4-byte CRC32C, JSON body.
func appendRecordBytes(t *testing.T, buf []byte, seq uint64) []byte {
	t.Helper()

	body, err := json.Marshal(domain.Event{
		Seq:           seq,
		SpecID:        "spec-1",
		Type:          domain.TypeSpecRenamed,
		SchemaVersion: 1,
		Timestamp:     time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		Payload:       json.RawMessage(`{"name":"torn"}`),
	})
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}

	frame := make([]byte, 8)
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(body)))
	binary.LittleEndian.PutUint32(frame[4:8], crc32.Checksum(body, testCRC32C))

	buf = append(buf, frame...)

	return append(buf, body...)
}

// recordEnd returns the file offset just past record number n (1-based),
// by walking the frames from the header.
func recordEnd(t *testing.T, path string, n int) int {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	off := 8 // header
	for i := 0; i < n; i++ {
		if off+8 > len(data) {
			t.Fatalf("log too short for record %d", i+1)
		}

		bodyLen := int(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 8 + bodyLen
	}

	if off > len(data) {
		t.Fatalf("record %d extends past file end", n)
	}

	return off
}
