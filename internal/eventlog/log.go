package eventlog

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"

	"github.com/specdeck/specdeck/internal/domain"
)

const (
	logMagic      = "SDLOG001"
	logHeaderSize = 8
	frameSize     = 8 // 4-byte body length + 4-byte CRC32C

	// maxRecordSize caps a single record body. A length prefix beyond this
	// is treated as corruption, not as a real record.
	maxRecordSize = 16 << 20
)

var logCRC32C = crc32.MakeTable(crc32.Castagnoli)

// ErrFormat reports a log file written by an incompatible (likely newer)
// format. It is rejected outright rather than misread or repaired.
var ErrFormat = errors.New("unsupported event log format")

// Log is the append-only, durable event sequence of one spec.
//
// Appends are serialized internally and fsync before returning, so an
// acknowledged append survives a process crash. Readers use their own file
// handle and never block the writer.
type Log struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	size     int64 // end offset of the last complete record
	firstSeq uint64
	lastSeq  uint64
	closed   bool

	// compactMu serializes whole Compact runs. Two compactions share one
	// temp path; interleaved writes to it would mangle the file the rename
	// installs over the live log.
	compactMu sync.Mutex
}

// OpenReport describes repairs performed while opening a log.
type OpenReport struct {
	// TruncatedBytes is the number of trailing bytes discarded because they
	// did not form a complete, checksummed record. Zero on a clean open.
	TruncatedBytes int64
}

// Open opens (or creates) the log file at path and scans it for the last
// complete record.
//
// Trailing garbage from a crash-interrupted append is truncated away and
// reported, never fatal: durability only covers acknowledged appends, and an
// incomplete record was never acknowledged.
func Open(path string) (*Log, OpenReport, error) {
	if path == "" {
		return nil, OpenReport{}, errors.New("open log: path is empty")
	}

	file, err := os.OpenFile(filepath.Clean(path), os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, OpenReport{}, fmt.Errorf("open log: %w", err)
	}

	log := &Log{path: filepath.Clean(path), file: file}

	report, err := log.init()
	if err != nil {
		_ = file.Close()

		return nil, OpenReport{}, err
	}

	return log, report, nil
}

// init writes the header on a fresh file or scans an existing one,
// truncating any incomplete tail.
func (l *Log) init() (OpenReport, error) {
	info, err := l.file.Stat()
	if err != nil {
		return OpenReport{}, fmt.Errorf("open log: stat: %w", err)
	}

	if info.Size() == 0 {
		_, err = l.file.WriteAt([]byte(logMagic), 0)
		if err != nil {
			return OpenReport{}, fmt.Errorf("open log: write header: %w", err)
		}

		err = l.file.Sync()
		if err != nil {
			return OpenReport{}, fmt.Errorf("open log: sync header: %w", err)
		}

		l.size = logHeaderSize

		return OpenReport{}, nil
	}

	if info.Size() < logHeaderSize {
		// Crash before the header write completed. Start over.
		err = l.file.Truncate(0)
		if err != nil {
			return OpenReport{}, fmt.Errorf("open log: truncate short header: %w", err)
		}

		truncated := info.Size()

		report, err := l.init()
		if err != nil {
			return OpenReport{}, err
		}

		report.TruncatedBytes += truncated

		return report, nil
	}

	header := make([]byte, logHeaderSize)

	_, err = l.file.ReadAt(header, 0)
	if err != nil {
		return OpenReport{}, fmt.Errorf("open log: read header: %w", err)
	}

	if string(header) != logMagic {
		return OpenReport{}, fmt.Errorf("open log: magic %q: %w", header, ErrFormat)
	}

	end, first, last, err := scanRecords(l.file, logHeaderSize, info.Size())
	if err != nil {
		return OpenReport{}, fmt.Errorf("open log: %w", err)
	}

	var report OpenReport

	if end < info.Size() {
		report.TruncatedBytes = info.Size() - end

		err = l.file.Truncate(end)
		if err != nil {
			return OpenReport{}, fmt.Errorf("open log: truncate tail: %w", err)
		}

		err = l.file.Sync()
		if err != nil {
			return OpenReport{}, fmt.Errorf("open log: sync truncated tail: %w", err)
		}
	}

	l.size = end
	l.firstSeq = first
	l.lastSeq = last

	return report, nil
}

// scanRecords walks record frames in [start, limit) and returns the offset
// just past the last complete record plus the first and last sequence
// numbers seen. Anything that does not parse as a complete, checksummed,
// contiguous record ends the scan.
func scanRecords(file *os.File, start, limit int64) (end int64, first, last uint64, err error) {
	offset := start
	frame := make([]byte, frameSize)

	for {
		if limit-offset < frameSize {
			return offset, first, last, nil
		}

		_, err = file.ReadAt(frame, offset)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("read frame at %d: %w", offset, err)
		}

		bodyLen := int64(binary.LittleEndian.Uint32(frame[0:4]))
		crc := binary.LittleEndian.Uint32(frame[4:8])

		if bodyLen == 0 || bodyLen > maxRecordSize {
			return offset, first, last, nil
		}

		if limit-offset-frameSize < bodyLen {
			return offset, first, last, nil
		}

		body := make([]byte, bodyLen)

		_, err = file.ReadAt(body, offset+frameSize)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("read body at %d: %w", offset, err)
		}

		if crc32.Checksum(body, logCRC32C) != crc {
			return offset, first, last, nil
		}

		var ev domain.Event

		err = json.Unmarshal(body, &ev)
		if err != nil {
			return offset, first, last, nil
		}

		if last != 0 && ev.Seq != last+1 {
			return offset, first, last, nil
		}

		if first == 0 {
			first = ev.Seq
		}

		last = ev.Seq
		offset += frameSize + bodyLen
	}
}

// FirstSeq returns the sequence number of the oldest record still in the
// file, or zero when the file holds no records (fresh or fully compacted).
func (l *Log) FirstSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.firstSeq
}

// LastSeq returns the highest sequence number ever observed by this log
// handle, including numbers reserved via [Log.Reserve].
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.lastSeq
}

// Reserve raises the next sequence number so that numbering continues after
// seq. Used when a snapshot is ahead of a compacted log: the on-disk file no
// longer carries the early records, but their numbers must never be reused.
func (l *Log) Reserve(seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if seq > l.lastSeq {
		l.lastSeq = seq
	}
}

// Append assigns contiguous sequence numbers to events, writes one record
// per event, and fsyncs before returning. It returns the assigned inclusive
// sequence range.
//
// Append sets events[i].Seq in place. The write is atomic with respect to
// crash: either the whole batch becomes part of the log or the tail is
// truncated back to the previous record boundary on the next open.
//
// An error means the batch must be treated as not appended; the log file is
// wound back to its previous committed size. Errors are surfaced verbatim
// and never retried internally, so a single logical append can never be
// applied twice.
func (l *Log) Append(events []domain.Event) (first, last uint64, err error) {
	if len(events) == 0 {
		return 0, 0, errors.New("append: no events")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, 0, fmt.Errorf("append: %w", ErrClosed)
	}

	first = l.lastSeq + 1

	var buf []byte

	for i := range events {
		events[i].Seq = l.lastSeq + 1 + uint64(i)

		body, marshalErr := json.Marshal(events[i])
		if marshalErr != nil {
			return 0, 0, fmt.Errorf("append: encode event %d: %w", events[i].Seq, marshalErr)
		}

		if len(body) > maxRecordSize {
			return 0, 0, fmt.Errorf("append: event %d exceeds max record size", events[i].Seq)
		}

		frame := make([]byte, frameSize)
		binary.LittleEndian.PutUint32(frame[0:4], uint32(len(body)))
		binary.LittleEndian.PutUint32(frame[4:8], crc32.Checksum(body, logCRC32C))

		buf = append(buf, frame...)
		buf = append(buf, body...)
	}

	_, err = l.file.WriteAt(buf, l.size)
	if err != nil {
		// Wind back so a half-written batch never becomes visible.
		_ = l.file.Truncate(l.size)

		return 0, 0, fmt.Errorf("append: write: %w", err)
	}

	err = l.file.Sync()
	if err != nil {
		_ = l.file.Truncate(l.size)

		return 0, 0, fmt.Errorf("append: fsync: %w", err)
	}

	l.size += int64(len(buf))
	last = first + uint64(len(events)) - 1
	l.lastSeq = last

	if l.firstSeq == 0 {
		l.firstSeq = first
	}

	return first, last, nil
}

// committedSize returns the current end offset of complete records.
func (l *Log) committedSize() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.size
}

// Close releases the log file handle. Further operations fail with
// [ErrClosed].
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true

	err := l.file.Close()
	if err != nil {
		return fmt.Errorf("close log: %w", err)
	}

	return nil
}
