package eventlog

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/specdeck/specdeck/internal/domain"
)

// Reader iterates log records in ascending sequence order. It holds its own
// read-only file handle, so readers never interfere with the writer or with
// each other. A Reader observes the records committed at the time of
// [Log.ReadFrom]; it is finite.
type Reader struct {
	file   *os.File
	offset int64
	limit  int64
	after  uint64
	err    error
}

// ReadFrom returns a reader positioned to yield events with sequence numbers
// strictly greater than afterSeq. It can be called any number of times from
// any valid offset; each call sees a consistent prefix of the log.
func (l *Log) ReadFrom(afterSeq uint64) (*Reader, error) {
	l.mu.Lock()

	if l.closed {
		l.mu.Unlock()

		return nil, fmt.Errorf("read from: %w", ErrClosed)
	}

	// Opened under the lock so the handle and the captured size describe the
	// same inode; a compaction swap cannot slip in between.
	file, err := os.Open(l.path)
	limit := l.size
	l.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("read from: open: %w", err)
	}

	return &Reader{
		file:   file,
		offset: logHeaderSize,
		limit:  limit,
		after:  afterSeq,
	}, nil
}

// Next returns the next event. It returns io.EOF when the reader is
// exhausted and a [ErrCorrupt]-wrapped error when a record inside the
// committed range fails its checksum or does not decode; events returned
// before that point are valid.
func (r *Reader) Next() (domain.Event, error) {
	if r.err != nil {
		return domain.Event{}, r.err
	}

	for {
		ev, err := r.next()
		if err != nil {
			r.err = err
			_ = r.file.Close()

			return domain.Event{}, err
		}

		if ev.Seq > r.after {
			return ev, nil
		}
	}
}

func (r *Reader) next() (domain.Event, error) {
	if r.limit-r.offset < frameSize {
		return domain.Event{}, io.EOF
	}

	frame := make([]byte, frameSize)

	_, err := r.file.ReadAt(frame, r.offset)
	if err != nil {
		return domain.Event{}, fmt.Errorf("read frame at %d: %w", r.offset, err)
	}

	bodyLen := int64(binary.LittleEndian.Uint32(frame[0:4]))
	crc := binary.LittleEndian.Uint32(frame[4:8])

	if bodyLen == 0 || bodyLen > maxRecordSize || r.limit-r.offset-frameSize < bodyLen {
		return domain.Event{}, fmt.Errorf("record at %d: bad length %d: %w", r.offset, bodyLen, ErrCorrupt)
	}

	body := make([]byte, bodyLen)

	_, err = r.file.ReadAt(body, r.offset+frameSize)
	if err != nil {
		return domain.Event{}, fmt.Errorf("read body at %d: %w", r.offset, err)
	}

	if crc32.Checksum(body, logCRC32C) != crc {
		return domain.Event{}, fmt.Errorf("record at %d: checksum mismatch: %w", r.offset, ErrCorrupt)
	}

	var ev domain.Event

	err = json.Unmarshal(body, &ev)
	if err != nil {
		return domain.Event{}, fmt.Errorf("record at %d: %w: %w", r.offset, ErrCorrupt, err)
	}

	r.offset += frameSize + bodyLen

	return ev, nil
}

// Close releases the reader's file handle. It is safe to call more than
// once and after Next returned an error.
func (r *Reader) Close() error {
	if r.err == nil {
		r.err = io.EOF
	}

	err := r.file.Close()
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("close reader: %w", err)
	}

	return nil
}

// ReadAll drains a reader into a slice, closing it. Intended for replay and
// tests; live tailing composes [Log.ReadFrom] with the broadcast stream.
func (r *Reader) ReadAll() ([]domain.Event, error) {
	defer func() { _ = r.Close() }()

	var events []domain.Event

	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return events, nil
		}

		if err != nil {
			return events, err
		}

		events = append(events, ev)
	}
}
