package eventlog

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
)

// Compact discards records with sequence numbers at or below upToSeq by
// rewriting the log tail into a fresh file and atomically renaming it over
// the old one.
//
// Safe only once a snapshot at or beyond upToSeq exists: state stays fully
// reconstructable from snapshot plus the remaining tail. Concurrent Compact
// calls run one at a time. The bulk of the copy runs without holding the
// append lock; the lock is taken only for the final catch-up copy and the
// swap, so writers stall briefly at most.
func (l *Log) Compact(upToSeq uint64) error {
	l.compactMu.Lock()
	defer l.compactMu.Unlock()

	l.mu.Lock()

	if l.closed {
		l.mu.Unlock()

		return fmt.Errorf("compact: %w", ErrClosed)
	}

	if l.firstSeq == 0 || upToSeq < l.firstSeq {
		// Nothing to discard.
		l.mu.Unlock()

		return nil
	}

	path := l.path
	snapshotSize := l.size
	l.mu.Unlock()

	tmpPath := path + ".compact"

	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("compact: create temp: %w", err)
	}

	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	_, err = tmp.Write([]byte(logMagic))
	if err != nil {
		return fmt.Errorf("compact: write header: %w", err)
	}

	// Copy the surviving tail of the committed region while appends continue.
	copied, err := l.copyTail(tmp, upToSeq, snapshotSize)
	if err != nil {
		return err
	}

	// Swap point: catch up on records appended during the copy, then rename.
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("compact: %w", ErrClosed)
	}

	if l.size > copied {
		err = copyRange(tmp, l.file, copied, l.size)
		if err != nil {
			return fmt.Errorf("compact: catch-up copy: %w", err)
		}
	}

	err = tmp.Sync()
	if err != nil {
		return fmt.Errorf("compact: sync temp: %w", err)
	}

	newSize, err := tmp.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("compact: size temp: %w", err)
	}

	err = os.Rename(tmpPath, path)
	if err != nil {
		return fmt.Errorf("compact: rename: %w", err)
	}

	err = syncDir(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("compact: %w", err)
	}

	// Reopen so the handle points at the new inode.
	file, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("compact: reopen: %w", err)
	}

	_ = l.file.Close()
	l.file = file
	l.size = newSize

	if upToSeq >= l.lastSeq {
		l.firstSeq = 0
	} else {
		l.firstSeq = upToSeq + 1
	}

	return nil
}

// copyTail streams records with seq > upToSeq from the committed region
// [header, limit) into dst and returns the source offset it stopped at.
func (l *Log) copyTail(dst *os.File, upToSeq uint64, limit int64) (int64, error) {
	src, err := os.Open(l.path)
	if err != nil {
		return 0, fmt.Errorf("compact: open source: %w", err)
	}

	defer func() { _ = src.Close() }()

	offset := int64(logHeaderSize)
	frame := make([]byte, frameSize)

	for limit-offset >= frameSize {
		_, err = src.ReadAt(frame, offset)
		if err != nil {
			return 0, fmt.Errorf("compact: read frame at %d: %w", offset, err)
		}

		bodyLen := int64(binary.LittleEndian.Uint32(frame[0:4]))
		crc := binary.LittleEndian.Uint32(frame[4:8])

		if bodyLen == 0 || bodyLen > maxRecordSize || limit-offset-frameSize < bodyLen {
			return 0, fmt.Errorf("compact: record at %d: bad length %d: %w", offset, bodyLen, ErrCorrupt)
		}

		body := make([]byte, bodyLen)

		_, err = src.ReadAt(body, offset+frameSize)
		if err != nil {
			return 0, fmt.Errorf("compact: read body at %d: %w", offset, err)
		}

		if crc32.Checksum(body, logCRC32C) != crc {
			return 0, fmt.Errorf("compact: record at %d: checksum mismatch: %w", offset, ErrCorrupt)
		}

		seq, err := peekSeq(body)
		if err != nil {
			return 0, fmt.Errorf("compact: record at %d: %w: %w", offset, ErrCorrupt, err)
		}

		if seq > upToSeq {
			_, err = dst.Write(frame)
			if err == nil {
				_, err = dst.Write(body)
			}

			if err != nil {
				return 0, fmt.Errorf("compact: write temp: %w", err)
			}
		}

		offset += frameSize + bodyLen
	}

	return offset, nil
}

// peekSeq extracts just the sequence number from a record body.
func peekSeq(body []byte) (uint64, error) {
	var envelope struct {
		Seq uint64 `json:"seq"`
	}

	err := json.Unmarshal(body, &envelope)
	if err != nil {
		return 0, err
	}

	if envelope.Seq == 0 {
		return 0, errors.New("record has no sequence number")
	}

	return envelope.Seq, nil
}

// copyRange copies src bytes [from, to) to the current end of dst.
func copyRange(dst, src *os.File, from, to int64) error {
	_, err := dst.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek temp end: %w", err)
	}

	_, err = io.Copy(dst, io.NewSectionReader(src, from, to-from))
	if err != nil {
		return fmt.Errorf("copy range [%d,%d): %w", from, to, err)
	}

	return nil
}

// syncDir fsyncs a directory so a rename within it is durable.
func syncDir(dir string) error {
	fd, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir %q: %w", dir, err)
	}

	syncErr := fd.Sync()

	closeErr := fd.Close()
	if syncErr != nil {
		return fmt.Errorf("sync dir %q: %w", dir, syncErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close dir %q: %w", dir, closeErr)
	}

	return nil
}
