// Package eventlog implements the durable, append-only event sequence for
// one spec.
//
// # On-disk format
//
// A log file starts with an 8-byte magic ("SDLOG001", format version
// embedded) followed by records. Each record is framed as
//
//	[4-byte LE body length][4-byte LE CRC32C of body][body]
//
// where the body is one JSON-encoded event. Appends go to the end of the
// file and fsync before acknowledging, so a record is either fully durable
// or not part of the log.
//
// # Crash recovery
//
// A crash mid-append leaves a partial record at the tail. Open scans the
// file, keeps every complete record with a valid checksum and contiguous
// sequence number, and truncates the rest. Replay of valid prior records is
// never blocked by trailing garbage.
package eventlog
