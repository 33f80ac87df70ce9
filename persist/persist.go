// Package persist contains small, dependency-light helpers shared by the
// wallet synchronization core for on-disk state: a metadata-tagged BoltDB
// wrapper and a STARTUP/SHUTDOWN-framed file logger.
package persist

import "errors"

var (
	// ErrBadHeader is returned when a persisted file's header does not match
	// the header the caller expected.
	ErrBadHeader = errors.New("wrong header")

	// ErrBadVersion is returned when a persisted file's version does not
	// match the version the caller expected.
	ErrBadVersion = errors.New("incompatible version")
)

// Metadata is a small header written to the front of persisted files so
// that loading code can detect type and version mismatches before trying
// to interpret the rest of the file.
type Metadata struct {
	Header  string
	Version string
}
