package chunkstore

import (
	"errors"
	"fmt"
)

// Read classifies why a record came back empty. Load collapses all of these
// into an empty record.
var (
	ErrNotFound        = errors.New("no saved data")
	ErrEmpty           = errors.New("empty save file")
	ErrDecode          = errors.New("undecodable save file")
	ErrVersionMismatch = errors.New("unsupported format version")
	ErrIO              = errors.New("i/o failure")
	ErrInvalidKey      = errors.New("invalid key")
	ErrUnsafeRoot      = errors.New("refusing to operate on unsafe save root")
)

// VersionError reports a file written by a format revision this build does
// not read.
type VersionError struct {
	Got       int
	Supported int
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("%s: file has v%d, reader supports v%d", ErrVersionMismatch, e.Got, e.Supported)
}

func (e *VersionError) Is(target error) bool { return target == ErrVersionMismatch }
