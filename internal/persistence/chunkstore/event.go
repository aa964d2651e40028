package chunkstore

import (
	"time"

	"voxelseed.ai/internal/persistence/record"
)

type Op string

const (
	OpLoad      Op = "load"
	OpSave      Op = "save"
	OpDeleteAll Op = "delete_all"
)

// Event describes one finished store operation. Err is nil on success.
type Event struct {
	Op       Op
	Key      record.Key
	Path     string
	Entries  int
	Bytes    int64
	Checksum uint64
	Err      error
	At       time.Time
}

// Observer follows store operations, e.g. to index or journal them. Observe
// is called synchronously on the caller's goroutine and must not block.
type Observer interface {
	Observe(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }
