package log

import (
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"sync/atomic"
	"time"

	"voxelseed.ai/internal/persistence/chunkstore"
)

// Entry is one journal line.
type Entry struct {
	At       string `json:"at"`
	Op       string `json:"op"`
	Key      string `json:"key,omitempty"`
	Path     string `json:"path,omitempty"`
	Entries  int    `json:"entries,omitempty"`
	Bytes    int64  `json:"bytes,omitempty"`
	Checksum string `json:"checksum,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Journal records chunk store operations: every save and reset, and loads
// that found a file they could not use.
type Journal struct {
	w      *JSONLZstdWriter
	logger *stdlog.Logger
	failed atomic.Uint64
}

func NewJournal(dir string, logger *stdlog.Logger) *Journal {
	if logger == nil {
		logger = stdlog.New(io.Discard, "", 0)
	}
	return &Journal{w: NewJSONLZstdWriter(dir, "journal"), logger: logger}
}

func (j *Journal) Observe(ev chunkstore.Event) {
	if ev.Op == chunkstore.OpLoad {
		if ev.Err == nil || errors.Is(ev.Err, chunkstore.ErrNotFound) || errors.Is(ev.Err, chunkstore.ErrEmpty) {
			return
		}
	}
	e := Entry{
		At:      ev.At.UTC().Format(time.RFC3339Nano),
		Op:      string(ev.Op),
		Key:     ev.Key.Name(),
		Path:    ev.Path,
		Entries: ev.Entries,
		Bytes:   ev.Bytes,
	}
	if ev.Checksum != 0 {
		e.Checksum = fmt.Sprintf("%016x", ev.Checksum)
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	if err := j.w.Write(e); err != nil {
		j.failed.Add(1)
		j.logger.Printf("journal: %v", err)
	}
}

// WriteFailures counts entries that could not be written.
func (j *Journal) WriteFailures() uint64 { return j.failed.Load() }

func (j *Journal) Close() error { return j.w.Close() }
