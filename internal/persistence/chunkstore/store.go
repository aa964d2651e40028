// Package chunkstore persists SaveRecords as one file per key under a world's
// save root: "{x}_{y}" for chunks and the key name for world-level records.
//
// Each Load and Save is a self-contained file operation; the store keeps no
// mutable state between calls and takes no locks. Two concurrent saves of the
// same key race, so callers funnel each key through a single owner.
package chunkstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelseed.ai/internal/persistence/record"
)

type Store struct {
	root      string
	logger    *log.Logger
	level     zstd.EncoderLevel
	verify    bool
	observers []Observer
	now       func() time.Time
	verifyFn  func(path string, want uint64) error
}

type Option func(*Store)

func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithCompression(level zstd.EncoderLevel) Option {
	return func(s *Store) { s.level = level }
}

// WithVerify re-reads every file after writing it and fails the save if the
// stored body does not match.
func WithVerify(v bool) Option {
	return func(s *Store) { s.verify = v }
}

func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(root string, opts ...Option) *Store {
	s := &Store{
		logger: log.New(io.Discard, "", 0),
		level:  zstd.SpeedDefault,
		now:    time.Now,
	}
	s.verifyFn = verifyFile
	if strings.TrimSpace(root) != "" {
		s.root = filepath.Clean(root)
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Root() string { return s.root }

// Path resolves key to its file. It reports false for invalid keys and for a
// store without a root.
func (s *Store) Path(key record.Key) (string, bool) {
	if s.root == "" || !key.Valid() {
		return "", false
	}
	return filepath.Join(s.root, key.Name()), true
}

// NewRecord returns an empty record bound to key's path.
func (s *Store) NewRecord(key record.Key) *record.SaveRecord {
	path, _ := s.Path(key)
	return record.New(key, path)
}

// Load never fails: a missing, empty, corrupt, unreadable or newer-format file
// all yield an empty record.
func (s *Store) Load(key record.Key) *record.SaveRecord {
	rec, err := s.Read(key)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrEmpty) {
		s.logger.Printf("load %s: %v (treating as empty)", key, err)
	}
	return rec
}

// Read is Load with the reason for an empty result. The returned record is
// never nil.
func (s *Store) Read(key record.Key) (*record.SaveRecord, error) {
	path, ok := s.Path(key)
	if !ok {
		return record.New(key, ""), fmt.Errorf("load %q: %w", key.Name(), ErrInvalidKey)
	}
	rec, ev, err := s.read(key, path)
	ev.Err = err
	s.notify(ev)
	return rec, err
}

func (s *Store) read(key record.Key, path string) (*record.SaveRecord, Event, error) {
	ev := Event{Op: OpLoad, Key: key, Path: path, At: s.now()}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return record.New(key, path), ev, fmt.Errorf("load %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return record.New(key, path), ev, fmt.Errorf("load %s: %w: %w", key, ErrIO, err)
	}
	defer f.Close()

	cr := &countingReader{r: f}
	d, err := decodeRecord(cr)
	ev.Bytes = cr.n
	if err != nil {
		return record.New(key, path), ev, fmt.Errorf("load %s: %w", key, err)
	}
	ev.Entries = len(d.Entries)
	ev.Checksum = d.Checksum
	return record.Loaded(key, path, d.Version, d.Entries), ev, nil
}

// Save reports whether rec reached disk. Failures are logged; use Write for
// the error.
func (s *Store) Save(rec *record.SaveRecord) bool {
	return s.Write(rec) == nil
}

// Write persists rec to its source path, or to the path its key resolves to
// when the record has none. The new content is written to a temporary file
// next to the target and renamed over it, so an interrupted write leaves the
// previous file intact.
func (s *Store) Write(rec *record.SaveRecord) error {
	if rec == nil {
		return fmt.Errorf("save: nil record: %w", ErrInvalidKey)
	}
	key := rec.Key()
	path := rec.SourcePath()
	if !key.Valid() {
		return fmt.Errorf("save %q: %w", key.Name(), ErrInvalidKey)
	}
	if path == "" {
		p, ok := s.Path(key)
		if !ok {
			return fmt.Errorf("save %s: no save root: %w", key, ErrInvalidKey)
		}
		path = p
	}

	ev := Event{Op: OpSave, Key: key, Path: path, At: s.now()}
	n, st, err := s.writeFile(path, key, rec.Entries())
	if err != nil {
		err = fmt.Errorf("save %s: %w", key, err)
		s.logger.Printf("%v", err)
	} else {
		ev.Bytes = n
		ev.Entries = st.Entries
		ev.Checksum = st.Checksum
		rec.MarkPersisted()
	}
	ev.Err = err
	s.notify(ev)
	return err
}

func (s *Store) writeFile(path string, key record.Key, entries map[string]record.Value) (int64, encodeStats, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, encodeStats{}, fmt.Errorf("%w: %w", ErrIO, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+record.TempInfix+"*")
	if err != nil {
		return 0, encodeStats{}, fmt.Errorf("%w: %w", ErrIO, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	cw := &countingWriter{w: tmp}
	st, err := encodeRecord(cw, record.FormatVersion, key.Name(), entries, s.level, s.now())
	if err != nil {
		return 0, st, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, st, fmt.Errorf("%w: sync: %w", ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, st, fmt.Errorf("%w: close: %w", ErrIO, err)
	}
	// Verify before the rename so a bad write never replaces the old file.
	if s.verify {
		if err := s.verifyFn(tmp.Name(), st.Checksum); err != nil {
			return 0, st, err
		}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, st, fmt.Errorf("%w: rename: %w", ErrIO, err)
	}
	committed = true
	return cw.n, st, nil
}

func verifyFile(path string, want uint64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("verify: %w: %w", ErrIO, err)
	}
	defer f.Close()
	d, err := decodeRecord(f)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if d.Checksum != want {
		return fmt.Errorf("verify: %w: checksum %x, wrote %x", ErrDecode, d.Checksum, want)
	}
	return nil
}

// DeleteAll removes the whole save root. Deleting a root that does not exist
// succeeds.
func (s *Store) DeleteAll() error {
	ev := Event{Op: OpDeleteAll, Path: s.root, At: s.now()}
	var err error
	if unsafeRoot(s.root) {
		err = fmt.Errorf("delete %q: %w", s.root, ErrUnsafeRoot)
	} else if rmErr := os.RemoveAll(s.root); rmErr != nil {
		err = fmt.Errorf("delete %s: %w: %w", s.root, ErrIO, rmErr)
	}
	if err != nil {
		s.logger.Printf("%v", err)
	}
	ev.Err = err
	s.notify(ev)
	return err
}

func unsafeRoot(root string) bool {
	if root == "" || root == "." || root == ".." {
		return true
	}
	return filepath.Dir(root) == root
}

// Keys lists persisted keys, sorted by file name. In-progress temp files are
// skipped. A missing root has no keys.
func (s *Store) Keys() ([]record.Key, error) {
	names, err := s.fileNames()
	if err != nil {
		return nil, err
	}
	out := make([]record.Key, 0, len(names))
	for _, n := range names {
		out = append(out, record.ParseKey(n))
	}
	return out, nil
}

// Usage counts persisted files and their total size.
func (s *Store) Usage() (files int, bytes int64, err error) {
	names, err := s.fileNames()
	if err != nil {
		return 0, 0, err
	}
	for _, n := range names {
		st, err := os.Stat(filepath.Join(s.root, n))
		if err != nil {
			continue
		}
		files++
		bytes += st.Size()
	}
	return files, bytes, nil
}

func (s *Store) fileNames() ([]string, error) {
	if s.root == "" {
		return nil, nil
	}
	ents, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w: %w", s.root, ErrIO, err)
	}
	var names []string
	for _, e := range ents {
		if !e.Type().IsRegular() || strings.Contains(e.Name(), record.TempInfix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) notify(ev Event) {
	for _, o := range s.observers {
		o.Observe(ev)
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
