// Package indexdb keeps a SQLite index of saved chunks grouped by region. It
// follows a chunkstore as an Observer and is rebuilt from store events only;
// the save files stay the source of truth.
package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelseed.ai/internal/persistence/chunkstore"
	"voxelseed.ai/internal/sim/world/terrain/region"
)

var ErrRegionSizeChanged = errors.New("index was built for a different region size")

type SQLiteIndex struct {
	db     *sql.DB
	size   region.Size
	logger *log.Logger

	mu     sync.RWMutex // guards ch against Close
	ch     chan req
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool

	dropped atomic.Uint64
}

type reqKind int

const (
	reqChunk reqKind = iota + 1
	reqNamed
	reqReset
	reqFlush
)

type req struct {
	kind reqKind
	row  row
	done chan struct{}
}

type row struct {
	Key      string
	Chunk    region.ChunkCoord
	Region   region.RegionCoord
	Path     string
	Entries  int
	Bytes    int64
	Checksum uint64
	SavedAt  time.Time
}

type ChunkRow struct {
	Chunk    region.ChunkCoord
	Path     string
	Entries  int
	Bytes    int64
	Checksum string
	SavedAt  string
}

type RegionSummary struct {
	Region region.RegionCoord
	Chunks int
	Bytes  int64
}

type Stats struct {
	DropTotal     uint64
	QueueDepth    int
	QueueCapacity int
}

// OpenSQLite opens or creates the index at path for a world partitioned into
// regions of the given size. An index built for another size is refused.
func OpenSQLite(path string, size region.Size, logger *log.Logger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if !size.Valid() {
		return nil, fmt.Errorf("invalid region size %d", int(size))
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := checkRegionSize(db, size); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:     db,
		size:   size,
		logger: logger,
		ch:     make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			rx INTEGER NOT NULL,
			ry INTEGER NOT NULL,
			path TEXT NOT NULL,
			entries INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			checksum TEXT NOT NULL,
			saved_at TEXT NOT NULL,
			PRIMARY KEY (cx, cy)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_region ON chunks(rx, ry);`,
		`CREATE TABLE IF NOT EXISTS named (
			key TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			entries INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			checksum TEXT NOT NULL,
			saved_at TEXT NOT NULL
		);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func checkRegionSize(db *sql.DB, size region.Size) error {
	want := strconv.Itoa(int(size))
	var got string
	err := db.QueryRow(`SELECT value FROM meta WHERE key='region_size'`).Scan(&got)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = db.Exec(`INSERT INTO meta(key,value) VALUES('region_size',?)`, want)
		return err
	case err != nil:
		return err
	case got != want:
		return fmt.Errorf("%w: index has %s, world has %s", ErrRegionSizeChanged, got, want)
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropTotal:     s.dropped.Load(),
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
	}
}

// Observe records successful saves and resets. It never blocks: when the
// writer falls behind the event is dropped and counted.
func (s *SQLiteIndex) Observe(ev chunkstore.Event) {
	if s == nil || ev.Err != nil {
		return
	}
	var r req
	switch ev.Op {
	case chunkstore.OpSave:
		r.row = row{
			Key:      ev.Key.Name(),
			Path:     ev.Path,
			Entries:  ev.Entries,
			Bytes:    ev.Bytes,
			Checksum: ev.Checksum,
			SavedAt:  ev.At,
		}
		if c, ok := ev.Key.Chunk(); ok {
			r.kind = reqChunk
			r.row.Chunk = c
			r.row.Region = s.size.RegionOf(c)
		} else {
			r.kind = reqNamed
		}
	case chunkstore.OpDeleteAll:
		r.kind = reqReset
	default:
		return
	}
	s.enqueue(r)
}

func (s *SQLiteIndex) enqueue(r req) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

// Flush waits until every queued event is committed.
func (s *SQLiteIndex) Flush() {
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed.Load() {
		s.mu.RUnlock()
		return
	}
	s.ch <- req{kind: reqFlush, done: done}
	s.mu.RUnlock()
	<-done
}

// Reset drops every indexed row, as after the save root was deleted.
func (s *SQLiteIndex) Reset() {
	s.enqueue(req{kind: reqReset})
	s.Flush()
}

func (s *SQLiteIndex) ChunksInRegion(ctx context.Context, r region.RegionCoord) ([]ChunkRow, error) {
	s.Flush()
	rows, err := s.db.QueryContext(ctx,
		`SELECT cx,cy,path,entries,bytes,checksum,saved_at FROM chunks WHERE rx=? AND ry=? ORDER BY cy,cx`,
		r.X, r.Y)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChunkRow
	for rows.Next() {
		var c ChunkRow
		if err := rows.Scan(&c.Chunk.X, &c.Chunk.Y, &c.Path, &c.Entries, &c.Bytes, &c.Checksum, &c.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Regions(ctx context.Context) ([]RegionSummary, error) {
	s.Flush()
	rows, err := s.db.QueryContext(ctx,
		`SELECT rx,ry,COUNT(*),SUM(bytes) FROM chunks GROUP BY rx,ry ORDER BY rx,ry`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RegionSummary
	for rows.Next() {
		var r RegionSummary
		if err := rows.Scan(&r.Region.X, &r.Region.Y, &r.Chunks, &r.Bytes); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) NamedKeys(ctx context.Context) ([]string, error) {
	s.Flush()
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM named ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	upsertChunk, err := s.db.Prepare(`INSERT OR REPLACE INTO chunks(cx,cy,rx,ry,path,entries,bytes,checksum,saved_at) VALUES(?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		s.logger.Printf("index: prepare chunk upsert: %v; chunk saves will not be indexed", err)
	}
	upsertNamed, err := s.db.Prepare(`INSERT OR REPLACE INTO named(key,path,entries,bytes,checksum,saved_at) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		s.logger.Printf("index: prepare named upsert: %v; named saves will not be indexed", err)
	}
	defer func() {
		if upsertChunk != nil {
			_ = upsertChunk.Close()
		}
		if upsertNamed != nil {
			_ = upsertNamed.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.logger.Printf("index: begin: %v", err)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.logger.Printf("index: commit: %v", err)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		s.logger.Printf("index: %v", err)
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		select {
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		case <-ticker.C:
			if time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
			continue
		}

		switch r.kind {
		case reqFlush:
			commit()
			close(r.done)
			continue
		case reqReset:
			commit()
			begin()
			if tx == nil {
				continue
			}
			for _, q := range []string{`DELETE FROM chunks`, `DELETE FROM named`} {
				if _, err := tx.Exec(q); err != nil {
					rollback(fmt.Errorf("reset: %w", err))
					break
				}
			}
			commit()
			continue
		}

		begin()
		if tx == nil {
			continue
		}
		x := r.row
		sum := fmt.Sprintf("%016x", x.Checksum)
		at := x.SavedAt.UTC().Format(time.RFC3339Nano)
		switch r.kind {
		case reqChunk:
			if upsertChunk == nil {
				continue
			}
			if _, err := tx.Stmt(upsertChunk).Exec(x.Chunk.X, x.Chunk.Y, x.Region.X, x.Region.Y, x.Path, x.Entries, x.Bytes, sum, at); err != nil {
				rollback(fmt.Errorf("chunk %s: %w", x.Key, err))
				continue
			}
		case reqNamed:
			if upsertNamed == nil {
				continue
			}
			if _, err := tx.Stmt(upsertNamed).Exec(x.Key, x.Path, x.Entries, x.Bytes, sum, at); err != nil {
				rollback(fmt.Errorf("named %s: %w", x.Key, err))
				continue
			}
		}
		opCount++
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
}
