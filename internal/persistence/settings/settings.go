// Package settings persists the world-level configuration that must be read
// before any chunk: the seed, the generator mode and the region size.
package settings

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"voxelseed.ai/internal/persistence/chunkstore"
	"voxelseed.ai/internal/persistence/record"
	"voxelseed.ai/internal/sim/world/seed"
	"voxelseed.ai/internal/sim/world/terrain/gen"
	"voxelseed.ai/internal/sim/world/terrain/region"
)

const DefaultKey = "world"

var (
	ErrNotFound = errors.New("no world settings")
	// ErrSeedDrift means the stored seed values no longer match what the seed
	// name derives to. Chunks saved under the old values would not line up.
	ErrSeedDrift = errors.New("stored seed does not match its name")
	ErrInvalid   = errors.New("invalid world settings")
	ErrExists    = errors.New("world settings already exist")
)

const (
	entryWorldID    = "world_id"
	entrySeedName   = "seed_name"
	entrySeedInt    = "seed_int"
	entrySeedLong   = "seed_long"
	entryMode       = "gen_mode"
	entryRegionSize = "region_size"
	entryCreatedAt  = "created_at"
)

type WorldSettings struct {
	WorldID    string
	Seed       seed.Seed
	Mode       gen.Mode
	RegionSize region.Size
	CreatedAt  time.Time
}

// GenParams is the generator configuration these settings describe.
func (ws WorldSettings) GenParams() gen.Params {
	return gen.Params{Seed: ws.Seed, Mode: ws.Mode, RegionSize: ws.RegionSize}
}

func (ws WorldSettings) validate() error {
	if _, err := uuid.Parse(ws.WorldID); err != nil {
		return fmt.Errorf("%w: world_id %q: %v", ErrInvalid, ws.WorldID, err)
	}
	if !ws.RegionSize.Valid() {
		return fmt.Errorf("%w: region_size %d", ErrInvalid, int(ws.RegionSize))
	}
	if ws.Mode != gen.ModeDefault && ws.Mode != gen.ModeFlat {
		return fmt.Errorf("%w: gen_mode %q", ErrInvalid, ws.Mode)
	}
	return nil
}

type Store struct {
	cs     *chunkstore.Store
	key    record.Key
	logger *log.Logger
	now    func() time.Time
}

// New binds the settings to one named key under cs. An empty name means
// DefaultKey.
func New(cs *chunkstore.Store, name string, logger *log.Logger) *Store {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultKey
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Store{cs: cs, key: record.NamedKey(name), logger: logger, now: time.Now}
}

func (s *Store) Key() record.Key { return s.key }

// Save overwrites the stored settings. It reports false when the settings
// are invalid or the write fails.
func (s *Store) Save(ws WorldSettings) bool {
	return s.Write(ws) == nil
}

func (s *Store) Write(ws WorldSettings) error {
	if err := ws.validate(); err != nil {
		return err
	}
	rec := s.cs.NewRecord(s.key)
	rec.SetString(entryWorldID, ws.WorldID)
	rec.SetString(entrySeedName, ws.Seed.Name)
	rec.SetInt(entrySeedInt, int64(ws.Seed.Int))
	rec.SetInt(entrySeedLong, ws.Seed.Long)
	rec.SetString(entryMode, string(ws.Mode))
	rec.SetInt(entryRegionSize, int64(ws.RegionSize))
	rec.SetString(entryCreatedAt, ws.CreatedAt.UTC().Format(time.RFC3339Nano))
	return s.cs.Write(rec)
}

// Load reports whether usable settings were found. A false result means the
// world is fresh; unusable settings are logged and treated the same way.
func (s *Store) Load() (WorldSettings, bool) {
	ws, err := s.Read()
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Printf("settings %s: %v", s.key, err)
		}
		return WorldSettings{}, false
	}
	return ws, true
}

func (s *Store) Read() (WorldSettings, error) {
	rec, err := s.cs.Read(s.key)
	if err != nil && !errors.Is(err, chunkstore.ErrNotFound) && !errors.Is(err, chunkstore.ErrEmpty) {
		return WorldSettings{}, err
	}
	if rec.IsEmpty() {
		return WorldSettings{}, ErrNotFound
	}

	name, ok := rec.GetString(entrySeedName)
	if !ok {
		return WorldSettings{}, fmt.Errorf("%w: missing %s", ErrInvalid, entrySeedName)
	}
	ws := WorldSettings{Seed: seed.Derive(name)}
	ws.WorldID, _ = rec.GetString(entryWorldID)
	mode, _ := rec.GetString(entryMode)
	ws.Mode = gen.Mode(mode)
	size, _ := rec.GetInt(entryRegionSize)
	ws.RegionSize = region.Size(size)
	if ts, ok := rec.GetString(entryCreatedAt); ok {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return WorldSettings{}, fmt.Errorf("%w: created_at: %v", ErrInvalid, err)
		}
		ws.CreatedAt = t
	}

	storedInt, okInt := rec.GetInt(entrySeedInt)
	storedLong, okLong := rec.GetInt(entrySeedLong)
	if !okInt || !okLong || storedInt != int64(ws.Seed.Int) || storedLong != ws.Seed.Long {
		return WorldSettings{}, fmt.Errorf("%w: %q stored as (%d/%d), derives to (%d/%d)",
			ErrSeedDrift, name, storedInt, storedLong, ws.Seed.Int, ws.Seed.Long)
	}
	if err := ws.validate(); err != nil {
		return WorldSettings{}, err
	}
	return ws, nil
}

// Create builds and saves settings for a new world. It refuses to replace a
// continuing world.
func (s *Store) Create(seedInput string, mode gen.Mode, size region.Size) (WorldSettings, error) {
	if _, ok := s.Load(); ok {
		return WorldSettings{}, fmt.Errorf("%s: %w", s.key, ErrExists)
	}
	return s.create(seedInput, mode, size)
}

func (s *Store) create(seedInput string, mode gen.Mode, size region.Size) (WorldSettings, error) {
	if mode == "" {
		mode = gen.ModeDefault
	}
	if size == 0 {
		size = region.DefaultSize
	}
	ws := WorldSettings{
		WorldID:    uuid.NewString(),
		Seed:       seed.Parse(seedInput),
		Mode:       mode,
		RegionSize: size,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.Write(ws); err != nil {
		return WorldSettings{}, err
	}
	return ws, nil
}

// LoadOrCreate returns the continuing world's settings, or creates them. The
// arguments only apply to a fresh world; fresh reports which case happened.
func (s *Store) LoadOrCreate(seedInput string, mode gen.Mode, size region.Size) (ws WorldSettings, fresh bool, err error) {
	if ws, ok := s.Load(); ok {
		return ws, false, nil
	}
	ws, err = s.create(seedInput, mode, size)
	if err != nil {
		return WorldSettings{}, false, err
	}
	return ws, true, nil
}

// Replace overwrites any existing settings with a new world.
func (s *Store) Replace(seedInput string, mode gen.Mode, size region.Size) (WorldSettings, error) {
	return s.create(seedInput, mode, size)
}
