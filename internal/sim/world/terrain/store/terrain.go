// Package store caches chunks in memory on top of the persistent chunk store.
// A chunk is served from memory, else loaded from disk, else generated.
//
// Terrain is owned by a single goroutine, like the rest of the simulation
// state. It is the one owner of every chunk key it touches, so saves for a
// key never race.
package store

import (
	"encoding/hex"
	"io"
	"log"
	"sort"

	"voxelseed.ai/internal/persistence/chunkstore"
	"voxelseed.ai/internal/persistence/record"
	"voxelseed.ai/internal/sim/world/logic/mathx"
	"voxelseed.ai/internal/sim/world/terrain/gen"
	"voxelseed.ai/internal/sim/world/terrain/region"
)

type Terrain struct {
	Gen    gen.Params
	store  *chunkstore.Store
	chunks map[region.ChunkCoord]*Chunk
	logger *log.Logger
}

func NewTerrain(p gen.Params, cs *chunkstore.Store, logger *log.Logger) *Terrain {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Terrain{
		Gen:    p,
		store:  cs,
		chunks: map[region.ChunkCoord]*Chunk{},
		logger: logger,
	}
}

// Chunk returns the chunk at c, loading or generating it on first use.
// Freshly generated chunks start dirty so the next Flush persists them.
func (t *Terrain) Chunk(c region.ChunkCoord) *Chunk {
	if ch, ok := t.chunks[c]; ok {
		return ch
	}
	key := record.ChunkKey(c)
	rec := t.store.Load(key)
	ch, ok, err := decodeChunk(c, rec)
	if err != nil {
		t.logger.Printf("chunk %s: %v; regenerating", c, err)
	}
	if !ok {
		ch = &Chunk{
			Coord:  c,
			Blocks: gen.Generate(t.Gen, c),
			rec:    rec,
			dirty:  true,
		}
	}
	_ = ch.Digest()
	t.chunks[c] = ch
	return ch
}

func (t *Terrain) GetBlock(x, y int) uint16 {
	ch := t.Chunk(chunkOf(x, y))
	return ch.Get(mathx.Mod(x, gen.ChunkSize), mathx.Mod(y, gen.ChunkSize))
}

func (t *Terrain) SetBlock(x, y int, b uint16) {
	ch := t.Chunk(chunkOf(x, y))
	ch.Set(mathx.Mod(x, gen.ChunkSize), mathx.Mod(y, gen.ChunkSize), b)
}

func chunkOf(x, y int) region.ChunkCoord {
	return region.ChunkCoord{X: mathx.FloorDiv(x, gen.ChunkSize), Y: mathx.FloorDiv(y, gen.ChunkSize)}
}

// Save persists one chunk if it or its record has unsaved changes.
func (t *Terrain) Save(c region.ChunkCoord) bool {
	ch, ok := t.chunks[c]
	if !ok {
		return true
	}
	return t.save(ch)
}

func (t *Terrain) save(ch *Chunk) bool {
	if !ch.dirty && !ch.rec.Dirty() {
		return true
	}
	ch.encodeInto(t.Gen.Mode)
	if !t.store.Save(ch.rec) {
		return false
	}
	ch.dirty = false
	return true
}

// Flush saves every dirty chunk and returns the ones that failed, which stay
// dirty for a later retry.
func (t *Terrain) Flush() (saved int, failed []region.ChunkCoord) {
	for _, c := range t.LoadedChunks() {
		ch := t.chunks[c]
		if !ch.dirty && !ch.rec.Dirty() {
			continue
		}
		if t.save(ch) {
			saved++
		} else {
			failed = append(failed, c)
		}
	}
	return saved, failed
}

// Evict saves c if needed and drops it from memory. A chunk whose save fails
// is kept.
func (t *Terrain) Evict(c region.ChunkCoord) bool {
	ch, ok := t.chunks[c]
	if !ok {
		return true
	}
	if !t.save(ch) {
		return false
	}
	delete(t.chunks, c)
	return true
}

func (t *Terrain) LoadedChunks() []region.ChunkCoord {
	keys := make([]region.ChunkCoord, 0, len(t.chunks))
	for k := range t.chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		return keys[i].Y < keys[j].Y
	})
	return keys
}

// GenerateAndSave writes a freshly generated chunk c, replacing whatever was
// saved for it. Calls for distinct chunks may run concurrently.
func GenerateAndSave(cs *chunkstore.Store, p gen.Params, c region.ChunkCoord) error {
	ch := &Chunk{
		Coord:  c,
		Blocks: gen.Generate(p, c),
		rec:    cs.NewRecord(record.ChunkKey(c)),
		dirty:  true,
	}
	ch.encodeInto(p.Mode)
	return cs.Write(ch.rec)
}

// Summary decodes a saved chunk without generating anything. ok is false when
// nothing usable is saved for c.
func Summary(cs *chunkstore.Store, c region.ChunkCoord) (digest string, mode gen.Mode, ok bool) {
	rec := cs.Load(record.ChunkKey(c))
	ch, found, err := decodeChunk(c, rec)
	if err != nil || !found {
		return "", "", false
	}
	d := ch.Digest()
	m, _ := rec.GetString(entryMode)
	return hex.EncodeToString(d[:]), gen.Mode(m), true
}
