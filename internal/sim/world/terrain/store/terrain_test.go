package store

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"voxelseed.ai/internal/persistence/chunkstore"
	"voxelseed.ai/internal/persistence/record"
	"voxelseed.ai/internal/sim/world/seed"
	"voxelseed.ai/internal/sim/world/terrain/gen"
	"voxelseed.ai/internal/sim/world/terrain/region"
)

func testParams() gen.Params {
	return gen.Params{Seed: seed.Derive("terrain"), Mode: gen.ModeDefault, RegionSize: region.Size8}
}

func TestTerrain_GeneratesThenPersistsEdits(t *testing.T) {
	root := t.TempDir()
	tr := NewTerrain(testParams(), chunkstore.New(root), nil)

	c := region.ChunkCoord{X: -1, Y: 2}
	ch := tr.Chunk(c)
	if !ch.Dirty() {
		t.Fatalf("generated chunk should be dirty")
	}
	if !slices.Equal(ch.Blocks, gen.Generate(testParams(), c)) {
		t.Fatalf("generated chunk differs from generator output")
	}

	// World block (-1, 47) lives in chunk (-1, 2) at local (15, 15).
	tr.SetBlock(-1, 47, gen.IronOre)
	if tr.GetBlock(-1, 47) != gen.IronOre {
		t.Fatalf("SetBlock not visible")
	}
	ch.Record().SetString("note", "player base")

	saved, failed := tr.Flush()
	if saved != 1 || len(failed) != 0 {
		t.Fatalf("Flush: saved=%d failed=%v", saved, failed)
	}
	if ch.Dirty() || ch.Record().Dirty() {
		t.Fatalf("flushed chunk should be clean")
	}
	if saved, _ := tr.Flush(); saved != 0 {
		t.Fatalf("second flush should save nothing, saved %d", saved)
	}

	again := NewTerrain(testParams(), chunkstore.New(root), nil)
	if again.GetBlock(-1, 47) != gen.IronOre {
		t.Fatalf("edit lost across reload")
	}
	loaded := again.Chunk(c)
	if loaded.Dirty() {
		t.Fatalf("loaded chunk should be clean")
	}
	if note, _ := loaded.Record().GetString("note"); note != "player base" {
		t.Fatalf("caller entry lost: %q", note)
	}
	if loaded.Digest() != ch.Digest() {
		t.Fatalf("digest changed across reload")
	}
}

func TestTerrain_CorruptBlocksRegenerate(t *testing.T) {
	root := t.TempDir()
	cs := chunkstore.New(root)
	c := region.ChunkCoord{X: 4, Y: 4}

	rec := cs.NewRecord(record.ChunkKey(c))
	rec.SetBytes(entryBlocks, []byte{0x80})
	if !cs.Save(rec) {
		t.Fatalf("save failed")
	}

	tr := NewTerrain(testParams(), cs, nil)
	ch := tr.Chunk(c)
	if !slices.Equal(ch.Blocks, gen.Generate(testParams(), c)) {
		t.Fatalf("undecodable blocks should be regenerated")
	}
	if !ch.Dirty() {
		t.Fatalf("regenerated chunk should be dirty")
	}
}

func TestTerrain_DigestMismatchRegenerates(t *testing.T) {
	root := t.TempDir()
	tr := NewTerrain(testParams(), chunkstore.New(root), nil)
	c := region.ChunkCoord{X: 0, Y: 0}
	tr.SetBlock(0, 0, gen.CopperOre)
	tr.Flush()

	cs := chunkstore.New(root)
	rec := cs.Load(record.ChunkKey(c))
	rec.SetString(entryDigest, "00")
	cs.Save(rec)

	again := NewTerrain(testParams(), chunkstore.New(root), nil)
	if got := again.GetBlock(0, 0); got != gen.Generate(testParams(), c)[0] {
		t.Fatalf("tampered chunk should regenerate, got %s", gen.BlockName(got))
	}
}

func TestTerrain_EvictAndFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	tr := NewTerrain(testParams(), chunkstore.New(filepath.Join(blocker, "world")), nil)
	c := region.ChunkCoord{X: 1, Y: 1}
	tr.Chunk(c)

	if tr.Evict(c) {
		t.Fatalf("evict should fail when the save fails")
	}
	if len(tr.LoadedChunks()) != 1 {
		t.Fatalf("chunk should stay loaded after a failed evict")
	}
	_, failed := tr.Flush()
	if len(failed) != 1 || failed[0] != c {
		t.Fatalf("Flush failed list: %v", failed)
	}

	ok := NewTerrain(testParams(), chunkstore.New(filepath.Join(dir, "world")), nil)
	ok.Chunk(c)
	if !ok.Evict(c) || len(ok.LoadedChunks()) != 0 {
		t.Fatalf("evict should save and drop the chunk")
	}
	if !ok.Evict(region.ChunkCoord{X: 99, Y: 99}) {
		t.Fatalf("evicting an unloaded chunk is a no-op")
	}
}

func TestLoadedChunks_Sorted(t *testing.T) {
	tr := NewTerrain(testParams(), chunkstore.New(t.TempDir()), nil)
	for _, c := range []region.ChunkCoord{{X: 2, Y: 0}, {X: -1, Y: 5}, {X: -1, Y: -3}} {
		tr.Chunk(c)
	}
	want := []region.ChunkCoord{{X: -1, Y: -3}, {X: -1, Y: 5}, {X: 2, Y: 0}}
	if got := tr.LoadedChunks(); !slices.Equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestGenerateAndSave_MatchesTerrain(t *testing.T) {
	root := t.TempDir()
	cs := chunkstore.New(root)
	c := region.ChunkCoord{X: 3, Y: -7}
	if err := GenerateAndSave(cs, testParams(), c); err != nil {
		t.Fatalf("GenerateAndSave: %v", err)
	}

	digest, mode, ok := Summary(cs, c)
	if !ok || mode != gen.ModeDefault || len(digest) != 64 {
		t.Fatalf("Summary: %q %q %v", digest, mode, ok)
	}
	if _, _, ok := Summary(cs, region.ChunkCoord{X: 9, Y: 9}); ok {
		t.Fatalf("Summary of an unsaved chunk should report false")
	}

	tr := NewTerrain(testParams(), cs, nil)
	ch := tr.Chunk(c)
	if ch.Dirty() {
		t.Fatalf("saved chunk should load clean")
	}
	if !slices.Equal(ch.Blocks, gen.Generate(testParams(), c)) {
		t.Fatalf("loaded blocks differ from generator output")
	}
}
