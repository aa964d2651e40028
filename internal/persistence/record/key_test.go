package record

import (
	"testing"

	"voxelseed.ai/internal/sim/world/terrain/region"
)

func TestChunkKey_Name(t *testing.T) {
	k := ChunkKey(region.ChunkCoord{X: -3, Y: 12})
	if k.Name() != "-3_12" {
		t.Fatalf("got %q want -3_12", k.Name())
	}
	c, ok := k.Chunk()
	if !ok || c != (region.ChunkCoord{X: -3, Y: 12}) {
		t.Fatalf("Chunk(): %v %v", c, ok)
	}
	if !k.Valid() {
		t.Fatalf("chunk key should be valid")
	}
}

func TestNamedKey_Validity(t *testing.T) {
	valid := []string{"world", "world.settings", "player-1"}
	invalid := []string{"", ".", "..", "a/b", `a\b`, "world.tmp-123", "nul\x00"}
	for _, n := range valid {
		if !NamedKey(n).Valid() {
			t.Fatalf("%q should be valid", n)
		}
	}
	for _, n := range invalid {
		if NamedKey(n).Valid() {
			t.Fatalf("%q should be invalid", n)
		}
	}
}

func TestParseKey(t *testing.T) {
	cases := []struct {
		in      string
		isChunk bool
		c       region.ChunkCoord
	}{
		{"0_0", true, region.ChunkCoord{}},
		{"-4_17", true, region.ChunkCoord{X: -4, Y: 17}},
		{"world", false, region.ChunkCoord{}},
		{"07_1", false, region.ChunkCoord{}},
		{"-0_0", false, region.ChunkCoord{}},
		{"1_2_3", false, region.ChunkCoord{}},
	}
	for _, c := range cases {
		k := ParseKey(c.in)
		if k.IsChunk() != c.isChunk {
			t.Fatalf("ParseKey(%q).IsChunk: got %v want %v", c.in, k.IsChunk(), c.isChunk)
		}
		if k.Name() != c.in {
			t.Fatalf("ParseKey(%q) name %q", c.in, k.Name())
		}
		if got, _ := k.Chunk(); c.isChunk && got != c.c {
			t.Fatalf("ParseKey(%q): got %v want %v", c.in, got, c.c)
		}
	}
}
