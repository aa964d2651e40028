package store

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"voxelseed.ai/internal/persistence/record"
	"voxelseed.ai/internal/sim/encoding"
	"voxelseed.ai/internal/sim/world/terrain/gen"
	"voxelseed.ai/internal/sim/world/terrain/region"
)

// Record entry names used for chunk content.
const (
	entryBlocks = "blocks"
	entryDigest = "digest"
	entryMode   = "gen_mode"
)

type Chunk struct {
	Coord  region.ChunkCoord
	Blocks []uint16 // len = gen.ChunkSize^2

	rec   *record.SaveRecord
	dirty bool
	hash  [32]byte
}

func (c *Chunk) index(x, y int) int {
	return x + y*gen.ChunkSize
}

func (c *Chunk) Get(x, y int) uint16 {
	return c.Blocks[c.index(x, y)]
}

func (c *Chunk) Set(x, y int, b uint16) {
	i := c.index(x, y)
	if c.Blocks[i] == b {
		return
	}
	c.Blocks[i] = b
	c.dirty = true
}

func (c *Chunk) Dirty() bool { return c.dirty }

// Record is the save record backing this chunk. Callers may keep their own
// entries in it; they are saved together with the blocks.
func (c *Chunk) Record() *record.SaveRecord { return c.rec }

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [2]byte
		for _, v := range c.Blocks {
			binary.LittleEndian.PutUint16(tmp[:], v)
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
	}
	return c.hash
}

// encodeInto writes the chunk's blocks into its record.
func (c *Chunk) encodeInto(mode gen.Mode) {
	d := c.Digest()
	c.rec.SetBytes(entryBlocks, encoding.EncodeRLE(c.Blocks))
	c.rec.SetString(entryDigest, hex.EncodeToString(d[:]))
	c.rec.SetString(entryMode, string(mode))
}

// decodeChunk rebuilds a chunk from a loaded record. It reports false when the
// record holds no blocks.
func decodeChunk(c region.ChunkCoord, rec *record.SaveRecord) (*Chunk, bool, error) {
	raw, ok := rec.GetBytes(entryBlocks)
	if !ok {
		return nil, false, nil
	}
	blocks, err := encoding.DecodeRLE(raw, gen.ChunkSize*gen.ChunkSize)
	if err != nil {
		return nil, false, fmt.Errorf("chunk %s blocks: %w", c, err)
	}
	ch := &Chunk{Coord: c, Blocks: blocks, rec: rec}
	if want, ok := rec.GetString(entryDigest); ok {
		got := ch.Digest()
		if hex.EncodeToString(got[:]) != want {
			return nil, false, fmt.Errorf("chunk %s digest mismatch", c)
		}
	}
	return ch, true, nil
}
