// Package seed derives the reproducible identity of a world from a
// user-supplied name or number.
//
// The derivation is part of the save format. Int and Long are stored next to
// every world and feed every generator, so changing how they are computed
// silently breaks all existing worlds.
package seed

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"voxelseed.ai/internal/sim/world/terrain/region"
)

// Seed is immutable once derived.
type Seed struct {
	Name string
	Int  int32
	Long int64
}

// Derive hashes the UTF-8 bytes of name with SHA-1 and reads the leading
// digest bytes as little-endian signed integers. Any string is valid,
// including the empty one.
func Derive(name string) Seed {
	sum := sha1.Sum([]byte(name))
	return Seed{
		Name: name,
		Int:  int32(binary.LittleEndian.Uint32(sum[:4])),
		Long: int64(binary.LittleEndian.Uint64(sum[:8])),
	}
}

// FromInt uses the decimal form of v as the canonical name.
func FromInt(v int64) Seed {
	return Derive(strconv.FormatInt(v, 10))
}

// Parse canonicalises user input: surrounding space is dropped and anything
// that parses as an integer goes through FromInt, so "007" and "7" name the
// same world.
func Parse(input string) Seed {
	s := strings.TrimSpace(input)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return FromInt(v)
	}
	return Derive(s)
}

// Child derives an independent seed for a named sub-stream.
func (s Seed) Child(label string) Seed {
	return Derive(s.Name + "/" + label)
}

// ChunkSeed is the seed of the generation stream that owns chunk c.
func (s Seed) ChunkSeed(c region.ChunkCoord) Seed {
	return s.Child("chunk:" + c.String())
}

func (s Seed) String() string {
	return fmt.Sprintf("%q (%d/%d)", s.Name, s.Int, s.Long)
}
