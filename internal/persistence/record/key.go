package record

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"voxelseed.ai/internal/sim/world/terrain/region"
)

// TempInfix marks in-progress writes next to their target file. Names
// containing it are reserved.
const TempInfix = ".tmp-"

// Key addresses one save unit: either a chunk or a named world-level record.
type Key struct {
	name    string
	chunk   region.ChunkCoord
	isChunk bool
}

func ChunkKey(c region.ChunkCoord) Key {
	return Key{name: c.String(), chunk: c, isChunk: true}
}

func NamedKey(name string) Key {
	return Key{name: name}
}

// Name is the file name the key resolves to under a save root.
func (k Key) Name() string { return k.name }

func (k Key) Chunk() (region.ChunkCoord, bool) { return k.chunk, k.isChunk }

func (k Key) IsChunk() bool { return k.isChunk }

func (k Key) String() string { return k.name }

// Valid reports whether the key names exactly one file inside a save root.
func (k Key) Valid() bool {
	n := k.name
	if n == "" || n == "." || n == ".." {
		return false
	}
	if strings.ContainsAny(n, `/\`) || strings.ContainsRune(n, 0) {
		return false
	}
	return !strings.Contains(n, TempInfix)
}

var chunkName = regexp.MustCompile(`^(-?[0-9]+)_(-?[0-9]+)$`)

// ParseKey maps a file name back to its key. Names shaped like "{x}_{y}"
// become chunk keys; everything else is a named key.
func ParseKey(name string) Key {
	m := chunkName.FindStringSubmatch(name)
	if m == nil {
		return NamedKey(name)
	}
	x, errX := strconv.Atoi(m[1])
	y, errY := strconv.Atoi(m[2])
	if errX != nil || errY != nil {
		return NamedKey(name)
	}
	c := region.ChunkCoord{X: x, Y: y}
	if c.String() != name {
		// "07_1" and "-0_0" are not canonical chunk names.
		return NamedKey(name)
	}
	return ChunkKey(c)
}

func (k Key) GoString() string {
	if k.isChunk {
		return fmt.Sprintf("record.ChunkKey(%d,%d)", k.chunk.X, k.chunk.Y)
	}
	return fmt.Sprintf("record.NamedKey(%q)", k.name)
}
