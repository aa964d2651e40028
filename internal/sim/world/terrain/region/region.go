// Package region groups chunks into fixed square regions. The region size is
// chosen when a world is created and must never change afterwards: every
// chunk-to-region grouping already on disk depends on it.
package region

import (
	"fmt"

	"voxelseed.ai/internal/sim/world/logic/mathx"
)

type ChunkCoord struct {
	X int
	Y int
}

func (c ChunkCoord) String() string { return fmt.Sprintf("%d_%d", c.X, c.Y) }

type RegionCoord struct {
	X int
	Y int
}

func (r RegionCoord) String() string { return fmt.Sprintf("r%d_%d", r.X, r.Y) }

// Size is the edge length of a region in chunks.
type Size int

const (
	Size8  Size = 8
	Size16 Size = 16

	DefaultSize = Size16
)

func ParseSize(v int) (Size, error) {
	s := Size(v)
	if !s.Valid() {
		return 0, fmt.Errorf("region size must be 8 or 16, got %d", v)
	}
	return s, nil
}

func (s Size) Valid() bool { return s == Size8 || s == Size16 }

func (s Size) mustValid() int {
	if !s.Valid() {
		panic(fmt.Sprintf("region: invalid size %d", int(s)))
	}
	return int(s)
}

// RegionOf floor-divides both axes, so chunk -1 belongs to region -1.
func (s Size) RegionOf(c ChunkCoord) RegionCoord {
	n := s.mustValid()
	return RegionCoord{X: mathx.FloorDiv(c.X, n), Y: mathx.FloorDiv(c.Y, n)}
}

// Local returns the chunk's offset inside its region, each axis in [0,size).
func (s Size) Local(c ChunkCoord) (x, y int) {
	n := s.mustValid()
	return mathx.Mod(c.X, n), mathx.Mod(c.Y, n)
}

func (s Size) Contains(r RegionCoord, c ChunkCoord) bool {
	return s.RegionOf(c) == r
}

// Origin is the lowest chunk coordinate in r.
func (s Size) Origin(r RegionCoord) ChunkCoord {
	n := s.mustValid()
	return ChunkCoord{X: r.X * n, Y: r.Y * n}
}

// Chunks lists every chunk in r, row by row.
func (s Size) Chunks(r RegionCoord) []ChunkCoord {
	n := s.mustValid()
	o := s.Origin(r)
	out := make([]ChunkCoord, 0, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			out = append(out, ChunkCoord{X: o.X + x, Y: o.Y + y})
		}
	}
	return out
}
