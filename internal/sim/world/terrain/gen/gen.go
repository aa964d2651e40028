// Package gen is the reference terrain generator. Every chunk draws from its
// own rng stream derived from the world seed and the chunk coordinate, so a
// chunk regenerated after eviction, or on another worker, is identical.
package gen

import (
	"fmt"
	"strings"

	"voxelseed.ai/internal/sim/world/logic/mathx"
	"voxelseed.ai/internal/sim/world/rng"
	"voxelseed.ai/internal/sim/world/seed"
	"voxelseed.ai/internal/sim/world/terrain/region"
)

// ChunkSize is the edge length of a chunk in blocks.
const ChunkSize = 16

type Mode string

const (
	ModeDefault Mode = "default"
	ModeFlat    Mode = "flat"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeDefault, ModeFlat:
		return m, nil
	case "":
		return ModeDefault, nil
	default:
		return "", fmt.Errorf("unknown generation mode %q", s)
	}
}

const (
	Air uint16 = iota
	Dirt
	Grass
	Sand
	Stone
	Gravel
	Log
	CoalOre
	IronOre
	CopperOre
)

var blockNames = []string{"AIR", "DIRT", "GRASS", "SAND", "STONE", "GRAVEL", "LOG", "COAL_ORE", "IRON_ORE", "COPPER_ORE"}

func BlockName(b uint16) string {
	if int(b) < len(blockNames) {
		return blockNames[b]
	}
	return fmt.Sprintf("BLOCK_%d", b)
}

type Biome string

const (
	Plains Biome = "PLAINS"
	Forest Biome = "FOREST"
	Desert Biome = "DESERT"
)

type Params struct {
	Seed       seed.Seed
	Mode       Mode
	RegionSize region.Size
}

// BiomeAt is constant across a region.
func BiomeAt(p Params, c region.ChunkCoord) Biome {
	r := p.RegionSize.RegionOf(c)
	switch mathx.Hash2(p.Seed.Long, r.X, r.Y) % 3 {
	case 0:
		return Plains
	case 1:
		return Forest
	default:
		return Desert
	}
}

type oreRule struct {
	block    uint16
	salt     int64
	grid     int
	radius   int
	permille int
}

var ores = []oreRule{
	{IronOre, 102, 128, 3, 450},
	{CopperOre, 103, 128, 3, 450},
	{CoalOre, 104, 64, 4, 650},
}

// Generate returns ChunkSize*ChunkSize block ids, row-major (x + y*ChunkSize).
func Generate(p Params, c region.ChunkCoord) []uint16 {
	blocks := make([]uint16, ChunkSize*ChunkSize)
	if p.Mode == ModeFlat {
		for i := range blocks {
			blocks[i] = Grass
		}
		return blocks
	}

	r := rng.New(p.Seed.ChunkSeed(c))
	biome := BiomeAt(p, c)
	// NextInRange(0, x) lands in (-x, 0]: thins every chunk by up to 15%.
	density := 1 + r.NextInRange(0, 0.15)

	for y := 0; y < ChunkSize; y++ {
		for x := 0; x < ChunkSize; x++ {
			wx := c.X*ChunkSize + x
			wy := c.Y*ChunkSize + y
			b := oreAt(p.Seed.Long, wx, wy)
			if b == Air {
				b = surface(biome, r.NextUnitFloat()/density, r)
			} else {
				// Keep one draw per cell so ores never shift the stream.
				r.NextUnitFloat()
			}
			blocks[x+y*ChunkSize] = b
		}
	}
	return blocks
}

// oreAt places clusters on a coarse grid so veins continue across chunk
// borders regardless of which chunk is generated first.
func oreAt(worldSeed int64, x, y int) uint16 {
	for _, o := range ores {
		if inCluster(worldSeed+o.salt, x, y, o.grid, o.radius, o.permille) {
			return o.block
		}
	}
	return Air
}

func inCluster(s int64, x, y, grid, radius, permille int) bool {
	gx := mathx.FloorDiv(x, grid)
	gy := mathx.FloorDiv(y, grid)
	r2 := radius * radius
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			cgx, cgy := gx+dx, gy+dy
			h := mathx.Hash2(s, cgx, cgy)
			if mathx.Permille(h) >= permille {
				continue
			}
			cx := cgx*grid + int((h>>10)%uint64(grid))
			cy := cgy*grid + int((h>>20)%uint64(grid))
			ddx, ddy := x-cx, y-cy
			if ddx*ddx+ddy*ddy <= r2 {
				return true
			}
		}
	}
	return false
}

func surface(b Biome, roll float64, r *rng.Rng) uint16 {
	switch b {
	case Forest:
		switch {
		case roll < 0.18:
			return Log
		case roll < 0.30:
			return Stone
		case roll < 0.55:
			return Grass
		case roll < 0.70:
			return Dirt
		}
	case Desert:
		switch {
		case roll < 0.45:
			return Sand
		case roll < 0.52:
			return Stone
		case roll < 0.55:
			return Gravel
		}
	default:
		switch {
		case roll < 0.50:
			return Grass
		case roll < 0.60:
			return Dirt
		case roll < 0.64:
			if r.NextIntInRange(0, 2) == 0 {
				return Stone
			}
			return Gravel
		}
	}
	return Air
}
