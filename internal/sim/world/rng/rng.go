// Package rng provides seed-scoped random streams for world generation.
//
// The generator is Knuth's subtractive method with the exact seeding and
// sampling of the legacy .NET System.Random(int) implementation, so a world
// seed produces the same values here as in the tools that first wrote these
// worlds. All arithmetic is int32 with wrap-around to match that reference.
//
// An Rng is owned by one generation task. Sharing one between goroutines makes
// the output depend on scheduling; derive a separate stream per task instead
// (see seed.Seed.ChunkSeed).
package rng

import (
	"math"

	"voxelseed.ai/internal/sim/world/seed"
)

const (
	mbig  = math.MaxInt32
	mseed = 161803398
)

type Rng struct {
	table  [56]int32
	inext  int
	inextp int
}

func New(s seed.Seed) *Rng {
	return NewFromInt32(s.Int)
}

func NewFromInt32(v int32) *Rng {
	r := &Rng{}
	r.init(v)
	return r
}

func (r *Rng) init(v int32) {
	var sub int32
	if v == math.MinInt32 {
		sub = math.MaxInt32
	} else if v < 0 {
		sub = -v
	} else {
		sub = v
	}

	mj := mseed - sub
	r.table[55] = mj
	mk := int32(1)
	for i := 1; i < 55; i++ {
		ii := (21 * i) % 55
		r.table[ii] = mk
		mk = mj - mk
		if mk < 0 {
			mk += mbig
		}
		mj = r.table[ii]
	}
	for k := 1; k < 5; k++ {
		for i := 1; i < 56; i++ {
			r.table[i] -= r.table[1+(i+30)%55]
			if r.table[i] < 0 {
				r.table[i] += mbig
			}
		}
	}
	r.inext = 0
	r.inextp = 21
}

// step advances the generator once and returns a value in [0, MaxInt32).
func (r *Rng) step() int32 {
	a := r.inext + 1
	if a >= 56 {
		a = 1
	}
	b := r.inextp + 1
	if b >= 56 {
		b = 1
	}
	v := r.table[a] - r.table[b]
	if v == mbig {
		v--
	}
	if v < 0 {
		v += mbig
	}
	r.table[a] = v
	r.inext = a
	r.inextp = b
	return v
}

// NextUnitFloat returns a value in [0,1).
func (r *Rng) NextUnitFloat() float64 {
	return float64(r.step()) * (1.0 / mbig)
}

// NextInRange returns NextUnitFloat()*(min-max) + min.
//
// The terms are deliberately not the conventional min+u*(max-min): for
// min < max the result lies in (2*min-max, min]. Existing worlds were
// generated with this form and it must not be "fixed" without a format
// migration.
func (r *Rng) NextInRange(min, max float64) float64 {
	// The explicit conversion rounds the product and stops the compiler from
	// fusing it into an FMA on architectures that have one.
	return float64(r.NextUnitFloat()*(min-max)) + min
}

// NextIntInRange returns a value in [minInclusive, maxExclusive). Equal bounds
// return minInclusive. Inverted bounds panic.
func (r *Rng) NextIntInRange(minInclusive, maxExclusive int32) int32 {
	if minInclusive > maxExclusive {
		panic("rng: NextIntInRange called with min > max")
	}
	span := int64(maxExclusive) - int64(minInclusive)
	if span <= math.MaxInt32 {
		return int32(r.NextUnitFloat()*float64(span)) + minInclusive
	}
	return int32(int64(r.largeRangeSample()*float64(span)) + int64(minInclusive))
}

// largeRangeSample spreads two steps over the full int32 span. It is only
// reachable when maxExclusive-minInclusive overflows int32.
func (r *Rng) largeRangeSample() float64 {
	v := r.step()
	if r.step()%2 == 0 {
		v = -v
	}
	d := float64(v)
	d += math.MaxInt32 - 1
	d /= 2*float64(uint32(math.MaxInt32)) - 1
	return d
}
