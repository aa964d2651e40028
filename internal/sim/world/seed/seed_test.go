package seed

import (
	"fmt"
	"testing"

	"voxelseed.ai/internal/sim/world/terrain/region"
)

func TestDerive_GoldenValues(t *testing.T) {
	cases := []struct {
		name string
		i    int32
		l    int64
	}{
		{"seedless", -2066050583, -7226850907917741591},
		{"42", -1278292078, 1502328285542928274},
		{"", -291292710, 957977401221134810},
		{"hello world", 896314922, -5418024101100081622},
	}
	for _, c := range cases {
		got := Derive(c.name)
		if got.Name != c.name || got.Int != c.i || got.Long != c.l {
			t.Fatalf("Derive(%q): got %+v want int=%d long=%d", c.name, got, c.i, c.l)
		}
	}
}

func TestDerive_Stable(t *testing.T) {
	a := Derive("stable")
	for i := 0; i < 10; i++ {
		if Derive("stable") != a {
			t.Fatalf("Derive not stable on call %d", i)
		}
	}
}

func TestFromInt_MatchesDecimalName(t *testing.T) {
	if FromInt(42) != Derive("42") {
		t.Fatalf("FromInt(42) != Derive(\"42\")")
	}
	got := FromInt(-12)
	if got.Name != "-12" || got.Int != 1769186487 || got.Long != 3932562196465427639 {
		t.Fatalf("FromInt(-12): got %+v", got)
	}
}

func TestParse_CanonicalisesIntegers(t *testing.T) {
	for _, in := range []string{"7", "007", "+7", "  7\n"} {
		if got := Parse(in); got != FromInt(7) {
			t.Fatalf("Parse(%q): got %+v want %+v", in, got, FromInt(7))
		}
	}
	if got := Parse(" my world "); got != Derive("my world") {
		t.Fatalf("Parse should trim non-numeric names: got %+v", got)
	}
	// Too large for int64: kept verbatim.
	if got := Parse("99999999999999999999"); got.Name != "99999999999999999999" {
		t.Fatalf("overflowing number should stay verbatim: got %q", got.Name)
	}
}

func TestDerive_NoCollisions(t *testing.T) {
	const n = 50000
	ints := make(map[int32]string, n)
	longs := make(map[int64]string, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("seed-%d", i)
		s := Derive(name)
		if prev, ok := ints[s.Int]; ok {
			t.Fatalf("int collision between %q and %q", prev, name)
		}
		if prev, ok := longs[s.Long]; ok {
			t.Fatalf("long collision between %q and %q", prev, name)
		}
		ints[s.Int] = name
		longs[s.Long] = name
	}
}

func TestChunkSeed_DistinctPerChunk(t *testing.T) {
	root := Derive("seedless")
	a := root.ChunkSeed(region.ChunkCoord{X: 1, Y: 2})
	b := root.ChunkSeed(region.ChunkCoord{X: 2, Y: 1})
	if a == b {
		t.Fatalf("swapped coordinates should derive different seeds")
	}
	if a != Derive("seedless").ChunkSeed(region.ChunkCoord{X: 1, Y: 2}) {
		t.Fatalf("chunk seed not reproducible")
	}
	if a.Name != "seedless/chunk:1_2" {
		t.Fatalf("unexpected chunk seed name %q", a.Name)
	}
	if Derive("other").ChunkSeed(region.ChunkCoord{X: 1, Y: 2}) == a {
		t.Fatalf("chunk seed must depend on the world seed")
	}
}
