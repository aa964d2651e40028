package mathx

import "testing"

func TestFloorDivAndMod(t *testing.T) {
	cases := []struct{ a, b, q, m int }{
		{0, 8, 0, 0},
		{7, 8, 0, 7},
		{8, 8, 1, 0},
		{-1, 8, -1, 7},
		{-8, 8, -1, 0},
		{-9, 8, -2, 7},
		{-17, 16, -2, 15},
	}
	for _, c := range cases {
		if got := FloorDiv(c.a, c.b); got != c.q {
			t.Fatalf("FloorDiv(%d,%d): got %d want %d", c.a, c.b, got, c.q)
		}
		if got := Mod(c.a, c.b); got != c.m {
			t.Fatalf("Mod(%d,%d): got %d want %d", c.a, c.b, got, c.m)
		}
		if FloorDiv(c.a, c.b)*c.b+Mod(c.a, c.b) != c.a {
			t.Fatalf("FloorDiv/Mod identity broken for %d,%d", c.a, c.b)
		}
	}
}

func TestHash2_StableAndAxisSensitive(t *testing.T) {
	if Hash2(7, 3, 4) != Hash2(7, 3, 4) {
		t.Fatalf("Hash2 not stable")
	}
	if Hash2(7, 3, 4) == Hash2(7, 4, 3) {
		t.Fatalf("Hash2 should distinguish swapped axes")
	}
	if Hash2(7, 3, 4) == Hash2(8, 3, 4) {
		t.Fatalf("Hash2 should depend on seed")
	}
	if p := Permille(Hash2(1, -5, 9)); p < 0 || p >= 1000 {
		t.Fatalf("Permille out of range: %d", p)
	}
}
