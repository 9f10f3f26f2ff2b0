package paint

import (
	"math"
	"testing"
)

func TestRandomishDeterministic(t *testing.T) {
	inputs := []struct{ x, y int32 }{
		{0, 0},
		{1, 2},
		{-1, -1},
		{math.MinInt32, math.MaxInt32},
		{math.MaxInt32, math.MinInt32},
		{math.MinInt32, math.MinInt32},
		{12345, -67890},
	}

	for _, in := range inputs {
		a := Randomish(in.x, in.y)
		b := Randomish(in.x, in.y)
		if a != b {
			t.Errorf("Randomish(%d, %d) not deterministic: %d vs %d", in.x, in.y, a, b)
		}
	}
}

func TestRandomishSpreads(t *testing.T) {
	seen := make(map[int32]bool)
	negative := 0
	for x := int32(0); x < 64; x++ {
		for y := int32(0); y < 64; y++ {
			v := Randomish(x, y)
			seen[v] = true
			if v < 0 {
				negative++
			}
		}
	}

	if len(seen) < 3900 {
		t.Errorf("Expected mostly distinct values, got %d of 4096", len(seen))
	}
	if negative < 1000 || negative > 3096 {
		t.Errorf("Expected roughly half negative values, got %d of 4096", negative)
	}
}

func TestChooseIndexInRange(t *testing.T) {
	edges := []int32{math.MinInt32, math.MinInt32 + 1, -1, 0, 1, math.MaxInt32 - 1, math.MaxInt32}
	for _, n := range []int{1, 2, 3, 7, 100} {
		for _, x := range edges {
			for _, y := range edges {
				i := ChooseIndex(n, x, y)
				if i < 0 || i >= n {
					t.Fatalf("ChooseIndex(%d, %d, %d) = %d out of range", n, x, y, i)
				}
			}
		}
	}
}

func TestChoose(t *testing.T) {
	items := []string{"a", "b", "c"}
	got := Choose(items, 10, 20)
	want := items[ChooseIndex(len(items), 10, 20)]
	if got != want {
		t.Errorf("Choose returned %q, want %q", got, want)
	}
}
