package utils

import (
	"math/rand"
	"sort"
	"testing"
)

func TestTopKKeepsGreatest(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	values := rng.Perm(1000)

	top := NewTopK(5, func(a, b int) bool { return a < b })
	for _, v := range values {
		top.Push(v)
	}

	got := top.Sorted()
	want := []int{999, 998, 997, 996, 995}
	if len(got) != len(want) {
		t.Fatalf("expected %d items got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v got %v", want, got)
		}
	}
}

func TestTopKFewerThanK(t *testing.T) {
	top := NewTopK(5, func(a, b int) bool { return a < b })
	top.Push(3)
	top.Push(9)

	got := top.Sorted()
	if len(got) != 2 || got[0] != 9 || got[1] != 3 {
		t.Fatalf("unexpected result %v", got)
	}
}

func TestTopKZero(t *testing.T) {
	top := NewTopK(0, func(a, b int) bool { return a < b })
	top.Push(1)
	if len(top.Sorted()) != 0 {
		t.Fatalf("expected no items")
	}
}

func TestTopKMatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for k := 1; k < 20; k++ {
		values := make([]int, 200)
		for i := range values {
			values[i] = rng.Intn(50)
		}
		top := NewTopK(k, func(a, b int) bool { return a < b })
		for _, v := range values {
			top.Push(v)
		}
		sorted := append([]int(nil), values...)
		sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

		got := top.Sorted()
		for i := range got {
			if got[i] != sorted[i] {
				t.Fatalf("k=%d: got %v want prefix of %v", k, got, sorted[:k])
			}
		}
	}
}
