package domain

import (
	"math"
	"testing"
	"time"
)

func TestScoreFreshStruct(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	got := Score(t0.Unix(), 0, t0)
	want := 1 / math.Pow(2, 1.4)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected %f got %f", want, got)
	}
	if math.Abs(got-0.379) > 0.001 {
		t.Fatalf("expected ~0.379 got %f", got)
	}
}

func TestScoreAfterTwoIntervals(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	got := Score(t0.Unix(), 1, t0.Add(3600*time.Second))
	if math.Abs(got-2/math.Pow(4, 1.4)) > 1e-12 {
		t.Fatalf("unexpected score %f", got)
	}
	if math.Abs(got-0.297) > 0.001 {
		t.Fatalf("expected ~0.297 got %f", got)
	}
}

func TestScoreDecreasesWithAge(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	for _, upvotes := range []int{0, 1, 5, 100} {
		prev := math.Inf(1)
		for age := 0; age <= 48*3600; age += 600 {
			s := Score(t0.Unix(), upvotes, t0.Add(time.Duration(age)*time.Second))
			if !(s < prev) {
				t.Fatalf("score not strictly decreasing at upvotes=%d age=%d: %f >= %f", upvotes, age, s, prev)
			}
			prev = s
		}
	}
}

func TestScoreIncreasesWithUpvotes(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	for _, age := range []time.Duration{0, time.Hour, 24 * time.Hour} {
		prev := -1.0
		for upvotes := 0; upvotes < 50; upvotes++ {
			s := Score(t0.Unix(), upvotes, t0.Add(age))
			if !(s > prev) {
				t.Fatalf("score not strictly increasing at age=%s upvotes=%d", age, upvotes)
			}
			prev = s
		}
	}
}

func TestScoreToleratesClockSkew(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	s := Score(t0.Add(10*time.Hour).Unix(), 3, t0)
	if math.IsNaN(s) || math.IsInf(s, 0) {
		t.Fatalf("expected finite score, got %f", s)
	}
}
