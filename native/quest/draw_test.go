package quest

import (
	"math"
	"testing"
)

func TestDrawFollowsLinearCongruentialSequence(t *testing.T) {
	u := users(5)
	got := Draw(u, 3, 7)
	want := [][20]byte{u[2], u[0], u[1]}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("round %d: expected %x got %x", i, want[i][:1], got[i][:1])
		}
	}
}

func TestDrawWrapsSeedArithmetic(t *testing.T) {
	u := users(5)
	got := Draw(u, 2, math.MaxUint64)
	if len(got) != 2 || got[0] != u[0] || got[1] != u[2] {
		t.Fatalf("unexpected draw %x", got)
	}
}

func TestDrawBounds(t *testing.T) {
	if got := Draw(nil, 3, 1); len(got) != 0 {
		t.Fatalf("expected empty draw")
	}
	u := users(2)
	if got := Draw(u, 10, 99); len(got) != 2 || got[0] == got[1] {
		t.Fatalf("unexpected draw %x", got)
	}
	before := append([][20]byte(nil), u...)
	Draw(u, 2, 1)
	for i := range u {
		if u[i] != before[i] {
			t.Fatalf("draw mutated input")
		}
	}
}

func TestBeaconRandomnessIsDeterministic(t *testing.T) {
	src := BeaconRandomness{Beacon: []byte("epoch-42")}
	q := &Quest{ID: 3}
	u := users(4)
	a, err := src.Seed(q, 100, u)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	b, _ := src.Seed(q, 100, u)
	c, _ := src.Seed(&Quest{ID: 4}, 100, u)
	if a != b {
		t.Fatalf("seed not deterministic")
	}
	if a == c {
		t.Fatalf("seed should depend on quest id")
	}
	if _, err := (BeaconRandomness{}).Seed(q, 100, u); err == nil {
		t.Fatalf("expected error without beacon")
	}
}
