package crdt_test

import (
	"testing"

	"github.com/mdcs-io/mdcs/pkg/crdt"
	"pgregory.net/rapid"
)

// These properties hold for every Lattice implementation in this package:
// join is commutative, associative, idempotent, and deltas replay to the
// same state a direct mutation would produce. GSet[string] stands in for
// the whole catalogue since its Join/Leq follow the identical pattern
// every other type in the package implements.

func genGSet(t *rapid.T, label string) *crdt.GSet[string] {
	set := crdt.NewGSet[string]()
	elems := rapid.SliceOfN(rapid.StringMatching(`[a-e]`), 0, 8).Draw(t, label)
	for _, e := range elems {
		set.Add(e)
	}
	return set
}

func TestGSetJoinIsCommutative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genGSet(t, "a")
		b := genGSet(t, "b")

		ab := a.Join(b)
		ba := b.Join(a)
		if !sameElements(ab.Elements(), ba.Elements()) {
			t.Fatalf("join not commutative: a⊔b=%v b⊔a=%v", ab.Elements(), ba.Elements())
		}
	})
}

func TestGSetJoinIsAssociative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genGSet(t, "a")
		b := genGSet(t, "b")
		c := genGSet(t, "c")

		left := a.Join(b).Join(c)
		right := a.Join(b.Join(c))
		if !sameElements(left.Elements(), right.Elements()) {
			t.Fatalf("join not associative: (a⊔b)⊔c=%v a⊔(b⊔c)=%v", left.Elements(), right.Elements())
		}
	})
}

func TestGSetJoinIsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genGSet(t, "a")
		joined := a.Join(a)
		if !sameElements(a.Elements(), joined.Elements()) {
			t.Fatalf("join not idempotent: a=%v a⊔a=%v", a.Elements(), joined.Elements())
		}
	})
}

func TestGSetDeltaSoundness(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pre := genGSet(t, "pre")
		element := rapid.StringMatching(`[a-e]`).Draw(t, "element")

		delta := pre.Add(element)
		replayed := crdt.NewGSet[string]()
		replayed.JoinAssign(pre)
		replayed.JoinAssign(delta)

		if !sameElements(pre.Elements(), replayed.Elements()) {
			t.Fatalf("delta replay diverged: pre⊔δ=%v direct=%v", replayed.Elements(), pre.Elements())
		}
	})
}

func TestGSetCanonicalMarshalRoundTrips(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genGSet(t, "a")

		data, err := a.Marshal()
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		decoded := crdt.NewGSet[string]()
		if err := decoded.Unmarshal(data); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		again, err := decoded.Marshal()
		if err != nil {
			t.Fatalf("re-marshal: %v", err)
		}
		if string(data) != string(again) {
			t.Fatalf("not canonical: %s != %s", data, again)
		}
	})
}

func TestPNCounterJoinIsCommutativeAssociativeIdempotent(t *testing.T) {
	replicas := []crdt.ReplicaID{"r1", "r2", "r3"}

	rapid.Check(t, func(t *rapid.T) {
		build := func(label string) *crdt.PNCounter {
			c := crdt.NewPNCounter()
			ops := rapid.SliceOfN(rapid.IntRange(-20, 20), 0, 10).Draw(t, label)
			for i, by := range ops {
				r := replicas[i%len(replicas)]
				if by >= 0 {
					c.Increment(r, int64(by))
				} else {
					c.Decrement(r, int64(-by))
				}
			}
			return c
		}

		a := build("a")
		b := build("b")
		c := build("c")

		ab := a.Join(b)
		ba := b.Join(a)
		if ab.Value() != ba.Value() {
			t.Fatalf("join not commutative: %d != %d", ab.Value(), ba.Value())
		}

		left := a.Join(b).Join(c)
		right := a.Join(b.Join(c))
		if left.Value() != right.Value() {
			t.Fatalf("join not associative: %d != %d", left.Value(), right.Value())
		}

		idem := a.Join(a)
		if idem.Value() != a.Value() {
			t.Fatalf("join not idempotent: %d != %d", idem.Value(), a.Value())
		}
	})
}

func sameElements(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, e := range a {
		counts[e]++
	}
	for _, e := range b {
		counts[e]--
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}
