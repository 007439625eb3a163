package rng

import "testing"

func TestRand_KnownSequence(t *testing.T) {
	r := New(1)
	want := []int64{16807, 282475249, 1622650073, 984943658, 1144108930}
	for i, w := range want {
		r.Next()
		if r.State() != w {
			t.Fatalf("step %d: got %d want %d", i, r.State(), w)
		}
	}
}

func TestRand_RangeAndReset(t *testing.T) {
	r := New(15)
	first := make([]float64, 100)
	for i := range first {
		v := r.Next()
		if v < 0 || v >= 1 {
			t.Fatalf("out of range at %d: %v", i, v)
		}
		first[i] = v
	}
	r.Reset(15)
	for i := range first {
		if v := r.Next(); v != first[i] {
			t.Fatalf("reset mismatch at %d: got %v want %v", i, v, first[i])
		}
	}
}

func TestRand_DegenerateSeeds(t *testing.T) {
	for _, s := range []int64{0, modulus, -modulus} {
		r := New(s)
		if r.State() != 1 {
			t.Fatalf("seed %d: state %d want 1", s, r.State())
		}
		if r.Next() == 0 && r.Next() == 0 {
			t.Fatalf("seed %d: generator stuck", s)
		}
	}
	if r := New(-5); r.State() != modulus-5 {
		t.Fatalf("negative seed: state %d", r.State())
	}
}

func TestRand_Intn(t *testing.T) {
	r := New(42)
	for i := 0; i < 1000; i++ {
		if v := r.Intn(7); v < 0 || v >= 7 {
			t.Fatalf("Intn out of range: %d", v)
		}
	}
	if r.Intn(0) != 0 {
		t.Fatalf("Intn(0) should be 0")
	}
}
