package spatial

import (
	"math/rand"
	"reflect"
	"testing"
)

func randomPoints(n int, seed int64) [][2]float64 {
	r := rand.New(rand.NewSource(seed))
	pts := make([][2]float64, n)
	for i := range pts {
		pts[i] = [2]float64{r.Float64()*10000 - 5000, r.Float64()*10000 - 5000}
	}
	return pts
}

func TestKD_MatchesBrute(t *testing.T) {
	pts := randomPoints(5000, 7)
	xy := func(i int) (float64, float64) { return pts[i][0], pts[i][1] }

	kd := NewKD(len(pts), 16, xy)
	brute := NewBrute(len(pts), xy)
	if kd.Len() != len(pts) {
		t.Fatalf("len: got %d want %d", kd.Len(), len(pts))
	}

	queries := randomPoints(200, 11)
	for _, q := range queries {
		for _, r := range []float64{0, 10, 250, 1200} {
			got := kd.Within(q[0], q[1], r)
			want := brute.Within(q[0], q[1], r)
			if len(got) == 0 && len(want) == 0 {
				continue
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("query %v r=%v: got %v want %v", q, r, got, want)
			}
		}
	}
}

func TestKD_DuplicatePointsAndBoundary(t *testing.T) {
	pts := make([][2]float64, 300)
	for i := range pts {
		pts[i] = [2]float64{float64(i % 3), 0}
	}
	kd := NewKD(len(pts), 8, func(i int) (float64, float64) { return pts[i][0], pts[i][1] })

	got := kd.Within(1, 0, 0)
	if len(got) != 100 {
		t.Fatalf("exact hits: got %d want 100", len(got))
	}
	// Distance exactly equal to the radius is inside.
	got = kd.Within(0, 1, 1)
	if len(got) != 100 {
		t.Fatalf("boundary hits: got %d want 100", len(got))
	}
}

func TestKD_Empty(t *testing.T) {
	kd := NewKD(0, 0, nil)
	if got := kd.Within(0, 0, 100); got != nil {
		t.Fatalf("empty: got %v", got)
	}
}

func TestRTree_MatchesBruteAfterInserts(t *testing.T) {
	pts := randomPoints(800, 3)
	xy := func(i int) (float64, float64) { return pts[i][0], pts[i][1] }

	rt := NewRTree(400, xy)
	for i := 400; i < len(pts); i++ {
		rt.Insert(i, pts[i][0], pts[i][1])
	}
	brute := NewBrute(len(pts), xy)
	if rt.Len() != len(pts) {
		t.Fatalf("len: got %d want %d", rt.Len(), len(pts))
	}
	for _, q := range randomPoints(50, 5) {
		got := rt.Within(q[0], q[1], 700)
		want := brute.Within(q[0], q[1], 700)
		if len(got) == 0 && len(want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("query %v: got %v want %v", q, got, want)
		}
	}
}
