package simplify

import (
	"testing"

	"github.com/ctessum/geom"
)

func TestRDP_DropsCollinear(t *testing.T) {
	in := []geom.Point{{X: 0, Y: 0}, {X: 100, Y: 1}, {X: 200, Y: -1}, {X: 300, Y: 0}}
	out := RDP(in, 10)
	if len(out) != 2 || out[0] != in[0] || out[1] != in[3] {
		t.Fatalf("got %v", out)
	}
}

func TestRDP_KeepsCorner(t *testing.T) {
	in := []geom.Point{{X: 0, Y: 0}, {X: 500, Y: 5}, {X: 1000, Y: 0}, {X: 1000, Y: 1000}}
	out := RDP(in, 300)
	want := []geom.Point{{X: 0, Y: 0}, {X: 1000, Y: 0}, {X: 1000, Y: 1000}}
	if len(out) != len(want) {
		t.Fatalf("got %v want %v", out, want)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("point %d: got %v want %v", i, out[i], want[i])
		}
	}
}

func TestRDP_Disabled(t *testing.T) {
	in := []geom.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 0}}
	if out := RDP(in, 0); len(out) != 3 {
		t.Fatalf("tolerance 0 should keep all points, got %v", out)
	}
}
