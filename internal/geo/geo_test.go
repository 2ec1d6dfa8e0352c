package geo

import (
	"math"
	"testing"

	"tripguard/internal/types"
)

const tolerance = 1e-6

func TestPointToSegmentPlanarPerpendicular(t *testing.T) {
	a := types.Point{Lat: 0, Lng: 0}
	b := types.Point{Lat: 0, Lng: 10}
	p := types.Point{Lat: 150, Lng: 5}

	got := PointToSegmentPlanar(p, a, b)
	if math.Abs(got-150) > tolerance {
		t.Fatalf("perpendicular distance = %v, want 150", got)
	}
}

func TestPointToSegmentPlanarOnSegment(t *testing.T) {
	a := types.Point{Lat: 0, Lng: 0}
	b := types.Point{Lat: 0, Lng: 10}
	p := types.Point{Lat: 0, Lng: 4}

	if got := PointToSegmentPlanar(p, a, b); got != 0 {
		t.Fatalf("on-segment distance = %v, want 0", got)
	}
}

func TestPointToSegmentPlanarBeyondEndpoints(t *testing.T) {
	a := types.Point{Lat: 0, Lng: 0}
	b := types.Point{Lat: 0, Lng: 10}

	// Past b: nearest point is b itself.
	p := types.Point{Lat: 3, Lng: 14}
	want := math.Hypot(3, 4)
	if got := PointToSegmentPlanar(p, a, b); math.Abs(got-want) > tolerance {
		t.Fatalf("beyond-endpoint distance = %v, want %v", got, want)
	}
}

func TestPointToSegmentPlanarDegenerate(t *testing.T) {
	a := types.Point{Lat: 2, Lng: 2}
	p := types.Point{Lat: 5, Lng: 6}

	want := 5.0
	if got := PointToSegmentPlanar(p, a, a); math.Abs(got-want) > tolerance {
		t.Fatalf("degenerate segment distance = %v, want %v", got, want)
	}
}

func TestDistanceToRouteDegenerateRoutes(t *testing.T) {
	p := types.Point{Lat: 3, Lng: 4}

	if _, ok := DistanceToRoutePlanar(p, nil); ok {
		t.Fatal("empty route: expected ok=false")
	}

	d, ok := DistanceToRoutePlanar(p, []types.Point{{Lat: 0, Lng: 0}})
	if !ok {
		t.Fatal("single-point route: expected ok=true")
	}
	if math.Abs(d-5) > tolerance {
		t.Fatalf("single-point route distance = %v, want 5", d)
	}
}

func TestDistanceToRoutePlanarMultiSegment(t *testing.T) {
	route := []types.Point{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 10}, {Lat: 10, Lng: 10}}
	cases := []struct {
		name string
		p    types.Point
		want float64
	}{
		{"near first segment", types.Point{Lat: 5, Lng: 5}, 5},
		{"near second segment", types.Point{Lat: 5, Lng: 12}, 2},
		{"on shared vertex", types.Point{Lat: 0, Lng: 10}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := DistanceToRoutePlanar(tc.p, route)
			if !ok {
				t.Fatal("expected ok=true")
			}
			if math.Abs(got-tc.want) > tolerance {
				t.Fatalf("distance = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHaversineMeters(t *testing.T) {
	// One degree of latitude is roughly 111.2 km.
	a := types.Point{Lat: 25.0, Lng: 121.5}
	b := types.Point{Lat: 26.0, Lng: 121.5}

	got := HaversineMeters(a, b)
	if got < 110000 || got > 112500 {
		t.Fatalf("1 degree latitude = %v m, want ~111200", got)
	}

	if d := HaversineMeters(a, a); d != 0 {
		t.Fatalf("identical points = %v, want 0", d)
	}
}

func TestPointToSegmentMetersMatchesHaversineForPerpendicular(t *testing.T) {
	// Segment running north from (25, 121.5); point due east of its midpoint.
	a := types.Point{Lat: 25.0, Lng: 121.5}
	b := types.Point{Lat: 25.2, Lng: 121.5}
	p := types.Point{Lat: 25.1, Lng: 121.51}

	want := HaversineMeters(p, types.Point{Lat: 25.1, Lng: 121.5})
	got := PointToSegmentMeters(p, a, b)
	if math.Abs(got-want)/want > 0.01 {
		t.Fatalf("segment distance = %v, want ~%v", got, want)
	}
}
