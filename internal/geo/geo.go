// README: Pure geographic computation helpers (great-circle, segment, and route distance).
package geo

import (
	"math"

	"tripguard/internal/types"
)

const earthRadiusM = 6371000.0

// HaversineMeters returns the great-circle distance in metres between two
// points specified in decimal degrees.
func HaversineMeters(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

// PointToSegmentPlanar returns the shortest distance from p to the segment
// a-b, treating coordinates as x/y on a plane. Planar variants back the
// geodesic ones after projection and also suit simulated or replayed inputs
// that carry planar units.
func PointToSegmentPlanar(p, a, b types.Point) float64 {
	dx, dy := b.Lat-a.Lat, b.Lng-a.Lng
	segLenSq := dx*dx + dy*dy
	if segLenSq == 0 {
		// Degenerate segment: a and b coincide.
		return math.Hypot(p.Lat-a.Lat, p.Lng-a.Lng)
	}

	t := ((p.Lat-a.Lat)*dx + (p.Lng-a.Lng)*dy) / segLenSq
	t = math.Max(0, math.Min(1, t))

	cx, cy := a.Lat+t*dx, a.Lng+t*dy
	return math.Hypot(p.Lat-cx, p.Lng-cy)
}

// PointToSegmentMeters returns the shortest distance in metres from p to the
// segment a-b. The segment is projected onto a local equirectangular plane
// centred on a, which is accurate at trip scale.
func PointToSegmentMeters(p, a, b types.Point) float64 {
	if a.Lat == b.Lat && a.Lng == b.Lng {
		return HaversineMeters(p, a)
	}
	return PointToSegmentPlanar(project(a, p), types.Point{}, project(a, b))
}

// DistanceFunc computes the distance from a point to a route. Detectors take
// one so replayed planar traces and live geodesic fixes share the same code
// path.
type DistanceFunc func(p types.Point, route []types.Point) (dist float64, ok bool)

// DistanceToRouteMeters returns the minimum distance in metres from p to any
// segment of the route. A single-point route yields the distance to that
// point; ok is false only for an empty route.
func DistanceToRouteMeters(p types.Point, route []types.Point) (dist float64, ok bool) {
	return distanceToRoute(p, route, PointToSegmentMeters, HaversineMeters)
}

// DistanceToRoutePlanar is DistanceToRouteMeters over planar coordinates.
func DistanceToRoutePlanar(p types.Point, route []types.Point) (dist float64, ok bool) {
	return distanceToRoute(p, route, PointToSegmentPlanar, func(a, b types.Point) float64 {
		return math.Hypot(a.Lat-b.Lat, a.Lng-b.Lng)
	})
}

func distanceToRoute(
	p types.Point,
	route []types.Point,
	segDist func(p, a, b types.Point) float64,
	pointDist func(a, b types.Point) float64,
) (float64, bool) {
	switch len(route) {
	case 0:
		return 0, false
	case 1:
		return pointDist(p, route[0]), true
	}
	min := math.Inf(1)
	for i := 0; i < len(route)-1; i++ {
		if d := segDist(p, route[i], route[i+1]); d < min {
			min = d
		}
	}
	return min, true
}

// project maps q into metres on a plane centred at origin, reusing the
// Lat/Lng fields as planar x/y.
func project(origin, q types.Point) types.Point {
	latRad := degreesToRadians(origin.Lat)
	return types.Point{
		Lat: degreesToRadians(q.Lat-origin.Lat) * earthRadiusM,
		Lng: degreesToRadians(q.Lng-origin.Lng) * earthRadiusM * math.Cos(latRad),
	}
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
