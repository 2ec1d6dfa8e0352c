// README: Google Maps collaborators: route refresh (Directions) and posted speed limits (Roads).
package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"tripguard/internal/types"
)

// RouteService fetches a fresh planned route when the deviation monitor
// signals that recalculation is needed.
type RouteService struct {
	client *maps.Client
}

func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// FetchRoute returns the driving route from origin to destination as an
// ordered coordinate sequence decoded from the overview polyline.
func (s *RouteService) FetchRoute(ctx context.Context, origin, destination types.Point) ([]types.Point, error) {
	r := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", origin.Lat, origin.Lng),
		Destination: fmt.Sprintf("%f,%f", destination.Lat, destination.Lng),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("no route found")
	}

	latlngs, err := routes[0].OverviewPolyline.Decode()
	if err != nil {
		return nil, fmt.Errorf("decoding polyline: %w", err)
	}

	pts := make([]types.Point, len(latlngs))
	for i, ll := range latlngs {
		pts[i] = types.Point{Lat: ll.Lat, Lng: ll.Lng}
	}
	return pts, nil
}

// SpeedLimitService resolves the posted limit at a coordinate through the
// Roads API. The caller may cache results; this service does not.
type SpeedLimitService struct {
	client *maps.Client
}

func NewSpeedLimitService(apiKey string) (*SpeedLimitService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &SpeedLimitService{client: client}, nil
}

// Lookup returns the posted limit in km/h at p, or ok=false when the Roads
// API has no limit for the matched road segment.
func (s *SpeedLimitService) Lookup(ctx context.Context, p types.Point) (limit float64, ok bool, err error) {
	resp, err := s.client.SpeedLimits(ctx, &maps.SpeedLimitsRequest{
		Path:  []maps.LatLng{{Lat: p.Lat, Lng: p.Lng}},
		Units: maps.SpeedLimitKPH,
	})
	if err != nil {
		return 0, false, fmt.Errorf("roads api error: %w", err)
	}
	if len(resp.SpeedLimits) == 0 {
		return 0, false, nil
	}
	return resp.SpeedLimits[0].SpeedLimit, true, nil
}
