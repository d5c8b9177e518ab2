package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tableside/internal/domain"
)

const (
	defaultHTTPTimeout = 8 * time.Second
	retryBackoff       = 500 * time.Millisecond
)

// Geocoder resolves a free-text address to coordinates, biased around a point.
type Geocoder interface {
	Forward(ctx context.Context, address string, bias domain.LatLng) (domain.LatLng, error)
}

// Router resolves a driving route between two points.
type Router interface {
	Route(ctx context.Context, from, to domain.LatLng) (Route, error)
}

type Route struct {
	DistanceKm  float64         `json:"distance_km"`
	DurationMin int             `json:"duration_min"`
	Polyline    []domain.LatLng `json:"polyline,omitempty"`
}

// HTTPGeocoder talks to a nominatim-style forward geocoding endpoint.
type HTTPGeocoder struct {
	BaseURL string
	BiasDeg float64
	Client  *http.Client
}

func NewHTTPGeocoder(baseURL string, biasDeg float64) *HTTPGeocoder {
	return &HTTPGeocoder{
		BaseURL: baseURL,
		BiasDeg: biasDeg,
		Client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (g *HTTPGeocoder) Forward(ctx context.Context, address string, bias domain.LatLng) (domain.LatLng, error) {
	if strings.TrimSpace(address) == "" {
		return domain.LatLng{}, fmt.Errorf("address is required")
	}
	delta := g.BiasDeg
	if delta <= 0 {
		delta = 0.25
	}
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	q.Set("bounded", "1")
	q.Set("viewbox", fmt.Sprintf("%f,%f,%f,%f",
		bias.Lng-delta, bias.Lat+delta, bias.Lng+delta, bias.Lat-delta))
	endpoint := strings.TrimRight(g.BaseURL, "/") + "?" + q.Encode()

	var rows []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := getJSONWithRetry(ctx, g.Client, endpoint, &rows); err != nil {
		return domain.LatLng{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	if len(rows) == 0 {
		return domain.LatLng{}, fmt.Errorf("address %q not found", address)
	}
	lat, err := strconv.ParseFloat(rows[0].Lat, 64)
	if err != nil {
		return domain.LatLng{}, fmt.Errorf("geocode %q: bad latitude: %w", address, err)
	}
	lng, err := strconv.ParseFloat(rows[0].Lon, 64)
	if err != nil {
		return domain.LatLng{}, fmt.Errorf("geocode %q: bad longitude: %w", address, err)
	}
	return domain.LatLng{Lat: lat, Lng: lng}, nil
}

// HTTPRouter talks to an OSRM-style driving route endpoint.
type HTTPRouter struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPRouter(baseURL string) *HTTPRouter {
	return &HTTPRouter{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (r *HTTPRouter) Route(ctx context.Context, from, to domain.LatLng) (Route, error) {
	endpoint := fmt.Sprintf("%s/%f,%f;%f,%f?overview=full&geometries=geojson",
		strings.TrimRight(r.BaseURL, "/"), from.Lng, from.Lat, to.Lng, to.Lat)

	var payload struct {
		Routes []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
			Geometry struct {
				Coordinates [][]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"routes"`
	}
	if err := getJSONWithRetry(ctx, r.Client, endpoint, &payload); err != nil {
		return Route{}, fmt.Errorf("route: %w", err)
	}
	if len(payload.Routes) == 0 {
		return Route{}, fmt.Errorf("no route found")
	}
	best := payload.Routes[0]
	route := Route{
		DistanceKm:  RoundCents(best.Distance / 1000),
		DurationMin: int(best.Duration/60) + 1,
	}
	for _, c := range best.Geometry.Coordinates {
		if len(c) < 2 {
			continue
		}
		route.Polyline = append(route.Polyline, domain.LatLng{Lat: c[1], Lng: c[0]})
	}
	return route, nil
}

// getJSONWithRetry does one retry with backoff; the external services carry no
// SLA and a single transient failure should not surface to the user.
func getJSONWithRetry(ctx context.Context, client *http.Client, endpoint string, out any) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff):
			}
		}
		lastErr = getJSON(ctx, client, endpoint, out)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(res.Body).Decode(out)
}
