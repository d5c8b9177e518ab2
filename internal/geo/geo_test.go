package geo_test

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"tableside/internal/domain"
	"tableside/internal/geo"
)

var schedule = geo.FeeSchedule{Base: 2.99, PerKm: 0.75, Cap: 12.99}

func TestHaversine(t *testing.T) {
	nyc := domain.LatLng{Lat: 40.7128, Lng: -74.0060}
	if d := geo.HaversineKm(nyc, nyc); d != 0 {
		t.Fatalf("identity distance = %v", d)
	}
	la := domain.LatLng{Lat: 34.0522, Lng: -118.2437}
	ab := geo.HaversineKm(nyc, la)
	ba := geo.HaversineKm(la, nyc)
	if math.Abs(ab-ba) > 1e-9 {
		t.Fatalf("asymmetric: %v vs %v", ab, ba)
	}
	// NYC-LA is about 3936 km
	if ab < 3900 || ab > 3970 {
		t.Fatalf("NYC-LA = %v km", ab)
	}
	// one degree of latitude is about 111.2 km
	d := geo.HaversineKm(domain.LatLng{Lat: 40, Lng: -74}, domain.LatLng{Lat: 41, Lng: -74})
	if d < 111 || d > 111.5 {
		t.Fatalf("1 degree lat = %v km", d)
	}
}

func TestDeliveryFee(t *testing.T) {
	cases := []struct {
		km   float64
		want float64
	}{
		{0, 2.99},
		{1, 3.74},
		{12.4, 12.29},
		{14, 12.99},  // capped
		{100, 12.99}, // still capped
		{-5, 2.99},   // negative distance clamps to base
	}
	for _, c := range cases {
		if got := geo.DeliveryFee(c.km, schedule); got != c.want {
			t.Fatalf("DeliveryFee(%v) = %v, want %v", c.km, got, c.want)
		}
	}
}

func TestHTTPGeocoderForward(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"lat":"40.7200","lon":"-74.0100"}]`))
	}))
	defer srv.Close()

	g := geo.NewHTTPGeocoder(srv.URL, 0.25)
	pt, err := g.Forward(context.Background(), "1 Main St", domain.LatLng{Lat: 40.7, Lng: -74.0})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if pt.Lat != 40.72 || pt.Lng != -74.01 {
		t.Fatalf("point = %+v", pt)
	}
	q := gotQuery.Load().(url.Values)
	if q.Get("q") != "1 Main St" || q.Get("bounded") != "1" || q.Get("viewbox") == "" {
		t.Fatalf("query = %v", q)
	}
}

func TestHTTPGeocoderNoResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()
	g := geo.NewHTTPGeocoder(srv.URL, 0.25)
	if _, err := g.Forward(context.Background(), "nowhere", domain.LatLng{}); err == nil {
		t.Fatalf("expected not-found error")
	}
}

func TestHTTPRouterRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"routes":[{"distance":3450,"duration":540,
			"geometry":{"coordinates":[[-74.0,40.7],[-74.01,40.72]]}}]}`))
	}))
	defer srv.Close()

	router := geo.NewHTTPRouter(srv.URL)
	route, err := router.Route(context.Background(), domain.LatLng{Lat: 40.7, Lng: -74.0}, domain.LatLng{Lat: 40.72, Lng: -74.01})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if route.DistanceKm != 3.45 {
		t.Fatalf("distance = %v, want 3.45", route.DistanceKm)
	}
	if route.DurationMin != 10 {
		t.Fatalf("duration = %v, want 10", route.DurationMin)
	}
	if len(route.Polyline) != 2 || route.Polyline[0].Lat != 40.7 {
		t.Fatalf("polyline = %+v", route.Polyline)
	}
}

func TestRouterRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"routes":[{"distance":1000,"duration":120,"geometry":{"coordinates":[]}}]}`))
	}))
	defer srv.Close()

	router := geo.NewHTTPRouter(srv.URL)
	route, err := router.Route(context.Background(), domain.LatLng{}, domain.LatLng{})
	if err != nil {
		t.Fatalf("route after retry: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
	if route.DistanceKm != 1 {
		t.Fatalf("distance = %v", route.DistanceKm)
	}
}
