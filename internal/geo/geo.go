package geo

import (
	"math"

	"tableside/internal/domain"
)

const earthRadiusKm = 6371

// HaversineKm returns the great-circle distance between two points using the
// mean Earth radius.
func HaversineKm(a, b domain.LatLng) float64 {
	toRad := func(x float64) float64 { return x * math.Pi / 180 }

	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)

	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(s))
}

// FeeSchedule is the delivery pricing: base + per-km, capped.
type FeeSchedule struct {
	Base  float64
	PerKm float64
	Cap   float64
}

// DeliveryFee computes the delivery fee for a routed distance, rounded to
// cents before the cap is applied.
func DeliveryFee(distanceKm float64, s FeeSchedule) float64 {
	raw := s.Base + s.PerKm*math.Max(0, distanceKm)
	return math.Min(s.Cap, RoundCents(raw))
}

// RoundCents rounds to two decimal places, half away from zero.
func RoundCents(x float64) float64 {
	return math.Round(x*100) / 100
}
