package telemetry

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tidewater/ocean-engine/internal/config"
)

// Tier is the management class of a station, derived from its type text.
type Tier string

const (
	TierResearch  Tier = "research_station"
	TierBuoy      Tier = "buoy"
	TierTideGauge Tier = "tide_gauge"
	TierOther     Tier = "other"
)

// ClassifyTier maps a station type to its tier.
func ClassifyTier(stationType string) Tier {
	switch {
	case strings.Contains(stationType, "종합해양과학기지"):
		return TierResearch
	case strings.Contains(stationType, "해양관측부이"):
		return TierBuoy
	case strings.Contains(stationType, "조위관측소"):
		return TierTideGauge
	}
	return TierOther
}

// Delta is the price move for a region whose nearest station has this tier.
func (t Tier) Delta(cfg config.TelemetryConfig) decimal.Decimal {
	switch t {
	case TierResearch:
		return cfg.ResearchStationDelta
	case TierBuoy:
		return cfg.BuoyDelta
	case TierTideGauge:
		return cfg.TideGaugeDelta
	}
	return cfg.OtherStationDelta
}

// weight scales synthesized water quality: better-equipped stations imply
// better-managed water.
func (t Tier) weight() float64 {
	switch t {
	case TierResearch:
		return 1.0
	case TierBuoy:
		return 0.85
	case TierTideGauge:
		return 0.7
	}
	return 0.5
}

const earthRadiusKm = 6371.0

// DistanceFunc returns the distance in km between two coordinates.
type DistanceFunc func(lat1, lon1, lat2, lon2 float64) float64

// FlatDistance treats degrees as a fixed number of kilometers on both axes.
func FlatDistance(kmPerDegree float64) DistanceFunc {
	return func(lat1, lon1, lat2, lon2 float64) float64 {
		dy := (lat1 - lat2) * kmPerDegree
		dx := (lon1 - lon2) * kmPerDegree
		return math.Sqrt(dx*dx + dy*dy)
	}
}

// HaversineDistance is the great-circle distance.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// DistanceFor picks the distance function named by the config.
func DistanceFor(cfg config.TelemetryConfig) DistanceFunc {
	if cfg.DistanceMode == config.DistanceHaversine {
		return HaversineDistance
	}
	return FlatDistance(cfg.KmPerDegree)
}

// Nearest returns the closest station to (lat, lon) if it lies within
// radiusKm. Ties go to the earlier station.
func Nearest(stations []Station, lat, lon, radiusKm float64, dist DistanceFunc) (Station, float64, bool) {
	best, bestDist := -1, math.Inf(1)
	for i, s := range stations {
		if dd := dist(lat, lon, s.Lat, s.Lon); dd < bestDist {
			best, bestDist = i, dd
		}
	}
	if best < 0 || bestDist > radiusKm {
		return Station{}, 0, false
	}
	return stations[best], bestDist, true
}
