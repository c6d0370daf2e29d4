package telemetry

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/tidewater/ocean-engine/internal/model"
)

// metricSpec describes one synthesized water-quality measurement:
// value = base + slope*q + jitter, then classified against the thresholds.
type metricSpec struct {
	base, slope float64
	jitter      float64
	decimals    int
	warnBelow   float64
	warnAbove   float64
}

var (
	dissolvedOxygen = metricSpec{base: 5.0, slope: 3.0, jitter: 0.5, decimals: 2, warnBelow: 5.0, warnAbove: math.Inf(1)}
	phLevel         = metricSpec{base: 7.6, slope: 0.6, jitter: 0.15, decimals: 2, warnBelow: 7.8, warnAbove: 8.5}
	nitrogen        = metricSpec{base: 0.6, slope: -0.4, jitter: 0.05, decimals: 3, warnBelow: math.Inf(-1), warnAbove: 0.3}
	phosphorus      = metricSpec{base: 0.06, slope: -0.04, jitter: 0.005, decimals: 3, warnBelow: math.Inf(-1), warnAbove: 0.03}
	turbidity       = metricSpec{base: 8.0, slope: -6.0, jitter: 0.5, decimals: 2, warnBelow: math.Inf(-1), warnAbove: 5.0}
)

func (m metricSpec) sample(q float64, rng *rand.Rand) model.Measurement {
	v := m.base + m.slope*q + (rng.Float64()*2-1)*m.jitter
	v = math.Max(0, v)
	p := math.Pow(10, float64(m.decimals))
	v = math.Round(v*p) / p

	status := model.QualityNormal
	if v < m.warnBelow || v > m.warnAbove {
		status = model.QualityWarning
	}
	return model.Measurement{Value: v, Status: status}
}

// quality is the station-derived management score in [0, 1]: full weight at
// the station, falling linearly to zero at the radius.
func quality(tier Tier, distanceKm, radiusKm float64) float64 {
	if radiusKm <= 0 {
		return 0
	}
	q := tier.weight() * (1 - distanceKm/radiusKm)
	return math.Min(1, math.Max(0, q))
}

func seedFor(regionID string, distanceKm float64) int64 {
	h := fnv.New64a()
	h.Write([]byte(regionID))
	var buf [8]byte
	bits := math.Float64bits(distanceKm)
	for i := range buf {
		buf[i] = byte(bits >> (8 * i))
	}
	h.Write(buf[:])
	return int64(h.Sum64())
}

// Synthesize derives a water-quality snapshot for a region from its nearest
// station. Identical inputs always produce identical measurements.
func Synthesize(regionID string, st Station, distanceKm, radiusKm float64, at time.Time) model.WaterQuality {
	tier := ClassifyTier(st.Type)
	q := quality(tier, distanceKm, radiusKm)
	rng := rand.New(rand.NewSource(seedFor(regionID, distanceKm)))

	return model.WaterQuality{
		RegionID:        regionID,
		DissolvedOxygen: dissolvedOxygen.sample(q, rng),
		PH:              phLevel.sample(q, rng),
		Nitrogen:        nitrogen.sample(q, rng),
		Phosphorus:      phosphorus.sample(q, rng),
		Turbidity:       turbidity.sample(q, rng),
		StationName:     st.Name,
		StationCode:     st.Code,
		StationTier:     string(tier),
		DistanceKm:      math.Round(distanceKm*100) / 100,
		MeasuredAt:      at,
	}
}
