// Synthetic baseline generation using layered simplex noise.
// Zones are scattered over a lat/lon box; hazard, density and access fields are
// sampled from independent noise layers so nearby zones look alike.
package world

import (
	"fmt"
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds synthetic scenario parameters.
type GenConfig struct {
	Zones         int     // Number of zone/hub pairs
	Seed          int64   // Random seed (0 = random)
	MaxPopulation float64 // Upper bound of zone population
	MaxDistance   float64 // Hub-to-zone distance upper bound (km)
	MaxUnits      int     // Upper bound for each hub resource count
	Lat, Lon      float64 // Centre of the affected region
	Spread        float64 // Half-width of the region in degrees
}

// DefaultGenConfig returns a mid-sized regional scenario.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Zones:         12,
		Seed:          0,
		MaxPopulation: 5000,
		MaxDistance:   300,
		MaxUnits:      30,
		Lat:           20,
		Lon:           78,
		Spread:        8,
	}
}

// SmallTestConfig returns a tiny deterministic scenario for tests.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Zones:         4,
		Seed:          42,
		MaxPopulation: 2000,
		MaxDistance:   100,
		MaxUnits:      12,
		Lat:           0,
		Lon:           0,
		Spread:        2,
	}
}

// Generate creates a baseline from noise. The same seed always yields the
// same dataset.
func Generate(cfg GenConfig) (*Baseline, error) {
	if cfg.Zones <= 0 {
		return nil, fmt.Errorf("%w: zone count must be positive", ErrData)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))

	// Independent layers: hazard drives severity/risk, density drives
	// population, access drives distance/accessibility.
	hazardNoise := opensimplex.NewNormalized(seed)
	densityNoise := opensimplex.NewNormalized(seed + 1)
	accessNoise := opensimplex.NewNormalized(seed + 2)

	pairs := make([]Pair, 0, cfg.Zones)
	for i := 0; i < cfg.Zones; i++ {
		lat := cfg.Lat + (rng.Float64()*2-1)*cfg.Spread
		lon := cfg.Lon + (rng.Float64()*2-1)*cfg.Spread

		hazard := octaveNoise(hazardNoise, lat, lon, 3, 0.15, 0.5)
		density := octaveNoise(densityNoise, lat, lon, 4, 0.2, 0.5)
		access := octaveNoise(accessNoise, lat, lon, 2, 0.1, 0.5)

		severity := 1 + math.Round(hazard*4) // 1..5
		zone := DisasterZone{
			Zone:          ID(fmt.Sprintf("Z%02d", i+1)),
			Lat:           round(lat, 4),
			Lon:           round(lon, 4),
			Population:    math.Round(density * cfg.MaxPopulation),
			Severity:      severity,
			Urgency:       round(0.5*hazard+0.5*rng.Float64(), 3),
			Risk:          round(hazard, 3),
			Distance:      math.Round((1 - access) * cfg.MaxDistance),
			Accessibility: round(access, 3),
		}

		// Better-connected zones get larger hubs.
		units := func() int {
			return 1 + int(float64(cfg.MaxUnits-1)*(0.4*access+0.6*rng.Float64()))
		}
		hub := ReliefHub{
			Hub: ID(fmt.Sprintf("H%02d", i+1)),
			Lat: round(lat+(rng.Float64()-0.5)*0.5, 4),
			Lon: round(lon+(rng.Float64()-0.5)*0.5, 4),
			A:   units(),
			T:   units(),
			S:   units(),
		}
		pairs = append(pairs, Pair{Zone: zone, Hub: hub})
	}

	return NewBaseline(pairs)
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
