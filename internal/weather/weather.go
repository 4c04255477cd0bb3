// Package weather synthesizes plausible weather snapshots for agricultural
// regions when the caller supplies none. Values are drawn from per-region
// range tables with a location-seeded generator, so the same location always
// yields the same snapshot.
package weather

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/cropsense/farmops/internal/model"
)

// Pattern holds the climate ranges for one region.
type Pattern struct {
	TempMin     float64 `yaml:"temp_min"`
	TempMax     float64 `yaml:"temp_max"`
	HumidityMin float64 `yaml:"humidity_min"`
	HumidityMax float64 `yaml:"humidity_max"`
	RainfallMin float64 `yaml:"rainfall_min"`
	RainfallMax float64 `yaml:"rainfall_max"`
}

// DefaultRegion is used when no pattern matches the location.
const DefaultRegion = "bangalore"

// defaultPatterns covers the major agricultural regions of southern and
// western India.
var defaultPatterns = map[string]Pattern{
	"bangalore":  {15, 30, 60, 80, 5, 150},
	"pune":       {18, 35, 50, 75, 10, 200},
	"hyderabad":  {20, 38, 45, 70, 15, 180},
	"chennai":    {24, 36, 70, 85, 20, 250},
	"coimbatore": {18, 32, 65, 80, 25, 300},
	"mysore":     {16, 28, 60, 85, 30, 200},
	"salem":      {20, 35, 55, 75, 15, 180},
	"madurai":    {22, 38, 50, 70, 10, 150},
	"tirupur":    {19, 33, 60, 80, 20, 220},
	"erode":      {21, 36, 55, 75, 18, 190},
}

// Synthesizer generates weather snapshots from the pattern table.
type Synthesizer struct {
	patterns map[string]Pattern
	keys     []string // sorted for deterministic substring matching
	seed     *uint64  // overrides location-derived seeding when set
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithPatterns replaces the built-in pattern table.
func WithPatterns(patterns map[string]Pattern) Option {
	return func(s *Synthesizer) {
		if len(patterns) > 0 {
			s.patterns = patterns
		}
	}
}

// WithSeed fixes the generator seed for every location.
func WithSeed(seed uint64) Option {
	return func(s *Synthesizer) {
		s.seed = &seed
	}
}

// NewSynthesizer creates a Synthesizer with the built-in region table.
func NewSynthesizer(opts ...Option) *Synthesizer {
	s := &Synthesizer{patterns: defaultPatterns}
	for _, opt := range opts {
		opt(s)
	}
	s.keys = make([]string, 0, len(s.patterns))
	for k := range s.patterns {
		s.keys = append(s.keys, k)
	}
	sort.Strings(s.keys)
	return s
}

// Synthesize produces a weather snapshot for the location. Lookup is a
// lower-cased substring match against the region keys, defaulting to
// DefaultRegion. An empty location reports the default region's name.
func (s *Synthesizer) Synthesize(location string) *model.WeatherSnapshot {
	normalized := strings.ToLower(strings.TrimSpace(location))

	pattern, ok := s.match(normalized)
	if !ok {
		pattern = s.patterns[DefaultRegion]
	}

	rng := s.rngFor(normalized)

	tempMin := uniform(rng, pattern.TempMin, pattern.TempMin+5)
	tempMax := uniform(rng, pattern.TempMax-5, pattern.TempMax)
	tempAvg := (tempMin + tempMax) / 2

	name := location
	if name == "" {
		name = "Bangalore"
	}

	return &model.WeatherSnapshot{
		Location: name,
		TempAvg:  round1(tempAvg),
		TempMin:  round1(tempMin),
		TempMax:  round1(tempMax),
		Humidity: round1(uniform(rng, pattern.HumidityMin, pattern.HumidityMax)),
		Rainfall: round1(uniform(rng, pattern.RainfallMin, pattern.RainfallMax)),
		Wind:     round1(uniform(rng, 5, 25)),
		Pressure: round1(uniform(rng, 1010, 1020)),
	}
}

func (s *Synthesizer) match(normalized string) (Pattern, bool) {
	if p, ok := s.patterns[normalized]; ok {
		return p, true
	}
	for _, key := range s.keys {
		if strings.Contains(normalized, key) {
			return s.patterns[key], true
		}
	}
	return Pattern{}, false
}

func (s *Synthesizer) rngFor(normalized string) *rand.Rand {
	if s.seed != nil {
		return rand.New(rand.NewPCG(*s.seed, *s.seed))
	}
	h := fnv.New64a()
	h.Write([]byte(normalized))
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, seed))
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// patternFile is the on-disk override shape.
type patternFile struct {
	Patterns map[string]Pattern `yaml:"patterns"`
}

// LoadPatterns reads a region pattern table from a YAML file. The file must
// define at least the default region.
func LoadPatterns(path string) (map[string]Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "weather: read patterns %s", path)
	}

	var pf patternFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, eris.Wrap(err, "weather: parse patterns")
	}
	if len(pf.Patterns) == 0 {
		return nil, eris.New("weather: pattern file defines no regions")
	}
	if _, ok := pf.Patterns[DefaultRegion]; !ok {
		return nil, eris.Errorf("weather: pattern file missing default region %q", DefaultRegion)
	}

	return pf.Patterns, nil
}
