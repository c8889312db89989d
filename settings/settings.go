package settings

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
)

// Settings contains everything the simulation core reads at construction.
type Settings struct {
	Physics struct {
		// NumThreads is the number of background simulation threads. 0
		// forces fully synchronous execution on the calling thread.
		NumThreads int
		// FixedTimestep is the physics time slice in seconds.
		FixedTimestep float64
		// LOSCacheExpiry is how many frames an unqueried line-of-sight
		// result stays cached.
		LOSCacheExpiry int
		// DefaultMaxSteps is the per-frame step cap when the simulation
		// cost is neither cheap nor over budget.
		DefaultMaxSteps int
		// MaxStepCap is the hard upper bound on steps per frame.
		MaxStepCap int
	}
}

// Default returns the settings used when no file is present.
func Default() Settings {
	s := Settings{}
	s.Physics.NumThreads = 1
	s.Physics.FixedTimestep = 1.0 / 60.0
	s.Physics.LOSCacheExpiry = 5
	s.Physics.DefaultMaxSteps = 2
	s.Physics.MaxStepCap = 10
	return s
}

// Load reads settings from a TOML file and clamps them to sane values.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("failed reading settings file: %w", err)
	}
	s := Default()
	if err := toml.Unmarshal(data, &s); err != nil {
		return Default(), fmt.Errorf("failed decoding settings file: %w", err)
	}
	s.Clamp()
	return s, nil
}

// Save writes the settings to a TOML file.
func Save(path string, s Settings) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed encoding settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed writing settings file: %w", err)
	}
	return nil
}

// Clamp forces every value into its valid range. Out-of-range configuration
// degrades to the nearest sane value rather than failing.
func (s *Settings) Clamp() {
	p := &s.Physics
	if p.NumThreads < 0 {
		p.NumThreads = 0
	}
	if p.FixedTimestep <= 0 {
		p.FixedTimestep = 1.0 / 60.0
	}
	if p.LOSCacheExpiry < 0 {
		p.LOSCacheExpiry = 0
	}
	if p.DefaultMaxSteps < 1 {
		p.DefaultMaxSteps = 1
	}
	if p.MaxStepCap < p.DefaultMaxSteps {
		p.MaxStepCap = p.DefaultMaxSteps
	}
}
