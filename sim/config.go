// Simulation configuration: YAML file loading, defaults, and validation.

package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all simulation parameters, grouped by concern.
type Config struct {
	World       WorldConfig       `yaml:"world"`
	Particles   ParticlesConfig   `yaml:"particles"`
	Constraints ConstraintsConfig `yaml:"constraints"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// WorldConfig holds the box geometry, domain decomposition, and timestep.
type WorldConfig struct {
	BoxX    float64 `yaml:"box_x"`   // box edge length along x
	BoxY    float64 `yaml:"box_y"`   // box edge length along y
	BoxZ    float64 `yaml:"box_z"`   // box edge length along z
	Domains int     `yaml:"domains"` // domains on the 1-D ring along x
	DT      float64 `yaml:"dt"`      // integration timestep
}

// ParticlesConfig holds particle initialization parameters.
type ParticlesConfig struct {
	Count    int     `yaml:"count"`     // total particles across all domains
	Mass     float64 `yaml:"mass"`      // per-particle mass
	MaxSpeed float64 `yaml:"max_speed"` // uniform initial speed cap per component
	Workers  int     `yaml:"workers"`   // kernel worker count (0 = GOMAXPROCS)
}

// ConstraintsConfig describes the constraint chains built at startup.
// Chains require a single domain: the constraint system is single-stream
// even when the wider engine runs multiple domains.
type ConstraintsConfig struct {
	Chains      int     `yaml:"chains"`       // number of independent chains
	ChainLength int     `yaml:"chain_length"` // particles per chain (>= 2)
	BondLength  float64 `yaml:"bond_length"`  // target separation per bond
}

// TelemetryConfig holds per-step CSV output parameters.
type TelemetryConfig struct {
	OutDir   string `yaml:"out_dir"`  // output directory ("" = disabled)
	Interval int    `yaml:"interval"` // steps between records (<=0 means 1)
}

// DefaultConfig returns the built-in defaults: a small two-domain migration
// scenario without constraints.
func DefaultConfig() *Config {
	return &Config{
		World: WorldConfig{
			BoxX:    20,
			BoxY:    20,
			BoxZ:    20,
			Domains: 2,
			DT:      0.005,
		},
		Particles: ParticlesConfig{
			Count:    1000,
			Mass:     1.0,
			MaxSpeed: 2.0,
		},
		Constraints: ConstraintsConfig{
			BondLength: 1.0,
		},
		Telemetry: TelemetryConfig{
			Interval: 1,
		},
	}
}

// LoadConfig builds a Config from defaults, overlaid with the YAML file at
// path if one is given. Fields absent from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	return cfg, nil
}

// Validate checks the configuration for caller errors. Violations terminate
// the run before any state is built.
func (c *Config) Validate() error {
	w := &c.World
	if w.BoxX <= 0 || w.BoxY <= 0 || w.BoxZ <= 0 {
		return fmt.Errorf("config: box edges must be > 0, got (%v, %v, %v)", w.BoxX, w.BoxY, w.BoxZ)
	}
	if w.Domains < 1 {
		return fmt.Errorf("config: domains must be >= 1, got %d", w.Domains)
	}
	if w.DT <= 0 {
		return fmt.Errorf("config: dt must be > 0, got %v", w.DT)
	}
	if c.Particles.Count <= 0 {
		return fmt.Errorf("config: particle count must be > 0, got %d", c.Particles.Count)
	}
	if c.Particles.Mass <= 0 {
		return fmt.Errorf("config: particle mass must be > 0, got %v", c.Particles.Mass)
	}
	if c.Constraints.Chains > 0 {
		if w.Domains != 1 {
			return fmt.Errorf("config: constraints require a single domain, got %d", w.Domains)
		}
		if c.Constraints.ChainLength < 2 {
			return fmt.Errorf("config: chain_length must be >= 2, got %d", c.Constraints.ChainLength)
		}
		if c.Constraints.BondLength <= 0 {
			return fmt.Errorf("config: bond_length must be > 0, got %v", c.Constraints.BondLength)
		}
		if c.Constraints.Chains*c.Constraints.ChainLength > c.Particles.Count {
			return fmt.Errorf("config: %d chains of %d particles exceed particle count %d",
				c.Constraints.Chains, c.Constraints.ChainLength, c.Particles.Count)
		}
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file, so a run's exact
// parameters land next to its telemetry.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
