package cmd

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/particle-sim/particle-sim/sim"
)

var (
	// CLI flags
	configPath string // Path to a YAML configuration file
	steps      int    // Number of timesteps to run
	seed       int64  // Master seed for deterministic initialization
	logLevel   string // Log verbosity level
	outDir     string // Telemetry output directory

	// Overrides applied on top of the configuration file
	particles   int
	domains     int
	chains      int
	chainLength int
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "particle-sim",
	Short: "Particle migration engine with a distance constraint solver",
}

// runCmd executes the simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the particle simulation",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg, err := sim.LoadConfig(configPath)
		if err != nil {
			logrus.Fatalf("Unable to load configuration: %v", err)
		}

		// Flag overrides beat the file; -1 means "keep the file value".
		if particles >= 0 {
			cfg.Particles.Count = particles
		}
		if domains >= 0 {
			cfg.World.Domains = domains
		}
		if chains >= 0 {
			cfg.Constraints.Chains = chains
		}
		if chainLength >= 0 {
			cfg.Constraints.ChainLength = chainLength
		}
		if outDir != "" {
			cfg.Telemetry.OutDir = outDir
		}

		logrus.Infof("Starting simulation: %d particles, %d domains, %d chains, %d steps, seed=%d",
			cfg.Particles.Count, cfg.World.Domains, cfg.Constraints.Chains, steps, seed)

		startTime := time.Now()

		s, err := sim.NewSystem(cfg, seed)
		if err != nil {
			logrus.Fatalf("Unable to build system: %v", err)
		}
		telemetry, err := sim.NewTelemetryWriter(cfg.Telemetry.OutDir)
		if err != nil {
			logrus.Fatalf("Unable to open telemetry output: %v", err)
		}
		s.SetTelemetry(telemetry)
		if cfg.Telemetry.OutDir != "" {
			// Drop the effective configuration next to the telemetry.
			if err := cfg.WriteYAML(filepath.Join(cfg.Telemetry.OutDir, "config.yaml")); err != nil {
				logrus.Fatalf("Unable to write effective config: %v", err)
			}
		}

		if err := s.Run(steps); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		if err := s.Close(); err != nil {
			logrus.Fatalf("Unable to close telemetry output: %v", err)
		}

		s.Metrics().Print()
		logrus.Infof("Simulation complete in %v.", time.Since(startTime).Round(time.Millisecond))
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	runCmd.Flags().IntVar(&steps, "steps", 1000, "Number of timesteps to run")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Master seed for deterministic initialization")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&outDir, "out", "", "Telemetry output directory (empty disables output)")

	runCmd.Flags().IntVar(&particles, "particles", -1, "Override: total particle count")
	runCmd.Flags().IntVar(&domains, "domains", -1, "Override: domains on the ring")
	runCmd.Flags().IntVar(&chains, "chains", -1, "Override: number of constraint chains")
	runCmd.Flags().IntVar(&chainLength, "chain-length", -1, "Override: particles per chain")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
