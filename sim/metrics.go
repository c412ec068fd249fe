package sim

import "fmt"

// Metrics accumulates run counters across steps. Migration counters update
// every step; the factorization counters are copied from the solver when the
// run finishes.
type Metrics struct {
	StepsRun             int64
	ParticlesMigrated    int64
	PeakOutbound         int
	FullFactorizations   int
	FastRefactorizations int
}

// Print writes a human-readable summary to stdout.
func (m *Metrics) Print() {
	fmt.Println("=== Run Summary ===")
	fmt.Printf("Steps:                 %d\n", m.StepsRun)
	fmt.Printf("Particles migrated:    %d\n", m.ParticlesMigrated)
	fmt.Printf("Peak outbound / step:  %d\n", m.PeakOutbound)
	if m.StepsRun > 0 {
		fmt.Printf("Mean migrated / step:  %.2f\n", float64(m.ParticlesMigrated)/float64(m.StepsRun))
	}
	fmt.Printf("Full factorizations:   %d\n", m.FullFactorizations)
	fmt.Printf("Fast refactorizations: %d\n", m.FastRefactorizations)
}
