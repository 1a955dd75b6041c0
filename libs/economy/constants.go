package economy

import "runtime"

// Config holds the process-wide simulation constants. It is loaded once at
// startup and treated as immutable afterwards.
type Config struct {
	// Verbose controls output volume: 0 errors only, 1 progress, 2 debug,
	// 3 per-agent step tracing.
	Verbose int

	DefaultPrice       float64
	PriceMultiplier    float64
	DefaultLaborBudget float64
	DefaultWage        float64
	LaborIncrement     float64

	// Eps is the clamp floor for values that must be strictly positive.
	Eps float64
	// LargeNumber caps log-normal samples (wages) that would otherwise
	// overflow downstream arithmetic.
	LargeNumber float64

	Multithreaded bool
	NumThreads    int
}

// DefaultConfig returns the standard constants.
func DefaultConfig() *Config {
	return &Config{
		Verbose:            0,
		DefaultPrice:       1.0,
		PriceMultiplier:    1.1,
		DefaultLaborBudget: 0.5,
		DefaultWage:        1.0,
		LaborIncrement:     0.25,
		Eps:                1e-4,
		LargeNumber:        1e6,
		Multithreaded:      true,
		NumThreads:         runtime.NumCPU(),
	}
}
