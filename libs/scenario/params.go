// Package scenario seeds agent populations and runs training episodes.
package scenario

import (
	"math"
	"math/rand"
)

// Gaussian is a (mu, sigma) pair describing a normally-distributed initial
// value.
type Gaussian struct {
	Mu    float64
	Sigma float64
}

// Draw samples the distribution.
func (g Gaussian) Draw(rng *rand.Rand) float64 {
	return g.Mu + g.Sigma*rng.NormFloat64()
}

// DrawSigmoid draws a logit-normally distributed value in (0, 1).
func (g Gaussian) DrawSigmoid(rng *rand.Rand) float64 {
	return 1.0 / (1.0 + math.Exp(-g.Draw(rng)))
}

// PopulationParams describes the initial population of a two-good economy:
// every value is drawn per agent from its own normal distribution.
type PopulationParams struct {
	NumPersons int
	NumFirms   int

	// person endowments
	Good1 Gaussian
	Good2 Gaussian
	Money Gaussian
	// person CES utility over [labor, good1, good2]
	LaborShare Gaussian
	Good1Share Gaussian
	Good2Share Gaussian
	Elasticity Gaussian
	// discount rate is the sigmoid of this logit
	DiscountLogit Gaussian

	// firm endowments
	FirmGood1 Gaussian
	FirmGood2 Gaussian
	FirmMoney Gaussian
	// per-output-good CES production over [labor, good1, good2]
	FirmTFP1        Gaussian
	FirmTFP2        Gaussian
	FirmLaborShare1 Gaussian
	FirmLaborShare2 Gaussian
	FirmGood1Share1 Gaussian
	FirmGood1Share2 Gaussian
	FirmGood2Share1 Gaussian
	FirmGood2Share2 Gaussian
	FirmElasticity1 Gaussian
	FirmElasticity2 Gaussian
}

// DefaultPopulationParams returns the standard population: patient consumers
// with mildly heterogeneous tastes, and firms that turn labor and capital
// into both goods.
func DefaultPopulationParams(numPersons, numFirms int) PopulationParams {
	return PopulationParams{
		NumPersons: numPersons,
		NumFirms:   numFirms,

		Good1:         Gaussian{Mu: 10.0},
		Good2:         Gaussian{Mu: 10.0},
		Money:         Gaussian{Mu: 20.0},
		LaborShare:    Gaussian{Mu: 0.5, Sigma: 0.1},
		Good1Share:    Gaussian{Mu: 0.1, Sigma: 0.05},
		Good2Share:    Gaussian{Mu: 0.75, Sigma: 0.1},
		Elasticity:    Gaussian{Mu: 10.0, Sigma: 1.0},
		DiscountLogit: Gaussian{Mu: 3.0, Sigma: 1.0},

		FirmGood1:       Gaussian{Mu: 10.0},
		FirmGood2:       Gaussian{Mu: 20.0},
		FirmMoney:       Gaussian{Mu: 50.0},
		FirmTFP1:        Gaussian{Mu: 0.5, Sigma: 0.05},
		FirmTFP2:        Gaussian{Mu: 1.0, Sigma: 0.05},
		FirmLaborShare1: Gaussian{Mu: 1.0, Sigma: 0.1},
		FirmLaborShare2: Gaussian{Mu: 1.0, Sigma: 0.1},
		FirmGood1Share1: Gaussian{},
		FirmGood1Share2: Gaussian{},
		FirmGood2Share1: Gaussian{Mu: 1.0, Sigma: 0.1},
		FirmGood2Share2: Gaussian{Mu: 1.0, Sigma: 0.1},
		FirmElasticity1: Gaussian{Mu: 5.0, Sigma: 1.0},
		FirmElasticity2: Gaussian{Mu: 5.0, Sigma: 1.0},
	}
}
