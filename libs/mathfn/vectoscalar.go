// Package mathfn provides the closed family of production and utility
// functions used by agents: scalar-valued functions of quantity vectors
// (VecToScalar) and vector-valued production functions (VecToVec), each with
// componentwise partial derivatives.
package mathfn

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrLengthMismatch = errors.New("parameter vector length mismatch")
	ErrEmptyParams    = errors.New("parameter vector must be non-empty")
)

// VecToScalar is a scalar-valued function of a quantity vector together with
// its partial derivatives.
type VecToScalar interface {
	// F evaluates the function at the given quantities.
	F(x []float64) float64
	// DF is the partial derivative of F with respect to the i'th input.
	DF(x []float64, i int) float64
	NumInputs() int
}

// Parameterized exposes a flattened parameter vector, used to feed function
// parameters into the decision nets.
type Parameterized interface {
	Params() []float64
}

func checkLen(name string, got, want int) error {
	if got != want {
		return fmt.Errorf("%s: got %d inputs, want %d: %w", name, got, want, ErrLengthMismatch)
	}
	return nil
}

// Linear models perfect substitutes: f(x) = Σ pᵢxᵢ.
type Linear struct {
	Productivities []float64
}

func NewLinear(productivities []float64) (*Linear, error) {
	if len(productivities) == 0 {
		return nil, fmt.Errorf("linear: %w", ErrEmptyParams)
	}
	return &Linear{Productivities: productivities}, nil
}

// NewUniformLinear returns a Linear with all productivities equal to one.
func NewUniformLinear(numInputs int) *Linear {
	p := make([]float64, numInputs)
	for i := range p {
		p[i] = 1.0
	}
	return &Linear{Productivities: p}
}

func (l *Linear) F(x []float64) float64 {
	return floats.Dot(l.Productivities, x)
}

func (l *Linear) DF(_ []float64, i int) float64 { return l.Productivities[i] }

func (l *Linear) NumInputs() int { return len(l.Productivities) }

// CobbDouglas is f(x) = tfp · Π xᵢ^eᵢ.
type CobbDouglas struct {
	TFP          float64
	Elasticities []float64
}

func NewCobbDouglas(tfp float64, elasticities []float64) (*CobbDouglas, error) {
	if len(elasticities) == 0 {
		return nil, fmt.Errorf("cobb-douglas: %w", ErrEmptyParams)
	}
	return &CobbDouglas{TFP: tfp, Elasticities: elasticities}, nil
}

func (c *CobbDouglas) F(x []float64) float64 {
	out := c.TFP
	for i, e := range c.Elasticities {
		out *= math.Pow(x[i], e)
	}
	return out
}

func (c *CobbDouglas) DF(x []float64, idx int) float64 {
	out := c.TFP
	for i, e := range c.Elasticities {
		if i == idx {
			out *= e * math.Pow(x[i], e-1)
		} else {
			out *= math.Pow(x[i], e)
		}
	}
	return out
}

func (c *CobbDouglas) NumInputs() int { return len(c.Elasticities) }

// NewCobbDouglasCRS builds a Cobb-Douglas with elasticities normalized to sum
// to one (constant returns to scale).
func NewCobbDouglasCRS(tfp float64, elasticities []float64) (*CobbDouglas, error) {
	cd, err := NewCobbDouglas(tfp, elasticities)
	if err != nil {
		return nil, err
	}
	total := floats.Sum(cd.Elasticities)
	normalized := make([]float64, len(cd.Elasticities))
	for i, e := range cd.Elasticities {
		normalized[i] = e / total
	}
	cd.Elasticities = normalized
	return cd, nil
}

// StoneGeary is a Cobb-Douglas shifted by per-good subsistence thresholds:
// f(x) = tfp · Π (xᵢ - θᵢ)^eᵢ.
type StoneGeary struct {
	CobbDouglas
	Thresholds []float64
}

func NewStoneGeary(tfp float64, elasticities, thresholds []float64) (*StoneGeary, error) {
	cd, err := NewCobbDouglas(tfp, elasticities)
	if err != nil {
		return nil, err
	}
	if err := checkLen("stone-geary thresholds", len(thresholds), len(elasticities)); err != nil {
		return nil, err
	}
	return &StoneGeary{CobbDouglas: *cd, Thresholds: thresholds}, nil
}

func (s *StoneGeary) F(x []float64) float64 {
	out := s.TFP
	for i, e := range s.Elasticities {
		out *= math.Pow(x[i]-s.Thresholds[i], e)
	}
	return out
}

func (s *StoneGeary) DF(x []float64, idx int) float64 {
	out := s.TFP
	for i, e := range s.Elasticities {
		if i == idx {
			out *= e * math.Pow(x[i]-s.Thresholds[i], e-1)
		} else {
			out *= math.Pow(x[i]-s.Thresholds[i], e)
		}
	}
	return out
}

// Leontief models perfect complements: f(x) = min pᵢxᵢ.
type Leontief struct {
	Productivities []float64
}

func NewLeontief(productivities []float64) (*Leontief, error) {
	if len(productivities) == 0 {
		return nil, fmt.Errorf("leontief: %w", ErrEmptyParams)
	}
	return &Leontief{Productivities: productivities}, nil
}

func (l *Leontief) F(x []float64) float64 {
	out := math.Inf(1)
	for i, p := range l.Productivities {
		if v := p * x[i]; v < out {
			out = v
		}
	}
	return out
}

func (l *Leontief) DF(x []float64, idx int) float64 {
	minIdx := 0
	minVal := math.Inf(1)
	ties := 0
	for i, p := range l.Productivities {
		v := p * x[i]
		switch {
		case v < minVal:
			minVal = v
			minIdx = i
			ties = 0
		case v == minVal:
			ties++
		}
	}
	if minIdx != idx || ties > 0 {
		return 0.0
	}
	return l.Productivities[idx]
}

func (l *Leontief) NumInputs() int { return len(l.Productivities) }

// CES is the constant-elasticity-of-substitution function
// f(x) = tfp · (Σ sᵢ xᵢ^ρ)^(1/ρ) with ρ = 1/(1-elasticity).
// ρ = 1 (elasticity 0) is Linear, ρ → 0 (elasticity → ∞) approaches
// Cobb-Douglas, and ρ → -∞ (elasticity → 1 from above) approaches Leontief.
type CES struct {
	TFP               float64
	ShareParams       []float64
	SubstitutionParam float64
}

func NewCES(tfp float64, shareParams []float64, elasticityOfSubstitution float64) (*CES, error) {
	if len(shareParams) == 0 {
		return nil, fmt.Errorf("ces: %w", ErrEmptyParams)
	}
	return &CES{
		TFP:               tfp,
		ShareParams:       shareParams,
		SubstitutionParam: 1.0 / (1.0 - elasticityOfSubstitution),
	}, nil
}

func (c *CES) innerSum(x []float64) float64 {
	sum := 0.0
	for i, s := range c.ShareParams {
		// zero-share inputs do not participate; skipping them keeps the sum
		// finite when xᵢ = 0 and ρ < 0
		if s == 0 {
			continue
		}
		sum += s * math.Pow(x[i], c.SubstitutionParam)
	}
	return sum
}

func (c *CES) F(x []float64) float64 {
	return c.TFP * math.Pow(c.innerSum(x), 1.0/c.SubstitutionParam)
}

func (c *CES) DF(x []float64, idx int) float64 {
	if c.ShareParams[idx] == 0 {
		return 0.0
	}
	inner := c.innerSum(x)
	return c.TFP * math.Pow(inner, 1.0/c.SubstitutionParam-1.0) *
		c.ShareParams[idx] * math.Pow(x[idx], c.SubstitutionParam-1.0)
}

func (c *CES) NumInputs() int { return len(c.ShareParams) }

// Params flattens the CES parameters as [tfp, shares..., substitutionParam].
func (c *CES) Params() []float64 {
	out := make([]float64, 0, len(c.ShareParams)+2)
	out = append(out, c.TFP)
	out = append(out, c.ShareParams...)
	return append(out, c.SubstitutionParam)
}
