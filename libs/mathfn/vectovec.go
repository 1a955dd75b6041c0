package mathfn

import (
	"fmt"
)

// VecToVec is a vector-valued function of a quantity vector, used as a
// multi-output production function.
type VecToVec interface {
	F(x []float64) []float64
	// DF is the derivative of the i'th output with respect to the j'th input.
	DF(x []float64, i, j int) float64
	NumInputs() int
	NumOutputs() int
}

// FromVecToScalar lifts a VecToScalar into a VecToVec whose only positive
// output sits at OutputIndex.
type FromVecToScalar struct {
	Inner       VecToScalar
	outputs     int
	OutputIndex int
}

func NewFromVecToScalar(inner VecToScalar, numOutputs, outputIndex int) (*FromVecToScalar, error) {
	if outputIndex < 0 || outputIndex >= numOutputs {
		return nil, fmt.Errorf("from-vec-to-scalar: output index %d out of range [0, %d)", outputIndex, numOutputs)
	}
	return &FromVecToScalar{Inner: inner, outputs: numOutputs, OutputIndex: outputIndex}, nil
}

func (v *FromVecToScalar) F(x []float64) []float64 {
	out := make([]float64, v.outputs)
	out[v.OutputIndex] = v.Inner.F(x)
	return out
}

func (v *FromVecToScalar) DF(x []float64, i, j int) float64 {
	if i != v.OutputIndex {
		return 0.0
	}
	return v.Inner.DF(x, j)
}

func (v *FromVecToScalar) NumInputs() int  { return v.Inner.NumInputs() }
func (v *FromVecToScalar) NumOutputs() int { return v.outputs }

// Params delegates to the inner function when it is parameterized.
func (v *FromVecToScalar) Params() []float64 {
	if p, ok := v.Inner.(Parameterized); ok {
		return p.Params()
	}
	return nil
}

// Sum is the sum of inner VecToVecs with identical input and output
// dimensions.
type Sum struct {
	Inner []VecToVec
}

func NewSum(inner []VecToVec) (*Sum, error) {
	if len(inner) == 0 {
		return nil, fmt.Errorf("sum: %w", ErrEmptyParams)
	}
	in, out := inner[0].NumInputs(), inner[0].NumOutputs()
	for i, fn := range inner[1:] {
		if fn.NumInputs() != in || fn.NumOutputs() != out {
			return nil, fmt.Errorf("sum: inner function %d has shape (%d, %d), want (%d, %d): %w",
				i+1, fn.NumInputs(), fn.NumOutputs(), in, out, ErrLengthMismatch)
		}
	}
	return &Sum{Inner: inner}, nil
}

func (s *Sum) F(x []float64) []float64 {
	out := s.Inner[0].F(x)
	for _, fn := range s.Inner[1:] {
		for i, v := range fn.F(x) {
			out[i] += v
		}
	}
	return out
}

func (s *Sum) DF(x []float64, i, j int) float64 {
	out := 0.0
	for _, fn := range s.Inner {
		out += fn.DF(x, i, j)
	}
	return out
}

func (s *Sum) NumInputs() int  { return s.Inner[0].NumInputs() }
func (s *Sum) NumOutputs() int { return s.Inner[0].NumOutputs() }

// Params concatenates the inner functions' parameter vectors.
func (s *Sum) Params() []float64 {
	var out []float64
	for _, fn := range s.Inner {
		if p, ok := fn.(Parameterized); ok {
			out = append(out, p.Params()...)
		}
	}
	return out
}

// NewCESProduction builds the standard per-good production function: one CES
// per output good, summed, where each CES reads the full [labor, goods...]
// input vector.
func NewCESProduction(tfps []float64, shareParams [][]float64, elasticities []float64) (*Sum, error) {
	numGoods := len(tfps)
	if len(shareParams) != numGoods || len(elasticities) != numGoods {
		return nil, fmt.Errorf("ces production: %d tfps, %d share vectors, %d elasticities: %w",
			numGoods, len(shareParams), len(elasticities), ErrLengthMismatch)
	}
	inner := make([]VecToVec, numGoods)
	for i := 0; i < numGoods; i++ {
		ces, err := NewCES(tfps[i], shareParams[i], elasticities[i])
		if err != nil {
			return nil, err
		}
		v, err := NewFromVecToScalar(ces, numGoods, i)
		if err != nil {
			return nil, err
		}
		inner[i] = v
	}
	return NewSum(inner)
}
