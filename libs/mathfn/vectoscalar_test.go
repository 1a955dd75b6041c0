package mathfn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinear(t *testing.T) {
	l, err := NewLinear([]float64{2.0, 3.0})
	require.NoError(t, err)

	assert.Equal(t, 2, l.NumInputs())
	assert.InDelta(t, 2.0*1.5+3.0*2.0, l.F([]float64{1.5, 2.0}), 1e-12)
	assert.Equal(t, 2.0, l.DF([]float64{1.5, 2.0}, 0))
	assert.Equal(t, 3.0, l.DF([]float64{1.5, 2.0}, 1))
}

func TestCobbDouglas(t *testing.T) {
	cd, err := NewCobbDouglas(2.0, []float64{0.5, 0.5})
	require.NoError(t, err)

	x := []float64{4.0, 9.0}
	assert.InDelta(t, 2.0*2.0*3.0, cd.F(x), 1e-12)
	// d/dx0 = tfp * 0.5 * x0^-0.5 * x1^0.5
	assert.InDelta(t, 2.0*0.5*math.Pow(4.0, -0.5)*3.0, cd.DF(x, 0), 1e-12)
}

func TestCobbDouglasCRS(t *testing.T) {
	cd, err := NewCobbDouglasCRS(1.0, []float64{1.0, 3.0})
	require.NoError(t, err)

	assert.InDelta(t, 0.25, cd.Elasticities[0], 1e-12)
	assert.InDelta(t, 0.75, cd.Elasticities[1], 1e-12)
	assert.InDelta(t, 1.0, cd.Elasticities[0]+cd.Elasticities[1], 1e-12)
}

func TestStoneGeary(t *testing.T) {
	sg, err := NewStoneGeary(1.0, []float64{0.5, 0.5}, []float64{1.0, 2.0})
	require.NoError(t, err)

	x := []float64{5.0, 6.0}
	assert.InDelta(t, math.Sqrt(4.0)*math.Sqrt(4.0), sg.F(x), 1e-12)

	_, err = NewStoneGeary(1.0, []float64{0.5, 0.5}, []float64{1.0})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestLeontief(t *testing.T) {
	l, err := NewLeontief([]float64{1.0, 2.0})
	require.NoError(t, err)

	x := []float64{3.0, 1.0}
	assert.Equal(t, 2.0, l.F(x))
	// the binding input is index 1
	assert.Equal(t, 0.0, l.DF(x, 0))
	assert.Equal(t, 2.0, l.DF(x, 1))

	// ties give zero derivative everywhere
	assert.Equal(t, 0.0, l.DF([]float64{2.0, 1.0}, 0))
	assert.Equal(t, 0.0, l.DF([]float64{2.0, 1.0}, 1))
}

func TestCES(t *testing.T) {
	// elasticity 2 -> substitutionParam = 1/(1-2) = -1
	ces, err := NewCES(1.0, []float64{0.5, 0.5}, 2.0)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, ces.SubstitutionParam, 1e-12)

	// f(x) = (0.5/x0 + 0.5/x1)^-1, harmonic-mean-like
	x := []float64{1.0, 1.0}
	assert.InDelta(t, 1.0, ces.F(x), 1e-12)

	// derivative sanity against finite differences
	h := 1e-7
	xh := []float64{1.0 + h, 1.0}
	numeric := (ces.F(xh) - ces.F(x)) / h
	assert.InDelta(t, numeric, ces.DF(x, 0), 1e-5)
}

func TestCESParams(t *testing.T) {
	ces, err := NewCES(2.0, []float64{0.1, 0.2, 0.3}, 1.5)
	require.NoError(t, err)

	params := ces.Params()
	require.Len(t, params, 5)
	assert.Equal(t, 2.0, params[0])
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, params[1:4])
	assert.InDelta(t, 1.0/(1.0-1.5), params[4], 1e-12)
}
