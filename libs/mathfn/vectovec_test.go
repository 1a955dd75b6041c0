package mathfn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromVecToScalar(t *testing.T) {
	l, err := NewLinear([]float64{1.0, 1.0, 1.0})
	require.NoError(t, err)
	v, err := NewFromVecToScalar(l, 2, 1)
	require.NoError(t, err)

	out := v.F([]float64{1.0, 2.0, 3.0})
	assert.Equal(t, []float64{0.0, 6.0}, out)
	assert.Equal(t, 0.0, v.DF([]float64{1, 2, 3}, 0, 0))
	assert.Equal(t, 1.0, v.DF([]float64{1, 2, 3}, 1, 0))

	_, err = NewFromVecToScalar(l, 2, 2)
	assert.Error(t, err)
}

func TestSumShapeCheck(t *testing.T) {
	l2, _ := NewLinear([]float64{1, 1})
	l3, _ := NewLinear([]float64{1, 1, 1})
	a, _ := NewFromVecToScalar(l2, 1, 0)
	b, _ := NewFromVecToScalar(l3, 1, 0)

	_, err := NewSum([]VecToVec{a, b})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestCESProduction(t *testing.T) {
	// two output goods, inputs [labor, good0, good1]
	prod, err := NewCESProduction(
		[]float64{0.5, 1.0},
		[][]float64{
			{1.0, 0.0, 1.0},
			{1.0, 0.0, 1.0},
		},
		[]float64{3.0, 5.0},
	)
	require.NoError(t, err)

	assert.Equal(t, 3, prod.NumInputs())
	assert.Equal(t, 2, prod.NumOutputs())

	out := prod.F([]float64{0.5, 10.0, 20.0})
	require.Len(t, out, 2)
	assert.Greater(t, out[0], 0.0)
	assert.Greater(t, out[1], 0.0)

	// flattened params: (numInputs + 2) per inner CES
	assert.Len(t, prod.Params(), 2*(3+2))
}
