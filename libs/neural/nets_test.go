package neural

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
)

func TestOfferEncoderShapes(t *testing.T) {
	rng := newTestRNG()
	enc := NewOfferEncoder("enc", 3, 3, 8, 2, 4, rng)

	out, err := enc.Encode(matrix(5, 3, []float64{
		1, 0, 0.5,
		0, 1, 1.5,
		2, 0, 0.7,
		0, 3, 2.0,
		1, 1, 1.0,
	}))
	require.NoError(t, err)
	assert.Equal(t, []int{5, 4}, []int(out.Shape()))

	// tanh output stays in (-1, 1)
	for _, v := range out.Data().([]float64) {
		assert.Less(t, v, 1.0)
		assert.Greater(t, v, -1.0)
	}
}

func TestPurchaseNetProbs(t *testing.T) {
	rng := newTestRNG()
	enc := NewOfferEncoder("enc", 3, 3, 8, 2, 4, rng)
	net := NewPurchaseNet("net", enc, 5, 2, 8, 2, rng)

	stackEnc, err := enc.Encode(matrix(3, 3, []float64{
		1, 0, 0.5,
		0, 1, 1.5,
		2, 0, 0.7,
	}))
	require.NoError(t, err)

	state := &stateInputs{
		params:    []float64{1, 0.5, 0.5, 0.5, 2},
		money:     10.0,
		labor:     0.0,
		inventory: []float64{1, 2},
	}
	probs, err := net.probs(stackEnc, state)
	require.NoError(t, err)
	require.Len(t, probs, 3, "one probability per stack slot")
	for _, p := range probs {
		assert.Greater(t, p, 0.0)
		assert.Less(t, p, 1.0)
	}
}

func TestConsumptionNetParamShape(t *testing.T) {
	rng := newTestRNG()
	net := NewConsumptionNet("net", 5, 2, 8, 2, rng)

	params, err := net.distParams(&stateInputs{
		params:    []float64{1, 0.5, 0.5, 0.5, 2},
		money:     10.0,
		labor:     0.3,
		inventory: []float64{1, 2},
	})
	require.NoError(t, err)
	assert.Len(t, params, 4, "(mu, logsigma) per good")
}

// A gradient step on a policy head must reach the shared offer encoder's
// parameters, not just the head's own.
func TestGradientFlowsThroughSharedEncoder(t *testing.T) {
	rng := newTestRNG()
	enc := NewOfferEncoder("enc", 3, 3, 8, 2, 4, rng)
	net := NewPurchaseNet("net", enc, 2, 2, 8, 2, rng)

	c := newGraphCtx()
	c.register(enc, net)

	feats := c.constant("feats", matrix(3, 3, []float64{
		1, 0, 0.5,
		0, 1, 1.5,
		2, 0, 0.7,
	}))
	state := &stateInputs{
		params:    []float64{0.1, 0.2},
		money:     1.0,
		labor:     0.5,
		inventory: []float64{1, 2},
	}
	probs := net.fwd(c, enc.fwd(c, feats), state)
	loss := G.Must(G.Sum(probs))

	_, err := G.Grad(loss, c.learnables...)
	require.NoError(t, err)

	vm := G.NewTapeMachine(c.g, G.BindDualValues(c.learnables...))
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	encW := c.nodes[enc.dimReduce][0]
	grad, err := encW.Grad()
	require.NoError(t, err)

	nonZero := false
	for _, g := range grad.Data().([]float64) {
		if g != 0 {
			nonZero = true
			break
		}
	}
	assert.True(t, nonZero, "encoder weights must receive gradient from the head's loss")
}
