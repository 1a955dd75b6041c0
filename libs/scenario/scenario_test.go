package scenario

import (
	"math/rand"
	"testing"

	"github.com/aidenlippert/agora/libs/neural"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallArch() neural.Architecture {
	return neural.Architecture{
		StackSize:      3,
		EncodingSize:   4,
		HiddenSize:     8,
		NumHidden:      2,
		NumHiddenSmall: 1,
	}
}

func TestCustomScenarioSetup(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	scn := NewCustomScenario(
		DefaultPopulationParams(3, 2),
		rng,
		WithArchitecture(smallArch()),
	)

	econ, err := scn.Setup()
	require.NoError(t, err)
	assert.Len(t, econ.Persons(), 3)
	assert.Len(t, econ.Firms(), 2)
	assert.Equal(t, 2, econ.NumGoods())
	require.NotNil(t, scn.Handler())
	require.NotNil(t, scn.Trainer())

	for _, p := range econ.Persons() {
		assert.GreaterOrEqual(t, p.Money(), 0.0)
		assert.Greater(t, p.DiscountRate(), 0.0)
		assert.Less(t, p.DiscountRate(), 1.0)
		assert.Len(t, p.UtilityParams(), scn.Handler().NumUtilParams())
	}
	for _, f := range econ.Firms() {
		assert.Len(t, f.ProdFuncParams(), scn.Handler().NumProdFuncParams())
	}

	// a second episode gets a fresh economy but keeps the handler
	handler := scn.Handler()
	econ2, err := scn.Setup()
	require.NoError(t, err)
	assert.NotSame(t, econ, econ2)
	assert.Same(t, handler, scn.Handler())
	assert.Same(t, econ2, handler.Economy())
}

func TestSimpleScenarioSetup(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	scn := NewSimpleScenario(rng, WithArchitecture(smallArch()))

	econ, err := scn.Setup()
	require.NoError(t, err)
	assert.Len(t, econ.Persons(), 2)
	assert.Len(t, econ.Firms(), 1)
}
