package neural

import (
	"math/rand"
	"testing"

	"github.com/aidenlippert/agora/libs/economy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func newTestRNG() *rand.Rand { return rand.New(rand.NewSource(7)) }

func testArch() Architecture {
	return Architecture{
		StackSize:      3,
		EncodingSize:   4,
		HiddenSize:     8,
		NumHidden:      2,
		NumHiddenSmall: 1,
	}
}

func newTestHandler(t *testing.T) *DecisionNetHandler {
	t.Helper()
	econ := economy.NewEconomy([]string{"bread", "capital"}, newTestRNG())
	return NewDecisionNetHandler(econ, testArch(), newTestRNG(), nil)
}

func TestHandlerParamSizes(t *testing.T) {
	h := newTestHandler(t)
	// CES utility over labor + 2 goods: tfp + 3 shares + substitution
	assert.Equal(t, 5, h.NumUtilParams())
	// one CES per output good
	assert.Equal(t, 10, h.NumProdFuncParams())
}

func TestHandlerTimeSync(t *testing.T) {
	h := newTestHandler(t)
	assert.Equal(t, 0, h.Time())

	// one promotion per tick, idempotent for same-tick callers
	h.SynchronizeTime(1)
	assert.Equal(t, 1, h.Time())
	h.SynchronizeTime(1)
	assert.Equal(t, 1, h.Time())
	h.SynchronizeTime(2)
	assert.Equal(t, 2, h.Time())

	assert.Len(t, h.rewards, 2)
	assert.Len(t, h.values, 2)
	for hd := head(0); hd < numHeads; hd++ {
		assert.Len(t, h.logProbas[hd], 2)
	}
}

func TestHandlerRewardOffset(t *testing.T) {
	h := newTestHandler(t)
	h.SynchronizeTime(1)
	h.SynchronizeTime(2)

	h.RecordReward(4, 1.5)
	h.RecordRewardOffset(9, 2.5, 1)
	// an offset reaching before the first slot is dropped
	h.RecordRewardOffset(9, 9.9, 5)

	assert.Equal(t, 1.5, h.rewards[1][4])
	assert.Equal(t, 2.5, h.rewards[0][9])
	assert.Len(t, h.rewards[0], 1)
}

func TestHandlerEmptyMarketSkipsDecision(t *testing.T) {
	h := newTestHandler(t)
	h.SynchronizeTime(1)

	orders := h.ChooseGoodsToBuy(0, make([]float64, h.NumUtilParams()), 1.0, 0.0, []float64{1, 1})
	assert.Empty(t, orders)

	lp, ok := h.logProbas[headPurchase][0][0]
	require.True(t, ok, "an empty market still records a bookkeeping entry")
	assert.True(t, lp != lp, "no-decision marker must be NaN")
	assert.Empty(t, h.records[headPurchase][0])
}

func TestHandlerReset(t *testing.T) {
	h := newTestHandler(t)
	h.SynchronizeTime(1)
	h.RecordReward(0, 1.0)

	econ2 := economy.NewEconomy([]string{"bread", "capital"}, newTestRNG())
	require.NoError(t, h.Reset(econ2))
	assert.Equal(t, 0, h.Time())
	assert.Empty(t, h.rewards)

	econ3 := economy.NewEconomy([]string{"bread"}, newTestRNG())
	assert.Error(t, h.Reset(econ3), "good count must match the nets")
}

func TestGatherRows(t *testing.T) {
	src := tensor.New(tensor.WithShape(3, 2), tensor.WithBacking([]float64{
		1, 2,
		3, 4,
		5, 6,
	}))
	out := gatherRows(src, []int{2, 0, 2})
	assert.Equal(t, []int{3, 2}, []int(out.Shape()))
	assert.Equal(t, []float64{5, 6, 1, 2, 5, 6}, out.Data().([]float64))
}

func TestZeroStackShape(t *testing.T) {
	h := newTestHandler(t)
	z := h.zeroStack()
	assert.Equal(t, []int{3, 4}, []int(z.Shape()))
}

func TestModuleCheckpointRoundTrip(t *testing.T) {
	h := newTestHandler(t)
	dir := t.TempDir()
	require.NoError(t, h.SaveModels(dir))

	// mutate a weight, then restore
	w := h.PurchaseNet.last.w.Data().([]float64)
	orig := w[0]
	w[0] = orig + 42.0
	require.NoError(t, h.LoadModels(dir))
	assert.InDelta(t, orig, h.PurchaseNet.last.w.Data().([]float64)[0], 1e-15)
}
