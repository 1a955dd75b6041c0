package neural

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Four batches with totals [10, 12, 13, 14]: the first sets the best, the
// next two are bad and trigger one decay at patience 2, the fourth starts a
// new bad streak.
func TestLRSchedulerDecaysOnceAfterPatience(t *testing.T) {
	s := NewLRScheduler("purchaseNet", 1e-3, LRSchedulerConfig{
		EpisodeBatchSize:       2,
		Patience:               2,
		DecayMultiplier:        0.5,
		ReverseAnnealingPeriod: 1000, // keep re-inflation out of this test
	}, nil)

	episodeLosses := []float64{5, 5, 6, 6, 6.5, 6.5, 7, 7}
	for _, loss := range episodeLosses {
		s.Update(loss)
	}

	assert.InDelta(t, 0.5e-3, s.LR(), 1e-15, "LR must have decayed exactly once")
}

func TestLRSchedulerImprovementResetsPatience(t *testing.T) {
	s := NewLRScheduler("offerNet", 1e-4, LRSchedulerConfig{
		EpisodeBatchSize:       1,
		Patience:               2,
		DecayMultiplier:        0.5,
		ReverseAnnealingPeriod: 1000,
	}, nil)

	s.Update(10) // best
	s.Update(11) // bad 1
	s.Update(9)  // new best, bad counter resets
	s.Update(12) // bad 1
	assert.InDelta(t, 1e-4, s.LR(), 1e-15)

	s.Update(12) // bad 2 -> decay
	assert.InDelta(t, 0.5e-4, s.LR(), 1e-15)
}

func TestLRSchedulerReverseAnnealing(t *testing.T) {
	s := NewLRScheduler("valueNet", 1e-4, LRSchedulerConfig{
		EpisodeBatchSize:       2,
		Patience:               2,
		DecayMultiplier:        0.5,
		ReverseAnnealingPeriod: 1,
	}, nil)

	// reverse annealing fires after period * batch * patience = 4 episodes;
	// losses shrink every batch so no decay interferes
	losses := []float64{8, 8, 7, 7}
	var changed bool
	var lr float64
	for _, loss := range losses {
		lr, changed = s.Update(loss)
	}
	assert.True(t, changed)
	assert.InDelta(t, 2e-4, lr, 1e-15, "LR re-inflates by 1/decayMultiplier")
}
