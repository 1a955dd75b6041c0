package neural

import (
	"math"

	"go.uber.org/zap"
)

// LRSchedulerConfig fixes the decay schedule shared by all heads.
type LRSchedulerConfig struct {
	// EpisodeBatchSize is the number of episode losses accumulated into one
	// batch before comparing against the running best.
	EpisodeBatchSize int
	// Patience is the number of non-improving batches tolerated before the
	// learning rate decays.
	Patience int
	// DecayMultiplier scales the learning rate on decay.
	DecayMultiplier float64
	// ReverseAnnealingPeriod controls the periodic re-inflation: every
	// ReverseAnnealingPeriod * EpisodeBatchSize * Patience episodes the
	// learning rate is divided by DecayMultiplier once to escape plateaus.
	ReverseAnnealingPeriod int
}

// DefaultLRSchedulerConfig returns the standard schedule.
func DefaultLRSchedulerConfig() LRSchedulerConfig {
	return LRSchedulerConfig{
		EpisodeBatchSize:       10,
		Patience:               5,
		DecayMultiplier:        0.5,
		ReverseAnnealingPeriod: 2,
	}
}

// LRScheduler adapts one head's learning rate from its per-episode losses.
type LRScheduler struct {
	name string
	cfg  LRSchedulerConfig

	lr            float64
	lossHistory   []float64
	bestBatchLoss float64
	numBadBatches int
	cosineTimer   int

	logger *zap.Logger
}

// NewLRScheduler builds a scheduler starting at the given learning rate.
func NewLRScheduler(name string, initialLR float64, cfg LRSchedulerConfig, logger *zap.Logger) *LRScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LRScheduler{
		name:          name,
		cfg:           cfg,
		lr:            initialLR,
		bestBatchLoss: math.Inf(1),
		logger:        logger,
	}
}

// LR returns the current learning rate.
func (s *LRScheduler) LR() float64 { return s.lr }

func (s *LRScheduler) scale(multiplier float64) {
	s.lr *= multiplier
	s.logger.Info("learning rate changed",
		zap.String("head", s.name),
		zap.Float64("lr", s.lr),
	)
}

// Update feeds one episode's loss into the schedule and returns the current
// learning rate along with whether it changed.
func (s *LRScheduler) Update(loss float64) (float64, bool) {
	before := s.lr
	s.lossHistory = append(s.lossHistory, loss)

	if len(s.lossHistory) == s.cfg.EpisodeBatchSize {
		batchLoss := 0.0
		for _, x := range s.lossHistory {
			batchLoss += x
		}
		if batchLoss < s.bestBatchLoss {
			s.bestBatchLoss = batchLoss
			s.numBadBatches = 0
		} else {
			s.numBadBatches++
		}

		if s.numBadBatches >= s.cfg.Patience {
			s.scale(s.cfg.DecayMultiplier)
			s.numBadBatches = 0
		}

		s.lossHistory = s.lossHistory[:0]
	}

	s.cosineTimer++
	if s.cosineTimer == s.cfg.ReverseAnnealingPeriod*s.cfg.EpisodeBatchSize*s.cfg.Patience {
		s.scale(1.0 / s.cfg.DecayMultiplier)
		s.cosineTimer = 0
	}

	return s.lr, s.lr != before
}
