package scenario

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// ErrTrainingDiverged is returned when the loss is NaN before the first
// checkpoint exists to revert to.
var ErrTrainingDiverged = errors.New("training diverged before first checkpoint")

// TrainingParams controls the episode loop.
type TrainingParams struct {
	NumEpisodes              int
	EpisodeLength            int
	UpdateEveryNEpisodes     int
	CheckpointEveryNEpisodes int
	// ModelDir receives one checkpoint file per encoder and head.
	ModelDir string
}

// DefaultTrainingParams returns the standard loop settings.
func DefaultTrainingParams() TrainingParams {
	return TrainingParams{
		NumEpisodes:              100,
		EpisodeLength:            20,
		UpdateEveryNEpisodes:     10,
		CheckpointEveryNEpisodes: 10,
		ModelDir:                 "models",
	}
}

// Train runs the episode loop: set up a fresh economy, step it, update the
// nets from the recorded episode, checkpoint on cadence, and recover from
// NaN losses by reverting to the last checkpoint. It returns the
// per-episode losses.
func Train(s Scenario, params TrainingParams, logger *zap.Logger) ([]float64, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if params.UpdateEveryNEpisodes <= 0 {
		params.UpdateEveryNEpisodes = 1
	}

	start := time.Now()
	losses := make([]float64, 0, params.NumEpisodes)

	for i := 0; i < params.NumEpisodes; i++ {
		econ, err := s.Setup()
		if err != nil {
			return losses, fmt.Errorf("episode %d: %w", i+1, err)
		}

		stepStart := time.Now()
		for t := 0; t < params.EpisodeLength; t++ {
			if err := econ.TimeStep(); err != nil {
				return losses, fmt.Errorf("episode %d step %d: %w", i+1, t+1, err)
			}
		}
		stepDone := time.Now()

		loss, err := s.Trainer().TrainOnEpisode()
		if err != nil {
			return losses, fmt.Errorf("episode %d: %w", i+1, err)
		}
		logger.Debug("episode finished",
			zap.Int("episode", i+1),
			zap.Float64("loss", loss),
			zap.Duration("stepping", stepDone.Sub(stepStart)),
			zap.Duration("training", time.Since(stepDone)),
		)

		if math.IsNaN(loss) {
			if i < params.CheckpointEveryNEpisodes {
				return losses, ErrTrainingDiverged
			}
			logger.Warn("NaN loss; reverting to last checkpoint", zap.Int("episode", i+1))
			if err := s.Handler().LoadModels(params.ModelDir); err != nil {
				return losses, fmt.Errorf("episode %d: %w", i+1, err)
			}
			if tm := s.Trainer().Metrics(); tm != nil {
				tm.NaNRecovered.Inc()
			}
			loss = losses[i-1]
		} else if (i+1)%params.CheckpointEveryNEpisodes == 0 || i == params.NumEpisodes-1 {
			if err := s.Handler().SaveModels(params.ModelDir); err != nil {
				return losses, fmt.Errorf("episode %d: %w", i+1, err)
			}
		}
		losses = append(losses, loss)

		if (i+1)%params.UpdateEveryNEpisodes == 0 {
			sum := 0.0
			for j := 0; j < params.UpdateEveryNEpisodes; j++ {
				sum += losses[i-j]
			}
			logger.Info("training progress",
				zap.Int("episode", i+1),
				zap.Int("window", params.UpdateEveryNEpisodes),
				zap.Float64("avg_loss", sum/float64(params.UpdateEveryNEpisodes)),
			)
		}
	}

	logger.Info("training complete",
		zap.Int("episodes", params.NumEpisodes),
		zap.Duration("elapsed", time.Since(start)),
	)
	return losses, nil
}
