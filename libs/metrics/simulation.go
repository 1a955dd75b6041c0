package metrics

import "github.com/prometheus/client_golang/prometheus"

// SimMetrics tracks market activity during simulation. One instance is
// shared across episodes so that counters survive economy resets.
type SimMetrics struct {
	OffersPosted    prometheus.Counter
	JobOffersPosted prometheus.Counter
	OffersFlushed   prometheus.Counter
	Trades          prometheus.Counter
	TradeVolume     prometheus.Counter
	JobMatches      prometheus.Counter
}

// NewSimMetrics creates simulation metrics collectors
func NewSimMetrics(registry *Registry) *SimMetrics {
	return &SimMetrics{
		OffersPosted: registry.Counter(
			"offers_posted_total",
			"Goods offers posted to the market",
		),
		JobOffersPosted: registry.Counter(
			"job_offers_posted_total",
			"Job offers posted to the labor market",
		),
		OffersFlushed: registry.Counter(
			"offers_flushed_total",
			"Dead offers removed by market flushes",
		),
		Trades: registry.Counter(
			"trades_total",
			"Finalized goods transactions",
		),
		TradeVolume: registry.Counter(
			"trade_volume_money_total",
			"Money moved by finalized goods transactions",
		),
		JobMatches: registry.Counter(
			"job_matches_total",
			"Finalized labor contracts",
		),
	}
}

// TrainerMetrics tracks the A2C training loop.
type TrainerMetrics struct {
	Episodes     prometheus.Counter
	EpisodeLoss  prometheus.Gauge
	HeadLoss     *prometheus.GaugeVec
	LearningRate *prometheus.GaugeVec
	NaNRecovered prometheus.Counter
}

// NewTrainerMetrics creates training metrics collectors
func NewTrainerMetrics(registry *Registry) *TrainerMetrics {
	return &TrainerMetrics{
		Episodes: registry.Counter(
			"episodes_total",
			"Training episodes completed",
		),
		EpisodeLoss: registry.Gauge(
			"episode_loss",
			"Total loss of the most recent episode",
		),
		HeadLoss: registry.GaugeVec(
			"head_loss",
			"Per-head loss of the most recent episode",
			"head",
		),
		LearningRate: registry.GaugeVec(
			"head_learning_rate",
			"Current per-head learning rate",
			"head",
		),
		NaNRecovered: registry.Counter(
			"nan_recoveries_total",
			"Episodes whose loss was NaN and reverted to a checkpoint",
		),
	}
}
