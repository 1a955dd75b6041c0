// Package economy implements the market protocol and time-stepped
// simulation: offer posting, responses, two-sided finalization, flushing,
// and the per-step agent cycle.
package economy

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/aidenlippert/agora/libs/metrics"
	"go.uber.org/zap"
)

var ErrAgentOutOfSync = errors.New("agent clock does not match economy clock")

// Economy owns the agent population and both market lists, and drives the
// per-step cycle. Agents are identified by dense 0-based ids assigned in
// registration order; that order also fixes the per-step iteration order.
type Economy struct {
	goods    []string
	numGoods int

	agents  []*Agent
	persons []*Person
	firms   []*Firm

	mu        sync.Mutex
	market    []*Offer
	jobMarket []*JobOffer

	time int
	rng  *rand.Rand
	cfg  *Config

	logger *zap.Logger
	sim    *metrics.SimMetrics
}

// Option configures an Economy.
type Option func(*Economy)

// WithConfig overrides the default constants.
func WithConfig(cfg *Config) Option {
	return func(e *Economy) { e.cfg = cfg }
}

// WithLogger attaches a logger; defaults to a nop logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Economy) { e.logger = logger }
}

// WithMetrics attaches simulation metrics; defaults to none.
func WithMetrics(sim *metrics.SimMetrics) Option {
	return func(e *Economy) { e.sim = sim }
}

// NewEconomy creates an economy trading the named goods.
func NewEconomy(goods []string, rng *rand.Rand, opts ...Option) *Economy {
	e := &Economy{
		goods:    goods,
		numGoods: len(goods),
		rng:      rng,
		cfg:      DefaultConfig(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Economy) Time() int           { return e.time }
func (e *Economy) NumGoods() int       { return e.numGoods }
func (e *Economy) Goods() []string     { return e.goods }
func (e *Economy) RNG() *rand.Rand     { return e.rng }
func (e *Economy) Config() *Config     { return e.cfg }
func (e *Economy) Persons() []*Person  { return e.persons }
func (e *Economy) Firms() []*Firm      { return e.firms }
func (e *Economy) NumAgents() int      { return len(e.agents) }
func (e *Economy) Logger() *zap.Logger { return e.logger }

// GoodName returns the name for a good id.
func (e *Economy) GoodName(id int) string { return e.goods[id] }

func (e *Economy) registerPerson(p *Person) {
	p.id = len(e.agents)
	e.agents = append(e.agents, &p.Agent)
	e.persons = append(e.persons, p)
}

func (e *Economy) registerFirm(f *Firm) {
	f.id = len(e.agents)
	e.agents = append(e.agents, &f.Agent)
	e.firms = append(e.firms, f)
}

func (e *Economy) agent(id int) *Agent {
	if id < 0 || id >= len(e.agents) {
		return nil
	}
	return e.agents[id]
}

func (e *Economy) person(id int) *Person {
	for _, p := range e.persons {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (e *Economy) addOffer(o *Offer) {
	e.mu.Lock()
	e.market = append(e.market, o)
	e.mu.Unlock()
	if e.sim != nil {
		e.sim.OffersPosted.Inc()
	}
}

func (e *Economy) addJobOffer(o *JobOffer) {
	e.mu.Lock()
	e.jobMarket = append(e.jobMarket, o)
	e.mu.Unlock()
	if e.sim != nil {
		e.sim.JobOffersPosted.Inc()
	}
}

// Market returns a snapshot of the goods market.
func (e *Economy) Market() []*Offer {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Offer, len(e.market))
	copy(out, e.market)
	return out
}

// JobMarket returns a snapshot of the labor market.
func (e *Economy) JobMarket() []*JobOffer {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*JobOffer, len(e.jobMarket))
	copy(out, e.jobMarket)
	return out
}

func (e *Economy) observeTrade(o *Offer) {
	if e.sim != nil {
		e.sim.Trades.Inc()
		e.sim.TradeVolume.Add(o.Price)
	}
}

func (e *Economy) observeJobMatch(o *JobOffer) {
	if e.sim != nil {
		e.sim.JobMatches.Inc()
	}
}

// TimeStep advances the economy clock by one, steps every person then every
// firm in registration order, and flushes both markets. Every registered
// agent must have completed the previous step.
func (e *Economy) TimeStep() error {
	for _, a := range e.agents {
		if a.time != e.time {
			return fmt.Errorf("agent %d at time %d, economy at %d: %w", a.id, a.time, e.time, ErrAgentOutOfSync)
		}
	}
	e.time++
	if e.cfg.Verbose >= 2 {
		e.logger.Debug("time step", zap.Int("time", e.time))
	}
	for _, p := range e.persons {
		p.TimeStep()
	}
	for _, f := range e.firms {
		f.TimeStep()
	}
	e.flushMarkets()
	return nil
}

// flushMarkets removes dead offers from both market lists. Offers that were
// just posted this step are pending, not dead, and survive.
func (e *Economy) flushMarkets() {
	e.mu.Lock()
	defer e.mu.Unlock()
	flushed := 0
	live := e.market[:0]
	for _, o := range e.market {
		if o.Dead() {
			flushed++
			continue
		}
		live = append(live, o)
	}
	e.market = live
	liveJobs := e.jobMarket[:0]
	for _, o := range e.jobMarket {
		if o.Dead() {
			flushed++
			continue
		}
		liveJobs = append(liveJobs, o)
	}
	e.jobMarket = liveJobs
	if e.sim != nil && flushed > 0 {
		e.sim.OffersFlushed.Add(float64(flushed))
	}
}
