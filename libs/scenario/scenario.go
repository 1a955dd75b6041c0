package scenario

import (
	"fmt"
	"math/rand"

	"github.com/aidenlippert/agora/libs/economy"
	"github.com/aidenlippert/agora/libs/mathfn"
	"github.com/aidenlippert/agora/libs/metrics"
	"github.com/aidenlippert/agora/libs/neural"
	"go.uber.org/zap"
)

// goodNames fixes the two-good economy every scenario trades in.
var goodNames = []string{"bread", "capital"}

// Scenario sets up a fresh economy for each episode while the handler and
// trainer persist across episodes.
type Scenario interface {
	// Setup builds the next episode's economy, pointing the shared handler
	// at it.
	Setup() (*economy.Economy, error)
	// Handler returns the shared decision-net handler.
	Handler() *neural.DecisionNetHandler
	// Trainer returns the shared A2C trainer.
	Trainer() *neural.A2C
}

// deps carries the cross-cutting services every scenario wires into its
// economies.
type deps struct {
	rng    *rand.Rand
	logger *zap.Logger
	cfg    *economy.Config
	sim    *metrics.SimMetrics
	tm     *metrics.TrainerMetrics

	arch    neural.Architecture
	trainer neural.TrainerConfig

	handler *neural.DecisionNetHandler
	a2c     *neural.A2C
}

// Option configures a scenario.
type Option func(*deps)

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option { return func(d *deps) { d.logger = logger } }

// WithConfig overrides the simulation constants.
func WithConfig(cfg *economy.Config) Option { return func(d *deps) { d.cfg = cfg } }

// WithSimMetrics attaches market metrics.
func WithSimMetrics(sim *metrics.SimMetrics) Option { return func(d *deps) { d.sim = sim } }

// WithTrainerMetrics attaches training metrics.
func WithTrainerMetrics(tm *metrics.TrainerMetrics) Option { return func(d *deps) { d.tm = tm } }

// WithArchitecture overrides the net dimensions.
func WithArchitecture(arch neural.Architecture) Option { return func(d *deps) { d.arch = arch } }

// WithTrainerConfig overrides the learning setup.
func WithTrainerConfig(cfg neural.TrainerConfig) Option { return func(d *deps) { d.trainer = cfg } }

func newDeps(rng *rand.Rand, opts []Option) *deps {
	d := &deps{
		rng:     rng,
		logger:  zap.NewNop(),
		cfg:     economy.DefaultConfig(),
		arch:    neural.DefaultArchitecture(),
		trainer: neural.DefaultTrainerConfig(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *deps) newEconomy() *economy.Economy {
	opts := []economy.Option{
		economy.WithConfig(d.cfg),
		economy.WithLogger(d.logger),
	}
	if d.sim != nil {
		opts = append(opts, economy.WithMetrics(d.sim))
	}
	return economy.NewEconomy(goodNames, d.rng, opts...)
}

// bind attaches the persistent handler and trainer to a fresh economy,
// creating them on first use.
func (d *deps) bind(econ *economy.Economy) error {
	if d.handler == nil {
		d.handler = neural.NewDecisionNetHandler(econ, d.arch, d.rng, d.logger)
		d.a2c = neural.NewA2C(d.handler, d.trainer, d.tm, d.logger)
		return nil
	}
	return d.handler.Reset(econ)
}

// CustomScenario seeds a population from normally-distributed parameters.
type CustomScenario struct {
	params PopulationParams
	*deps
}

// NewCustomScenario builds a scenario over a drawn population.
func NewCustomScenario(params PopulationParams, rng *rand.Rand, opts ...Option) *CustomScenario {
	return &CustomScenario{params: params, deps: newDeps(rng, opts)}
}

func (s *CustomScenario) Handler() *neural.DecisionNetHandler { return s.handler }
func (s *CustomScenario) Trainer() *neural.A2C                { return s.a2c }

// Setup draws a fresh population. Values that must be non-negative are
// clamped at zero, strictly-positive ones at eps, and the discount rate is
// the sigmoid of a normal logit.
func (s *CustomScenario) Setup() (*economy.Economy, error) {
	econ := s.newEconomy()
	if err := s.bind(econ); err != nil {
		return nil, err
	}
	p := s.params
	eps := s.cfg.Eps

	persons := make([]*economy.Person, 0, p.NumPersons)
	for i := 0; i < p.NumPersons; i++ {
		utility, err := mathfn.NewCES(
			1.0,
			[]float64{
				p.LaborShare.Draw(s.rng),
				p.Good1Share.Draw(s.rng),
				p.Good2Share.Draw(s.rng),
			},
			economy.MakePositive(p.Elasticity.Draw(s.rng), eps),
		)
		if err != nil {
			return nil, fmt.Errorf("scenario setup: %w", err)
		}
		person, err := economy.NewPerson(
			econ,
			[]float64{
				economy.MakeNonnegative(p.Good1.Draw(s.rng)),
				economy.MakeNonnegative(p.Good2.Draw(s.rng)),
			},
			economy.MakeNonnegative(p.Money.Draw(s.rng)),
			utility,
			p.DiscountLogit.DrawSigmoid(s.rng),
		)
		if err != nil {
			return nil, fmt.Errorf("scenario setup: %w", err)
		}
		if err := person.InstallDecisionMaker(neural.NewPersonDecisionMaker(s.handler)); err != nil {
			return nil, fmt.Errorf("scenario setup: %w", err)
		}
		persons = append(persons, person)
	}

	// firms are owned collectively by the persons so dividends, and with
	// them the firms' observed rewards, flow back into the population
	owners := make([]*economy.Agent, 0, len(persons))
	for _, person := range persons {
		owners = append(owners, &person.Agent)
	}

	for i := 0; i < p.NumFirms; i++ {
		prodFunc, err := mathfn.NewCESProduction(
			[]float64{
				economy.MakeNonnegative(p.FirmTFP1.Draw(s.rng)),
				economy.MakeNonnegative(p.FirmTFP2.Draw(s.rng)),
			},
			[][]float64{
				{
					p.FirmLaborShare1.Draw(s.rng),
					p.FirmGood1Share1.Draw(s.rng),
					p.FirmGood2Share1.Draw(s.rng),
				},
				{
					p.FirmLaborShare2.Draw(s.rng),
					p.FirmGood1Share2.Draw(s.rng),
					p.FirmGood2Share2.Draw(s.rng),
				},
			},
			[]float64{
				economy.MakePositive(p.FirmElasticity1.Draw(s.rng), eps),
				economy.MakePositive(p.FirmElasticity2.Draw(s.rng), eps),
			},
		)
		if err != nil {
			return nil, fmt.Errorf("scenario setup: %w", err)
		}
		firm, err := economy.NewFirm(
			econ,
			owners,
			[]float64{
				economy.MakeNonnegative(p.FirmGood1.Draw(s.rng)),
				economy.MakeNonnegative(p.FirmGood2.Draw(s.rng)),
			},
			economy.MakeNonnegative(p.FirmMoney.Draw(s.rng)),
			prodFunc,
		)
		if err != nil {
			return nil, fmt.Errorf("scenario setup: %w", err)
		}
		if err := firm.InstallDecisionMaker(neural.NewFirmDecisionMaker(s.handler)); err != nil {
			return nil, fmt.Errorf("scenario setup: %w", err)
		}
	}

	return econ, nil
}

// SimpleScenario is the fixed three-agent economy: two consumers with
// different tastes and one firm producing both goods.
type SimpleScenario struct {
	*deps
}

// NewSimpleScenario builds the fixed scenario.
func NewSimpleScenario(rng *rand.Rand, opts ...Option) *SimpleScenario {
	return &SimpleScenario{deps: newDeps(rng, opts)}
}

func (s *SimpleScenario) Handler() *neural.DecisionNetHandler { return s.handler }
func (s *SimpleScenario) Trainer() *neural.A2C                { return s.a2c }

func (s *SimpleScenario) Setup() (*economy.Economy, error) {
	econ := s.newEconomy()
	if err := s.bind(econ); err != nil {
		return nil, err
	}

	type personSpec struct {
		shares   []float64
		discount float64
	}
	specs := []personSpec{
		{shares: []float64{0.5, 0.5, 0.5}, discount: 0.8},
		{shares: []float64{0.2, 0.6, 0.4}, discount: 0.9},
	}
	persons := make([]*economy.Person, 0, len(specs))
	for _, ps := range specs {
		utility, err := mathfn.NewCES(1.0, ps.shares, 1.3)
		if err != nil {
			return nil, fmt.Errorf("simple scenario: %w", err)
		}
		person, err := economy.NewPerson(econ, []float64{10.0, 10.0}, 20.0, utility, ps.discount)
		if err != nil {
			return nil, fmt.Errorf("simple scenario: %w", err)
		}
		if err := person.InstallDecisionMaker(neural.NewPersonDecisionMaker(s.handler)); err != nil {
			return nil, fmt.Errorf("simple scenario: %w", err)
		}
		persons = append(persons, person)
	}

	prodFunc, err := mathfn.NewCESProduction(
		[]float64{0.5, 1.0},
		[][]float64{{1.0, 0.0, 1.0}, {1.0, 0.0, 1.0}},
		[]float64{3.0, 5.0},
	)
	if err != nil {
		return nil, fmt.Errorf("simple scenario: %w", err)
	}
	firm, err := economy.NewFirm(econ, []*economy.Agent{&persons[0].Agent}, []float64{10.0, 20.0}, 50.0, prodFunc)
	if err != nil {
		return nil, fmt.Errorf("simple scenario: %w", err)
	}
	if err := firm.InstallDecisionMaker(neural.NewFirmDecisionMaker(s.handler)); err != nil {
		return nil, fmt.Errorf("simple scenario: %w", err)
	}

	return econ, nil
}
