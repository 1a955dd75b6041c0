package economy

import (
	"errors"
	"fmt"

	"github.com/aidenlippert/agora/libs/mathfn"
	"go.uber.org/zap"
)

var (
	ErrBadDiscountRate = errors.New("discount rate must be in (0, 1)")
	ErrUtilityArity    = errors.New("utility function must take labor plus one input per good")
	ErrNoDecisionMaker = errors.New("no decision maker installed")
)

// Person is an agent that supplies labor to firms and consumes goods. Its
// utility function reads [labor, goods...]; its discount rate weights future
// rewards during training.
type Person struct {
	Agent

	// labor is the fraction of the current period's labor already committed.
	// It resets at the start of each step; commitments last one period.
	labor        float64
	discountRate float64
	utility      mathfn.VecToScalar

	jobResponses []*Response
	dm           PersonDecisionMaker
}

// NewPerson creates a person and registers it with the economy atomically.
func NewPerson(
	econ *Economy,
	inventory []float64,
	money float64,
	utility mathfn.VecToScalar,
	discountRate float64,
) (*Person, error) {
	base, err := newAgent(econ, inventory, money)
	if err != nil {
		return nil, fmt.Errorf("new person: %w", err)
	}
	if discountRate <= 0 || discountRate >= 1 {
		return nil, fmt.Errorf("new person: rate %g: %w", discountRate, ErrBadDiscountRate)
	}
	if utility.NumInputs() != econ.NumGoods()+1 {
		return nil, fmt.Errorf("new person: utility takes %d inputs, want %d: %w",
			utility.NumInputs(), econ.NumGoods()+1, ErrUtilityArity)
	}
	p := &Person{Agent: base, discountRate: discountRate, utility: utility}
	econ.registerPerson(p)
	return p, nil
}

// InstallDecisionMaker attaches the strategy; the decision maker must not
// already be bound to another parent.
func (p *Person) InstallDecisionMaker(dm PersonDecisionMaker) error {
	if err := dm.Bind(p); err != nil {
		return err
	}
	p.dm = dm
	return nil
}

func (p *Person) Labor() float64        { return p.labor }
func (p *Person) DiscountRate() float64 { return p.discountRate }

// UtilityParams returns the flattened utility parameters fed to the decision
// nets, or nil when the function is not parameterized.
func (p *Person) UtilityParams() []float64 {
	if pr, ok := p.utility.(mathfn.Parameterized); ok {
		return pr.Params()
	}
	return nil
}

// Utility evaluates the person's utility over a consumption bundle, with the
// currently committed labor as the first input. Inputs are floored at eps to
// keep CES-style functions finite at zero.
func (p *Person) Utility(bundle []float64) float64 {
	eps := p.econ.cfg.Eps
	x := make([]float64, len(bundle)+1)
	x[0] = MakePositive(p.labor, eps)
	for i, q := range bundle {
		x[i+1] = MakePositive(q, eps)
	}
	return p.utility.F(x)
}

// TimeStep runs one simulation step for the person:
// search for a job, buy goods, consume, then flush stale bookkeeping.
// Returns false if the person already stepped this tick.
func (p *Person) TimeStep() bool {
	if !p.beginStep() {
		return false
	}
	if p.dm == nil {
		panic(ErrNoDecisionMaker)
	}
	p.labor = 0.0
	if p.econ.cfg.Verbose >= 3 {
		p.logger.Debug("person stepping", zap.Int("agent_id", p.id), zap.Int("time", p.time))
	}
	p.searchForJob()
	p.buyGoods()
	p.consumeGoods()
	p.flushMyJobResponses()
	p.flushMyOffers()
	p.flushMyResponses()
	return true
}

func (p *Person) searchForJob() {
	for _, order := range p.dm.ChooseJobs() {
		for i := 0; i < order.Count; i++ {
			p.respondToJobOffer(order.Offer)
		}
	}
}

func (p *Person) buyGoods() {
	p.respondToGoodsOrders(p.dm.ChooseGoods())
}

func (p *Person) consumeGoods() {
	bundle := p.dm.ChooseConsumption()
	for i, q := range bundle {
		if q > p.inventory[i] {
			q = p.inventory[i]
		}
		p.inventory[i] -= q
	}
}

func (p *Person) respondToJobOffer(o *JobOffer) *Response {
	r := o.addResponse(p.id, p.time)
	p.jobResponses = append(p.jobResponses, r)
	return r
}

// finalizeJobOffer is the worker-side settle: verify the labor cap, then
// commit the labor and take the wage. The firm-side transfer happens in
// Firm.acceptJobResponse.
func (p *Person) finalizeJobOffer(r *Response) bool {
	mine := false
	for _, resp := range p.jobResponses {
		if resp == r {
			mine = true
			break
		}
	}
	if !mine {
		return false
	}
	o := r.Job
	if p.labor+o.Labor > 1.0 {
		return false
	}
	p.labor += o.Labor
	p.money += o.Wage
	return true
}

func (p *Person) flushMyJobResponses() {
	live := p.jobResponses[:0]
	for _, r := range p.jobResponses {
		if !r.Dead() {
			live = append(live, r)
		}
	}
	p.jobResponses = live
}
