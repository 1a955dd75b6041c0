package economy

import (
	"errors"
	"fmt"

	"github.com/aidenlippert/agora/libs/mathfn"
	"go.uber.org/zap"
)

var (
	ErrProductionArity = errors.New("production function must take labor plus one input per good and emit one output per good")
)

// Firm is an agent that hires labor, produces goods, sells them, and pays
// its profits out to its owners as dividends.
type Firm struct {
	Agent

	owners []*Agent
	// laborHired accumulates over the current period and resets after
	// production.
	laborHired float64
	// lastDividends is the total paid out in the most recent payDividends
	// call; the neural decision maker reports it as the firm's reward.
	lastDividends float64

	prodFunc    mathfn.VecToVec
	myJobOffers []*JobOffer
	dm          FirmDecisionMaker
}

// NewFirm creates a firm and registers it with the economy atomically.
// Owners may be persons or other firms.
func NewFirm(
	econ *Economy,
	owners []*Agent,
	inventory []float64,
	money float64,
	prodFunc mathfn.VecToVec,
) (*Firm, error) {
	base, err := newAgent(econ, inventory, money)
	if err != nil {
		return nil, fmt.Errorf("new firm: %w", err)
	}
	if prodFunc.NumInputs() != econ.NumGoods()+1 || prodFunc.NumOutputs() != econ.NumGoods() {
		return nil, fmt.Errorf("new firm: production function shape (%d, %d), want (%d, %d): %w",
			prodFunc.NumInputs(), prodFunc.NumOutputs(), econ.NumGoods()+1, econ.NumGoods(), ErrProductionArity)
	}
	f := &Firm{Agent: base, owners: owners, prodFunc: prodFunc}
	econ.registerFirm(f)
	return f, nil
}

// InstallDecisionMaker attaches the strategy; the decision maker must not
// already be bound to another parent.
func (f *Firm) InstallDecisionMaker(dm FirmDecisionMaker) error {
	if err := dm.Bind(f); err != nil {
		return err
	}
	f.dm = dm
	return nil
}

func (f *Firm) LaborHired() float64    { return f.laborHired }
func (f *Firm) LastDividends() float64 { return f.lastDividends }

// ProdFuncParams returns the flattened production-function parameters fed to
// the decision nets, or nil when the function is not parameterized.
func (f *Firm) ProdFuncParams() []float64 {
	if pr, ok := f.prodFunc.(mathfn.Parameterized); ok {
		return pr.Params()
	}
	return nil
}

// Produce evaluates the production function over [labor, inputs...].
func (f *Firm) Produce(labor float64, inputs []float64) []float64 {
	x := make([]float64, len(inputs)+1)
	x[0] = labor
	copy(x[1:], inputs)
	return f.prodFunc.F(x)
}

// TimeStep runs one simulation step for the firm:
// settle last round's job offers, buy goods, produce, sell, pay dividends,
// then post the next round of job offers.
// Returns false if the firm already stepped this tick.
func (f *Firm) TimeStep() bool {
	if !f.beginStep() {
		return false
	}
	if f.dm == nil {
		panic(ErrNoDecisionMaker)
	}
	if f.econ.cfg.Verbose >= 3 {
		f.logger.Debug("firm stepping", zap.Int("agent_id", f.id), zap.Int("time", f.time))
	}
	f.checkMyJobOffers()
	f.buyGoods()
	f.produce()
	f.sellGoods()
	f.payDividends()
	f.laborHired = 0.0
	f.searchForLaborers()
	f.flushMyJobOffers()
	f.flushMyOffers()
	f.flushMyResponses()
	return true
}

func (f *Firm) buyGoods() {
	f.respondToGoodsOrders(f.dm.ChooseGoods())
}

func (f *Firm) produce() {
	inputs := f.dm.ChooseProductionInputs()
	for i, q := range inputs {
		if q > f.inventory[i] {
			inputs[i] = f.inventory[i]
		}
	}
	output := f.Produce(f.laborHired, inputs)
	for i := range f.inventory {
		f.inventory[i] += output[i] - inputs[i]
	}
}

// sellGoods reviews responses to the previous round of offers, cancels
// whatever is left of them, and posts the new round. An offer therefore
// lives at most two steps on the market.
func (f *Firm) sellGoods() {
	f.checkMyOffers()
	for _, o := range f.myOffers {
		o.AmountLeft = 0
	}
	for _, o := range f.dm.ChooseGoodOffers() {
		if err := f.postOffer(o); err != nil {
			f.logger.Warn("dropping invalid offer", zap.Int("agent_id", f.id), zap.Error(err))
		}
	}
}

// payDividends splits the firm's money evenly across its owners and zeroes
// the firm's balance.
func (f *Firm) payDividends() {
	f.lastDividends = 0.0
	if len(f.owners) == 0 || f.money == 0 {
		return
	}
	share := f.money / float64(len(f.owners))
	for _, owner := range f.owners {
		owner.addMoney(share)
	}
	f.lastDividends = f.money
	f.money = 0.0
}

// searchForLaborers cancels the previous round of job offers and posts the
// new round.
func (f *Firm) searchForLaborers() {
	for _, o := range f.myJobOffers {
		o.AmountLeft = 0
	}
	for _, o := range f.dm.ChooseJobOffers() {
		f.postJobOffer(o)
	}
}

func (f *Firm) postJobOffer(o *JobOffer) {
	f.econ.addJobOffer(o)
	f.myJobOffers = append(f.myJobOffers, o)
}

// checkMyJobOffers first caps each listing's slots to what the firm can
// still afford, then reviews worker responses in insertion order.
func (f *Firm) checkMyJobOffers() {
	moneyLeft := f.money
	for _, o := range f.myJobOffers {
		if o.Wage > 0 {
			affordable := int(moneyLeft / o.Wage)
			if affordable < o.AmountLeft {
				o.AmountLeft = affordable
			}
		}
		moneyLeft -= o.Wage * float64(o.AmountLeft)
	}
	for _, o := range f.myJobOffers {
		if !o.Available(f.econ.Time()) {
			continue
		}
		for _, resp := range o.Responses() {
			f.acceptJobResponse(o, resp)
		}
	}
}

// acceptJobResponse finalizes one job slot from the firm's side: verify the
// wage is still payable, then hand off to the worker's finalize. A wage
// deficit kills the listing; a worker-side refusal leaves it live.
func (f *Firm) acceptJobResponse(o *JobOffer, r *Response) bool {
	if o.OffererID != f.id {
		return false
	}
	if !o.Available(f.econ.Time()) || r.Time <= o.TimeCreated {
		return false
	}
	if f.money < o.Wage {
		o.AmountLeft = 0
		return false
	}
	worker := f.econ.person(r.ResponderID)
	if worker == nil || !worker.finalizeJobOffer(r) {
		return false
	}
	f.money -= o.Wage
	f.laborHired += o.Labor
	o.AmountLeft--
	f.econ.observeJobMatch(o)
	if f.econ.cfg.Verbose >= 3 {
		f.logger.Debug("hired laborer",
			zap.Int("firm_id", f.id),
			zap.Int("worker_id", r.ResponderID),
			zap.Float64("labor", o.Labor),
			zap.Float64("wage", o.Wage),
		)
	}
	return true
}

func (f *Firm) flushMyJobOffers() {
	live := f.myJobOffers[:0]
	for _, o := range f.myJobOffers {
		if !o.Dead() {
			live = append(live, o)
		}
	}
	f.myJobOffers = live
}
