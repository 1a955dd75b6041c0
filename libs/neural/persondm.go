package neural

import (
	"fmt"

	"github.com/aidenlippert/agora/libs/economy"
)

// PersonDecisionMaker drives a person's choices through the shared decision
// nets. It synchronizes the handler's clock on the first call of each step,
// records one state-value estimate per step, and reports the utility of the
// consumed bundle as the step's reward.
type PersonDecisionMaker struct {
	parent *economy.Person
	guide  *DecisionNetHandler

	valueRecordedAt int
}

// NewPersonDecisionMaker builds an unbound decision maker over the handler.
func NewPersonDecisionMaker(guide *DecisionNetHandler) *PersonDecisionMaker {
	return &PersonDecisionMaker{guide: guide, valueRecordedAt: -1}
}

// Bind attaches the decision maker to its parent person.
func (d *PersonDecisionMaker) Bind(p *economy.Person) error {
	if d.parent != nil {
		return economy.ErrDecisionMakerBound
	}
	if got := len(p.UtilityParams()); got != d.guide.NumUtilParams() {
		return fmt.Errorf("person utility exposes %d params, nets expect %d", got, d.guide.NumUtilParams())
	}
	d.parent = p
	return nil
}

// sync brings the handler up to the parent's clock and records the state
// value once per step.
func (d *PersonDecisionMaker) sync() {
	d.guide.SynchronizeTime(d.parent.Time())
	if d.valueRecordedAt < d.parent.Time() {
		d.valueRecordedAt = d.parent.Time()
		d.guide.RecordValue(
			d.parent.ID(),
			d.parent.UtilityParams(),
			d.parent.Money(),
			d.parent.Labor(),
			d.parent.Inventory(),
		)
	}
}

// ChooseJobs samples the labor-search head.
func (d *PersonDecisionMaker) ChooseJobs() []economy.JobOrder {
	d.sync()
	return d.guide.ChooseJobs(
		d.parent.ID(),
		d.parent.UtilityParams(),
		d.parent.Money(),
		d.parent.Labor(),
		d.parent.Inventory(),
	)
}

// ChooseGoods samples the purchase head.
func (d *PersonDecisionMaker) ChooseGoods() []economy.GoodsOrder {
	d.sync()
	return d.guide.ChooseGoodsToBuy(
		d.parent.ID(),
		d.parent.UtilityParams(),
		d.parent.Money(),
		d.parent.Labor(),
		d.parent.Inventory(),
	)
}

// ChooseConsumption samples per-good consumption fractions, converts them to
// quantities, and records the realized utility as this step's reward.
func (d *PersonDecisionMaker) ChooseConsumption() []float64 {
	d.sync()
	inventory := d.parent.Inventory()
	props := d.guide.ChooseConsumptionProportions(
		d.parent.ID(),
		d.parent.UtilityParams(),
		d.parent.Money(),
		d.parent.Labor(),
		inventory,
	)
	bundle := make([]float64, len(inventory))
	for i := range bundle {
		bundle[i] = props[i] * inventory[i]
	}
	d.guide.RecordReward(d.parent.ID(), d.parent.Utility(bundle))
	return bundle
}
