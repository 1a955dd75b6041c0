package neural

import (
	"fmt"

	"github.com/aidenlippert/agora/libs/economy"
	"go.uber.org/zap"
)

// Firms break their continuous net outputs into discrete market listings in
// fixed increments.
const (
	// AmountPerOffer is the goods quantity carried by each offer slot.
	AmountPerOffer = 1.0
	// LaborPerOffer is the labor carried by each job-offer slot.
	LaborPerOffer = 0.5
)

// FirmDecisionMaker drives a firm's choices through the shared decision
// nets. The dividend paid at the end of a step is reported as the reward of
// the previous step, since the payoff of sell and production decisions is
// only observed after buyers finalize.
type FirmDecisionMaker struct {
	parent *economy.Firm
	guide  *DecisionNetHandler

	valueRecordedAt int
}

// NewFirmDecisionMaker builds an unbound decision maker over the handler.
func NewFirmDecisionMaker(guide *DecisionNetHandler) *FirmDecisionMaker {
	return &FirmDecisionMaker{guide: guide, valueRecordedAt: -1}
}

// Bind attaches the decision maker to its parent firm.
func (d *FirmDecisionMaker) Bind(f *economy.Firm) error {
	if d.parent != nil {
		return economy.ErrDecisionMakerBound
	}
	if got := len(f.ProdFuncParams()); got != d.guide.NumProdFuncParams() {
		return fmt.Errorf("firm production function exposes %d params, nets expect %d", got, d.guide.NumProdFuncParams())
	}
	d.parent = f
	return nil
}

func (d *FirmDecisionMaker) sync() {
	d.guide.SynchronizeTime(d.parent.Time())
	if d.valueRecordedAt < d.parent.Time() {
		d.valueRecordedAt = d.parent.Time()
		d.guide.FirmRecordValue(
			d.parent.ID(),
			d.parent.ProdFuncParams(),
			d.parent.Money(),
			d.parent.LaborHired(),
			d.parent.Inventory(),
		)
	}
}

// ChooseGoods samples the firm purchase head.
func (d *FirmDecisionMaker) ChooseGoods() []economy.GoodsOrder {
	d.sync()
	return d.guide.FirmChooseGoodsToBuy(
		d.parent.ID(),
		d.parent.ProdFuncParams(),
		d.parent.Money(),
		d.parent.LaborHired(),
		d.parent.Inventory(),
	)
}

// ChooseProductionInputs samples per-good input fractions and converts them
// to quantities.
func (d *FirmDecisionMaker) ChooseProductionInputs() []float64 {
	d.sync()
	inventory := d.parent.Inventory()
	props := d.guide.ChooseProductionProportions(
		d.parent.ID(),
		d.parent.ProdFuncParams(),
		d.parent.Money(),
		d.parent.LaborHired(),
		inventory,
	)
	inputs := make([]float64, len(inventory))
	for i := range inputs {
		inputs[i] = props[i] * inventory[i]
	}
	return inputs
}

// ChooseGoodOffers quantizes the offer head's per-good amounts into
// AmountPerOffer slots, one offer per good.
func (d *FirmDecisionMaker) ChooseGoodOffers() []*economy.Offer {
	d.sync()
	amounts, prices := d.guide.ChooseGoodOffers(
		d.parent.ID(),
		d.parent.ProdFuncParams(),
		d.parent.Money(),
		d.parent.LaborHired(),
		d.parent.Inventory(),
	)
	numGoods := len(amounts)
	var offers []*economy.Offer
	for i := 0; i < numGoods; i++ {
		slots := int(amounts[i] / AmountPerOffer)
		if slots <= 0 {
			continue
		}
		quantities := make([]float64, numGoods)
		quantities[i] = AmountPerOffer
		offer, err := d.parent.NewOffer(slots, []int{i}, quantities, prices[i]/AmountPerOffer)
		if err != nil {
			d.parent.Economy().Logger().Warn("skipping malformed good offer", zap.Error(err))
			continue
		}
		offers = append(offers, offer)
	}
	return offers
}

// ChooseJobOffers quantizes the job-offer head's total labor into
// LaborPerOffer slots and reports last step's reward.
func (d *FirmDecisionMaker) ChooseJobOffers() []*economy.JobOffer {
	d.sync()
	// the dividend just paid settles the payoff of the previous step's
	// decisions
	d.guide.RecordRewardOffset(d.parent.ID(), d.parent.LastDividends(), 1)

	totalLabor, wage := d.guide.ChooseJobOffer(
		d.parent.ID(),
		d.parent.ProdFuncParams(),
		d.parent.Money(),
		d.parent.LaborHired(),
		d.parent.Inventory(),
	)
	slots := int(totalLabor / LaborPerOffer)
	if slots <= 0 {
		return nil
	}
	offer, err := d.parent.NewJobOffer(slots, LaborPerOffer, wage/LaborPerOffer)
	if err != nil {
		d.parent.Economy().Logger().Warn("skipping malformed job offer", zap.Error(err))
		return nil
	}
	return []*economy.JobOffer{offer}
}
