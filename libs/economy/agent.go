package economy

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	ErrInventoryLength = errors.New("inventory length must equal the economy's good count")
	ErrNotOfferer      = errors.New("agent does not own this offer")
)

// Agent is the base market participant: it holds an inventory and money,
// posts offers, responds to other agents' offers, and settles transactions.
// Person and Firm embed it.
type Agent struct {
	econ      *Economy
	id        int
	inventory []float64
	money     float64
	// time is the last step this agent completed.
	time int

	myOffers    []*Offer
	myResponses []*Response

	logger *zap.Logger
}

func newAgent(econ *Economy, inventory []float64, money float64) (Agent, error) {
	if len(inventory) != econ.NumGoods() {
		return Agent{}, fmt.Errorf("got %d goods, want %d: %w", len(inventory), econ.NumGoods(), ErrInventoryLength)
	}
	inv := make([]float64, len(inventory))
	copy(inv, inventory)
	return Agent{
		econ:      econ,
		inventory: inv,
		money:     money,
		time:      econ.Time(),
		logger:    econ.logger,
	}, nil
}

func (a *Agent) ID() int           { return a.id }
func (a *Agent) Time() int         { return a.time }
func (a *Agent) Money() float64    { return a.money }
func (a *Agent) Economy() *Economy { return a.econ }

// Inventory returns a copy of the agent's inventory vector.
func (a *Agent) Inventory() []float64 {
	out := make([]float64, len(a.inventory))
	copy(out, a.inventory)
	return out
}

func (a *Agent) addMoney(amount float64) { a.money += amount }

// beginStep advances the agent's clock if the economy has moved past it.
// Stepping is idempotent within a tick.
func (a *Agent) beginStep() bool {
	if a.time >= a.econ.Time() {
		return false
	}
	a.time = a.econ.Time()
	return true
}

// postOffer lists an offer on the market and tracks it in myOffers.
func (a *Agent) postOffer(o *Offer) error {
	if o.OffererID != a.id {
		return ErrNotOfferer
	}
	a.econ.addOffer(o)
	a.myOffers = append(a.myOffers, o)
	return nil
}

// respondToOffer records this agent's interest in one slot of an offer.
func (a *Agent) respondToOffer(o *Offer) *Response {
	r := o.addResponse(a.id, a.time)
	a.myResponses = append(a.myResponses, r)
	return r
}

// respondToGoodsOrders turns a decision-maker's order list into responses,
// one per requested slot.
func (a *Agent) respondToGoodsOrders(orders []GoodsOrder) {
	for _, order := range orders {
		for i := 0; i < order.Count; i++ {
			a.respondToOffer(order.Offer)
		}
	}
}

// checkMyOffers reviews pending responses on every live offer this agent has
// posted, in insertion order.
func (a *Agent) checkMyOffers() {
	for _, offer := range a.myOffers {
		if !offer.Available(a.econ.Time()) {
			continue
		}
		for _, resp := range offer.Responses() {
			a.acceptOfferResponse(offer, resp)
		}
	}
}

// acceptOfferResponse finalizes one slot of a transaction from the offerer's
// side. Both the offerer's goods check and the responder's money check must
// pass; a goods deficit kills the offer, a money deficit leaves it live.
func (a *Agent) acceptOfferResponse(o *Offer, r *Response) bool {
	if o.OffererID != a.id {
		return false
	}
	if !o.Available(a.econ.Time()) || r.Time <= o.TimeCreated {
		return false
	}
	for _, gid := range o.GoodIDs {
		if a.inventory[gid] < o.Quantities[gid] {
			// the offer promised goods the agent no longer holds
			o.AmountLeft = 0
			return false
		}
	}
	responder := a.econ.agent(r.ResponderID)
	if responder == nil || !responder.finalizeOffer(r) {
		return false
	}
	a.money += o.Price
	for _, gid := range o.GoodIDs {
		a.inventory[gid] -= o.Quantities[gid]
	}
	o.AmountLeft--
	a.econ.observeTrade(o)
	if a.econ.cfg.Verbose >= 3 {
		a.logger.Debug("accepted offer response",
			zap.Int("offerer_id", a.id),
			zap.Int("responder_id", r.ResponderID),
			zap.Float64("price", o.Price),
		)
	}
	return true
}

// finalizeOffer is the responder-side settle: re-verify funds, then transfer
// money and goods atomically within this agent.
func (a *Agent) finalizeOffer(r *Response) bool {
	mine := false
	for _, resp := range a.myResponses {
		if resp == r {
			mine = true
			break
		}
	}
	if !mine {
		return false
	}
	o := r.Offer
	if a.money < o.Price {
		return false
	}
	a.money -= o.Price
	for _, gid := range o.GoodIDs {
		a.inventory[gid] += o.Quantities[gid]
	}
	return true
}

// flushMyOffers drops dead offers from the agent's tracking list.
func (a *Agent) flushMyOffers() {
	live := a.myOffers[:0]
	for _, o := range a.myOffers {
		if !o.Dead() {
			live = append(live, o)
		}
	}
	a.myOffers = live
}

// flushMyResponses drops responses whose offers are dead.
func (a *Agent) flushMyResponses() {
	live := a.myResponses[:0]
	for _, r := range a.myResponses {
		if !r.Dead() {
			live = append(live, r)
		}
	}
	a.myResponses = live
}
