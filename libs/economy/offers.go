package economy

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrBadGoodID       = errors.New("good id out of range")
	ErrBadQuantities   = errors.New("quantities must be non-negative and zero outside good ids")
	ErrNonPositiveSlot = errors.New("offer must have at least one slot")
)

// Response links a responder to an offer it wants to take. Exactly one of
// Offer and Job is set. Time is the responder's clock when it responded; the
// one-step settle barrier requires Time > TimeCreated of the offer before
// the offerer may accept.
type Response struct {
	ResponderID int
	Time        int
	Offer       *Offer
	Job         *JobOffer
}

// Dead reports whether the referenced offer can no longer be fulfilled.
func (r *Response) Dead() bool {
	if r.Offer != nil {
		return r.Offer.Dead()
	}
	return r.Job.Dead()
}

// Offer is a goods listing on the market. A listing carries AmountLeft
// identical transaction slots; each accepted response consumes one. Offers
// reference their offerer by the agent's dense economy id so that an offer
// never extends an agent's lifetime.
type Offer struct {
	OffererID   int
	TimeCreated int
	// AmountLeft is the authoritative liveness flag. It only decreases,
	// except that the offerer may refresh it in the same step it was posted.
	AmountLeft int
	GoodIDs    []int
	Quantities []float64
	Price      float64

	mu        sync.Mutex
	responses []*Response
}

// NewOffer validates and builds a goods offer from this agent. Quantities
// must be a full-length vector (numGoods), non-negative, and zero outside
// goodIDs.
func (offerer *Agent) NewOffer(amount int, goodIDs []int, quantities []float64, price float64) (*Offer, error) {
	if amount <= 0 {
		return nil, ErrNonPositiveSlot
	}
	numGoods := offerer.econ.NumGoods()
	if len(quantities) != numGoods {
		return nil, fmt.Errorf("offer quantities length %d, want %d: %w", len(quantities), numGoods, ErrBadQuantities)
	}
	listed := make(map[int]bool, len(goodIDs))
	for _, id := range goodIDs {
		if id < 0 || id >= numGoods {
			return nil, fmt.Errorf("good id %d: %w", id, ErrBadGoodID)
		}
		listed[id] = true
	}
	for i, q := range quantities {
		if q < 0 || (q > 0 && !listed[i]) {
			return nil, fmt.Errorf("quantity %g at good %d: %w", q, i, ErrBadQuantities)
		}
	}
	return &Offer{
		OffererID:   offerer.id,
		TimeCreated: offerer.time,
		AmountLeft:  amount,
		GoodIDs:     goodIDs,
		Quantities:  quantities,
		Price:       price,
	}, nil
}

// Available reports whether the offer may receive acceptances at the given
// time. Offers settle one step after creation.
func (o *Offer) Available(now int) bool {
	return o.AmountLeft > 0 && now > o.TimeCreated
}

// Dead offers are swept by the economy's flush pass.
func (o *Offer) Dead() bool { return o.AmountLeft == 0 }

func (o *Offer) addResponse(responderID, time int) *Response {
	r := &Response{ResponderID: responderID, Time: time, Offer: o}
	o.mu.Lock()
	o.responses = append(o.responses, r)
	o.mu.Unlock()
	return r
}

// Responses returns the pending responses in insertion order.
func (o *Offer) Responses() []*Response {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Response, len(o.responses))
	copy(out, o.responses)
	return out
}

// JobOffer is a labor listing on the job market: AmountLeft slots of Labor
// hours each, paying Wage per slot.
type JobOffer struct {
	OffererID   int
	TimeCreated int
	AmountLeft  int
	Labor       float64
	Wage        float64

	mu        sync.Mutex
	responses []*Response
}

// NewJobOffer validates and builds a labor listing from this firm.
func (offerer *Firm) NewJobOffer(amount int, labor, wage float64) (*JobOffer, error) {
	if amount <= 0 {
		return nil, ErrNonPositiveSlot
	}
	if labor <= 0 || wage < 0 {
		return nil, fmt.Errorf("job offer labor %g, wage %g: %w", labor, wage, ErrBadQuantities)
	}
	return &JobOffer{
		OffererID:   offerer.id,
		TimeCreated: offerer.time,
		AmountLeft:  amount,
		Labor:       labor,
		Wage:        wage,
	}, nil
}

func (o *JobOffer) Available(now int) bool {
	return o.AmountLeft > 0 && now > o.TimeCreated
}

func (o *JobOffer) Dead() bool { return o.AmountLeft == 0 }

func (o *JobOffer) addResponse(responderID, time int) *Response {
	r := &Response{ResponderID: responderID, Time: time, Job: o}
	o.mu.Lock()
	o.responses = append(o.responses, r)
	o.mu.Unlock()
	return r
}

func (o *JobOffer) Responses() []*Response {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Response, len(o.responses))
	copy(out, o.responses)
	return out
}
