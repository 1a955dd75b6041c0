package economy

import (
	"math/rand"
	"testing"

	"github.com/aidenlippert/agora/libs/mathfn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPersonDM is a scripted person strategy for protocol tests.
type stubPersonDM struct {
	parent *Person
	// buyEverything responds to one slot of every available offer.
	buyEverything bool
	// takeJobs responds to one slot of every available job offer.
	takeJobs bool
	// consume is the fixed bundle to consume each step.
	consume []float64
}

func (d *stubPersonDM) Bind(p *Person) error {
	if d.parent != nil {
		return ErrDecisionMakerBound
	}
	d.parent = p
	return nil
}

func (d *stubPersonDM) ChooseGoods() []GoodsOrder {
	if !d.buyEverything {
		return nil
	}
	var orders []GoodsOrder
	econ := d.parent.Economy()
	for _, o := range econ.Market() {
		if o.Available(econ.Time()) && o.OffererID != d.parent.ID() {
			orders = append(orders, GoodsOrder{Offer: o, Count: 1})
		}
	}
	return orders
}

func (d *stubPersonDM) ChooseJobs() []JobOrder {
	if !d.takeJobs {
		return nil
	}
	var orders []JobOrder
	econ := d.parent.Economy()
	for _, o := range econ.JobMarket() {
		if o.Available(econ.Time()) {
			orders = append(orders, JobOrder{Offer: o, Count: 1})
		}
	}
	return orders
}

func (d *stubPersonDM) ChooseConsumption() []float64 {
	if d.consume == nil {
		return make([]float64, d.parent.Economy().NumGoods())
	}
	return d.consume
}

// stubFirmDM posts a scripted goods offer on step 1 and nothing after.
type stubFirmDM struct {
	parent *Firm
	// offerAtStep maps a step number to the (goodID, qty, price) to post.
	offerAtStep map[int][3]float64
	// jobAtStep maps a step number to the (labor, wage) to post.
	jobAtStep map[int][2]float64
}

func (d *stubFirmDM) Bind(f *Firm) error {
	if d.parent != nil {
		return ErrDecisionMakerBound
	}
	d.parent = f
	return nil
}

func (d *stubFirmDM) ChooseGoods() []GoodsOrder { return nil }

func (d *stubFirmDM) ChooseProductionInputs() []float64 {
	return make([]float64, d.parent.Economy().NumGoods())
}

func (d *stubFirmDM) ChooseGoodOffers() []*Offer {
	entry, ok := d.offerAtStep[d.parent.Time()]
	if !ok {
		return nil
	}
	numGoods := d.parent.Economy().NumGoods()
	quantities := make([]float64, numGoods)
	gid := int(entry[0])
	quantities[gid] = entry[1]
	offer, err := d.parent.NewOffer(1, []int{gid}, quantities, entry[2])
	if err != nil {
		panic(err)
	}
	return []*Offer{offer}
}

func (d *stubFirmDM) ChooseJobOffers() []*JobOffer {
	entry, ok := d.jobAtStep[d.parent.Time()]
	if !ok {
		return nil
	}
	offer, err := d.parent.NewJobOffer(1, entry[0], entry[1])
	if err != nil {
		panic(err)
	}
	return []*JobOffer{offer}
}

func testEconomy(t *testing.T) *Economy {
	t.Helper()
	return NewEconomy([]string{"bread", "capital"}, rand.New(rand.NewSource(42)))
}

func testUtility(t *testing.T) mathfn.VecToScalar {
	t.Helper()
	ces, err := mathfn.NewCES(1.0, []float64{0.5, 0.5, 0.5}, 1.3)
	require.NoError(t, err)
	return ces
}

func testProdFunc(t *testing.T) mathfn.VecToVec {
	t.Helper()
	prod, err := mathfn.NewCESProduction(
		[]float64{0.5, 1.0},
		[][]float64{{1.0, 0.0, 1.0}, {1.0, 0.0, 1.0}},
		[]float64{3.0, 5.0},
	)
	require.NoError(t, err)
	return prod
}

func addPerson(t *testing.T, econ *Economy, money float64, dm *stubPersonDM) *Person {
	t.Helper()
	p, err := NewPerson(econ, []float64{10.0, 10.0}, money, testUtility(t), 0.9)
	require.NoError(t, err)
	require.NoError(t, p.InstallDecisionMaker(dm))
	return p
}

func addFirm(t *testing.T, econ *Economy, owners []*Agent, money float64, dm *stubFirmDM) *Firm {
	t.Helper()
	f, err := NewFirm(econ, owners, []float64{10.0, 20.0}, money, testProdFunc(t))
	require.NoError(t, err)
	require.NoError(t, f.InstallDecisionMaker(dm))
	return f
}

// Minimal barter: one offer posted on step 1, bought on step 2, flushed
// afterwards. Goods and money are conserved across the trade.
func TestMinimalBarter(t *testing.T) {
	econ := testEconomy(t)
	buyerDM := &stubPersonDM{buyEverything: true}
	buyer := addPerson(t, econ, 20.0, buyerDM)
	seller := addFirm(t, econ, nil, 50.0, &stubFirmDM{
		offerAtStep: map[int][3]float64{1: {0, 1.0, 1.0}},
	})

	require.NoError(t, econ.TimeStep()) // firm posts
	require.Len(t, econ.Market(), 1)
	assert.False(t, econ.Market()[0].Available(econ.Time()), "offer settles one step later")

	require.NoError(t, econ.TimeStep()) // buyer responds, firm accepts

	assert.InDelta(t, 11.0, buyer.Inventory()[0], 1e-12)
	assert.InDelta(t, 19.0, buyer.Money(), 1e-12)
	assert.InDelta(t, 9.0, seller.Inventory()[0], 1e-12)
	assert.InDelta(t, 51.0, seller.Money(), 1e-12)

	require.NoError(t, econ.TimeStep())
	assert.Empty(t, econ.Market(), "consumed offer must be flushed")
}

// Insufficient funds: finalize must refuse, nothing changes, and the offer
// stays live.
func TestInsufficientFunds(t *testing.T) {
	econ := testEconomy(t)
	buyerDM := &stubPersonDM{buyEverything: true}
	buyer := addPerson(t, econ, 0.5, buyerDM)
	seller := addFirm(t, econ, nil, 50.0, &stubFirmDM{
		offerAtStep: map[int][3]float64{1: {0, 1.0, 1.0}},
	})

	require.NoError(t, econ.TimeStep())
	offer := econ.Market()[0]
	require.NoError(t, econ.TimeStep())

	assert.InDelta(t, 10.0, buyer.Inventory()[0], 1e-12)
	assert.InDelta(t, 0.5, buyer.Money(), 1e-12)
	assert.InDelta(t, 10.0, seller.Inventory()[0], 1e-12)
	assert.InDelta(t, 50.0, seller.Money(), 1e-12)
	assert.Equal(t, 1, offer.AmountLeft, "money deficit leaves the offer live")
}

// Self-cancellation: posting a new round zeroes the previous round, which is
// then flushed at the end of the step.
func TestOfferSelfCancellation(t *testing.T) {
	econ := testEconomy(t)
	addFirm(t, econ, nil, 50.0, &stubFirmDM{
		offerAtStep: map[int][3]float64{
			1: {0, 1.0, 1.0},
			2: {1, 2.0, 3.0},
		},
	})

	require.NoError(t, econ.TimeStep())
	first := econ.Market()[0]
	require.NoError(t, econ.TimeStep())

	assert.Equal(t, 0, first.AmountLeft)
	market := econ.Market()
	require.Len(t, market, 1, "only the new round survives the flush")
	assert.Equal(t, []int{1}, market[0].GoodIDs)
}

// Dividends: money splits evenly across owners, firm balance drops to zero.
func TestPayDividends(t *testing.T) {
	econ := testEconomy(t)
	owner1 := addPerson(t, econ, 0.0, &stubPersonDM{})
	owner2 := addPerson(t, econ, 0.0, &stubPersonDM{})
	firm := addFirm(t, econ, []*Agent{&owner1.Agent, &owner2.Agent}, 10.0, &stubFirmDM{})

	require.NoError(t, econ.TimeStep())

	assert.InDelta(t, 5.0, owner1.Money(), 1e-12)
	assert.InDelta(t, 5.0, owner2.Money(), 1e-12)
	assert.InDelta(t, 0.0, firm.Money(), 1e-12)
	assert.InDelta(t, 10.0, firm.LastDividends(), 1e-12)
}

// Job protocol: a person takes one slot of a job offer; labor and wage move,
// and the labor cap blocks over-commitment.
func TestJobOfferProtocol(t *testing.T) {
	econ := testEconomy(t)
	workerDM := &stubPersonDM{takeJobs: true}
	worker := addPerson(t, econ, 0.0, workerDM)
	firm := addFirm(t, econ, nil, 10.0, &stubFirmDM{
		jobAtStep: map[int][2]float64{1: {0.5, 1.0}},
	})

	require.NoError(t, econ.TimeStep()) // firm posts job offer
	require.Len(t, econ.JobMarket(), 1)
	require.NoError(t, econ.TimeStep()) // worker responds, firm hires

	assert.InDelta(t, 0.5, worker.Labor(), 1e-12)
	assert.InDelta(t, 1.0, worker.Money(), 1e-12)
	assert.InDelta(t, 9.0, firm.Money(), 1e-12)
	// laborHired is consumed by production and reset before the step ends
	assert.InDelta(t, 0.0, firm.LaborHired(), 1e-12)
	assert.LessOrEqual(t, worker.Labor(), 1.0)
}

// Labor cap: a worker cannot commit more than a full period of labor.
func TestLaborCap(t *testing.T) {
	econ := testEconomy(t)
	worker := addPerson(t, econ, 0.0, &stubPersonDM{takeJobs: true})
	addFirm(t, econ, nil, 100.0, &stubFirmDM{
		jobAtStep: map[int][2]float64{1: {0.8, 1.0}, 2: {0.8, 1.0}, 3: {0.8, 1.0}},
	})

	for i := 0; i < 4; i++ {
		require.NoError(t, econ.TimeStep())
		assert.LessOrEqual(t, worker.Labor(), 1.0)
	}
	// only one 0.8-labor slot fits per period
	assert.InDelta(t, 0.8, worker.Labor(), 1e-12)
}

// One-step settle: a response recorded in the same step the offer was posted
// can never be accepted.
func TestOneStepSettle(t *testing.T) {
	econ := testEconomy(t)
	addPerson(t, econ, 100.0, &stubPersonDM{})
	firm := addFirm(t, econ, nil, 50.0, &stubFirmDM{
		offerAtStep: map[int][3]float64{1: {0, 1.0, 1.0}},
	})

	require.NoError(t, econ.TimeStep())
	offer := econ.Market()[0]
	// forge a same-step response
	resp := &Response{ResponderID: 0, Time: offer.TimeCreated, Offer: offer}
	assert.False(t, firm.acceptOfferResponse(offer, resp))
	assert.Equal(t, 1, offer.AmountLeft)
}

// At-most-once per slot: two eager buyers cannot both take a single-slot
// offer.
func TestAtMostOncePerSlot(t *testing.T) {
	econ := testEconomy(t)
	b1 := addPerson(t, econ, 20.0, &stubPersonDM{buyEverything: true})
	b2 := addPerson(t, econ, 20.0, &stubPersonDM{buyEverything: true})
	seller := addFirm(t, econ, nil, 50.0, &stubFirmDM{
		offerAtStep: map[int][3]float64{1: {0, 1.0, 1.0}},
	})

	require.NoError(t, econ.TimeStep())
	require.NoError(t, econ.TimeStep())

	bought := (b1.Inventory()[0] - 10.0) + (b2.Inventory()[0] - 10.0)
	assert.InDelta(t, 1.0, bought, 1e-12, "exactly one slot settles")
	assert.InDelta(t, 51.0, seller.Money(), 1e-12)
}

// Goods deficit on the offerer side kills the offer with no state change on
// the buyer.
func TestGoodsDeficitKillsOffer(t *testing.T) {
	econ := testEconomy(t)
	buyer := addPerson(t, econ, 20.0, &stubPersonDM{buyEverything: true})
	seller := addFirm(t, econ, nil, 50.0, &stubFirmDM{
		offerAtStep: map[int][3]float64{1: {0, 99.0, 1.0}},
	})

	require.NoError(t, econ.TimeStep())
	offer := econ.Market()[0]
	require.NoError(t, econ.TimeStep())

	assert.Equal(t, 0, offer.AmountLeft, "goods deficit zeroes the offer")
	assert.InDelta(t, 20.0, buyer.Money(), 1e-12)
	assert.InDelta(t, 10.0, buyer.Inventory()[0], 1e-12)
	assert.InDelta(t, 50.0, seller.Money(), 1e-12)
}

// Flush completeness: after every time step the market holds no dead offer.
func TestFlushCompleteness(t *testing.T) {
	econ := testEconomy(t)
	addPerson(t, econ, 20.0, &stubPersonDM{buyEverything: true})
	addFirm(t, econ, nil, 50.0, &stubFirmDM{
		offerAtStep: map[int][3]float64{1: {0, 1.0, 1.0}, 2: {0, 1.0, 1.0}, 3: {1, 1.0, 2.0}},
		jobAtStep:   map[int][2]float64{1: {0.5, 1.0}},
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, econ.TimeStep())
		for _, o := range econ.Market() {
			assert.Greater(t, o.AmountLeft, 0)
		}
		for _, o := range econ.JobMarket() {
			assert.Greater(t, o.AmountLeft, 0)
		}
	}
}

// Inventory and money stay non-negative at every observable step boundary.
func TestNonNegativity(t *testing.T) {
	econ := testEconomy(t)
	persons := []*Person{
		addPerson(t, econ, 0.5, &stubPersonDM{buyEverything: true, takeJobs: true, consume: []float64{3.0, 3.0}}),
		addPerson(t, econ, 2.0, &stubPersonDM{buyEverything: true, takeJobs: true, consume: []float64{50.0, 0.0}}),
	}
	firm := addFirm(t, econ, []*Agent{&persons[0].Agent}, 3.0, &stubFirmDM{
		offerAtStep: map[int][3]float64{1: {0, 2.0, 1.0}, 2: {0, 2.0, 1.0}, 3: {1, 1.0, 0.5}},
		jobAtStep:   map[int][2]float64{1: {0.5, 1.0}, 2: {0.5, 1.0}, 3: {0.5, 1.0}},
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, econ.TimeStep())
		for _, p := range persons {
			assert.GreaterOrEqual(t, p.Money(), 0.0)
			for _, q := range p.Inventory() {
				assert.GreaterOrEqual(t, q, 0.0)
			}
		}
		assert.GreaterOrEqual(t, firm.Money(), 0.0)
		for _, q := range firm.Inventory() {
			assert.GreaterOrEqual(t, q, -1e-9)
		}
	}
}

// A time step must refuse to run when an agent is out of sync, and stepping
// is idempotent within a tick.
func TestStepIdempotence(t *testing.T) {
	econ := testEconomy(t)
	p := addPerson(t, econ, 10.0, &stubPersonDM{})

	require.NoError(t, econ.TimeStep())
	assert.Equal(t, econ.Time(), p.Time())
	assert.False(t, p.TimeStep(), "second step in the same tick must refuse")
}

// A decision maker refuses a second parent.
func TestDecisionMakerSingleBind(t *testing.T) {
	econ := testEconomy(t)
	dm := &stubPersonDM{}
	addPerson(t, econ, 10.0, dm)

	p2, err := NewPerson(econ, []float64{0, 0}, 0.0, testUtility(t), 0.5)
	require.NoError(t, err)
	assert.ErrorIs(t, p2.InstallDecisionMaker(dm), ErrDecisionMakerBound)
}

// Construction preconditions fail loudly.
func TestConstructionPreconditions(t *testing.T) {
	econ := testEconomy(t)

	_, err := NewPerson(econ, []float64{1.0}, 0.0, testUtility(t), 0.5)
	assert.ErrorIs(t, err, ErrInventoryLength)

	_, err = NewPerson(econ, []float64{1.0, 1.0}, 0.0, testUtility(t), 1.5)
	assert.ErrorIs(t, err, ErrBadDiscountRate)

	badUtil, uerr := mathfn.NewCES(1.0, []float64{0.5, 0.5}, 1.3)
	require.NoError(t, uerr)
	_, err = NewPerson(econ, []float64{1.0, 1.0}, 0.0, badUtil, 0.5)
	assert.ErrorIs(t, err, ErrUtilityArity)

	badProd, perr := mathfn.NewCESProduction(
		[]float64{1.0},
		[][]float64{{1.0, 1.0}},
		[]float64{2.0},
	)
	require.NoError(t, perr)
	_, err = NewFirm(econ, nil, []float64{1.0, 1.0}, 0.0, badProd)
	assert.ErrorIs(t, err, ErrProductionArity)
}

func TestThreadIndices(t *testing.T) {
	idx := ThreadIndices(10, 4)
	assert.Equal(t, []int{0, 3, 6, 8, 10}, idx)

	idx = ThreadIndices(2, 4)
	assert.Equal(t, []int{0, 1, 2, 2, 2}, idx)
}
