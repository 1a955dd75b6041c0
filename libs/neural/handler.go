package neural

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"sync"

	"github.com/aidenlippert/agora/libs/economy"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

// head indexes the nine trainable decision/value networks.
type head int

const (
	headPurchase head = iota
	headFirmPurchase
	headLaborSearch
	headConsumption
	headProduction
	headOffer
	headJobOffer
	headValue
	headFirmValue
	numHeads
)

var headNames = [numHeads]string{
	"purchaseNet",
	"firmPurchaseNet",
	"laborSearchNet",
	"consumptionNet",
	"productionNet",
	"offerNet",
	"jobOfferNet",
	"valueNet",
	"firmValueNet",
}

func (h head) String() string { return headNames[h] }

// Architecture fixes the shared net dimensions.
type Architecture struct {
	StackSize      int
	EncodingSize   int
	HiddenSize     int
	NumHidden      int
	NumHiddenSmall int
}

// DefaultArchitecture returns the standard net dimensions.
func DefaultArchitecture() Architecture {
	return Architecture{
		StackSize:      10,
		EncodingSize:   10,
		HiddenSize:     100,
		NumHidden:      6,
		NumHiddenSmall: 3,
	}
}

// decisionRecord captures everything needed to re-evaluate one decision's
// log-probability symbolically at training time: the inputs the head saw and
// the action that was sampled.
type decisionRecord struct {
	// stackFeats is the raw feature matrix of the sampled offer stack, nil
	// when the market was empty and zero-encodings were used.
	stackFeats *tensor.Dense
	state      stateInputs
	// takes marks the Bernoulli outcomes for purchase-style heads.
	takes []bool
	// normals holds the pre-transform normal draws for continuous heads.
	normals []float64
	// logProba is the decision-time log-probability; NaN marks "no decision
	// possible" and is skipped in the loss.
	logProba float64
}

// valueRecord captures a state-value estimate and its inputs.
type valueRecord struct {
	offerFeats *tensor.Dense // nil when the goods market was empty
	jobFeats   *tensor.Dense // nil when the labor market was empty
	state      stateInputs
	value      float64
}

// DecisionNetHandler is the stateful coupling between the agent world and
// the tensor world: it advances in lockstep with the economy, re-encodes the
// markets each step, serves sampled decisions to agents, and keeps the
// per-(time, agent) log-probability, value, and reward histories consumed by
// the trainer.
type DecisionNetHandler struct {
	mu   sync.Mutex
	econ *economy.Economy
	arch Architecture
	rng  *rand.Rand

	numGoods          int
	numUtilParams     int
	numProdFuncParams int

	OfferEncoder    *OfferEncoder
	JobOfferEncoder *OfferEncoder
	PurchaseNet     *PurchaseNet
	FirmPurchaseNet *PurchaseNet
	LaborSearchNet  *PurchaseNet
	ConsumptionNet  *ConsumptionNet
	ProductionNet   *ConsumptionNet
	OfferNet        *OfferNet
	JobOfferNet     *JobOfferNet
	ValueNet        *ValueNet
	FirmValueNet    *ValueNet

	// time counts handler steps; history slot t covers economy step t+1.
	time int

	offers           []*economy.Offer
	jobOffers        []*economy.JobOffer
	offerFeats       *tensor.Dense
	jobOfferFeats    *tensor.Dense
	encodedOffers    *tensor.Dense
	encodedJobOffers *tensor.Dense

	headMu    [numHeads]sync.Mutex
	logProbas [numHeads][]map[int]float64
	records   [numHeads][]map[int]*decisionRecord
	values    []map[int]*valueRecord
	rewards   []map[int]float64

	logger *zap.Logger
}

// NewDecisionNetHandler builds the full net family for an economy.
func NewDecisionNetHandler(econ *economy.Economy, arch Architecture, rng *rand.Rand, logger *zap.Logger) *DecisionNetHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	numGoods := econ.NumGoods()
	// persons carry CES utility (tfp + shares + substitution); firms carry
	// one CES per output good
	numUtilParams := numGoods + 3
	numProdFuncParams := numUtilParams * numGoods

	offerEncoder := NewOfferEncoder("offerEncoder", arch.StackSize, numGoods+1, arch.HiddenSize, arch.NumHidden, arch.EncodingSize, rng)
	jobOfferEncoder := NewOfferEncoder("jobOfferEncoder", arch.StackSize, 2, arch.HiddenSize, arch.NumHidden, arch.EncodingSize, rng)

	h := &DecisionNetHandler{
		econ:              econ,
		arch:              arch,
		rng:               rng,
		numGoods:          numGoods,
		numUtilParams:     numUtilParams,
		numProdFuncParams: numProdFuncParams,
		OfferEncoder:      offerEncoder,
		JobOfferEncoder:   jobOfferEncoder,
		PurchaseNet:       NewPurchaseNet("purchaseNet", offerEncoder, numUtilParams, numGoods, arch.HiddenSize, arch.NumHidden, rng),
		FirmPurchaseNet:   NewPurchaseNet("firmPurchaseNet", offerEncoder, numProdFuncParams, numGoods, arch.HiddenSize, arch.NumHidden, rng),
		LaborSearchNet:    NewPurchaseNet("laborSearchNet", jobOfferEncoder, numUtilParams, numGoods, arch.HiddenSize, arch.NumHidden, rng),
		ConsumptionNet:    NewConsumptionNet("consumptionNet", numUtilParams, numGoods, arch.HiddenSize, arch.NumHidden, rng),
		ProductionNet:     NewConsumptionNet("productionNet", numProdFuncParams, numGoods, arch.HiddenSize, arch.NumHidden, rng),
		OfferNet:          NewOfferNet("offerNet", offerEncoder, numProdFuncParams, numGoods, arch.HiddenSize, arch.NumHidden, arch.NumHiddenSmall, rng),
		JobOfferNet:       NewJobOfferNet("jobOfferNet", jobOfferEncoder, numProdFuncParams, numGoods, arch.HiddenSize, arch.NumHidden, rng),
		time:              -1,
		logger:            logger,
	}
	h.ValueNet = NewValueNet("valueNet", offerEncoder, jobOfferEncoder, numUtilParams, numGoods, arch.HiddenSize, arch.NumHidden, rng)
	h.FirmValueNet = NewValueNet("firmValueNet", offerEncoder, jobOfferEncoder, numProdFuncParams, numGoods, arch.HiddenSize, arch.NumHidden, rng)

	h.mu.Lock()
	h.timeStep()
	h.mu.Unlock()
	return h
}

func (h *DecisionNetHandler) modules() []module {
	return []module{
		h.OfferEncoder, h.JobOfferEncoder,
		h.PurchaseNet, h.FirmPurchaseNet, h.LaborSearchNet,
		h.ConsumptionNet, h.ProductionNet,
		h.OfferNet, h.JobOfferNet,
		h.ValueNet, h.FirmValueNet,
	}
}

// Economy returns the economy this handler currently serves.
func (h *DecisionNetHandler) Economy() *economy.Economy { return h.econ }

// Time returns the handler's step counter.
func (h *DecisionNetHandler) Time() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.time
}

// NumUtilParams is the parameter-vector length expected from persons.
func (h *DecisionNetHandler) NumUtilParams() int { return h.numUtilParams }

// NumProdFuncParams is the parameter-vector length expected from firms.
func (h *DecisionNetHandler) NumProdFuncParams() int { return h.numProdFuncParams }

// Reset points the handler at a fresh economy and clears the episode
// histories. Net weights are retained.
func (h *DecisionNetHandler) Reset(econ *economy.Economy) error {
	if econ.NumGoods() != h.numGoods {
		return fmt.Errorf("reset: economy trades %d goods, handler built for %d", econ.NumGoods(), h.numGoods)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.econ = econ
	h.time = -1
	for hd := head(0); hd < numHeads; hd++ {
		h.logProbas[hd] = nil
		h.records[hd] = nil
	}
	h.values = nil
	h.rewards = nil
	h.timeStep()
	return nil
}

// SynchronizeTime advances the handler when the calling agent has moved past
// it; only one caller promotes the clock per tick.
func (h *DecisionNetHandler) SynchronizeTime(callerTime int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if callerTime > h.time {
		h.timeStep()
	}
}

// timeStep re-encodes the markets and opens a new history slot. The caller
// must hold h.mu.
func (h *DecisionNetHandler) timeStep() {
	h.updateEncodedOffers()
	h.updateEncodedJobOffers()
	if h.time >= 0 {
		for hd := head(0); hd < numHeads; hd++ {
			h.logProbas[hd] = append(h.logProbas[hd], make(map[int]float64))
			h.records[hd] = append(h.records[hd], make(map[int]*decisionRecord))
		}
		h.values = append(h.values, make(map[int]*valueRecord))
		h.rewards = append(h.rewards, make(map[int]float64))
	}
	h.time++
}

func (h *DecisionNetHandler) updateEncodedOffers() {
	h.offers = h.econ.Market()
	n := len(h.offers)
	if n == 0 {
		h.offerFeats, h.encodedOffers = nil, nil
		return
	}
	backing := make([]float64, 0, n*(h.numGoods+1))
	for _, o := range h.offers {
		backing = append(backing, o.Quantities...)
		backing = append(backing, o.Price)
	}
	h.offerFeats = tensor.New(tensor.WithShape(n, h.numGoods+1), tensor.WithBacking(backing))
	enc, err := h.OfferEncoder.Encode(h.offerFeats)
	if err != nil {
		h.logger.Error("offer encoding failed", zap.Error(err))
		h.offerFeats, h.encodedOffers = nil, nil
		return
	}
	h.encodedOffers = enc
}

func (h *DecisionNetHandler) updateEncodedJobOffers() {
	h.jobOffers = h.econ.JobMarket()
	n := len(h.jobOffers)
	if n == 0 {
		h.jobOfferFeats, h.encodedJobOffers = nil, nil
		return
	}
	backing := make([]float64, 0, n*2)
	for _, o := range h.jobOffers {
		backing = append(backing, o.Labor, o.Wage)
	}
	h.jobOfferFeats = tensor.New(tensor.WithShape(n, 2), tensor.WithBacking(backing))
	enc, err := h.JobOfferEncoder.Encode(h.jobOfferFeats)
	if err != nil {
		h.logger.Error("job offer encoding failed", zap.Error(err))
		h.jobOfferFeats, h.encodedJobOffers = nil, nil
		return
	}
	h.encodedJobOffers = enc
}

// sampleStack draws stackSize market indices uniformly with replacement.
func (h *DecisionNetHandler) sampleStack(n int) []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := make([]int, h.arch.StackSize)
	for i := range idx {
		idx[i] = h.rng.Intn(n)
	}
	return idx
}

func (h *DecisionNetHandler) randFloat() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Float64()
}

// gatherRows copies the given rows out of a matrix.
func gatherRows(src *tensor.Dense, idx []int) *tensor.Dense {
	cols := src.Shape()[1]
	data := src.Data().([]float64)
	backing := make([]float64, 0, len(idx)*cols)
	for _, i := range idx {
		backing = append(backing, data[i*cols:(i+1)*cols]...)
	}
	return tensor.New(tensor.WithShape(len(idx), cols), tensor.WithBacking(backing))
}

// zeroStack is the all-zero encoding stack used when a market is empty.
func (h *DecisionNetHandler) zeroStack() *tensor.Dense {
	return tensor.New(tensor.WithShape(h.arch.StackSize, h.arch.EncodingSize),
		tensor.WithBacking(make([]float64, h.arch.StackSize*h.arch.EncodingSize)))
}

func (h *DecisionNetHandler) slot() int { return h.time - 1 }

func (h *DecisionNetHandler) writeDecision(hd head, agentID int, lp float64, rec *decisionRecord) {
	slot := h.slot()
	h.headMu[hd].Lock()
	defer h.headMu[hd].Unlock()
	h.logProbas[hd][slot][agentID] = lp
	if rec != nil {
		h.records[hd][slot][agentID] = rec
	}
}

// takeOffers runs a purchase-style head over a random stack and samples the
// per-slot Bernoulli takes. It returns the market indices taken, one entry
// per accepted slot.
func (h *DecisionNetHandler) takeOffers(hd head, net *PurchaseNet, agentID int, state *stateInputs, job bool) []int {
	feats, enc := h.offerFeats, h.encodedOffers
	n := len(h.offers)
	if job {
		feats, enc = h.jobOfferFeats, h.encodedJobOffers
		n = len(h.jobOffers)
	}
	if n == 0 || enc == nil {
		// no decision to make; mark the slot so the trainer skips it
		h.writeDecision(hd, agentID, math.NaN(), nil)
		return nil
	}
	idx := h.sampleStack(n)
	stackFeats := gatherRows(feats, idx)
	probs, err := net.probs(gatherRows(enc, idx), state)
	if err != nil {
		h.logger.Error("purchase head failed", zap.String("head", hd.String()), zap.Error(err))
		h.writeDecision(hd, agentID, math.NaN(), nil)
		return nil
	}
	takes := make([]bool, len(probs))
	logProba := 0.0
	var taken []int
	for i, p := range probs {
		if h.randFloat() < p {
			takes[i] = true
			taken = append(taken, idx[i])
			logProba += math.Log(p)
		} else {
			logProba += math.Log(1.0 - p)
		}
	}
	h.writeDecision(hd, agentID, logProba, &decisionRecord{
		stackFeats: stackFeats,
		state:      *state,
		takes:      takes,
		logProba:   logProba,
	})
	return taken
}

// ChooseGoodsToBuy samples the person purchase head and returns one order
// per accepted slot.
func (h *DecisionNetHandler) ChooseGoodsToBuy(agentID int, params []float64, budget, labor float64, inventory []float64) []economy.GoodsOrder {
	state := &stateInputs{params: params, money: budget, labor: labor, inventory: inventory}
	var orders []economy.GoodsOrder
	for _, i := range h.takeOffers(headPurchase, h.PurchaseNet, agentID, state, false) {
		orders = append(orders, economy.GoodsOrder{Offer: h.offers[i], Count: 1})
	}
	return orders
}

// FirmChooseGoodsToBuy samples the firm purchase head.
func (h *DecisionNetHandler) FirmChooseGoodsToBuy(agentID int, params []float64, budget, labor float64, inventory []float64) []economy.GoodsOrder {
	state := &stateInputs{params: params, money: budget, labor: labor, inventory: inventory}
	var orders []economy.GoodsOrder
	for _, i := range h.takeOffers(headFirmPurchase, h.FirmPurchaseNet, agentID, state, false) {
		orders = append(orders, economy.GoodsOrder{Offer: h.offers[i], Count: 1})
	}
	return orders
}

// ChooseJobs samples the labor-search head.
func (h *DecisionNetHandler) ChooseJobs(agentID int, params []float64, money, labor float64, inventory []float64) []economy.JobOrder {
	state := &stateInputs{params: params, money: money, labor: labor, inventory: inventory}
	var orders []economy.JobOrder
	for _, i := range h.takeOffers(headLaborSearch, h.LaborSearchNet, agentID, state, true) {
		orders = append(orders, economy.JobOrder{Offer: h.jobOffers[i], Count: 1})
	}
	return orders
}

// ChooseConsumptionProportions samples, per good, the logit-normal fraction
// of inventory to consume.
func (h *DecisionNetHandler) ChooseConsumptionProportions(agentID int, params []float64, money, labor float64, inventory []float64) []float64 {
	return h.chooseProportions(headConsumption, h.ConsumptionNet, agentID, params, money, labor, inventory)
}

// ChooseProductionProportions samples, per good, the logit-normal fraction
// of inventory to feed into production.
func (h *DecisionNetHandler) ChooseProductionProportions(agentID int, params []float64, money, labor float64, inventory []float64) []float64 {
	return h.chooseProportions(headProduction, h.ProductionNet, agentID, params, money, labor, inventory)
}

func (h *DecisionNetHandler) chooseProportions(hd head, net *ConsumptionNet, agentID int, params []float64, money, labor float64, inventory []float64) []float64 {
	state := &stateInputs{params: params, money: money, labor: labor, inventory: inventory}
	distParams, err := net.distParams(state)
	if err != nil {
		h.logger.Error("proportions head failed", zap.String("head", hd.String()), zap.Error(err))
		h.writeDecision(hd, agentID, math.NaN(), nil)
		return make([]float64, h.numGoods)
	}
	h.mu.Lock()
	draws := sampleNormals(h.rng, distParams)
	h.mu.Unlock()
	props := make([]float64, len(draws))
	normals := make([]float64, len(draws))
	for i, d := range draws {
		props[i] = logistic(d.x)
		normals[i] = d.x
	}
	h.writeDecision(hd, agentID, sumLogProbas(draws), &decisionRecord{
		state:    *state,
		normals:  normals,
		logProba: sumLogProbas(draws),
	})
	return props
}

// ChooseGoodOffers samples the offer head: per good, the amount of inventory
// to put on the market (logit-normal fraction times holdings) and its price
// (log-normal).
func (h *DecisionNetHandler) ChooseGoodOffers(agentID int, params []float64, money, labor float64, inventory []float64) (amounts, prices []float64) {
	state := &stateInputs{params: params, money: money, labor: labor, inventory: inventory}
	stackFeats, stackEnc := h.stackOrZeros(false)
	distParams, err := h.OfferNet.distParams(stackEnc, state)
	if err != nil {
		h.logger.Error("offer head failed", zap.Error(err))
		h.writeDecision(headOffer, agentID, math.NaN(), nil)
		return make([]float64, h.numGoods), make([]float64, h.numGoods)
	}
	amounts = make([]float64, h.numGoods)
	prices = make([]float64, h.numGoods)
	normals := make([]float64, 2*h.numGoods)
	logProba := 0.0
	h.mu.Lock()
	for i := 0; i < h.numGoods; i++ {
		// row i of the [numGoods, 4] output: amount params then price params
		amt := sampleNormal(h.rng, distParams[4*i], distParams[4*i+1])
		prc := sampleNormal(h.rng, distParams[4*i+2], distParams[4*i+3])
		amounts[i] = logistic(amt.x) * inventory[i]
		prices[i] = math.Exp(prc.x)
		normals[i] = amt.x
		normals[h.numGoods+i] = prc.x
		logProba += amt.logProba + prc.logProba
	}
	h.mu.Unlock()
	h.writeDecision(headOffer, agentID, logProba, &decisionRecord{
		stackFeats: stackFeats,
		state:      *state,
		normals:    normals,
		logProba:   logProba,
	})
	return amounts, prices
}

// ChooseJobOffer samples the job-offer head: total labor to hire and the
// wage, both log-normal. Wages above the configured cap are clamped.
func (h *DecisionNetHandler) ChooseJobOffer(agentID int, params []float64, money, labor float64, inventory []float64) (totalLabor, wage float64) {
	state := &stateInputs{params: params, money: money, labor: labor, inventory: inventory}
	stackFeats, stackEnc := h.stackOrZeros(true)
	distParams, err := h.JobOfferNet.distParams(stackEnc, state)
	if err != nil {
		h.logger.Error("job offer head failed", zap.Error(err))
		h.writeDecision(headJobOffer, agentID, math.NaN(), nil)
		return 0, 0
	}
	h.mu.Lock()
	laborDraw := sampleNormal(h.rng, distParams[0], distParams[1])
	wageDraw := sampleNormal(h.rng, distParams[2], distParams[3])
	h.mu.Unlock()
	totalLabor = math.Exp(laborDraw.x)
	wage = math.Exp(wageDraw.x)
	if maxWage := h.econ.Config().LargeNumber; wage > maxWage {
		wage = maxWage
		if h.econ.Config().Verbose >= 3 {
			h.logger.Debug("clipped wage", zap.Float64("max_wage", maxWage))
		}
	}
	logProba := laborDraw.logProba + wageDraw.logProba
	h.writeDecision(headJobOffer, agentID, logProba, &decisionRecord{
		stackFeats: stackFeats,
		state:      *state,
		normals:    []float64{laborDraw.x, wageDraw.x},
		logProba:   logProba,
	})
	return totalLabor, wage
}

// stackOrZeros samples a stack from the requested market, falling back to
// zero encodings when the market is empty.
func (h *DecisionNetHandler) stackOrZeros(job bool) (*tensor.Dense, *tensor.Dense) {
	feats, enc := h.offerFeats, h.encodedOffers
	n := len(h.offers)
	if job {
		feats, enc = h.jobOfferFeats, h.encodedJobOffers
		n = len(h.jobOffers)
	}
	if n == 0 || enc == nil {
		return nil, h.zeroStack()
	}
	idx := h.sampleStack(n)
	return gatherRows(feats, idx), gatherRows(enc, idx)
}

// RecordValue estimates and stores the person value net's state value.
func (h *DecisionNetHandler) RecordValue(agentID int, params []float64, money, labor float64, inventory []float64) {
	h.recordValue(headValue, h.ValueNet, agentID, params, money, labor, inventory)
}

// FirmRecordValue estimates and stores the firm value net's state value.
func (h *DecisionNetHandler) FirmRecordValue(agentID int, params []float64, money, labor float64, inventory []float64) {
	h.recordValue(headFirmValue, h.FirmValueNet, agentID, params, money, labor, inventory)
}

func (h *DecisionNetHandler) recordValue(hd head, net *ValueNet, agentID int, params []float64, money, labor float64, inventory []float64) {
	state := &stateInputs{params: params, money: money, labor: labor, inventory: inventory}
	offerFeats, offerEnc := h.stackOrZeros(false)
	jobFeats, jobEnc := h.stackOrZeros(true)
	v, err := net.estimate(offerEnc, jobEnc, state)
	if err != nil {
		h.logger.Error("value head failed", zap.String("head", hd.String()), zap.Error(err))
		return
	}
	slot := h.slot()
	h.headMu[hd].Lock()
	defer h.headMu[hd].Unlock()
	h.values[slot][agentID] = &valueRecord{
		offerFeats: offerFeats,
		jobFeats:   jobFeats,
		state:      *state,
		value:      v,
	}
}

// RecordReward stores an agent's reward for the current step.
func (h *DecisionNetHandler) RecordReward(agentID int, reward float64) {
	h.RecordRewardOffset(agentID, reward, 0)
}

// RecordRewardOffset stores a reward attributed to an earlier step; firms
// observe the payoff of a step's decisions one step later.
func (h *DecisionNetHandler) RecordRewardOffset(agentID int, reward float64, offset int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	slot := h.time - 1 - offset
	if slot < 0 || slot >= len(h.rewards) {
		return
	}
	h.rewards[slot][agentID] = reward
}

// SaveModels writes every encoder and head to dir, one file per module.
func (h *DecisionNetHandler) SaveModels(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save models: %w", err)
	}
	for _, m := range h.modules() {
		if err := saveModule(m, dir); err != nil {
			return err
		}
	}
	return nil
}

// LoadModels restores every encoder and head from dir.
func (h *DecisionNetHandler) LoadModels(dir string) error {
	for _, m := range h.modules() {
		if err := loadModule(m, dir); err != nil {
			return err
		}
	}
	return nil
}
