package neural

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/aidenlippert/agora/libs/economy"
	"github.com/aidenlippert/agora/libs/metrics"
	"go.uber.org/zap"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// TrainerConfig carries the per-head learning rates and the shared scheduler
// behavior.
type TrainerConfig struct {
	PurchaseNetLR     float64
	FirmPurchaseNetLR float64
	LaborSearchNetLR  float64
	ConsumptionNetLR  float64
	ProductionNetLR   float64
	OfferNetLR        float64
	JobOfferNetLR     float64
	ValueNetLR        float64
	FirmValueNetLR    float64

	Scheduler LRSchedulerConfig
}

// DefaultTrainerConfig returns the standard learning setup.
func DefaultTrainerConfig() TrainerConfig {
	const lr = 1e-5
	return TrainerConfig{
		PurchaseNetLR:     lr,
		FirmPurchaseNetLR: lr,
		LaborSearchNetLR:  lr,
		ConsumptionNetLR:  lr,
		ProductionNetLR:   lr,
		OfferNetLR:        lr,
		JobOfferNetLR:     lr,
		ValueNetLR:        lr,
		FirmValueNetLR:    lr,
		Scheduler:         DefaultLRSchedulerConfig(),
	}
}

func (c TrainerConfig) lrFor(hd head) float64 {
	switch hd {
	case headPurchase:
		return c.PurchaseNetLR
	case headFirmPurchase:
		return c.FirmPurchaseNetLR
	case headLaborSearch:
		return c.LaborSearchNetLR
	case headConsumption:
		return c.ConsumptionNetLR
	case headProduction:
		return c.ProductionNetLR
	case headOffer:
		return c.OfferNetLR
	case headJobOffer:
		return c.JobOfferNetLR
	case headValue:
		return c.ValueNetLR
	default:
		return c.FirmValueNetLR
	}
}

// agentSeries holds one agent's detached reward-to-go and advantage over the
// episode.
type agentSeries struct {
	q       []float64
	adv     []float64
	present []bool
}

// A2C is the advantage actor-critic trainer: at the end of an episode it
// rebuilds each head's decisions symbolically, scales the log-probabilities
// by the detached advantage, and steps one Adam optimizer per head.
// Backpropagation reaches the shared encoders because their weights are
// learnables in every consumer head's graph.
type A2C struct {
	mu      sync.Mutex
	handler *DecisionNetHandler
	cfg     TrainerConfig

	solvers    [numHeads]G.Solver
	schedulers [numHeads]*LRScheduler

	tm     *metrics.TrainerMetrics
	logger *zap.Logger
}

// NewA2C builds a trainer over the handler's nets.
func NewA2C(handler *DecisionNetHandler, cfg TrainerConfig, tm *metrics.TrainerMetrics, logger *zap.Logger) *A2C {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &A2C{handler: handler, cfg: cfg, tm: tm, logger: logger}
	for hd := head(0); hd < numHeads; hd++ {
		lr := cfg.lrFor(hd)
		a.solvers[hd] = G.NewAdamSolver(G.WithLearnRate(lr))
		a.schedulers[hd] = NewLRScheduler(hd.String(), lr, cfg.Scheduler, logger)
	}
	return a
}

// Handler returns the decision-net handler this trainer updates.
func (a *A2C) Handler() *DecisionNetHandler { return a.handler }

// Metrics returns the trainer's metrics, or nil when none are attached.
func (a *A2C) Metrics() *metrics.TrainerMetrics { return a.tm }

// QSeries computes the reward-to-go q[t] = r[t] + gamma*q[t+1].
func QSeries(rewards []float64, gamma float64) []float64 {
	q := make([]float64, len(rewards))
	acc := 0.0
	for t := len(rewards) - 1; t >= 0; t-- {
		acc = rewards[t] + gamma*acc
		q[t] = acc
	}
	return q
}

// seriesFor walks an agent's reward and value history in reverse time and
// returns its reward-to-go and advantage. Steps at or past horizon are
// excluded; firms pass horizon T-1 because their final step's payoff is
// never observed.
func (a *A2C) seriesFor(agentID int, gamma float64, horizon int) *agentSeries {
	h := a.handler
	s := &agentSeries{
		q:       make([]float64, horizon),
		adv:     make([]float64, horizon),
		present: make([]bool, horizon),
	}
	acc := 0.0
	for t := horizon - 1; t >= 0; t-- {
		r, okR := h.rewards[t][agentID]
		vr, okV := h.values[t][agentID]
		if !okR || !okV {
			a.logger.Debug("missing reward or value",
				zap.Int("agent_id", agentID),
				zap.Int("time", t),
			)
			continue
		}
		acc = r + gamma*acc
		s.q[t] = acc
		s.adv[t] = acc - vr.value
		s.present[t] = true
	}
	return s
}

// TrainOnEpisode consumes the handler's recorded episode and applies one
// gradient update per head. It returns the total loss across all agents and
// heads.
func (a *A2C) TrainOnEpisode() (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	h := a.handler
	slots := len(h.rewards)
	if slots == 0 {
		return 0, fmt.Errorf("train on episode: no recorded steps")
	}

	personSeries := a.collectPersonSeries(slots)
	// the final step's firm data is discarded: its payoff lands after the
	// episode ends
	firmSeries := a.collectFirmSeries(slots - 1)

	headLosses := [numHeads]float64{}
	run := func(hd head, loss float64, err error) error {
		if err != nil {
			return fmt.Errorf("%s: %w", hd, err)
		}
		headLosses[hd] = loss
		return nil
	}

	personHeads := []head{headPurchase, headLaborSearch, headConsumption}
	for _, hd := range personHeads {
		loss, err := a.policyHeadStep(hd, personSeries, slots)
		if err := run(hd, loss, err); err != nil {
			return 0, err
		}
	}
	firmHeads := []head{headFirmPurchase, headProduction, headOffer, headJobOffer}
	for _, hd := range firmHeads {
		loss, err := a.policyHeadStep(hd, firmSeries, slots-1)
		if err := run(hd, loss, err); err != nil {
			return 0, err
		}
	}
	{
		loss, err := a.criticHeadStep(headValue, h.ValueNet, personSeries, slots)
		if err := run(headValue, loss, err); err != nil {
			return 0, err
		}
	}
	{
		loss, err := a.criticHeadStep(headFirmValue, h.FirmValueNet, firmSeries, slots-1)
		if err := run(headFirmValue, loss, err); err != nil {
			return 0, err
		}
	}

	total := 0.0
	for hd := head(0); hd < numHeads; hd++ {
		total += headLosses[hd]
		lr, changed := a.schedulers[hd].Update(headLosses[hd])
		if changed {
			// gorgonia solvers do not expose their learning rate, so a decay
			// rebuilds the optimizer at the new rate
			a.solvers[hd] = G.NewAdamSolver(G.WithLearnRate(lr))
		}
		if a.tm != nil {
			a.tm.HeadLoss.WithLabelValues(hd.String()).Set(headLosses[hd])
			a.tm.LearningRate.WithLabelValues(hd.String()).Set(lr)
		}
	}
	if a.tm != nil {
		a.tm.Episodes.Inc()
		a.tm.EpisodeLoss.Set(total)
	}
	return total, nil
}

// collectPersonSeries computes every person's advantage series, partitioned
// across workers when multithreading is enabled.
func (a *A2C) collectPersonSeries(horizon int) map[int]*agentSeries {
	persons := a.handler.econ.Persons()
	out := make(map[int]*agentSeries, len(persons))
	cfg := a.handler.econ.Config()
	if !cfg.Multithreaded || len(persons) < 2 {
		for _, p := range persons {
			out[p.ID()] = a.seriesFor(p.ID(), p.DiscountRate(), horizon)
		}
		return out
	}
	series := make([]*agentSeries, len(persons))
	bounds := economy.ThreadIndices(len(persons), cfg.NumThreads)
	var wg sync.WaitGroup
	for w := 0; w < cfg.NumThreads; w++ {
		lo, hi := bounds[w], bounds[w+1]
		if lo == hi {
			continue
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				series[i] = a.seriesFor(persons[i].ID(), persons[i].DiscountRate(), horizon)
			}
		}(lo, hi)
	}
	wg.Wait()
	for i, p := range persons {
		out[p.ID()] = series[i]
	}
	return out
}

// collectFirmSeries computes every firm's advantage series with no
// discounting.
func (a *A2C) collectFirmSeries(horizon int) map[int]*agentSeries {
	out := make(map[int]*agentSeries)
	for _, f := range a.handler.econ.Firms() {
		out[f.ID()] = a.seriesFor(f.ID(), 1.0, horizon)
	}
	return out
}

// policyHeadStep rebuilds one head's recorded decisions on a fresh graph,
// forms the loss sum over logproba * detach(advantage), and steps the head's
// optimizer. NaN-marked decisions are skipped.
func (a *A2C) policyHeadStep(hd head, series map[int]*agentSeries, horizon int) (float64, error) {
	h := a.handler
	c := newGraphCtx()
	// the encoder only joins the graph when at least one record carries a
	// real offer stack; registering it unused would hand Grad unreachable
	// learnables
	hasStack := false
	for t := 0; t < horizon && t < len(h.records[hd]); t++ {
		for _, rec := range h.records[hd][t] {
			if rec.stackFeats != nil {
				hasStack = true
			}
		}
	}
	a.registerModules(c, hd, hasStack)

	var terms []*G.Node
	for t := 0; t < horizon && t < len(h.records[hd]); t++ {
		for _, agentID := range sortedKeys(h.records[hd][t]) {
			rec := h.records[hd][t][agentID]
			s := series[agentID]
			if s == nil || !s.present[t] || math.IsNaN(rec.logProba) {
				continue
			}
			lp := a.symbolicLogProba(c, hd, rec, t, agentID)
			terms = append(terms, G.Must(G.Mul(lp, c.scalar(s.adv[t]))))
		}
	}
	if len(terms) == 0 {
		return 0, nil
	}
	loss := terms[0]
	for _, term := range terms[1:] {
		loss = G.Must(G.Add(loss, term))
	}
	return a.step(hd, c, loss)
}

// criticHeadStep rebuilds the recorded state-value estimates and minimizes
// the squared advantage against the detached reward-to-go.
func (a *A2C) criticHeadStep(hd head, net *ValueNet, series map[int]*agentSeries, horizon int) (float64, error) {
	h := a.handler
	c := newGraphCtx()
	hasOffers, hasJobs := false, false
	for t := 0; t < horizon && t < len(h.values); t++ {
		for agentID, vr := range h.values[t] {
			if _, ok := series[agentID]; !ok {
				continue
			}
			hasOffers = hasOffers || vr.offerFeats != nil
			hasJobs = hasJobs || vr.jobFeats != nil
		}
	}
	if hasOffers {
		c.register(h.OfferEncoder)
	}
	if hasJobs {
		c.register(h.JobOfferEncoder)
	}
	c.register(net)

	var terms []*G.Node
	for t := 0; t < horizon && t < len(h.values); t++ {
		for _, agentID := range sortedValueKeys(h.values[t]) {
			s := series[agentID]
			if s == nil || !s.present[t] {
				continue
			}
			vr := h.values[t][agentID]
			tag := fmt.Sprintf("%s_t%d_a%d", hd, t, agentID)
			v := net.fwd(c,
				a.encOrZeros(c, net.encoder, vr.offerFeats, tag+"_offers"),
				a.encOrZeros(c, net.jobEncoder, vr.jobFeats, tag+"_jobs"),
				&vr.state,
			)
			diff := G.Must(G.Sub(v, c.scalar(s.q[t])))
			terms = append(terms, G.Must(G.Sum(G.Must(G.Square(diff)))))
		}
	}
	if len(terms) == 0 {
		return 0, nil
	}
	loss := terms[0]
	for _, term := range terms[1:] {
		loss = G.Must(G.Add(loss, term))
	}
	return a.step(hd, c, loss)
}

// step computes gradients of the scalar loss with respect to the graph's
// learnables, runs the tape, and applies the head's optimizer.
func (a *A2C) step(hd head, c *graphCtx, loss *G.Node) (float64, error) {
	if _, err := G.Grad(loss, c.learnables...); err != nil {
		return 0, fmt.Errorf("grad: %w", err)
	}
	vm := G.NewTapeMachine(c.g, G.BindDualValues(c.learnables...))
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return 0, fmt.Errorf("backward: %w", err)
	}
	if err := a.solvers[hd].Step(G.NodesToValueGrads(c.learnables)); err != nil {
		return 0, fmt.Errorf("solver step: %w", err)
	}
	lossValue, ok := loss.Value().Data().(float64)
	if !ok {
		return 0, fmt.Errorf("loss is not scalar")
	}
	return lossValue, nil
}

// registerModules pins a head's modules (shared encoder first, when it
// participates) onto the graph so the solver sees learnables in a stable
// order.
func (a *A2C) registerModules(c *graphCtx, hd head, withEncoder bool) {
	h := a.handler
	var enc *OfferEncoder
	var net module
	switch hd {
	case headPurchase:
		enc, net = h.OfferEncoder, h.PurchaseNet
	case headFirmPurchase:
		enc, net = h.OfferEncoder, h.FirmPurchaseNet
	case headLaborSearch:
		enc, net = h.JobOfferEncoder, h.LaborSearchNet
	case headConsumption:
		net = h.ConsumptionNet
	case headProduction:
		net = h.ProductionNet
	case headOffer:
		enc, net = h.OfferEncoder, h.OfferNet
	case headJobOffer:
		enc, net = h.JobOfferEncoder, h.JobOfferNet
	}
	if enc != nil && withEncoder {
		c.register(enc)
	}
	c.register(net)
}

// symbolicLogProba rebuilds the log-probability of a recorded action so that
// gradients flow through the head and, where offers were involved, the
// shared encoder.
func (a *A2C) symbolicLogProba(c *graphCtx, hd head, rec *decisionRecord, t, agentID int) *G.Node {
	h := a.handler
	tag := fmt.Sprintf("%s_t%d_a%d", hd, t, agentID)
	switch hd {
	case headPurchase, headFirmPurchase, headLaborSearch:
		var net *PurchaseNet
		switch hd {
		case headPurchase:
			net = h.PurchaseNet
		case headFirmPurchase:
			net = h.FirmPurchaseNet
		default:
			net = h.LaborSearchNet
		}
		enc := net.encoder.fwd(c, c.constant(tag+"_feats", rec.stackFeats))
		probs := net.fwd(c, enc, &rec.state)
		return bernoulliLogProba(c, probs, rec.takes, tag)
	case headConsumption:
		return normalLogProba(c, h.ConsumptionNet.fwd(c, &rec.state), rec.normals, tag)
	case headProduction:
		return normalLogProba(c, h.ProductionNet.fwd(c, &rec.state), rec.normals, tag)
	case headOffer:
		out := h.OfferNet.fwd(c, a.encOrZeros(c, h.OfferEncoder, rec.stackFeats, tag), &rec.state)
		amtParams := G.Must(G.Slice(out, nil, G.S(0, 2)))
		prcParams := G.Must(G.Slice(out, nil, G.S(2, 4)))
		n := len(rec.normals) / 2
		amt := normalLogProba(c, amtParams, rec.normals[:n], tag+"_amt")
		prc := normalLogProba(c, prcParams, rec.normals[n:], tag+"_prc")
		return G.Must(G.Add(amt, prc))
	default: // headJobOffer
		out := h.JobOfferNet.fwd(c, a.encOrZeros(c, h.JobOfferEncoder, rec.stackFeats, tag), &rec.state)
		return normalLogProba(c, out, rec.normals, tag)
	}
}

// encOrZeros encodes recorded stack features, or injects the zero-encoding
// stack when the market was empty at decision time (no encoder gradient in
// that case).
func (a *A2C) encOrZeros(c *graphCtx, enc *OfferEncoder, feats *tensor.Dense, tag string) *G.Node {
	if feats == nil {
		return c.constant(tag+"_zeros", a.handler.zeroStack())
	}
	return enc.fwd(c, c.constant(tag+"_feats", feats))
}

// bernoulliLogProba sums log p over taken slots and log(1-p) over rejected
// ones.
func bernoulliLogProba(c *graphCtx, probs *G.Node, takes []bool, tag string) *G.Node {
	mask := make([]float64, len(takes))
	inverse := make([]float64, len(takes))
	for i, took := range takes {
		if took {
			mask[i] = 1.0
		} else {
			inverse[i] = 1.0
		}
	}
	maskN := c.constant(tag+"_mask", rowVector(mask))
	invN := c.constant(tag+"_inv", rowVector(inverse))
	ones := c.constant(tag+"_ones", rowVector(onesSlice(len(takes))))

	taken := G.Must(G.HadamardProd(maskN, G.Must(G.Log(probs))))
	rejected := G.Must(G.HadamardProd(invN, G.Must(G.Log(G.Must(G.Sub(ones, probs))))))
	return G.Must(G.Sum(G.Must(G.Add(taken, rejected))))
}

// normalLogProba evaluates the log density of recorded pre-transform normal
// draws under the head's (mu, logsigma) output rows.
func normalLogProba(c *graphCtx, params *G.Node, xs []float64, tag string) *G.Node {
	mu := G.Must(G.Slice(params, nil, G.S(0)))
	logSigma := G.Must(G.Slice(params, nil, G.S(1)))
	sigma := G.Must(G.Exp(logSigma))
	x := c.constant(tag+"_x", vector(xs))
	z := G.Must(G.HadamardDiv(G.Must(G.Sub(x, mu)), sigma))
	lp := G.Must(G.Mul(G.Must(G.Square(z)), c.scalar(-0.5)))
	lp = G.Must(G.Sub(lp, logSigma))
	lp = G.Must(G.Sub(lp, c.scalar(logSqrt2Pi)))
	return G.Must(G.Sum(lp))
}

func onesSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1.0
	}
	return out
}

func sortedKeys(m map[int]*decisionRecord) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func sortedValueKeys(m map[int]*valueRecord) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
