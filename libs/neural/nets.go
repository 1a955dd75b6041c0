package neural

import (
	"fmt"
	"math/rand"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// OfferEncoder condenses per-offer feature vectors into fixed-size
// embeddings shared by every downstream head. Input is a stack of offers
// [n, numFeatures]; output is [n, encodingSize].
type OfferEncoder struct {
	StackSize    int
	NumFeatures  int
	HiddenSize   int
	NumHidden    int
	EncodingSize int

	modName   string
	dimReduce *linear
	hidden    []*linear
	last      *linear
}

func NewOfferEncoder(name string, stackSize, numFeatures, hiddenSize, numHidden, encodingSize int, rng *rand.Rand) *OfferEncoder {
	e := &OfferEncoder{
		StackSize:    stackSize,
		NumFeatures:  numFeatures,
		HiddenSize:   hiddenSize,
		NumHidden:    numHidden,
		EncodingSize: encodingSize,
		modName:      name,
		dimReduce:    newLinear(name+"_dimReduce", numFeatures, hiddenSize, rng),
		last:         newLinear(name+"_last", hiddenSize, encodingSize, rng),
	}
	for i := 0; i < numHidden; i++ {
		e.hidden = append(e.hidden, newLinear(fmt.Sprintf("%s_hidden%d", name, i), hiddenSize, hiddenSize, rng))
	}
	return e
}

func (e *OfferEncoder) name() string { return e.modName }

func (e *OfferEncoder) layers() []*linear {
	out := []*linear{e.dimReduce}
	out = append(out, e.hidden...)
	return append(out, e.last)
}

// fwd builds the encoder forward: a projection, residual tanh blocks, then a
// tanh projection to the encoding size.
func (e *OfferEncoder) fwd(c *graphCtx, x *G.Node) *G.Node {
	x = c.applyTanh(e.dimReduce, x)
	for _, h := range e.hidden {
		x = G.Must(G.Add(x, c.applyTanh(h, x)))
	}
	return c.applyTanh(e.last, x)
}

// Encode runs the encoder eagerly over a feature matrix.
func (e *OfferEncoder) Encode(feats *tensor.Dense) (*tensor.Dense, error) {
	c := newGraphCtx()
	out := e.fwd(c, c.constant("offer_feats", feats))
	if err := c.run(); err != nil {
		return nil, fmt.Errorf("encode offers: %w", err)
	}
	return out.Value().(*tensor.Dense), nil
}

// stateInputs bundles the non-offer features of a decision call.
type stateInputs struct {
	params    []float64
	money     float64
	labor     float64
	inventory []float64
}

// nodes lifts the state into graph constants.
func (s *stateInputs) nodes(c *graphCtx, tag string) []*G.Node {
	return []*G.Node{
		c.constant(tag+"_params", rowVector(s.params)),
		c.constant(tag+"_money", rowVector([]float64{s.money})),
		c.constant(tag+"_labor", rowVector([]float64{s.labor})),
		c.constant(tag+"_inventory", rowVector(s.inventory)),
	}
}

// flattenStack reduces a stack of encodings [stack, enc] to a feature row
// [1, stack] through a per-offer linear squash.
func flattenStack(c *graphCtx, flatten *linear, enc *G.Node, stackSize int) *G.Node {
	x := G.Must(G.Tanh(c.apply(flatten, enc))) // [stack, 1]
	return G.Must(G.Reshape(x, tensor.Shape{1, stackSize}))
}

// residualTrunk applies hidden[0] as a plain tanh layer and the remaining
// layers as residual tanh blocks.
func residualTrunk(c *graphCtx, hidden []*linear, x *G.Node) *G.Node {
	x = c.applyTanh(hidden[0], x)
	for _, h := range hidden[1:] {
		x = G.Must(G.Add(x, c.applyTanh(h, x)))
	}
	return x
}

// PurchaseNet outputs, per offer in the stack, the probability of taking
// that offer conditional on affordability. The same architecture serves
// person purchases, firm purchases, and labor search.
type PurchaseNet struct {
	encoder   *OfferEncoder
	numParams int
	numGoods  int

	modName string
	flatten *linear
	hidden  []*linear
	last    *linear
}

func NewPurchaseNet(name string, encoder *OfferEncoder, numParams, numGoods, hiddenSize, numHidden int, rng *rand.Rand) *PurchaseNet {
	n := &PurchaseNet{
		encoder:   encoder,
		numParams: numParams,
		numGoods:  numGoods,
		modName:   name,
		flatten:   newLinear(name+"_flatten", encoder.EncodingSize, 1, rng),
	}
	numFeatures := encoder.StackSize + numParams + numGoods + 2
	for i := 0; i < numHidden; i++ {
		in := hiddenSize
		if i == 0 {
			in = numFeatures
		}
		n.hidden = append(n.hidden, newLinear(fmt.Sprintf("%s_hidden%d", name, i), in, hiddenSize, rng))
	}
	n.last = newLinear(name+"_last", hiddenSize, encoder.StackSize, rng)
	return n
}

func (n *PurchaseNet) name() string { return n.modName }

func (n *PurchaseNet) layers() []*linear {
	out := []*linear{n.flatten}
	out = append(out, n.hidden...)
	return append(out, n.last)
}

// fwd maps stack encodings plus agent state to per-slot take probabilities
// [1, stackSize].
func (n *PurchaseNet) fwd(c *graphCtx, enc *G.Node, state *stateInputs) *G.Node {
	x := flattenStack(c, n.flatten, enc, n.encoder.StackSize)
	parts := append([]*G.Node{x}, state.nodes(c, n.modName)...)
	x = G.Must(G.Concat(1, parts...))
	x = residualTrunk(c, n.hidden, x)
	return G.Must(G.Sigmoid(c.apply(n.last, x)))
}

// probs runs the head eagerly over precomputed stack encodings.
func (n *PurchaseNet) probs(stackEnc *tensor.Dense, state *stateInputs) ([]float64, error) {
	c := newGraphCtx()
	out := n.fwd(c, c.constant("stack_enc", stackEnc), state)
	if err := c.run(); err != nil {
		return nil, fmt.Errorf("%s forward: %w", n.modName, err)
	}
	return out.Value().Data().([]float64), nil
}

// ConsumptionNet maps agent state to (mu, logsigma) pairs per good,
// parameters of a logit-normal over the fraction of each good to consume.
// The same architecture serves the production-input decision.
type ConsumptionNet struct {
	numParams int
	numGoods  int

	modName string
	first   *linear
	hidden  []*linear
	last    *linear
}

func NewConsumptionNet(name string, numParams, numGoods, hiddenSize, numHidden int, rng *rand.Rand) *ConsumptionNet {
	n := &ConsumptionNet{
		numParams: numParams,
		numGoods:  numGoods,
		modName:   name,
		first:     newLinear(name+"_first", numParams+numGoods+2, hiddenSize, rng),
	}
	for i := 0; i < numHidden; i++ {
		n.hidden = append(n.hidden, newLinear(fmt.Sprintf("%s_hidden%d", name, i), hiddenSize, hiddenSize, rng))
	}
	n.last = newLinear(name+"_last", hiddenSize, numGoods*2, rng)
	return n
}

func (n *ConsumptionNet) name() string { return n.modName }

func (n *ConsumptionNet) layers() []*linear {
	out := []*linear{n.first}
	out = append(out, n.hidden...)
	return append(out, n.last)
}

// fwd returns [numGoods, 2] distribution parameters.
func (n *ConsumptionNet) fwd(c *graphCtx, state *stateInputs) *G.Node {
	x := G.Must(G.Concat(1, state.nodes(c, n.modName)...))
	x = c.applyTanh(n.first, x)
	for _, h := range n.hidden {
		x = G.Must(G.Add(x, c.applyTanh(h, x)))
	}
	x = c.apply(n.last, x)
	return G.Must(G.Reshape(x, tensor.Shape{n.numGoods, 2}))
}

// distParams runs the net eagerly, returning the [numGoods, 2] parameters
// flattened row-major.
func (n *ConsumptionNet) distParams(state *stateInputs) ([]float64, error) {
	c := newGraphCtx()
	out := n.fwd(c, state)
	if err := c.run(); err != nil {
		return nil, fmt.Errorf("%s forward: %w", n.modName, err)
	}
	return out.Value().Data().([]float64), nil
}

// OfferNet decides, per good, what fraction of inventory to offer for sale
// and at what price. A shared trunk splits into an amount branch and a price
// branch; output is [numGoods, 4] rows of
// (amt_mu, amt_logsigma, price_mu, price_logsigma).
type OfferNet struct {
	encoder   *OfferEncoder
	numParams int
	numGoods  int

	modName string
	flatten *linear
	trunk   []*linear
	amountB []*linear
	priceB  []*linear
	lastAmt *linear
	lastPrc *linear
}

func NewOfferNet(name string, encoder *OfferEncoder, numParams, numGoods, hiddenSize, numHidden, numHiddenSmall int, rng *rand.Rand) *OfferNet {
	n := &OfferNet{
		encoder:   encoder,
		numParams: numParams,
		numGoods:  numGoods,
		modName:   name,
		flatten:   newLinear(name+"_flatten", encoder.EncodingSize, 1, rng),
	}
	numFeatures := encoder.StackSize + numParams + numGoods + 2
	for i := 0; i < numHidden; i++ {
		in := hiddenSize
		if i == 0 {
			in = numFeatures
		}
		n.trunk = append(n.trunk, newLinear(fmt.Sprintf("%s_trunk%d", name, i), in, hiddenSize, rng))
	}
	for i := 0; i < numHiddenSmall; i++ {
		n.amountB = append(n.amountB, newLinear(fmt.Sprintf("%s_amount%d", name, i), hiddenSize, hiddenSize, rng))
		n.priceB = append(n.priceB, newLinear(fmt.Sprintf("%s_price%d", name, i), hiddenSize, hiddenSize, rng))
	}
	n.lastAmt = newLinear(name+"_lastAmount", hiddenSize, numGoods*2, rng)
	n.lastPrc = newLinear(name+"_lastPrice", hiddenSize, numGoods*2, rng)
	return n
}

func (n *OfferNet) name() string { return n.modName }

func (n *OfferNet) layers() []*linear {
	out := []*linear{n.flatten}
	out = append(out, n.trunk...)
	out = append(out, n.amountB...)
	out = append(out, n.priceB...)
	return append(out, n.lastAmt, n.lastPrc)
}

// fwd returns [numGoods, 4] distribution parameters.
func (n *OfferNet) fwd(c *graphCtx, enc *G.Node, state *stateInputs) *G.Node {
	x := flattenStack(c, n.flatten, enc, n.encoder.StackSize)
	parts := append([]*G.Node{x}, state.nodes(c, n.modName)...)
	x = G.Must(G.Concat(1, parts...))
	x = residualTrunk(c, n.trunk, x)

	xa := G.Must(G.Add(x, c.applyTanh(n.amountB[0], x)))
	xb := G.Must(G.Add(x, c.applyTanh(n.priceB[0], x)))
	for i := 1; i < len(n.amountB); i++ {
		xa = G.Must(G.Add(xa, c.applyTanh(n.amountB[i], xa)))
		xb = G.Must(G.Add(xb, c.applyTanh(n.priceB[i], xb)))
	}
	xa = G.Must(G.Reshape(c.apply(n.lastAmt, xa), tensor.Shape{n.numGoods, 2}))
	xb = G.Must(G.Reshape(c.apply(n.lastPrc, xb), tensor.Shape{n.numGoods, 2}))
	return G.Must(G.Concat(1, xa, xb))
}

func (n *OfferNet) distParams(stackEnc *tensor.Dense, state *stateInputs) ([]float64, error) {
	c := newGraphCtx()
	out := n.fwd(c, c.constant("stack_enc", stackEnc), state)
	if err := c.run(); err != nil {
		return nil, fmt.Errorf("%s forward: %w", n.modName, err)
	}
	return out.Value().Data().([]float64), nil
}

// JobOfferNet decides how much total labor to hire and at what wage:
// output is [2, 2] with rows (labor_mu, labor_logsigma) and
// (wage_mu, wage_logsigma), both log-normal.
type JobOfferNet struct {
	encoder   *OfferEncoder
	numParams int
	numGoods  int

	modName string
	flatten *linear
	hidden  []*linear
	last    *linear
}

func NewJobOfferNet(name string, encoder *OfferEncoder, numParams, numGoods, hiddenSize, numHidden int, rng *rand.Rand) *JobOfferNet {
	n := &JobOfferNet{
		encoder:   encoder,
		numParams: numParams,
		numGoods:  numGoods,
		modName:   name,
		flatten:   newLinear(name+"_flatten", encoder.EncodingSize, 1, rng),
	}
	numFeatures := encoder.StackSize + numParams + numGoods + 2
	for i := 0; i < numHidden; i++ {
		in := hiddenSize
		if i == 0 {
			in = numFeatures
		}
		n.hidden = append(n.hidden, newLinear(fmt.Sprintf("%s_hidden%d", name, i), in, hiddenSize, rng))
	}
	n.last = newLinear(name+"_last", hiddenSize, 4, rng)
	return n
}

func (n *JobOfferNet) name() string { return n.modName }

func (n *JobOfferNet) layers() []*linear {
	out := []*linear{n.flatten}
	out = append(out, n.hidden...)
	return append(out, n.last)
}

// fwd returns [2, 2] distribution parameters: row 0 labor, row 1 wage.
func (n *JobOfferNet) fwd(c *graphCtx, enc *G.Node, state *stateInputs) *G.Node {
	x := flattenStack(c, n.flatten, enc, n.encoder.StackSize)
	parts := append([]*G.Node{x}, state.nodes(c, n.modName)...)
	x = G.Must(G.Concat(1, parts...))
	x = residualTrunk(c, n.hidden, x)
	x = c.apply(n.last, x)
	return G.Must(G.Reshape(x, tensor.Shape{2, 2}))
}

func (n *JobOfferNet) distParams(stackEnc *tensor.Dense, state *stateInputs) ([]float64, error) {
	c := newGraphCtx()
	out := n.fwd(c, c.constant("stack_enc", stackEnc), state)
	if err := c.run(); err != nil {
		return nil, fmt.Errorf("%s forward: %w", n.modName, err)
	}
	return out.Value().Data().([]float64), nil
}

// ValueNet estimates the state value from both market stacks plus agent
// state; output is a [1, 1] scalar.
type ValueNet struct {
	encoder    *OfferEncoder
	jobEncoder *OfferEncoder
	numParams  int
	numGoods   int

	modName    string
	flatten    *linear
	jobFlatten *linear
	hidden     []*linear
	last       *linear
}

func NewValueNet(name string, encoder, jobEncoder *OfferEncoder, numParams, numGoods, hiddenSize, numHidden int, rng *rand.Rand) *ValueNet {
	n := &ValueNet{
		encoder:    encoder,
		jobEncoder: jobEncoder,
		numParams:  numParams,
		numGoods:   numGoods,
		modName:    name,
		flatten:    newLinear(name+"_flatten", encoder.EncodingSize, 1, rng),
		jobFlatten: newLinear(name+"_jobFlatten", jobEncoder.EncodingSize, 1, rng),
	}
	numFeatures := encoder.StackSize + jobEncoder.StackSize + numParams + numGoods + 2
	for i := 0; i < numHidden; i++ {
		in := hiddenSize
		if i == 0 {
			in = numFeatures
		}
		n.hidden = append(n.hidden, newLinear(fmt.Sprintf("%s_hidden%d", name, i), in, hiddenSize, rng))
	}
	n.last = newLinear(name+"_last", hiddenSize, 1, rng)
	return n
}

func (n *ValueNet) name() string { return n.modName }

func (n *ValueNet) layers() []*linear {
	out := []*linear{n.flatten, n.jobFlatten}
	out = append(out, n.hidden...)
	return append(out, n.last)
}

func (n *ValueNet) fwd(c *graphCtx, offerEnc, jobEnc *G.Node, state *stateInputs) *G.Node {
	x := flattenStack(c, n.flatten, offerEnc, n.encoder.StackSize)
	xj := flattenStack(c, n.jobFlatten, jobEnc, n.jobEncoder.StackSize)
	parts := append([]*G.Node{x, xj}, state.nodes(c, n.modName)...)
	out := G.Must(G.Concat(1, parts...))
	out = residualTrunk(c, n.hidden, out)
	return c.apply(n.last, out)
}

// estimate runs the value head eagerly.
func (n *ValueNet) estimate(offerEnc, jobEnc *tensor.Dense, state *stateInputs) (float64, error) {
	c := newGraphCtx()
	out := n.fwd(c,
		c.constant("stack_enc", offerEnc),
		c.constant("job_stack_enc", jobEnc),
		state,
	)
	if err := c.run(); err != nil {
		return 0, fmt.Errorf("%s forward: %w", n.modName, err)
	}
	return out.Value().Data().([]float64)[0], nil
}
