// Package neural implements the decision-net family: a shared offer encoder
// feeding purchase, labor-search, consumption, production, offer-posting and
// value heads, the stateful handler that bridges agents to the nets, and the
// advantage actor-critic trainer that updates them between episodes.
//
// Weights live in plain tensors shared across per-episode expression graphs;
// decision-time forwards run eagerly on tape machines, and the trainer
// rebuilds each head's forward symbolically from the recorded decisions to
// evaluate the log-probability of the sampled actions (the standard
// gorgonia policy-gradient pattern).
package neural

import (
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// linear is a dense layer whose weights are shared across graphs.
type linear struct {
	name string
	w    *tensor.Dense // [in, out]
	b    *tensor.Dense // [out]
}

// newLinear builds a layer with xavier-normal weights and 0.01 biases.
func newLinear(name string, in, out int, rng *rand.Rand) *linear {
	std := math.Sqrt(2.0 / float64(in+out))
	wBacking := make([]float64, in*out)
	for i := range wBacking {
		wBacking[i] = rng.NormFloat64() * std
	}
	bBacking := make([]float64, out)
	for i := range bBacking {
		bBacking[i] = 0.01
	}
	return &linear{
		name: name,
		w:    tensor.New(tensor.WithShape(in, out), tensor.WithBacking(wBacking)),
		b:    tensor.New(tensor.WithShape(out), tensor.WithBacking(bBacking)),
	}
}

func (l *linear) in() int  { return l.w.Shape()[0] }
func (l *linear) out() int { return l.w.Shape()[1] }

// graphCtx caches the weight nodes of each layer on one expression graph so
// that every use of a layer shares a single learnable node, and keeps the
// learnables in registration order for the solver.
type graphCtx struct {
	g          *G.ExprGraph
	nodes      map[*linear][2]*G.Node
	learnables G.Nodes
}

func newGraphCtx() *graphCtx {
	return &graphCtx{
		g:     G.NewGraph(),
		nodes: make(map[*linear][2]*G.Node),
	}
}

// register pins a module's layers onto the graph in a fixed order.
func (c *graphCtx) register(ms ...module) {
	for _, m := range ms {
		for _, l := range m.layers() {
			c.layerNodes(l)
		}
	}
}

func (c *graphCtx) layerNodes(l *linear) (w, b *G.Node) {
	if cached, ok := c.nodes[l]; ok {
		return cached[0], cached[1]
	}
	w = G.NewMatrix(c.g, tensor.Float64,
		G.WithName(l.name+"_w"),
		G.WithShape(l.in(), l.out()),
		G.WithValue(l.w),
	)
	b = G.NewVector(c.g, tensor.Float64,
		G.WithName(l.name+"_b"),
		G.WithShape(l.out()),
		G.WithValue(l.b),
	)
	c.nodes[l] = [2]*G.Node{w, b}
	c.learnables = append(c.learnables, w, b)
	return w, b
}

// apply computes x·w + b for x of shape [n, in].
func (c *graphCtx) apply(l *linear, x *G.Node) *G.Node {
	w, b := c.layerNodes(l)
	xw := G.Must(G.Mul(x, w))
	bRow := G.Must(G.Reshape(b, tensor.Shape{1, l.out()}))
	return G.Must(G.BroadcastAdd(xw, bRow, nil, []byte{0}))
}

// applyTanh is apply followed by tanh.
func (c *graphCtx) applyTanh(l *linear, x *G.Node) *G.Node {
	return G.Must(G.Tanh(c.apply(l, x)))
}

// constant injects a tensor into the graph as a non-learnable leaf.
func (c *graphCtx) constant(name string, t *tensor.Dense) *G.Node {
	return G.NodeFromAny(c.g, t, G.WithName(name))
}

// scalar injects a float constant into the graph.
func (c *graphCtx) scalar(v float64) *G.Node {
	return G.NodeFromAny(c.g, v)
}

// run executes the graph on a tape machine.
func (c *graphCtx) run() error {
	vm := G.NewTapeMachine(c.g)
	defer vm.Close()
	return vm.RunAll()
}

// matrix builds a [rows, len/rows] tensor from a flat backing copy.
func matrix(rows, cols int, backing []float64) *tensor.Dense {
	data := make([]float64, len(backing))
	copy(data, backing)
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(data))
}

// rowVector builds a [1, n] tensor.
func rowVector(backing []float64) *tensor.Dense {
	return matrix(1, len(backing), backing)
}

// vector builds an [n] tensor from a backing copy.
func vector(backing []float64) *tensor.Dense {
	data := make([]float64, len(backing))
	copy(data, backing)
	return tensor.New(tensor.WithShape(len(backing)), tensor.WithBacking(data))
}

// module is a named group of layers that can be checkpointed as a unit.
type module interface {
	name() string
	layers() []*linear
}

// saveModule writes a module's weights to dir/<name>.gob.
func saveModule(m module, dir string) error {
	path := filepath.Join(dir, m.name()+".gob")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save %s: %w", m.name(), err)
	}
	defer f.Close()
	enc := gob.NewEncoder(f)
	for _, l := range m.layers() {
		if err := enc.Encode(l.w); err != nil {
			return fmt.Errorf("save %s: %w", m.name(), err)
		}
		if err := enc.Encode(l.b); err != nil {
			return fmt.Errorf("save %s: %w", m.name(), err)
		}
	}
	return nil
}

// loadModule restores a module's weights from dir/<name>.gob in place.
func loadModule(m module, dir string) error {
	path := filepath.Join(dir, m.name()+".gob")
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", m.name(), err)
	}
	defer f.Close()
	dec := gob.NewDecoder(f)
	for _, l := range m.layers() {
		var w, b tensor.Dense
		if err := dec.Decode(&w); err != nil {
			return fmt.Errorf("load %s: %w", m.name(), err)
		}
		if err := dec.Decode(&b); err != nil {
			return fmt.Errorf("load %s: %w", m.name(), err)
		}
		if !w.Shape().Eq(l.w.Shape()) || !b.Shape().Eq(l.b.Shape()) {
			return fmt.Errorf("load %s: checkpoint shape mismatch on %s", m.name(), l.name)
		}
		copy(l.w.Data().([]float64), w.Data().([]float64))
		copy(l.b.Data().([]float64), b.Data().([]float64))
	}
	return nil
}
