package dsl

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/schema"
	"github.com/aretw0/fetpipe/pkg/stages"
)

// Pseudo-nodes framing every pipeline.
const (
	InputNode  = "inputnode"
	OutputNode = "outputnode"
)

var (
	ErrDuplicateNode = errors.New("duplicate node")
	ErrUnknownNode   = errors.New("unknown node")
	ErrInputBound    = errors.New("input already bound")
	ErrUnboundInput  = errors.New("required input not bound")
	ErrCycle         = errors.New("graph contains a cycle")
)

// Edge binds an output of one node to an input of another.
type Edge struct {
	From   string
	Output string
	To     string
	Input  string
}

// Graph is a validated pipeline, ready for execution.
type Graph struct {
	Name    string
	Inputs  []string
	Outputs []string
	Nodes   map[string]*Node
	Edges   []Edge
	// Order lists the stage nodes in a topological order.
	Order []string
}

// Node returns the node called id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.Nodes[id]
	return n, ok
}

// Incoming returns the edges ending at id.
func (g *Graph) Incoming(id string) []Edge {
	var in []Edge
	for _, e := range g.Edges {
		if e.To == id {
			in = append(in, e)
		}
	}
	return in
}

// Downstream returns the nodes fed directly by id, sorted.
func (g *Graph) Downstream(id string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range g.Edges {
		if e.From == id && e.To != OutputNode && !seen[e.To] {
			seen[e.To] = true
			out = append(out, e.To)
		}
	}
	sort.Strings(out)
	return out
}

// Builder manages the graph construction.
type Builder struct {
	name    string
	inputs  []string
	outputs []string
	nodes   map[string]*NodeBuilder
	order   []string
	edges   []Edge
	errs    []error
}

// New creates a new graph builder.
func New(name string) *Builder {
	return &Builder{
		name:  name,
		nodes: make(map[string]*NodeBuilder),
	}
}

// Input declares pipeline inputs.
func (b *Builder) Input(fields ...string) *Builder {
	b.inputs = append(b.inputs, fields...)
	return b
}

// Output declares pipeline outputs.
func (b *Builder) Output(fields ...string) *Builder {
	b.outputs = append(b.outputs, fields...)
	return b
}

// Add places a stage in the graph.
func (b *Builder) Add(id string, stage stages.Stage) *NodeBuilder {
	if id == InputNode || id == OutputNode {
		b.errs = append(b.errs, fmt.Errorf("%w: %q is reserved", ErrDuplicateNode, id))
	} else if _, ok := b.nodes[id]; ok {
		b.errs = append(b.errs, fmt.Errorf("%w: %q", ErrDuplicateNode, id))
	}
	nb := &NodeBuilder{
		node:    &Node{ID: id, Stage: stage},
		builder: b,
	}
	if _, ok := b.nodes[id]; !ok {
		b.order = append(b.order, id)
		b.nodes[id] = nb
	}
	return nb
}

// Map places a stage that runs once per element of its iterfield input.
func (b *Builder) Map(id string, stage stages.Stage, iterfield string) *NodeBuilder {
	nb := b.Add(id, stage)
	nb.node.MapOver = iterfield
	return nb
}

// Connect binds output of node from to input of node to.
func (b *Builder) Connect(from, output, to, input string) *Builder {
	b.edges = append(b.edges, Edge{From: from, Output: output, To: to, Input: input})
	return b
}

// Build validates the graph and freezes it.
func (b *Builder) Build() (*Graph, error) {
	errs := append([]error{}, b.errs...)

	for _, id := range b.order {
		n := b.nodes[id].node
		if n.Stage == nil {
			errs = append(errs, fmt.Errorf("node %q has no stage", id))
			continue
		}
		ports := n.Stage.Ports()
		if n.Mapped() && !ports.HasInput(n.MapOver) {
			errs = append(errs, unknownInput(id, n.MapOver, ports))
		}
		for key := range n.Static {
			if !ports.HasInput(key) {
				errs = append(errs, unknownInput(id, key, ports))
			}
		}
	}

	bound := make(map[string]bool)
	for _, e := range b.edges {
		if err := b.checkSource(e); err != nil {
			errs = append(errs, err)
		}
		if err := b.checkTarget(e); err != nil {
			errs = append(errs, err)
		}
		key := e.To + "." + e.Input
		if bound[key] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrInputBound, key))
		}
		bound[key] = true
	}

	for _, id := range b.order {
		n := b.nodes[id].node
		if n.Stage == nil {
			continue
		}
		inputs := n.Stage.Ports().Inputs
		for _, field := range inputs.Fields() {
			if _, optional := inputs[field].(*schema.OptionalType); optional {
				continue
			}
			if _, static := n.Static[field]; static || bound[id+"."+field] {
				continue
			}
			errs = append(errs, fmt.Errorf("%w: %s.%s", ErrUnboundInput, id, field))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	g := &Graph{
		Name:    b.name,
		Inputs:  append([]string{}, b.inputs...),
		Outputs: append([]string{}, b.outputs...),
		Nodes:   make(map[string]*Node, len(b.nodes)),
		Edges:   append([]Edge{}, b.edges...),
	}
	for id, nb := range b.nodes {
		g.Nodes[id] = nb.node
	}

	order, err := topoSort(b.order, g.Edges)
	if err != nil {
		return nil, err
	}
	g.Order = order
	return g, nil
}

func (b *Builder) checkSource(e Edge) error {
	switch e.From {
	case InputNode:
		if !contains(b.inputs, e.Output) {
			return &domain.UnknownPortError{Node: InputNode, Port: e.Output, Direction: domain.PortOut, Known: b.inputs}
		}
		return nil
	case OutputNode:
		return fmt.Errorf("%s cannot feed other nodes", OutputNode)
	}
	nb, ok := b.nodes[e.From]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, e.From)
	}
	if nb.node.Stage == nil {
		return nil
	}
	ports := nb.node.Stage.Ports()
	if !ports.HasOutput(e.Output) {
		return &domain.UnknownPortError{Node: e.From, Port: e.Output, Direction: domain.PortOut, Known: ports.Outputs}
	}
	return nil
}

func (b *Builder) checkTarget(e Edge) error {
	switch e.To {
	case OutputNode:
		if !contains(b.outputs, e.Input) {
			return &domain.UnknownPortError{Node: OutputNode, Port: e.Input, Direction: domain.PortIn, Known: b.outputs}
		}
		return nil
	case InputNode:
		return fmt.Errorf("%s cannot be fed by other nodes", InputNode)
	}
	nb, ok := b.nodes[e.To]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, e.To)
	}
	if nb.node.Stage == nil {
		return nil
	}
	ports := nb.node.Stage.Ports()
	if !ports.HasInput(e.Input) {
		return unknownInput(e.To, e.Input, ports)
	}
	return nil
}

func unknownInput(node, port string, ports stages.Ports) error {
	return &domain.UnknownPortError{Node: node, Port: port, Direction: domain.PortIn, Known: ports.Inputs.Fields()}
}

// topoSort orders nodes with Kahn's algorithm, keeping declaration order among ready nodes.
func topoSort(nodes []string, edges []Edge) ([]string, error) {
	indegree := make(map[string]int, len(nodes))
	next := make(map[string][]string)
	seen := make(map[[2]string]bool)
	for _, id := range nodes {
		indegree[id] = 0
	}
	for _, e := range edges {
		if e.From == InputNode || e.To == OutputNode {
			continue
		}
		pair := [2]string{e.From, e.To}
		if seen[pair] {
			continue
		}
		seen[pair] = true
		indegree[e.To]++
		next[e.From] = append(next[e.From], e.To)
	}

	var ready, order []string
	for _, id := range nodes {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, to := range next[id] {
			indegree[to]--
			if indegree[to] == 0 {
				ready = append(ready, to)
			}
		}
	}
	if len(order) != len(nodes) {
		return nil, ErrCycle
	}
	return order, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
