package dsl

import (
	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/stages"
)

// Node is a stage placed in a graph.
type Node struct {
	ID    string
	Stage stages.Stage
	// MapOver names the input iterated item by item; empty for plain nodes.
	MapOver string
	// Static holds inputs fixed at assembly time.
	Static domain.Inputs
}

// Mapped reports whether the node fans out over one of its inputs.
func (n *Node) Mapped() bool { return n.MapOver != "" }

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    *Node
	builder *Builder
}

// Set fixes an input of the node to value.
func (n *NodeBuilder) Set(input string, value any) *NodeBuilder {
	if n.node.Static == nil {
		n.node.Static = make(domain.Inputs)
	}
	n.node.Static[input] = value
	return n
}

// From binds input of this node to output of node from.
func (n *NodeBuilder) From(from, output, input string) *NodeBuilder {
	n.builder.Connect(from, output, n.node.ID, input)
	return n
}

// Build returns the underlying node.
func (n *NodeBuilder) Build() *Node {
	return n.node
}
