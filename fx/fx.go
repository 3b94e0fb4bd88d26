// Package fx implements a small symbolic tracing system for computational
// models: driving a model's Forward with proxy inputs records every operation
// into a Graph of Nodes instead of executing it.
//
//   - Graph / Node: the symbolic program. Each Node is one operation
//     (placeholder, function call, method call, module call or output).
//   - Tracer: drives a trace. Its behavior can be customized through its
//     hook fields (CreateProxyFn, CallModuleFn, PathOfModuleFn, ProxyFactory),
//     which annotating tracers replace while still delegating to the
//     default Emit*/Resolve* implementations.
//   - Proxy: the symbolic stand-in for a runtime value handed to the model's
//     Forward during tracing.
//
// Tracing is single-threaded: a trace is a depth-first walk of the model's
// forward computation and a Tracer must not be shared by concurrent traces.
package fx

import (
	"fmt"
	"strings"
)

// NodeKind identifies the operation a Node performs.
type NodeKind string

const (
	// KindPlaceholder represents an input of the traced program. Target is
	// the input name.
	KindPlaceholder NodeKind = "placeholder"
	// KindCallFunction represents a call to an *OpFunc target.
	KindCallFunction NodeKind = "call_function"
	// KindCallMethod represents a method call on the first argument. Target
	// is the method name.
	KindCallMethod NodeKind = "call_method"
	// KindCallModule represents a sub-module invocation. Target is the
	// module's qualified path within the root model.
	KindCallModule NodeKind = "call_module"
	// KindOutput represents the traced program's result.
	KindOutput NodeKind = "output"
)

// Node is one operation of the traced symbolic program.
//
// Args and Kwargs reference other nodes as *Node values, possibly nested
// inside []any and Kwargs containers; everything else is a constant recorded
// verbatim.
type Node struct {
	Name   string
	Kind   NodeKind
	Target any // string (placeholder/method name or module path) or *OpFunc.
	Args   []any
	Kwargs Kwargs

	// Meta is an auxiliary metadata slot (e.g. a meta tensor describing the
	// value this node would produce). It is nil for nodes whose metadata
	// could not be inferred. The tracing system itself never reads it.
	Meta any
}

// TargetName returns a printable name for the node's target.
func (n *Node) TargetName() string {
	switch target := n.Target.(type) {
	case string:
		return target
	case *OpFunc:
		return target.Name
	default:
		return fmt.Sprintf("%v", target)
	}
}

// Graph is an ordered list of Nodes recorded by one trace.
type Graph struct {
	nodes      []*Node
	nameCounts map[string]int
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{nameCounts: make(map[string]int)}
}

// Nodes returns the graph's nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// NewNode appends a new node to the graph. If name is empty, a name is
// derived from the kind and target; either way the final name is made unique
// within the graph with a numeric suffix.
func (g *Graph) NewNode(kind NodeKind, target any, args []any, kwargs Kwargs, name string) *Node {
	n := &Node{Kind: kind, Target: target, Args: args, Kwargs: kwargs}
	if name == "" {
		name = defaultNodeName(kind, n.TargetName())
	}
	n.Name = g.uniqueName(sanitizeName(name))
	g.nodes = append(g.nodes, n)
	return n
}

// NodeByName returns the node with the given name, or nil.
func (g *Graph) NodeByName(name string) *Node {
	for _, n := range g.nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// NodesOfKind returns all nodes of the given kind, in insertion order.
func (g *Graph) NodesOfKind(kind NodeKind) []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (g *Graph) uniqueName(name string) string {
	count := g.nameCounts[name]
	g.nameCounts[name] = count + 1
	if count == 0 {
		return name
	}
	return fmt.Sprintf("%s_%d", name, count)
}

func defaultNodeName(kind NodeKind, targetName string) string {
	if targetName == "" {
		return string(kind)
	}
	return targetName
}

// sanitizeName maps an arbitrary target name (e.g. a dotted module path) to
// a valid node name.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
