package fx

import (
	"github.com/pkg/errors"
)

// Proxy is a symbolic stand-in for a runtime value during tracing. Node may
// be created lazily by some proxy variants (see the metafx package).
type Proxy interface {
	Node() *Node
	Tracer() *Tracer
}

// ForwardFn is a module's forward implementation.
type ForwardFn func(args ...any) any

// Tracer records a model's forward computation into a Graph.
//
// The four hook fields default to the Tracer's own Emit*/Resolve*/NewProxy
// methods; annotating tracers replace them to intercept node creation,
// module calls, module-path resolution and proxy construction, delegating to
// the defaults for the base behavior.
type Tracer struct {
	// CreateProxyFn intercepts every graph-node-creation request.
	// Defaults to EmitProxy.
	CreateProxyFn func(kind NodeKind, target any, args []any, kwargs Kwargs, name string) Proxy
	// CallModuleFn intercepts sub-module invocations made through Call.
	// Defaults to EmitCallModule.
	CallModuleFn func(m Module, forward ForwardFn, args []any) any
	// PathOfModuleFn resolves a module's qualified path within the root
	// model. Defaults to ResolveModulePath.
	PathOfModuleFn func(m Module) (string, error)
	// ProxyFactory wraps a freshly created node into a Proxy.
	// Defaults to NewProxy.
	ProxyFactory func(n *Node) Proxy

	graph *Graph
	root  Module
}

// NewTracer returns a Tracer with all hooks set to the default behavior.
func NewTracer() *Tracer {
	t := &Tracer{}
	t.CreateProxyFn = t.EmitProxy
	t.CallModuleFn = t.EmitCallModule
	t.PathOfModuleFn = t.ResolveModulePath
	t.ProxyFactory = t.NewProxy
	return t
}

// Graph returns the graph of the current (or last) trace.
func (t *Tracer) Graph() *Graph { return t.graph }

// Root returns the root model of the current trace, or nil.
func (t *Tracer) Root() Module { return t.root }

// CreateProxy dispatches to the CreateProxyFn hook.
func (t *Tracer) CreateProxy(kind NodeKind, target any, args []any, kwargs Kwargs, name string) Proxy {
	return t.CreateProxyFn(kind, target, args, kwargs, name)
}

// CallModule dispatches to the CallModuleFn hook.
func (t *Tracer) CallModule(m Module, forward ForwardFn, args []any) any {
	return t.CallModuleFn(m, forward, args)
}

// PathOfModule dispatches to the PathOfModuleFn hook.
func (t *Tracer) PathOfModule(m Module) (string, error) {
	return t.PathOfModuleFn(m)
}

// EmitProxy is the default CreateProxyFn: it records a node with the given
// kind/target/args/kwargs -- replacing proxies among the arguments by their
// nodes -- and wraps it with the ProxyFactory.
func (t *Tracer) EmitProxy(kind NodeKind, target any, args []any, kwargs Kwargs, name string) Proxy {
	if t.graph == nil {
		t.graph = NewGraph()
	}
	nodeArgs := MapAggregate(args, unwrapProxy).([]any)
	var nodeKwargs Kwargs
	if kwargs != nil {
		nodeKwargs = MapAggregate(kwargs, unwrapProxy).(Kwargs)
	}
	n := t.graph.NewNode(kind, target, nodeArgs, nodeKwargs, name)
	return t.ProxyFactory(n)
}

// unwrapProxy converts proxy arguments to node references. For lazy
// attribute proxies this is the "value use" that forces node creation.
func unwrapProxy(v any) any {
	if p, ok := v.(Proxy); ok {
		return p.Node()
	}
	return v
}

// NewProxy is the default ProxyFactory, returning a plain bound-node proxy.
func (t *Tracer) NewProxy(n *Node) Proxy {
	return &nodeProxy{node: n, tracer: t}
}

type nodeProxy struct {
	node   *Node
	tracer *Tracer
}

func (p *nodeProxy) Node() *Node     { return p.node }
func (p *nodeProxy) Tracer() *Tracer { return p.tracer }

// EmitCallModule is the default CallModuleFn: it resolves the module's path
// and records a call_module node. All modules are treated as leaves; the
// tracer never inlines a sub-module's forward into the graph.
//
// An unresolvable path is a caller error and panics.
func (t *Tracer) EmitCallModule(m Module, forward ForwardFn, args []any) any {
	path, err := t.PathOfModule(m)
	if err != nil {
		panic(errors.WithMessage(err, "fx: cannot record call_module node"))
	}
	return t.CreateProxy(KindCallModule, path, args, nil, "")
}

// ResolveModulePath is the default PathOfModuleFn: it walks the root model's
// Container children looking for m by identity and returns its dotted path.
func (t *Tracer) ResolveModulePath(m Module) (string, error) {
	if t.root == nil {
		return "", errors.Errorf("fx: no active trace to resolve module %T in", m)
	}
	if m == t.root {
		return "", nil
	}
	if path, found := findModulePath(t.root, m, ""); found {
		return path, nil
	}
	return "", errors.Errorf("fx: module %T is not a registered child of the root model", m)
}

func findModulePath(parent, target Module, prefix string) (string, bool) {
	container, ok := parent.(Container)
	if !ok {
		return "", false
	}
	for name, child := range container.Children() {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if child == target {
			return path, true
		}
		if found, ok := findModulePath(child, target, path); ok {
			return found, true
		}
	}
	return "", false
}

// Trace records root's forward computation into a fresh Graph.
//
// One placeholder node is created per input name, except names bound in
// concreteArgs, whose values are passed to Forward directly and do not
// appear in the graph. The value returned by Forward becomes the graph's
// output node.
func (t *Tracer) Trace(root Module, inputNames []string, concreteArgs map[string]any) *Graph {
	t.root = root
	t.graph = NewGraph()
	inputs := make([]any, 0, len(inputNames))
	for _, name := range inputNames {
		if value, bound := concreteArgs[name]; bound {
			inputs = append(inputs, value)
			continue
		}
		inputs = append(inputs, t.CreateProxy(KindPlaceholder, name, nil, nil, name))
	}
	out := root.Forward(inputs...)
	// The output node does not go through the CreateProxyFn hook: it
	// produces no value of its own to annotate.
	outArgs := MapAggregate([]any{out}, unwrapProxy).([]any)
	t.graph.NewNode(KindOutput, "output", outArgs, nil, "output")
	return t.graph
}
