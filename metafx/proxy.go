package metafx

import (
	"github.com/gomlx/metafx/fx"
	"github.com/gomlx/metafx/mtensor"
	"github.com/gomlx/metafx/ops"
)

// MetaProxy is a symbolic stand-in that optionally carries a meta tensor
// describing the value its node would produce. Metadata, once installed, is
// never mutated, only replaced by a newer install.
type MetaProxy struct {
	node    *fx.Node
	tracer  *fx.Tracer
	meta    any
	hasMeta bool
}

// Node implements fx.Proxy.
func (p *MetaProxy) Node() *fx.Node { return p.node }

// Tracer implements fx.Proxy.
func (p *MetaProxy) Tracer() *fx.Tracer { return p.tracer }

// InstallTensorMeta stores meta as this proxy's metadata and attaches it to
// the underlying node. Any value describing "what the real value would look
// like" is accepted.
func (p *MetaProxy) InstallTensorMeta(meta any) {
	p.meta = meta
	p.hasMeta = true
	p.node.Meta = meta
}

// TensorMeta returns the installed metadata, and whether any is installed.
func (p *MetaProxy) TensorMeta() (any, bool) {
	return p.meta, p.hasMeta
}

// Size returns the proxy's dimensions. With metadata installed the answer
// comes straight from the meta tensor, with no graph node created;
// otherwise a symbolic "size" method-call node is recorded and its proxy
// returned.
func (p *MetaProxy) Size(axis ...int) any {
	if p.hasMeta {
		if t, ok := p.meta.(*mtensor.Tensor); ok {
			return t.Size(axis...)
		}
	}
	args := []any{fx.Proxy(p)}
	if len(axis) > 0 {
		args = append(args, axis[0])
	}
	return p.tracer.CreateProxy(fx.KindCallMethod, "size", args, nil, "")
}

// Dim returns the proxy's rank, following the same metadata shortcut as
// Size.
func (p *MetaProxy) Dim() any {
	if p.hasMeta {
		if t, ok := p.meta.(*mtensor.Tensor); ok {
			return t.Dim()
		}
	}
	return p.tracer.CreateProxy(fx.KindCallMethod, "dim", []any{fx.Proxy(p)}, nil, "")
}

// Attr resolves an attribute of the proxied value. No graph node is created
// yet: most attribute accesses are immediately invoked as method calls, for
// which the access itself need not appear in the graph.
func (p *MetaProxy) Attr(name string) *MetaAttribute {
	return &MetaAttribute{root: p, attr: name, tracer: p.tracer}
}

// MetaAttribute is a lazy attribute proxy: an unresolved attribute access on
// a root proxy. It owns no graph node until first used as a value, at which
// point a getattr call_function node is created and cached.
type MetaAttribute struct {
	root   *MetaProxy
	attr   string
	tracer *fx.Tracer
	node   *fx.Node
}

// Node implements fx.Proxy. On first call it records the getattr node; the
// node is cached so repeated value uses share it.
func (a *MetaAttribute) Node() *fx.Node {
	if a.node == nil {
		p := a.tracer.CreateProxy(fx.KindCallFunction, ops.GetAttr, []any{fx.Proxy(a.root), a.attr}, nil, "")
		a.node = p.Node()
	}
	return a.node
}

// Tracer implements fx.Proxy.
func (a *MetaAttribute) Tracer() *fx.Tracer { return a.tracer }

// Call invokes the attribute as a method of the root proxy, recording a
// call_method node directly and bypassing the getattr node entirely. A
// trailing fx.Kwargs argument is split off as keyword arguments.
func (a *MetaAttribute) Call(args ...any) any {
	positional, kwargs := fx.SplitKwargs(args)
	callArgs := append([]any{fx.Proxy(a.root)}, positional...)
	return a.tracer.CreateProxy(fx.KindCallMethod, a.attr, callArgs, kwargs, "")
}

// ExtractMetadata converts a proxy into its metadata. Non-proxy values pass
// through unchanged, so constants mixed into symbolic arguments survive
// metadata replay. A proxy that is not a MetaProxy, or a MetaProxy without
// installed metadata, is a precondition failure reported as a recoverable
// inference error.
func ExtractMetadata(v any) any {
	switch p := v.(type) {
	case *MetaProxy:
		meta, ok := p.TensorMeta()
		if !ok {
			fx.Inferf("meta proxy for node %q has no associated meta", p.node.Name)
		}
		return meta
	case fx.Proxy:
		fx.Inferf("expected a MetaProxy, got %T", v)
		return nil // unreachable
	default:
		return v
	}
}
