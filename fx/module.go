package fx

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/types/tensors"
)

// Module is the host-model abstraction consumed by the tracer. During
// tracing the inputs are Proxy values; during metadata replay they are meta
// tensors or constants.
type Module interface {
	Forward(inputs ...any) any
}

// InputNamer is optionally implemented by root models to name their inputs,
// which become the placeholder names of the traced graph.
type InputNamer interface {
	InputNames() []string
}

// Container is a Module owning named children. Qualified module paths
// ("encoder.linear1") are resolved by walking Container children from the
// root model.
type Container interface {
	Module
	Children() map[string]Module
	AddChild(name string, child Module)
}

// Parameterized is implemented by modules owning learnable parameters.
type Parameterized interface {
	Parameters() []*tensors.Tensor
}

// Buffered is implemented by modules owning persistent (non-learnable)
// buffers.
type Buffered interface {
	Buffers() []*tensors.Tensor
}

// IsStateless reports whether m owns no parameters and no buffers.
func IsStateless(m Module) bool {
	if p, ok := m.(Parameterized); ok && len(p.Parameters()) > 0 {
		return false
	}
	if b, ok := m.(Buffered); ok && len(b.Buffers()) > 0 {
		return false
	}
	return true
}

// ChildSet is an embeddable implementation of the Container child registry.
// Its zero value is ready to use.
type ChildSet struct {
	children map[string]Module
}

// Children returns the registered children by name.
func (c *ChildSet) Children() map[string]Module {
	return c.children
}

// AddChild registers child under name. It panics if the name is taken.
func (c *ChildSet) AddChild(name string, child Module) {
	if child == nil {
		exceptions.Panicf("fx.ChildSet.AddChild: child %q must not be nil", name)
	}
	if _, found := c.children[name]; found {
		exceptions.Panicf("fx.ChildSet.AddChild: child %q already registered", name)
	}
	if c.children == nil {
		c.children = make(map[string]Module)
	}
	c.children[name] = child
}

// Call invokes module m. If any argument is symbolic the call is routed
// through the owning tracer, which records a call_module node instead of
// executing Forward; with only concrete arguments Forward runs directly.
func Call(m Module, args ...any) any {
	if p := FindProxy(args, nil); p != nil {
		return p.Tracer().CallModule(m, m.Forward, args)
	}
	return m.Forward(args...)
}
