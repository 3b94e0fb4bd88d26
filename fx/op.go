package fx

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// OpFunc is a callable operation target: the unit that appears as the Target
// of call_function nodes and as an entry of a FuncRegistry.
//
// Fn receives already-resolved (non-symbolic) arguments: meta tensors,
// concrete tensors or plain constants. It panics (gomlx exceptions style) on
// invalid arguments.
type OpFunc struct {
	Name string
	Fn   func(args []any, kwargs Kwargs) any
}

// String implements fmt.Stringer.
func (op *OpFunc) String() string { return op.Name }

// Dispatch runs op symbolically when any argument is a Proxy -- creating a
// call_function node through the proxy's tracer -- and eagerly otherwise.
func Dispatch(op *OpFunc, args []any, kwargs Kwargs) any {
	if p := FindProxy(args, kwargs); p != nil {
		return p.Tracer().CreateProxy(KindCallFunction, op, args, kwargs, "")
	}
	return op.Fn(args, kwargs)
}

// InferenceError marks a recoverable failure while computing metadata for a
// node: annotating tracers catch it at the node level and continue tracing
// with that node left un-annotated. Every other panic escaping a trace is a
// caller error and propagates.
type InferenceError struct {
	Reason error
}

// Error implements the error interface.
func (e *InferenceError) Error() string { return e.Reason.Error() }

// Inferf panics with an *InferenceError.
func Inferf(format string, args ...any) {
	panic(&InferenceError{Reason: errors.Errorf(format, args...)})
}

// FuncRegistry is a named registry of OpFuncs. It models the "global
// namespace" of factory functions a traced program calls into, as an explicit
// capability that can be patched for the duration of one trace and restored
// afterward (see Apply).
//
// A FuncRegistry is not safe for concurrent use: patching is process-visible
// state and callers must serialize traces that share a registry.
type FuncRegistry struct {
	fns map[string]*OpFunc
}

// NewFuncRegistry returns an empty registry.
func NewFuncRegistry() *FuncRegistry {
	return &FuncRegistry{fns: make(map[string]*OpFunc)}
}

// Register adds op under op.Name. It panics if the name is already taken.
func (r *FuncRegistry) Register(op *OpFunc) {
	if op == nil || op.Name == "" {
		exceptions.Panicf("fx.FuncRegistry.Register: op must be non-nil and named")
	}
	if _, found := r.fns[op.Name]; found {
		exceptions.Panicf("fx.FuncRegistry.Register: %q is already registered", op.Name)
	}
	r.fns[op.Name] = op
}

// Get returns the OpFunc registered under name, or nil.
func (r *FuncRegistry) Get(name string) *OpFunc {
	return r.fns[name]
}

// Call invokes the OpFunc registered under name. It panics if the name is
// unknown.
func (r *FuncRegistry) Call(name string, args []any, kwargs Kwargs) any {
	op := r.fns[name]
	if op == nil {
		exceptions.Panicf("fx.FuncRegistry.Call: no function registered under %q", name)
	}
	return op.Fn(args, kwargs)
}

// Patch is a scoped set of registry replacements. Restore must be called
// when the scope ends (typically with defer), whether the traced work
// succeeded or panicked.
type Patch struct {
	registry *FuncRegistry
	saved    map[string]*OpFunc
}

// Apply replaces the given entries and returns a Patch that undoes the
// replacement. It panics if any name is not registered.
func (r *FuncRegistry) Apply(replacements map[string]*OpFunc) *Patch {
	saved := make(map[string]*OpFunc, len(replacements))
	for name := range replacements {
		orig, found := r.fns[name]
		if !found {
			exceptions.Panicf("fx.FuncRegistry.Apply: no function registered under %q", name)
		}
		saved[name] = orig
	}
	for name, repl := range replacements {
		r.fns[name] = repl
	}
	return &Patch{registry: r, saved: saved}
}

// Restore puts every patched entry back to its pre-Apply value.
func (p *Patch) Restore() {
	for name, orig := range p.saved {
		p.registry.fns[name] = orig
	}
}
