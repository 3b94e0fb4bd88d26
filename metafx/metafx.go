// Package metafx extends the fx symbolic tracer so that, while tracing, it
// also propagates meta tensors (shape/dtype descriptors, see the mtensor
// package) through the traced graph without running real computation.
//
//   - Trace / MetaTracer.Trace: trace a model given meta tensors for its
//     inputs; every node whose metadata could be inferred carries it in
//     Node.Meta.
//   - MetaProxy / MetaAttribute: the proxy variants that carry metadata and
//     defer attribute-access nodes until first value use.
//
// Metadata is best effort: a node whose metadata cannot be inferred is left
// un-annotated with a warning, and tracing continues -- the symbolic graph
// is authoritative. Caller errors (an unresolvable stateful sub-module, a
// nil meta-argument mapping) abort the trace.
//
// For the duration of a trace the factory functions of the ops registry are
// patched so that calls with symbolic arguments are redirected into the
// graph; the patch is restored when the trace ends, whether it succeeded or
// panicked. Because the registry patch is process-visible state, concurrent
// traces sharing a registry must be serialized by the caller.
package metafx

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/types"
	"github.com/gomlx/metafx/fx"
	"github.com/gomlx/metafx/mtensor"
	"github.com/gomlx/metafx/ops"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// MetaArgs maps placeholder names to the meta tensors bound to them at
// trace start. It is read-only during tracing.
type MetaArgs map[string]any

// MetaTracer traces a model while propagating meta tensors through the
// graph. A MetaTracer is good for any number of traces, one at a time.
type MetaTracer struct {
	*fx.Tracer

	registry                 *fx.FuncRegistry
	allowInsertStatelessMods bool

	// Per-trace scratch state.
	metaArgs    MetaArgs
	origFns     types.Set[*fx.OpFunc]
	origForward fx.ForwardFn
}

// NewMetaTracer returns a MetaTracer patching the default ops.Registry,
// with stateless sub-module insertion enabled.
func NewMetaTracer() *MetaTracer {
	mt := &MetaTracer{
		Tracer:                   fx.NewTracer(),
		registry:                 ops.Registry,
		allowInsertStatelessMods: true,
	}
	mt.Tracer.CreateProxyFn = mt.createProxy
	mt.Tracer.CallModuleFn = mt.callModule
	mt.Tracer.PathOfModuleFn = mt.pathOfModule
	mt.Tracer.ProxyFactory = mt.newProxy
	return mt
}

// WithRegistry sets the function registry whose factory functions are
// patched during traces. It returns the tracer for chaining.
func (mt *MetaTracer) WithRegistry(registry *fx.FuncRegistry) *MetaTracer {
	mt.registry = registry
	return mt
}

// WithAllowInsertStatelessMods controls whether sub-modules that cannot be
// resolved to a path but own no parameters and no buffers are automatically
// registered as children of the root model. Default true. It returns the
// tracer for chaining.
func (mt *MetaTracer) WithAllowInsertStatelessMods(allow bool) *MetaTracer {
	mt.allowInsertStatelessMods = allow
	return mt
}

// Trace traces root's forward computation and returns the graph, with meta
// tensors attached to every node whose metadata could be inferred.
//
// metaArgs binds placeholder names to the meta tensors describing the
// model's inputs; it must be non-nil. concreteArgs optionally binds input
// names to concrete values, which are passed to Forward directly and create
// no placeholder. Placeholder order follows root's InputNames if it
// implements fx.InputNamer, otherwise the sorted union of the metaArgs and
// concreteArgs names.
//
// It panics (gomlx exceptions style) on caller errors; see Trace for an
// error-returning wrapper.
func (mt *MetaTracer) Trace(root fx.Module, metaArgs MetaArgs, concreteArgs map[string]any) *fx.Graph {
	if metaArgs == nil {
		exceptions.Panicf("metafx: metaArgs must be a non-nil mapping from placeholder name to meta tensor")
	}
	mt.metaArgs = metaArgs

	replacements := make(map[string]*fx.OpFunc)
	mt.origFns = types.MakeSet[*fx.OpFunc]()
	for _, name := range ops.ConstructorNames() {
		target := mt.registry.Get(name)
		if target == nil {
			exceptions.Panicf("metafx: function %q is not registered; cannot patch it for tracing", name)
		}
		wrapper, orig := GenConstructorWrapper(target)
		replacements[name] = wrapper
		mt.origFns.Insert(orig)
	}
	patch := mt.registry.Apply(replacements)
	defer patch.Restore()

	return mt.Tracer.Trace(root, inputNames(root, metaArgs, concreteArgs), concreteArgs)
}

// Trace is the package entry point: it traces root with a fresh MetaTracer
// and converts trace-aborting panics into an error.
func Trace(root fx.Module, metaArgs MetaArgs, concreteArgs map[string]any) (g *fx.Graph, err error) {
	err = exceptions.TryCatch[error](func() {
		g = NewMetaTracer().Trace(root, metaArgs, concreteArgs)
	})
	if err != nil {
		return nil, errors.WithMessage(err, "metafx.Trace")
	}
	return g, nil
}

func inputNames(root fx.Module, metaArgs MetaArgs, concreteArgs map[string]any) []string {
	if namer, ok := root.(fx.InputNamer); ok {
		return namer.InputNames()
	}
	nameSet := types.MakeSet[string]()
	for name := range metaArgs {
		nameSet.Insert(name)
	}
	for name := range concreteArgs {
		nameSet.Insert(name)
	}
	return slices.Sorted(maps.Keys(nameSet))
}

// newProxy is the ProxyFactory hook: every traced node is wrapped by a
// MetaProxy.
func (mt *MetaTracer) newProxy(n *fx.Node) fx.Proxy {
	return &MetaProxy{node: n, tracer: mt.Tracer}
}

// createProxy is the CreateProxyFn hook, invoked once per
// graph-node-creation request. It builds the symbolic node exactly as the
// base tracer would, then attempts a metadata-only replay of the operation
// on the extracted metadata of its arguments, attaching the result to the
// new proxy. Replay failures of the inference kind are demoted to warnings.
func (mt *MetaTracer) createProxy(kind fx.NodeKind, target any, args []any, kwargs fx.Kwargs, name string) fx.Proxy {
	rv := mt.Tracer.EmitProxy(kind, target, args, kwargs, name)

	if kind == fx.KindPlaceholder {
		if placeholderName, ok := target.(string); ok {
			if meta, found := mt.metaArgs[placeholderName]; found {
				rv.(*MetaProxy).InstallTensorMeta(meta)
				return rv
			}
		}
	}

	if op, ok := target.(*fx.OpFunc); ok && mt.origFns != nil && mt.origFns.Has(op) {
		// Replay of a patched factory must run on the meta device rather
		// than attempt a real allocation. The node above was already
		// recorded with the caller's device.
		kwargs = maps.Clone(kwargs)
		if kwargs == nil {
			kwargs = fx.Kwargs{}
		}
		kwargs["device"] = mtensor.Meta
	}

	caught := exceptions.TryCatch[*fx.InferenceError](func() {
		argsMetas := fx.MapAggregate(args, ExtractMetadata).([]any)
		var kwargsMetas fx.Kwargs
		if kwargs != nil {
			kwargsMetas = fx.MapAggregate(kwargs, ExtractMetadata).(fx.Kwargs)
		}

		var metaOut any
		switch kind {
		case fx.KindCallFunction:
			op, ok := target.(*fx.OpFunc)
			if !ok {
				fx.Inferf("call_function target %v (%T) is not callable", target, target)
			}
			metaOut = op.Fn(argsMetas, kwargsMetas)
		case fx.KindCallMethod:
			methodName, ok := target.(string)
			if !ok || len(argsMetas) == 0 {
				fx.Inferf("malformed call_method node %v", target)
			}
			out, err := mtensor.CallMethod(argsMetas[0], methodName, argsMetas[1:], kwargsMetas)
			if err != nil {
				fx.Inferf("%v", err)
			}
			metaOut = out
		case fx.KindCallModule:
			if mt.origForward == nil {
				fx.Inferf("no recorded forward implementation for call_module target %v", target)
			}
			metaOut = mt.origForward(argsMetas...)
		case fx.KindPlaceholder:
			// Unbound input: there is no metadata to propagate.
			return
		default:
			fx.Inferf("unsupported node kind %q", kind)
		}

		if _, composite := metaOut.([]any); composite {
			fx.Inferf("composite outputs are not supported")
		}
		mp, ok := rv.(*MetaProxy)
		if !ok {
			fx.Inferf("expected a single MetaProxy result, got %T", rv)
		}
		mp.InstallTensorMeta(metaOut)
	})
	if caught != nil {
		klog.Warningf("metafx: could not compute metadata for target %v: %v", target, caught)
	}
	return rv
}

// callModule is the CallModuleFn hook: it records the sub-module's original
// forward implementation so the call_module replay branch of createProxy
// can run real computation semantics on meta inputs, then delegates to the
// base tracer.
func (mt *MetaTracer) callModule(m fx.Module, forward fx.ForwardFn, args []any) any {
	mt.origForward = forward
	return mt.Tracer.EmitCallModule(m, forward, args)
}

// pathOfModule is the PathOfModuleFn hook. Modules the base tracer cannot
// resolve are auto-registered as children of the root model when they own no
// state; stateful modules must be explicitly wired by the caller, so their
// resolution failure propagates.
func (mt *MetaTracer) pathOfModule(m fx.Module) (string, error) {
	path, err := mt.Tracer.ResolveModulePath(m)
	if err == nil {
		return path, nil
	}
	if mt.allowInsertStatelessMods && fx.IsStateless(m) {
		return mt.insertModuleAsSubmodule(m)
	}
	return "", err
}

// insertModuleAsSubmodule registers m as a uniquely named child of the root
// model: the lowercase type name suffixed with the first unused index.
func (mt *MetaTracer) insertModuleAsSubmodule(m fx.Module) (string, error) {
	root, ok := mt.Root().(fx.Container)
	if !ok {
		return "", errors.Errorf("metafx: root model %T cannot register the ad hoc sub-module %T", mt.Root(), m)
	}
	base := strings.ToLower(typeName(m))
	children := root.Children()
	var path string
	for idx := 0; ; idx++ {
		candidate := fmt.Sprintf("%s_%d", base, idx)
		if _, taken := children[candidate]; !taken {
			path = candidate
			break
		}
	}
	root.AddChild(path, m)
	klog.V(2).Infof("metafx: inserted stateless module %T as %q", m, path)
	return path, nil
}

func typeName(m fx.Module) string {
	t := reflect.TypeOf(m)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
