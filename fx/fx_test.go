package fx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphNodeNaming(t *testing.T) {
	g := NewGraph()
	op := &OpFunc{Name: "add", Fn: func(args []any, _ Kwargs) any { return nil }}

	n0 := g.NewNode(KindCallFunction, op, nil, nil, "")
	n1 := g.NewNode(KindCallFunction, op, nil, nil, "")
	n2 := g.NewNode(KindCallMethod, "size", nil, nil, "")
	require.Equal(t, "add", n0.Name)
	require.Equal(t, "add_1", n1.Name)
	require.Equal(t, "size", n2.Name)

	// Module paths are sanitized.
	n3 := g.NewNode(KindCallModule, "encoder.linear1", nil, nil, "")
	require.Equal(t, "encoder_linear1", n3.Name)

	require.Equal(t, n1, g.NodeByName("add_1"))
	require.Nil(t, g.NodeByName("mul"))
	require.Len(t, g.NodesOfKind(KindCallFunction), 2)
}

func TestMapAggregate(t *testing.T) {
	double := func(v any) any {
		if n, ok := v.(int); ok {
			return 2 * n
		}
		return v
	}
	in := []any{1, "a", []any{2, Kwargs{"k": 3}}, map[string]any{"m": 4}}
	out := MapAggregate(in, double).([]any)

	require.Equal(t, 2, out[0])
	require.Equal(t, "a", out[1])
	nested := out[2].([]any)
	require.Equal(t, 4, nested[0])
	require.Equal(t, 6, nested[1].(Kwargs)["k"])
	require.Equal(t, 8, out[3].(map[string]any)["m"])

	// The original containers are untouched.
	require.Equal(t, 1, in[0])
	require.Equal(t, 3, in[2].([]any)[1].(Kwargs)["k"])
}

func TestSplitKwargs(t *testing.T) {
	args, kwargs := SplitKwargs([]any{1, 2, Kwargs{"device": "cpu"}})
	require.Equal(t, []any{1, 2}, args)
	require.Equal(t, Kwargs{"device": "cpu"}, kwargs)

	args, kwargs = SplitKwargs([]any{1, 2})
	require.Equal(t, []any{1, 2}, args)
	require.Nil(t, kwargs)

	args, kwargs = SplitKwargs(nil)
	require.Empty(t, args)
	require.Nil(t, kwargs)
}

func TestFuncRegistryApplyRestore(t *testing.T) {
	r := NewFuncRegistry()
	orig := &OpFunc{Name: "zeros", Fn: func(args []any, _ Kwargs) any { return "orig" }}
	r.Register(orig)

	repl := &OpFunc{Name: "zeros", Fn: func(args []any, _ Kwargs) any { return "patched" }}
	patch := r.Apply(map[string]*OpFunc{"zeros": repl})
	require.Same(t, repl, r.Get("zeros"))
	require.Equal(t, "patched", r.Call("zeros", nil, nil))

	patch.Restore()
	require.Same(t, orig, r.Get("zeros"))
	require.Equal(t, "orig", r.Call("zeros", nil, nil))
}

func TestFuncRegistryErrors(t *testing.T) {
	r := NewFuncRegistry()
	r.Register(&OpFunc{Name: "zeros", Fn: func(args []any, _ Kwargs) any { return nil }})
	assert.Panics(t, func() { r.Register(&OpFunc{Name: "zeros", Fn: func(args []any, _ Kwargs) any { return nil }}) })
	assert.Panics(t, func() { r.Call("unknown", nil, nil) })
	assert.Panics(t, func() { r.Apply(map[string]*OpFunc{"unknown": nil}) })
}

func TestDispatch(t *testing.T) {
	sum := &OpFunc{Name: "sum", Fn: func(args []any, _ Kwargs) any {
		return args[0].(int) + args[1].(int)
	}}

	// Eager path: no proxy among the arguments.
	require.Equal(t, 7, Dispatch(sum, []any{3, 4}, nil))

	// Symbolic path: any proxy argument records a call_function node.
	tracer := NewTracer()
	x := tracer.CreateProxy(KindPlaceholder, "x", nil, nil, "x")
	out := Dispatch(sum, []any{x, 4}, nil)
	proxy, ok := out.(Proxy)
	require.True(t, ok)
	require.Equal(t, KindCallFunction, proxy.Node().Kind)
	require.Same(t, sum, proxy.Node().Target)
	require.Equal(t, []any{x.Node(), 4}, proxy.Node().Args)
}

func TestFindProxyNested(t *testing.T) {
	tracer := NewTracer()
	x := tracer.CreateProxy(KindPlaceholder, "x", nil, nil, "x")

	require.Nil(t, FindProxy([]any{1, []any{"a"}}, nil))
	require.Equal(t, x, FindProxy([]any{1, []any{x}}, nil))
	require.Equal(t, x, FindProxy(nil, Kwargs{"init": x}))
}
