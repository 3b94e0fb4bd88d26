package metafx

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/metafx/fx"
	"github.com/gomlx/metafx/mtensor"
	"github.com/stretchr/testify/require"
)

func TestExtractMetadata(t *testing.T) {
	// Non-proxy values pass through.
	require.Equal(t, 7, ExtractMetadata(7))
	require.Equal(t, "axis", ExtractMetadata("axis"))

	meta := mtensor.FromDims(dtypes.Float32, 2, 3)
	g := fx.NewGraph()
	p := &MetaProxy{node: g.NewNode(fx.KindPlaceholder, "x", nil, nil, "x"), tracer: fx.NewTracer()}
	p.InstallTensorMeta(meta)
	require.Same(t, meta, ExtractMetadata(p))

	// A proxy without metadata is a recoverable inference failure.
	bare := &MetaProxy{node: g.NewNode(fx.KindPlaceholder, "y", nil, nil, "y"), tracer: fx.NewTracer()}
	err := exceptions.TryCatch[*fx.InferenceError](func() { ExtractMetadata(bare) })
	require.ErrorContains(t, err, "no associated meta")

	// So is a proxy of the wrong flavor.
	tracer := fx.NewTracer()
	plain := tracer.CreateProxy(fx.KindPlaceholder, "z", nil, nil, "z")
	err = exceptions.TryCatch[*fx.InferenceError](func() { ExtractMetadata(plain) })
	require.ErrorContains(t, err, "expected a MetaProxy")
}

func TestGenConstructorWrapper(t *testing.T) {
	var calls int
	target := &fx.OpFunc{
		Name: "make_thing",
		Fn: func(args []any, _ fx.Kwargs) any {
			calls++
			return args[0]
		},
	}
	wrapper, orig := GenConstructorWrapper(target)
	require.Same(t, target, orig)
	require.Equal(t, target.Name, wrapper.Name)

	// Concrete arguments run the original.
	require.Equal(t, 42, wrapper.Fn([]any{42}, nil))
	require.Equal(t, 1, calls)

	// Symbolic arguments record a node targeting the original, never
	// executing it.
	tracer := fx.NewTracer()
	x := tracer.CreateProxy(fx.KindPlaceholder, "x", nil, nil, "x")
	out := wrapper.Fn([]any{x, 3}, nil)
	proxy, ok := out.(fx.Proxy)
	require.True(t, ok)
	require.Equal(t, fx.KindCallFunction, proxy.Node().Kind)
	require.Same(t, target, proxy.Node().Target)
	require.Equal(t, []any{x.Node(), 3}, proxy.Node().Args)
	require.Equal(t, 1, calls)

	// Proxies nested in containers are found too.
	out = wrapper.Fn([]any{[]any{1, x}}, nil)
	_, ok = out.(fx.Proxy)
	require.True(t, ok)
	require.Equal(t, 1, calls)
}

func TestLazyAttributeCallOnly(t *testing.T) {
	model := singleInput(func(x any) any {
		return x.(*MetaProxy).Attr("t").Call()
	})
	g, err := Trace(model, MetaArgs{"x": mtensor.FromDims(dtypes.Float32, 2, 3)}, nil)
	require.NoError(t, err)

	// Invoking the attribute records the method call only: no getattr node
	// ever materializes.
	node := g.NodeByName("t")
	require.NotNil(t, node)
	require.Equal(t, fx.KindCallMethod, node.Kind)
	require.Equal(t, []int{3, 2}, metaOf(t, g, "t").Size())
	for _, n := range g.Nodes() {
		require.NotEqual(t, "getattr", n.TargetName())
	}
}

func TestLazyAttributeValueUse(t *testing.T) {
	model := singleInput(func(x any) any {
		attr := x.(*MetaProxy).Attr("T")
		// Repeated value uses share one cached node.
		first := attr.Node()
		if attr.Node() != first {
			exceptions.Panicf("attribute node was not cached")
		}
		return attr
	})
	g, err := Trace(model, MetaArgs{"x": mtensor.FromDims(dtypes.Float32, 2, 3)}, nil)
	require.NoError(t, err)

	node := g.NodeByName("getattr")
	require.NotNil(t, node)
	require.Equal(t, fx.KindCallFunction, node.Kind)
	require.Equal(t, "T", node.Args[1])
	require.Equal(t, []int{3, 2}, metaOf(t, g, "getattr").Size())

	// The output consumes the getattr node, and there is only one.
	output := g.NodesOfKind(fx.KindOutput)[0]
	require.Equal(t, []any{node}, output.Args)
	require.Len(t, g.NodesOfKind(fx.KindCallFunction), 1)
}

func TestProxySizeAndDimWithMetadata(t *testing.T) {
	var dims, rows, rank any
	model := singleInput(func(x any) any {
		p := x.(*MetaProxy)
		dims = p.Size()
		rows = p.Size(0)
		rank = p.Dim()
		return p
	})
	g, err := Trace(model, MetaArgs{"x": mtensor.FromDims(dtypes.Float32, 2, 3)}, nil)
	require.NoError(t, err)

	// Answered from metadata, with no graph nodes created.
	require.Equal(t, []int{2, 3}, dims)
	require.Equal(t, 2, rows)
	require.Equal(t, 2, rank)
	require.Len(t, g.Nodes(), 2) // placeholder and output only.
}

func TestProxySizeWithoutMetadata(t *testing.T) {
	model := singleInput(func(x any) any {
		return x.(*MetaProxy).Size()
	})
	g, err := Trace(model, MetaArgs{}, nil)
	require.NoError(t, err)

	// Without metadata the query stays symbolic.
	node := g.NodeByName("size")
	require.NotNil(t, node)
	require.Equal(t, fx.KindCallMethod, node.Kind)
	require.Nil(t, node.Meta)
}
