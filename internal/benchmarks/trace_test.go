// Package benchmarks measures tracing throughput on a small multi-layer
// model. Run with:
//
//	go test . -test.bench=.
//
// The go-benchmarks based timing tests only run when -bench_duration is set,
// e.g. -bench_duration=10s.
package benchmarks

import (
	"flag"
	"testing"

	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/metafx/fx"
	"github.com/gomlx/metafx/metafx"
	"github.com/gomlx/metafx/mtensor"
	"github.com/gomlx/metafx/ops"
	"github.com/janpfeifer/go-benchmarks"
	"github.com/janpfeifer/must"
)

var flagBenchDuration = flag.Duration("bench_duration", 0, "Benchmark duration, typically use 10 seconds. If left as 0, benchmark tests are disabled")

type dense struct {
	w, b *tensors.Tensor
}

func newDense(in, out int) *dense {
	return &dense{
		w: tensors.FromShape(shapes.Make(dtypes.Float32, in, out)),
		b: tensors.FromShape(shapes.Make(dtypes.Float32, out)),
	}
}

func (l *dense) Forward(inputs ...any) any {
	return ops.Add(ops.MatMul(inputs[0], l.w), l.b)
}

func (l *dense) Parameters() []*tensors.Tensor {
	return []*tensors.Tensor{l.w, l.b}
}

type activation struct{}

func (a *activation) Forward(inputs ...any) any {
	return ops.Relu(inputs[0])
}

// stack is a chain of dense layers with activations in between.
type stack struct {
	fx.ChildSet
	layers []*dense
}

func newStack(widths ...int) *stack {
	s := &stack{}
	for i := 1; i < len(widths); i++ {
		layer := newDense(widths[i-1], widths[i])
		s.layers = append(s.layers, layer)
		s.AddChild(layerName(i-1), layer)
	}
	return s
}

func layerName(i int) string {
	return "dense_" + string(rune('0'+i))
}

func (s *stack) InputNames() []string { return []string{"x"} }

func (s *stack) Forward(inputs ...any) any {
	h := inputs[0]
	for i, layer := range s.layers {
		h = fx.Call(layer, h)
		if i < len(s.layers)-1 {
			h = fx.Call(&activation{}, h)
		}
	}
	return h
}

func traceOnce(model *stack, x *mtensor.Tensor) *fx.Graph {
	return must.M1(metafx.Trace(model, metafx.MetaArgs{"x": x}, nil))
}

func BenchmarkTraceStack(b *testing.B) {
	x := mtensor.FromDims(dtypes.Float32, 32, 64)
	for i := 0; i < b.N; i++ {
		// Fresh model each run: tracing registers the ad hoc activations as
		// children, which must not accumulate across runs.
		model := newStack(64, 128, 128, 10)
		g := traceOnce(model, x)
		if len(g.Nodes()) != 7 {
			b.Fatalf("expected 7 nodes, got %d:\n%s", len(g.Nodes()), g)
		}
	}
}

func TestBenchTraceStack(t *testing.T) {
	if testing.Short() || *flagBenchDuration == 0 {
		t.Skip("benchmark tests only run with -bench_duration set")
	}

	x := mtensor.FromDims(dtypes.Float32, 32, 64)
	testFn := benchmarks.NamedFunction{
		Name: "Trace/Stack(64, 128, 128, 10)/BatchSize=32",
		Func: func() {
			model := newStack(64, 128, 128, 10)
			_ = traceOnce(model, x)
		},
	}

	benchmarks.New(testFn).
		WithWarmUps(10).
		WithDuration(*flagBenchDuration).
		Done()
}
