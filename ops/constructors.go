package ops

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/metafx/fx"
	"github.com/gomlx/metafx/mtensor"
)

// Registry is the default function registry: the patchable "global
// namespace" the package-level factory functions consult at call time, so
// that a tracer patching the registry is observed through the stable public
// functions.
var Registry = fx.NewFuncRegistry()

// constructorNames lists the factory functions tracers patch, in patch
// order.
var constructorNames = []string{"arange", "zeros", "ones", "full_like", "eye"}

// ConstructorNames returns the names of the patchable factory functions.
func ConstructorNames() []string {
	out := make([]string, len(constructorNames))
	copy(out, constructorNames)
	return out
}

func init() {
	Registry.Register(&fx.OpFunc{Name: "arange", Fn: arangeFn})
	Registry.Register(&fx.OpFunc{Name: "zeros", Fn: zerosFn})
	Registry.Register(&fx.OpFunc{Name: "ones", Fn: onesFn})
	Registry.Register(&fx.OpFunc{Name: "full_like", Fn: fullLikeFn})
	Registry.Register(&fx.OpFunc{Name: "eye", Fn: eyeFn})
}

// Zeros builds a zero-filled tensor. Positional arguments are the
// dimensions (ints, or a single []int); recognized kwargs are "dtype"
// (default Float32) and "device" (default "cpu").
func Zeros(args ...any) any {
	positional, kwargs := fx.SplitKwargs(args)
	return Registry.Call("zeros", positional, kwargs)
}

// Ones builds a one-filled tensor. Arguments as in Zeros.
func Ones(args ...any) any {
	positional, kwargs := fx.SplitKwargs(args)
	return Registry.Call("ones", positional, kwargs)
}

// Arange builds a 1-D tensor of evenly spaced values: Arange(end),
// Arange(start, end) or Arange(start, end, step). The default dtype is
// Int64 for integer arguments and Float32 otherwise.
func Arange(args ...any) any {
	positional, kwargs := fx.SplitKwargs(args)
	return Registry.Call("arange", positional, kwargs)
}

// FullLike builds a tensor with the shape and dtype of its first argument,
// filled with the second. The result stays on the prototype's device unless
// a "device" kwarg overrides it.
func FullLike(args ...any) any {
	positional, kwargs := fx.SplitKwargs(args)
	return Registry.Call("full_like", positional, kwargs)
}

// Eye builds an identity matrix: Eye(n) or Eye(n, m). Arguments as in
// Zeros.
func Eye(args ...any) any {
	positional, kwargs := fx.SplitKwargs(args)
	return Registry.Call("eye", positional, kwargs)
}

func kwargDType(kwargs fx.Kwargs, defaultDType dtypes.DType) dtypes.DType {
	v, found := kwargs["dtype"]
	if !found {
		return defaultDType
	}
	dtype, ok := v.(dtypes.DType)
	if !ok {
		exceptions.Panicf("ops: dtype kwarg must be a dtypes.DType, got %T", v)
	}
	return dtype
}

func kwargDevice(kwargs fx.Kwargs, defaultDevice mtensor.Device) mtensor.Device {
	v, found := kwargs["device"]
	if !found {
		return defaultDevice
	}
	switch device := v.(type) {
	case mtensor.Device:
		return device
	case string:
		return mtensor.Device(device)
	default:
		exceptions.Panicf("ops: device kwarg must be a device name, got %T", v)
		panic(nil) // for lint benefit.
	}
}

func dimsFromArgs(name string, args []any) []int {
	if len(args) == 1 {
		if dims, ok := args[0].([]int); ok {
			return dims
		}
	}
	dims := make([]int, len(args))
	for i, arg := range args {
		n, ok := toInt64(arg)
		if !ok {
			exceptions.Panicf("ops: %s dimension #%d must be an integer, got %T", name, i, arg)
		}
		dims[i] = int(n)
	}
	return dims
}

func zerosFn(args []any, kwargs fx.Kwargs) any {
	dims := dimsFromArgs("zeros", args)
	shape := shapes.Make(kwargDType(kwargs, dtypes.Float32), dims...)
	if kwargDevice(kwargs, mtensor.CPU) == mtensor.Meta {
		return mtensor.New(shape)
	}
	return tensors.FromShape(shape)
}

func onesFn(args []any, kwargs fx.Kwargs) any {
	dims := dimsFromArgs("ones", args)
	shape := shapes.Make(kwargDType(kwargs, dtypes.Float32), dims...)
	if kwargDevice(kwargs, mtensor.CPU) == mtensor.Meta {
		return mtensor.New(shape)
	}
	return filledTensor(shape, 1)
}

func fullLikeFn(args []any, kwargs fx.Kwargs) any {
	if len(args) != 2 {
		exceptions.Panicf("ops: full_like expects (prototype, value), got %d arguments", len(args))
	}
	var shape shapes.Shape
	protoDevice := mtensor.CPU
	switch proto := args[0].(type) {
	case *mtensor.Tensor:
		shape = proto.Shape()
		protoDevice = mtensor.Meta
	case *tensors.Tensor:
		shape = proto.Shape()
	default:
		exceptions.Panicf("ops: full_like prototype must be a tensor, got %T", args[0])
	}
	shape = shapes.Make(kwargDType(kwargs, shape.DType), shape.Dimensions...)
	if kwargDevice(kwargs, protoDevice) == mtensor.Meta {
		return mtensor.New(shape)
	}
	return filledTensor(shape, toFloat64(args[1]))
}

func eyeFn(args []any, kwargs fx.Kwargs) any {
	if len(args) == 0 || len(args) > 2 {
		exceptions.Panicf("ops: eye expects (n) or (n, m), got %d arguments", len(args))
	}
	dims := dimsFromArgs("eye", args)
	rows := dims[0]
	cols := rows
	if len(dims) == 2 {
		cols = dims[1]
	}
	shape := shapes.Make(kwargDType(kwargs, dtypes.Float32), rows, cols)
	if kwargDevice(kwargs, mtensor.CPU) == mtensor.Meta {
		return mtensor.New(shape)
	}
	t := tensors.FromShape(shape)
	diag := min(rows, cols)
	switch shape.DType {
	case dtypes.Float32:
		tensors.MutableFlatData[float32](t, func(flat []float32) {
			for i := 0; i < diag; i++ {
				flat[i*cols+i] = 1
			}
		})
	case dtypes.Float64:
		tensors.MutableFlatData[float64](t, func(flat []float64) {
			for i := 0; i < diag; i++ {
				flat[i*cols+i] = 1
			}
		})
	default:
		exceptions.Panicf("ops: eye does not support dtype %s", shape.DType)
	}
	return t
}

func arangeFn(args []any, kwargs fx.Kwargs) any {
	if len(args) == 0 || len(args) > 3 {
		exceptions.Panicf("ops: arange expects (end), (start, end) or (start, end, step), got %d arguments", len(args))
	}
	allInts := true
	for _, arg := range args {
		if _, ok := toInt64(arg); !ok {
			allInts = false
			break
		}
	}
	var start, stop, step float64
	switch len(args) {
	case 1:
		start, stop, step = 0, toFloat64(args[0]), 1
	case 2:
		start, stop, step = toFloat64(args[0]), toFloat64(args[1]), 1
	case 3:
		start, stop, step = toFloat64(args[0]), toFloat64(args[1]), toFloat64(args[2])
	}
	if step == 0 {
		exceptions.Panicf("ops: arange step must not be zero")
	}

	defaultDType := dtypes.Int64
	if !allInts {
		defaultDType = dtypes.Float32
	}
	dtype := kwargDType(kwargs, defaultDType)

	var n int
	if dtype == dtypes.Float32 {
		// Length follows float32 arithmetic when the values are float32.
		n = int(math32.Ceil(float32(stop-start) / float32(step)))
	} else {
		n = int(math.Ceil((stop - start) / step))
	}
	if n < 0 {
		n = 0
	}

	shape := shapes.Make(dtype, n)
	if kwargDevice(kwargs, mtensor.CPU) == mtensor.Meta {
		return mtensor.New(shape)
	}
	switch dtype {
	case dtypes.Float32:
		values := make([]float32, n)
		for i := range values {
			values[i] = float32(start) + float32(i)*float32(step)
		}
		return tensors.FromFlatDataAndDimensions(values, n)
	case dtypes.Float64:
		values := make([]float64, n)
		for i := range values {
			values[i] = start + float64(i)*step
		}
		return tensors.FromFlatDataAndDimensions(values, n)
	case dtypes.Int32:
		values := make([]int32, n)
		for i := range values {
			values[i] = int32(start) + int32(i)*int32(step)
		}
		return tensors.FromFlatDataAndDimensions(values, n)
	case dtypes.Int64:
		values := make([]int64, n)
		for i := range values {
			values[i] = int64(start) + int64(i)*int64(step)
		}
		return tensors.FromFlatDataAndDimensions(values, n)
	default:
		exceptions.Panicf("ops: arange does not support dtype %s", dtype)
		panic(nil) // for lint benefit.
	}
}

// filledTensor builds a concrete tensor of the given shape with every
// element set to value.
func filledTensor(shape shapes.Shape, value float64) *tensors.Tensor {
	switch shape.DType {
	case dtypes.Float32:
		return tensors.FromScalarAndDimensions(float32(value), shape.Dimensions...)
	case dtypes.Float64:
		return tensors.FromScalarAndDimensions(value, shape.Dimensions...)
	case dtypes.Int32:
		return tensors.FromScalarAndDimensions(int32(value), shape.Dimensions...)
	case dtypes.Int64:
		return tensors.FromScalarAndDimensions(int64(value), shape.Dimensions...)
	default:
		exceptions.Panicf("ops: filled tensors do not support dtype %s", shape.DType)
		panic(nil) // for lint benefit.
	}
}
