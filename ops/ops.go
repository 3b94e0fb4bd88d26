// Package ops is the operation namespace traced programs call into: factory
// functions (Zeros, Ones, Arange, FullLike, Eye) routed through a patchable
// FuncRegistry, and compute functions (Add, MatMul, Relu, ...) that dispatch
// symbolically whenever any argument is a tracing proxy.
//
// Outside tracing, factory functions build real tensors (or meta tensors
// when asked for the meta device) and compute functions run shape/dtype
// inference on meta tensors. Eager arithmetic on concrete tensors is out of
// scope: concrete tensors among compute-function operands contribute their
// shape only.
package ops

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/metafx/fx"
	"github.com/gomlx/metafx/mtensor"
)

// Compute ops. They are not patched during tracing: their proxy dispatch is
// built in.
var (
	opAdd     = &fx.OpFunc{Name: "add", Fn: binaryFn("add")}
	opSub     = &fx.OpFunc{Name: "sub", Fn: binaryFn("sub")}
	opMul     = &fx.OpFunc{Name: "mul", Fn: binaryFn("mul")}
	opDiv     = &fx.OpFunc{Name: "div", Fn: binaryFn("div")}
	opMatMul  = &fx.OpFunc{Name: "matmul", Fn: matMulFn}
	opRelu    = &fx.OpFunc{Name: "relu", Fn: unaryFn("relu")}
	opSoftmax = &fx.OpFunc{Name: "softmax", Fn: unaryFn("softmax")}
)

// GetAttr resolves an attribute of its first argument by name. It is the
// target of the nodes lazy attribute proxies create on first value use.
var GetAttr = &fx.OpFunc{
	Name: "getattr",
	Fn: func(args []any, _ fx.Kwargs) any {
		if len(args) != 2 {
			exceptions.Panicf("ops: getattr expects (value, name), got %d arguments", len(args))
		}
		name, ok := args[1].(string)
		if !ok {
			exceptions.Panicf("ops: getattr attribute name must be a string, got %T", args[1])
		}
		value, err := mtensor.Attr(args[0], name)
		if err != nil {
			fx.Inferf("getattr: %v", err)
		}
		return value
	},
}

// Add returns the elementwise sum of a and b.
func Add(a, b any) any { return fx.Dispatch(opAdd, []any{a, b}, nil) }

// Sub returns the elementwise difference of a and b.
func Sub(a, b any) any { return fx.Dispatch(opSub, []any{a, b}, nil) }

// Mul returns the elementwise product of a and b.
func Mul(a, b any) any { return fx.Dispatch(opMul, []any{a, b}, nil) }

// Div returns the elementwise quotient of a and b.
func Div(a, b any) any { return fx.Dispatch(opDiv, []any{a, b}, nil) }

// MatMul returns the matrix product of a and b.
func MatMul(a, b any) any { return fx.Dispatch(opMatMul, []any{a, b}, nil) }

// Relu returns max(x, 0), elementwise.
func Relu(x any) any { return fx.Dispatch(opRelu, []any{x}, nil) }

// Softmax returns the softmax of x over its last axis.
func Softmax(x any) any { return fx.Dispatch(opSoftmax, []any{x}, nil) }

// metaOperand views an operand as a meta tensor: meta tensors as themselves,
// concrete tensors through their shape. Plain numbers return (nil, true).
func metaOperand(v any) (t *mtensor.Tensor, scalar bool) {
	switch operand := v.(type) {
	case *mtensor.Tensor:
		return operand, false
	case *tensors.Tensor:
		return mtensor.New(operand.Shape()), false
	case int, int32, int64, float32, float64:
		return nil, true
	default:
		exceptions.Panicf("ops: unsupported operand type %T", v)
		panic(nil) // for lint benefit.
	}
}

func binaryFn(name string) func(args []any, kwargs fx.Kwargs) any {
	return func(args []any, _ fx.Kwargs) any {
		if len(args) != 2 {
			exceptions.Panicf("ops: %s expects 2 arguments, got %d", name, len(args))
		}
		lhs, lhsScalar := metaOperand(args[0])
		rhs, rhsScalar := metaOperand(args[1])
		switch {
		case lhsScalar && rhsScalar:
			return scalarBinary(name, args[0], args[1])
		case lhsScalar:
			return rhs.Like()
		case rhsScalar:
			return lhs.Like()
		default:
			return mtensor.Elementwise(lhs, rhs)
		}
	}
}

func matMulFn(args []any, _ fx.Kwargs) any {
	if len(args) != 2 {
		exceptions.Panicf("ops: matmul expects 2 arguments, got %d", len(args))
	}
	lhs, lhsScalar := metaOperand(args[0])
	rhs, rhsScalar := metaOperand(args[1])
	if lhsScalar || rhsScalar {
		exceptions.Panicf("ops: matmul operands must be tensors, got %T and %T", args[0], args[1])
	}
	return mtensor.MatMul(lhs, rhs)
}

func unaryFn(name string) func(args []any, kwargs fx.Kwargs) any {
	return func(args []any, _ fx.Kwargs) any {
		if len(args) != 1 {
			exceptions.Panicf("ops: %s expects 1 argument, got %d", name, len(args))
		}
		t, scalar := metaOperand(args[0])
		if scalar {
			exceptions.Panicf("ops: %s operand must be a tensor, got %T", name, args[0])
		}
		return t.Like()
	}
}

// scalarBinary evaluates a binary op on two plain numbers: integer math when
// both operands are integers, float64 otherwise.
func scalarBinary(name string, a, b any) any {
	intA, okA := toInt64(a)
	intB, okB := toInt64(b)
	if okA && okB {
		switch name {
		case "add":
			return intA + intB
		case "sub":
			return intA - intB
		case "mul":
			return intA * intB
		case "div":
			if intB == 0 {
				exceptions.Panicf("ops: integer division by zero")
			}
			return intA / intB
		}
	}
	floatA := toFloat64(a)
	floatB := toFloat64(b)
	switch name {
	case "add":
		return floatA + floatB
	case "sub":
		return floatA - floatB
	case "mul":
		return floatA * floatB
	case "div":
		return floatA / floatB
	}
	exceptions.Panicf("ops: unknown scalar op %q", name)
	panic(nil) // for lint benefit.
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		exceptions.Panicf("ops: expected a number, got %T", v)
		panic(nil) // for lint benefit.
	}
}
