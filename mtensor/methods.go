package mtensor

import (
	"github.com/gomlx/metafx/fx"
	"github.com/pkg/errors"
)

// This file implements the by-name method and attribute dispatch used when
// replaying call_method and getattr operations on meta tensors. Unknown
// names and wrong receivers are reported as error values: the caller decides
// whether they abort or merely skip metadata for one node.

type methodFn func(t *Tensor, args []any, kwargs fx.Kwargs) (any, error)

var methods = map[string]methodFn{
	"size": func(t *Tensor, args []any, _ fx.Kwargs) (any, error) {
		if len(args) == 0 {
			return t.Size(), nil
		}
		axis, err := intArg(args, 0)
		if err != nil {
			return nil, err
		}
		return t.Size(axis), nil
	},
	"dim": func(t *Tensor, args []any, _ fx.Kwargs) (any, error) {
		return t.Dim(), nil
	},
	"reshape": func(t *Tensor, args []any, _ fx.Kwargs) (any, error) {
		dims, err := intArgs(args)
		if err != nil {
			return nil, err
		}
		return t.Reshape(dims...), nil
	},
	"flatten": func(t *Tensor, args []any, _ fx.Kwargs) (any, error) {
		return t.Flatten(), nil
	},
	"unsqueeze": func(t *Tensor, args []any, _ fx.Kwargs) (any, error) {
		axis, err := intArg(args, 0)
		if err != nil {
			return nil, err
		}
		return t.Unsqueeze(axis), nil
	},
	"t": func(t *Tensor, args []any, _ fx.Kwargs) (any, error) {
		return t.T(), nil
	},
	"transpose": func(t *Tensor, args []any, _ fx.Kwargs) (any, error) {
		a, err := intArg(args, 0)
		if err != nil {
			return nil, err
		}
		b, err := intArg(args, 1)
		if err != nil {
			return nil, err
		}
		return t.Transpose(a, b), nil
	},
	// Shape-preserving elementwise methods.
	"relu":    shapePreserving,
	"exp":     shapePreserving,
	"sqrt":    shapePreserving,
	"softmax": shapePreserving,
}

func shapePreserving(t *Tensor, _ []any, _ fx.Kwargs) (any, error) {
	return t.Like(), nil
}

// CallMethod invokes the named meta method on recv, which must be a meta
// tensor.
func CallMethod(recv any, name string, args []any, kwargs fx.Kwargs) (any, error) {
	t, ok := recv.(*Tensor)
	if !ok {
		return nil, errors.Errorf("method %q receiver is %T, not a meta tensor", name, recv)
	}
	fn, found := methods[name]
	if !found {
		return nil, errors.Errorf("meta tensors have no method %q", name)
	}
	return fn(t, args, kwargs)
}

// Attr resolves the named attribute of recv, which must be a meta tensor.
func Attr(recv any, name string) (any, error) {
	t, ok := recv.(*Tensor)
	if !ok {
		return nil, errors.Errorf("attribute %q receiver is %T, not a meta tensor", name, recv)
	}
	switch name {
	case "shape":
		return t.Shape(), nil
	case "dtype":
		return t.DType(), nil
	case "ndim":
		return t.Dim(), nil
	case "device":
		return t.Device(), nil
	case "T":
		return t.T(), nil
	default:
		return nil, errors.Errorf("meta tensors have no attribute %q", name)
	}
}

func intArg(args []any, i int) (int, error) {
	if i >= len(args) {
		return 0, errors.Errorf("missing argument #%d", i)
	}
	return toInt(args[i])
}

func intArgs(args []any) ([]int, error) {
	// A single []int argument is also accepted.
	if len(args) == 1 {
		if dims, ok := args[0].([]int); ok {
			return dims, nil
		}
	}
	out := make([]int, len(args))
	for i := range args {
		v, err := toInt(args[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	default:
		return 0, errors.Errorf("expected an integer argument, got %T", v)
	}
}
