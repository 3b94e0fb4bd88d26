package fx

// Kwargs holds keyword-style arguments of an operation. A nil Kwargs is
// equivalent to an empty one.
type Kwargs map[string]any

// MapAggregate applies fn to every leaf value of v, recursing through []any,
// Kwargs and map[string]any containers, and returns the mapped structure.
// Containers are copied, never mutated.
func MapAggregate(v any, fn func(any) any) any {
	switch container := v.(type) {
	case []any:
		out := make([]any, len(container))
		for i, elem := range container {
			out[i] = MapAggregate(elem, fn)
		}
		return out
	case Kwargs:
		out := make(Kwargs, len(container))
		for key, elem := range container {
			out[key] = MapAggregate(elem, fn)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(container))
		for key, elem := range container {
			out[key] = MapAggregate(elem, fn)
		}
		return out
	default:
		return fn(v)
	}
}

// FindProxy returns the first Proxy found among args and kwargs, recursing
// through containers, or nil if there is none.
func FindProxy(args []any, kwargs Kwargs) Proxy {
	var found Proxy
	check := func(v any) any {
		if p, ok := v.(Proxy); ok && found == nil {
			found = p
		}
		return v
	}
	MapAggregate(args, check)
	if kwargs != nil {
		MapAggregate(kwargs, check)
	}
	return found
}

// SplitKwargs splits a variadic argument list into positional arguments and
// an optional trailing Kwargs value.
func SplitKwargs(args []any) ([]any, Kwargs) {
	if len(args) == 0 {
		return args, nil
	}
	if kwargs, ok := args[len(args)-1].(Kwargs); ok {
		return args[:len(args)-1], kwargs
	}
	return args, nil
}
