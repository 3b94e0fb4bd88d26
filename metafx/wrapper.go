package metafx

import (
	"github.com/gomlx/metafx/fx"
)

// GenConstructorWrapper wraps a factory function for the duration of a
// trace. The wrapper inspects all arguments, recursively through containers,
// for a tracing proxy: if one is found the call is redirected to the owning
// tracer as a symbolic call_function node targeting the original function --
// never executing it eagerly. Calls with only concrete arguments go straight
// to the original function, with no tracing side effect.
//
// It returns the wrapper and the original target, so callers can record the
// original's identity and restore it after the trace.
func GenConstructorWrapper(target *fx.OpFunc) (wrapper, orig *fx.OpFunc) {
	wrapper = &fx.OpFunc{
		Name: target.Name,
		Fn: func(args []any, kwargs fx.Kwargs) any {
			if p := fx.FindProxy(args, kwargs); p != nil {
				return p.Tracer().CreateProxy(fx.KindCallFunction, target, args, kwargs, "")
			}
			return target.Fn(args, kwargs)
		},
	}
	return wrapper, target
}
