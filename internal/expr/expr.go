// Package expr compiles systems written as CEL expressions.
//
// Forward, Feedback and Noise evaluate to a list of doubles with one entry
// per state component; Kernel evaluates to a double. Expressions see
//
//	s   list(double)       current state (Forward, Feedback, Noise)
//	t   double             time (Forward, Noise)
//	dt  double             elapsed time Δt (Kernel)
//	p   map(string,double) parameters
//
// plus exp, log, sqrt, sin, cos, tanh, abs and pow. CEL does not mix int and
// double arithmetic, so constants next to doubles need a decimal point.
package expr

import (
	"fmt"
	"math"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/san-kum/rflf/internal/dynamo"
	"github.com/san-kum/rflf/internal/terms"
)

// Spec is the textual form of a system.
type Spec struct {
	Forward  string `yaml:"forward"`
	Feedback string `yaml:"feedback,omitempty"`
	Kernel   string `yaml:"kernel,omitempty"`
	Noise    string `yaml:"noise,omitempty"`
	// NoiseScale adds seeded Gaussian noise held over NoiseInterval.
	NoiseScale    float64            `yaml:"noise_scale,omitempty"`
	NoiseInterval float64            `yaml:"noise_interval,omitempty"`
	Seed          uint64             `yaml:"seed,omitempty"`
	Params        map[string]float64 `yaml:"params,omitempty"`
}

var unary = map[string]func(float64) float64{
	"exp":  math.Exp,
	"log":  math.Log,
	"sqrt": math.Sqrt,
	"sin":  math.Sin,
	"cos":  math.Cos,
	"tanh": math.Tanh,
	"abs":  math.Abs,
}

func newEnv() (*cel.Env, error) {
	opts := []cel.EnvOption{
		cel.Variable("s", cel.ListType(cel.DoubleType)),
		cel.Variable("t", cel.DoubleType),
		cel.Variable("dt", cel.DoubleType),
		cel.Variable("p", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Function("pow",
			cel.Overload("pow_double_double", []*cel.Type{cel.DoubleType, cel.DoubleType}, cel.DoubleType,
				cel.BinaryBinding(func(x, y ref.Val) ref.Val {
					return types.Double(math.Pow(float64(x.(types.Double)), float64(y.(types.Double))))
				}))),
	}
	for name, fn := range unary {
		fn := fn
		opts = append(opts, cel.Function(name,
			cel.Overload(name+"_double", []*cel.Type{cel.DoubleType}, cel.DoubleType,
				cel.UnaryBinding(func(x ref.Val) ref.Val {
					return types.Double(fn(float64(x.(types.Double))))
				}))))
	}
	return cel.NewEnv(opts...)
}

func compile(env *cel.Env, role, src string) (cel.Program, error) {
	ast, iss := env.Compile(src)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %s: %v", dynamo.ErrInvalidConfig, role, iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", dynamo.ErrInvalidConfig, role, err)
	}
	return prg, nil
}

// Compile builds a System from spec. Feedback and Kernel must be given
// together.
func Compile(spec Spec) (dynamo.System, error) {
	env, err := newEnv()
	if err != nil {
		return dynamo.System{}, err
	}
	params := spec.Params
	if params == nil {
		params = map[string]float64{}
	}

	var sys dynamo.System
	if spec.Forward == "" {
		return sys, fmt.Errorf("%w: forward expression is required", dynamo.ErrInvalidConfig)
	}
	if (spec.Feedback == "") != (spec.Kernel == "") {
		return sys, fmt.Errorf("%w: feedback and kernel must be set together", dynamo.ErrInvalidConfig)
	}

	fwd, err := compile(env, "forward", spec.Forward)
	if err != nil {
		return sys, err
	}
	sys.Forward = func(s dynamo.State, t float64) (dynamo.State, error) {
		return evalList(fwd, map[string]any{"s": []float64(s), "t": t, "p": params})
	}

	if spec.Feedback != "" {
		fb, err := compile(env, "feedback", spec.Feedback)
		if err != nil {
			return sys, err
		}
		k, err := compile(env, "kernel", spec.Kernel)
		if err != nil {
			return sys, err
		}
		sys.Feedback = func(s dynamo.State) (dynamo.State, error) {
			return evalList(fb, map[string]any{"s": []float64(s), "p": params})
		}
		sys.Kernel = func(dt float64) float64 {
			v, err := evalDouble(k, map[string]any{"dt": dt, "p": params})
			if err != nil {
				return math.NaN()
			}
			return v
		}
	}

	var noise dynamo.NoiseFunc
	if spec.Noise != "" {
		n, err := compile(env, "noise", spec.Noise)
		if err != nil {
			return sys, err
		}
		noise = func(s dynamo.State, t float64) (dynamo.State, error) {
			return evalList(n, map[string]any{"s": []float64(s), "t": t, "p": params})
		}
	}
	if spec.NoiseScale > 0 {
		gauss := terms.GaussianNoise(spec.NoiseScale, spec.Seed, spec.NoiseInterval)
		if noise == nil {
			noise = gauss
		} else {
			base := noise
			noise = func(s dynamo.State, t float64) (dynamo.State, error) {
				a, err := base(s, t)
				if err != nil {
					return nil, err
				}
				b, _ := gauss(s, t)
				if len(a) != len(b) {
					return a, nil
				}
				return a.Add(b), nil
			}
		}
	}
	sys.Noise = noise

	return sys, nil
}

func evalList(prg cel.Program, vars map[string]any) (dynamo.State, error) {
	out, _, err := prg.Eval(vars)
	if err != nil {
		return nil, err
	}
	list, ok := out.(traits.Lister)
	if !ok {
		return nil, fmt.Errorf("expression returned %s, want list", out.Type().TypeName())
	}

	n := int(list.Size().(types.Int))
	res := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		v, err := toFloat(list.Get(types.Int(i)))
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		res[i] = v
	}
	return res, nil
}

func evalDouble(prg cel.Program, vars map[string]any) (float64, error) {
	out, _, err := prg.Eval(vars)
	if err != nil {
		return 0, err
	}
	return toFloat(out)
}

func toFloat(v ref.Val) (float64, error) {
	switch x := v.(type) {
	case types.Double:
		return float64(x), nil
	case types.Int:
		return float64(x), nil
	case types.Uint:
		return float64(x), nil
	case *types.Err:
		return 0, x
	default:
		return 0, fmt.Errorf("value of type %s is not numeric", v.Type().TypeName())
	}
}
