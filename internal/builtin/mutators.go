package builtin

import (
	"github.com/lune4696/metamorphosys/internal/engine"
	"github.com/lune4696/metamorphosys/internal/value"
)

// Stock mutator names. Scenarios and the CLI reference triggers by
// these; Go callers can always pass their own engine.Mutator.
const (
	MutatorIncrement = "increment"
	MutatorDecrement = "decrement"
	MutatorDouble    = "double"
	MutatorNegate    = "negate"
)

// Mutators must be total, so the integer mutators return non-integer
// values unchanged rather than failing: a scenario applying increment
// to a string leaves the string alone and the cascade still runs.
var mutators = map[string]engine.Mutator{
	MutatorIncrement: func(v value.Value) value.Value {
		if n, ok := v.(value.Int); ok {
			return value.Int(int64(n) + 1)
		}
		return v
	},
	MutatorDecrement: func(v value.Value) value.Value {
		if n, ok := v.(value.Int); ok {
			return value.Int(int64(n) - 1)
		}
		return v
	},
	MutatorDouble: func(v value.Value) value.Value {
		if n, ok := v.(value.Int); ok {
			return value.Int(int64(n) * 2)
		}
		return v
	},
	MutatorNegate: func(v value.Value) value.Value {
		if n, ok := v.(value.Int); ok {
			return value.Int(-int64(n))
		}
		return v
	},
}

// Mutator resolves a stock mutator by name.
func Mutator(name string) (engine.Mutator, bool) {
	m, ok := mutators[name]
	return m, ok
}

// MutatorNames returns the stock mutator names.
func MutatorNames() []string {
	return []string{MutatorDecrement, MutatorDouble, MutatorIncrement, MutatorNegate}
}

// Set builds a mutator that ignores the current value and writes v.
// It backs the "set:" form in scenarios and the CLI's --set flag.
func Set(v value.Value) engine.Mutator {
	return func(value.Value) value.Value {
		return v
	}
}
