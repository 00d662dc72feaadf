// Package builtin provides the stock actions and mutators that
// rulebooks, scenarios, and the CLI reference by name. Nothing in the
// engine depends on it: collaborators install what they need.
package builtin

import (
	"fmt"
	"log/slog"

	"github.com/lune4696/metamorphosys/internal/store"
	"github.com/lune4696/metamorphosys/internal/value"
)

// Stock action names.
const (
	ActionAdd        = "add"
	ActionSum        = "sum"
	ActionProduct    = "product"
	ActionNegate     = "negate"
	ActionConcat     = "concat"
	ActionLast       = "last"
	ActionPrintTrace = "print_trace"
)

// Install registers the stock actions on st, replacing any existing
// bindings with the same names.
func Install(st *store.Store) error {
	stock := map[string]store.Action{
		ActionAdd:        Add,
		ActionSum:        Sum,
		ActionProduct:    Product,
		ActionNegate:     Negate,
		ActionConcat:     Concat,
		ActionLast:       Last,
		ActionPrintTrace: PrintTrace,
	}
	for name, fn := range stock {
		if err := st.RegisterAction(name, fn); err != nil {
			return fmt.Errorf("install builtin %q: %w", name, err)
		}
	}
	return nil
}

// Names returns the stock action names. The rulebook compiler adds
// them to the resolvable set when validating chains.
func Names() []string {
	return []string{
		ActionAdd,
		ActionConcat,
		ActionLast,
		ActionNegate,
		ActionPrintTrace,
		ActionProduct,
		ActionSum,
	}
}

// Add sums every argument. In a path-output rule that is the inputs
// plus the seeded accumulator, which makes Add the "fold into the
// output" action: add(input, current_output).
func Add(args []value.Value) (value.Value, error) {
	ints, err := intArgs("add", args)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, n := range ints {
		total += n
	}
	return value.Int(total), nil
}

// Sum sums every argument except the final one. It is meant for
// path-output rules where the trailing argument is the seeded
// accumulator: sum(inputs..., acc) ignores acc and combines the
// inputs alone. With a single argument it returns 0.
func Sum(args []value.Value) (value.Value, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("sum: no arguments")
	}
	ints, err := intArgs("sum", args[:len(args)-1])
	if err != nil {
		return nil, err
	}
	var total int64
	for _, n := range ints {
		total += n
	}
	return value.Int(total), nil
}

// Product multiplies every argument.
func Product(args []value.Value) (value.Value, error) {
	ints, err := intArgs("product", args)
	if err != nil {
		return nil, err
	}
	total := int64(1)
	for _, n := range ints {
		total *= n
	}
	return value.Int(total), nil
}

// Negate negates its final argument, so it composes after arithmetic
// links: [add, negate] yields -(add result).
func Negate(args []value.Value) (value.Value, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("negate: no arguments")
	}
	n, ok := args[len(args)-1].(value.Int)
	if !ok {
		return nil, fmt.Errorf("negate: argument is %s, want int", value.TypeName(args[len(args)-1]))
	}
	return value.Int(-int64(n)), nil
}

// Concat joins string arguments in order.
func Concat(args []value.Value) (value.Value, error) {
	var out string
	for i, a := range args {
		s, ok := a.(value.String)
		if !ok {
			return nil, fmt.Errorf("concat: argument %d is %s, want string", i, value.TypeName(a))
		}
		out += string(s)
	}
	return value.String(out), nil
}

// Last returns its final argument unchanged: the identity link. In a
// path-output chain that is the accumulator, so Last preserves
// whatever the previous link computed (or the output's current value
// when it is the only link).
func Last(args []value.Value) (value.Value, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("last: no arguments")
	}
	return args[len(args)-1], nil
}

// PrintTrace logs its arguments and returns the final one unchanged,
// which makes it transparent anywhere in a chain: insert it to see the
// values flowing through without changing what flows.
func PrintTrace(args []value.Value) (value.Value, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("print_trace: no arguments")
	}
	rendered := make([]string, len(args))
	for i, a := range args {
		b, err := value.MarshalCanonical(a)
		if err != nil {
			return nil, fmt.Errorf("print_trace: argument %d: %w", i, err)
		}
		rendered[i] = string(b)
	}
	slog.Info("print_trace", "args", rendered)
	return args[len(args)-1], nil
}

func intArgs(name string, args []value.Value) ([]int64, error) {
	ints := make([]int64, len(args))
	for i, a := range args {
		n, ok := a.(value.Int)
		if !ok {
			return nil, fmt.Errorf("%s: argument %d is %s, want int", name, i, value.TypeName(a))
		}
		ints[i] = int64(n)
	}
	return ints, nil
}
