package rulebook

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/lune4696/metamorphosys/internal/path"
	"github.com/lune4696/metamorphosys/internal/value"
)

// Rulebook is the compiled form of a CUE rule document: the seed tree
// the store starts from plus the rule declarations to register on it.
type Rulebook struct {
	Seed  value.Map
	Rules []RuleDecl // declaration order
}

// RuleDecl is one compiled rule declaration.
//
// Exactly one of Output and Effect should be set; Compile preserves
// whatever the document says and Validate reports the conflict, so a
// single pass can list every problem in a broken book.
type RuleDecl struct {
	Name   string
	Inputs []path.Path
	Output *path.Path // nil for effect rules
	Effect bool
	Chain  []string
}

// Compile parses a CUE value into a Rulebook.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE document looks like:
//
//	seed: { a: { b: 0 }, c: { d: 0 } }
//
//	rule: "mirror": {
//		inputs: ["a.b"]
//		output: "c.d"
//		chain:  ["add"]
//	}
//
// Structural problems (wrong kinds, unparseable paths, non-integer
// numbers) are *CompileError values carrying CUE token positions.
// Compilation skips a broken rule and keeps going, so the returned
// error joins every broken declaration; semantic checks live in
// Validate.
func Compile(v cue.Value) (*Rulebook, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rb := &Rulebook{Seed: value.Map{}}
	var errs []error

	seedVal := v.LookupPath(cue.ParsePath("seed"))
	if seedVal.Exists() {
		seed, err := cueToValue(seedVal)
		if err != nil {
			errs = append(errs, err)
		} else if m, ok := seed.(value.Map); ok {
			rb.Seed = m
		} else {
			errs = append(errs, &CompileError{
				Field:   "seed",
				Message: fmt.Sprintf("seed must be a struct, got %s", value.TypeName(seed)),
				Pos:     seedVal.Pos(),
			})
		}
	}

	ruleVal := v.LookupPath(cue.ParsePath("rule"))
	if ruleVal.Exists() {
		iter, err := ruleVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			name := strings.Trim(iter.Label(), `"`)
			decl, err := compileRule(name, iter.Value())
			if err != nil {
				errs = append(errs, err)
				continue
			}
			rb.Rules = append(rb.Rules, decl)
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rb, nil
}

// LoadFile reads and compiles a single rulebook document.
func LoadFile(filename string) (*Rulebook, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading rulebook: %w", err)
	}
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(v)
}

// compileRule parses a single rule declaration. Fail-fast within the
// rule: one broken field is enough to skip the declaration.
func compileRule(name string, v cue.Value) (RuleDecl, error) {
	decl := RuleDecl{Name: name}

	inputsVal := v.LookupPath(cue.ParsePath("inputs"))
	if inputsVal.Exists() {
		iter, err := inputsVal.List()
		if err != nil {
			return decl, &CompileError{
				Field:   fmt.Sprintf("rule.%s.inputs", name),
				Message: "inputs must be a list of path strings",
				Pos:     inputsVal.Pos(),
			}
		}
		for iter.Next() {
			text, err := iter.Value().String()
			if err != nil {
				return decl, &CompileError{
					Field:   fmt.Sprintf("rule.%s.inputs", name),
					Message: "inputs must be a list of path strings",
					Pos:     iter.Value().Pos(),
				}
			}
			p, err := path.Parse(text)
			if err != nil {
				return decl, &CompileError{
					Field:   fmt.Sprintf("rule.%s.inputs", name),
					Message: fmt.Sprintf("invalid path %q: %v", text, err),
					Pos:     iter.Value().Pos(),
				}
			}
			decl.Inputs = append(decl.Inputs, p)
		}
	}

	outputVal := v.LookupPath(cue.ParsePath("output"))
	if outputVal.Exists() {
		text, err := outputVal.String()
		if err != nil {
			return decl, &CompileError{
				Field:   fmt.Sprintf("rule.%s.output", name),
				Message: "output must be a path string",
				Pos:     outputVal.Pos(),
			}
		}
		p, err := path.Parse(text)
		if err != nil {
			return decl, &CompileError{
				Field:   fmt.Sprintf("rule.%s.output", name),
				Message: fmt.Sprintf("invalid path %q: %v", text, err),
				Pos:     outputVal.Pos(),
			}
		}
		decl.Output = &p
	}

	effectVal := v.LookupPath(cue.ParsePath("effect"))
	if effectVal.Exists() {
		b, err := effectVal.Bool()
		if err != nil {
			return decl, &CompileError{
				Field:   fmt.Sprintf("rule.%s.effect", name),
				Message: "effect must be a bool",
				Pos:     effectVal.Pos(),
			}
		}
		decl.Effect = b
	}

	chainVal := v.LookupPath(cue.ParsePath("chain"))
	if chainVal.Exists() {
		iter, err := chainVal.List()
		if err != nil {
			return decl, &CompileError{
				Field:   fmt.Sprintf("rule.%s.chain", name),
				Message: "chain must be a list of action names",
				Pos:     chainVal.Pos(),
			}
		}
		for iter.Next() {
			action, err := iter.Value().String()
			if err != nil {
				return decl, &CompileError{
					Field:   fmt.Sprintf("rule.%s.chain", name),
					Message: "chain must be a list of action names",
					Pos:     iter.Value().Pos(),
				}
			}
			decl.Chain = append(decl.Chain, action)
		}
	}

	return decl, nil
}

// cueToValue converts a concrete CUE value into a store value.
// Floats are forbidden: the cascade is defined over exact values only.
func cueToValue(v cue.Value) (value.Value, error) {
	switch v.Kind() {
	case cue.NullKind:
		return value.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.Bool(b), nil
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.Int(i), nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "seed",
			Message: "float values are forbidden, use int",
			Pos:     v.Pos(),
		}
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.String(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		list := value.List{}
		for iter.Next() {
			elem, err := cueToValue(iter.Value())
			if err != nil {
				return nil, err
			}
			list = append(list, elem)
		}
		return list, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		m := value.Map{}
		for iter.Next() {
			key := strings.Trim(iter.Label(), `"`)
			elem, err := cueToValue(iter.Value())
			if err != nil {
				return nil, err
			}
			m[key] = elem
		}
		return m, nil
	default:
		return nil, &CompileError{
			Field:   "seed",
			Message: fmt.Sprintf("seed values must be concrete, got kind %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
