package rulebook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lune4696/metamorphosys/internal/path"
	"github.com/lune4696/metamorphosys/internal/value"
)

// stockActions stands in for the builtin action set; validation only
// looks at names.
var stockActions = []string{"add", "negate", "print_trace"}

func pathTo(s string) *path.Path {
	p := path.MustParse(s)
	return &p
}

func counterSeed() value.Map {
	return value.Map{
		"a": value.Map{"b": value.Int(0)},
		"c": value.Map{"d": value.Int(0)},
	}
}

func mirrorRule() RuleDecl {
	return RuleDecl{
		Name:   "mirror",
		Inputs: []path.Path{path.MustParse("a.b")},
		Output: pathTo("c.d"),
		Chain:  []string{"add"},
	}
}

// =============================================================================
// Rule Validation
// =============================================================================

func TestValidateValid(t *testing.T) {
	rb := &Rulebook{Seed: counterSeed(), Rules: []RuleDecl{mirrorRule()}}

	errs := Validate(rb, stockActions)
	assert.Empty(t, errs)
}

func TestValidateEffectRuleValid(t *testing.T) {
	rule := RuleDecl{
		Name:   "audit",
		Inputs: []path.Path{path.MustParse("a.b")},
		Effect: true,
		Chain:  []string{"print_trace"},
	}
	rb := &Rulebook{Seed: counterSeed(), Rules: []RuleDecl{rule}}

	errs := Validate(rb, stockActions)
	assert.Empty(t, errs)
}

func TestValidateNoInputs(t *testing.T) {
	rule := mirrorRule()
	rule.Inputs = nil
	rb := &Rulebook{Seed: counterSeed(), Rules: []RuleDecl{rule}}

	errs := Validate(rb, stockActions)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrRuleNoInputs, errs[0].Code)
	assert.Equal(t, "rule.mirror.inputs", errs[0].Field)
}

func TestValidateDuplicateInput(t *testing.T) {
	rule := mirrorRule()
	rule.Inputs = []path.Path{path.MustParse("a.b"), path.MustParse("a.b")}
	rb := &Rulebook{Seed: counterSeed(), Rules: []RuleDecl{rule}}

	errs := Validate(rb, stockActions)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateInput, errs[0].Code)
	assert.Contains(t, errs[0].Message, `duplicate input path "a.b"`)
}

func TestValidateInputNotInSeed(t *testing.T) {
	rule := mirrorRule()
	rule.Inputs = []path.Path{path.MustParse("x.y")}
	rb := &Rulebook{Seed: counterSeed(), Rules: []RuleDecl{rule}}

	errs := Validate(rb, stockActions)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrPathNotInSeed, errs[0].Code)
	assert.Contains(t, errs[0].Message, `path "x.y" does not resolve in the seed tree`)
}

func TestValidateOutputNotInSeed(t *testing.T) {
	rule := mirrorRule()
	rule.Output = pathTo("x.y")
	rb := &Rulebook{Seed: counterSeed(), Rules: []RuleDecl{rule}}

	errs := Validate(rb, stockActions)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrPathNotInSeed, errs[0].Code)
	assert.Equal(t, "rule.mirror.output", errs[0].Field)
}

// TestValidateListIndexInputs verifies that seed resolution uses store
// lookup rules, so list elements are addressable by index.
func TestValidateListIndexInputs(t *testing.T) {
	seed := value.Map{
		"items": value.List{value.Int(1), value.Int(2)},
		"c":     value.Map{"d": value.Int(0)},
	}

	rule := mirrorRule()
	rule.Inputs = []path.Path{path.MustParse("items.1")}
	rb := &Rulebook{Seed: seed, Rules: []RuleDecl{rule}}
	assert.Empty(t, Validate(rb, stockActions))

	rule.Inputs = []path.Path{path.MustParse("items.5")}
	rb = &Rulebook{Seed: seed, Rules: []RuleDecl{rule}}
	errs := Validate(rb, stockActions)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrPathNotInSeed, errs[0].Code)
}

func TestValidateOutputEffectConflict(t *testing.T) {
	rule := mirrorRule()
	rule.Effect = true
	rb := &Rulebook{Seed: counterSeed(), Rules: []RuleDecl{rule}}

	errs := Validate(rb, stockActions)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrRuleOutputConflict, errs[0].Code)
	assert.Contains(t, errs[0].Message, "pick one")
}

func TestValidateMissingOutput(t *testing.T) {
	rule := mirrorRule()
	rule.Output = nil
	rb := &Rulebook{Seed: counterSeed(), Rules: []RuleDecl{rule}}

	errs := Validate(rb, stockActions)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrRuleOutputConflict, errs[0].Code)
	assert.Contains(t, errs[0].Message, "must declare an output path or effect: true")
}

func TestValidateNoChain(t *testing.T) {
	rule := mirrorRule()
	rule.Chain = nil
	rb := &Rulebook{Seed: counterSeed(), Rules: []RuleDecl{rule}}

	errs := Validate(rb, stockActions)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrRuleNoChain, errs[0].Code)
}

func TestValidateUnknownAction(t *testing.T) {
	rule := mirrorRule()
	rule.Chain = []string{"add", "warp"}
	rb := &Rulebook{Seed: counterSeed(), Rules: []RuleDecl{rule}}

	errs := Validate(rb, stockActions)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnknownAction, errs[0].Code)
	assert.Contains(t, errs[0].Message, `unknown action "warp"`)
}

func TestValidateDuplicateRule(t *testing.T) {
	rb := &Rulebook{Seed: counterSeed(), Rules: []RuleDecl{mirrorRule(), mirrorRule()}}

	errs := Validate(rb, stockActions)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateRule, errs[0].Code)
	assert.Equal(t, "rule.mirror", errs[0].Field)
	assert.Contains(t, errs[0].Message, `duplicate rule name: "mirror"`)
}

// TestValidateCollectsAllErrors verifies validation does not fail
// fast: a hollow rule reports every gap at once.
func TestValidateCollectsAllErrors(t *testing.T) {
	rule := RuleDecl{Name: "husk", Output: pathTo("c.d")}
	rb := &Rulebook{Seed: counterSeed(), Rules: []RuleDecl{rule}}

	errs := Validate(rb, stockActions)
	require.Len(t, errs, 2)
	assert.Equal(t, ErrRuleNoInputs, errs[0].Code)
	assert.Equal(t, ErrRuleNoChain, errs[1].Code)
}

// =============================================================================
// Seed Validation
// =============================================================================

func TestValidateSeedKeySeparator(t *testing.T) {
	rb := &Rulebook{Seed: value.Map{"a|b": value.Int(0)}}

	errs := Validate(rb, stockActions)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrInvalidSeedKey, errs[0].Code)
	assert.Equal(t, "seed", errs[0].Field)
	assert.Contains(t, errs[0].Message, `unaddressable seed key "a|b"`)
}

func TestValidateSeedKeyEmpty(t *testing.T) {
	rb := &Rulebook{Seed: value.Map{"": value.Int(0)}}

	errs := Validate(rb, stockActions)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrInvalidSeedKey, errs[0].Code)
}

func TestValidateSeedKeyNotNFC(t *testing.T) {
	rb := &Rulebook{Seed: value.Map{"cafe\u0301": value.Int(1)}}

	errs := Validate(rb, stockActions)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrInvalidSeedKey, errs[0].Code)
	assert.Contains(t, errs[0].Message, "is not NFC-normalized")
}

func TestValidateNestedSeedKeys(t *testing.T) {
	rb := &Rulebook{Seed: value.Map{
		"a": value.Map{"ok": value.Int(1), "b|c": value.Int(2)},
	}}

	errs := Validate(rb, stockActions)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrInvalidSeedKey, errs[0].Code)
	assert.Equal(t, "seed.a", errs[0].Field)
}

// =============================================================================
// Error Format
// =============================================================================

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{
		Field:   "rule.mirror.chain",
		Message: `unknown action "warp"`,
		Code:    ErrUnknownAction,
	}

	assert.Equal(t, `[E104] rule.mirror.chain: unknown action "warp"`, err.Error())
}
