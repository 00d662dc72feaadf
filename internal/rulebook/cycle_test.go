package rulebook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lune4696/metamorphosys/internal/path"
)

// chainRule builds a single-input rule from in to out.
func chainRule(name, in, out string) RuleDecl {
	return RuleDecl{
		Name:   name,
		Inputs: []path.Path{path.MustParse(in)},
		Output: pathTo(out),
		Chain:  []string{"add"},
	}
}

func effectOn(name, in string) RuleDecl {
	return RuleDecl{
		Name:   name,
		Inputs: []path.Path{path.MustParse(in)},
		Effect: true,
		Chain:  []string{"print_trace"},
	}
}

// TestAnalyzeCycles_Empty tests that an empty rule list has no cycles.
func TestAnalyzeCycles_Empty(t *testing.T) {
	warnings := AnalyzeCycles(nil)
	assert.NotNil(t, warnings)
	assert.Empty(t, warnings)
}

// TestAnalyzeCycles_DAG tests that a linear rule chain has no cycles.
func TestAnalyzeCycles_DAG(t *testing.T) {
	rules := []RuleDecl{
		chainRule("heat", "a.b", "c.d"),
		chainRule("cool", "c.d", "e.f"),
	}

	assert.Empty(t, AnalyzeCycles(rules))
}

// TestAnalyzeCycles_SelfLoop tests a rule whose output is its own input.
func TestAnalyzeCycles_SelfLoop(t *testing.T) {
	rules := []RuleDecl{chainRule("echo", "a.b", "a.b")}

	warnings := AnalyzeCycles(rules)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"echo", "echo"}, warnings[0].Path)
	assert.Equal(t, "warning", warnings[0].Level)
}

func TestAnalyzeCycles_SelfLoopMessage(t *testing.T) {
	warnings := AnalyzeCycles([]RuleDecl{chainRule("echo", "a.b", "a.b")})

	require.Len(t, warnings, 1)
	assert.Equal(t,
		`rule "echo" feeds its own input; it settles after one firing per episode`,
		warnings[0].Message)
}

// TestAnalyzeCycles_TwoRuleCycle tests two rules feeding each other.
func TestAnalyzeCycles_TwoRuleCycle(t *testing.T) {
	rules := []RuleDecl{
		chainRule("ping", "a.b", "c.d"),
		chainRule("pong", "c.d", "a.b"),
	}

	warnings := AnalyzeCycles(rules)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"ping", "pong", "ping"}, warnings[0].Path)
	assert.Equal(t,
		"rule cycle detected: ping -> pong -> ping; each rule fires at most once per episode",
		warnings[0].Message)
}

func TestAnalyzeCycles_ThreeRuleCycle(t *testing.T) {
	rules := []RuleDecl{
		chainRule("heat", "a.b", "c.d"),
		chainRule("cool", "c.d", "e.f"),
		chainRule("vent", "e.f", "a.b"),
	}

	warnings := AnalyzeCycles(rules)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"cool", "vent", "heat", "cool"}, warnings[0].Path)
	assert.Contains(t, warnings[0].Message, "cool -> vent -> heat -> cool")
}

// TestAnalyzeCycles_EffectRulesNoEdges tests that effect rules write
// nothing and therefore never close a loop.
func TestAnalyzeCycles_EffectRulesNoEdges(t *testing.T) {
	rules := []RuleDecl{
		chainRule("mirror", "a.b", "c.d"),
		effectOn("audit", "a.b"),
		effectOn("sink", "c.d"),
	}

	assert.Empty(t, AnalyzeCycles(rules))
}

// TestAnalyzeCycles_CycleBesideDAG tests that unrelated rules do not
// widen a reported cycle.
func TestAnalyzeCycles_CycleBesideDAG(t *testing.T) {
	rules := []RuleDecl{
		chainRule("ping", "a.b", "c.d"),
		chainRule("pong", "c.d", "a.b"),
		chainRule("straight", "e.f", "g.h"),
	}

	warnings := AnalyzeCycles(rules)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"ping", "pong", "ping"}, warnings[0].Path)
}

func TestAnalyzeCycles_TwoIndependentCycles(t *testing.T) {
	rules := []RuleDecl{
		chainRule("ping", "a.b", "c.d"),
		chainRule("pong", "c.d", "a.b"),
		chainRule("tick", "e.f", "g.h"),
		chainRule("tock", "g.h", "e.f"),
	}

	warnings := AnalyzeCycles(rules)
	require.Len(t, warnings, 2)
	assert.Equal(t, []string{"ping", "pong", "ping"}, warnings[0].Path)
	assert.Equal(t, []string{"tick", "tock", "tick"}, warnings[1].Path)
}

// =============================================================================
// Graph Helpers
// =============================================================================

func TestBuildRuleGraph(t *testing.T) {
	rules := []RuleDecl{
		chainRule("mirror", "a.b", "c.d"),
		chainRule("follow", "c.d", "e.f"),
	}

	graph := buildRuleGraph(rules)
	assert.Equal(t, []string{"follow"}, graph["mirror"])
	assert.Empty(t, graph["follow"])
}

func TestBuildRuleGraph_MultipleListeners(t *testing.T) {
	rules := []RuleDecl{
		chainRule("source", "a.b", "c.d"),
		chainRule("left", "c.d", "e.f"),
		chainRule("right", "c.d", "g.h"),
	}

	graph := buildRuleGraph(rules)
	assert.ElementsMatch(t, []string{"left", "right"}, graph["source"])
}

func TestHasSelfLoop(t *testing.T) {
	graph := ruleGraph{
		"echo":   {"echo"},
		"mirror": {"echo"},
	}

	assert.True(t, hasSelfLoop("echo", graph))
	assert.False(t, hasSelfLoop("mirror", graph))
}

func TestTarjanSCC_DAG(t *testing.T) {
	graph := ruleGraph{
		"a": {"b"},
		"b": {"c"},
		"c": {},
	}

	sccs := tarjanSCC(graph)
	assert.Len(t, sccs, 3)
	for _, scc := range sccs {
		assert.Len(t, scc, 1)
	}
}

func TestTarjanSCC_TwoNodeCycle(t *testing.T) {
	graph := ruleGraph{
		"x": {"y"},
		"y": {"x"},
	}

	sccs := tarjanSCC(graph)
	require.Len(t, sccs, 1)
	assert.ElementsMatch(t, []string{"x", "y"}, sccs[0])
}

func TestReconstructCyclePath_Empty(t *testing.T) {
	assert.Empty(t, reconstructCyclePath(nil, ruleGraph{}))
}

func TestReconstructCyclePath_TwoNodes(t *testing.T) {
	graph := ruleGraph{
		"x": {"y"},
		"y": {"x"},
	}

	cyclePath := reconstructCyclePath([]string{"y", "x"}, graph)
	assert.Equal(t, []string{"x", "y", "x"}, cyclePath)
}
