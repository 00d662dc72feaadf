package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestRulebook writes a minimal valid rulebook for scenarios to
// reference.
func createTestRulebook(t *testing.T, dir string) string {
	t.Helper()
	content := `seed: {
	a: {b: 0}
	c: {d: 0}
}

rule: "mirror": {
	inputs: ["a.b"]
	output: "c.d"
	chain: ["add"]
}
`
	rulebookPath := filepath.Join(dir, "counter.cue")
	require.NoError(t, os.WriteFile(rulebookPath, []byte(content), 0644))
	return rulebookPath
}

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	rulebookPath := createTestRulebook(t, dir)
	scenarioPath := filepath.Join(dir, "test.yaml")

	content := `
name: test_scenario
description: "Counter mirrors on observation"
rulebook: ` + rulebookPath + `
episodes:
  - observe: a.b
    apply: increment
  - observe: a.b
    set: 5
    expect: already_observed
    reset: false
assertions:
  - type: final_value
    path: c.d
    equals: 1
`
	require.NoError(t, os.WriteFile(scenarioPath, []byte(content), 0644))

	scenario, err := LoadScenario(scenarioPath)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Counter mirrors on observation", scenario.Description)
	assert.Equal(t, rulebookPath, scenario.Rulebook)
	require.Len(t, scenario.Episodes, 2)
	assert.Equal(t, "a.b", scenario.Episodes[0].Observe)
	assert.Equal(t, "increment", scenario.Episodes[0].Apply)
	assert.Equal(t, "", scenario.Episodes[0].Expect)
	assert.True(t, scenario.Episodes[0].ShouldReset())
	assert.Equal(t, 5, scenario.Episodes[1].Set)
	assert.Equal(t, "already_observed", scenario.Episodes[1].Expect)
	assert.False(t, scenario.Episodes[1].ShouldReset())
	require.Len(t, scenario.Assertions, 1)
	assert.Equal(t, AssertFinalValue, scenario.Assertions[0].Type)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	scenarioPath := filepath.Join(dir, "test.yaml")

	content := `
name: test
description: "Test"
episodes:
  - broken yaml
  unclosed: [bracket
`
	require.NoError(t, os.WriteFile(scenarioPath, []byte(content), 0644))

	_, err := LoadScenario(scenarioPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_RequiredFields(t *testing.T) {
	dir := t.TempDir()
	rulebookPath := createTestRulebook(t, dir)

	episode := "\n  - observe: a.b\n    apply: increment"
	assertion := "\n  - type: fired_count\n    rule: a.b\n    count: 1"

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "missing_name",
			yaml: fmt.Sprintf("description: d\nrulebook: %s\nepisodes:%s\nassertions:%s\n",
				rulebookPath, episode, assertion),
			wantErr: "name is required",
		},
		{
			name: "missing_description",
			yaml: fmt.Sprintf("name: t\nrulebook: %s\nepisodes:%s\nassertions:%s\n",
				rulebookPath, episode, assertion),
			wantErr: "description is required",
		},
		{
			name:    "missing_rulebook",
			yaml:    fmt.Sprintf("name: t\ndescription: d\nepisodes:%s\nassertions:%s\n", episode, assertion),
			wantErr: "rulebook is required",
		},
		{
			name: "rulebook_not_found",
			yaml: fmt.Sprintf("name: t\ndescription: d\nrulebook: /nonexistent/book.cue\nepisodes:%s\nassertions:%s\n",
				episode, assertion),
			wantErr: "rulebook file not found",
		},
		{
			name:    "empty_episodes",
			yaml:    fmt.Sprintf("name: t\ndescription: d\nrulebook: %s\nepisodes: []\nassertions:%s\n", rulebookPath, assertion),
			wantErr: "episodes list is required",
		},
		{
			name:    "empty_assertions",
			yaml:    fmt.Sprintf("name: t\ndescription: d\nrulebook: %s\nepisodes:%s\nassertions: []\n", rulebookPath, episode),
			wantErr: "assertions list is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenarioPath := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(scenarioPath, []byte(tt.yaml), 0644))

			_, err := LoadScenario(scenarioPath)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_EpisodeValidation(t *testing.T) {
	dir := t.TempDir()
	rulebookPath := createTestRulebook(t, dir)

	tests := []struct {
		name        string
		episodeYAML string
		wantErr     string
	}{
		{
			name:        "apply_valid",
			episodeYAML: "  - observe: a.b\n    apply: increment",
			wantErr:     "",
		},
		{
			name:        "set_valid",
			episodeYAML: "  - observe: a.b\n    set: 42",
			wantErr:     "",
		},
		{
			name:        "missing_observe",
			episodeYAML: "  - apply: increment",
			wantErr:     "episodes[0]: observe is required",
		},
		{
			name:        "invalid_observe_path",
			episodeYAML: "  - observe: \"a..b\"\n    apply: increment",
			wantErr:     "episodes[0]: invalid observe path",
		},
		{
			name:        "apply_and_set",
			episodeYAML: "  - observe: a.b\n    apply: increment\n    set: 1",
			wantErr:     "episodes[0]: apply and set are mutually exclusive",
		},
		{
			name:        "neither_apply_nor_set",
			episodeYAML: "  - observe: a.b",
			wantErr:     "episodes[0]: one of apply or set is required",
		},
		{
			name:        "unknown_mutator",
			episodeYAML: "  - observe: a.b\n    apply: quadruple",
			wantErr:     `episodes[0]: unknown mutator "quadruple"`,
		},
		{
			name:        "float_set_rejected",
			episodeYAML: "  - observe: a.b\n    set: 1.5",
			wantErr:     "episodes[0]: set:",
		},
		{
			name:        "unknown_expect",
			episodeYAML: "  - observe: a.b\n    apply: increment\n    expect: maybe",
			wantErr:     `episodes[0]: unknown expect "maybe"`,
		},
		{
			name:        "second_episode_indexed",
			episodeYAML: "  - observe: a.b\n    apply: increment\n  - observe: a.b",
			wantErr:     "episodes[1]: one of apply or set is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := fmt.Sprintf(`name: test
description: "Test"
rulebook: %s
episodes:
%s
assertions:
  - type: fired_count
    rule: a.b
    count: 1
`, rulebookPath, tt.episodeYAML)

			scenarioPath := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(scenarioPath, []byte(content), 0644))

			_, err := LoadScenario(scenarioPath)
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadScenario_AssertionTypes(t *testing.T) {
	dir := t.TempDir()
	rulebookPath := createTestRulebook(t, dir)

	tests := []struct {
		name          string
		assertionYAML string
		wantErr       string
	}{
		{
			name:          "final_value_valid",
			assertionYAML: "  - type: final_value\n    path: c.d\n    equals: 1",
			wantErr:       "",
		},
		{
			name:          "final_value_missing_path",
			assertionYAML: "  - type: final_value\n    equals: 1",
			wantErr:       "path is required for final_value",
		},
		{
			name:          "final_value_invalid_path",
			assertionYAML: "  - type: final_value\n    path: \"c..d\"\n    equals: 1",
			wantErr:       "invalid path",
		},
		{
			name:          "final_value_missing_equals",
			assertionYAML: "  - type: final_value\n    path: c.d",
			wantErr:       "equals is required for final_value",
		},
		{
			name:          "final_value_float_equals",
			assertionYAML: "  - type: final_value\n    path: c.d\n    equals: 0.5",
			wantErr:       "equals:",
		},
		{
			name:          "fired_count_valid",
			assertionYAML: "  - type: fired_count\n    rule: a.b\n    count: 2",
			wantErr:       "",
		},
		{
			name:          "fired_count_multi_member_rule",
			assertionYAML: "  - type: fired_count\n    rule: a.b|c.d\n    count: 1",
			wantErr:       "",
		},
		{
			name:          "fired_count_missing_rule",
			assertionYAML: "  - type: fired_count\n    count: 2",
			wantErr:       "rule is required for fired_count",
		},
		{
			name:          "fired_count_invalid_rule",
			assertionYAML: "  - type: fired_count\n    rule: \"a..b\"\n    count: 1",
			wantErr:       "invalid rule",
		},
		{
			name:          "fired_count_zero_allowed",
			assertionYAML: "  - type: fired_count\n    rule: a.b\n    count: 0",
			wantErr:       "",
		},
		{
			name:          "fired_count_negative_rejected",
			assertionYAML: "  - type: fired_count\n    rule: a.b\n    count: -1",
			wantErr:       "count must be non-negative for fired_count",
		},
		{
			name:          "outcome_sequence_valid",
			assertionYAML: "  - type: outcome_sequence\n    outcomes: [success, already_observed]",
			wantErr:       "",
		},
		{
			name:          "outcome_sequence_missing_outcomes",
			assertionYAML: "  - type: outcome_sequence",
			wantErr:       "outcomes list is required for outcome_sequence",
		},
		{
			name:          "outcome_sequence_unknown_outcome",
			assertionYAML: "  - type: outcome_sequence\n    outcomes: [success, exploded]",
			wantErr:       `unknown outcome "exploded"`,
		},
		{
			name:          "unknown_type",
			assertionYAML: "  - type: trace_contains\n    rule: a.b",
			wantErr:       "unknown assertion type",
		},
		{
			name:          "missing_type",
			assertionYAML: "  - rule: a.b",
			wantErr:       "type is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := fmt.Sprintf(`name: test
description: "Test"
rulebook: %s
episodes:
  - observe: a.b
    apply: increment
assertions:
%s
`, rulebookPath, tt.assertionYAML)

			scenarioPath := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(scenarioPath, []byte(content), 0644))

			_, err := LoadScenario(scenarioPath)
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadScenario_UnknownFieldsRejected(t *testing.T) {
	dir := t.TempDir()
	rulebookPath := createTestRulebook(t, dir)

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "typo_assertion_singular",
			yaml: fmt.Sprintf(`
name: test
description: Test typo
rulebook: %s
episodes:
  - observe: a.b
    apply: increment
assertion:
  - type: fired_count
    rule: a.b
    count: 1
`, rulebookPath),
			wantErr: "field assertion not found",
		},
		{
			name: "typo_in_episode_step",
			yaml: fmt.Sprintf(`
name: test
description: Test typo
rulebook: %s
episodes:
  - observ: a.b
    apply: increment
assertions:
  - type: fired_count
    rule: a.b
    count: 1
`, rulebookPath),
			wantErr: "field observ not found",
		},
		{
			name: "unknown_top_level_field",
			yaml: fmt.Sprintf(`
name: test
description: Test typo
rulebook: %s
flow_token: abc
episodes:
  - observe: a.b
    apply: increment
assertions:
  - type: fired_count
    rule: a.b
    count: 1
`, rulebookPath),
			wantErr: "field flow_token not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenarioPath := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(scenarioPath, []byte(tt.yaml), 0644))

			_, err := LoadScenario(scenarioPath)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	dir := t.TempDir()
	createTestRulebook(t, dir)
	scenarioPath := filepath.Join(dir, "test.yaml")

	content := `
name: test
description: "Relative rulebook path"
rulebook: counter.cue
episodes:
  - observe: a.b
    apply: increment
assertions:
  - type: fired_count
    rule: a.b
    count: 1
`
	require.NoError(t, os.WriteFile(scenarioPath, []byte(content), 0644))

	// Without a base path the relative rulebook resolves against the
	// working directory and is not found.
	_, err := LoadScenario(scenarioPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rulebook file not found")

	scenario, err := LoadScenarioWithBasePath(scenarioPath, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "counter.cue"), scenario.Rulebook)
}

func TestLoadScenarioWithBasePath_AbsoluteRulebookPath(t *testing.T) {
	dir := t.TempDir()
	rulebookPath := createTestRulebook(t, dir)
	scenarioPath := filepath.Join(dir, "test.yaml")

	content := fmt.Sprintf(`
name: test
description: "Absolute rulebook path"
rulebook: %s
episodes:
  - observe: a.b
    apply: increment
assertions:
  - type: fired_count
    rule: a.b
    count: 1
`, rulebookPath)
	require.NoError(t, os.WriteFile(scenarioPath, []byte(content), 0644))

	// Absolute paths are not joined with the base.
	scenario, err := LoadScenarioWithBasePath(scenarioPath, "/some/other/base")
	require.NoError(t, err)
	assert.Equal(t, rulebookPath, scenario.Rulebook)
}

func TestEpisodeStep_ShouldReset(t *testing.T) {
	yes, no := true, false

	assert.True(t, EpisodeStep{}.ShouldReset())
	assert.True(t, EpisodeStep{Reset: &yes}.ShouldReset())
	assert.False(t, EpisodeStep{Reset: &no}.ShouldReset())
}

func TestAssertionConstants(t *testing.T) {
	assert.Equal(t, "final_value", AssertFinalValue)
	assert.Equal(t, "fired_count", AssertFiredCount)
	assert.Equal(t, "outcome_sequence", AssertOutcomeSequence)
}

// TestLoadExampleScenarios validates the example scenario files in
// testdata/scenarios. These serve as documentation and regression
// fixtures for the golden tests.
func TestLoadExampleScenarios(t *testing.T) {
	tests := []struct {
		name         string
		scenarioFile string
		wantEpisodes int
		wantAsserts  int
	}{
		{
			name:         "counter_cascade",
			scenarioFile: "testdata/scenarios/counter_cascade.yaml",
			wantEpisodes: 2,
			wantAsserts:  3,
		},
		{
			name:         "cascade_ripple",
			scenarioFile: "testdata/scenarios/cascade_ripple.yaml",
			wantEpisodes: 1,
			wantAsserts:  5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario, err := LoadScenarioWithBasePath(tt.scenarioFile, filepath.Dir(tt.scenarioFile))
			require.NoError(t, err, "failed to load example scenario %s", tt.scenarioFile)

			assert.Equal(t, tt.name, scenario.Name)
			assert.Len(t, scenario.Episodes, tt.wantEpisodes)
			assert.Len(t, scenario.Assertions, tt.wantAsserts)
		})
	}
}
