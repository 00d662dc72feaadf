package rulebook

import (
	"fmt"
	"sort"
	"strings"
)

// CycleWarning represents a feedback loop in the rule graph.
//
// Cycles are warnings, not errors: the engine fires each rule at most
// once per episode, so a cyclic book still settles. The warning exists
// because a cycle usually means two rules keep rewriting each other's
// inputs, and the author should confirm the loop converges on the
// values they expect.
type CycleWarning struct {
	Path    []string `json:"path"`    // cycle path: ["mirror", "echo", "mirror"]
	Message string   `json:"message"` // human-readable description
	Level   string   `json:"level"`   // "warning"
}

// AnalyzeCycles performs static cycle analysis on rule declarations.
//
// The algorithm:
//  1. Build a rule dependency graph: an edge a → b exists when a's
//     output path is one of b's inputs, since writing a's output can
//     complete b's input set.
//  2. Use Tarjan's algorithm to find strongly connected components.
//  3. Report each SCC with size > 1, and each self-loop, as a warning.
//
// Effect rules write nothing, so they never have outgoing edges.
// A DAG returns an empty warning list.
func AnalyzeCycles(rules []RuleDecl) []CycleWarning {
	if len(rules) == 0 {
		return []CycleWarning{}
	}

	graph := buildRuleGraph(rules)
	sccs := tarjanSCC(graph)

	var warnings []CycleWarning
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleWarning(scc, graph))
		}
	}

	return warnings
}

// ruleGraph maps rule name → names of rules its output can trigger.
type ruleGraph map[string][]string

func buildRuleGraph(rules []RuleDecl) ruleGraph {
	graph := make(ruleGraph, len(rules))

	// input path key → rules listening on it
	listeners := make(map[string][]string)
	for _, rule := range rules {
		for _, in := range rule.Inputs {
			key := in.Key()
			listeners[key] = append(listeners[key], rule.Name)
		}
	}

	for _, rule := range rules {
		if graph[rule.Name] == nil {
			graph[rule.Name] = []string{}
		}
		if rule.Output == nil {
			continue
		}
		graph[rule.Name] = append(graph[rule.Name], listeners[rule.Output.Key()]...)
	}

	return graph
}

func hasSelfLoop(node string, graph ruleGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of rule names.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph ruleGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack and collect its SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	// Visit nodes in sorted order so warning output is deterministic.
	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

func cycleWarning(scc []string, graph ruleGraph) CycleWarning {
	if len(scc) == 1 {
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("rule %q feeds its own input; it settles after one firing per episode", name),
			Level:   "warning",
		}
	}

	cyclePath := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    cyclePath,
		Message: fmt.Sprintf("rule cycle detected: %s; each rule fires at most once per episode", strings.Join(cyclePath, " -> ")),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a display path from an SCC by following
// edges between members until the walk returns to the start.
func reconstructCyclePath(scc []string, graph ruleGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool, len(scc))
	for _, node := range scc {
		sccSet[node] = true
	}

	// Tarjan pops SCCs in reverse visit order; sort for stable output.
	members := append([]string(nil), scc...)
	sort.Strings(members)

	start := members[0]
	current := start
	cyclePath := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			break
		}

		cyclePath = append(cyclePath, next)

		if next == start {
			break
		}

		current = next
	}

	return cyclePath
}
