package schema

import (
	"fmt"
	"sort"
	"strings"
)

// RelationGraph is the dependency graph between persistent types. A type
// depends on its persistent superclass and on the types its non-embedded
// relation fields point to.
type RelationGraph struct {
	nodes map[string]*ClassMetaData
	edges map[string][]string // type -> dependencies
}

// NewRelationGraph builds the graph over metas. Edges to types outside metas
// are kept so ValidateGraph can report them.
func NewRelationGraph(metas []*ClassMetaData) *RelationGraph {
	graph := &RelationGraph{
		nodes: make(map[string]*ClassMetaData, len(metas)),
		edges: make(map[string][]string),
	}
	for _, meta := range metas {
		graph.nodes[meta.typ.Name] = meta
	}

	for name, meta := range graph.nodes {
		seen := make(map[string]bool)
		add := func(dep string) {
			if dep != "" && dep != name && !seen[dep] {
				seen[dep] = true
				graph.edges[name] = append(graph.edges[name], dep)
			}
		}

		if sup := meta.PCSuperclass(); sup != nil {
			add(sup.Name)
		}
		for _, f := range meta.DeclaredFields() {
			for _, v := range []*ValueMetaData{f.val, f.key, f.elem} {
				if v.IsEmbedded() || f.mappedBy != "" {
					continue
				}
				if related := v.TypeMetaData(); related != nil {
					add(related.typ.Name)
				}
			}
		}
		sort.Strings(graph.edges[name])
	}

	return graph
}

// NewRepositoryGraph builds the graph over every cached descriptor of r
func NewRepositoryGraph(r *Repository) *RelationGraph {
	return NewRelationGraph(r.AllMetaData())
}

func (g *RelationGraph) sortedNodes() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DetectCycles returns the dependency cycles of the graph
func (g *RelationGraph) DetectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)

	var dfs func(node string, path []string) bool
	dfs = func(node string, path []string) bool {
		visited[node] = true
		recursionStack[node] = true
		path = append(path, node)

		for _, neighbor := range g.edges[node] {
			if !visited[neighbor] {
				if dfs(neighbor, path) {
					return true
				}
			} else if recursionStack[neighbor] {
				// Found cycle
				for i, n := range path {
					if n == neighbor {
						cycle := make([]string, len(path)-i)
						copy(cycle, path[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
				return true
			}
		}

		recursionStack[node] = false
		return false
	}

	for _, node := range g.sortedNodes() {
		if !visited[node] {
			dfs(node, []string{})
		}
	}

	return cycles
}

// TopologicalSort returns the types in dependency order (dependencies first).
// Dependencies outside the graph are ignored.
func (g *RelationGraph) TopologicalSort() ([]string, error) {
	outDegree := make(map[string]int)
	reverseEdges := make(map[string][]string)
	for _, node := range g.sortedNodes() {
		for _, dep := range g.edges[node] {
			if _, ok := g.nodes[dep]; !ok {
				continue
			}
			outDegree[node]++
			reverseEdges[dep] = append(reverseEdges[dep], node)
		}
	}

	queue := []string{}
	for _, node := range g.sortedNodes() {
		if outDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := []string{}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, dependent := range reverseEdges[node] {
			outDegree[dependent]--
			if outDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.nodes) {
		if cycles := g.DetectCycles(); len(cycles) > 0 {
			return nil, fmt.Errorf("circular dependency detected: %s", formatCycles(cycles))
		}
		return nil, fmt.Errorf("circular dependency detected")
	}

	return result, nil
}

// Dependencies returns the direct dependencies of a type
func (g *RelationGraph) Dependencies(name string) []string {
	return append([]string{}, g.edges[name]...)
}

// Dependents returns the types that depend directly on the given type
func (g *RelationGraph) Dependents(name string) []string {
	dependents := []string{}
	for _, node := range g.sortedNodes() {
		for _, dep := range g.edges[node] {
			if dep == name {
				dependents = append(dependents, node)
				break
			}
		}
	}
	return dependents
}

// ValidateGraph reports dependencies on types missing from the graph
func (g *RelationGraph) ValidateGraph() error {
	for _, node := range g.sortedNodes() {
		for _, dep := range g.edges[node] {
			if _, exists := g.nodes[dep]; !exists {
				return &ValidationError{
					Type:    node,
					Message: fmt.Sprintf("references type %s which has no metadata", dep),
					Hint:    "load the related type into the same repository",
				}
			}
		}
	}
	return nil
}

func formatCycles(cycles [][]string) string {
	var b strings.Builder
	for i, cycle := range cycles {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "  Cycle %d: %s -> %s", i+1, strings.Join(cycle, " -> "), cycle[0])
	}
	return b.String()
}

// DependencyReport contains the results of dependency analysis
type DependencyReport struct {
	TotalTypes       int
	Dependencies     map[string][]string
	Dependents       map[string][]string
	CircularDeps     [][]string
	HasCycles        bool
	TopologicalOrder []string
}

// Analyze builds a DependencyReport. Cycles are reported, not returned as an
// error; relation cycles are legal between persistent types.
func (g *RelationGraph) Analyze() *DependencyReport {
	report := &DependencyReport{
		TotalTypes:   len(g.nodes),
		Dependencies: make(map[string][]string),
		Dependents:   make(map[string][]string),
	}

	for name := range g.nodes {
		report.Dependencies[name] = g.Dependencies(name)
		report.Dependents[name] = g.Dependents(name)
	}

	if cycles := g.DetectCycles(); len(cycles) > 0 {
		report.CircularDeps = cycles
		report.HasCycles = true
	}

	if order, err := g.TopologicalSort(); err == nil {
		report.TopologicalOrder = order
	}

	return report
}

// String formats the dependency report
func (r *DependencyReport) String() string {
	var b strings.Builder

	b.WriteString("Dependency Analysis Report\n")
	fmt.Fprintf(&b, "Total Types: %d\n\n", r.TotalTypes)

	if r.HasCycles {
		b.WriteString("Circular dependencies:\n")
		b.WriteString(formatCycles(r.CircularDeps))
		b.WriteString("\n\n")
	}

	if len(r.TopologicalOrder) > 0 {
		b.WriteString("Dependency Order:\n")
		for i, name := range r.TopologicalOrder {
			if deps := r.Dependencies[name]; len(deps) > 0 {
				fmt.Fprintf(&b, "  %d. %s (depends on: %s)\n", i+1, name, strings.Join(deps, ", "))
			} else {
				fmt.Fprintf(&b, "  %d. %s (no dependencies)\n", i+1, name)
			}
		}
	}

	return b.String()
}
