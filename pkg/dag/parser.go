// Package dag parses graph definitions into a validated, deterministically
// ordered execution plan.
package dag

import (
	"fmt"
	"strings"

	"github.com/flowrun-io/flowrun/pkg/models"
)

// ParseResult is the outcome of validating a graph definition.
type ParseResult struct {
	Valid          bool                `json:"valid"`
	Errors         []string            `json:"errors"`
	Warnings       []string            `json:"warnings"`
	EntryPoints    []string            `json:"entry_points"`
	ExitPoints     []string            `json:"exit_points"`
	ExecutionOrder []string            `json:"execution_order"`
	Dependencies   map[string][]string `json:"dependencies"`
}

func (r *ParseResult) addError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Valid = false
}

func (r *ParseResult) addWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// knownNodeTypes is the set of node types that parse without a warning.
// Unknown types still execute (the registry falls back to the generic
// action handler), so they only warn.
var knownNodeTypes = map[string]bool{
	"trigger": true, "input": true, "start": true, "action": true,
	"condition": true, "if": true, "branch": true, "switch": true,
	"loop": true, "foreach": true, "iterate": true, "output": true, "end": true,
	"http": true, "api": true, "request": true, "httprequest": true,
	"script": true, "js": true, "code": true, "transform": true, "log": true,
	"wait": true, "delay": true, "sleep": true, "approval": true,
	"cron": true, "schedule": true, "scheduletrigger": true, "subflow": true,
}

// Parse validates a graph definition and computes its execution plan.
// The execution order is a topological sort with ties broken by node
// declaration order, so the same definition always yields the same plan.
func Parse(def *models.GraphDefinition) *ParseResult {
	result := &ParseResult{
		Valid:        true,
		Errors:       []string{},
		Warnings:     []string{},
		EntryPoints:  []string{},
		ExitPoints:   []string{},
		Dependencies: make(map[string][]string),
	}

	if def == nil {
		result.addError("graph definition is nil")

		return result
	}

	if len(def.Nodes) == 0 {
		result.addError("graph has no nodes")

		return result
	}

	nodeIndex := make(map[string]int, len(def.Nodes))

	for i, node := range def.Nodes {
		if node.ID == "" {
			result.addError(fmt.Sprintf("node at position %d has no id", i))

			continue
		}

		if _, dup := nodeIndex[node.ID]; dup {
			result.addError("duplicate node id: " + node.ID)

			continue
		}

		nodeIndex[node.ID] = i

		if node.Type == "" {
			result.addWarning("node " + node.ID + " has no type specified")
		} else if !knownNodeTypes[strings.ToLower(node.Type)] {
			result.addWarning("node " + node.ID + " has unknown type: " + node.Type)
		}
	}

	adjacency := make(map[string][]string, len(def.Nodes))
	inDegree := make(map[string]int, len(def.Nodes))

	for _, node := range def.Nodes {
		adjacency[node.ID] = nil
		inDegree[node.ID] = 0
		result.Dependencies[node.ID] = []string{}
	}

	for _, edge := range def.Edges {
		if _, ok := nodeIndex[edge.Source]; !ok {
			result.addError("edge references non-existent source node: " + edge.Source)

			continue
		}

		if _, ok := nodeIndex[edge.Target]; !ok {
			result.addError("edge references non-existent target node: " + edge.Target)

			continue
		}

		if edge.Source == edge.Target {
			result.addError("self-loop detected on node: " + edge.Source)

			continue
		}

		if contains(adjacency[edge.Source], edge.Target) {
			// Parallel edges of different types share one dependency.
			continue
		}

		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
		inDegree[edge.Target]++
		result.Dependencies[edge.Target] = append(result.Dependencies[edge.Target], edge.Source)
	}

	for _, node := range def.Nodes {
		if inDegree[node.ID] == 0 {
			result.EntryPoints = append(result.EntryPoints, node.ID)
		}

		if len(adjacency[node.ID]) == 0 {
			result.ExitPoints = append(result.ExitPoints, node.ID)
		}
	}

	if len(result.EntryPoints) == 0 {
		result.addError("graph has no entry points (all nodes have incoming edges, possibly a cycle)")
	}

	if len(result.ExitPoints) == 0 {
		result.addWarning("graph has no exit points (all nodes have outgoing edges)")
	}

	order, ok := topologicalSort(def.Nodes, adjacency, inDegree)
	if !ok {
		result.addError("cycle detected: graph must be a directed acyclic graph")
	} else {
		result.ExecutionOrder = order
	}

	return result
}

// topologicalSort runs Kahn's algorithm over the dependency graph. At each
// step the ready node that was declared earliest is taken, which makes the
// order deterministic for a given definition.
func topologicalSort(nodes []*models.GraphNode, adjacency map[string][]string, inDegree map[string]int) ([]string, bool) {
	remaining := make(map[string]int, len(inDegree))
	for id, deg := range inDegree {
		remaining[id] = deg
	}

	order := make([]string, 0, len(nodes))
	visited := make(map[string]bool, len(nodes))

	for len(order) < len(remaining) {
		picked := ""

		for _, node := range nodes {
			if !visited[node.ID] && remaining[node.ID] == 0 {
				picked = node.ID

				break
			}
		}

		if picked == "" {
			return nil, false
		}

		visited[picked] = true
		order = append(order, picked)

		for _, next := range adjacency[picked] {
			remaining[next]--
		}
	}

	return order, true
}

// EdgeSet groups a node's outgoing edges by their routing type.
type EdgeSet struct {
	Success []*models.GraphEdge
	Error   []*models.GraphEdge
	Always  []*models.GraphEdge
}

// HasErrorPath reports whether a failure of the source node can be
// contained by routing along an error or always edge.
func (s EdgeSet) HasErrorPath() bool {
	return len(s.Error) > 0 || len(s.Always) > 0
}

// ErrorTargets returns the distinct targets of error and always edges, in
// edge declaration order.
func (s EdgeSet) ErrorTargets() []string {
	targets := make([]string, 0, len(s.Error)+len(s.Always))

	for _, edge := range s.Error {
		if !contains(targets, edge.Target) {
			targets = append(targets, edge.Target)
		}
	}

	for _, edge := range s.Always {
		if !contains(targets, edge.Target) {
			targets = append(targets, edge.Target)
		}
	}

	return targets
}

// OutgoingEdgesByType classifies a node's outgoing edges. Classification is
// a pure lookup on the declared edge type; untyped edges count as success.
func OutgoingEdgesByType(def *models.GraphDefinition, sourceNodeID string) EdgeSet {
	var set EdgeSet

	for _, edge := range def.Edges {
		if edge.Source != sourceNodeID {
			continue
		}

		switch {
		case edge.IsError():
			set.Error = append(set.Error, edge)
		case edge.IsAlways():
			set.Always = append(set.Always, edge)
		default:
			set.Success = append(set.Success, edge)
		}
	}

	return set
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}

	return false
}
