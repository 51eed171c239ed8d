// SPDX-License-Identifier: MPL-2.0

// Package dag provides directed acyclic graph operations for topological sorting
// and cycle detection. The dependency manager uses it to order the rules of a
// cache directory so that every rule follows the rules it depends on.
package dag

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

type (
	// CycleError indicates that the graph contains a cycle, preventing topological ordering.
	CycleError struct {
		// Cycle contains the nodes left with unresolved incoming edges, in key order.
		Cycle []string
	}

	// Graph is a directed graph over ordered keys. An edge from A to B means
	// A must come before B.
	Graph[K cmp.Ordered] struct {
		adjacency map[K][]K
		nodes     map[K]struct{}
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// New creates an empty Graph.
func New[K cmp.Ordered]() *Graph[K] {
	return &Graph[K]{
		adjacency: make(map[K][]K),
		nodes:     make(map[K]struct{}),
	}
}

// AddNode adds a node to the graph. Adding an existing node is a no-op.
func (g *Graph[K]) AddNode(k K) {
	g.nodes[k] = struct{}{}
}

// AddEdge adds a directed edge from -> to. Both nodes are added if missing.
// Duplicate edges are ignored.
func (g *Graph[K]) AddEdge(from, to K) {
	g.AddNode(from)
	g.AddNode(to)
	if !slices.Contains(g.adjacency[from], to) {
		g.adjacency[from] = append(g.adjacency[from], to)
	}
}

// Len returns the number of nodes.
func (g *Graph[K]) Len() int { return len(g.nodes) }

// TopologicalSort returns an order in which every node follows its
// predecessors, using Kahn's algorithm. Among nodes that are ready at the
// same time the smallest key comes first, so the order depends only on the
// graph and never on insertion order. Returns CycleError if the graph has a cycle.
func (g *Graph[K]) TopologicalSort() ([]K, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[K]int, len(g.nodes))
	for k := range g.nodes {
		inDegree[k] += 0
	}
	for _, neighbors := range g.adjacency {
		for _, n := range neighbors {
			inDegree[n]++
		}
	}

	var ready []K
	for k, d := range inDegree {
		if d == 0 {
			ready = append(ready, k)
		}
	}
	slices.Sort(ready)

	result := make([]K, 0, len(g.nodes))
	for len(ready) > 0 {
		k := ready[0]
		ready = ready[1:]
		result = append(result, k)

		var released []K
		for _, n := range g.adjacency[k] {
			inDegree[n]--
			if inDegree[n] == 0 {
				released = append(released, n)
			}
		}
		if len(released) > 0 {
			ready = append(ready, released...)
			slices.Sort(ready)
		}
	}

	if len(result) != len(g.nodes) {
		var cycle []string
		for k, d := range inDegree {
			if d > 0 {
				cycle = append(cycle, fmt.Sprint(k))
			}
		}
		slices.Sort(cycle)
		return nil, &CycleError{Cycle: cycle}
	}
	return result, nil
}
