// SPDX-License-Identifier: MPL-2.0

package dag

import (
	"errors"
	"slices"
	"testing"
)

func TestTopologicalSortEmpty(t *testing.T) {
	t.Parallel()
	order, err := New[string]().TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order != nil {
		t.Errorf("expected nil, got %v", order)
	}
}

func TestTopologicalSortIgnoresInsertionOrder(t *testing.T) {
	t.Parallel()

	a := New[string]()
	a.AddNode("guava")
	a.AddNode("failureaccess")
	a.AddNode("annotations")

	b := New[string]()
	b.AddNode("annotations")
	b.AddNode("guava")
	b.AddNode("failureaccess")

	orderA, errA := a.TopologicalSort()
	orderB, errB := b.TopologicalSort()
	if errA != nil || errB != nil {
		t.Fatalf("unexpected errors: %v, %v", errA, errB)
	}
	want := []string{"annotations", "failureaccess", "guava"}
	if !slices.Equal(orderA, want) || !slices.Equal(orderB, want) {
		t.Fatalf("orders = %v, %v; want %v", orderA, orderB, want)
	}
}

func TestTopologicalSortChildrenFirst(t *testing.T) {
	t.Parallel()

	g := New[string]()
	// children before parents: failureaccess and jsr305 before guava
	g.AddEdge("failureaccess", "guava")
	g.AddEdge("jsr305", "guava")
	g.AddEdge("guava", "app")
	g.AddNode("aaa-standalone")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"aaa-standalone", "failureaccess", "jsr305", "guava", "app"}
	if !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestTopologicalSortIntKeys(t *testing.T) {
	t.Parallel()

	g := New[int]()
	g.AddEdge(3, 1)
	g.AddEdge(2, 1)
	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(order, []int{2, 3, 1}) {
		t.Errorf("order = %v", order)
	}
}

func TestTopologicalSortCycle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		edges [][2]string
		want  []string
	}{
		{"self loop", [][2]string{{"a", "a"}}, []string{"a"}},
		{"two nodes", [][2]string{{"a", "b"}, {"b", "a"}}, []string{"a", "b"}},
		{"three nodes behind a root", [][2]string{{"root", "a"}, {"a", "b"}, {"b", "c"}, {"c", "a"}}, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := New[string]()
			for _, e := range tt.edges {
				g.AddEdge(e[0], e[1])
			}
			_, err := g.TopologicalSort()
			var cycleErr *CycleError
			if !errors.As(err, &cycleErr) {
				t.Fatalf("expected *CycleError, got %T: %v", err, err)
			}
			if !slices.Equal(cycleErr.Cycle, tt.want) {
				t.Errorf("cycle = %v, want %v", cycleErr.Cycle, tt.want)
			}
		})
	}
}

func TestAddEdgeDeduplicates(t *testing.T) {
	t.Parallel()

	g := New[string]()
	g.AddEdge("a", "b")
	g.AddEdge("a", "b")
	if g.Len() != 2 {
		t.Fatalf("Len() = %d", g.Len())
	}
	order, err := g.TopologicalSort()
	if err != nil || !slices.Equal(order, []string{"a", "b"}) {
		t.Fatalf("order = %v, %v", order, err)
	}
}

func TestCycleErrorMessage(t *testing.T) {
	t.Parallel()
	err := &CycleError{Cycle: []string{"A", "B", "C"}}
	if got := err.Error(); got != "dependency cycle detected: A -> B -> C" {
		t.Errorf("Error() = %q", got)
	}
}
