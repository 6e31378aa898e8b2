package dag

import (
	"reflect"
	"testing"
)

// mapSuccessors builds a Successors view over a plain adjacency map.
func mapSuccessors(edges map[string][]string) Successors {
	return func(id string) []string {
		return edges[id]
	}
}

func TestHasCycle(t *testing.T) {
	t.Run("empty graph", func(t *testing.T) {
		if HasCycle(nil, mapSuccessors(nil)) {
			t.Error("empty graph should not have a cycle")
		}
	})

	t.Run("single node no edges", func(t *testing.T) {
		if HasCycle([]string{"a"}, mapSuccessors(nil)) {
			t.Error("single node should not have a cycle")
		}
	})

	t.Run("self edge is a cycle of length one", func(t *testing.T) {
		edges := map[string][]string{"a": {"a"}}
		if !HasCycle([]string{"a"}, mapSuccessors(edges)) {
			t.Error("self edge should be detected as a cycle")
		}
	})

	t.Run("two node cycle", func(t *testing.T) {
		edges := map[string][]string{"a": {"b"}, "b": {"a"}}
		if !HasCycle([]string{"a", "b"}, mapSuccessors(edges)) {
			t.Error("a->b->a should be detected as a cycle")
		}
	})

	t.Run("acyclic diamond", func(t *testing.T) {
		edges := map[string][]string{
			"a": {"b", "c"},
			"b": {"d"},
			"c": {"d"},
		}
		if HasCycle([]string{"a", "b", "c", "d"}, mapSuccessors(edges)) {
			t.Error("diamond should not have a cycle")
		}
	})

	t.Run("cycle in disconnected component", func(t *testing.T) {
		edges := map[string][]string{
			"a": {"b"},
			"x": {"y"},
			"y": {"x"},
		}
		if !HasCycle([]string{"a", "b", "x", "y"}, mapSuccessors(edges)) {
			t.Error("cycle in unreachable component should be detected")
		}
	})

	t.Run("dangling edge target is ignored", func(t *testing.T) {
		edges := map[string][]string{"a": {"ghost"}, "ghost": {"a"}}
		// "ghost" is not in the node set, so its back-edge contributes
		// nothing.
		if HasCycle([]string{"a"}, mapSuccessors(edges)) {
			t.Error("edges to unknown nodes should not create cycles")
		}
	})
}

func TestTopologicalOrder(t *testing.T) {
	t.Run("linear chain", func(t *testing.T) {
		edges := map[string][]string{"a": {"b"}, "b": {"c"}}
		order, err := TopologicalOrder([]string{"c", "a", "b"}, mapSuccessors(edges))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"a", "b", "c"}
		if !reflect.DeepEqual(order, want) {
			t.Errorf("expected order %v, got %v", want, order)
		}
	})

	t.Run("every edge points forward", func(t *testing.T) {
		edges := map[string][]string{
			"a": {"b", "c"},
			"b": {"d"},
			"c": {"d"},
			"e": {"a"},
		}
		nodes := []string{"a", "b", "c", "d", "e"}
		order, err := TopologicalOrder(nodes, mapSuccessors(edges))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		pos := make(map[string]int, len(order))
		for i, id := range order {
			pos[id] = i
		}
		for from, tos := range edges {
			for _, to := range tos {
				if pos[from] >= pos[to] {
					t.Errorf("edge %s->%s violated by order %v", from, to, order)
				}
			}
		}
	})

	t.Run("deterministic across input order", func(t *testing.T) {
		edges := map[string][]string{"m": {"z"}, "a": {"z"}}
		first, err := TopologicalOrder([]string{"z", "m", "a"}, mapSuccessors(edges))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := TopologicalOrder([]string{"a", "z", "m"}, mapSuccessors(edges))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("order not deterministic: %v vs %v", first, second)
		}
		want := []string{"a", "m", "z"}
		if !reflect.DeepEqual(first, want) {
			t.Errorf("expected lexicographic tie-break %v, got %v", want, first)
		}
	})

	t.Run("cycle returns ErrCyclic and no partial order", func(t *testing.T) {
		edges := map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"a"}}
		order, err := TopologicalOrder([]string{"a", "b", "c"}, mapSuccessors(edges))
		if err != ErrCyclic {
			t.Fatalf("expected ErrCyclic, got %v", err)
		}
		if order != nil {
			t.Errorf("expected nil order on cycle, got %v", order)
		}
	})

	t.Run("agrees with HasCycle", func(t *testing.T) {
		graphs := []map[string][]string{
			{},
			{"a": {"a"}},
			{"a": {"b"}, "b": {"c"}},
			{"a": {"b"}, "b": {"a"}},
			{"a": {"b", "c"}, "b": {"d"}, "c": {"d"}},
			{"a": {"b"}, "b": {"c"}, "c": {"b"}},
		}
		for _, edges := range graphs {
			nodes := make(map[string]bool)
			for from, tos := range edges {
				nodes[from] = true
				for _, to := range tos {
					nodes[to] = true
				}
			}
			ids := sortedIDs(nodes)

			_, err := TopologicalOrder(ids, mapSuccessors(edges))
			cyclic := HasCycle(ids, mapSuccessors(edges))
			if cyclic != (err == ErrCyclic) {
				t.Errorf("graph %v: HasCycle=%v but TopologicalOrder err=%v", edges, cyclic, err)
			}
		}
	})

	t.Run("empty graph yields empty order", func(t *testing.T) {
		order, err := TopologicalOrder(nil, mapSuccessors(nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(order) != 0 {
			t.Errorf("expected empty order, got %v", order)
		}
	})
}
