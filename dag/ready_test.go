package dag

import (
	"reflect"
	"testing"
)

func diamondDefinition() Definition {
	return Definition{
		Name: "diamond",
		Nodes: map[string]NodeSpec{
			"a": {Handler: "noop"},
			"b": {Handler: "noop"},
			"c": {Handler: "noop"},
			"d": {Handler: "noop"},
		},
		Edges: map[string][]string{
			"a": {"b", "c"},
			"b": {"d"},
			"c": {"d"},
		},
		EntryNodeID: "a",
	}
}

func TestReadySteps(t *testing.T) {
	t.Run("only entry ready at start", func(t *testing.T) {
		got := ReadySteps(diamondDefinition(), nil)
		if !reflect.DeepEqual(got, []string{"a"}) {
			t.Errorf("expected [a], got %v", got)
		}
	})

	t.Run("fan out unblocks both branches", func(t *testing.T) {
		got := ReadySteps(diamondDefinition(), map[string]bool{"a": true})
		if !reflect.DeepEqual(got, []string{"b", "c"}) {
			t.Errorf("expected [b c], got %v", got)
		}
	})

	t.Run("join waits for every predecessor", func(t *testing.T) {
		got := ReadySteps(diamondDefinition(), map[string]bool{"a": true, "b": true})
		// d still needs c; b is done and drops out.
		if !reflect.DeepEqual(got, []string{"c"}) {
			t.Errorf("expected [c], got %v", got)
		}

		got = ReadySteps(diamondDefinition(), map[string]bool{"a": true, "b": true, "c": true})
		if !reflect.DeepEqual(got, []string{"d"}) {
			t.Errorf("expected [d], got %v", got)
		}
	})

	t.Run("all completed yields empty set", func(t *testing.T) {
		got := ReadySteps(diamondDefinition(), map[string]bool{
			"a": true, "b": true, "c": true, "d": true,
		})
		if len(got) != 0 {
			t.Errorf("expected no ready steps, got %v", got)
		}
	})

	t.Run("linear chain advances one at a time", func(t *testing.T) {
		def := linearDefinition()
		completed := map[string]bool{}
		var executed []string
		for {
			ready := ReadySteps(def, completed)
			if len(ready) == 0 {
				break
			}
			for _, id := range ready {
				completed[id] = true
				executed = append(executed, id)
			}
		}
		want := []string{"fetch", "transform", "publish"}
		if !reflect.DeepEqual(executed, want) {
			t.Errorf("expected execution order %v, got %v", want, executed)
		}
	})

	t.Run("idempotent for a fixed completed set", func(t *testing.T) {
		def := diamondDefinition()
		completed := map[string]bool{"a": true}
		first := ReadySteps(def, completed)
		second := ReadySteps(def, completed)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("results differ for identical input: %v vs %v", first, second)
		}
	})

	t.Run("completing more never blocks an uncompleted node", func(t *testing.T) {
		def := diamondDefinition()
		smaller := map[string]bool{"a": true}
		larger := map[string]bool{"a": true, "b": true}

		before := ReadySteps(def, smaller)
		after := ReadySteps(def, larger)

		inAfter := make(map[string]bool, len(after))
		for _, id := range after {
			inAfter[id] = true
		}
		for _, id := range before {
			if larger[id] {
				continue
			}
			if !inAfter[id] {
				t.Errorf("node %s was ready with %v but not with superset %v", id, smaller, larger)
			}
		}
	})

	t.Run("dangling predecessor does not gate readiness", func(t *testing.T) {
		def := Definition{
			Nodes: map[string]NodeSpec{
				"a": {Handler: "noop"},
				"b": {Handler: "noop"},
			},
			Edges: map[string][]string{
				"a":     {"b"},
				"ghost": {"b"},
			},
			EntryNodeID: "a",
		}
		got := ReadySteps(def, map[string]bool{"a": true})
		if !reflect.DeepEqual(got, []string{"b"}) {
			t.Errorf("expected [b], got %v", got)
		}
	})
}
