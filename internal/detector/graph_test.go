package detector

import (
	"reflect"
	"testing"
)

func TestCotradeGraphComponents(t *testing.T) {
	g := newCotradeGraph()
	g.addEdge("a", "b", edgeInfo{Weight: 1})
	g.addEdge("b", "c", edgeInfo{Weight: 1})
	g.addEdge("x", "y", edgeInfo{Weight: 1})

	components := g.components()
	if len(components) != 2 {
		t.Fatalf("component count = %d, want 2", len(components))
	}

	sizes := map[int]bool{}
	for _, c := range components {
		sizes[len(c)] = true
	}
	if !sizes[3] || !sizes[2] {
		t.Errorf("component sizes wrong: %v", components)
	}

	// First-inserted node leads the first component.
	if components[0][0] != "a" {
		t.Errorf("first component starts with %s, want a", components[0][0])
	}
}

func TestCotradeGraphDeterministicOrder(t *testing.T) {
	build := func() *cotradeGraph {
		g := newCotradeGraph()
		g.addEdge("w3", "w1", edgeInfo{})
		g.addEdge("w2", "w3", edgeInfo{})
		g.addEdge("w4", "w2", edgeInfo{})
		return g
	}

	first := build().components()
	for i := 0; i < 20; i++ {
		if got := build().components(); !reflect.DeepEqual(got, first) {
			t.Fatalf("component order varies between identical builds: %v vs %v", got, first)
		}
	}
}

func TestEdgeBetweenIsUnordered(t *testing.T) {
	g := newCotradeGraph()
	g.addEdge("a", "b", edgeInfo{Weight: 7, Coordination: 0.9})

	info, ok := g.edgeBetween("b", "a")
	if !ok {
		t.Fatal("edge lookup failed in reverse order")
	}
	if info.Weight != 7 || info.Coordination != 0.9 {
		t.Errorf("edge payload = %+v", info)
	}
}

func TestOrderedSetKeepsInsertionOrder(t *testing.T) {
	s := newOrderedSet()
	for _, v := range []string{"m2", "m1", "m3", "m1", "m2"} {
		s.add(v)
	}

	want := []string{"m2", "m1", "m3"}
	if got := s.values(); !reflect.DeepEqual(got, want) {
		t.Errorf("values = %v, want %v", got, want)
	}
	if s.len() != 3 {
		t.Errorf("len = %d, want 3", s.len())
	}
}
