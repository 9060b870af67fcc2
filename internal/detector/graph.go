package detector

// orderedSet is a string set that remembers insertion order, so cluster
// market lists and graph traversals stay deterministic across runs.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

func (s *orderedSet) len() int { return len(s.items) }

func (s *orderedSet) values() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// pairKey identifies an unordered wallet pair; A is always the lesser
// address.
type pairKey struct {
	A, B string
}

func makePairKey(w1, w2 string) pairKey {
	if w2 < w1 {
		w1, w2 = w2, w1
	}
	return pairKey{A: w1, B: w2}
}

// edgeInfo is the payload on a co-trading edge.
type edgeInfo struct {
	// Weight is the number of (market, time-bucket) cells the pair
	// co-occurred in.
	Weight int

	// Markets are the distinct markets the pair co-occurred in.
	Markets []string

	// Coordination is the pair's same-side ratio, 0-1.
	Coordination float64
}

// cotradeGraph is an undirected graph of wallets connected by coordinated
// joint activity. Nodes and adjacency lists keep insertion order beside the
// lookup maps so connected components come out in a stable order.
type cotradeGraph struct {
	nodes    []string
	nodeSeen map[string]struct{}
	adj      map[string][]string
	edges    map[pairKey]edgeInfo
}

func newCotradeGraph() *cotradeGraph {
	return &cotradeGraph{
		nodeSeen: make(map[string]struct{}),
		adj:      make(map[string][]string),
		edges:    make(map[pairKey]edgeInfo),
	}
}

func (g *cotradeGraph) addNode(w string) {
	if _, ok := g.nodeSeen[w]; ok {
		return
	}
	g.nodeSeen[w] = struct{}{}
	g.nodes = append(g.nodes, w)
}

// addEdge inserts an undirected edge between w1 and w2, creating nodes as
// needed. Adding an existing edge overwrites its payload.
func (g *cotradeGraph) addEdge(w1, w2 string, info edgeInfo) {
	key := makePairKey(w1, w2)
	if _, exists := g.edges[key]; !exists {
		g.addNode(w1)
		g.addNode(w2)
		g.adj[w1] = append(g.adj[w1], w2)
		g.adj[w2] = append(g.adj[w2], w1)
	}
	g.edges[key] = info
}

// edgeBetween returns the payload of the edge between w1 and w2, if any.
func (g *cotradeGraph) edgeBetween(w1, w2 string) (edgeInfo, bool) {
	info, ok := g.edges[makePairKey(w1, w2)]
	return info, ok
}

// components returns the connected components in deterministic order:
// components by first-inserted node, members in traversal order.
func (g *cotradeGraph) components() [][]string {
	visited := make(map[string]struct{}, len(g.nodes))
	var components [][]string

	for _, start := range g.nodes {
		if _, ok := visited[start]; ok {
			continue
		}

		// Iterative DFS; adjacency lists are insertion-ordered.
		var component []string
		stack := []string{start}
		visited[start] = struct{}{}
		for len(stack) > 0 {
			node := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, node)
			for _, next := range g.adj[node] {
				if _, ok := visited[next]; !ok {
					visited[next] = struct{}{}
					stack = append(stack, next)
				}
			}
		}
		components = append(components, component)
	}
	return components
}
