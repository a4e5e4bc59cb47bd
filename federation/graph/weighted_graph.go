package graph

import (
	"container/heap"
	"fmt"
)

// GraphEdge is a directed edge between two services holding the same entity:
// the source can supply every field of Key, so the destination can resolve
// the entity from a representation built by the source.
type GraphEdge struct {
	To     string
	Key    *Key
	Weight int
}

// GraphNode represents one service in the routing graph of an entity type.
type GraphNode struct {
	Service string
	Edges   []*GraphEdge
	order   int
}

// WeightedDirectedGraph is the routing graph of one entity type. Every edge
// costs one fetch.
type WeightedDirectedGraph struct {
	TypeName string
	Nodes    map[string]*GraphNode
}

// buildEntityGraph creates the routing graph of an entity once, at composition.
func (sg *SuperGraph) buildEntityGraph(t *Type) *WeightedDirectedGraph {
	g := &WeightedDirectedGraph{
		TypeName: t.Name,
		Nodes:    make(map[string]*GraphNode, len(t.services)),
	}
	for _, service := range t.services {
		g.Nodes[service] = &GraphNode{
			Service: service,
			Edges:   edgesFrom(t, service, sg.supplier(service, t.Name)),
			order:   sg.serviceIndex[service],
		}
	}
	return g
}

// supplier returns the CanSupply predicate of service for typeName.
func (sg *SuperGraph) supplier(service, typeName string) func(string) bool {
	return func(fieldName string) bool {
		return sg.CanSupply(service, typeName, fieldName)
	}
}

// edgesFrom lists the services reachable in one fetch from a service able to
// supply the given fields. The chosen key of each edge is the first key set of
// the destination, in declaration order, that the source can supply.
func edgesFrom(t *Type, from string, supplies func(string) bool) []*GraphEdge {
	var edges []*GraphEdge
	for _, to := range t.services {
		if to == from {
			continue
		}
		if key := satisfiableKey(t.keys[to], supplies); key != nil {
			edges = append(edges, &GraphEdge{To: to, Key: key, Weight: 1})
		}
	}
	return edges
}

func satisfiableKey(keys []*Key, supplies func(string) bool) *Key {
	for _, key := range keys {
		if suppliesAll(supplies, key.FieldSet) {
			return key
		}
	}
	return nil
}

func suppliesAll(supplies func(string) bool, fs FieldSet) bool {
	for _, sel := range fs {
		if !supplies(sel.Name) {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------
// Dijkstra priority queue implementation
// -----------------------------------------------------------------------

// dijkstraItem is an element in the priority queue.
type dijkstraItem struct {
	service string
	cost    int
	order   int
	index   int // maintained by heap.Interface
}

// dijkstraPQ implements heap.Interface for a min-heap of dijkstraItem.
// Equal costs are ordered by service declaration order so routes are stable.
type dijkstraPQ []*dijkstraItem

func (pq dijkstraPQ) Len() int { return len(pq) }
func (pq dijkstraPQ) Less(i, j int) bool {
	if pq[i].cost != pq[j].cost {
		return pq[i].cost < pq[j].cost
	}
	return pq[i].order < pq[j].order
}
func (pq dijkstraPQ) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}
func (pq *dijkstraPQ) Push(x any) {
	n := len(*pq)
	item := x.(*dijkstraItem)
	item.index = n
	*pq = append(*pq, item)
}
func (pq *dijkstraPQ) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// DijkstraResult contains the shortest path information from a Dijkstra run.
type DijkstraResult struct {
	// Dist maps service -> minimum number of fetches to reach it from the source.
	Dist map[string]int
	// Prev maps service -> the edge used to reach it.
	Prev map[string]*dijkstraStep
}

type dijkstraStep struct {
	from string
	edge *GraphEdge
}

// Dijkstra runs Dijkstra's algorithm from source. sourceEdges replaces the
// precomputed edges of the source, whose supply can be widened by @provides.
func (g *WeightedDirectedGraph) Dijkstra(source string, sourceOrder int, sourceEdges []*GraphEdge) *DijkstraResult {
	dist := map[string]int{source: 0}
	prev := make(map[string]*dijkstraStep)
	done := make(map[string]bool)

	pq := &dijkstraPQ{}
	heap.Init(pq)
	heap.Push(pq, &dijkstraItem{service: source, cost: 0, order: sourceOrder})

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*dijkstraItem)
		u := item.service
		if done[u] {
			continue // stale entry
		}
		done[u] = true

		edges := sourceEdges
		if u != source {
			edges = g.Nodes[u].Edges
		}
		for _, e := range edges {
			newCost := dist[u] + e.Weight
			if cost, ok := dist[e.To]; ok && cost <= newCost {
				continue
			}
			dist[e.To] = newCost
			prev[e.To] = &dijkstraStep{from: u, edge: e}
			heap.Push(pq, &dijkstraItem{service: e.To, cost: newCost, order: g.Nodes[e.To].order})
		}
	}

	return &DijkstraResult{Dist: dist, Prev: prev}
}

// ReconstructPath returns the edges from the source to dst, or nil when dst is
// the source or unreachable.
func (r *DijkstraResult) ReconstructPath(dst string) []*GraphEdge {
	var path []*GraphEdge
	for cur := dst; ; {
		step, ok := r.Prev[cur]
		if !ok {
			break
		}
		path = append([]*GraphEdge{step.edge}, path...)
		cur = step.from
	}
	return path
}

// Hop is one entity fetch of a Route: the service fetched, the key its
// representation carries and, on the last hop, the @requires fields.
type Hop struct {
	Service  string
	Key      *Key
	Requires FieldSet
}

// Route is the chain of entity fetches that brings an entity from one service
// to the service owning a field.
type Route struct {
	Hops []*Hop
}

// Cost returns the number of fetches of the route.
func (r *Route) Cost() int {
	return len(r.Hops)
}

// Route finds the cheapest chain of entity fetches that lets service `to`
// resolve a field of an entity currently held by service `from`. supplied adds
// fields the source can return beyond its own definitions (@provides). The final
// hop must carry a key of `to` and every field of requires. Ties are broken by
// service declaration order.
func (sg *SuperGraph) Route(typeName, from string, supplied []string, to string, requires FieldSet) (*Route, error) {
	if from == to {
		return &Route{}, nil
	}

	t := sg.types[typeName]
	targetKeys, err := sg.KeyFieldsFor(typeName, to)
	if err != nil {
		return nil, err
	}

	provided := make(map[string]bool, len(supplied))
	for _, name := range supplied {
		provided[name] = true
	}
	sourceSupplies := func(fieldName string) bool {
		return provided[fieldName] || sg.CanSupply(from, typeName, fieldName)
	}

	g := sg.graphs[typeName]
	if g == nil {
		return nil, fmt.Errorf("%w: type %q has no routing graph", ErrNotAnEntity, typeName)
	}
	res := g.Dijkstra(from, sg.ServiceIndex(from), edgesFrom(t, from, sourceSupplies))

	var (
		last    string
		lastKey *Key
	)
	candidates := append([]string{from}, t.services...)
	for _, service := range candidates {
		if service == to {
			continue
		}
		cost, reached := res.Dist[service]
		if !reached {
			continue
		}
		supplies := sg.supplier(service, typeName)
		if service == from {
			supplies = sourceSupplies
		}
		key := satisfiableKey(targetKeys, supplies)
		if key == nil || !suppliesAll(supplies, requires) {
			continue
		}
		if last == "" || cost < res.Dist[last] || (cost == res.Dist[last] && sg.ServiceIndex(service) < sg.ServiceIndex(last)) {
			last, lastKey = service, key
		}
	}
	if last == "" {
		if len(requires) > 0 {
			return nil, fmt.Errorf("%w: no service can supply a representation of %q with %q for %q starting from %q", ErrUnsatisfiableRequirement, typeName, requires.String(), to, from)
		}
		return nil, fmt.Errorf("%w: no service can supply a representation of %q for %q starting from %q", ErrUnsatisfiableRequirement, typeName, to, from)
	}

	route := &Route{}
	for _, e := range res.ReconstructPath(last) {
		route.Hops = append(route.Hops, &Hop{Service: e.To, Key: e.Key})
	}
	route.Hops = append(route.Hops, &Hop{Service: to, Key: lastKey, Requires: requires})

	return route, nil
}
