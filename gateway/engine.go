package gateway

import (
	"fmt"

	"github.com/pampang/federation/federation/graph"
	"github.com/pampang/federation/federation/planner"
	"go.uber.org/zap"
)

// planningEngine bundles the read-only components required to plan requests.
type planningEngine struct {
	planner    *planner.Planner
	superGraph *graph.SuperGraph
}

// schemaStore holds the current set of raw SDLs, host URLs, and the pre-built engine.
// It is stored in an atomic pointer, so every value must be read-only after it is
// constructed.
type schemaStore struct {
	order  []string          // subgraph names in composition order
	sdls   map[string]string // subgraph name → SDL string
	hosts  map[string]string // subgraph name → base URL
	engine *planningEngine
}

// buildEngine composes a new SuperGraph from the given SDLs in the given order
// and wraps it in a planningEngine.
func buildEngine(order []string, sdls, hosts map[string]string, logger *zap.Logger) (*planningEngine, error) {
	subGraphs := make([]*graph.SubGraph, 0, len(order))
	for _, name := range order {
		sg, err := graph.NewSubGraph(name, []byte(sdls[name]), hosts[name])
		if err != nil {
			return nil, fmt.Errorf("failed to build subgraph %q: %w", name, err)
		}
		subGraphs = append(subGraphs, sg)
	}

	superGraph, err := graph.NewSuperGraph(subGraphs...)
	if err != nil {
		return nil, fmt.Errorf("composition failed: %w", err)
	}

	return &planningEngine{
		planner:    planner.NewPlanner(superGraph, planner.WithLogger(logger)),
		superGraph: superGraph,
	}, nil
}

// withService returns a copy of the store with one subgraph added or replaced.
// The engine of the copy is not built yet.
func (s *schemaStore) withService(name, host, sdl string) *schemaStore {
	next := &schemaStore{
		order: append([]string(nil), s.order...),
		sdls:  copyMap(s.sdls),
		hosts: copyMap(s.hosts),
	}
	if _, ok := next.sdls[name]; !ok {
		next.order = append(next.order, name)
	}
	next.sdls[name] = sdl
	if host != "" || next.hosts[name] == "" {
		next.hosts[name] = host
	}
	return next
}

// copyMap returns a shallow copy of a string map.
func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
