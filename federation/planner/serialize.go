package planner

import (
	"fmt"

	"github.com/goccy/go-json"
)

type queryPlanJSON struct {
	Kind string `json:"kind"`
	Node any    `json:"node"`
}

type fetchJSON struct {
	Kind           string                `json:"kind"`
	ServiceName    string                `json:"serviceName"`
	Requires       []*inlineFragmentJSON `json:"requires,omitempty"`
	VariableUsages []string              `json:"variableUsages"`
	Operation      string                `json:"operation"`
}

type flattenJSON struct {
	Kind string   `json:"kind"`
	Path []string `json:"path"`
	Node any      `json:"node"`
}

type nodesJSON struct {
	Kind  string `json:"kind"`
	Nodes []any  `json:"nodes"`
}

type inlineFragmentJSON struct {
	Kind          string       `json:"kind"`
	TypeCondition string       `json:"typeCondition"`
	Selections    []*fieldJSON `json:"selections"`
}

type fieldJSON struct {
	Kind       string       `json:"kind"`
	Name       string       `json:"name"`
	Selections []*fieldJSON `json:"selections,omitempty"`
}

// MarshalJSON encodes the plan as {"kind":"QueryPlan","node":...}.
func (qp *QueryPlan) MarshalJSON() ([]byte, error) {
	node, err := encodeNode(qp.Node)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&queryPlanJSON{Kind: "QueryPlan", Node: node})
}

func (n *FetchNode) MarshalJSON() ([]byte, error)    { return marshalNode(n) }
func (n *FlattenNode) MarshalJSON() ([]byte, error)  { return marshalNode(n) }
func (n *SequenceNode) MarshalJSON() ([]byte, error) { return marshalNode(n) }
func (n *ParallelNode) MarshalJSON() ([]byte, error) { return marshalNode(n) }

func marshalNode(n PlanNode) ([]byte, error) {
	v, err := encodeNode(n)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// encodeNode converts a plan node into its wire shape.
func encodeNode(node PlanNode) (any, error) {
	if node == nil {
		return nil, nil
	}

	switch n := node.(type) {
	case *FetchNode:
		usages := n.VariableUsages
		if usages == nil {
			usages = []string{}
		}
		return &fetchJSON{
			Kind:           string(KindFetch),
			ServiceName:    n.ServiceName,
			Requires:       encodeRepresentations(n.Requires),
			VariableUsages: usages,
			Operation:      n.Operation,
		}, nil
	case *FlattenNode:
		child, err := encodeNode(n.Node)
		if err != nil {
			return nil, err
		}
		path := []string(n.Path)
		if path == nil {
			path = []string{}
		}
		return &flattenJSON{Kind: string(KindFlatten), Path: path, Node: child}, nil
	case *SequenceNode:
		return encodeNodes(KindSequence, n.Nodes)
	case *ParallelNode:
		return encodeNodes(KindParallel, n.Nodes)
	default:
		return nil, fmt.Errorf("unknown plan node %T", node)
	}
}

func encodeNodes(kind NodeKind, nodes []PlanNode) (any, error) {
	out := &nodesJSON{Kind: string(kind), Nodes: make([]any, 0, len(nodes))}
	for _, child := range nodes {
		v, err := encodeNode(child)
		if err != nil {
			return nil, err
		}
		out.Nodes = append(out.Nodes, v)
	}
	return out, nil
}

func encodeRepresentations(reps []*Representation) []*inlineFragmentJSON {
	if len(reps) == 0 {
		return nil
	}
	out := make([]*inlineFragmentJSON, 0, len(reps))
	for _, r := range reps {
		out = append(out, &inlineFragmentJSON{
			Kind:          "InlineFragment",
			TypeCondition: r.TypeCondition,
			Selections:    encodeRequiredFields(r.Selections),
		})
	}
	return out
}

func encodeRequiredFields(fields []*RequiredField) []*fieldJSON {
	if len(fields) == 0 {
		return nil
	}
	out := make([]*fieldJSON, 0, len(fields))
	for _, f := range fields {
		out = append(out, &fieldJSON{Kind: "Field", Name: f.Name, Selections: encodeRequiredFields(f.Selections)})
	}
	return out
}
