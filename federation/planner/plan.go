package planner

import "strings"

// NodeKind is the variant tag of a plan node.
type NodeKind string

const (
	KindFetch    NodeKind = "Fetch"
	KindFlatten  NodeKind = "Flatten"
	KindSequence NodeKind = "Sequence"
	KindParallel NodeKind = "Parallel"
)

// PlanNode is one node of a query plan. The set of implementations is closed:
// *FetchNode, *FlattenNode, *SequenceNode and *ParallelNode.
type PlanNode interface {
	Kind() NodeKind
	planNode()
}

// QueryPlan is the result of planning one operation. Node is nil when nothing
// has to be fetched.
type QueryPlan struct {
	Node PlanNode
}

// ResponsePath is a path into the response. "@" stands for every element of
// the list at that position.
type ResponsePath []string

func (p ResponsePath) String() string {
	return strings.Join(p, ".")
}

// RequiredField is one field of a representation.
type RequiredField struct {
	Name       string
	Selections []*RequiredField
}

// Representation is the `__typename` plus key (and @requires) selection an
// entity fetch needs for entities of one runtime type.
type Representation struct {
	TypeCondition string
	Selections    []*RequiredField
}

// FetchNode is one operation sent to one service.
type FetchNode struct {
	ServiceName    string
	VariableUsages []string
	Requires       []*Representation
	Operation      string

	// PlanningOnly lists fields added by the planner that the client did not
	// select, relative to the fetch's selection root (each entity for entity
	// fetches). They must be removed from the merged response.
	PlanningOnly []ResponsePath
}

// FlattenNode merges the result of Node at Path.
type FlattenNode struct {
	Path ResponsePath
	Node PlanNode
}

// SequenceNode runs Nodes in order.
type SequenceNode struct {
	Nodes []PlanNode
}

// ParallelNode runs Nodes in any order.
type ParallelNode struct {
	Nodes []PlanNode
}

func (*FetchNode) Kind() NodeKind    { return KindFetch }
func (*FlattenNode) Kind() NodeKind  { return KindFlatten }
func (*SequenceNode) Kind() NodeKind { return KindSequence }
func (*ParallelNode) Kind() NodeKind { return KindParallel }

func (*FetchNode) planNode()    {}
func (*FlattenNode) planNode()  {}
func (*SequenceNode) planNode() {}
func (*ParallelNode) planNode() {}

// Fetches returns every fetch of the plan in depth-first order.
func (qp *QueryPlan) Fetches() []*FetchNode {
	var fetches []*FetchNode
	Walk(qp.Node, func(n PlanNode) {
		if f, ok := n.(*FetchNode); ok {
			fetches = append(fetches, f)
		}
	})
	return fetches
}

// Walk calls fn for node and every node below it, parents first.
func Walk(node PlanNode, fn func(PlanNode)) {
	if node == nil {
		return
	}
	fn(node)
	switch n := node.(type) {
	case *FlattenNode:
		Walk(n.Node, fn)
	case *SequenceNode:
		for _, child := range n.Nodes {
			Walk(child, fn)
		}
	case *ParallelNode:
		for _, child := range n.Nodes {
			Walk(child, fn)
		}
	}
}

func flatWrapSequence(nodes []PlanNode) PlanNode {
	return flatWrap(KindSequence, nodes)
}

func flatWrapParallel(nodes []PlanNode) PlanNode {
	return flatWrap(KindParallel, nodes)
}

// flatWrap wraps nodes into a sequence or parallel node, inlining children of
// the same kind and eliding single-child wrappers.
func flatWrap(kind NodeKind, nodes []PlanNode) PlanNode {
	if len(nodes) == 0 {
		return nil
	}
	if len(nodes) == 1 {
		return nodes[0]
	}

	var flat []PlanNode
	for _, n := range nodes {
		switch c := n.(type) {
		case *SequenceNode:
			if kind == KindSequence {
				flat = append(flat, c.Nodes...)
				continue
			}
		case *ParallelNode:
			if kind == KindParallel {
				flat = append(flat, c.Nodes...)
				continue
			}
		}
		flat = append(flat, n)
	}

	if kind == KindSequence {
		return &SequenceNode{Nodes: flat}
	}
	return &ParallelNode{Nodes: flat}
}
