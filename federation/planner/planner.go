package planner

import (
	"github.com/n9te9/graphql-parser/ast"
	"github.com/pampang/federation/federation/graph"
	"go.uber.org/zap"
)

// Planner builds query plans for operations against a composed supergraph.
// A Planner is safe for concurrent use.
type Planner struct {
	superGraph *graph.SuperGraph
	logger     *zap.Logger
}

// NewPlanner creates a planner for superGraph.
func NewPlanner(superGraph *graph.SuperGraph, opts ...Option) *Planner {
	p := &Planner{
		superGraph: superGraph,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SuperGraph returns the supergraph the planner plans against.
func (p *Planner) SuperGraph() *graph.SuperGraph {
	return p.superGraph
}

// planningContext holds the state of planning one operation.
type planningContext struct {
	graph               *graph.SuperGraph
	operationKind       ast.OperationType
	fragments           map[string]*ast.FragmentDefinition
	variables           map[string]*ast.VariableDefinition
	visiting            map[string]bool
	autoFragmentization bool
	fragmentsByKey      map[string]*internalFragment
	synthetic           map[*ast.Field]bool
}

// Plan builds the query plan of the first operation in doc. Every error is a
// *PlanningError.
func (p *Planner) Plan(doc *ast.Document, opts QueryPlanningOptions) (*QueryPlan, error) {
	var op *ast.OperationDefinition
	fragments := make(map[string]*ast.FragmentDefinition)
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.OperationDefinition:
			if op == nil {
				op = d
			}
		case *ast.FragmentDefinition:
			fragments[d.Name.String()] = d
		}
	}
	if op == nil {
		return nil, planningErrorf("no operation found")
	}

	var operation string
	switch op.Operation {
	case ast.Mutation:
		operation = "mutation"
	case ast.Subscription:
		return nil, planningError(ErrSubscriptionNotSupported)
	default:
		operation = "query"
	}

	rootType := p.superGraph.RootType(operation)
	if rootType == nil {
		return nil, planningErrorf("schema does not support %s operations", operation)
	}

	c := &planningContext{
		graph:               p.superGraph,
		operationKind:       op.Operation,
		fragments:           fragments,
		variables:           declaredVariables(op),
		visiting:            make(map[string]bool),
		autoFragmentization: opts.AutoFragmentization,
		fragmentsByKey:      make(map[string]*internalFragment),
		synthetic:           make(map[*ast.Field]bool),
	}

	plan, err := c.buildQueryPlan(rootType, op)
	if err != nil {
		p.logger.Debug("query planning failed", zap.String("operation", operation), zap.Error(err))
		return nil, planningError(err)
	}

	p.logger.Debug("query planned",
		zap.String("operation", operation),
		zap.Int("fetches", len(plan.Fetches())),
		zap.Bool("autoFragmentization", opts.AutoFragmentization),
	)

	return plan, nil
}

func (c *planningContext) buildQueryPlan(rootType *graph.Type, op *ast.OperationDefinition) (*QueryPlan, error) {
	fields, err := c.collectFields(newScope(c.graph, rootType, nil), op.SelectionSet, nil)
	if err != nil {
		return nil, err
	}

	var groups []*fieldGroup
	if c.operationKind == ast.Mutation {
		groups, err = c.splitRootFieldsSerially(fields)
	} else {
		groups, err = c.splitRootFields(fields)
	}
	if err != nil {
		return nil, err
	}

	nodes := make([]PlanNode, 0, len(groups))
	for _, g := range groups {
		node, err := c.executionNodeForGroup(g, rootType)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	if c.operationKind == ast.Mutation {
		return &QueryPlan{Node: flatWrapSequence(nodes)}, nil
	}
	return &QueryPlan{Node: flatWrapParallel(nodes)}, nil
}

// executionNodeForGroup builds the fetch of g, followed by the fetches of its
// dependent groups.
func (c *planningContext) executionNodeForGroup(g *fieldGroup, parentType *graph.Type) (PlanNode, error) {
	selections := c.selectionSetFromFieldSet(g.fields, parentType)
	usages, err := c.variableUsages(selections, g.internalFragments)
	if err != nil {
		return nil, err
	}

	fetch := &FetchNode{
		ServiceName:    g.service,
		VariableUsages: variableNames(usages),
		PlanningOnly:   c.planningOnly(selections, g.internalFragments),
	}
	if len(g.requiredFields) > 0 {
		fetch.Requires = representations(c.selectionSetFromFieldSet(g.requiredFields, nil))
		fetch.Operation = operationForEntitiesFetch(selections, usages, g.internalFragments)
	} else {
		fetch.Operation = operationForRootFetch(c.operationKind, selections, usages, g.internalFragments)
	}

	var node PlanNode = fetch
	if len(g.mergeAt) > 0 {
		node = &FlattenNode{Path: g.mergeAt, Node: fetch}
	}

	dependents := g.dependentGroups()
	if len(dependents) == 0 {
		return node, nil
	}

	dependentNodes := make([]PlanNode, 0, len(dependents))
	for _, dg := range dependents {
		dn, err := c.executionNodeForGroup(dg, nil)
		if err != nil {
			return nil, err
		}
		dependentNodes = append(dependentNodes, dn)
	}

	return flatWrapSequence([]PlanNode{node, flatWrapParallel(dependentNodes)}), nil
}
