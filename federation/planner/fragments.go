package planner

import (
	"fmt"

	"github.com/n9te9/graphql-parser/ast"
	"github.com/pampang/federation/federation/graph"
)

// internalFragment is a named fragment generated by autofragmentization.
type internalFragment struct {
	name          string
	typeCondition *graph.Type
	selectionSet  []ast.Selection
}

// internalFragment returns the fragment for a selection on t, creating it the
// first time the same selection is seen in the plan.
func (c *planningContext) internalFragment(t *graph.Type, selectionSet []ast.Selection) *internalFragment {
	w := &operationWriter{}
	w.selectionSet(selectionSet)
	key := t.Name + w.String()

	if f, ok := c.fragmentsByKey[key]; ok {
		return f
	}

	f := &internalFragment{
		name:          fmt.Sprintf("__QueryPlanFragment_%d__", len(c.fragmentsByKey)),
		typeCondition: t,
		selectionSet:  selectionSet,
	}
	c.fragmentsByKey[key] = f
	return f
}
