package planner

import (
	"errors"
	"fmt"

	"github.com/n9te9/graphql-parser/ast"
	"github.com/pampang/federation/federation/graph"
)

// groupForSubfield returns the group that resolves f below parentGroup. Fields
// the parent service cannot resolve open a chain of dependent entity fetches
// ending at the chosen owner.
func (c *planningContext) groupForSubfield(parentGroup *fieldGroup, f *field) (*fieldGroup, error) {
	parentType := f.scope.parentType

	if parentType.Kind != graph.KindObject || parentType.ValueType {
		return parentGroup, nil
	}
	if f.def.Name == graph.TypenameField {
		return parentGroup, nil
	}
	if parentGroup.isProvided(f.def.Name) || f.def.IsOwnedBy(parentGroup.service) {
		return parentGroup, nil
	}
	if c.graph.IsKeyField(parentGroup.service, parentType.Name, f.def.Name) {
		return parentGroup, nil
	}
	if !parentType.IsEntity() {
		return nil, planningError(fmt.Errorf("%w: field %q is not resolvable by %q and %q is not an entity",
			graph.ErrNotAnEntity, parentType.Name+"."+f.def.Name, parentGroup.service, parentType.Name))
	}

	route, err := c.chooseOwner(parentGroup, parentType, f.def)
	if err != nil {
		return nil, err
	}

	g := parentGroup
	for _, hop := range route.Hops {
		g = g.dependentGroupForService(hop.Service, c.representationFields(f.scope, hop))
	}
	return g, nil
}

// chooseOwner picks the owner of def that is reachable with the fewest entity
// fetches from the parent group, preferring earlier services on ties.
func (c *planningContext) chooseOwner(parentGroup *fieldGroup, parentType *graph.Type, def *graph.Field) (*graph.Route, error) {
	if len(def.Owners) == 0 {
		return nil, planningError(fmt.Errorf("%w: field %q has no owning service", graph.ErrAmbiguousOwner, parentType.Name+"."+def.Name))
	}

	supplied := parentGroup.providedFields.Names()

	var (
		best      *graph.Route
		bestOwner string
		firstErr  error
	)
	for _, owner := range def.Owners {
		var requires graph.FieldSet
		if owner == def.Owner {
			requires = def.Requires
		}

		route, err := c.graph.Route(parentType.Name, parentGroup.service, supplied, owner, requires)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if best == nil || route.Cost() < best.Cost() ||
			(route.Cost() == best.Cost() && c.graph.ServiceIndex(owner) < c.graph.ServiceIndex(bestOwner)) {
			best, bestOwner = route, owner
		}
	}

	if best == nil {
		if errors.Is(firstErr, graph.ErrNotAnEntity) || errors.Is(firstErr, graph.ErrUnsatisfiableRequirement) {
			return nil, planningError(firstErr)
		}
		return nil, planningError(fmt.Errorf("%w: %w", graph.ErrAmbiguousOwner, firstErr))
	}

	return best, nil
}

// representationFields returns the fields an entity representation for hop
// carries: __typename, the key fields and the required fields.
func (c *planningContext) representationFields(sc *scope, hop *graph.Hop) []*field {
	entity := c.scopeFor(sc)
	fields := []*field{c.typenameField(entity)}

	seen := make(map[string]bool)
	add := func(fs graph.FieldSet) {
		for _, sel := range fs {
			if seen[sel.Name] {
				continue
			}
			seen[sel.Name] = true

			def := entity.parentType.Field(sel.Name)
			if def == nil {
				continue
			}
			node := fieldNodeFromSelection(sel)
			c.markSynthetic(node)
			fields = append(fields, &field{scope: entity, node: node, def: def})
		}
	}
	if hop.Key != nil {
		add(hop.Key.FieldSet)
	}
	add(hop.Requires)

	return fields
}

// scopeFor returns sc when its parent type is an object type the scope can
// have at runtime.
func (c *planningContext) scopeFor(sc *scope) *scope {
	if sc.isPossible(sc.parentType) {
		return sc
	}
	return newScope(c.graph, sc.parentType, sc.enclosing)
}

// providedFields returns the fields the parent service returns below def
// without another fetch: the @provides of the field plus whatever an
// enclosing @provides selected beneath it.
func (c *planningContext) providedFields(parentGroup *fieldGroup, def *graph.Field) graph.FieldSet {
	var provided graph.FieldSet
	provided = append(provided, def.Provides[parentGroup.service]...)
	if sel := parentGroup.provided(def.Name); sel != nil {
		provided = append(provided, sel.Selections...)
	}
	return provided
}

func (c *planningContext) typenameField(sc *scope) *field {
	node := &ast.Field{Name: &ast.Name{Value: graph.TypenameField}}
	c.markSynthetic(node)
	return &field{scope: sc, node: node, def: typenameDef}
}

func fieldNodeFromSelection(sel *graph.FieldSelection) *ast.Field {
	node := &ast.Field{Name: &ast.Name{Value: sel.Name}}
	for _, child := range sel.Selections {
		node.SelectionSet = append(node.SelectionSet, fieldNodeFromSelection(child))
	}
	return node
}
