package planner

import (
	"github.com/n9te9/graphql-parser/ast"
	"github.com/pampang/federation/federation/graph"
)

// selectionSetFromFieldSet renders fields as a selection set. Fields whose
// parent type differs from parentType are wrapped in inline fragments, one per
// type in order of first occurrence. A nil parentType wraps every field.
func (c *planningContext) selectionSetFromFieldSet(fields []*field, parentType *graph.Type) []ast.Selection {
	var selections []ast.Selection
	for _, byType := range groupByParentType(fields) {
		t := byType[0].scope.parentType
		combined := c.combineFields(byType)
		if parentType != nil && t == parentType {
			selections = append(selections, combined...)
			continue
		}
		selections = append(selections, &ast.InlineFragment{
			TypeCondition: &ast.NamedType{Name: &ast.Name{Value: t.Name}},
			SelectionSet:  combined,
		})
	}
	return selections
}

// combineFields merges fields sharing a response name into one node each.
func (c *planningContext) combineFields(fields []*field) []ast.Selection {
	var selections []ast.Selection
	for _, byName := range groupByResponseName(fields) {
		if len(byName) == 1 {
			selections = append(selections, byName[0].node)
			continue
		}
		selections = append(selections, c.combineFieldNodes(byName))
	}
	return selections
}

func (c *planningContext) combineFieldNodes(fields []*field) *ast.Field {
	nodes := make([]*ast.Field, 0, len(fields))
	for _, f := range fields {
		nodes = append(nodes, f.node)
	}
	return c.mergeFieldNodes(nodes)
}

func (c *planningContext) mergeFieldNodes(nodes []*ast.Field) *ast.Field {
	first := nodes[0]
	merged := &ast.Field{
		Alias:      first.Alias,
		Name:       first.Name,
		Arguments:  first.Arguments,
		Directives: first.Directives,
	}

	synthetic := true
	sets := make([][]ast.Selection, 0, len(nodes))
	for _, n := range nodes {
		if !c.synthetic[n] {
			synthetic = false
		}
		if len(n.SelectionSet) > 0 {
			sets = append(sets, n.SelectionSet)
		}
	}
	merged.SelectionSet = c.mergeSelectionSets(sets...)
	if synthetic {
		c.markSynthetic(merged)
	}
	return merged
}

// mergeSelectionSets concatenates selection sets, merging fields by response
// name, inline fragments by type condition and spreads by fragment name.
func (c *planningContext) mergeSelectionSets(sets ...[]ast.Selection) []ast.Selection {
	if len(sets) == 0 {
		return nil
	}
	if len(sets) == 1 {
		return sets[0]
	}

	type entry struct {
		fields    []*ast.Field
		fragments []*ast.InlineFragment
		spread    *ast.FragmentSpread
	}
	var (
		order   []string
		entries = make(map[string]*entry)
	)
	lookup := func(key string) *entry {
		e, ok := entries[key]
		if !ok {
			e = &entry{}
			entries[key] = e
			order = append(order, key)
		}
		return e
	}

	for _, set := range sets {
		for _, sel := range set {
			switch s := sel.(type) {
			case *ast.Field:
				e := lookup("f:" + responseName(s))
				e.fields = append(e.fields, s)
			case *ast.InlineFragment:
				typeCondition := ""
				if s.TypeCondition != nil {
					typeCondition = s.TypeCondition.Name.String()
				}
				e := lookup("i:" + typeCondition)
				e.fragments = append(e.fragments, s)
			case *ast.FragmentSpread:
				e := lookup("s:" + s.Name.String())
				e.spread = s
			}
		}
	}

	merged := make([]ast.Selection, 0, len(order))
	for _, key := range order {
		e := entries[key]
		switch {
		case len(e.fields) == 1:
			merged = append(merged, e.fields[0])
		case len(e.fields) > 1:
			merged = append(merged, c.mergeFieldNodes(e.fields))
		case len(e.fragments) == 1:
			merged = append(merged, e.fragments[0])
		case len(e.fragments) > 1:
			inner := make([][]ast.Selection, 0, len(e.fragments))
			for _, f := range e.fragments {
				inner = append(inner, f.SelectionSet)
			}
			merged = append(merged, &ast.InlineFragment{
				TypeCondition: e.fragments[0].TypeCondition,
				SelectionSet:  c.mergeSelectionSets(inner...),
			})
		case e.spread != nil:
			merged = append(merged, e.spread)
		}
	}
	return merged
}

func (c *planningContext) markSynthetic(node *ast.Field) {
	c.synthetic[node] = true
}

func (c *planningContext) allSynthetic(fields []*field) bool {
	for _, f := range fields {
		if !c.synthetic[f.node] {
			return false
		}
	}
	return true
}

// planningOnly returns the paths of planner-added fields in a fetch selection.
// Paths stop at the first added field.
func (c *planningContext) planningOnly(selections []ast.Selection, fragments []*internalFragment) []ResponsePath {
	byName := make(map[string]*internalFragment, len(fragments))
	for _, f := range fragments {
		byName[f.name] = f
	}

	var (
		paths []ResponsePath
		seen  = make(map[string]bool)
	)
	var walk func(path ResponsePath, selections []ast.Selection)
	walk = func(path ResponsePath, selections []ast.Selection) {
		for _, sel := range selections {
			switch s := sel.(type) {
			case *ast.Field:
				p := append(append(ResponsePath{}, path...), responseName(s))
				if c.synthetic[s] {
					if key := p.String(); !seen[key] {
						seen[key] = true
						paths = append(paths, p)
					}
					continue
				}
				walk(p, s.SelectionSet)
			case *ast.InlineFragment:
				walk(path, s.SelectionSet)
			case *ast.FragmentSpread:
				if f, ok := byName[s.Name.String()]; ok {
					walk(path, f.selectionSet)
				}
			}
		}
	}
	walk(nil, selections)

	return paths
}

// representations converts an entity fetch's required selection into the
// representation shapes of the plan.
func representations(selections []ast.Selection) []*Representation {
	reps := make([]*Representation, 0, len(selections))
	for _, sel := range selections {
		fragment, ok := sel.(*ast.InlineFragment)
		if !ok || fragment.TypeCondition == nil {
			continue
		}
		reps = append(reps, &Representation{
			TypeCondition: fragment.TypeCondition.Name.String(),
			Selections:    requiredFields(fragment.SelectionSet),
		})
	}
	return reps
}

func requiredFields(selections []ast.Selection) []*RequiredField {
	var fields []*RequiredField
	for _, sel := range selections {
		if f, ok := sel.(*ast.Field); ok {
			fields = append(fields, &RequiredField{Name: f.Name.String(), Selections: requiredFields(f.SelectionSet)})
		}
	}
	return fields
}
