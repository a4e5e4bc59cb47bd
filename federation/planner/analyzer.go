package planner

import (
	"strings"

	"github.com/n9te9/graphql-parser/ast"
	"github.com/pampang/federation/federation/graph"
)

var typenameDef = &graph.Field{
	Name: graph.TypenameField,
	Type: &graph.TypeRef{Named: "String", NonNull: true},
}

// scope is the parent type of a selection together with the object types it
// can still have at runtime after the enclosing type conditions.
type scope struct {
	parentType    *graph.Type
	possibleTypes []*graph.Type
	enclosing     *scope
}

func newScope(sg *graph.SuperGraph, parentType *graph.Type, enclosing *scope) *scope {
	return &scope{
		parentType:    parentType,
		possibleTypes: sg.PossibleTypes(parentType.Name),
		enclosing:     enclosing,
	}
}

// refine narrows the scope to a type condition.
func (s *scope) refine(sg *graph.SuperGraph, t *graph.Type) *scope {
	if t == s.parentType {
		return s
	}

	possible := sg.PossibleTypes(t.Name)
	refined := &scope{parentType: t, enclosing: s}
	for _, pt := range s.possibleTypes {
		for _, candidate := range possible {
			if pt == candidate {
				refined.possibleTypes = append(refined.possibleTypes, pt)
				break
			}
		}
	}
	return refined
}

func (s *scope) isPossible(t *graph.Type) bool {
	for _, pt := range s.possibleTypes {
		if pt == t {
			return true
		}
	}
	return false
}

func (s *scope) key() string {
	var sb strings.Builder
	sb.WriteString(s.parentType.Name)
	for _, pt := range s.possibleTypes {
		sb.WriteString("|")
		sb.WriteString(pt.Name)
	}
	return sb.String()
}

// field is one selected field in its scope.
type field struct {
	scope *scope
	node  *ast.Field
	def   *graph.Field
}

func (f *field) responseName() string {
	return responseName(f.node)
}

func responseName(node *ast.Field) string {
	if node.Alias != nil && node.Alias.String() != "" {
		return node.Alias.String()
	}
	return node.Name.String()
}

// collectFields flattens a selection set into fields, inlining fragments and
// dropping type conditions that cannot match at runtime.
func (c *planningContext) collectFields(sc *scope, selections []ast.Selection, fields []*field) ([]*field, error) {
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			name := s.Name.String()
			if name == graph.TypenameField {
				fields = append(fields, &field{scope: sc, node: s, def: typenameDef})
				continue
			}
			if strings.HasPrefix(name, "__") && c.graph.IsRootType(sc.parentType.Name) {
				// Introspection is answered by the gateway itself.
				continue
			}

			def := sc.parentType.Field(name)
			if def == nil || c.graph.IsInaccessible(sc.parentType.Name, name) {
				return nil, unknownField(sc.parentType.Name, name)
			}
			fields = append(fields, &field{scope: sc, node: s, def: def})

		case *ast.InlineFragment:
			next := sc
			if s.TypeCondition != nil {
				t, err := c.typeCondition(s.TypeCondition.Name.String())
				if err != nil {
					return nil, err
				}
				next = sc.refine(c.graph, t)
				if len(next.possibleTypes) == 0 {
					continue
				}
			}

			var err error
			if fields, err = c.collectFields(next, s.SelectionSet, fields); err != nil {
				return nil, err
			}

		case *ast.FragmentSpread:
			name := s.Name.String()
			def, ok := c.fragments[name]
			if !ok {
				return nil, planningErrorf("Unknown fragment %q", name)
			}
			if c.visiting[name] {
				return nil, planningErrorf("Cannot spread fragment %q within itself", name)
			}

			t, err := c.typeCondition(def.TypeCondition.Name.String())
			if err != nil {
				return nil, err
			}
			next := sc.refine(c.graph, t)
			if len(next.possibleTypes) == 0 {
				continue
			}

			c.visiting[name] = true
			fields, err = c.collectFields(next, def.SelectionSet, fields)
			delete(c.visiting, name)
			if err != nil {
				return nil, err
			}
		}
	}

	return fields, nil
}

func (c *planningContext) typeCondition(name string) (*graph.Type, error) {
	t := c.graph.Type(name)
	if t == nil || !t.IsComposite() {
		return nil, planningErrorf("Unknown type %q", name)
	}
	return t, nil
}

// collectSubfields collects the sub-selections of every occurrence of a field.
func (c *planningContext) collectSubfields(sc *scope, fields []*field) ([]*field, error) {
	var subfields []*field
	for _, f := range fields {
		var err error
		if subfields, err = c.collectFields(sc, f.node.SelectionSet, subfields); err != nil {
			return nil, err
		}
	}
	return subfields, nil
}

type groupForFieldFunc func(f *field) (*fieldGroup, error)

// splitRootFields partitions root fields by owning service, in order of first
// occurrence of each service.
func (c *planningContext) splitRootFields(fields []*field) ([]*fieldGroup, error) {
	var groups []*fieldGroup
	groupsByService := make(map[string]*fieldGroup)

	err := c.splitFields("", nil, fields, func(f *field) (*fieldGroup, error) {
		owner, err := c.graph.ResolveFieldOwner(f.scope.parentType.Name, f.def.Name)
		if err != nil {
			return nil, err
		}
		if g, ok := groupsByService[owner]; ok {
			return g, nil
		}
		g := newFieldGroup(owner, nil, nil)
		groupsByService[owner] = g
		groups = append(groups, g)
		return g, nil
	})

	return groups, err
}

// splitRootFieldsSerially partitions mutation root fields into consecutive runs
// of the same service so they execute in the order they were written.
func (c *planningContext) splitRootFieldsSerially(fields []*field) ([]*fieldGroup, error) {
	var groups []*fieldGroup

	err := c.splitFields("", nil, fields, func(f *field) (*fieldGroup, error) {
		owner, err := c.graph.ResolveFieldOwner(f.scope.parentType.Name, f.def.Name)
		if err != nil {
			return nil, err
		}
		if n := len(groups); n > 0 && groups[n-1].service == owner {
			return groups[n-1], nil
		}
		g := newFieldGroup(owner, nil, nil)
		groups = append(groups, g)
		return g, nil
	})

	return groups, err
}

// splitSubfields partitions the sub-selection of a field resolved by
// parentGroup, opening dependent groups where ownership changes.
func (c *planningContext) splitSubfields(path ResponsePath, fields []*field, parentGroup *fieldGroup) error {
	return c.splitFields(parentGroup.service, path, fields, func(f *field) (*fieldGroup, error) {
		return c.groupForSubfield(parentGroup, f)
	})
}

// splitFields assigns every field to the group returned by groupForField and
// completes it there. Fields selected on an abstract type are planned per
// runtime type when source cannot resolve them for every possible type.
func (c *planningContext) splitFields(source string, path ResponsePath, fields []*field, groupForField groupForFieldFunc) error {
	for _, byName := range groupByResponseName(fields) {
		for _, byScope := range groupByScope(byName) {
			f := byScope[0]
			sc := f.scope
			parentType := sc.parentType

			if f.def.Name == graph.TypenameField && c.graph.IsRootType(parentType.Name) {
				continue
			}

			if parentType.Kind == graph.KindObject && sc.isPossible(parentType) {
				group, err := groupForField(f)
				if err != nil {
					return err
				}
				completed, err := c.completeField(sc, group, path, byScope)
				if err != nil {
					return err
				}
				group.fields = append(group.fields, completed)
				continue
			}

			if !c.needsTypeExplosion(source, sc, f) {
				group, err := groupForField(f)
				if err != nil {
					return err
				}
				completed, err := c.completeField(sc, group, path, byScope)
				if err != nil {
					return err
				}
				group.fields = append(group.fields, completed)
				continue
			}

			var groups []*fieldGroup
			runtimeTypes := make(map[*fieldGroup][]*graph.Type)
			for _, rt := range sc.possibleTypes {
				def := c.fieldDef(rt, f.def.Name)
				if def == nil {
					return unknownField(rt.Name, f.def.Name)
				}
				group, err := groupForField(&field{scope: sc.refine(c.graph, rt), node: f.node, def: def})
				if err != nil {
					return err
				}
				if _, seen := runtimeTypes[group]; !seen {
					groups = append(groups, group)
				}
				runtimeTypes[group] = append(runtimeTypes[group], rt)
			}

			for _, group := range groups {
				for _, rt := range runtimeTypes[group] {
					def := c.fieldDef(rt, f.def.Name)
					rs := sc.refine(c.graph, rt)
					withRuntimeType := make([]*field, 0, len(byScope))
					for _, bf := range byScope {
						withRuntimeType = append(withRuntimeType, &field{scope: rs, node: bf.node, def: def})
					}
					completed, err := c.completeField(rs, group, path, withRuntimeType)
					if err != nil {
						return err
					}
					group.fields = append(group.fields, completed)
				}
			}
		}
	}

	return nil
}

// needsTypeExplosion reports whether a field on an abstract scope must be
// fetched per runtime type because source cannot resolve it for all of them.
func (c *planningContext) needsTypeExplosion(source string, sc *scope, f *field) bool {
	if f.def.Name == graph.TypenameField || source == "" {
		return false
	}
	for _, rt := range sc.possibleTypes {
		def := rt.Field(f.def.Name)
		if def == nil {
			continue
		}
		if !rt.ValueType && !def.IsOwnedBy(source) {
			return true
		}
	}
	return false
}

func (c *planningContext) fieldDef(t *graph.Type, name string) *graph.Field {
	if name == graph.TypenameField {
		return typenameDef
	}
	return t.Field(name)
}

// completeField builds the selection of fields sharing a response name inside
// group, planning their sub-selections into nested and dependent groups.
func (c *planningContext) completeField(sc *scope, parentGroup *fieldGroup, path ResponsePath, fields []*field) (*field, error) {
	f := fields[0]
	returnType := c.graph.Type(f.def.Type.Name())

	if returnType == nil || !returnType.IsComposite() {
		node := f.node
		if len(fields) > 1 {
			node = c.combineFieldNodes(fields)
		}
		return &field{scope: sc, node: node, def: f.def}, nil
	}

	fieldPath := addPath(path, f.responseName(), f.def.Type)
	subGroup := newFieldGroup(parentGroup.service, fieldPath, c.providedFields(parentGroup, f.def))
	subScope := newScope(c.graph, returnType, sc)

	if returnType.IsAbstract() {
		subGroup.fields = append(subGroup.fields, c.typenameField(subScope))
	}

	subfields, err := c.collectSubfields(subScope, fields)
	if err != nil {
		return nil, err
	}
	if err := c.splitSubfields(fieldPath, subfields, subGroup); err != nil {
		return nil, err
	}

	parentGroup.mergeDependentGroups(subGroup)

	selectionSet := c.selectionSetFromFieldSet(subGroup.fields, returnType)
	if len(selectionSet) == 0 {
		selectionSet = []ast.Selection{c.typenameField(subScope).node}
	}
	if c.autoFragmentization && len(selectionSet) > 2 {
		fragment := c.internalFragment(returnType, selectionSet)
		parentGroup.addInternalFragment(fragment)
		selectionSet = []ast.Selection{&ast.FragmentSpread{Name: &ast.Name{Value: fragment.name}}}
	}
	for _, fragment := range subGroup.internalFragments {
		parentGroup.addInternalFragment(fragment)
	}

	node := &ast.Field{
		Alias:        f.node.Alias,
		Name:         f.node.Name,
		Arguments:    f.node.Arguments,
		Directives:   f.node.Directives,
		SelectionSet: selectionSet,
	}
	if c.allSynthetic(fields) {
		c.synthetic[node] = true
	}

	return &field{scope: sc, node: node, def: f.def}, nil
}

// addPath appends a response name and one "@" per list level of its type.
func addPath(path ResponsePath, name string, t *graph.TypeRef) ResponsePath {
	next := make(ResponsePath, 0, len(path)+2)
	next = append(next, path...)
	next = append(next, name)
	for ; t != nil && t.Elem != nil; t = t.Elem {
		next = append(next, "@")
	}
	return next
}

func groupByResponseName(fields []*field) [][]*field {
	return groupBy(fields, func(f *field) string { return f.responseName() })
}

func groupByScope(fields []*field) [][]*field {
	return groupBy(fields, func(f *field) string { return f.scope.key() })
}

func groupByParentType(fields []*field) [][]*field {
	return groupBy(fields, func(f *field) string { return f.scope.parentType.Name })
}

// groupBy groups fields by key, in order of first occurrence.
func groupBy(fields []*field, key func(*field) string) [][]*field {
	var groups [][]*field
	index := make(map[string]int)
	for _, f := range fields {
		k := key(f)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], f)
	}
	return groups
}
