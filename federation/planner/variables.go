package planner

import (
	"github.com/n9te9/graphql-parser/ast"
)

type variableUsage struct {
	name         string
	typeName     string
	defaultValue ast.Value
}

// variableTracker records the variables a fetch selection references, in
// order of first use. Every variable must be declared by the operation.
type variableTracker struct {
	declared  map[string]*ast.VariableDefinition
	fragments map[string]*internalFragment
	usages    []*variableUsage
	seen      map[string]bool
	undefined string
}

func declaredVariables(op *ast.OperationDefinition) map[string]*ast.VariableDefinition {
	declared := make(map[string]*ast.VariableDefinition, len(op.VariableDefinitions))
	for _, def := range op.VariableDefinitions {
		if def.Variable != nil {
			declared[def.Variable.Name] = def
		}
	}
	return declared
}

func (c *planningContext) variableUsages(selections []ast.Selection, fragments []*internalFragment) ([]*variableUsage, error) {
	vt := &variableTracker{
		declared:  c.variables,
		fragments: make(map[string]*internalFragment, len(fragments)),
		seen:      make(map[string]bool),
	}
	for _, f := range fragments {
		vt.fragments[f.name] = f
	}
	vt.selectionSet(selections, make(map[string]bool))
	if vt.undefined != "" {
		return nil, planningErrorf("Variable \"$%s\" is not defined", vt.undefined)
	}
	return vt.usages, nil
}

func (vt *variableTracker) selectionSet(selections []ast.Selection, visited map[string]bool) {
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			for _, arg := range s.Arguments {
				vt.value(arg.Value)
			}
			vt.directives(s.Directives)
			vt.selectionSet(s.SelectionSet, visited)

		case *ast.InlineFragment:
			vt.selectionSet(s.SelectionSet, visited)

		case *ast.FragmentSpread:
			f, ok := vt.fragments[s.Name.String()]
			if !ok || visited[f.name] {
				continue
			}
			visited[f.name] = true
			vt.selectionSet(f.selectionSet, visited)
		}
	}
}

func (vt *variableTracker) directives(directives []*ast.Directive) {
	for _, d := range directives {
		for _, arg := range d.Arguments {
			vt.value(arg.Value)
		}
	}
}

func (vt *variableTracker) value(val ast.Value) {
	switch v := val.(type) {
	case *ast.Variable:
		if vt.seen[v.Name] {
			return
		}
		vt.seen[v.Name] = true

		def, ok := vt.declared[v.Name]
		if !ok || def.Type == nil {
			if vt.undefined == "" {
				vt.undefined = v.Name
			}
			return
		}
		vt.usages = append(vt.usages, &variableUsage{
			name:         v.Name,
			typeName:     def.Type.String(),
			defaultValue: def.DefaultValue,
		})

	case *ast.ListValue:
		for _, item := range v.Values {
			vt.value(item)
		}

	case *ast.ObjectValue:
		for _, field := range v.Fields {
			vt.value(field.Value)
		}
	}
}

func variableNames(usages []*variableUsage) []string {
	names := make([]string, 0, len(usages))
	for _, u := range usages {
		names = append(names, u.name)
	}
	return names
}
