package planner

import (
	"testing"

	"github.com/n9te9/graphql-parser/ast"
)

func name(v string) *ast.Name { return &ast.Name{Value: v} }

func TestOperationWriter_Selection(t *testing.T) {
	selections := []ast.Selection{
		&ast.Field{
			Alias: name("top"),
			Name:  name("topProducts"),
			Arguments: []*ast.Argument{
				{Name: name("first"), Value: &ast.Variable{Name: "first"}},
				{Name: name("tags"), Value: &ast.ListValue{Values: []ast.Value{
					&ast.StringValue{Value: `a"b`},
					&ast.EnumValue{Value: "NEW"},
				}}},
			},
			SelectionSet: []ast.Selection{
				&ast.Field{Name: name("upc")},
				&ast.InlineFragment{
					TypeCondition: &ast.NamedType{Name: name("Book")},
					SelectionSet:  []ast.Selection{&ast.Field{Name: name("isbn")}},
				},
				&ast.FragmentSpread{Name: name("Rest")},
			},
		},
	}

	w := &operationWriter{}
	w.selectionSet(selections)

	want := `{top:topProducts(first:$first tags:["a\"b"NEW]){upc ...on Book{isbn}...Rest}}`
	if got := w.String(); got != want {
		t.Errorf("unexpected output:\nwant %s\ngot  %s", want, got)
	}
}

func TestOperationWriter_ScalarValues(t *testing.T) {
	tests := []struct {
		name  string
		value ast.Value
		want  string
	}{
		{name: "int", value: &ast.IntValue{Value: -42}, want: "-42"},
		{name: "float", value: &ast.FloatValue{Value: 0.25}, want: "0.25"},
		{name: "large float", value: &ast.FloatValue{Value: 1e21}, want: "1e+21"},
		{name: "boolean", value: &ast.BooleanValue{Value: false}, want: "false"},
		{name: "null", value: nil, want: "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &operationWriter{}
			w.value(tt.value)
			if got := w.String(); got != tt.want {
				t.Errorf("want %s, got %s", tt.want, got)
			}
		})
	}
}

func TestOperationForRootFetch_VariableDefaults(t *testing.T) {
	selections := []ast.Selection{
		&ast.Field{
			Name:         name("topProducts"),
			Arguments:    []*ast.Argument{{Name: name("first"), Value: &ast.Variable{Name: "first"}}},
			SelectionSet: []ast.Selection{&ast.Field{Name: name("upc")}},
		},
	}
	usages := []*variableUsage{
		{name: "first", typeName: "Int", defaultValue: &ast.IntValue{Value: 5}},
		{name: "tags", typeName: "[String!]", defaultValue: &ast.ListValue{Values: []ast.Value{&ast.StringValue{Value: "new"}}}},
	}

	want := `query($first:Int=5$tags:[String!]=["new"]){topProducts(first:$first){upc}}`
	if got := operationForRootFetch(ast.Query, selections, usages, nil); got != want {
		t.Errorf("unexpected operation:\nwant %s\ngot  %s", want, got)
	}
}

func TestOperationForEntitiesFetch(t *testing.T) {
	selections := []ast.Selection{
		&ast.InlineFragment{
			TypeCondition: &ast.NamedType{Name: name("User")},
			SelectionSet:  []ast.Selection{&ast.Field{Name: name("name")}},
		},
	}
	usages := []*variableUsage{{name: "locale", typeName: "[String!]"}}

	want := `query($representations:[_Any!]!$locale:[String!]){_entities(representations:$representations){...on User{name}}}`
	if got := operationForEntitiesFetch(selections, usages, nil); got != want {
		t.Errorf("unexpected operation:\nwant %s\ngot  %s", want, got)
	}
}

func TestFlatWrap(t *testing.T) {
	a := &FetchNode{ServiceName: "a"}
	b := &FetchNode{ServiceName: "b"}
	c := &FetchNode{ServiceName: "c"}

	if got := flatWrapSequence(nil); got != nil {
		t.Errorf("expected nil for no nodes, got %T", got)
	}
	if got := flatWrapParallel([]PlanNode{a}); got != a {
		t.Errorf("expected the single node to be returned, got %T", got)
	}

	got := flatWrapSequence([]PlanNode{a, &SequenceNode{Nodes: []PlanNode{b, c}}})
	seq, ok := got.(*SequenceNode)
	if !ok || len(seq.Nodes) != 3 {
		t.Fatalf("expected a flattened sequence of 3, got %+v", got)
	}

	got = flatWrapParallel([]PlanNode{a, &SequenceNode{Nodes: []PlanNode{b, c}}})
	par, ok := got.(*ParallelNode)
	if !ok || len(par.Nodes) != 2 {
		t.Fatalf("expected a parallel of 2, got %+v", got)
	}
	if _, ok := par.Nodes[1].(*SequenceNode); !ok {
		t.Errorf("a sequence must not be inlined into a parallel node")
	}
}
