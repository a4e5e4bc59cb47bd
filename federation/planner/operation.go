package planner

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/n9te9/graphql-parser/ast"
)

const representationsVariable = "representations"

// operationWriter prints GraphQL in its compact form: no whitespace except a
// single space between two adjacent names or values.
type operationWriter struct {
	sb   strings.Builder
	word bool
}

func (w *operationWriter) String() string {
	return w.sb.String()
}

func (w *operationWriter) writeWord(s string) {
	if w.word {
		w.sb.WriteByte(' ')
	}
	w.sb.WriteString(s)
	w.word = true
}

func (w *operationWriter) punct(s string) {
	w.sb.WriteString(s)
	w.word = false
}

func (w *operationWriter) spread() {
	if w.word {
		w.sb.WriteByte(' ')
	}
	w.punct("...")
}

func (w *operationWriter) selectionSet(selections []ast.Selection) {
	w.punct("{")
	for _, sel := range selections {
		w.selection(sel)
	}
	w.punct("}")
}

func (w *operationWriter) selection(sel ast.Selection) {
	switch s := sel.(type) {
	case *ast.Field:
		if s.Alias != nil && s.Alias.String() != "" {
			w.writeWord(s.Alias.String())
			w.punct(":")
		}
		w.writeWord(s.Name.String())
		w.arguments(s.Arguments)
		w.directives(s.Directives)
		if len(s.SelectionSet) > 0 {
			w.selectionSet(s.SelectionSet)
		}
	case *ast.InlineFragment:
		w.spread()
		if s.TypeCondition != nil {
			w.writeWord("on")
			w.writeWord(s.TypeCondition.Name.String())
		}
		w.selectionSet(s.SelectionSet)
	case *ast.FragmentSpread:
		w.spread()
		w.writeWord(s.Name.String())
	}
}

func (w *operationWriter) arguments(args []*ast.Argument) {
	if len(args) == 0 {
		return
	}
	w.punct("(")
	for _, arg := range args {
		w.writeWord(arg.Name.String())
		w.punct(":")
		w.value(arg.Value)
	}
	w.punct(")")
}

func (w *operationWriter) directives(directives []*ast.Directive) {
	for _, d := range directives {
		w.punct("@")
		w.writeWord(d.Name)
		w.arguments(d.Arguments)
	}
}

func (w *operationWriter) value(val ast.Value) {
	switch v := val.(type) {
	case *ast.Variable:
		w.punct("$")
		w.writeWord(v.Name)
	case *ast.StringValue:
		quoted, err := json.Marshal(v.Value)
		if err != nil {
			quoted = []byte(`""`)
		}
		w.punct(string(quoted))
	case *ast.IntValue:
		w.writeWord(strconv.FormatInt(v.Value, 10))
	case *ast.FloatValue:
		w.writeWord(strconv.FormatFloat(v.Value, 'g', -1, 64))
	case *ast.BooleanValue:
		w.writeWord(strconv.FormatBool(v.Value))
	case *ast.EnumValue:
		w.writeWord(v.Value)
	case *ast.ListValue:
		w.punct("[")
		for _, item := range v.Values {
			w.value(item)
		}
		w.punct("]")
	case *ast.ObjectValue:
		w.punct("{")
		for _, field := range v.Fields {
			w.writeWord(field.Name.String())
			w.punct(":")
			w.value(field.Value)
		}
		w.punct("}")
	default:
		w.writeWord("null")
	}
}

func (w *operationWriter) variableDefinitions(usages []*variableUsage) {
	if len(usages) == 0 {
		return
	}
	w.punct("(")
	for _, u := range usages {
		w.punct("$")
		w.writeWord(u.name)
		w.punct(":")
		w.typeRef(u.typeName)
		if u.defaultValue != nil {
			w.punct("=")
			w.value(u.defaultValue)
		}
	}
	w.punct(")")
}

// typeRef prints a type such as "[_Any!]!", keeping names apart from
// punctuation.
func (w *operationWriter) typeRef(typeName string) {
	start := 0
	for i := 0; i < len(typeName); i++ {
		switch typeName[i] {
		case '[', ']', '!':
			if start < i {
				w.writeWord(typeName[start:i])
			}
			w.punct(typeName[i : i+1])
			start = i + 1
		}
	}
	if start < len(typeName) {
		w.writeWord(typeName[start:])
	}
}

func (w *operationWriter) fragments(fragments []*internalFragment) {
	for _, f := range fragments {
		w.writeWord("fragment")
		w.writeWord(f.name)
		w.writeWord("on")
		w.writeWord(f.typeCondition.Name)
		w.selectionSet(f.selectionSet)
	}
}

// operationForRootFetch prints a root fetch: "{...}" for queries without
// variables, otherwise "query(...){...}" or "mutation(...){...}".
func operationForRootFetch(operation ast.OperationType, selections []ast.Selection, usages []*variableUsage, fragments []*internalFragment) string {
	w := &operationWriter{}
	if operation == ast.Mutation || len(usages) > 0 {
		keyword := "query"
		if operation == ast.Mutation {
			keyword = "mutation"
		}
		w.writeWord(keyword)
		w.variableDefinitions(usages)
	}
	w.selectionSet(selections)
	w.fragments(fragments)
	return w.String()
}

// operationForEntitiesFetch prints an _entities query over $representations.
func operationForEntitiesFetch(selections []ast.Selection, usages []*variableUsage, fragments []*internalFragment) string {
	defs := make([]*variableUsage, 0, len(usages)+1)
	defs = append(defs, &variableUsage{name: representationsVariable, typeName: "[_Any!]!"})
	defs = append(defs, usages...)

	w := &operationWriter{}
	w.writeWord("query")
	w.variableDefinitions(defs)
	w.punct("{")
	w.writeWord("_entities")
	w.punct("(")
	w.writeWord(representationsVariable)
	w.punct(":$")
	w.writeWord(representationsVariable)
	w.punct(")")
	w.selectionSet(selections)
	w.punct("}")
	w.fragments(fragments)
	return w.String()
}
