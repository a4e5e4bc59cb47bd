package graph

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// FieldSelection is one field of a FieldSet, with its own nested selections for
// composite fields.
type FieldSelection struct {
	Name       string
	Selections FieldSet
}

// FieldSet is a parsed `fields` argument of @key, @requires or @provides.
type FieldSet []*FieldSelection

// ParseFieldSet parses a field set such as "id organization { id }".
func ParseFieldSet(raw string) (FieldSet, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	doc, err := parser.ParseQuery(&ast.Source{Input: "{" + raw + "}"})
	if err != nil {
		return nil, fmt.Errorf("invalid field set %q: %w", raw, err)
	}
	if len(doc.Operations) != 1 {
		return nil, fmt.Errorf("invalid field set %q", raw)
	}

	return fieldSetFromSelections(raw, doc.Operations[0].SelectionSet)
}

func fieldSetFromSelections(raw string, selections ast.SelectionSet) (FieldSet, error) {
	fs := make(FieldSet, 0, len(selections))
	for _, sel := range selections {
		f, ok := sel.(*ast.Field)
		if !ok {
			return nil, fmt.Errorf("invalid field set %q: fragments are not allowed", raw)
		}
		nested, err := fieldSetFromSelections(raw, f.SelectionSet)
		if err != nil {
			return nil, err
		}
		if len(nested) == 0 {
			nested = nil
		}
		fs = append(fs, &FieldSelection{Name: f.Name, Selections: nested})
	}
	return fs, nil
}

// Names returns the top-level field names.
func (fs FieldSet) Names() []string {
	names := make([]string, 0, len(fs))
	for _, f := range fs {
		names = append(names, f.Name)
	}
	return names
}

// String renders the field set in its canonical single-space form.
func (fs FieldSet) String() string {
	var sb strings.Builder
	fs.write(&sb)
	return sb.String()
}

func (fs FieldSet) write(sb *strings.Builder) {
	for i, f := range fs {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(f.Name)
		if len(f.Selections) > 0 {
			sb.WriteString(" { ")
			f.Selections.write(sb)
			sb.WriteString(" }")
		}
	}
}
