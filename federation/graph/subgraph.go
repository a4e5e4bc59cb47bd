package graph

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// EntityKey represents the @key directive information of an object type.
type EntityKey struct {
	FieldSet   FieldSet // Parsed field set (e.g., "id")
	Raw        string   // Field set as written in the directive
	Resolvable bool     // Resolvable parameter of @key directive
}

// OverrideMetadata represents the @override directive information.
type OverrideMetadata struct {
	From string // The source subgraph name (e.g., "products")
}

// ServiceField represents a field as declared by a single subgraph.
type ServiceField struct {
	Name      string
	Type      *TypeRef
	Arguments []*Argument
	Requires  string // Raw @requires field set
	Provides  string // Raw @provides field set
	Override  *OverrideMetadata

	isExternal     bool
	isShareable    bool
	isInaccessible bool
}

// IsExternal returns whether the field has @external directive.
func (f *ServiceField) IsExternal() bool {
	return f.isExternal
}

// IsShareable returns whether the field or its type has @shareable directive.
func (f *ServiceField) IsShareable() bool {
	return f.isShareable
}

// IsInaccessible returns whether the field has @inaccessible directive.
func (f *ServiceField) IsInaccessible() bool {
	return f.isInaccessible
}

// ObjectType represents an object type as declared by a single subgraph.
type ObjectType struct {
	Name       string
	Keys       []EntityKey
	Interfaces []string
	Fields     []*ServiceField

	fields         map[string]*ServiceField
	isExtension    bool
	isInaccessible bool
}

// IsExtension returns whether the type is declared with `extend type` or @extends.
func (o *ObjectType) IsExtension() bool {
	return o.isExtension
}

// IsEntity returns whether the type has at least one @key directive.
func (o *ObjectType) IsEntity() bool {
	return len(o.Keys) > 0
}

// IsResolvable returns whether the type has at least one resolvable key.
func (o *ObjectType) IsResolvable() bool {
	for _, key := range o.Keys {
		if key.Resolvable {
			return true
		}
	}
	return false
}

// Field returns the field with the given name, or nil.
func (o *ObjectType) Field(name string) *ServiceField {
	return o.fields[name]
}

// SubGraph represents one backend service and its type definitions.
type SubGraph struct {
	Name   string              // Subgraph name (e.g., "products")
	Host   string              // Host (e.g., "http://products.example.com/query")
	SDL    string              // Type definitions as received
	Schema *ast.SchemaDocument // Schema AST

	objects     map[string]*ObjectType
	objectOrder []string
	rootNames   map[string]string
}

// NewSubGraph parses the type definitions of one service and extracts the
// federation metadata: @key, @extends, @external, @requires, @provides,
// @shareable, @override and @inaccessible.
func NewSubGraph(name string, src []byte, host string) (*SubGraph, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: string(src)})
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema of %s: %w", name, err)
	}

	sg := &SubGraph{
		Name:      name,
		Host:      host,
		SDL:       string(src),
		Schema:    doc,
		objects:   make(map[string]*ObjectType),
		rootNames: rootTypeNames(doc),
	}

	for _, def := range doc.Definitions {
		if def.Kind == ast.Object {
			if err := sg.addObject(def, hasDirective(def.Directives, "extends")); err != nil {
				return nil, err
			}
		}
	}
	for _, def := range doc.Extensions {
		if def.Kind == ast.Object {
			if err := sg.addObject(def, true); err != nil {
				return nil, err
			}
		}
	}

	return sg, nil
}

// Objects returns the object types of the subgraph in declaration order.
func (sg *SubGraph) Objects() []*ObjectType {
	objects := make([]*ObjectType, 0, len(sg.objectOrder))
	for _, name := range sg.objectOrder {
		objects = append(objects, sg.objects[name])
	}
	return objects
}

// Object returns the object type with the given name, or nil.
func (sg *SubGraph) Object(name string) *ObjectType {
	return sg.objects[sg.canonicalName(name)]
}

// definitions returns type definitions followed by extensions.
func (sg *SubGraph) definitions() []*ast.Definition {
	defs := make([]*ast.Definition, 0, len(sg.Schema.Definitions)+len(sg.Schema.Extensions))
	defs = append(defs, sg.Schema.Definitions...)
	return append(defs, sg.Schema.Extensions...)
}

// canonicalName maps root types renamed by a schema definition onto Query,
// Mutation and Subscription.
func (sg *SubGraph) canonicalName(name string) string {
	if canonical, ok := sg.rootNames[name]; ok {
		return canonical
	}
	return name
}

func (sg *SubGraph) addObject(def *ast.Definition, extension bool) error {
	name := sg.canonicalName(def.Name)
	obj, ok := sg.objects[name]
	if !ok {
		obj = &ObjectType{
			Name:        name,
			fields:      make(map[string]*ServiceField),
			isExtension: extension,
		}
		sg.objects[name] = obj
		sg.objectOrder = append(sg.objectOrder, name)
	} else if !extension {
		// A base definition and an extension in the same subgraph make it the base.
		obj.isExtension = false
	}

	keys, err := parseEntityKeys(def.Directives)
	if err != nil {
		return fmt.Errorf("%s: type %s: %w", sg.Name, name, err)
	}
	obj.Keys = append(obj.Keys, keys...)
	obj.Interfaces = appendUnique(obj.Interfaces, def.Interfaces...)
	if hasDirective(def.Directives, "inaccessible") {
		obj.isInaccessible = true
	}

	typeShareable := hasDirective(def.Directives, "shareable")
	for _, fd := range def.Fields {
		if _, exists := obj.fields[fd.Name]; exists {
			continue
		}
		f := parseField(fd)
		if typeShareable {
			f.isShareable = true
		}
		obj.fields[f.Name] = f
		obj.Fields = append(obj.Fields, f)
	}

	return nil
}

// parseEntityKeys parses EntityKey list from @key directives.
func parseEntityKeys(directives ast.DirectiveList) ([]EntityKey, error) {
	var keys []EntityKey

	for _, d := range directives.ForNames("key") {
		arg := d.Arguments.ForName("fields")
		if arg == nil || arg.Value == nil {
			return nil, fmt.Errorf("@key requires a fields argument")
		}

		fs, err := ParseFieldSet(arg.Value.Raw)
		if err != nil {
			return nil, err
		}

		key := EntityKey{
			FieldSet:   fs,
			Raw:        arg.Value.Raw,
			Resolvable: true, // Default is true
		}
		if r := d.Arguments.ForName("resolvable"); r != nil && r.Value != nil && r.Value.Raw == "false" {
			key.Resolvable = false
		}

		keys = append(keys, key)
	}

	return keys, nil
}

// parseField creates a ServiceField from a field definition.
func parseField(fd *ast.FieldDefinition) *ServiceField {
	f := &ServiceField{
		Name: fd.Name,
		Type: typeRef(fd.Type),
	}

	for _, arg := range fd.Arguments {
		f.Arguments = append(f.Arguments, &Argument{Name: arg.Name, Type: typeRef(arg.Type)})
	}

	for _, d := range fd.Directives {
		switch d.Name {
		case "external":
			f.isExternal = true
		case "requires":
			f.Requires = directiveString(d, "fields")
		case "provides":
			f.Provides = directiveString(d, "fields")
		case "shareable":
			f.isShareable = true
		case "override":
			if from := directiveString(d, "from"); from != "" {
				f.Override = &OverrideMetadata{From: from}
			}
		case "inaccessible":
			f.isInaccessible = true
		}
	}

	return f
}

// rootTypeNames reads a schema definition such as `schema { query: RootQuery }`.
func rootTypeNames(doc *ast.SchemaDocument) map[string]string {
	names := make(map[string]string)
	defs := append(ast.SchemaDefinitionList{}, doc.Schema...)
	defs = append(defs, doc.SchemaExtension...)
	for _, schemaDef := range defs {
		for _, ot := range schemaDef.OperationTypes {
			switch ot.Operation {
			case ast.Query:
				names[ot.Type] = "Query"
			case ast.Mutation:
				names[ot.Type] = "Mutation"
			case ast.Subscription:
				names[ot.Type] = "Subscription"
			}
		}
	}
	return names
}

func typeRef(t *ast.Type) *TypeRef {
	if t == nil {
		return nil
	}
	return &TypeRef{
		Named:   t.NamedType,
		Elem:    typeRef(t.Elem),
		NonNull: t.NonNull,
	}
}

func directiveString(d *ast.Directive, name string) string {
	arg := d.Arguments.ForName(name)
	if arg == nil || arg.Value == nil {
		return ""
	}
	return arg.Value.Raw
}

// hasDirective checks if a directive with the specified name exists.
func hasDirective(directives ast.DirectiveList, name string) bool {
	return directives.ForName(name) != nil
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, existing := range list {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			list = append(list, v)
		}
	}
	return list
}
