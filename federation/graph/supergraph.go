package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/vektah/gqlparser/v2/ast"
)

// TypenameField is the meta field available on every composite type.
const TypenameField = "__typename"

var rootOperationTypes = map[string]string{
	"query":        "Query",
	"mutation":     "Mutation",
	"subscription": "Subscription",
}

// SuperGraph is the composed, read-only index over every subgraph: type and
// field ownership, entity keys and the routing graph between services.
// It is never mutated after NewSuperGraph returns.
type SuperGraph struct {
	SubGraphs []*SubGraph

	types        map[string]*Type
	typeOrder    []string
	serviceIndex map[string]int
	graphs       map[string]*WeightedDirectedGraph
}

// NewSuperGraph composes the subgraphs, in the given order, into a super graph.
// All composition problems found are returned together.
func NewSuperGraph(subGraphs ...*SubGraph) (*SuperGraph, error) {
	if len(subGraphs) == 0 {
		return nil, &CompositionError{Message: "no subgraphs to compose"}
	}

	sg := &SuperGraph{
		SubGraphs:    subGraphs,
		types:        make(map[string]*Type),
		serviceIndex: make(map[string]int, len(subGraphs)),
		graphs:       make(map[string]*WeightedDirectedGraph),
	}

	var errs *multierror.Error
	for i, subGraph := range subGraphs {
		if _, dup := sg.serviceIndex[subGraph.Name]; dup {
			errs = multierror.Append(errs, compositionErrorf("service %q is defined more than once", subGraph.Name))
			continue
		}
		sg.serviceIndex[subGraph.Name] = i
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	for _, subGraph := range subGraphs {
		for _, err := range sg.mergeDefinitions(subGraph) {
			errs = multierror.Append(errs, err)
		}
	}
	for _, name := range sg.typeOrder {
		t := sg.types[name]
		if t.Kind != KindObject {
			continue
		}
		for _, err := range sg.composeObject(t) {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	sg.buildPossibleTypes()
	for _, name := range sg.typeOrder {
		if t := sg.types[name]; t.IsEntity() {
			sg.graphs[name] = sg.buildEntityGraph(t)
		}
	}

	return sg, nil
}

// CompositionErrors flattens an error returned by NewSuperGraph into its
// individual composition errors.
func CompositionErrors(err error) []*CompositionError {
	if err == nil {
		return nil
	}

	var merr *multierror.Error
	if !errors.As(err, &merr) {
		var ce *CompositionError
		if errors.As(err, &ce) {
			return []*CompositionError{ce}
		}
		return []*CompositionError{{Message: err.Error()}}
	}

	result := make([]*CompositionError, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		var ce *CompositionError
		if errors.As(e, &ce) {
			result = append(result, ce)
			continue
		}
		result = append(result, &CompositionError{Message: e.Error()})
	}
	return result
}

// mergeDefinitions registers every named type of the subgraph and merges the
// parts that do not depend on ownership: interfaces, union members, input and
// interface fields.
func (sg *SuperGraph) mergeDefinitions(subGraph *SubGraph) []error {
	var errs []error

	for _, def := range subGraph.definitions() {
		name := subGraph.canonicalName(def.Name)
		kind := kindOf(def.Kind)

		t, ok := sg.types[name]
		if !ok {
			t = &Type{
				Name:   name,
				Kind:   kind,
				fields: make(map[string]*Field),
				keys:   make(map[string][]*Key),
				supply: make(map[string]map[string]bool),
			}
			sg.types[name] = t
			sg.typeOrder = append(sg.typeOrder, name)
		} else if t.Kind != kind {
			errs = append(errs, compositionErrorf("type %q is defined as %s in %q but as %s in %q", name, kind, subGraph.Name, t.Kind, t.services[0]))
			continue
		}
		t.services = appendUnique(t.services, subGraph.Name)

		switch kind {
		case KindObject, KindInterface:
			t.Interfaces = appendUnique(t.Interfaces, def.Interfaces...)
			if kind == KindInterface {
				for _, fd := range def.Fields {
					if t.fields[fd.Name] == nil {
						sg.addField(t, &Field{Name: fd.Name, Parent: name, Type: typeRef(fd.Type), Arguments: parseField(fd).Arguments})
					}
				}
			}
		case KindUnion:
			t.members = appendUnique(t.members, def.Types...)
		case KindInputObject:
			for _, fd := range def.Fields {
				if t.InputField(fd.Name) == nil {
					t.InputFields = append(t.InputFields, &Argument{Name: fd.Name, Type: typeRef(fd.Type)})
				}
			}
		}
		if hasDirective(def.Directives, "inaccessible") {
			t.inaccessible = true
		}
	}

	return errs
}

type serviceObject struct {
	service string
	object  *ObjectType
}

// composeObject decides the base service, keys, field owners and what each
// service can supply for an object type.
func (sg *SuperGraph) composeObject(t *Type) []error {
	var errs []error

	var decls []serviceObject
	for _, subGraph := range sg.SubGraphs {
		if obj := subGraph.Object(t.Name); obj != nil {
			decls = append(decls, serviceObject{service: subGraph.Name, object: obj})
		}
	}

	var bases []string
	for _, d := range decls {
		if !d.object.IsExtension() {
			bases = append(bases, d.service)
		}
		if d.object.IsEntity() {
			t.entityDeclared = true
		}
	}

	switch {
	case sg.IsRootType(t.Name):
		// Root operation types have no base service; each field has its own owner.
	case len(bases) == 0:
		errs = append(errs, compositionErrorf("type %q is an extension type, but there is no type definition for %q in any subgraph", t.Name, t.Name))
		return errs
	default:
		t.Owner = bases[0]
		for _, d := range decls {
			if !d.object.IsExtension() && d.object.IsResolvable() {
				t.Owner = d.service
				break
			}
		}
		t.ValueType = !t.entityDeclared && len(bases) > 1
	}

	// Fields in order of first appearance.
	for _, d := range decls {
		for _, f := range d.object.Fields {
			if t.fields[f.Name] == nil {
				sg.addField(t, &Field{Name: f.Name, Parent: t.Name, Type: f.Type, Provides: make(map[string]FieldSet)})
			}
		}
		if d.object.isInaccessible {
			t.inaccessible = true
		}
	}

	keyFields := make(map[string]map[string]bool)
	for _, d := range decls {
		keyFields[d.service] = make(map[string]bool)
		for _, key := range d.object.Keys {
			for _, sel := range key.FieldSet {
				if t.fields[sel.Name] == nil {
					errs = append(errs, compositionErrorf("[%s] %s: @key(fields: %q) references field %q which is not defined on the type", d.service, t.Name, key.Raw, sel.Name))
				}
				keyFields[d.service][sel.Name] = true
			}
			if key.Resolvable {
				t.keys[d.service] = append(t.keys[d.service], &Key{Service: d.service, FieldSet: key.FieldSet})
			}
		}
	}

	t.keyFields = keyFields

	for _, f := range t.Fields {
		errs = append(errs, sg.composeField(t, f, decls, keyFields)...)
	}

	for _, d := range decls {
		supply := map[string]bool{TypenameField: true}
		for _, f := range d.object.Fields {
			if !f.IsExternal() {
				supply[f.Name] = true
			}
		}
		for name := range keyFields[d.service] {
			supply[name] = true
		}
		t.supply[d.service] = supply
	}

	return errs
}

func (sg *SuperGraph) composeField(t *Type, f *Field, decls []serviceObject, keyFields map[string]map[string]bool) []error {
	var errs []error

	var (
		overrider string
		from      string
		shareable bool
		conflicts int
	)
	for _, d := range decls {
		sf := d.object.Field(f.Name)
		if sf == nil {
			continue
		}
		if sf.IsInaccessible() {
			f.Inaccessible = true
		}
		if sf.Override != nil {
			overrider, from = d.service, sf.Override.From
		}
		if sf.IsShareable() {
			shareable = true
		}
		if sf.Provides != "" {
			fs, err := ParseFieldSet(sf.Provides)
			if err != nil {
				errs = append(errs, compositionErrorf("[%s] %s.%s: %v", d.service, t.Name, f.Name, err))
			} else {
				f.Provides[d.service] = fs
			}
		}
	}

	for _, d := range decls {
		sf := d.object.Field(f.Name)
		if sf == nil || sf.IsExternal() || (overrider != "" && d.service == from) {
			continue
		}
		f.Owners = append(f.Owners, d.service)
		if !keyFields[d.service][f.Name] {
			conflicts++
		}
	}

	switch {
	case len(f.Owners) == 0:
		errs = append(errs, compositionErrorf("field %q is marked @external in every subgraph that defines it", t.Name+"."+f.Name))
		return errs
	case overrider != "":
		f.Owner = overrider
	case f.IsOwnedBy(t.Owner):
		f.Owner = t.Owner
	default:
		f.Owner = f.Owners[0]
	}

	if conflicts > 1 && overrider == "" && !shareable && !t.ValueType {
		errs = append(errs, compositionErrorf("field %q is resolved by multiple subgraphs (%s) but is not marked @shareable", t.Name+"."+f.Name, strings.Join(f.Owners, ", ")))
	}

	owner := decls[0].object.Field(f.Name)
	for _, d := range decls {
		if d.service == f.Owner {
			owner = d.object.Field(f.Name)
			break
		}
	}
	if owner != nil {
		f.Arguments = owner.Arguments
		if owner.Requires != "" {
			fs, err := ParseFieldSet(owner.Requires)
			if err != nil {
				errs = append(errs, compositionErrorf("[%s] %s.%s: %v", f.Owner, t.Name, f.Name, err))
			}
			for _, sel := range fs {
				if t.fields[sel.Name] == nil {
					errs = append(errs, compositionErrorf("[%s] %s.%s: @requires(fields: %q) references field %q which is not defined on the type", f.Owner, t.Name, f.Name, owner.Requires, sel.Name))
				}
			}
			f.Requires = fs
		}
	}

	return errs
}

func (sg *SuperGraph) addField(t *Type, f *Field) {
	t.fields[f.Name] = f
	t.Fields = append(t.Fields, f)
}

func (sg *SuperGraph) buildPossibleTypes() {
	for _, name := range sg.typeOrder {
		t := sg.types[name]
		switch t.Kind {
		case KindObject:
			t.possibleTypes = []string{name}
		case KindUnion:
			t.possibleTypes = t.members
		case KindInterface:
			for _, candidate := range sg.typeOrder {
				ct := sg.types[candidate]
				if ct.Kind != KindObject {
					continue
				}
				for _, iface := range ct.Interfaces {
					if iface == name {
						t.possibleTypes = append(t.possibleTypes, candidate)
						break
					}
				}
			}
		}
	}
}

func kindOf(kind ast.DefinitionKind) TypeKind {
	switch kind {
	case ast.Object:
		return KindObject
	case ast.Interface:
		return KindInterface
	case ast.Union:
		return KindUnion
	case ast.Enum:
		return KindEnum
	case ast.InputObject:
		return KindInputObject
	default:
		return KindScalar
	}
}

// Services returns the service names in declaration order.
func (sg *SuperGraph) Services() []string {
	names := make([]string, 0, len(sg.SubGraphs))
	for _, subGraph := range sg.SubGraphs {
		names = append(names, subGraph.Name)
	}
	return names
}

// ServiceIndex returns the declaration position of a service, or -1.
func (sg *SuperGraph) ServiceIndex(service string) int {
	if i, ok := sg.serviceIndex[service]; ok {
		return i
	}
	return -1
}

// SubGraph returns the subgraph with the given name, or nil.
func (sg *SuperGraph) SubGraph(service string) *SubGraph {
	if i, ok := sg.serviceIndex[service]; ok {
		return sg.SubGraphs[i]
	}
	return nil
}

// Type returns the named type, or nil if it is not part of the schema.
func (sg *SuperGraph) Type(name string) *Type {
	return sg.types[name]
}

// Types returns every named type in composition order.
func (sg *SuperGraph) Types() []*Type {
	types := make([]*Type, 0, len(sg.typeOrder))
	for _, name := range sg.typeOrder {
		types = append(types, sg.types[name])
	}
	return types
}

// RootType returns the root type for "query", "mutation" or "subscription".
func (sg *SuperGraph) RootType(operation string) *Type {
	if operation == "" {
		operation = "query"
	}
	return sg.types[rootOperationTypes[operation]]
}

// IsRootType reports whether name is one of the root operation types.
func (sg *SuperGraph) IsRootType(name string) bool {
	for _, root := range rootOperationTypes {
		if root == name {
			return true
		}
	}
	return false
}

// Field returns a field of an object or interface type.
func (sg *SuperGraph) Field(typeName, fieldName string) (*Field, error) {
	t := sg.types[typeName]
	if t == nil {
		return nil, fmt.Errorf("%w: type %q is not defined", ErrUnknownField, typeName)
	}
	f := t.Field(fieldName)
	if f == nil {
		return nil, fmt.Errorf("%w: Cannot query field %q on type %q", ErrUnknownField, fieldName, typeName)
	}
	return f, nil
}

// ResolveFieldOwner returns the primary owning service of a field.
func (sg *SuperGraph) ResolveFieldOwner(typeName, fieldName string) (string, error) {
	f, err := sg.Field(typeName, fieldName)
	if err != nil {
		return "", err
	}
	if f.Owner == "" {
		return "", fmt.Errorf("%w: field %q has no owning service", ErrAmbiguousOwner, typeName+"."+fieldName)
	}
	return f.Owner, nil
}

// KeyFieldsFor returns the resolvable keys service declares for an entity, in
// declaration order.
func (sg *SuperGraph) KeyFieldsFor(typeName, service string) ([]*Key, error) {
	t := sg.types[typeName]
	if t == nil || len(t.keys[service]) == 0 {
		return nil, fmt.Errorf("%w: type %q declares no resolvable @key for service %q", ErrNotAnEntity, typeName, service)
	}
	return t.keys[service], nil
}

// PossibleOwners returns the services that can resolve an entity by key.
func (sg *SuperGraph) PossibleOwners(typeName string) []string {
	t := sg.types[typeName]
	if t == nil {
		return nil
	}
	var owners []string
	for _, subGraph := range sg.SubGraphs {
		if len(t.keys[subGraph.Name]) > 0 {
			owners = append(owners, subGraph.Name)
		}
	}
	return owners
}

// PossibleTypes returns the object types a value of the named type can have at
// runtime.
func (sg *SuperGraph) PossibleTypes(name string) []*Type {
	t := sg.types[name]
	if t == nil {
		return nil
	}
	types := make([]*Type, 0, len(t.possibleTypes))
	for _, pt := range t.possibleTypes {
		if possible := sg.types[pt]; possible != nil {
			types = append(types, possible)
		}
	}
	return types
}

// CanSupply reports whether service can return fieldName of an object of
// typeName without another fetch.
func (sg *SuperGraph) CanSupply(service, typeName, fieldName string) bool {
	t := sg.types[typeName]
	if t == nil {
		return false
	}
	return t.supply[service][fieldName]
}

// IsKeyField reports whether fieldName is part of a @key service declares for
// typeName, resolvable or not.
func (sg *SuperGraph) IsKeyField(service, typeName, fieldName string) bool {
	t := sg.types[typeName]
	if t == nil {
		return false
	}
	return t.keyFields[service][fieldName]
}

// IsInaccessible reports whether a type or field is hidden from clients.
func (sg *SuperGraph) IsInaccessible(typeName, fieldName string) bool {
	t := sg.types[typeName]
	if t == nil {
		return false
	}
	if t.inaccessible {
		return true
	}
	if fieldName == "" {
		return false
	}
	f := t.Field(fieldName)
	return f != nil && f.Inaccessible
}
