package graph

import "strings"

// TypeKind is the kind of a named type in the composed schema.
type TypeKind int

const (
	KindScalar TypeKind = iota
	KindObject
	KindInterface
	KindUnion
	KindEnum
	KindInputObject
)

func (k TypeKind) String() string {
	switch k {
	case KindObject:
		return "OBJECT"
	case KindInterface:
		return "INTERFACE"
	case KindUnion:
		return "UNION"
	case KindEnum:
		return "ENUM"
	case KindInputObject:
		return "INPUT_OBJECT"
	default:
		return "SCALAR"
	}
}

// TypeRef is a reference to a type, possibly wrapped in lists and non-null.
type TypeRef struct {
	Named   string
	Elem    *TypeRef
	NonNull bool
}

// Name returns the innermost named type.
func (t *TypeRef) Name() string {
	if t.Elem != nil {
		return t.Elem.Name()
	}
	return t.Named
}

// IsList reports whether the outermost wrapper is a list.
func (t *TypeRef) IsList() bool {
	return t.Elem != nil
}

func (t *TypeRef) String() string {
	var sb strings.Builder
	if t.Elem != nil {
		sb.WriteString("[")
		sb.WriteString(t.Elem.String())
		sb.WriteString("]")
	} else {
		sb.WriteString(t.Named)
	}
	if t.NonNull {
		sb.WriteString("!")
	}
	return sb.String()
}

// Argument is an argument or input object field definition.
type Argument struct {
	Name string
	Type *TypeRef
}

// Key is one resolvable @key of an entity in a service.
type Key struct {
	Service  string
	FieldSet FieldSet
}

// Field is a field of a composed object or interface type.
type Field struct {
	Name      string
	Parent    string
	Type      *TypeRef
	Arguments []*Argument

	// Owner is the primary owning service. Owners lists every service able to
	// resolve the field, in service order.
	Owner  string
	Owners []string

	// Requires is the @requires field set declared by the primary owner.
	Requires FieldSet
	// Provides holds @provides field sets keyed by the declaring service.
	Provides map[string]FieldSet

	Inaccessible bool
}

// IsOwnedBy reports whether service can resolve the field.
func (f *Field) IsOwnedBy(service string) bool {
	for _, o := range f.Owners {
		if o == service {
			return true
		}
	}
	return false
}

// Argument returns the argument definition with the given name.
func (f *Field) Argument(name string) *Argument {
	for _, a := range f.Arguments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Type is a named type of the composed schema.
type Type struct {
	Name string
	Kind TypeKind

	// Owner is the base service of an object type; empty for root and abstract
	// types.
	Owner string
	// ValueType is set for non-entity object types defined by several services.
	ValueType bool

	Interfaces []string
	Fields     []*Field
	// InputFields are the fields of an input object.
	InputFields []*Argument

	fields        map[string]*Field
	members       []string
	possibleTypes []string
	services      []string
	keys          map[string][]*Key
	keyFields     map[string]map[string]bool
	supply        map[string]map[string]bool

	entityDeclared bool
	inaccessible   bool
}

// Field returns the field with the given name, or nil.
func (t *Type) Field(name string) *Field {
	return t.fields[name]
}

// IsEntity reports whether any service declares a @key for the type.
func (t *Type) IsEntity() bool {
	return t.entityDeclared
}

// IsAbstract reports whether the type is an interface or a union.
func (t *Type) IsAbstract() bool {
	return t.Kind == KindInterface || t.Kind == KindUnion
}

// IsComposite reports whether a selection set is required for the type.
func (t *Type) IsComposite() bool {
	return t.Kind == KindObject || t.IsAbstract()
}

// Services returns the services defining the type, in service order.
func (t *Type) Services() []string {
	return t.services
}

// InputField returns the input object field with the given name, or nil.
func (t *Type) InputField(name string) *Argument {
	for _, f := range t.InputFields {
		if f.Name == name {
			return f
		}
	}
	return nil
}
