package planner

import "github.com/pampang/federation/federation/graph"

// fieldGroup is the set of fields one fetch resolves from one service, at the
// response path mergeAt. Dependent groups are fetched after it from the
// entities it returns.
type fieldGroup struct {
	service string
	mergeAt ResponsePath

	fields         []*field
	requiredFields []*field
	providedFields graph.FieldSet

	dependentsByService map[string]*fieldGroup
	dependentOrder      []*fieldGroup
	otherDependents     []*fieldGroup

	internalFragments []*internalFragment
}

func newFieldGroup(service string, mergeAt ResponsePath, provided graph.FieldSet) *fieldGroup {
	return &fieldGroup{
		service:             service,
		mergeAt:             mergeAt,
		providedFields:      provided,
		dependentsByService: make(map[string]*fieldGroup),
	}
}

// dependentGroupForService returns the group fetching from service with the
// entities of this group, adding the representation fields to both groups.
func (g *fieldGroup) dependentGroupForService(service string, required []*field) *fieldGroup {
	dg, ok := g.dependentsByService[service]
	if !ok {
		dg = newFieldGroup(service, g.mergeAt, nil)
		g.dependentsByService[service] = dg
		g.dependentOrder = append(g.dependentOrder, dg)
	}

	if len(required) > 0 {
		dg.requiredFields = append(dg.requiredFields, required...)
		g.fields = append(g.fields, required...)
	}

	return dg
}

func (g *fieldGroup) dependentGroups() []*fieldGroup {
	groups := make([]*fieldGroup, 0, len(g.dependentOrder)+len(g.otherDependents))
	groups = append(groups, g.dependentOrder...)
	return append(groups, g.otherDependents...)
}

// mergeDependentGroups adopts the dependents of a nested group. Dependents
// fetching from the same service at the same path are merged.
func (g *fieldGroup) mergeDependentGroups(from *fieldGroup) {
	for _, dg := range from.dependentGroups() {
		if existing := g.findOtherDependent(dg.service, dg.mergeAt); existing != nil {
			existing.merge(dg)
			continue
		}
		g.otherDependents = append(g.otherDependents, dg)
	}
}

func (g *fieldGroup) findOtherDependent(service string, mergeAt ResponsePath) *fieldGroup {
	for _, dg := range g.otherDependents {
		if dg.service == service && pathsEqual(dg.mergeAt, mergeAt) {
			return dg
		}
	}
	return nil
}

func (g *fieldGroup) merge(other *fieldGroup) {
	g.fields = append(g.fields, other.fields...)
	g.requiredFields = append(g.requiredFields, other.requiredFields...)
	g.providedFields = append(g.providedFields, other.providedFields...)
	for _, f := range other.internalFragments {
		g.addInternalFragment(f)
	}
	g.mergeDependentGroups(other)
}

// provided returns the @provides selection of a field of this level, or nil.
func (g *fieldGroup) provided(fieldName string) *graph.FieldSelection {
	for _, sel := range g.providedFields {
		if sel.Name == fieldName {
			return sel
		}
	}
	return nil
}

func (g *fieldGroup) isProvided(fieldName string) bool {
	return g.provided(fieldName) != nil
}

func (g *fieldGroup) addInternalFragment(f *internalFragment) {
	for _, existing := range g.internalFragments {
		if existing == f {
			return
		}
	}
	g.internalFragments = append(g.internalFragments, f)
}

func pathsEqual(a, b ResponsePath) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
