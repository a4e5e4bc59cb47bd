package planner_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
	"github.com/google/go-cmp/cmp"
	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
	"github.com/pampang/federation/federation/graph"
	"github.com/pampang/federation/federation/planner"
)

type fixture struct {
	Services []struct {
		Name string `yaml:"name"`
		SDL  string `yaml:"sdl"`
	} `yaml:"services"`
	Scenarios []struct {
		Name                string `yaml:"name"`
		Query               string `yaml:"query"`
		AutoFragmentization bool   `yaml:"autoFragmentization"`
		Plan                string `yaml:"plan"`
	} `yaml:"scenarios"`
}

func loadFixture(t *testing.T, path string) (*fixture, *planner.Planner) {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	var f fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		t.Fatalf("failed to decode fixture: %v", err)
	}

	subGraphs := make([]*graph.SubGraph, 0, len(f.Services))
	for _, s := range f.Services {
		sg, err := graph.NewSubGraph(s.Name, []byte(s.SDL), "http://"+s.Name+".example.com")
		if err != nil {
			t.Fatalf("NewSubGraph failed for %s: %v", s.Name, err)
		}
		subGraphs = append(subGraphs, sg)
	}
	superGraph, err := graph.NewSuperGraph(subGraphs...)
	if err != nil {
		t.Fatalf("NewSuperGraph failed: %v", err)
	}

	return &f, planner.NewPlanner(superGraph)
}

func parseQuery(t *testing.T, query string) *ast.Document {
	t.Helper()

	l := lexer.New(query)
	p := parser.New(l)
	doc := p.ParseDocument()
	if len(p.Errors()) > 0 {
		t.Fatalf("parse error: %v", p.Errors())
	}
	return doc
}

func decodeJSON(t *testing.T, data []byte) any {
	t.Helper()

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, data)
	}
	return v
}

func TestPlan_Fixtures(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("no fixtures found")
	}

	for _, path := range paths {
		f, p := loadFixture(t, path)
		for _, sc := range f.Scenarios {
			t.Run(filepath.Base(path)+"/"+sc.Name, func(t *testing.T) {
				doc := parseQuery(t, sc.Query)

				plan, err := p.Plan(doc, planner.QueryPlanningOptions{AutoFragmentization: sc.AutoFragmentization})
				if err != nil {
					t.Fatalf("Plan failed: %v", err)
				}

				got, err := json.Marshal(plan)
				if err != nil {
					t.Fatalf("failed to encode plan: %v", err)
				}
				if diff := cmp.Diff(decodeJSON(t, []byte(sc.Plan)), decodeJSON(t, got)); diff != "" {
					t.Errorf("plan mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

func newBasicPlanner(t *testing.T) *planner.Planner {
	t.Helper()
	_, p := loadFixture(t, filepath.Join("testdata", "basic.yaml"))
	return p
}

func TestPlan_Deterministic(t *testing.T) {
	p := newBasicPlanner(t)
	query := `{ me { name reviews { body product { name shippingEstimate } } } topProducts { name } }`

	var first []byte
	for i := 0; i < 10; i++ {
		plan, err := p.Plan(parseQuery(t, query), planner.QueryPlanningOptions{})
		if err != nil {
			t.Fatalf("Plan failed: %v", err)
		}
		got, err := json.Marshal(plan)
		if err != nil {
			t.Fatal(err)
		}
		if first == nil {
			first = got
			continue
		}
		if diff := cmp.Diff(string(first), string(got)); diff != "" {
			t.Fatalf("plan changed between runs (-first +got):\n%s", diff)
		}
	}
}

func TestPlan_SingleServiceIsOneFetch(t *testing.T) {
	p := newBasicPlanner(t)

	plan, err := p.Plan(parseQuery(t, `{ topProducts { upc name price weight } }`), planner.QueryPlanningOptions{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	fetch, ok := plan.Node.(*planner.FetchNode)
	if !ok {
		t.Fatalf("expected a single fetch, got %T", plan.Node)
	}
	if fetch.ServiceName != "products" {
		t.Errorf("expected products, got %s", fetch.ServiceName)
	}
	if len(fetch.Requires) != 0 {
		t.Errorf("root fetch must not require representations: %+v", fetch.Requires)
	}
}

func TestPlan_RepresentationsStartWithTypename(t *testing.T) {
	p := newBasicPlanner(t)

	plan, err := p.Plan(parseQuery(t, `{ me { reviews { product { name shippingEstimate } } } }`), planner.QueryPlanningOptions{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	fetches := plan.Fetches()
	if len(fetches) != 4 {
		t.Fatalf("expected 4 fetches, got %d", len(fetches))
	}
	for _, fetch := range fetches[1:] {
		if len(fetch.Requires) == 0 {
			t.Errorf("%s: expected representations", fetch.ServiceName)
			continue
		}
		for _, rep := range fetch.Requires {
			if len(rep.Selections) == 0 || rep.Selections[0].Name != "__typename" {
				t.Errorf("%s: representation of %s does not start with __typename", fetch.ServiceName, rep.TypeCondition)
			}
		}
	}
}

// Every entity fetch must come after the fetch that returns its
// representations: a Sequence orders them, a Parallel never splits them.
func TestPlan_DependenciesAreSequenced(t *testing.T) {
	p := newBasicPlanner(t)

	plan, err := p.Plan(parseQuery(t, `{ me { reviews { body } } topProducts { shippingEstimate } }`), planner.QueryPlanningOptions{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	parallel, ok := plan.Node.(*planner.ParallelNode)
	if !ok {
		t.Fatalf("expected parallel root, got %T", plan.Node)
	}
	if len(parallel.Nodes) != 2 {
		t.Fatalf("expected 2 branches, got %d", len(parallel.Nodes))
	}

	var services [][]string
	for _, branch := range parallel.Nodes {
		seq, ok := branch.(*planner.SequenceNode)
		if !ok {
			t.Fatalf("expected sequence branch, got %T", branch)
		}
		var order []string
		for _, n := range seq.Nodes {
			planner.Walk(n, func(n planner.PlanNode) {
				if f, ok := n.(*planner.FetchNode); ok {
					order = append(order, f.ServiceName)
				}
			})
		}
		services = append(services, order)
	}

	want := [][]string{{"accounts", "reviews"}, {"products", "inventory"}}
	if diff := cmp.Diff(want, services); diff != "" {
		t.Errorf("fetch order mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_PlanningOnly(t *testing.T) {
	p := newBasicPlanner(t)

	plan, err := p.Plan(parseQuery(t, `{ topProducts { upc name shippingEstimate } }`), planner.QueryPlanningOptions{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	fetches := plan.Fetches()
	if len(fetches) != 2 {
		t.Fatalf("expected 2 fetches, got %d", len(fetches))
	}

	want := []planner.ResponsePath{
		{"topProducts", "__typename"},
		{"topProducts", "price"},
		{"topProducts", "weight"},
	}
	if diff := cmp.Diff(want, fetches[0].PlanningOnly); diff != "" {
		t.Errorf("planning-only fields mismatch (-want +got):\n%s", diff)
	}
	if len(fetches[1].PlanningOnly) != 0 {
		t.Errorf("expected no planning-only fields in the entity fetch, got %v", fetches[1].PlanningOnly)
	}

	encoded, err := json.Marshal(plan)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(encoded, &raw); err != nil {
		t.Fatal(err)
	}
	node := raw["node"].(map[string]any)
	first := node["nodes"].([]any)[0].(map[string]any)
	if _, ok := first["planningOnly"]; ok {
		t.Error("planning-only fields must not be serialized")
	}
}

func TestPlan_AutoFragmentizationKeepsShape(t *testing.T) {
	p := newBasicPlanner(t)
	query := `{ me { name username reviews { id body product { upc name price } } } }`

	plain, err := p.Plan(parseQuery(t, query), planner.QueryPlanningOptions{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	fragmented, err := p.Plan(parseQuery(t, query), planner.QueryPlanningOptions{AutoFragmentization: true})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	shape := func(plan *planner.QueryPlan) []string {
		var services []string
		for _, f := range plan.Fetches() {
			services = append(services, f.ServiceName)
		}
		return services
	}
	if diff := cmp.Diff(shape(plain), shape(fragmented)); diff != "" {
		t.Errorf("fragmentization changed the plan shape (-plain +fragmented):\n%s", diff)
	}

	want := "query($representations:[_Any!]!){_entities(representations:$representations){...on User{reviews{...__QueryPlanFragment_0__}}}}" +
		"fragment __QueryPlanFragment_0__ on Review{id body product{upc __typename}}"
	if got := fragmented.Fetches()[1].Operation; got != want {
		t.Errorf("unexpected operation:\nwant %s\ngot  %s", want, got)
	}
}

func TestPlan_Errors(t *testing.T) {
	p := newBasicPlanner(t)

	tests := []struct {
		name    string
		query   string
		code    string
		message string
		target  error
	}{
		{
			name:    "unknown field",
			query:   `{ me { nickname } }`,
			code:    "UNKNOWN_FIELD",
			message: `Cannot query field "nickname" on type "User"`,
			target:  graph.ErrUnknownField,
		},
		{
			name:    "unknown root field",
			query:   `{ bestSellers { name } }`,
			code:    "UNKNOWN_FIELD",
			message: `Cannot query field "bestSellers" on type "Query"`,
			target:  graph.ErrUnknownField,
		},
		{
			name:    "subscription",
			query:   `subscription { reviewAdded { body } }`,
			code:    "PLANNING_FAILED",
			message: "subscription is not supported",
			target:  planner.ErrSubscriptionNotSupported,
		},
		{
			name:    "unknown fragment",
			query:   `{ me { ...Missing } }`,
			code:    "PLANNING_FAILED",
			message: `Unknown fragment "Missing"`,
		},
		{
			name:    "undeclared variable",
			query:   `query { topProducts(first: $n) { name } }`,
			code:    "PLANNING_FAILED",
			message: `Variable "$n" is not defined`,
		},
		{
			name:    "no mutation type",
			query:   `mutation { login { id } }`,
			code:    "PLANNING_FAILED",
			message: "schema does not support mutation operations",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Plan(parseQuery(t, tt.query), planner.QueryPlanningOptions{})
			if err == nil {
				t.Fatal("expected an error")
			}

			var pe *planner.PlanningError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *PlanningError, got %T", err)
			}
			if pe.Code() != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, pe.Code())
			}
			if pe.Message != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, pe.Message)
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("expected error to wrap %v", tt.target)
			}
		})
	}
}

func newPlanner(t *testing.T, services map[string]string, order ...string) *planner.Planner {
	t.Helper()

	subGraphs := make([]*graph.SubGraph, 0, len(order))
	for _, name := range order {
		sg, err := graph.NewSubGraph(name, []byte(services[name]), "http://"+name+".example.com")
		if err != nil {
			t.Fatalf("NewSubGraph failed for %s: %v", name, err)
		}
		subGraphs = append(subGraphs, sg)
	}
	superGraph, err := graph.NewSuperGraph(subGraphs...)
	if err != nil {
		t.Fatalf("NewSuperGraph failed: %v", err)
	}
	return planner.NewPlanner(superGraph)
}

func TestPlan_InaccessibleField(t *testing.T) {
	p := newPlanner(t, map[string]string{
		"accounts": `
			type Query { me: User }
			type User @key(fields: "id") { id: ID! name: String password: String @inaccessible }
		`,
	}, "accounts")

	_, err := p.Plan(parseQuery(t, `{ me { password } }`), planner.QueryPlanningOptions{})
	if !errors.Is(err, graph.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if got := err.Error(); got != `Cannot query field "password" on type "User"` {
		t.Errorf("unexpected message: %s", got)
	}
}

func TestPlan_NotAnEntity(t *testing.T) {
	p := newPlanner(t, map[string]string{
		"a": `
			type Query { thing: Thing }
			type Thing { id: ID! }
		`,
		"b": `
			extend type Thing { extra: String }
		`,
	}, "a", "b")

	_, err := p.Plan(parseQuery(t, `{ thing { extra } }`), planner.QueryPlanningOptions{})
	if !errors.Is(err, graph.ErrNotAnEntity) {
		t.Fatalf("expected ErrNotAnEntity, got %v", err)
	}
}

func TestPlan_UnsatisfiableRequirement(t *testing.T) {
	p := newPlanner(t, map[string]string{
		"a": `
			type Query { user: User }
			type User @key(fields: "id") { id: ID! }
		`,
		"b": `
			extend type User @key(fields: "ssn") { ssn: ID! @external display: String }
		`,
		"c": `
			extend type User @key(fields: "id", resolvable: false) { id: ID! @external ssn: ID! }
		`,
	}, "a", "b", "c")

	_, err := p.Plan(parseQuery(t, `{ user { display } }`), planner.QueryPlanningOptions{})
	if !errors.Is(err, graph.ErrUnsatisfiableRequirement) {
		t.Fatalf("expected ErrUnsatisfiableRequirement, got %v", err)
	}
	var pe *planner.PlanningError
	if errors.As(err, &pe) && pe.Code() != "UNSATISFIABLE_REQUIREMENT" {
		t.Errorf("unexpected code %s", pe.Code())
	}
}

func TestPlan_FirstOperation(t *testing.T) {
	p := newBasicPlanner(t)
	doc := parseQuery(t, `
		query First { me { name } }
		query Second { topProducts { name } }
	`)

	plan, err := p.Plan(doc, planner.QueryPlanningOptions{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	fetch, ok := plan.Node.(*planner.FetchNode)
	if !ok || fetch.ServiceName != "accounts" {
		t.Fatalf("expected the first operation to be planned, got %+v", plan.Node)
	}
}

func TestPlan_IntrospectionIsSkipped(t *testing.T) {
	p := newBasicPlanner(t)

	plan, err := p.Plan(parseQuery(t, `{ __schema { queryType { name } } me { name } }`), planner.QueryPlanningOptions{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	fetch, ok := plan.Node.(*planner.FetchNode)
	if !ok {
		t.Fatalf("expected a single fetch, got %T", plan.Node)
	}
	if fetch.Operation != "{me{name}}" {
		t.Errorf("unexpected operation %s", fetch.Operation)
	}
}
