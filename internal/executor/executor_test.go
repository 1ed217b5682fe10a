package executor

import (
	"context"
	"testing"

	"github.com/grizabella-go/grizabella/internal/graphstore"
	"github.com/grizabella-go/grizabella/internal/instancemgr"
	"github.com/grizabella-go/grizabella/internal/planner"
	"github.com/grizabella-go/grizabella/internal/relational"
	"github.com/grizabella-go/grizabella/internal/schemamgr"
	"github.com/grizabella-go/grizabella/internal/vectorstore"
	"github.com/grizabella-go/grizabella/pkg/types"
)

type testEnv struct {
	schema *schemamgr.Manager
	im     *instancemgr.Manager
	exec   *Executor
}

func setupEnv(t *testing.T) testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	rel, err := relational.Open(ctx, dir+"/sqlite.db")
	if err != nil {
		t.Fatalf("relational.Open: %v", err)
	}
	t.Cleanup(func() { rel.Close() })
	vec, err := vectorstore.Open(ctx, dir)
	if err != nil {
		t.Fatalf("vectorstore.Open: %v", err)
	}
	t.Cleanup(func() { vec.Close() })
	graph, err := graphstore.Open(dir)
	if err != nil {
		t.Fatalf("graphstore.Open: %v", err)
	}
	t.Cleanup(func() { graph.Close() })

	schema, err := schemamgr.New(ctx, rel, vec, graph)
	if err != nil {
		t.Fatalf("schemamgr.New: %v", err)
	}
	if err := schema.CreateObjectType(ctx, types.ObjectTypeDefinition{
		TypeName: "Person",
		Properties: []types.Property{
			{Name: "id", DataType: types.TypeUUID, IsPrimary: true},
			{Name: "name", DataType: types.TypeText},
			{Name: "bio", DataType: types.TypeText, IsNullable: true},
		},
	}); err != nil {
		t.Fatalf("CreateObjectType: %v", err)
	}
	if err := schema.CreateEmbeddingDefinition(ctx, types.EmbeddingDefinition{
		Name:               "bio_embedding",
		ObjectTypeName:     "Person",
		SourcePropertyName: "bio",
		Dimensions:         8,
		Metric:             types.MetricCosine,
	}); err != nil {
		t.Fatalf("CreateEmbeddingDefinition: %v", err)
	}

	models := vectorstore.NewModelRegistry()
	im := instancemgr.New(schema, rel, vec, graph, models)
	exec := New(rel, vec, graph, models)
	return testEnv{schema: schema, im: im, exec: exec}
}

func TestExecuteRelationalFilter(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)

	if _, err := env.im.UpsertObject(ctx, types.ObjectInstance{
		ObjectTypeName: "Person",
		Properties:     map[string]any{"name": "Ada", "bio": "mathematician"},
	}); err != nil {
		t.Fatalf("UpsertObject: %v", err)
	}
	if _, err := env.im.UpsertObject(ctx, types.ObjectInstance{
		ObjectTypeName: "Person",
		Properties:     map[string]any{"name": "Bob", "bio": "engineer"},
	}); err != nil {
		t.Fatalf("UpsertObject: %v", err)
	}

	query := types.ComplexQuery{
		Root: &types.QueryComponent{
			ObjectTypeName: "Person",
			RelationalFilters: []types.RelationalFilter{
				{PropertyName: "name", Operator: types.OpEqual, Value: "Ada"},
			},
		},
	}
	plan, err := planner.Plan(env.schema, query)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	result, err := env.exec.Execute(ctx, plan)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Objects) != 1 || result.Objects[0].Properties["name"] != "Ada" {
		t.Fatalf("Execute() = %+v, want a single Ada match", result.Objects)
	}
}

func TestExecuteLegacyComponentsImplicitAnd(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)

	if _, err := env.im.UpsertObject(ctx, types.ObjectInstance{
		ObjectTypeName: "Person",
		Properties:     map[string]any{"name": "Ada", "bio": "mathematician"},
	}); err != nil {
		t.Fatalf("UpsertObject: %v", err)
	}
	if _, err := env.im.UpsertObject(ctx, types.ObjectInstance{
		ObjectTypeName: "Person",
		Properties:     map[string]any{"name": "Bob", "bio": "engineer"},
	}); err != nil {
		t.Fatalf("UpsertObject: %v", err)
	}

	query := types.ComplexQuery{
		Components: []types.QueryComponent{
			{ObjectTypeName: "Person"},
			{ObjectTypeName: "Person", RelationalFilters: []types.RelationalFilter{
				{PropertyName: "name", Operator: types.OpEqual, Value: "Ada"},
			}},
		},
	}
	plan, err := planner.Plan(env.schema, query)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	result, err := env.exec.Execute(ctx, plan)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Objects) != 1 || result.Objects[0].Properties["name"] != "Ada" {
		t.Fatalf("Execute() = %+v, want the implicit AND to keep only Ada", result.Objects)
	}
}

func TestExecuteAndWithEmbeddingSearch(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)

	for _, p := range []struct{ name, bio string }{
		{"Ada", "graph enthusiast"},
		{"Bob", "graph enthusiast"},
		{"Cleo", "totally unrelated topic"},
	} {
		if _, err := env.im.UpsertObject(ctx, types.ObjectInstance{
			ObjectTypeName: "Person",
			Properties:     map[string]any{"name": p.name, "bio": p.bio},
		}); err != nil {
			t.Fatalf("UpsertObject(%s): %v", p.name, err)
		}
	}

	query := types.ComplexQuery{
		Root: &types.LogicalGroup{
			Operator: types.LogicalAnd,
			Children: []types.BooleanNode{
				&types.QueryComponent{
					ObjectTypeName: "Person",
					EmbeddingSearches: []types.EmbeddingSearchClause{
						{
							EmbeddingDefinitionName: "bio_embedding",
							Query:                   types.TextToEmbed{Text: "graph enthusiast"},
							TopK:                    10,
						},
					},
				},
				&types.NotClause{
					Child: &types.QueryComponent{
						ObjectTypeName: "Person",
						RelationalFilters: []types.RelationalFilter{
							{PropertyName: "name", Operator: types.OpEqual, Value: "Bob"},
						},
					},
				},
			},
		},
	}
	plan, err := planner.Plan(env.schema, query)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	result, err := env.exec.Execute(ctx, plan)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	names := make(map[string]bool)
	for _, o := range result.Objects {
		names[o.Properties["name"].(string)] = true
	}
	if names["Bob"] {
		t.Errorf("Bob should have been excluded by the NOT clause: %+v", result.Objects)
	}
	if !names["Ada"] {
		t.Errorf("Ada should be present: %+v", result.Objects)
	}
}
