package instancemgr

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/grizabella-go/grizabella/internal/graphstore"
	"github.com/grizabella-go/grizabella/internal/relational"
	"github.com/grizabella-go/grizabella/internal/schemamgr"
	"github.com/grizabella-go/grizabella/internal/vectorstore"
	"github.com/grizabella-go/grizabella/pkg/types"
)

func openTestManager(t *testing.T) *Manager {
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
			{Name: "bio", DataType: types.TypeText, IsNullable: true},
		},
	}); err != nil {
		t.Fatalf("CreateObjectType: %v", err)
	}
	if err := schema.CreateRelationType(ctx, types.RelationTypeDefinition{
		TypeName:        "knows",
		SourceTypeNames: []string{"Person"},
		TargetTypeNames: []string{"Person"},
		Properties: []types.Property{
			{Name: "since", DataType: types.TypeText, IsNullable: true},
		},
	}); err != nil {
		t.Fatalf("CreateRelationType: %v", err)
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
	return New(schema, rel, vec, graph, models)
}

func TestUpsertObjectComputesEmbeddingAndAllowsDelete(t *testing.T) {
	ctx := context.Background()
	m := openTestManager(t)

	oi := types.ObjectInstance{
		ObjectTypeName: "Person",
		Properties:     map[string]any{"bio": "loves graphs"},
	}
	saved, err := m.UpsertObject(ctx, oi)
	if err != nil {
		t.Fatalf("UpsertObject: %v", err)
	}
	if saved.ID == uuid.Nil {
		t.Fatal("expected UpsertObject to assign an id")
	}
	if saved.UpsertDate.IsZero() {
		t.Fatal("expected UpsertObject to stamp UpsertDate")
	}

	got, err := m.GetObject(ctx, "Person", saved.ID)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if got.Properties["bio"] != "loves graphs" {
		t.Errorf("bio = %v, want %q", got.Properties["bio"], "loves graphs")
	}

	if err := m.DeleteObject(ctx, "Person", saved.ID); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if _, err := m.GetObject(ctx, "Person", saved.ID); err == nil {
		t.Fatal("expected error getting deleted object")
	}
}

func TestUpsertRelationWritesPropertiesAndUpdateMutatesInPlace(t *testing.T) {
	ctx := context.Background()
	m := openTestManager(t)

	alice, err := m.UpsertObject(ctx, types.ObjectInstance{
		ObjectTypeName: "Person",
		Properties:     map[string]any{"bio": "alice"},
	})
	if err != nil {
		t.Fatalf("UpsertObject(alice): %v", err)
	}
	bob, err := m.UpsertObject(ctx, types.ObjectInstance{
		ObjectTypeName: "Person",
		Properties:     map[string]any{"bio": "bob"},
	})
	if err != nil {
		t.Fatalf("UpsertObject(bob): %v", err)
	}

	ri, err := m.UpsertRelation(ctx, types.RelationInstance{
		RelationTypeName: "knows",
		SourceObjectID:   alice.ID,
		TargetObjectID:   bob.ID,
		Properties:       map[string]any{"since": "2020"},
	})
	if err != nil {
		t.Fatalf("UpsertRelation: %v", err)
	}

	ri.Properties["since"] = "2021"
	updated, err := m.UpdateRelation(ctx, ri)
	if err != nil {
		t.Fatalf("UpdateRelation: %v", err)
	}
	if updated.ID != ri.ID {
		t.Errorf("UpdateRelation changed id from %s to %s", ri.ID, updated.ID)
	}

	if err := m.DeleteRelation(ctx, "knows", ri.ID); err != nil {
		t.Fatalf("DeleteRelation: %v", err)
	}
}

func TestUpsertObjectStoresTruncatedPreview(t *testing.T) {
	ctx := context.Background()
	m := openTestManager(t)

	long := strings.Repeat("x", 250)
	saved, err := m.UpsertObject(ctx, types.ObjectInstance{
		ObjectTypeName: "Person",
		Properties:     map[string]any{"bio": long},
	})
	if err != nil {
		t.Fatalf("UpsertObject: %v", err)
	}

	ed, err := m.schema.EmbeddingDefinition("bio_embedding")
	if err != nil {
		t.Fatalf("EmbeddingDefinition: %v", err)
	}
	model, err := m.models.Get("stub")
	if err != nil {
		t.Fatalf("models.Get: %v", err)
	}
	vec, err := model.Embed(ctx, long)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	matches, err := m.vector.QuerySimilar(ctx, ed, vec, vectorstore.SearchParams{TopK: 1})
	if err != nil {
		t.Fatalf("QuerySimilar: %v", err)
	}
	if len(matches) != 1 || matches[0].ObjectInstanceID != saved.ID {
		t.Fatalf("QuerySimilar = %+v, want the upserted instance", matches)
	}
	if len(matches[0].Preview) != 200 {
		t.Errorf("preview length = %d, want exactly 200", len(matches[0].Preview))
	}
}

func TestUpsertObjectWithBlankSourceRemovesEmbedding(t *testing.T) {
	ctx := context.Background()
	m := openTestManager(t)

	saved, err := m.UpsertObject(ctx, types.ObjectInstance{
		ObjectTypeName: "Person",
		Properties:     map[string]any{"bio": "has a bio"},
	})
	if err != nil {
		t.Fatalf("UpsertObject: %v", err)
	}

	// Blanking the source property must delete the stale vector and write
	// no replacement.
	saved.Properties["bio"] = "   "
	if _, err := m.UpsertObject(ctx, saved); err != nil {
		t.Fatalf("UpsertObject (blank bio): %v", err)
	}

	ed, err := m.schema.EmbeddingDefinition("bio_embedding")
	if err != nil {
		t.Fatalf("EmbeddingDefinition: %v", err)
	}
	model, err := m.models.Get("stub")
	if err != nil {
		t.Fatalf("models.Get: %v", err)
	}
	vec, err := model.Embed(ctx, "has a bio")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	matches, err := m.vector.QuerySimilar(ctx, ed, vec, vectorstore.SearchParams{TopK: 10})
	if err != nil {
		t.Fatalf("QuerySimilar: %v", err)
	}
	for _, match := range matches {
		if match.ObjectInstanceID == saved.ID {
			t.Fatal("expected the blanked instance's embedding to be gone")
		}
	}
}

func TestUpsertRelationRejectsMissingEndpoint(t *testing.T) {
	ctx := context.Background()
	m := openTestManager(t)

	alice, err := m.UpsertObject(ctx, types.ObjectInstance{
		ObjectTypeName: "Person",
		Properties:     map[string]any{"bio": "alice"},
	})
	if err != nil {
		t.Fatalf("UpsertObject: %v", err)
	}

	_, err = m.UpsertRelation(ctx, types.RelationInstance{
		RelationTypeName: "knows",
		SourceObjectID:   alice.ID,
		TargetObjectID:   uuid.New(),
	})
	if err == nil {
		t.Fatal("expected error for a relation to a nonexistent target")
	}
}

func TestFindObjectsSimilarToInstanceExcludesSource(t *testing.T) {
	ctx := context.Background()
	m := openTestManager(t)

	source, err := m.UpsertObject(ctx, types.ObjectInstance{
		ObjectTypeName: "Person",
		Properties:     map[string]any{"bio": "graph database enthusiast"},
	})
	if err != nil {
		t.Fatalf("UpsertObject(source): %v", err)
	}
	other, err := m.UpsertObject(ctx, types.ObjectInstance{
		ObjectTypeName: "Person",
		Properties:     map[string]any{"bio": "graph database enthusiast"},
	})
	if err != nil {
		t.Fatalf("UpsertObject(other): %v", err)
	}

	matches, err := m.FindObjectsSimilarToInstance(ctx, "bio_embedding", source.ID, 5)
	if err != nil {
		t.Fatalf("FindObjectsSimilarToInstance: %v", err)
	}
	for _, match := range matches {
		if match.ID == source.ID {
			t.Fatal("expected source instance to be excluded from its own similarity results")
		}
	}
	found := false
	for _, match := range matches {
		if match.ID == other.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("expected other instance %s among similarity matches %+v", other.ID, matches)
	}
}
