package schemamgr

import (
	"context"
	"testing"

	"github.com/grizabella-go/grizabella/internal/graphstore"
	"github.com/grizabella-go/grizabella/internal/relational"
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

	m, err := New(ctx, rel, vec, graph)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func personOTD() types.ObjectTypeDefinition {
	return types.ObjectTypeDefinition{
		TypeName: "Person",
		Properties: []types.Property{
			{Name: "id", DataType: types.TypeUUID, IsPrimary: true},
			{Name: "bio", DataType: types.TypeText},
		},
	}
}

func TestCreateObjectTypeThenRelationAndEmbedding(t *testing.T) {
	ctx := context.Background()
	m := openTestManager(t)

	if err := m.CreateObjectType(ctx, personOTD()); err != nil {
		t.Fatalf("CreateObjectType: %v", err)
	}

	rtd := types.RelationTypeDefinition{
		TypeName:        "knows",
		SourceTypeNames: []string{"Person"},
		TargetTypeNames: []string{"Person"},
	}
	if err := m.CreateRelationType(ctx, rtd); err != nil {
		t.Fatalf("CreateRelationType: %v", err)
	}

	ed := types.EmbeddingDefinition{
		Name:               "bio_embedding",
		ObjectTypeName:     "Person",
		SourcePropertyName: "bio",
		Dimensions:         8,
		Metric:             types.MetricCosine,
	}
	if err := m.CreateEmbeddingDefinition(ctx, ed); err != nil {
		t.Fatalf("CreateEmbeddingDefinition: %v", err)
	}

	eds, err := m.EmbeddingDefinitionsForType("Person")
	if err != nil {
		t.Fatalf("EmbeddingDefinitionsForType: %v", err)
	}
	if len(eds) != 1 || eds[0].Name != "bio_embedding" {
		t.Errorf("EmbeddingDefinitionsForType = %+v, want one bio_embedding entry", eds)
	}
}

func TestCreateRelationTypeRejectsUndefinedObjectType(t *testing.T) {
	ctx := context.Background()
	m := openTestManager(t)

	rtd := types.RelationTypeDefinition{
		TypeName:        "knows",
		SourceTypeNames: []string{"Person"},
		TargetTypeNames: []string{"Person"},
	}
	if err := m.CreateRelationType(ctx, rtd); err == nil {
		t.Fatal("expected error referencing an undefined object type")
	}
}

func TestCreateEmbeddingDefinitionRejectsNonTextSource(t *testing.T) {
	ctx := context.Background()
	m := openTestManager(t)
	if err := m.CreateObjectType(ctx, types.ObjectTypeDefinition{
		TypeName: "Reading",
		Properties: []types.Property{
			{Name: "value", DataType: types.TypeFloat},
		},
	}); err != nil {
		t.Fatalf("CreateObjectType: %v", err)
	}

	ed := types.EmbeddingDefinition{
		Name:               "value_embedding",
		ObjectTypeName:     "Reading",
		SourcePropertyName: "value",
		Dimensions:         8,
	}
	if err := m.CreateEmbeddingDefinition(ctx, ed); err == nil {
		t.Fatal("expected error for a non-TEXT source property")
	}
}

func TestCreateEmbeddingDefinitionRejectsUndefinedProperty(t *testing.T) {
	ctx := context.Background()
	m := openTestManager(t)
	if err := m.CreateObjectType(ctx, personOTD()); err != nil {
		t.Fatalf("CreateObjectType: %v", err)
	}

	ed := types.EmbeddingDefinition{
		Name:               "ghost_embedding",
		ObjectTypeName:     "Person",
		SourcePropertyName: "does_not_exist",
		Dimensions:         8,
		Metric:             types.MetricCosine,
	}
	if err := m.CreateEmbeddingDefinition(ctx, ed); err == nil {
		t.Fatal("expected error referencing an undefined property")
	}
}
