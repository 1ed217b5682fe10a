package graphstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/grizabella-go/grizabella/pkg/types"
)

func testOTD(name string) types.ObjectTypeDefinition {
	return types.ObjectTypeDefinition{
		TypeName: name,
		Properties: []types.Property{
			{Name: "id", DataType: types.TypeUUID, IsPrimary: true},
		},
	}
}

func testRTD() types.RelationTypeDefinition {
	return types.RelationTypeDefinition{
		TypeName:        "knows",
		SourceTypeNames: []string{"Person"},
		TargetTypeNames: []string{"Person"},
	}
}

func openTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNodeCRUD(t *testing.T) {
	ctx := context.Background()
	a := openTestAdapter(t)
	otd := testOTD("Person")
	if err := a.CreateObjectType(ctx, otd); err != nil {
		t.Fatalf("CreateObjectType: %v", err)
	}

	id := uuid.New()
	oi := types.ObjectInstance{
		MemoryInstance: types.MemoryInstance{ID: id, UpsertDate: time.Now()},
		ObjectTypeName: "Person",
		Properties:     map[string]any{"name": "Ada"},
	}
	if err := a.UpsertNode(ctx, otd, oi); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}
	got, err := a.GetNode(ctx, otd, id)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got.Properties["name"] != "Ada" {
		t.Errorf("name = %v, want Ada", got.Properties["name"])
	}
	if err := a.DeleteNode(ctx, otd, id); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	if _, err := a.GetNode(ctx, otd, id); err == nil {
		t.Error("expected error getting deleted node")
	}
}

func TestUpsertEdgeTwiceLeavesSingleIndexEntry(t *testing.T) {
	ctx := context.Background()
	a := openTestAdapter(t)
	rtd := testRTD()
	if err := a.CreateRelationType(ctx, rtd); err != nil {
		t.Fatalf("CreateRelationType: %v", err)
	}

	alice, bob := uuid.New(), uuid.New()
	edge := types.RelationInstance{
		MemoryInstance:   types.MemoryInstance{ID: uuid.New(), UpsertDate: time.Now()},
		RelationTypeName: rtd.TypeName,
		SourceObjectID:   alice,
		TargetObjectID:   bob,
	}
	if err := a.UpsertEdge(ctx, rtd, edge); err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}
	if err := a.UpsertEdge(ctx, rtd, edge); err != nil {
		t.Fatalf("UpsertEdge (repeat): %v", err)
	}

	rels, err := a.GetRelationships(ctx, rtd, alice, types.DirectionOutgoing)
	if err != nil {
		t.Fatalf("GetRelationships: %v", err)
	}
	if len(rels) != 1 {
		t.Errorf("GetRelationships = %d edges, want 1 after repeated upsert", len(rels))
	}

	// Moving an endpoint must unlink the old target's index entry.
	edge.TargetObjectID = uuid.New()
	if err := a.UpsertEdge(ctx, rtd, edge); err != nil {
		t.Fatalf("UpsertEdge (moved target): %v", err)
	}
	stale, err := a.GetRelationships(ctx, rtd, bob, types.DirectionIncoming)
	if err != nil {
		t.Fatalf("GetRelationships: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("old target still has %d incoming edges, want 0", len(stale))
	}
}

func TestReadScopePinsSnapshot(t *testing.T) {
	ctx := context.Background()
	a := openTestAdapter(t)
	otd := testOTD("Person")
	if err := a.CreateObjectType(ctx, otd); err != nil {
		t.Fatalf("CreateObjectType: %v", err)
	}
	id := uuid.New()
	if err := a.UpsertNode(ctx, otd, types.ObjectInstance{
		MemoryInstance: types.MemoryInstance{ID: id, UpsertDate: time.Now()},
		ObjectTypeName: "Person",
	}); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}

	scoped, done := a.ReadScope(ctx)
	defer done()

	// A write landing after the scope opened is invisible inside it.
	late := uuid.New()
	if err := a.UpsertNode(ctx, otd, types.ObjectInstance{
		MemoryInstance: types.MemoryInstance{ID: late, UpsertDate: time.Now()},
		ObjectTypeName: "Person",
	}); err != nil {
		t.Fatalf("UpsertNode (late): %v", err)
	}

	if ok, err := a.NodeExists(scoped, otd, id); err != nil || !ok {
		t.Errorf("NodeExists(scoped, id) = %v, %v; want true", ok, err)
	}
	if ok, err := a.NodeExists(scoped, otd, late); err != nil || ok {
		t.Errorf("NodeExists(scoped, late) = %v, %v; want false inside the pinned snapshot", ok, err)
	}
	if ok, err := a.NodeExists(ctx, otd, late); err != nil || !ok {
		t.Errorf("NodeExists(ctx, late) = %v, %v; want true outside the scope", ok, err)
	}
}

func TestNeighborsAndFindPath(t *testing.T) {
	ctx := context.Background()
	a := openTestAdapter(t)
	rtd := testRTD()
	if err := a.CreateRelationType(ctx, rtd); err != nil {
		t.Fatalf("CreateRelationType: %v", err)
	}

	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	mkEdge := func(src, dst uuid.UUID) types.RelationInstance {
		return types.RelationInstance{
			MemoryInstance:   types.MemoryInstance{ID: uuid.New(), UpsertDate: time.Now()},
			RelationTypeName: rtd.TypeName,
			SourceObjectID:   src,
			TargetObjectID:   dst,
		}
	}
	if err := a.UpsertEdge(ctx, rtd, mkEdge(alice, bob)); err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}
	if err := a.UpsertEdge(ctx, rtd, mkEdge(bob, carol)); err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}

	neighbors, err := a.Neighbors(ctx, rtd, alice, types.DirectionOutgoing, 2)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(neighbors) != 2 {
		t.Errorf("Neighbors = %v, want 2 reachable nodes", neighbors)
	}

	path, err := a.FindPath(ctx, rtd, alice, carol, types.DirectionOutgoing, 5)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if len(path) != 3 || path[0] != alice || path[2] != carol {
		t.Errorf("FindPath = %v, want [alice, bob, carol]", path)
	}
}
