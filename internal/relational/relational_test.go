package relational

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/grizabella-go/grizabella/pkg/types"
)

func testOTD() types.ObjectTypeDefinition {
	return types.ObjectTypeDefinition{
		TypeName: "Person",
		Properties: []types.Property{
			{Name: "id", DataType: types.TypeUUID, IsPrimary: true},
			{Name: "name", DataType: types.TypeText, IsIndexed: true},
			{Name: "age", DataType: types.TypeInteger, IsNullable: true},
		},
	}
}

func openTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := Open(context.Background(), filepath.Join(t.TempDir(), "sqlite.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestCreateObjectTypeAndUpsert(t *testing.T) {
	ctx := context.Background()
	a := openTestAdapter(t)
	otd := testOTD()

	if err := a.CreateObjectType(ctx, otd); err != nil {
		t.Fatalf("CreateObjectType: %v", err)
	}

	id := uuid.New()
	oi := types.ObjectInstance{
		MemoryInstance: types.MemoryInstance{ID: id, UpsertDate: time.Now()},
		ObjectTypeName: otd.TypeName,
		Properties:     map[string]any{"name": "Ada", "age": int64(30)},
	}
	if err := a.UpsertObjectInstance(ctx, otd, oi); err != nil {
		t.Fatalf("UpsertObjectInstance: %v", err)
	}

	got, err := a.GetObjectInstance(ctx, otd, id)
	if err != nil {
		t.Fatalf("GetObjectInstance: %v", err)
	}
	if got.Properties["name"] != "Ada" {
		t.Errorf("name = %v, want Ada", got.Properties["name"])
	}
}

func TestFindObjectIDsByProperties(t *testing.T) {
	ctx := context.Background()
	a := openTestAdapter(t)
	otd := testOTD()
	if err := a.CreateObjectType(ctx, otd); err != nil {
		t.Fatalf("CreateObjectType: %v", err)
	}

	ids := make([]uuid.UUID, 3)
	names := []string{"Ada", "Grace", "Ada"}
	for i, name := range names {
		ids[i] = uuid.New()
		oi := types.ObjectInstance{
			MemoryInstance: types.MemoryInstance{ID: ids[i], UpsertDate: time.Now()},
			ObjectTypeName: otd.TypeName,
			Properties:     map[string]any{"name": name, "age": int64(20 + i)},
		}
		if err := a.UpsertObjectInstance(ctx, otd, oi); err != nil {
			t.Fatalf("UpsertObjectInstance: %v", err)
		}
	}

	found, err := a.FindObjectIDsByProperties(ctx, otd, []types.RelationalFilter{
		{PropertyName: "name", Operator: types.OpEqual, Value: "Ada"},
	})
	if err != nil {
		t.Fatalf("FindObjectIDsByProperties: %v", err)
	}
	if len(found) != 2 {
		t.Errorf("found %d ids, want 2", len(found))
	}
}

func TestDeleteObjectInstance(t *testing.T) {
	ctx := context.Background()
	a := openTestAdapter(t)
	otd := testOTD()
	if err := a.CreateObjectType(ctx, otd); err != nil {
		t.Fatalf("CreateObjectType: %v", err)
	}
	id := uuid.New()
	oi := types.ObjectInstance{
		MemoryInstance: types.MemoryInstance{ID: id, UpsertDate: time.Now()},
		ObjectTypeName: otd.TypeName,
		Properties:     map[string]any{"name": "Ada"},
	}
	if err := a.UpsertObjectInstance(ctx, otd, oi); err != nil {
		t.Fatalf("UpsertObjectInstance: %v", err)
	}
	if err := a.DeleteObjectInstance(ctx, otd, id); err != nil {
		t.Fatalf("DeleteObjectInstance: %v", err)
	}
	if _, err := a.GetObjectInstance(ctx, otd, id); err == nil {
		t.Error("expected error getting deleted instance")
	}
}
