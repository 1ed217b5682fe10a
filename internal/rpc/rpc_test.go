package rpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/grizabella-go/grizabella/pkg/grizabella"
)

func openTestDB(t *testing.T) *grizabella.DB {
	t.Helper()
	ctx := context.Background()
	db, err := grizabella.Open(ctx, t.TempDir(), true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close(ctx) })
	return db
}

func TestDispatchUnknownMethod(t *testing.T) {
	d := NewDispatcher(openTestDB(t))
	_, rpcErr := d.Dispatch(context.Background(), "no_such_method", nil)
	if rpcErr == nil {
		t.Fatal("expected an error for an unknown method")
	}
}

func TestDispatchCreateObjectTypeThenUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(openTestDB(t))

	otdJSON, _ := json.Marshal(grizabella.ObjectTypeDefinition{
		TypeName: "Person",
		Properties: []grizabella.Property{
			{Name: "id", DataType: grizabella.TypeUUID, IsPrimary: true},
			{Name: "name", DataType: grizabella.TypeText},
		},
	})
	if _, rpcErr := d.Dispatch(ctx, "create_object_type", otdJSON); rpcErr != nil {
		t.Fatalf("create_object_type: %+v", rpcErr)
	}

	upsertJSON, _ := json.Marshal(grizabella.ObjectInstance{
		ObjectTypeName: "Person",
		Properties:     map[string]any{"name": "Ada"},
	})
	out, rpcErr := d.Dispatch(ctx, "upsert_object", upsertJSON)
	if rpcErr != nil {
		t.Fatalf("upsert_object: %+v", rpcErr)
	}

	var saved grizabella.ObjectInstance
	if err := json.Unmarshal(out, &saved); err != nil {
		t.Fatalf("decode upsert result: %v", err)
	}

	getJSON, _ := json.Marshal(objectRef{TypeName: "Person", ID: saved.ID})
	out, rpcErr = d.Dispatch(ctx, "get_object", getJSON)
	if rpcErr != nil {
		t.Fatalf("get_object: %+v", rpcErr)
	}
	var got grizabella.ObjectInstance
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("decode get result: %v", err)
	}
	if got.Properties["name"] != "Ada" {
		t.Errorf("name = %v, want Ada", got.Properties["name"])
	}
}

func TestDispatchFindSimilarRejectsDisabledHydration(t *testing.T) {
	d := NewDispatcher(openTestDB(t))

	args := []byte(`{"embedding_definition_name":"bio_embedding","query_text":"x","limit":3,"retrieve_full_objects":false}`)
	_, rpcErr := d.Dispatch(context.Background(), "find_similar", args)
	if rpcErr == nil {
		t.Fatal("expected an error for retrieve_full_objects=false")
	}
	if rpcErr.Category != string(grizabella.CategoryValidation) {
		t.Errorf("Category = %q, want %q", rpcErr.Category, grizabella.CategoryValidation)
	}
}

func TestDispatchSchemaErrorCarriesCategory(t *testing.T) {
	d := NewDispatcher(openTestDB(t))

	badRefJSON := []byte(`{"type_name":"Missing","id":"00000000-0000-0000-0000-000000000000"}`)
	_, rpcErr := d.Dispatch(context.Background(), "get_object", badRefJSON)
	if rpcErr == nil {
		t.Fatal("expected an error for an unregistered object type")
	}
	if rpcErr.Category == "" {
		t.Error("expected a non-empty error category")
	}
}
