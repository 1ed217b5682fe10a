package grizabella

import (
	"context"
	"testing"
)

func TestOpenCreatesSubstratesAndRoundTripsAnObject(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := Open(ctx, dir, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close(ctx)

	otd := ObjectTypeDefinition{
		TypeName: "Person",
		Properties: []Property{
			{Name: "id", DataType: TypeUUID, IsPrimary: true},
			{Name: "name", DataType: TypeText},
		},
	}
	if err := db.CreateObjectType(ctx, otd); err != nil {
		t.Fatalf("CreateObjectType: %v", err)
	}

	saved, err := db.UpsertObject(ctx, ObjectInstance{
		ObjectTypeName: "Person",
		Properties:     map[string]any{"name": "Ada"},
	})
	if err != nil {
		t.Fatalf("UpsertObject: %v", err)
	}

	got, err := db.GetObject(ctx, "Person", saved.ID)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if got.Properties["name"] != "Ada" {
		t.Errorf("name = %v, want Ada", got.Properties["name"])
	}

	query := ComplexQuery{
		Root: &QueryComponent{
			ObjectTypeName: "Person",
			RelationalFilters: []RelationalFilter{
				{PropertyName: "name", Operator: OpEqual, Value: "Ada"},
			},
		},
	}
	result, err := db.ExecuteQuery(ctx, query)
	if err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}
	if len(result.Objects) != 1 || result.Objects[0].ID != saved.ID {
		t.Fatalf("ExecuteQuery() = %+v, want single match on %s", result.Objects, saved.ID)
	}
}

func TestAuthorsBooksAndRelations(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, t.TempDir(), true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close(ctx)

	if err := db.CreateObjectType(ctx, ObjectTypeDefinition{
		TypeName: "Author",
		Properties: []Property{
			{Name: "name", DataType: TypeText},
			{Name: "birth_year", DataType: TypeInteger, IsNullable: true},
		},
	}); err != nil {
		t.Fatalf("CreateObjectType(Author): %v", err)
	}
	if err := db.CreateObjectType(ctx, ObjectTypeDefinition{
		TypeName: "Book",
		Properties: []Property{
			{Name: "title", DataType: TypeText, IsUnique: true, IsIndexed: true},
			{Name: "isbn", DataType: TypeText, IsUnique: true, IsNullable: true},
		},
	}); err != nil {
		t.Fatalf("CreateObjectType(Book): %v", err)
	}
	if err := db.CreateRelationType(ctx, RelationTypeDefinition{
		TypeName:        "WRITTEN_BY",
		SourceTypeNames: []string{"Book"},
		TargetTypeNames: []string{"Author"},
	}); err != nil {
		t.Fatalf("CreateRelationType: %v", err)
	}

	orwell, err := db.UpsertObject(ctx, ObjectInstance{
		ObjectTypeName: "Author",
		Properties:     map[string]any{"name": "George Orwell", "birth_year": int64(1903)},
	})
	if err != nil {
		t.Fatalf("UpsertObject(Orwell): %v", err)
	}
	huxley, err := db.UpsertObject(ctx, ObjectInstance{
		ObjectTypeName: "Author",
		Properties:     map[string]any{"name": "Aldous Huxley"},
	})
	if err != nil {
		t.Fatalf("UpsertObject(Huxley): %v", err)
	}

	bookAuthors := map[string]ObjectInstance{
		"1984":            orwell,
		"Animal Farm":     orwell,
		"Brave New World": huxley,
	}
	books := make(map[string]ObjectInstance, len(bookAuthors))
	for title, author := range bookAuthors {
		book, err := db.UpsertObject(ctx, ObjectInstance{
			ObjectTypeName: "Book",
			Properties:     map[string]any{"title": title},
		})
		if err != nil {
			t.Fatalf("UpsertObject(%s): %v", title, err)
		}
		books[title] = book
		if _, err := db.UpsertRelation(ctx, RelationInstance{
			RelationTypeName: "WRITTEN_BY",
			SourceObjectID:   book.ID,
			TargetObjectID:   author.ID,
		}); err != nil {
			t.Fatalf("UpsertRelation(%s): %v", title, err)
		}
	}

	all, err := db.FindObjects(ctx, "Book", nil, 0)
	if err != nil {
		t.Fatalf("FindObjects: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("FindObjects(Book) = %d books, want 3", len(all))
	}

	incoming, err := db.GetIncomingRelations(ctx, orwell.ID, "WRITTEN_BY")
	if err != nil {
		t.Fatalf("GetIncomingRelations: %v", err)
	}
	if len(incoming) != 2 {
		t.Fatalf("GetIncomingRelations(Orwell) = %d edges, want 2", len(incoming))
	}
	titles := make(map[string]bool)
	for _, rel := range incoming {
		book, err := db.GetObject(ctx, "Book", rel.SourceObjectID)
		if err != nil {
			t.Fatalf("GetObject(book): %v", err)
		}
		titles[book.Properties["title"].(string)] = true
	}
	if !titles["1984"] || !titles["Animal Farm"] {
		t.Errorf("incoming WRITTEN_BY navigated to %v, want 1984 and Animal Farm", titles)
	}

	// Deleting an endpoint detaches its edges.
	if err := db.DeleteObject(ctx, "Author", orwell.ID); err != nil {
		t.Fatalf("DeleteObject(Orwell): %v", err)
	}
	rels, err := db.GetRelation(ctx, "WRITTEN_BY", books["1984"].ID, orwell.ID)
	if err != nil {
		t.Fatalf("GetRelation after delete: %v", err)
	}
	if len(rels) != 0 {
		t.Errorf("GetRelation after deleting Orwell = %d edges, want 0", len(rels))
	}
	if _, err := db.GetObject(ctx, "Author", orwell.ID); err == nil {
		t.Error("expected GetObject(Orwell) to fail after delete")
	}
}

func TestOpenSharedReusesSingleInstanceAcrossCallers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	h1, err := OpenShared(ctx, dir, true)
	if err != nil {
		t.Fatalf("OpenShared: %v", err)
	}
	h2, err := OpenShared(ctx, dir, true)
	if err != nil {
		t.Fatalf("OpenShared (second caller): %v", err)
	}
	if h1.DB != h2.DB {
		t.Error("expected both OpenShared callers to receive the same underlying *DB")
	}
	if err := h1.Release(ctx); err != nil {
		t.Fatalf("Release(h1): %v", err)
	}
	if err := h2.Release(ctx); err != nil {
		t.Fatalf("Release(h2): %v", err)
	}
}
