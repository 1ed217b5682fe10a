// Package relational implements the Relational Adapter: an embedded
// modernc.org/sqlite database holding one metadata row per OTD/RTD/ED and
// one instance table per OTD, with dynamic filter compilation for property
// queries.
package relational

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/grizabella-go/grizabella/pkg/types"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validIdent reports whether name is safe to interpolate directly into DDL
// as a table or column identifier. database/sql has no placeholder syntax
// for identifiers, so every identifier is validated here before use.
func validIdent(name string) bool {
	return identRe.MatchString(name)
}

// Adapter wraps a single *sql.DB for one logical database's relational
// substrate.
type Adapter struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite file at path and ensures
// the metadata tables exist.
func Open(ctx context.Context, path string) (*Adapter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, types.DatabaseError("relational.open", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers per file handle
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, types.DatabaseError("relational.open", err)
	}
	return &Adapter{db: db}, nil
}

// FromDB wraps an already-open *sql.DB, for use with a pooled connection.
func FromDB(db *sql.DB) *Adapter { return &Adapter{db: db} }

// Close closes the underlying database handle.
func (a *Adapter) Close() error { return a.db.Close() }

const ddlMetadata = `
CREATE TABLE IF NOT EXISTS object_types (
	type_name TEXT PRIMARY KEY,
	definition TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS relation_types (
	type_name TEXT PRIMARY KEY,
	definition TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS embedding_definitions (
	name TEXT PRIMARY KEY,
	definition TEXT NOT NULL
);
`

func migrate(ctx context.Context, db *sql.DB) error {
	// WAL mode lets the reader pool's connections query concurrently with
	// the single writer connection instead of blocking on its transactions.
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, ddlMetadata)
	return err
}

// sqlColumnType maps a PropertyDataType to its SQLite column type affinity.
func sqlColumnType(t types.PropertyDataType) string {
	switch t {
	case types.TypeInteger, types.TypeBoolean:
		return "INTEGER"
	case types.TypeFloat:
		return "REAL"
	case types.TypeBlob:
		return "BLOB"
	default: // TEXT, DATETIME, JSON, UUID all store as TEXT
		return "TEXT"
	}
}

func instanceTableName(otdName string) string { return "obj_" + otdName }

// CreateObjectType persists otd's definition and creates its instance
// table.
func (a *Adapter) CreateObjectType(ctx context.Context, otd types.ObjectTypeDefinition) error {
	if !validIdent(otd.TypeName) {
		return types.SchemaError("create_object_type", fmt.Errorf("invalid type name %q", otd.TypeName))
	}
	def, err := json.Marshal(otd)
	if err != nil {
		return types.SchemaError("create_object_type", err)
	}

	var cols []string
	for _, p := range otd.Properties {
		if !validIdent(p.Name) {
			return types.SchemaError("create_object_type", fmt.Errorf("invalid property name %q", p.Name))
		}
		if p.Name == "id" {
			// Maps onto the implicit primary-key column declared below.
			continue
		}
		col := fmt.Sprintf("%q %s", p.Name, sqlColumnType(p.DataType))
		if !p.IsNullable {
			col += " NOT NULL"
		}
		if p.IsUnique {
			col += " UNIQUE"
		}
		cols = append(cols, col)
	}
	cols = append(cols, `"_upsert_date" TEXT NOT NULL`, `"_weight" REAL`)

	table := instanceTableName(otd.TypeName)
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (%s, PRIMARY KEY ("id"))`, table,
		strings.Join(append([]string{`"id" TEXT`}, cols...), ", "))

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return types.DatabaseError("create_object_type", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO object_types(type_name, definition) VALUES (?, ?)
		 ON CONFLICT(type_name) DO UPDATE SET definition = excluded.definition`,
		otd.TypeName, string(def)); err != nil {
		return types.DatabaseError("create_object_type", err)
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return types.DatabaseError("create_object_type", err)
	}
	for _, p := range otd.Properties {
		if p.IsIndexed && p.Name != "id" {
			idxName := fmt.Sprintf("idx_%s_%s", otd.TypeName, p.Name)
			idxDDL := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (%q)`, idxName, table, p.Name)
			if _, err := tx.ExecContext(ctx, idxDDL); err != nil {
				return types.DatabaseError("create_object_type", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return types.DatabaseError("create_object_type", err)
	}
	return nil
}

// CreateRelationType persists rtd's definition. When rtd declares its own
// properties, an edge table is also created to hold them (edges with no
// properties live only in the Graph Adapter).
func (a *Adapter) CreateRelationType(ctx context.Context, rtd types.RelationTypeDefinition) error {
	if !validIdent(rtd.TypeName) {
		return types.SchemaError("create_relation_type", fmt.Errorf("invalid type name %q", rtd.TypeName))
	}
	def, err := json.Marshal(rtd)
	if err != nil {
		return types.SchemaError("create_relation_type", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return types.DatabaseError("create_relation_type", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO relation_types(type_name, definition) VALUES (?, ?)
		 ON CONFLICT(type_name) DO UPDATE SET definition = excluded.definition`,
		rtd.TypeName, string(def)); err != nil {
		return types.DatabaseError("create_relation_type", err)
	}

	if len(rtd.Properties) > 0 {
		var cols []string
		for _, p := range rtd.Properties {
			if !validIdent(p.Name) {
				return types.SchemaError("create_relation_type", fmt.Errorf("invalid property name %q", p.Name))
			}
			if p.Name == "id" {
				continue
			}
			col := fmt.Sprintf("%q %s", p.Name, sqlColumnType(p.DataType))
			cols = append(cols, col)
		}
		table := relationTableName(rtd.TypeName)
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
			"id" TEXT PRIMARY KEY,
			"source_object_id" TEXT NOT NULL,
			"target_object_id" TEXT NOT NULL,
			"_upsert_date" TEXT NOT NULL,
			"_weight" REAL,
			%s
		)`, table, strings.Join(cols, ", "))
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return types.DatabaseError("create_relation_type", err)
		}
	}
	return tx.Commit()
}

func relationTableName(rtdName string) string { return "rel_" + rtdName }

// CreateEmbeddingDefinition persists ed's metadata (the Vector Adapter owns
// the vector table itself).
func (a *Adapter) CreateEmbeddingDefinition(ctx context.Context, ed types.EmbeddingDefinition) error {
	def, err := json.Marshal(ed)
	if err != nil {
		return types.SchemaError("create_embedding_definition", err)
	}
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO embedding_definitions(name, definition) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET definition = excluded.definition`,
		ed.Name, string(def))
	if err != nil {
		return types.DatabaseError("create_embedding_definition", err)
	}
	return nil
}

// DropObjectType drops otd's instance table and deletes its metadata row.
// Used both by schema delete and by the Schema Manager's compensating
// rollback when a later projection of the same Create fails.
func (a *Adapter) DropObjectType(ctx context.Context, typeName string) error {
	if !validIdent(typeName) {
		return types.SchemaError("drop_object_type", fmt.Errorf("invalid type name %q", typeName))
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return types.DatabaseError("drop_object_type", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, instanceTableName(typeName))); err != nil {
		return types.DatabaseError("drop_object_type", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM object_types WHERE type_name = ?`, typeName); err != nil {
		return types.DatabaseError("drop_object_type", err)
	}
	if err := tx.Commit(); err != nil {
		return types.DatabaseError("drop_object_type", err)
	}
	return nil
}

// DropRelationType drops rtd's edge table (if any) and deletes its
// metadata row.
func (a *Adapter) DropRelationType(ctx context.Context, typeName string) error {
	if !validIdent(typeName) {
		return types.SchemaError("drop_relation_type", fmt.Errorf("invalid type name %q", typeName))
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return types.DatabaseError("drop_relation_type", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, relationTableName(typeName))); err != nil {
		return types.DatabaseError("drop_relation_type", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM relation_types WHERE type_name = ?`, typeName); err != nil {
		return types.DatabaseError("drop_relation_type", err)
	}
	if err := tx.Commit(); err != nil {
		return types.DatabaseError("drop_relation_type", err)
	}
	return nil
}

// DropEmbeddingDefinition deletes ed's metadata row (the vector table
// itself is the Vector Adapter's to drop).
func (a *Adapter) DropEmbeddingDefinition(ctx context.Context, name string) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM embedding_definitions WHERE name = ?`, name); err != nil {
		return types.DatabaseError("drop_embedding_definition", err)
	}
	return nil
}

// GetObjectType loads a previously created OTD's definition by name.
func (a *Adapter) GetObjectType(ctx context.Context, typeName string) (*types.ObjectTypeDefinition, error) {
	var raw string
	err := a.db.QueryRowContext(ctx, `SELECT definition FROM object_types WHERE type_name = ?`, typeName).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, types.SchemaError("get_object_type", fmt.Errorf("object type %q not found", typeName))
	}
	if err != nil {
		return nil, types.DatabaseError("get_object_type", err)
	}
	var otd types.ObjectTypeDefinition
	if err := json.Unmarshal([]byte(raw), &otd); err != nil {
		return nil, types.DatabaseError("get_object_type", err)
	}
	return &otd, nil
}

// ListObjectTypes returns every registered OTD.
func (a *Adapter) ListObjectTypes(ctx context.Context) ([]types.ObjectTypeDefinition, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT definition FROM object_types ORDER BY type_name`)
	if err != nil {
		return nil, types.DatabaseError("list_object_types", err)
	}
	defer rows.Close()

	var out []types.ObjectTypeDefinition
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, types.DatabaseError("list_object_types", err)
		}
		var otd types.ObjectTypeDefinition
		if err := json.Unmarshal([]byte(raw), &otd); err != nil {
			return nil, types.DatabaseError("list_object_types", err)
		}
		out = append(out, otd)
	}
	return out, rows.Err()
}

// GetRelationType loads a previously created RTD's definition by name.
func (a *Adapter) GetRelationType(ctx context.Context, typeName string) (*types.RelationTypeDefinition, error) {
	var raw string
	err := a.db.QueryRowContext(ctx, `SELECT definition FROM relation_types WHERE type_name = ?`, typeName).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, types.SchemaError("get_relation_type", fmt.Errorf("relation type %q not found", typeName))
	}
	if err != nil {
		return nil, types.DatabaseError("get_relation_type", err)
	}
	var rtd types.RelationTypeDefinition
	if err := json.Unmarshal([]byte(raw), &rtd); err != nil {
		return nil, types.DatabaseError("get_relation_type", err)
	}
	return &rtd, nil
}

// ListRelationTypes returns every registered RTD.
func (a *Adapter) ListRelationTypes(ctx context.Context) ([]types.RelationTypeDefinition, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT definition FROM relation_types ORDER BY type_name`)
	if err != nil {
		return nil, types.DatabaseError("list_relation_types", err)
	}
	defer rows.Close()

	var out []types.RelationTypeDefinition
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, types.DatabaseError("list_relation_types", err)
		}
		var rtd types.RelationTypeDefinition
		if err := json.Unmarshal([]byte(raw), &rtd); err != nil {
			return nil, types.DatabaseError("list_relation_types", err)
		}
		out = append(out, rtd)
	}
	return out, rows.Err()
}

// GetEmbeddingDefinition loads a previously created ED's definition by name.
func (a *Adapter) GetEmbeddingDefinition(ctx context.Context, name string) (*types.EmbeddingDefinition, error) {
	var raw string
	err := a.db.QueryRowContext(ctx, `SELECT definition FROM embedding_definitions WHERE name = ?`, name).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, types.SchemaError("get_embedding_definition", fmt.Errorf("embedding definition %q not found", name))
	}
	if err != nil {
		return nil, types.DatabaseError("get_embedding_definition", err)
	}
	var ed types.EmbeddingDefinition
	if err := json.Unmarshal([]byte(raw), &ed); err != nil {
		return nil, types.DatabaseError("get_embedding_definition", err)
	}
	return &ed, nil
}

// ListEmbeddingDefinitions returns every registered ED.
func (a *Adapter) ListEmbeddingDefinitions(ctx context.Context) ([]types.EmbeddingDefinition, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT definition FROM embedding_definitions ORDER BY name`)
	if err != nil {
		return nil, types.DatabaseError("list_embedding_definitions", err)
	}
	defer rows.Close()

	var out []types.EmbeddingDefinition
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, types.DatabaseError("list_embedding_definitions", err)
		}
		var ed types.EmbeddingDefinition
		if err := json.Unmarshal([]byte(raw), &ed); err != nil {
			return nil, types.DatabaseError("list_embedding_definitions", err)
		}
		out = append(out, ed)
	}
	return out, rows.Err()
}

// UpsertObjectInstance writes oi into its OTD's instance table, inserting
// or overwriting by id.
func (a *Adapter) UpsertObjectInstance(ctx context.Context, otd types.ObjectTypeDefinition, oi types.ObjectInstance) error {
	table := instanceTableName(otd.TypeName)

	cols := []string{`"id"`}
	placeholders := []string{"?"}
	args := []any{oi.ID.String()}

	for _, p := range otd.Properties {
		if p.Name == "id" {
			continue
		}
		cols = append(cols, fmt.Sprintf("%q", p.Name))
		placeholders = append(placeholders, "?")
		args = append(args, encodeValue(p.DataType, oi.Properties[p.Name]))
	}
	cols = append(cols, `"_upsert_date"`, `"_weight"`)
	placeholders = append(placeholders, "?", "?")
	args = append(args, oi.UpsertDate.UTC().Format(time.RFC3339Nano), oi.Weight)

	var setClauses []string
	for _, c := range cols[1:] {
		setClauses = append(setClauses, fmt.Sprintf("%s = excluded.%s", c, c))
	}

	q := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s) ON CONFLICT("id") DO UPDATE SET %s`,
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(setClauses, ", "))

	if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
		return types.InstanceError("upsert_object_instance", err)
	}
	return nil
}

// DeleteObjectInstance removes a single row from otd's instance table.
func (a *Adapter) DeleteObjectInstance(ctx context.Context, otd types.ObjectTypeDefinition, id uuid.UUID) error {
	table := instanceTableName(otd.TypeName)
	_, err := a.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q WHERE "id" = ?`, table), id.String())
	if err != nil {
		return types.InstanceError("delete_object_instance", err)
	}
	return nil
}

// GetObjectInstance loads a single instance by id.
func (a *Adapter) GetObjectInstance(ctx context.Context, otd types.ObjectTypeDefinition, id uuid.UUID) (*types.ObjectInstance, error) {
	rows, err := a.queryInstances(ctx, otd, `WHERE "id" = ?`, []any{id.String()})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, types.InstanceError("get_object_instance", fmt.Errorf("instance %s not found", id))
	}
	return &rows[0], nil
}

// GetAllObjectIDsForType returns every instance id of otd, used by the
// Query Executor to satisfy the complement operand of a NOT clause.
func (a *Adapter) GetAllObjectIDsForType(ctx context.Context, otd types.ObjectTypeDefinition) ([]uuid.UUID, error) {
	table := instanceTableName(otd.TypeName)
	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(`SELECT "id" FROM %q`, table))
	if err != nil {
		return nil, types.DatabaseError("get_all_object_ids_for_type", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// FindObjectIDsByProperties compiles filters into a WHERE clause and
// returns the matching instance ids.
func (a *Adapter) FindObjectIDsByProperties(ctx context.Context, otd types.ObjectTypeDefinition, filters []types.RelationalFilter) ([]uuid.UUID, error) {
	where, args, err := compileFilters(filters)
	if err != nil {
		return nil, types.ValidationError("find_object_ids_by_properties", err)
	}
	table := instanceTableName(otd.TypeName)
	q := fmt.Sprintf(`SELECT "id" FROM %q`, table)
	if where != "" {
		q += " WHERE " + where
	}
	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, types.DatabaseError("find_object_ids_by_properties", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// GetObjectInstancesByIDs batch-hydrates full ObjectInstance records in a
// single round trip, preserving the order ids was given in. Duplicate
// input ids collapse to one record; missing ids are silently dropped.
func (a *Adapter) GetObjectInstancesByIDs(ctx context.Context, otd types.ObjectTypeDefinition, ids []uuid.UUID) ([]types.ObjectInstance, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	deduped := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		deduped = append(deduped, id)
	}

	placeholders := make([]string, len(deduped))
	args := make([]any, len(deduped))
	for i, id := range deduped {
		placeholders[i] = "?"
		args[i] = id.String()
	}
	where := fmt.Sprintf(`WHERE "id" IN (%s)`, strings.Join(placeholders, ", "))
	rows, err := a.queryInstances(ctx, otd, where, args)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]types.ObjectInstance, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	out := make([]types.ObjectInstance, 0, len(deduped))
	for _, id := range deduped {
		if oi, ok := byID[id]; ok {
			out = append(out, oi)
		}
	}
	return out, nil
}

// UpsertRelationInstance writes ri's properties into rtd's edge table. The
// caller is responsible for only calling this when rtd declares properties;
// property-less relation types have no edge table to write into.
func (a *Adapter) UpsertRelationInstance(ctx context.Context, rtd types.RelationTypeDefinition, ri types.RelationInstance) error {
	table := relationTableName(rtd.TypeName)

	cols := []string{`"id"`, `"source_object_id"`, `"target_object_id"`}
	placeholders := []string{"?", "?", "?"}
	args := []any{ri.ID.String(), ri.SourceObjectID.String(), ri.TargetObjectID.String()}

	for _, p := range rtd.Properties {
		if p.Name == "id" {
			continue
		}
		cols = append(cols, fmt.Sprintf("%q", p.Name))
		placeholders = append(placeholders, "?")
		args = append(args, encodeValue(p.DataType, ri.Properties[p.Name]))
	}
	cols = append(cols, `"_upsert_date"`, `"_weight"`)
	placeholders = append(placeholders, "?", "?")
	args = append(args, ri.UpsertDate.UTC().Format(time.RFC3339Nano), ri.Weight)

	var setClauses []string
	for _, c := range cols[1:] {
		setClauses = append(setClauses, fmt.Sprintf("%s = excluded.%s", c, c))
	}

	q := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s) ON CONFLICT("id") DO UPDATE SET %s`,
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(setClauses, ", "))

	if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
		return types.InstanceError("upsert_relation_instance", err)
	}
	return nil
}

// DeleteRelationInstance removes a single row from rtd's edge table.
func (a *Adapter) DeleteRelationInstance(ctx context.Context, rtd types.RelationTypeDefinition, id uuid.UUID) error {
	table := relationTableName(rtd.TypeName)
	if _, err := a.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q WHERE "id" = ?`, table), id.String()); err != nil {
		return types.InstanceError("delete_relation_instance", err)
	}
	return nil
}

func (a *Adapter) queryInstances(ctx context.Context, otd types.ObjectTypeDefinition, whereClause string, args []any) ([]types.ObjectInstance, error) {
	table := instanceTableName(otd.TypeName)
	props := make([]types.Property, 0, len(otd.Properties))
	selectCols := make([]string, 0, len(otd.Properties)+3)
	selectCols = append(selectCols, `"id"`)
	for _, p := range otd.Properties {
		if p.Name == "id" {
			continue
		}
		props = append(props, p)
		selectCols = append(selectCols, fmt.Sprintf("%q", p.Name))
	}
	selectCols = append(selectCols, `"_upsert_date"`, `"_weight"`)

	q := fmt.Sprintf(`SELECT %s FROM %q`, strings.Join(selectCols, ", "), table)
	if whereClause != "" {
		q += " " + whereClause
	}
	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, types.DatabaseError("query_instances", err)
	}
	defer rows.Close()

	var out []types.ObjectInstance
	for rows.Next() {
		scanDest := make([]any, len(selectCols))
		var idStr string
		scanDest[0] = &idStr
		rawVals := make([]any, len(props))
		for i := range props {
			scanDest[i+1] = &rawVals[i]
		}
		var upsertDateStr string
		var weight sql.NullFloat64
		scanDest[len(selectCols)-2] = &upsertDateStr
		scanDest[len(selectCols)-1] = &weight

		if err := rows.Scan(scanDest...); err != nil {
			return nil, types.DatabaseError("query_instances", err)
		}

		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, types.DatabaseError("query_instances", err)
		}
		upsertDate, _ := time.Parse(time.RFC3339Nano, upsertDateStr)

		vals := make(map[string]any, len(props))
		for i, p := range props {
			vals[p.Name] = decodeValue(p.DataType, rawVals[i])
		}

		out = append(out, types.ObjectInstance{
			MemoryInstance: types.MemoryInstance{ID: id, Weight: weight.Float64, UpsertDate: upsertDate},
			ObjectTypeName: otd.TypeName,
			Properties:     vals,
		})
	}
	return out, rows.Err()
}

func scanIDs(rows *sql.Rows) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, types.DatabaseError("scan_ids", err)
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, types.DatabaseError("scan_ids", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// encodeValue converts a Go property value into the form stored in its
// SQLite column.
func encodeValue(t types.PropertyDataType, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case types.TypeBoolean:
		if b, ok := v.(bool); ok {
			if b {
				return 1
			}
			return 0
		}
	case types.TypeDateTime:
		if ts, ok := v.(time.Time); ok {
			return ts.UTC().Format(time.RFC3339Nano)
		}
	case types.TypeJSON:
		b, err := json.Marshal(v)
		if err == nil {
			return string(b)
		}
	case types.TypeUUID:
		if id, ok := v.(uuid.UUID); ok {
			return id.String()
		}
	}
	return v
}

// decodeValue converts a stored SQLite column value back into its Go
// property representation.
func decodeValue(t types.PropertyDataType, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case types.TypeBoolean:
		switch n := v.(type) {
		case int64:
			return n != 0
		}
	case types.TypeDateTime:
		if s, ok := v.(string); ok {
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err == nil {
				return ts
			}
		}
	case types.TypeJSON:
		if s, ok := v.(string); ok {
			var out any
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out
			}
		}
	case types.TypeUUID:
		if s, ok := v.(string); ok {
			if id, err := uuid.Parse(s); err == nil {
				return id
			}
		}
	}
	return v
}

// compileFilters builds a parameterized SQL WHERE clause from a list of
// RelationalFilter, mirroring the dynamic-argument-building closure style
// the teacher uses for its own WHERE clause construction.
func compileFilters(filters []types.RelationalFilter) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	var clauses []string
	var args []any
	for _, f := range filters {
		if !validIdent(f.PropertyName) {
			return "", nil, fmt.Errorf("invalid property name %q", f.PropertyName)
		}
		col := fmt.Sprintf("%q", f.PropertyName)
		switch f.Operator {
		case types.OpEqual, types.OpNotEqual, types.OpGreaterThan,
			types.OpGreaterThanOrEqual, types.OpLessThan, types.OpLessThanOrEqual, types.OpLike:
			clauses = append(clauses, fmt.Sprintf("%s %s ?", col, string(f.Operator)))
			args = append(args, f.Value)
		case types.OpIn:
			vals, ok := f.Value.([]any)
			if !ok {
				return "", nil, fmt.Errorf("IN filter on %q requires a slice value", f.PropertyName)
			}
			if len(vals) == 0 {
				clauses = append(clauses, "0")
				continue
			}
			placeholders := make([]string, len(vals))
			for i, v := range vals {
				placeholders[i] = "?"
				args = append(args, v)
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")))
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", f.Operator)
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}
