// Package vectorstore implements the Vector Adapter: one modernc.org/sqlite
// table per Embedding Definition storing float32 vectors as BLOBs, with
// brute-force cosine/L2 similarity search over a bounded top-K max-heap.
package vectorstore

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/grizabella-go/grizabella/pkg/types"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Adapter wraps a single *sql.DB for one logical database's vector
// substrate.
type Adapter struct {
	db *sql.DB
}

// Open opens (creating if necessary) the vectors.db file under dir.
func Open(ctx context.Context, dir string) (*Adapter, error) {
	db, err := sql.Open("sqlite", filepath.Join(dir, "vectors.db"))
	if err != nil {
		return nil, types.DatabaseError("vectorstore.open", err)
	}
	db.SetMaxOpenConns(1)
	return &Adapter{db: db}, nil
}

// Close closes the underlying database handle.
func (a *Adapter) Close() error { return a.db.Close() }

func tableName(edName string) string { return "emb_" + edName }

// CreateEmbeddingDefinition ensures the vector table for ed exists.
func (a *Adapter) CreateEmbeddingDefinition(ctx context.Context, ed types.EmbeddingDefinition) error {
	if !identRe.MatchString(ed.Name) {
		return types.SchemaError("create_embedding_definition", fmt.Errorf("invalid embedding name %q", ed.Name))
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		"object_instance_id" TEXT PRIMARY KEY,
		"vector" BLOB NOT NULL,
		"preview" TEXT NOT NULL DEFAULT '',
		"_upsert_date" TEXT NOT NULL,
		"_weight" REAL
	)`, tableName(ed.Name))
	if _, err := a.db.ExecContext(ctx, ddl); err != nil {
		return types.DatabaseError("create_embedding_definition", err)
	}
	return nil
}

// DropEmbeddingDefinition drops ed's vector table entirely. Used both by
// schema delete and by the Schema Manager's compensating rollback when
// CreateEmbeddingDefinition fails here after the relational metadata row
// already committed.
func (a *Adapter) DropEmbeddingDefinition(ctx context.Context, name string) error {
	if !identRe.MatchString(name) {
		return types.SchemaError("drop_embedding_definition", fmt.Errorf("invalid embedding name %q", name))
	}
	if _, err := a.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, tableName(name))); err != nil {
		return types.DatabaseError("drop_embedding_definition", err)
	}
	return nil
}

// UpsertEmbedding writes or overwrites the vector for a single object
// instance under ed.
func (a *Adapter) UpsertEmbedding(ctx context.Context, ed types.EmbeddingDefinition, e types.EmbeddingInstance) error {
	if len(e.Vector) != ed.Dimensions {
		return types.ValidationError("upsert_embedding", fmt.Errorf("vector has %d dimensions, want %d", len(e.Vector), ed.Dimensions))
	}
	blob := encodeVector(e.Vector)
	_, err := a.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %q ("object_instance_id", "vector", "preview", "_upsert_date", "_weight")
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT("object_instance_id") DO UPDATE SET
			"vector" = excluded."vector",
			"preview" = excluded."preview",
			"_upsert_date" = excluded."_upsert_date",
			"_weight" = excluded."_weight"
	`, tableName(ed.Name)), e.ObjectInstanceID.String(), blob, e.Preview, e.UpsertDate.UTC().Format(time.RFC3339Nano), e.Weight)
	if err != nil {
		return types.InstanceError("upsert_embedding", err)
	}
	return nil
}

// GetEmbedding loads the single embedding row for objectInstanceID under
// ed, or nil when none exists (including when ed's table was never
// created).
func (a *Adapter) GetEmbedding(ctx context.Context, ed types.EmbeddingDefinition, objectInstanceID uuid.UUID) (*types.EmbeddingInstance, error) {
	row := a.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT "vector", "preview", "_upsert_date", "_weight" FROM %q WHERE "object_instance_id" = ?`,
		tableName(ed.Name)), objectInstanceID.String())

	var blob []byte
	var preview, upsertDateStr string
	var weight sql.NullFloat64
	err := row.Scan(&blob, &preview, &upsertDateStr, &weight)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return nil, nil
		}
		return nil, types.DatabaseError("get_embedding", err)
	}
	upsertDate, _ := time.Parse(time.RFC3339Nano, upsertDateStr)
	return &types.EmbeddingInstance{
		MemoryInstance:          types.MemoryInstance{Weight: weight.Float64, UpsertDate: upsertDate},
		EmbeddingDefinitionName: ed.Name,
		ObjectInstanceID:        objectInstanceID,
		Vector:                  decodeVector(blob),
		Preview:                 preview,
	}, nil
}

// DeleteEmbedding removes objectInstanceID's vector under ed, if present.
func (a *Adapter) DeleteEmbedding(ctx context.Context, ed types.EmbeddingDefinition, objectInstanceID uuid.UUID) error {
	_, err := a.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q WHERE "object_instance_id" = ?`, tableName(ed.Name)), objectInstanceID.String())
	if err != nil {
		return types.InstanceError("delete_embedding", err)
	}
	return nil
}

// Match is one ranked result of QuerySimilar: the matched object instance
// id, its similarity score (higher is more similar, 1.0 being identical
// for cosine), the equivalent distance (smaller is more similar), and the
// stored source-text preview.
type Match struct {
	ObjectInstanceID uuid.UUID
	Score            float64
	Distance         float64
	Preview          string
}

// SearchParams tunes a single QuerySimilar call.
type SearchParams struct {
	// TopK bounds the result count. Zero or negative means 10.
	TopK int

	// CandidateIDs, when non-nil, restricts the scan to a pre-filtered id
	// set pushed down from the Query Planner. Non-nil and empty yields an
	// empty result without touching the table.
	CandidateIDs []uuid.UUID

	// Threshold, when set, drops matches whose distance exceeds it.
	Threshold *float64

	// IsL2Distance forces Euclidean distance regardless of the
	// EmbeddingDefinition's configured metric.
	IsL2Distance bool
}

// QuerySimilar returns the TopK object instance ids whose vector under ed
// is nearest to query, subject to params. Never hydrates full objects;
// callers batch-hydrate the returned ids themselves.
func (a *Adapter) QuerySimilar(ctx context.Context, ed types.EmbeddingDefinition, query []float32, params SearchParams) ([]Match, error) {
	if len(query) != ed.Dimensions {
		return nil, types.ValidationError("query_similar", fmt.Errorf("query vector has %d dimensions, want %d", len(query), ed.Dimensions))
	}
	topK := params.TopK
	if topK <= 0 {
		topK = 10
	}

	q := fmt.Sprintf(`SELECT "object_instance_id", "vector", "preview" FROM %q`, tableName(ed.Name))
	var args []any
	if params.CandidateIDs != nil {
		if len(params.CandidateIDs) == 0 {
			return nil, nil
		}
		placeholders := make([]byte, 0, len(params.CandidateIDs)*2)
		for i, id := range params.CandidateIDs {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args = append(args, id.String())
		}
		q += fmt.Sprintf(` WHERE "object_instance_id" IN (%s)`, string(placeholders))
	}

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, types.DatabaseError("query_similar", err)
	}
	defer rows.Close()

	metric := ed.Metric
	if metric == "" {
		metric = types.MetricCosine
	}
	if params.IsL2Distance {
		metric = types.MetricL2
	}

	h := &matchHeap{}
	heap.Init(h)
	for rows.Next() {
		var idStr, preview string
		var blob []byte
		if err := rows.Scan(&idStr, &blob, &preview); err != nil {
			return nil, types.DatabaseError("query_similar", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, types.DatabaseError("query_similar", err)
		}
		vec := decodeVector(blob)
		score := similarity(metric, query, vec)
		dist := distance(metric, score)
		if params.Threshold != nil && dist > *params.Threshold {
			continue
		}

		m := Match{ObjectInstanceID: id, Score: score, Distance: dist, Preview: preview}
		if h.Len() < topK {
			heap.Push(h, m)
		} else if h.Len() > 0 && score > (*h)[0].Score {
			heap.Pop(h)
			heap.Push(h, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, types.DatabaseError("query_similar", err)
	}

	out := make([]Match, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Match)
	}
	return out, nil
}

// distance converts a similarity score back into the non-negative
// "smaller is closer" measure threshold filters are expressed in: 1-score
// for cosine, the raw Euclidean distance for L2.
func distance(metric types.SimilarityMetric, score float64) float64 {
	if metric == types.MetricL2 {
		return -score
	}
	return 1 - score
}

func similarity(metric types.SimilarityMetric, a, b []float32) float64 {
	switch metric {
	case types.MetricL2:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		// Convert distance to a similarity score where larger is closer.
		return -math.Sqrt(sum)
	default: // cosine
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 0
		}
		return dot / (math.Sqrt(na) * math.Sqrt(nb))
	}
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

// matchHeap is a min-heap on Score, used to keep only the topK highest
// scoring matches while scanning the full table.
type matchHeap []Match

func (h matchHeap) Len() int            { return len(h) }
func (h matchHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h matchHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *matchHeap) Push(x any)         { *h = append(*h, x.(Match)) }
func (h *matchHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
