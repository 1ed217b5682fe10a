// Package graphstore implements the Graph Adapter: one go.etcd.io/bbolt
// bucket per object type (nodes) and per relation type (edges), plus
// per-relation-type adjacency index buckets, with in-process BFS/shortest
// path traversal replacing the recursive-CTE walks a SQL-backed graph
// layer would use.
package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/grizabella-go/grizabella/internal/pool"
	"github.com/grizabella-go/grizabella/pkg/types"
)

// Adapter wraps a single *bolt.DB for one logical database's graph
// substrate. Read snapshots can be pinned per caller scope via ReadScope,
// so a multi-step query observes one consistent view of the graph.
type Adapter struct {
	db     *bolt.DB
	scopes *pool.GraphHandle[*bolt.Tx]
}

// Open opens (creating if necessary) the graph.db file under dir. bbolt
// takes an exclusive flock on the store file itself, so a second writer
// fails fast after the 2s timeout; stale cross-process writers are handled
// one level up by the root lockfile (internal/pool.AcquireLockfile), which
// is acquired before any substrate is opened.
func Open(dir string) (*Adapter, error) {
	db, err := bolt.Open(filepath.Join(dir, "graph.db"), 0o644, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, types.DatabaseError("graphstore.open", err)
	}
	a := &Adapter{db: db}
	a.scopes = pool.NewGraphHandle(func() *bolt.Tx {
		tx, err := db.Begin(false)
		if err != nil {
			return nil
		}
		return tx
	})
	return a, nil
}

// Close closes the underlying database handle.
func (a *Adapter) Close() error { return a.db.Close() }

// ReadScope pins a read transaction to the returned context: every read
// the caller performs with that context observes the same snapshot of the
// graph, even while concurrent writers commit. done must be called exactly
// once when the scope ends.
func (a *Adapter) ReadScope(ctx context.Context) (context.Context, func()) {
	ctx, tx, release := a.scopes.Scope(ctx)
	done := func() {
		if tx != nil {
			_ = tx.Rollback()
		}
		release()
	}
	return ctx, done
}

// view runs fn inside the context's pinned read transaction when one is
// present, falling back to a fresh per-call transaction otherwise.
func (a *Adapter) view(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if tx, ok := a.scopes.Value(ctx); ok && tx != nil {
		return fn(tx)
	}
	return a.db.View(fn)
}

func nodeBucket(otdName string) []byte   { return []byte("node:" + otdName) }
func edgeBucket(rtdName string) []byte   { return []byte("edge:" + rtdName) }
func edgeOutIndex(rtdName string) []byte { return []byte("edgeout:" + rtdName) }
func edgeInIndex(rtdName string) []byte  { return []byte("edgein:" + rtdName) }

// CreateObjectType ensures the node bucket for otd exists.
func (a *Adapter) CreateObjectType(_ context.Context, otd types.ObjectTypeDefinition) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(nodeBucket(otd.TypeName))
		return err
	})
}

// CreateRelationType ensures the edge bucket and adjacency indexes for rtd
// exist.
func (a *Adapter) CreateRelationType(_ context.Context, rtd types.RelationTypeDefinition) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{edgeBucket(rtd.TypeName), edgeOutIndex(rtd.TypeName), edgeInIndex(rtd.TypeName)} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
}

// DropObjectType deletes otd's node bucket entirely. Used both by schema
// delete (after the caller has cascade-deleted every instance) and by the
// Schema Manager's compensating rollback when CreateObjectType's graph
// projection fails after the relational one already succeeded.
func (a *Adapter) DropObjectType(_ context.Context, typeName string) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(nodeBucket(typeName)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		return nil
	})
}

// DropRelationType deletes rtd's edge bucket and both adjacency index
// buckets entirely.
func (a *Adapter) DropRelationType(_ context.Context, typeName string) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{edgeBucket(typeName), edgeOutIndex(typeName), edgeInIndex(typeName)} {
			if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
		}
		return nil
	})
}

// UpsertNode writes or overwrites the node record for oi.
func (a *Adapter) UpsertNode(_ context.Context, otd types.ObjectTypeDefinition, oi types.ObjectInstance) error {
	data, err := json.Marshal(oi)
	if err != nil {
		return types.InstanceError("upsert_node", err)
	}
	return a.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(nodeBucket(otd.TypeName))
		if b == nil {
			return fmt.Errorf("object type %q has no node bucket", otd.TypeName)
		}
		return b.Put([]byte(oi.ID.String()), data)
	})
}

// DeleteNode removes the node record for id.
func (a *Adapter) DeleteNode(_ context.Context, otd types.ObjectTypeDefinition, id uuid.UUID) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(nodeBucket(otd.TypeName))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(id.String()))
	})
}

// GetNode loads a single node record by id.
func (a *Adapter) GetNode(ctx context.Context, otd types.ObjectTypeDefinition, id uuid.UUID) (*types.ObjectInstance, error) {
	var out types.ObjectInstance
	err := a.view(ctx, func(tx *bolt.Tx) error {
		b := tx.Bucket(nodeBucket(otd.TypeName))
		if b == nil {
			return fmt.Errorf("object type %q has no node bucket", otd.TypeName)
		}
		data := b.Get([]byte(id.String()))
		if data == nil {
			return fmt.Errorf("node %s not found", id)
		}
		return json.Unmarshal(data, &out)
	})
	if err != nil {
		return nil, types.InstanceError("get_node", err)
	}
	return &out, nil
}

// NodeExists reports whether id has a node record under otd, without
// decoding it.
func (a *Adapter) NodeExists(ctx context.Context, otd types.ObjectTypeDefinition, id uuid.UUID) (bool, error) {
	var exists bool
	err := a.view(ctx, func(tx *bolt.Tx) error {
		b := tx.Bucket(nodeBucket(otd.TypeName))
		if b == nil {
			return nil
		}
		exists = b.Get([]byte(id.String())) != nil
		return nil
	})
	if err != nil {
		return false, types.DatabaseError("node_exists", err)
	}
	return exists, nil
}

// edgeRecord is the JSON shape of an edge stored in an edge bucket.
type edgeRecord struct {
	types.RelationInstance
}

// UpsertEdge writes or overwrites ri and maintains its adjacency indexes.
// Re-upserting an existing edge id first unlinks its old endpoints, so
// repeated upserts (including ones that move an endpoint) never leave
// duplicate or dangling index entries.
func (a *Adapter) UpsertEdge(_ context.Context, rtd types.RelationTypeDefinition, ri types.RelationInstance) error {
	data, err := json.Marshal(edgeRecord{ri})
	if err != nil {
		return types.InstanceError("upsert_edge", err)
	}
	return a.db.Update(func(tx *bolt.Tx) error {
		edges := tx.Bucket(edgeBucket(rtd.TypeName))
		outIdx := tx.Bucket(edgeOutIndex(rtd.TypeName))
		inIdx := tx.Bucket(edgeInIndex(rtd.TypeName))
		if edges == nil || outIdx == nil || inIdx == nil {
			return fmt.Errorf("relation type %q has no edge buckets", rtd.TypeName)
		}
		if old := edges.Get([]byte(ri.ID.String())); old != nil {
			var prev edgeRecord
			if err := json.Unmarshal(old, &prev); err != nil {
				return err
			}
			if err := removeIndexEntry(outIdx, prev.SourceObjectID, ri.ID); err != nil {
				return err
			}
			if err := removeIndexEntry(inIdx, prev.TargetObjectID, ri.ID); err != nil {
				return err
			}
		}
		if err := edges.Put([]byte(ri.ID.String()), data); err != nil {
			return err
		}
		if err := appendIndexEntry(outIdx, ri.SourceObjectID, ri.ID); err != nil {
			return err
		}
		return appendIndexEntry(inIdx, ri.TargetObjectID, ri.ID)
	})
}

// DeleteEdge removes ri (looked up by id) and its adjacency index entries.
func (a *Adapter) DeleteEdge(_ context.Context, rtd types.RelationTypeDefinition, id uuid.UUID) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		edges := tx.Bucket(edgeBucket(rtd.TypeName))
		outIdx := tx.Bucket(edgeOutIndex(rtd.TypeName))
		inIdx := tx.Bucket(edgeInIndex(rtd.TypeName))
		if edges == nil {
			return nil
		}
		data := edges.Get([]byte(id.String()))
		if data == nil {
			return nil
		}
		var rec edgeRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		if err := edges.Delete([]byte(id.String())); err != nil {
			return err
		}
		if err := removeIndexEntry(outIdx, rec.SourceObjectID, id); err != nil {
			return err
		}
		return removeIndexEntry(inIdx, rec.TargetObjectID, id)
	})
}

// GetEdge loads a single edge record of rtd by id, or nil when absent.
func (a *Adapter) GetEdge(ctx context.Context, rtd types.RelationTypeDefinition, id uuid.UUID) (*types.RelationInstance, error) {
	var out *types.RelationInstance
	err := a.view(ctx, func(tx *bolt.Tx) error {
		edges := tx.Bucket(edgeBucket(rtd.TypeName))
		if edges == nil {
			return nil
		}
		data := edges.Get([]byte(id.String()))
		if data == nil {
			return nil
		}
		var rec edgeRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		out = &rec.RelationInstance
		return nil
	})
	if err != nil {
		return nil, types.DatabaseError("get_edge", err)
	}
	return out, nil
}

// GetRelationships returns every edge of rtd incident to objectID, in the
// requested direction.
func (a *Adapter) GetRelationships(ctx context.Context, rtd types.RelationTypeDefinition, objectID uuid.UUID, direction types.TraversalDirection) ([]types.RelationInstance, error) {
	var out []types.RelationInstance
	err := a.view(ctx, func(tx *bolt.Tx) error {
		edges := tx.Bucket(edgeBucket(rtd.TypeName))
		if edges == nil {
			return nil
		}
		ids := map[uuid.UUID]struct{}{}
		if direction == types.DirectionOutgoing || direction == types.DirectionBoth || direction == "" {
			collectIndexEntries(tx.Bucket(edgeOutIndex(rtd.TypeName)), objectID, ids)
		}
		if direction == types.DirectionIncoming || direction == types.DirectionBoth {
			collectIndexEntries(tx.Bucket(edgeInIndex(rtd.TypeName)), objectID, ids)
		}
		for edgeID := range ids {
			data := edges.Get([]byte(edgeID.String()))
			if data == nil {
				continue
			}
			var rec edgeRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}
			out = append(out, rec.RelationInstance)
		}
		return nil
	})
	if err != nil {
		return nil, types.DatabaseError("get_relationships", err)
	}
	return out, nil
}

// FindRelationInstances is the general relation lookup: when typeName is
// empty it requires sourceID, targetID, and props to all be absent too,
// returning an empty result without touching the substrate; otherwise it
// scans (or index-probes, when an endpoint is given) typeName's edge
// bucket and returns every edge matching every given constraint, sorted by
// id for a stable order, truncated to limit when positive.
func (a *Adapter) FindRelationInstances(ctx context.Context, typeName string, sourceID, targetID *uuid.UUID, props []types.RelationalFilter, limit int) ([]types.RelationInstance, error) {
	if typeName == "" {
		if sourceID != nil || targetID != nil || len(props) > 0 {
			return nil, types.ValidationError("find_relation_instances", fmt.Errorf("type is required when source_id, target_id, or props is given"))
		}
		return nil, nil
	}

	var out []types.RelationInstance
	err := a.view(ctx, func(tx *bolt.Tx) error {
		edges := tx.Bucket(edgeBucket(typeName))
		if edges == nil {
			return nil
		}

		keep := func(data []byte) error {
			var rec edgeRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}
			if sourceID != nil && rec.SourceObjectID != *sourceID {
				return nil
			}
			if targetID != nil && rec.TargetObjectID != *targetID {
				return nil
			}
			if len(props) > 0 {
				matched, err := relationPropertiesMatch(rec.RelationInstance, props)
				if err != nil {
					return err
				}
				if !matched {
					return nil
				}
			}
			out = append(out, rec.RelationInstance)
			return nil
		}

		switch {
		case sourceID != nil:
			ids := map[uuid.UUID]struct{}{}
			collectIndexEntries(tx.Bucket(edgeOutIndex(typeName)), *sourceID, ids)
			for edgeID := range ids {
				if data := edges.Get([]byte(edgeID.String())); data != nil {
					if err := keep(data); err != nil {
						return err
					}
				}
			}
		case targetID != nil:
			ids := map[uuid.UUID]struct{}{}
			collectIndexEntries(tx.Bucket(edgeInIndex(typeName)), *targetID, ids)
			for edgeID := range ids {
				if data := edges.Get([]byte(edgeID.String())); data != nil {
					if err := keep(data); err != nil {
						return err
					}
				}
			}
		default:
			if err := edges.ForEach(func(_, data []byte) error { return keep(data) }); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, types.DatabaseError("find_relation_instances", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func relationPropertiesMatch(ri types.RelationInstance, filters []types.RelationalFilter) (bool, error) {
	for _, f := range filters {
		v, ok := ri.Properties[f.PropertyName]
		if !ok {
			return false, nil
		}
		matched, err := evaluateFilter(v, f)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

// Neighbors performs an in-process breadth-first walk from startID up to
// maxHops hops along rtd's edges, returning every reached object id
// (excluding startID itself).
func (a *Adapter) Neighbors(ctx context.Context, rtd types.RelationTypeDefinition, startID uuid.UUID, direction types.TraversalDirection, maxHops int) ([]uuid.UUID, error) {
	if maxHops <= 0 {
		maxHops = 1
	}
	visited := map[uuid.UUID]struct{}{startID: {}}
	frontier := []uuid.UUID{startID}

	err := a.view(ctx, func(tx *bolt.Tx) error {
		edges := tx.Bucket(edgeBucket(rtd.TypeName))
		outIdx := tx.Bucket(edgeOutIndex(rtd.TypeName))
		inIdx := tx.Bucket(edgeInIndex(rtd.TypeName))
		if edges == nil {
			return nil
		}
		for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
			var next []uuid.UUID
			for _, cur := range frontier {
				edgeIDs := map[uuid.UUID]struct{}{}
				if direction == types.DirectionOutgoing || direction == types.DirectionBoth || direction == "" {
					collectIndexEntries(outIdx, cur, edgeIDs)
				}
				if direction == types.DirectionIncoming || direction == types.DirectionBoth {
					collectIndexEntries(inIdx, cur, edgeIDs)
				}
				for edgeID := range edgeIDs {
					data := edges.Get([]byte(edgeID.String()))
					if data == nil {
						continue
					}
					var rec edgeRecord
					if err := json.Unmarshal(data, &rec); err != nil {
						return err
					}
					other := rec.TargetObjectID
					if other == cur {
						other = rec.SourceObjectID
					}
					if _, seen := visited[other]; !seen {
						visited[other] = struct{}{}
						next = append(next, other)
					}
				}
			}
			frontier = next
		}
		return nil
	})
	if err != nil {
		return nil, types.DatabaseError("neighbors", err)
	}

	out := make([]uuid.UUID, 0, len(visited))
	for id := range visited {
		if id != startID {
			out = append(out, id)
		}
	}
	return out, nil
}

// FilterObjectIDsByRelations is the central graph-query primitive: an id
// from initialIDs survives iff, for every clause in traversals, at least
// one edge of the clause's relation type and direction reaches a node of
// the clause's target type satisfying its optional target id / target
// property constraints. Clauses compose by intersection, evaluated
// left-to-right so an empty survivor set short-circuits the remaining
// clauses.
func (a *Adapter) FilterObjectIDsByRelations(ctx context.Context, initialIDs []uuid.UUID, traversals []types.GraphTraversalClause) ([]uuid.UUID, error) {
	if len(traversals) == 0 {
		return initialIDs, nil
	}
	survivors := initialIDs

	err := a.view(ctx, func(tx *bolt.Tx) error {
		for _, clause := range traversals {
			if len(survivors) == 0 {
				return nil
			}
			edges := tx.Bucket(edgeBucket(clause.RelationTypeName))
			if edges == nil {
				survivors = nil
				return nil
			}
			outIdx := tx.Bucket(edgeOutIndex(clause.RelationTypeName))
			inIdx := tx.Bucket(edgeInIndex(clause.RelationTypeName))
			targetNodes := tx.Bucket(nodeBucket(clause.TargetTypeName))

			next := make([]uuid.UUID, 0, len(survivors))
			for _, id := range survivors {
				matched, err := hasMatchingEdge(edges, outIdx, inIdx, targetNodes, id, clause)
				if err != nil {
					return err
				}
				if matched {
					next = append(next, id)
				}
			}
			survivors = next
		}
		return nil
	})
	if err != nil {
		return nil, types.DatabaseError("filter_object_ids_by_relations", err)
	}
	return survivors, nil
}

// hasMatchingEdge reports whether id has at least one incident edge
// (per clause.Direction) reaching a target node that satisfies clause's
// optional id/property constraints.
func hasMatchingEdge(edges, outIdx, inIdx, targetNodes *bolt.Bucket, id uuid.UUID, clause types.GraphTraversalClause) (bool, error) {
	edgeIDs := map[uuid.UUID]struct{}{}
	if clause.Direction == types.DirectionOutgoing || clause.Direction == types.DirectionBoth || clause.Direction == "" {
		collectIndexEntries(outIdx, id, edgeIDs)
	}
	if clause.Direction == types.DirectionIncoming || clause.Direction == types.DirectionBoth {
		collectIndexEntries(inIdx, id, edgeIDs)
	}

	for edgeID := range edgeIDs {
		data := edges.Get([]byte(edgeID.String()))
		if data == nil {
			continue
		}
		var rec edgeRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return false, err
		}
		other := rec.TargetObjectID
		if other == id {
			other = rec.SourceObjectID
		}
		if clause.TargetObjectID != nil && other != *clause.TargetObjectID {
			continue
		}
		if len(clause.TargetObjectProperties) > 0 {
			matched, err := targetNodeMatches(targetNodes, other, clause.TargetObjectProperties)
			if err != nil {
				return false, err
			}
			if !matched {
				continue
			}
		}
		return true, nil
	}
	return false, nil
}

// targetNodeMatches evaluates filters against the node's own stored
// property bag, avoiding a round trip through the relational adapter
// since UpsertNode already persists the full instance.
func targetNodeMatches(targetNodes *bolt.Bucket, id uuid.UUID, filters []types.RelationalFilter) (bool, error) {
	if targetNodes == nil {
		return false, nil
	}
	data := targetNodes.Get([]byte(id.String()))
	if data == nil {
		return false, nil
	}
	var oi types.ObjectInstance
	if err := json.Unmarshal(data, &oi); err != nil {
		return false, err
	}
	for _, f := range filters {
		v, ok := oi.Properties[f.PropertyName]
		if !ok {
			return false, nil
		}
		matched, err := evaluateFilter(v, f)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

// evaluateFilter applies a single RelationalFilter to a decoded JSON
// property value, mirroring relational.compileFilters' operator set.
func evaluateFilter(v any, f types.RelationalFilter) (bool, error) {
	switch f.Operator {
	case types.OpEqual:
		return fmt.Sprint(v) == fmt.Sprint(f.Value), nil
	case types.OpNotEqual:
		return fmt.Sprint(v) != fmt.Sprint(f.Value), nil
	case types.OpGreaterThan, types.OpGreaterThanOrEqual, types.OpLessThan, types.OpLessThanOrEqual:
		lhs, lok := toFloat(v)
		rhs, rok := toFloat(f.Value)
		if !lok || !rok {
			return false, fmt.Errorf("operator %q requires numeric operands", f.Operator)
		}
		switch f.Operator {
		case types.OpGreaterThan:
			return lhs > rhs, nil
		case types.OpGreaterThanOrEqual:
			return lhs >= rhs, nil
		case types.OpLessThan:
			return lhs < rhs, nil
		default:
			return lhs <= rhs, nil
		}
	case types.OpLike:
		pattern := strings.ReplaceAll(fmt.Sprint(f.Value), "%", "")
		return strings.Contains(fmt.Sprint(v), pattern), nil
	case types.OpIn:
		vals, ok := f.Value.([]any)
		if !ok {
			return false, fmt.Errorf("IN filter on %q requires a slice value", f.PropertyName)
		}
		for _, want := range vals {
			if fmt.Sprint(v) == fmt.Sprint(want) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported operator %q", f.Operator)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// FindPath returns the shortest sequence of object ids connecting startID
// to endID via rtd's edges, or nil if no path exists within maxHops.
func (a *Adapter) FindPath(ctx context.Context, rtd types.RelationTypeDefinition, startID, endID uuid.UUID, direction types.TraversalDirection, maxHops int) ([]uuid.UUID, error) {
	if maxHops <= 0 {
		maxHops = 10
	}
	if startID == endID {
		return []uuid.UUID{startID}, nil
	}

	type queueEntry struct {
		id   uuid.UUID
		path []uuid.UUID
	}

	var result []uuid.UUID
	err := a.view(ctx, func(tx *bolt.Tx) error {
		edges := tx.Bucket(edgeBucket(rtd.TypeName))
		outIdx := tx.Bucket(edgeOutIndex(rtd.TypeName))
		inIdx := tx.Bucket(edgeInIndex(rtd.TypeName))
		if edges == nil {
			return nil
		}
		visited := map[uuid.UUID]struct{}{startID: {}}
		queue := []queueEntry{{id: startID, path: []uuid.UUID{startID}}}

		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if len(cur.path)-1 >= maxHops {
				continue
			}

			edgeIDs := map[uuid.UUID]struct{}{}
			if direction == types.DirectionOutgoing || direction == types.DirectionBoth || direction == "" {
				collectIndexEntries(outIdx, cur.id, edgeIDs)
			}
			if direction == types.DirectionIncoming || direction == types.DirectionBoth {
				collectIndexEntries(inIdx, cur.id, edgeIDs)
			}
			for edgeID := range edgeIDs {
				data := edges.Get([]byte(edgeID.String()))
				if data == nil {
					continue
				}
				var rec edgeRecord
				if err := json.Unmarshal(data, &rec); err != nil {
					return err
				}
				other := rec.TargetObjectID
				if other == cur.id {
					other = rec.SourceObjectID
				}
				if other == endID {
					result = append(append([]uuid.UUID{}, cur.path...), other)
					return nil
				}
				if _, seen := visited[other]; !seen {
					visited[other] = struct{}{}
					queue = append(queue, queueEntry{id: other, path: append(append([]uuid.UUID{}, cur.path...), other)})
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, types.DatabaseError("find_path", err)
	}
	return result, nil
}

func appendIndexEntry(b *bolt.Bucket, objectID, edgeID uuid.UUID) error {
	key := []byte(objectID.String())
	var ids []string
	if data := b.Get(key); data != nil {
		if err := json.Unmarshal(data, &ids); err != nil {
			return err
		}
	}
	ids = append(ids, edgeID.String())
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func removeIndexEntry(b *bolt.Bucket, objectID, edgeID uuid.UUID) error {
	if b == nil {
		return nil
	}
	key := []byte(objectID.String())
	data := b.Get(key)
	if data == nil {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	filtered := ids[:0]
	target := edgeID.String()
	for _, id := range ids {
		if id != target {
			filtered = append(filtered, id)
		}
	}
	if len(filtered) == 0 {
		return b.Delete(key)
	}
	out, err := json.Marshal(filtered)
	if err != nil {
		return err
	}
	return b.Put(key, out)
}

func collectIndexEntries(b *bolt.Bucket, objectID uuid.UUID, into map[uuid.UUID]struct{}) {
	if b == nil {
		return
	}
	data := b.Get([]byte(objectID.String()))
	if data == nil {
		return
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return
	}
	for _, s := range ids {
		if id, err := uuid.Parse(s); err == nil {
			into[id] = struct{}{}
		}
	}
}
