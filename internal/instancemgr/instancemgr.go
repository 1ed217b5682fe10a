// Package instancemgr implements the Instance Manager: orchestrates
// object/relation/embedding upsert and delete across all three substrates
// and computes derived embeddings on object write.
package instancemgr

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grizabella-go/grizabella/internal/graphstore"
	"github.com/grizabella-go/grizabella/internal/relational"
	"github.com/grizabella-go/grizabella/internal/schemamgr"
	"github.com/grizabella-go/grizabella/internal/telemetry"
	"github.com/grizabella-go/grizabella/internal/vectorstore"
	"github.com/grizabella-go/grizabella/pkg/types"
)

// Manager orchestrates instance-level writes and reads across the three
// substrates, keeping them consistent via the sequence the spec's design
// calls for: validate against the schema, write the primary (relational)
// record, mirror into the graph, then recompute any derived embeddings.
type Manager struct {
	schema     *schemamgr.Manager
	relational *relational.Adapter
	vector     *vectorstore.Adapter
	graph      *graphstore.Adapter
	models     *vectorstore.ModelRegistry
}

// New constructs a Manager bound to the given Schema Manager, the three
// substrate adapters, and the embedding model registry.
func New(schema *schemamgr.Manager, rel *relational.Adapter, vec *vectorstore.Adapter, graph *graphstore.Adapter, models *vectorstore.ModelRegistry) *Manager {
	return &Manager{schema: schema, relational: rel, vector: vec, graph: graph, models: models}
}

// UpsertObject validates oi against its OTD, assigns an id if missing,
// stamps UpsertDate (overriding any client-supplied value per the engine's
// ownership of that field), writes the relational and graph records, then
// recomputes every EmbeddingDefinition derived from this object type.
//
// On recompute, the prior embedding is deleted before the new one is
// written, so a failure mid-recompute never leaves a stale vector behind
// silently passing similarity search — it simply leaves that embedding
// absent until the next successful upsert.
func (m *Manager) UpsertObject(ctx context.Context, oi types.ObjectInstance) (types.ObjectInstance, error) {
	ctx, span := telemetry.StartSpan(ctx, "instancemgr.UpsertObject")
	defer span.End()

	otd, err := m.schema.ObjectType(oi.ObjectTypeName)
	if err != nil {
		return types.ObjectInstance{}, err
	}
	if err := validateProperties(otd, oi.Properties); err != nil {
		return types.ObjectInstance{}, types.ValidationError("upsert_object", err)
	}

	if oi.ID == uuid.Nil {
		oi.ID = uuid.New()
	}
	if oi.Weight == 0 {
		oi.Weight = 1
	}
	oi.UpsertDate = time.Now().UTC()

	if err := m.relational.UpsertObjectInstance(ctx, otd, oi); err != nil {
		return types.ObjectInstance{}, err
	}
	if err := m.graph.UpsertNode(ctx, otd, oi); err != nil {
		return types.ObjectInstance{}, err
	}

	if err := m.recomputeEmbeddings(ctx, otd, oi); err != nil {
		return types.ObjectInstance{}, err
	}
	return oi, nil
}

func (m *Manager) recomputeEmbeddings(ctx context.Context, otd types.ObjectTypeDefinition, oi types.ObjectInstance) error {
	eds, err := m.embeddingDefinitionsFor(otd.TypeName)
	if err != nil {
		return err
	}
	for _, ed := range eds {
		// The prior embedding is deleted unconditionally, even when the
		// source property is absent: a property removed on this upsert must
		// not leave a stale vector behind.
		if err := m.vector.DeleteEmbedding(ctx, ed, oi.ID); err != nil {
			return err
		}

		raw, ok := oi.Properties[ed.SourcePropertyName]
		if !ok || raw == nil {
			continue
		}
		text := fmt.Sprintf("%v", raw)
		if strings.TrimSpace(text) == "" {
			continue
		}

		modelName := ed.Model
		if modelName == "" {
			modelName = "stub"
		}
		model, err := m.models.Get(modelName)
		if err != nil {
			return err
		}
		vec, err := model.Embed(ctx, text)
		if err != nil {
			return types.EmbeddingError("recompute_embeddings", err)
		}

		ei := types.EmbeddingInstance{
			MemoryInstance:          types.MemoryInstance{ID: uuid.New(), UpsertDate: time.Now().UTC()},
			EmbeddingDefinitionName: ed.Name,
			ObjectInstanceID:        oi.ID,
			Vector:                  vec,
			Preview:                 previewOf(text),
		}
		if err := m.vector.UpsertEmbedding(ctx, ed, ei); err != nil {
			return err
		}
	}
	return nil
}

// previewMaxLen bounds the source-text prefix stored alongside a vector.
const previewMaxLen = 200

func previewOf(text string) string {
	runes := []rune(text)
	if len(runes) <= previewMaxLen {
		return text
	}
	return string(runes[:previewMaxLen])
}

func (m *Manager) embeddingDefinitionsFor(objectTypeName string) ([]types.EmbeddingDefinition, error) {
	return m.schema.EmbeddingDefinitionsForType(objectTypeName)
}

// DeleteObject removes oi's relational and graph records and every
// embedding derived from it. The graph delete is a detach-delete: every
// relation instance incident to the object, of any relation type naming
// this object type as an endpoint, is removed first.
func (m *Manager) DeleteObject(ctx context.Context, typeName string, id uuid.UUID) error {
	otd, err := m.schema.ObjectType(typeName)
	if err != nil {
		return err
	}
	eds, err := m.embeddingDefinitionsFor(typeName)
	if err != nil {
		return err
	}
	for _, ed := range eds {
		if err := m.vector.DeleteEmbedding(ctx, ed, id); err != nil {
			return err
		}
	}
	for _, rtd := range m.schema.RelationTypesReferencing(typeName) {
		if err := m.deleteRelationsIncidentTo(ctx, rtd, typeName, id); err != nil {
			return err
		}
	}
	if err := m.graph.DeleteNode(ctx, otd, id); err != nil {
		return err
	}
	return m.relational.DeleteObjectInstance(ctx, otd, id)
}

// FindObjects returns every instance of typeName matching every given
// RelationalFilter, truncated to limit when positive.
func (m *Manager) FindObjects(ctx context.Context, typeName string, filters []types.RelationalFilter, limit int) ([]types.ObjectInstance, error) {
	otd, err := m.schema.ObjectType(typeName)
	if err != nil {
		return nil, err
	}
	ids, err := m.relational.FindObjectIDsByProperties(ctx, otd, filters)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return m.relational.GetObjectInstancesByIDs(ctx, otd, ids)
}

// DeleteObjectsCascade deletes every instance of typeName and every
// relation instance incident to one of them. Per §3, deleting an object
// type "cascades to all instances and incident relations"; this runs
// before the Schema Manager drops the type's tables/buckets, while the
// type definition (and the relation types referencing it) are still in
// the schema cache.
func (m *Manager) DeleteObjectsCascade(ctx context.Context, typeName string) error {
	otd, err := m.schema.ObjectType(typeName)
	if err != nil {
		return err
	}
	ids, err := m.relational.GetAllObjectIDsForType(ctx, otd)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := m.DeleteObject(ctx, typeName, id); err != nil {
			return err
		}
	}
	return nil
}

// deleteRelationsIncidentTo deletes every instance of rtd where id
// participates as a source (when typeName is one of rtd's source types)
// or target (when one of its target types).
func (m *Manager) deleteRelationsIncidentTo(ctx context.Context, rtd types.RelationTypeDefinition, typeName string, id uuid.UUID) error {
	toDelete := map[uuid.UUID]struct{}{}
	if containsName(rtd.SourceTypeNames, typeName) {
		rels, err := m.graph.FindRelationInstances(ctx, rtd.TypeName, &id, nil, nil, 0)
		if err != nil {
			return err
		}
		for _, r := range rels {
			toDelete[r.ID] = struct{}{}
		}
	}
	if containsName(rtd.TargetTypeNames, typeName) {
		rels, err := m.graph.FindRelationInstances(ctx, rtd.TypeName, nil, &id, nil, 0)
		if err != nil {
			return err
		}
		for _, r := range rels {
			toDelete[r.ID] = struct{}{}
		}
	}
	for relID := range toDelete {
		if err := m.DeleteRelation(ctx, rtd.TypeName, relID); err != nil {
			return err
		}
	}
	return nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// DeleteRelationsCascade deletes every instance of typeName, used before
// the Schema Manager drops the relation type's tables/buckets.
func (m *Manager) DeleteRelationsCascade(ctx context.Context, typeName string) error {
	rtd, err := m.schema.RelationType(typeName)
	if err != nil {
		return err
	}
	rels, err := m.graph.FindRelationInstances(ctx, rtd.TypeName, nil, nil, nil, 0)
	if err != nil {
		return err
	}
	for _, r := range rels {
		if err := m.DeleteRelation(ctx, typeName, r.ID); err != nil {
			return err
		}
	}
	return nil
}

// GetObject loads a single object instance by id.
func (m *Manager) GetObject(ctx context.Context, typeName string, id uuid.UUID) (*types.ObjectInstance, error) {
	otd, err := m.schema.ObjectType(typeName)
	if err != nil {
		return nil, err
	}
	return m.relational.GetObjectInstance(ctx, otd, id)
}

// UpsertRelation validates ri against its RTD (including that both
// endpoints exist) and writes it to the graph, plus the relational edge
// table when the RTD declares its own properties.
func (m *Manager) UpsertRelation(ctx context.Context, ri types.RelationInstance) (types.RelationInstance, error) {
	rtd, err := m.schema.RelationType(ri.RelationTypeName)
	if err != nil {
		return types.RelationInstance{}, err
	}
	if err := m.checkEndpoint(ctx, rtd.SourceTypeNames, ri.SourceObjectID, "source"); err != nil {
		return types.RelationInstance{}, err
	}
	if err := m.checkEndpoint(ctx, rtd.TargetTypeNames, ri.TargetObjectID, "target"); err != nil {
		return types.RelationInstance{}, err
	}
	if ri.ID == uuid.Nil {
		ri.ID = uuid.New()
	}
	if ri.Weight == 0 {
		ri.Weight = 1
	}
	ri.UpsertDate = time.Now().UTC()

	if err := m.graph.UpsertEdge(ctx, rtd, ri); err != nil {
		return types.RelationInstance{}, err
	}
	if len(rtd.Properties) > 0 {
		if err := m.upsertRelationProperties(ctx, rtd, ri); err != nil {
			return types.RelationInstance{}, err
		}
	}
	return ri, nil
}

// UpdateRelation mutates an existing relation's property map and
// UpsertDate in place, preserving its id. This is the first-class update
// operation the engine adds beyond its delete+recreate baseline; unlike
// UpsertRelation it fails when no relation with ri's id exists yet.
func (m *Manager) UpdateRelation(ctx context.Context, ri types.RelationInstance) (types.RelationInstance, error) {
	rtd, err := m.schema.RelationType(ri.RelationTypeName)
	if err != nil {
		return types.RelationInstance{}, err
	}
	existing, err := m.graph.GetEdge(ctx, rtd, ri.ID)
	if err != nil {
		return types.RelationInstance{}, err
	}
	if existing == nil {
		return types.RelationInstance{}, types.InstanceError("update_relation", fmt.Errorf("relation %s does not exist", ri.ID))
	}
	return m.UpsertRelation(ctx, ri)
}

// upsertRelationProperties is a seam for the relational edge-table mirror;
// kept separate from UpsertRelation so relation types without properties
// never touch the relational substrate at all.
func (m *Manager) upsertRelationProperties(ctx context.Context, rtd types.RelationTypeDefinition, ri types.RelationInstance) error {
	// The relational edge table mirrors only RTDs with declared
	// properties; schemamgr.CreateRelationType already created it.
	return m.relational.UpsertRelationInstance(ctx, rtd, ri)
}

// DeleteRelation removes ri (looked up by id) from the graph and, when
// applicable, the relational edge table.
func (m *Manager) DeleteRelation(ctx context.Context, typeName string, id uuid.UUID) error {
	rtd, err := m.schema.RelationType(typeName)
	if err != nil {
		return err
	}
	if err := m.graph.DeleteEdge(ctx, rtd, id); err != nil {
		return err
	}
	if len(rtd.Properties) > 0 {
		return m.relational.DeleteRelationInstance(ctx, rtd, id)
	}
	return nil
}

// FindRelations is the general relation lookup named find_relation_instances
// in the spec: it requires typeName whenever sourceID, targetID, or props is
// given, raising ValidationError otherwise; with neither type nor endpoints
// given it returns an empty result without touching the substrate.
func (m *Manager) FindRelations(ctx context.Context, typeName string, sourceID, targetID *uuid.UUID, props []types.RelationalFilter, limit int) ([]types.RelationInstance, error) {
	return m.graph.FindRelationInstances(ctx, typeName, sourceID, targetID, props, limit)
}

// GetRelation returns the relation instances of typeName directly
// connecting sourceID to targetID.
func (m *Manager) GetRelation(ctx context.Context, typeName string, sourceID, targetID uuid.UUID) ([]types.RelationInstance, error) {
	return m.FindRelations(ctx, typeName, &sourceID, &targetID, nil, 0)
}

// GetOutgoingRelations returns every relation of typeName for which
// objectID is the source.
func (m *Manager) GetOutgoingRelations(ctx context.Context, objectID uuid.UUID, typeName string) ([]types.RelationInstance, error) {
	return m.FindRelations(ctx, typeName, &objectID, nil, nil, 0)
}

// GetIncomingRelations returns every relation of typeName for which
// objectID is the target.
func (m *Manager) GetIncomingRelations(ctx context.Context, objectID uuid.UUID, typeName string) ([]types.RelationInstance, error) {
	return m.FindRelations(ctx, typeName, nil, &objectID, nil, 0)
}

// FindSimilar embeds queryText through ed's configured model and returns
// the limit most similar objects, hydrated to full ObjectInstance records.
func (m *Manager) FindSimilar(ctx context.Context, edName, queryText string, limit int) ([]types.ObjectInstance, error) {
	ed, err := m.schema.EmbeddingDefinition(edName)
	if err != nil {
		return nil, err
	}
	otd, err := m.schema.ObjectType(ed.ObjectTypeName)
	if err != nil {
		return nil, err
	}

	modelName := ed.Model
	if modelName == "" {
		modelName = "stub"
	}
	model, err := m.models.Get(modelName)
	if err != nil {
		return nil, err
	}
	vec, err := model.Embed(ctx, queryText)
	if err != nil {
		return nil, types.EmbeddingError("find_similar", err)
	}

	matches, err := m.vector.QuerySimilar(ctx, ed, vec, vectorstore.SearchParams{TopK: limit})
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(matches))
	for i, match := range matches {
		ids[i] = match.ObjectInstanceID
	}
	return m.relational.GetObjectInstancesByIDs(ctx, otd, ids)
}

// SearchSimilarObjects finds the objects of typeName most similar to
// objectID, searching only the embedding definitions whose source property
// is named in searchProperties (every ED targeting typeName, when
// searchProperties is empty), merging and ranking by score across them.
func (m *Manager) SearchSimilarObjects(ctx context.Context, objectID uuid.UUID, typeName string, nResults int, searchProperties []string) ([]types.ObjectInstance, error) {
	otd, err := m.schema.ObjectType(typeName)
	if err != nil {
		return nil, err
	}
	source, err := m.relational.GetObjectInstance(ctx, otd, objectID)
	if err != nil {
		return nil, err
	}

	eds, err := m.embeddingDefinitionsFor(typeName)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(searchProperties))
	for _, p := range searchProperties {
		wanted[p] = struct{}{}
	}

	best := make(map[uuid.UUID]float64)
	for _, ed := range eds {
		if len(wanted) > 0 {
			if _, ok := wanted[ed.SourcePropertyName]; !ok {
				continue
			}
		}
		raw, ok := source.Properties[ed.SourcePropertyName]
		if !ok {
			continue
		}

		modelName := ed.Model
		if modelName == "" {
			modelName = "stub"
		}
		model, err := m.models.Get(modelName)
		if err != nil {
			return nil, err
		}
		vec, err := model.Embed(ctx, fmt.Sprintf("%v", raw))
		if err != nil {
			return nil, types.EmbeddingError("search_similar_objects", err)
		}

		matches, err := m.vector.QuerySimilar(ctx, ed, vec, vectorstore.SearchParams{TopK: nResults + 1})
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			if match.ObjectInstanceID == objectID {
				continue
			}
			if cur, ok := best[match.ObjectInstanceID]; !ok || match.Score > cur {
				best[match.ObjectInstanceID] = match.Score
			}
		}
	}

	ids := make([]uuid.UUID, 0, len(best))
	for id := range best {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return best[ids[i]] > best[ids[j]] })
	if len(ids) > nResults {
		ids = ids[:nResults]
	}
	return m.relational.GetObjectInstancesByIDs(ctx, otd, ids)
}

// FindObjectsSimilarToInstance looks up sourceID's stored vector under ed
// and returns the topK most similar other objects, hydrated to full
// ObjectInstance records. The stored vector is used rather than
// re-embedding the source property, so the search reflects exactly what
// was indexed at the source's last upsert.
func (m *Manager) FindObjectsSimilarToInstance(ctx context.Context, edName string, sourceID uuid.UUID, topK int) ([]types.ObjectInstance, error) {
	ed, err := m.schema.EmbeddingDefinition(edName)
	if err != nil {
		return nil, err
	}
	otd, err := m.schema.ObjectType(ed.ObjectTypeName)
	if err != nil {
		return nil, err
	}
	source, err := m.vector.GetEmbedding(ctx, ed, sourceID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, types.InstanceError("find_objects_similar_to_instance", fmt.Errorf("instance %s has no embedding under %q", sourceID, edName))
	}

	matches, err := m.vector.QuerySimilar(ctx, ed, source.Vector, vectorstore.SearchParams{TopK: topK + 1})
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(matches))
	for _, match := range matches {
		if match.ObjectInstanceID == sourceID {
			continue
		}
		ids = append(ids, match.ObjectInstanceID)
		if len(ids) == topK {
			break
		}
	}
	return m.relational.GetObjectInstancesByIDs(ctx, otd, ids)
}

// checkEndpoint verifies the endpoint id exists as a node of one of the
// relation type's declared endpoint object types.
func (m *Manager) checkEndpoint(ctx context.Context, typeNames []string, id uuid.UUID, role string) error {
	for _, tn := range typeNames {
		otd, err := m.schema.ObjectType(tn)
		if err != nil {
			return err
		}
		ok, err := m.graph.NodeExists(ctx, otd, id)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return types.InstanceError("upsert_relation", fmt.Errorf("%s object %s does not exist as any of %v", role, id, typeNames))
}

func validateProperties(otd types.ObjectTypeDefinition, values map[string]any) error {
	declared := make(map[string]types.Property, len(otd.Properties))
	for _, p := range otd.Properties {
		declared[p.Name] = p
	}
	for name := range values {
		if _, ok := declared[name]; !ok {
			return fmt.Errorf("property %q is not declared on object type %q", name, otd.TypeName)
		}
	}
	for _, p := range otd.Properties {
		if p.Name == "id" {
			continue
		}
		v, present := values[p.Name]
		if !present || v == nil {
			if !p.IsNullable {
				return fmt.Errorf("property %q is required", p.Name)
			}
			continue
		}
		if err := checkValueType(p, v); err != nil {
			return err
		}
	}
	return nil
}

// checkValueType enforces the declared semantic type per property at write
// time. JSON-decoded inputs arrive with their natural loose Go types
// (float64 for every number), so numeric kinds accept any integral or
// floating representation that round-trips losslessly.
func checkValueType(p types.Property, v any) error {
	switch p.DataType {
	case types.TypeText:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("property %q wants TEXT, got %T", p.Name, v)
		}
	case types.TypeInteger:
		switch n := v.(type) {
		case int, int32, int64:
		case float64:
			if n != float64(int64(n)) {
				return fmt.Errorf("property %q wants INTEGER, got fractional %v", p.Name, n)
			}
		default:
			return fmt.Errorf("property %q wants INTEGER, got %T", p.Name, v)
		}
	case types.TypeFloat:
		switch v.(type) {
		case float32, float64, int, int32, int64:
		default:
			return fmt.Errorf("property %q wants FLOAT, got %T", p.Name, v)
		}
	case types.TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("property %q wants BOOLEAN, got %T", p.Name, v)
		}
	case types.TypeDateTime:
		switch t := v.(type) {
		case time.Time:
		case string:
			if _, err := time.Parse(time.RFC3339Nano, t); err != nil {
				if _, err := time.Parse(time.RFC3339, t); err != nil {
					return fmt.Errorf("property %q wants an ISO-8601 DATETIME, got %q", p.Name, t)
				}
			}
		default:
			return fmt.Errorf("property %q wants DATETIME, got %T", p.Name, v)
		}
	case types.TypeBlob:
		switch v.(type) {
		case []byte, string:
		default:
			return fmt.Errorf("property %q wants BLOB, got %T", p.Name, v)
		}
	case types.TypeUUID:
		switch u := v.(type) {
		case uuid.UUID:
		case string:
			if _, err := uuid.Parse(u); err != nil {
				return fmt.Errorf("property %q wants a UUID, got %q", p.Name, u)
			}
		default:
			return fmt.Errorf("property %q wants UUID, got %T", p.Name, v)
		}
	}
	// TypeJSON accepts any value; it is the escape hatch for nested
	// structure.
	return nil
}
