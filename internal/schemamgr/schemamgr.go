// Package schemamgr implements the Schema Manager: the authoritative
// in-memory cache of Object/Relation/Embedding Type Definitions and the
// only caller of the three adapters' schema methods.
package schemamgr

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/grizabella-go/grizabella/internal/graphstore"
	"github.com/grizabella-go/grizabella/internal/relational"
	"github.com/grizabella-go/grizabella/internal/vectorstore"
	"github.com/grizabella-go/grizabella/pkg/types"
)

// Manager owns the schema cache for a single logical database and fans out
// every definition change to the three substrate adapters.
type Manager struct {
	relational *relational.Adapter
	vector     *vectorstore.Adapter
	graph      *graphstore.Adapter

	mu   sync.RWMutex
	otds map[string]types.ObjectTypeDefinition
	rtds map[string]types.RelationTypeDefinition
	eds  map[string]types.EmbeddingDefinition
}

// New constructs a Manager bound to the three already-open substrate
// adapters, loading any definitions already persisted in the relational
// metadata tables into the cache.
func New(ctx context.Context, rel *relational.Adapter, vec *vectorstore.Adapter, graph *graphstore.Adapter) (*Manager, error) {
	m := &Manager{
		relational: rel,
		vector:     vec,
		graph:      graph,
		otds:       make(map[string]types.ObjectTypeDefinition),
		rtds:       make(map[string]types.RelationTypeDefinition),
		eds:        make(map[string]types.EmbeddingDefinition),
	}
	otds, err := rel.ListObjectTypes(ctx)
	if err != nil {
		return nil, err
	}
	for _, otd := range otds {
		m.otds[otd.TypeName] = otd
	}
	rtds, err := rel.ListRelationTypes(ctx)
	if err != nil {
		return nil, err
	}
	for _, rtd := range rtds {
		m.rtds[rtd.TypeName] = rtd
	}
	eds, err := rel.ListEmbeddingDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	for _, ed := range eds {
		m.eds[ed.Name] = ed
	}
	return m, nil
}

// CreateObjectType validates otd and persists it to every substrate that
// needs to know about object types (relational instance table, graph node
// bucket).
func (m *Manager) CreateObjectType(ctx context.Context, otd types.ObjectTypeDefinition) error {
	if err := otd.Validate(); err != nil {
		return types.SchemaError("create_object_type", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.relational.CreateObjectType(ctx, otd); err != nil {
		return err
	}
	if err := m.graph.CreateObjectType(ctx, otd); err != nil {
		if dropErr := m.relational.DropObjectType(ctx, otd.TypeName); dropErr != nil {
			return types.SchemaError("create_object_type", fmt.Errorf("graph projection failed (%v), and the relational compensating drop also failed: %v", err, dropErr))
		}
		return types.SchemaError("create_object_type", fmt.Errorf("graph projection failed, relational projection rolled back: %w", err))
	}
	m.otds[otd.TypeName] = otd
	return nil
}

// CreateRelationType validates rtd (including that its source/target
// object types are already known) and persists it.
func (m *Manager) CreateRelationType(ctx context.Context, rtd types.RelationTypeDefinition) error {
	if err := rtd.Validate(); err != nil {
		return types.SchemaError("create_relation_type", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range append(append([]string{}, rtd.SourceTypeNames...), rtd.TargetTypeNames...) {
		if _, ok := m.otds[t]; !ok {
			return types.SchemaError("create_relation_type", fmt.Errorf("relation type %q references undefined object type %q", rtd.TypeName, t))
		}
	}

	if err := m.relational.CreateRelationType(ctx, rtd); err != nil {
		return err
	}
	if err := m.graph.CreateRelationType(ctx, rtd); err != nil {
		if dropErr := m.relational.DropRelationType(ctx, rtd.TypeName); dropErr != nil {
			return types.SchemaError("create_relation_type", fmt.Errorf("graph projection failed (%v), and the relational compensating drop also failed: %v", err, dropErr))
		}
		return types.SchemaError("create_relation_type", fmt.Errorf("graph projection failed, relational projection rolled back: %w", err))
	}
	m.rtds[rtd.TypeName] = rtd
	return nil
}

// CreateEmbeddingDefinition validates ed (including that its object type
// and source property are already known) and persists it.
func (m *Manager) CreateEmbeddingDefinition(ctx context.Context, ed types.EmbeddingDefinition) error {
	if err := ed.Validate(); err != nil {
		return types.SchemaError("create_embedding_definition", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	otd, ok := m.otds[ed.ObjectTypeName]
	if !ok {
		return types.SchemaError("create_embedding_definition", fmt.Errorf("embedding definition %q references undefined object type %q", ed.Name, ed.ObjectTypeName))
	}
	var source *types.Property
	for i, p := range otd.Properties {
		if p.Name == ed.SourcePropertyName {
			source = &otd.Properties[i]
			break
		}
	}
	if source == nil {
		return types.SchemaError("create_embedding_definition", fmt.Errorf("embedding definition %q references undefined property %q on %q", ed.Name, ed.SourcePropertyName, ed.ObjectTypeName))
	}
	if source.DataType != types.TypeText {
		return types.SchemaError("create_embedding_definition", fmt.Errorf("embedding definition %q: source property %q must be TEXT, got %s", ed.Name, ed.SourcePropertyName, source.DataType))
	}

	if err := m.relational.CreateEmbeddingDefinition(ctx, ed); err != nil {
		return err
	}
	if err := m.vector.CreateEmbeddingDefinition(ctx, ed); err != nil {
		if dropErr := m.relational.DropEmbeddingDefinition(ctx, ed.Name); dropErr != nil {
			return types.SchemaError("create_embedding_definition", fmt.Errorf("vector projection failed (%v), and the relational compensating drop also failed: %v", err, dropErr))
		}
		return types.SchemaError("create_embedding_definition", fmt.Errorf("vector projection failed, relational projection rolled back: %w", err))
	}
	m.eds[ed.Name] = ed
	return nil
}

// ObjectType returns the cached OTD for typeName.
func (m *Manager) ObjectType(typeName string) (types.ObjectTypeDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	otd, ok := m.otds[typeName]
	if !ok {
		return types.ObjectTypeDefinition{}, types.SchemaError("object_type", fmt.Errorf("object type %q is not defined", typeName))
	}
	return otd, nil
}

// RelationType returns the cached RTD for typeName.
func (m *Manager) RelationType(typeName string) (types.RelationTypeDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rtd, ok := m.rtds[typeName]
	if !ok {
		return types.RelationTypeDefinition{}, types.SchemaError("relation_type", fmt.Errorf("relation type %q is not defined", typeName))
	}
	return rtd, nil
}

// EmbeddingDefinition returns the cached ED for name.
func (m *Manager) EmbeddingDefinition(name string) (types.EmbeddingDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ed, ok := m.eds[name]
	if !ok {
		return types.EmbeddingDefinition{}, types.SchemaError("embedding_definition", fmt.Errorf("embedding definition %q is not defined", name))
	}
	return ed, nil
}

// ListObjectTypes returns every registered OTD.
func (m *Manager) ListObjectTypes() []types.ObjectTypeDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.ObjectTypeDefinition, 0, len(m.otds))
	for _, otd := range m.otds {
		out = append(out, otd)
	}
	return out
}

// RelationTypesReferencing returns every registered RTD whose source or
// target type set names typeName, used by DeleteObjectType's caller to
// find which relation instances must be cascade-deleted first.
func (m *Manager) RelationTypesReferencing(typeName string) []types.RelationTypeDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.RelationTypeDefinition
	for _, rtd := range m.rtds {
		if containsName(rtd.SourceTypeNames, typeName) || containsName(rtd.TargetTypeNames, typeName) {
			out = append(out, rtd)
		}
	}
	return out
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// DeleteObjectType drops otd's relational table and graph node bucket and
// evicts it from the cache. Per §3, deleting an object type cascades to
// all of its instances and every relation incident to them — the caller
// (the Instance Manager, via the facade) must perform that cascade before
// calling DeleteObjectType, since the Schema Manager has no reference to
// the Instance Manager to do it itself.
func (m *Manager) DeleteObjectType(ctx context.Context, typeName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.otds[typeName]; !ok {
		return types.SchemaError("delete_object_type", fmt.Errorf("object type %q is not defined", typeName))
	}
	if err := m.graph.DropObjectType(ctx, typeName); err != nil {
		return err
	}
	if err := m.relational.DropObjectType(ctx, typeName); err != nil {
		return err
	}
	delete(m.otds, typeName)
	return nil
}

// DeleteRelationType drops rtd's relational edge table (if any) and graph
// edge buckets and evicts it from the cache. As with DeleteObjectType, the
// caller must cascade-delete every instance of this relation type first.
func (m *Manager) DeleteRelationType(ctx context.Context, typeName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rtds[typeName]; !ok {
		return types.SchemaError("delete_relation_type", fmt.Errorf("relation type %q is not defined", typeName))
	}
	if err := m.graph.DropRelationType(ctx, typeName); err != nil {
		return err
	}
	if err := m.relational.DropRelationType(ctx, typeName); err != nil {
		return err
	}
	delete(m.rtds, typeName)
	return nil
}

// DeleteEmbeddingDefinition drops ed's vector table and metadata row and
// evicts it from the cache.
func (m *Manager) DeleteEmbeddingDefinition(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.eds[name]; !ok {
		return types.SchemaError("delete_embedding_definition", fmt.Errorf("embedding definition %q is not defined", name))
	}
	if err := m.vector.DropEmbeddingDefinition(ctx, name); err != nil {
		return err
	}
	if err := m.relational.DropEmbeddingDefinition(ctx, name); err != nil {
		return err
	}
	delete(m.eds, name)
	return nil
}

// EmbeddingDefinitionsForType returns every ED whose ObjectTypeName matches
// objectTypeName, used by the Instance Manager to recompute derived
// embeddings on object upsert and delete.
func (m *Manager) EmbeddingDefinitionsForType(objectTypeName string) ([]types.EmbeddingDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.EmbeddingDefinition
	for _, ed := range m.eds {
		if ed.ObjectTypeName == objectTypeName {
			out = append(out, ed)
		}
	}
	return out, nil
}

// bootstrapFile is the shape of a declarative bulk-schema YAML document
// accepted by LoadDefinitionsFile.
type bootstrapFile struct {
	ObjectTypes   []types.ObjectTypeDefinition   `yaml:"object_types"`
	RelationTypes []types.RelationTypeDefinition `yaml:"relation_types"`
	Embeddings    []types.EmbeddingDefinition    `yaml:"embeddings"`
}

// LoadDefinitionsFile bulk-creates every OTD, RTD, and ED declared in the
// YAML document at path, in that order (object types before relation
// types that reference them, before embeddings that reference object
// types).
func (m *Manager) LoadDefinitionsFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ConfigurationError("load_definitions_file", err)
	}
	var doc bootstrapFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return types.ConfigurationError("load_definitions_file", err)
	}
	for _, otd := range doc.ObjectTypes {
		if err := m.CreateObjectType(ctx, otd); err != nil {
			return err
		}
	}
	for _, rtd := range doc.RelationTypes {
		if err := m.CreateRelationType(ctx, rtd); err != nil {
			return err
		}
	}
	for _, ed := range doc.Embeddings {
		if err := m.CreateEmbeddingDefinition(ctx, ed); err != nil {
			return err
		}
	}
	return nil
}
