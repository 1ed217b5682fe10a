// Package types holds the domain model shared by every layer of the
// engine: property and definition types (OTD/RTD/ED), instance records,
// the complex-query Boolean tree, and the error categories.
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PropertyDataType is the closed set of scalar types a Property may hold.
type PropertyDataType string

const (
	TypeText     PropertyDataType = "TEXT"
	TypeInteger  PropertyDataType = "INTEGER"
	TypeFloat    PropertyDataType = "FLOAT"
	TypeBoolean  PropertyDataType = "BOOLEAN"
	TypeDateTime PropertyDataType = "DATETIME"
	TypeBlob     PropertyDataType = "BLOB"
	TypeJSON     PropertyDataType = "JSON"
	TypeUUID     PropertyDataType = "UUID"
)

// IsValid reports whether t is one of the eight known property data types.
func (t PropertyDataType) IsValid() bool {
	switch t {
	case TypeText, TypeInteger, TypeFloat, TypeBoolean, TypeDateTime, TypeBlob, TypeJSON, TypeUUID:
		return true
	default:
		return false
	}
}

// Property describes a single named, typed field of an ObjectTypeDefinition
// or RelationTypeDefinition.
type Property struct {
	Name        string           `json:"name" yaml:"name"`
	DataType    PropertyDataType `json:"data_type" yaml:"data_type"`
	IsPrimary   bool             `json:"is_primary_key,omitempty" yaml:"is_primary_key,omitempty"`
	IsNullable  bool             `json:"is_nullable,omitempty" yaml:"is_nullable,omitempty"`
	IsUnique    bool             `json:"is_unique,omitempty" yaml:"is_unique,omitempty"`
	IsIndexed   bool             `json:"is_indexed,omitempty" yaml:"is_indexed,omitempty"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
}

// Validate checks that p is internally consistent.
func (p Property) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("property: name is required")
	}
	if !p.DataType.IsValid() {
		return fmt.Errorf("property %q: data_type %q is invalid", p.Name, p.DataType)
	}
	return nil
}

// ObjectTypeDefinition (OTD) declares a named object kind and its property
// schema. Every ObjectInstance references exactly one OTD by TypeName.
type ObjectTypeDefinition struct {
	TypeName    string     `json:"type_name" yaml:"type_name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Properties  []Property `json:"properties" yaml:"properties"`
}

// Validate checks that otd is internally consistent: a non-empty name, at
// least one property, and no duplicate property names. Every instance
// carries an implicit UUID "id" primary key; an OTD may declare "id"
// explicitly, but then it must be UUID-typed, and no other property may be
// marked primary.
func (otd ObjectTypeDefinition) Validate() error {
	if otd.TypeName == "" {
		return fmt.Errorf("object type: type_name is required")
	}
	if len(otd.Properties) == 0 {
		return fmt.Errorf("object type %q: at least one property is required", otd.TypeName)
	}
	seen := make(map[string]bool, len(otd.Properties))
	for _, p := range otd.Properties {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("object type %q: %w", otd.TypeName, err)
		}
		if seen[p.Name] {
			return fmt.Errorf("object type %q: duplicate property %q", otd.TypeName, p.Name)
		}
		seen[p.Name] = true
		if p.Name == "id" && p.DataType != TypeUUID {
			return fmt.Errorf("object type %q: property \"id\" must be UUID-typed, got %s", otd.TypeName, p.DataType)
		}
		if p.IsPrimary && p.Name != "id" {
			return fmt.Errorf("object type %q: only \"id\" may be the primary key, not %q", otd.TypeName, p.Name)
		}
	}
	return nil
}

// RelationTypeDefinition (RTD) declares a named, directed relation kind
// between two object types, with an optional property schema of its own.
type RelationTypeDefinition struct {
	TypeName        string     `json:"type_name" yaml:"type_name"`
	Description     string     `json:"description,omitempty" yaml:"description,omitempty"`
	SourceTypeNames []string   `json:"source_type_names" yaml:"source_type_names"`
	TargetTypeNames []string   `json:"target_type_names" yaml:"target_type_names"`
	Properties      []Property `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Validate checks that rtd is internally consistent.
func (rtd RelationTypeDefinition) Validate() error {
	if rtd.TypeName == "" {
		return fmt.Errorf("relation type: type_name is required")
	}
	if len(rtd.SourceTypeNames) == 0 {
		return fmt.Errorf("relation type %q: at least one source_type_name is required", rtd.TypeName)
	}
	if len(rtd.TargetTypeNames) == 0 {
		return fmt.Errorf("relation type %q: at least one target_type_name is required", rtd.TypeName)
	}
	seen := make(map[string]bool, len(rtd.Properties))
	for _, p := range rtd.Properties {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("relation type %q: %w", rtd.TypeName, err)
		}
		if seen[p.Name] {
			return fmt.Errorf("relation type %q: duplicate property %q", rtd.TypeName, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// SimilarityMetric selects the distance function an EmbeddingDefinition's
// vector column is compared with.
type SimilarityMetric string

const (
	MetricCosine SimilarityMetric = "cosine"
	MetricL2     SimilarityMetric = "l2"
)

// IsValid reports whether m is a known similarity metric.
func (m SimilarityMetric) IsValid() bool {
	switch m {
	case MetricCosine, MetricL2:
		return true
	default:
		return false
	}
}

// EmbeddingDefinition (ED) declares a named vector column attached to a
// source object type and a source property of that type, plus the model
// and dimensionality used to produce the vector.
type EmbeddingDefinition struct {
	Name               string           `json:"name" yaml:"name"`
	ObjectTypeName     string           `json:"object_type_name" yaml:"object_type_name"`
	SourcePropertyName string           `json:"source_property_name" yaml:"source_property_name"`
	Model              string           `json:"model,omitempty" yaml:"model,omitempty"`
	Dimensions         int              `json:"dimensions" yaml:"dimensions"`
	Metric             SimilarityMetric `json:"metric,omitempty" yaml:"metric,omitempty"`
	Description        string           `json:"description,omitempty" yaml:"description,omitempty"`
}

// Validate checks that ed is internally consistent.
func (ed EmbeddingDefinition) Validate() error {
	if ed.Name == "" {
		return fmt.Errorf("embedding definition: name is required")
	}
	if ed.ObjectTypeName == "" {
		return fmt.Errorf("embedding definition %q: object_type_name is required", ed.Name)
	}
	if ed.SourcePropertyName == "" {
		return fmt.Errorf("embedding definition %q: source_property_name is required", ed.Name)
	}
	if ed.Dimensions <= 0 {
		return fmt.Errorf("embedding definition %q: dimensions must be positive", ed.Name)
	}
	if ed.Metric != "" && !ed.Metric.IsValid() {
		return fmt.Errorf("embedding definition %q: metric %q is invalid", ed.Name, ed.Metric)
	}
	return nil
}

// MemoryInstance is the base mixin embedded by value into every instance
// kind. ID is assigned once, at creation, and never changes; UpsertDate is
// always set by the Instance Manager, never by the caller; Weight is an
// opaque caller-supplied relevance hint in [0, 1].
type MemoryInstance struct {
	ID         uuid.UUID `json:"id"`
	Weight     float64   `json:"weight,omitempty"`
	UpsertDate time.Time `json:"upsert_date"`
}

// ObjectInstance is a single record of a given ObjectTypeDefinition.
type ObjectInstance struct {
	MemoryInstance
	ObjectTypeName string         `json:"object_type_name"`
	Properties     map[string]any `json:"properties"`
}

// RelationInstance is a single directed edge of a given
// RelationTypeDefinition, connecting a source and target ObjectInstance by
// id.
type RelationInstance struct {
	MemoryInstance
	RelationTypeName string         `json:"relation_type_name"`
	SourceObjectID   uuid.UUID      `json:"source_object_id"`
	TargetObjectID   uuid.UUID      `json:"target_object_id"`
	Properties       map[string]any `json:"properties,omitempty"`
}

// EmbeddingInstance is a single vector computed for one ObjectInstance
// under one EmbeddingDefinition. Preview holds the first 200 characters of
// the source text the vector was computed from, so similarity results can
// be skimmed without hydrating the full object.
type EmbeddingInstance struct {
	MemoryInstance
	EmbeddingDefinitionName string    `json:"embedding_definition_name"`
	ObjectInstanceID        uuid.UUID `json:"object_instance_id"`
	Vector                  []float32 `json:"vector"`
	Preview                 string    `json:"preview,omitempty"`
}
