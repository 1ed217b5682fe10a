// Package grizabella is the public library API for the tri-store knowledge
// management engine: a relational store, a vector store, and a graph store
// unified behind one logical schema.
//
// The domain model lives in pkg/types so the internal substrate adapters
// can share it without importing this package; everything is re-exported
// here so callers only ever need one import.
package grizabella

import (
	"github.com/grizabella-go/grizabella/pkg/types"
)

// Domain model.
type (
	PropertyDataType       = types.PropertyDataType
	Property               = types.Property
	ObjectTypeDefinition   = types.ObjectTypeDefinition
	RelationTypeDefinition = types.RelationTypeDefinition
	SimilarityMetric       = types.SimilarityMetric
	EmbeddingDefinition    = types.EmbeddingDefinition
	MemoryInstance         = types.MemoryInstance
	ObjectInstance         = types.ObjectInstance
	RelationInstance       = types.RelationInstance
	EmbeddingInstance      = types.EmbeddingInstance
)

const (
	TypeText     = types.TypeText
	TypeInteger  = types.TypeInteger
	TypeFloat    = types.TypeFloat
	TypeBoolean  = types.TypeBoolean
	TypeDateTime = types.TypeDateTime
	TypeBlob     = types.TypeBlob
	TypeJSON     = types.TypeJSON
	TypeUUID     = types.TypeUUID

	MetricCosine = types.MetricCosine
	MetricL2     = types.MetricL2
)

// Query model.
type (
	RelationalOperator    = types.RelationalOperator
	RelationalFilter      = types.RelationalFilter
	QueryVectorSource     = types.QueryVectorSource
	RawVector             = types.RawVector
	TextToEmbed           = types.TextToEmbed
	EmbeddingSearchClause = types.EmbeddingSearchClause
	TraversalDirection    = types.TraversalDirection
	GraphTraversalClause  = types.GraphTraversalClause
	QueryComponent        = types.QueryComponent
	LogicalOperator       = types.LogicalOperator
	BooleanNode           = types.BooleanNode
	LogicalGroup          = types.LogicalGroup
	NotClause             = types.NotClause
	ComplexQuery          = types.ComplexQuery
	QueryResult           = types.QueryResult
)

const (
	OpEqual              = types.OpEqual
	OpNotEqual           = types.OpNotEqual
	OpGreaterThan        = types.OpGreaterThan
	OpGreaterThanOrEqual = types.OpGreaterThanOrEqual
	OpLessThan           = types.OpLessThan
	OpLessThanOrEqual    = types.OpLessThanOrEqual
	OpLike               = types.OpLike
	OpIn                 = types.OpIn

	DirectionOutgoing = types.DirectionOutgoing
	DirectionIncoming = types.DirectionIncoming
	DirectionBoth     = types.DirectionBoth

	LogicalAnd = types.LogicalAnd
	LogicalOr  = types.LogicalOr
)

// Error categories.
type (
	Category = types.Category
	Error    = types.Error
)

const (
	CategorySchema        = types.CategorySchema
	CategoryInstance      = types.CategoryInstance
	CategoryDatabase      = types.CategoryDatabase
	CategoryEmbedding     = types.CategoryEmbedding
	CategoryConfiguration = types.CategoryConfiguration
	CategoryValidation    = types.CategoryValidation
)

var (
	SchemaError        = types.SchemaError
	InstanceError      = types.InstanceError
	DatabaseError      = types.DatabaseError
	EmbeddingError     = types.EmbeddingError
	ConfigurationError = types.ConfigurationError
	ValidationError    = types.ValidationError
	Is                 = types.Is
)
