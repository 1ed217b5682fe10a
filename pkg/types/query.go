package types

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// RelationalOperator is the set of comparison operators a RelationalFilter
// may use against a property value.
type RelationalOperator string

const (
	OpEqual              RelationalOperator = "="
	OpNotEqual           RelationalOperator = "!="
	OpGreaterThan        RelationalOperator = ">"
	OpGreaterThanOrEqual RelationalOperator = ">="
	OpLessThan           RelationalOperator = "<"
	OpLessThanOrEqual    RelationalOperator = "<="
	OpLike               RelationalOperator = "LIKE"
	OpIn                 RelationalOperator = "IN"
)

// RelationalFilter narrows a query component to object instances whose
// named property satisfies the operator against value.
type RelationalFilter struct {
	PropertyName string             `json:"property_name"`
	Operator     RelationalOperator `json:"operator"`
	Value        any                `json:"value"`
}

// QueryVectorSource supplies the query vector for an EmbeddingSearchClause.
// It is satisfied by either a raw vector or free text to be embedded
// through the EmbeddingDefinition's configured model.
type QueryVectorSource interface {
	isQueryVectorSource()
}

// RawVector is a QueryVectorSource carrying an already-computed vector.
type RawVector struct {
	Vector []float32
}

func (RawVector) isQueryVectorSource() {}

// TextToEmbed is a QueryVectorSource carrying free text to be embedded
// through the target EmbeddingDefinition's model at execution time.
type TextToEmbed struct {
	Text string
}

func (TextToEmbed) isQueryVectorSource() {}

// EmbeddingSearchClause narrows a query component to the TopK object
// instances whose embedding under EmbeddingDefinitionName is nearest to
// Query. Threshold, when set, additionally drops matches farther than that
// distance; IsL2Distance forces Euclidean distance regardless of the
// EmbeddingDefinition's configured metric.
type EmbeddingSearchClause struct {
	EmbeddingDefinitionName string            `json:"embedding_definition_name"`
	Query                   QueryVectorSource `json:"-"`
	TopK                    int               `json:"top_k"`
	Threshold               *float64          `json:"threshold,omitempty"`
	IsL2Distance            bool              `json:"is_l2_distance,omitempty"`
}

// MarshalJSON implements json.Marshaler, tagging Query so its concrete
// RawVector/TextToEmbed type survives a round trip.
func (c EmbeddingSearchClause) MarshalJSON() ([]byte, error) {
	var queryType string
	switch c.Query.(type) {
	case RawVector:
		queryType = "raw_vector"
	case TextToEmbed:
		queryType = "text_to_embed"
	case nil:
		queryType = ""
	default:
		return nil, fmt.Errorf("grizabella: unknown query vector source %T", c.Query)
	}
	return json.Marshal(struct {
		EmbeddingDefinitionName string            `json:"embedding_definition_name"`
		QueryType               string            `json:"query_type,omitempty"`
		Query                   QueryVectorSource `json:"query,omitempty"`
		TopK                    int               `json:"top_k"`
		Threshold               *float64          `json:"threshold,omitempty"`
		IsL2Distance            bool              `json:"is_l2_distance,omitempty"`
	}{
		EmbeddingDefinitionName: c.EmbeddingDefinitionName,
		QueryType:               queryType,
		Query:                   c.Query,
		TopK:                    c.TopK,
		Threshold:               c.Threshold,
		IsL2Distance:            c.IsL2Distance,
	})
}

// UnmarshalJSON implements json.Unmarshaler for EmbeddingSearchClause.
func (c *EmbeddingSearchClause) UnmarshalJSON(data []byte) error {
	var wire struct {
		EmbeddingDefinitionName string          `json:"embedding_definition_name"`
		QueryType               string          `json:"query_type"`
		Query                   json.RawMessage `json:"query"`
		TopK                    int             `json:"top_k"`
		Threshold               *float64        `json:"threshold"`
		IsL2Distance            bool            `json:"is_l2_distance"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c.EmbeddingDefinitionName = wire.EmbeddingDefinitionName
	c.TopK = wire.TopK
	c.Threshold = wire.Threshold
	c.IsL2Distance = wire.IsL2Distance
	switch wire.QueryType {
	case "raw_vector":
		var v RawVector
		if err := json.Unmarshal(wire.Query, &v); err != nil {
			return err
		}
		c.Query = v
	case "text_to_embed":
		var v TextToEmbed
		if err := json.Unmarshal(wire.Query, &v); err != nil {
			return err
		}
		c.Query = v
	case "":
		c.Query = nil
	default:
		return fmt.Errorf("grizabella: unknown query_type %q", wire.QueryType)
	}
	return nil
}

// TraversalDirection constrains which edges a GraphTraversalClause follows.
type TraversalDirection string

const (
	DirectionOutgoing TraversalDirection = "outgoing"
	DirectionIncoming TraversalDirection = "incoming"
	DirectionBoth     TraversalDirection = "both"
)

// GraphTraversalClause narrows a query component's candidate ids to those
// with at least one matching edge of RelationTypeName, in Direction,
// reaching a node of TargetTypeName — optionally a specific
// TargetObjectID, or a node whose properties satisfy every
// TargetObjectProperties filter. A source id survives the clause iff one
// such edge+target exists; when a QueryComponent carries several clauses
// they compose by intersection (a source id must satisfy every clause).
type GraphTraversalClause struct {
	RelationTypeName       string             `json:"relation_type_name"`
	Direction              TraversalDirection `json:"direction"`
	TargetTypeName         string             `json:"target_type_name"`
	TargetObjectID         *uuid.UUID         `json:"target_object_id,omitempty"`
	TargetObjectProperties []RelationalFilter `json:"target_object_properties,omitempty"`
}

// QueryComponent is a single leaf of a ComplexQuery: all object instances
// of ObjectTypeName that satisfy every RelationalFilter, every
// EmbeddingSearchClause, and every GraphTraversalClause attached to it.
type QueryComponent struct {
	ObjectTypeName    string                  `json:"object_type_name"`
	RelationalFilters []RelationalFilter      `json:"relational_filters,omitempty"`
	EmbeddingSearches []EmbeddingSearchClause `json:"embedding_searches,omitempty"`
	GraphTraversals   []GraphTraversalClause  `json:"graph_traversals,omitempty"`
}

// LogicalOperator joins the children of a LogicalGroup.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// BooleanNode is implemented by every node of a ComplexQuery's Boolean
// tree: *LogicalGroup, *NotClause, and *QueryComponent.
type BooleanNode interface {
	isBooleanNode()
}

func (*LogicalGroup) isBooleanNode()   {}
func (*NotClause) isBooleanNode()      {}
func (*QueryComponent) isBooleanNode() {}

// LogicalGroup composes its children with a single AND/OR operator.
type LogicalGroup struct {
	Operator LogicalOperator `json:"operator"`
	Children []BooleanNode   `json:"children"`
}

// NotClause negates a single child.
type NotClause struct {
	Child BooleanNode `json:"child"`
}

// ComplexQuery is the root of a compiled Boolean-tree query. Exactly one
// of Root and Components may be set: Root is the full Boolean tree, while
// Components is the older flat form, a list of leaves combined by implicit
// AND. The planner rejects queries that set both.
type ComplexQuery struct {
	Root BooleanNode `json:"root,omitempty"`

	// Components is the deprecated flat query shape, kept for callers that
	// predate query_root. Treated as LogicalGroup{AND, Components}.
	Components []QueryComponent `json:"components,omitempty"`
}

// nodeEnvelope is the wire shape every BooleanNode round-trips through: a
// "node_type" discriminator plus the node's own fields, needed because
// encoding/json cannot unmarshal directly into an interface.
type nodeEnvelope struct {
	NodeType string          `json:"node_type"`
	Group    *LogicalGroup   `json:"group,omitempty"`
	Not      *NotClause      `json:"not,omitempty"`
	Leaf     *QueryComponent `json:"leaf,omitempty"`
}

func marshalBooleanNode(n BooleanNode) (json.RawMessage, error) {
	var env nodeEnvelope
	switch v := n.(type) {
	case *LogicalGroup:
		env = nodeEnvelope{NodeType: "group", Group: v}
	case *NotClause:
		env = nodeEnvelope{NodeType: "not", Not: v}
	case *QueryComponent:
		env = nodeEnvelope{NodeType: "leaf", Leaf: v}
	default:
		return nil, fmt.Errorf("grizabella: unknown boolean node type %T", n)
	}
	return json.Marshal(env)
}

func unmarshalBooleanNode(raw json.RawMessage) (BooleanNode, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var env nodeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	switch env.NodeType {
	case "group":
		if env.Group == nil {
			return nil, fmt.Errorf("grizabella: node_type \"group\" missing group field")
		}
		return env.Group, nil
	case "not":
		if env.Not == nil {
			return nil, fmt.Errorf("grizabella: node_type \"not\" missing not field")
		}
		return env.Not, nil
	case "leaf":
		if env.Leaf == nil {
			return nil, fmt.Errorf("grizabella: node_type \"leaf\" missing leaf field")
		}
		return env.Leaf, nil
	default:
		return nil, fmt.Errorf("grizabella: unknown node_type %q", env.NodeType)
	}
}

// MarshalJSON implements json.Marshaler, encoding Children as tagged
// nodeEnvelope values so their concrete types survive a round trip.
func (g LogicalGroup) MarshalJSON() ([]byte, error) {
	children := make([]json.RawMessage, len(g.Children))
	for i, c := range g.Children {
		raw, err := marshalBooleanNode(c)
		if err != nil {
			return nil, err
		}
		children[i] = raw
	}
	return json.Marshal(struct {
		Operator LogicalOperator   `json:"operator"`
		Children []json.RawMessage `json:"children"`
	}{Operator: g.Operator, Children: children})
}

// UnmarshalJSON implements json.Unmarshaler for LogicalGroup.
func (g *LogicalGroup) UnmarshalJSON(data []byte) error {
	var wire struct {
		Operator LogicalOperator   `json:"operator"`
		Children []json.RawMessage `json:"children"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	g.Operator = wire.Operator
	g.Children = make([]BooleanNode, len(wire.Children))
	for i, raw := range wire.Children {
		node, err := unmarshalBooleanNode(raw)
		if err != nil {
			return err
		}
		g.Children[i] = node
	}
	return nil
}

// MarshalJSON implements json.Marshaler, tagging Child so its concrete
// type survives a round trip.
func (n NotClause) MarshalJSON() ([]byte, error) {
	raw, err := marshalBooleanNode(n.Child)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Child json.RawMessage `json:"child"`
	}{Child: raw})
}

// UnmarshalJSON implements json.Unmarshaler for NotClause.
func (n *NotClause) UnmarshalJSON(data []byte) error {
	var wire struct {
		Child json.RawMessage `json:"child"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	child, err := unmarshalBooleanNode(wire.Child)
	if err != nil {
		return err
	}
	n.Child = child
	return nil
}

// MarshalJSON implements json.Marshaler for ComplexQuery, tagging Root so
// its concrete BooleanNode type survives a round trip.
func (q ComplexQuery) MarshalJSON() ([]byte, error) {
	var raw json.RawMessage
	if q.Root != nil {
		var err error
		raw, err = marshalBooleanNode(q.Root)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(struct {
		Root       json.RawMessage  `json:"root,omitempty"`
		Components []QueryComponent `json:"components,omitempty"`
	}{Root: raw, Components: q.Components})
}

// UnmarshalJSON implements json.Unmarshaler for ComplexQuery.
func (q *ComplexQuery) UnmarshalJSON(data []byte) error {
	var wire struct {
		Root       json.RawMessage  `json:"root"`
		Components []QueryComponent `json:"components"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	root, err := unmarshalBooleanNode(wire.Root)
	if err != nil {
		return err
	}
	q.Root = root
	q.Components = wire.Components
	return nil
}

// QueryResult is the outcome of executing a ComplexQuery: the hydrated
// matching objects, in result order, plus any per-component errors
// collected without aborting execution.
type QueryResult struct {
	Objects []ObjectInstance `json:"objects"`
	Errors  []error          `json:"-"`
}
