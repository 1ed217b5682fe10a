// Package planner compiles a ComplexQuery's Boolean tree into a
// PlannedClause mirror tree, validating every type, property, relation
// type, and embedding definition it references against the Schema
// Manager's cache before execution ever touches a substrate.
package planner

import (
	"fmt"

	"github.com/grizabella-go/grizabella/internal/schemamgr"
	"github.com/grizabella-go/grizabella/pkg/types"
)

// PlannedClause mirrors types.BooleanNode, but with every leaf
// resolved against the schema cache so the executor never has to look up
// a type definition mid-walk.
type PlannedClause struct {
	// Logical group fields (non-nil when this node is an AND/OR group).
	Operator types.LogicalOperator
	Children []*PlannedClause

	// NOT fields (non-nil when this node is a negation).
	Not *PlannedClause

	// Leaf fields (non-nil when this node is a query component).
	ObjectType        *types.ObjectTypeDefinition
	RelationalFilters []types.RelationalFilter
	EmbeddingSearches []PlannedEmbeddingSearch
	GraphTraversals   []types.GraphTraversalClause
}

// PlannedEmbeddingSearch is one embedding step of a leaf, with its
// EmbeddingDefinition already resolved.
type PlannedEmbeddingSearch struct {
	Def    *types.EmbeddingDefinition
	Clause types.EmbeddingSearchClause
}

// IsLeaf reports whether c is a query-component leaf rather than a
// logical group or negation.
func (c *PlannedClause) IsLeaf() bool { return c.ObjectType != nil }

// Plan compiles query against schema, returning an error that names the
// first unresolved reference it encounters. The deprecated flat
// Components shape is accepted as an implicit AND over its leaves; a
// query setting both Components and Root is rejected.
func Plan(schema *schemamgr.Manager, query types.ComplexQuery) (*PlannedClause, error) {
	root := query.Root
	if len(query.Components) > 0 {
		if root != nil {
			return nil, types.ValidationError("plan", fmt.Errorf("query sets both components and root; they are mutually exclusive"))
		}
		group := &types.LogicalGroup{Operator: types.LogicalAnd}
		for i := range query.Components {
			group.Children = append(group.Children, &query.Components[i])
		}
		root = group
	}
	if root == nil {
		return nil, types.ValidationError("plan", fmt.Errorf("query has no root clause"))
	}
	return planNode(schema, root)
}

func planNode(schema *schemamgr.Manager, node types.BooleanNode) (*PlannedClause, error) {
	switch n := node.(type) {
	case *types.LogicalGroup:
		children := make([]*PlannedClause, 0, len(n.Children))
		for _, child := range n.Children {
			pc, err := planNode(schema, child)
			if err != nil {
				return nil, err
			}
			children = append(children, pc)
		}
		return &PlannedClause{Operator: n.Operator, Children: children}, nil

	case *types.NotClause:
		inner, err := planNode(schema, n.Child)
		if err != nil {
			return nil, err
		}
		return &PlannedClause{Not: inner}, nil

	case *types.QueryComponent:
		return planComponent(schema, n)

	default:
		return nil, types.ValidationError("plan", fmt.Errorf("unknown boolean node type %T", node))
	}
}

func planComponent(schema *schemamgr.Manager, comp *types.QueryComponent) (*PlannedClause, error) {
	otd, err := schema.ObjectType(comp.ObjectTypeName)
	if err != nil {
		return nil, err
	}

	pc := &PlannedClause{
		ObjectType:        &otd,
		RelationalFilters: comp.RelationalFilters,
	}

	for _, f := range comp.RelationalFilters {
		if !propertyExists(otd, f.PropertyName) {
			return nil, types.SchemaError("plan", fmt.Errorf("object type %q has no property %q", otd.TypeName, f.PropertyName))
		}
	}

	for _, search := range comp.EmbeddingSearches {
		ed, err := schema.EmbeddingDefinition(search.EmbeddingDefinitionName)
		if err != nil {
			return nil, err
		}
		if ed.ObjectTypeName != otd.TypeName {
			return nil, types.ValidationError("plan", fmt.Errorf("embedding definition %q is defined on %q, not %q", ed.Name, ed.ObjectTypeName, otd.TypeName))
		}
		pc.EmbeddingSearches = append(pc.EmbeddingSearches, PlannedEmbeddingSearch{Def: &ed, Clause: search})
	}

	for _, t := range comp.GraphTraversals {
		if _, err := schema.RelationType(t.RelationTypeName); err != nil {
			return nil, err
		}
		if t.TargetTypeName == "" {
			return nil, types.ValidationError("plan", fmt.Errorf("graph traversal on %q is missing a target_type_name", t.RelationTypeName))
		}
		targetOTD, err := schema.ObjectType(t.TargetTypeName)
		if err != nil {
			return nil, err
		}
		for _, f := range t.TargetObjectProperties {
			if !propertyExists(targetOTD, f.PropertyName) {
				return nil, types.SchemaError("plan", fmt.Errorf("object type %q has no property %q", targetOTD.TypeName, f.PropertyName))
			}
		}
		pc.GraphTraversals = append(pc.GraphTraversals, t)
	}

	return pc, nil
}

func propertyExists(otd types.ObjectTypeDefinition, name string) bool {
	for _, p := range otd.Properties {
		if p.Name == name {
			return true
		}
	}
	return false
}
