package types

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestComplexQueryJSONRoundTrip(t *testing.T) {
	id := uuid.New()
	targetID := &id
	threshold := 0.1
	original := ComplexQuery{
		Root: &LogicalGroup{
			Operator: LogicalAnd,
			Children: []BooleanNode{
				&QueryComponent{
					ObjectTypeName: "Person",
					RelationalFilters: []RelationalFilter{
						{PropertyName: "name", Operator: OpEqual, Value: "Ada"},
					},
					EmbeddingSearches: []EmbeddingSearchClause{
						{
							EmbeddingDefinitionName: "bio_embedding",
							Query:                   TextToEmbed{Text: "graph database enthusiast"},
							TopK:                    5,
							Threshold:               &threshold,
							IsL2Distance:            true,
						},
					},
					GraphTraversals: []GraphTraversalClause{
						{
							RelationTypeName: "knows",
							Direction:        DirectionOutgoing,
							TargetTypeName:   "Person",
							TargetObjectID:   targetID,
							TargetObjectProperties: []RelationalFilter{
								{PropertyName: "name", Operator: OpEqual, Value: "Bob"},
							},
						},
					},
				},
				&NotClause{
					Child: &QueryComponent{ObjectTypeName: "Person"},
				},
			},
		},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded ComplexQuery
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	group, ok := decoded.Root.(*LogicalGroup)
	if !ok || group.Operator != LogicalAnd || len(group.Children) != 2 {
		t.Fatalf("decoded.Root = %+v, want a 2-child AND group", decoded.Root)
	}
	leaf, ok := group.Children[0].(*QueryComponent)
	if !ok || leaf.ObjectTypeName != "Person" {
		t.Fatalf("group.Children[0] = %+v, want a Person leaf", group.Children[0])
	}
	if len(leaf.EmbeddingSearches) != 1 {
		t.Fatalf("EmbeddingSearches = %+v, want one clause", leaf.EmbeddingSearches)
	}
	search := leaf.EmbeddingSearches[0]
	text, ok := search.Query.(TextToEmbed)
	if !ok || text.Text != "graph database enthusiast" {
		t.Fatalf("search.Query = %+v, want TextToEmbed{graph database enthusiast}", search.Query)
	}
	if search.Threshold == nil || *search.Threshold != threshold {
		t.Fatalf("search.Threshold = %v, want %v", search.Threshold, threshold)
	}
	if !search.IsL2Distance {
		t.Fatal("expected IsL2Distance to survive the round trip")
	}
	if len(leaf.GraphTraversals) != 1 || leaf.GraphTraversals[0].RelationTypeName != "knows" {
		t.Fatalf("GraphTraversals = %+v, want a single knows traversal", leaf.GraphTraversals)
	}
	if got := leaf.GraphTraversals[0].TargetObjectID; got == nil || *got != *targetID {
		t.Fatalf("TargetObjectID = %v, want %v", got, targetID)
	}

	not, ok := group.Children[1].(*NotClause)
	if !ok {
		t.Fatalf("group.Children[1] = %+v, want *NotClause", group.Children[1])
	}
	innerLeaf, ok := not.Child.(*QueryComponent)
	if !ok || innerLeaf.ObjectTypeName != "Person" {
		t.Fatalf("not.Child = %+v, want a Person leaf", not.Child)
	}
}

func TestComplexQueryLegacyComponentsRoundTrip(t *testing.T) {
	original := ComplexQuery{
		Components: []QueryComponent{
			{
				ObjectTypeName: "Paper",
				RelationalFilters: []RelationalFilter{
					{PropertyName: "year", Operator: OpEqual, Value: 2023},
				},
			},
			{ObjectTypeName: "Paper"},
		},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded ComplexQuery
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Root != nil {
		t.Fatalf("decoded.Root = %+v, want nil for a components-only query", decoded.Root)
	}
	if len(decoded.Components) != 2 || decoded.Components[0].ObjectTypeName != "Paper" {
		t.Fatalf("decoded.Components = %+v, want the two Paper leaves", decoded.Components)
	}
}
