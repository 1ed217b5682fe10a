// Package executor walks a planner.PlannedClause tree bottom-up, computing
// each leaf's matching instance ids against the three substrates and
// combining them with AND/OR/NOT set algebra, before batch-materializing
// the final hydrated ObjectInstance records.
package executor

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/grizabella-go/grizabella/internal/graphstore"
	"github.com/grizabella-go/grizabella/internal/planner"
	"github.com/grizabella-go/grizabella/internal/relational"
	"github.com/grizabella-go/grizabella/internal/telemetry"
	"github.com/grizabella-go/grizabella/internal/vectorstore"
	"github.com/grizabella-go/grizabella/pkg/types"
)

// Executor evaluates planned queries against the three substrate adapters.
type Executor struct {
	relational *relational.Adapter
	vector     *vectorstore.Adapter
	graph      *graphstore.Adapter
	models     *vectorstore.ModelRegistry
}

// New constructs an Executor bound to the three substrate adapters and the
// embedding model registry used to embed TextToEmbed query sources.
func New(rel *relational.Adapter, vec *vectorstore.Adapter, graph *graphstore.Adapter, models *vectorstore.ModelRegistry) *Executor {
	return &Executor{relational: rel, vector: vec, graph: graph, models: models}
}

// idSet is an ordered set of instance ids: Order reflects ranking (e.g.
// embedding similarity) when one exists, and is nil otherwise.
type idSet struct {
	set   map[uuid.UUID]struct{}
	order []uuid.UUID // non-nil only when a ranked leaf produced this set
}

func newIDSet(ids []uuid.UUID, ranked bool) idSet {
	s := idSet{set: make(map[uuid.UUID]struct{}, len(ids))}
	for _, id := range ids {
		s.set[id] = struct{}{}
	}
	if ranked {
		s.order = ids
	}
	return s
}

func (s idSet) ids() []uuid.UUID {
	if s.order != nil {
		return s.order
	}
	out := make([]uuid.UUID, 0, len(s.set))
	for id := range s.set {
		out = append(out, id)
	}
	return out
}

// Execute evaluates plan and returns the hydrated, ordered matching
// objects. A child of an AND/OR group that fails is collected into the
// result's Errors field and contributes the empty set rather than aborting
// the whole query. An error that reaches the root of the tree (a failing
// single-leaf query or root NOT clause, a cancelled context, an unknown
// operator) is returned as Execute's error instead.
func (e *Executor) Execute(ctx context.Context, plan *planner.PlannedClause) (types.QueryResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "executor.Execute")
	defer span.End()

	// Pin one graph snapshot for the whole walk, so traversal clauses
	// evaluated at different steps never observe a half-applied write.
	ctx, done := e.graph.ReadScope(ctx)
	defer done()

	result := &execAccumulator{}
	set, err := e.eval(ctx, plan, result)
	if err != nil {
		return types.QueryResult{Errors: result.errors}, err
	}

	objects, err := e.hydrate(ctx, plan, set)
	if err != nil {
		result.errors = append(result.errors, err)
	}
	return types.QueryResult{Objects: objects, Errors: result.errors}, nil
}

type execAccumulator struct {
	errors []error
}

func (e *Executor) eval(ctx context.Context, plan *planner.PlannedClause, acc *execAccumulator) (idSet, error) {
	switch {
	case plan.IsLeaf():
		return e.evalLeaf(ctx, plan, acc)
	case plan.Not != nil:
		return e.evalNot(ctx, plan, acc)
	default:
		return e.evalGroup(ctx, plan, acc)
	}
}

// evalGroup combines its children's id sets. A child that errors
// contributes the empty set: for AND the whole group collapses to empty,
// for OR the remaining children still contribute. AND evaluates children
// left-to-right and short-circuits as soon as any child (errored or not)
// is empty.
func (e *Executor) evalGroup(ctx context.Context, plan *planner.PlannedClause, acc *execAccumulator) (idSet, error) {
	switch plan.Operator {
	case types.LogicalAnd:
		children := make([]idSet, 0, len(plan.Children))
		for _, child := range plan.Children {
			if err := ctx.Err(); err != nil {
				return idSet{}, types.DatabaseError("execute", err)
			}
			cs, err := e.eval(ctx, child, acc)
			if err != nil {
				acc.errors = append(acc.errors, err)
				return idSet{set: map[uuid.UUID]struct{}{}}, nil
			}
			if len(cs.set) == 0 {
				return idSet{set: map[uuid.UUID]struct{}{}}, nil
			}
			children = append(children, cs)
		}
		if len(children) == 0 {
			return idSet{set: map[uuid.UUID]struct{}{}}, nil
		}
		return intersect(children), nil

	case types.LogicalOr:
		children := make([]idSet, 0, len(plan.Children))
		for _, child := range plan.Children {
			if err := ctx.Err(); err != nil {
				return idSet{}, types.DatabaseError("execute", err)
			}
			cs, err := e.eval(ctx, child, acc)
			if err != nil {
				acc.errors = append(acc.errors, err)
				continue
			}
			children = append(children, cs)
		}
		if len(children) == 0 {
			return idSet{set: map[uuid.UUID]struct{}{}}, nil
		}
		return union(children), nil

	default:
		return idSet{}, types.ValidationError("execute", fmt.Errorf("unknown logical operator %q", plan.Operator))
	}
}

func (e *Executor) evalNot(ctx context.Context, plan *planner.PlannedClause, acc *execAccumulator) (idSet, error) {
	inner, err := e.eval(ctx, plan.Not, acc)
	if err != nil {
		return idSet{}, err
	}
	otd := firstObjectType(plan.Not)
	if otd == nil {
		return idSet{}, types.ValidationError("execute", fmt.Errorf("NOT clause has no resolvable object type to complement against"))
	}
	universe, err := e.relational.GetAllObjectIDsForType(ctx, *otd)
	if err != nil {
		return idSet{}, err
	}
	out := make([]uuid.UUID, 0, len(universe))
	for _, id := range universe {
		if _, excluded := inner.set[id]; !excluded {
			out = append(out, id)
		}
	}
	return newIDSet(out, false), nil
}

// firstObjectType returns the object type of the first leaf found while
// walking plan depth-first, used to establish the universe a NOT clause
// complements against.
func firstObjectType(plan *planner.PlannedClause) *types.ObjectTypeDefinition {
	if plan.IsLeaf() {
		return plan.ObjectType
	}
	if plan.Not != nil {
		return firstObjectType(plan.Not)
	}
	for _, child := range plan.Children {
		if otd := firstObjectType(child); otd != nil {
			return otd
		}
	}
	return nil
}

func (e *Executor) evalLeaf(ctx context.Context, plan *planner.PlannedClause, acc *execAccumulator) (idSet, error) {
	var base idSet
	haveBase := false

	if len(plan.RelationalFilters) > 0 {
		ids, err := e.relational.FindObjectIDsByProperties(ctx, *plan.ObjectType, plan.RelationalFilters)
		if err != nil {
			return idSet{}, err
		}
		base = newIDSet(ids, false)
		haveBase = true
	}

	if len(plan.GraphTraversals) > 0 {
		var seed []uuid.UUID
		if haveBase {
			seed = base.ids()
		} else {
			ids, err := e.relational.GetAllObjectIDsForType(ctx, *plan.ObjectType)
			if err != nil {
				return idSet{}, err
			}
			seed = ids
		}
		filtered, err := e.graph.FilterObjectIDsByRelations(ctx, seed, plan.GraphTraversals)
		if err != nil {
			return idSet{}, err
		}
		base = newIDSet(filtered, false)
		haveBase = true
	}

	// Embedding searches run last, each narrowed by whatever the previous
	// steps left. The leaf's result carries similarity order only when a
	// single embedding step drives it; a second, independent embedding step
	// forfeits the ordering guarantee.
	for _, search := range plan.EmbeddingSearches {
		vec, err := e.resolveQueryVector(ctx, search)
		if err != nil {
			return idSet{}, err
		}
		var candidateIDs []uuid.UUID
		if haveBase {
			candidateIDs = base.ids()
		}
		matches, err := e.vector.QuerySimilar(ctx, *search.Def, vec, vectorstore.SearchParams{
			TopK:         search.Clause.TopK,
			CandidateIDs: candidateIDs,
			Threshold:    search.Clause.Threshold,
			IsL2Distance: search.Clause.IsL2Distance,
		})
		if err != nil {
			return idSet{}, err
		}
		ranked := make([]uuid.UUID, len(matches))
		for i, match := range matches {
			ranked[i] = match.ObjectInstanceID
		}
		base = newIDSet(ranked, len(plan.EmbeddingSearches) == 1)
		haveBase = true
	}

	if haveBase {
		return base, nil
	}
	ids, err := e.relational.GetAllObjectIDsForType(ctx, *plan.ObjectType)
	if err != nil {
		return idSet{}, err
	}
	return newIDSet(ids, false), nil
}

func (e *Executor) resolveQueryVector(ctx context.Context, search planner.PlannedEmbeddingSearch) ([]float32, error) {
	switch src := search.Clause.Query.(type) {
	case types.RawVector:
		return src.Vector, nil
	case types.TextToEmbed:
		modelName := search.Def.Model
		if modelName == "" {
			modelName = "stub"
		}
		model, err := e.models.Get(modelName)
		if err != nil {
			return nil, err
		}
		vec, err := model.Embed(ctx, src.Text)
		if err != nil {
			return nil, types.EmbeddingError("execute", err)
		}
		return vec, nil
	default:
		return nil, types.ValidationError("execute", fmt.Errorf("unsupported query vector source %T", src))
	}
}

// hydrate loads the full ObjectInstance record for each matched id. Every
// id is hydrated against the object type of the plan's first leaf, found
// depth-first; for a tree with leaves of a single object type (the common
// case) this is exact, while ids of another type in a mixed-type tree are
// not found by that lookup and are dropped from the result.
func (e *Executor) hydrate(ctx context.Context, plan *planner.PlannedClause, set idSet) ([]types.ObjectInstance, error) {
	otd := firstObjectType(plan)
	if otd == nil {
		return nil, types.ValidationError("execute", fmt.Errorf("query has no resolvable object type to hydrate"))
	}
	return e.relational.GetObjectInstancesByIDs(ctx, *otd, set.ids())
}

func intersect(sets []idSet) idSet {
	if len(sets) == 0 {
		return idSet{set: map[uuid.UUID]struct{}{}}
	}
	smallest := sets[0]
	for _, s := range sets[1:] {
		if len(s.set) < len(smallest.set) {
			smallest = s
		}
	}
	out := make(map[uuid.UUID]struct{})
	for id := range smallest.set {
		inAll := true
		for _, s := range sets {
			if _, ok := s.set[id]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			out[id] = struct{}{}
		}
	}

	// Preserve a single ranked child's order, filtered to the intersection,
	// so an AND combined with one embedding-search leaf still returns
	// results ordered by similarity.
	var ranked []uuid.UUID
	rankedCount := 0
	for _, s := range sets {
		if s.order != nil {
			rankedCount++
			ranked = s.order
		}
	}
	if rankedCount == 1 {
		ordered := make([]uuid.UUID, 0, len(out))
		for _, id := range ranked {
			if _, ok := out[id]; ok {
				ordered = append(ordered, id)
			}
		}
		return idSet{set: out, order: ordered}
	}
	return idSet{set: out}
}

// union deduplicates across all children. An OR forfeits any child's
// similarity ordering: the branches are independent, so there is no
// single ranking the merged set could honestly claim.
func union(sets []idSet) idSet {
	out := make(map[uuid.UUID]struct{})
	for _, s := range sets {
		for id := range s.set {
			out[id] = struct{}{}
		}
	}
	return idSet{set: out}
}
