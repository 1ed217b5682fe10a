// Package rpc exposes the library API as a flat, transport-agnostic
// request/response surface: a static method table mapping method names to
// handlers that decode JSON arguments, call into [grizabella.DB], and
// encode a JSON result. It generalizes the teacher's LLM-tool-call shape
// (Definition + Handler) into a plain request/response boundary suited to
// any remote caller, not just an LLM.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/grizabella-go/grizabella/pkg/grizabella"
)

// Error is the shape returned to callers on failure; Message is always
// populated, Category mirrors grizabella.Category when the underlying
// error carries one.
type Error struct {
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
}

// Handler decodes argsJSON, performs the operation against db, and
// returns a JSON-encodable result.
type Handler func(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error)

// Dispatcher routes method names to their Handler against a bound DB.
type Dispatcher struct {
	db      *grizabella.DB
	methods map[string]Handler
}

// NewDispatcher builds a Dispatcher bound to db with the built-in method
// table.
func NewDispatcher(db *grizabella.DB) *Dispatcher {
	return &Dispatcher{db: db, methods: methodTable}
}

// Dispatch decodes method's arguments from argsJSON, invokes its handler,
// and marshals the result. An unknown method or a handler error is reported
// as an *Error rather than a Go error, so every failure mode a remote
// caller sees has the same encoding.
func (d *Dispatcher) Dispatch(ctx context.Context, method string, argsJSON []byte) ([]byte, *Error) {
	handler, ok := d.methods[method]
	if !ok {
		return nil, &Error{Message: fmt.Sprintf("unknown method %q", method)}
	}

	result, err := handler(ctx, d.db, argsJSON)
	if err != nil {
		return nil, toRPCError(err)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("encode result: %v", err)}
	}
	return out, nil
}

func toRPCError(err error) *Error {
	var category string
	for _, cat := range []grizabella.Category{
		grizabella.CategorySchema,
		grizabella.CategoryInstance,
		grizabella.CategoryDatabase,
		grizabella.CategoryEmbedding,
		grizabella.CategoryConfiguration,
		grizabella.CategoryValidation,
	} {
		if grizabella.Is(err, cat) {
			category = string(cat)
			break
		}
	}
	return &Error{Category: category, Message: err.Error()}
}

var methodTable = map[string]Handler{
	"create_object_type":               handleCreateObjectType,
	"get_object_type":                  handleGetObjectType,
	"list_object_types":                handleListObjectTypes,
	"delete_object_type":               handleDeleteObjectType,
	"create_relation_type":             handleCreateRelationType,
	"get_relation_type":                handleGetRelationType,
	"delete_relation_type":             handleDeleteRelationType,
	"create_embedding_definition":      handleCreateEmbeddingDefinition,
	"get_embedding_definition":         handleGetEmbeddingDefinition,
	"upsert_object":                    handleUpsertObject,
	"get_object":                       handleGetObject,
	"delete_object":                    handleDeleteObject,
	"find_objects":                     handleFindObjects,
	"upsert_relation":                  handleUpsertRelation,
	"add_relation":                     handleUpsertRelation,
	"update_relation":                  handleUpdateRelation,
	"delete_relation":                  handleDeleteRelation,
	"get_relation":                     handleGetRelation,
	"get_outgoing_relations":           handleGetOutgoingRelations,
	"get_incoming_relations":           handleGetIncomingRelations,
	"find_relation_instances":          handleFindRelationInstances,
	"find_objects_similar_to_instance": handleFindObjectsSimilarToInstance,
	"find_similar":                     handleFindSimilar,
	"search_similar_objects":           handleSearchSimilarObjects,
	"execute_query":                    handleExecuteQuery,
}

func decodeArgs[T any](argsJSON []byte) (T, error) {
	var v T
	if len(argsJSON) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(argsJSON, &v); err != nil {
		return v, grizabella.ValidationError("decode_args", err)
	}
	return v, nil
}

func handleCreateObjectType(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	otd, err := decodeArgs[grizabella.ObjectTypeDefinition](argsJSON)
	if err != nil {
		return nil, err
	}
	if err := db.CreateObjectType(ctx, otd); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

type typeNameArgs struct {
	TypeName string `json:"type_name"`
}

func handleGetObjectType(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	args, err := decodeArgs[typeNameArgs](argsJSON)
	if err != nil {
		return nil, err
	}
	return db.GetObjectType(ctx, args.TypeName)
}

func handleListObjectTypes(ctx context.Context, db *grizabella.DB, _ []byte) (any, error) {
	return db.ListObjectTypes(ctx)
}

func handleDeleteObjectType(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	args, err := decodeArgs[typeNameArgs](argsJSON)
	if err != nil {
		return nil, err
	}
	if err := db.DeleteObjectType(ctx, args.TypeName); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func handleCreateRelationType(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	rtd, err := decodeArgs[grizabella.RelationTypeDefinition](argsJSON)
	if err != nil {
		return nil, err
	}
	if err := db.CreateRelationType(ctx, rtd); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func handleGetRelationType(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	args, err := decodeArgs[typeNameArgs](argsJSON)
	if err != nil {
		return nil, err
	}
	return db.GetRelationType(ctx, args.TypeName)
}

func handleDeleteRelationType(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	args, err := decodeArgs[typeNameArgs](argsJSON)
	if err != nil {
		return nil, err
	}
	if err := db.DeleteRelationType(ctx, args.TypeName); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func handleCreateEmbeddingDefinition(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	ed, err := decodeArgs[grizabella.EmbeddingDefinition](argsJSON)
	if err != nil {
		return nil, err
	}
	if err := db.CreateEmbeddingDefinition(ctx, ed); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

type embeddingNameArgs struct {
	Name string `json:"name"`
}

func handleGetEmbeddingDefinition(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	args, err := decodeArgs[embeddingNameArgs](argsJSON)
	if err != nil {
		return nil, err
	}
	return db.GetEmbeddingDefinition(ctx, args.Name)
}

func handleUpsertObject(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	oi, err := decodeArgs[grizabella.ObjectInstance](argsJSON)
	if err != nil {
		return nil, err
	}
	return db.UpsertObject(ctx, oi)
}

type objectRef struct {
	TypeName string    `json:"type_name"`
	ID       uuid.UUID `json:"id"`
}

func handleGetObject(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	ref, err := decodeArgs[objectRef](argsJSON)
	if err != nil {
		return nil, err
	}
	return db.GetObject(ctx, ref.TypeName, ref.ID)
}

func handleDeleteObject(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	ref, err := decodeArgs[objectRef](argsJSON)
	if err != nil {
		return nil, err
	}
	if err := db.DeleteObject(ctx, ref.TypeName, ref.ID); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

type findObjectsArgs struct {
	TypeName       string                        `json:"type_name"`
	FilterCriteria []grizabella.RelationalFilter `json:"filter_criteria"`
	Limit          int                           `json:"limit"`
}

func handleFindObjects(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	args, err := decodeArgs[findObjectsArgs](argsJSON)
	if err != nil {
		return nil, err
	}
	return db.FindObjects(ctx, args.TypeName, args.FilterCriteria, args.Limit)
}

func handleUpsertRelation(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	ri, err := decodeArgs[grizabella.RelationInstance](argsJSON)
	if err != nil {
		return nil, err
	}
	return db.UpsertRelation(ctx, ri)
}

func handleUpdateRelation(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	ri, err := decodeArgs[grizabella.RelationInstance](argsJSON)
	if err != nil {
		return nil, err
	}
	return db.UpdateRelation(ctx, ri)
}

func handleDeleteRelation(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	ref, err := decodeArgs[objectRef](argsJSON)
	if err != nil {
		return nil, err
	}
	if err := db.DeleteRelation(ctx, ref.TypeName, ref.ID); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

type relationEndpointsArgs struct {
	TypeName string    `json:"type_name"`
	SourceID uuid.UUID `json:"source_id"`
	TargetID uuid.UUID `json:"target_id"`
}

func handleGetRelation(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	args, err := decodeArgs[relationEndpointsArgs](argsJSON)
	if err != nil {
		return nil, err
	}
	return db.GetRelation(ctx, args.TypeName, args.SourceID, args.TargetID)
}

type relationDirectionArgs struct {
	ObjectID uuid.UUID `json:"object_id"`
	TypeName string    `json:"type_name"`
}

func handleGetOutgoingRelations(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	args, err := decodeArgs[relationDirectionArgs](argsJSON)
	if err != nil {
		return nil, err
	}
	return db.GetOutgoingRelations(ctx, args.ObjectID, args.TypeName)
}

func handleGetIncomingRelations(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	args, err := decodeArgs[relationDirectionArgs](argsJSON)
	if err != nil {
		return nil, err
	}
	return db.GetIncomingRelations(ctx, args.ObjectID, args.TypeName)
}

type findRelationInstancesArgs struct {
	TypeName string                        `json:"type_name"`
	SourceID *uuid.UUID                    `json:"source_id,omitempty"`
	TargetID *uuid.UUID                    `json:"target_id,omitempty"`
	Props    []grizabella.RelationalFilter `json:"props,omitempty"`
	Limit    int                           `json:"limit"`
}

func handleFindRelationInstances(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	args, err := decodeArgs[findRelationInstancesArgs](argsJSON)
	if err != nil {
		return nil, err
	}
	return db.FindRelations(ctx, args.TypeName, args.SourceID, args.TargetID, args.Props, args.Limit)
}

type similarityArgs struct {
	EmbeddingDefinitionName string    `json:"embedding_definition_name"`
	SourceObjectID          uuid.UUID `json:"source_object_id"`
	TopK                    int       `json:"top_k"`
}

func handleFindObjectsSimilarToInstance(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	args, err := decodeArgs[similarityArgs](argsJSON)
	if err != nil {
		return nil, err
	}
	return db.FindObjectsSimilarToInstance(ctx, args.EmbeddingDefinitionName, args.SourceObjectID, args.TopK)
}

type findSimilarArgs struct {
	EmbeddingDefinitionName string `json:"embedding_definition_name"`
	QueryText               string `json:"query_text"`
	Limit                   int    `json:"limit"`

	// RetrieveFullObjects is accepted for compatibility with callers of the
	// original surface. Results are always hydrated to full objects, so
	// only true (or absent) can be honored; an explicit false is rejected.
	RetrieveFullObjects *bool `json:"retrieve_full_objects,omitempty"`
}

func handleFindSimilar(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	args, err := decodeArgs[findSimilarArgs](argsJSON)
	if err != nil {
		return nil, err
	}
	if args.RetrieveFullObjects != nil && !*args.RetrieveFullObjects {
		return nil, grizabella.ValidationError("find_similar",
			fmt.Errorf("retrieve_full_objects=false is not supported: results are always hydrated to full objects"))
	}
	return db.FindSimilar(ctx, args.EmbeddingDefinitionName, args.QueryText, args.Limit)
}

type searchSimilarObjectsArgs struct {
	ObjectID         uuid.UUID `json:"object_id"`
	TypeName         string    `json:"type_name"`
	NResults         int       `json:"n_results"`
	SearchProperties []string  `json:"search_properties,omitempty"`
}

func handleSearchSimilarObjects(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	args, err := decodeArgs[searchSimilarObjectsArgs](argsJSON)
	if err != nil {
		return nil, err
	}
	return db.SearchSimilarObjects(ctx, args.ObjectID, args.TypeName, args.NResults, args.SearchProperties)
}

func handleExecuteQuery(ctx context.Context, db *grizabella.DB, argsJSON []byte) (any, error) {
	query, err := decodeArgs[grizabella.ComplexQuery](argsJSON)
	if err != nil {
		return nil, err
	}
	return db.ExecuteQuery(ctx, query)
}
