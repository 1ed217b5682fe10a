package grizabella

import (
	"context"
	"path/filepath"
	"time"

	"github.com/grizabella-go/grizabella/internal/config"
	"github.com/grizabella-go/grizabella/internal/dbmanager"
	"github.com/grizabella-go/grizabella/internal/executor"
	"github.com/grizabella-go/grizabella/internal/graphstore"
	"github.com/grizabella-go/grizabella/internal/instancemgr"
	"github.com/grizabella-go/grizabella/internal/pathresolve"
	"github.com/grizabella-go/grizabella/internal/planner"
	"github.com/grizabella-go/grizabella/internal/pool"
	"github.com/grizabella-go/grizabella/internal/relational"
	"github.com/grizabella-go/grizabella/internal/schemamgr"
	"github.com/grizabella-go/grizabella/internal/telemetry"
	"github.com/grizabella-go/grizabella/internal/vectorstore"

	"github.com/google/uuid"
)

// sharedDBs is the process-wide Database Manager Factory: it lets two
// in-process callers that open the same resolved path share one DB instead
// of each acquiring (and blocking on) the same root lockfile.
var sharedDBs = dbmanager.New[*DB]()

// DB is a single logical grizabella database: the unified facade over the
// relational, vector, and graph substrates rooted at one directory.
//
// All schema and instance mutations serialize through a single writer
// connection, matching SQLite's single-writer model; ExecuteQuery borrows a
// connection from a small reader pool so concurrent queries don't queue
// behind each other.
type DB struct {
	loc  pathresolve.Locations
	lock *pool.Lockfile

	writer  *relational.Adapter
	readers *pool.Pool[*relational.Adapter]
	vector  *vectorstore.Adapter
	graph   *graphstore.Adapter

	schema    *schemamgr.Manager
	instances *instancemgr.Manager
	models    *vectorstore.ModelRegistry

	cfg          config.Config
	sampler      *telemetry.Sampler
	stopSampler  context.CancelFunc
	shutdownTele func(context.Context) error
}

// options collects Open's functional options before a DB is constructed.
type options struct {
	cfg config.Config
}

// Option configures Open.
type Option func(*options)

// WithConfig overrides the built-in default configuration.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// Open resolves nameOrPath to its substrate locations (creating them when
// createIfNotExists is true), acquires the root lockfile, opens all three
// substrate adapters, and wires the schema/instance/query layers together.
func Open(ctx context.Context, nameOrPath string, createIfNotExists bool, opts ...Option) (*DB, error) {
	o := options{cfg: *config.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := config.Validate(&o.cfg); err != nil {
		return nil, ConfigurationError("open", err)
	}

	loc, err := pathresolve.Resolve(nameOrPath, createIfNotExists)
	if err != nil {
		return nil, err
	}

	lock, err := pool.AcquireLockfile(filepath.Join(loc.Root, "grizabella.lock"))
	if err != nil {
		return nil, ConfigurationError("open", err)
	}

	writer, err := relational.Open(ctx, loc.RelationalFile)
	if err != nil {
		lock.Release()
		return nil, err
	}
	vector, err := vectorstore.Open(ctx, loc.VectorDir)
	if err != nil {
		writer.Close()
		lock.Release()
		return nil, err
	}
	graph, err := graphstore.Open(loc.GraphDir)
	if err != nil {
		vector.Close()
		writer.Close()
		lock.Release()
		return nil, err
	}

	schema, err := schemamgr.New(ctx, writer, vector, graph)
	if err != nil {
		graph.Close()
		vector.Close()
		writer.Close()
		lock.Release()
		return nil, err
	}

	models := vectorstore.NewModelRegistry()
	if o.cfg.Vector.DefaultModel != "" && o.cfg.Vector.DefaultDimensions > 0 {
		models.Register(o.cfg.Vector.DefaultModel, vectorstore.NewStubModel(o.cfg.Vector.DefaultDimensions))
	}
	instances := instancemgr.New(schema, writer, vector, graph, models)

	readerPath := loc.RelationalFile
	readers := pool.New(pool.Config{
		MaxOpen:          o.cfg.Pool.MaxOpen,
		MaxIdle:          o.cfg.Pool.MaxIdle,
		IdleTimeout:      time.Duration(o.cfg.Pool.IdleTimeoutSeconds) * time.Second,
		BreakerName:      telemetry.SubstrateRelationalReader,
		DialMaxFailures:  o.cfg.Pool.DialMaxFailures,
		DialResetTimeout: time.Duration(o.cfg.Pool.DialResetSeconds) * time.Second,
	}, func(ctx context.Context) (*relational.Adapter, error) {
		return relational.Open(ctx, readerPath)
	}, nil, func(a *relational.Adapter) error {
		return a.Close()
	})

	db := &DB{
		loc:       loc,
		lock:      lock,
		writer:    writer,
		readers:   readers,
		vector:    vector,
		graph:     graph,
		schema:    schema,
		instances: instances,
		models:    models,
		cfg:       o.cfg,
	}

	shutdownTele, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{
		ServiceName: "grizabella",
		DBRoot:      loc.Root,
	})
	if err == nil {
		db.shutdownTele = shutdownTele
		if _, metricsErr := telemetry.NewMetrics(map[string]telemetry.PoolStatsSource{
			telemetry.SubstrateRelationalReader: readers,
		}); metricsErr != nil {
			_ = shutdownTele(ctx)
			db.shutdownTele = nil
		}
	}

	samplerCtx, cancel := context.WithCancel(context.Background())
	db.sampler = telemetry.NewSampler(
		time.Duration(o.cfg.Monitor.SampleIntervalSeconds)*time.Second,
		readers.EvictIdle,
	)
	db.stopSampler = cancel
	go db.sampler.Run(samplerCtx)

	return db, nil
}

// WithDB opens a DB, runs fn, and closes it afterward regardless of fn's
// outcome, returning whichever of Open's or fn's errors occurred first.
func WithDB(ctx context.Context, nameOrPath string, createIfNotExists bool, fn func(*DB) error, opts ...Option) error {
	db, err := Open(ctx, nameOrPath, createIfNotExists, opts...)
	if err != nil {
		return err
	}
	defer db.Close(ctx)
	return fn(db)
}

// SharedHandle is a reference-counted handle to a DB shared across every
// in-process caller that resolves to the same root directory. Release must
// be called exactly once; the underlying DB is only closed once every
// SharedHandle referencing it has been released.
type SharedHandle struct {
	*DB
	handle *dbmanager.Handle[*DB]
}

// OpenShared resolves nameOrPath and returns a SharedHandle to the DB
// cached for that root, opening it only if no other in-process caller
// currently holds one. This avoids two goroutines in the same process
// racing to acquire the same root lockfile, which — being a per-process,
// not per-goroutine, primitive — would otherwise make the second caller's
// Open fail with ErrLocked.
func OpenShared(ctx context.Context, nameOrPath string, createIfNotExists bool, opts ...Option) (*SharedHandle, error) {
	loc, err := pathresolve.Resolve(nameOrPath, createIfNotExists)
	if err != nil {
		return nil, err
	}
	h, err := sharedDBs.Acquire(loc.Root, func() (*DB, error) {
		return Open(ctx, nameOrPath, createIfNotExists, opts...)
	})
	if err != nil {
		return nil, err
	}
	return &SharedHandle{DB: h.Value, handle: h}, nil
}

// Release decrements the shared reference count, closing the underlying DB
// once no other handle references it.
func (s *SharedHandle) Release(ctx context.Context) error {
	return s.handle.Release(func(db *DB) error {
		return db.Close(ctx)
	})
}

// CloseAllShared drains the process-wide shared-handle registry and closes
// every DB still cached in it, regardless of outstanding handles. Intended
// for process shutdown and test teardown.
func CloseAllShared(ctx context.Context) error {
	return sharedDBs.CleanupAll(func(db *DB) error {
		return db.Close(ctx)
	})
}

// Close releases every resource Open acquired: the sampler goroutine, the
// reader pool, the three substrate adapters, and finally the root lockfile.
func (db *DB) Close(ctx context.Context) error {
	if db.stopSampler != nil {
		db.stopSampler()
	}
	if db.shutdownTele != nil {
		_ = db.shutdownTele(ctx)
	}
	_ = db.readers.Close()
	_ = db.graph.Close()
	_ = db.vector.Close()
	err := db.writer.Close()
	_ = db.lock.Release()
	return err
}

// Config returns the validated configuration this DB was opened with.
func (db *DB) Config() config.Config { return db.cfg }

// CreateObjectType registers a new object type.
func (db *DB) CreateObjectType(ctx context.Context, otd ObjectTypeDefinition) error {
	return db.schema.CreateObjectType(ctx, otd)
}

// CreateRelationType registers a new relation type.
func (db *DB) CreateRelationType(ctx context.Context, rtd RelationTypeDefinition) error {
	return db.schema.CreateRelationType(ctx, rtd)
}

// CreateEmbeddingDefinition registers a new embedding definition.
func (db *DB) CreateEmbeddingDefinition(ctx context.Context, ed EmbeddingDefinition) error {
	return db.schema.CreateEmbeddingDefinition(ctx, ed)
}

// LoadDefinitionsFile bulk-registers every OTD/RTD/ED declared in the YAML
// document at path.
func (db *DB) LoadDefinitionsFile(ctx context.Context, path string) error {
	return db.schema.LoadDefinitionsFile(ctx, path)
}

// GetObjectType returns the registered OTD named typeName.
func (db *DB) GetObjectType(_ context.Context, typeName string) (*ObjectTypeDefinition, error) {
	otd, err := db.schema.ObjectType(typeName)
	if err != nil {
		return nil, err
	}
	return &otd, nil
}

// ListObjectTypes returns every registered OTD.
func (db *DB) ListObjectTypes(_ context.Context) ([]ObjectTypeDefinition, error) {
	return db.schema.ListObjectTypes(), nil
}

// DeleteObjectType removes typeName's registration, cascading to every
// instance of the type and every relation instance incident to one of
// them (§3), before dropping the type's relational table and graph node
// bucket.
func (db *DB) DeleteObjectType(ctx context.Context, typeName string) error {
	if err := db.instances.DeleteObjectsCascade(ctx, typeName); err != nil {
		return err
	}
	return db.schema.DeleteObjectType(ctx, typeName)
}

// GetRelationType returns the registered RTD named typeName.
func (db *DB) GetRelationType(_ context.Context, typeName string) (*RelationTypeDefinition, error) {
	rtd, err := db.schema.RelationType(typeName)
	if err != nil {
		return nil, err
	}
	return &rtd, nil
}

// DeleteRelationType removes typeName's registration, cascading to every
// instance of the relation type before dropping its relational edge table
// and graph edge buckets.
func (db *DB) DeleteRelationType(ctx context.Context, typeName string) error {
	if err := db.instances.DeleteRelationsCascade(ctx, typeName); err != nil {
		return err
	}
	return db.schema.DeleteRelationType(ctx, typeName)
}

// GetEmbeddingDefinition returns the registered ED named name.
func (db *DB) GetEmbeddingDefinition(_ context.Context, name string) (*EmbeddingDefinition, error) {
	ed, err := db.schema.EmbeddingDefinition(name)
	if err != nil {
		return nil, err
	}
	return &ed, nil
}

// UpsertObject creates or updates an object instance, recomputing any
// embeddings derived from it.
func (db *DB) UpsertObject(ctx context.Context, oi ObjectInstance) (ObjectInstance, error) {
	return db.instances.UpsertObject(ctx, oi)
}

// GetObject loads a single object instance by id.
func (db *DB) GetObject(ctx context.Context, typeName string, id uuid.UUID) (*ObjectInstance, error) {
	return db.instances.GetObject(ctx, typeName, id)
}

// DeleteObject removes an object instance and every embedding derived from it.
func (db *DB) DeleteObject(ctx context.Context, typeName string, id uuid.UUID) error {
	return db.instances.DeleteObject(ctx, typeName, id)
}

// UpsertRelation creates or overwrites a relation instance.
func (db *DB) UpsertRelation(ctx context.Context, ri RelationInstance) (RelationInstance, error) {
	return db.instances.UpsertRelation(ctx, ri)
}

// UpdateRelation mutates an existing relation instance's properties.
func (db *DB) UpdateRelation(ctx context.Context, ri RelationInstance) (RelationInstance, error) {
	return db.instances.UpdateRelation(ctx, ri)
}

// DeleteRelation removes a relation instance.
func (db *DB) DeleteRelation(ctx context.Context, typeName string, id uuid.UUID) error {
	return db.instances.DeleteRelation(ctx, typeName, id)
}

// FindObjectsSimilarToInstance returns the topK object instances most
// similar to sourceID under the named embedding definition.
func (db *DB) FindObjectsSimilarToInstance(ctx context.Context, embeddingDefName string, sourceID uuid.UUID, topK int) ([]ObjectInstance, error) {
	return db.instances.FindObjectsSimilarToInstance(ctx, embeddingDefName, sourceID, topK)
}

// FindObjects returns every instance of typeName matching every given
// RelationalFilter, truncated to limit when positive.
func (db *DB) FindObjects(ctx context.Context, typeName string, filterCriteria []RelationalFilter, limit int) ([]ObjectInstance, error) {
	return db.instances.FindObjects(ctx, typeName, filterCriteria, limit)
}

// GetRelation returns the relation instances of typeName directly
// connecting sourceID to targetID.
func (db *DB) GetRelation(ctx context.Context, typeName string, sourceID, targetID uuid.UUID) ([]RelationInstance, error) {
	return db.instances.GetRelation(ctx, typeName, sourceID, targetID)
}

// GetOutgoingRelations returns every relation of typeName for which
// objectID is the source.
func (db *DB) GetOutgoingRelations(ctx context.Context, objectID uuid.UUID, typeName string) ([]RelationInstance, error) {
	return db.instances.GetOutgoingRelations(ctx, objectID, typeName)
}

// GetIncomingRelations returns every relation of typeName for which
// objectID is the target.
func (db *DB) GetIncomingRelations(ctx context.Context, objectID uuid.UUID, typeName string) ([]RelationInstance, error) {
	return db.instances.GetIncomingRelations(ctx, objectID, typeName)
}

// FindRelations is the general relation lookup (find_relation_instances):
// it requires typeName whenever sourceID, targetID, or props is given,
// returning ValidationError otherwise; with none of type/endpoints/props
// given it returns an empty result without touching the substrate.
func (db *DB) FindRelations(ctx context.Context, typeName string, sourceID, targetID *uuid.UUID, props []RelationalFilter, limit int) ([]RelationInstance, error) {
	return db.instances.FindRelations(ctx, typeName, sourceID, targetID, props, limit)
}

// FindSimilar embeds queryText through ed's configured model and returns
// the limit most similar objects.
func (db *DB) FindSimilar(ctx context.Context, edName, queryText string, limit int) ([]ObjectInstance, error) {
	return db.instances.FindSimilar(ctx, edName, queryText, limit)
}

// SearchSimilarObjects finds the objects of typeName most similar to
// objectID, searching only the embedding definitions whose source property
// is named in searchProperties (every ED targeting typeName when
// searchProperties is empty).
func (db *DB) SearchSimilarObjects(ctx context.Context, objectID uuid.UUID, typeName string, nResults int, searchProperties []string) ([]ObjectInstance, error) {
	return db.instances.SearchSimilarObjects(ctx, objectID, typeName, nResults, searchProperties)
}

// ExecuteQuery compiles and runs query, borrowing a connection from the
// reader pool so concurrent queries run without contending for the single
// writer connection.
func (db *DB) ExecuteQuery(ctx context.Context, query ComplexQuery) (QueryResult, error) {
	plan, err := planner.Plan(db.schema, query)
	if err != nil {
		return QueryResult{}, err
	}

	lease, err := db.readers.Acquire(ctx)
	if err != nil {
		return QueryResult{}, DatabaseError("execute_query", err)
	}
	defer lease.Release()

	exec := executor.New(lease.Conn, db.vector, db.graph, db.models)
	return exec.Execute(ctx, plan)
}
