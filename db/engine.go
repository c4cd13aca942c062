package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nickyhof/viewdb/core"
	"github.com/nickyhof/viewdb/ps"
	"github.com/nickyhof/viewdb/schema"
)

// RowSink is implemented by counters that keep their own copy of the
// materialized rows.
type RowSink interface {
	ReplaceRows(ctx context.Context, viewName string, rows []map[string]string) error
}

// CounterFactory builds the row counter used by the views of one database.
type CounterFactory func(database string) schema.RowCounter

// database binds one schema to its index manager and row counter.
type database struct {
	schema  *schema.Schema
	indexes *ps.IndexManager
	counter schema.RowCounter
}

func (d *database) CountView(ctx context.Context, viewName string) (int64, error) {
	return d.counter.CountView(ctx, viewName)
}

func (d *database) IndexManager() schema.IndexLookup {
	if d.indexes == nil {
		return nil
	}
	return d.indexes
}

// registry is the state shared by every Engine opened on one persistence.
type registry struct {
	persistence *ps.Persistence
	counters    CounterFactory

	mu        sync.Mutex
	databases map[string]*database
}

// Engine applies view operations and records them as commits by identity.
type Engine struct {
	*registry
	identity core.Identity
}

type Option func(*Engine)

// WithCounterFactory replaces the default counter, which reads materialized
// rows from persistence.
func WithCounterFactory(factory CounterFactory) Option {
	return func(e *Engine) {
		e.counters = factory
	}
}

func NewEngine(persistence *ps.Persistence, identity core.Identity, opts ...Option) *Engine {
	engine := &Engine{
		registry: &registry{
			persistence: persistence,
			databases:   make(map[string]*database),
		},
		identity: identity,
	}
	engine.counters = func(name string) schema.RowCounter {
		return ps.NewRowCounter(persistence, name)
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

func (engine *Engine) Identity() core.Identity {
	return engine.identity
}

// WithIdentity returns an engine sharing this engine's views that records
// its commits as identity.
func (engine *Engine) WithIdentity(identity core.Identity) *Engine {
	return &Engine{registry: engine.registry, identity: identity}
}

func (engine *Engine) Persistence() *ps.Persistence {
	return engine.persistence
}

// database returns the named database, creating an empty one on first use.
func (engine *Engine) database(name string) (*database, error) {
	if err := schema.ValidateName(name); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()

	if db, ok := engine.databases[name]; ok {
		return db, nil
	}
	db := &database{
		indexes: ps.NewIndexManager(engine.persistence, name),
		counter: engine.counters(name),
	}
	db.schema = schema.NewSchema(name, db)
	engine.databases[name] = db
	return db, nil
}

// Schema returns the schema of a database
func (engine *Engine) Schema(name string) (*schema.Schema, error) {
	db, err := engine.database(name)
	if err != nil {
		return nil, err
	}
	return db.schema, nil
}

// Databases returns the names of every loaded database
func (engine *Engine) Databases() []string {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	return slices.Sorted(maps.Keys(engine.databases))
}

// ReloadViews rebuilds every schema from persistence. Views that fail to load
// are logged and skipped, and the joined failures are returned.
func (engine *Engine) ReloadViews(ctx context.Context) (CommitResult, error) {
	startTime := time.Now()

	names, err := engine.persistence.ListViewDatabases()
	if err != nil {
		return CommitResult{}, err
	}

	var (
		g      errgroup.Group
		mu     sync.Mutex
		loaded int
		errs   []error
	)
	for _, name := range names {
		db, err := engine.database(name)
		if err != nil {
			log.Printf("Skipping database %q: %v", name, err)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := db.indexes.LoadIndexes(); err != nil {
				return fmt.Errorf("load indexes of %s: %w", name, err)
			}

			docs, listErr := engine.persistence.ListViewMetadata(name)
			reloadErr := db.schema.Reload(docs)

			mu.Lock()
			defer mu.Unlock()
			loaded += len(db.schema.Views())
			for _, err := range []error{listErr, reloadErr} {
				if err != nil {
					log.Printf("Skipping views of %s: %v", name, err)
					errs = append(errs, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CommitResult{}, err
	}

	return CommitResult{
		Transaction:      engine.persistence.LatestTransaction(),
		ViewsLoaded:      loaded,
		ExecutionTimeSec: time.Since(startTime).Seconds(),
		ExecutionOps:     loaded,
	}, errors.Join(errs...)
}

func (engine *Engine) saveView(databaseName string, view *schema.View, message string) (ps.Transaction, error) {
	txn, err := engine.persistence.SaveViewMetadata(databaseName, view.Name(), view.ToStream(), engine.identity)
	if err != nil {
		return ps.Transaction{}, fmt.Errorf("%s: %w", message, err)
	}
	return txn, nil
}

// updateIndexes applies change to the index bookkeeping of a view and
// persists it. A failed save restores the bookkeeping as it was.
func (engine *Engine) updateIndexes(databaseName string, view *schema.View, message string, change func()) (ps.Transaction, error) {
	saved := view.IndexState()
	change()

	txn, err := engine.saveView(databaseName, view, message)
	if err != nil {
		view.RestoreIndexState(saved)
		return ps.Transaction{}, err
	}
	return txn, nil
}

// CreateView registers and persists a new view
func (engine *Engine) CreateView(databaseName string, cfg *core.ViewConfig) (CommitResult, error) {
	startTime := time.Now()
	db, err := engine.database(databaseName)
	if err != nil {
		return CommitResult{}, err
	}

	view, err := db.schema.CreateView(cfg, nil)
	if err != nil {
		return CommitResult{}, err
	}

	txn, err := engine.saveView(databaseName, view, "create view")
	if err != nil {
		_ = db.schema.DropView(cfg.Name())
		return CommitResult{}, err
	}

	return CommitResult{
		Transaction:      txn,
		ViewsCreated:     1,
		ExecutionTimeSec: time.Since(startTime).Seconds(),
		ExecutionOps:     1,
	}, nil
}

// GetView returns a registered view
func (engine *Engine) GetView(databaseName, viewName string) (*schema.View, error) {
	db, err := engine.database(databaseName)
	if err != nil {
		return nil, err
	}
	view, ok := db.schema.GetView(viewName)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", schema.ErrViewNotFound, databaseName, viewName)
	}
	return view, nil
}

// DropView removes a view, its materialized rows and the indexes declared on
// it in a single commit. The view stays registered if the commit fails.
func (engine *Engine) DropView(databaseName, viewName string) (CommitResult, error) {
	startTime := time.Now()
	if _, err := engine.GetView(databaseName, viewName); err != nil {
		return CommitResult{}, err
	}
	db, _ := engine.database(databaseName)

	var names []string
	for _, idx := range db.indexes.ClassIndexes(viewName) {
		names = append(names, idx.Name())
	}

	txn, err := db.indexes.DropIndexes(names, engine.identity,
		fmt.Sprintf("Dropping view %s.%s", databaseName, viewName),
		ps.ViewMetadataPaths(databaseName, viewName)...)
	if err != nil {
		return CommitResult{}, fmt.Errorf("drop view: %w", err)
	}

	if err := db.schema.DropView(viewName); err != nil {
		return CommitResult{}, err
	}

	return CommitResult{
		Transaction:      txn,
		ViewsDropped:     1,
		IndexesDropped:   len(names),
		ExecutionTimeSec: time.Since(startTime).Seconds(),
		ExecutionOps:     1 + len(names),
	}, nil
}

// ActivateIndexes marks names as active on a view and persists the result
func (engine *Engine) ActivateIndexes(databaseName, viewName string, names []string) (CommitResult, error) {
	startTime := time.Now()
	view, err := engine.GetView(databaseName, viewName)
	if err != nil {
		return CommitResult{}, err
	}

	txn, err := engine.updateIndexes(databaseName, view, "activate indexes", func() {
		view.AddActiveIndexes(names)
	})
	if err != nil {
		return CommitResult{}, err
	}

	return CommitResult{
		Transaction:      txn,
		IndexesActivated: len(names),
		ExecutionTimeSec: time.Since(startTime).Seconds(),
		ExecutionOps:     len(names),
	}, nil
}

// InactivateIndex retires a single index of a view
func (engine *Engine) InactivateIndex(databaseName, viewName, indexName string) (CommitResult, error) {
	startTime := time.Now()
	view, err := engine.GetView(databaseName, viewName)
	if err != nil {
		return CommitResult{}, err
	}

	txn, err := engine.updateIndexes(databaseName, view, "inactivate index", func() {
		view.InactivateIndex(indexName)
	})
	if err != nil {
		return CommitResult{}, err
	}

	return CommitResult{
		Transaction:        txn,
		IndexesInactivated: 1,
		ExecutionTimeSec:   time.Since(startTime).Seconds(),
		ExecutionOps:       1,
	}, nil
}

// InactivateIndexes retires every active index of a view
func (engine *Engine) InactivateIndexes(databaseName, viewName string) (CommitResult, error) {
	startTime := time.Now()
	view, err := engine.GetView(databaseName, viewName)
	if err != nil {
		return CommitResult{}, err
	}

	retired := len(view.ActiveIndexNames())
	txn, err := engine.updateIndexes(databaseName, view, "inactivate indexes", view.InactivateIndexes)
	if err != nil {
		return CommitResult{}, err
	}

	return CommitResult{
		Transaction:        txn,
		IndexesInactivated: retired,
		ExecutionTimeSec:   time.Since(startTime).Seconds(),
		ExecutionOps:       retired,
	}, nil
}

// RebuildIndexes retires the active indexes of a view and activates a fresh
// index for every required index definition. The new indexes and the view
// are written in one commit; on failure nothing changes.
func (engine *Engine) RebuildIndexes(databaseName, viewName string) (CommitResult, error) {
	startTime := time.Now()
	view, err := engine.GetView(databaseName, viewName)
	if err != nil {
		return CommitResult{}, err
	}
	db, _ := engine.database(databaseName)

	var (
		indexes []*ps.Index
		names   []string
	)
	for _, cfg := range view.RequiredIndexesInfo() {
		name := fmt.Sprintf("%s_%s", viewName, strings.ReplaceAll(uuid.NewString(), "-", ""))
		indexes = append(indexes, db.indexes.NewIndex(name, viewName, cfg.Properties(), false))
		names = append(names, name)
	}

	saved := view.IndexState()
	retired := len(view.ActiveIndexNames())
	view.InactivateIndexes()
	view.AddActiveIndexes(names)

	change, err := ps.ViewMetadataChange(databaseName, viewName, view.ToStream())
	if err == nil {
		var txn ps.Transaction
		txn, err = db.indexes.CreateIndexes(indexes, engine.identity,
			fmt.Sprintf("Rebuilding indexes of %s.%s", databaseName, viewName), change)
		if err == nil {
			return CommitResult{
				Transaction:        txn,
				IndexesCreated:     len(names),
				IndexesActivated:   len(names),
				IndexesInactivated: retired,
				ExecutionTimeSec:   time.Since(startTime).Seconds(),
				ExecutionOps:       retired + 2*len(names),
			}, nil
		}
	}

	view.RestoreIndexState(saved)
	return CommitResult{}, fmt.Errorf("rebuild indexes: %w", err)
}

// CountView returns the number of materialized rows of a view
func (engine *Engine) CountView(ctx context.Context, databaseName, viewName string) (int64, error) {
	view, err := engine.GetView(databaseName, viewName)
	if err != nil {
		return 0, err
	}
	return view.Count(ctx)
}

// DescribeView returns the network representation of a view
func (engine *Engine) DescribeView(databaseName, viewName string) (schema.Document, error) {
	view, err := engine.GetView(databaseName, viewName)
	if err != nil {
		return nil, err
	}
	return view.ToNetworkStream(), nil
}

// ViewIndexes lists the index bookkeeping of a view as a result table
func (engine *Engine) ViewIndexes(databaseName, viewName string) (QueryResult, error) {
	startTime := time.Now()
	view, err := engine.GetView(databaseName, viewName)
	if err != nil {
		return QueryResult{}, err
	}

	resolved := view.ClassIndexes()
	var data [][]string
	for _, name := range view.ActiveIndexNames() {
		state := "active"
		if _, ok := resolved[name]; !ok {
			state = "active (unresolved)"
		}
		data = append(data, []string{name, state})
	}
	for _, name := range view.InactiveIndexNames() {
		data = append(data, []string{name, "inactive"})
	}

	return QueryResult{
		Transaction:      engine.persistence.LatestTransaction(),
		Columns:          []string{"Index", "State"},
		Data:             data,
		RecordsRead:      len(data),
		ExecutionTimeSec: time.Since(startTime).Seconds(),
		ExecutionOps:     len(data),
	}, nil
}

// ListViews lists the views of a database as a result table
func (engine *Engine) ListViews(databaseName string) (QueryResult, error) {
	startTime := time.Now()
	db, err := engine.database(databaseName)
	if err != nil {
		return QueryResult{}, err
	}

	var data [][]string
	for _, view := range db.schema.Views() {
		data = append(data, []string{
			view.Name(),
			view.Query(),
			string(view.UpdateStrategy()),
			fmt.Sprintf("%d", len(view.ActiveIndexNames())),
		})
	}

	return QueryResult{
		Transaction:      engine.persistence.LatestTransaction(),
		Columns:          []string{"View", "Query", "Strategy", "Active Indexes"},
		Data:             data,
		RecordsRead:      len(data),
		ExecutionTimeSec: time.Since(startTime).Seconds(),
		ExecutionOps:     len(data),
	}, nil
}

// RefreshView replaces the materialized rows of a view
func (engine *Engine) RefreshView(ctx context.Context, databaseName, viewName string, rows []map[string]string) (CommitResult, error) {
	startTime := time.Now()
	if _, err := engine.GetView(databaseName, viewName); err != nil {
		return CommitResult{}, err
	}
	db, _ := engine.database(databaseName)

	if sink, ok := db.counter.(RowSink); ok {
		if err := sink.ReplaceRows(ctx, viewName, rows); err != nil {
			return CommitResult{}, fmt.Errorf("refresh %s.%s: %w", databaseName, viewName, err)
		}
	}

	txn, err := engine.persistence.WriteMaterializedViewData(databaseName, viewName, rows, engine.identity)
	if err != nil {
		return CommitResult{}, err
	}

	return CommitResult{
		Transaction:      txn,
		RecordsWritten:   len(rows),
		ExecutionTimeSec: time.Since(startTime).Seconds(),
		ExecutionOps:     len(rows),
	}, nil
}
