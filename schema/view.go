package schema

import (
	"context"

	"github.com/nickyhof/viewdb/core"
)

// View is the metadata of a materialized view: its configuration plus the
// activation state of its indexes.
type View struct {
	class   *Class
	cfg     *core.ViewConfig
	indexes *IndexLifecycle
}

// NewView creates view metadata for a new view. cfg is copied, later changes
// to it are not observed by the view.
func NewView(owner Owner, cfg *core.ViewConfig, clusterIDs []int) *View {
	return &View{
		class:   newClass(owner, cfg.Name(), clusterIDs),
		cfg:     cfg.Copy(),
		indexes: NewIndexLifecycle(),
	}
}

// DecodeView rebuilds the metadata of an existing view from its stored
// document.
func DecodeView(owner Owner, name string, doc Document) (*View, error) {
	v := &View{
		class:   newClass(owner, name, nil),
		indexes: NewIndexLifecycle(),
	}
	if err := v.FromStream(doc); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *View) Name() string                        { return v.class.Name() }
func (v *View) ClusterIDs() []int                   { return v.class.ClusterIDs() }
func (v *View) Query() string                       { return v.cfg.Query() }
func (v *View) IsUpdatable() bool                   { return v.cfg.Updatable() }
func (v *View) UpdateIntervalSeconds() int          { return v.cfg.UpdateIntervalSeconds() }
func (v *View) UpdateStrategy() core.UpdateStrategy { return v.cfg.UpdateStrategy() }
func (v *View) WatchClasses() []string              { return v.cfg.WatchClasses() }
func (v *View) OriginRidField() string              { return v.cfg.OriginRidField() }
func (v *View) Nodes() []string                     { return v.cfg.Nodes() }

// RequiredIndexesInfo returns the index definitions the view requires.
func (v *View) RequiredIndexesInfo() []core.IndexConfig {
	return v.cfg.Indexes()
}

// Config returns a copy of the view configuration.
func (v *View) Config() *core.ViewConfig {
	return v.cfg.Copy()
}

// Count returns the number of rows currently materialized for the view.
func (v *View) Count(ctx context.Context) (count int64, err error) {
	v.class.withSchemaReadLock(func() {
		db := v.class.database()
		if db == nil {
			err = ErrNoDatabase
			return
		}
		count, err = db.CountView(ctx, v.Name())
	})
	return count, err
}

// AddActiveIndexes marks the named indexes as usable for query planning.
func (v *View) AddActiveIndexes(names []string) {
	v.class.withSchemaReadLock(func() {
		v.indexes.Activate(names)
	})
	indexTransitions.WithLabelValues(v.Name(), "activate").Add(float64(len(names)))
}

// InactivateIndexes takes every active index offline.
func (v *View) InactivateIndexes() {
	var n int
	v.class.withSchemaReadLock(func() {
		n = len(v.indexes.ActiveNames())
		v.indexes.DeactivateAll()
	})
	indexTransitions.WithLabelValues(v.Name(), "inactivate").Add(float64(n))
}

// InactivateIndex takes one index offline.
func (v *View) InactivateIndex(name string) {
	v.class.withSchemaReadLock(func() {
		v.indexes.Deactivate(name)
	})
	indexTransitions.WithLabelValues(v.Name(), "inactivate").Inc()
}

// IndexState is a saved copy of a view's index bookkeeping.
type IndexState struct {
	active   StringSet
	inactive []string
}

// IndexState captures the active and inactive index names.
func (v *View) IndexState() IndexState {
	active, inactive := v.indexes.snapshot()
	return IndexState{active: active, inactive: inactive}
}

// RestoreIndexState puts back bookkeeping captured by IndexState, undoing
// every lifecycle change made since.
func (v *View) RestoreIndexState(state IndexState) {
	v.class.withSchemaReadLock(func() {
		v.indexes.reset(state.active, state.inactive)
	})
}

func (v *View) ActiveIndexNames() []string {
	return v.indexes.ActiveNames()
}

func (v *View) InactiveIndexNames() []string {
	return v.indexes.InactiveNames()
}

// OverlappingIndexNames returns names that are both active and inactive.
func (v *View) OverlappingIndexNames() []string {
	return v.indexes.Overlap()
}

// ClassIndexes resolves the active indexes through the index manager.
// Stale names are skipped, and a missing index manager yields an empty set.
func (v *View) ClassIndexes() IndexSet {
	if !v.indexes.HasActive() {
		return IndexSet{}
	}
	var out IndexSet
	v.class.withSchemaReadLock(func() {
		out = v.indexes.ResolveActive(v.indexManager())
	})
	return out
}

// CollectClassIndexes adds the resolved active indexes and every index the
// index manager declares for the view's class to out.
func (v *View) CollectClassIndexes(out IndexCollection) {
	v.class.withSchemaReadLock(func() {
		v.indexes.CollectActive(v.indexManager(), v.Name(), out)
	})
}

func (v *View) indexManager() IndexLookup {
	db := v.class.database()
	if db == nil {
		return nil
	}
	return db.IndexManager()
}
