package schema

import (
	"context"
	"maps"
	"slices"
)

// Index is a handle to an index implementation owned by the index manager.
type Index interface {
	Name() string
}

// IndexCollection receives resolved index handles.
type IndexCollection interface {
	Add(idx Index)
}

// IndexSet is a set of index handles keyed by index name.
type IndexSet map[string]Index

func (s IndexSet) Add(idx Index) {
	s[idx.Name()] = idx
}

// Names returns the index names in lexical order.
func (s IndexSet) Names() []string {
	return slices.Sorted(maps.Keys(s))
}

// IndexLookup resolves index names to handles.
type IndexLookup interface {
	// GetIndex returns the named index, or false when it does not exist.
	GetIndex(name string) (Index, bool)
	// GetClassIndexes adds every index declared on className to out.
	GetClassIndexes(className string, out IndexCollection)
}

// RowCounter counts the rows currently materialized for a view.
type RowCounter interface {
	CountView(ctx context.Context, viewName string) (int64, error)
}

// Database is the storage side a schema is attached to. IndexManager returns
// nil when no index manager is available.
type Database interface {
	RowCounter
	IndexManager() IndexLookup
}
