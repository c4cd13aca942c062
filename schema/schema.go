package schema

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/nickyhof/viewdb/core"
)

// Schema is the per-database registry of views and the owner of the
// schema-wide lock.
//
// View lifecycle operations take the lock in shared mode only. Operations that
// change the set of views or replace a view (create, drop, reload) take it
// exclusively, so they never observe index bookkeeping half way through.
type Schema struct {
	mu            sync.RWMutex
	database      string
	db            Database
	views         map[string]*View
	nextClusterID int
}

// NewSchema creates an empty schema for database. db may be nil.
func NewSchema(database string, db Database) *Schema {
	return &Schema{
		database:      database,
		db:            db,
		views:         make(map[string]*View),
		nextClusterID: 1,
	}
}

func (s *Schema) Name() string {
	return s.database
}

func (s *Schema) Database() Database {
	return s.db
}

// AcquireSchemaReadLock takes the schema lock in shared mode.
func (s *Schema) AcquireSchemaReadLock() {
	s.mu.RLock()
}

// ReleaseSchemaReadLock releases a shared hold of the schema lock.
func (s *Schema) ReleaseSchemaReadLock() {
	s.mu.RUnlock()
}

// ValidateName checks that name can be used as a database or view name. Names
// become single path elements in storage, so they must be non-empty, must not
// contain a slash and must not be "." or "..".
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\\"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}

// CreateView registers a new view. When clusterIDs is empty a fresh cluster
// is assigned.
func (s *Schema) CreateView(cfg *core.ViewConfig, clusterIDs []int) (*View, error) {
	if err := ValidateName(cfg.Name()); err != nil {
		return nil, fmt.Errorf("view: %w", err)
	}
	if cfg.Query() == "" {
		return nil, fmt.Errorf("view %s: %w", cfg.Name(), ErrMissingQuery)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.views[cfg.Name()]; exists {
		return nil, fmt.Errorf("%w: %s.%s", ErrViewExists, s.database, cfg.Name())
	}

	if len(clusterIDs) == 0 {
		clusterIDs = []int{s.nextClusterID}
	}
	for _, id := range clusterIDs {
		s.nextClusterID = max(s.nextClusterID, id+1)
	}

	view := NewView(s, cfg, clusterIDs)
	s.views[view.Name()] = view
	return view, nil
}

// GetView returns the named view.
func (s *Schema) GetView(name string) (*View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view, ok := s.views[name]
	return view, ok
}

// DropView removes the named view.
func (s *Schema) DropView(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.views[name]; !ok {
		return fmt.Errorf("%w: %s.%s", ErrViewNotFound, s.database, name)
	}
	delete(s.views, name)
	return nil
}

// Views returns all views ordered by name.
func (s *Schema) Views() []*View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*View, 0, len(s.views))
	for _, name := range slices.Sorted(maps.Keys(s.views)) {
		out = append(out, s.views[name])
	}
	return out
}

// Reload replaces every view with the ones decoded from docs, keyed by view
// name. A view that fails to decode is left out and reported in the returned
// error; the others are loaded regardless.
func (s *Schema) Reload(docs map[string]Document) error {
	views := make(map[string]*View, len(docs))
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(docs)) {
		view, err := DecodeView(s, name, docs[name])
		if err != nil {
			viewLoadFailures.Inc()
			errs = append(errs, fmt.Errorf("load view %s.%s: %w", s.database, name, err))
			continue
		}
		views[name] = view
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.views = views
	for _, view := range views {
		for _, id := range view.class.clusterIDs {
			s.nextClusterID = max(s.nextClusterID, id+1)
		}
	}
	return errors.Join(errs...)
}
