package ps

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/nickyhof/viewdb/core"
	"github.com/nickyhof/viewdb/schema"
)

var (
	ErrIndexExists   = errors.New("index already exists")
	ErrIndexNotFound = errors.New("index not found")
)

// Index is a named index declared on a class (usually a view).
type Index struct {
	IndexName  string               `json:"name"`
	Database   string               `json:"database"`
	Class      string               `json:"class"`
	Properties []core.IndexProperty `json:"properties"`
	Unique     bool                 `json:"unique"`
}

func (idx *Index) Name() string {
	return idx.IndexName
}

// IndexManager keeps the indexes of one database and persists each change as
// a commit by the identity passed to the call.
type IndexManager struct {
	persistence *Persistence
	database    string
	indexes     map[string]*Index
	mu          sync.RWMutex
}

// NewIndexManager creates an empty index manager. Call LoadIndexes to pick up
// indexes already stored.
func NewIndexManager(persistence *Persistence, database string) *IndexManager {
	return &IndexManager{
		persistence: persistence,
		database:    database,
		indexes:     make(map[string]*Index),
	}
}

func (im *IndexManager) indexPath(name string) string {
	return fmt.Sprintf("%s/indexes/%s/%s.json", metadataRoot, im.database, name)
}

// NewIndex builds an index declaration on className without storing it.
func (im *IndexManager) NewIndex(name, className string, properties []core.IndexProperty, unique bool) *Index {
	return &Index{
		IndexName:  name,
		Database:   im.database,
		Class:      className,
		Properties: slices.Clone(properties),
		Unique:     unique,
	}
}

// CreateIndex declares and persists a new index on className
func (im *IndexManager) CreateIndex(name, className string, properties []core.IndexProperty, unique bool, identity core.Identity) (*Index, error) {
	idx := im.NewIndex(name, className, properties, unique)
	if _, err := im.CreateIndexes([]*Index{idx}, identity, fmt.Sprintf("Creating index %s.%s", im.database, name)); err != nil {
		return nil, err
	}
	return idx, nil
}

// CreateIndexes persists indexes, together with any extra changes, in one
// commit. The indexes are registered only when the commit succeeds.
func (im *IndexManager) CreateIndexes(indexes []*Index, identity core.Identity, message string, extra ...FileChange) (Transaction, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	changes := make([]FileChange, 0, len(indexes)+len(extra))
	for _, idx := range indexes {
		if _, exists := im.indexes[idx.IndexName]; exists {
			return Transaction{}, fmt.Errorf("%w: %s.%s", ErrIndexExists, im.database, idx.IndexName)
		}

		data, err := json.MarshalIndent(idx, "", "  ")
		if err != nil {
			return Transaction{}, fmt.Errorf("failed to marshal index: %w", err)
		}
		changes = append(changes, FileChange{Path: im.indexPath(idx.IndexName), Data: data})
	}
	changes = append(changes, extra...)

	txn, err := im.persistence.Commit(changes, identity, message)
	if err != nil {
		return Transaction{}, err
	}

	for _, idx := range indexes {
		im.indexes[idx.IndexName] = idx
	}
	return txn, nil
}

// Index returns the named index
func (im *IndexManager) Index(name string) (*Index, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	idx, ok := im.indexes[name]
	return idx, ok
}

// GetIndex resolves an index name to its handle
func (im *IndexManager) GetIndex(name string) (schema.Index, bool) {
	idx, ok := im.Index(name)
	if !ok {
		return nil, false
	}
	return idx, true
}

// GetClassIndexes adds every index declared on className to out
func (im *IndexManager) GetClassIndexes(className string, out schema.IndexCollection) {
	for _, idx := range im.ClassIndexes(className) {
		out.Add(idx)
	}
}

// ClassIndexes returns the indexes declared on className ordered by name
func (im *IndexManager) ClassIndexes(className string) []*Index {
	im.mu.RLock()
	defer im.mu.RUnlock()

	var out []*Index
	for _, name := range slices.Sorted(maps.Keys(im.indexes)) {
		if idx := im.indexes[name]; idx.Class == className {
			out = append(out, idx)
		}
	}
	return out
}

// Names returns every index name ordered lexically
func (im *IndexManager) Names() []string {
	im.mu.RLock()
	defer im.mu.RUnlock()

	return slices.Sorted(maps.Keys(im.indexes))
}

// DropIndex removes an index
func (im *IndexManager) DropIndex(name string, identity core.Identity) error {
	_, err := im.DropIndexes([]string{name}, identity, fmt.Sprintf("Dropping index %s.%s", im.database, name))
	return err
}

// DropIndexes deletes the named indexes, together with any extra paths, in
// one commit. The indexes are forgotten only when the commit succeeds.
func (im *IndexManager) DropIndexes(names []string, identity core.Identity, message string, extraPaths ...string) (Transaction, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	paths := make([]string, 0, len(names)+len(extraPaths))
	for _, name := range names {
		if _, exists := im.indexes[name]; !exists {
			return Transaction{}, fmt.Errorf("%w: %s.%s", ErrIndexNotFound, im.database, name)
		}
		paths = append(paths, im.indexPath(name))
	}
	paths = append(paths, extraPaths...)

	txn, err := im.persistence.DeletePathDirect(paths, identity, message)
	if err != nil {
		return Transaction{}, err
	}

	for _, name := range names {
		delete(im.indexes, name)
	}
	return txn, nil
}

// LoadIndexes replaces the in-memory indexes with the ones stored for this database
func (im *IndexManager) LoadIndexes() error {
	entries, err := im.persistence.ListEntriesDirect(fmt.Sprintf("%s/indexes/%s", metadataRoot, im.database))
	if err != nil {
		return err
	}

	loaded := make(map[string]*Index, len(entries))
	for _, entry := range entries {
		if entry.IsDir || !strings.HasSuffix(entry.Name, ".json") {
			continue
		}

		name := strings.TrimSuffix(entry.Name, ".json")
		data, err := im.persistence.ReadFileDirect(im.indexPath(name))
		if err != nil {
			return err
		}

		var idx Index
		if err := json.Unmarshal(data, &idx); err != nil {
			return fmt.Errorf("failed to unmarshal index %s.%s: %w", im.database, name, err)
		}
		loaded[idx.IndexName] = &idx
	}

	im.mu.Lock()
	im.indexes = loaded
	im.mu.Unlock()
	return nil
}
