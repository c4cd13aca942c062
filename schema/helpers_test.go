package schema

import (
	"context"
	"sync"

	"github.com/nickyhof/viewdb/core"
)

type testIndex string

func (i testIndex) Name() string { return string(i) }

type fakeLookup struct {
	indexes      map[string]Index
	classIndexes map[string][]Index
}

func newFakeLookup(names ...string) *fakeLookup {
	l := &fakeLookup{
		indexes:      make(map[string]Index),
		classIndexes: make(map[string][]Index),
	}
	for _, name := range names {
		l.indexes[name] = testIndex(name)
	}
	return l
}

func (l *fakeLookup) GetIndex(name string) (Index, bool) {
	idx, ok := l.indexes[name]
	return idx, ok
}

func (l *fakeLookup) GetClassIndexes(className string, out IndexCollection) {
	for _, idx := range l.classIndexes[className] {
		out.Add(idx)
	}
}

type fakeDatabase struct {
	counts map[string]int64
	lookup IndexLookup
}

func (db *fakeDatabase) CountView(_ context.Context, viewName string) (int64, error) {
	return db.counts[viewName], nil
}

func (db *fakeDatabase) IndexManager() IndexLookup {
	return db.lookup
}

// countingOwner records lock acquisitions so tests can check the guard
// releases on every path.
type countingOwner struct {
	mu       sync.Mutex
	acquired int
	released int
	db       Database
}

func (o *countingOwner) AcquireSchemaReadLock() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.acquired++
}

func (o *countingOwner) ReleaseSchemaReadLock() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.released++
}

func (o *countingOwner) Database() Database {
	return o.db
}

func (o *countingOwner) held() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.acquired - o.released
}

func sampleConfig() *core.ViewConfig {
	cfg := core.NewViewConfig("ActiveUsers", "SELECT FROM User WHERE active = true").
		SetUpdatable(true).
		SetUpdateIntervalSeconds(60).
		SetUpdateStrategy(core.UpdateStrategyLive).
		SetWatchClasses([]string{"User"}).
		SetOriginRidField("origin").
		SetNodes([]string{"node1", "node2"})
	cfg.AddIndex().
		AddProperty("name", core.StringType).
		AddProperty("age", core.IntType)
	return cfg
}
