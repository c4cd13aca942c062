package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nickyhof/viewdb/core"
	"github.com/nickyhof/viewdb/ps"
	"github.com/nickyhof/viewdb/rowcount"
	"github.com/nickyhof/viewdb/schema"
)

var testIdentity = core.Identity{Name: "test", Email: "test@test.com"}

func setupTestEngine(t *testing.T) (*ps.Persistence, *Engine) {
	t.Helper()
	persistence, err := ps.NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	engine := NewEngine(persistence, testIdentity)

	cfg := core.NewViewConfig("ActiveUsers", "SELECT FROM User WHERE active = true").
		SetUpdatable(true).
		SetWatchClasses([]string{"User"})
	cfg.AddIndex().AddProperty("name", core.StringType)
	cfg.AddIndex().AddProperty("age", core.IntType)

	if _, err := engine.CreateView("app", cfg); err != nil {
		t.Fatalf("Failed to create view: %v", err)
	}
	return persistence, engine
}

func TestEngineCreateView(t *testing.T) {
	_, engine := setupTestEngine(t)

	view, err := engine.GetView("app", "ActiveUsers")
	if err != nil {
		t.Fatalf("Failed to get view: %v", err)
	}
	if !view.IsUpdatable() {
		t.Error("Expected view to be updatable")
	}

	_, err = engine.CreateView("app", core.NewViewConfig("ActiveUsers", "SELECT FROM User"))
	if !errors.Is(err, schema.ErrViewExists) {
		t.Errorf("Expected ErrViewExists, got %v", err)
	}

	_, err = engine.GetView("app", "Missing")
	if !errors.Is(err, schema.ErrViewNotFound) {
		t.Errorf("Expected ErrViewNotFound, got %v", err)
	}
}

func TestEngineReloadRestoresIndexState(t *testing.T) {
	persistence, engine := setupTestEngine(t)

	if _, err := engine.ActivateIndexes("app", "ActiveUsers", []string{"idx1", "idx2"}); err != nil {
		t.Fatalf("Failed to activate indexes: %v", err)
	}
	if _, err := engine.InactivateIndex("app", "ActiveUsers", "idx1"); err != nil {
		t.Fatalf("Failed to inactivate index: %v", err)
	}

	reloaded := NewEngine(persistence, testIdentity)
	result, err := reloaded.ReloadViews(context.Background())
	if err != nil {
		t.Fatalf("Failed to reload views: %v", err)
	}
	if result.ViewsLoaded != 1 {
		t.Errorf("Expected 1 view loaded, got %d", result.ViewsLoaded)
	}

	view, err := reloaded.GetView("app", "ActiveUsers")
	if err != nil {
		t.Fatalf("Failed to get reloaded view: %v", err)
	}
	if got := view.ActiveIndexNames(); len(got) != 1 || got[0] != "idx2" {
		t.Errorf("Expected active [idx2], got %v", got)
	}
	if got := view.InactiveIndexNames(); len(got) != 1 || got[0] != "idx1" {
		t.Errorf("Expected inactive [idx1], got %v", got)
	}
	if got := view.WatchClasses(); len(got) != 1 || got[0] != "User" {
		t.Errorf("Expected watch classes [User], got %v", got)
	}
	if len(view.RequiredIndexesInfo()) != 2 {
		t.Errorf("Expected 2 required indexes, got %d", len(view.RequiredIndexesInfo()))
	}
}

func TestEngineReloadSkipsBrokenViews(t *testing.T) {
	persistence, _ := setupTestEngine(t)

	broken := schema.Document{"query": "SELECT FROM Foo", "indexes": []map[string]string{{"p": "NOPE"}}}
	if _, err := persistence.SaveViewMetadata("app", "Broken", broken, testIdentity); err != nil {
		t.Fatalf("Failed to save broken view: %v", err)
	}

	reloaded := NewEngine(persistence, testIdentity)
	_, err := reloaded.ReloadViews(context.Background())
	if !errors.Is(err, schema.ErrMalformedIndexType) {
		t.Errorf("Expected ErrMalformedIndexType, got %v", err)
	}
	if _, err := reloaded.GetView("app", "ActiveUsers"); err != nil {
		t.Errorf("Expected healthy view to load, got %v", err)
	}
	if _, err := reloaded.GetView("app", "Broken"); err == nil {
		t.Error("Expected broken view to be skipped")
	}
}

func TestEngineRebuildIndexes(t *testing.T) {
	_, engine := setupTestEngine(t)

	if _, err := engine.ActivateIndexes("app", "ActiveUsers", []string{"stale"}); err != nil {
		t.Fatalf("Failed to activate index: %v", err)
	}

	result, err := engine.RebuildIndexes("app", "ActiveUsers")
	if err != nil {
		t.Fatalf("Failed to rebuild indexes: %v", err)
	}
	if result.IndexesCreated != 2 || result.IndexesInactivated != 1 {
		t.Errorf("Unexpected rebuild counts %+v", result)
	}

	view, _ := engine.GetView("app", "ActiveUsers")
	active := view.ActiveIndexNames()
	if len(active) != 2 {
		t.Fatalf("Expected 2 active indexes, got %v", active)
	}
	for _, name := range active {
		if !strings.HasPrefix(name, "ActiveUsers_") {
			t.Errorf("Unexpected index name %s", name)
		}
	}
	if got := view.InactiveIndexNames(); len(got) != 1 || got[0] != "stale" {
		t.Errorf("Expected inactive [stale], got %v", got)
	}
	if got := view.ClassIndexes(); len(got) != 2 {
		t.Errorf("Expected both rebuilt indexes to resolve, got %v", got.Names())
	}

	indexes, err := engine.ViewIndexes("app", "ActiveUsers")
	if err != nil {
		t.Fatalf("Failed to list indexes: %v", err)
	}
	if indexes.RecordsRead != 3 {
		t.Errorf("Expected 3 index rows, got %d", indexes.RecordsRead)
	}
}

func TestEngineInactivateIndexes(t *testing.T) {
	_, engine := setupTestEngine(t)

	if _, err := engine.ActivateIndexes("app", "ActiveUsers", []string{"b", "a"}); err != nil {
		t.Fatalf("Failed to activate indexes: %v", err)
	}
	result, err := engine.InactivateIndexes("app", "ActiveUsers")
	if err != nil {
		t.Fatalf("Failed to inactivate indexes: %v", err)
	}
	if result.IndexesInactivated != 2 {
		t.Errorf("Expected 2 indexes inactivated, got %d", result.IndexesInactivated)
	}

	doc, err := engine.DescribeView("app", "ActiveUsers")
	if err != nil {
		t.Fatalf("Failed to describe view: %v", err)
	}
	active, _ := doc.SetField("activeIndexNames")
	if len(active) != 0 {
		t.Errorf("Expected no active indexes, got %v", active.Sorted())
	}
	inactive, _ := doc.ListField("inactiveIndexNames")
	if len(inactive) != 2 || inactive[0] != "a" || inactive[1] != "b" {
		t.Errorf("Expected inactive [a b], got %v", inactive)
	}
}

func TestEngineCountView(t *testing.T) {
	_, engine := setupTestEngine(t)
	ctx := context.Background()

	count, err := engine.CountView(ctx, "app", "ActiveUsers")
	if err != nil || count != 0 {
		t.Errorf("Expected 0 rows, got %d %v", count, err)
	}

	rows := []map[string]string{{"name": "Alice"}, {"name": "Bob"}, {"name": "Charlie"}}
	if _, err := engine.RefreshView(ctx, "app", "ActiveUsers", rows); err != nil {
		t.Fatalf("Failed to refresh view: %v", err)
	}

	count, err = engine.CountView(ctx, "app", "ActiveUsers")
	if err != nil || count != 3 {
		t.Errorf("Expected 3 rows, got %d %v", count, err)
	}
}

type fixedCounter int64

func (c fixedCounter) CountView(context.Context, string) (int64, error) {
	return int64(c), nil
}

func TestEngineCounterFactory(t *testing.T) {
	persistence, err := ps.NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}
	engine := NewEngine(persistence, testIdentity, WithCounterFactory(func(string) schema.RowCounter {
		return fixedCounter(7)
	}))
	if _, err := engine.CreateView("app", core.NewViewConfig("V", "SELECT FROM V")); err != nil {
		t.Fatalf("Failed to create view: %v", err)
	}

	count, err := engine.CountView(context.Background(), "app", "V")
	if err != nil || count != 7 {
		t.Errorf("Expected 7 rows from the custom counter, got %d %v", count, err)
	}
}

func TestEngineSQLCounter(t *testing.T) {
	persistence, err := ps.NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}
	counter, err := rowcount.Open("sqlite3", "", "app_")
	if err != nil {
		t.Fatalf("Failed to open counter: %v", err)
	}
	defer counter.Close()

	engine := NewEngine(persistence, testIdentity, WithCounterFactory(func(string) schema.RowCounter {
		return counter
	}))
	if _, err := engine.CreateView("app", core.NewViewConfig("V", "SELECT FROM V")); err != nil {
		t.Fatalf("Failed to create view: %v", err)
	}

	ctx := context.Background()
	if _, err := engine.RefreshView(ctx, "app", "V", []map[string]string{{"k": "1"}, {"k": "2"}}); err != nil {
		t.Fatalf("Failed to refresh view: %v", err)
	}

	count, err := engine.CountView(ctx, "app", "V")
	if err != nil || count != 2 {
		t.Errorf("Expected 2 rows from the SQL counter, got %d %v", count, err)
	}
}

func TestEngineDropView(t *testing.T) {
	persistence, engine := setupTestEngine(t)

	if _, err := engine.RebuildIndexes("app", "ActiveUsers"); err != nil {
		t.Fatalf("Failed to rebuild indexes: %v", err)
	}

	result, err := engine.DropView("app", "ActiveUsers")
	if err != nil {
		t.Fatalf("Failed to drop view: %v", err)
	}
	if result.ViewsDropped != 1 || result.IndexesDropped != 2 {
		t.Errorf("Unexpected drop counts %+v", result)
	}

	if _, err := persistence.GetViewMetadata("app", "ActiveUsers"); !errors.Is(err, ps.ErrNotFound) {
		t.Errorf("Expected stored view to be gone, got %v", err)
	}
	if _, err := engine.DropView("app", "ActiveUsers"); !errors.Is(err, schema.ErrViewNotFound) {
		t.Errorf("Expected ErrViewNotFound, got %v", err)
	}
}

func TestResultDisplay(t *testing.T) {
	_, engine := setupTestEngine(t)

	listing, err := engine.ListViews("app")
	if err != nil {
		t.Fatalf("Failed to list views: %v", err)
	}
	var buf bytes.Buffer
	listing.Display(&buf)
	out := buf.String()
	if !strings.Contains(out, "| ActiveUsers ") || !strings.Contains(out, "1 rows") {
		t.Errorf("Unexpected listing:\n%s", out)
	}

	buf.Reset()
	CommitResult{ViewsCreated: 1, IndexesActivated: 2}.Display(&buf)
	if !strings.HasPrefix(buf.String(), "1 view(s) created, 2 index(es) activated (") {
		t.Errorf("Unexpected commit summary %q", buf.String())
	}

	buf.Reset()
	CommitResult{}.Display(&buf)
	if !strings.HasPrefix(buf.String(), "OK (") {
		t.Errorf("Unexpected empty summary %q", buf.String())
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[float64]string{
		0.0005: "<1ms",
		0.005:  "5ms",
		0.25:   "250ms",
		2.5:    "2.5s",
		42:     "42s",
		120:    "2m",
		125:    "2m5s",
	}
	for secs, want := range cases {
		if got := formatDuration(secs); got != want {
			t.Errorf("formatDuration(%v) = %q, want %q", secs, got, want)
		}
	}
}

func TestEngineWithIdentitySharesViews(t *testing.T) {
	_, engine := setupTestEngine(t)
	alice := engine.WithIdentity(core.Identity{Name: "Alice", Email: "alice@example.com"})

	result, err := alice.ActivateIndexes("app", "ActiveUsers", []string{"idx1"})
	if err != nil {
		t.Fatalf("Failed to activate indexes: %v", err)
	}
	if result.Transaction.Author != "Alice <alice@example.com>" {
		t.Errorf("Expected commit by Alice, got %q", result.Transaction.Author)
	}

	view, _ := engine.GetView("app", "ActiveUsers")
	if !slicesEqual(view.ActiveIndexNames(), []string{"idx1"}) {
		t.Errorf("Expected activation to be visible to the original engine, got %v", view.ActiveIndexNames())
	}
}

func TestEngineIndexCommitsUseCallerIdentity(t *testing.T) {
	persistence, owner := setupTestEngine(t)
	alice := owner.WithIdentity(core.Identity{Name: "Alice", Email: "alice@example.com"})
	bob := owner.WithIdentity(core.Identity{Name: "Bob", Email: "bob@example.com"})

	before, err := persistence.Transactions()
	if err != nil {
		t.Fatalf("Failed to read history: %v", err)
	}

	if _, err := alice.RebuildIndexes("app", "ActiveUsers"); err != nil {
		t.Fatalf("Failed to rebuild indexes: %v", err)
	}
	if _, err := bob.DropView("app", "ActiveUsers"); err != nil {
		t.Fatalf("Failed to drop view: %v", err)
	}

	history, err := persistence.Transactions()
	if err != nil {
		t.Fatalf("Failed to read history: %v", err)
	}
	added := history[:len(history)-len(before)]
	if len(added) != 2 {
		t.Fatalf("Expected one commit per operation, got %+v", added)
	}
	if added[0].Author != "Bob <bob@example.com>" || !strings.HasPrefix(added[0].Message, "Dropping view") {
		t.Errorf("Unexpected drop commit %+v", added[0])
	}
	if added[1].Author != "Alice <alice@example.com>" || !strings.HasPrefix(added[1].Message, "Rebuilding indexes") {
		t.Errorf("Unexpected rebuild commit %+v", added[1])
	}
}

func TestEngineRejectsInvalidNames(t *testing.T) {
	persistence, engine := setupTestEngine(t)

	for _, name := range []string{"reports/daily", "..", ""} {
		_, err := engine.CreateView("app", core.NewViewConfig(name, "SELECT FROM Report"))
		if !errors.Is(err, schema.ErrInvalidName) {
			t.Errorf("Expected ErrInvalidName for view %q, got %v", name, err)
		}
	}
	for _, database := range []string{"a/b", ".", ""} {
		_, err := engine.CreateView(database, core.NewViewConfig("Daily", "SELECT FROM Report"))
		if !errors.Is(err, schema.ErrInvalidName) {
			t.Errorf("Expected ErrInvalidName for database %q, got %v", database, err)
		}
	}

	reloaded := NewEngine(persistence, testIdentity)
	result, err := reloaded.ReloadViews(context.Background())
	if err != nil {
		t.Fatalf("Failed to reload: %v", err)
	}
	if result.ViewsLoaded != 1 {
		t.Errorf("Expected only the valid view to be stored, got %d", result.ViewsLoaded)
	}
}

// setupDetachedEngine registers a view in memory on a persistence that
// cannot commit.
func setupDetachedEngine(t *testing.T) (*Engine, *schema.View) {
	t.Helper()
	engine := NewEngine(&ps.Persistence{}, testIdentity)
	s, err := engine.Schema("app")
	if err != nil {
		t.Fatalf("Failed to get schema: %v", err)
	}

	cfg := core.NewViewConfig("V", "SELECT FROM V")
	cfg.AddIndex().AddProperty("name", core.StringType)
	view, err := s.CreateView(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create view: %v", err)
	}
	view.AddActiveIndexes([]string{"old"})
	return engine, view
}

func TestEngineFailedSaveRestoresIndexState(t *testing.T) {
	engine, view := setupDetachedEngine(t)

	mutations := map[string]func() (CommitResult, error){
		"activate":       func() (CommitResult, error) { return engine.ActivateIndexes("app", "V", []string{"new"}) },
		"inactivate":     func() (CommitResult, error) { return engine.InactivateIndex("app", "V", "old") },
		"inactivate all": func() (CommitResult, error) { return engine.InactivateIndexes("app", "V") },
		"rebuild":        func() (CommitResult, error) { return engine.RebuildIndexes("app", "V") },
	}
	for name, mutate := range mutations {
		if _, err := mutate(); !errors.Is(err, ps.ErrNotInitialized) {
			t.Errorf("%s: expected ErrNotInitialized, got %v", name, err)
		}
		if got := view.ActiveIndexNames(); !slicesEqual(got, []string{"old"}) {
			t.Errorf("%s: expected active [old], got %v", name, got)
		}
		if got := view.InactiveIndexNames(); len(got) != 0 {
			t.Errorf("%s: expected no inactive names, got %v", name, got)
		}
	}

	db, _ := engine.database("app")
	if names := db.indexes.Names(); len(names) != 0 {
		t.Errorf("Expected no indexes from a failed rebuild, got %v", names)
	}
}

func TestEngineFailedDropKeepsView(t *testing.T) {
	engine, view := setupDetachedEngine(t)

	if _, err := engine.DropView("app", "V"); !errors.Is(err, ps.ErrNotInitialized) {
		t.Fatalf("Expected ErrNotInitialized, got %v", err)
	}
	got, err := engine.GetView("app", "V")
	if err != nil {
		t.Fatalf("Expected view to stay registered: %v", err)
	}
	if got != view {
		t.Error("Expected the same view instance")
	}
}

func slicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
