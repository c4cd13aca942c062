package viewdb

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/nickyhof/viewdb/config"
	"github.com/nickyhof/viewdb/core"
	"github.com/nickyhof/viewdb/ps"
	"github.com/nickyhof/viewdb/schema"
)

var testIdentity = core.Identity{Name: "test", Email: "test@test.com"}

// TestFunc is the signature for test functions that work with any persistence
type TestFunc func(t *testing.T, instance *Instance)

// runWithBothPersistence runs a test function with both memory and file persistence
func runWithBothPersistence(t *testing.T, testFunc TestFunc) {
	t.Run("Memory", func(t *testing.T) {
		persistence, err := ps.NewMemoryPersistence()
		if err != nil {
			t.Fatalf("Failed to initialize memory persistence: %v", err)
		}
		testFunc(t, Open(persistence))
	})

	t.Run("File", func(t *testing.T) {
		persistence, err := ps.NewFilePersistence(t.TempDir(), nil)
		if err != nil {
			t.Fatalf("Failed to initialize file persistence: %v", err)
		}
		testFunc(t, Open(persistence))
	})
}

func salesView(name string) *core.ViewConfig {
	cfg := core.NewViewConfig(name, "SELECT region, sum(amount) FROM Sale GROUP BY region").
		SetUpdateStrategy(core.UpdateStrategyBatch).
		SetUpdateIntervalSeconds(60).
		SetWatchClasses([]string{"Sale"})
	cfg.AddIndex().AddProperty("region", core.StringType)
	return cfg
}

// TestIntegrationWorkflow walks a view through its whole index lifecycle
func TestIntegrationWorkflow(t *testing.T) {
	runWithBothPersistence(t, func(t *testing.T, instance *Instance) {
		engine := instance.Engine(testIdentity)

		result, err := engine.CreateView("shop", salesView("SalesByRegion"))
		if err != nil {
			t.Fatalf("Failed to create view: %v", err)
		}
		if result.ViewsCreated != 1 {
			t.Error("Expected 1 view created")
		}

		if _, err := engine.ActivateIndexes("shop", "SalesByRegion", []string{"legacy"}); err != nil {
			t.Fatalf("Failed to activate: %v", err)
		}

		result, err = engine.RebuildIndexes("shop", "SalesByRegion")
		if err != nil {
			t.Fatalf("Failed to rebuild: %v", err)
		}
		if result.IndexesCreated != 1 || result.IndexesInactivated != 1 {
			t.Errorf("Unexpected rebuild result %+v", result)
		}

		view, err := engine.GetView("shop", "SalesByRegion")
		if err != nil {
			t.Fatalf("Failed to get view: %v", err)
		}
		if got := view.InactiveIndexNames(); len(got) != 1 || got[0] != "legacy" {
			t.Errorf("Expected legacy to be retired, got %v", got)
		}
		if resolved := view.ClassIndexes(); len(resolved) != 1 {
			t.Errorf("Expected the rebuilt index to resolve, got %v", resolved.Names())
		}

		rows := make([]map[string]string, 10)
		for i := range rows {
			rows[i] = map[string]string{"region": "r" + strconv.Itoa(i)}
		}
		if _, err := engine.RefreshView(context.Background(), "shop", "SalesByRegion", rows); err != nil {
			t.Fatalf("Failed to refresh: %v", err)
		}

		count, err := engine.CountView(context.Background(), "shop", "SalesByRegion")
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 10 {
			t.Errorf("Expected 10 rows, got %d", count)
		}

		result, err = engine.DropView("shop", "SalesByRegion")
		if err != nil {
			t.Fatalf("Failed to drop: %v", err)
		}
		if result.ViewsDropped != 1 {
			t.Error("Expected 1 view dropped")
		}
		if _, err := engine.GetView("shop", "SalesByRegion"); err == nil {
			t.Error("Expected dropped view to be gone")
		}
	})
}

// TestEnginesShareViews checks that identities only change commit authorship
func TestEnginesShareViews(t *testing.T) {
	runWithBothPersistence(t, func(t *testing.T, instance *Instance) {
		alice := instance.Engine(core.Identity{Name: "alice", Email: "alice@example.com"})
		bob := instance.Engine(core.Identity{Name: "bob", Email: "bob@example.com"})

		if _, err := alice.CreateView("shop", salesView("Sales")); err != nil {
			t.Fatalf("Failed to create view: %v", err)
		}
		if _, err := bob.ActivateIndexes("shop", "Sales", []string{"idx"}); err != nil {
			t.Fatalf("Bob could not see alice's view: %v", err)
		}

		if author := instance.Persistence.LatestTransaction().Author; author != "bob <bob@example.com>" {
			t.Errorf("Expected bob's commit, got %q", author)
		}
	})
}

func TestOpenConfigReloadsViews(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.BaseDir = t.TempDir()

	ctx := context.Background()
	first, err := OpenConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	engine := first.Engine(testIdentity)
	if _, err := engine.CreateView("shop", salesView("Sales")); err != nil {
		t.Fatalf("Failed to create view: %v", err)
	}
	if _, err := engine.ActivateIndexes("shop", "Sales", []string{"a", "b"}); err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}
	if _, err := engine.InactivateIndex("shop", "Sales", "a"); err != nil {
		t.Fatalf("Failed to inactivate: %v", err)
	}
	first.Close()

	second, err := OpenConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer second.Close()

	view, err := second.Engine(testIdentity).GetView("shop", "Sales")
	if err != nil {
		t.Fatalf("Expected view after reopen: %v", err)
	}
	if got := view.ActiveIndexNames(); len(got) != 1 || got[0] != "b" {
		t.Errorf("Expected active [b], got %v", got)
	}
	if got := view.InactiveIndexNames(); len(got) != 1 || got[0] != "a" {
		t.Errorf("Expected inactive [a], got %v", got)
	}
}

func TestOpenConfigWithSQLiteCounter(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Counter.Driver = config.CounterSQLite

	ctx := context.Background()
	instance, err := OpenConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	defer instance.Close()

	engine := instance.Engine(testIdentity)
	if _, err := engine.CreateView("shop", salesView("Sales")); err != nil {
		t.Fatalf("Failed to create view: %v", err)
	}
	rows := []map[string]string{{"region": "north"}, {"region": "south"}}
	if _, err := engine.RefreshView(ctx, "shop", "Sales", rows); err != nil {
		t.Fatalf("Failed to refresh: %v", err)
	}

	count, err := engine.CountView(ctx, "shop", "Sales")
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 rows from sqlite, got %d", count)
	}
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()

	source, _ := ps.NewMemoryPersistence()
	from := Open(source)
	engine := from.Engine(testIdentity)
	if _, err := engine.CreateView("shop", salesView("Sales")); err != nil {
		t.Fatalf("Failed to create view: %v", err)
	}
	if _, err := engine.RebuildIndexes("shop", "Sales"); err != nil {
		t.Fatalf("Failed to rebuild: %v", err)
	}

	file := filepath.Join(t.TempDir(), "views.snap")
	bundle, err := from.Export(ctx, file, nil)
	if err != nil {
		t.Fatalf("Failed to export: %v", err)
	}
	if len(bundle.Files) != 2 {
		t.Errorf("Expected view and index files, got %v", bundle.Paths())
	}

	target, _ := ps.NewMemoryPersistence()
	to := Open(target)
	if _, err := to.Import(ctx, file, nil, testIdentity); err != nil {
		t.Fatalf("Failed to import: %v", err)
	}

	view, err := to.Engine(testIdentity).GetView("shop", "Sales")
	if err != nil {
		t.Fatalf("Expected imported view: %v", err)
	}
	if resolved := view.ClassIndexes(); len(resolved) != 1 {
		t.Errorf("Expected the imported index to resolve, got %v", resolved.Names())
	}
}

func BenchmarkActivateIndexes(b *testing.B) {
	persistence, err := ps.NewMemoryPersistence()
	if err != nil {
		b.Fatalf("Failed to initialize persistence: %v", err)
	}
	engine := Open(persistence).Engine(core.Identity{Name: "benchmark", Email: "bench@test.com"})
	if _, err := engine.CreateView("bench", salesView("Sales")); err != nil {
		b.Fatalf("Failed to create view: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.ActivateIndexes("bench", "Sales", []string{"idx" + strconv.Itoa(i)}); err != nil {
			b.Fatalf("Activate error: %v", err)
		}
	}
}

func BenchmarkCollectActive(b *testing.B) {
	persistence, err := ps.NewMemoryPersistence()
	if err != nil {
		b.Fatalf("Failed to initialize persistence: %v", err)
	}
	engine := Open(persistence).Engine(core.Identity{Name: "benchmark", Email: "bench@test.com"})
	if _, err := engine.CreateView("bench", salesView("Sales")); err != nil {
		b.Fatalf("Failed to create view: %v", err)
	}
	if _, err := engine.RebuildIndexes("bench", "Sales"); err != nil {
		b.Fatalf("Failed to rebuild: %v", err)
	}
	view, _ := engine.GetView("bench", "Sales")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		view.CollectClassIndexes(make(schema.IndexSet))
	}
}
