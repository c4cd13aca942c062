// Package viewdb stores materialized view definitions and the lifecycle of
// the indexes backing them in a Git repository.
//
// Every change to a view is a Git commit, so the history of view
// definitions and index activations is available with ordinary git tooling.
//
// # Quick Start
//
//	persistence, _ := ps.NewMemoryPersistence()
//	instance := viewdb.Open(persistence)
//	engine := instance.Engine(core.Identity{Name: "App", Email: "app@example.com"})
//
//	cfg := core.NewViewConfig("ActiveUsers", "SELECT FROM User WHERE active = true")
//	cfg.AddIndex().AddProperty("name", core.StringType)
//	engine.CreateView("app", cfg)
//	engine.RebuildIndexes("app", "ActiveUsers")
//
//	result, _ := engine.ViewIndexes("app", "ActiveUsers")
//	result.Display(os.Stdout)
//
// # Index Lifecycle
//
// A view tracks which index names are active and which were retired.
// Activation only adds to the active set; inactivation moves a name to the
// append-only inactive list. The stored view document carries both, so a
// reload restores exactly the state that was committed.
//
// # Snapshots
//
// Instance.Export and Instance.Import move the stored metadata between
// repositories through local files, HTTP or S3.
package viewdb
