// Package db ties view schemas, index managers and row counters to the Git
// backed persistence layer.
//
// Engine keeps one schema per database. Every mutation is applied to the
// in-memory view first and then written as a commit:
//
//	engine := db.NewEngine(persistence, identity)
//	cfg := core.NewViewConfig("ActiveUsers", "SELECT FROM User WHERE active = true")
//	cfg.AddIndex().AddProperty("name", core.StringType)
//	if _, err := engine.CreateView("app", cfg); err != nil {
//	    log.Fatal(err)
//	}
//	result, err := engine.RebuildIndexes("app", "ActiveUsers")
//	result.Display(os.Stdout)
//
// On startup ReloadViews rebuilds every schema from the stored documents.
//
// # Result Types
//
//   - QueryResult: listings such as ListViews and ViewIndexes
//   - CommitResult: mutations, with counts of affected views and indexes
//     and the transaction that recorded them
package db
