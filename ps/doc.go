// Package ps provides the persistence layer for viewdb.
//
// The persistence layer is backed by Git, using go-git for storage.
// Every write operation creates a Git commit, so the history of view
// definitions and index activations can be inspected with plain git.
//
// # Memory Persistence
//
// For testing or ephemeral databases:
//
//	persistence, err := ps.NewMemoryPersistence()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # File Persistence
//
// For persistent storage:
//
//	persistence, err := ps.NewFilePersistence("/path/to/data", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Layout
//
//	.viewdb/views/<database>/<view>.json             typed view document
//	.viewdb/indexes/<database>/<index>.json          index declaration
//	.viewdb/materialized/<database>/<view>/data.json materialized rows
//
// # Indexing
//
// IndexManager satisfies schema.IndexLookup:
//
//	im := ps.NewIndexManager(persistence, "app")
//	im.CreateIndex("ActiveUsers_name", "ActiveUsers", props, false, identity)
//	idx, ok := im.GetIndex("ActiveUsers_name")
package ps
