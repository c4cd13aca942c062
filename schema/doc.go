// Package schema holds the metadata of materialized views and the
// activation state of their indexes.
//
// # Views
//
// A View combines an immutable core.ViewConfig with an IndexLifecycle that
// records which indexes are active (usable for query planning) and which are
// inactive (known, but being rebuilt or otherwise offline):
//
//	s := schema.NewSchema("app", db)
//	view, _ := s.CreateView(cfg, nil)
//	view.AddActiveIndexes([]string{"ActiveUsers_name"})
//	view.InactivateIndex("ActiveUsers_name")
//
// # Locking
//
// Lifecycle operations and the derived reads that consult the database
// (Count, ClassIndexes, CollectClassIndexes) run under the schema lock in
// shared mode. Structural changes (CreateView, DropView, Reload) hold it
// exclusively.
//
// # Encoding
//
// ToStream produces the storage document of a view, ToNetworkStream the
// document sent to clients. Both carry the same view fields. FromStream
// decodes a storage document, MarshalDocument and UnmarshalDocument convert
// documents to and from typed JSON bytes.
package schema
