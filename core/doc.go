// Package core provides core types used throughout viewdb.
//
// The package defines fundamental value types like Identity, ColumnType,
// ViewConfig and IndexConfig.
//
// # Identity
//
// Identity identifies the author of metadata changes (Git commit author):
//
//	identity := core.Identity{
//	    Name:  "John Doe",
//	    Email: "john@example.com",
//	}
//
// # Column Types
//
// Index definitions reference a fixed scalar-type vocabulary. Tags are
// matched exactly by ParseColumnType:
//   - BOOLEAN, BYTE, SHORT, INTEGER, LONG
//   - FLOAT, DOUBLE, DECIMAL
//   - STRING, TEXT, BINARY, JSON
//   - DATE, DATETIME, TIMESTAMP
//   - LINK
//
// # View Configuration
//
//	cfg := core.NewViewConfig("active_users", "SELECT FROM User WHERE active = true")
//	cfg.SetUpdatable(true)
//	cfg.SetUpdateIntervalSeconds(60)
//	cfg.SetWatchClasses([]string{"User"})
//
//	idx := cfg.AddIndex()
//	idx.AddProperty("name", core.StringType)
package core
