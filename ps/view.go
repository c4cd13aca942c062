package ps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nickyhof/viewdb/core"
	"github.com/nickyhof/viewdb/schema"
)

const metadataRoot = ".viewdb"

func viewPath(database, name string) string {
	return fmt.Sprintf("%s/views/%s/%s.json", metadataRoot, database, name)
}

func materializedPath(database, viewName string) string {
	return fmt.Sprintf("%s/materialized/%s/%s", metadataRoot, database, viewName)
}

// ViewMetadataChange encodes the storage document of a view as a write that
// can be committed together with other changes.
func ViewMetadataChange(database, name string, doc schema.Document) (FileChange, error) {
	data, err := schema.MarshalDocument(doc)
	if err != nil {
		return FileChange{}, fmt.Errorf("failed to marshal view %s.%s: %w", database, name, err)
	}
	return FileChange{Path: viewPath(database, name), Data: data}, nil
}

// ViewMetadataPaths returns the stored paths of a view: its document and its
// materialized rows.
func ViewMetadataPaths(database, name string) []string {
	return []string{viewPath(database, name), materializedPath(database, name)}
}

// SaveViewMetadata stores the storage document of a view. Creating and
// updating a view are the same write.
func (p *Persistence) SaveViewMetadata(database, name string, doc schema.Document, identity core.Identity) (Transaction, error) {
	change, err := ViewMetadataChange(database, name, doc)
	if err != nil {
		return Transaction{}, err
	}

	return p.Commit([]FileChange{change}, identity, fmt.Sprintf("Saving view %s.%s", database, name))
}

// GetViewMetadata reads the storage document of a view
func (p *Persistence) GetViewMetadata(database, name string) (schema.Document, error) {
	data, err := p.ReadFileDirect(viewPath(database, name))
	if err != nil {
		return nil, fmt.Errorf("view %s.%s does not exist: %w", database, name, err)
	}

	doc, err := schema.UnmarshalDocument(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal view %s.%s: %w", database, name, err)
	}
	return doc, nil
}

// ListViewMetadata returns the storage documents of every view in a database,
// keyed by view name. Files that cannot be read are returned in the error
// alongside the documents that could.
func (p *Persistence) ListViewMetadata(database string) (map[string]schema.Document, error) {
	entries, err := p.ListEntriesDirect(fmt.Sprintf("%s/views/%s", metadataRoot, database))
	if err != nil {
		return nil, err
	}

	docs := make(map[string]schema.Document, len(entries))
	var errs []error
	for _, entry := range entries {
		if entry.IsDir || !strings.HasSuffix(entry.Name, ".json") {
			continue
		}

		name := strings.TrimSuffix(entry.Name, ".json")
		doc, err := p.GetViewMetadata(database, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		docs[name] = doc
	}

	return docs, errors.Join(errs...)
}

// ListViewDatabases returns every database that has stored views
func (p *Persistence) ListViewDatabases() ([]string, error) {
	entries, err := p.ListEntriesDirect(metadataRoot + "/views")
	if err != nil {
		return nil, err
	}

	var databases []string
	for _, entry := range entries {
		if entry.IsDir {
			databases = append(databases, entry.Name)
		}
	}
	return databases, nil
}

// DropViewMetadata removes a view definition together with its materialized rows
func (p *Persistence) DropViewMetadata(database, name string, identity core.Identity) (Transaction, error) {
	return p.DeletePathDirect(ViewMetadataPaths(database, name), identity, fmt.Sprintf("Dropping view %s.%s", database, name))
}

// Materialized view data storage

// WriteMaterializedViewData stores cached rows for a materialized view
func (p *Persistence) WriteMaterializedViewData(database, viewName string, rows []map[string]string, identity core.Identity) (Transaction, error) {
	dataBytes, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to marshal rows: %w", err)
	}

	dataPath := materializedPath(database, viewName) + "/data.json"
	return p.WriteFileDirect(dataPath, dataBytes, identity, fmt.Sprintf("Refreshing materialized view %s.%s", database, viewName))
}

// ReadMaterializedViewData reads cached rows for a materialized view
func (p *Persistence) ReadMaterializedViewData(database, viewName string) ([]map[string]string, error) {
	data, err := p.ReadFileDirect(materializedPath(database, viewName) + "/data.json")
	if err != nil {
		return nil, fmt.Errorf("materialized view data not found: %w", err)
	}

	var rows []map[string]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal materialized view data: %w", err)
	}

	return rows, nil
}

// DeleteMaterializedViewData removes cached rows for a materialized view
func (p *Persistence) DeleteMaterializedViewData(database, viewName string, identity core.Identity) (Transaction, error) {
	return p.DeletePathDirect([]string{materializedPath(database, viewName)}, identity, fmt.Sprintf("Deleting materialized view data %s.%s", database, viewName))
}

// RowCounter counts materialized rows of the views in one database.
type RowCounter struct {
	persistence *Persistence
	database    string
}

func NewRowCounter(p *Persistence, database string) *RowCounter {
	return &RowCounter{persistence: p, database: database}
}

// CountView returns the number of materialized rows. A view that was never
// refreshed has zero rows.
func (c *RowCounter) CountView(ctx context.Context, viewName string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	rows, err := c.persistence.ReadMaterializedViewData(c.database, viewName)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}
