// Package snapshot exports and imports the stored view metadata of a
// repository as a single snappy-compressed bundle.
//
// Destinations and sources may be local paths, file:// URLs or s3:// URLs;
// sources may also be http(s) URLs.
//
//	bundle, err := snapshot.Export(ctx, persistence, "s3://bucket/views.snap", cfg)
//	_, err = snapshot.Import(ctx, persistence, "s3://bucket/views.snap", cfg, identity)
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"path"
	"slices"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/nickyhof/viewdb/core"
	"github.com/nickyhof/viewdb/ps"
)

const formatVersion = 1

var (
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
	ErrEmptySnapshot      = errors.New("snapshot contains no files")
)

// Roots are the metadata trees carried by a snapshot.
var Roots = []string{".viewdb/views", ".viewdb/indexes"}

// Bundle is the decoded content of a snapshot.
type Bundle struct {
	ID        string            `json:"id"`
	Version   int               `json:"version"`
	CreatedAt time.Time         `json:"createdAt"`
	Source    string            `json:"source"`
	Files     map[string][]byte `json:"files"`
}

// Paths returns the file paths in the bundle ordered lexically.
func (b *Bundle) Paths() []string {
	return slices.Sorted(maps.Keys(b.Files))
}

func collect(p *ps.Persistence, dir string, files map[string][]byte) error {
	entries, err := p.ListEntriesDirect(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		full := path.Join(dir, entry.Name)
		if entry.IsDir {
			if err := collect(p, full, files); err != nil {
				return err
			}
			continue
		}
		data, err := p.ReadFileDirect(full)
		if err != nil {
			return err
		}
		files[full] = data
	}
	return nil
}

// Build reads every metadata file into a new bundle.
func Build(p *ps.Persistence) (*Bundle, error) {
	files := make(map[string][]byte)
	for _, root := range Roots {
		if err := collect(p, root, files); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", root, err)
		}
	}

	return &Bundle{
		ID:        uuid.NewString(),
		Version:   formatVersion,
		CreatedAt: time.Now().UTC(),
		Source:    p.LatestTransaction().Id,
		Files:     files,
	}, nil
}

// Encode writes the bundle as snappy-framed JSON.
func (b *Bundle) Encode(w io.Writer) error {
	sw := snappy.NewBufferedWriter(w)
	if err := json.NewEncoder(sw).Encode(b); err != nil {
		sw.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return sw.Close()
}

// Decode reads a bundle written by Encode.
func Decode(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(snappy.NewReader(r)).Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if b.Version != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, b.Version)
	}
	return &b, nil
}

// Export builds a bundle from p and writes it to dest.
func Export(ctx context.Context, p *ps.Persistence, dest string, cfg *S3Config) (*Bundle, error) {
	bundle, err := Build(p)
	if err != nil {
		return nil, err
	}

	w, err := openRemoteWriter(ctx, dest, cfg)
	if err != nil {
		return nil, err
	}
	if err := bundle.Encode(w); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return bundle, nil
}

// Import reads the bundle at src and writes its files to p in one commit.
// Files already stored under the same paths are overwritten; others are kept.
func Import(ctx context.Context, p *ps.Persistence, src string, cfg *S3Config, identity core.Identity) (*Bundle, ps.Transaction, error) {
	r, err := openRemoteReader(ctx, src, cfg)
	if err != nil {
		return nil, ps.Transaction{}, err
	}
	defer r.Close()

	bundle, err := Decode(r)
	if err != nil {
		return nil, ps.Transaction{}, err
	}
	if len(bundle.Files) == 0 {
		return bundle, ps.Transaction{}, ErrEmptySnapshot
	}

	changes := make([]ps.FileChange, 0, len(bundle.Files))
	for _, filePath := range bundle.Paths() {
		changes = append(changes, ps.FileChange{Path: filePath, Data: bundle.Files[filePath]})
	}

	txn, err := p.Commit(changes, identity, fmt.Sprintf("Importing snapshot %s", bundle.ID))
	if err != nil {
		return nil, ps.Transaction{}, err
	}
	return bundle, txn, nil
}
