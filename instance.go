package viewdb

import (
	"context"
	"fmt"
	"log"

	"github.com/nickyhof/viewdb/config"
	"github.com/nickyhof/viewdb/core"
	"github.com/nickyhof/viewdb/db"
	"github.com/nickyhof/viewdb/ps"
	"github.com/nickyhof/viewdb/rowcount"
	"github.com/nickyhof/viewdb/schema"
	"github.com/nickyhof/viewdb/snapshot"
)

type Instance struct {
	Persistence *ps.Persistence
	engine      *db.Engine
	closers     []func() error
}

// Open wraps persistence. Every Engine returned by the instance shares the
// same views.
func Open(persistence *ps.Persistence, opts ...db.Option) *Instance {
	return &Instance{
		Persistence: persistence,
		engine:      db.NewEngine(persistence, core.Identity{}, opts...),
	}
}

// OpenConfig builds persistence and the row counter described by cfg and
// loads the stored views.
func OpenConfig(ctx context.Context, cfg *config.Config) (*Instance, error) {
	var (
		persistence *ps.Persistence
		err         error
	)
	if cfg.Storage.BaseDir == "" {
		log.Println("Using memory persistence")
		persistence, err = ps.NewMemoryPersistence()
	} else {
		log.Printf("Using file persistence: %s", cfg.Storage.BaseDir)
		var gitURL *string
		if cfg.Storage.GitURL != "" {
			gitURL = &cfg.Storage.GitURL
		}
		persistence, err = ps.NewFilePersistence(cfg.Storage.BaseDir, gitURL)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize persistence: %w", err)
	}

	var (
		opts    []db.Option
		closers []func() error
	)
	if cfg.Counter.Driver != config.CounterPersistence {
		counter, err := rowcount.Open(cfg.Counter.Driver, cfg.Counter.DSN, cfg.Counter.TablePrefix)
		if err != nil {
			return nil, err
		}
		log.Printf("Counting view rows with %s", cfg.Counter.Driver)
		opts = append(opts, db.WithCounterFactory(func(string) schema.RowCounter { return counter }))
		closers = append(closers, counter.Close)
	}

	instance := Open(persistence, opts...)
	instance.closers = closers

	if _, err := instance.engine.ReloadViews(ctx); err != nil {
		log.Printf("Some views failed to load: %v", err)
	}
	return instance, nil
}

// Engine returns an engine that records its commits as identity.
func (instance *Instance) Engine(identity core.Identity) *db.Engine {
	return instance.engine.WithIdentity(identity)
}

// Export writes a snapshot of the stored view metadata to dest.
func (instance *Instance) Export(ctx context.Context, dest string, cfg *snapshot.S3Config) (*snapshot.Bundle, error) {
	return snapshot.Export(ctx, instance.Persistence, dest, cfg)
}

// Import applies the snapshot at src and reloads every view.
func (instance *Instance) Import(ctx context.Context, src string, cfg *snapshot.S3Config, identity core.Identity) (*snapshot.Bundle, error) {
	bundle, _, err := snapshot.Import(ctx, instance.Persistence, src, cfg, identity)
	if err != nil {
		return nil, err
	}
	if _, err := instance.engine.ReloadViews(ctx); err != nil {
		return bundle, err
	}
	return bundle, nil
}

func (instance *Instance) Close() error {
	for _, closer := range instance.closers {
		if err := closer(); err != nil {
			return err
		}
	}
	return nil
}

// S3Config converts the snapshot section of cfg.
func S3Config(cfg *config.Config) *snapshot.S3Config {
	return &snapshot.S3Config{
		AccessKey: cfg.Snapshot.AccessKey,
		SecretKey: cfg.Snapshot.SecretKey,
		Region:    cfg.Snapshot.Region,
		Endpoint:  cfg.Snapshot.Endpoint,
	}
}
