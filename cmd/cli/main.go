// Package main provides the viewdb command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/nickyhof/viewdb"
	"github.com/nickyhof/viewdb/config"
	"github.com/nickyhof/viewdb/core"
	"github.com/nickyhof/viewdb/db"
)

const (
	ErrorColor   = "\033[31m" // Red
	SuccessColor = "\033[32m" // Green
	ResetColor   = "\033[0m"
)

// Version is set at build time via -ldflags
var Version = "dev"

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	BaseDir    string
	GitURL     string
	Database   string
	Name       string
	Email      string
	Format     string
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
		os.Exit(1)
	}
}

// NewRootCommand creates the root command of the viewdb CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "viewdb",
		Short:         "Manage materialized views and their indexes",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigFile, "config", "c", "", "YAML or JSON config file")
	flags.StringVar(&opts.BaseDir, "baseDir", "", "Base directory for persistence (memory if empty)")
	flags.StringVar(&opts.GitURL, "gitUrl", "", "Git URL to clone the repository from")
	flags.StringVarP(&opts.Database, "database", "d", "default", "Database the views belong to")
	flags.StringVar(&opts.Name, "name", "", "User name for commits (overrides config)")
	flags.StringVar(&opts.Email, "email", "", "User email for commits (overrides config)")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(
		newListCommand(opts),
		newShowCommand(opts),
		newIndexesCommand(opts),
		newCreateCommand(opts),
		newDropCommand(opts),
		newActivateCommand(opts),
		newInactivateCommand(opts),
		newRebuildCommand(opts),
		newRefreshCommand(opts),
		newCountCommand(opts),
		newReloadCommand(opts),
		newExportCommand(opts),
		newImportCommand(opts),
	)

	return cmd
}

// session is an opened instance together with the settings it came from.
type session struct {
	cfg      *config.Config
	instance *viewdb.Instance
	engine   *db.Engine
	identity core.Identity
}

func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	if opts.BaseDir != "" {
		cfg.Storage.BaseDir = opts.BaseDir
	}
	if opts.GitURL != "" {
		cfg.Storage.GitURL = opts.GitURL
	}
	if opts.Name != "" {
		cfg.Identity.Name = opts.Name
	}
	if opts.Email != "" {
		cfg.Identity.Email = opts.Email
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	instance, err := viewdb.OpenConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	identity := core.Identity{Name: cfg.Identity.Name, Email: cfg.Identity.Email}
	return &session{
		cfg:      cfg,
		instance: instance,
		engine:   instance.Engine(identity),
		identity: identity,
	}, nil
}

// withSession opens a session for the duration of fn.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.instance.Close()

	return fn(ctx, s)
}

// display writes a result in the selected format.
func display(w io.Writer, opts *RootOptions, result db.Result) error {
	if opts.Format == "json" {
		return writeJSON(w, result)
	}
	result.Display(w)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
