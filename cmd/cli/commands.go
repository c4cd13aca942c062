package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nickyhof/viewdb"
	"github.com/nickyhof/viewdb/core"
	"github.com/nickyhof/viewdb/db"
	"github.com/nickyhof/viewdb/schema"
)

func newListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the views of a database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				result, err := s.engine.ListViews(opts.Database)
				if err != nil {
					return err
				}
				return display(cmd.OutOrStdout(), opts, result)
			})
		},
	}
}

func newShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <view>",
		Short: "Show the configuration and index state of a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				doc, err := s.engine.DescribeView(opts.Database, args[0])
				if err != nil {
					return err
				}
				return writeDocument(cmd.OutOrStdout(), opts, doc)
			})
		},
	}
}

// writeDocument prints doc one field per line, or as typed JSON.
func writeDocument(w io.Writer, opts *RootOptions, doc schema.Document) error {
	if opts.Format == "json" {
		data, err := schema.MarshalDocument(doc)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	for _, key := range slices.Sorted(maps.Keys(doc)) {
		value := doc[key]
		if set, ok := value.(schema.StringSet); ok {
			value = set.Sorted()
		}
		fmt.Fprintf(w, "%-22s %v\n", key+":", value)
	}
	return nil
}

func newIndexesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "indexes <view>",
		Short: "List the active and inactive indexes of a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				result, err := s.engine.ViewIndexes(opts.Database, args[0])
				if err != nil {
					return err
				}
				return display(cmd.OutOrStdout(), opts, result)
			})
		},
	}
}

type createOptions struct {
	query          string
	updatable      bool
	interval       int
	strategy       string
	watchClasses   []string
	originRidField string
	nodes          []string
	indexes        []string
}

func newCreateCommand(opts *RootOptions) *cobra.Command {
	createOpts := &createOptions{}

	cmd := &cobra.Command{
		Use:   "create <view>",
		Short: "Create a view",
		Long: `Create a view from a query.

Each --index flag declares one required index as a comma separated list of
property:TYPE pairs, for example --index name:STRING,age:INTEGER.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := createOpts.viewConfig(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				return commit(cmd.OutOrStdout(), opts)(s.engine.CreateView(opts.Database, cfg))
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&createOpts.query, "query", "q", "", "Query the view materializes")
	flags.BoolVar(&createOpts.updatable, "updatable", false, "Allow updates through the view")
	flags.IntVar(&createOpts.interval, "interval", 0, "Seconds between batch refreshes")
	flags.StringVar(&createOpts.strategy, "strategy", string(core.UpdateStrategyBatch), "Refresh strategy (batch|live)")
	flags.StringSliceVar(&createOpts.watchClasses, "watch", nil, "Classes whose changes refresh the view")
	flags.StringVar(&createOpts.originRidField, "origin-rid", "", "Field holding the origin record id")
	flags.StringSliceVar(&createOpts.nodes, "nodes", nil, "Nodes that host the view")
	flags.StringArrayVar(&createOpts.indexes, "index", nil, "Required index as property:TYPE[,property:TYPE...]")

	return cmd
}

func (o *createOptions) viewConfig(name string) (*core.ViewConfig, error) {
	strategy := core.UpdateStrategy(o.strategy)
	if strategy != core.UpdateStrategyBatch && strategy != core.UpdateStrategyLive {
		return nil, fmt.Errorf("unknown update strategy: %s", o.strategy)
	}

	cfg := core.NewViewConfig(name, o.query).
		SetUpdatable(o.updatable).
		SetUpdateIntervalSeconds(o.interval).
		SetUpdateStrategy(strategy).
		SetWatchClasses(o.watchClasses).
		SetOriginRidField(o.originRidField).
		SetNodes(o.nodes)

	for _, decl := range o.indexes {
		props, err := parseIndexProperties(decl)
		if err != nil {
			return nil, err
		}
		idx := cfg.AddIndex()
		for _, prop := range props {
			idx.AddProperty(prop.Name, prop.Type)
		}
	}
	return cfg, nil
}

// parseIndexProperties parses "name:STRING,age:INTEGER".
func parseIndexProperties(decl string) ([]core.IndexProperty, error) {
	var props []core.IndexProperty
	for _, part := range strings.Split(decl, ",") {
		name, tag, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid index property %q: expected property:TYPE", part)
		}
		columnType, err := core.ParseColumnType(strings.ToUpper(tag))
		if err != nil {
			return nil, fmt.Errorf("invalid index property %q: %w", part, err)
		}
		props = append(props, core.IndexProperty{Name: name, Type: columnType})
	}
	return props, nil
}

func newDropCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <view>",
		Short: "Drop a view, its indexes and its materialized rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				return commit(cmd.OutOrStdout(), opts)(s.engine.DropView(opts.Database, args[0]))
			})
		},
	}
}

func newActivateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <view> <index>...",
		Short: "Mark indexes as active for a view",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				return commit(cmd.OutOrStdout(), opts)(s.engine.ActivateIndexes(opts.Database, args[0], args[1:]))
			})
		},
	}
}

func newInactivateCommand(opts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "inactivate <view> [index]",
		Short: "Retire one index, or every active index with --all",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.ExactArgs(1)(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				if all {
					return commit(cmd.OutOrStdout(), opts)(s.engine.InactivateIndexes(opts.Database, args[0]))
				}
				return commit(cmd.OutOrStdout(), opts)(s.engine.InactivateIndex(opts.Database, args[0], args[1]))
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Retire every active index of the view")
	return cmd
}

func newRebuildCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild <view>",
		Short: "Replace the active indexes of a view with fresh ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				return commit(cmd.OutOrStdout(), opts)(s.engine.RebuildIndexes(opts.Database, args[0]))
			})
		},
	}
}

func newRefreshCommand(opts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "refresh <view>",
		Short: "Replace the materialized rows of a view",
		Long:  "Replace the materialized rows of a view with a JSON array of objects read from --file (or stdin with -).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := readRows(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				return commit(cmd.OutOrStdout(), opts)(s.engine.RefreshView(ctx, opts.Database, args[0], rows))
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON file with the rows")
	return cmd
}

func readRows(stdin io.Reader, file string) ([]map[string]string, error) {
	r := stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var rows []map[string]string
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to parse rows: %w", err)
	}
	return rows, nil
}

func newCountCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count <view>",
		Short: "Count the materialized rows of a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				count, err := s.engine.CountView(ctx, opts.Database, args[0])
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), map[string]int64{"count": count})
				}
				fmt.Fprintln(cmd.OutOrStdout(), count)
				return nil
			})
		},
	}
}

func newReloadCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload every stored view and report failures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				return commit(cmd.OutOrStdout(), opts)(s.engine.ReloadViews(ctx))
			})
		},
	}
}

func newExportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <dest>",
		Short: "Write a snapshot of all view metadata to a file or s3:// URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				bundle, err := s.instance.Export(ctx, args[0], viewdb.S3Config(s.cfg))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s✓ Exported %d file(s) to %s%s\n", SuccessColor, len(bundle.Files), args[0], ResetColor)
				return nil
			})
		},
	}
}

func newImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <src>",
		Short: "Apply a snapshot from a file, http(s):// or s3:// URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				bundle, err := s.instance.Import(ctx, args[0], viewdb.S3Config(s.cfg), s.identity)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s✓ Imported %d file(s) from %s%s\n", SuccessColor, len(bundle.Files), args[0], ResetColor)
				return nil
			})
		},
	}
}

// commit returns a printer for the results of mutating engine calls.
func commit(w io.Writer, opts *RootOptions) func(db.CommitResult, error) error {
	return func(result db.CommitResult, err error) error {
		if err != nil {
			return err
		}
		return display(w, opts, result)
	}
}
