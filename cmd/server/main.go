package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nickyhof/viewdb"
	"github.com/nickyhof/viewdb/config"
	"github.com/nickyhof/viewdb/core"
)

// Version is set at build time via -ldflags
var Version = "dev"

type serverOptions struct {
	configFile string
	addr       string
	baseDir    string
	gitURL     string
	certFile   string
	keyFile    string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &serverOptions{}

	cmd := &cobra.Command{
		Use:           "viewdb-server",
		Short:         "Serve view metadata over TCP",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "YAML or JSON config file")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "TCP address to listen on (overrides config)")
	cmd.Flags().StringVar(&opts.baseDir, "baseDir", "", "Base directory for persistence (memory if empty)")
	cmd.Flags().StringVar(&opts.gitURL, "gitUrl", "", "Git URL to clone the repository from")
	cmd.Flags().StringVar(&opts.certFile, "tls-cert", "", "TLS certificate file")
	cmd.Flags().StringVar(&opts.keyFile, "tls-key", "", "TLS key file")

	return cmd
}

// applyFlags overrides cfg with the flags that were set.
func applyFlags(cfg *config.Config, opts *serverOptions) {
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.baseDir != "" {
		cfg.Storage.BaseDir = opts.baseDir
	}
	if opts.gitURL != "" {
		cfg.Storage.GitURL = opts.gitURL
	}
}

func authConfigFrom(cfg *config.Config) *AuthConfig {
	if cfg.Auth.JWTSecret == "" {
		return nil
	}
	return &AuthConfig{
		Enabled:    true,
		JWTSecret:  cfg.Auth.JWTSecret,
		Issuer:     cfg.Auth.JWTIssuer,
		NameClaim:  cfg.Auth.NameClaim,
		EmailClaim: cfg.Auth.EmailClaim,
	}
}

func run(ctx context.Context, opts *serverOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	applyFlags(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	instance, err := viewdb.OpenConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer instance.Close()

	var server *Server
	if auth := authConfigFrom(cfg); auth != nil {
		log.Println("JWT authentication enabled")
		server = NewServerWithAuth(instance, auth)
	} else {
		server = NewServer(instance, core.Identity{Name: cfg.Identity.Name, Email: cfg.Identity.Email})
	}
	server.SetIdleTimeout(time.Duration(cfg.Server.IdleTimeout))

	if opts.certFile != "" || opts.keyFile != "" {
		err = server.StartTLS(cfg.Server.Addr, opts.certFile, opts.keyFile)
	} else {
		err = server.Start(cfg.Server.Addr)
	}
	if err != nil {
		return err
	}

	var metrics *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(newRegistry(), promhttp.HandlerOpts{}))
		metrics = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
		go func() {
			log.Printf("Metrics listening on %s", cfg.Server.MetricsAddr)
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	fmt.Printf("viewdb server v%s listening on %s\n", Version, server.Addr())
	fmt.Println(`Send one JSON request per line, e.g. {"op":"list","database":"app"}; 'quit' to disconnect`)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	if metrics != nil {
		metrics.Shutdown(context.Background())
	}
	server.Stop()
	log.Println("Server stopped")
	return nil
}
