package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/malbeclabs/ados/api/handlers"
	adosmcp "github.com/malbeclabs/ados/api/mcp"
	"github.com/malbeclabs/ados/api/metrics"
	"github.com/malbeclabs/ados/api/server"
	"github.com/malbeclabs/ados/utils/pkg/logger"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

func newServeCommand(opts *RootOptions) *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logger.NewWithFormat(os.Stdout, logger.ParseFormat(os.Getenv("LOG_FORMAT")), opts.Verbose)

			cfg, err := LoadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}

			if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
				if err := sentry.Init(sentry.ClientOptions{
					Dsn:              dsn,
					Environment:      cfg.SentryEnvironment,
					Release:          opts.Version.Version,
					EnableTracing:    true,
					TracesSampleRate: cfg.SentryTracesSampleRate,
				}); err != nil {
					return fmt.Errorf("failed to initialize sentry: %w", err)
				}
				defer sentry.Flush(2 * time.Second)
				log.Info("cli: sentry enabled", "environment", cfg.SentryEnvironment)
			}

			metrics.BuildInfo.WithLabelValues(opts.Version.Version, opts.Version.Commit, opts.Version.Date).Set(1)

			app, err := NewApp(ctx, log, cfg, AppOptions{Reasoning: true, Audit: true, Mirror: true, LLM: opts.llm})
			if err != nil {
				return err
			}
			defer app.Close()
			// Readiness flips once the first graph is built.
			app.Graph.Start(ctx)

			api, err := handlers.New(handlers.Config{
				Logger:    log,
				Graph:     app.Graph,
				Compiler:  app.Compiler,
				Async:     app.Async,
				Validator: app.Validator,
				Audit:     app.Audit,
				Version:   opts.Version,
			})
			if err != nil {
				return err
			}

			scfg := server.Config{
				Logger:         log,
				API:            api,
				ListenAddr:     cfg.ListenAddr,
				AllowedOrigins: cfg.AllowedOrigins,
				CompileBurst:   cfg.CompileBurst,
			}
			if cfg.CompileRatePerMin > 0 {
				scfg.CompileRate = rate.Every(time.Minute / time.Duration(cfg.CompileRatePerMin))
			}
			if !cfg.DisableMCP {
				mcpServer, err := adosmcp.New(adosmcp.Config{
					Logger:    log,
					Graph:     app.Graph,
					Compiler:  app.Compiler,
					Validator: app.Validator,
					Version:   opts.Version.Version,
				})
				if err != nil {
					return err
				}
				scfg.MCP = mcpServer.Handler()
			}

			srv, err := server.New(scfg)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (default :8080)")
	return cmd
}
