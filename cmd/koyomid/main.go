package main

import (
	"log"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/koyomi-dev/koyomi/internal/auth"
	"github.com/koyomi-dev/koyomi/internal/config"
	"github.com/koyomi-dev/koyomi/internal/gcal"
	"github.com/koyomi-dev/koyomi/internal/logx"
	"github.com/koyomi-dev/koyomi/internal/server"
	"github.com/koyomi-dev/koyomi/internal/server/db"
	"github.com/koyomi-dev/koyomi/internal/server/handler"
	"github.com/koyomi-dev/koyomi/internal/tasks"
	"github.com/koyomi-dev/koyomi/internal/version"
)

func main() {
	var (
		verbose  bool
		logLevel string
	)

	rootCmd := &cobra.Command{
		Use:     "koyomid",
		Short:   "Koyomi - calendar backend that mirrors events to Google Calendar",
		Version: version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logx.Configure(logLevel, verbose)
		},
	}
	rootCmd.SetVersionTemplate(version.String("koyomid") + "\n")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose debug logs (same as --log-level debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error (or KOYOMI_LOG_LEVEL)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newWorkerCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Serve the REST API: Google sign-in, stored-credential management and
event CRUD. Calendar and mail side effects are queued on the broker and
executed by "koyomid worker" processes.

Environment variables:
  KOYOMI_JWT_SECRET      Secret signing app JWTs (min 16 chars, required)
  GOOGLE_CLIENT_ID       OAuth client id of the registered app (required)
  GOOGLE_CLIENT_SECRET   OAuth client secret (required)
  KOYOMI_DB_PATH         SQLite database path (default: koyomi.db)
  KOYOMI_LISTEN_ADDR     Listen address (default: :8080)
  KOYOMI_REDIS_ADDR      Task broker address (default: 127.0.0.1:6379)
  KOYOMI_TIMEZONE        Timezone for provider timestamps (default: Asia/Tokyo)
  KOYOMI_CORS_ORIGINS    Comma-separated allowed origins
  KOYOMI_LOG_LEVEL       Log level: debug|info|warn|error (default: info)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			store, err := db.NewStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			enq := tasks.NewClient(cfg.RedisAddr)
			defer enq.Close()

			// Revoked refresh tokens only need to stay blacklisted until they
			// expire on their own; sweep the stale rows hourly.
			go func() {
				for range time.Tick(time.Hour) {
					if err := store.PurgeExpiredJTIs(time.Now()); err != nil {
						logx.Warnf("purge expired jtis: %v", err)
					}
				}
			}()

			resolver := gcal.NewResolver(store)
			r := server.NewRouter(server.Deps{
				Config:   cfg,
				Store:    store,
				Issuer:   auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTTL),
				Verifier: handler.NewGoogleVerifier(cfg.GoogleClientID),
				Gateway:  gcal.NewGateway(resolver),
				Tasks:    enq,
			})

			log.Printf("koyomid listening on %s", cfg.ListenAddr)
			return r.Run(cfg.ListenAddr)
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background sync worker",
		Long: `Consume queued calendar and mail jobs from the broker and execute them
against Google APIs with the enqueuing user's stored credential.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			store, err := db.NewStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			gateway := gcal.NewGateway(gcal.NewResolver(store))
			engine := gcal.NewEngine(gateway, store, cfg.Timezone)

			srv := asynq.NewServer(
				asynq.RedisClientOpt{Addr: cfg.RedisAddr},
				asynq.Config{Concurrency: cfg.WorkerCount},
			)
			mux := asynq.NewServeMux()
			tasks.NewHandler(store, engine).Register(mux)

			logx.Infof("worker consuming from %s with %d slots", cfg.RedisAddr, cfg.WorkerCount)
			return srv.Run(mux)
		},
	}
}
