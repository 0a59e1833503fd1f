/*
main.go - Application entry point

PURPOSE:
  Starts the leave engine server and its maintenance commands. Handles
  configuration, dependency injection and graceful shutdown.

COMMANDS:
  serve              Run the HTTP API and the carry-over scheduler
  migrate up|down|version
                     Manage the Postgres schema (SQLite migrates itself)
  seed <file.yaml>   Load leave types, employees and balances
  token <employee>   Sign a bearer token for local testing

STARTUP SEQUENCE (serve):
  1. Load config (YAML + .env + LEAVE_* environment)
  2. Build the zap logger
  3. Open the store (SQLite file or Postgres pool)
  4. Build the notifier (log or Gmail)
  5. Wire services, router, scheduler
  6. Serve until SIGINT/SIGTERM, then shut down gracefully

EXAMPLES:
  ./server serve --config config.yaml
  ./server migrate up --config config.yaml
  ./server seed --config config.yaml --year 2024 seed.yaml
  ./server token 104 --email hany@tempo.fit --admin

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration keys
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/logging"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/store/postgres"
	"github.com/warp/leave-engine/store/sqlite"
	"github.com/warp/leave-engine/timeoff"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "server",
		Short:        "Leave management engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
		newSeedCmd(&configPath),
		newTokenCmd(&configPath),
	)
	return root
}

// =============================================================================
// APPLICATION WIRING
// =============================================================================

type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	location *time.Location
	store    timeoff.TxStore
	close    func()
	svc      api.Services
}

// openApp loads config and builds every dependency except the HTTP server.
func openApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Organization.Location()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, location: loc}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	notifier, err := newNotifier(ctx, cfg.Notifications, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	opts := []timeoff.Option{
		timeoff.WithLocation(loc),
		timeoff.WithDomain(cfg.Organization.Domain),
		timeoff.WithLogger(logger),
		timeoff.WithNotifier(notifier),
	}
	ledger := timeoff.NewLedger(a.store, opts...)
	a.svc = api.Services{
		Requests:  timeoff.NewRequestService(a.store, ledger, opts...),
		Ledger:    ledger,
		Directory: timeoff.NewDirectory(a.store, opts...),
		Catalog:   timeoff.NewCatalog(a.store, opts...),
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	db := a.cfg.Database
	switch db.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, postgres.PoolOptions{
			DSN:      db.PostgresDSN,
			MaxConns: db.MaxConns,
			MinConns: db.MinConns,
		})
		if err != nil {
			return err
		}
		a.store = postgres.New(pool)
		a.close = pool.Close
	default:
		store, err := sqlite.New(db.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		a.store = store
		a.close = func() { store.Close() }
	}
	a.logger.Info("store opened", zap.String("driver", db.Driver))
	return nil
}

func newNotifier(ctx context.Context, cfg config.NotificationsConfig, logger *zap.Logger) (timeoff.Notifier, error) {
	if cfg.Driver == "gmail" {
		g, err := notify.NewGmail(ctx, notify.GmailOptions{
			CredentialsFile: cfg.CredentialsFile,
			TokenFile:       cfg.TokenFile,
			Sender:          cfg.Sender,
			Interval:        cfg.SendInterval,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("gmail notifier ready", zap.String("sender", cfg.Sender))
		return g, nil
	}
	return notify.NewLogNotifier(logger), nil
}

func (a *app) shutdown() {
	a.close()
	_ = a.logger.Sync()
}

// =============================================================================
// SERVE
// =============================================================================

func newServeCmd(configPath *string) *cobra.Command {
	var migrateFirst bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.shutdown()

			if migrateFirst && a.cfg.Database.Driver == "postgres" {
				if err := migrateUp(a.cfg.Database.PostgresDSN, a.logger); err != nil {
					return err
				}
			}
			return serve(ctx, a)
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", true, "apply Postgres migrations before serving")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	auth := api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Organization.Domain)
	handler := api.NewHandler(a.svc, a.logger, generic.SystemClock{}, a.location)
	router := api.NewRouter(handler, auth, cfg.Server.CORSOrigins)

	scheduler := api.NewCarryOverScheduler(a.svc.Directory, a.svc.Catalog, a.svc.Ledger, a.logger, api.CarryOverOptions{
		LeaveTypes:    cfg.CarryOver.LeaveTypes,
		MaxDays:       decimal.NewFromInt(int64(cfg.CarryOver.MaxDays)),
		CheckInterval: cfg.CarryOver.Interval,
		Enabled:       cfg.CarryOver.Enabled,
		Location:      a.location,
	})
	scheduler.Start()
	defer scheduler.Stop()

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.logger.Info("server exited")
	return nil
}

// =============================================================================
// MIGRATE
// =============================================================================

func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	withMigrator := func(fn func(*postgres.Migrator, *zap.Logger) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return fmt.Errorf("migrate needs database.driver postgres, got %q", cfg.Database.Driver)
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			m, err := postgres.NewMigrator(cfg.Database.PostgresDSN)
			if err != nil {
				return err
			}
			defer m.Close()
			return fn(m, logger)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: withMigrator(func(m *postgres.Migrator, logger *zap.Logger) error {
				if err := m.Up(); err != nil {
					return err
				}
				logger.Info("migrations applied")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			RunE: withMigrator(func(m *postgres.Migrator, logger *zap.Logger) error {
				if err := m.Down(); err != nil {
					return err
				}
				logger.Info("migrations rolled back")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: withMigrator(func(m *postgres.Migrator, _ *zap.Logger) error {
				v, dirty, ok, err := m.Version()
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("no migrations applied")
					return nil
				}
				fmt.Printf("version %d (dirty: %t)\n", v, dirty)
				return nil
			}),
		},
	)
	return cmd
}

func migrateUp(dsn string, logger *zap.Logger) error {
	m, err := postgres.NewMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}

// =============================================================================
// SEED
// =============================================================================

func newSeedCmd(configPath *string) *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load leave types, employees and balances from YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := factory.LoadSeed(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.shutdown()

			if year == 0 {
				year = generic.Today(generic.SystemClock{}, a.location).Year()
			}
			seeder := factory.NewSeeder(a.svc.Catalog, a.svc.Directory, a.svc.Ledger, a.logger)
			report, err := seeder.Apply(cmd.Context(), f, year)
			if err != nil {
				return err
			}
			fmt.Printf("leave types: %d, employees created: %d, skipped: %d, balances: %d\n",
				report.LeaveTypes, report.EmployeesCreated, report.EmployeesSkipped, report.Balances)
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "balance year for default balances (default: current year)")
	return cmd
}

// =============================================================================
// TOKEN
// =============================================================================

func newTokenCmd(configPath *string) *cobra.Command {
	var (
		email string
		admin bool
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <employee-id>",
		Short: "Sign a bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if email == "" {
				email = args[0] + "@" + cfg.Organization.Domain
			}
			auth := api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Organization.Domain)
			tok, err := auth.Issue(timeoff.EmployeeID(args[0]), email, admin, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email claim (default: <employee-id>@<domain>)")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
