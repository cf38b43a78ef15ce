package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.elastic.co/ecszerolog"

	"github.com/hospitrack/hospitrack/internal/config"
	"github.com/hospitrack/hospitrack/internal/domain/appointment"
	"github.com/hospitrack/hospitrack/internal/domain/catalog"
	"github.com/hospitrack/hospitrack/internal/domain/identity"
	"github.com/hospitrack/hospitrack/internal/domain/laborder"
	"github.com/hospitrack/hospitrack/internal/domain/reservation"
	"github.com/hospitrack/hospitrack/internal/platform/auth"
	"github.com/hospitrack/hospitrack/internal/platform/db"
	"github.com/hospitrack/hospitrack/internal/platform/events"
	"github.com/hospitrack/hospitrack/internal/platform/metrics"
	"github.com/hospitrack/hospitrack/internal/platform/middleware"
	"github.com/hospitrack/hospitrack/internal/platform/sandbox"
	"github.com/hospitrack/hospitrack/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "hospitrack-server",
		Short: "HospiTrack bed reservation API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HospiTrack API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPoolWith(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationsFS(cfg)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPoolWith(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationsFS(cfg)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	})

	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo hospitals, beds and accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, _ := cmd.Flags().GetInt("extra-patients")
			printTokens, _ := cmd.Flags().GetBool("tokens")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.StoreBackend == config.BackendMemory {
				return fmt.Errorf("seed needs a persistent store; the memory backend seeds via POST /api/init_dummy_data")
			}
			logger := newLogger(cfg.LogFormat, os.Stderr)

			ctx := cmd.Context()
			pool, err := openPoolWith(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			a := wire(cfg, pool, nil, nil, logger)
			result, err := a.seeder.Generate(ctx, sandbox.SeedConfig{ExtraPatients: extra})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.Message)
			if printTokens {
				return printSeedTokens(out, cfg, result.Users)
			}
			return nil
		},
	}
	cmd.Flags().Int("extra-patients", 0, "Number of synthetic patients to add")
	cmd.Flags().Bool("tokens", false, "Print a 24h bearer token for each seeded account")
	return cmd
}

func printSeedTokens(w io.Writer, cfg *config.Config, users []*identity.User) error {
	jwtCfg := jwtConfig(cfg)
	for _, u := range users {
		var hospitalID int64
		if u.HospitalID != nil {
			hospitalID = *u.HospitalID
		}
		token, err := auth.IssueToken(jwtCfg, strconv.FormatInt(u.ID, 10), []string{u.Role}, hospitalID, 24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%-16s %-15s %s\n", u.Username, u.Role, token)
	}
	return nil
}

// newLogger builds the process logger. "ecs" emits Elastic Common Schema
// JSON, "console" is human readable, anything else is plain zerolog JSON.
func newLogger(format string, w io.Writer) zerolog.Logger {
	switch format {
	case "ecs":
		return ecszerolog.New(w).With().Timestamp().Logger()
	case "console":
		return zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	default:
		return zerolog.New(w).With().Timestamp().Logger()
	}
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
}

// migrationsFS prefers MIGRATIONS_DIR over the embedded schema files.
func migrationsFS(cfg *config.Config) fs.FS {
	if cfg.MigrationsDir != "" {
		return os.DirFS(cfg.MigrationsDir)
	}
	return migrations.FS
}

func openPoolWith(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "hospitrack",
	})
}

// app holds the wired services. pool is nil on the memory backend.
type app struct {
	pool        *pgxpool.Pool
	metrics     *metrics.Metrics
	catalog     *catalog.Service
	identity    *identity.Service
	coordinator *reservation.Coordinator
	ledger      *reservation.Ledger
	store       reservation.Store
	appointment *appointment.Service
	labOrders   *laborder.Service
	seeder      *sandbox.Seeder
}

// wire builds the domain services over the configured backend. pub may be
// nil to disable events.
func wire(cfg *config.Config, pool *pgxpool.Pool, pub events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *app {
	var (
		hospitals    catalog.HospitalRepository
		beds         catalog.BedRepository
		doctors      catalog.DoctorRepository
		users        identity.UserRepository
		store        reservation.Store
		appointments appointment.Repository
		orders       laborder.Repository
	)
	if pool != nil {
		hospitals = catalog.NewHospitalRepoPG(pool)
		beds = catalog.NewBedRepoPG(pool)
		doctors = catalog.NewDoctorRepoPG(pool)
		users = identity.NewUserRepoPG(pool)
		store = reservation.NewStorePG(pool, cfg.LockTimeout)
		appointments = appointment.NewRepoPG(pool)
		orders = laborder.NewRepoPG(pool)
	} else {
		cat := catalog.NewMemStore()
		hospitals = cat.Hospitals()
		beds = cat.Beds()
		doctors = cat.Doctors()
		users = identity.NewUserRepoMem()
		store = reservation.NewMemStore(cat)
		appointments = appointment.NewRepoMem()
		orders = laborder.NewRepoMem()
	}

	a := &app{pool: pool, metrics: m, store: store}
	a.catalog = catalog.NewService(hospitals, beds, store, logger).WithDoctors(doctors)
	a.identity = identity.NewService(users)
	a.coordinator = reservation.NewCoordinator(store, a.identity, pub, m, logger)
	a.ledger = reservation.NewLedger(store, a.identity, a.catalog)
	a.appointment = appointment.NewService(appointments, a.identity, a.catalog, pub, m, logger)
	a.labOrders = laborder.NewService(orders, a.identity, a.catalog, a.appointment, pub, m, logger)
	a.seeder = sandbox.NewSeeder(a.catalog, a.identity, logger)
	return a
}

// newPublisher fans events out to every configured sink. It returns nil and
// no closer when neither Redis nor a webhook is configured.
func newPublisher(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) (events.Publisher, func(), error) {
	var sinks events.Multi
	closer := func() {}

	if cfg.RedisURL != "" {
		client, err := events.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, events.NewRedisPublisher(client, cfg.EventsChannel))
		closer = func() { closeRedis(client, logger) }
		logger.Info().Str("channel", cfg.EventsChannel).Msg("publishing events to redis")
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, logger, events.WithMetrics(m)))
		logger.Info().Str("url", cfg.WebhookURL).Msg("publishing events to webhook")
	}

	switch len(sinks) {
	case 0:
		return nil, closer, nil
	case 1:
		return sinks[0], closer, nil
	}
	return sinks, closer, nil
}

func closeRedis(client *redis.Client, logger zerolog.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn().Err(err).Msg("closing redis client")
	}
}

// newEcho builds the HTTP server with the full middleware chain and every
// route registered.
func newEcho(cfg *config.Config, a *app, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(middleware.Metrics(a.metrics))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth
	var verify echo.MiddlewareFunc
	if cfg.AuthSigningKey != "" {
		verify = auth.JWTMiddleware(jwtConfig(cfg))
	}
	if cfg.IsDev() {
		e.Use(skipPublic(auth.DevAuthMiddleware(verify)))
	} else {
		e.Use(verify)
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		ExpiresIn:         3 * time.Minute,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	e.Use(middleware.RateLimit(rateLimitCfg))
	e.Use(middleware.Audit(logger))
	if a.pool != nil {
		e.Use(db.ConnMiddleware(a.pool))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if a.pool != nil {
		e.GET("/health/db", db.HealthHandler(a.pool))
	}
	if a.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))
	}

	api := e.Group("/api")
	identity.NewHandler(a.identity).RegisterRoutes(api)
	catalog.NewHandler(a.catalog).RegisterRoutes(api)
	reservation.NewHandler(a.coordinator, a.ledger).RegisterRoutes(api)
	appointment.NewHandler(a.appointment).RegisterRoutes(api)
	laborder.NewHandler(a.labOrders).RegisterRoutes(api)
	sandbox.NewSeedHandler(a.seeder).RegisterRoutes(api)

	return e
}

// skipPublic lets public paths through without a development identity.
func skipPublic(mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		wrapped := mw(next)
		return func(c echo.Context) error {
			if auth.AuthSkipper(c) {
				return next(c)
			}
			return wrapped(c)
		}
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	format := cfg.LogFormat
	if format == "" && cfg.IsDev() {
		format = "console"
	}
	logger := newLogger(format, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if cfg.UsesPostgres() {
		pool, err = openPoolWith(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")
	} else {
		logger.Warn().Msg("using in-memory store; data is lost on restart")
	}

	m := metrics.New()

	sink, closeSink, err := newPublisher(ctx, cfg, m, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up event publishing")
	}
	defer closeSink()

	// Delivery outlives the request context so queued events are flushed
	// after the server stops accepting traffic.
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	var pub events.Publisher
	var dispatcher *events.Dispatcher
	if sink != nil {
		dispatcher = events.NewDispatcher(sink, 0, logger, m)
		go dispatcher.Run(bgCtx)
		pub = dispatcher
	}

	a := wire(cfg, pool, pub, m, logger)

	if cfg.ReservationHoldTTL > 0 {
		sweeper := reservation.NewSweeper(a.coordinator, a.store, cfg.ReservationHoldTTL, cfg.SweepInterval, m, logger)
		go sweeper.Run(bgCtx)
		logger.Info().Dur("ttl", cfg.ReservationHoldTTL).Dur("interval", cfg.SweepInterval).Msg("reservation hold sweeper started")
	}

	e := newEcho(cfg, a, logger)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("backend", cfg.StoreBackend).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}

	cancelBg()
	if dispatcher != nil {
		select {
		case <-dispatcher.Done():
		case <-shutdownCtx.Done():
			logger.Warn().Msg("event queue not fully flushed before shutdown")
		}
	}
	logger.Info().Msg("server stopped")
	return nil
}
