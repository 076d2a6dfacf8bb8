package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Oluwataye/Seeklab-sub001/internal/config"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/accesscode"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/disclosure"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/memstore"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/patient"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/payment"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/result"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/template"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/auth"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/db"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/middleware"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/notification"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/reporting"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/sessionstore"
	"github.com/Oluwataye/Seeklab-sub001/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "seeklab-server",
		Short: "Seeklab lab results API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the lab results API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if memory, _ := cmd.Flags().GetBool("memory"); memory {
				os.Setenv("MEMORY_STORE", "true")
			}
			return runServer()
		},
	}
	cmd.Flags().Bool("memory", false, "Keep all data in process memory instead of Postgres")
	return cmd
}

// migrationSource returns the embedded migrations unless dir points at a
// directory on disk.
func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, pool, err := connect()
			if err != nil {
				return err
			}
			defer pool.Close()
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			migrator := db.NewMigrator(pool, migrationSource(dir))
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(context.Background(), schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Path to a migrations directory (defaults to the embedded set)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, pool, err := connect()
			if err != nil {
				return err
			}
			defer pool.Close()
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			migrator := db.NewMigrator(pool, migrationSource(dir))
			statuses, err := migrator.Status(context.Background(), schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Path to a migrations directory (defaults to the embedded set)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant schema and apply all migrations to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, pool, err := connect()
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating tenant schema: %s\n", db.SchemaName(name))
			applied, err := db.CreateTenantSchema(context.Background(), pool, name, migrationSource(cfg.MigrationsDir))
			if err != nil {
				return err
			}
			fmt.Printf("Tenant created with %d migration(s) applied.\n", applied)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")

	cmd.AddCommand(createCmd)
	return cmd
}

func connect() (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := db.NewPool(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

// labServices is the set of domain services one server instance runs.
type labServices struct {
	templates   *template.Service
	patients    *patient.Service
	payments    *payment.Service
	results     *result.Service
	accessCodes *accesscode.Service
}

func wirePostgres(pool *pgxpool.Pool, notifier notification.Notifier, codes accesscode.Config, logger zerolog.Logger) *labServices {
	tx := db.NewTransactor(pool)
	templates := template.NewService(template.NewTemplateRepoPG(pool), logger)
	patients := patient.NewService(patient.NewPatientRepoPG(pool), notifier, logger)
	payments := payment.NewService(payment.NewPaymentRepoPG(pool), patients, notifier, logger)
	results := result.NewService(result.NewResultRepoPG(pool), templates, patients, tx, notifier, logger)
	return &labServices{
		templates:   templates,
		patients:    patients,
		payments:    payments,
		results:     results,
		accessCodes: accesscode.NewService(accesscode.NewAccessCodeRepoPG(pool), patients, templates, payments, results, tx, notifier, codes, logger),
	}
}

func wireMemory(notifier notification.Notifier, codes accesscode.Config, logger zerolog.Logger) *labServices {
	s := memstore.New().Wire(notifier, codes, logger)
	return &labServices{
		templates:   s.Templates,
		patients:    s.Patients,
		payments:    s.Payments,
		results:     s.Results,
		accessCodes: s.AccessCodes,
	}
}

// ipExtractor trusts forwarded headers only when the server runs behind a
// proxy on a private network.
func ipExtractor(cfg *config.Config) echo.IPExtractor {
	if cfg.TrustProxy {
		return echo.ExtractIPFromXFFHeader()
	}
	return echo.ExtractIPDirect()
}

// newDispatcher connects the configured delivery channels. A broker that
// cannot be reached disables the staff event bus instead of failing startup.
func newDispatcher(cfg *config.Config, logger zerolog.Logger) (*notification.Dispatcher, func()) {
	dcfg := notification.DispatcherConfig{TopicPrefix: cfg.MQTTTopicPrefix, LabName: cfg.LabName}
	cleanup := func() {}

	if cfg.MQTTBroker != "" {
		pub, err := notification.NewMQTTPublisher(notification.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			QoS:      1,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("MQTT broker unavailable, staff events disabled")
		} else {
			dcfg.Publisher = pub
			cleanup = pub.Close
			logger.Info().Str("broker", cfg.MQTTBroker).Msg("connected to MQTT broker")
		}
	}
	if cfg.SMSGatewayURL != "" {
		dcfg.SMS = notification.NewSMSGateway(notification.SMSGatewayConfig{
			BaseURL:  cfg.SMSGatewayURL,
			Token:    cfg.SMSGatewayToken,
			SenderID: cfg.SMSSenderID,
		})
	}
	return notification.NewDispatcher(dcfg, logger), cleanup
}

// resolveSigningKey decodes the hex AUTH_SIGNING_KEY. An empty value means
// tokens are validated against the issuer's JWKS instead.
func resolveSigningKey(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_SIGNING_KEY hex value: %w", err)
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(key))
	}
	return key, nil
}

func newSessionStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (sessionstore.Store, func(), error) {
	if cfg.RedisURL != "" {
		store, err := sessionstore.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		logger.Info().Msg("disclosure sessions stored in redis")
		return store, func() { store.Close() }, nil
	}

	store := sessionstore.NewMemoryStore()
	sweepCtx, stop := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				store.Sweep()
			}
		}
	}()
	logger.Warn().Msg("REDIS_URL not set, disclosure sessions kept in process memory")
	return store, stop, nil
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	signingKey, err := resolveSigningKey(cfg.AuthSigningKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid auth config")
	}

	ctx := context.Background()

	dispatcher, closeBus := newDispatcher(cfg, logger)
	defer closeBus()

	sessions, closeSessions, err := newSessionStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open session store")
	}
	defer closeSessions()

	codes := accesscode.Config{TTL: cfg.AccessCodeTTL, Length: cfg.AccessCodeLength}

	// Database
	var (
		pool *pgxpool.Pool
		svc  *labServices
	)
	if cfg.MemoryStore {
		logger.Warn().Msg("running with the in-memory store, data is lost on restart")
		svc = wireMemory(dispatcher, codes, logger)
	} else {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")
		svc = wirePostgres(pool, dispatcher, codes, logger)
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = ipExtractor(cfg)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID", auth.DevAuthHeader},
	}))

	// Auth middleware
	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: signingKey,
			Skipper:    auth.AuthSkipper,
		}))
	}

	// Tenant middleware
	if pool != nil {
		e.Use(db.TenantMiddleware(pool, cfg.DefaultTenant, auth.InfraSkipper))
	}

	// Audit middleware
	e.Use(middleware.Audit(logger, nil))

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, map[string]db.Pinger{"sessions": sessions}))

	// Staff routes
	template.NewHandler(svc.templates).RegisterRoutes(apiV1)
	patient.NewHandler(svc.patients).RegisterRoutes(apiV1)
	payment.NewHandler(svc.payments).RegisterRoutes(apiV1)
	result.NewHandler(svc.results).RegisterRoutes(apiV1)
	accesscode.NewHandler(svc.accessCodes).RegisterRoutes(apiV1)
	if pool != nil {
		reporting.NewHandler(pool).RegisterRoutes(apiV1)
	}

	// Patient self-service routes. Codes are guessable only by brute force,
	// so these get a much tighter per-client budget.
	accessLimit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.AccessRateLimitRPS,
		BurstSize:         cfg.AccessRateLimitBurst,
		IdleTTL:           30 * time.Minute,
		KeyFunc:           middleware.ClientIPKey,
	})
	disclosureSvc := disclosure.NewService(svc.accessCodes, svc.results, svc.templates, sessions, logger)
	disclosure.NewHandler(disclosureSvc).RegisterRoutes(apiV1, accessLimit)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("pending notifications dropped")
	}
	logger.Info().Msg("server stopped")
	return nil
}
