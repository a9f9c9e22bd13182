package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/domain/admission"
	"github.com/hms/hms/internal/domain/emergency"
	"github.com/hms/hms/internal/domain/feedback"
	"github.com/hms/hms/internal/domain/identity"
	"github.com/hms/hms/internal/domain/medication"
	"github.com/hms/hms/internal/domain/nursing"
	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/mail"
	"github.com/hms/hms/internal/platform/metrics"
	"github.com/hms/hms/internal/platform/middleware"
	"github.com/hms/hms/internal/platform/validation"
	"github.com/hms/hms/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "hms-server",
		Short: "Hospital management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger writes JSON to w, or human-readable lines in development. A nil
// cfg is used before configuration has loaded.
func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true}
	}
	return zerolog.New(w).With().Timestamp().Str("service", "hms").Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// migrationFiles prefers an on-disk directory when one is given and falls
// back to the schema embedded in the binary.
func migrationFiles(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationFiles(dir)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default: embedded)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationFiles(dir)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

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
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default: embedded)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := identity.RegisterInput{}
			in.Username, _ = cmd.Flags().GetString("username")
			in.Email, _ = cmd.Flags().GetString("email")
			in.Phone, _ = cmd.Flags().GetString("phone")
			in.Address, _ = cmd.Flags().GetString("address")
			in.Age, _ = cmd.Flags().GetInt("age")
			in.Gender, _ = cmd.Flags().GetString("gender")
			in.Role, _ = cmd.Flags().GetString("role")
			in.Password, _ = cmd.Flags().GetString("password")
			if in.Password == "" {
				in.Password = os.Getenv("HMS_ADMIN_PASSWORD")
			}
			in.Password2 = in.Password

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stdout)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := identity.NewService(
				identity.NewUserRepoPG(pool),
				identity.NewPatientRepoPG(pool),
				identity.NewStaffRepoPG(pool),
				identity.NewSpecialtyRepoPG(pool),
				db.NewTransactor(pool),
				identity.Security{Mailer: mail.NewLogMailer(logger)},
				logger,
			)
			u, err := svc.CreateAdmin(ctx, in)
			if err != nil {
				return err
			}
			fmt.Printf("Created admin %s (%s)\n", u.Username, u.ID)
			return nil
		},
	}
	createAdmin.Flags().String("username", "", "Login name")
	createAdmin.Flags().String("email", "", "Email address")
	createAdmin.Flags().String("phone", "0000000", "Phone number")
	createAdmin.Flags().String("address", "Hospital", "Postal address")
	createAdmin.Flags().Int("age", identity.MinAge, "Age in years")
	createAdmin.Flags().String("gender", "Other", "Male, Female or Other")
	createAdmin.Flags().String("role", string(auth.RoleDoctor), "Staff role carried by the admin")
	createAdmin.Flags().String("password", "", "Password (or HMS_ADMIN_PASSWORD)")
	_ = createAdmin.MarkFlagRequired("username")
	_ = createAdmin.MarkFlagRequired("email")
	cmd.AddCommand(createAdmin)

	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		boot := newLogger(nil, os.Stderr)
		boot.Error().Err(err).Msg("failed to load config")
		return err
	}
	logger := newLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid timezone")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")
	tx := db.NewTransactor(pool)

	// Token revocation: Redis when configured so every replica sees logouts.
	var revocations auth.RevocationStore
	if cfg.RedisURL != "" {
		client, err := auth.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		revocations = auth.NewRedisRevocationStore(client)
		logger.Info().Msg("using redis token revocation store")
	} else {
		mem := auth.NewMemoryRevocationStore(5 * time.Minute)
		defer mem.Close()
		revocations = mem
	}

	var mailer mail.Mailer = mail.NewLogMailer(logger)
	if cfg.SendGridAPIKey != "" {
		mailer = mail.NewSendGridMailer(cfg.SendGridAPIKey, cfg.MailFrom, "Hospital Management")
	}

	tokens := auth.NewTokenService(auth.JWTConfig{
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.SigningKey(),
		TTL:        cfg.AccessTokenTTL,
	})
	clk := clock.New(loc)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	if cfg.MetricsEnabled {
		metrics.Register()
		e.Use(middleware.Metrics())
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", db.LivenessHandler(version))
	e.GET("/health/db", db.HealthHandler(pool))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// Identity
	identitySvc := identity.NewService(
		identity.NewUserRepoPG(pool),
		identity.NewPatientRepoPG(pool),
		identity.NewStaffRepoPG(pool),
		identity.NewSpecialtyRepoPG(pool),
		tx,
		identity.Security{
			Tokens:       tokens,
			Revocations:  revocations,
			Resets:       auth.NewResetTokenIssuer(cfg.SigningKey(), cfg.ResetTokenTTL, revocations),
			Mailer:       mailer,
			ResetURLBase: cfg.ResetURLBase,
		},
		logger,
	)
	public := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg))
	api := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg), auth.JWTMiddleware(tokens, revocations, identitySvc))
	identity.NewHandler(identitySvc).RegisterRoutes(public, api)
	dir := NewIdentityDirectory(identitySvc)

	// Scheduling
	schedulingSvc := scheduling.NewService(scheduling.NewBookingRepoPG(pool), dir, tx, clk, logger)
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(api)

	// Admission
	admissionSvc := admission.NewService(
		admission.NewRoomRepoPG(pool),
		admission.NewAdmissionRepoPG(pool),
		admission.NewDischargeRequestRepoPG(pool),
		dir, tx, clk, logger,
	)
	admission.NewHandler(admissionSvc).RegisterRoutes(api)

	// Nursing
	nursingSvc := nursing.NewService(nursing.NewDutyRepoPG(pool), dir, logger)
	nursing.NewHandler(nursingSvc).RegisterRoutes(api)

	// Medication
	medicationSvc := medication.NewService(
		medication.NewMedicineRepoPG(pool),
		medication.NewPrescriptionRepoPG(pool),
		dir, tx, logger,
	)
	medication.NewHandler(medicationSvc).RegisterRoutes(api)

	// Emergency
	emergencySvc := emergency.NewService(emergency.NewCaseRepoPG(pool), dir, clk, logger)
	emergency.NewHandler(emergencySvc).RegisterRoutes(api)

	// Feedback
	feedbackSvc := feedback.NewService(feedback.NewRepoPG(pool), logger)
	feedback.NewHandler(feedbackSvc).RegisterRoutes(api)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("timezone", loc.String()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
