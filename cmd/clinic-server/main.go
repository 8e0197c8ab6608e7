package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dentaldesk/clinic/internal/clinic"
	"github.com/dentaldesk/clinic/internal/config"
	"github.com/dentaldesk/clinic/internal/domain/catalog"
	"github.com/dentaldesk/clinic/internal/domain/dashboard"
	"github.com/dentaldesk/clinic/internal/domain/identity"
	"github.com/dentaldesk/clinic/internal/platform/auth"
	"github.com/dentaldesk/clinic/internal/platform/db"
	"github.com/dentaldesk/clinic/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "clinic-server",
		Short:        "Dental clinic dashboard API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(statsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// migrationFiles prefers an on-disk MIGRATIONS_DIR so operators can ship
// extra files without a rebuild; otherwise the embedded set is used.
func migrationFiles(cfg *config.Config) fs.FS {
	if cfg.MigrationsDir != "" {
		if info, err := os.Stat(cfg.MigrationsDir); err == nil && info.IsDir() {
			return os.DirFS(cfg.MigrationsDir)
		}
	}
	return migrations.FS
}

// withPool loads config, opens the pool and runs fn. Used by every command
// except serve, which manages its own lifetime.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
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

	return fn(ctx, cfg, pool)
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

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				schema, err := db.SchemaFor(tenantOrDefault(tenant, cfg))
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
				count, err := db.NewMigrator(pool, migrationFiles(cfg)).Up(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("tenant", "", "Clinic tenant (defaults to DEFAULT_TENANT)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				schema, err := db.SchemaFor(tenantOrDefault(tenant, cfg))
				if err != nil {
					return err
				}

				statuses, err := db.NewMigrator(pool, migrationFiles(cfg)).Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(cmd, schema, statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("tenant", "", "Clinic tenant (defaults to DEFAULT_TENANT)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printMigrationStatus(cmd *cobra.Command, schema string, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage clinic tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a clinic schema and apply migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if _, err := db.SchemaFor(name); err != nil {
				return err
			}

			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Creating tenant schema: tenant_%s\n", name)
				if err := db.CreateTenantSchema(ctx, pool, name, migrationFiles(cfg)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tenant created. Seed it with: clinic-server seed --tenant %s\n", name)
				return nil
			})
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")

	cmd.AddCommand(createCmd)
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the default procedure catalog and admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				logger := newLogger(cfg.Env)
				if cfg.SeedAdminPassword == "" {
					return fmt.Errorf("SEED_ADMIN_PASSWORD is required when ENV=%q", cfg.Env)
				}

				tenant = tenantOrDefault(tenant, cfg)
				catalogSvc := catalog.NewService(catalog.NewProcedureRepo(pool), logger)
				identitySvc := identity.NewService(identity.NewUserRepo(pool), nil, nil, logger)

				return db.WithTenantConn(ctx, pool, tenant, func(ctx context.Context) error {
					return seed(ctx, catalogSvc, identitySvc, cfg, logger.With().Str("tenant", tenant).Logger())
				})
			})
		},
	}
	cmd.Flags().String("tenant", "", "Clinic tenant (defaults to DEFAULT_TENANT)")
	return cmd
}

type procedureSeeder interface {
	SeedDefaults(ctx context.Context) (int, error)
}

type adminSeeder interface {
	SeedAdmin(ctx context.Context, email, password string) (bool, error)
}

func seed(ctx context.Context, procs procedureSeeder, admins adminSeeder, cfg *config.Config, logger zerolog.Logger) error {
	n, err := procs.SeedDefaults(ctx)
	if err != nil {
		return fmt.Errorf("seed procedures: %w", err)
	}
	logger.Info().Int("procedures", n).Msg("procedure catalog seeded")

	created, err := admins.SeedAdmin(ctx, cfg.SeedAdminEmail, cfg.SeedAdminPassword)
	if err != nil {
		return err
	}
	if !created {
		logger.Info().Msg("admin account already present, skipped")
	}
	return nil
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print clinic dashboard totals as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			dateFlag, _ := cmd.Flags().GetString("date")

			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				loc, err := cfg.Location()
				if err != nil {
					return err
				}
				svc := dashboard.NewService(dashboard.NewPGLoader(pool), loc)

				today, err := statsDate(dateFlag, svc.Today())
				if err != nil {
					return err
				}

				tenant = tenantOrDefault(tenant, cfg)
				return db.WithTenantConn(ctx, pool, tenant, func(ctx context.Context) error {
					ctx = auth.WithIdentity(ctx, "cli", auth.RoleAdmin)
					stats, err := svc.ClinicStats(ctx, today)
					if err != nil {
						return err
					}
					return writeStats(cmd, tenant, today, stats)
				})
			})
		},
	}
	cmd.Flags().String("tenant", "", "Clinic tenant (defaults to DEFAULT_TENANT)")
	cmd.Flags().String("date", "", "Day counted as today, YYYY-MM-DD (defaults to today in CLINIC_TIMEZONE)")
	return cmd
}

func statsDate(flag string, fallback clinic.Date) (clinic.Date, error) {
	if flag == "" {
		return fallback, nil
	}
	d, err := clinic.ParseDate(flag)
	if err != nil {
		return clinic.Date{}, fmt.Errorf("--date: %w", err)
	}
	return d, nil
}

func writeStats(cmd *cobra.Command, tenant string, day clinic.Date, stats clinic.DashboardStats) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Tenant      string                `json:"tenant"`
		Date        clinic.Date           `json:"date"`
		GeneratedAt time.Time             `json:"generated_at"`
		Stats       clinic.DashboardStats `json:"stats"`
	}{tenant, day, time.Now().UTC(), stats})
}

func tenantOrDefault(tenant string, cfg *config.Config) string {
	if tenant != "" {
		return tenant
	}
	return cfg.DefaultTenant
}
