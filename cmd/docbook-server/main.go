package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/docbook/docbook/internal/config"
	"github.com/docbook/docbook/internal/domain/directory"
	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/internal/platform/db"
	"github.com/docbook/docbook/internal/platform/events"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "docbook-server",
		Short:        "Doctor appointment booking API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the booking API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			if cfg.IsDev() {
				logger.Warn().Msg("development mode: requests without a token are treated as admin; set ENV=production for real deployments")
			}
			return runServer(cfg, logger)
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
			target, _ := cmd.Flags().GetInt("to")
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.UpTo(ctx, target)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().Int("to", 0, "Stop after this version (0 applies all)")
	cmd.AddCommand(upCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatuses(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	})

	cmd.PersistentFlags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StoreDriver != config.StorePostgres {
		return fmt.Errorf("migrations need STORE_DRIVER=%s", config.StorePostgres)
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	ctx := cmd.Context()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, dir))
}

func printStatuses(w io.Writer, statuses []db.MigrationStatus) {
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

func doctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Manage doctors",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Provision a doctor",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := doctorFromFlags(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.StorePostgres {
				return fmt.Errorf("doctor add needs STORE_DRIVER=%s", config.StorePostgres)
			}
			clinic, err := cfg.ClinicLocation()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := directory.NewService(directory.NewDoctorRepoPG(pool), clinic)
			err = db.WithTx(ctx, pool, func(ctx context.Context) error {
				return svc.CreateDoctor(ctx, d)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created doctor %s (%s)\n", d.ID, d.Email)
			return nil
		},
	}
	f := addCmd.Flags()
	f.String("name", "", "Display name")
	f.String("email", "", "Login email (unique)")
	f.String("speciality", "", "Speciality, e.g. Dermatologist")
	f.String("degree", "", "Degree")
	f.String("experience", "", "Experience, e.g. 4 Years")
	f.String("about", "", "Short biography")
	f.String("fees", "0", "Consultation fee")
	f.Int("open", 0, "Opening hour (0 with --close 0 uses 10-21)")
	f.Int("close", 0, "Closing hour")
	f.String("timezone", "", "IANA timezone (defaults to CLINIC_TIMEZONE)")
	cmd.AddCommand(addCmd)

	slotsCmd := &cobra.Command{
		Use:   "slots <doctor-id>",
		Short: "Print a doctor's free slots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid doctor id: %w", err)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			svcs, err := newServices(cfg, newLogger(cfg), st, events.Discard{})
			if err != nil {
				return err
			}
			days, err := svcs.scheduling.SlotGrid(ctx, doctorID)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, day := range days {
				times := make([]string, len(day.Slots))
				for i, s := range day.Slots {
					times[i] = s.TimeKey
				}
				fmt.Fprintf(w, "%s %-10s %2d  %s\n", day.Weekday, day.DateKey, len(times), strings.Join(times, ", "))
			}
			return nil
		},
	}
	cmd.AddCommand(slotsCmd)

	return cmd
}

func doctorFromFlags(cmd *cobra.Command) (*directory.Doctor, error) {
	f := cmd.Flags()
	name, _ := f.GetString("name")
	email, _ := f.GetString("email")
	speciality, _ := f.GetString("speciality")
	if name == "" || email == "" || speciality == "" {
		return nil, fmt.Errorf("--name, --email and --speciality are required")
	}
	rawFees, _ := f.GetString("fees")
	fees, err := decimal.NewFromString(rawFees)
	if err != nil {
		return nil, fmt.Errorf("invalid --fees: %w", err)
	}
	d := &directory.Doctor{
		Name:       name,
		Email:      email,
		Speciality: speciality,
		Fees:       fees,
		Available:  true,
	}
	d.Degree, _ = f.GetString("degree")
	d.Experience, _ = f.GetString("experience")
	d.About, _ = f.GetString("about")
	d.OpeningHour, _ = f.GetInt("open")
	d.ClosingHour, _ = f.GetInt("close")
	d.Timezone, _ = f.GetString("timezone")
	return d, nil
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Mint a signed access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawUser, _ := cmd.Flags().GetString("user")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			userID, err := uuid.Parse(rawUser)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tok, err := auth.IssueToken(jwtConfig(cfg), userID, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	issueCmd.Flags().String("user", "", "User ID (UUID) placed in the subject claim")
	issueCmd.Flags().String("role", auth.RolePatient, "Role: patient, doctor or admin")
	issueCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	cmd.AddCommand(issueCmd)

	return cmd
}
