package migrate

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/sandeepkv93/engine-service-portal/internal/config"
	"github.com/sandeepkv93/engine-service-portal/internal/database"
	"github.com/sandeepkv93/engine-service-portal/internal/tools/common"
	"github.com/sandeepkv93/engine-service-portal/internal/tools/ui"
)

type options struct {
	envFile string
	timeout time.Duration
	ci      bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Credential schema migration tooling",
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")

	cmd.AddCommand(
		newUpCommand(opts),
		newStatusCommand(opts),
		newPlanCommand(opts),
	)
	return cmd
}

func newUpCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "migrate up", func(ctx context.Context, db *gorm.DB) ([]string, error) {
				steps, err := database.Plan(db.WithContext(ctx))
				if err != nil {
					return nil, err
				}
				if err := database.Migrate(db.WithContext(ctx)); err != nil {
					return nil, err
				}
				if len(steps) == 0 {
					return []string{"schema already up to date"}, nil
				}
				return append([]string{fmt.Sprintf("applied %d change(s)", len(steps))}, steps...), nil
			})
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Compare the live schema with the credential model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "migrate status", func(ctx context.Context, db *gorm.DB) ([]string, error) {
				statuses, err := database.Status(db.WithContext(ctx))
				if err != nil {
					return nil, err
				}
				return describeStatus(statuses), nil
			})
		},
	}
}

func newPlanCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show pending schema changes without applying them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "migrate plan", func(ctx context.Context, db *gorm.DB) ([]string, error) {
				steps, err := database.Plan(db.WithContext(ctx))
				if err != nil {
					return nil, err
				}
				if len(steps) == 0 {
					return []string{"no pending changes"}, nil
				}
				return append(steps, "no mutation executed in plan mode"), nil
			})
		},
	}
}

func describeStatus(statuses []database.MigrationStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, st := range statuses {
		switch {
		case !st.Exists:
			out = append(out, st.Table+": missing")
		case len(st.Missing) > 0:
			out = append(out, st.Table+": missing columns "+strings.Join(st.Missing, ", "))
		default:
			out = append(out, st.Table+": up to date")
		}
	}
	return out
}

func execute(opts *options, title string, fn func(context.Context, *gorm.DB) ([]string, error)) error {
	details, err := run(opts, title, func(ctx context.Context) ([]string, error) {
		db, err := loadDB(opts.envFile)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		defer func() { _ = sqlDB.Close() }()
		if err := sqlDB.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("db ping: %w", err)
		}
		return fn(ctx, db)
	})
	if opts.ci {
		common.PrintCIResult(err == nil, title, details, err)
	}
	if err != nil {
		os.Exit(3)
	}
	return nil
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, opts.timeout, fn)
}

func loadDB(envFile string) (*gorm.DB, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return database.Open(cfg)
}
