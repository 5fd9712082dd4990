package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/engine-service-portal/internal/database"
	"github.com/sandeepkv93/engine-service-portal/internal/di"
	"github.com/sandeepkv93/engine-service-portal/internal/repository"
	"github.com/sandeepkv93/engine-service-portal/internal/service"
	"github.com/sandeepkv93/engine-service-portal/internal/tools/common"
	"github.com/sandeepkv93/engine-service-portal/internal/tools/ui"
)

type options struct {
	envFile string
	timeout time.Duration
	ci      bool
}

type employeeInput struct {
	code     string
	name     string
	email    string
	password string
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "seed", Short: "Employee credential seed tooling"}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", time.Minute, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(
		newEmployeeCommand(opts),
		newGrantAdminCommand(opts),
		newDryRunCommand(opts),
		newListCommand(opts),
	)
	return cmd
}

func newEmployeeCommand(opts *options) *cobra.Command {
	in := employeeInput{}
	cmd := &cobra.Command{
		Use:   "employee",
		Short: "Register an employee credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "seed employee", func(ctx context.Context, op *di.Operator) ([]string, error) {
				return seedEmployee(ctx, op, in)
			})
		},
	}
	cmd.Flags().StringVar(&in.code, "code", "", "employee code")
	cmd.Flags().StringVar(&in.name, "name", "", "display name")
	cmd.Flags().StringVar(&in.email, "email", "", "optional contact email")
	cmd.Flags().StringVar(&in.password, "password", "", "initial password")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newGrantAdminCommand(opts *options) *cobra.Command {
	var code, adminKey string
	cmd := &cobra.Command{
		Use:   "grant-admin",
		Short: "Grant admin to an employee using ADMIN_CODE from the environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "seed grant-admin", func(ctx context.Context, op *di.Operator) ([]string, error) {
				return grantAdmin(ctx, op, code, adminKey)
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "employee code")
	cmd.Flags().StringVar(&adminKey, "admin-key", "", "admin key to set")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("admin-key")
	return cmd
}

func newDryRunCommand(opts *options) *cobra.Command {
	in := employeeInput{}
	cmd := &cobra.Command{
		Use:   "dry-run",
		Short: "Report schema state and whether an employee code is free",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "seed dry-run", func(ctx context.Context, op *di.Operator) ([]string, error) {
				return dryRun(ctx, op, in.code)
			})
		},
	}
	cmd.Flags().StringVar(&in.code, "code", "", "employee code to check")
	return cmd
}

func newListCommand(opts *options) *cobra.Command {
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List employee credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "seed list", func(ctx context.Context, op *di.Operator) ([]string, error) {
				return listEmployees(ctx, op, repository.PageRequest{Page: page, PageSize: pageSize})
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", repository.DefaultPageSize, "page size")
	return cmd
}

func seedEmployee(ctx context.Context, op *di.Operator, in employeeInput) ([]string, error) {
	id, err := op.Auth.Register(ctx, service.RegisterInput{
		EmployeeCode: in.code,
		DisplayName:  in.name,
		ContactEmail: in.email,
		Password:     in.password,
	})
	if err != nil {
		return nil, describe(err)
	}
	return []string{fmt.Sprintf("registered %s (id=%d)", id.EmployeeCode, id.ID)}, nil
}

func grantAdmin(ctx context.Context, op *di.Operator, code, adminKey string) ([]string, error) {
	id, err := op.Auth.Elevate(ctx, service.ElevateInput{
		EmployeeCode: code,
		AdminCode:    op.Config.AdminCode,
		AdminKey:     adminKey,
	})
	if err != nil {
		return nil, describe(err)
	}
	return []string{fmt.Sprintf("admin granted to %s (id=%d)", id.EmployeeCode, id.ID)}, nil
}

func dryRun(ctx context.Context, op *di.Operator, code string) ([]string, error) {
	steps, err := database.Plan(op.DB.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	details := []string{"schema: up to date"}
	if len(steps) > 0 {
		details = []string{"schema: pending " + strings.Join(steps, "; "), "run `migrate up` before seeding"}
		return details, nil
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return details, nil
	}
	existing, err := op.Credentials.FindByEmployeeCode(ctx, code)
	switch {
	case errors.Is(err, repository.ErrCredentialNotFound):
		details = append(details, fmt.Sprintf("employee %s: free, would be registered", code))
	case err != nil:
		return nil, err
	case existing.IsAdmin:
		details = append(details, fmt.Sprintf("employee %s: exists (admin), grant-admin would rotate the key", code))
	default:
		details = append(details, fmt.Sprintf("employee %s: exists, registration would conflict", code))
	}
	return details, nil
}

func listEmployees(ctx context.Context, op *di.Operator, req repository.PageRequest) ([]string, error) {
	page, err := op.Credentials.ListPaged(ctx, req)
	if err != nil {
		return nil, err
	}
	details := make([]string, 0, len(page.Items)+1)
	details = append(details, fmt.Sprintf("page %d/%d, %d total", page.Page, page.TotalPages, page.Total))
	for _, c := range page.Items {
		role := "employee"
		if c.IsAdmin {
			role = "admin"
		}
		details = append(details, fmt.Sprintf("%d %s %q %s", c.ID, c.EmployeeCode, c.DisplayName, role))
	}
	return details, nil
}

// describe keeps the client-safe message and drops the wrapped cause.
func describe(err error) error {
	var ae *service.AuthError
	if errors.As(err, &ae) {
		return fmt.Errorf("%s: %s", ae.Kind, ae.Message)
	}
	return err
}

func execute(opts *options, title string, fn func(context.Context, *di.Operator) ([]string, error)) error {
	details, err := run(opts, title, func(ctx context.Context) ([]string, error) {
		if err := common.LoadEnvFile(opts.envFile); err != nil {
			return nil, err
		}
		op, err := di.InitializeOperator()
		if err != nil {
			return nil, err
		}
		defer func() { _ = op.Close() }()
		return fn(ctx, op)
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
