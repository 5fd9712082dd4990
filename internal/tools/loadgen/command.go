package loadgen

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/engine-service-portal/internal/tools/common"
	"github.com/sandeepkv93/engine-service-portal/internal/tools/ui"
)

// Margin on top of the traffic duration for in-flight requests to drain.
const drainMargin = 15 * time.Second

func NewRootCommand() *cobra.Command {
	var (
		cfg    Config
		max5xx int64
		ci     bool
	)
	cmd := &cobra.Command{Use: "loadgen", Short: "Generate employee auth traffic against a running API"}
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.BaseURL, "base-url", "http://localhost:8080", "API base URL")
	flags.StringVar(&cfg.Profile, "profile", "auth", "traffic profile: auth|protected|error-heavy")
	flags.DurationVar(&cfg.Duration, "duration", 15*time.Second, "traffic duration")
	flags.IntVar(&cfg.RPS, "rps", 20, "requests per second")
	flags.IntVar(&cfg.Concurrency, "concurrency", 6, "concurrent workers")
	flags.Int64Var(&cfg.Seed, "seed", time.Now().Unix(), "run id embedded in generated employee codes")
	flags.StringVar(&cfg.Password, "password", "", "password for generated employees (defaults to a fixed test password)")
	flags.Int64Var(&max5xx, "max-5xx", -1, "fail the run when more 5xx responses are seen (-1 disables)")
	flags.BoolVar(&ci, "ci", false, "non-interactive machine-readable output")

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run load generation",
		RunE: func(cmd *cobra.Command, args []string) error {
			const title = "loadgen run"
			action := func(ctx context.Context) ([]string, error) {
				res, err := Run(ctx, cfg)
				if err != nil {
					return nil, err
				}
				lines := Summary(res)
				if max5xx >= 0 && res.Status5xx > max5xx {
					return lines, fmt.Errorf("%d server errors exceed the allowed %d", res.Status5xx, max5xx)
				}
				return lines, nil
			}

			var (
				details []string
				err     error
			)
			if ci {
				ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Duration+drainMargin)
				details, err = action(ctx)
				cancel()
				common.PrintCIResult(err == nil, title, details, err)
			} else {
				details, err = ui.Run(title, cfg.Duration+drainMargin, action)
			}
			if err != nil {
				os.Exit(4)
			}
			return nil
		},
	})
	return cmd
}

// Summary renders a result as key=value lines for the terminal and CI output.
func Summary(res Result) []string {
	return []string{
		fmt.Sprintf("total_requests=%d failures=%d", res.TotalRequests, res.Failures),
		fmt.Sprintf("status 2xx=%d 4xx=%d (429=%d) 5xx=%d", res.Status2xx, res.Status4xx, res.Status429, res.Status5xx),
		fmt.Sprintf("max_latency=%s", res.MaxLatency.Round(time.Millisecond)),
	}
}
