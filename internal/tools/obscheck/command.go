package obscheck

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/engine-service-portal/internal/tools/common"
	"github.com/sandeepkv93/engine-service-portal/internal/tools/loadgen"
	"github.com/sandeepkv93/engine-service-portal/internal/tools/ui"
)

type options struct {
	grafana Grafana
	baseURL string
	traffic time.Duration
	settle  time.Duration
	timeout time.Duration
	ci      bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "obscheck", Short: "Verify auth metrics, traces and logs line up in Grafana"}
	f := cmd.PersistentFlags()
	f.StringVar(&opts.grafana.BaseURL, "grafana-url", "http://localhost:3000", "Grafana base URL")
	f.StringVar(&opts.grafana.User, "grafana-user", "admin", "Grafana username")
	f.StringVar(&opts.grafana.Password, "grafana-password", "admin", "Grafana password")
	f.StringVar(&opts.grafana.ServiceName, "service-name", "engine-service-portal", "OTel service name")
	f.IntVar(&opts.grafana.PrometheusID, "prometheus-ds", 1, "Prometheus datasource id")
	f.IntVar(&opts.grafana.LokiID, "loki-ds", 2, "Loki datasource id")
	f.IntVar(&opts.grafana.TempoID, "tempo-ds", 3, "Tempo datasource id")
	f.DurationVar(&opts.grafana.Window, "window", 20*time.Minute, "query lookback window")
	f.StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "API base URL for traffic")
	f.DurationVar(&opts.traffic, "traffic", 6*time.Second, "auth traffic duration before checking")
	f.DurationVar(&opts.settle, "settle", 8*time.Second, "wait for exporters to flush")
	f.DurationVar(&opts.timeout, "timeout", 3*time.Minute, "overall timeout")
	f.BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newRunCommand(opts))
	return cmd
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Generate auth traffic and follow exemplar to trace to log",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := run(opts, "obscheck run", func(ctx context.Context) ([]string, error) {
				res, err := loadgen.Run(ctx, loadgen.Config{
					BaseURL:     opts.baseURL,
					Profile:     "auth",
					Duration:    opts.traffic,
					RPS:         20,
					Concurrency: 6,
					Seed:        time.Now().Unix(),
				})
				if err != nil {
					return nil, err
				}
				details := []string{fmt.Sprintf("traffic generated total=%d failures=%d", res.TotalRequests, res.Failures)}
				select {
				case <-ctx.Done():
					return details, ctx.Err()
				case <-time.After(opts.settle):
				}
				more, err := Verify(ctx, opts.grafana)
				return append(details, more...), err
			})
			if opts.ci {
				common.PrintCIResult(err == nil, "obscheck run", details, err)
			}
			if err != nil {
				os.Exit(4)
			}
			return nil
		},
	}
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, opts.timeout, fn)
}
