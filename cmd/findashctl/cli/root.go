package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/clinicamia/findash/internal/analytics"
	"github.com/clinicamia/findash/internal/analytics/export"
	"github.com/clinicamia/findash/jobs"
)

const dateLayout = "2006-01-02"

// NewRootCommand assembles the findashctl command tree.
func NewRootCommand(env Env) *cobra.Command {
	root := &cobra.Command{
		Use:   "findashctl",
		Short: "Operate the clinic financial dashboard",
		Long: `findashctl computes dashboard reports straight from the ledgers,
queues cache warmups and invalidates cached reports.

Configuration is read from the same environment variables as the server
(PG_DSN, REDIS_ADDR, DASHBOARD_TIMEZONE, ...) and an optional .env file.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newKPIsCommand(env),
		newDashboardCommand(env),
		newTrendCommand(env),
		newJobsCommand(env),
		newCacheCommand(env),
	)
	return root
}

func newKPIsCommand(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kpis",
		Short: "Print the KPI report for a date range",
		Example: `  findashctl kpis
  findashctl kpis --start 2025-01-01 --end 2025-03-31 --format csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, _ := cmd.Flags().GetString("start")
			end, _ := cmd.Flags().GetString("end")
			format, _ := cmd.Flags().GetString("format")

			now := env.Now().In(env.Location())
			if start == "" && end == "" {
				start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).Format(dateLayout)
				end = now.Format(dateLayout)
			}
			period, err := analytics.ParseDateRange(start, end, env.Location())
			if err != nil {
				return err
			}
			svc, err := env.Reports(cmd.Context())
			if err != nil {
				return err
			}
			report, err := svc.GetKPIs(cmd.Context(), period, now)
			if err != nil {
				return err
			}
			switch format {
			case "csv":
				return export.WriteKPICSV(cmd.OutOrStdout(), report)
			case "json":
				return writeJSON(cmd.OutOrStdout(), report)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().String("start", "", "First day of the range (YYYY-MM-DD, default: first of this month)")
	cmd.Flags().String("end", "", "Last day of the range (YYYY-MM-DD, default: today)")
	cmd.Flags().String("format", "json", "Output format: json or csv")
	return cmd
}

func newDashboardCommand(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print the executive dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := asOfFlag(cmd, env)
			if err != nil {
				return err
			}
			svc, err := env.Reports(cmd.Context())
			if err != nil {
				return err
			}
			dash, err := svc.GetExecutiveDashboard(cmd.Context(), asOf)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), dash)
		},
	}
	cmd.Flags().String("as-of", "", "Dashboard day (YYYY-MM-DD, default: today)")
	return cmd
}

func newTrendCommand(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Print the monthly revenue and expense trend",
		RunE: func(cmd *cobra.Command, args []string) error {
			months, _ := cmd.Flags().GetInt("months")
			format, _ := cmd.Flags().GetString("format")
			if months < 0 || months > analytics.MaxTrendMonths {
				return fmt.Errorf("--months must be between 1 and %d", analytics.MaxTrendMonths)
			}
			svc, err := env.Reports(cmd.Context())
			if err != nil {
				return err
			}
			points, err := svc.GetTrend(cmd.Context(), months, env.Now())
			if err != nil {
				return err
			}
			if format == "csv" {
				return export.WriteTrendCSV(cmd.OutOrStdout(), points)
			}
			return writeJSON(cmd.OutOrStdout(), points)
		},
	}
	cmd.Flags().Int("months", 0, "Number of months ending with the current one (default: TREND_MONTHS)")
	cmd.Flags().String("format", "json", "Output format: json or csv")
	return cmd
}

func newJobsCommand(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage background jobs",
	}
	trigger := &cobra.Command{
		Use:   "trigger [job]",
		Short: "Enqueue a job (default: " + jobs.TaskDashboardWarmup + ")",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := jobs.TaskDashboardWarmup
			if len(args) == 1 {
				name = args[0]
			}
			var asOf time.Time
			if raw, _ := cmd.Flags().GetString("as-of"); raw != "" {
				parsed, err := time.ParseInLocation(dateLayout, raw, env.Location())
				if err != nil {
					return fmt.Errorf("--as-of: %w", err)
				}
				asOf = parsed
			}
			queue, err := env.Queue(cmd.Context())
			if err != nil {
				return err
			}
			info, err := queue.Trigger(cmd.Context(), name, asOf)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return err
		},
	}
	trigger.Flags().String("as-of", "", "Day to warm (YYYY-MM-DD, default: today)")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show the default queue state",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := env.Queue(cmd.Context())
			if err != nil {
				return err
			}
			s, err := queue.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), s)
		},
	}
	cmd.AddCommand(trigger, stats)
	return cmd
}

func newCacheCommand(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the report cache",
	}
	bump := &cobra.Command{
		Use:   "bump",
		Short: "Invalidate every cached report",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := env.Cache(cmd.Context())
			if err != nil {
				return err
			}
			ver, err := c.Bump(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "cache version %d\n", ver)
			return err
		},
	}
	cmd.AddCommand(bump)
	return cmd
}

func asOfFlag(cmd *cobra.Command, env Env) (time.Time, error) {
	raw, _ := cmd.Flags().GetString("as-of")
	if raw == "" {
		return env.Now(), nil
	}
	day, err := time.ParseInLocation(dateLayout, raw, env.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("--as-of: %w", err)
	}
	return day, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
