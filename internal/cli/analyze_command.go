package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"auralis.click/internal/tracking"
)

// analyzeFlags are shared by every analyze subcommand
type analyzeFlags struct {
	days    int
	preset  string
	since   string
	session string
	limit   int
}

func (f *analyzeFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.days, "days", 7, "Number of days to analyze (0 = all time)")
	cmd.Flags().StringVar(&f.preset, "preset", "", "Date preset (today, yesterday, last-week, this-week, this-month, all-time)")
	cmd.Flags().StringVar(&f.since, "since", "", `Start of the range in plain words, e.g. "3 hours ago" or "last monday"`)
	cmd.Flags().StringVar(&f.session, "session", "", "Restrict to one session ID")
	cmd.Flags().IntVar(&f.limit, "limit", 20, "Maximum number of results to show")
}

// filter turns the flags into a query filter. --since wins over --days.
func (f *analyzeFlags) filter(now time.Time) (tracking.QueryFilter, error) {
	filter := tracking.QueryFilter{
		Days:       f.days,
		DatePreset: f.preset,
		SessionID:  f.session,
		Limit:      f.limit,
	}
	if f.since != "" {
		start, err := tracking.ParseNaturalDate(f.since, now)
		if err != nil {
			return filter, fmt.Errorf("invalid --since value: %w", err)
		}
		filter.StartTime = &start
		filter.Days = 0
	}
	return filter, nil
}

// timeContext describes the filter's time range for headers
func timeContext(filter tracking.QueryFilter) string {
	switch {
	case filter.DatePreset != "":
		return filter.DatePreset
	case filter.StartTime != nil:
		return "since " + filter.StartTime.Format(time.DateTime)
	case filter.Days > 0:
		return fmt.Sprintf("last %d days", filter.Days)
	default:
		return "all time"
	}
}

// newAnalyzeCommand creates the analyze command with subcommands
func newAnalyzeCommand() *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze telemetry from past sessions",
		Long:  "Analyze the telemetry database: assets that failed to load, render deadline misses and past sessions",
	}

	analyzeCmd.AddCommand(newAnalyzeFailuresCommand())
	analyzeCmd.AddCommand(newAnalyzeSummaryCommand())
	analyzeCmd.AddCommand(newAnalyzeSessionsCommand())

	return analyzeCmd
}

// trackingDB opens the telemetry database. ok is false, after a hint has
// been printed, when tracking is off.
func trackingDB(cmd *cobra.Command) (*CLI, bool, error) {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return nil, false, fmt.Errorf("CLI instance not found in context")
	}
	cli.initializeTracking()
	if cli.trackingDB == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Telemetry is not enabled or the database is not available.")
		fmt.Fprintln(cmd.OutOrStdout(), "Enable it with AURALIS_TRACKING=true")
		return cli, false, nil
	}
	return cli, true, nil
}

func newAnalyzeFailuresCommand() *cobra.Command {
	var flags analyzeFlags

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "Show assets that failed to load",
		Long: `Show assets that failed to load, most frequent first.

A failed asset plays as silence, so a scene with a typo in a path still runs.
This command lists those paths with the last reported reason.

Examples:
  auralis analyze failures                  # Last 7 days
  auralis analyze failures --preset today   # Today only
  auralis analyze failures --since "2 hours ago"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, ok, err := trackingDB(cmd)
			if err != nil || !ok {
				return err
			}
			filter, err := flags.filter(time.Now())
			if err != nil {
				return err
			}
			slog.Debug("running analyze failures", "filter", filter)

			failures, err := tracking.GetAssetFailures(cli.trackingDB, filter)
			if err != nil {
				return fmt.Errorf("failed to analyze asset failures: %w", err)
			}
			return outputFailures(cmd.OutOrStdout(), failures, filter)
		},
	}
	flags.register(cmd)
	return cmd
}

func outputFailures(w io.Writer, failures []tracking.AssetFailure, filter tracking.QueryFilter) error {
	if len(failures) == 0 {
		fmt.Fprintf(w, "No asset failures (%s).\n", timeContext(filter))
		return nil
	}

	fmt.Fprintf(w, "Asset Failures (%s):\n\n", timeContext(filter))
	for _, f := range failures {
		displayPath := f.Path
		if len(displayPath) > 40 {
			displayPath = "..." + displayPath[len(displayPath)-37:]
		}
		fmt.Fprintf(w, "  %-40s %4d  %s\n", displayPath, f.Count, f.LastReason)
	}
	return nil
}

func newAnalyzeSummaryCommand() *cobra.Command {
	var flags analyzeFlags

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show render performance across sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, ok, err := trackingDB(cmd)
			if err != nil || !ok {
				return err
			}
			filter, err := flags.filter(time.Now())
			if err != nil {
				return err
			}

			summary, err := tracking.GetRenderSummary(cli.trackingDB, filter)
			if err != nil {
				return fmt.Errorf("failed to summarize render stats: %w", err)
			}
			outputSummary(cmd.OutOrStdout(), summary, filter)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func outputSummary(w io.Writer, s tracking.RenderSummary, filter tracking.QueryFilter) {
	fmt.Fprintf(w, "Render Summary (%s):\n\n", timeContext(filter))
	if s.Sessions == 0 {
		fmt.Fprintln(w, "  No sessions recorded.")
		return
	}
	fmt.Fprintf(w, "  Sessions:        %d\n", s.Sessions)
	fmt.Fprintf(w, "  Blocks rendered: %d\n", s.Blocks)
	fmt.Fprintf(w, "  Overruns:        %d (%.3f%%)\n", s.Overruns, 100*s.OverrunRate())
	fmt.Fprintf(w, "  Skipped swaps:   %d\n", s.SkippedSwaps)
	fmt.Fprintf(w, "  Slowest block:   %s\n", s.MaxBlockTime)
	fmt.Fprintf(w, "  Out of pool:     %d\n", s.OutOfPool)
}

func newAnalyzeSessionsCommand() *cobra.Command {
	var flags analyzeFlags

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, ok, err := trackingDB(cmd)
			if err != nil || !ok {
				return err
			}
			filter, err := flags.filter(time.Now())
			if err != nil {
				return err
			}

			sessions, err := tracking.GetSessions(cli.trackingDB, filter)
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			outputSessions(cmd.OutOrStdout(), sessions, filter)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func outputSessions(w io.Writer, sessions []tracking.Session, filter tracking.QueryFilter) {
	if len(sessions) == 0 {
		fmt.Fprintf(w, "No sessions (%s).\n", timeContext(filter))
		return
	}

	fmt.Fprintf(w, "Sessions (%s):\n\n", timeContext(filter))
	for _, s := range sessions {
		duration := "running"
		if s.EndedAt > 0 {
			duration = (time.Duration(s.EndedAt-s.StartedAt) * time.Second).String()
		}
		fmt.Fprintf(w, "  %s  %s  %-6s %-6s %6d Hz  %-9s %d failures\n",
			shortID(s.ID),
			time.Unix(s.StartedAt, 0).Format(time.DateTime),
			s.Mode, s.Backend, s.SampleRate, duration, s.Failures)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
