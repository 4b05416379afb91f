package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"record-sync/core/reconcile"
	"record-sync/core/timeline"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// windowLayout is the format of --start and --end.
const windowLayout = "2006-01-02 15:04"

var (
	// Flags shared by sync period and sync auto
	syncStreamType string
	syncStreamID   int
	syncApply      bool
	syncAddMode    bool
	syncNoTask     bool

	// Flags for sync period
	periodStart string
	periodEnd   string

	// Flags for sync auto
	autoDays  int
	autoHours int
)

// syncCmd is the parent command of the two window modes.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync records from other servers according to import orders",
	Long: `Sync fills uncovered periods of the local archive and upgrades weak local
records (shorter than 61 minutes or with a record rate below 1) with the best copy
found on the other servers.

Without --sync the run only reports what it would import.

Examples:
  # Report for an explicit window
  record-sync sync period --start "2024-03-10 00:00" --end "2024-03-11 00:00" --stream_type audio

  # Import the last two full days of video
  record-sync sync auto --days 2 --stream_type video --sync

  # Import the last 6 full hours of one stream, searching any server for holes
  record-sync sync auto --hours 6 --stream_type audio --stream_id 7 --sync --add_mode`,
}

var syncPeriodCmd = &cobra.Command{
	Use:   "period",
	Short: "Sync an explicit window",
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := periodWindow(periodStart, periodEnd, time.Local)
		if err != nil {
			return err
		}
		return runSync(cmd.Context(), start, end)
	},
}

var syncAutoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Sync a rolling window ending at the previous full day or hour",
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := autoWindow(time.Now(), autoDays, autoHours)
		if err != nil {
			return err
		}
		return runSync(cmd.Context(), start, end)
	},
}

func init() {
	pf := syncCmd.PersistentFlags()
	pf.StringVar(&syncStreamType, "stream_type", "", "stream type, `audio` or `video`")
	pf.IntVar(&syncStreamID, "stream_id", -1, "sync only the stream with this id")
	pf.BoolVar(&syncApply, "sync", false, "sync mode: update the local database and copy files")
	pf.BoolVar(&syncAddMode, "add_mode", false, "add mode: import every record of the first server that has any for an unfilled hole")
	pf.BoolVar(&syncNoTask, "no_task", false, "don't create a task for the run and don't check for other running syncs")
	_ = syncCmd.MarkPersistentFlagRequired("stream_type")

	syncPeriodCmd.Flags().StringVar(&periodStart, "start", "", `start datetime in format "YYYY-MM-DD HH:mm"`)
	syncPeriodCmd.Flags().StringVar(&periodEnd, "end", "", `end datetime in format "YYYY-MM-DD HH:mm"`)
	_ = syncPeriodCmd.MarkFlagRequired("start")
	_ = syncPeriodCmd.MarkFlagRequired("end")

	syncAutoCmd.Flags().IntVar(&autoDays, "days", 0, "sync the last N full days")
	syncAutoCmd.Flags().IntVar(&autoHours, "hours", 0, "sync the last N full hours")
	syncAutoCmd.MarkFlagsMutuallyExclusive("days", "hours")
	syncAutoCmd.MarkFlagsOneRequired("days", "hours")

	syncCmd.AddCommand(syncPeriodCmd, syncAutoCmd)
	RootCmd.AddCommand(syncCmd)
}

// periodWindow parses an explicit window in loc.
func periodWindow(start, end string, loc *time.Location) (time.Time, time.Time, error) {
	s, err := time.ParseInLocation(windowLayout, start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start %q must use the format YYYY-MM-DD HH:mm", reconcile.ErrValidation, start)
	}
	e, err := time.ParseInLocation(windowLayout, end, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end %q must use the format YYYY-MM-DD HH:mm", reconcile.ErrValidation, end)
	}
	return s, e, nil
}

// autoWindow returns the last days full days, or the last hours full hours, before now.
// The end is the start of the current day or hour.
func autoWindow(now time.Time, days, hours int) (time.Time, time.Time, error) {
	switch {
	case days > 0 && hours > 0:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: --days and --hours are mutually exclusive", reconcile.ErrValidation)
	case days > 0:
		end := timeline.BeginOfDay(now)
		return end.AddDate(0, 0, -days), end, nil
	case hours > 0:
		end := timeline.BeginOfHour(now)
		return end.Add(-time.Duration(hours) * time.Hour), end, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: --days or --hours must be a positive number", reconcile.ErrValidation)
	}
}

func runSync(parent context.Context, start, end time.Time) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	kind, err := reconcile.ParseKind(syncStreamType)
	if err != nil {
		return err
	}
	opts := reconcile.Options{
		Start:    start,
		End:      end,
		Kind:     kind,
		StreamID: syncStreamID,
		Sync:     syncApply,
		AddMode:  syncAddMode,
		NoTask:   syncNoTask,
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	rt, err := bootstrap()
	if err != nil {
		return err
	}
	defer rt.Close()

	engine, err := rt.engine(reconcile.NewLogObserver(rt.logger))
	if err != nil {
		return err
	}

	summary, err := engine.Run(ctx, opts)
	if summary != nil {
		fmt.Fprintln(os.Stdout, renderSummary(summary))
	}
	if errors.Is(err, context.Canceled) {
		rt.logger.Warn("Sync interrupted, rerun the same window to resume")
	}
	if err != nil {
		return err
	}
	if !opts.Sync {
		rt.logger.Info("Report only, no changes were made. Use --sync to import.", zap.Int("updated", summary.Updated))
	}
	return nil
}
