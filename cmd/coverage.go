package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"record-sync/core/reconcile"
	"record-sync/feature/coverage"

	"github.com/spf13/cobra"
)

var (
	// Flags for coverage command
	coverageStreamType string
	coverageStreamID   int
	coverageStart      string
	coverageEnd        string
	coverageJSON       bool
)

// coverageCmd prints which parts of a window are recorded locally.
var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Show local recording coverage and gaps for a window",
	Long: `Coverage lists the approved local recording spans and the gaps a sync run
would search for, per stream. Gaps shorter than the minimum gap are marked ignored.
Nothing is changed.

Output is a table on a terminal and JSON otherwise, or with --json.`,
	RunE: runCoverage,
}

func init() {
	f := coverageCmd.Flags()
	f.StringVar(&coverageStreamType, "stream_type", "", "stream type, `audio` or `video`")
	f.IntVar(&coverageStreamID, "stream_id", -1, "report only the stream with this id")
	f.StringVar(&coverageStart, "start", "", `start datetime in format "YYYY-MM-DD HH:mm"`)
	f.StringVar(&coverageEnd, "end", "", `end datetime in format "YYYY-MM-DD HH:mm"`)
	f.BoolVar(&coverageJSON, "json", false, "print JSON even on a terminal")
	_ = coverageCmd.MarkFlagRequired("stream_type")
	_ = coverageCmd.MarkFlagRequired("start")
	_ = coverageCmd.MarkFlagRequired("end")

	RootCmd.AddCommand(coverageCmd)
}

func runCoverage(cmd *cobra.Command, args []string) error {
	kind, err := reconcile.ParseKind(coverageStreamType)
	if err != nil {
		return err
	}
	start, end, err := periodWindow(coverageStart, coverageEnd, time.Local)
	if err != nil {
		return err
	}

	rt, err := bootstrap()
	if err != nil {
		return err
	}
	defer rt.Close()

	svc := coverage.NewService(rt.repo, rt.repo, rt.cfg.Sync.Policy(), rt.logger)
	report, err := svc.Report(cmd.Context(), kind, coverageStreamID, start, end)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if coverageJSON || !isTerminal(out) {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	_, err = fmt.Fprintln(out, renderCoverage(report))
	return err
}
