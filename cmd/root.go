package cmd

import (
	"errors"
	"fmt"
	"os"

	"record-sync/core/logger"
	"record-sync/core/reconcile"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// configDir is where .env and config.yaml are read from.
var configDir string

// RootCmd is the record-sync command tree.
var RootCmd = &cobra.Command{
	Use:   "record-sync",
	Short: "Recording coverage reconciliation",
	Long: `record-sync fills holes in the local recording archive with copies from
the other recording servers, following each stream's server priority order.
It also upgrades short or low quality local records when a better copy exists.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure. A run refused because
// another sync holds the lock exits with 2 so schedulers can tell it apart.
func Execute() {
	err := RootCmd.Execute()
	if err == nil {
		return
	}

	l, logErr := logger.New(&logger.Config{Level: "debug", Format: "console"})
	if logErr != nil {
		fmt.Fprintln(os.Stderr, err)
	} else {
		l.Error("Command failed", zap.Error(err))
		_ = l.Sync()
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if errors.Is(err, reconcile.ErrAlreadyRunning) {
		return 2
	}
	return 1
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configDir, "config", ".", "directory holding .env and config.yaml")
}
