package config

import (
	"fmt"
	"strings"
	"time"

	"record-sync/core/database"
	"record-sync/core/reconcile"
	"record-sync/core/storage"
)

// SyncConfig holds settings for reconciliation runs.
type SyncConfig struct {
	// ServerID overrides the server_number parameter of the local database when positive.
	ServerID int `mapstructure:"server_id" default:"0"`
	// TransferMode selects how blobs are copied: file or object.
	TransferMode string `mapstructure:"transfer_mode" default:"file"`
	// RootTemplate is the blob root of a server, formatted with its id.
	RootTemplate string `mapstructure:"root_template" default:"/mnt/fs_svr%d/recording/"`
	// SourceHostTemplate derives the database host of an unlisted source from its id.
	// Empty disables the fallback.
	SourceHostTemplate string `mapstructure:"source_host_template" default:""`
	// LockDir holds the run lock files.
	LockDir string `mapstructure:"lock_dir" default:"/tmp/record-sync"`
	// LockWaitSeconds waits for a held lock before giving up. Zero fails at once.
	LockWaitSeconds int `mapstructure:"lock_wait_seconds" default:"0"`
	// TaskStaleHours expires running task rows older than this. Zero keeps them forever.
	TaskStaleHours int `mapstructure:"task_stale_hours" default:"24"`
	// QueryTimeoutSeconds bounds each remote source query.
	QueryTimeoutSeconds int `mapstructure:"query_timeout_seconds" default:"60"`
	// MinGapSeconds is the shortest gap worth searching for.
	MinGapSeconds int `mapstructure:"min_gap_seconds" default:"20"`
	// MatchToleranceSeconds is the start/end drift allowed for upgrade candidates.
	MatchToleranceSeconds int `mapstructure:"match_tolerance_seconds" default:"10"`
	// SupersedeToleranceSeconds widens the range of local records revoked by an import.
	SupersedeToleranceSeconds int `mapstructure:"supersede_tolerance_seconds" default:"15"`
	// AddModeSlackMinutes extends the add mode search window past the hour.
	AddModeSlackMinutes int `mapstructure:"add_mode_slack_minutes" default:"3"`
}

// SourceConfig describes one remote recording server.
type SourceConfig struct {
	// ID is the server number used in priority lists and origin columns.
	ID int `mapstructure:"id"`
	// Root is the blob root of the server. Defaults to SyncConfig.RootTemplate.
	Root string `mapstructure:"root"`
	// Database is the server's record database.
	Database database.Config `mapstructure:"database"`
}

// Policy applies the configured tolerances on top of the default policy.
func (c SyncConfig) Policy() reconcile.Policy {
	p := reconcile.DefaultPolicy()
	if c.MinGapSeconds > 0 {
		p.MinGap = time.Duration(c.MinGapSeconds) * time.Second
	}
	if c.MatchToleranceSeconds > 0 {
		p.MatchTolerance = time.Duration(c.MatchToleranceSeconds) * time.Second
	}
	if c.SupersedeToleranceSeconds > 0 {
		p.SupersedeTolerance = time.Duration(c.SupersedeToleranceSeconds) * time.Second
	}
	if c.AddModeSlackMinutes > 0 {
		p.AddModeSlack = time.Duration(c.AddModeSlackMinutes) * time.Minute
	}
	return p
}

// QueryTimeout returns the per-query timeout for remote sources.
func (c SyncConfig) QueryTimeout() time.Duration {
	if c.QueryTimeoutSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// LockWait returns how long to wait for a held run lock.
func (c SyncConfig) LockWait() time.Duration {
	return time.Duration(c.LockWaitSeconds) * time.Second
}

// TaskStaleAfter returns the age after which a running task row is considered abandoned.
func (c SyncConfig) TaskStaleAfter() time.Duration {
	return time.Duration(c.TaskStaleHours) * time.Hour
}

// Validate checks cross-field constraints that defaults cannot express.
func (c *Config) Validate() error {
	switch storage.Mode(c.Sync.TransferMode) {
	case storage.ModeFile, storage.ModeObject:
	default:
		return fmt.Errorf("sync.transfer_mode must be %q or %q, got %q", storage.ModeFile, storage.ModeObject, c.Sync.TransferMode)
	}
	if !strings.Contains(c.Sync.RootTemplate, "%d") {
		return fmt.Errorf("sync.root_template must contain %%d, got %q", c.Sync.RootTemplate)
	}

	seen := make(map[int]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		if s.ID <= 0 {
			return fmt.Errorf("sources[%d]: id must be positive", i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("sources[%d]: duplicate id %d", i, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}
