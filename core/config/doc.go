// Package config provides configuration management for record-sync.
//
// It utilizes Viper for loading configuration from environment variables, a .env file
// and an optional config.yaml.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Server: HTTP server settings (port, API key)
//   - Database: local recording database connection
//   - Storage: S3/MinIO credentials for object transfers
//   - Log: Logging level and format
//   - Sync: run lock, blob roots and reconciliation tolerances
//   - Sources: remote recording servers (config.yaml only)
//
// Scalar settings map to environment variables by upper-casing the key path, for
// example SYNC_LOCK_DIR or DATABASE_HOST.
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Sync.RootTemplate)
package config
