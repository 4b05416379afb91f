// Package server holds the HTTP server configuration.
//
// The read-only coverage API started by the serve command listens on Config.Port
// and rejects requests that do not carry Config.ApiKey. Timeouts default to 30
// seconds for reading a request and 10 seconds for graceful shutdown.
package server
