// Package app wires the license server together and runs it.
//
// # Initialization Flow
//
//	1. Load configuration (defaults, YAML file, LICSRV_* environment)
//	2. Initialize logging and OpenTelemetry
//	3. Open the document stores for the configured driver (file or sqlite)
//	4. Build the license and trial managers, journal, mailer and backups
//	5. Build the services and mount the HTTP handlers behind the middleware chain
//
// NewComponents performs steps 3 and 4 on its own so the admin CLI can operate
// on the same stores without starting a server.
//
// # Graceful Shutdown
//
// Run serves until its context is cancelled. The HTTP server then drains
// within Server.ShutdownTimeout, the backup scheduler and rate limit sweeper
// stop, and telemetry and the database are released. Errors are returned to
// the caller; the package never calls os.Exit.
package app
