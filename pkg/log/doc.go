/*
Package log provides structured logging for Burrow using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for production debugging.

# Usage

Initialize once at startup (the CLI does this from --log-level/--log-json):

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Component loggers:

	logger := log.WithComponent("sync")
	logger.Info().Str("upstream", url).Msg("Catch-up complete")

	logger = log.WithNodeID(cfg.NodeID)
	logger.Warn().Err(err).Msg("Propagation push failed")

# Output Formats

JSON (production):

	{"level":"info","component":"sync","upstream":"http://central:8080","time":"2024-06-01T10:30:00Z","message":"Catch-up complete"}

Console (development):

	2024-06-01T10:30:00Z INF Catch-up complete component=sync upstream=http://central:8080

# See Also

  - zerolog: https://github.com/rs/zerolog
*/
package log
