// Package logging provides structured logging for inetwork peers.
//
// This package wraps a package-global zap logger with convenience functions
// for the logging patterns used by the transport, discovery and pub/sub
// packages.
//
// # Log Levels
//
//   - Debug: frames sent and received, discovery traffic, suppressed close errors, hex dumps
//   - Info: connections accepted and dropped, servers started and stopped
//   - Warn: non-fatal issues (malformed frames, discovery socket failures)
//   - Error: failures that stop a component
//
// # Specialized Logging
//
//	logging.LogConnection(id, remoteAddr, "accepted")
//	logging.LogMessage(remoteAddr, "received", msg.Name(), msg.IsInternal(), size)
//	logging.LogDiscovery("lookup_sent", zap.String("session", id))
//
// # Configuration
//
// Logging is silent until Initialize is called with a level or the
// INETWORK_LOG_LEVEL environment variable is set:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Output goes to stderr so CLI commands can keep stdout for their results.
package logging
