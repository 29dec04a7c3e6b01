// Package ui renders the inetwork CLI output with Lipgloss.
//
// Long-running commands (serve, publish, subscribe, tap) print a Header on
// start and then one line per received message or connection event.
// One-shot commands (send, discover) finish with a Result box.
//
// Output is plain text when stdout is not a terminal, so it can be piped
// or captured in tests.
//
// # Logging Integration
//
// zap logging stays silent unless INETWORK_LOG_LEVEL or --log-level is set,
// so the rendered output is not interleaved with log lines.
package ui
