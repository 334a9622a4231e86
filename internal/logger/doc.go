// Package logger wraps a zap sugared logger for the release tooling:
//   - a global logger writing human-readable console lines to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing for the --log-level flag,
//   - leveled convenience functions (Infof, WarnKV, ...).
//
// Every service receives a context and logs through it, so the CLI can scope
// the logger per subcommand.
package logger
