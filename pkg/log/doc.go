// Package log provides structured event logging for the MQTT state bridge.
//
// Events are captured for every connect, subscribe, publish, state merge,
// flush and error. Applications receive events through the Logger interface
// and decide where they go:
//
//   - SlogAdapter writes events to a slog.Logger (console, development)
//   - FileLogger appends events to a CBOR-encoded file (capture, replay)
//   - MultiLogger fans events out to several loggers at once
//   - NoopLogger discards everything
//
// The bridge never depends on a concrete logger; pass NoopLogger to disable
// logging entirely. Logging is observability only and is not part of the
// bridge's correctness contract.
package log
