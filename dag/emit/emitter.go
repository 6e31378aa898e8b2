package emit

// Emitter receives and processes observability events from the engine.
//
// Emitters enable pluggable observability backends:
//   - Logging: stdout, files, syslog
//   - Distributed tracing: OpenTelemetry
//   - In-memory capture for tests and dashboards
//
// Implementations should be:
//   - Non-blocking: validation paths are synchronous and latency-sensitive
//   - Thread-safe: may be called concurrently from multiple goroutines
//   - Resilient: a failing backend must not fail the validation
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	//
	// Emit should not panic and should not block the caller. Errors are
	// handled internally.
	Emit(event Event)
}
