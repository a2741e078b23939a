// Package logging is the structured JSON logger shared by the API and the
// worker. Every line carries service, environment and version, plus the
// request-scoped ids found on the context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// LogLevel is a textual slog level: debug, info, warn or error
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

func (l LogLevel) slog() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Config holds logger configuration
type Config struct {
	Level       LogLevel
	ServiceName string
	Environment string
	Version     string
	Output      io.Writer
	AddSource   bool
}

// DefaultConfig reads ENVIRONMENT and VERSION and writes to stdout
func DefaultConfig(serviceName string) *Config {
	cfg := &Config{
		Level:       LevelInfo,
		ServiceName: serviceName,
		Environment: "development",
		Version:     "unknown",
		Output:      os.Stdout,
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("VERSION"); v != "" {
		cfg.Version = v
	}
	return cfg
}

// Logger is a *slog.Logger with the helpers the services log through
type Logger struct {
	*slog.Logger
}

// New builds a JSON logger. Timestamps are UTC RFC3339Nano.
func New(config *Config) *Logger {
	output := config.Output
	if output == nil {
		output = os.Stdout
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level:       config.Level.slog(),
		AddSource:   config.AddSource,
		ReplaceAttr: utcTimestamps,
	})

	return &Logger{Logger: slog.New(handler).With(
		"service", config.ServiceName,
		"environment", config.Environment,
		"version", config.Version,
	)}
}

func utcTimestamps(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
	}
	return a
}

// NewNop discards everything
func NewNop() *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

// SetDefault installs l as the process-wide slog logger
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}

func (l *Logger) with(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithContext adds the request, correlation, user and trace ids found in ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return l.with(contextAttrs(ctx)...)
}

// WithFields adds fields in key order
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return l.with(sortedAttrs(fields)...)
}

// WithError adds err as the "error" attribute; a nil err is ignored
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

// WithComponent names the component emitting the line
func (l *Logger) WithComponent(component string) *Logger {
	return l.with("component", component)
}

// WithOperation names the operation in progress
func (l *Logger) WithOperation(operation string) *Logger {
	return l.with("operation", operation)
}

// Event logs a business event
func (l *Logger) Event(ctx context.Context, eventType string, data map[string]any) {
	l.emit(ctx, slog.LevelInfo, "Business event", data, "eventType", eventType)
}

// Audit logs who did what to which resource. Wallet movements, role-gated
// transitions and remittance decisions go through here.
func (l *Logger) Audit(ctx context.Context, action, resource, resourceID, actorID string, details map[string]any) {
	l.emit(ctx, slog.LevelInfo, "Audit event", details,
		"auditAction", action,
		"resource", resource,
		"resourceId", resourceID,
		"actorId", actorID,
	)
}

// Performance logs how long an operation took
func (l *Logger) Performance(ctx context.Context, operation string, duration time.Duration, success bool, details map[string]any) {
	l.emit(ctx, slog.LevelInfo, "Performance metric", details,
		"operation", operation,
		"durationMs", duration.Milliseconds(),
		"success", success,
	)
}

// CarrierCall logs one outbound carrier API call: debug when it worked,
// warn when it did not.
func (l *Logger) CarrierCall(ctx context.Context, carrier, operation string, status int, duration time.Duration, err error) {
	level := slog.LevelDebug
	var details map[string]any
	if err != nil {
		level = slog.LevelWarn
		details = map[string]any{"error": err.Error()}
	}
	l.emit(ctx, level, "Carrier call", details,
		"carrier", carrier,
		"carrierOperation", operation,
		"httpStatus", status,
		"durationMs", duration.Milliseconds(),
	)
}

// Panic logs a recovered panic with the current goroutine's stack
func (l *Logger) Panic(ctx context.Context, recovered any) {
	stack := make([]byte, 4096)
	stack = stack[:runtime.Stack(stack, false)]
	l.emit(ctx, slog.LevelError, "Panic recovered", nil, "panic", recovered, "stack", string(stack))
}

func (l *Logger) emit(ctx context.Context, level slog.Level, msg string, details map[string]any, head ...any) {
	args := append(head, sortedAttrs(details)...)
	l.WithContext(ctx).Log(ctx, level, msg, args...)
}

func sortedAttrs(fields map[string]any) []any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		attrs = append(attrs, k, fields[k])
	}
	return attrs
}

type contextKey string

// Context keys the middleware stores request-scoped ids under
const (
	RequestIDKey     contextKey = "requestId"
	CorrelationIDKey contextKey = "correlationId"
	UserIDKey        contextKey = "userId"
)

var contextKeys = []contextKey{RequestIDKey, CorrelationIDKey, UserIDKey}

func contextAttrs(ctx context.Context) []any {
	var attrs []any
	for _, key := range contextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, string(key), v)
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs, "traceId", sc.TraceID().String())
	}
	return attrs
}

// ContextWithRequestID stores the request id on ctx
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// ContextWithCorrelationID stores the correlation id on ctx
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// ContextWithUserID stores the acting user id on ctx
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}
