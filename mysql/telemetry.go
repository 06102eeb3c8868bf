package mysql

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies spans emitted by this package in an OpenTelemetry
// backend.
const tracerName = "github.com/mysqlwire/mysqlwire/mysql"

// tracer returns the tracer used for per-operation spans. Sessions use
// otel.Tracer by default, which is a no-op until the caller installs a
// TracerProvider via otel.SetTracerProvider.
func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// startSpan opens a span for one protocol-session operation, tagging it
// with the OpenTelemetry semantic-convention attributes named in §6: the
// database system, the operation name, the target server, the negotiated
// auth plugin, the connection's thread id, and sanitized SQL text.
func (s *Session) startSpan(ctx context.Context, operation, sql string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system.name", "mysql"),
		attribute.String("db.operation.name", operation),
		attribute.String("db.mysql.auth_plugin", s.authPlugin),
	}
	if s.options.Host != "" {
		attrs = append(attrs, attribute.String("server.address", s.options.Host))
	}
	if s.options.Port != 0 {
		attrs = append(attrs, attribute.Int("server.port", s.options.Port))
	}
	if s.greeting != nil {
		attrs = append(attrs, attribute.Int64("db.mysql.thread_id", int64(s.greeting.connectionID)))
	}
	if sql != "" {
		attrs = append(attrs,
			attribute.String("db.query.text", sanitizeSQL(sql)),
			attribute.String("db.query.summary", querySummary(sql)),
		)
	}
	return tracer().Start(ctx, "mysql."+operation, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", errorType(err)))
	}
	span.End()
}

// errorType reports the OTel-convention error.type value for err: the
// protocol Kind by name for this package's own errors, the concrete Go
// type otherwise.
func errorType(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Kind.String()
	}
	return fmt.Sprintf("%T", err)
}

// querySummary returns the leading statement keyword, a low-cardinality
// stand-in for the full query text (db.query.summary per the OTel
// semantic conventions).
func querySummary(sql string) string {
	i := 0
	for i < len(sql) && (sql[i] == ' ' || sql[i] == '\t' || sql[i] == '\n' || sql[i] == '\r') {
		i++
	}
	start := i
	for i < len(sql) && sql[i] != ' ' && sql[i] != '\t' && sql[i] != '\n' && sql[i] != '\r' && sql[i] != '(' {
		i++
	}
	return sql[start:i]
}
