package tracing

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/cdrbill/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware opens a server span per request, continuing any propagated
// trace. The span is renamed to the matched route once the handler ran.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := otel.Tracer(instrumentationName+"/http").Start(ctx, "HTTP "+c.Request.Method,
			trace.WithSpanKind(trace.SpanKindServer),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + c.Request.Method + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		}
		if requestID := obscontext.RequestIDFromContext(c.Request.Context()); requestID != "" {
			attrs = append(attrs, attribute.String("request_id", requestID))
		}
		if month := strings.TrimSpace(c.Query("month")); month != "" {
			attrs = append(attrs, attribute.String("cdr.month", month))
		}
		if filter := strings.TrimSpace(c.Query("customers")); filter != "" {
			attrs = append(attrs, attribute.Int("cdr.customer_filter_size", len(strings.Split(filter, ","))))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		var err error
		if status >= http.StatusInternalServerError {
			err = fmt.Errorf("http status %d", status)
			if last := c.Errors.Last(); last != nil {
				err = last.Err
			}
		}
		EndSpan(span, err)
	}
}
