package tracing

import (
	"github.com/gin-gonic/gin"
)

// HTTPMiddleware starts a span per HTTP request and attaches its trace id
// to the request context and response headers.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		span := tracer.StartSpan(c.FullPath())
		span.SetTag("http.method", c.Request.Method)
		span.SetTag("http.url", c.Request.URL.String())

		ctx := WithSpan(c.Request.Context(), span)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Trace-ID", string(span.TraceID))

		c.Next()

		span.SetTag("http.status", c.Writer.Status())
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}
		span.Finish()
		tracer.Submit(span)
	}
}
