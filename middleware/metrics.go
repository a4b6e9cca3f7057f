package middleware

import (
	"context"
	"time"

	aws_pkg "storefront/pkg/aws"

	"github.com/gin-gonic/gin"
)

// MetricsRecorder is the part of the CloudWatch client the HTTP metrics use.
type MetricsRecorder interface {
	IsEnabled() bool
	RecordCount(ctx context.Context, name string, dimensions map[string]string) error
	RecordLatency(ctx context.Context, name string, d time.Duration, dimensions map[string]string) error
}

// Metrics records request count, latency and error counts per route. The
// route template is used rather than the raw path to keep ids out of the
// dimensions. Data points are sent after the response, off the request path.
func Metrics(recorder MetricsRecorder, service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if recorder == nil || !recorder.IsEnabled() {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		dims := map[string]string{
			"Service": service,
			"Method":  c.Request.Method,
			"Route":   route,
			"Status":  statusClass(status),
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = recorder.RecordCount(ctx, aws_pkg.MetricHTTPRequests, dims)
			_ = recorder.RecordLatency(ctx, aws_pkg.MetricHTTPLatency, latency, dims)
			if status >= 400 {
				_ = recorder.RecordCount(ctx, aws_pkg.MetricHTTPErrors, dims)
			}
			switch {
			case status >= 500:
				_ = recorder.RecordCount(ctx, aws_pkg.MetricHTTP5xx, dims)
			case status >= 400:
				_ = recorder.RecordCount(ctx, aws_pkg.MetricHTTP4xx, dims)
			}
		}()
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}
