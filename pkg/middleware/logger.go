package middleware

import (
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Logger writes one access log line per request and records the request in
// the HTTP metrics. Errors are handed to the echo error handler first so the
// logged status is the one the client received.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			metrics.RecordHTTPRequest(req.Method, c.Path(), res.Status, elapsed.Seconds())

			ctx := c.Request().Context()
			logger.WithContext(ctx).WithFields(map[string]interface{}{
				"request_id":    context.GetRequestID(ctx),
				"user_id":       context.GetUserID(ctx),
				"method":        context.GetMethod(ctx),
				"uri":           req.RequestURI,
				"status":        res.Status,
				"route":         context.GetRoute(ctx),
				"remote_ip":     context.GetRemoteIP(ctx),
				"span_id":       tracing.GetSpanID(ctx),
				"user_agent":    req.UserAgent(),
				"response_time": elapsed,
				"response_size": strconv.FormatInt(res.Size, 10),
			}).Info("Request")

			return nil
		}
	}
}
