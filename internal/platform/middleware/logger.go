package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger writes one structured line per request. Request size is logged
// because dataset uploads dominate traffic and their size drives ingest
// latency; the query string is logged because most insight endpoints are
// parameterized (age filters, collection, year/month).
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get("request_id").(string)

			err := next(c)

			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}

			evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP())
			if req.ContentLength > 0 {
				evt.Int64("bytes_in", req.ContentLength)
			}
			if q := req.URL.RawQuery; q != "" {
				evt.Str("query", q)
			}
			evt.Msg("request")

			return err
		}
	}
}
