package middleware

import (
	"errors"
	"time"

	"inkwell/internal/models"
	"inkwell/internal/observability"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// InitMetrics creates the fiberprometheus middleware that feeds the
// standard HTTP metrics exposed at /metrics.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	return fiberprometheus.New(serviceName)
}

// MetricsMiddleware adapts the fiberprometheus instance into a handler.
func MetricsMiddleware(p *fiberprometheus.FiberPrometheus) fiber.Handler {
	return p.Middleware
}

// MonitorMiddleware records every request into the injected monitor.
// It runs before the error handler, so for failed requests the status
// is derived from the error the normalizer is about to write.
func MonitorMiddleware(m *observability.Monitor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = statusFromError(err)
		}

		// Route pattern, not raw path, to keep cardinality bounded
		route := c.Route().Path
		m.ObserveRequest(c.Method(), route, status, time.Since(start))
		return err
	}
}

// MonitorExposition serves the monitor's own registry in Prometheus
// text format.
func MonitorExposition(m *observability.Monitor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
		h(c.Context())
		return nil
	}
}

func statusFromError(err error) int {
	var appErr *models.AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}
	return fiber.StatusInternalServerError
}
