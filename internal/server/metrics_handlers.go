package server

import "github.com/gofiber/fiber/v2"

// MetricsSummary handles GET /api/metrics/summary. It exposes the
// monitor's counters as JSON for dashboards that do not scrape
// Prometheus.
func (s *Server) MetricsSummary(c *fiber.Ctx) error {
	if s.monitor == nil {
		return fiber.NewError(fiber.StatusNotFound, "Resource not found")
	}
	return success(c, fiber.StatusOK, s.monitor.Snapshot())
}
