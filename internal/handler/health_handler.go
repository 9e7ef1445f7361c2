package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Pinger is an interface for health check ping operations.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionCounter reports how many discount sessions are live.
type SessionCounter interface {
	Len() int
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	backend  string
	pool     Pinger
	sessions SessionCounter
}

// NewHealthHandler creates a new HealthHandler for the given commerce backend.
// pool may be nil when the backend has no database of its own to ping.
func NewHealthHandler(backend string, pool Pinger, sessions SessionCounter) *HealthHandler {
	return &HealthHandler{backend: backend, pool: pool, sessions: sessions}
}

// Check performs a health check.
// Returns 200 OK with {"status": "healthy", ...} when the backend database is reachable or there is none.
// Returns 503 Service Unavailable with {"status": "unhealthy", "error": "..."} otherwise.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	if h.pool != nil {
		if err := h.pool.Ping(c.Context()); err != nil {
			log.Error().Err(err).Str("backend", h.backend).Msg("health check failed: database unreachable")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":  "unhealthy",
				"backend": h.backend,
				"error":   "database connection failed",
			})
		}
	}

	resp := fiber.Map{
		"status":  "healthy",
		"backend": h.backend,
	}
	if h.sessions != nil {
		resp["sessions"] = h.sessions.Len()
	}
	return c.JSON(resp)
}
