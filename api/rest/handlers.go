package rest

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"allin1/orchestrator/internal/metrics"
	"allin1/orchestrator/internal/session"
	"allin1/orchestrator/internal/store"
	"allin1/orchestrator/pkg/types"
)

// userID extracts the caller identity from the X-User-ID header.
func userID(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get("X-User-ID"))
}

// healthCheck handles GET /health
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// createTask handles POST /api/v1/tasks: it runs plan generation on the
// query and returns the pending task graph, placeholders intact. The
// client then opens a session channel to gather and execute it.
func (s *Server) createTask(c *fiber.Ctx) error {
	uid := userID(c)
	if uid == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(types.ErrorResponse{
			Error:   "missing_user",
			Message: "X-User-ID header is required",
		})
	}

	var req types.CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
			Error:   "invalid_request",
			Message: "Failed to parse request body: " + err.Error(),
		})
	}
	if strings.TrimSpace(req.Query) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
			Error:   "invalid_request",
			Message: "Query is required",
		})
	}

	g, err := s.orch.CreatePlan(c.Context(), uid, req.Query)
	if err != nil {
		if errors.Is(err, types.ErrMalformedGraph) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(types.ErrorResponse{
				Error:   "invalid_plan",
				Message: "Plan generation produced an invalid task graph: " + err.Error(),
			})
		}
		return c.Status(fiber.StatusBadGateway).JSON(types.ErrorResponse{
			Error:   "plan_failed",
			Message: "Plan generation failed: " + err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(g)
}

// getTask handles GET /api/v1/tasks/:id
func (s *Server) getTask(c *fiber.Ctx) error {
	uid := userID(c)
	if uid == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(types.ErrorResponse{
			Error:   "missing_user",
			Message: "X-User-ID header is required",
		})
	}

	g, err := s.orch.Get(c.Context(), uid, c.Params("id"))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(types.ErrorResponse{
				Error:   "not_found",
				Message: "Task graph not found",
			})
		case errors.Is(err, session.ErrNotOwner):
			return c.Status(fiber.StatusForbidden).JSON(types.ErrorResponse{
				Error:   "forbidden",
				Message: "Task graph belongs to another user",
			})
		}
		return err
	}

	return c.JSON(g)
}

// completeAuth handles POST /api/v1/backends/:backend/auth. OAuth flows
// land here after the redirect completes; credential flows post the
// requested secret values. Either way the user is marked authorized for
// the backend and a pending challenge retry will succeed.
func (s *Server) completeAuth(c *fiber.Ctx) error {
	uid := userID(c)
	if uid == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(types.ErrorResponse{
			Error:   "missing_user",
			Message: "X-User-ID header is required",
		})
	}

	backendID := c.Params("backend")
	if _, ok := s.router.Provider(backendID); !ok {
		return c.Status(fiber.StatusNotFound).JSON(types.ErrorResponse{
			Error:   "not_found",
			Message: "Unknown backend: " + backendID,
		})
	}

	var req AuthCompleteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
				Error:   "invalid_request",
				Message: "Failed to parse request body: " + err.Error(),
			})
		}
	}

	s.router.Auth().Complete(uid, backendID, req.Secrets)
	return c.JSON(fiber.Map{"authorized": true, "backend": backendID})
}

// getMetrics handles GET /api/v1/metrics
func (s *Server) getMetrics(c *fiber.Ctx) error {
	snapshot := map[string]metrics.Summary{}
	if s.recorder != nil {
		snapshot = s.recorder.Snapshot()
	}
	return c.JSON(MetricsResponse{
		Backends:  snapshot,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
