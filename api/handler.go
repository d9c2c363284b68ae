// Package api provides HTTP handlers for the replay service.
package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/replay/config"
	"github.com/xiaot623/replay/domain"
	"github.com/xiaot623/replay/internal/broadcast"
	"github.com/xiaot623/replay/internal/replay"
	"github.com/xiaot623/replay/policy"
)

// actorHeader carries the caller's declared identity. The service does
// not authenticate; the share policy gates verbs by declared role only.
const actorHeader = "X-Replay-Actor"

// Handler handles HTTP requests.
type Handler struct {
	registry     *replay.Registry
	bc           *broadcast.Broadcaster
	policyEngine *policy.Engine
	config       *config.Config
	upgrader     websocket.Upgrader
}

// NewHandler creates a new handler.
func NewHandler(registry *replay.Registry, bc *broadcast.Broadcaster, policyEngine *policy.Engine, cfg *config.Config) *Handler {
	return &Handler{
		registry:     registry,
		bc:           bc,
		policyEngine: policyEngine,
		config:       cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/replays", h.PrepareReplay)
	e.GET("/v1/replays", h.Status)
	e.POST("/v1/replays/compare", h.Compare)

	e.GET("/v1/replays/:replay_id", h.GetReplay)
	e.DELETE("/v1/replays/:replay_id", h.CloseReplay)
	e.POST("/v1/replays/:replay_id/control", h.Control)
	e.GET("/v1/replays/:replay_id/stream", h.Stream)

	e.GET("/v1/replays/:replay_id/markers", h.ListMarkers)
	e.POST("/v1/replays/:replay_id/bookmarks", h.AddBookmark)
	e.PATCH("/v1/replays/:replay_id/bookmarks/:bookmark_id", h.UpdateBookmark)
	e.DELETE("/v1/replays/:replay_id/bookmarks/:bookmark_id", h.RemoveBookmark)
	e.POST("/v1/replays/:replay_id/annotations", h.AddAnnotation)
	e.PATCH("/v1/replays/:replay_id/annotations/:annotation_id", h.UpdateAnnotation)
	e.DELETE("/v1/replays/:replay_id/annotations/:annotation_id", h.RemoveAnnotation)
	e.POST("/v1/replays/:replay_id/segments", h.AddSegment)
	e.PATCH("/v1/replays/:replay_id/segments/:segment_id", h.UpdateSegment)
	e.DELETE("/v1/replays/:replay_id/segments/:segment_id", h.RemoveSegment)

	e.GET("/v1/replays/:replay_id/export", h.Export)
	e.GET("/v1/replays/:replay_id/segments/:segment_id/export", h.ExportSegment)

	e.POST("/v1/replays/:replay_id/collaborative", h.EnableCollaborative)
	e.POST("/v1/replays/:replay_id/collaborators", h.AddCollaborator)
	e.GET("/v1/replays/:replay_id/collaborators", h.GetCollaborators)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// fail maps domain errors onto HTTP status codes.
func (h *Handler) fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidRange):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrTombstoned):
		status = http.StatusGone
	default:
		log.Printf("ERROR: %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

// session resolves the replay id path param and checks the share policy
// for the given command.
func (h *Handler) session(c echo.Context, command string) (*replay.Session, error) {
	sess, err := h.registry.Get(c.Param("replay_id"))
	if err != nil {
		return nil, err
	}
	if err := h.authorize(c, sess, command); err != nil {
		return nil, err
	}
	return sess, nil
}

// authorize consults the share policy on collaborative sessions. A
// non-shared session has a single viewer and skips the policy entirely.
func (h *Handler) authorize(c echo.Context, sess *replay.Session, command string) error {
	if !sess.Collaborative() || h.policyEngine == nil {
		return nil
	}
	collaborators, err := sess.Collaborators()
	if err != nil {
		return err
	}
	actor := c.Request().Header.Get(actorHeader)
	decision, err := h.policyEngine.Evaluate(c.Request().Context(), map[string]interface{}{
		"command":       command,
		"actor":         actor,
		"owner":         sess.Owner(),
		"collaborators": collaborators,
	})
	if err != nil {
		return err
	}
	if decision != "allow" {
		return domain.ErrForbidden
	}
	return nil
}
