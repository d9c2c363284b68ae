package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/replay/domain"
	"github.com/xiaot623/replay/internal/replay"
	"github.com/xiaot623/replay/internal/timeline"
)

// PrepareRequest is the body of POST /v1/replays.
type PrepareRequest struct {
	SessionID string             `json:"session_id"`
	Kinds     []domain.EventKind `json:"kinds,omitempty"`
	From      int64              `json:"from,omitempty"`
	To        int64              `json:"to,omitempty"`
}

// CompareRequest is the body of POST /v1/replays/compare.
type CompareRequest struct {
	SessionIDs []string           `json:"session_ids"`
	Kinds      []domain.EventKind `json:"kinds,omitempty"`
	From       int64              `json:"from,omitempty"`
	To         int64              `json:"to,omitempty"`
}

// ControlRequest is the body of POST /v1/replays/:replay_id/control.
type ControlRequest struct {
	Verb domain.ControlVerb `json:"verb"`
	domain.ControlArgs
}

// PrepareReplay builds a timeline for a recorded session and returns a
// fresh replay handle.
// POST /v1/replays
func (h *Handler) PrepareReplay(c echo.Context) error {
	var req PrepareRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_id is required"})
	}

	sess, err := h.registry.Prepare(c.Request().Context(), req.SessionID, replay.PrepareOptions{
		Build: timeline.BuildOptions{Kinds: req.Kinds, From: req.From, To: req.To},
		Owner: c.Request().Header.Get(actorHeader),
	})
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"replay_id": sess.ReplayID,
		"state":     sess.Snapshot(),
	})
}

// Compare builds a multi-lane merged timeline over several sessions.
// POST /v1/replays/compare
func (h *Handler) Compare(c echo.Context) error {
	var req CompareRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if len(req.SessionIDs) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_ids is required"})
	}

	sess, err := h.registry.Compare(c.Request().Context(), req.SessionIDs, replay.PrepareOptions{
		Build: timeline.BuildOptions{Kinds: req.Kinds, From: req.From, To: req.To},
		Owner: c.Request().Header.Get(actorHeader),
	})
	if err != nil {
		return h.fail(c, err)
	}

	archive, err := sess.Archive()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"replay_id": sess.ReplayID,
		"lanes":     archive.Lanes,
		"events":    archive.Events,
		"state":     sess.Snapshot(),
	})
}

// GetReplay returns the current state snapshot.
// GET /v1/replays/:replay_id
func (h *Handler) GetReplay(c echo.Context) error {
	sess, err := h.registry.Get(c.Param("replay_id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, sess.Snapshot())
}

// Control applies one playback verb and returns the resulting snapshot.
// POST /v1/replays/:replay_id/control
func (h *Handler) Control(c echo.Context) error {
	var req ControlRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	sess, err := h.session(c, string(req.Verb))
	if err != nil {
		return h.fail(c, err)
	}

	state, err := sess.Control(req.Verb, req.ControlArgs)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, state)
}

// Status returns the active replay count and ids.
// GET /v1/replays
func (h *Handler) Status(c echo.Context) error {
	count, ids := h.registry.Status()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"active_count":      count,
		"active_replay_ids": ids,
	})
}

// CloseReplay tombstones a replay session. Idempotent.
// DELETE /v1/replays/:replay_id
func (h *Handler) CloseReplay(c echo.Context) error {
	replayID := c.Param("replay_id")
	if sess, err := h.registry.Get(replayID); err == nil {
		if err := h.authorize(c, sess, "close"); err != nil {
			return h.fail(c, err)
		}
	}
	if err := h.registry.Close(replayID); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "closed"})
}

// EnableCollaborative marks a replay shared with the given collaborators.
// POST /v1/replays/:replay_id/collaborative
func (h *Handler) EnableCollaborative(c echo.Context) error {
	var req struct {
		CollaboratorIDs []string `json:"collaborator_ids"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	sess, err := h.session(c, "enableCollaborativeMode")
	if err != nil {
		return h.fail(c, err)
	}
	state, err := sess.EnableCollaborative(req.CollaboratorIDs)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, state)
}

// AddCollaborator adds one collaborator to a shared replay.
// POST /v1/replays/:replay_id/collaborators
func (h *Handler) AddCollaborator(c echo.Context) error {
	var req struct {
		CollaboratorID string `json:"collaborator_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.CollaboratorID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "collaborator_id is required"})
	}

	sess, err := h.session(c, "addCollaborator")
	if err != nil {
		return h.fail(c, err)
	}
	state, err := sess.AddCollaborator(req.CollaboratorID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, state)
}

// GetCollaborators lists the collaborators of a replay.
// GET /v1/replays/:replay_id/collaborators
func (h *Handler) GetCollaborators(c echo.Context) error {
	sess, err := h.registry.Get(c.Param("replay_id"))
	if err != nil {
		return h.fail(c, err)
	}
	collaborators, err := sess.Collaborators()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"collaborative": sess.Collaborative(),
		"collaborators": collaborators,
	})
}
