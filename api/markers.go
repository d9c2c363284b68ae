package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/replay/domain"
)

// ListMarkers returns all three marker sets.
// GET /v1/replays/:replay_id/markers
func (h *Handler) ListMarkers(c echo.Context) error {
	sess, err := h.registry.Get(c.Param("replay_id"))
	if err != nil {
		return h.fail(c, err)
	}
	bookmarks, annotations, segments, err := sess.Markers()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"bookmarks":   bookmarks,
		"annotations": annotations,
		"segments":    segments,
	})
}

// AddBookmark creates a bookmark.
// POST /v1/replays/:replay_id/bookmarks
func (h *Handler) AddBookmark(c echo.Context) error {
	var spec domain.BookmarkSpec
	if err := c.Bind(&spec); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	sess, err := h.session(c, "addBookmark")
	if err != nil {
		return h.fail(c, err)
	}
	bm, err := sess.AddBookmark(spec)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, bm)
}

// UpdateBookmark patches a bookmark.
// PATCH /v1/replays/:replay_id/bookmarks/:bookmark_id
func (h *Handler) UpdateBookmark(c echo.Context) error {
	var patch domain.BookmarkPatch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	sess, err := h.session(c, "updateBookmark")
	if err != nil {
		return h.fail(c, err)
	}
	bm, err := sess.UpdateBookmark(c.Param("bookmark_id"), patch)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, bm)
}

// RemoveBookmark deletes a bookmark.
// DELETE /v1/replays/:replay_id/bookmarks/:bookmark_id
func (h *Handler) RemoveBookmark(c echo.Context) error {
	sess, err := h.session(c, "removeBookmark")
	if err != nil {
		return h.fail(c, err)
	}
	if err := sess.RemoveBookmark(c.Param("bookmark_id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AddAnnotation creates an annotation.
// POST /v1/replays/:replay_id/annotations
func (h *Handler) AddAnnotation(c echo.Context) error {
	var spec domain.AnnotationSpec
	if err := c.Bind(&spec); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	sess, err := h.session(c, "addAnnotation")
	if err != nil {
		return h.fail(c, err)
	}
	an, err := sess.AddAnnotation(spec)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, an)
}

// UpdateAnnotation patches an annotation.
// PATCH /v1/replays/:replay_id/annotations/:annotation_id
func (h *Handler) UpdateAnnotation(c echo.Context) error {
	var patch domain.AnnotationPatch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	sess, err := h.session(c, "updateAnnotation")
	if err != nil {
		return h.fail(c, err)
	}
	an, err := sess.UpdateAnnotation(c.Param("annotation_id"), patch)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, an)
}

// RemoveAnnotation deletes an annotation.
// DELETE /v1/replays/:replay_id/annotations/:annotation_id
func (h *Handler) RemoveAnnotation(c echo.Context) error {
	sess, err := h.session(c, "removeAnnotation")
	if err != nil {
		return h.fail(c, err)
	}
	if err := sess.RemoveAnnotation(c.Param("annotation_id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AddSegment creates a segment.
// POST /v1/replays/:replay_id/segments
func (h *Handler) AddSegment(c echo.Context) error {
	var spec domain.SegmentSpec
	if err := c.Bind(&spec); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	sess, err := h.session(c, "addSegment")
	if err != nil {
		return h.fail(c, err)
	}
	seg, err := sess.AddSegment(spec)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, seg)
}

// UpdateSegment patches a segment.
// PATCH /v1/replays/:replay_id/segments/:segment_id
func (h *Handler) UpdateSegment(c echo.Context) error {
	var patch domain.SegmentPatch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	sess, err := h.session(c, "updateSegment")
	if err != nil {
		return h.fail(c, err)
	}
	seg, err := sess.UpdateSegment(c.Param("segment_id"), patch)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, seg)
}

// RemoveSegment deletes a segment.
// DELETE /v1/replays/:replay_id/segments/:segment_id
func (h *Handler) RemoveSegment(c echo.Context) error {
	sess, err := h.session(c, "removeSegment")
	if err != nil {
		return h.fail(c, err)
	}
	if err := sess.RemoveSegment(c.Param("segment_id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
