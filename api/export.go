package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/replay/domain"
	"github.com/xiaot623/replay/internal/export"
)

// Export serializes the replay's timeline plus markers.
// GET /v1/replays/:replay_id/export
func (h *Handler) Export(c echo.Context) error {
	sess, err := h.session(c, "export")
	if err != nil {
		return h.fail(c, err)
	}
	archive, err := sess.Archive()
	if err != nil {
		return h.fail(c, err)
	}

	data, mime, err := export.Render(archive, exportOptions(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Blob(http.StatusOK, mime, data)
}

// ExportSegment restricts the export to one segment's time range.
// GET /v1/replays/:replay_id/segments/:segment_id/export
func (h *Handler) ExportSegment(c echo.Context) error {
	sess, err := h.session(c, "export")
	if err != nil {
		return h.fail(c, err)
	}
	archive, err := sess.Archive()
	if err != nil {
		return h.fail(c, err)
	}

	data, mime, err := export.RenderSegment(archive, c.Param("segment_id"), exportOptions(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Blob(http.StatusOK, mime, data)
}

func exportOptions(c echo.Context) export.Options {
	opts := export.Options{
		Format:             export.Format(c.QueryParam("format")),
		IncludeBookmarks:   c.QueryParam("bookmarks") == "true",
		IncludeAnnotations: c.QueryParam("annotations") == "true",
		IncludeSegments:    c.QueryParam("segments") == "true",
	}
	if v := c.QueryParam("from"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			opts.From = &ts
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			opts.To = &ts
		}
	}
	if v := c.QueryParam("kinds"); v != "" {
		for _, k := range strings.Split(v, ",") {
			opts.Kinds = append(opts.Kinds, domain.EventKind(strings.TrimSpace(k)))
		}
	}
	return opts
}
