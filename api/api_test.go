package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/replay/config"
	"github.com/xiaot623/replay/internal/broadcast"
	"github.com/xiaot623/replay/internal/replay"
	"github.com/xiaot623/replay/policy"
	"github.com/xiaot623/replay/store"
	"github.com/xiaot623/replay/tests/helpers"
)

func newTestServer(t *testing.T) (*echo.Echo, *store.SQLiteStore) {
	t.Helper()

	st := helpers.NewTestSQLiteStore(t)
	helpers.SeedSession(t, st, "sess-1", 10, 0)

	bc := broadcast.New(64)
	registry := replay.NewRegistry(st, bc, replay.RegistryOptions{})
	t.Cleanup(registry.Shutdown)

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	h := NewHandler(registry, bc, engine, &config.Config{})
	e := echo.New()
	h.RegisterRoutes(e)
	return e, st
}

func doRequest(e *echo.Echo, method, path, body, actor string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func prepareReplay(t *testing.T, e *echo.Echo, actor string) string {
	t.Helper()
	rec := doRequest(e, http.MethodPost, "/v1/replays", `{"session_id":"sess-1"}`, actor)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	replayID, ok := body["replay_id"].(string)
	require.True(t, ok, "missing replay_id in %v", body)
	return replayID
}

func TestPrepareReplay(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/v1/replays", `{"session_id":"sess-1"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["replay_id"])
	state := body["state"].(map[string]interface{})
	assert.Equal(t, float64(10), state["event_count"])
	assert.Equal(t, "stopped", state["mode"])
	assert.Equal(t, float64(1), state["speed"])
}

func TestPrepareReplayValidation(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/v1/replays", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodPost, "/v1/replays", `{"session_id":"nope"}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrepareReplayWithFilters(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/v1/replays", `{"session_id":"sess-1","from":2000,"to":5000}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	state := decodeBody(t, rec)["state"].(map[string]interface{})
	assert.Equal(t, float64(4), state["event_count"])
}

func TestGetReplay(t *testing.T) {
	e, _ := newTestServer(t)
	replayID := prepareReplay(t, e, "")

	rec := doRequest(e, http.MethodGet, "/v1/replays/"+replayID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, replayID, body["replay_id"])
	assert.Equal(t, "sess-1", body["session_id"])

	rec = doRequest(e, http.MethodGet, "/v1/replays/rp_missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestControlVerbs(t *testing.T) {
	e, _ := newTestServer(t)
	replayID := prepareReplay(t, e, "")
	controlURL := fmt.Sprintf("/v1/replays/%s/control", replayID)

	rec := doRequest(e, http.MethodPost, controlURL, `{"verb":"seek","position":5}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(5), decodeBody(t, rec)["position"])

	rec = doRequest(e, http.MethodPost, controlURL, `{"verb":"stepForward","count":2}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(7), decodeBody(t, rec)["position"])

	rec = doRequest(e, http.MethodPost, controlURL, `{"verb":"stepBackward"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(6), decodeBody(t, rec)["position"])

	rec = doRequest(e, http.MethodPost, controlURL, `{"verb":"setSpeed","speed":2}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["speed"])

	rec = doRequest(e, http.MethodPost, controlURL, `{"verb":"play"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "playing", decodeBody(t, rec)["mode"])

	rec = doRequest(e, http.MethodPost, controlURL, `{"verb":"pause"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paused", decodeBody(t, rec)["mode"])

	rec = doRequest(e, http.MethodPost, controlURL, `{"verb":"stop"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "stopped", body["mode"])
	assert.Equal(t, float64(0), body["position"])
}

func TestControlValidation(t *testing.T) {
	e, _ := newTestServer(t)
	replayID := prepareReplay(t, e, "")
	controlURL := fmt.Sprintf("/v1/replays/%s/control", replayID)

	rec := doRequest(e, http.MethodPost, controlURL, `{"verb":"seek","position":-1}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodPost, controlURL, `{"verb":"seek"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodPost, controlURL, `{"verb":"setSpeed","speed":0}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodPost, controlURL, `{"verb":"rewindify"}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(e, http.MethodPost, "/v1/replays/rp_missing/control", `{"verb":"play"}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestControlJumpTo(t *testing.T) {
	e, _ := newTestServer(t)
	replayID := prepareReplay(t, e, "")

	rec := doRequest(e, http.MethodPost, fmt.Sprintf("/v1/replays/%s/control", replayID),
		`{"verb":"jumpTo","target":{"type":"timestamp","value":3500}}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(4), decodeBody(t, rec)["position"])

	rec = doRequest(e, http.MethodPost, fmt.Sprintf("/v1/replays/%s/control", replayID),
		`{"verb":"jumpTo","target":{"type":"eventKind","value":"performance_metric"}}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCloseReplayLifecycle(t *testing.T) {
	e, _ := newTestServer(t)
	replayID := prepareReplay(t, e, "")

	rec := doRequest(e, http.MethodDelete, "/v1/replays/"+replayID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(e, http.MethodGet, "/v1/replays/"+replayID, "", "")
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = doRequest(e, http.MethodPost, fmt.Sprintf("/v1/replays/%s/control", replayID), `{"verb":"play"}`, "")
	assert.Equal(t, http.StatusGone, rec.Code)

	// Closing again is idempotent.
	rec = doRequest(e, http.MethodDelete, "/v1/replays/"+replayID, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(e, http.MethodDelete, "/v1/replays/rp_missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatus(t *testing.T) {
	e, _ := newTestServer(t)
	a := prepareReplay(t, e, "")
	b := prepareReplay(t, e, "")

	rec := doRequest(e, http.MethodGet, "/v1/replays", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["active_count"])
	ids := body["active_replay_ids"].([]interface{})
	assert.ElementsMatch(t, []interface{}{a, b}, ids)
}

func TestCompare(t *testing.T) {
	e, st := newTestServer(t)
	helpers.SeedSession(t, st, "sess-2", 2, 500)

	rec := doRequest(e, http.MethodPost, "/v1/replays/compare", `{"session_ids":["sess-1","sess-2"]}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["replay_id"])
	assert.Len(t, body["lanes"].([]interface{}), 2)
	assert.Len(t, body["events"].([]interface{}), 12)

	rec = doRequest(e, http.MethodPost, "/v1/replays/compare", `{"session_ids":[]}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookmarkEndpoints(t *testing.T) {
	e, _ := newTestServer(t)
	replayID := prepareReplay(t, e, "")
	base := fmt.Sprintf("/v1/replays/%s/bookmarks", replayID)

	rec := doRequest(e, http.MethodPost, base, `{"title":"handoff","ts":3400}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bm := decodeBody(t, rec)
	assert.Equal(t, float64(3), bm["index"])
	bookmarkID := bm["bookmark_id"].(string)

	rec = doRequest(e, http.MethodPost, base, `{"title":"late","ts":99999}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodPatch, base+"/"+bookmarkID, `{"title":"renamed"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "renamed", decodeBody(t, rec)["title"])

	rec = doRequest(e, http.MethodGet, fmt.Sprintf("/v1/replays/%s/markers", replayID), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	markers := decodeBody(t, rec)
	assert.Len(t, markers["bookmarks"].([]interface{}), 1)

	rec = doRequest(e, http.MethodDelete, base+"/"+bookmarkID, "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doRequest(e, http.MethodDelete, base+"/"+bookmarkID, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnnotationEndpoints(t *testing.T) {
	e, _ := newTestServer(t)
	replayID := prepareReplay(t, e, "")
	base := fmt.Sprintf("/v1/replays/%s/annotations", replayID)

	rec := doRequest(e, http.MethodPost, base, `{"ts":4000,"content":"worker stalls","author":"alice"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	annotationID := decodeBody(t, rec)["annotation_id"].(string)

	rec = doRequest(e, http.MethodPost, base, `{"ts":-10,"content":"nope"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodPatch, base+"/"+annotationID, `{"content":"manager stalls"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "manager stalls", decodeBody(t, rec)["content"])

	rec = doRequest(e, http.MethodDelete, base+"/"+annotationID, "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSegmentEndpoints(t *testing.T) {
	e, _ := newTestServer(t)
	replayID := prepareReplay(t, e, "")
	base := fmt.Sprintf("/v1/replays/%s/segments", replayID)

	rec := doRequest(e, http.MethodPost, base, `{"title":"warmup","start_ts":2000,"end_ts":5000}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	segmentID := decodeBody(t, rec)["segment_id"].(string)

	rec = doRequest(e, http.MethodPost, base, `{"title":"inverted","start_ts":5000,"end_ts":2000}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodPatch, base+"/"+segmentID, `{"end_ts":6000}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(6000), decodeBody(t, rec)["end_ts"])

	rec = doRequest(e, http.MethodDelete, base+"/"+segmentID, "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doRequest(e, http.MethodDelete, base+"/sg_missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportEndpoints(t *testing.T) {
	e, _ := newTestServer(t)
	replayID := prepareReplay(t, e, "")

	rec := doRequest(e, http.MethodPost, fmt.Sprintf("/v1/replays/%s/bookmarks", replayID), `{"title":"start","index":0}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(e, http.MethodGet, fmt.Sprintf("/v1/replays/%s/export?format=json&bookmarks=true", replayID), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/json")
	var archive map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &archive))
	assert.Len(t, archive["events"].([]interface{}), 10)
	assert.Len(t, archive["bookmarks"].([]interface{}), 1)

	rec = doRequest(e, http.MethodGet, fmt.Sprintf("/v1/replays/%s/export?format=csv", replayID), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/csv")
	// Header plus one row per event.
	assert.Len(t, strings.Split(strings.TrimSpace(rec.Body.String()), "\n"), 11)

	rec = doRequest(e, http.MethodGet, fmt.Sprintf("/v1/replays/%s/export?format=xml", replayID), "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSegmentExportEndpoint(t *testing.T) {
	e, _ := newTestServer(t)
	replayID := prepareReplay(t, e, "")

	rec := doRequest(e, http.MethodPost, fmt.Sprintf("/v1/replays/%s/segments", replayID), `{"title":"mid","start_ts":2000,"end_ts":5000}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	segmentID := decodeBody(t, rec)["segment_id"].(string)

	rec = doRequest(e, http.MethodGet, fmt.Sprintf("/v1/replays/%s/segments/%s/export?format=json", replayID, segmentID), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var archive map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &archive))
	assert.Len(t, archive["events"].([]interface{}), 4)

	rec = doRequest(e, http.MethodGet, fmt.Sprintf("/v1/replays/%s/segments/sg_missing/export", replayID), "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCollaborativePolicy(t *testing.T) {
	e, _ := newTestServer(t)
	replayID := prepareReplay(t, e, "alice")
	controlURL := fmt.Sprintf("/v1/replays/%s/control", replayID)

	// Before sharing, anyone holding the id may drive playback.
	rec := doRequest(e, http.MethodPost, controlURL, `{"verb":"play"}`, "mallory")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(e, http.MethodPost, fmt.Sprintf("/v1/replays/%s/collaborative", replayID), `{"collaborator_ids":["bob"]}`, "alice")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody(t, rec)["collaborative"])

	// Collaborators may drive playback and edit markers.
	rec = doRequest(e, http.MethodPost, controlURL, `{"verb":"pause"}`, "bob")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = doRequest(e, http.MethodPost, fmt.Sprintf("/v1/replays/%s/bookmarks", replayID), `{"title":"note","index":1}`, "bob")
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Strangers are shut out once the session is shared.
	rec = doRequest(e, http.MethodPost, controlURL, `{"verb":"play"}`, "mallory")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Owner-only commands stay owner-only.
	rec = doRequest(e, http.MethodDelete, "/v1/replays/"+replayID, "", "bob")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = doRequest(e, http.MethodPost, fmt.Sprintf("/v1/replays/%s/collaborators", replayID), `{"collaborator_id":"carol"}`, "bob")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(e, http.MethodPost, fmt.Sprintf("/v1/replays/%s/collaborators", replayID), `{"collaborator_id":"carol"}`, "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(e, http.MethodGet, fmt.Sprintf("/v1/replays/%s/collaborators", replayID), "", "bob")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["collaborative"])
	assert.ElementsMatch(t, []interface{}{"bob", "carol"}, body["collaborators"].([]interface{}))

	rec = doRequest(e, http.MethodDelete, "/v1/replays/"+replayID, "", "alice")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth(t *testing.T) {
	e, _ := newTestServer(t)
	rec := doRequest(e, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}
