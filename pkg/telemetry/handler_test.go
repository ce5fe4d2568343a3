package telemetry

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiontel/telemetryd/pkg/eventlog"
	"github.com/visiontel/telemetryd/pkg/session"
	"github.com/visiontel/telemetryd/pkg/stats"
)

const handlerTestPurgeDays = 7

func newTestHandler(t *testing.T) (*Handler, *eventlog.Logger) {
	t.Helper()

	log, err := eventlog.New(t.TempDir())
	require.NoError(t, err)

	store := session.NewMemoryStore()
	svc := NewService(store, stats.NewGlobals(time.Now()), log, time.Minute)

	t.Cleanup(func() {
		_ = store.Close()
		_ = log.Close()
	})
	return NewHandler(svc, log, handlerTestPurgeDays), log
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec, decoded
}

func startSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec, resp := doJSON(t, h, http.MethodPost, "/api/v1/session/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	id, ok := resp["sessionId"].(string)
	require.True(t, ok)
	return id
}

func TestHandler_StartSession(t *testing.T) {
	h, _ := newTestHandler(t)

	rec, resp := doJSON(t, h, http.MethodPost, "/api/v1/session/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["success"])
	assert.NotEmpty(t, resp["sessionId"])

	_, err := time.Parse(time.RFC3339, resp["timestamp"].(string))
	assert.NoError(t, err)
}

func TestHandler_RecordDetection(t *testing.T) {
	h, _ := newTestHandler(t)
	id := startSession(t, h)

	rec, resp := doJSON(t, h, http.MethodPost, "/api/v1/detection/record", map[string]any{
		"sessionId":   id,
		"faceCount":   2,
		"objectCount": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["success"])

	sessionStats := resp["sessionStats"].(map[string]any)
	assert.Equal(t, float64(2), sessionStats["faceDetections"])
	assert.Equal(t, float64(3), sessionStats["objectDetections"])
	assert.Equal(t, float64(5), sessionStats["totalDetections"])

	globalStats := resp["globalStats"].(map[string]any)
	assert.Equal(t, float64(2), globalStats["totalFaceDetections"])
	assert.Equal(t, float64(5), globalStats["totalDetections"])
}

func TestHandler_RecordDetectionCoercion(t *testing.T) {
	h, _ := newTestHandler(t)
	id := startSession(t, h)

	// Non-numeric and negative counts coerce to zero instead of failing.
	rec, resp := doJSON(t, h, http.MethodPost, "/api/v1/detection/record", map[string]any{
		"sessionId":   id,
		"faceCount":   "not a number",
		"objectCount": -4,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	sessionStats := resp["sessionStats"].(map[string]any)
	assert.Equal(t, float64(0), sessionStats["faceDetections"])
	assert.Equal(t, float64(0), sessionStats["objectDetections"])
}

func TestHandler_RecordDetectionErrors(t *testing.T) {
	h, _ := newTestHandler(t)

	rec, resp := doJSON(t, h, http.MethodPost, "/api/v1/detection/record", map[string]any{
		"faceCount": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, resp["success"])
	assert.NotEmpty(t, resp["error"])

	rec, resp = doJSON(t, h, http.MethodPost, "/api/v1/detection/record", map[string]any{
		"sessionId": "s-0-unknown",
		"faceCount": 1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, resp["success"])
}

func TestHandler_RecordInteraction(t *testing.T) {
	h, _ := newTestHandler(t)
	id := startSession(t, h)

	rec, resp := doJSON(t, h, http.MethodPost, "/api/v1/interaction/record", map[string]any{
		"sessionId":  id,
		"widgetName": "filterSelect",
		"action":     "change",
		"value":      "blur",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), resp["totalInteractionsInSession"])
	assert.Equal(t, []any{"blur"}, resp["filters"])

	// Same value again: counted, not duplicated.
	rec, resp = doJSON(t, h, http.MethodPost, "/api/v1/interaction/record", map[string]any{
		"sessionId":  id,
		"widgetName": "filterSelect",
		"value":      "blur",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), resp["totalInteractionsInSession"])
	assert.Equal(t, []any{"blur"}, resp["filters"])
}

func TestHandler_EndSession(t *testing.T) {
	h, _ := newTestHandler(t)
	id := startSession(t, h)

	_, _ = doJSON(t, h, http.MethodPost, "/api/v1/detection/record", map[string]any{
		"sessionId": id, "faceCount": 2, "objectCount": 3,
	})
	_, _ = doJSON(t, h, http.MethodPost, "/api/v1/interaction/record", map[string]any{
		"sessionId": id, "widgetName": "filterSelect", "value": "blur",
	})

	rec, resp := doJSON(t, h, http.MethodPost, "/api/v1/session/end", map[string]any{
		"sessionId": id,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	sessionStats := resp["sessionStats"].(map[string]any)
	assert.Equal(t, float64(2), sessionStats["faceDetections"])
	assert.Equal(t, float64(3), sessionStats["objectDetections"])
	assert.Equal(t, float64(1), sessionStats["interactions"])
	assert.Equal(t, []any{"blur"}, sessionStats["filters"])
	assert.GreaterOrEqual(t, sessionStats["duration"].(float64), float64(0))

	// A second end conflicts.
	rec, resp = doJSON(t, h, http.MethodPost, "/api/v1/session/end", map[string]any{
		"sessionId": id,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, resp["success"])
}

func TestHandler_DetectionOnClosedSession(t *testing.T) {
	h, _ := newTestHandler(t)
	id := startSession(t, h)

	rec, _ := doJSON(t, h, http.MethodPost, "/api/v1/session/end", map[string]any{"sessionId": id})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := doJSON(t, h, http.MethodPost, "/api/v1/detection/record", map[string]any{
		"sessionId": id, "faceCount": 1,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, resp["success"])
}

func TestHandler_GetStats(t *testing.T) {
	h, _ := newTestHandler(t)
	id := startSession(t, h)
	_, _ = doJSON(t, h, http.MethodPost, "/api/v1/detection/record", map[string]any{
		"sessionId": id, "faceCount": 2, "objectCount": 3,
	})

	rec, resp := doJSON(t, h, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["success"])

	global := resp["globalStats"].(map[string]any)
	assert.Equal(t, float64(1), global["totalSessions"])
	assert.Equal(t, float64(5), global["totalDetections"])
	assert.Equal(t, float64(5), resp["avgDetectionsPerSession"])

	active := resp["activeSessions"].([]any)
	require.Len(t, active, 1)
	first := active[0].(map[string]any)
	assert.Equal(t, id, first["sessionId"])
}

func TestHandler_InvalidBody(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/detection/record", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ListLogs(t *testing.T) {
	h, log := newTestHandler(t)

	name := "session_start_2026-01-01.log"
	require.NoError(t, os.WriteFile(filepath.Join(log.Root(), name), []byte("{}\n"), 0o640))

	rec, resp := doJSON(t, h, http.MethodGet, "/api/v1/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	files := resp["files"].([]any)
	require.Len(t, files, 1)
	first := files[0].(map[string]any)
	assert.Equal(t, name, first["name"])
	assert.Equal(t, "/api/v1/logs/"+name, first["downloadUrl"])
}

func TestHandler_ReadLog(t *testing.T) {
	h, log := newTestHandler(t)

	name := "session_start_2026-01-01.log"
	content := "{\"eventType\":\"SESSION_START\"}\nplain text\n"
	require.NoError(t, os.WriteFile(filepath.Join(log.Root(), name), []byte(content), 0o640))

	rec, resp := doJSON(t, h, http.MethodGet, "/api/v1/logs/"+name, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, name, resp["file"])

	lines := resp["lines"].([]any)
	require.Len(t, lines, 2)
	assert.Equal(t, "plain text", lines[1])
}

func TestHandler_ReadLogNotFound(t *testing.T) {
	h, _ := newTestHandler(t)

	rec, resp := doJSON(t, h, http.MethodGet, "/api/v1/logs/absent_2026-01-01.log", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, resp["success"])
}

func TestHandler_ReadLogTraversalDenied(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/logs/placeholder", nil)
	req.SetPathValue("file", "../../etc/passwd")
	rec := httptest.NewRecorder()
	h.readLog(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "access denied", resp["error"])
}

func TestHandler_CleanupLogs(t *testing.T) {
	h, log := newTestHandler(t)

	old := filepath.Join(log.Root(), "session_start_2026-01-01.log")
	recent := filepath.Join(log.Root(), "session_start_2026-01-02.log")
	require.NoError(t, os.WriteFile(old, []byte("{}\n"), 0o640))
	require.NoError(t, os.WriteFile(recent, []byte("{}\n"), 0o640))

	past := time.Now().Add(-72 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	rec, resp := doJSON(t, h, http.MethodDelete, "/api/v1/logs/cleanup?days=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), resp["deleted"])
	assert.Equal(t, float64(2), resp["days"])

	assert.NoFileExists(t, old)
	assert.FileExists(t, recent)
}

func TestHandler_CleanupLogsDefaultDays(t *testing.T) {
	h, _ := newTestHandler(t)

	rec, resp := doJSON(t, h, http.MethodDelete, "/api/v1/logs/cleanup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(handlerTestPurgeDays), resp["days"])
	assert.Equal(t, float64(0), resp["deleted"])
}

func TestHandler_CleanupLogsInvalidDays(t *testing.T) {
	h, _ := newTestHandler(t)

	rec, resp := doJSON(t, h, http.MethodDelete, "/api/v1/logs/cleanup?days=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, resp["success"])
}

func TestCoerceCount(t *testing.T) {
	assert.Equal(t, int64(3), coerceCount(float64(3)))
	assert.Equal(t, int64(3), coerceCount(float64(3.7)))
	assert.Equal(t, int64(0), coerceCount(float64(-2)))
	assert.Equal(t, int64(4), coerceCount("4"))
	assert.Equal(t, int64(0), coerceCount("abc"))
	assert.Equal(t, int64(0), coerceCount(nil))
	assert.Equal(t, int64(0), coerceCount(true))
	assert.Equal(t, int64(2), coerceCount(json.Number("2")))
}
