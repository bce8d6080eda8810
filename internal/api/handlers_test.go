package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdrshjr/ZImage-WebUI/internal/artifact"
	"github.com/xdrshjr/ZImage-WebUI/internal/config"
	"github.com/xdrshjr/ZImage-WebUI/internal/model"
	"github.com/xdrshjr/ZImage-WebUI/internal/task"
)

type stubGenerator struct {
	ready bool
}

var _ model.Generator = (*stubGenerator)(nil)

func (s *stubGenerator) Generate(ctx context.Context, req task.Request) ([]byte, error) {
	return []byte("png"), nil
}

func (s *stubGenerator) Ready() bool { return s.ready }

func (s *stubGenerator) GPUInfo() model.GPUInfo {
	return model.GPUInfo{Available: true, Device: "cuda:0", MemoryUsagePercent: 41.5}
}

type testEnv struct {
	router    *gin.Engine
	store     *task.Store
	queue     *task.AdmissionQueue
	artifacts *artifact.FSStore
}

func setupTestRouter(t *testing.T, maxQueueSize int, modelReady bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	artifacts, err := artifact.NewFSStore(t.TempDir())
	require.NoError(t, err)

	cfg := config.Config{
		MaxQueueSize:  maxQueueSize,
		TaskTimeout:   time.Minute,
		DefaultHeight: 1024,
		DefaultWidth:  1024,
		DefaultSteps:  9,
	}
	store := task.NewStore()
	queue := task.NewAdmissionQueue(maxQueueSize)
	h := NewHandler(cfg, store, queue, &stubGenerator{ready: modelReady}, artifacts)

	return &testEnv{
		router:    NewRouter(h),
		store:     store,
		queue:     queue,
		artifacts: artifacts,
	}
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBufferString("")
	} else {
		reader = bytes.NewBufferString(body)
	}
	w := httptest.NewRecorder()
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) (int, string, map[string]any) {
	t.Helper()
	var resp struct {
		Code    int            `json:"code"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "response was not a valid envelope: %s", w.Body.String())
	return resp.Code, resp.Message, resp.Data
}

func TestHealth(t *testing.T) {
	env := setupTestRouter(t, 4, true)

	w := doJSON(t, env.router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	code, _, data := decodeEnvelope(t, w)
	assert.Equal(t, 200, code)
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, true, data["model_loaded"])
}

func TestSubmitGenerate_Success(t *testing.T) {
	env := setupTestRouter(t, 4, true)

	w := doJSON(t, env.router, http.MethodPost, "/api/generate", `{"prompt": "sunset"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	code, _, data := decodeEnvelope(t, w)
	assert.Equal(t, 200, code)
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, float64(0), data["queue_position"])

	id, ok := data["task_id"].(string)
	require.True(t, ok, "task_id missing from response")
	_, err := uuid.Parse(id)
	assert.NoError(t, err, "task_id should be a valid UUID")

	// Defaults applied and seed assigned before enqueue.
	stored, err := env.store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "sunset", stored.Request.Prompt)
	assert.Equal(t, 1024, stored.Request.Width)
	assert.Equal(t, 1024, stored.Request.Height)
	assert.Equal(t, 9, stored.Request.NumInferenceSteps)
	assert.Equal(t, 1, env.queue.Len())
}

func TestSubmitGenerate_ExplicitParameters(t *testing.T) {
	env := setupTestRouter(t, 4, true)

	w := doJSON(t, env.router, http.MethodPost, "/api/generate",
		`{"prompt": "castle", "width": 512, "height": 768, "num_inference_steps": 20, "seed": 7}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	_, _, data := decodeEnvelope(t, w)
	stored, err := env.store.Get(data["task_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, 512, stored.Request.Width)
	assert.Equal(t, 768, stored.Request.Height)
	assert.Equal(t, 20, stored.Request.NumInferenceSteps)
	assert.Equal(t, int64(7), stored.Request.Seed)
}

func TestSubmitGenerate_QueueFull(t *testing.T) {
	env := setupTestRouter(t, 1, true)

	w := doJSON(t, env.router, http.MethodPost, "/api/generate", `{"prompt": "first"}`)
	require.Equal(t, http.StatusOK, w.Code)
	_, _, data := decodeEnvelope(t, w)
	assert.Equal(t, float64(0), data["queue_position"])

	w = doJSON(t, env.router, http.MethodPost, "/api/generate", `{"prompt": "second"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	code, message, _ := decodeEnvelope(t, w)
	assert.Equal(t, 503, code)
	assert.Contains(t, message, "queue is full")

	// The rejected submission must leave no task behind.
	_, _, _, _, total := env.store.Counts()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, env.queue.Len())
}

func TestSubmitGenerate_MissingPrompt(t *testing.T) {
	env := setupTestRouter(t, 4, true)

	w := doJSON(t, env.router, http.MethodPost, "/api/generate", `{"width": 512}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	code, message, _ := decodeEnvelope(t, w)
	assert.Equal(t, 400, code)
	assert.Contains(t, message, "prompt")
}

func TestSubmitGenerate_BlankPrompt(t *testing.T) {
	env := setupTestRouter(t, 4, true)

	w := doJSON(t, env.router, http.MethodPost, "/api/generate", `{"prompt": "   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, _, _, _, total := env.store.Counts()
	assert.Zero(t, total, "rejected submission must not create a task")
}

func TestSubmitGenerate_OutOfRangeValues(t *testing.T) {
	env := setupTestRouter(t, 4, true)

	cases := map[string]string{
		"width too large":  `{"prompt": "p", "width": 4096}`,
		"height too small": `{"prompt": "p", "height": 32}`,
		"steps too large":  `{"prompt": "p", "num_inference_steps": 51}`,
		"steps too small":  `{"prompt": "p", "num_inference_steps": 0}`,
		"negative seed":    `{"prompt": "p", "seed": -1}`,
	}
	for name, payload := range cases {
		w := doJSON(t, env.router, http.MethodPost, "/api/generate", payload)
		assert.Equal(t, http.StatusBadRequest, w.Code, "case %q: %s", name, w.Body.String())
	}

	_, _, _, _, total := env.store.Counts()
	assert.Zero(t, total)
}

func TestSubmitGenerate_ModelNotLoaded(t *testing.T) {
	env := setupTestRouter(t, 4, false)

	w := doJSON(t, env.router, http.MethodPost, "/api/generate", `{"prompt": "sunset"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	code, message, _ := decodeEnvelope(t, w)
	assert.Equal(t, 503, code)
	assert.Contains(t, message, "model not loaded")
}

func TestGetTask_Pending(t *testing.T) {
	env := setupTestRouter(t, 4, true)

	w := doJSON(t, env.router, http.MethodPost, "/api/generate", `{"prompt": "sunset"}`)
	require.Equal(t, http.StatusOK, w.Code)
	_, _, submitData := decodeEnvelope(t, w)
	id := submitData["task_id"].(string)

	w = doJSON(t, env.router, http.MethodGet, "/api/task/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code)
	_, _, data := decodeEnvelope(t, w)
	assert.Equal(t, id, data["task_id"])
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, float64(0), data["queue_position"])
	assert.Equal(t, "sunset", data["prompt"])
	assert.NotContains(t, data, "started_at")
	assert.NotContains(t, data, "completed_at")
}

func TestGetTask_NotFound(t *testing.T) {
	env := setupTestRouter(t, 4, true)

	w := doJSON(t, env.router, http.MethodGet, "/api/task/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	code, message, _ := decodeEnvelope(t, w)
	assert.Equal(t, 404, code)
	assert.Contains(t, message, "not found")
}

func TestGetResult_NotCompleted(t *testing.T) {
	env := setupTestRouter(t, 4, true)

	w := doJSON(t, env.router, http.MethodPost, "/api/generate", `{"prompt": "sunset"}`)
	require.Equal(t, http.StatusOK, w.Code)
	_, _, submitData := decodeEnvelope(t, w)
	id := submitData["task_id"].(string)

	w = doJSON(t, env.router, http.MethodGet, "/api/result/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code)
	_, _, data := decodeEnvelope(t, w)
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, "not completed", data["message"])
}

func TestGetResult_Completed(t *testing.T) {
	env := setupTestRouter(t, 4, true)
	image := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}

	id := uuid.NewString()
	_, err := env.store.Create(id, task.Request{Prompt: "p", Width: 512, Height: 512, NumInferenceSteps: 1, Seed: 1})
	require.NoError(t, err)
	_, err = env.store.MarkProcessing(id)
	require.NoError(t, err)
	ref, err := env.artifacts.Save(id, image)
	require.NoError(t, err)
	_, err = env.store.Complete(id, ref)
	require.NoError(t, err)

	w := doJSON(t, env.router, http.MethodGet, "/api/result/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, image, w.Body.Bytes())
}

func TestGetResult_ArtifactRemoved(t *testing.T) {
	env := setupTestRouter(t, 4, true)

	id := uuid.NewString()
	_, err := env.store.Create(id, task.Request{Prompt: "p", Width: 512, Height: 512, NumInferenceSteps: 1, Seed: 1})
	require.NoError(t, err)
	_, err = env.store.MarkProcessing(id)
	require.NoError(t, err)
	_, err = env.store.Complete(id, "/nonexistent/path.png")
	require.NoError(t, err)

	w := doJSON(t, env.router, http.MethodGet, "/api/result/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetResult_UnknownTask(t *testing.T) {
	env := setupTestRouter(t, 4, true)

	w := doJSON(t, env.router, http.MethodGet, "/api/result/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSystemStatus(t *testing.T) {
	env := setupTestRouter(t, 4, true)

	w := doJSON(t, env.router, http.MethodPost, "/api/generate", `{"prompt": "sunset"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, env.router, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	_, _, data := decodeEnvelope(t, w)

	queue, ok := data["queue"].(map[string]any)
	require.True(t, ok, "status should embed queue counters")
	assert.Equal(t, float64(1), queue["queue_size"])
	assert.Equal(t, float64(4), queue["max_queue_size"])
	assert.Equal(t, float64(1), queue["pending_count"])
	assert.Equal(t, float64(1), queue["total_count"])

	gpu, ok := data["gpu"].(map[string]any)
	require.True(t, ok, "status should relay gpu info")
	assert.Equal(t, true, gpu["available"])
	assert.Equal(t, "cuda:0", gpu["device"])

	assert.Equal(t, true, data["model_loaded"])
}

func TestUnknownEndpoint(t *testing.T) {
	env := setupTestRouter(t, 4, true)

	w := doJSON(t, env.router, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	code, _, _ := decodeEnvelope(t, w)
	assert.Equal(t, 404, code)
}
