package api

import (
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xdrshjr/ZImage-WebUI/internal/artifact"
	"github.com/xdrshjr/ZImage-WebUI/internal/config"
	"github.com/xdrshjr/ZImage-WebUI/internal/model"
	"github.com/xdrshjr/ZImage-WebUI/internal/task"
)

// Handler translates HTTP requests into store/queue operations. It is the
// only component that creates tasks; the worker is the only one that
// transitions them past pending.
type Handler struct {
	cfg       config.Config
	store     *task.Store
	queue     *task.AdmissionQueue
	reporter  *task.Reporter
	generator model.Generator
	artifacts artifact.Store
}

func NewHandler(cfg config.Config, store *task.Store, queue *task.AdmissionQueue, generator model.Generator, artifacts artifact.Store) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     store,
		queue:     queue,
		reporter:  task.NewReporter(store, queue),
		generator: generator,
		artifacts: artifacts,
	}
}

// NewRouter wires the REST surface onto a gin engine.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.Health)
	r.POST("/api/generate", h.SubmitGenerate)
	r.GET("/api/task/:task_id", h.GetTask)
	r.GET("/api/result/:task_id", h.GetResult)
	r.GET("/api/status", h.GetSystemStatus)

	r.NoRoute(func(c *gin.Context) {
		ResponseError(c, http.StatusNotFound, "no such endpoint")
	})
	return r
}

func (h *Handler) Health(c *gin.Context) {
	ResponseSuccess(c, gin.H{
		"status":       "healthy",
		"model_loaded": h.generator.Ready(),
	})
}

type generateRequest struct {
	Prompt            string `json:"prompt" binding:"required"`
	Height            *int   `json:"height" binding:"omitempty,min=64,max=2048"`
	Width             *int   `json:"width" binding:"omitempty,min=64,max=2048"`
	NumInferenceSteps *int   `json:"num_inference_steps" binding:"omitempty,min=1,max=50"`
	Seed              *int64 `json:"seed" binding:"omitempty,min=0"`
}

func (h *Handler) SubmitGenerate(c *gin.Context) {
	if !h.generator.Ready() {
		ResponseError(c, http.StatusServiceUnavailable, "model not loaded, service unavailable")
		return
	}

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		zap.L().Warn("generate request rejected", zap.Error(err))
		ResponseError(c, http.StatusBadRequest, bindingErrorMessage(err))
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		ResponseError(c, http.StatusBadRequest, "prompt is required and cannot be blank")
		return
	}

	treq := task.Request{
		Prompt:            prompt,
		Width:             h.cfg.DefaultWidth,
		Height:            h.cfg.DefaultHeight,
		NumInferenceSteps: h.cfg.DefaultSteps,
	}
	if req.Width != nil {
		treq.Width = *req.Width
	}
	if req.Height != nil {
		treq.Height = *req.Height
	}
	if req.NumInferenceSteps != nil {
		treq.NumInferenceSteps = *req.NumInferenceSteps
	}
	if req.Seed != nil {
		treq.Seed = *req.Seed
	} else {
		// Assigned before enqueue so a retried batch reproduces.
		treq.Seed = rand.Int63n(1 << 31)
	}

	id := uuid.New().String()
	if _, err := h.store.Create(id, treq); err != nil {
		zap.L().Error("task record could not be created", zap.String("task_id", id), zap.Error(err))
		ResponseError(c, http.StatusInternalServerError, "failed to create task record")
		return
	}
	if !h.queue.TryEnqueue(id) {
		// Rejected submissions are never represented as tasks.
		h.store.Delete(id)
		ResponseError(c, http.StatusServiceUnavailable, "task queue is full, please retry later")
		return
	}

	// The worker may already have dispatched the task; then position 0 is
	// reported, consistent with it being head-of-line a moment ago.
	pos, _ := h.queue.PositionOf(id)
	zap.L().Info("task submitted",
		zap.String("task_id", id),
		zap.Int("queue_position", pos),
		zap.Int("queue_size", h.queue.Len()))

	ResponseSuccess(c, gin.H{
		"task_id":        id,
		"status":         task.StatusPending,
		"queue_position": pos,
	})
}

func (h *Handler) GetTask(c *gin.Context) {
	id := c.Param("task_id")
	view, err := h.reporter.GetTask(id)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			ResponseError(c, http.StatusNotFound, "task not found")
			return
		}
		zap.L().Error("task lookup failed", zap.String("task_id", id), zap.Error(err))
		ResponseError(c, http.StatusInternalServerError, "failed to retrieve task status")
		return
	}
	ResponseSuccess(c, view)
}

func (h *Handler) GetResult(c *gin.Context) {
	id := c.Param("task_id")
	t, err := h.store.Get(id)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			ResponseError(c, http.StatusNotFound, "task not found")
			return
		}
		zap.L().Error("task lookup failed", zap.String("task_id", id), zap.Error(err))
		ResponseError(c, http.StatusInternalServerError, "failed to retrieve task result")
		return
	}

	if t.Status != task.StatusCompleted {
		ResponseSuccess(c, gin.H{
			"task_id": id,
			"status":  t.Status,
			"message": "not completed",
		})
		return
	}

	data, err := h.artifacts.Open(t.ResultRef)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			ResponseError(c, http.StatusNotFound, "generated result no longer exists")
			return
		}
		zap.L().Error("artifact read failed", zap.String("task_id", id), zap.Error(err))
		ResponseError(c, http.StatusInternalServerError, "failed to read generated result")
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

func (h *Handler) GetSystemStatus(c *gin.Context) {
	ResponseSuccess(c, gin.H{
		"queue":        h.reporter.SystemStatus(),
		"gpu":          h.generator.GPUInfo(),
		"model_loaded": h.generator.Ready(),
	})
}

// bindingErrorMessage flattens validator errors into one line naming each
// offending field and constraint.
func bindingErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body: " + err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fieldName(fe)))
		case "min", "max":
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fieldName(fe), fe.Tag(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", fieldName(fe)))
		}
	}
	return strings.Join(parts, "; ")
}

func fieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "Prompt":
		return "prompt"
	case "Height":
		return "height"
	case "Width":
		return "width"
	case "NumInferenceSteps":
		return "num_inference_steps"
	case "Seed":
		return "seed"
	}
	return fe.Field()
}
