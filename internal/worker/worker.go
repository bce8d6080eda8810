// Package worker holds the single authorized consumer of the GPU-bound
// generator. At most one generation is ever in flight; parallelizing this
// loop without parallelizing the accelerator would break the system's core
// correctness assumption.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xdrshjr/ZImage-WebUI/internal/artifact"
	"github.com/xdrshjr/ZImage-WebUI/internal/model"
	"github.com/xdrshjr/ZImage-WebUI/internal/task"
)

// TimeoutMessagePrefix marks a timeout failure's error_message so
// operators can tell a stuck or slow model from a model that errored.
const TimeoutMessagePrefix = "timeout: "

type Worker struct {
	queue     *task.AdmissionQueue
	store     *task.Store
	generator model.Generator
	artifacts artifact.Store
	timeout   time.Duration
}

func New(queue *task.AdmissionQueue, store *task.Store, generator model.Generator, artifacts artifact.Store, timeout time.Duration) *Worker {
	return &Worker{
		queue:     queue,
		store:     store,
		generator: generator,
		artifacts: artifacts,
		timeout:   timeout,
	}
}

// Run consumes the queue in FIFO order until it is closed. Execution and
// timeout failures are recorded on the task and never escape the loop.
func (w *Worker) Run(ctx context.Context) {
	zap.L().Info("worker started", zap.Duration("task_timeout", w.timeout))
	for {
		id, ok := w.queue.DequeueWait()
		if !ok {
			zap.L().Info("worker stopped: queue closed")
			return
		}
		w.process(ctx, id)
	}
}

func (w *Worker) process(ctx context.Context, id string) {
	t, err := w.store.MarkProcessing(id)
	if err != nil {
		// The store and queue only disagree if a submission was rolled
		// back after admission, which TryEnqueue ordering rules out.
		zap.L().Error("dequeued task could not start", zap.String("task_id", id), zap.Error(err))
		return
	}
	zap.L().Info("task processing",
		zap.String("task_id", id),
		zap.Int("width", t.Request.Width),
		zap.Int("height", t.Request.Height),
		zap.Int("steps", t.Request.NumInferenceSteps))

	data, err := w.generate(ctx, t.Request)
	if err != nil {
		w.fail(id, err)
		return
	}

	ref, err := w.artifacts.Save(id, data)
	if err != nil {
		w.fail(id, fmt.Errorf("persist artifact: %w", err))
		return
	}

	if _, err := w.store.Complete(id, ref); err != nil {
		zap.L().Error("completed task could not be recorded", zap.String("task_id", id), zap.Error(err))
		return
	}
	zap.L().Info("task completed", zap.String("task_id", id), zap.String("result_ref", ref))
}

type generateResult struct {
	data []byte
	err  error
}

// generate races the model call against the wall-clock timeout. The call
// runs in its own goroutine; on timeout the context is cancelled so a
// context-aware backend stops, but a backend that ignores cancellation
// keeps the accelerator busy until the call naturally returns. The worker
// still moves on and reports the timeout failure.
func (w *Worker) generate(ctx context.Context, req task.Request) ([]byte, error) {
	gctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	done := make(chan generateResult, 1)
	go func() {
		data, err := w.generator.Generate(gctx, req)
		done <- generateResult{data: data, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			// Distinguish a deadline the backend surfaced itself.
			if gctx.Err() == context.DeadlineExceeded {
				return nil, timeoutError(w.timeout)
			}
			return nil, res.err
		}
		return res.data, nil
	case <-gctx.Done():
		if ctx.Err() != nil {
			// Process shutdown, not a task timeout.
			return nil, ctx.Err()
		}
		return nil, timeoutError(w.timeout)
	}
}

func timeoutError(d time.Duration) error {
	return fmt.Errorf("%sgeneration exceeded %s", TimeoutMessagePrefix, d)
}

func (w *Worker) fail(id string, cause error) {
	if _, err := w.store.Fail(id, cause.Error()); err != nil {
		zap.L().Error("failed task could not be recorded", zap.String("task_id", id), zap.Error(err))
		return
	}
	zap.L().Warn("task failed", zap.String("task_id", id), zap.Error(cause))
}
