// Package model wraps the image-generation backend behind a narrow
// interface. The backend is the single physical accelerator of the system:
// it must never be invoked concurrently, which is why exactly one worker
// consumes the queue.
package model

import (
	"context"

	"github.com/xdrshjr/ZImage-WebUI/internal/task"
)

// Generator is the black-box inference collaborator.
//
// Generate must honor ctx cancellation where the backend supports it; the
// worker cancels the context when the task timeout elapses. Generate is
// only ever called from the single worker goroutine.
type Generator interface {
	Generate(ctx context.Context, req task.Request) ([]byte, error)
	// Ready reports whether the backend is loaded and able to serve.
	// Submissions are rejected with 503 while it is false.
	Ready() bool
	// GPUInfo relays the accelerator utilization snapshot the backend
	// exposes. Backends that cannot observe the device report
	// Available=false with a message.
	GPUInfo() GPUInfo
}

// GPUInfo mirrors the runtime's device snapshot as-is.
type GPUInfo struct {
	Available          bool    `json:"available"`
	Device             string  `json:"device,omitempty"`
	MemoryAllocatedGB  float64 `json:"memory_allocated_gb,omitempty"`
	MemoryReservedGB   float64 `json:"memory_reserved_gb,omitempty"`
	MemoryTotalGB      float64 `json:"memory_total_gb,omitempty"`
	MemoryUsagePercent float64 `json:"memory_usage_percent,omitempty"`
	Message            string  `json:"message,omitempty"`
}
