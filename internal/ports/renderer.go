package ports

import (
	"context"
	"io"
)

// RenderState is the renderer-reported state of a render.
type RenderState string

const (
	RenderQueued    RenderState = "queued"
	RenderRendering RenderState = "rendering"
	RenderDone      RenderState = "done"
	RenderFailed    RenderState = "failed"
)

// RenderSpec is the ephemeral submission built from a job.
type RenderSpec struct {
	JobID       string
	Kind        string
	SourceURL   string
	ClipSeconds int
	Transition  string
	CaptionText string
	MusicURL    string
	Resolution  string
}

// RenderStatus is one poll result.
type RenderStatus struct {
	State     RenderState
	ResultURL string
	Error     string
}

// RenderClient talks to the external renderer.
type RenderClient interface {
	// Submit returns the renderer's ID. RenderRejected carries the provider
	// message; RenderUnavailable marks transport failures.
	Submit(ctx context.Context, spec RenderSpec) (externalID string, err error)
	GetStatus(ctx context.Context, externalID string) (RenderStatus, error)
}

// ArtifactFetcher downloads a finished render.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, url string) (body io.ReadCloser, contentType string, size int64, err error)
}

// Task is one unit of queued work.
type Task struct {
	JobID string `json:"job_id"`
	Kind  string `json:"kind"`
}

// Scheduler hands a task to background workers.
type Scheduler interface {
	Push(ctx context.Context, task Task) error
}
