// Package v1 is the JSON wire contract of the external renderer.
//
//	POST /v1/renders       RenderRequest -> CreateResponse
//	GET  /v1/renders/{id}  -> StatusResponse
//
// Non-2xx responses carry ErrorResponse.
package v1

// RenderRequest is the body of POST /v1/renders.
type RenderRequest struct {
	JobID       string `json:"job_id"`
	Kind        string `json:"kind"`
	SourceURL   string `json:"source_url"`
	ClipSeconds int    `json:"clip_seconds"`
	Transition  string `json:"transition"`
	CaptionText string `json:"caption_text,omitempty"`
	MusicURL    string `json:"music_url,omitempty"`
	Resolution  string `json:"resolution"`
}

// CreateResponse is returned on accepted submissions.
type CreateResponse struct {
	ID string `json:"id"`
}

// Render states reported by StatusResponse.Status.
const (
	StatusQueued    = "queued"
	StatusRendering = "rendering"
	StatusDone      = "done"
	StatusFailed    = "failed"
)

// StatusResponse is the body of GET /v1/renders/{id}.
type StatusResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ResultURL string `json:"result_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ErrorResponse is the body of non-2xx responses.
type ErrorResponse struct {
	Message string `json:"message"`
}
