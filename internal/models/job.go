package models

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a render job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobSubmitted JobStatus = "submitted"
	JobPolling   JobStatus = "polling"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// predecessors lists, for each target status, the stored statuses from which
// a transition is legal. Terminal statuses never appear on the left.
var predecessors = map[JobStatus][]JobStatus{
	JobSubmitted: {JobQueued},
	JobPolling:   {JobSubmitted},
	JobCompleted: {JobPolling},
	JobFailed:    {JobQueued, JobSubmitted, JobPolling},
}

// Predecessors returns the statuses a job must be in to move to target.
func Predecessors(target JobStatus) []JobStatus {
	return predecessors[target]
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to JobStatus) bool {
	for _, p := range predecessors[to] {
		if p == from {
			return true
		}
	}
	return false
}

// Terminal reports whether s is completed or failed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobSubmitted, JobPolling, JobCompleted, JobFailed:
		return true
	}
	return false
}

// NonTerminalStatuses are the statuses recovery looks for.
var NonTerminalStatuses = []JobStatus{JobQueued, JobSubmitted, JobPolling}

// ChargeMode records the settlement policy a job was admitted under.
type ChargeMode string

const (
	// ChargeCheck checks the balance at admission and debits on completion.
	ChargeCheck ChargeMode = "check"
	// ChargeReserve debits at admission and refunds on failure.
	ChargeReserve ChargeMode = "reserve"
)

// Resolutions accepted by the renderer.
var Resolutions = []string{"480p", "720p", "1080p"}

// Transitions accepted by the renderer.
var Transitions = []string{"none", "fade", "slide", "zoom"}

const (
	DefaultResolution = "720p"
	DefaultTransition = "fade"
	MaxCaptionLength  = 500
)

// JobParameters are the caller-supplied render options.
type JobParameters struct {
	// DesiredLength is the requested clip length in seconds. Zero means "use
	// the source duration".
	DesiredLength int    `json:"desired_length"`
	Transition    string `json:"transition,omitempty"`
	CaptionText   string `json:"caption_text,omitempty"`
	MusicRef      string `json:"music_ref,omitempty"`
	Resolution    string `json:"resolution,omitempty"`
}

// Job is one request to turn a source asset into a rendered artifact.
type Job struct {
	ID               string        `json:"id"`
	OwnerID          string        `json:"owner_id"`
	Kind             string        `json:"kind"`
	SourceAssetRef   string        `json:"source_asset_ref"`
	Parameters       JobParameters `json:"parameters"`
	Status           JobStatus     `json:"status"`
	ExternalRenderID string        `json:"external_render_id,omitempty"`
	ResultAssetRef   string        `json:"result_asset_ref,omitempty"`
	ErrorDetail      string        `json:"error_detail,omitempty"`
	ChargeMode       ChargeMode    `json:"charge_mode"`
	Attempts         int           `json:"attempts"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// CheckInvariants verifies the field/status coupling of a stored job.
func (j *Job) CheckInvariants() error {
	if !j.Status.Valid() {
		return fmt.Errorf("job %s: unknown status %q", j.ID, j.Status)
	}
	if (j.Status == JobCompleted) != (j.ResultAssetRef != "") {
		return fmt.Errorf("job %s: result_asset_ref must be set iff completed (status=%s)", j.ID, j.Status)
	}
	if (j.Status == JobFailed) != (j.ErrorDetail != "") {
		return fmt.Errorf("job %s: error_detail must be set iff failed (status=%s)", j.ID, j.Status)
	}
	if (j.Status == JobSubmitted || j.Status == JobPolling || j.Status == JobCompleted) && j.ExternalRenderID == "" {
		return fmt.Errorf("job %s: external_render_id missing in status %s", j.ID, j.Status)
	}
	return nil
}

// JobUpdate is the set of fields a transition may write. Empty strings leave
// the stored value unchanged.
type JobUpdate struct {
	ExternalRenderID string
	ResultAssetRef   string
	ErrorDetail      string
	// IncrementAttempts adds one to Attempts.
	IncrementAttempts bool
}

// JobFilter narrows ListByOwner.
type JobFilter struct {
	Status JobStatus
	Limit  int
}

// DefaultJobListLimit and MaxJobListLimit bound ListByOwner.
const (
	DefaultJobListLimit = 50
	MaxJobListLimit     = 200
)

// Normalize applies the default and ceiling to Limit.
func (f JobFilter) Normalize() JobFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultJobListLimit
	}
	if f.Limit > MaxJobListLimit {
		f.Limit = MaxJobListLimit
	}
	return f
}

// JobHandle is returned to callers on successful admission.
type JobHandle struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

// JobView is what GetStatus exposes to account holders.
type JobView struct {
	JobID     string    `json:"job_id"`
	Kind      string    `json:"kind"`
	Status    JobStatus `json:"status"`
	ResultURL string    `json:"result_url,omitempty"`
	ExpiresAt time.Time `json:"result_url_expires_at,omitzero"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
