package models

import (
	"time"
	"unicode"
)

// MaxOwnerIDLength bounds owner identifiers.
const MaxOwnerIDLength = 128

// ValidOwnerID reports whether id is usable as a single storage key segment:
// non-empty, bounded, not "." or "..", and free of path separators and
// control characters.
func ValidOwnerID(id string) bool {
	if id == "" || len(id) > MaxOwnerIDLength || id == "." || id == ".." {
		return false
	}
	for _, r := range id {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// CreditBalance is an owner's consumable render balance. Never negative.
type CreditBalance struct {
	OwnerID   string    `json:"owner_id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AlertKind distinguishes success and failure notifications.
type AlertKind string

const (
	AlertSuccess AlertKind = "success"
	AlertFailure AlertKind = "failure"
)

// Alert is a user-visible notification about a job outcome.
type Alert struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id"`
	Kind      AlertKind      `json:"kind"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Asset is an uploaded source file in the owner's catalog.
type Asset struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"owner_id"`
	Provider        string    `json:"provider"`
	ObjectKey       string    `json:"object_key"`
	Mime            string    `json:"mime"`
	SizeBytes       int64     `json:"size_bytes"`
	DurationSeconds int       `json:"duration_seconds"`
	Label           string    `json:"label,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
