// Package ids generates prefixed identifiers such as "job_3f2a...".
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns prefix + "_" + a dashless random UUID.
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// HasPrefix reports whether id was generated with prefix.
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+"_")
}
