// Package storage wires the configured Asset Store backend.
package storage

import "clipforge/internal/ports"

// Provider is the storage contract used across API and worker.
type Provider = ports.StorageProvider
