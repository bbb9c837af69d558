// Package storage defines the checkpoint store contract.
package storage

import "context"

// CheckpointStore persists and restores model parameter states.
type CheckpointStore interface {
	// Save uploads a parameter state and returns its object key.
	Save(ctx context.Context, runID string, epoch int, state map[string][]float64) (string, error)

	// Load fetches a parameter state by object key.
	Load(ctx context.Context, key string) (map[string][]float64, error)

	// List returns the checkpoint keys stored for a run.
	List(ctx context.Context, runID string) ([]string, error)

	Close() error
}
