// Package distributed carries the process identity through the trainer so
// rank-sensitive behavior (metric files, checkpoints) is explicit rather
// than read from ambient environment state.
package distributed

import (
	"fmt"

	"github.com/openrmt/openrmt/pkg/errors"
)

// ProcessGroup identifies this process within a training job.
type ProcessGroup struct {
	Rank      int
	WorldSize int
}

// NewProcessGroup validates and builds a process group.
func NewProcessGroup(rank, worldSize int) (ProcessGroup, error) {
	if worldSize < 1 {
		return ProcessGroup{}, errors.ValidationErrorf("world size %d, want >= 1", worldSize)
	}
	if rank < 0 || rank >= worldSize {
		return ProcessGroup{}, errors.ValidationErrorf(
			"rank %d out of range for world size %d", rank, worldSize)
	}
	return ProcessGroup{Rank: rank, WorldSize: worldSize}, nil
}

// Single returns the group for a one-process job.
func Single() ProcessGroup {
	return ProcessGroup{Rank: 0, WorldSize: 1}
}

// IsRankZero reports whether this process is the designated writer. Only
// rank zero appends metric rows and uploads checkpoints.
func (g ProcessGroup) IsRankZero() bool {
	return g.Rank == 0
}

// String formats the group as rank/world.
func (g ProcessGroup) String() string {
	return fmt.Sprintf("%d/%d", g.Rank, g.WorldSize)
}
