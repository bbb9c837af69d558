// Package dto defines the request/response shapes of the runs API.
package dto

import "time"

// CreateRunRequest starts a new training run.
type CreateRunRequest struct {
	Name         string  `json:"name" binding:"required"`
	Strategy     string  `json:"strategy,omitempty"`
	Optimizer    string  `json:"optimizer,omitempty"`
	Loss         string  `json:"loss,omitempty"`
	MaxEpochs    int     `json:"max_epochs,omitempty"`
	LearningRate float64 `json:"learning_rate,omitempty"`
}

// RunResponse is the API view of a training run.
type RunResponse struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Status       string     `json:"status"`
	Strategy     string     `json:"strategy"`
	Optimizer    string     `json:"optimizer"`
	Loss         string     `json:"loss"`
	MaxEpochs    int        `json:"max_epochs"`
	CurrentEpoch int        `json:"current_epoch"`
	LastLoss     float64    `json:"last_loss"`
	DistMean     float64    `json:"dist_mean"`
	Acc          float64    `json:"acc"`
	Rank         int        `json:"rank"`
	WorldSize    int        `json:"world_size"`
	FailReason   string     `json:"fail_reason,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// RunListResponse is a paginated run listing.
type RunListResponse struct {
	Runs   []*RunResponse `json:"runs"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// MetricPointResponse is one logged evaluation result.
type MetricPointResponse struct {
	Epoch     int       `json:"epoch"`
	Step      int       `json:"step"`
	Loss      float64   `json:"loss"`
	DistMean  float64   `json:"dist_mean"`
	Acc       float64   `json:"acc"`
	Split     string    `json:"split"`
	CreatedAt time.Time `json:"created_at"`
}

// SnapshotResponse is the cached latest evaluation state of a run.
type SnapshotResponse struct {
	RunID     string    `json:"run_id"`
	Epoch     int       `json:"epoch"`
	Step      int       `json:"step"`
	Loss      float64   `json:"loss"`
	DistMean  float64   `json:"dist_mean"`
	Acc       float64   `json:"acc"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrorResponse is the uniform API error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
