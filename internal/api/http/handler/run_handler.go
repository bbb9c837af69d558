// Package handler implements the runs API endpoints.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openrmt/openrmt/internal/app/dto"
	"github.com/openrmt/openrmt/internal/app/service"
	"github.com/openrmt/openrmt/internal/domain/run"
	"github.com/openrmt/openrmt/internal/observability/logging"
	"github.com/openrmt/openrmt/pkg/errors"
)

// RunHandler serves the /api/v1/runs endpoints.
type RunHandler struct {
	svc    *service.RunService
	logger logging.Logger
}

// NewRunHandler builds the handler.
func NewRunHandler(svc *service.RunService, logger logging.Logger) *RunHandler {
	return &RunHandler{svc: svc, logger: logger}
}

// Register mounts the run routes on a router group.
func (h *RunHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/runs", h.List)
	rg.GET("/runs/:id", h.Get)
	rg.GET("/runs/:id/metrics", h.Metrics)
	rg.GET("/runs/:id/snapshot", h.Snapshot)
}

// List returns a page of runs.
func (h *RunHandler) List(c *gin.Context) {
	var q struct {
		Limit  int `form:"limit,default=20"`
		Offset int `form:"offset,default=0"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, errors.ValidationError("invalid pagination parameters"))
		return
	}

	runs, total, err := h.svc.ListRuns(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := &dto.RunListResponse{
		Runs:   make([]*dto.RunResponse, len(runs)),
		Total:  total,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	for i, r := range runs {
		resp.Runs[i] = toRunResponse(r)
	}
	c.JSON(http.StatusOK, resp)
}

// Get returns one run by ID.
func (h *RunHandler) Get(c *gin.Context) {
	r, err := h.svc.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toRunResponse(r))
}

// Metrics returns a run's logged metric points.
func (h *RunHandler) Metrics(c *gin.Context) {
	var q struct {
		Limit int `form:"limit,default=100"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, errors.ValidationError("invalid limit parameter"))
		return
	}

	points, err := h.svc.ListMetrics(c.Request.Context(), c.Param("id"), q.Limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	out := make([]*dto.MetricPointResponse, len(points))
	for i, p := range points {
		out[i] = &dto.MetricPointResponse{
			Epoch:     p.Epoch,
			Step:      p.Step,
			Loss:      p.Loss,
			DistMean:  p.DistMean,
			Acc:       p.Acc,
			Split:     p.Split,
			CreatedAt: p.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"metrics": out})
}

// Snapshot returns the cached latest evaluation state of a run.
func (h *RunHandler) Snapshot(c *gin.Context) {
	s, err := h.svc.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if s == nil {
		h.fail(c, errors.NotFoundError("snapshot for run "+c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, &dto.SnapshotResponse{
		RunID:     s.RunID,
		Epoch:     s.Epoch,
		Step:      s.Step,
		Loss:      s.Loss,
		DistMean:  s.DistMean,
		Acc:       s.Acc,
		UpdatedAt: s.UpdatedAt,
	})
}

func (h *RunHandler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := errors.CodeInternal
	msg := "internal server error"

	if appErr, ok := err.(*errors.AppError); ok {
		code = appErr.Code
		msg = appErr.Message
		switch appErr.Type {
		case errors.ErrorTypeValidation:
			status = http.StatusBadRequest
		case errors.ErrorTypeNotFound:
			status = http.StatusNotFound
		}
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", logging.Error(err))
	}
	c.JSON(status, &dto.ErrorResponse{Code: code, Message: msg})
}

func toRunResponse(r *run.TrainingRun) *dto.RunResponse {
	return &dto.RunResponse{
		ID:           r.ID,
		Name:         r.Name,
		Status:       string(r.Status),
		Strategy:     string(r.Strategy),
		Optimizer:    string(r.Optimizer),
		Loss:         string(r.Loss),
		MaxEpochs:    r.MaxEpochs,
		CurrentEpoch: r.CurrentEpoch,
		LastLoss:     r.LastLoss,
		DistMean:     r.DistMean,
		Acc:          r.Acc,
		Rank:         r.Rank,
		WorldSize:    r.WorldSize,
		FailReason:   r.FailReason,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		CreatedAt:    r.CreatedAt,
	}
}
