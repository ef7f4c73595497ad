package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/publish-orchestrator/internal/api/dto"
	"github.com/cuongbtq/publish-orchestrator/internal/api/model"
	"github.com/cuongbtq/publish-orchestrator/internal/api/storage"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.store.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "job not found"})
			return
		}
		h.logger.Error("Failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get job"})
		return
	}

	c.JSON(http.StatusOK, toDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with optional status and platform filters
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	filter := storage.JobFilter{PageSize: req.PageSize}

	if req.Status != "" {
		status := domain.ParseStatus(req.Status)
		if status == domain.JobStatusUnknown {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "status must be one of PENDING, PROCESSING, DONE, FAILED"})
			return
		}
		filter.Status = string(status)
	}

	if req.Platform != "" {
		platform, ok := domain.ParsePlatform(req.Platform)
		if !ok {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "unsupported platform"})
			return
		}
		filter.Platform = string(platform)
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor",
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cursor"})
		return
	}
	filter.Cursor = cursor

	jobs, err := h.store.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs",
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list jobs"})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(jobs))}
	for i := range jobs {
		resp.Jobs[i] = toDTO(&jobs[i])
	}

	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.ID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// ResetJob handles POST /api/v1/jobs/:job_id/reset
// Moves a FAILED job back to PENDING so the next pass retries it
func (h *JobHandler) ResetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.store.ResetJob(c.Request.Context(), jobID)
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "job not found"})
		return
	case errors.Is(err, domain.ErrStatusConflict):
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		h.logger.Error("Failed to reset job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to reset job"})
		return
	}

	h.logger.Info("Job reset to PENDING",
		slog.String("job_id", jobID),
		slog.String("ip", c.ClientIP()),
	)

	c.JSON(http.StatusOK, toDTO(job))
}

func toDTO(job *model.Job) dto.JobDTO {
	out := dto.JobDTO{
		JobID:         job.ID,
		BrandName:     job.BrandName,
		MediaRef:      job.MediaRef,
		Title:         job.Title,
		Description:   job.Description,
		Tags:          domain.ParseTags(job.Tags),
		ScheduledDate: job.ScheduledDate,
		ScheduledTime: job.ScheduledTime,
		Status:        string(domain.ParseStatus(job.Status)),
		ResultLink:    job.ResultLink.String,
		LastError:     job.LastError.String,
		CreatedAt:     job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     job.UpdatedAt.UTC().Format(time.RFC3339),
	}

	// unparseable cells are returned as stored
	platforms, err := domain.ParsePlatforms(job.Platforms)
	if err != nil {
		out.Platforms = []string{job.Platforms}
	} else {
		out.Platforms = make([]string, len(platforms))
		for i, p := range platforms {
			out.Platforms[i] = string(p)
		}
	}

	if job.DurationMS.Valid {
		d := job.DurationMS.Int64
		out.DurationMS = &d
	}
	if job.ClaimedAt.Valid {
		out.ClaimedAt = job.ClaimedAt.Time.UTC().Format(time.RFC3339)
	}
	if job.CompletedAt.Valid {
		out.CompletedAt = job.CompletedAt.Time.UTC().Format(time.RFC3339)
	}

	return out
}
