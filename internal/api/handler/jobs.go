package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/catstealer/internal/api/response"
	"github.com/kiranshivaraju/catstealer/internal/jobs"
	"github.com/kiranshivaraju/catstealer/pkg/models"
)

// JobService defines the job operations the handlers depend on.
type JobService interface {
	Submit(count int) (string, error)
	Status(id string) models.Job
}

// NewFetchCatsHandler returns an http.HandlerFunc for POST /api/v1/cats/fetch.
func NewFetchCatsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Count int `json:"count"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		jobID, err := svc.Submit(req.Count)
		if err != nil {
			switch {
			case errors.Is(err, jobs.ErrInvalidCount):
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"count must be a positive integer", nil)
			case errors.Is(err, jobs.ErrQueueClosed):
				response.Error(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
					"The server is shutting down", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Accepted(w, fetchCatsResponse{JobID: jobID})
	}
}

// NewPollJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewPollJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")

		job := svc.Status(jobID)
		if job.Status == models.JobStatusNotFound {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND",
				"No job exists with the given id", nil)
			return
		}

		resp := jobResponse{
			ID:        job.ID,
			Status:    job.Status,
			CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
		}
		if job.StartedAt != nil {
			s := job.StartedAt.UTC().Format(time.RFC3339)
			resp.StartedAt = &s
		}
		if job.FinishedAt != nil {
			f := job.FinishedAt.UTC().Format(time.RFC3339)
			resp.FinishedAt = &f
		}
		if job.Result != nil {
			resp.Result = &jobResultResponse{NewCats: job.Result.NewCats}
		}
		resp.ErrorMessage = job.ErrorMessage

		response.JSON(w, resp)
	}
}

type fetchCatsResponse struct {
	JobID string `json:"job_id"`
}

type jobResponse struct {
	ID           string             `json:"id"`
	Status       string             `json:"status"`
	CreatedAt    string             `json:"created_at"`
	StartedAt    *string            `json:"started_at,omitempty"`
	FinishedAt   *string            `json:"finished_at,omitempty"`
	Result       *jobResultResponse `json:"result,omitempty"`
	ErrorMessage *string            `json:"error_message,omitempty"`
}

type jobResultResponse struct {
	NewCats int `json:"new_cats"`
}
