package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/3leaps/protsearch/internal/errors"
	"github.com/3leaps/protsearch/pkg/jobid"
	"github.com/3leaps/protsearch/pkg/jobregistry"
)

const maxQueryBodyBytes = 1 << 20

// QueryRequest is the body of POST /queries and POST /queries:wait.
type QueryRequest struct {
	ProteinSeq string `json:"protein_seq"`
}

// QueryResponse is returned by POST /queries.
type QueryResponse struct {
	JobID jobid.ID `json:"job_id"`
}

// JobsHandler serves job submission and retrieval.
type JobsHandler struct {
	executor *jobregistry.Executor
}

func NewJobsHandler(executor *jobregistry.Executor) *JobsHandler {
	return &JobsHandler{executor: executor}
}

// Submit accepts a sequence and returns the job id without waiting for the
// search.
func (h *JobsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQueryRequest(w, r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	id, err := h.executor.Submit(r.Context(), req.ProteinSeq)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	w.Header().Set("Location", "/results/"+id.String())
	apperrors.WriteJSON(w, http.StatusAccepted, QueryResponse{JobID: id})
}

// SubmitAndWait accepts a sequence and blocks until the job completes or
// fails. The optional timeout query parameter bounds the wait; the search
// keeps running if the wait gives up.
func (h *JobsHandler) SubmitAndWait(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if raw := strings.TrimSpace(r.URL.Query().Get("timeout")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			respondWithError(w, r, apperrors.New(http.StatusBadRequest, apperrors.CodeInvalidRequest,
				fmt.Sprintf("invalid timeout %q", raw)))
			return
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	req, err := decodeQueryRequest(w, r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	res, err := h.executor.SubmitAndWait(ctx, req.ProteinSeq)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, res)
}

// List returns every job with its status, newest first.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.executor.Store().List()
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []jobregistry.JobSummary{}
	}
	apperrors.WriteJSON(w, http.StatusOK, jobs)
}

// Get returns the status and, for completed jobs, the parsed result rows.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := jobid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	res, err := h.executor.Store().Results(id)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, res)
}

func decodeQueryRequest(w http.ResponseWriter, r *http.Request) (QueryRequest, error) {
	var req QueryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBodyBytes))
	if err := dec.Decode(&req); err != nil {
		msg := "Request body must be a JSON object with a protein_seq field"
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			msg = fmt.Sprintf("Request body exceeds %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			msg = "Request body is empty"
		}
		httpErr := apperrors.New(http.StatusBadRequest, apperrors.CodeInvalidRequest, msg)
		httpErr.Err = err
		return req, httpErr
	}
	return req, nil
}
