package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
	"github.com/xraph/jobq/pagination"
)

// enqueueRequest is the body of POST /v1/jobs.
type enqueueRequest struct {
	Queue        string          `json:"queue"`
	Payload      json.RawMessage `json:"payload"`
	MaxAttempts  int             `json:"max_attempts,omitempty"`
	DelaySeconds int             `json:"delay_seconds,omitempty"`
}

// jobResponse renders a job with its payload as inline JSON.
type jobResponse struct {
	ID            id.JobID        `json:"id"`
	Queue         job.QueueName   `json:"queue"`
	Payload       json.RawMessage `json:"payload"`
	State         job.State       `json:"state"`
	Attempts      int             `json:"attempts"`
	MaxAttempts   int             `json:"max_attempts"`
	LastError     string          `json:"last_error,omitempty"`
	NextVisibleAt time.Time       `json:"next_visible_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func toJobResponse(j *job.Job) jobResponse {
	return jobResponse{
		ID:            j.ID,
		Queue:         j.Queue,
		Payload:       rawPayload(j.Payload),
		State:         j.State,
		Attempts:      j.Attempts,
		MaxAttempts:   j.MaxAttempts,
		LastError:     j.LastError,
		NextVisibleAt: j.NextVisibleAt,
		CompletedAt:   j.CompletedAt,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}

// rawPayload returns data as inline JSON when it is valid JSON and as a
// JSON string otherwise.
func rawPayload(data []byte) json.RawMessage {
	if json.Valid(data) {
		return json.RawMessage(data)
	}
	quoted, _ := json.Marshal(string(data))
	return quoted
}

func (a *API) enqueueJob(c echo.Context) error {
	var req enqueueRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return badRequest("invalid request body", err)
	}
	if req.Queue == "" {
		return badRequest("queue is required", nil)
	}
	if req.MaxAttempts < 0 || req.DelaySeconds < 0 {
		return badRequest("max_attempts and delay_seconds must not be negative", nil)
	}

	var opts []job.Option
	if req.MaxAttempts > 0 {
		opts = append(opts, job.WithMaxAttempts(req.MaxAttempts))
	}
	if req.DelaySeconds > 0 {
		opts = append(opts, job.WithDelay(time.Duration(req.DelaySeconds)*time.Second))
	}

	j, err := a.eng.AddRaw(c.Request().Context(), req.Queue, req.Payload, opts...)
	if err != nil {
		return err
	}

	a.logger.Info("job enqueued via api",
		slog.String("job_id", j.ID.String()),
		slog.String("queue", string(j.Queue)),
		slog.String("identity", GetIdentity(c).ID),
	)
	return c.JSON(http.StatusAccepted, toJobResponse(j))
}

func (a *API) listJobs(c echo.Context) error {
	page, err := pagination.Parse(c.QueryParam("page"), c.QueryParam("limit"), a.policy)
	if err != nil {
		return err
	}

	var q job.QueueName
	if raw := c.QueryParam("queue"); raw != "" {
		if q, err = job.ParseQueueName(raw); err != nil {
			return err
		}
	}
	st := job.State(c.QueryParam("state"))
	if st != "" && !st.Valid() {
		return badRequest("unknown state "+string(st), nil)
	}

	ctx := c.Request().Context()
	store := a.eng.JobStore()
	jobs, err := store.ListJobs(ctx, job.ListOpts{
		Limit:  page.Limit,
		Offset: page.Offset(),
		Queue:  q,
		State:  st,
	})
	if err != nil {
		return err
	}
	total, err := store.CountJobs(ctx, job.CountOpts{Queue: q, State: st})
	if err != nil {
		return err
	}

	items := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, toJobResponse(j))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(page, items, total))
}

func (a *API) getJob(c echo.Context) error {
	jobID, err := id.ParseJobID(c.Param("id"))
	if err != nil {
		return badRequest("invalid job id", err)
	}
	j, err := a.eng.JobStore().GetJob(c.Request().Context(), jobID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toJobResponse(j))
}
