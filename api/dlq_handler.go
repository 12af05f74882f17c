package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xraph/jobq/dlq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
	"github.com/xraph/jobq/pagination"
)

type dlqResponse struct {
	ID          id.DLQID        `json:"id"`
	JobID       id.JobID        `json:"job_id"`
	Queue       job.QueueName   `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	Error       string          `json:"error"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	FailedAt    time.Time       `json:"failed_at"`
	ReplayedAt  *time.Time      `json:"replayed_at,omitempty"`
	ReplayJobID *id.JobID       `json:"replay_job_id,omitempty"`
}

func toDLQResponse(e *dlq.Entry) dlqResponse {
	r := dlqResponse{
		ID:          e.ID,
		JobID:       e.JobID,
		Queue:       e.Queue,
		Payload:     rawPayload(e.Payload),
		Error:       e.Error,
		Attempts:    e.Attempts,
		MaxAttempts: e.MaxAttempts,
		FailedAt:    e.FailedAt,
		ReplayedAt:  e.ReplayedAt,
	}
	if !e.ReplayJobID.IsNil() {
		replayID := e.ReplayJobID
		r.ReplayJobID = &replayID
	}
	return r
}

type purgeResponse struct {
	Purged int64 `json:"purged"`
}

func (a *API) listDLQ(c echo.Context) error {
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

	ctx := c.Request().Context()
	svc := a.eng.DLQService()
	entries, err := svc.List(ctx, dlq.ListOpts{Limit: page.Limit, Offset: page.Offset(), Queue: q})
	if err != nil {
		return err
	}
	total, err := svc.Count(ctx, q)
	if err != nil {
		return err
	}

	items := make([]dlqResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, toDLQResponse(e))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(page, items, total))
}

func (a *API) getDLQ(c echo.Context) error {
	entryID, err := id.ParseDLQID(c.Param("id"))
	if err != nil {
		return badRequest("invalid dlq id", err)
	}
	e, err := a.eng.DLQService().Get(c.Request().Context(), entryID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toDLQResponse(e))
}

func (a *API) replayDLQ(c echo.Context) error {
	entryID, err := id.ParseDLQID(c.Param("id"))
	if err != nil {
		return badRequest("invalid dlq id", err)
	}
	j, err := a.eng.DLQService().Replay(c.Request().Context(), entryID)
	if err != nil {
		return err
	}
	a.logger.Info("dlq entry replayed via api",
		slog.String("dlq_id", entryID.String()),
		slog.String("job_id", j.ID.String()),
		slog.String("identity", GetIdentity(c).ID),
	)
	return c.JSON(http.StatusAccepted, toJobResponse(j))
}

func (a *API) purgeDLQ(c echo.Context) error {
	raw := c.QueryParam("before")
	if raw == "" {
		return badRequest("before is required", nil)
	}
	before, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return badRequest("before must be RFC3339", err)
	}
	n, err := a.eng.DLQService().Purge(c.Request().Context(), before)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, purgeResponse{Purged: n})
}
