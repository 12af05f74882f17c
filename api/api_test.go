package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/api"
	"github.com/xraph/jobq/dlq"
	"github.com/xraph/jobq/engine"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
	"github.com/xraph/jobq/pagination"
	"github.com/xraph/jobq/store/memory"
)

const testToken = "secret"

type fixture struct {
	store *memory.Store
	eng   *engine.Engine
	e     *echo.Echo
}

func newFixture(t *testing.T, opts ...api.Option) *fixture {
	t.Helper()
	s := memory.New()
	b, err := jobq.New(jobq.WithStore(s))
	if err != nil {
		t.Fatalf("jobq.New: %v", err)
	}
	reg := job.MustRegistry(job.Bind(func(context.Context, job.MCQImport) error { return nil }))
	eng, err := engine.Build(b, reg)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	base := []api.Option{api.WithAuthenticator(api.StaticToken(testToken, api.Identity{ID: "usr_test"}))}
	a := api.New(eng, nil, append(base, opts...)...)
	return &fixture{store: s, eng: eng, e: a.Echo()}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+testToken)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type jobBody struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	State       string          `json:"state"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestAPI_RequiresIdentity(t *testing.T) {
	f := newFixture(t)

	for _, token := range []string{"", "wrong"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
		if token != "" {
			req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		f.e.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: status = %d, want 401", token, rec.Code)
		}
		if body := decode[errorBody](t, rec); body.Error.Code != "unauthorized" {
			t.Fatalf("code = %q, want unauthorized", body.Error.Code)
		}
	}
}

func TestAPI_EnqueueAndGet(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/jobs", `{"queue":"mcq_import","payload":{"fileId":"f1"},"max_attempts":5}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decode[jobBody](t, rec)
	if created.State != string(job.StatePending) || created.MaxAttempts != 5 || created.Attempts != 0 {
		t.Fatalf("created = %+v", created)
	}
	if !strings.HasPrefix(created.ID, "job_") {
		t.Fatalf("id = %q, want job_ prefix", created.ID)
	}

	rec = f.do(t, http.MethodGet, "/v1/jobs/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	got := decode[jobBody](t, rec)
	if got.ID != created.ID {
		t.Fatalf("got id %q, want %q", got.ID, created.ID)
	}
	var payload job.MCQImport
	if err := json.Unmarshal(got.Payload, &payload); err != nil || payload.FileID != "f1" {
		t.Fatalf("payload = %s (%v)", got.Payload, err)
	}
}

func TestAPI_EnqueueDelay(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/jobs", `{"queue":"mcq_import","payload":{"fileId":"f1"},"delay_seconds":60}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	jobID := id.MustParse(decode[jobBody](t, rec).ID)
	j, err := f.store.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if d := j.NextVisibleAt.Sub(j.CreatedAt); d < 59*time.Second {
		t.Fatalf("visible after %v, want ~60s", d)
	}
}

func TestAPI_EnqueueErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"missing queue", `{"payload":{}}`, http.StatusBadRequest},
		{"unknown queue", `{"queue":"nope","payload":{}}`, http.StatusBadRequest},
		{"malformed payload", `{"queue":"mcq_import","payload":{"bogus":1}}`, http.StatusBadRequest},
		{"negative delay", `{"queue":"mcq_import","payload":{"fileId":"x"},"delay_seconds":-1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/v1/jobs", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestAPI_GetJobErrors(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, http.MethodGet, "/v1/jobs/not-an-id", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/v1/jobs/"+id.NewJobID().String(), ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing job status = %d", rec.Code)
	}
}

func TestAPI_ListJobsPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := engine.AddJob(ctx, f.eng, job.MCQImport{FileID: "f"}); err != nil {
			t.Fatalf("AddJob: %v", err)
		}
	}

	rec := f.do(t, http.MethodGet, "/v1/jobs?page=2&limit=2&queue=mcq_import&state=pending", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	page := decode[pagination.Response[jobBody]](t, rec)
	if page.Page != 2 || page.Limit != 2 || page.Total != 5 || len(page.Items) != 2 {
		t.Fatalf("page = %+v", page)
	}

	// Coerced: limit 0 clamps to 1, over-cap clamps to MaxLimit.
	page = decode[pagination.Response[jobBody]](t, f.do(t, http.MethodGet, "/v1/jobs?limit=0", ""))
	if page.Limit != 1 || len(page.Items) != 1 {
		t.Fatalf("limit=0 page = %+v", page)
	}
	page = decode[pagination.Response[jobBody]](t, f.do(t, http.MethodGet, "/v1/jobs?limit=1000&page=abc", ""))
	if page.Limit != pagination.MaxLimit || page.Page != pagination.DefaultPage {
		t.Fatalf("coerced page = %+v", page)
	}

	page = decode[pagination.Response[jobBody]](t, f.do(t, http.MethodGet, "/v1/jobs?state=completed", ""))
	if page.Total != 0 || page.Items == nil {
		t.Fatalf("empty page = %+v", page)
	}

	if rec := f.do(t, http.MethodGet, "/v1/jobs?state=bogus", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus state status = %d", rec.Code)
	}
}

func TestAPI_ListJobsRejectPolicy(t *testing.T) {
	f := newFixture(t, api.WithPaginationPolicy(pagination.PolicyReject))

	rec := f.do(t, http.MethodGet, "/v1/jobs?limit=1000", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/v1/jobs?limit=10", ""); rec.Code != http.StatusOK {
		t.Fatalf("valid limit status = %d", rec.Code)
	}
}

func TestAPI_Stats(t *testing.T) {
	f := newFixture(t)
	if _, err := engine.AddJob(context.Background(), f.eng, job.MCQImport{FileID: "f"}); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	rec := f.do(t, http.MethodGet, "/v1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	stats := decode[engine.Stats](t, rec)
	if stats.Jobs[job.QueueMCQImport][job.StatePending] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func pushEntry(t *testing.T, s *memory.Store, failedAt time.Time) *dlq.Entry {
	t.Helper()
	e := &dlq.Entry{
		ID:          id.NewDLQID(),
		JobID:       id.NewJobID(),
		Queue:       job.QueueMCQImport,
		Payload:     []byte(`{"fileId":"f1"}`),
		Error:       "boom",
		Attempts:    3,
		MaxAttempts: 3,
		FailedAt:    failedAt,
		CreatedAt:   failedAt,
	}
	if err := s.PushDLQ(context.Background(), e); err != nil {
		t.Fatalf("PushDLQ: %v", err)
	}
	return e
}

func TestAPI_DLQListGetReplay(t *testing.T) {
	f := newFixture(t)
	entry := pushEntry(t, f.store, time.Now().UTC())

	page := decode[pagination.Response[map[string]any]](t, f.do(t, http.MethodGet, "/v1/dlq?queue=mcq_import", ""))
	if page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("dlq page = %+v", page)
	}

	rec := f.do(t, http.MethodGet, "/v1/dlq/"+entry.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/v1/dlq/"+entry.ID.String()+"/replay", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("replay status = %d (%s)", rec.Code, rec.Body.String())
	}
	replayed := decode[jobBody](t, rec)
	if replayed.State != string(job.StatePending) || replayed.Attempts != 0 || replayed.ID == entry.JobID.String() {
		t.Fatalf("replayed = %+v", replayed)
	}

	rec = f.do(t, http.MethodPost, "/v1/dlq/"+entry.ID.String()+"/replay", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second replay status = %d, want 409", rec.Code)
	}

	if rec := f.do(t, http.MethodGet, "/v1/dlq/"+id.NewDLQID().String(), ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing entry status = %d", rec.Code)
	}
}

func TestAPI_DLQPurge(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	pushEntry(t, f.store, now.Add(-48*time.Hour))
	pushEntry(t, f.store, now)

	if rec := f.do(t, http.MethodDelete, "/v1/dlq", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing before status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/v1/dlq?before=yesterday", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad before status = %d", rec.Code)
	}

	before := now.Add(-24 * time.Hour).Format(time.RFC3339)
	rec := f.do(t, http.MethodDelete, "/v1/dlq?before="+before, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("purge status = %d", rec.Code)
	}
	if got := decode[map[string]int64](t, rec)["purged"]; got != 1 {
		t.Fatalf("purged = %d, want 1", got)
	}
}
