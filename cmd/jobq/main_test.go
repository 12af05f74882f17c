package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/job"
	"github.com/xraph/jobq/pagination"
)

func TestLoadCLIConfigDefaults(t *testing.T) {
	cfg, err := loadCLIConfig()
	if err != nil {
		t.Fatalf("loadCLIConfig: %v", err)
	}
	if cfg.Store != "memory" {
		t.Errorf("Store = %q, want memory", cfg.Store)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.DLQPurgeSchedule != "@hourly" {
		t.Errorf("DLQPurgeSchedule = %q, want @hourly", cfg.DLQPurgeSchedule)
	}
	if cfg.broker.Concurrency != jobq.DefaultConfig().Concurrency {
		t.Errorf("broker concurrency = %d, want default", cfg.broker.Concurrency)
	}
}

func TestLoadCLIConfigEnv(t *testing.T) {
	t.Setenv("JOBQ_STORE", "sqlite")
	t.Setenv("JOBQ_DSN", "file:jobq.db")
	t.Setenv("JOBQ_PAGINATION_POLICY", "reject")
	t.Setenv("JOBQ_DLQ_RETENTION", "168h")
	t.Setenv("JOBQ_CONCURRENCY", "3")

	cfg, err := loadCLIConfig()
	if err != nil {
		t.Fatalf("loadCLIConfig: %v", err)
	}
	if cfg.Store != "sqlite" || cfg.DSN != "file:jobq.db" {
		t.Errorf("store = %q %q, want sqlite file:jobq.db", cfg.Store, cfg.DSN)
	}
	policy, _ := cfg.policy()
	if policy != pagination.PolicyReject {
		t.Errorf("policy = %v, want reject", policy)
	}
	if cfg.DLQRetention != 168*time.Hour {
		t.Errorf("DLQRetention = %v, want 168h", cfg.DLQRetention)
	}
	if cfg.broker.Concurrency != 3 {
		t.Errorf("broker concurrency = %d, want 3", cfg.broker.Concurrency)
	}
}

func TestLoadCLIConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"policy", "JOBQ_PAGINATION_POLICY", "lenient"},
		{"log level", "JOBQ_LOG_LEVEL", "loud"},
		{"broker", "JOBQ_CONCURRENCY", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := loadCLIConfig(); err == nil {
				t.Errorf("%s=%s: expected error", tt.key, tt.value)
			}
		})
	}
}

func TestOpenStoreRequiresDSN(t *testing.T) {
	cfg := &cliConfig{Store: "postgres"}
	if _, err := openStore(context.Background(), cfg, slog.Default()); err == nil {
		t.Fatal("expected error for missing DSN")
	}
	cfg = &cliConfig{Store: "cassandra", DSN: "x"}
	if _, err := openStore(context.Background(), cfg, slog.Default()); err == nil {
		t.Fatal("expected error for unknown store")
	}
}

func TestImportMCQRequiresFileID(t *testing.T) {
	handler := importMCQ(slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := handler(context.Background(), job.MCQImport{})
	if !jobq.IsPermanent(err) {
		t.Errorf("empty fileId: err = %v, want permanent", err)
	}
	if err := handler(context.Background(), job.MCQImport{FileID: "f-1"}); err != nil {
		t.Errorf("valid payload: %v", err)
	}
}

func TestPurgeCutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got, err := purgeCutoff("2026-02-01T00:00:00Z", 0, now)
	if err != nil {
		t.Fatalf("before: %v", err)
	}
	if want := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("before cutoff = %v, want %v", got, want)
	}

	got, err = purgeCutoff("", 24*time.Hour, now)
	if err != nil {
		t.Fatalf("older-than: %v", err)
	}
	if want := now.Add(-24 * time.Hour); !got.Equal(want) {
		t.Errorf("older-than cutoff = %v, want %v", got, want)
	}

	if _, err := purgeCutoff("yesterday", 0, now); err == nil {
		t.Error("expected error for malformed --before")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("JOBQ_LOG_LEVEL", "error")
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEnqueueCommand(t *testing.T) {
	out, err := execute(t, "enqueue", "mcq_import", "--payload", `{"fileId":"f-1"}`, "--max-attempts", "5")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var got struct {
		ID          string          `json:"id"`
		Queue       string          `json:"queue"`
		State       string          `json:"state"`
		MaxAttempts int             `json:"max_attempts"`
		Payload     json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if !strings.HasPrefix(got.ID, "job_") {
		t.Errorf("id = %q, want job_ prefix", got.ID)
	}
	if got.Queue != "mcq_import" || got.State != "pending" || got.MaxAttempts != 5 {
		t.Errorf("job = %+v", got)
	}
	var payload job.MCQImport
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("payload %s is not inline JSON: %v", got.Payload, err)
	}
	if payload.FileID != "f-1" {
		t.Errorf("payload fileId = %q, want f-1", payload.FileID)
	}
}

func TestEnqueueCommandErrors(t *testing.T) {
	if _, err := execute(t, "enqueue", "video_encode", "--payload", `{}`); !errors.Is(err, jobq.ErrInvalidQueueName) {
		t.Errorf("unknown queue: err = %v, want ErrInvalidQueueName", err)
	}
	if _, err := execute(t, "enqueue", "mcq_import", "--payload", `{"nope":1}`); !errors.Is(err, jobq.ErrSerialization) {
		t.Errorf("bad payload: err = %v, want ErrSerialization", err)
	}
	if _, err := execute(t, "enqueue", "mcq_import"); err == nil {
		t.Error("missing --payload: expected error")
	}
}

func TestJobsListEmpty(t *testing.T) {
	out, err := execute(t, "jobs", "list", "--json")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	var resp pagination.Response[json.RawMessage]
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 0 || resp.Page != 1 || resp.Limit != pagination.DefaultLimit {
		t.Errorf("resp = %+v", resp)
	}
}

func TestJobsListRejectsUnknownState(t *testing.T) {
	if _, err := execute(t, "jobs", "list", "--state", "sleeping"); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestDLQPurgeRequiresCutoff(t *testing.T) {
	if _, err := execute(t, "dlq", "purge"); err == nil {
		t.Error("expected error without --before or --older-than")
	}
	out, err := execute(t, "dlq", "purge", "--older-than", "1h")
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if !strings.HasPrefix(out, "purged 0 entries") {
		t.Errorf("output = %q", out)
	}
}
