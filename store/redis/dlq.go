package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/dlq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
)

// PushDLQ adds a failed job entry to the dead letter queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	eID := entry.ID.String()
	score := float64(entry.FailedAt.UnixMilli())

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, dlqKey(eID), dlqToMap(entry))
	pipe.ZAdd(ctx, dlqIDsKey, goredis.Z{Score: score, Member: eID})
	pipe.ZAdd(ctx, dlqQueueKey(string(entry.Queue)), goredis.Z{Score: score, Member: eID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobq/redis: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries matching the given options, oldest failure
// first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	key := dlqIDsKey
	if opts.Queue != "" {
		key = dlqQueueKey(string(opts.Queue))
	}

	start, stop := int64(max(opts.Offset, 0)), int64(-1)
	if opts.Limit > 0 {
		stop = start + int64(opts.Limit) - 1
	}
	ids, err := s.client.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("jobq/redis: list dlq: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, eID := range ids {
		cmds[i] = pipe.HGetAll(ctx, dlqKey(eID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("jobq/redis: list dlq entries: %w", err)
	}

	entries := make([]*dlq.Entry, 0, len(ids))
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue
		}
		e, convErr := mapToDLQ(vals)
		if convErr != nil {
			return nil, convErr
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	vals, err := s.client.HGetAll(ctx, dlqKey(entryID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("jobq/redis: get dlq: %w", err)
	}
	if len(vals) == 0 {
		return nil, jobq.ErrDLQNotFound
	}
	return mapToDLQ(vals)
}

// ReplayDLQ marks a DLQ entry as replayed as jobID.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID, jobID id.JobID) error {
	code, err := replayScript.Run(ctx, s.client,
		[]string{dlqKey(entryID.String())},
		formatTime(time.Now().UTC()), jobID.String(),
	).Int()
	if err != nil {
		return fmt.Errorf("jobq/redis: replay dlq: %w", err)
	}
	switch code {
	case 1:
		return nil
	case -1:
		return jobq.ErrDLQNotFound
	}
	return jobq.ErrDLQAlreadyReplayed
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	maxScore := "(" + strconv.FormatInt(before.UnixMilli(), 10)
	ids, err := s.client.ZRangeByScore(ctx, dlqIDsKey, &goredis.ZRangeBy{Min: "-inf", Max: maxScore}).Result()
	if err != nil {
		return 0, fmt.Errorf("jobq/redis: purge dlq scan: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	lookup := s.client.Pipeline()
	queueCmds := make([]*goredis.StringCmd, len(ids))
	for i, eID := range ids {
		queueCmds[i] = lookup.HGet(ctx, dlqKey(eID), "queue")
	}
	if _, err := lookup.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return 0, fmt.Errorf("jobq/redis: purge dlq queues: %w", err)
	}
	queues := make(map[string]struct{})
	for _, cmd := range queueCmds {
		if q := cmd.Val(); q != "" {
			queues[q] = struct{}{}
		}
	}

	pipe := s.client.TxPipeline()
	for _, eID := range ids {
		pipe.Del(ctx, dlqKey(eID))
	}
	members := make([]any, len(ids))
	for i, eID := range ids {
		members[i] = eID
	}
	pipe.ZRem(ctx, dlqIDsKey, members...)
	for q := range queues {
		pipe.ZRem(ctx, dlqQueueKey(q), members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("jobq/redis: purge dlq: %w", err)
	}
	return int64(len(ids)), nil
}

// CountDLQ returns the number of entries, optionally for one queue.
func (s *Store) CountDLQ(ctx context.Context, queue job.QueueName) (int64, error) {
	key := dlqIDsKey
	if queue != "" {
		key = dlqQueueKey(string(queue))
	}
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("jobq/redis: count dlq: %w", err)
	}
	return n, nil
}

func dlqToMap(e *dlq.Entry) map[string]any {
	return map[string]any{
		"id":            e.ID.String(),
		"job_id":        e.JobID.String(),
		"queue":         string(e.Queue),
		"payload":       string(e.Payload),
		"error":         e.Error,
		"attempts":      strconv.Itoa(e.Attempts),
		"max_attempts":  strconv.Itoa(e.MaxAttempts),
		"failed_at":     formatTime(e.FailedAt),
		"replayed_at":   formatOptTime(e.ReplayedAt),
		"replay_job_id": e.ReplayJobID.String(),
		"created_at":    formatTime(e.CreatedAt),
	}
}

func mapToDLQ(m map[string]string) (*dlq.Entry, error) {
	entryID, err := id.ParseDLQID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("jobq/redis: parse dlq id %q: %w", m["id"], err)
	}
	jobID, err := id.ParseJobID(m["job_id"])
	if err != nil {
		return nil, fmt.Errorf("jobq/redis: parse job id %q: %w", m["job_id"], err)
	}

	e := &dlq.Entry{
		ID:      entryID,
		JobID:   jobID,
		Queue:   job.QueueName(m["queue"]),
		Payload: []byte(m["payload"]),
		Error:   m["error"],
	}
	e.Attempts, _ = strconv.Atoi(m["attempts"])
	e.MaxAttempts, _ = strconv.Atoi(m["max_attempts"])

	if e.FailedAt, err = time.Parse(time.RFC3339Nano, m["failed_at"]); err != nil {
		return nil, fmt.Errorf("jobq/redis: parse dlq failed_at: %w", err)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, m["created_at"]); err != nil {
		return nil, fmt.Errorf("jobq/redis: parse dlq created_at: %w", err)
	}
	if e.ReplayedAt, err = parseOptTime(m["replayed_at"]); err != nil {
		return nil, fmt.Errorf("jobq/redis: parse dlq replayed_at: %w", err)
	}
	if r := m["replay_job_id"]; r != "" {
		if e.ReplayJobID, err = id.ParseJobID(r); err != nil {
			return nil, fmt.Errorf("jobq/redis: parse replay job id %q: %w", r, err)
		}
	}
	return e, nil
}
