package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/dlq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
)

// PushDLQ adds a failed job entry to the dead letter queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	if _, err := s.mdb.Collection(colDLQ).InsertOne(ctx, toDLQModel(entry)); err != nil {
		return fmt.Errorf("jobq/mongo: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries matching the given options, oldest failure
// first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	filter := bson.M{}
	if opts.Queue != "" {
		filter["queue"] = string(opts.Queue)
	}

	findOpts := options.Find().SetSort(bson.D{
		{Key: "failed_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.mdb.Collection(colDLQ).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("jobq/mongo: list dlq: %w", err)
	}

	var models []dlqModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("jobq/mongo: decode dlq: %w", err)
	}

	entries := make([]*dlq.Entry, 0, len(models))
	for i := range models {
		e, convErr := fromDLQModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	var m dlqModel
	err := s.mdb.Collection(colDLQ).FindOne(ctx, bson.M{"_id": entryID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, jobq.ErrDLQNotFound
		}
		return nil, fmt.Errorf("jobq/mongo: get dlq: %w", err)
	}
	return fromDLQModel(&m)
}

// ReplayDLQ marks a DLQ entry as replayed as jobID.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID, jobID id.JobID) error {
	col := s.mdb.Collection(colDLQ)
	res, err := col.UpdateOne(ctx,
		bson.M{"_id": entryID.String(), "replayed_at": nil},
		bson.M{"$set": bson.M{"replayed_at": now(), "replay_job_id": jobID.String()}},
	)
	if err != nil {
		return fmt.Errorf("jobq/mongo: replay dlq: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := col.CountDocuments(ctx, bson.M{"_id": entryID.String()})
	if err != nil {
		return fmt.Errorf("jobq/mongo: check dlq: %w", err)
	}
	if n == 0 {
		return jobq.ErrDLQNotFound
	}
	return jobq.ErrDLQAlreadyReplayed
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.Collection(colDLQ).DeleteMany(ctx, bson.M{"failed_at": bson.M{"$lt": before}})
	if err != nil {
		return 0, fmt.Errorf("jobq/mongo: purge dlq: %w", err)
	}
	return res.DeletedCount, nil
}

// CountDLQ returns the number of entries, optionally for one queue.
func (s *Store) CountDLQ(ctx context.Context, queue job.QueueName) (int64, error) {
	filter := bson.M{}
	if queue != "" {
		filter["queue"] = string(queue)
	}
	n, err := s.mdb.Collection(colDLQ).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("jobq/mongo: count dlq: %w", err)
	}
	return n, nil
}
