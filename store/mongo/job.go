package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
)

var claimSort = bson.D{
	{Key: "created_at", Value: 1},
	{Key: "_id", Value: 1},
}

// EnqueueJob persists a new job in pending state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	_, err := s.mdb.Collection(colJobs).InsertOne(ctx, toJobModel(j))
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return jobq.ErrJobAlreadyExists
		}
		return fmt.Errorf("jobq/mongo: enqueue job: %w", err)
	}
	return nil
}

// ClaimJobs atomically claims up to opts.Limit visible pending jobs, one
// FindOneAndUpdate per job.
func (s *Store) ClaimJobs(ctx context.Context, opts job.ClaimOpts) ([]*job.Job, error) {
	t := opts.Now
	if t.IsZero() {
		t = now()
	}
	limit := max(opts.Limit, 1)
	col := s.mdb.Collection(colJobs)

	queues := make([]string, len(opts.Queues))
	for i, q := range opts.Queues {
		queues[i] = string(q)
	}

	filter := bson.M{
		"state":           string(job.StatePending),
		"queue":           bson.M{"$in": queues},
		"next_visible_at": bson.M{"$lte": t},
	}
	update := bson.M{
		"$set": bson.M{
			"state":            string(job.StateClaimed),
			"worker_id":        opts.WorkerID.String(),
			"lease_expires_at": t.Add(opts.Lease),
			"updated_at":       t,
		},
	}
	findOpts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(claimSort)

	jobs := make([]*job.Job, 0, limit)
	for range limit {
		var m jobModel
		err := col.FindOneAndUpdate(ctx, filter, update, findOpts).Decode(&m)
		if err != nil {
			if isNoDocuments(err) {
				break
			}
			return nil, fmt.Errorf("jobq/mongo: claim job: %w", err)
		}

		j, convErr := fromJobModel(&m)
		if convErr != nil {
			return nil, convErr
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ResolveJob persists a claim outcome if the caller still holds the lease.
func (s *Store) ResolveJob(ctx context.Context, j *job.Job) error {
	if !job.CanTransition(job.StateClaimed, j.State) {
		return jobq.ErrInvalidState
	}

	set := bson.M{
		"state":           string(j.State),
		"attempts":        j.Attempts,
		"next_visible_at": j.NextVisibleAt,
		"last_error":      j.LastError,
		"updated_at":      now(),
	}
	if j.CompletedAt != nil {
		set["completed_at"] = *j.CompletedAt
	}
	if j.State != job.StateClaimed {
		set["worker_id"] = ""
		set["lease_expires_at"] = nil
	}

	res, err := s.mdb.Collection(colJobs).UpdateOne(ctx,
		bson.M{"_id": j.ID.String(), "state": string(job.StateClaimed), "worker_id": j.WorkerID.String()},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("jobq/mongo: resolve job: %w", err)
	}
	if res.MatchedCount == 0 {
		return s.missingOrLost(ctx, j.ID)
	}
	return nil
}

// RenewLease extends the lease held by workerID.
func (s *Store) RenewLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, until time.Time) error {
	res, err := s.mdb.Collection(colJobs).UpdateOne(ctx,
		bson.M{"_id": jobID.String(), "state": string(job.StateClaimed), "worker_id": workerID.String()},
		bson.M{"$set": bson.M{"lease_expires_at": until, "updated_at": now()}},
	)
	if err != nil {
		return fmt.Errorf("jobq/mongo: renew lease: %w", err)
	}
	if res.MatchedCount == 0 {
		return s.missingOrLost(ctx, jobID)
	}
	return nil
}

func (s *Store) missingOrLost(ctx context.Context, jobID id.JobID) error {
	n, err := s.mdb.Collection(colJobs).CountDocuments(ctx, bson.M{"_id": jobID.String()})
	if err != nil {
		return fmt.Errorf("jobq/mongo: check job: %w", err)
	}
	if n == 0 {
		return jobq.ErrJobNotFound
	}
	return jobq.ErrLeaseExpired
}

// RecoverExpiredLeases returns lapsed claims to pending without touching
// their attempt count. Each job is flipped with its own conditional update
// so a concurrent renewal wins.
func (s *Store) RecoverExpiredLeases(ctx context.Context, t time.Time) ([]*job.Job, error) {
	col := s.mdb.Collection(colJobs)
	expired := bson.M{
		"state":            string(job.StateClaimed),
		"lease_expires_at": bson.M{"$lt": t},
	}
	update := bson.M{
		"$set": bson.M{
			"state":            string(job.StatePending),
			"worker_id":        "",
			"lease_expires_at": nil,
			"next_visible_at":  t,
			"updated_at":       t,
		},
	}
	findOpts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(claimSort)

	var recovered []*job.Job
	for {
		var m jobModel
		err := col.FindOneAndUpdate(ctx, expired, update, findOpts).Decode(&m)
		if err != nil {
			if isNoDocuments(err) {
				return recovered, nil
			}
			return nil, fmt.Errorf("jobq/mongo: recover leases: %w", err)
		}
		j, convErr := fromJobModel(&m)
		if convErr != nil {
			return nil, convErr
		}
		recovered = append(recovered, j)
	}
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var m jobModel
	err := s.mdb.Collection(colJobs).FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, jobq.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobq/mongo: get job: %w", err)
	}
	return fromJobModel(&m)
}

// ListJobs returns jobs matching opts ordered by createdAt then ID.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	findOpts := options.Find().SetSort(claimSort)
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.mdb.Collection(colJobs).Find(ctx, jobFilter(opts.Queue, opts.State), findOpts)
	if err != nil {
		return nil, fmt.Errorf("jobq/mongo: list jobs: %w", err)
	}

	var models []jobModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("jobq/mongo: decode jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	n, err := s.mdb.Collection(colJobs).CountDocuments(ctx, jobFilter(opts.Queue, opts.State))
	if err != nil {
		return 0, fmt.Errorf("jobq/mongo: count jobs: %w", err)
	}
	return n, nil
}

func jobFilter(queue job.QueueName, state job.State) bson.M {
	filter := bson.M{}
	if queue != "" {
		filter["queue"] = string(queue)
	}
	if state != "" {
		filter["state"] = string(state)
	}
	return filter
}
