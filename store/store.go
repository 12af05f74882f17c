package store

import (
	"github.com/xraph/jobq"
	"github.com/xraph/jobq/dlq"
	"github.com/xraph/jobq/job"
)

// Store is the aggregate persistence interface. A single backend
// implements all of it.
type Store interface {
	jobq.Storer
	job.Store
	dlq.Store
}
