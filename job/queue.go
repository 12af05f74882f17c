package job

import (
	"fmt"

	"github.com/xraph/jobq"
)

// QueueName partitions jobs by the handler that must process them.
// The set of recognized names is closed: adding one means adding a
// Variant type and a handler binding.
type QueueName string

const (
	// QueueMCQImport carries MCQImport payloads.
	QueueMCQImport QueueName = "mcq_import"
)

// KnownQueues returns every recognized queue name.
func KnownQueues() []QueueName {
	return []QueueName{QueueMCQImport}
}

// Valid reports whether q is a recognized queue name.
func (q QueueName) Valid() bool {
	for _, k := range KnownQueues() {
		if q == k {
			return true
		}
	}
	return false
}

func (q QueueName) String() string { return string(q) }

// ParseQueueName validates s against the recognized queue names.
func ParseQueueName(s string) (QueueName, error) {
	q := QueueName(s)
	if !q.Valid() {
		return "", fmt.Errorf("%w: %q", jobq.ErrInvalidQueueName, s)
	}
	return q, nil
}

// ParseQueueNames validates a list of names, e.g. from configuration.
func ParseQueueNames(names []string) ([]QueueName, error) {
	out := make([]QueueName, 0, len(names))
	for _, n := range names {
		q, err := ParseQueueName(n)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}
