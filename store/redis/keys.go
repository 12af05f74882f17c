package redis

// Redis key naming conventions for jobq data.
// All keys are prefixed with "jobq:" to avoid collisions.

const keyPrefix = "jobq:"

// ── Job keys ──

// jobKey returns the key for a job hash: jobq:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// readyKey returns the Sorted Set of claimable job IDs for a queue, scored
// by creation time in milliseconds: jobq:ready:{queue}
func readyKey(queue string) string { return keyPrefix + "ready:" + queue }

// delayedKey returns the Sorted Set of pending job IDs that are not yet
// visible, scored by visibility time in milliseconds: jobq:delayed:{queue}
func delayedKey(queue string) string { return keyPrefix + "delayed:" + queue }

// leasesKey is the Sorted Set of claimed job IDs scored by lease expiry.
const leasesKey = keyPrefix + "leases"

// jobIDsKey is the Sorted Set of all job IDs scored by creation time, used
// for listing.
const jobIDsKey = keyPrefix + "job_ids"

// ── DLQ keys ──

// dlqKey returns the key for a DLQ entry hash: jobq:dlq:{id}
func dlqKey(id string) string { return keyPrefix + "dlq:" + id }

// dlqIDsKey is the Sorted Set of all DLQ entry IDs scored by failure time.
const dlqIDsKey = keyPrefix + "dlq_ids"

// dlqQueueKey returns the Sorted Set of DLQ entry IDs for one queue.
func dlqQueueKey(queue string) string { return keyPrefix + "dlq_queue:" + queue }
