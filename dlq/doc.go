// Package dlq provides the dead-letter queue for jobs that exhausted
// their attempts or failed permanently. Entries are retained until an
// operator replays or purges them; the engine never discards them.
//
// When a job dead-letters, the executor calls [Service.Push] with the
// final error. The payload and attempt counts are preserved.
//
// # Replay
//
// [Service.Replay] enqueues a fresh pending job (new ID, zero attempts)
// with the original queue and payload, then records the new job ID on
// the entry. An entry can be replayed once.
//
//	svc := dlq.NewService(store, store)
//	j, err := svc.Replay(ctx, entryID)
package dlq
