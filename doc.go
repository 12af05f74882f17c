// Package jobq provides a durable, asynchronous job queue engine for Go.
// Callers enqueue typed work items under a named queue and a worker pool
// claims and executes them with at-least-once delivery, lease-based crash
// recovery, retry with backoff, and a dead-letter queue.
//
// jobq is a library first. Configure a store, bind a handler for every
// recognized queue name, and start the worker from your own process.
//
// # Quick Start
//
//	b, err := jobq.New(
//	    jobq.WithStore(pgStore),
//	    jobq.WithConcurrency(8),
//	)
//
//	reg, err := job.NewRegistry(
//	    job.Bind(func(ctx context.Context, p job.MCQImport) error {
//	        return importer.Import(ctx, p.FileID)
//	    }),
//	)
//
//	eng, err := engine.Build(b, reg)
//	_, err = engine.AddJob(ctx, eng, job.MCQImport{FileID: "f1"})
//	err = eng.StartWorker(ctx) // blocks until ctx is cancelled
//
// # Architecture
//
// Each subsystem (job, dlq) defines its own store interface. A single
// backend under store/ implements all of them. The root package holds
// configuration, the error taxonomy, and the Broker that owns the store
// and worker lifecycle; the engine package wires everything together.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package jobq
