// Package job defines the job record, its state machine, the typed
// payload variants, the handler registry, and the store contract.
//
// # Job Record
//
// A [Job] embeds [jobq.Entity] for timestamps and moves through:
//
//	pending  → claimed                      (claim, lease taken)
//	claimed  → completed                    (handler succeeded)
//	claimed  → pending                      (failure, attempts < max; backoff delay)
//	claimed  → dead_lettered                (attempts exhausted or permanent failure)
//	claimed  → failed                       (as above, on a queue with dead-lettering off)
//	claimed  → pending                      (lease expired; attempts unchanged)
//
// # Variants
//
// Every recognized [QueueName] has one payload type implementing
// [Variant]. The engine enqueues variants, never loose maps:
//
//	engine.AddJob(ctx, eng, job.MCQImport{FileID: "f1"})
//
// # Registry
//
// [NewRegistry] is built once from [Bind] results and checked with
// [Registry.Validate] before workers start, so a missing handler fails
// the process at boot instead of dead-lettering jobs at runtime:
//
//	reg, err := job.NewRegistry(
//	    job.Bind(func(ctx context.Context, p job.MCQImport) error { ... }),
//	)
package job
