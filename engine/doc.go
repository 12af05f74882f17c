// Package engine wires the jobq subsystems together and provides the
// application-level API for enqueuing and processing jobs.
//
// It sits above the subsystem packages because the root jobq package
// defines Entity, which they import.
//
// # Building an Engine
//
//	b, err := jobq.New(
//	    jobq.WithStore(pgStore),
//	    jobq.WithConcurrency(20),
//	)
//
//	reg := job.MustRegistry(
//	    job.Bind(func(ctx context.Context, p job.MCQImport) error { ... }),
//	)
//
//	eng, err := engine.Build(b, reg,
//	    engine.WithExtension(myExtension),
//	    engine.WithBackoff(backoff.NewExponential(time.Second, 10*time.Minute)),
//	    engine.WithQueueConfig(queue.Config{Name: job.QueueMCQImport, MaxConcurrency: 4}),
//	)
//
// Build fails with jobq.ErrMissingHandlers if a configured queue has no
// handler, unless [WithLenientRegistry] is given.
//
// # Enqueuing Jobs
//
//	engine.AddJob(ctx, eng, job.MCQImport{FileID: "f_123"})
//	engine.AddJob(ctx, eng, job.MCQImport{FileID: "f_123"}, job.WithDelay(time.Minute))
//	eng.AddRaw(ctx, "mcq_import", []byte(`{"fileId":"f_123"}`))
//
// # Processing
//
// [Engine.StartWorker] blocks until its context is cancelled, then drains
// in-flight jobs for at most the configured shutdown timeout.
//
// # Default Middleware
//
// Every attempt runs through recover, tracing, metrics, logging and
// timeout middleware, followed by any [WithMiddleware] additions.
package engine
