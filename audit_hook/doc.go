// Package audithook is a jobq extension that turns job lifecycle hooks
// into audit events.
//
// Every hook emits a structured [AuditEvent] through the [Recorder]
// interface. Severity is info for normal transitions, warning for retries
// and lease recoveries, and critical for terminal failures.
//
// # Logging recorder
//
//	engine.Build(b, reg,
//	    engine.WithExtension(audithook.New(audithook.LogRecorder(logger))),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionJobDeadLettered,
//	    ),
//	)
package audithook
