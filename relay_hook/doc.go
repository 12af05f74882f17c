// Package relayhook forwards jobq lifecycle events to Relay for webhook
// delivery. Registered as an extension, it sends one typed event
// (jobq.job.completed, jobq.job.dead_lettered and so on) per hook.
//
// Usage:
//
//	r, _ := relay.New(relay.WithStore(store))
//	relayhook.RegisterAll(ctx, r)
//
//	engine.Build(b, reg, engine.WithExtension(relayhook.New(r)))
//
// To restrict which events are sent:
//
//	relayhook.New(r,
//	    relayhook.WithEvents(
//	        relayhook.EventJobDeadLettered,
//	        relayhook.EventJobFailed,
//	    ),
//	)
package relayhook
