// Package service coordinates discovery, the protocol adapters and
// verification.
//
// # Orchestrator
//
// Orchestrator.ForceCompletion runs five strictly sequential phases:
// optional host injection, the primary attempt on the selected handle, the
// kitchen-sink fallback across every discovered handle in priority order,
// verification of the handle that succeeded, and aggregation into a
// domain.ForceCompletionReport. No two attempts ever run against the same
// handle at once.
//
// # Dispatcher
//
// Dispatcher maps the host command bus (discoverApis, testApi,
// setCompletion, forceCompletion, getCmiData) onto the orchestrator.
//
// # Event System
//
// The orchestrator publishes progress events via EventBus; the hub streams
// them to connected clients over Server-Sent Events.
package service
