// Package adapter implements the completion protocols.
//
// Each Adapter drives one protocol family against a discovered
// domain.ApiHandle: it writes the requested completion, reads it back for
// verification and can run a side-effect-light round trip to confirm the
// handle works.
//
// # Protocols
//
// SCORM 1.2 and SCORM 2004 talk to the run-time API object found in the
// window graph. Writes are checked one by one; a rejected write is logged
// with the host's last error but never stops the remaining writes.
//
// AICC speaks HACP over plain HTTP to the endpoint taken from the launch
// URL. Only an explicit error=0 in the response body counts as success.
//
// xAPI builds one statement and either POSTs it to the LRS or hands it to
// the page's xAPI library. Library sends resolve exactly once whatever mix
// of callback, return value and timeout the library produces. A statement
// is never sent without an identified actor.
//
// Custom calls a bare completion function with 1 or 0.
//
// # Registry
//
// Registry holds the enabled adapters in priority order. The orchestrator
// uses it for the primary attempt and the fallback cascade, and HandleLocks
// to keep a single writer per handle.
package adapter
