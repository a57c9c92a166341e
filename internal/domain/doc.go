// Package domain defines the core types of the LMS completion adapter.
//
// # Handles
//
// ApiHandle is a completion-capable endpoint located by discovery: a SCORM
// 1.2 or SCORM 2004 runtime object, an AICC/HACP session, an xAPI library or
// LRS endpoint, or a bare custom completion function. Handles live for one
// completion attempt and are never persisted.
//
// # Completion
//
// CompletionRequest is the normalized input to every adapter. Adapters answer
// with a CompletionResult carrying an append-only audit trail of
// CompletionOperation values. The orchestrator aggregates results, fallback
// attempts and the VerificationOutcome into a ForceCompletionReport.
//
// # Vocabularies
//
// Status coercion (SCORM 1.2 lesson_status, SCORM 2004 completion and success
// axes, single letter AICC codes), the scaled score clamp and the session
// time formats of each protocol are defined here so every adapter agrees.
//
// # Errors
//
// Error carries one of the ErrorKind values (AccessDenied, Timeout,
// ProtocolError, NoActor, NotFound, VerificationMismatch) and matches the
// sentinel errors with errors.Is.
package domain
