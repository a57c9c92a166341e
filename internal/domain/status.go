package domain

import "strings"

// Status is the requested completion status.
type Status string

const (
	StatusPassed     Status = "passed"
	StatusFailed     Status = "failed"
	StatusCompleted  Status = "completed"
	StatusIncomplete Status = "incomplete"
)

// Additional SCORM 1.2 lesson_status values the runtime may report.
const (
	StatusBrowsed      Status = "browsed"
	StatusNotAttempted Status = "not attempted"
)

// scorm12Vocabulary is the fixed cmi.core.lesson_status vocabulary.
var scorm12Vocabulary = map[Status]bool{
	StatusPassed:       true,
	StatusCompleted:    true,
	StatusFailed:       true,
	StatusIncomplete:   true,
	StatusBrowsed:      true,
	StatusNotAttempted: true,
}

// ParseStatus normalizes case and whitespace without validating.
func ParseStatus(s string) Status {
	return Status(strings.ToLower(strings.TrimSpace(s)))
}

// CoerceScorm12 returns the lesson_status to write for s. Anything outside
// the SCORM 1.2 vocabulary becomes "completed".
func CoerceScorm12(s Status) Status {
	s = ParseStatus(string(s))
	if scorm12Vocabulary[s] {
		return s
	}
	return StatusCompleted
}

// Scorm2004Status splits s into the independent completion_status and
// success_status axes. success is empty when the axis must not be written.
func Scorm2004Status(s Status) (completion, success string) {
	switch CoerceScorm12(s) {
	case StatusPassed:
		return "completed", "passed"
	case StatusFailed:
		return "completed", "failed"
	case StatusIncomplete:
		return "incomplete", ""
	case StatusBrowsed, StatusNotAttempted:
		return "incomplete", ""
	default:
		return "completed", ""
	}
}

// AICCStatusCode maps s to the single-letter HACP lesson_status code.
func AICCStatusCode(s Status) string {
	switch CoerceScorm12(s) {
	case StatusPassed:
		return "p"
	case StatusFailed:
		return "f"
	case StatusIncomplete:
		return "i"
	case StatusNotAttempted:
		return "n"
	case StatusBrowsed:
		return "b"
	default:
		return "c"
	}
}

// NormalizeObserved maps a status read back from any protocol (full word,
// SCORM 2004 axis value or AICC letter code) onto Status.
func NormalizeObserved(s string) Status {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "p", "passed":
		return StatusPassed
	case "f", "failed":
		return StatusFailed
	case "c", "completed", "complete":
		return StatusCompleted
	case "i", "incomplete":
		return StatusIncomplete
	case "b", "browsed":
		return StatusBrowsed
	case "n", "not attempted", "not_attempted":
		return StatusNotAttempted
	}
	return Status(s)
}

// Satisfies reports whether an observed status belongs to the class of the
// requested one. A completed request is satisfied by passed or completed.
func Satisfies(requested, observed Status) bool {
	requested = CoerceScorm12(requested)
	switch requested {
	case StatusCompleted:
		return observed == StatusCompleted || observed == StatusPassed
	default:
		return observed == requested
	}
}

// PassSignal is the integer handed to custom completion functions.
func PassSignal(s Status) int {
	switch CoerceScorm12(s) {
	case StatusPassed, StatusCompleted:
		return 1
	}
	return 0
}
