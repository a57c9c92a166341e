package memory

import (
	"strings"
	"sync"
)

// RuntimeVersion selects the simulated SCORM method table.
type RuntimeVersion string

const (
	Scorm12   RuntimeVersion = "1.2"
	Scorm2004 RuntimeVersion = "2004"
)

var scorm12Methods = [...]string{"LMSInitialize", "LMSFinish", "LMSGetValue", "LMSSetValue", "LMSCommit", "LMSGetLastError", "LMSGetErrorString", "LMSGetDiagnostic"}
var scorm2004Methods = [...]string{"Initialize", "Terminate", "GetValue", "SetValue", "Commit", "GetLastError", "GetErrorString", "GetDiagnostic"}

var validValues = map[string]map[string]bool{
	"cmi.core.lesson_status": {"passed": true, "completed": true, "failed": true, "incomplete": true, "browsed": true, "not attempted": true},
	"cmi.completion_status":  {"completed": true, "incomplete": true, "not attempted": true, "unknown": true},
	"cmi.success_status":     {"passed": true, "failed": true, "unknown": true},
}

// CMIRuntime simulates a SCORM run-time API with a CMI data model store.
type CMIRuntime struct {
	mu          sync.Mutex
	version     RuntimeVersion
	data        map[string]string
	initialized bool
	terminated  bool
	lastError   string
	commits     int
	rejects     map[string]bool
	broken      bool
}

// NewRuntime returns a runtime seeded with learner fields.
func NewRuntime(version RuntimeVersion) *CMIRuntime {
	r := &CMIRuntime{version: version, data: map[string]string{}, lastError: "0", rejects: map[string]bool{}}
	if version == Scorm12 {
		r.data["cmi.core.student_id"] = "learner-1"
		r.data["cmi.core.student_name"] = "Doe, Jane"
		r.data["cmi.core.lesson_status"] = "not attempted"
		r.data["cmi.core.credit"] = "credit"
		r.data["cmi.core.entry"] = "ab-initio"
	} else {
		r.data["cmi.learner_id"] = "learner-1"
		r.data["cmi.learner_name"] = "Doe, Jane"
		r.data["cmi.completion_status"] = "unknown"
		r.data["cmi.success_status"] = "unknown"
		r.data["cmi.credit"] = "credit"
		r.data["cmi.entry"] = "ab-initio"
	}
	return r
}

// Reject makes SetValue on element return "false".
func (r *CMIRuntime) Reject(element string) *CMIRuntime {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejects[element] = true
	return r
}

// Break makes every call return "false" with a general error.
func (r *CMIRuntime) Break() *CMIRuntime {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broken = true
	return r
}

// Value returns the stored value of element.
func (r *CMIRuntime) Value(element string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data[element]
}

// Commits returns how many successful commits were made.
func (r *CMIRuntime) Commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commits
}

// Terminated reports whether the session was finished.
func (r *CMIRuntime) Terminated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminated
}

// Object exposes the runtime with the method names of its version.
func (r *CMIRuntime) Object() *Object {
	names := scorm2004Methods
	if r.version == Scorm12 {
		names = scorm12Methods
	}
	return NewObject().
		Method(names[0], r.initialize).
		Method(names[1], r.terminate).
		Method(names[2], r.getValue).
		Method(names[3], r.setValue).
		Method(names[4], r.commit).
		Method(names[5], r.getLastError).
		Method(names[6], r.getErrorString).
		Method(names[7], r.getErrorString)
}

func (r *CMIRuntime) code(v12, v2004 string) string {
	if r.version == Scorm12 {
		return v12
	}
	return v2004
}

func (r *CMIRuntime) fail(code string) (any, error) {
	r.lastError = code
	return "false", nil
}

func (r *CMIRuntime) initialize(args ...any) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken {
		return r.fail("101")
	}
	if r.initialized {
		return r.fail(r.code("101", "103"))
	}
	r.initialized = true
	r.lastError = "0"
	return "true", nil
}

func (r *CMIRuntime) terminate(args ...any) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken || !r.initialized || r.terminated {
		return r.fail(r.code("301", "112"))
	}
	r.terminated = true
	r.lastError = "0"
	return "true", nil
}

func (r *CMIRuntime) getValue(args ...any) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken {
		r.lastError = "101"
		return "", nil
	}
	if !r.initialized {
		r.lastError = r.code("301", "122")
		return "", nil
	}
	if r.terminated {
		r.lastError = r.code("301", "123")
		return "", nil
	}
	r.lastError = "0"
	return r.data[argString(args, 0)], nil
}

func (r *CMIRuntime) setValue(args ...any) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken {
		return r.fail("101")
	}
	if !r.initialized || r.terminated {
		return r.fail(r.code("301", "132"))
	}
	element, value := argString(args, 0), argString(args, 1)
	if r.rejects[element] {
		return r.fail(r.code("403", "404"))
	}
	if allowed, ok := validValues[element]; ok && !allowed[value] {
		return r.fail(r.code("405", "406"))
	}
	r.data[element] = value
	r.lastError = "0"
	return "true", nil
}

func (r *CMIRuntime) commit(args ...any) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken || !r.initialized {
		return r.fail(r.code("301", "142"))
	}
	if r.terminated {
		return r.fail(r.code("301", "143"))
	}
	r.commits++
	r.lastError = "0"
	return "true", nil
}

func (r *CMIRuntime) getLastError(args ...any) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastError, nil
}

func (r *CMIRuntime) getErrorString(args ...any) (any, error) {
	switch argString(args, 0) {
	case "0":
		return "No error", nil
	case "101":
		return "General exception", nil
	case "103":
		return "Already initialized", nil
	case "301", "122", "132", "142":
		return "Not initialized", nil
	case "123":
		return "Retrieve Data After Termination", nil
	case "143":
		return "Commit After Termination", nil
	case "403", "404":
		return "Element is read only", nil
	case "405", "406":
		return "Incorrect data type", nil
	}
	return "Unknown error", nil
}

func argString(args []any, i int) string {
	if i >= len(args) {
		return ""
	}
	if s, ok := args[i].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
