package domain

import (
	"lmsbridge/internal/host"
)

// ApiKind identifies a completion protocol family.
type ApiKind string

const (
	APIScorm12   ApiKind = "scorm12"
	APIScorm2004 ApiKind = "scorm2004"
	APIAICC      ApiKind = "aicc"
	APIXAPI      ApiKind = "xapi"
	APICustom    ApiKind = "custom"
)

// KindPriority is the order in which fallback attempts adapters.
var KindPriority = []ApiKind{APIScorm12, APIScorm2004, APIAICC, APIXAPI, APICustom}

// Valid reports whether k is a known protocol family.
func (k ApiKind) Valid() bool {
	for _, known := range KindPriority {
		if k == known {
			return true
		}
	}
	return false
}

// Functional is the tri-state result of a round-trip test.
type Functional string

const (
	FunctionalUnknown   Functional = "unknown"
	FunctionalConfirmed Functional = "confirmed"
	FunctionalFailed    Functional = "failed"
)

// AICCSession holds the HACP parameters taken from the launch URL.
type AICCSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// LRSConfig describes an xAPI endpoint, either from cmi5 launch parameters
// or from a library's configuration.
type LRSConfig struct {
	Endpoint     string `json:"endpoint"`
	Auth         string `json:"-"`
	FetchURL     string `json:"fetch_url,omitempty"`
	Actor        string `json:"actor,omitempty"` // raw JSON
	Registration string `json:"registration,omitempty"`
	ActivityID   string `json:"activity_id,omitempty"`
}

// CapabilityRef is the environment-specific reference to a handle's
// callable surface. Exactly one of Path, AICC or LRS is meaningful for a
// given kind; xAPI handles may carry both a library Path and an LRS.
type CapabilityRef struct {
	Env  host.Environment `json:"-"`
	Path []string         `json:"path,omitempty"`
	AICC *AICCSession     `json:"aicc,omitempty"`
	LRS  *LRSConfig       `json:"lrs,omitempty"`
}

// ApiHandle is a located completion-capable endpoint.
type ApiHandle struct {
	Kind       ApiKind       `json:"kind"`
	Location   string        `json:"location"`
	Ref        CapabilityRef `json:"ref"`
	Methods    []string      `json:"methods,omitempty"`
	Functional Functional    `json:"functional"`
}

// InaccessibleEnvironment records an environment that exists but could not
// be read, so reports can explain why no handle was usable there.
type InaccessibleEnvironment struct {
	Location string `json:"location"`
	Reason   string `json:"reason"`
}

// FilterKind returns the handles of kind k, preserving order.
func FilterKind(handles []ApiHandle, k ApiKind) []ApiHandle {
	var out []ApiHandle
	for _, h := range handles {
		if h.Kind == k {
			out = append(out, h)
		}
	}
	return out
}
