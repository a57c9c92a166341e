package codec

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"lmsbridge/internal/domain"
)

// XAPIVersion is sent as X-Experience-API-Version.
const XAPIVersion = "1.0.3"

// Account is an actor account identifier.
type Account struct {
	HomePage string `json:"homePage"`
	Name     string `json:"name"`
}

// Actor is an xAPI Agent.
type Actor struct {
	ObjectType  string   `json:"objectType,omitempty"`
	Name        string   `json:"name,omitempty"`
	Mbox        string   `json:"mbox,omitempty"`
	MboxSHA1Sum string   `json:"mbox_sha1sum,omitempty"`
	OpenID      string   `json:"openid,omitempty"`
	Account     *Account `json:"account,omitempty"`
}

// Identified reports whether the actor carries an inverse-functional
// identifier.
func (a *Actor) Identified() bool {
	if a == nil {
		return false
	}
	if a.Account != nil && a.Account.HomePage != "" && a.Account.Name != "" {
		return true
	}
	return a.Mbox != "" || a.MboxSHA1Sum != "" || a.OpenID != ""
}

// ParseActor decodes an actor from JSON. The legacy TinCan form, where
// fields are single-element arrays, is accepted too.
func ParseActor(raw string) (*Actor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty actor")
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("parse actor: %w", err)
	}

	a := &Actor{
		Name:        first(fields["name"]),
		Mbox:        first(fields["mbox"]),
		MboxSHA1Sum: first(fields["mbox_sha1sum"]),
		OpenID:      first(fields["openid"]),
	}
	acct := fields["account"]
	if list, ok := acct.([]any); ok && len(list) > 0 {
		acct = list[0]
	}
	if m, ok := acct.(map[string]any); ok {
		home := first(m["homePage"])
		if home == "" {
			home = first(m["accountServiceHomePage"])
		}
		name := first(m["name"])
		if name == "" {
			name = first(m["accountName"])
		}
		if home != "" || name != "" {
			a.Account = &Account{HomePage: home, Name: name}
		}
	}
	a.Normalize()
	return a, nil
}

// Normalize fills objectType and the mailto: scheme.
func (a *Actor) Normalize() {
	a.ObjectType = "Agent"
	if a.Mbox != "" && !strings.HasPrefix(a.Mbox, "mailto:") {
		a.Mbox = "mailto:" + a.Mbox
	}
}

func first(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			return first(t[0])
		}
	}
	return ""
}

// Verb is an xAPI verb.
type Verb struct {
	ID      string            `json:"id"`
	Display map[string]string `json:"display"`
}

// VerbFor maps a request status onto an ADL verb.
func VerbFor(s domain.Status) Verb {
	word := "completed"
	switch domain.CoerceScorm12(s) {
	case domain.StatusPassed:
		word = "passed"
	case domain.StatusFailed:
		word = "failed"
	case domain.StatusIncomplete, domain.StatusBrowsed, domain.StatusNotAttempted:
		word = "attempted"
	}
	return Verb{ID: "http://adlnet.gov/expapi/verbs/" + word, Display: map[string]string{"en-US": word}}
}

// ActivityDefinition names an activity.
type ActivityDefinition struct {
	Name map[string]string `json:"name,omitempty"`
	Type string            `json:"type,omitempty"`
}

// Activity is the statement object.
type Activity struct {
	ObjectType string              `json:"objectType"`
	ID         string              `json:"id"`
	Definition *ActivityDefinition `json:"definition,omitempty"`
}

// Score is the result score.
type Score struct {
	Scaled float64 `json:"scaled"`
	Raw    float64 `json:"raw"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Result is the statement result.
type Result struct {
	Completion bool   `json:"completion"`
	Success    *bool  `json:"success,omitempty"`
	Score      *Score `json:"score,omitempty"`
	Duration   string `json:"duration,omitempty"`
}

// StatementContext carries the cmi5 registration.
type StatementContext struct {
	Registration string `json:"registration,omitempty"`
}

// Statement is one Experience API statement.
type Statement struct {
	ID        string            `json:"id"`
	Actor     Actor             `json:"actor"`
	Verb      Verb              `json:"verb"`
	Object    Activity          `json:"object"`
	Result    Result            `json:"result"`
	Context   *StatementContext `json:"context,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// StatementInput is everything BuildStatement needs.
type StatementInput struct {
	ID           string
	Actor        Actor
	ActivityID   string
	ActivityName string
	Registration string
	Request      domain.CompletionRequest
	Duration     time.Duration
	Timestamp    time.Time
}

// BuildStatement assembles the completion statement. Scores are clamped
// like SCORM 2004 and left out when the range is inverted.
func BuildStatement(in StatementInput) Statement {
	req := in.Request
	status := domain.CoerceScorm12(req.Status)

	result := Result{
		Completion: status == domain.StatusPassed || status == domain.StatusFailed || status == domain.StatusCompleted,
		Score: &Score{
			Scaled: req.Scaled(),
			Raw:    req.RawScore(),
			Min:    req.MinScore,
			Max:    req.MaxScore,
		},
		Duration: domain.ISO8601Duration(in.Duration),
	}
	switch status {
	case domain.StatusPassed:
		result.Success = boolPtr(true)
	case domain.StatusFailed:
		result.Success = boolPtr(false)
	}
	// An inverted range cannot satisfy min <= raw <= max; send no score.
	if req.MinScore > req.MaxScore {
		result.Score = nil
	}

	st := Statement{
		ID:        in.ID,
		Actor:     in.Actor,
		Verb:      VerbFor(status),
		Object:    Activity{ObjectType: "Activity", ID: in.ActivityID},
		Result:    result,
		Timestamp: in.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if in.ActivityName != "" {
		st.Object.Definition = &ActivityDefinition{
			Name: map[string]string{"en-US": in.ActivityName},
			Type: "http://adlnet.gov/expapi/activities/course",
		}
	}
	if in.Registration != "" {
		st.Context = &StatementContext{Registration: in.Registration}
	}
	return st
}

// Map converts the statement into plain JSON values so host bindings can
// marshal it without knowing the Go types.
func (s Statement) Map() (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func boolPtr(b bool) *bool {
	return &b
}
