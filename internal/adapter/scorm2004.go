package adapter

import (
	"time"

	"lmsbridge/internal/domain"
)

var scorm2004 = dialect{
	kind:               domain.APIScorm2004,
	name:               "SCORM 2004",
	initialize:         "Initialize",
	finish:             "Terminate",
	getValue:           "GetValue",
	setValue:           "SetValue",
	commit:             "Commit",
	lastError:          "GetLastError",
	errorString:        "GetErrorString",
	alreadyInitialized: "103",
	cmiElements: []string{
		"cmi.learner_id",
		"cmi.learner_name",
		"cmi.completion_status",
		"cmi.success_status",
		"cmi.score.scaled",
		"cmi.score.raw",
		"cmi.location",
		"cmi.entry",
		"cmi.credit",
		"cmi.suspend_data",
	},
	writes:  scorm2004Writes,
	observe: scorm2004Observe,
}

// NewScorm2004 returns the SCORM 2004 adapter.
func NewScorm2004(opts Options) *SCORM {
	return &SCORM{d: scorm2004, opts: opts.withDefaults()}
}

// scorm2004Writes keeps completion and success independent: success_status
// is only written for passed and failed.
func scorm2004Writes(req domain.CompletionRequest, dur time.Duration, now time.Time) [][2]string {
	completion, success := domain.Scorm2004Status(req.Status)

	writes := [][2]string{{"cmi.completion_status", completion}}
	if success != "" {
		writes = append(writes, [2]string{"cmi.success_status", success})
	}
	writes = append(writes,
		[2]string{"cmi.score.scaled", domain.FormatScore(req.Scaled())},
		[2]string{"cmi.score.raw", domain.FormatScore(req.RawScore())},
		[2]string{"cmi.score.min", domain.FormatScore(req.MinScore)},
		[2]string{"cmi.score.max", domain.FormatScore(req.MaxScore)},
		[2]string{"cmi.exit", "normal"},
		[2]string{"cmi.session_time", domain.ISO8601Duration(dur)},
	)
	if req.IncludeInteractionRecord {
		result := "incorrect"
		if domain.PassSignal(req.Status) == 1 {
			result = "correct"
		}
		writes = append(writes,
			[2]string{"cmi.interactions.0.id", interactionID},
			[2]string{"cmi.interactions.0.type", "other"},
			[2]string{"cmi.interactions.0.learner_response", completion},
			[2]string{"cmi.interactions.0.result", result},
			[2]string{"cmi.interactions.0.timestamp", now.UTC().Format("2006-01-02T15:04:05Z")},
		)
	}
	return writes
}

// scorm2004Observe prefers a decided success_status over completion.
func scorm2004Observe(s *session) (domain.Status, string, error) {
	completion, err := s.get("cmi.completion_status")
	if err != nil {
		return "", "", err
	}
	success, _ := s.get("cmi.success_status")
	score, _ := s.get("cmi.score.scaled")

	switch observed := domain.NormalizeObserved(success); observed {
	case domain.StatusPassed, domain.StatusFailed:
		return observed, score, nil
	}
	return domain.NormalizeObserved(completion), score, nil
}
