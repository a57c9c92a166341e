package adapter

import (
	"time"

	"lmsbridge/internal/domain"
)

// interactionID names the interaction record written alongside completion.
const interactionID = "lmsbridge_completion"

var scorm12 = dialect{
	kind:               domain.APIScorm12,
	name:               "SCORM 1.2",
	initialize:         "LMSInitialize",
	finish:             "LMSFinish",
	getValue:           "LMSGetValue",
	setValue:           "LMSSetValue",
	commit:             "LMSCommit",
	lastError:          "LMSGetLastError",
	errorString:        "LMSGetErrorString",
	alreadyInitialized: "101",
	cmiElements: []string{
		"cmi.core.student_id",
		"cmi.core.student_name",
		"cmi.core.lesson_status",
		"cmi.core.score.raw",
		"cmi.core.lesson_location",
		"cmi.core.entry",
		"cmi.core.credit",
		"cmi.suspend_data",
	},
	writes:  scorm12Writes,
	observe: scorm12Observe,
}

// NewScorm12 returns the SCORM 1.2 adapter.
func NewScorm12(opts Options) *SCORM {
	return &SCORM{d: scorm12, opts: opts.withDefaults()}
}

func scorm12Writes(req domain.CompletionRequest, dur time.Duration, now time.Time) [][2]string {
	writes := [][2]string{
		{"cmi.core.lesson_status", string(domain.CoerceScorm12(req.Status))},
		{"cmi.core.score.raw", domain.FormatScore(req.RawScore())},
		{"cmi.core.score.min", domain.FormatScore(req.MinScore)},
		{"cmi.core.score.max", domain.FormatScore(req.MaxScore)},
		{"cmi.core.session_time", domain.Scorm12Time(dur)},
	}
	if req.IncludeInteractionRecord {
		result := "wrong"
		if domain.PassSignal(req.Status) == 1 {
			result = "correct"
		}
		writes = append(writes,
			[2]string{"cmi.interactions.0.id", interactionID},
			[2]string{"cmi.interactions.0.type", "performance"},
			[2]string{"cmi.interactions.0.student_response", string(domain.CoerceScorm12(req.Status))},
			[2]string{"cmi.interactions.0.result", result},
			[2]string{"cmi.interactions.0.time", now.Format("15:04:05")},
		)
	}
	return writes
}

func scorm12Observe(s *session) (domain.Status, string, error) {
	raw, err := s.get("cmi.core.lesson_status")
	if err != nil {
		return "", "", err
	}
	score, _ := s.get("cmi.core.score.raw")
	return domain.NormalizeObserved(raw), score, nil
}
