package domain

import "testing"

func TestCoerceScorm12(t *testing.T) {
	tests := []struct {
		input Status
		want  Status
	}{
		{"passed", StatusPassed},
		{"PASSED ", StatusPassed},
		{"failed", StatusFailed},
		{"incomplete", StatusIncomplete},
		{"browsed", StatusBrowsed},
		{"not attempted", StatusNotAttempted},
		{"bogus", StatusCompleted},
		{"", StatusCompleted},
	}

	for _, tt := range tests {
		if got := CoerceScorm12(tt.input); got != tt.want {
			t.Errorf("CoerceScorm12(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestScorm2004Status(t *testing.T) {
	tests := []struct {
		input      Status
		completion string
		success    string
	}{
		{StatusPassed, "completed", "passed"},
		{StatusFailed, "completed", "failed"},
		{StatusCompleted, "completed", ""},
		{StatusIncomplete, "incomplete", ""},
		{"bogus", "completed", ""},
	}

	for _, tt := range tests {
		completion, success := Scorm2004Status(tt.input)
		if completion != tt.completion || success != tt.success {
			t.Errorf("Scorm2004Status(%q) = (%q, %q), want (%q, %q)",
				tt.input, completion, success, tt.completion, tt.success)
		}
	}
}

func TestAICCStatusCode(t *testing.T) {
	tests := map[Status]string{
		StatusPassed:       "p",
		StatusFailed:       "f",
		StatusCompleted:    "c",
		StatusIncomplete:   "i",
		StatusNotAttempted: "n",
		StatusBrowsed:      "b",
		"whatever":         "c",
	}
	for in, want := range tests {
		if got := AICCStatusCode(in); got != want {
			t.Errorf("AICCStatusCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSatisfies(t *testing.T) {
	tests := []struct {
		requested Status
		observed  string
		want      bool
	}{
		{StatusCompleted, "completed", true},
		{StatusCompleted, "passed", true},
		{StatusCompleted, "p", true},
		{StatusCompleted, "failed", false},
		{StatusPassed, "completed", false},
		{StatusPassed, "passed", true},
		{StatusFailed, "f", true},
		{StatusIncomplete, "incomplete", true},
		{StatusIncomplete, "", false},
	}

	for _, tt := range tests {
		if got := Satisfies(tt.requested, NormalizeObserved(tt.observed)); got != tt.want {
			t.Errorf("Satisfies(%q, %q) = %v, want %v", tt.requested, tt.observed, got, tt.want)
		}
	}
}

func TestPassSignal(t *testing.T) {
	if PassSignal(StatusPassed) != 1 || PassSignal(StatusCompleted) != 1 {
		t.Error("passed and completed should signal 1")
	}
	if PassSignal(StatusFailed) != 0 || PassSignal(StatusIncomplete) != 0 {
		t.Error("failed and incomplete should signal 0")
	}
}
