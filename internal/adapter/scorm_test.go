package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lmsbridge/internal/domain"
	"lmsbridge/internal/host/memory"
)

var fixedNow = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

func testOptions() Options {
	return Options{Timeout: 200 * time.Millisecond, Now: func() time.Time { return fixedNow }}
}

// scormFixture mounts rt under name on a fresh window.
func scormFixture(t *testing.T, kind domain.ApiKind, rt *memory.CMIRuntime, name string) (*memory.Window, *domain.ApiHandle) {
	t.Helper()
	w := memory.NewWindow("top", "https://lms.example/player")
	w.Set(name, rt.Object())
	return w, &domain.ApiHandle{
		Kind:     kind,
		Location: "window." + name,
		Ref:      domain.CapabilityRef{Env: w, Path: []string{name}},
	}
}

func TestScorm12CoercesInvalidStatus(t *testing.T) {
	rt := memory.NewRuntime(memory.Scorm12)
	w, h := scormFixture(t, domain.APIScorm12, rt, "API")

	req := domain.DefaultRequest()
	req.Status = "bogus"
	res := NewScorm12(testOptions()).Complete(context.Background(), h, req)

	require.True(t, res.Success, res.Errors)
	assert.Equal(t, "completed", rt.Value("cmi.core.lesson_status"))
	for _, c := range w.Calls() {
		for _, arg := range c.Args {
			assert.NotEqual(t, "bogus", arg)
		}
	}
}

func TestScorm12Complete(t *testing.T) {
	rt := memory.NewRuntime(memory.Scorm12)
	_, h := scormFixture(t, domain.APIScorm12, rt, "API")

	req := domain.DefaultRequest()
	req.Status = domain.StatusPassed
	req.Score = 150
	req.SessionTime = 90*time.Minute + 5*time.Second
	req.IncludeInteractionRecord = true
	res := NewScorm12(testOptions()).Complete(context.Background(), h, req)

	require.True(t, res.Success, res.Errors)
	assert.Equal(t, domain.APIScorm12, res.Kind)
	assert.Equal(t, "passed", rt.Value("cmi.core.lesson_status"))
	assert.Equal(t, "100", rt.Value("cmi.core.score.raw"))
	assert.Equal(t, "0", rt.Value("cmi.core.score.min"))
	assert.Equal(t, "100", rt.Value("cmi.core.score.max"))
	assert.Equal(t, "0001:30:05.00", rt.Value("cmi.core.session_time"))
	assert.Equal(t, interactionID, rt.Value("cmi.interactions.0.id"))
	assert.Equal(t, "correct", rt.Value("cmi.interactions.0.result"))
	assert.Equal(t, 1, rt.Commits())
	assert.False(t, rt.Terminated())

	assert.Equal(t, "LMSInitialize", res.Operations[0].Method)
	assert.Equal(t, "LMSCommit", res.Operations[len(res.Operations)-1].Method)
}

func TestScormTerminatesOnlyWhenAsked(t *testing.T) {
	rt := memory.NewRuntime(memory.Scorm2004)
	_, h := scormFixture(t, domain.APIScorm2004, rt, "API_1484_11")

	req := domain.DefaultRequest()
	req.TerminateSession = true
	res := NewScorm2004(testOptions()).Complete(context.Background(), h, req)

	require.True(t, res.Success, res.Errors)
	assert.True(t, rt.Terminated())
	assert.Equal(t, "Terminate", res.Operations[len(res.Operations)-1].Method)

	// A terminated session no longer answers reads.
	out := NewScorm2004(testOptions()).Verify(context.Background(), h, domain.StatusCompleted)
	assert.False(t, out.Verified)
	assert.Contains(t, out.Error, "error 123")
}

func TestScormFinish(t *testing.T) {
	rt := memory.NewRuntime(memory.Scorm12)
	_, h := scormFixture(t, domain.APIScorm12, rt, "API")
	a := NewScorm12(testOptions())

	res := a.Complete(context.Background(), h, domain.DefaultRequest())
	require.True(t, res.Success, res.Errors)
	require.True(t, a.Verify(context.Background(), h, domain.StatusCompleted).Verified)

	op := a.Finish(context.Background(), h)
	assert.Equal(t, "LMSFinish", op.Method)
	assert.True(t, op.Success, op.Error)
	assert.True(t, rt.Terminated())

	again := a.Finish(context.Background(), h)
	assert.False(t, again.Success)
	assert.Contains(t, again.Error, "error 301")
}

func TestScormRejectedWriteDoesNotAbort(t *testing.T) {
	rt := memory.NewRuntime(memory.Scorm12).Reject("cmi.core.score.raw")
	_, h := scormFixture(t, domain.APIScorm12, rt, "API")

	res := NewScorm12(testOptions()).Complete(context.Background(), h, domain.DefaultRequest())

	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "cmi.core.score.raw")
	assert.Contains(t, res.Errors[0], "error 403")
	// Writes after the rejected one still happened.
	assert.Equal(t, "100", rt.Value("cmi.core.score.max"))
	assert.Equal(t, 1, rt.Commits())
}

func TestScormAlreadyInitialized(t *testing.T) {
	rt := memory.NewRuntime(memory.Scorm12)
	w, h := scormFixture(t, domain.APIScorm12, rt, "API")
	_, err := w.Invoke(context.Background(), []string{"API"}, "LMSInitialize", "")
	require.NoError(t, err)

	res := NewScorm12(testOptions()).Complete(context.Background(), h, domain.DefaultRequest())

	require.True(t, res.Success, res.Errors)
	assert.Equal(t, "already initialized", res.Operations[0].Result)
}

func TestScormBrokenRuntime(t *testing.T) {
	rt := memory.NewRuntime(memory.Scorm12).Break()
	_, h := scormFixture(t, domain.APIScorm12, rt, "API")

	a := NewScorm12(testOptions())
	res := a.Complete(context.Background(), h, domain.DefaultRequest())

	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Errors)
	assert.Equal(t, domain.FunctionalFailed, a.Test(context.Background(), h))
}

func TestScorm2004IndependentAxes(t *testing.T) {
	tests := []struct {
		status      domain.Status
		completion  string
		success     string
		wantSuccess bool
	}{
		{domain.StatusCompleted, "completed", "unknown", false},
		{domain.StatusPassed, "completed", "passed", true},
		{domain.StatusFailed, "completed", "failed", true},
		{domain.StatusIncomplete, "incomplete", "unknown", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			rt := memory.NewRuntime(memory.Scorm2004)
			w, h := scormFixture(t, domain.APIScorm2004, rt, "API_1484_11")

			req := domain.DefaultRequest()
			req.Status = tt.status
			res := NewScorm2004(testOptions()).Complete(context.Background(), h, req)

			require.True(t, res.Success, res.Errors)
			assert.Equal(t, tt.completion, rt.Value("cmi.completion_status"))
			assert.Equal(t, tt.success, rt.Value("cmi.success_status"))
			assert.Equal(t, "normal", rt.Value("cmi.exit"))

			wroteSuccess := false
			for _, c := range w.Calls() {
				if c.Method == "SetValue" && c.Args[0] == "cmi.success_status" {
					wroteSuccess = true
				}
			}
			assert.Equal(t, tt.wantSuccess, wroteSuccess)
		})
	}
}

func TestScorm2004ScaledScoreClamp(t *testing.T) {
	rt := memory.NewRuntime(memory.Scorm2004)
	_, h := scormFixture(t, domain.APIScorm2004, rt, "API_1484_11")

	req := domain.DefaultRequest()
	req.Score = 150
	res := NewScorm2004(testOptions()).Complete(context.Background(), h, req)

	require.True(t, res.Success, res.Errors)
	assert.Equal(t, "1", rt.Value("cmi.score.scaled"))
	assert.Equal(t, "100", rt.Value("cmi.score.raw"))
}

func TestScorm2004InvertedRange(t *testing.T) {
	rt := memory.NewRuntime(memory.Scorm2004)
	_, h := scormFixture(t, domain.APIScorm2004, rt, "API_1484_11")

	req := domain.DefaultRequest()
	req.MinScore, req.MaxScore = 100, 0
	res := NewScorm2004(testOptions()).Complete(context.Background(), h, req)

	require.True(t, res.Success, res.Errors)
	assert.Equal(t, "0", rt.Value("cmi.score.scaled"))
}

func TestScormVerify(t *testing.T) {
	rt := memory.NewRuntime(memory.Scorm12)
	_, h := scormFixture(t, domain.APIScorm12, rt, "API")
	a := NewScorm12(testOptions())

	req := domain.DefaultRequest()
	req.Status = domain.StatusPassed
	require.True(t, a.Complete(context.Background(), h, req).Success)

	// A completed request is satisfied by passed.
	first := a.Verify(context.Background(), h, domain.StatusCompleted)
	second := a.Verify(context.Background(), h, domain.StatusCompleted)
	assert.True(t, first.Verified)
	assert.True(t, first.Meaningful)
	assert.Equal(t, domain.StatusPassed, first.ObservedStatus)
	assert.Equal(t, "100", first.ObservedScore)
	assert.Equal(t, first, second)

	mismatch := a.Verify(context.Background(), h, domain.StatusFailed)
	assert.False(t, mismatch.Verified)
	assert.Contains(t, mismatch.Error, string(domain.KindVerificationMismatch))
}

func TestScorm2004VerifyPrefersSuccess(t *testing.T) {
	rt := memory.NewRuntime(memory.Scorm2004)
	_, h := scormFixture(t, domain.APIScorm2004, rt, "API_1484_11")
	a := NewScorm2004(testOptions())

	req := domain.DefaultRequest()
	req.Status = domain.StatusFailed
	require.True(t, a.Complete(context.Background(), h, req).Success)

	out := a.Verify(context.Background(), h, domain.StatusFailed)
	assert.True(t, out.Verified)
	assert.Equal(t, domain.StatusFailed, out.ObservedStatus)
}

func TestScormVerifyUninitialized(t *testing.T) {
	rt := memory.NewRuntime(memory.Scorm12)
	_, h := scormFixture(t, domain.APIScorm12, rt, "API")

	out := NewScorm12(testOptions()).Verify(context.Background(), h, domain.StatusCompleted)
	assert.False(t, out.Verified)
	assert.Contains(t, out.Error, "error 301")
}

func TestScormTestAndReadCMI(t *testing.T) {
	rt := memory.NewRuntime(memory.Scorm2004)
	_, h := scormFixture(t, domain.APIScorm2004, rt, "API_1484_11")
	a := NewScorm2004(testOptions())

	assert.Equal(t, domain.FunctionalConfirmed, a.Test(context.Background(), h))

	data, err := a.ReadCMI(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, "learner-1", data["cmi.learner_id"])
	assert.Equal(t, "unknown", data["cmi.completion_status"])
}

func TestScormMissingRef(t *testing.T) {
	res := NewScorm12(testOptions()).Complete(context.Background(), &domain.ApiHandle{Location: "window.API"}, domain.DefaultRequest())
	assert.False(t, res.Success)
	assert.Contains(t, res.Errors[0], string(domain.KindNotFound))
}
