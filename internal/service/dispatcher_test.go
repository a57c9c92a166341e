package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lmsbridge/internal/domain"
)

func newTestDispatcher(l *lms) *Dispatcher {
	return NewDispatcher(newTestOrchestrator(nil), StaticRoot(l.top), domain.DefaultRequest(), DefaultCompletionOptions(), nil)
}

func TestDispatcherCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("discoverApis", func(t *testing.T) {
		resp := newTestDispatcher(newLMS(throwing)).Handle(ctx, Command{Name: CmdDiscoverApis})
		assert.Empty(t, resp.Error)
		require.NotNil(t, resp.Discovery)
		assert.Len(t, resp.Handles, 4)
	})

	t.Run("testApi", func(t *testing.T) {
		resp := newTestDispatcher(newLMS(throwing)).Handle(ctx, Command{Name: CmdTestApi, Index: idxScorm12})
		require.Empty(t, resp.Error)
		require.Len(t, resp.Handles, 1)
		assert.Equal(t, domain.FunctionalConfirmed, resp.Handles[0].Functional)
	})

	t.Run("setCompletion uses the command request", func(t *testing.T) {
		l := newLMS(throwing)
		req := domain.DefaultRequest()
		req.Status = domain.StatusFailed
		resp := newTestDispatcher(l).Handle(ctx, Command{Name: CmdSetCompletion, Index: idxScorm12, Request: &req})
		require.Empty(t, resp.Error)
		require.NotNil(t, resp.Result)
		assert.True(t, resp.Result.Success)
		assert.Equal(t, "failed", l.rt12.Value("cmi.core.lesson_status"))
		assert.Nil(t, resp.Report)
	})

	t.Run("forceCompletion", func(t *testing.T) {
		resp := newTestDispatcher(newLMS(throwing)).Handle(ctx, Command{Name: CmdForceCompletion, Index: idxCustom})
		require.NotNil(t, resp.Report)
		assert.True(t, resp.Report.Success)
		assert.Empty(t, resp.Error)
	})

	t.Run("forceCompletion failure carries the summary", func(t *testing.T) {
		opts := CompletionOptions{}
		resp := newTestDispatcher(newLMS(throwing)).Handle(ctx, Command{Name: CmdForceCompletion, Index: idxCustom, Options: &opts})
		require.NotNil(t, resp.Report)
		assert.False(t, resp.Report.Success)
		assert.Contains(t, resp.Error, "completion failed")
	})

	t.Run("SetDefaults applies to later commands", func(t *testing.T) {
		l := newLMS(throwing)
		d := newTestDispatcher(l)
		req := domain.DefaultRequest()
		req.Status = domain.StatusIncomplete
		d.SetDefaults(req, DefaultCompletionOptions())

		resp := d.Handle(ctx, Command{Name: CmdSetCompletion, Index: idxScorm12})
		require.Empty(t, resp.Error)
		assert.Equal(t, "incomplete", l.rt12.Value("cmi.core.lesson_status"))
	})

	t.Run("getCmiData", func(t *testing.T) {
		resp := newTestDispatcher(newLMS(throwing)).Handle(ctx, Command{Name: CmdGetCmiData, Index: idxScorm12})
		require.Empty(t, resp.Error)
		assert.Equal(t, "learner-1", resp.CMI["cmi.core.student_id"])
		assert.Equal(t, "window.API", resp.Handles[0].Location)
	})

	t.Run("unknown command", func(t *testing.T) {
		resp := newTestDispatcher(newLMS(throwing)).Handle(ctx, Command{Name: "reboot"})
		assert.Equal(t, domain.KindNotFound, resp.ErrorKind)
	})

	t.Run("bad index", func(t *testing.T) {
		resp := newTestDispatcher(newLMS(throwing)).Handle(ctx, Command{Name: CmdSetCompletion, Index: 7})
		assert.Equal(t, domain.KindNotFound, resp.ErrorKind)
		assert.Contains(t, resp.Error, "index 7")
	})
}

func TestDispatcherWithoutRoot(t *testing.T) {
	d := NewDispatcher(newTestOrchestrator(nil), StaticRoot(nil), domain.DefaultRequest(), DefaultCompletionOptions(), nil)
	resp := d.Handle(context.Background(), Command{Name: CmdDiscoverApis})
	assert.Equal(t, domain.KindNotFound, resp.ErrorKind)
}

func TestEventBusDropsForSlowSubscribers(t *testing.T) {
	bus := NewEventBus()
	slow := make(chan Event)
	fast := make(chan Event, 1)
	bus.Subscribe(slow)
	bus.Subscribe(fast)

	bus.Publish(Event{Type: EventVerification})
	got := <-fast
	assert.Equal(t, EventVerification, got.Type)
	assert.False(t, got.Time.IsZero())

	var nilBus *EventBus
	assert.NotPanics(t, func() { nilBus.Publish(Event{Type: EventVerification}) })
}
