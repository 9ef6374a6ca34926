package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/v2m/v2m/internal/fsm"
	"github.com/v2m/v2m/internal/ipc"
)

func TestRunStartFailure(t *testing.T) {
	transcriber := &fakeTranscriber{startErr: errors.New("start failed")}
	indicator := &fakeIndicator{}
	ctrl := NewController(nil, transcriber, nil, indicator)

	result := ctrl.Run(context.Background())
	require.Error(t, result.Err)
	require.Equal(t, fsm.StateIdle, result.State)
	require.NotZero(t, result.FinishedAt)
	require.Equal(t, int32(0), indicator.stopCues.Load())
	require.Equal(t, int32(0), indicator.completeCues.Load())
}

func TestRunCommitFailureSurfacesAsIPCError(t *testing.T) {
	indicator := &fakeIndicator{}
	ctrl := NewController(
		nil,
		&fakeTranscriber{transcript: "hello world"},
		CommitFunc(func(context.Context, string) error { return errors.New("commit failed") }),
		indicator,
	)

	ctx := context.Background()
	require.Equal(t, ipc.StatusSuccess, ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStartRecording}).Status)
	waitForState(t, ctrl, fsm.StateRecording)
	clearToggleDebounce(ctrl)

	resp := ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStopRecording})
	require.Equal(t, ipc.StatusError, resp.Status)
	require.Contains(t, resp.Error, "commit failed")
	require.Equal(t, int32(1), indicator.stopCues.Load())
	require.Equal(t, int32(0), indicator.completeCues.Load())
}

func TestRunUnknownAction(t *testing.T) {
	ctrl := NewController(nil, &fakeTranscriber{}, nil, &fakeIndicator{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- ctrl.Run(ctx)
	}()

	waitForState(t, ctrl, fsm.StateRecording)
	ctrl.actions <- action(99)

	result := <-resultCh
	require.Error(t, result.Err)
	require.Contains(t, result.Err.Error(), "unknown action")
	require.Equal(t, fsm.StateIdle, result.State)
}

func TestIsPipelineUnavailable(t *testing.T) {
	require.True(t, IsPipelineUnavailable(ErrPipelineUnavailable))
	require.False(t, IsPipelineUnavailable(errors.New("different error")))
	require.False(t, IsPipelineUnavailable(nil))
}

func TestPlaceholderTranscriberContract(t *testing.T) {
	p := PlaceholderTranscriber{}
	require.NoError(t, p.Start(context.Background()))

	result, err := p.StopAndTranscribe(context.Background())
	require.ErrorIs(t, err, ErrPipelineUnavailable)
	require.Equal(t, StopResult{}, result)

	cancelResult, err := p.Cancel(context.Background())
	require.NoError(t, err)
	require.Equal(t, StopResult{}, cancelResult)
}

func TestCommitFuncDelegates(t *testing.T) {
	called := false
	commit := CommitFunc(func(_ context.Context, transcript string) error {
		called = true
		require.Equal(t, "hello", transcript)
		return nil
	})

	require.NoError(t, commit.Commit(context.Background(), "hello"))
	require.True(t, called)
}

func TestLoggingCommitterDelegatesAndSurvivesNilLogger(t *testing.T) {
	var got string
	inner := CommitFunc(func(_ context.Context, transcript string) error {
		got = transcript
		return nil
	})

	wrapped := NewLoggingCommitter(inner, nil)
	require.NoError(t, wrapped.Commit(context.Background(), "hello world"))
	require.Equal(t, "hello world", got)
}

func TestLoggingCommitterPropagatesError(t *testing.T) {
	inner := CommitFunc(func(context.Context, string) error { return errors.New("disk full") })
	wrapped := NewLoggingCommitter(inner, nil)

	err := wrapped.Commit(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")
}

func TestResultTimestampsAdvance(t *testing.T) {
	ctrl := NewController(nil, &fakeTranscriber{transcript: "ok"}, nil, &fakeIndicator{})

	ctx := context.Background()
	require.Equal(t, ipc.StatusSuccess, ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStartRecording}).Status)
	waitForState(t, ctrl, fsm.StateRecording)
	clearToggleDebounce(ctrl)

	require.Equal(t, ipc.StatusSuccess, ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStopRecording}).Status)
	require.Eventually(t, func() bool { return ctrl.State() == fsm.StateIdle }, time.Second, 10*time.Millisecond)
}

// TestStartRecordingDebouncesImmediateCancel is the canonical rapid
// double-tap the 300ms toggle debounce exists for: a start followed almost
// immediately by a cancel. Before beginSession recorded lastToggled itself,
// Start left lastToggled zero and the very next toggle always passed the
// IsZero short-circuit in acceptToggle, so this sequence was never
// debounced. It must be now.
func TestStartRecordingDebouncesImmediateCancel(t *testing.T) {
	ctrl := NewController(nil, &fakeTranscriber{}, nil, &fakeIndicator{})
	ctx := context.Background()

	require.Equal(t, ipc.StatusSuccess, ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStartRecording}).Status)
	waitForState(t, ctrl, fsm.StateRecording)

	resp := ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdCancelRecording})
	require.Equal(t, ipc.StatusError, resp.Status)
	require.Contains(t, resp.Error, "debounced")
	require.Equal(t, fsm.StateRecording, ctrl.State())
}

// TestStartRecordingDebounceClearsAfterWindow confirms the same sequence
// succeeds once the debounce window has elapsed, so the fix above only
// delays a rapid re-toggle rather than permanently wedging the session.
func TestStartRecordingDebounceClearsAfterWindow(t *testing.T) {
	ctrl := NewController(nil, &fakeTranscriber{}, nil, &fakeIndicator{})
	ctx := context.Background()

	require.Equal(t, ipc.StatusSuccess, ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStartRecording}).Status)
	waitForState(t, ctrl, fsm.StateRecording)
	clearToggleDebounce(ctrl)

	resp := ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdCancelRecording})
	require.Equal(t, ipc.StatusSuccess, resp.Status)
}

func TestAwaitActionRejectsFromIdle(t *testing.T) {
	ctrl := NewController(nil, &fakeTranscriber{}, nil, &fakeIndicator{})

	stopFromIdle := ctrl.Handle(context.Background(), ipc.Request{Cmd: ipc.CmdStopRecording})
	require.Equal(t, ipc.StatusError, stopFromIdle.Status)
	require.Contains(t, stopFromIdle.Error, "cannot stop from state idle")
}

func TestAwaitActionRejectsWhileTranscribing(t *testing.T) {
	ctrl := NewController(nil, &fakeTranscriber{}, nil, &fakeIndicator{})

	ctrl.mu.Lock()
	ctrl.state = fsm.StateTranscribing
	ctrl.mu.Unlock()

	stopFromTranscribing := ctrl.Handle(context.Background(), ipc.Request{Cmd: ipc.CmdStopRecording})
	require.Equal(t, ipc.StatusError, stopFromTranscribing.Status)
	require.Contains(t, stopFromTranscribing.Error, "already transcribing")
}

func TestAwaitActionAlreadyRequested(t *testing.T) {
	ctrl := NewController(nil, &fakeTranscriber{}, nil, &fakeIndicator{})

	ctrl.mu.Lock()
	ctrl.state = fsm.StateRecording
	ctrl.mu.Unlock()

	ctrl.actions <- actionStop
	resp := ctrl.awaitAction(context.Background(), actionStop, "stop")
	require.Equal(t, ipc.StatusError, resp.Status)
	require.Contains(t, resp.Error, "stop already requested")
}
