package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/v2m/v2m/internal/config"
	"github.com/v2m/v2m/internal/fsm"
	"github.com/v2m/v2m/internal/ipc"
	"github.com/v2m/v2m/internal/telemetry"
)

type fakeIndicator struct {
	recordingCues atomic.Int32
	stopCues      atomic.Int32
	completeCues  atomic.Int32
	cancelCues    atomic.Int32
	errorCues     atomic.Int32
}

func (f *fakeIndicator) CueRecording(context.Context) { f.recordingCues.Add(1) }
func (f *fakeIndicator) CueStop(context.Context)      { f.stopCues.Add(1) }
func (f *fakeIndicator) CueComplete(context.Context)  { f.completeCues.Add(1) }
func (f *fakeIndicator) CueCancel(context.Context)    { f.cancelCues.Add(1) }
func (f *fakeIndicator) CueError(context.Context)     { f.errorCues.Add(1) }

type fakeTranscriber struct {
	startErr    error
	transcript  string
	stopErr     error
	cancelErr   error
	cancelCalls atomic.Int32
}

func (f *fakeTranscriber) Start(context.Context) error {
	return f.startErr
}

func (f *fakeTranscriber) StopAndTranscribe(context.Context) (StopResult, error) {
	return StopResult{
		Transcript:    f.transcript,
		AudioDevice:   "test mic",
		BytesCaptured: 3200,
	}, f.stopErr
}

func (f *fakeTranscriber) Cancel(context.Context) (StopResult, error) {
	f.cancelCalls.Add(1)
	return StopResult{
		Transcript:    f.transcript,
		AudioDevice:   "test mic",
		BytesCaptured: 3200,
	}, f.cancelErr
}

func waitForState(t *testing.T, ctrl *Controller, desired fsm.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.State() == desired {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s (current=%s)", desired, ctrl.State())
}

// clearToggleDebounce backdates lastToggled so a test's next toggle action
// (Stop/Cancel) isn't itself rejected by the same 300ms debounce window
// Start just consumed, without making the test sleep for it.
func clearToggleDebounce(ctrl *Controller) {
	ctrl.mu.Lock()
	ctrl.lastToggled = time.Now().Add(-toggleDebounce)
	ctrl.mu.Unlock()
}

func decodeDaemonState(t *testing.T, resp ipc.Response) ipc.DaemonState {
	t.Helper()
	var state ipc.DaemonState
	require.NoError(t, json.Unmarshal(resp.Data, &state))
	return state
}

func TestControllerStartThenStopCommitsTranscript(t *testing.T) {
	var committed atomic.Bool
	ind := &fakeIndicator{}
	ctrl := NewController(
		nil,
		&fakeTranscriber{transcript: "hello world"},
		CommitFunc(func(context.Context, string) error {
			committed.Store(true)
			return nil
		}),
		ind,
	)

	ctx := context.Background()
	startResp := ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStartRecording})
	require.Equal(t, ipc.StatusSuccess, startResp.Status)
	waitForState(t, ctrl, fsm.StateRecording)
	clearToggleDebounce(ctrl)

	stopResp := ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStopRecording})
	require.Equal(t, ipc.StatusSuccess, stopResp.Status)

	state := decodeDaemonState(t, stopResp)
	require.Equal(t, "hello world", state.Transcription)
	require.True(t, committed.Load())
	require.Equal(t, int32(1), ind.stopCues.Load())
	require.Equal(t, int32(1), ind.completeCues.Load())
	require.Zero(t, ind.cancelCues.Load())

	require.Eventually(t, func() bool { return ctrl.State() == fsm.StateIdle }, time.Second, 10*time.Millisecond)
}

func TestControllerStopEmptyTranscriptIsQuietSuccess(t *testing.T) {
	var committed atomic.Bool
	ind := &fakeIndicator{}
	ctrl := NewController(
		nil,
		&fakeTranscriber{transcript: ""},
		CommitFunc(func(context.Context, string) error {
			committed.Store(true)
			return nil
		}),
		ind,
	)

	ctx := context.Background()
	require.Equal(t, ipc.StatusSuccess, ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStartRecording}).Status)
	waitForState(t, ctrl, fsm.StateRecording)
	clearToggleDebounce(ctrl)

	stopResp := ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStopRecording})
	require.Equal(t, ipc.StatusSuccess, stopResp.Status, "empty transcript is a successful no-speech outcome, not an error")

	state := decodeDaemonState(t, stopResp)
	require.Empty(t, state.Transcription)
	require.False(t, committed.Load())
	require.Equal(t, int32(1), ind.completeCues.Load())
	require.Zero(t, ind.errorCues.Load())
}

func TestControllerStopPipelineErrorIsFailure(t *testing.T) {
	ind := &fakeIndicator{}
	ctrl := NewController(nil, &fakeTranscriber{stopErr: errors.New("device vanished")}, nil, ind)

	ctx := context.Background()
	require.Equal(t, ipc.StatusSuccess, ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStartRecording}).Status)
	waitForState(t, ctrl, fsm.StateRecording)
	clearToggleDebounce(ctrl)

	stopResp := ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStopRecording})
	require.Equal(t, ipc.StatusError, stopResp.Status)
	require.Contains(t, stopResp.Error, "device vanished")
	require.Equal(t, int32(1), ind.errorCues.Load())

	require.Eventually(t, func() bool { return ctrl.State() == fsm.StateIdle }, time.Second, 10*time.Millisecond)
}

func TestControllerCancelDuringRecordingStillYieldsTranscript(t *testing.T) {
	var committed atomic.Bool
	ind := &fakeIndicator{}
	transcriber := &fakeTranscriber{transcript: "partial phrase"}
	ctrl := NewController(
		nil,
		transcriber,
		CommitFunc(func(context.Context, string) error {
			committed.Store(true)
			return nil
		}),
		ind,
	)

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := make(chan Result, 1)
	go func() { resultCh <- ctrl.Run(ctx) }()

	waitForState(t, ctrl, fsm.StateRecording)
	cancel()

	result := <-resultCh
	require.True(t, result.Cancelled)
	require.Equal(t, "partial phrase", result.Transcript)
	require.True(t, committed.Load(), "cancellation must still yield and commit a transcript when speech was captured")
	require.Equal(t, int32(1), transcriber.cancelCalls.Load())
	require.Equal(t, int32(1), ind.completeCues.Load())
	require.Zero(t, ind.cancelCues.Load())
	require.Equal(t, fsm.StateIdle, ctrl.State())
}

func TestControllerCancelWithoutSpeechPlaysCancelCue(t *testing.T) {
	ind := &fakeIndicator{}
	ctrl := NewController(nil, &fakeTranscriber{transcript: ""}, nil, ind)

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := make(chan Result, 1)
	go func() { resultCh <- ctrl.Run(ctx) }()

	waitForState(t, ctrl, fsm.StateRecording)
	cancel()

	result := <-resultCh
	require.True(t, result.Cancelled)
	require.Empty(t, result.Transcript)
	require.Equal(t, int32(1), ind.cancelCues.Load())
	require.Zero(t, ind.completeCues.Load())
}

func TestControllerStartRecordingRejectsWhenNotIdle(t *testing.T) {
	ctrl := NewController(nil, &fakeTranscriber{}, nil, nil)
	ctx := context.Background()

	require.Equal(t, ipc.StatusSuccess, ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStartRecording}).Status)
	waitForState(t, ctrl, fsm.StateRecording)

	resp := ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStartRecording})
	require.Equal(t, ipc.StatusError, resp.Status)
	require.Contains(t, resp.Error, "cannot start")
}

func TestControllerStopRejectsWhenIdle(t *testing.T) {
	ctrl := NewController(nil, &fakeTranscriber{}, nil, nil)
	resp := ctrl.Handle(context.Background(), ipc.Request{Cmd: ipc.CmdStopRecording})
	require.Equal(t, ipc.StatusError, resp.Status)
	require.Contains(t, resp.Error, "cannot stop")
}

func TestControllerPauseRejectsStartRecording(t *testing.T) {
	ctrl := NewController(nil, &fakeTranscriber{}, nil, nil)
	ctx := context.Background()

	require.Equal(t, ipc.StatusSuccess, ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdPauseDaemon}).Status)

	resp := ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStartRecording})
	require.Equal(t, ipc.StatusError, resp.Status)
	require.Contains(t, resp.Error, "paused")

	require.Equal(t, ipc.StatusSuccess, ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdResumeDaemon}).Status)
	require.Equal(t, ipc.StatusSuccess, ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStartRecording}).Status)
}

func TestControllerHandlePingAndUnknownCommand(t *testing.T) {
	ctrl := NewController(nil, &fakeTranscriber{}, nil, nil)
	ctx := context.Background()

	pingResp := ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdPing})
	require.Equal(t, ipc.StatusSuccess, pingResp.Status)

	resp := ctrl.Handle(ctx, ipc.Request{Cmd: "NOT_A_COMMAND"})
	require.Equal(t, ipc.StatusError, resp.Status)
	require.Contains(t, resp.Error, "UNKNOWN_COMMAND")
}

type fakeTelemetry struct {
	refreshErr error
	cpu        float64
	ram        telemetry.Ram
	ramErr     error
	gpuTempC   uint32
}

func (f *fakeTelemetry) Refresh() error              { return f.refreshErr }
func (f *fakeTelemetry) CPU() float64                { return f.cpu }
func (f *fakeTelemetry) RAM() (telemetry.Ram, error) { return f.ram, f.ramErr }
func (f *fakeTelemetry) GPUTempC() uint32            { return f.gpuTempC }

func TestControllerGetStatusIncludesTelemetry(t *testing.T) {
	tel := &fakeTelemetry{cpu: 12.5, ram: telemetry.Ram{TotalKB: 1000, UsedKB: 400, Percent: 40}, gpuTempC: 55}
	ctrl := NewController(nil, &fakeTranscriber{}, nil, nil, WithTelemetry(tel))

	resp := ctrl.Handle(context.Background(), ipc.Request{Cmd: ipc.CmdGetStatus})
	require.Equal(t, ipc.StatusSuccess, resp.Status)

	state := decodeDaemonState(t, resp)
	require.Equal(t, "idle", state.State)
	require.NotNil(t, state.Telemetry)
	require.InDelta(t, 12.5, state.Telemetry.CPUPercent, 0.001)
	require.Equal(t, uint64(1000), state.Telemetry.RAMTotalKB)
	require.Equal(t, uint32(55), state.Telemetry.GPUTempC)
}

func TestControllerProcessTextPassThroughWithoutProcessor(t *testing.T) {
	ctrl := NewController(nil, &fakeTranscriber{}, nil, nil)

	data, err := json.Marshal(map[string]string{"text": "raw input"})
	require.NoError(t, err)

	resp := ctrl.Handle(context.Background(), ipc.Request{Cmd: ipc.CmdProcessText, Data: data})
	require.Equal(t, ipc.StatusSuccess, resp.Status)

	state := decodeDaemonState(t, resp)
	require.Equal(t, "raw input", state.RefinedText)
}

type fakeProcessor struct{}

func (fakeProcessor) Process(_ context.Context, text string) (string, error) {
	return "refined: " + text, nil
}

func TestControllerProcessTextUsesWiredProcessor(t *testing.T) {
	ctrl := NewController(nil, &fakeTranscriber{}, nil, nil, WithTextProcessor(fakeProcessor{}))

	data, err := json.Marshal(map[string]string{"text": "raw input"})
	require.NoError(t, err)

	resp := ctrl.Handle(context.Background(), ipc.Request{Cmd: ipc.CmdProcessText, Data: data})
	require.Equal(t, ipc.StatusSuccess, resp.Status)

	state := decodeDaemonState(t, resp)
	require.Equal(t, "refined: raw input", state.RefinedText)
}

func TestControllerTranscribeFileRequiresWiring(t *testing.T) {
	ctrl := NewController(nil, &fakeTranscriber{}, nil, nil)

	data, err := json.Marshal(map[string]string{"path": "/tmp/clip.wav"})
	require.NoError(t, err)

	resp := ctrl.Handle(context.Background(), ipc.Request{Cmd: ipc.CmdTranscribeFile, Data: data})
	require.Equal(t, ipc.StatusError, resp.Status)
	require.Contains(t, resp.Error, "not configured")
}

type fakeFileTranscriber struct{}

func (fakeFileTranscriber) TranscribeFile(_ context.Context, path string) (string, error) {
	return "transcribed " + path, nil
}

func TestControllerTranscribeFileUsesWiredCollaborator(t *testing.T) {
	ctrl := NewController(nil, &fakeTranscriber{}, nil, nil, WithFileTranscriber(fakeFileTranscriber{}))

	data, err := json.Marshal(map[string]string{"path": "/tmp/clip.wav"})
	require.NoError(t, err)

	resp := ctrl.Handle(context.Background(), ipc.Request{Cmd: ipc.CmdTranscribeFile, Data: data})
	require.Equal(t, ipc.StatusSuccess, resp.Status)

	state := decodeDaemonState(t, resp)
	require.Equal(t, "transcribed /tmp/clip.wav", state.Transcription)
}

func TestControllerGetAndUpdateConfig(t *testing.T) {
	ctrl := NewController(nil, &fakeTranscriber{}, nil, nil, WithConfig(config.Default()))
	ctx := context.Background()

	getResp := ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdGetConfig})
	require.Equal(t, ipc.StatusSuccess, getResp.Status)

	var before config.Config
	require.NoError(t, json.Unmarshal(getResp.Data, &before))
	require.Equal(t, "default", before.Audio.Input)

	patch, err := json.Marshal(map[string]any{"audio": map[string]string{"input": "usb-mic"}})
	require.NoError(t, err)

	updateResp := ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdUpdateConfig, Data: patch})
	require.Equal(t, ipc.StatusSuccess, updateResp.Status)

	var after config.Config
	require.NoError(t, json.Unmarshal(updateResp.Data, &after))
	require.Equal(t, "usb-mic", after.Audio.Input)

	getResp2 := ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdGetConfig})
	var confirmed config.Config
	require.NoError(t, json.Unmarshal(getResp2.Data, &confirmed))
	require.Equal(t, "usb-mic", confirmed.Audio.Input)
}

type regionReportingTranscriber struct {
	fakeTranscriber
	status ipc.ShmStatus
	live   bool
}

func (f *regionReportingTranscriber) RegionStatus() (ipc.ShmStatus, bool) {
	return f.status, f.live
}

func TestControllerGetStatusIncludesSharedMemoryBridge(t *testing.T) {
	tr := &regionReportingTranscriber{
		status: ipc.ShmStatus{Path: "/dev/shm/v2m-capture.ring", WriteCursor: 4096, CapacitySamples: 9600000},
		live:   true,
	}
	ctrl := NewController(nil, tr, nil, nil)

	resp := ctrl.Handle(context.Background(), ipc.Request{Cmd: ipc.CmdGetStatus})
	require.Equal(t, ipc.StatusSuccess, resp.Status)

	state := decodeDaemonState(t, resp)
	require.NotNil(t, state.Shm)
	require.Equal(t, "/dev/shm/v2m-capture.ring", state.Shm.Path)
	require.Equal(t, uint64(4096), state.Shm.WriteCursor)
	require.False(t, state.Shm.Finalized)

	tr.live = false
	state = decodeDaemonState(t, ctrl.Handle(context.Background(), ipc.Request{Cmd: ipc.CmdGetStatus}))
	require.Nil(t, state.Shm)
}

func TestControllerStopEmitsOrderedLifecycleEvents(t *testing.T) {
	bus := NewEventBus(nil)
	ctrl := NewController(nil, &fakeTranscriber{transcript: "hello world"}, nil, nil, WithEventBus(bus))

	ctx := context.Background()
	require.Equal(t, ipc.StatusSuccess, ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStartRecording}).Status)
	waitForState(t, ctrl, fsm.StateRecording)
	clearToggleDebounce(ctrl)
	require.Equal(t, ipc.StatusSuccess, ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStopRecording}).Status)

	events := drainEvents(bus)
	require.Equal(t, []EventKind{
		EventStateChanged,
		EventStateChanged,
		EventTranscriptionComplete,
		EventCopiedToClipboard,
		EventStateChanged,
	}, eventKinds(events))
	require.Equal(t, "recording", events[0].State)
	require.Equal(t, "processing", events[1].State)
	require.Equal(t, "hello world", events[2].Text)
	require.Equal(t, "hello world", events[3].Text)
	require.Equal(t, "idle", events[4].State)
}

func TestControllerCancelWithSpeechEmitsProcessingAndCompletion(t *testing.T) {
	bus := NewEventBus(nil)
	ctrl := NewController(nil, &fakeTranscriber{transcript: "captured words"}, nil, nil, WithEventBus(bus))

	ctx := context.Background()
	require.Equal(t, ipc.StatusSuccess, ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStartRecording}).Status)
	waitForState(t, ctrl, fsm.StateRecording)
	clearToggleDebounce(ctrl)
	require.Equal(t, ipc.StatusSuccess, ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdCancelRecording}).Status)

	// Cancellation with speech still transcribes and commits, so observers
	// see the same processing/complete sequence a regular stop produces.
	events := drainEvents(bus)
	require.Equal(t, []EventKind{
		EventStateChanged,
		EventStateChanged,
		EventTranscriptionComplete,
		EventCopiedToClipboard,
		EventStateChanged,
	}, eventKinds(events))
	require.Equal(t, "recording", events[0].State)
	require.Equal(t, "processing", events[1].State)
	require.Equal(t, "captured words", events[2].Text)
	require.Equal(t, "idle", events[4].State)
}

func TestControllerCancelWithoutSpeechEmitsOnlyStateEvents(t *testing.T) {
	bus := NewEventBus(nil)
	ctrl := NewController(nil, &fakeTranscriber{transcript: ""}, nil, nil, WithEventBus(bus))

	ctx := context.Background()
	require.Equal(t, ipc.StatusSuccess, ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdStartRecording}).Status)
	waitForState(t, ctrl, fsm.StateRecording)
	clearToggleDebounce(ctrl)
	require.Equal(t, ipc.StatusSuccess, ctrl.Handle(ctx, ipc.Request{Cmd: ipc.CmdCancelRecording}).Status)

	events := drainEvents(bus)
	require.Equal(t, []EventKind{EventStateChanged, EventStateChanged}, eventKinds(events))
	require.Equal(t, "recording", events[0].State)
	require.Equal(t, "idle", events[1].State)
}

func TestControllerStartFailureEmitsErrorEvent(t *testing.T) {
	bus := NewEventBus(nil)
	ctrl := NewController(nil, &fakeTranscriber{startErr: errors.New("no device")}, nil, nil, WithEventBus(bus))

	resp := ctrl.Handle(context.Background(), ipc.Request{Cmd: ipc.CmdStartRecording})
	require.Equal(t, ipc.StatusError, resp.Status)

	events := drainEvents(bus)
	kinds := eventKinds(events)
	require.Contains(t, kinds, EventError)
	// The session lands back on idle after the failed start.
	require.Equal(t, EventStateChanged, kinds[len(kinds)-1])
	require.Equal(t, "idle", events[len(events)-1].State)
}
