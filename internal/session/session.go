// Package session coordinates dictation lifecycle state, actions, and commit flow.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/v2m/v2m/internal/config"
	"github.com/v2m/v2m/internal/fsm"
	"github.com/v2m/v2m/internal/ipc"
	"github.com/v2m/v2m/internal/telemetry"
)

type action int

const (
	actionStop action = iota + 1
	actionCancel
)

// Result is the complete lifecycle output returned by one Run invocation.
type Result struct {
	State         fsm.State
	Transcript    string
	Cancelled     bool
	Err           error
	AudioDevice   string
	BytesCaptured int64
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Indicator is the session-facing subset of indicator behavior: audible
// cues only, no visual/compositor surface.
type Indicator interface {
	CueRecording(context.Context)
	CueStop(context.Context)
	CueComplete(context.Context)
	CueCancel(context.Context)
	CueError(context.Context)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) CueRecording(context.Context) {}
func (noopIndicator) CueStop(context.Context)      {}
func (noopIndicator) CueComplete(context.Context)  {}
func (noopIndicator) CueCancel(context.Context)    {}
func (noopIndicator) CueError(context.Context)     {}

// Telemetry is the session-facing subset of system telemetry sampling
// embedded in a GET_STATUS response.
type Telemetry interface {
	Refresh() error
	CPU() float64
	RAM() (telemetry.Ram, error)
	GPUTempC() uint32
}

// RegionReporter is implemented by transcribers that expose a shared-memory
// audio bridge; GET_STATUS embeds the handle when one is live so external
// readers can map the region and follow the write cursor.
type RegionReporter interface {
	RegionStatus() (ipc.ShmStatus, bool)
}

// TextProcessor refines a supplied string via an external collaborator
// (PROCESS_TEXT). A nil TextProcessor is treated as pass-through.
type TextProcessor interface {
	Process(ctx context.Context, text string) (string, error)
}

// FileTranscriber transcribes an on-disk media file (TRANSCRIBE_FILE).
type FileTranscriber interface {
	TranscribeFile(ctx context.Context, path string) (string, error)
}

// Controller orchestrates session state transitions and side effects.
type Controller struct {
	logger          *slog.Logger
	transcribe      Transcriber
	commit          Committer
	indicator       Indicator
	telemetry       Telemetry
	processor       TextProcessor
	fileTranscriber FileTranscriber

	mu          sync.RWMutex
	state       fsm.State
	lastToggled time.Time
	paused      bool
	cfg         config.Config

	events *EventBus

	actions chan action
	done    chan Result

	actionsMu sync.Mutex
}

// toggleDebounce rejects a toggle accepted less than this long after the
// previous one, guarding against double-fires from the hotkey layer.
const toggleDebounce = 300 * time.Millisecond

// Option configures optional Controller collaborators.
type Option func(*Controller)

// WithTelemetry wires a system telemetry sampler into GET_STATUS responses.
func WithTelemetry(t Telemetry) Option {
	return func(c *Controller) { c.telemetry = t }
}

// WithTextProcessor wires the PROCESS_TEXT collaborator.
func WithTextProcessor(p TextProcessor) Option {
	return func(c *Controller) { c.processor = p }
}

// WithFileTranscriber wires the TRANSCRIBE_FILE collaborator.
func WithFileTranscriber(f FileTranscriber) Option {
	return func(c *Controller) { c.fileTranscriber = f }
}

// WithConfig seeds the config snapshot served by GET_CONFIG/UPDATE_CONFIG.
func WithConfig(cfg config.Config) Option {
	return func(c *Controller) { c.cfg = cfg }
}

// WithEventBus wires the lifecycle event fan-out. Share the same bus with
// NewCaptureTranscriber so speech-segment events interleave with the
// controller's state/transcription events in source order.
func WithEventBus(bus *EventBus) Option {
	return func(c *Controller) { c.events = bus }
}

// NewController constructs a session controller with safe default fallbacks.
func NewController(
	logger *slog.Logger,
	transcriber Transcriber,
	committer Committer,
	indicator Indicator,
	opts ...Option,
) *Controller {
	if transcriber == nil {
		transcriber = PlaceholderTranscriber{}
	}
	if committer == nil {
		committer = CommitFunc(func(context.Context, string) error { return nil })
	}
	if indicator == nil {
		indicator = noopIndicator{}
	}

	c := &Controller{
		logger:     logger,
		transcribe: transcriber,
		commit:     committer,
		indicator:  indicator,
		state:      fsm.StateIdle,
		actions:    make(chan action, 1),
		done:       make(chan Result, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Events exposes the lifecycle event stream; nil when no bus was wired.
func (c *Controller) Events() <-chan Event {
	return c.events.Events()
}

// wireState renders an internal FSM state using the DaemonState wire
// vocabulary ("idle"|"recording"|"processing"|"paused"|"disconnected");
// internally the FSM calls the same state "transcribing" (fsm.StateTranscribing)
// since that's what's actually happening, but the wire contract names it
// "processing" to describe it from the client's point of view.
func wireState(s fsm.State) string {
	if s == fsm.StateTranscribing {
		return "processing"
	}
	return string(s)
}

// transition applies one FSM event to the controller state, publishing a
// StateChanged event for every user-visible state. The transient error state
// is not part of the wire vocabulary; toErrorAndReset lands on Idle a moment
// later and that transition is the one observers see.
func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = next
	c.mu.Unlock()

	if next != fsm.StateError {
		c.events.Publish(Event{Kind: EventStateChanged, State: wireState(next)})
	}
	return nil
}

// Run executes one owner lifecycle from start to stop/cancel/failure completion.
// It is the synchronous form used by hotkey-driven callers that want to block
// for the whole session; IPC-driven callers instead use StartRecording, which
// runs the same body in the background and hands the Result to StopRecording.
func (c *Controller) Run(ctx context.Context) Result {
	result := Result{StartedAt: time.Now()}

	if err := c.beginSession(ctx); err != nil {
		result.State = c.State()
		result.Err = err
		result.FinishedAt = time.Now()
		return result
	}

	result = c.runBody(ctx, result)

	// A STOP_RECORDING/CANCEL_RECORDING forwarded from a second CLI
	// invocation resolves through awaitAction, which blocks on <-c.done for
	// the Result; deliver it here too so that caller gets its transcript
	// even though this owner process's own Run call already has it.
	select {
	case c.done <- result:
	default:
	}

	return result
}

// errToggleDebounced is returned by beginSession when a start arrives within
// toggleDebounce of the previous accepted toggle. It matches awaitAction's
// debounce message so Start and Stop/Cancel report the same condition the
// same way on the wire.
var errToggleDebounced = errors.New("toggle debounced")

// beginSession applies the Idle->Recording transition and starts capture.
// On failure the controller is left in Idle (via Error/Reset) so a
// subsequent start attempt is not permanently blocked.
//
// It records the toggle debounce the same way awaitAction does on the
// Stop/Cancel side: without it, a rapid start-then-cancel double-tap would
// leave lastToggled zero from Start and let the very next Cancel through
// unconditionally.
func (c *Controller) beginSession(ctx context.Context) error {
	if !c.acceptToggle() {
		return errToggleDebounced
	}

	if err := c.transition(fsm.EventStart); err != nil {
		return err
	}

	c.indicator.CueRecording(ctx)

	if err := c.transcribe.Start(ctx); err != nil {
		c.indicator.CueError(ctx)
		c.events.Publish(Event{Kind: EventError, Message: err.Error()})
		c.toErrorAndReset()
		return err
	}
	return nil
}

// runBody waits for either context cancellation or an explicit action and
// drives the rest of the session lifecycle to completion.
func (c *Controller) runBody(ctx context.Context, result Result) Result {
	select {
	case <-ctx.Done():
		return c.finishCancelled(result, ctx.Err())
	case a := <-c.actions:
		switch a {
		case actionCancel:
			return c.finishCancelled(result, nil)
		case actionStop:
			return c.finishStop(ctx, result)
		default:
			c.toErrorAndReset()
			result.State = c.State()
			result.Err = fmt.Errorf("unknown action %d", a)
			result.FinishedAt = time.Now()
			return result
		}
	}
}

// finishCancelled drains and still yields and commits a transcript when
// speech was captured before the cancellation. When speech survived, the
// session passes through the transcribing state on its way back to idle, so
// observers see the same processing/complete event sequence a regular stop
// produces.
func (c *Controller) finishCancelled(result Result, ctxErr error) Result {
	stopResult, err := c.transcribe.Cancel(context.Background())
	result.AudioDevice = stopResult.AudioDevice
	result.BytesCaptured = stopResult.BytesCaptured
	result.Cancelled = true

	committed := false
	if err == nil && strings.TrimSpace(stopResult.Transcript) != "" {
		_ = c.transition(fsm.EventStop)
		c.events.Publish(Event{
			Kind:             EventTranscriptionComplete,
			Text:             stopResult.Transcript,
			AudioDurationS:   stopResult.AudioDurationS,
			ProcessingTimeMS: stopResult.ProcessingMS,
		})
		if commitErr := c.commit.Commit(context.Background(), stopResult.Transcript); commitErr != nil {
			err = commitErr
		} else {
			committed = true
			c.events.Publish(Event{Kind: EventCopiedToClipboard, Text: stopResult.Transcript})
		}
	}

	if err != nil && !errors.Is(err, ErrEmptyTranscript) {
		c.logWarn("cancel failed", err)
		c.indicator.CueError(context.Background())
		c.events.Publish(Event{Kind: EventError, Message: err.Error()})
		c.toErrorAndReset()
		result.State = c.State()
		result.Err = err
		result.FinishedAt = time.Now()
		return result
	}

	if committed {
		c.indicator.CueComplete(context.Background())
		result.Transcript = stopResult.Transcript
	} else {
		c.indicator.CueCancel(context.Background())
	}

	_ = c.transition(fsm.EventCancel)
	if ctxErr != nil {
		result.Err = ctxErr
	}
	result.State = c.State()
	result.FinishedAt = time.Now()
	return result
}

// finishStop drains, transcribes, and commits the completed session.
func (c *Controller) finishStop(ctx context.Context, result Result) Result {
	if err := c.transition(fsm.EventStop); err != nil {
		c.toErrorAndReset()
		result.State = c.State()
		result.Err = err
		result.FinishedAt = time.Now()
		return result
	}

	stopResult, err := c.transcribe.StopAndTranscribe(ctx)
	c.indicator.CueStop(context.Background())
	result.AudioDevice = stopResult.AudioDevice
	result.BytesCaptured = stopResult.BytesCaptured
	if err == nil && strings.TrimSpace(stopResult.Transcript) == "" {
		err = ErrEmptyTranscript
	}

	if err != nil {
		if errors.Is(err, ErrEmptyTranscript) {
			// No speech recognized is a quiet, successful no-op outcome,
			// not an error cue; there is simply nothing to commit.
			c.indicator.CueComplete(context.Background())
			_ = c.transition(fsm.EventTranscribed)
			result.State = c.State()
			result.FinishedAt = time.Now()
			return result
		}

		c.logWarn("stop failed", err)
		c.indicator.CueError(context.Background())
		c.events.Publish(Event{Kind: EventError, Message: err.Error()})
		c.toErrorAndReset()
		result.State = c.State()
		result.Err = err
		result.FinishedAt = time.Now()
		return result
	}

	c.events.Publish(Event{
		Kind:             EventTranscriptionComplete,
		Text:             stopResult.Transcript,
		AudioDurationS:   stopResult.AudioDurationS,
		ProcessingTimeMS: stopResult.ProcessingMS,
	})

	if err := c.commit.Commit(ctx, stopResult.Transcript); err != nil {
		c.logWarn("commit failed", err)
		c.indicator.CueError(context.Background())
		c.events.Publish(Event{Kind: EventError, Message: err.Error()})
		c.toErrorAndReset()
		result.State = c.State()
		result.Err = err
		result.Transcript = stopResult.Transcript
		result.FinishedAt = time.Now()
		return result
	}
	c.indicator.CueComplete(context.Background())
	c.events.Publish(Event{Kind: EventCopiedToClipboard, Text: stopResult.Transcript})

	if err := c.transition(fsm.EventTranscribed); err != nil {
		result.State = c.State()
		result.Err = err
		result.Transcript = stopResult.Transcript
		result.FinishedAt = time.Now()
		return result
	}

	result.State = c.State()
	result.Transcript = stopResult.Transcript
	result.FinishedAt = time.Now()
	return result
}

// StartRecording begins a session in the background, matching the
// START_RECORDING IPC contract: it blocks only long enough to acquire the
// device and pipeline, then returns. StopRecording (or Cancel) later drains
// the background session and reports its Result.
func (c *Controller) StartRecording(ctx context.Context) ipc.Response {
	c.actionsMu.Lock()
	defer c.actionsMu.Unlock()

	if c.isPaused() {
		return ipc.Failure("daemon is paused")
	}
	if state := c.State(); state != fsm.StateIdle {
		return ipc.Failure(fmt.Sprintf("cannot start from state %s", state))
	}

	if err := c.beginSession(ctx); err != nil {
		return ipc.Failure(err.Error())
	}

	sessCtx, stop := context.WithCancel(context.Background())

	go func() {
		result := c.runBody(sessCtx, Result{StartedAt: time.Now()})
		stop()
		c.done <- result
	}()

	return ipc.Success(DaemonState{State: wireState(c.State())})
}

// StopRecording requests the background session stop, drain, and
// transcribe, blocking for the Result.
func (c *Controller) StopRecording(ctx context.Context) ipc.Response {
	return c.awaitAction(ctx, actionStop, "stop")
}

// CancelRecording requests the background session abandon recording,
// draining and still transcribing any speech already captured.
func (c *Controller) CancelRecording(ctx context.Context) ipc.Response {
	return c.awaitAction(ctx, actionCancel, "cancel")
}

func (c *Controller) awaitAction(ctx context.Context, a action, verb string) ipc.Response {
	state := c.State()
	if state == fsm.StateTranscribing {
		return ipc.Failure("already transcribing")
	}
	if state != fsm.StateRecording {
		return ipc.Failure(fmt.Sprintf("cannot %s from state %s", verb, state))
	}
	if !c.acceptToggle() {
		return ipc.Failure("toggle debounced")
	}

	select {
	case c.actions <- a:
	default:
		return ipc.Failure(fmt.Sprintf("%s already requested", verb))
	}

	select {
	case result := <-c.done:
		if result.Err != nil && !result.Cancelled {
			return ipc.Failure(result.Err.Error())
		}
		return ipc.Success(DaemonState{State: wireState(result.State), Transcription: result.Transcript})
	case <-ctx.Done():
		return ipc.Failure(ctx.Err().Error())
	}
}

// DaemonState is an alias kept local to this package for brevity in the
// functions above; it is identical in shape to ipc.DaemonState.
type DaemonState = ipc.DaemonState

// Handle serves the full IPC command set for the active session.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Cmd {
	case ipc.CmdPing:
		return ipc.Success(map[string]bool{"ok": true})
	case ipc.CmdGetStatus:
		return c.handleGetStatus()
	case ipc.CmdStartRecording:
		return c.StartRecording(ctx)
	case ipc.CmdStopRecording:
		return c.StopRecording(ctx)
	case ipc.CmdCancelRecording:
		return c.CancelRecording(ctx)
	case ipc.CmdProcessText:
		return c.handleProcessText(ctx, req.Data)
	case ipc.CmdTranscribeFile:
		return c.handleTranscribeFile(ctx, req.Data)
	case ipc.CmdPauseDaemon:
		c.setPaused(true)
		return ipc.Success(DaemonState{State: "paused"})
	case ipc.CmdResumeDaemon:
		c.setPaused(false)
		return ipc.Success(DaemonState{State: wireState(c.State())})
	case ipc.CmdGetConfig:
		return ipc.Success(c.snapshotConfig())
	case ipc.CmdUpdateConfig:
		return c.handleUpdateConfig(req.Data)
	default:
		return ipc.UnknownCommand(req.Cmd)
	}
}

func (c *Controller) handleGetStatus() ipc.Response {
	state := wireState(c.State())
	if c.isPaused() {
		state = "paused"
	}

	status := DaemonState{State: state}
	if c.telemetry != nil {
		if err := c.telemetry.Refresh(); err == nil {
			ram, ramErr := c.telemetry.RAM()
			snapshot := &ipc.TelemetrySnapshot{CPUPercent: c.telemetry.CPU(), GPUTempC: c.telemetry.GPUTempC()}
			if ramErr == nil {
				snapshot.RAMTotalKB = ram.TotalKB
				snapshot.RAMUsedKB = ram.UsedKB
				snapshot.RAMPercent = ram.Percent
			}
			status.Telemetry = snapshot
		}
	}
	if reporter, ok := c.transcribe.(RegionReporter); ok {
		if shmStatus, live := reporter.RegionStatus(); live {
			status.Shm = &shmStatus
		}
	}
	return ipc.Success(status)
}

type processTextRequest struct {
	Text string `json:"text"`
}

func (c *Controller) handleProcessText(ctx context.Context, data json.RawMessage) ipc.Response {
	var req processTextRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return ipc.Failure(fmt.Sprintf("invalid PROCESS_TEXT payload: %v", err))
	}

	if c.processor == nil {
		return ipc.Success(DaemonState{State: wireState(c.State()), RefinedText: req.Text})
	}

	refined, err := c.processor.Process(ctx, req.Text)
	if err != nil {
		return ipc.Failure(err.Error())
	}
	return ipc.Success(DaemonState{State: wireState(c.State()), RefinedText: refined})
}

type transcribeFileRequest struct {
	Path string `json:"path"`
}

func (c *Controller) handleTranscribeFile(ctx context.Context, data json.RawMessage) ipc.Response {
	var req transcribeFileRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return ipc.Failure(fmt.Sprintf("invalid TRANSCRIBE_FILE payload: %v", err))
	}
	if c.fileTranscriber == nil {
		return ipc.Failure("file transcription is not configured")
	}

	text, err := c.fileTranscriber.TranscribeFile(ctx, req.Path)
	if err != nil {
		return ipc.Failure(err.Error())
	}
	return ipc.Success(DaemonState{State: wireState(c.State()), Transcription: text})
}

func (c *Controller) snapshotConfig() config.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

func (c *Controller) handleUpdateConfig(data json.RawMessage) ipc.Response {
	c.mu.Lock()
	base := c.cfg
	c.mu.Unlock()

	merged, err := config.ApplyJSON(base, data)
	if err != nil {
		return ipc.Failure(fmt.Sprintf("invalid config update: %v", err))
	}

	c.mu.Lock()
	c.cfg = merged
	c.mu.Unlock()

	return ipc.Success(merged)
}

func (c *Controller) isPaused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}

func (c *Controller) setPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = paused
}

// acceptToggle rejects a toggle-driven request arriving within
// toggleDebounce of the previous accepted one.
func (c *Controller) acceptToggle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if !c.lastToggled.IsZero() && now.Sub(c.lastToggled) < toggleDebounce {
		return false
	}
	c.lastToggled = now
	return true
}

func (c *Controller) logWarn(msg string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, "error", err.Error())
	}
}

// toErrorAndReset transitions to error and back to idle best-effort.
func (c *Controller) toErrorAndReset() {
	_ = c.transition(fsm.EventFail)
	_ = c.transition(fsm.EventReset)
}

// IsPipelineUnavailable reports whether an error represents missing pipeline wiring.
func IsPipelineUnavailable(err error) bool {
	return errors.Is(err, ErrPipelineUnavailable)
}
