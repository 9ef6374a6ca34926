package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/v2m/v2m/internal/audio"
	"github.com/v2m/v2m/internal/cli"
	"github.com/v2m/v2m/internal/clipboard"
	"github.com/v2m/v2m/internal/config"
	"github.com/v2m/v2m/internal/doctor"
	"github.com/v2m/v2m/internal/indicator"
	"github.com/v2m/v2m/internal/ipc"
	"github.com/v2m/v2m/internal/logging"
	"github.com/v2m/v2m/internal/session"
	"github.com/v2m/v2m/internal/telemetry"
	"github.com/v2m/v2m/internal/version"
)

// Runner holds process-level dependencies used by command handlers.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// Execute is the package entrypoint used by cmd/v2m/main.go.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

// Execute parses CLI arguments, loads config/logging, and dispatches a command.
func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("v2m"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("v2m"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.CmdStopRecording, "stop")
	case cli.CommandCancel:
		return r.forwardOrFail(ctx, ipc.CmdCancelRecording, "cancel")
	case cli.CommandToggle:
		return r.commandToggle(ctx, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

// commandDevices prints discovered input devices and key availability metadata.
func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

// commandStatus queries the active owner (if any) and prints session state.
func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.SocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CmdGetStatus)
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		state := decodeDaemonState(resp)
		if state.State == "" {
			state.State = "idle"
		}
		fmt.Fprintln(r.Stdout, state.State)
		return 0
	}

	fmt.Fprintln(r.Stdout, "idle")
	return 0
}

// forwardOrFail forwards a command to the active owner and fails when no owner exists.
func (r Runner) forwardOrFail(ctx context.Context, cmd string, label string) int {
	socketPath, err := ipc.SocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, cmd)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active v2m session\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	state := decodeDaemonState(resp)
	if strings.TrimSpace(state.Transcription) != "" {
		fmt.Fprintln(r.Stdout, strings.TrimSpace(state.Transcription))
	} else {
		fmt.Fprintln(r.Stdout, label+" handled")
	}
	return 0
}

// commandToggle starts a new owner session or forwards a cancel to an
// existing owner: an idle process becomes the owner and records; a second
// invocation while that owner is recording forwards CANCEL_RECORDING, which
// despite the name still commits any transcript already captured.
func (r Runner) commandToggle(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.SocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CmdCancelRecording)
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		state := decodeDaemonState(resp)
		if strings.TrimSpace(state.Transcription) != "" {
			fmt.Fprintln(r.Stdout, strings.TrimSpace(state.Transcription))
		}
		return 0
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			resp, _, forwardErr := tryForward(ctx, socketPath, ipc.CmdCancelRecording)
			if forwardErr != nil {
				fmt.Fprintf(r.Stderr, "error: %v\n", forwardErr)
				return 1
			}
			state := decodeDaemonState(resp)
			if strings.TrimSpace(state.Transcription) != "" {
				fmt.Fprintln(r.Stdout, strings.TrimSpace(state.Transcription))
			}
			return 0
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	events := session.NewEventBus(logger)
	go logSessionEvents(logger, events.Events())

	transcriber := session.NewCaptureTranscriber(cfg, logger, events)
	committer := session.NewLoggingCommitter(clipboard.NewCommitter(cfg, logger), logger)
	indicatorCtl := indicator.New(cfg.Indicator, logger)
	processor := session.NewCommandProcessor(cfg.Processor)
	controller := session.NewController(logger, transcriber, committer, indicatorCtl,
		session.WithConfig(cfg),
		session.WithTextProcessor(processor),
		session.WithFileTranscriber(transcriber),
		session.WithTelemetry(telemetry.New()),
		session.WithEventBus(events),
	)

	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, controller)
	}()

	result := controller.Run(ctx)
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		logger.Warn("ipc server stopped with error", "error", serverErr.Error())
	}

	logSessionResult(logger, result)

	if result.Cancelled {
		fmt.Fprintln(r.Stdout, "cancelled")
		return 0
	}
	if result.Err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	}
	if strings.TrimSpace(result.Transcript) != "" {
		fmt.Fprintln(r.Stdout, strings.TrimSpace(result.Transcript))
	}

	return 0
}

// logSessionEvents drains the lifecycle event stream into the runtime log,
// keeping the bus's consumer side live for the whole owner session. The
// transcript text itself stays out of the log; only lengths and timings go
// in, matching LoggingCommitter's discipline.
func logSessionEvents(logger *slog.Logger, events <-chan session.Event) {
	for ev := range events {
		if logger == nil {
			continue
		}
		logger.Debug("session event",
			"kind", string(ev.Kind),
			"state", ev.State,
			"duration_ms", ev.DurationMS,
			"audio_duration_s", ev.AudioDurationS,
			"processing_time_ms", ev.ProcessingTimeMS,
			"text_length", len(ev.Text),
			"message", ev.Message,
		)
	}
}

// logSessionResult writes normalized session metrics into the runtime logger.
func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"state", string(result.State),
		"cancelled", result.Cancelled,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"audio_device", result.AudioDevice,
		"bytes_captured", result.BytesCaptured,
		"transcript_length", len(result.Transcript),
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

// decodeDaemonState unmarshals a success Response's Data into a DaemonState,
// tolerating responses (e.g. PING's {"ok":true}) that don't carry one.
func decodeDaemonState(resp ipc.Response) ipc.DaemonState {
	var state ipc.DaemonState
	if len(resp.Data) == 0 {
		return state
	}
	_ = json.Unmarshal(resp.Data, &state)
	return state
}

// tryForward attempts to send cmd to an existing owner and classifies the outcome.
//
// handled=false means there was no active owner to handle the request.
func tryForward(ctx context.Context, socketPath string, cmd string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Cmd: cmd}, 220*time.Millisecond)
	if err == nil {
		if resp.Status == ipc.StatusError {
			return resp, true, errors.New(resp.Error)
		}
		return resp, true, nil
	}

	if isSocketMissing(err) || isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", cmd, err)
}

// isSocketMissing reports whether forwarding failed because the owner socket is absent.
func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

// isConnectionRefused reports whether forwarding failed because no owner is listening.
func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
