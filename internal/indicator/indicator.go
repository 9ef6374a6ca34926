// Package indicator plays best-effort audible cues for session lifecycle events.
package indicator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/v2m/v2m/internal/config"
)

// Controller is the session-facing audible-cue contract.
type Controller interface {
	CueRecording(context.Context)
	CueStop(context.Context)
	CueComplete(context.Context)
	CueCancel(context.Context)
	CueError(context.Context)
}

// CuePlayer plays cue tones from config. It is the only remaining
// responsibility of this package once visual/desktop notification dispatch
// is out of scope: start/stop/success/error audible cues, each best-effort
// from a non-blocking worker.
type CuePlayer struct {
	cfg    config.IndicatorConfig
	logger *slog.Logger

	soundMu sync.Mutex
}

// New creates a cue player from config.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *CuePlayer {
	return &CuePlayer{cfg: cfg, logger: logger}
}

// CueRecording plays the recording-start cue.
func (c *CuePlayer) CueRecording(ctx context.Context) { c.playCue(ctx, toneRecordingStart) }

// CueStop plays the recording-stop cue.
func (c *CuePlayer) CueStop(ctx context.Context) { c.playCue(ctx, toneRecordingStop) }

// CueComplete plays the successful-commit cue.
func (c *CuePlayer) CueComplete(ctx context.Context) { c.playCue(ctx, toneCommitComplete) }

// CueCancel plays the cancelled-session cue.
func (c *CuePlayer) CueCancel(ctx context.Context) { c.playCue(ctx, toneCancelled) }

// CueError plays the error cue. It reuses the cancel tone table: the two
// are distinct lifecycle signals, but they never overlap in practice, so
// one "negative" tone covers both.
func (c *CuePlayer) CueError(ctx context.Context) { c.playCue(ctx, toneCancelled) }

// playCue serializes cue playback and emits audio from a background worker
// so the caller's lifecycle transition is never blocked on device I/O.
func (c *CuePlayer) playCue(ctx context.Context, tone cueTone) {
	if !c.cfg.SoundEnable {
		return
	}
	go func() {
		c.soundMu.Lock()
		defer c.soundMu.Unlock()
		if err := playCueTone(ctx, tone); err != nil {
			c.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (c *CuePlayer) log(message string, err error) {
	if c.logger == nil || err == nil {
		return
	}
	c.logger.Debug(message, "error", err.Error())
}
