package session

import (
	"context"
	"log/slog"
)

// Committer persists/dispatches a transcript when session stop succeeds.
type Committer interface {
	Commit(context.Context, string) error
}

// CommitFunc adapts a function to the Committer interface.
type CommitFunc func(context.Context, string) error

func (f CommitFunc) Commit(ctx context.Context, transcript string) error {
	return f(ctx, transcript)
}

// LoggingCommitter wraps a Committer and logs the outcome of every commit at
// the rune-count level rather than the transcript text itself, so a daemon
// log shows whether STOP_RECORDING's final step actually landed without
// ever writing recognized speech to disk.
type LoggingCommitter struct {
	next   Committer
	logger *slog.Logger
}

// NewLoggingCommitter wraps next with outcome logging. A nil logger makes
// this a transparent pass-through.
func NewLoggingCommitter(next Committer, logger *slog.Logger) *LoggingCommitter {
	return &LoggingCommitter{next: next, logger: logger}
}

func (c *LoggingCommitter) Commit(ctx context.Context, transcript string) error {
	err := c.next.Commit(ctx, transcript)
	if c.logger == nil {
		return err
	}

	if err != nil {
		c.logger.Warn("transcript commit failed", "runes", len([]rune(transcript)), "error", err.Error())
	} else {
		c.logger.Info("transcript committed", "runes", len([]rune(transcript)))
	}
	return err
}
