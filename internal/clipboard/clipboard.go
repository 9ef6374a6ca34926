// Package clipboard commits recognized transcripts to the system clipboard.
package clipboard

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/v2m/v2m/internal/config"
)

// Committer writes transcript text to the clipboard. The underlying
// mechanism is resolved once and reused for the life of the process: most
// clipboard tools (wl-copy included) fork a short-lived helper that takes
// over selection ownership, so the commit path itself stays a one-shot
// exec, but the command is validated only on first use rather than on
// every commit.
type Committer struct {
	config config.Config
	logger *slog.Logger

	once    sync.Once
	initErr error
}

// NewCommitter constructs a transcript committer from runtime config.
func NewCommitter(cfg config.Config, logger *slog.Logger) *Committer {
	return &Committer{config: cfg, logger: logger}
}

// Commit writes transcript text to the clipboard.
func (c *Committer) Commit(ctx context.Context, transcript string) error {
	if transcript == "" {
		return nil
	}

	if err := c.ensureReady(); err != nil {
		return err
	}

	clipboardCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := runCommandWithInput(clipboardCtx, c.config.Clipboard.Argv, transcript); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	return nil
}

// ensureReady resolves the clipboard command once per process lifetime.
func (c *Committer) ensureReady() error {
	c.once.Do(func() {
		argv := c.config.Clipboard.Argv
		if len(argv) == 0 {
			c.initErr = fmt.Errorf("clipboard command is not configured")
			return
		}
		if _, err := exec.LookPath(argv[0]); err != nil {
			c.initErr = fmt.Errorf("resolve clipboard command %q: %w", argv[0], err)
		}
	})
	return c.initErr
}

// runCommandWithInput executes argv and writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}
