package session

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/v2m/v2m/internal/config"
)

// CommandProcessor refines text by shelling out to a configured external
// command (e.g. an LLM-backed rewrite tool), piping the input on stdin and
// reading the refined text from stdout, the same invocation shape
// runTranscriber and clipboard.Committer use.
type CommandProcessor struct {
	cfg config.ProcessorConfig
}

// NewCommandProcessor builds a TextProcessor from the processor command
// configuration. When no command is configured, Process is a pass-through.
func NewCommandProcessor(cfg config.ProcessorConfig) CommandProcessor {
	return CommandProcessor{cfg: cfg}
}

func (p CommandProcessor) Process(ctx context.Context, text string) (string, error) {
	if len(p.cfg.Command.Argv) == 0 {
		return text, nil
	}

	timeout := time.Duration(p.cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, p.cfg.Command.Argv[0], p.cfg.Command.Argv[1:]...)
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("process text: %w: %s", err, stderr.String())
	}

	return strings.TrimRight(stdout.String(), "\n"), nil
}
