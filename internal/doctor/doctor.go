// Package doctor runs runtime readiness diagnostics for config, tools,
// audio capture, and the shared-memory bridge.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/v2m/v2m/internal/audio"
	"github.com/v2m/v2m/internal/config"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})

	checks = append(checks, checkEnv("XDG_SESSION_TYPE", func(v string) bool {
		return strings.EqualFold(strings.TrimSpace(v), "wayland")
	}, "session type is wayland", "expected XDG_SESSION_TYPE=wayland"))

	checks = append(checks, checkEnv("HYPRLAND_INSTANCE_SIGNATURE", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "Hyprland session detected", "HYPRLAND_INSTANCE_SIGNATURE is empty"))

	checks = append(checks, checkCommand(cfg.Config.Clipboard.Argv, "clipboard_cmd"))
	checks = append(checks, checkCommand(cfg.Config.Transcriber.Command.Argv, "transcriber_cmd"))

	checks = append(checks, checkAudioSelection(cfg.Config))
	checks = append(checks, checkSharedMemWritable())
	checks = append(checks, checkRingSizing(cfg.Config))
	checks = append(checks, checkVadModel(cfg.Config))

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(cfg config.Config) Check {
	selection, err := audio.SelectDevice(context.Background(), cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkSharedMemWritable verifies /dev/shm (or its TMPDIR-overridden
// equivalent) is writable, since the Shared-Memory Bridge (internal/shm)
// fails the whole session if it can't create its backing region there.
func checkSharedMemWritable() Check {
	dir := "/dev/shm"
	if _, err := os.Stat(dir); err != nil {
		dir = os.TempDir()
	}

	probe := filepath.Join(dir, fmt.Sprintf("v2m-doctor-probe-%d", os.Getpid()))
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return Check{Name: "shm.writable", Pass: false, Message: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	_ = os.Remove(probe)
	return Check{Name: "shm.writable", Pass: true, Message: fmt.Sprintf("%s is writable", dir)}
}

// checkVadModel verifies a configured Silero VAD network exists on disk. An
// empty path passes: the detector then runs on RMS energy alone, which is a
// supported (if less selective) mode, not a broken install.
func checkVadModel(cfg config.Config) Check {
	path := cfg.VAD.ModelPath
	if path == "" {
		return Check{Name: "vad.model", Pass: true, Message: "no model configured; using energy detection"}
	}
	if _, err := os.Stat(path); err != nil {
		return Check{Name: "vad.model", Pass: false, Message: fmt.Sprintf("vad.model_path: %v", err)}
	}
	return Check{Name: "vad.model", Pass: true, Message: fmt.Sprintf("silero model at %s", path)}
}

// checkRingSizing sanity-checks the configured ring/VAD capacities so an
// operator sees a clear failure before a session ever starts rather than a
// zero-length ring silently dropping every sample.
func checkRingSizing(cfg config.Config) Check {
	if cfg.Ring.CapacitySeconds <= 0 {
		return Check{Name: "ring.capacity", Pass: false, Message: "ring.capacity_seconds must be > 0"}
	}
	if cfg.Ring.MaxSpeechSeconds <= 0 {
		return Check{Name: "ring.capacity", Pass: false, Message: "ring.max_speech_seconds must be > 0"}
	}
	return Check{
		Name: "ring.capacity",
		Pass: true,
		Message: fmt.Sprintf(
			"ingress=%ds max_speech=%ds",
			cfg.Ring.CapacitySeconds, cfg.Ring.MaxSpeechSeconds,
		),
	}
}
