package indicator

import (
	"context"
	"testing"
	"time"

	"github.com/v2m/v2m/internal/config"
	"github.com/stretchr/testify/require"
)

func TestCuePlayerMethodsReturnWithoutBlocking(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.SoundEnable = true

	player := New(cfg, nil)

	deadline := 50 * time.Millisecond
	assertFast := func(name string, fn func()) {
		done := make(chan struct{})
		go func() {
			fn()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(deadline):
			t.Fatalf("%s blocked past %s", name, deadline)
		}
	}

	ctx := context.Background()
	assertFast("CueRecording", func() { player.CueRecording(ctx) })
	assertFast("CueStop", func() { player.CueStop(ctx) })
	assertFast("CueComplete", func() { player.CueComplete(ctx) })
	assertFast("CueCancel", func() { player.CueCancel(ctx) })
	assertFast("CueError", func() { player.CueError(ctx) })
}

func TestCuePlayerSkipsPlaybackWhenSoundDisabled(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.SoundEnable = false

	player := New(cfg, nil)

	// With sound disabled, playCue must return before spawning any worker;
	// calling every method back to back must stay well under the playback
	// timeout used by playCueTone.
	start := time.Now()
	player.CueRecording(context.Background())
	player.CueStop(context.Background())
	player.CueComplete(context.Background())
	player.CueCancel(context.Background())
	player.CueError(context.Background())
	require.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestCuePlayerLogsOnCancelledContext(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.SoundEnable = true

	player := New(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NotPanics(t, func() {
		player.CueRecording(ctx)
		time.Sleep(5 * time.Millisecond)
	})
}
