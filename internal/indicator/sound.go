package indicator

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"math"
	"os/exec"
	"time"

	"github.com/jfreymuth/pulse"
)

// cueTone identifies each audible lifecycle cue.
type cueTone int

const (
	toneRecordingStart cueTone = iota + 1
	toneRecordingStop
	toneCommitComplete
	toneCancelled
)

const toneSampleRateHz = 16000

// toneSegment describes one synthesized cue tone segment.
type toneSegment struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

var (
	//go:embed assets/toggle_on.wav assets/toggle_off.wav assets/complete.wav assets/cancel.wav
	cueAssetFS embed.FS

	recordingStartWAV = mustLoadCueAsset("assets/toggle_on.wav")
	recordingStopWAV  = mustLoadCueAsset("assets/toggle_off.wav")
	commitCompleteWAV = mustLoadCueAsset("assets/complete.wav")
	cancelledWAV      = mustLoadCueAsset("assets/cancel.wav")

	recordingStartPCM = buildToneSequence([]toneSegment{
		{frequencyHz: 880, duration: 70 * time.Millisecond, volume: 0.18},
		{frequencyHz: 1175, duration: 70 * time.Millisecond, volume: 0.18},
	})
	recordingStopPCM = buildToneSequence([]toneSegment{
		{frequencyHz: 620, duration: 120 * time.Millisecond, volume: 0.18},
	})
	commitCompletePCM = buildToneSequence([]toneSegment{
		{frequencyHz: 740, duration: 65 * time.Millisecond, volume: 0.18},
		{frequencyHz: 988, duration: 90 * time.Millisecond, volume: 0.18},
	})
	cancelledPCM = buildToneSequence([]toneSegment{
		{frequencyHz: 480, duration: 75 * time.Millisecond, volume: 0.18},
		{frequencyHz: 360, duration: 90 * time.Millisecond, volume: 0.18},
	})
)

// playCueTone plays an embedded WAV cue when available, then falls back to synthesis.
func playCueTone(ctx context.Context, tone cueTone) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if data := embeddedCueFor(tone); len(data) > 0 {
		if err := playEmbeddedWAV(ctx, data); err == nil {
			return nil
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	samples := synthesizedPCMFor(tone)
	if len(samples) == 0 {
		return nil
	}

	return playSynthesizedPCM(samples)
}

func embeddedCueFor(tone cueTone) []byte {
	switch tone {
	case toneRecordingStart:
		return recordingStartWAV
	case toneRecordingStop:
		return recordingStopWAV
	case toneCommitComplete:
		return commitCompleteWAV
	case toneCancelled:
		return cancelledWAV
	default:
		return nil
	}
}

func mustLoadCueAsset(path string) []byte {
	data, err := cueAssetFS.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("load embedded cue %q: %v", path, err))
	}
	return data
}

// playEmbeddedWAV plays an embedded WAV payload through pw-play.
func playEmbeddedWAV(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("embedded cue payload is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	runCtx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "pw-play", "--media-role", "Notification", "-")
	cmd.Stdin = bytes.NewReader(data)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("play embedded cue: %w", err)
	}
	return nil
}

// playSynthesizedPCM streams synthesized PCM samples through Pulse playback.
func playSynthesizedPCM(samples []int16) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("v2m"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if cursor >= len(samples) {
			return 0, pulse.EndOfData
		}

		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(toneSampleRateHz),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("v2m indicator cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}

	return nil
}

// synthesizedPCMFor returns the synthesized PCM table for one cue tone.
func synthesizedPCMFor(tone cueTone) []int16 {
	switch tone {
	case toneRecordingStart:
		return recordingStartPCM
	case toneRecordingStop:
		return recordingStopPCM
	case toneCommitComplete:
		return commitCompletePCM
	case toneCancelled:
		return cancelledPCM
	default:
		return nil
	}
}

// buildToneSequence concatenates one or more tone segments with short silence gaps.
func buildToneSequence(parts []toneSegment) []int16 {
	if len(parts) == 0 {
		return nil
	}
	gapSamples := sampleCountFor(22 * time.Millisecond)
	total := 0
	for i, part := range parts {
		total += sampleCountFor(part.duration)
		if i < len(parts)-1 {
			total += gapSamples
		}
	}

	pcm := make([]int16, 0, total)
	for i, part := range parts {
		pcm = append(pcm, renderTone(part)...)
		if i < len(parts)-1 && gapSamples > 0 {
			pcm = append(pcm, make([]int16, gapSamples)...)
		}
	}

	return pcm
}

// renderTone creates one windowed sine-wave segment.
func renderTone(seg toneSegment) []int16 {
	n := sampleCountFor(seg.duration)
	if n <= 0 || seg.frequencyHz <= 0 || seg.volume <= 0 {
		return nil
	}

	attackRelease := n / 10
	maxRamp := toneSampleRateHz / 200 // 5ms
	if attackRelease > maxRamp {
		attackRelease = maxRamp
	}
	if attackRelease < 1 {
		attackRelease = 1
	}

	pcm := make([]int16, n)
	for i := 0; i < n; i++ {
		envelope := 1.0
		if i < attackRelease {
			envelope = float64(i) / float64(attackRelease)
		}
		releaseIndex := n - i - 1
		if releaseIndex < attackRelease {
			release := float64(releaseIndex) / float64(attackRelease)
			if release < envelope {
				envelope = release
			}
		}
		t := float64(i) / toneSampleRateHz
		sample := math.Sin(2 * math.Pi * seg.frequencyHz * t)
		pcm[i] = int16(math.Round(sample * seg.volume * envelope * 32767))
	}

	return pcm
}

// sampleCountFor converts a time duration into a sample count at toneSampleRateHz.
func sampleCountFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * toneSampleRateHz))
}
