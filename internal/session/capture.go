package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/v2m/v2m/internal/audio"
	"github.com/v2m/v2m/internal/conditioner"
	"github.com/v2m/v2m/internal/config"
	"github.com/v2m/v2m/internal/ipc"
	"github.com/v2m/v2m/internal/ringbuf"
	"github.com/v2m/v2m/internal/shm"
	"github.com/v2m/v2m/internal/speechbuffer"
	"github.com/v2m/v2m/internal/transcript"
	"github.com/v2m/v2m/internal/vad"
)

const (
	vadChunkSamples = vad.WindowSamples // 512 samples, ~32ms @ 16kHz
	pollInterval    = 100 * time.Millisecond

	// residualSilenceMS is how much trailing silence a finished segment keeps
	// after the SilencePending grace period is cut back out, so an utterance
	// doesn't end on a hard edge right at the last voiced sample.
	residualSilenceMS = 200
)

// CaptureTranscriber drives one push-to-talk session: it owns the device
// stream, the ring/conditioner/VAD/speech-buffer pipeline, and the external
// synchronous ASR command invocation.
type CaptureTranscriber struct {
	cfg    config.Config
	logger *slog.Logger
	events *EventBus

	mu      sync.Mutex
	capture *audio.Capture
	cancel  context.CancelFunc
	device  audio.Device

	consumer *ringbuf.Consumer
	cond     *conditioner.Conditioner
	vad      *vad.Detector
	vadModel *vad.SileroModel
	state    *vad.StateMachine
	speech   *speechbuffer.Buffer
	region   *shm.Region

	drainStop chan struct{}
	drainDone chan struct{}
}

// NewCaptureTranscriber builds a Transcriber that captures real audio and
// shells out to the configured transcriber command. Speech-segment events
// (speech started/ended) are published to events as the capture worker
// detects them; pass the same bus given to the Controller.
func NewCaptureTranscriber(cfg config.Config, logger *slog.Logger, events *EventBus) *CaptureTranscriber {
	return &CaptureTranscriber{cfg: cfg, logger: logger, events: events}
}

// Start selects an input device, opens a capture stream, and builds the
// per-session pipeline (Ring, Conditioner, VAD, SpeechBuffer).
func (c *CaptureTranscriber) Start(ctx context.Context) error {
	selection, err := audio.SelectDevice(ctx, c.cfg.Audio.Input, c.cfg.Audio.Fallback)
	if err != nil {
		return fmt.Errorf("select audio device: %w", err)
	}

	captureCtx, cancel := context.WithCancel(context.Background())
	ringCapacity := c.cfg.Ring.CapacitySeconds * conditioner.TargetSampleRate
	cap, consumer, deviceRate, deviceChannels, err := audio.StartCapture(captureCtx, selection.Device, ringCapacity, c.logger)
	if err != nil {
		cancel()
		return fmt.Errorf("start capture: %w", err)
	}

	vadModel := c.newVadModel()
	var model vad.Model
	if vadModel != nil {
		model = vadModel
	}

	c.mu.Lock()
	c.capture = cap
	c.cancel = cancel
	c.device = selection.Device
	c.consumer = consumer
	c.cond = conditioner.New(deviceRate, deviceChannels)
	c.state = vad.NewStateMachine(c.cfg.VAD.MinSpeechMS, c.cfg.VAD.MinSilenceMS)
	c.vad = vad.NewDetector(model, c.cfg.VAD.ThresholdProb, c.cfg.VAD.EnergyFallback)
	c.vadModel = vadModel
	c.speech = speechbuffer.New(c.cfg.VAD.PreRollMS, c.cfg.Ring.MaxSpeechSeconds)
	if region, regionErr := shm.Create(shmPath(), consumer.Cap()); regionErr == nil {
		c.region = region
	} else if c.logger != nil {
		c.logger.Debug("shared-memory bridge unavailable", "error", regionErr.Error())
	}
	c.drainStop = make(chan struct{})
	c.drainDone = make(chan struct{})
	c.mu.Unlock()

	go c.drainLoop(consumer)

	return nil
}

// newVadModel loads the configured Silero network, returning nil (energy
// detection) when no model is configured or loading fails. Capture never
// refuses to start over a missing model; the energy path is less selective
// but always available.
func (c *CaptureTranscriber) newVadModel() *vad.SileroModel {
	path := c.cfg.VAD.ModelPath
	if path == "" {
		if c.logger != nil {
			c.logger.Debug("no vad model configured; using energy detection")
		}
		return nil
	}

	model, err := vad.NewSileroModel(vad.SileroConfig{
		ModelPath:  path,
		Threshold:  c.cfg.VAD.ThresholdProb,
		SampleRate: conditioner.TargetSampleRate,
	})
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("vad model unavailable; falling back to energy detection", "error", err.Error())
		}
		return nil
	}
	return model
}

// drainLoop is the capture worker: it polls the ring at pollInterval,
// feeding whatever the device callback pushed through the conditioner/VAD/
// speech-buffer pipeline while recording is still in progress, so speech
// segmentation and the shared-memory bridge track the session live instead
// of replaying everything at stop time. finish signals drainStop and waits
// for drainDone before it touches the pipeline again.
func (c *CaptureTranscriber) drainLoop(consumer *ringbuf.Consumer) {
	defer close(c.drainDone)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var scratch []float32
	for {
		select {
		case <-c.drainStop:
			return
		case <-ticker.C:
			scratch = consumer.Drain(scratch[:0])
			c.ingest(scratch)
		}
	}
}

// StopAndTranscribe stops capture, drains any buffered audio into the
// speech buffer, and invokes the external transcriber on the result.
func (c *CaptureTranscriber) StopAndTranscribe(ctx context.Context) (StopResult, error) {
	return c.finish(ctx)
}

// Cancel stops capture the same way StopAndTranscribe does: cancellation
// during recording still drains and transcribes any speech already
// captured. It differs from Stop only in which FSM leg the caller takes
// afterward, not in what happens to the audio.
func (c *CaptureTranscriber) Cancel(ctx context.Context) (StopResult, error) {
	return c.finish(ctx)
}

// finish drains the capture stream, hands whatever speech accumulated to
// the external transcriber, and tears down the per-session pipeline. It
// backs both StopAndTranscribe and Cancel.
func (c *CaptureTranscriber) finish(ctx context.Context) (StopResult, error) {
	c.mu.Lock()
	cap := c.capture
	cancel := c.cancel
	device := c.device
	consumer := c.consumer
	c.capture = nil
	c.mu.Unlock()

	if cap == nil {
		return StopResult{}, ErrPipelineUnavailable
	}

	close(c.drainStop)
	<-c.drainDone

	c.drainUntilStopped(cap, consumer)
	samples := c.finishSegment()

	c.mu.Lock()
	if c.region != nil {
		c.region.Finalize()
		path := c.region.Path()
		_ = c.region.Close()
		_ = os.Remove(path)
		c.region = nil
	}
	if c.vadModel != nil {
		c.vadModel.Close()
		c.vadModel = nil
	}
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	result := StopResult{AudioDevice: device.ID, BytesCaptured: cap.BytesCaptured()}

	if len(samples) == 0 {
		return result, ErrEmptyTranscript
	}
	result.AudioDurationS = float64(len(samples)) / conditioner.TargetSampleRate

	transcribeCtx, timeoutCancel := context.WithTimeout(ctx, c.transcribeTimeout())
	defer timeoutCancel()

	started := time.Now()
	text, err := runTranscriber(transcribeCtx, c.cfg.Transcriber.Command, samples)
	result.ProcessingMS = time.Since(started).Milliseconds()
	if err != nil {
		return result, fmt.Errorf("transcribe: %w", err)
	}

	result.Transcript = transcript.Assemble([]string{text}, transcript.Options{
		TrailingSpace:       c.cfg.Transcript.TrailingSpace,
		CapitalizeSentences: c.cfg.Transcript.CapitalizeSentences,
		RemoveFillerWords:   c.cfg.Transcript.RemoveFillerWords,
	})
	return result, nil
}

// RegionStatus reports the live shared-memory bridge handle for GET_STATUS,
// so an out-of-process reader can map the region and follow the cursor. The
// second return is false when no region is currently mapped.
func (c *CaptureTranscriber) RegionStatus() (ipc.ShmStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.region == nil {
		return ipc.ShmStatus{}, false
	}
	return ipc.ShmStatus{
		Path:            c.region.Path(),
		WriteCursor:     c.region.Cursor(),
		Finalized:       c.region.Finalized(),
		CapacitySamples: c.region.Capacity(),
	}, true
}

// TranscribeFile runs the configured external ASR command directly against
// an on-disk media file, for the TRANSCRIBE_FILE IPC command. Unlike the
// live-capture path it does not go through the Ring/Conditioner/VAD
// pipeline: the file is assumed to already be in a format the transcriber
// command accepts, with the path appended as its final argument.
func (c *CaptureTranscriber) TranscribeFile(ctx context.Context, path string) (string, error) {
	if len(c.cfg.Transcriber.Command.Argv) == 0 {
		return "", errors.New("transcriber command is not configured")
	}

	transcribeCtx, cancel := context.WithTimeout(ctx, c.transcribeTimeout())
	defer cancel()

	argv := append(append([]string{}, c.cfg.Transcriber.Command.Argv...), path)
	cmd := exec.CommandContext(transcribeCtx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s", err, stderr.String())
	}

	return transcript.Assemble([]string{stdout.String()}, transcript.Options{
		TrailingSpace:       c.cfg.Transcript.TrailingSpace,
		CapitalizeSentences: c.cfg.Transcript.CapitalizeSentences,
		RemoveFillerWords:   c.cfg.Transcript.RemoveFillerWords,
	}), nil
}

// drainUntilStopped stops the device stream, which waits for every
// in-flight audio callback to finish pushing into the ring before
// returning, then does one final Consumer.Drain, guaranteed at that point
// to see every sample the device produced.
func (c *CaptureTranscriber) drainUntilStopped(cap *audio.Capture, consumer *ringbuf.Consumer) {
	_ = cap.Stop()
	if consumer == nil {
		return
	}
	c.ingest(consumer.Drain(nil))
}

// ingest runs raw device-native interleaved samples (already converted from
// s16le PCM to float32 by the audio callback that pushed them into the
// ring) through the conditioner/VAD/speech-buffer pipeline, advancing the
// state machine by the conditioned chunk's duration.
func (c *CaptureTranscriber) ingest(raw []float32) {
	if len(raw) == 0 {
		return
	}
	conditioned := c.cond.Condition(raw)

	c.mu.Lock()
	if c.region != nil {
		c.region.Write(conditioned)
	}
	c.mu.Unlock()

	remaining := conditioned
	c.speech.PushPre(remaining)

	for len(remaining) > 0 {
		n := vadChunkSamples
		if n > len(remaining) {
			n = len(remaining)
		}
		window := remaining[:n]
		remaining = remaining[n:]

		result := c.vad.Predict(window)
		chunkMS := int64(len(window)) * 1000 / conditioner.TargetSampleRate
		event := c.state.Advance(result.IsSpeech, chunkMS)

		switch event {
		case vad.EventSpeechStarted:
			c.speech.StartSpeech()
			c.events.Publish(Event{Kind: EventSpeechStarted})
			if c.logger != nil {
				c.logger.Debug("speech started", "method", result.Method.String())
			}
		case vad.EventSpeechEnded:
			// The SilencePending grace period pushed its silence into the
			// buffer in case speech resumed; it didn't, so cut it back out,
			// keeping a short residual tail.
			trimMS := c.cfg.VAD.MinSilenceMS - residualSilenceMS
			c.speech.TrimTail(trimMS * conditioner.TargetSampleRate / 1000)
			c.events.Publish(Event{Kind: EventSpeechEnded, DurationMS: c.speech.DurationMS()})
			if c.logger != nil {
				c.logger.Debug("speech ended", "segment_ms", c.speech.DurationMS())
			}
			c.vad.Reset()
			c.state.Reset()
		}

		if c.state.IsCapturing() {
			c.speech.PushActive(window)
		}
		if c.speech.AtCapacity() {
			c.state.ForceEnd()
		}
	}
}

// finishSegment returns whatever audio the speech buffer accumulated.
func (c *CaptureTranscriber) finishSegment() []float32 {
	if !c.speech.HasSpeech() {
		return nil
	}
	return c.speech.EndSpeech()
}

// transcribeTimeout returns the configured ASR command timeout, falling back
// to a generous default when unset so a zero config value doesn't expire the
// command before it starts.
func (c *CaptureTranscriber) transcribeTimeout() time.Duration {
	timeout := time.Duration(c.cfg.Transcriber.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return timeout
}

// runTranscriber invokes the configured external ASR command with 16kHz
// mono s16 WAV bytes on stdin and returns its trimmed stdout as the
// transcript.
func runTranscriber(ctx context.Context, cmdCfg config.CommandConfig, samples []float32) (string, error) {
	if len(cmdCfg.Argv) == 0 {
		return "", errors.New("transcriber command is not configured")
	}

	wav := encodeWAV(samples, conditioner.TargetSampleRate)

	cmd := exec.CommandContext(ctx, cmdCfg.Argv[0], cmdCfg.Argv[1:]...)
	cmd.Stdin = bytes.NewReader(wav)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s", err, stderr.String())
	}

	return stdout.String(), nil
}

// encodeWAV wraps samples in a minimal canonical PCM WAV header so the
// external transcriber command can be a plain "reads a WAV on stdin" tool.
func encodeWAV(samples []float32, sampleRate int) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		binary.LittleEndian.PutUint16(pcm[i*2:i*2+2], uint16(int16(s*32767)))
	}

	var buf bytes.Buffer
	dataLen := uint32(len(pcm))
	byteRate := uint32(sampleRate * 2)

	buf.WriteString("RIFF")
	writeUint32(&buf, 36+dataLen)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	writeUint32(&buf, 16)
	writeUint16(&buf, 1) // PCM
	writeUint16(&buf, 1) // mono
	writeUint32(&buf, uint32(sampleRate))
	writeUint32(&buf, byteRate)
	writeUint16(&buf, 2) // block align
	writeUint16(&buf, 16)
	buf.WriteString("data")
	writeUint32(&buf, dataLen)
	buf.Write(pcm)

	return buf.Bytes()
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	buf.Write(tmp[:])
}

// shmPath names the bridge region per-process so concurrent v2m instances
// never map over each other's audio.
func shmPath() string {
	return fmt.Sprintf("/dev/shm/v2m-capture-%d.ring", os.Getpid())
}
