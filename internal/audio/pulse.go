// Package audio handles device discovery, selection, and PCM capture streams.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"

	"github.com/v2m/v2m/internal/conditioner"
	"github.com/v2m/v2m/internal/ringbuf"
)

const (
	fragmentMS = 20 // target Pulse record-buffer fragment duration
)

// Device describes one Pulse input source surfaced to v2m.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool

	// SampleRate and Channels are the source's current native sample spec,
	// as PulseAudio is already running it. SelectDevice/StartCapture use
	// these to pick the conditioner's device-side rate/channel count
	// instead of assuming every device already speaks 16kHz mono.
	SampleRate int
	Channels   int
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// ListDevices returns available Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("v2m"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
			SampleRate:  int(source.SampleSpec.Rate),
			Channels:    int(source.SampleSpec.Channels),
		})
	}
	return devices, nil
}

// SelectDevice resolves audio.input/audio.fallback preferences against live devices.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

// selectDeviceFromList applies selection policy to a pre-fetched device list.
func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	var (
		defaultDevice *Device
		byInput       *Device
		byFallback    *Device
	)

	input = strings.TrimSpace(strings.ToLower(input))
	fallback = strings.TrimSpace(strings.ToLower(fallback))

	for i := range devices {
		dev := &devices[i]
		if dev.Default {
			defaultDevice = dev
		}
		if byInput == nil && input != "" && input != "default" && deviceMatches(*dev, input) {
			byInput = dev
		}
		if byFallback == nil && fallback != "" && fallback != "default" && deviceMatches(*dev, fallback) {
			byFallback = dev
		}
	}

	chooseDefault := func() (*Device, error) {
		if defaultDevice == nil {
			return nil, errors.New("default audio source is unavailable")
		}
		return defaultDevice, nil
	}

	selectPrimary := func() (*Device, error) {
		if input == "" || input == "default" {
			return chooseDefault()
		}
		if byInput != nil {
			return byInput, nil
		}
		return nil, fmt.Errorf("audio.input %q did not match any device", input)
	}

	primary, err := selectPrimary()
	if err != nil {
		return Selection{}, err
	}
	if primary.Available && !primary.Muted {
		return Selection{Device: *primary}, nil
	}

	primaryReason := "unavailable"
	if primary.Muted {
		primaryReason = "muted"
	}

	fallbackDevice := primary
	if fallback != "" && fallback != "default" {
		if byFallback == nil {
			return Selection{}, fmt.Errorf("primary input %q is %s and fallback %q not found", primary.ID, primaryReason, fallback)
		}
		fallbackDevice = byFallback
	} else {
		d, derr := chooseDefault()
		if derr != nil {
			return Selection{}, fmt.Errorf("primary input %q is %s and no usable fallback: %w", primary.ID, primaryReason, derr)
		}
		fallbackDevice = d
	}

	if !fallbackDevice.Available {
		return Selection{}, fmt.Errorf("audio fallback device %q is not available", fallbackDevice.ID)
	}
	if fallbackDevice.Muted {
		return Selection{}, fmt.Errorf("audio fallback device %q is muted", fallbackDevice.ID)
	}

	return Selection{
		Device:   *fallbackDevice,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, primaryReason, fallbackDevice.ID),
		Fallback: primary.ID != fallbackDevice.ID,
	}, nil
}

// deviceMatches reports whether a search term matches a device id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	id := strings.ToLower(device.ID)
	desc := strings.ToLower(device.Description)
	return strings.Contains(id, term) || strings.Contains(desc, term)
}

// Capture streams raw device-native PCM from one selected Pulse source,
// pushing converted samples into a ringbuf.Producer from inside the Pulse
// client's own read-loop goroutine, the realtime callback the ring is
// meant to bridge away from the capture-worker goroutine that drains it.
type Capture struct {
	device   Device
	channels int

	client *pulse.Client
	stream *pulse.RecordStream

	producer *ringbuf.Producer
	stopCh   chan struct{}

	mu      sync.Mutex
	carry   []byte // PCM bytes held back until they form whole frames
	stopped bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

// StartCapture resolves the device's effective capture rate via
// conditioner.SelectRate and starts a record stream at that rate, pushing
// converted samples into a freshly created ring buffer. The returned
// Consumer, rate, and channel count let the caller build a Conditioner
// bound to what the device is actually delivering rather than assuming
// every device already speaks 16kHz mono.
func StartCapture(ctx context.Context, selected Device, ringCapacitySamples int, logger *slog.Logger) (*Capture, *ringbuf.Consumer, int, int, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("v2m"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, nil, 0, 0, fmt.Errorf("connect pulse server: %w", err)
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, nil, 0, 0, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	rate := conditioner.SelectRate([]int{selected.SampleRate})
	channels := selected.Channels
	if channels < 1 {
		channels = 1
	}

	producer, consumer := ringbuf.New(ringCapacitySamples, logger)

	capture := &Capture{
		device:   selected,
		channels: channels,
		client:   client,
		producer: producer,
		stopCh:   make(chan struct{}),
	}

	recordOpts := []pulse.RecordOption{
		pulse.RecordSource(source),
		pulse.RecordSampleRate(rate),
		pulse.RecordBufferFragmentSize(fragmentBytes(rate, channels)),
		pulse.RecordMediaName("v2m dictation"),
	}
	if channels == 1 {
		// RecordMono is the only channel-count option the Pulse binding
		// exposes; for channels > 1 the stream negotiates the source's own
		// channel map and the Conditioner downmixes using selected.Channels.
		recordOpts = append(recordOpts, pulse.RecordMono)
	}

	writer := pulse.NewWriter(writerFunc(capture.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(writer, recordOpts...)
	if err != nil {
		capture.Close()
		return nil, nil, 0, 0, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	stream.Start()

	go func() {
		<-ctx.Done()
		_ = capture.Stop()
	}()

	return capture, consumer, rate, channels, nil
}

// fragmentBytes sizes the Pulse record fragment to roughly fragmentMS of
// audio at the given rate/channel count, in whole s16le frames.
func fragmentBytes(rate, channels int) uint32 {
	frameBytes := 2 * channels
	samples := rate * fragmentMS / 1000
	if samples < 1 {
		samples = 1
	}
	return uint32(samples * frameBytes)
}

// Device returns capture metadata for logging and diagnostics.
func (c *Capture) Device() Device {
	return c.device
}

// BytesCaptured reports total bytes accepted from Pulse.
func (c *Capture) BytesCaptured() int64 {
	return c.bytes.Load()
}

// Stop halts the stream and flushes any residual, frame-aligned-but-unpushed
// PCM into the ring exactly once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.inflight.Wait()
	return nil
}

// Close is a convenience alias for Stop.
func (c *Capture) Close() {
	_ = c.Stop()
}

// onPCM receives raw Pulse frames on the Pulse client's read-loop goroutine,
// accumulates them until they span a whole number of sample frames, and
// pushes the converted float32 samples straight into the ring's Producer
// half. This is the realtime audio callback the ring buffer exists to get
// audio off of without the callback ever blocking on a consumer.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-c.stopCh:
		return 0, io.EOF
	default:
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Guard Add under the same mutex as c.stopped to avoid Add/Wait races.
	c.inflight.Add(1)

	c.carry = append(c.carry, buffer...)
	frameBytes := 2 * c.channels
	usable := len(c.carry) - len(c.carry)%frameBytes
	ready := append([]byte(nil), c.carry[:usable]...)
	c.carry = c.carry[usable:]
	c.mu.Unlock()
	defer c.inflight.Done()

	c.bytes.Add(int64(len(buffer)))

	if len(ready) > 0 {
		c.producer.Push(int16ToFloat32(ready))
	}

	return len(buffer), nil
}

// int16ToFloat32 converts interleaved little-endian s16 PCM to float32 in
// [-1.0, 1.0].
func int16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		out[i] = float32(v) / 32768.0
	}
	return out
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// sourceStateString maps Pulse source state constants to human-readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
