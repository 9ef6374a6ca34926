// Package speechbuffer accumulates one utterance's audio: a fixed-capacity
// pre-roll ring that always runs so the first syllable is never clipped,
// and a capped accumulator for the confirmed-active portion.
package speechbuffer

// SampleRate is the rate the buffer's durations and capacities are computed
// against.
const SampleRate = 16000

// Buffer holds one utterance's pre-roll and active audio. It is not safe
// for concurrent use; it belongs to a single capture worker.
type Buffer struct {
	preRoll   []float32 // fixed-capacity ring, overwrites oldest
	preHead   int
	preFilled int
	preCap    int

	active    []float32
	activeCap int
}

// New builds a Buffer with a preRollMS-long pre-roll ring and an active
// accumulator capped at maxSpeechSeconds.
func New(preRollMS, maxSpeechSeconds int) *Buffer {
	preCap := preRollMS * SampleRate / 1000
	if preCap < 1 {
		preCap = 1
	}
	activeCap := maxSpeechSeconds * SampleRate

	return &Buffer{
		preRoll:   make([]float32, preCap),
		preCap:    preCap,
		active:    make([]float32, 0, activeCap),
		activeCap: activeCap,
	}
}

// PushPre feeds the pre-roll ring. Called unconditionally on every captured
// chunk, speech or not, so there's always recent history to seed a new
// utterance from.
func (b *Buffer) PushPre(samples []float32) {
	for _, s := range samples {
		b.preRoll[b.preHead] = s
		b.preHead = (b.preHead + 1) % b.preCap
		if b.preFilled < b.preCap {
			b.preFilled++
		}
	}
}

// StartSpeech appends the pre-roll's current contents to the active
// accumulator, in arrival order, so speech detected mid-word still carries
// its lead-in. Appending rather than replacing matters for push-to-talk:
// a session may hold several utterances, and a later utterance's pre-roll
// must not wipe the ones already accumulated.
func (b *Buffer) StartSpeech() {
	if b.preFilled < b.preCap {
		b.PushActive(b.preRoll[:b.preFilled])
		return
	}
	b.PushActive(b.preRoll[b.preHead:])
	b.PushActive(b.preRoll[:b.preHead])
}

// PushActive appends to the active accumulator, dropping samples once the
// capacity is reached rather than growing unbounded.
func (b *Buffer) PushActive(samples []float32) {
	remaining := b.activeCap - len(b.active)
	if remaining <= 0 {
		return
	}
	if len(samples) > remaining {
		samples = samples[:remaining]
	}
	b.active = append(b.active, samples...)
}

// TrimTail drops the most recent n samples from the active accumulator.
// The capture worker uses it to cut the confirmed trailing silence back out
// once a segment's end is established: that silence was only accumulated
// because it might still have flipped back to speech.
func (b *Buffer) TrimTail(n int) {
	if n <= 0 {
		return
	}
	if n > len(b.active) {
		n = len(b.active)
	}
	b.active = b.active[:len(b.active)-n]
}

// EndSpeech returns the accumulated active audio and clears it.
func (b *Buffer) EndSpeech() []float32 {
	speech := b.active
	b.active = make([]float32, 0, b.activeCap)
	return speech
}

// AtCapacity reports whether the active accumulator has hit its cap.
func (b *Buffer) AtCapacity() bool {
	return len(b.active) >= b.activeCap
}

// HasSpeech reports whether any active audio is currently accumulated.
func (b *Buffer) HasSpeech() bool {
	return len(b.active) > 0
}

// DurationMS reports the active accumulator's duration in milliseconds.
func (b *Buffer) DurationMS() int64 {
	return int64(len(b.active)) * 1000 / SampleRate
}
