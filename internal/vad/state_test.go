package vad

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdleStaysIdleOnSilence(t *testing.T) {
	m := NewStateMachine(150, 800)
	event := m.Advance(false, 32)
	require.Equal(t, EventNone, event)
	require.Equal(t, StateIdle, m.State())
}

func TestSpeechMustPersistPastMinSpeechMS(t *testing.T) {
	m := NewStateMachine(150, 800)

	require.Equal(t, EventNone, m.Advance(true, 32))
	require.Equal(t, StateSpeechPending, m.State())

	require.Equal(t, EventNone, m.Advance(true, 32))
	require.Equal(t, StateSpeechPending, m.State())

	for m.State() == StateSpeechPending {
		m.Advance(true, 32)
	}
	require.Equal(t, StateSpeechActive, m.State())
}

func TestSpeechPendingFalsePositiveReturnsToIdle(t *testing.T) {
	m := NewStateMachine(150, 800)
	m.Advance(true, 32)
	require.Equal(t, StateSpeechPending, m.State())

	event := m.Advance(false, 32)
	require.Equal(t, EventNone, event)
	require.Equal(t, StateIdle, m.State())
}

func TestSpeechActiveToSilencePendingToIdleEmitsSpeechEnded(t *testing.T) {
	m := NewStateMachine(0, 100)
	m.Advance(true, 0)
	m.Advance(true, 0) // min_speech_ms=0 confirms on the next speech chunk
	require.Equal(t, StateSpeechActive, m.State())

	event := m.Advance(false, 50)
	require.Equal(t, EventNone, event)
	require.Equal(t, StateSilencePending, m.State())
	require.True(t, m.IsCapturing())

	event = m.Advance(false, 60)
	require.Equal(t, EventSpeechEnded, event)
	require.Equal(t, StateIdle, m.State())
}

func TestSilencePendingFlipsBackToSpeechActive(t *testing.T) {
	m := NewStateMachine(0, 500)
	m.Advance(true, 0)
	m.Advance(true, 0)
	m.Advance(false, 50)
	require.Equal(t, StateSilencePending, m.State())

	m.Advance(true, 10)
	require.Equal(t, StateSpeechActive, m.State())
}

func TestForceEndFromSpeechActiveEmitsMaxDuration(t *testing.T) {
	m := NewStateMachine(0, 500)
	m.Advance(true, 0)
	m.Advance(true, 0)
	require.Equal(t, StateSpeechActive, m.State())

	event := m.ForceEnd()
	require.Equal(t, EventMaxDurationReached, event)
	require.Equal(t, StateIdle, m.State())
}

func TestForceEndFromIdleEmitsNone(t *testing.T) {
	m := NewStateMachine(0, 500)
	event := m.ForceEnd()
	require.Equal(t, EventNone, event)
	require.Equal(t, StateIdle, m.State())
}

func TestResetReturnsToIdleAndZeroesClock(t *testing.T) {
	m := NewStateMachine(0, 500)
	m.Advance(true, 0)
	m.Reset()
	require.Equal(t, StateIdle, m.State())
	require.False(t, m.IsCapturing())
}
