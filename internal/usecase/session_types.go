package usecase

import (
	"context"

	"ghostshell/internal/domain"
)

// sessionPhase is the internal pipeline phase. Idle, buffering and
// finalizing surface as listening; dispatching and speaking as processing.
type sessionPhase int

const (
	phaseIdle sessionPhase = iota
	phaseBuffering
	phaseFinalizing
	phaseDispatching
	phaseSpeaking
)

func (p sessionPhase) voiceState() domain.VoiceState {
	switch p {
	case phaseDispatching, phaseSpeaking:
		return domain.VoiceStateProcessing
	default:
		return domain.VoiceStateListening
	}
}

type listeningSession struct {
	ctx    context.Context
	cancel context.CancelFunc

	aggregator *utteranceAggregator
	done       chan struct{}

	// phase and turn are guarded by the controller mutex. turn counts
	// dispatches and replies; a stale turn cannot settle the session.
	phase sessionPhase
	turn  uint64
}
