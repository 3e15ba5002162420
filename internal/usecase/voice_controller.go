package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ghostshell/internal/domain"
	"ghostshell/internal/ports"
)

var ErrNotListening = errors.New("voice pipeline is not listening")

// Config controls continuous listening behavior.
type Config struct {
	Audio            ports.AudioConfig
	Streaming        ports.StreamingConfig
	ChunkSize        int
	SilenceThreshold time.Duration
	RestartMin       time.Duration
	RestartMax       time.Duration
	StreamingGrace   time.Duration
	PermissionNotice string
}

// VoiceController supervises the recognition loop and drives every
// finalized utterance through the wake gate and the dispatcher.
type VoiceController struct {
	audio      ports.AudioCapture
	provider   ports.RecognitionProvider
	normalizer ports.Normalizer
	gate       *WakeGate
	dispatcher *Dispatcher
	speaker    ports.Speaker
	events     ports.EventSink
	cfg        Config

	after afterFunc
	sleep func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	current    *listeningSession
	state      domain.VoiceState
	transcript string
	message    string
}

func NewVoiceController(
	audio ports.AudioCapture,
	provider ports.RecognitionProvider,
	normalizer ports.Normalizer,
	gate *WakeGate,
	dispatcher *Dispatcher,
	speaker ports.Speaker,
	events ports.EventSink,
	cfg Config,
) *VoiceController {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.StreamingGrace <= 0 {
		cfg.StreamingGrace = 4 * time.Second
	}
	if cfg.PermissionNotice == "" {
		cfg.PermissionNotice = "Permissão de microfone negada. Verifique as configurações."
	}
	return &VoiceController{
		audio:      audio,
		provider:   provider,
		normalizer: normalizer,
		gate:       gate,
		dispatcher: dispatcher,
		speaker:    speaker,
		events:     events,
		cfg:        cfg,
		after:      realAfterFunc,
		sleep:      sleepContext,
		state:      domain.VoiceStateIdle,
	}
}

// Start begins listening. Calling Start while already listening is a no-op.
func (c *VoiceController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return nil
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	session := &listeningSession{
		ctx:    sessionCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	session.aggregator = newUtteranceAggregator(c.cfg.SilenceThreshold, c.after, func(text string) {
		c.handleUtterance(session, text)
	})

	c.current = session
	c.state = domain.VoiceStateListening
	c.transcript = ""
	c.message = ""
	c.mu.Unlock()

	slog.Info("Listening started")
	c.events.VoiceStateChanged(domain.VoiceStateListening, domain.VoiceReasonListeningStarted)
	go c.supervise(session)
	return nil
}

// Stop ends listening, cancels any in-flight dispatch and silences the speaker.
func (c *VoiceController) Stop() error {
	c.mu.Lock()
	session := c.current
	if session == nil {
		c.mu.Unlock()
		return ErrNotListening
	}
	c.current = nil
	c.state = domain.VoiceStateIdle
	c.transcript = ""
	c.mu.Unlock()

	session.cancel()
	session.aggregator.Reset()
	c.speaker.Cancel()
	<-session.done

	slog.Info("Listening stopped")
	c.events.VoiceStateChanged(domain.VoiceStateIdle, domain.VoiceReasonListeningStopped)
	c.events.LiveTranscript("")
	return nil
}

// Status returns the current pipeline status.
func (c *VoiceController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.Status{
		State:      c.state,
		Active:     c.current != nil,
		Transcript: c.transcript,
		Message:    c.message,
	}
}

func (c *VoiceController) supervise(session *listeningSession) {
	defer close(session.done)

	retry := newBackoff(c.cfg.RestartMin, c.cfg.RestartMax)
	for {
		heard, err := c.runRound(session)
		if session.ctx.Err() != nil {
			return
		}
		if errors.Is(err, ports.ErrPermissionDenied) {
			c.fail(session, err)
			return
		}

		if heard || err == nil {
			retry.Reset()
		}
		delay := retry.Next()
		if err != nil {
			slog.Warn("Recognition interrupted, restarting", "err", err, "delay", delay)
		} else {
			slog.Debug("Recognition round ended, restarting", "delay", delay)
		}

		if err := c.sleep(session.ctx, delay); err != nil {
			return
		}
	}
}

// runRound runs one recognition stream and reports whether any fragment
// arrived before it ended.
func (c *VoiceController) runRound(session *listeningSession) (bool, error) {
	stream, err := c.provider.StartStreaming(session.ctx, c.cfg.Streaming)
	if err != nil {
		return false, fmt.Errorf("start recognition: %w", err)
	}

	audio, err := c.audio.Start(session.ctx, c.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		return false, fmt.Errorf("start capture: %w", err)
	}

	pumpErr := make(chan error, 1)
	go func() {
		pumpErr <- pumpAudioChunks(audio, stream, c.cfg.ChunkSize)
	}()

	var (
		heard     bool
		audioErr  error
		pumpEnded bool
	)
	fragments := stream.Fragments()

loop:
	for {
		select {
		case <-session.ctx.Done():
			break loop
		case audioErr = <-pumpErr:
			pumpEnded = true
			break loop
		case fragment, ok := <-fragments:
			if !ok {
				break loop
			}
			heard = true
			c.onFragment(session, fragment)
		}
	}

	stopErr := audio.Stop()
	if !pumpEnded {
		audioErr = <-pumpErr
	}
	_ = stream.CloseSend()
	streamErr := waitForStream(stream, c.cfg.StreamingGrace)

	if session.ctx.Err() == nil {
		for fragment := range fragments {
			heard = true
			c.onFragment(session, fragment)
		}
	}
	_ = stream.Close()

	return heard, errors.Join(streamErr, audioErr, stopErr)
}

func (c *VoiceController) onFragment(session *listeningSession, fragment domain.RecognitionFragment) {
	live := session.aggregator.Add(fragment)

	c.mu.Lock()
	if c.current == session {
		c.transcript = live
	}
	c.mu.Unlock()

	c.events.LiveTranscript(live)
	c.transition(session, phaseBuffering, domain.VoiceReasonHearing, phaseIdle)
}

func (c *VoiceController) handleUtterance(session *listeningSession, raw string) {
	// A session that is dispatching or speaking keeps its phase until the
	// reply ends; only a new turn may take it over.
	c.transition(session, phaseFinalizing, domain.VoiceReasonFinalizing, phaseIdle, phaseBuffering)

	text := raw
	if c.normalizer != nil {
		normalized, err := c.normalizer.Apply(raw)
		if err != nil {
			slog.Warn("Alias rules failed, using raw utterance", "err", err)
		} else {
			text = normalized
		}
	}

	result := c.gate.Evaluate(text)
	slog.Debug("Utterance gated", "utterance", text, "decision", result.Decision.String())

	switch result.Decision {
	case GateAcknowledge, GateGreeting:
		reason := domain.VoiceReasonAcknowledged
		if result.Decision == GateGreeting {
			reason = domain.VoiceReasonGreeted
		}
		c.reply(session, result.Reply, reason)
	case GateCommand:
		turn, ok := c.beginTurn(session, phaseDispatching, domain.VoiceReasonDispatching)
		if !ok {
			return
		}
		err := c.dispatcher.Dispatch(session.ctx, result.Command, DispatchProgress{
			Speaking: func(reason domain.VoiceStateReason) {
				c.advanceTurn(session, turn, phaseSpeaking, reason)
			},
			Settled: func(reason domain.VoiceStateReason) {
				c.advanceTurn(session, turn, phaseIdle, reason)
			},
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Command dispatch failed", "command", result.Command, "err", err)
		}
	default:
		c.transition(session, phaseIdle, domain.VoiceReasonUtteranceDiscarded, phaseFinalizing)
	}
}

// reply speaks a locally generated answer as a new turn.
func (c *VoiceController) reply(session *listeningSession, text string, reason domain.VoiceStateReason) {
	turn, ok := c.beginTurn(session, phaseSpeaking, reason)
	if !ok {
		return
	}
	c.speaker.Speak(domain.Utterance{Text: text}, func() {
		c.advanceTurn(session, turn, phaseIdle, domain.VoiceReasonReplySpoken)
	})
	// Stop may have run between beginTurn and Speak.
	if session.ctx.Err() != nil {
		c.speaker.Cancel()
	}
}

// beginTurn starts a new dispatch or reply, superseding the previous one.
// It refuses once the session was stopped.
func (c *VoiceController) beginTurn(session *listeningSession, phase sessionPhase, reason domain.VoiceStateReason) (uint64, bool) {
	c.mu.Lock()
	if c.current != session || session.ctx.Err() != nil {
		c.mu.Unlock()
		return 0, false
	}
	session.turn++
	turn := session.turn
	session.phase = phase
	state := phase.voiceState()
	c.state = state
	c.mu.Unlock()

	c.events.VoiceStateChanged(state, reason)
	return turn, true
}

// advanceTurn moves session to phase only while turn is still the latest.
func (c *VoiceController) advanceTurn(session *listeningSession, turn uint64, phase sessionPhase, reason domain.VoiceStateReason) {
	c.mu.Lock()
	if c.current != session || session.turn != turn || session.phase == phase {
		c.mu.Unlock()
		return
	}
	session.phase = phase
	state := phase.voiceState()
	c.state = state
	c.mu.Unlock()

	c.events.VoiceStateChanged(state, reason)
}

// transition moves session to phase and emits the visible state. When from
// is given the move only happens out of one of those phases.
func (c *VoiceController) transition(session *listeningSession, phase sessionPhase, reason domain.VoiceStateReason, from ...sessionPhase) {
	c.mu.Lock()
	if c.current != session || session.phase == phase || !phaseIn(session.phase, from) {
		c.mu.Unlock()
		return
	}
	session.phase = phase
	state := phase.voiceState()
	c.state = state
	c.mu.Unlock()

	c.events.VoiceStateChanged(state, reason)
}

func (c *VoiceController) fail(session *listeningSession, err error) {
	c.mu.Lock()
	if c.current != session {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.state = domain.VoiceStateError
	c.transcript = ""
	c.message = "microphone permission denied"
	c.mu.Unlock()

	session.aggregator.Reset()
	session.cancel()

	slog.Error("Microphone permission denied", "err", err)
	c.events.VoiceStateChanged(domain.VoiceStateError, domain.VoiceReasonPermissionDenied)
	c.speaker.Speak(domain.Utterance{Text: c.cfg.PermissionNotice}, nil)
}

func phaseIn(phase sessionPhase, set []sessionPhase) bool {
	if len(set) == 0 {
		return true
	}
	for _, candidate := range set {
		if phase == candidate {
			return true
		}
	}
	return false
}
