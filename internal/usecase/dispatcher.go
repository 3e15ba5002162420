package usecase

import (
	"context"
	"log/slog"
	"strings"

	"ghostshell/internal/domain"
	"ghostshell/internal/logging"
	"ghostshell/internal/ports"
)

type DispatcherConfig struct {
	OperatorID     string
	ClientSource   domain.ClientSource
	Context        string
	FallbackPhrase string
}

// DispatchProgress observes a dispatch. Speaking runs right before the reply
// is handed to the speaker, Settled once it finished playing.
type DispatchProgress struct {
	Speaking func(reason domain.VoiceStateReason)
	Settled  func(reason domain.VoiceStateReason)
}

func (p DispatchProgress) speaking(reason domain.VoiceStateReason) {
	if p.Speaking != nil {
		p.Speaking(reason)
	}
}

func (p DispatchProgress) settled(reason domain.VoiceStateReason) {
	if p.Settled != nil {
		p.Settled(reason)
	}
}

// Dispatcher forwards gated commands to the backend, speaks the reply and
// hands OS directives to the bridge.
type Dispatcher struct {
	backend ports.Backend
	speaker ports.Speaker
	bridge  ports.OSBridge
	events  ports.EventSink
	cfg     DispatcherConfig
}

func NewDispatcher(
	backend ports.Backend,
	speaker ports.Speaker,
	bridge ports.OSBridge,
	events ports.EventSink,
	cfg DispatcherConfig,
) *Dispatcher {
	if cfg.ClientSource == "" {
		cfg.ClientSource = domain.ClientSourceDesktop
	}
	if strings.TrimSpace(cfg.FallbackPhrase) == "" {
		cfg.FallbackPhrase = "Sem conexão com o núcleo. Estou em modo de espera."
	}
	return &Dispatcher{
		backend: backend,
		speaker: speaker,
		bridge:  bridge,
		events:  events,
		cfg:     cfg,
	}
}

// Dispatch sends command to the backend. Failures are absorbed into the
// spoken fallback phrase and returned for logging only. Nothing is spoken
// once ctx is cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, command string, progress DispatchProgress) error {
	req := domain.CommandRequest{
		Command:      command,
		OperatorID:   d.cfg.OperatorID,
		ClientSource: d.cfg.ClientSource,
		Context:      d.cfg.Context,
	}

	slog.Info("Sending command", "command", command)
	resp, err := d.backend.Interact(ctx, req)
	if ctx.Err() != nil {
		slog.Debug("Dispatch abandoned after stop", "command", command)
		return ctx.Err()
	}
	if err != nil {
		slog.Warn("Backend unreachable", "err", err)
		d.say(domain.Utterance{Text: d.cfg.FallbackPhrase}, domain.VoiceReasonDispatchFailed, progress)
		return err
	}

	slog.Log(ctx, logging.LevelSuccess, "Backend replied", "osCommand", resp.OSCommand)

	if action := strings.TrimSpace(resp.OSCommand); action != "" && d.bridge != nil {
		d.bridge.Execute(ctx, action, d.reportOSResult)
	}

	d.say(domain.Utterance{Text: resp.ReplyText, AudioURL: resp.AudioURL}, domain.VoiceReasonReplySpoken, progress)
	return nil
}

func (d *Dispatcher) say(utterance domain.Utterance, reason domain.VoiceStateReason, progress DispatchProgress) {
	if utterance.Empty() {
		progress.settled(reason)
		return
	}
	progress.speaking(reason)
	d.speaker.Speak(utterance, func() {
		progress.settled(reason)
	})
}

func (d *Dispatcher) reportOSResult(result domain.OSCommandResult) {
	if d.events != nil {
		d.events.OSCommandResult(result)
	}
}
