package osbridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"ghostshell/internal/domain"
	"ghostshell/internal/logging"
	"ghostshell/internal/ports"
)

// ErrUnknownCommand is reported for identifiers outside the action set.
var ErrUnknownCommand = errors.New("unknown os command")

const defaultCommandTimeout = 30 * time.Second

type Config struct {
	GOOS           string
	HelperPath     string
	PanicThreshold time.Duration
	Timeout        time.Duration
}

type runFunc func(ctx context.Context, name string, args ...string) (string, error)

// Bridge runs allowlisted host actions. Every call reports exactly once.
type Bridge struct {
	window    ports.Window
	clipboard ports.Clipboard
	cfg       Config

	events  ports.EventSink
	settled func() domain.VoiceState

	run    runFunc
	exists func(path string) bool
	now    func() time.Time
}

func NewBridge(window ports.Window, clipboard ports.Clipboard, cfg Config) *Bridge {
	if cfg.GOOS == "" {
		cfg.GOOS = runtime.GOOS
	}
	if strings.TrimSpace(cfg.HelperPath) == "" {
		cfg.HelperPath = defaultHelper(cfg.GOOS)
	}
	if cfg.PanicThreshold <= 0 {
		cfg.PanicThreshold = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCommandTimeout
	}
	return &Bridge{
		window:    window,
		clipboard: clipboard,
		cfg:       cfg,
		run:       execRun,
		exists:    helperExists,
		now:       time.Now,
	}
}

// ObservePanic reports the panic protocol to events. settled returns the
// voice state to show once the protocol is over. Call it before Execute.
func (b *Bridge) ObservePanic(events ports.EventSink, settled func() domain.VoiceState) {
	b.events = events
	b.settled = settled
}

// Execute validates identifier and runs it in the background, detached from
// ctx cancellation. reply receives the single result.
func (b *Bridge) Execute(ctx context.Context, identifier string, reply func(domain.OSCommandResult)) {
	if reply == nil {
		reply = func(domain.OSCommandResult) {}
	}

	action, ok := domain.ParseOSAction(identifier)
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownCommand, identifier)
		slog.Error("OS command rejected", "err", err)
		reply(domain.OSCommandResult{Action: identifier, Success: false, Error: err.Error()})
		return
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.Timeout)
	go func() {
		defer cancel()
		if action == domain.OSActionPanicMode {
			reply(b.panicMode(runCtx))
			return
		}
		reply(b.runAction(runCtx, action))
	}()
}

func (b *Bridge) runAction(ctx context.Context, action domain.OSAction) domain.OSCommandResult {
	result := domain.OSCommandResult{Action: string(action)}

	output, err := b.runSteps(ctx, b.steps(action))
	result.Output = output
	if err != nil {
		slog.Error("OS command failed", "action", action, "err", err)
		result.Error = err.Error()
		return result
	}

	slog.Log(ctx, logging.LevelSuccess, "OS command executed", "action", action)
	result.Success = true
	return result
}

func (b *Bridge) panicMode(ctx context.Context) domain.OSCommandResult {
	start := b.now()
	slog.Warn("Emergency protocol engaged")
	b.emitPanic(domain.VoiceStatePanic, domain.VoiceReasonPanicStarted)
	defer func() {
		b.emitPanic(b.settledState(), domain.VoiceReasonPanicFinished)
	}()

	if b.window != nil {
		b.window.Hide()
	}

	_, err := b.runSteps(ctx, b.steps(domain.OSActionPanicMode))
	if b.clipboard != nil {
		if clipErr := b.clipboard.SetText(ctx, ""); clipErr != nil {
			err = errors.Join(err, fmt.Errorf("clear clipboard: %w", clipErr))
		}
	}

	latency := b.now().Sub(start)
	result := domain.OSCommandResult{
		Action:    string(domain.OSActionPanicMode),
		Success:   err == nil,
		LatencyMs: latency.Milliseconds(),
		Status:    domain.PanicStatusDelayed,
	}
	if latency < b.cfg.PanicThreshold {
		result.Status = domain.PanicStatusOptimal
	}

	if err != nil {
		result.Error = err.Error()
		slog.Error("Panic mode finished with errors", "latency_ms", result.LatencyMs, "err", err)
	} else {
		slog.Log(ctx, logging.LevelSuccess, "Panic mode finished", "latency_ms", result.LatencyMs, "status", result.Status)
	}
	return result
}

func (b *Bridge) emitPanic(state domain.VoiceState, reason domain.VoiceStateReason) {
	if b.events != nil {
		b.events.VoiceStateChanged(state, reason)
	}
}

func (b *Bridge) settledState() domain.VoiceState {
	if b.settled == nil {
		return domain.VoiceStateIdle
	}
	return b.settled()
}

func (b *Bridge) steps(action domain.OSAction) []Step {
	spec := commandTable(b.cfg.GOOS, b.cfg.HelperPath)[action]
	hasHelper := b.cfg.HelperPath != "" && b.exists(b.cfg.HelperPath)
	return spec.Steps(hasHelper)
}

// runSteps runs every step in order, stopping at the first intolerable failure.
func (b *Bridge) runSteps(ctx context.Context, steps []Step) (string, error) {
	if len(steps) == 0 {
		return "", errors.New("no command for this platform")
	}

	var out strings.Builder
	for _, step := range steps {
		output, err := b.run(ctx, step.Name, step.Args...)
		out.WriteString(output)
		if err == nil {
			continue
		}
		var exitErr *exec.ExitError
		if step.Tolerant && errors.As(err, &exitErr) {
			slog.Debug("Tolerated step failure", "step", step.Name, "err", err)
			continue
		}
		return strings.TrimSpace(out.String()), fmt.Errorf("%s: %w", step.Name, err)
	}
	return strings.TrimSpace(out.String()), nil
}

func helperExists(path string) bool {
	_, err := exec.LookPath(path)
	return err == nil
}

func execRun(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return string(out), fmt.Errorf("%w: %s", err, msg)
		}
		return string(out), err
	}
	return string(out), nil
}
