package host

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ghostshell/internal/domain"
	"ghostshell/internal/logging"
	"ghostshell/internal/ports"
)

// ErrResultTimeout is returned when an OS command never reported back.
var ErrResultTimeout = errors.New("os command result timed out")

const resultWait = 35 * time.Second

// StatusChecker probes the service registry.
type StatusChecker interface {
	Check(ctx context.Context) domain.NetworkStatus
}

// Host is the application context shared by the desktop bindings and the
// web bridge.
type Host struct {
	ghost   domain.GhostConfig
	window  ports.Window
	bridge  ports.OSBridge
	checker StatusChecker
	journal *logging.Journal

	resultWait time.Duration
}

func New(
	ghost domain.GhostConfig,
	window ports.Window,
	bridge ports.OSBridge,
	checker StatusChecker,
	journal *logging.Journal,
) *Host {
	return &Host{
		ghost:      ghost,
		window:     window,
		bridge:     bridge,
		checker:    checker,
		journal:    journal,
		resultWait: resultWait,
	}
}

func (h *Host) ShowWindow() {
	if h.window != nil {
		h.window.Show()
	}
}

func (h *Host) HideWindow() {
	if h.window != nil {
		h.window.Hide()
	}
}

// GhostConfig is read-only; every call returns the same value.
func (h *Host) GhostConfig() domain.GhostConfig {
	return h.ghost
}

func (h *Host) CheckStatus(ctx context.Context) domain.NetworkStatus {
	if h.checker == nil {
		return domain.NetworkOffline
	}
	return h.checker.Check(ctx)
}

// ExecuteOSCommand hands identifier to the bridge; reply is called once.
func (h *Host) ExecuteOSCommand(ctx context.Context, identifier string, reply func(domain.OSCommandResult)) {
	if h.bridge == nil {
		slog.Error("OS bridge unavailable", "command", identifier)
		if reply != nil {
			reply(domain.OSCommandResult{Action: identifier, Error: "os bridge unavailable"})
		}
		return
	}
	h.bridge.Execute(ctx, identifier, reply)
}

// RunOSCommand executes identifier and waits for its result.
func (h *Host) RunOSCommand(ctx context.Context, identifier string) (domain.OSCommandResult, error) {
	results := make(chan domain.OSCommandResult, 1)
	h.ExecuteOSCommand(ctx, identifier, func(result domain.OSCommandResult) {
		select {
		case results <- result:
		default:
		}
	})

	timer := time.NewTimer(h.resultWait)
	defer timer.Stop()

	select {
	case result := <-results:
		return result, nil
	case <-timer.C:
		return domain.OSCommandResult{Action: identifier}, ErrResultTimeout
	case <-ctx.Done():
		return domain.OSCommandResult{Action: identifier}, ctx.Err()
	}
}

// RecentLogs returns the lines the UI is allowed to show right now.
func (h *Host) RecentLogs() []domain.LogEntry {
	if h.journal == nil {
		return nil
	}
	return h.journal.Visible()
}

// Shutdown wipes the in-memory log trail.
func (h *Host) Shutdown() {
	slog.Warn("Shutting down, purging volatile logs")
	if h.journal != nil {
		h.journal.Purge()
	}
}
