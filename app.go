package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"ghostshell/internal/bootstrap"
	"ghostshell/internal/config"
	"ghostshell/internal/domain"
	"ghostshell/internal/logging"
	"ghostshell/internal/login"
	"ghostshell/internal/tray"
	"ghostshell/internal/usecase"
)

const (
	eventVoiceState      = "voice-state"
	eventLiveTranscript  = "live-transcript"
	eventOSCommandResult = "os-command-result"
	eventLogData         = "log-data"
	eventGhostStatus     = "ghost-status"
)

// App is the Wails application root.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	journal     *logging.Journal
	unsubscribe func()
	quitting    atomic.Bool
	// closeToBackground is the stealth_mode setting: closing the window
	// hides it instead of quitting.
	closeToBackground atomic.Bool
	tray              *tray.Icon

	services bootstrap.Services
	bootErr  error
}

func NewApp(journal *logging.Journal) *App {
	return &App{journal: journal}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.journal != nil {
		a.unsubscribe = a.journal.Subscribe(a.logData)
	}

	services, err := bootstrap.Build(bootstrap.Deps{
		Events:    a,
		Window:    wailsWindow{ctx: ctx},
		Clipboard: wailsClipboard{},
		Journal:   a.journal,
	})
	if err != nil {
		a.bootErr = err
		slog.Error("Startup failed", "err", err)
		a.VoiceStateChanged(domain.VoiceStateError, domain.VoiceReasonStandby)
		return
	}
	a.services = services
	a.closeToBackground.Store(services.Config.System.StealthMode)
	a.startDesktop(services.Config)

	go services.Run(runCtx)

	slog.Info("GHOST online",
		"operator", services.Config.System.Operator,
		"version", services.Config.System.Version,
		"mode", services.Config.Mode,
	)
	a.VoiceStateChanged(domain.VoiceStateIdle, domain.VoiceReasonStandby)

	if err := services.Controller.Start(runCtx); err != nil {
		slog.Warn("Listening did not start", "err", err)
	}
}

// startDesktop shows the tray icon and applies the start at login setting.
func (a *App) startDesktop(cfg config.Config) {
	if cfg.Desktop.Tray && tray.Supported() {
		a.tray = tray.Start(trayIdentity(cfg), tray.Actions{Show: a.ShowMainWindow, Quit: a.Quit})
	}
	if err := login.Sync(cfg.Desktop.StartAtLogin); err != nil {
		slog.Warn("Start at login not updated", "err", err)
	}
}

func trayIdentity(cfg config.Config) tray.Identity {
	return tray.Identity{
		Name:     cfg.System.Name,
		Version:  cfg.System.Version,
		Operator: cfg.System.Operator,
	}
}

// beforeClose hides the window instead of closing it in stealth mode,
// unless Quit was called.
func (a *App) beforeClose(ctx context.Context) bool {
	if a.quitting.Load() || !a.closeToBackground.Load() {
		return false
	}
	runtime.WindowHide(ctx)
	return true
}

func (a *App) shutdown(ctx context.Context) {
	if a.services.Controller != nil {
		if err := a.services.Controller.Stop(); err != nil && !errors.Is(err, usecase.ErrNotListening) {
			slog.Warn("Listening stop failed", "err", err)
		}
	}
	if a.services.Speaker != nil {
		a.services.Speaker.Cancel()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.services.Host != nil {
		a.services.Host.Shutdown()
	}
	a.tray.Stop()
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
}

// ShowMainWindow brings the window back.
func (a *App) ShowMainWindow() {
	if a.requireReady() == nil {
		a.services.Host.ShowWindow()
	}
}

// HideMainWindow hides the window; the process keeps running.
func (a *App) HideMainWindow() {
	if a.requireReady() == nil {
		a.services.Host.HideWindow()
	}
}

// ExecuteOSCommand runs an allowlisted action. The result arrives as an
// os-command-result event.
func (a *App) ExecuteOSCommand(identifier string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Host.ExecuteOSCommand(a.ctx, identifier, a.OSCommandResult)
	return nil
}

// GetGhostConfig returns the read-only identity shown by the UI.
func (a *App) GetGhostConfig() (domain.GhostConfig, error) {
	if err := a.requireReady(); err != nil {
		return domain.GhostConfig{}, err
	}
	return a.services.Host.GhostConfig(), nil
}

// CheckGhostStatus probes the service registry once.
func (a *App) CheckGhostStatus() domain.NetworkStatus {
	if a.requireReady() != nil {
		return domain.NetworkOffline
	}
	return a.services.Host.CheckStatus(a.ctx)
}

// StartListening begins the hands-free loop.
func (a *App) StartListening() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.Start(a.ctx); err != nil {
		return domain.Status{}, err
	}
	return a.services.Controller.Status(), nil
}

// StopListening ends the loop and silences any speech.
func (a *App) StopListening() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.Stop(); err != nil && !errors.Is(err, usecase.ErrNotListening) {
		return domain.Status{}, err
	}
	return a.services.Controller.Status(), nil
}

// GetStatus returns the current voice pipeline status.
func (a *App) GetStatus() domain.Status {
	if a.services.Controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.VoiceStateError, Active: false, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.VoiceStateIdle, Active: false}
	}
	return a.services.Controller.Status()
}

// GetRecentLogs returns the log lines the overlay may show right now.
func (a *App) GetRecentLogs() []domain.LogEntry {
	if a.services.Host != nil {
		return a.services.Host.RecentLogs()
	}
	if a.journal != nil {
		return a.journal.Visible()
	}
	return nil
}

// Quit exits for real, bypassing hide-on-close.
func (a *App) Quit() {
	a.quitting.Store(true)
	if a.ctx != nil {
		runtime.Quit(a.ctx)
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services.Host == nil || a.services.Controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// VoiceStateChanged emits pipeline state to the frontend.
func (a *App) VoiceStateChanged(state domain.VoiceState, reason domain.VoiceStateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventVoiceState, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": voiceReasonMessage(reason),
	})
}

// LiveTranscript emits the in-progress utterance.
func (a *App) LiveTranscript(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventLiveTranscript, text)
}

func (a *App) OSCommandResult(result domain.OSCommandResult) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventOSCommandResult, result)
}

func (a *App) NetworkStatusChanged(status domain.NetworkStatus) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventGhostStatus, status)
}

func (a *App) logData(entry domain.LogEntry) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventLogData, entry)
}

func voiceReasonMessage(reason domain.VoiceStateReason) string {
	switch reason {
	case domain.VoiceReasonStandby:
		return "Standby"
	case domain.VoiceReasonListeningStarted:
		return "Listening"
	case domain.VoiceReasonListeningStopped:
		return "Listening stopped"
	case domain.VoiceReasonPermissionDenied:
		return "Microphone access denied"
	case domain.VoiceReasonHearing:
		return "Hearing"
	case domain.VoiceReasonFinalizing:
		return "Processing utterance"
	case domain.VoiceReasonUtteranceDiscarded:
		return "Ignored (no wake word)"
	case domain.VoiceReasonAcknowledged:
		return "Awaiting command"
	case domain.VoiceReasonGreeted:
		return "Greeting"
	case domain.VoiceReasonDispatching:
		return "Contacting core"
	case domain.VoiceReasonReplySpoken:
		return "Reply delivered"
	case domain.VoiceReasonDispatchFailed:
		return "Core unreachable"
	case domain.VoiceReasonPanicStarted:
		return "Panic protocol engaged"
	case domain.VoiceReasonPanicFinished:
		return "Panic protocol finished"
	default:
		return ""
	}
}

type wailsWindow struct {
	ctx context.Context
}

func (w wailsWindow) Show() {
	runtime.WindowShow(w.ctx)
	runtime.WindowUnminimise(w.ctx)
}

func (w wailsWindow) Hide() {
	runtime.WindowHide(w.ctx)
}

type wailsClipboard struct{}

func (wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
