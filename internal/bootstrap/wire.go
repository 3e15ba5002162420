package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"ghostshell/internal/audio"
	"ghostshell/internal/backend"
	"ghostshell/internal/config"
	"ghostshell/internal/domain"
	"ghostshell/internal/host"
	"ghostshell/internal/logging"
	"ghostshell/internal/osbridge"
	"ghostshell/internal/ports"
	"ghostshell/internal/providers/deepgram"
	"ghostshell/internal/proxy"
	"ghostshell/internal/registry"
	"ghostshell/internal/rules"
	"ghostshell/internal/speech"
	"ghostshell/internal/usecase"
	"ghostshell/internal/webbridge"
)

// Deps are the pieces only the desktop shell can provide.
type Deps struct {
	Events    ports.EventSink
	Window    ports.Window
	Clipboard ports.Clipboard
	Journal   *logging.Journal
}

// Services is the assembled runtime graph.
type Services struct {
	Config     config.Config
	Controller *usecase.VoiceController
	Host       *host.Host
	Monitor    *registry.Monitor
	Speaker    *speech.Synthesizer
	// Web is nil unless GHOST_WEB_ADDR is set.
	Web *webbridge.Server
}

// Build wires all dependencies for the current runtime.
func Build(deps Deps) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	backendHTTP, err := proxy.NewHTTPClient(cfg.Backend.ProxyAddr, cfg.Backend.Timeout)
	if err != nil {
		return Services{}, fmt.Errorf("backend transport: %w", err)
	}
	registryHTTP, err := proxy.NewHTTPClient(cfg.Backend.ProxyAddr, cfg.Registry.PollInterval)
	if err != nil {
		return Services{}, fmt.Errorf("registry transport: %w", err)
	}
	dial, err := proxy.NewDialer(cfg.Backend.ProxyAddr)
	if err != nil {
		return Services{}, fmt.Errorf("recognition transport: %w", err)
	}

	core, err := backend.NewClient(cfg.Backend.BaseURL, backendHTTP)
	if err != nil {
		return Services{}, err
	}

	aliases, err := rules.Load(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		slog.Error("Alias rules ignored", "err", err)
		aliases, _ = rules.Parse("")
	} else if aliases.Len() > 0 {
		slog.Info("Alias rules loaded", "path", cfg.Rules.Path, "count", aliases.Len())
	}

	speaker := speech.NewSynthesizer(speech.Config{
		SayCommand:  cfg.Speech.SayCommand,
		SayArgs:     cfg.Speech.SayArgs,
		PlayCommand: cfg.Speech.PlayCommand,
		PlayArgs:    cfg.Speech.PlayArgs,
	})

	bridge := osbridge.NewBridge(deps.Window, deps.Clipboard, osbridge.Config{
		HelperPath:     cfg.OS.HelperPath,
		PanicThreshold: cfg.Performance.PanicLatencyThreshold(),
	})
	checker := registry.NewChecker(cfg.Registry.URL, registryHTTP)
	app := host.New(cfg.GhostConfig(), deps.Window, bridge, checker, deps.Journal)

	sinks := fanout{}
	if deps.Events != nil {
		sinks = append(sinks, deps.Events)
	}
	var web *webbridge.Server
	if cfg.Web.Addr != "" {
		var logs webbridge.LogSource
		if deps.Journal != nil {
			logs = deps.Journal
		}
		web = webbridge.New(app, logs, cfg.Web.Origins)
		sinks = append(sinks, web)
	}

	dispatcher := usecase.NewDispatcher(core, speaker, bridge, sinks, usecase.DispatcherConfig{
		OperatorID:     cfg.Backend.OperatorID,
		ClientSource:   domain.ClientSourceDesktop,
		Context:        cfg.Backend.Context,
		FallbackPhrase: cfg.Voice.FallbackPhrase,
	})
	gate := usecase.NewWakeGate(usecase.GateConfig{
		WakeTokens: cfg.Voice.WakeTokens,
		WakePhrase: cfg.Voice.WakePhrase,
		Nickname:   cfg.Voice.Nickname,
	})

	controller := usecase.NewVoiceController(
		audio.NewMicrophone(cfg.Audio.RecorderCommand),
		deepgram.NewProvider(deepgram.Config{
			APIKey:         cfg.Deepgram.APIKey,
			APIBaseURL:     cfg.Deepgram.APIBaseURL,
			Model:          cfg.Deepgram.Model,
			Language:       cfg.Voice.Language,
			SmartFormat:    cfg.Deepgram.SmartFormat,
			NetDialContext: dial,
		}),
		aliases,
		gate,
		dispatcher,
		speaker,
		sinks,
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				Language:       cfg.Voice.Language,
				InterimResults: true,
			},
			ChunkSize:        cfg.Recognition.ChunkSize,
			SilenceThreshold: cfg.Voice.SilenceThreshold,
			RestartMin:       cfg.Recognition.RestartMin,
			RestartMax:       cfg.Recognition.RestartMax,
			PermissionNotice: cfg.Voice.PermissionNotice,
		},
	)

	bridge.ObservePanic(sinks, func() domain.VoiceState { return controller.Status().State })

	monitor := registry.NewMonitor(checker, sinks, speaker, registry.MonitorConfig{
		Interval: cfg.Registry.PollInterval,
		Nickname: cfg.Voice.Nickname,
	})

	return Services{
		Config:     cfg,
		Controller: controller,
		Host:       app,
		Monitor:    monitor,
		Speaker:    speaker,
		Web:        web,
	}, nil
}

// Run starts the background loops and blocks until ctx is done.
func (s Services) Run(ctx context.Context) {
	var wg sync.WaitGroup

	if s.Monitor != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Monitor.Run(ctx)
		}()
	}
	if s.Web != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Web.Run(ctx, s.Config.Web.Addr); err != nil {
				slog.Error("Web bridge stopped", "err", err)
			}
		}()
	}

	wg.Wait()
}

// fanout forwards every event to each sink in order.
type fanout []ports.EventSink

func (f fanout) VoiceStateChanged(state domain.VoiceState, reason domain.VoiceStateReason) {
	for _, sink := range f {
		sink.VoiceStateChanged(state, reason)
	}
}

func (f fanout) LiveTranscript(text string) {
	for _, sink := range f {
		sink.LiveTranscript(text)
	}
}

func (f fanout) OSCommandResult(result domain.OSCommandResult) {
	for _, sink := range f {
		sink.OSCommandResult(result)
	}
}

func (f fanout) NetworkStatusChanged(status domain.NetworkStatus) {
	for _, sink := range f {
		sink.NetworkStatusChanged(status)
	}
}
