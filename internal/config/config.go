package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ghostshell/internal/domain"
)

const fileName = "ghost.config.json"

// Config stores runtime configuration for the host process.
type Config struct {
	System      SystemConfig
	Performance PerformanceConfig
	Backend     BackendConfig
	Registry    RegistryConfig
	Voice       VoiceConfig
	Speech      SpeechConfig
	Deepgram    DeepgramConfig
	Audio       AudioConfig
	Rules       RulesConfig
	Recognition RecognitionConfig
	OS          OSConfig
	Web         WebConfig
	Desktop     DesktopConfig

	Mode string
	File string
}

// SystemConfig mirrors the "system" section of ghost.config.json.
type SystemConfig struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Operator    string `json:"operator"`
	StealthMode bool   `json:"stealth_mode"`
}

// PerformanceConfig mirrors the "performance" section of ghost.config.json.
type PerformanceConfig struct {
	PanicLatencyThresholdMs int `json:"panic_latency_threshold_ms"`
}

// PanicLatencyThreshold returns the panic mode latency budget.
func (p PerformanceConfig) PanicLatencyThreshold() time.Duration {
	return time.Duration(p.PanicLatencyThresholdMs) * time.Millisecond
}

type BackendConfig struct {
	BaseURL    string
	OperatorID string
	Context    string
	Timeout    time.Duration
	ProxyAddr  string
}

type RegistryConfig struct {
	URL          string
	PollInterval time.Duration
}

type VoiceConfig struct {
	SilenceThreshold time.Duration
	WakeTokens       []string
	WakePhrase       []string
	Nickname         string
	Language         string
	FallbackPhrase   string
	PermissionNotice string
}

type SpeechConfig struct {
	SayCommand  string
	SayArgs     []string
	PlayCommand string
	PlayArgs    []string
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	SmartFormat bool
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type RulesConfig struct {
	Path           string
	IterationLimit int
}

type RecognitionConfig struct {
	ChunkSize  int
	RestartMin time.Duration
	RestartMax time.Duration
}

type OSConfig struct {
	HelperPath string
}

type WebConfig struct {
	Addr string
	// Origins lists extra browser origins allowed to call the bridge.
	Origins []string
}

// DesktopConfig controls the notification-area icon and start at login.
type DesktopConfig struct {
	Tray         bool
	StartAtLogin bool
}

// GhostConfig returns the payload served by get-ghost-config.
func (c Config) GhostConfig() domain.GhostConfig {
	return domain.GhostConfig{
		Operator: c.System.Operator,
		Version:  c.System.Version,
		Mode:     c.Mode,
	}
}

// Load resolves configuration from ghost.config.json, environment variables
// and defaults. An unreadable config file is logged and replaced by defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	configFile := strings.TrimSpace(os.Getenv("GHOST_CONFIG_FILE"))
	if configFile == "" {
		configFile = firstExisting(fileName, filepath.Join(home, ".config", "ghost", fileName))
	}

	system, performance := defaultSystem(), defaultPerformance()
	if err := loadFile(configFile, &system, &performance); err != nil {
		slog.Error("Config file unreadable, using emergency defaults", "path", configFile, "err", err)
		system, performance = defaultSystem(), defaultPerformance()
	}

	language := envOrDefault("GHOST_LANGUAGE", "pt-BR")

	cfg := Config{
		System:      system,
		Performance: performance,
		Backend: BackendConfig{
			BaseURL:    strings.TrimRight(envOrDefault("GHOST_BACKEND_URL", "http://localhost:8081/api/v1/ghost"), "/"),
			OperatorID: envOrDefault("GHOST_OPERATOR_ID", system.Operator),
			Context:    envOrDefault("GHOST_CONTEXT", "stealth_mode"),
			Timeout:    time.Duration(envOrDefaultInt("GHOST_BACKEND_TIMEOUT_MS", 30000)) * time.Millisecond,
			ProxyAddr:  strings.TrimSpace(os.Getenv("GHOST_PROXY")),
		},
		Registry: RegistryConfig{
			URL:          envOrDefault("GHOST_REGISTRY_URL", "http://localhost:8761/eureka/apps"),
			PollInterval: time.Duration(envOrDefaultInt("GHOST_STATUS_POLL_MS", 5000)) * time.Millisecond,
		},
		Voice: VoiceConfig{
			SilenceThreshold: time.Duration(envOrDefaultInt("GHOST_SILENCE_MS", 1400)) * time.Millisecond,
			WakeTokens:       envOrDefaultList("GHOST_WAKE_WORDS", []string{"ghost", "chrono", "turing", "gör"}),
			WakePhrase:       envOrDefaultList("GHOST_WAKE_PHRASE", []string{"acorda", "papai"}),
			Nickname:         envOrDefault("GHOST_NICKNAME", "Senhor Walker"),
			Language:         language,
			FallbackPhrase:   envOrDefault("GHOST_FALLBACK_PHRASE", "Sem conexão com o núcleo. Estou em modo de espera."),
			PermissionNotice: envOrDefault("GHOST_PERMISSION_NOTICE", "Permissão de microfone negada. Verifique as configurações."),
		},
		Speech: SpeechConfig{
			SayCommand:  envOrDefault("GHOST_SAY_COMMAND", "espeak-ng"),
			SayArgs:     envOrDefaultFields("GHOST_SAY_ARGS", []string{"-v", "pt-br", "-s", "180", "{text}"}),
			PlayCommand: envOrDefault("GHOST_PLAY_COMMAND", "ffplay"),
			PlayArgs:    envOrDefaultFields("GHOST_PLAY_ARGS", []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "{url}"}),
		},
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			SmartFormat: envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("GHOST_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("GHOST_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     firstNonEmpty(os.Getenv("GHOST_AUDIO_INPUT_DEVICE"), "default"),
			SampleRate:      envOrDefaultInt("GHOST_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("GHOST_CHANNELS", 1),
		},
		Rules: RulesConfig{
			Path:           envOrDefault("GHOST_RULES_FILE", filepath.Join(home, ".config", "ghost", "aliases.rules")),
			IterationLimit: envOrDefaultInt("GHOST_RULE_ITERATION_LIMIT", 30),
		},
		Recognition: RecognitionConfig{
			ChunkSize:  envOrDefaultInt("GHOST_AUDIO_CHUNK_SIZE", 4096),
			RestartMin: time.Duration(envOrDefaultInt("GHOST_RESTART_MIN_MS", 500)) * time.Millisecond,
			RestartMax: time.Duration(envOrDefaultInt("GHOST_RESTART_MAX_MS", 30000)) * time.Millisecond,
		},
		OS: OSConfig{HelperPath: strings.TrimSpace(os.Getenv("GHOST_OS_HELPER"))},
		Web: WebConfig{
			Addr:    strings.TrimSpace(os.Getenv("GHOST_WEB_ADDR")),
			Origins: envOrDefaultList("GHOST_WEB_ORIGINS", nil),
		},
		Desktop: DesktopConfig{
			Tray:         envOrDefaultBool("GHOST_TRAY", true),
			StartAtLogin: envOrDefaultBool("GHOST_START_AT_LOGIN", false),
		},
		Mode: envOrDefault("GHOST_MODE", "stealth"),
		File: configFile,
	}

	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}
	if cfg.Registry.PollInterval <= 0 {
		cfg.Registry.PollInterval = 5 * time.Second
	}
	if cfg.Voice.SilenceThreshold <= 0 {
		cfg.Voice.SilenceThreshold = 1400 * time.Millisecond
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	if cfg.Recognition.ChunkSize < 256 {
		cfg.Recognition.ChunkSize = 4096
	}
	if cfg.Recognition.RestartMin <= 0 {
		cfg.Recognition.RestartMin = 500 * time.Millisecond
	}
	if cfg.Recognition.RestartMax < cfg.Recognition.RestartMin {
		cfg.Recognition.RestartMax = cfg.Recognition.RestartMin
	}

	return cfg, nil
}

func defaultSystem() SystemConfig {
	return SystemConfig{Name: "GHOST", Version: "1.0.0", Operator: "Operador", StealthMode: true}
}

func defaultPerformance() PerformanceConfig {
	return PerformanceConfig{PanicLatencyThresholdMs: 500}
}

// loadFile overlays the JSON document at path onto the given sections.
// A missing file is not an error.
func loadFile(path string, system *SystemConfig, performance *PerformanceConfig) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %q: %w", path, err)
	}

	doc := struct {
		System      *SystemConfig      `json:"system"`
		Performance *PerformanceConfig `json:"performance"`
	}{System: system, Performance: performance}
	if err := json.Unmarshal(contents, &doc); err != nil {
		return fmt.Errorf("parse %q: %w", path, err)
	}

	if strings.TrimSpace(system.Operator) == "" {
		system.Operator = defaultSystem().Operator
	}
	if performance.PanicLatencyThresholdMs <= 0 {
		performance.PanicLatencyThresholdMs = defaultPerformance().PanicLatencyThresholdMs
	}
	return nil
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// envOrDefaultList reads a comma separated list.
func envOrDefaultList(key string, fallback []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func envOrDefaultFields(key string, fallback []string) []string {
	fields := strings.Fields(os.Getenv(key))
	if len(fields) == 0 {
		return fallback
	}
	return fields
}
