package domain

import "strings"

// VoiceState is the only signal the capture/dispatch pipeline exposes to the UI.
type VoiceState string

const (
	VoiceStateIdle       VoiceState = "idle"
	VoiceStateListening  VoiceState = "listening"
	VoiceStateProcessing VoiceState = "processing"
	VoiceStatePanic      VoiceState = "panic"
	VoiceStateError      VoiceState = "error"
)

// VoiceStateReason provides a structured reason for state transitions.
type VoiceStateReason string

const (
	VoiceReasonStandby            VoiceStateReason = "standby"
	VoiceReasonListeningStarted   VoiceStateReason = "listening_started"
	VoiceReasonListeningStopped   VoiceStateReason = "listening_stopped"
	VoiceReasonPermissionDenied   VoiceStateReason = "permission_denied"
	VoiceReasonHearing            VoiceStateReason = "hearing"
	VoiceReasonFinalizing         VoiceStateReason = "finalizing"
	VoiceReasonUtteranceDiscarded VoiceStateReason = "utterance_discarded"
	VoiceReasonAcknowledged       VoiceStateReason = "acknowledged"
	VoiceReasonGreeted            VoiceStateReason = "greeted"
	VoiceReasonDispatching        VoiceStateReason = "dispatching"
	VoiceReasonReplySpoken        VoiceStateReason = "reply_spoken"
	VoiceReasonDispatchFailed     VoiceStateReason = "dispatch_failed"
	VoiceReasonPanicStarted       VoiceStateReason = "panic_started"
	VoiceReasonPanicFinished      VoiceStateReason = "panic_finished"
)

// RecognitionFragment is one result from the streaming recognizer.
type RecognitionFragment struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

// ClientSource tells the backend which kind of client issued a command.
type ClientSource string

const (
	ClientSourceDesktop ClientSource = "ELECTRON"
	ClientSourceWeb     ClientSource = "WEB"
)

// CommandRequest is the body of POST /interact.
type CommandRequest struct {
	Command      string       `json:"command"`
	OperatorID   string       `json:"operatorId"`
	ClientSource ClientSource `json:"clientSource"`
	Context      string       `json:"context"`
}

// CommandResponse is the decoded backend reply.
type CommandResponse struct {
	ReplyText string
	AudioURL  string
	OSCommand string
}

// Utterance is something to be said out loud, either synthesized from text
// or played from a backend-rendered audio file.
type Utterance struct {
	Text     string
	AudioURL string
}

// Empty reports whether there is nothing to say.
func (u Utterance) Empty() bool {
	return strings.TrimSpace(u.Text) == "" && strings.TrimSpace(u.AudioURL) == ""
}

// OSAction is the closed set of privileged host actions.
type OSAction string

const (
	OSActionPanicMode  OSAction = "PANIC_MODE"
	OSActionVolumeUp   OSAction = "VOLUME_UP"
	OSActionVolumeDown OSAction = "VOLUME_DOWN"
	OSActionVolumeMute OSAction = "VOLUME_MUTE"
)

// ParseOSAction accepts only identifiers from the closed set.
func ParseOSAction(identifier string) (OSAction, bool) {
	switch action := OSAction(strings.TrimSpace(identifier)); action {
	case OSActionPanicMode, OSActionVolumeUp, OSActionVolumeDown, OSActionVolumeMute:
		return action, true
	default:
		return "", false
	}
}

// PanicStatus classifies panic mode latency.
type PanicStatus string

const (
	PanicStatusOptimal PanicStatus = "OPTIMAL"
	PanicStatusDelayed PanicStatus = "DELAYED"
)

// OSCommandResult is reported once per execute-os-command invocation.
type OSCommandResult struct {
	Action    string      `json:"action"`
	Success   bool        `json:"success"`
	Output    string      `json:"output,omitempty"`
	Error     string      `json:"error,omitempty"`
	LatencyMs int64       `json:"latency,omitempty"`
	Status    PanicStatus `json:"status,omitempty"`
}

// GhostConfig is the read-only payload of get-ghost-config.
type GhostConfig struct {
	Operator string `json:"operator"`
	Version  string `json:"version"`
	Mode     string `json:"mode"`
}

// NetworkStatus is the service registry reachability.
type NetworkStatus string

const (
	NetworkOnline  NetworkStatus = "ONLINE"
	NetworkOffline NetworkStatus = "OFFLINE"
)

// LogLevel is the UI classification of a log line.
type LogLevel string

const (
	LogInfo    LogLevel = "INFO"
	LogWarn    LogLevel = "WARN"
	LogError   LogLevel = "ERROR"
	LogSuccess LogLevel = "SUCCESS"
)

// LogEntry is the payload of log-data.
type LogEntry struct {
	ID        string   `json:"id"`
	Msg       string   `json:"msg"`
	Type      LogLevel `json:"type"`
	Timestamp string   `json:"timestamp"`
}

// Status summarizes the current voice pipeline status.
type Status struct {
	State      VoiceState `json:"state"`
	Active     bool       `json:"active"`
	Transcript string     `json:"transcript,omitempty"`
	Message    string     `json:"message,omitempty"`
}
