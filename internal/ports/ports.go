package ports

import (
	"context"
	"errors"
	"io"

	"ghostshell/internal/domain"
)

// ErrPermissionDenied marks a recognition failure that retrying cannot fix:
// the microphone or the recognizer credentials were refused.
var ErrPermissionDenied = errors.New("permission denied")

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic recognition settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	Language       string
	InterimResults bool
}

// StreamingSession is one recognition round.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Fragments() <-chan domain.RecognitionFragment
	Wait() error
	Close() error
}

// RecognitionProvider starts continuous recognition rounds.
type RecognitionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// Normalizer rewrites a finalized utterance before it is gated.
type Normalizer interface {
	Apply(text string) (string, error)
}

// Backend forwards commands to the remote assistant core.
type Backend interface {
	Interact(ctx context.Context, req domain.CommandRequest) (domain.CommandResponse, error)
}

// Speaker plays one utterance at a time. onEnd is called only when the
// utterance finished without being superseded or cancelled.
type Speaker interface {
	Speak(utterance domain.Utterance, onEnd func())
	Cancel()
	Speaking() bool
}

// OSBridge runs privileged host actions and reports exactly once per call.
type OSBridge interface {
	Execute(ctx context.Context, identifier string, reply func(domain.OSCommandResult))
}

// Window controls the main application window.
type Window interface {
	Show()
	Hide()
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// EventSink emits pipeline state to the UI.
type EventSink interface {
	VoiceStateChanged(state domain.VoiceState, reason domain.VoiceStateReason)
	LiveTranscript(text string)
	OSCommandResult(result domain.OSCommandResult)
	NetworkStatusChanged(status domain.NetworkStatus)
}
