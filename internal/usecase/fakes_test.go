package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"ghostshell/internal/domain"
	"ghostshell/internal/ports"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []*fakeAudioSession
	err      error
	calls    int
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.sessions) > 0 {
		session := f.sessions[0]
		f.sessions = f.sessions[1:]
		return session, nil
	}
	return newFakeAudioSession(), nil
}

// fakeAudioSession hands out its chunks and then blocks like a live
// microphone until Stop is called.
type fakeAudioSession struct {
	mu        sync.Mutex
	chunks    [][]byte
	index     int
	stopCalls int
	stopErr   error
	stopped   chan struct{}
	stopOnce  sync.Once
}

func newFakeAudioSession(chunks ...[]byte) *fakeAudioSession {
	return &fakeAudioSession{chunks: chunks, stopped: make(chan struct{})}
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	if f.index < len(f.chunks) {
		n := copy(p, f.chunks[f.index])
		f.index++
		f.mu.Unlock()
		return n, nil
	}
	f.mu.Unlock()

	<-f.stopped
	return 0, io.EOF
}

func (f *fakeAudioSession) Close() error { return f.Stop() }

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	f.stopCalls++
	f.mu.Unlock()
	f.stopOnce.Do(func() { close(f.stopped) })
	return f.stopErr
}

type providerStep struct {
	session *fakeStreamingSession
	err     error
}

// fakeProvider replays steps and then blocks until the caller gives up.
type fakeProvider struct {
	mu    sync.Mutex
	steps []providerStep
	calls int
}

func (f *fakeProvider) StartStreaming(ctx context.Context, _ ports.StreamingConfig) (ports.StreamingSession, error) {
	f.mu.Lock()
	f.calls++
	if len(f.steps) > 0 {
		step := f.steps[0]
		f.steps = f.steps[1:]
		f.mu.Unlock()
		if step.err != nil {
			return nil, step.err
		}
		return step.session, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStreamingSession struct {
	fragments chan domain.RecognitionFragment
	done      chan struct{}
	waitErr   error
	sendErr   error

	mu         sync.Mutex
	sent       int
	closeCalls int
	closeOnce  sync.Once
}

func newFakeStreamingSession(fragments ...domain.RecognitionFragment) *fakeStreamingSession {
	s := &fakeStreamingSession{
		fragments: make(chan domain.RecognitionFragment, 16),
		done:      make(chan struct{}),
	}
	for _, fragment := range fragments {
		s.fragments <- fragment
	}
	return s
}

func (f *fakeStreamingSession) SendAudio(_ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	return f.sendErr
}

func (f *fakeStreamingSession) CloseSend() error {
	f.finish()
	return nil
}

func (f *fakeStreamingSession) Fragments() <-chan domain.RecognitionFragment { return f.fragments }

func (f *fakeStreamingSession) Wait() error {
	<-f.done
	return f.waitErr
}

func (f *fakeStreamingSession) Close() error {
	f.mu.Lock()
	f.closeCalls++
	f.mu.Unlock()
	f.finish()
	return f.waitErr
}

// end simulates the provider closing the stream on its own.
func (f *fakeStreamingSession) end() {
	f.finish()
}

func (f *fakeStreamingSession) finish() {
	f.closeOnce.Do(func() {
		close(f.fragments)
		close(f.done)
	})
}

type fakeNormalizer struct {
	replace map[string]string
	err     error

	// When release is set, Apply closes entered and waits for release.
	entered   chan struct{}
	release   chan struct{}
	enterOnce sync.Once
}

func (f *fakeNormalizer) Apply(text string) (string, error) {
	if f.release != nil {
		f.enterOnce.Do(func() { close(f.entered) })
		<-f.release
	}
	if f.err != nil {
		return "", f.err
	}
	if out, ok := f.replace[text]; ok {
		return out, nil
	}
	return text, nil
}

type fakeBackend struct {
	mu       sync.Mutex
	resp     domain.CommandResponse
	err      error
	block    bool
	requests []domain.CommandRequest
}

func (f *fakeBackend) Interact(ctx context.Context, req domain.CommandRequest) (domain.CommandResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return domain.CommandResponse{}, ctx.Err()
	}
	return f.resp, f.err
}

func (f *fakeBackend) snapshotRequests() []domain.CommandRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CommandRequest(nil), f.requests...)
}

type fakeSpeaker struct {
	mu          sync.Mutex
	utterances  []domain.Utterance
	onEnd       func()
	cancelCalls int
}

func (f *fakeSpeaker) Speak(utterance domain.Utterance, onEnd func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.utterances = append(f.utterances, utterance)
	f.onEnd = onEnd
}

func (f *fakeSpeaker) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	f.onEnd = nil
}

func (f *fakeSpeaker) Speaking() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onEnd != nil
}

// finish completes the current utterance.
func (f *fakeSpeaker) finish() {
	f.mu.Lock()
	onEnd := f.onEnd
	f.onEnd = nil
	f.mu.Unlock()
	if onEnd != nil {
		onEnd()
	}
}

func (f *fakeSpeaker) snapshot() []domain.Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Utterance(nil), f.utterances...)
}

type fakeBridge struct {
	mu          sync.Mutex
	identifiers []string
}

func (f *fakeBridge) Execute(_ context.Context, identifier string, reply func(domain.OSCommandResult)) {
	f.mu.Lock()
	f.identifiers = append(f.identifiers, identifier)
	f.mu.Unlock()
	reply(domain.OSCommandResult{Action: identifier, Success: true})
}

func (f *fakeBridge) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.identifiers...)
}

type stateEvent struct {
	state  domain.VoiceState
	reason domain.VoiceStateReason
}

type fakeEventSink struct {
	mu          sync.Mutex
	states      []stateEvent
	transcripts []string
	osResults   []domain.OSCommandResult
	network     []domain.NetworkStatus
}

func (f *fakeEventSink) VoiceStateChanged(state domain.VoiceState, reason domain.VoiceStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) LiveTranscript(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, text)
}

func (f *fakeEventSink) OSCommandResult(result domain.OSCommandResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.osResults = append(f.osResults, result)
}

func (f *fakeEventSink) NetworkStatusChanged(status domain.NetworkStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.network = append(f.network, status)
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateEvent(nil), f.states...)
}

func (f *fakeEventSink) snapshotTranscripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.transcripts...)
}

func (f *fakeEventSink) snapshotOSResults() []domain.OSCommandResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OSCommandResult(nil), f.osResults...)
}

func (f *fakeEventSink) lastState() stateEvent {
	states := f.snapshotStates()
	if len(states) == 0 {
		return stateEvent{}
	}
	return states[len(states)-1]
}

var errFakeNetwork = errors.New("connection refused")
