package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"ghostshell/internal/domain"
)

const (
	textPlaceholder = "{text}"
	urlPlaceholder  = "{url}"
)

// Config selects the external programs used to talk.
type Config struct {
	SayCommand  string
	SayArgs     []string
	PlayCommand string
	PlayArgs    []string
	// ErrorPhrase is said when backend audio cannot be played and no text came with it.
	ErrorPhrase string
}

type runFunc func(ctx context.Context, name string, args ...string) error

// Synthesizer is an exclusive speaker: starting a new utterance kills the
// one in flight.
type Synthesizer struct {
	cfg Config
	run runFunc

	mu      sync.Mutex
	current *playback
}

type playback struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSynthesizer(cfg Config) *Synthesizer {
	if strings.TrimSpace(cfg.SayCommand) == "" {
		cfg.SayCommand = "espeak-ng"
	}
	if strings.TrimSpace(cfg.PlayCommand) == "" {
		cfg.PlayCommand = "ffplay"
	}
	if strings.TrimSpace(cfg.ErrorPhrase) == "" {
		cfg.ErrorPhrase = "Desculpe, erro ao reproduzir minha voz."
	}
	return &Synthesizer{cfg: cfg, run: execRun}
}

// Speak supersedes whatever is playing and plays u in the background.
// onEnd runs once u finished on its own.
func (s *Synthesizer) Speak(u domain.Utterance, onEnd func()) {
	if u.Empty() {
		if onEnd != nil {
			onEnd()
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	next := &playback{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	prev := s.current
	s.current = next
	s.mu.Unlock()

	go func() {
		if prev != nil {
			prev.cancel()
			<-prev.done
		}
		s.play(ctx, next, u, onEnd)
	}()
}

// Cancel stops the current playback and waits for it to exit.
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	cur := s.current
	s.current = nil
	s.mu.Unlock()

	if cur == nil {
		return
	}
	cur.cancel()
	<-cur.done
}

func (s *Synthesizer) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

func (s *Synthesizer) play(ctx context.Context, p *playback, u domain.Utterance, onEnd func()) {
	err := s.render(ctx, u)

	s.mu.Lock()
	finished := s.current == p && ctx.Err() == nil
	if s.current == p {
		s.current = nil
	}
	s.mu.Unlock()

	p.cancel()
	close(p.done)

	if !finished {
		return
	}
	if err != nil {
		slog.Error("Speech output failed", "err", err)
	}
	if onEnd != nil {
		onEnd()
	}
}

// render prefers backend audio and falls back to local synthesis.
func (s *Synthesizer) render(ctx context.Context, u domain.Utterance) error {
	text := strings.TrimSpace(u.Text)
	audioURL := strings.TrimSpace(u.AudioURL)
	if audioURL == "" {
		return s.say(ctx, text)
	}

	err := s.run(ctx, s.cfg.PlayCommand, expandArgs(s.cfg.PlayArgs, urlPlaceholder, audioURL)...)
	if err == nil || ctx.Err() != nil {
		return err
	}
	slog.Warn("Audio playback failed, synthesizing locally", "url", audioURL, "err", err)

	if text == "" {
		text = s.cfg.ErrorPhrase
	}
	return s.say(ctx, text)
}

func (s *Synthesizer) say(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	return s.run(ctx, s.cfg.SayCommand, expandArgs(s.cfg.SayArgs, textPlaceholder, text)...)
}

// expandArgs substitutes placeholder in args. When no argument carries the
// placeholder the value is appended.
func expandArgs(args []string, placeholder string, value string) []string {
	out := make([]string, 0, len(args)+1)
	replaced := false
	for _, arg := range args {
		if strings.Contains(arg, placeholder) {
			arg = strings.ReplaceAll(arg, placeholder, value)
			replaced = true
		}
		out = append(out, arg)
	}
	if !replaced {
		out = append(out, value)
	}
	return out
}

func execRun(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		var exitErr *exec.ExitError
		if msg != "" && errors.As(err, &exitErr) {
			return fmt.Errorf("%s failed: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}
