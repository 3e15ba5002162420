package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"ghostshell/internal/ports"
)

const (
	settleDelay = 250 * time.Millisecond
	stopGrace   = 1200 * time.Millisecond
	// pipeDrain bounds how long Wait keeps copying output after the
	// recorder exits; a leftover grandchild can hold stderr open.
	pipeDrain = 200 * time.Millisecond
)

// Microphone captures mono 16-bit PCM from the default input device
// through an ffmpeg child process.
type Microphone struct {
	command string
	goos    string
	settle  time.Duration
}

func NewMicrophone(command string) *Microphone {
	if strings.TrimSpace(command) == "" {
		command = "ffmpeg"
	}
	return &Microphone{command: command, goos: runtime.GOOS, settle: settleDelay}
}

// Start launches the recorder. A recorder that dies during the settle delay
// is reported as a start failure; a refused device maps to
// ports.ErrPermissionDenied.
func (m *Microphone) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cmd := exec.CommandContext(ctx, m.command, captureArgs(m.withDefaults(cfg))...)
	stderr := &syncBuffer{}
	cmd.Stderr = stderr
	cmd.WaitDelay = pipeDrain

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("recorder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recorder %s: %w", m.command, err)
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
		close(exited)
	}()

	timer := time.NewTimer(m.settle)
	defer timer.Stop()

	select {
	case err := <-exited:
		detail := stderr.Text()
		switch {
		case deniedAccess(detail):
			return nil, fmt.Errorf("%w: microphone access refused: %s", ports.ErrPermissionDenied, detail)
		case err != nil:
			return nil, fmt.Errorf("recorder exited before capture started: %w: %s", err, detail)
		default:
			return nil, errors.New("recorder exited before capture started")
		}
	case <-timer.C:
	}

	return &captureSession{
		stdout:  stdout,
		stderr:  stderr,
		process: cmd.Process,
		exited:  exited,
		goos:    m.goos,
	}, nil
}

func (m *Microphone) withDefaults(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	format, device := inputDefaults(m.goos)
	if cfg.InputFormat == "" {
		cfg.InputFormat = format
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = device
	}
	return cfg
}

// inputDefaults names the capture backend ffmpeg uses on each platform.
func inputDefaults(goos string) (format, device string) {
	switch goos {
	case "windows":
		return "dshow", "audio=default"
	case "darwin":
		return "avfoundation", ":0"
	default:
		return "pulse", "default"
	}
}

func captureArgs(cfg ports.AudioConfig) []string {
	return []string{
		"-nostdin", "-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

type captureSession struct {
	stdout  io.ReadCloser
	stderr  *syncBuffer
	process *os.Process
	exited  <-chan error
	goos    string

	once sync.Once
	err  error
}

func (s *captureSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *captureSession) Close() error {
	return s.Stop()
}

// Stop asks the recorder to finish, killing it after a grace period.
// Stop is idempotent.
func (s *captureSession) Stop() error {
	s.once.Do(func() {
		s.err = s.terminate()

		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.err == nil {
			s.err = err
		}
		if s.err != nil {
			if detail := s.stderr.Text(); detail != "" {
				s.err = fmt.Errorf("%w: %s", s.err, detail)
			}
		}
	})
	return s.err
}

func (s *captureSession) terminate() error {
	if s.process == nil {
		return nil
	}
	// Windows has no interrupt signal for child processes.
	if s.goos == "windows" {
		_ = s.process.Kill()
	} else {
		_ = s.process.Signal(os.Interrupt)
	}

	timer := time.NewTimer(stopGrace)
	defer timer.Stop()

	select {
	case err, ok := <-s.exited:
		if !ok {
			return nil
		}
		return ignoreExitStatus(err)
	case <-timer.C:
		_ = s.process.Kill()
		if err, ok := <-s.exited; ok {
			return ignoreExitStatus(err)
		}
		return nil
	}
}

// deniedAccess reports whether recorder output says the OS refused the device.
func deniedAccess(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "permission denied") || strings.Contains(lower, "access denied")
}

// ignoreExitStatus drops the non-zero exit a signalled recorder reports.
func ignoreExitStatus(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || errors.Is(err, exec.ErrWaitDelay) {
		return nil
	}
	return err
}

// syncBuffer collects stderr while the process is still writing to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}
