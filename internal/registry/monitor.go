package registry

import (
	"context"
	"fmt"
	"time"

	"ghostshell/internal/domain"
	"ghostshell/internal/ports"
)

const (
	defaultOnlinePhrase  = "Gateway GHOST sincronizado. Sistemas sob seu comando, %s."
	defaultOfflinePhrase = "Alerta crítico. Conexão com o Gateway perdida."
)

type StatusChecker interface {
	Check(ctx context.Context) domain.NetworkStatus
}

type MonitorConfig struct {
	Interval      time.Duration
	Nickname      string
	OnlinePhrase  string
	OfflinePhrase string
}

// Monitor is the connectivity heartbeat. It pushes every result to the UI
// and announces transitions by voice while the speaker is idle.
type Monitor struct {
	checker StatusChecker
	events  ports.EventSink
	speaker ports.Speaker
	cfg     MonitorConfig

	previous domain.NetworkStatus
}

func NewMonitor(checker StatusChecker, events ports.EventSink, speaker ports.Speaker, cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Nickname == "" {
		cfg.Nickname = "senhor"
	}
	if cfg.OnlinePhrase == "" {
		cfg.OnlinePhrase = fmt.Sprintf(defaultOnlinePhrase, cfg.Nickname)
	}
	if cfg.OfflinePhrase == "" {
		cfg.OfflinePhrase = defaultOfflinePhrase
	}
	return &Monitor{checker: checker, events: events, speaker: speaker, cfg: cfg}
}

// Run polls until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}

// Poll runs one heartbeat. It is not safe for concurrent use.
func (m *Monitor) Poll(ctx context.Context) domain.NetworkStatus {
	status := m.checker.Check(ctx)
	if ctx.Err() != nil {
		return status
	}
	m.events.NetworkStatusChanged(status)

	var phrase string
	switch {
	case status == domain.NetworkOnline && m.previous != domain.NetworkOnline:
		phrase = m.cfg.OnlinePhrase
	case status == domain.NetworkOffline && m.previous == domain.NetworkOnline:
		phrase = m.cfg.OfflinePhrase
	}
	m.previous = status

	if phrase != "" && m.speaker != nil && !m.speaker.Speaking() {
		m.speaker.Speak(domain.Utterance{Text: phrase}, nil)
	}
	return status
}
