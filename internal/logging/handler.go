package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"

	"ghostshell/internal/domain"
)

// LevelSuccess sits between info and warn and renders as SUCCESS in the UI.
const LevelSuccess = slog.Level(2)

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"success": LevelSuccess,
	"warn":    slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel maps a flag value to a level, defaulting to info.
func ParseLevel(name string) slog.Level {
	if level, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return level
	}
	return slog.LevelInfo
}

// New returns a logger writing colored output to w and mirroring info and
// above into journal.
func New(w io.Writer, level slog.Level, journal *Journal) *slog.Logger {
	console := tint.NewHandler(w, &tint.Options{
		Level:       level,
		TimeFormat:  time.TimeOnly,
		ReplaceAttr: levelLabel,
	})
	if journal == nil {
		return slog.New(console)
	}
	return slog.New(&journalHandler{next: console, journal: journal})
}

// levelLabel names LevelSuccess on the console instead of INFO+2.
func levelLabel(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) != 0 || attr.Key != slog.LevelKey {
		return attr
	}
	if level, ok := attr.Value.Any().(slog.Level); ok && level == LevelSuccess {
		return slog.String(slog.LevelKey, "SUCCESS")
	}
	return attr
}

// journalHandler forwards records unchanged and copies a flattened form of
// each one into the journal.
type journalHandler struct {
	next    slog.Handler
	journal *Journal
	attrs   []slog.Attr
	group   string
}

func (h *journalHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo || h.next.Enabled(ctx, level)
}

func (h *journalHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= slog.LevelInfo {
		at := record.Time
		if at.IsZero() {
			at = time.Now()
		}
		h.journal.Append(h.entry(record, at), at)
	}
	if !h.next.Enabled(ctx, record.Level) {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *journalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefixed := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	prefixed = append(prefixed, h.attrs...)
	for _, attr := range attrs {
		prefixed = append(prefixed, h.qualify(attr))
	}
	return &journalHandler{next: h.next.WithAttrs(attrs), journal: h.journal, attrs: prefixed, group: h.group}
}

func (h *journalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &journalHandler{next: h.next.WithGroup(name), journal: h.journal, attrs: h.attrs, group: group}
}

func (h *journalHandler) qualify(attr slog.Attr) slog.Attr {
	if h.group == "" {
		return attr
	}
	return slog.Attr{Key: h.group + "." + attr.Key, Value: attr.Value}
}

func (h *journalHandler) entry(record slog.Record, at time.Time) domain.LogEntry {
	var msg strings.Builder
	msg.WriteString(record.Message)
	write := func(attr slog.Attr) {
		if attr.Equal(slog.Attr{}) {
			return
		}
		fmt.Fprintf(&msg, " %s=%v", attr.Key, attr.Value.Resolve())
	}
	for _, attr := range h.attrs {
		write(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		write(h.qualify(attr))
		return true
	})

	return domain.LogEntry{
		ID:        uuid.NewString(),
		Msg:       msg.String(),
		Type:      Classify(record.Level),
		Timestamp: at.Format(time.TimeOnly),
	}
}

// Classify maps a slog level onto the UI log types.
func Classify(level slog.Level) domain.LogLevel {
	switch {
	case level >= slog.LevelError:
		return domain.LogError
	case level >= slog.LevelWarn:
		return domain.LogWarn
	case level >= LevelSuccess:
		return domain.LogSuccess
	default:
		return domain.LogInfo
	}
}
