package usecase

import (
	"strings"
	"sync"
	"time"

	"ghostshell/internal/domain"
)

type timerHandle interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) timerHandle

func realAfterFunc(d time.Duration, f func()) timerHandle {
	return time.AfterFunc(d, f)
}

// utteranceAggregator buffers recognition fragments until a silence gap
// longer than threshold is observed. Only the most recently armed timer may
// finalize: every Add bumps the generation and stale callbacks return early.
type utteranceAggregator struct {
	threshold   time.Duration
	after       afterFunc
	onUtterance func(text string)

	mu         sync.Mutex
	finals     []string
	interim    string
	generation uint64
	timer      timerHandle
}

func newUtteranceAggregator(threshold time.Duration, after afterFunc, onUtterance func(string)) *utteranceAggregator {
	if threshold <= 0 {
		threshold = 1400 * time.Millisecond
	}
	if after == nil {
		after = realAfterFunc
	}
	return &utteranceAggregator{
		threshold:   threshold,
		after:       after,
		onUtterance: onUtterance,
	}
}

// Add records a fragment, rearms the silence timer and returns the live
// transcript.
func (a *utteranceAggregator) Add(fragment domain.RecognitionFragment) string {
	text := strings.TrimSpace(fragment.Text)

	a.mu.Lock()
	defer a.mu.Unlock()

	if fragment.IsFinal {
		if text != "" {
			a.finals = append(a.finals, text)
		}
		a.interim = ""
	} else {
		a.interim = text
	}

	a.generation++
	generation := a.generation
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = a.after(a.threshold, func() {
		a.fire(generation)
	})

	return a.liveLocked()
}

// Live returns finals followed by the pending interim text.
func (a *utteranceAggregator) Live() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.liveLocked()
}

// Reset drops buffered text and disarms the pending timer.
func (a *utteranceAggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.generation++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.finals = nil
	a.interim = ""
}

func (a *utteranceAggregator) fire(generation uint64) {
	a.mu.Lock()
	if generation != a.generation {
		a.mu.Unlock()
		return
	}
	text := strings.TrimSpace(strings.Join(a.finals, " "))
	a.finals = nil
	a.interim = ""
	a.timer = nil
	a.mu.Unlock()

	if text == "" || a.onUtterance == nil {
		return
	}
	a.onUtterance(text)
}

func (a *utteranceAggregator) liveLocked() string {
	parts := make([]string, 0, len(a.finals)+1)
	parts = append(parts, a.finals...)
	if a.interim != "" {
		parts = append(parts, a.interim)
	}
	return strings.Join(parts, " ")
}
