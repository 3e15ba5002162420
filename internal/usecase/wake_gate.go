package usecase

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// GateDecision is the outcome of evaluating one finalized utterance.
type GateDecision int

const (
	GateDiscard GateDecision = iota
	GateAcknowledge
	GateGreeting
	GateCommand
)

func (d GateDecision) String() string {
	switch d {
	case GateAcknowledge:
		return "acknowledge"
	case GateGreeting:
		return "greeting"
	case GateCommand:
		return "command"
	default:
		return "discard"
	}
}

// GateResult carries the cleaned command or the local reply to speak.
type GateResult struct {
	Decision GateDecision
	Command  string
	Reply    string
}

type GateConfig struct {
	WakeTokens []string
	// WakePhrase triggers the greeting when every part is present.
	WakePhrase []string
	Nickname   string
}

var interjections = []string{"hey", "hi", "okay", "ok", "oi", "ei", "olá"}

// WakeGate decides whether an utterance is addressed to the assistant.
type WakeGate struct {
	tokens   []string
	phrase   []string
	nickname string
	strip    *regexp.Regexp
	now      func() time.Time
}

func NewWakeGate(cfg GateConfig) *WakeGate {
	tokens := lowerNonEmpty(cfg.WakeTokens)
	if len(tokens) == 0 {
		tokens = []string{"ghost", "chrono", "turing", "gör"}
	}

	quoted := make([]string, 0, len(tokens))
	for _, token := range tokens {
		quoted = append(quoted, regexp.QuoteMeta(token))
	}
	// RE2 word boundaries are ASCII only, so the interjection guard matches a
	// non-letter explicitly and the replacement keeps it.
	pattern := `(^|[^\p{L}])(?:` + strings.Join(interjections, "|") + `)[\s,.!]*(?:` + strings.Join(quoted, "|") + `)|(?:` + strings.Join(quoted, "|") + `)`

	nickname := strings.TrimSpace(cfg.Nickname)
	if nickname == "" {
		nickname = "senhor"
	}

	return &WakeGate{
		tokens:   tokens,
		phrase:   lowerNonEmpty(cfg.WakePhrase),
		nickname: nickname,
		strip:    regexp.MustCompile(pattern),
		now:      time.Now,
	}
}

// Evaluate classifies utterance. The wake phrase greeting wins over wake tokens.
func (g *WakeGate) Evaluate(utterance string) GateResult {
	lowered := strings.ToLower(strings.TrimSpace(utterance))
	if lowered == "" {
		return GateResult{Decision: GateDiscard}
	}

	if g.isWakePhrase(lowered) {
		return GateResult{Decision: GateGreeting, Reply: g.greeting()}
	}

	if !g.hasToken(lowered) {
		return GateResult{Decision: GateDiscard}
	}

	command := cleanCommand(g.strip.ReplaceAllString(lowered, "${1}"))
	if command == "" {
		return GateResult{Decision: GateAcknowledge, Reply: fmt.Sprintf("Sim, %s. Às suas ordens.", g.nickname)}
	}
	return GateResult{Decision: GateCommand, Command: command}
}

func (g *WakeGate) hasToken(lowered string) bool {
	for _, token := range g.tokens {
		if strings.Contains(lowered, token) {
			return true
		}
	}
	return false
}

func (g *WakeGate) isWakePhrase(lowered string) bool {
	if len(g.phrase) == 0 {
		return false
	}
	for _, part := range g.phrase {
		if !strings.Contains(lowered, part) {
			return false
		}
	}
	return true
}

func (g *WakeGate) greeting() string {
	salutation := "Boa noite"
	switch hour := g.now().Hour(); {
	case hour < 12:
		salutation = "Bom dia"
	case hour < 18:
		salutation = "Boa tarde"
	}
	return fmt.Sprintf("%s, para o senhor eu sempre estou acordado, %s.", salutation, g.nickname)
}

func cleanCommand(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	return strings.TrimFunc(collapsed, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}

func lowerNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.ToLower(strings.TrimSpace(value)); value != "" {
			out = append(out, value)
		}
	}
	return out
}
