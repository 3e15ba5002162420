package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ErrUnstable is returned when the rules keep rewriting the text past the
// iteration limit.
var ErrUnstable = errors.New("alias rules did not converge")

const defaultIterationLimit = 30

type rewriter interface {
	rewrite(input string) (string, bool)
}

// Aliases rewrites recurring misrecognitions before wake-word gating.
//
// A rules file holds one rule per line:
//
//	gost => ghost              whole-word, case-insensitive
//	s/cro+no/chrono/g          regular expression with i, g, m or s flags
//
// Blank lines and lines starting with # are ignored.
type Aliases struct {
	rules []rewriter
	limit int
}

// Load reads path. A missing file yields an empty rule set.
func Load(path string, limit int) (*Aliases, error) {
	if limit <= 0 {
		limit = defaultIterationLimit
	}
	if strings.TrimSpace(path) == "" {
		return &Aliases{limit: limit}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Aliases{limit: limit}, nil
		}
		return nil, fmt.Errorf("read alias rules %q: %w", path, err)
	}

	rules, err := Parse(string(contents))
	if err != nil {
		return nil, fmt.Errorf("alias rules %q: %w", path, err)
	}
	rules.limit = limit
	return rules, nil
}

// Parse compiles rules from text.
func Parse(contents string) (*Aliases, error) {
	var rules []rewriter
	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			rule rewriter
			err  error
		)
		switch {
		case isSubstitution(line):
			rule, err = parseSubstitution(line)
		case strings.Contains(line, "=>"):
			rule, err = parseAlias(line)
		default:
			err = errors.New("expected `from => to` or `s/re/repl/flags`")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		rules = append(rules, rule)
	}
	return &Aliases{rules: rules, limit: defaultIterationLimit}, nil
}

func (a *Aliases) Len() int {
	return len(a.rules)
}

// Apply rewrites text until no rule matches. When the rules do not settle
// within the limit the input is returned unchanged with ErrUnstable.
func (a *Aliases) Apply(text string) (string, error) {
	if len(a.rules) == 0 {
		return text, nil
	}

	result := text
	for pass := 0; pass < a.limit; pass++ {
		changed := false
		for _, rule := range a.rules {
			if next, ok := rule.rewrite(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			return result, nil
		}
	}
	return text, fmt.Errorf("%w after %d passes", ErrUnstable, a.limit)
}

// alias replaces whole words only. Word edges are letter-aware so accented
// tokens such as "gör" match.
type alias struct {
	re *regexp.Regexp
	to string
}

func parseAlias(line string) (rewriter, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return nil, errors.New("alias source cannot be empty")
	}

	re, err := regexp.Compile(`(?i)(^|[^\p{L}\p{N}])` + regexp.QuoteMeta(from) + `($|[^\p{L}\p{N}])`)
	if err != nil {
		return nil, fmt.Errorf("invalid alias source: %w", err)
	}
	return alias{re: re, to: strings.ReplaceAll(to, "$", "$$")}, nil
}

func (r alias) rewrite(input string) (string, bool) {
	output := r.re.ReplaceAllString(input, "${1}"+r.to+"${2}")
	return output, output != input
}

type substitution struct {
	re     *regexp.Regexp
	repl   string
	global bool
}

// parseSubstitution reads s<d>pattern<d>replacement<d>flags. Matching is
// case-insensitive unless told otherwise by the pattern itself.
func parseSubstitution(line string) (rewriter, error) {
	delim := line[1]

	pattern, rest, err := readDelimited(line[2:], delim)
	if err != nil {
		return nil, fmt.Errorf("pattern: %w", err)
	}
	repl, rest, err := readDelimited(rest, delim)
	if err != nil {
		return nil, fmt.Errorf("replacement: %w", err)
	}
	repl = strings.ReplaceAll(repl, `\`+string(delim), string(delim))

	inline := "i"
	global := false
	for _, flag := range strings.TrimSpace(rest) {
		switch flag {
		case 'g':
			global = true
		case 'i':
		case 'm', 's':
			inline += string(flag)
		default:
			return nil, fmt.Errorf("unsupported flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + inline + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return substitution{re: re, repl: repl, global: global}, nil
}

func (r substitution) rewrite(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.repl)
		return output, output != input
	}

	match := r.re.FindStringSubmatchIndex(input)
	if match == nil {
		return input, false
	}
	expanded := r.re.ExpandString(nil, r.repl, input, match)
	output := input[:match[0]] + string(expanded) + input[match[1]:]
	return output, output != input
}

// readDelimited returns the text up to the first unescaped delim and what
// follows it. Escapes are kept as written.
func readDelimited(s string, delim byte) (string, string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' && i+1 < len(s):
			b.WriteByte(c)
			b.WriteByte(s[i+1])
			i++
		case c == delim:
			return b.String(), s[i+1:], nil
		default:
			b.WriteByte(c)
		}
	}
	return "", "", errors.New("unterminated expression")
}

func isSubstitution(line string) bool {
	if len(line) < 2 || line[0] != 's' {
		return false
	}
	d := line[1]
	return !(d >= 'a' && d <= 'z' || d >= 'A' && d <= 'Z' || d >= '0' && d <= '9' || d == ' ' || d == '\t' || d == '_')
}
