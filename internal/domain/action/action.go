// Package action defines the action descriptor, its parameter layering
// and placeholder substitution, and the post-action verdicts a runner
// interprets after an action executes. The built-in functions and shell
// spawning live in the outbound execaction adapter; this package holds
// only the domain-level shape both the policy registry and the executor
// agree on.
package action

import (
	"fmt"
	"strings"
)

// Kind discriminates the three action shapes a rule or policy may carry.
type Kind int

const (
	// None is a noop that always succeeds.
	None Kind = iota
	// Function calls a built-in named "<module>.<verb>", e.g. "common.unlink".
	Function
	// Command spawns a shell command from an argv template.
	Command
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Function:
		return "function"
	case Command:
		return "command"
	default:
		return "unknown"
	}
}

// Action is the action a matching rule (or a policy's default) invokes.
type Action struct {
	Kind Kind

	// Function
	FuncName string // "common.unlink", "common.copy", ...

	// Command
	Argv []string // may contain "{placeholder}" tokens
}

// PostAction is the verdict an action returns after executing, telling
// the caller how to reconcile the catalog.
type PostAction int

const (
	// VerdictNone means nothing further is required.
	VerdictNone PostAction = iota
	// VerdictRmOne means one hardlink was removed; decrement link count.
	VerdictRmOne
	// VerdictRmAll means the entry itself is gone; remove it from the catalog.
	VerdictRmAll
	// VerdictUpdate means attributes may have changed; the caller should refresh.
	VerdictUpdate
)

func (v PostAction) String() string {
	switch v {
	case VerdictNone:
		return "none"
	case VerdictRmOne:
		return "rm_one"
	case VerdictRmAll:
		return "rm_all"
	case VerdictUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Params is an ordered, case-insensitive mapping from parameter name to
// string value, built by layering policy defaults, rule overrides,
// fileclass-for-policy overrides, and trigger overrides in that order
// (later layers win).
type Params struct {
	order []string
	byKey map[string]string // lower-cased key -> value
	orig  map[string]string // lower-cased key -> original-case key, for iteration
}

// NewParams returns an empty parameter set.
func NewParams() *Params {
	return &Params{byKey: make(map[string]string), orig: make(map[string]string)}
}

// Set inserts or overwrites a parameter, case-insensitively.
func (p *Params) Set(key, value string) {
	lk := strings.ToLower(key)
	if _, exists := p.byKey[lk]; !exists {
		p.order = append(p.order, lk)
		p.orig[lk] = key
	}
	p.byKey[lk] = value
}

// Get looks up a parameter by name, case-insensitively.
func (p *Params) Get(key string) (string, bool) {
	v, ok := p.byKey[strings.ToLower(key)]
	return v, ok
}

// Layer applies src on top of p: every key in src overwrites (or adds
// to) p. Used to implement policy -> rule -> fileclass -> trigger
// layering, called once per layer in increasing-precedence order.
func (p *Params) Layer(src *Params) {
	if src == nil {
		return
	}
	for _, lk := range src.order {
		p.Set(src.orig[lk], src.byKey[lk])
	}
}

// Clone returns an independent copy.
func (p *Params) Clone() *Params {
	out := NewParams()
	for _, lk := range p.order {
		out.Set(p.orig[lk], p.byKey[lk])
	}
	return out
}

// UnknownParameterError reports a "{placeholder}" in an argv template
// with no matching entry in params.
type UnknownParameterError struct {
	Placeholder string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("action: unknown parameter placeholder %q", e.Placeholder)
}

// Substitute replaces every "{name}" token in each argv element with its
// value from params, shell-quoting the substituted value so that
// embedded single quotes survive a shell command line. An unresolved
// placeholder returns *UnknownParameterError.
func Substitute(argv []string, params *Params) ([]string, error) {
	out := make([]string, len(argv))
	for i, raw := range argv {
		expanded, err := substituteOne(raw, params)
		if err != nil {
			return nil, err
		}
		out[i] = expanded
	}
	return out, nil
}

func substituteOne(s string, params *Params) (string, error) {
	var b strings.Builder
	for {
		start := strings.IndexByte(s, '{')
		if start < 0 {
			b.WriteString(s)
			return b.String(), nil
		}
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			b.WriteString(s)
			return b.String(), nil
		}
		end += start
		name := s[start+1 : end]
		val, ok := params.Get(name)
		if !ok {
			return "", &UnknownParameterError{Placeholder: name}
		}
		b.WriteString(s[:start])
		b.WriteString(ShellQuote(val))
		s = s[end+1:]
	}
}

// ShellQuote wraps s in single quotes, escaping any embedded single
// quote as '\'' so the result survives a POSIX shell command line.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
