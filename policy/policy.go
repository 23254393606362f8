// Package policy applies server-side bounds to decoded notifications.
//
// A policy never rejects a notification. Out-of-range input is clamped,
// sanitized or truncated, and every adjustment is recorded as a Violation
// so the ingestor can log and count it.
package policy

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/pithecene-io/warnwin/types"
	"github.com/pithecene-io/warnwin/wire"
)

// Default bounds.
const (
	DefaultMinDuration  = time.Second
	DefaultMaxDuration  = 60 * time.Second
	DefaultMaxTextChars = 280
)

// Ellipsis marks truncated text. It counts toward MaxTextChars.
const Ellipsis = "…"

// Bounds are the limits a notification is clamped to.
type Bounds struct {
	MinDuration  time.Duration `yaml:"min_duration"`
	MaxDuration  time.Duration `yaml:"max_duration"`
	MaxTextChars int           `yaml:"max_text_chars"`
}

// DefaultBounds returns the default bounds.
func DefaultBounds() Bounds {
	return Bounds{
		MinDuration:  DefaultMinDuration,
		MaxDuration:  DefaultMaxDuration,
		MaxTextChars: DefaultMaxTextChars,
	}
}

func (b Bounds) withDefaults() Bounds {
	if b.MinDuration <= 0 {
		b.MinDuration = DefaultMinDuration
	}
	if b.MaxDuration <= 0 {
		b.MaxDuration = DefaultMaxDuration
	}
	if b.MaxDuration < b.MinDuration {
		b.MaxDuration = b.MinDuration
	}
	if b.MaxTextChars <= 0 {
		b.MaxTextChars = DefaultMaxTextChars
	}
	return b
}

// ViolationKind names a bound that was enforced.
type ViolationKind string

// Violation kinds.
const (
	ViolationDurationBelowMin ViolationKind = "duration_below_min"
	ViolationDurationAboveMax ViolationKind = "duration_above_max"
	ViolationTextTruncated    ViolationKind = "text_truncated"
	ViolationTextSanitized    ViolationKind = "text_sanitized"
	ViolationSenderSanitized  ViolationKind = "sender_sanitized"
)

// Violation records one adjustment made to a notification.
type Violation struct {
	Kind   ViolationKind `json:"kind" msgpack:"kind"`
	Detail string        `json:"detail" msgpack:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Kind, v.Detail)
}

// Accepted is a notification that passed through the policy.
type Accepted struct {
	Text       string
	Sender     string
	Duration   time.Duration
	Urgency    types.Urgency
	Violations []Violation
}

// ViolationKinds returns the kinds of all recorded violations.
func (a Accepted) ViolationKinds() []string {
	if len(a.Violations) == 0 {
		return nil
	}
	kinds := make([]string, len(a.Violations))
	for i, v := range a.Violations {
		kinds[i] = string(v.Kind)
	}
	return kinds
}

// Stats counts policy outcomes.
type Stats struct {
	// Applied is the number of payloads that went through Apply.
	Applied int64
	// Adjusted is the number of payloads with at least one violation.
	Adjusted int64
	// ViolationsByKind maps violation kinds to counts.
	ViolationsByKind map[ViolationKind]int64
}

// Policy enforces Bounds. It is safe for concurrent use.
type Policy struct {
	bounds Bounds

	mu    sync.Mutex
	stats Stats
}

// New creates a policy. Zero fields in b take their defaults.
func New(b Bounds) *Policy {
	return &Policy{
		bounds: b.withDefaults(),
		stats: Stats{
			ViolationsByKind: make(map[ViolationKind]int64),
		},
	}
}

// Bounds returns the effective bounds.
func (p *Policy) Bounds() Bounds {
	return p.bounds
}

// Apply normalizes and clamps a decoded payload.
func (p *Policy) Apply(payload wire.NotifyPayload) Accepted {
	var violations []Violation

	text, stripped := sanitize(norm.NFC.String(payload.Text))
	if stripped > 0 {
		violations = append(violations, Violation{
			Kind:   ViolationTextSanitized,
			Detail: fmt.Sprintf("removed %d control characters", stripped),
		})
	}

	if n := utf8.RuneCountInString(text); n > p.bounds.MaxTextChars {
		text = truncate(text, p.bounds.MaxTextChars)
		violations = append(violations, Violation{
			Kind:   ViolationTextTruncated,
			Detail: fmt.Sprintf("%d characters truncated to %d", n, p.bounds.MaxTextChars),
		})
	}

	sender, stripped := sanitize(norm.NFC.String(payload.Sender))
	sender = strings.ReplaceAll(sender, "\n", " ")
	if stripped > 0 {
		violations = append(violations, Violation{
			Kind:   ViolationSenderSanitized,
			Detail: fmt.Sprintf("removed %d control characters", stripped),
		})
	}

	duration := time.Duration(payload.DurationMs) * time.Millisecond
	switch {
	case duration < p.bounds.MinDuration:
		violations = append(violations, Violation{
			Kind:   ViolationDurationBelowMin,
			Detail: fmt.Sprintf("%s raised to %s", duration, p.bounds.MinDuration),
		})
		duration = p.bounds.MinDuration
	case duration > p.bounds.MaxDuration:
		violations = append(violations, Violation{
			Kind:   ViolationDurationAboveMax,
			Detail: fmt.Sprintf("%s lowered to %s", duration, p.bounds.MaxDuration),
		})
		duration = p.bounds.MaxDuration
	}

	p.record(violations)

	return Accepted{
		Text:       text,
		Sender:     sender,
		Duration:   duration,
		Urgency:    payload.Urgency,
		Violations: violations,
	}
}

// Stats returns a point-in-time copy of the policy counters.
func (p *Policy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.ViolationsByKind = make(map[ViolationKind]int64, len(p.stats.ViolationsByKind))
	for k, v := range p.stats.ViolationsByKind {
		s.ViolationsByKind[k] = v
	}
	return s
}

func (p *Policy) record(violations []Violation) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Applied++
	if len(violations) > 0 {
		p.stats.Adjusted++
	}
	for _, v := range violations {
		p.stats.ViolationsByKind[v.Kind]++
	}
}

// sanitize removes control characters other than newline and tab.
func sanitize(s string) (string, int) {
	stripped := 0
	out := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			stripped++
			return -1
		}
		return r
	}, s)
	return out, stripped
}

// truncate shortens s to limit runes, the last of which is Ellipsis.
func truncate(s string, limit int) string {
	keep := limit - utf8.RuneCountInString(Ellipsis)
	if keep <= 0 {
		return Ellipsis
	}
	i := 0
	for idx := range s {
		if i == keep {
			return strings.TrimRightFunc(s[:idx], unicode.IsSpace) + Ellipsis
		}
		i++
	}
	return s
}
