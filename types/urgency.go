// Package types defines the domain types shared by the warnwin server,
// its admin surface and its renderers.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"strings"
)

// Urgency classifies a notification for display. It affects colour and
// emphasis only; it never changes whether a notification is accepted.
type Urgency uint8

// Urgency tiers, in wire order.
const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyHigh
	UrgencyCritical
)

var urgencyNames = [...]string{
	UrgencyLow:      "low",
	UrgencyNormal:   "normal",
	UrgencyHigh:     "high",
	UrgencyCritical: "critical",
}

// Valid reports whether u is one of the defined tiers.
func (u Urgency) Valid() bool {
	return int(u) < len(urgencyNames)
}

func (u Urgency) String() string {
	if !u.Valid() {
		return fmt.Sprintf("urgency(%d)", uint8(u))
	}
	return urgencyNames[u]
}

// ParseUrgency parses a tier name (case-insensitive). The aliases
// info, warn and alert map to low, high and critical.
func ParseUrgency(s string) (Urgency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "info":
		return UrgencyLow, nil
	case "", "normal":
		return UrgencyNormal, nil
	case "high", "warn", "warning":
		return UrgencyHigh, nil
	case "critical", "alert":
		return UrgencyCritical, nil
	default:
		return UrgencyNormal, fmt.Errorf("invalid urgency: %q (must be low, normal, high, or critical)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (u Urgency) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *Urgency) UnmarshalText(text []byte) error {
	parsed, err := ParseUrgency(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
