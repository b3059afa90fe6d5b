package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Option configures an Engine at construction time. Options are applied
// in order and may fail with an E-Config error (spec §7), which New
// returns immediately without retry.
type Option func(*Engine) error

// WithPrefix overrides the namespace prefix prepended to every cache key
// written to the backend. Default "qc".
func WithPrefix(prefix string) Option {
	return func(e *Engine) error {
		if prefix == "" {
			return fmt.Errorf("%w: prefix must not be empty", ErrConfig)
		}
		e.prefix = prefix
		return nil
	}
}

// WithDefaultTTL overrides the default freshness window used by Query
// when the caller doesn't supply a per-call TTL. Default 30s.
func WithDefaultTTL(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			return fmt.Errorf("%w: default ttl must be positive", ErrConfig)
		}
		e.defaultTTL = d
		return nil
	}
}

// WithDefaultTTLString parses a duration string in the spec §6 form —
// either a bare number of milliseconds or "N(ms|s|m|h|d|w)" with an
// optional fractional part — and applies it as the default TTL.
func WithDefaultTTLString(s string) Option {
	return func(e *Engine) error {
		d, err := ParseDuration(s)
		if err != nil {
			return err
		}
		return WithDefaultTTL(d)(e)
	}
}

// WithDefaultGrace overrides the default grace window extending freshness
// past TTL for stale-while-revalidate. Default disabled (nil).
func WithDefaultGrace(d time.Duration) Option {
	return func(e *Engine) error {
		if d < 0 {
			return fmt.Errorf("%w: default grace must not be negative", ErrConfig)
		}
		e.defaultGrace = &d
		return nil
	}
}

// WithDefaultGraceString parses a spec §6 duration string and applies it
// as the default grace window.
func WithDefaultGraceString(s string) Option {
	return func(e *Engine) error {
		d, err := ParseDuration(s)
		if err != nil {
			return err
		}
		return WithDefaultGrace(d)(e)
	}
}

// WithVerifyPercent sets the sampling rate for background verification,
// a fraction in [0, 1]. Default 0.1. Rejected outside that range.
func WithVerifyPercent(p float64) Option {
	return func(e *Engine) error {
		if p < 0 || p > 1 {
			return fmt.Errorf("%w: verify_percent %.4f outside [0,1]", ErrConfig, p)
		}
		e.verifyPercent = p
		return nil
	}
}

// WithClock injects the engine's "now" source, in monotonic-wall-clock
// milliseconds. Defaults to time.Now().UnixMilli(). Intended for tests
// (spec §9 design note: "inject for tests").
func WithClock(clock func() int64) Option {
	return func(e *Engine) error {
		if clock == nil {
			return fmt.Errorf("%w: clock must not be nil", ErrConfig)
		}
		e.clock = clock
		return nil
	}
}

// WithRand injects the source used to sample verification, a func
// returning a uniform value in [0, 1). Defaults to math/rand/v2's
// top-level Float64. Intended for deterministic tests.
func WithRand(rnd func() float64) Option {
	return func(e *Engine) error {
		if rnd == nil {
			return fmt.Errorf("%w: rand must not be nil", ErrConfig)
		}
		e.rand = rnd
		return nil
	}
}

// ParseDuration accepts either a bare integer (milliseconds) or a string
// of the form "N(s|m|h|d|w|ms)" with an optional fractional part,
// flooring the result to whole milliseconds. This parser is intentionally
// minimal — the source specification calls duration parsing trivial and
// out of scope for dedicated tooling.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty duration", ErrConfig)
	}
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}

	unit := ""
	numEnd := len(s)
	switch {
	case strings.HasSuffix(s, "ms"):
		unit = "ms"
		numEnd = len(s) - 2
	case strings.HasSuffix(s, "s"), strings.HasSuffix(s, "m"), strings.HasSuffix(s, "h"),
		strings.HasSuffix(s, "d"), strings.HasSuffix(s, "w"):
		unit = s[len(s)-1:]
		numEnd = len(s) - 1
	default:
		return 0, fmt.Errorf("%w: malformed duration %q", ErrConfig, s)
	}

	n, err := strconv.ParseFloat(s[:numEnd], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed duration %q", ErrConfig, s)
	}

	var perUnit time.Duration
	switch unit {
	case "ms":
		perUnit = time.Millisecond
	case "s":
		perUnit = time.Second
	case "m":
		perUnit = time.Minute
	case "h":
		perUnit = time.Hour
	case "d":
		perUnit = 24 * time.Hour
	case "w":
		perUnit = 7 * 24 * time.Hour
	}
	return time.Duration(n * float64(perUnit)).Truncate(time.Millisecond), nil
}
