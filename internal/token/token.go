// Package token models the Directus bearer token and its expiry rules.
//
// A token is valid until its absolute expiry instant and "expiring" during the
// final refresh window before it, which signals that a refresh should replace
// it before it stops working server-side.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultTTL is the lifetime assigned to a freshly issued token.
	DefaultTTL = 1200 * time.Second

	// DefaultThreshold is the window before expiry in which a token is expiring.
	DefaultThreshold = 60 * time.Second
)

// Option configures a Token.
type Option func(*config)

type config struct {
	ttl       time.Duration
	threshold time.Duration
	now       func() time.Time
}

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithThreshold overrides DefaultThreshold. Negative values are ignored.
func WithThreshold(threshold time.Duration) Option {
	return func(c *config) {
		if threshold >= 0 {
			c.threshold = threshold
		}
	}
}

// WithClock sets the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

func newConfig(opts []Option) *config {
	cfg := &config{
		ttl:       DefaultTTL,
		threshold: DefaultThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Token is an opaque bearer credential with an absolute expiry.
// The expiry is never extended; Expire is the only way to move it.
type Token struct {
	value     string
	threshold time.Duration
	now       func() time.Time

	mu        sync.RWMutex
	expiresAt time.Time
}

// New creates a token that expires one TTL from now.
func New(value string, opts ...Option) *Token {
	cfg := newConfig(opts)
	return &Token{
		value:     value,
		threshold: cfg.threshold,
		now:       cfg.now,
		expiresAt: cfg.now().Add(cfg.ttl),
	}
}

// Restore recreates a previously issued token with its original expiry.
// WithTTL has no effect here.
func Restore(value string, expiresAt time.Time, opts ...Option) *Token {
	cfg := newConfig(opts)
	return &Token{
		value:     value,
		threshold: cfg.threshold,
		now:       cfg.now,
		expiresAt: expiresAt,
	}
}

// Value returns the credential string.
func (t *Token) Value() string {
	return t.value
}

// ExpiresAt returns the absolute expiry instant.
func (t *Token) ExpiresAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.expiresAt
}

// Threshold returns the refresh window before expiry.
func (t *Token) Threshold() time.Duration {
	return t.threshold
}

// Valid reports whether the token has not yet expired.
func (t *Token) Valid() bool {
	return t.now().Before(t.ExpiresAt())
}

// Expired is the complement of Valid.
func (t *Token) Expired() bool {
	return !t.Valid()
}

// Expiring reports whether the token is still valid but inside the refresh window.
func (t *Token) Expiring() bool {
	now := t.now()
	expiresAt := t.ExpiresAt()
	return now.Before(expiresAt) && !now.Add(t.threshold).Before(expiresAt)
}

// Expire moves the expiry to now. Calling it again has no further effect
// on the token's state: it stays expired.
func (t *Token) Expire() {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Before(t.expiresAt) {
		t.expiresAt = now
	}
}

// String never includes the credential itself.
func (t *Token) String() string {
	return fmt.Sprintf("token(expires_at=%s, expired=%t)", t.ExpiresAt().Format(time.RFC3339), t.Expired())
}

// record is the persisted form of a Token.
type record struct {
	Value     string        `json:"value"`
	ExpiresAt time.Time     `json:"expires_at"`
	Threshold *time.Duration `json:"threshold,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (t *Token) MarshalJSON() ([]byte, error) {
	return json.Marshal(record{
		Value:     t.value,
		ExpiresAt: t.ExpiresAt(),
		Threshold: &t.threshold,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Decoded tokens use the wall clock.
func (t *Token) UnmarshalJSON(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	if r.Value == "" {
		return errors.New("token: missing value")
	}
	if r.ExpiresAt.IsZero() {
		return errors.New("token: missing expires_at")
	}

	// Records written without a threshold get the default; zero is kept
	threshold := DefaultThreshold
	if r.Threshold != nil && *r.Threshold >= 0 {
		threshold = *r.Threshold
	}

	t.value = r.Value
	t.threshold = threshold
	t.now = time.Now
	t.mu.Lock()
	t.expiresAt = r.ExpiresAt
	t.mu.Unlock()
	return nil
}
