// Package validation guards every path by which outside input reaches a
// fighter: wire message checks for the network layer and the setter gate
// used by the engine.
package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Wire limits
const (
	MaxMessageSize      = 64 * 1024 // 64KB max inbound message
	MaxFighterIDLen     = 64
	MaxClientNameLen    = 32
	DefaultCommandRate  = 20
	DefaultRateInterval = time.Second
)

var validClientNameChars = regexp.MustCompile(`^[a-zA-Z0-9\s\-_.]+$`)

// MessageValidator checks raw inbound frames before they are decoded.
type MessageValidator struct {
	rateLimiter *RateLimiter
	maxPerStep  int
}

// NewMessageValidator creates a validator allowing maxPerInterval messages
// per client in each interval. Non-positive arguments select the defaults.
func NewMessageValidator(maxPerInterval int, interval time.Duration) *MessageValidator {
	if maxPerInterval <= 0 {
		maxPerInterval = DefaultCommandRate
	}
	if interval <= 0 {
		interval = DefaultRateInterval
	}
	return &MessageValidator{
		rateLimiter: NewRateLimiter(maxPerInterval, interval),
		maxPerStep:  maxPerInterval,
	}
}

// Close releases resources used by the message validator
func (v *MessageValidator) Close() {
	if v.rateLimiter != nil {
		v.rateLimiter.Close()
	}
}

// Forget drops the rate state of a disconnected client.
func (v *MessageValidator) Forget(clientID string) {
	v.rateLimiter.Forget(clientID)
}

// ValidateMessage validates a raw message against size, format and rate.
func (v *MessageValidator) ValidateMessage(data []byte, clientID string) error {
	if len(data) > MaxMessageSize {
		return fmt.Errorf("message too large: %d bytes (max %d)", len(data), MaxMessageSize)
	}

	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON format")
	}

	if !v.rateLimiter.Allow(clientID) {
		return fmt.Errorf("rate limit exceeded: max %d messages per interval", v.maxPerStep)
	}

	return nil
}

// ValidateFighterID checks an identifier received from a client. IDs are
// compared byte for byte, so no trimming or escaping is applied.
func ValidateFighterID(id string) error {
	if id == "" {
		return fmt.Errorf("fighter id cannot be empty")
	}
	if len(id) > MaxFighterIDLen {
		return fmt.Errorf("fighter id too long: %d bytes (max %d)", len(id), MaxFighterIDLen)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("fighter id contains invalid UTF-8")
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return fmt.Errorf("fighter id contains control characters")
		}
	}
	return nil
}

// ValidateClientName validates and trims the name a client sends in its
// hello message.
func ValidateClientName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("client name cannot be empty")
	}

	if len(name) > MaxClientNameLen {
		return "", fmt.Errorf("client name too long: %d characters (max %d)", len(name), MaxClientNameLen)
	}

	if !utf8.ValidString(name) {
		return "", fmt.Errorf("client name contains invalid UTF-8 characters")
	}

	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("client name cannot be only whitespace")
	}

	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("client name contains control characters")
		}
	}

	if !validClientNameChars.MatchString(trimmed) {
		return "", fmt.Errorf("client name contains invalid characters (only alphanumeric, spaces, hyphens, underscores and dots allowed)")
	}

	return trimmed, nil
}
