// Package ratelimit throttles reservation-creation attempts.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

// realClock implements Clock using the system time.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds rate limit configuration.
type Config struct {
	CreateCooldown     time.Duration // Minimum time between create attempts per user (default: 3s)
	CreateMaxPerHour   int           // Max create attempts per user per hour (default: 30)
	CreateMaxIPPerHour int           // Max create attempts per IP per hour (default: 60)

	// Clock for testing (nil uses real time)
	Clock Clock
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		CreateCooldown:     3 * time.Second,
		CreateMaxPerHour:   30,
		CreateMaxIPPerHour: 60,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string // For logging
}

// entry tracks request counts and timestamps within the current window.
type entry struct {
	count   int
	firstAt time.Time
	lastAt  time.Time
}

// Limiter throttles reservation creation per user and per source IP.
type Limiter struct {
	config *Config
	clock  Clock
	mu     sync.Mutex
	// Keyed by hash of user id or IP
	byUser map[string]*entry
	byIP   map[string]*entry
}

// New creates a new rate limiter with the given config.
func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &Limiter{
		config: cfg,
		clock:  clock,
		byUser: make(map[string]*entry),
		byIP:   make(map[string]*entry),
	}
}

// AllowCreate checks whether a create attempt by the given user from the
// given IP is allowed, and records it if so.
func (l *Limiter) AllowCreate(userID, ip string) LimitResult {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)

	userKey := hashKey(userID)
	if e, ok := l.byUser[userKey]; ok {
		if l.config.CreateCooldown > 0 {
			if wait := l.config.CreateCooldown - now.Sub(e.lastAt); wait > 0 {
				return LimitResult{RetryAfter: wait, Reason: "create cooldown"}
			}
		}
		if l.config.CreateMaxPerHour > 0 && e.count >= l.config.CreateMaxPerHour {
			return LimitResult{RetryAfter: e.firstAt.Add(time.Hour).Sub(now), Reason: "user hourly limit"}
		}
	}

	ipKey := hashKey(ip)
	if e, ok := l.byIP[ipKey]; ok {
		if l.config.CreateMaxIPPerHour > 0 && e.count >= l.config.CreateMaxIPPerHour {
			return LimitResult{RetryAfter: e.firstAt.Add(time.Hour).Sub(now), Reason: "ip hourly limit"}
		}
	}

	record(l.byUser, userKey, now)
	record(l.byIP, ipKey, now)
	return LimitResult{Allowed: true}
}

func record(m map[string]*entry, key string, now time.Time) {
	e, ok := m[key]
	if !ok {
		m[key] = &entry{count: 1, firstAt: now, lastAt: now}
		return
	}
	e.count++
	e.lastAt = now
}

// pruneLocked drops entries whose hourly window has elapsed.
func (l *Limiter) pruneLocked(now time.Time) {
	for _, m := range []map[string]*entry{l.byUser, l.byIP} {
		for key, e := range m {
			if now.Sub(e.firstAt) >= time.Hour {
				delete(m, key)
			}
		}
	}
}

func hashKey(value string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(value))))
	return hex.EncodeToString(sum[:])
}

// ClientIP extracts the caller IP, preferring X-Forwarded-For when the
// service runs behind a proxy.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
