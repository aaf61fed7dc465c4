package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	apierrors "licsrv/internal/errors"
	"licsrv/internal/infrastructure"
)

// Actions guarded by ActionLimiter.
const (
	ActionTrialCreate   = "trial_create"
	ActionForgotLicense = "forgot_license"
	ActionLoginValidate = "login_validate"
)

// maxBackoff caps how much a repeat offender's block grows.
const maxBackoff = 8

// sweepEvery is the number of checks between sweeps of idle identities.
const sweepEvery = 1000

// Policy is a sliding window limit for one action.
type Policy struct {
	MaxRequests int
	Window      time.Duration
	Block       time.Duration
}

// DefaultPolicies returns the production limits.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		ActionTrialCreate:   {MaxRequests: 3, Window: 24 * time.Hour, Block: time.Hour},
		ActionForgotLicense: {MaxRequests: 5, Window: time.Hour, Block: 30 * time.Minute},
		ActionLoginValidate: {MaxRequests: 10, Window: 10 * time.Minute, Block: 15 * time.Minute},
	}
}

// Identity is the set of request attributes an action is limited by. Only the
// non-empty parts take part.
type Identity struct {
	Email      string
	IP         string
	HardwareID string
}

// Hash returns the opaque key the limiter stores. Emails are compared case
// insensitively.
func (id Identity) Hash() string {
	var parts []string
	if id.Email != "" {
		parts = append(parts, "email:"+strings.ToLower(strings.TrimSpace(id.Email)))
	}
	if id.IP != "" {
		parts = append(parts, "ip:"+id.IP)
	}
	if id.HardwareID != "" {
		parts = append(parts, "hw:"+id.HardwareID)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}

type identityState struct {
	hits         []time.Time
	blockedUntil time.Time
	violations   int
}

// ActionLimiter limits individual actions per identity. An identity that
// exceeds a policy is blocked, and the block doubles for each violation that
// follows within a window of the previous block, up to 8x.
type ActionLimiter struct {
	policies map[string]Policy
	metrics  *infrastructure.EntitlementMetrics
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	state  map[string]*identityState
	checks int
}

// NewActionLimiter creates a limiter. A nil policies map uses DefaultPolicies.
func NewActionLimiter(policies map[string]Policy, metrics *infrastructure.EntitlementMetrics, logger *slog.Logger) *ActionLimiter {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &ActionLimiter{
		policies: policies,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "action_limiter")),
		now:      time.Now,
		state:    make(map[string]*identityState),
	}
}

// Allow records one attempt of action by id. It returns a
// *errors.RateLimitError when the identity is blocked. Unknown actions are
// always allowed.
func (l *ActionLimiter) Allow(ctx context.Context, action string, id Identity) error {
	policy, ok := l.policies[action]
	if !ok {
		l.logger.WarnContext(ctx, "unknown rate limit action", slog.String("action", action))
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.checks++
	if l.checks%sweepEvery == 0 {
		l.sweepLocked(now)
	}

	key := action + ":" + id.Hash()
	st, ok := l.state[key]
	if !ok {
		st = &identityState{}
		l.state[key] = st
	}

	if now.Before(st.blockedUntil) {
		retry := st.blockedUntil.Sub(now)
		l.reject(ctx, action, st, retry)
		return &apierrors.RateLimitError{Action: action, RetryAfter: retry}
	}

	// Violations are forgiven after a clean window following the last block.
	if st.violations > 0 && !now.Before(st.blockedUntil.Add(policy.Window)) {
		st.violations = 0
	}

	st.hits = pruneBefore(st.hits, now.Add(-policy.Window))
	if len(st.hits) >= policy.MaxRequests {
		st.violations++
		block := policy.Block * time.Duration(backoff(st.violations))
		st.blockedUntil = now.Add(block)
		l.reject(ctx, action, st, block)
		return &apierrors.RateLimitError{Action: action, RetryAfter: block}
	}

	st.hits = append(st.hits, now)
	l.logger.DebugContext(ctx, "rate limit check passed",
		slog.String("action", action),
		slog.Int("remaining", policy.MaxRequests-len(st.hits)),
	)
	return nil
}

func (l *ActionLimiter) reject(ctx context.Context, action string, st *identityState, retry time.Duration) {
	l.logger.WarnContext(ctx, "rate limit exceeded",
		slog.String("action", action),
		slog.Int("violations", st.violations),
		slog.Duration("retry_after", retry.Round(time.Second)),
	)
	l.metrics.RecordRateLimited(ctx, action)
}

// Reset forgets every action for id and reports whether anything was held.
func (l *ActionLimiter) Reset(id Identity) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	suffix := ":" + id.Hash()
	found := false
	for key := range l.state {
		if strings.HasSuffix(key, suffix) {
			delete(l.state, key)
			found = true
		}
	}
	return found
}

// Sweep drops identities with no recent attempts and no active penalty.
func (l *ActionLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(l.now())
}

func (l *ActionLimiter) sweepLocked(now time.Time) int {
	removed := 0
	for key, st := range l.state {
		action, _, _ := strings.Cut(key, ":")
		policy := l.policies[action]
		st.hits = pruneBefore(st.hits, now.Add(-policy.Window))
		if len(st.hits) == 0 && !now.Before(st.blockedUntil.Add(policy.Window)) {
			delete(l.state, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked identities.
func (l *ActionLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.state)
}

// backoff returns the block multiplier for the n-th consecutive violation.
func backoff(n int) int {
	mult := 1
	for i := 1; i < n && mult < maxBackoff; i++ {
		mult *= 2
	}
	return mult
}

// pruneBefore drops timestamps older than cutoff. hits is ordered.
func pruneBefore(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && hits[i].Before(cutoff) {
		i++
	}
	return hits[i:]
}
