package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/crucible-dev/crucible/internal/port/cache"
)

// Checker evaluates commands with a cache in front of the pattern scan.
// Agents tend to re-run the same commands (installs, builds, test loops),
// so verdicts are memoized by command hash.
type Checker struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewChecker wraps the pattern checks with the given verdict cache.
func NewChecker(c cache.Cache, ttl time.Duration) *Checker {
	return &Checker{cache: c, ttl: ttl}
}

// Check returns the verdict for cmd, consulting the cache first. Cache
// failures fall through to a fresh evaluation.
func (c *Checker) Check(ctx context.Context, cmd string) Verdict {
	key := verdictKey(cmd)

	if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		var v Verdict
		if jsonErr := json.Unmarshal(data, &v); jsonErr == nil {
			return v
		}
	}

	v := CheckCommand(cmd)

	data, err := json.Marshal(v)
	if err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			slog.Debug("verdict cache write failed", "error", err)
		}
	}
	return v
}

// IsBlocked reports whether cmd matches the denylist, using the cache.
func (c *Checker) IsBlocked(ctx context.Context, cmd string) bool {
	return !c.Check(ctx, cmd).Allowed
}

// RequiresApproval reports whether cmd is allowed but flagged, using the cache.
func (c *Checker) RequiresApproval(ctx context.Context, cmd string) bool {
	v := c.Check(ctx, cmd)
	return v.Allowed && v.Level == LevelCaution
}

func verdictKey(cmd string) string {
	sum := sha256.Sum256([]byte(cmd))
	return "verdict:" + hex.EncodeToString(sum[:16])
}
