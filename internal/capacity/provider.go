package capacity

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/teamtrackhq/workload-management/internal"
	"github.com/teamtrackhq/workload-management/internal/session"
)

// SnapshotSource is the backend read the provider wraps.
type SnapshotSource interface {
	GetUserCapacity(ctx context.Context, sess *session.Session, userID int64) (*Snapshot, error)
}

// Provider is the sole data source for validation and analytics. It holds
// no authoritative state: snapshots live in a read-through cache with a
// short TTL, because concurrent external mutations are expected and must
// not be masked by stale data. Mutations invalidate proactively.
type Provider struct {
	source SnapshotSource
	cache  *expirable.LRU[int64, *Snapshot]
	logger *slog.Logger
}

func NewProvider(source SnapshotSource, ttl time.Duration, maxEntries int, logger *slog.Logger) *Provider {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 2048
	}
	return &Provider{
		source: source,
		cache:  expirable.NewLRU[int64, *Snapshot](maxEntries, nil, ttl),
		logger: logger,
	}
}

// GetUserCapacity returns the user's current snapshot, fetching from the
// backend unless a fresh cached copy exists. A backend failure means
// capacity is unknown, never zero: callers get RemoteUnavailable and must
// degrade to a non-blocking warning.
func (p *Provider) GetUserCapacity(ctx context.Context, sess *session.Session, userID int64) (*Snapshot, error) {
	if snapshot, ok := p.cache.Get(userID); ok {
		return snapshot, nil
	}

	snapshot, err := p.source.GetUserCapacity(ctx, sess, userID)
	if err != nil {
		if appErr, ok := internal.IsAppError(err); ok {
			return nil, appErr
		}
		p.logger.Error("snapshot fetch failed", "error", err, "user_id", userID)
		return nil, internal.ErrRemoteUnavailable.WithCause(err)
	}

	p.cache.Add(userID, snapshot)
	return snapshot, nil
}

// Invalidate drops the user's cached snapshot so the next read reflects a
// just-committed change without waiting for the freshness window.
func (p *Provider) Invalidate(userID int64) {
	p.cache.Remove(userID)
}

// InvalidateAll drops every cached snapshot.
func (p *Provider) InvalidateAll() {
	p.cache.Purge()
}
