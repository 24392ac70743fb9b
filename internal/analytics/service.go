package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teamtrackhq/workload-management/internal"
	"github.com/teamtrackhq/workload-management/internal/capacity"
	"github.com/teamtrackhq/workload-management/internal/session"
)

// SnapshotLister fetches the population's snapshots from the backend's
// aggregate endpoint.
type SnapshotLister interface {
	GetWorkloadSnapshots(ctx context.Context, sess *session.Session) ([]capacity.Snapshot, error)
}

// Service caches one system-wide rollup inside a short freshness window.
// Any workload mutation invalidates it proactively through the
// orchestrator's invalidation table.
type Service struct {
	backend SnapshotLister
	ttl     time.Duration
	topN    int
	logger  *slog.Logger

	mu        sync.Mutex
	rollup    *Rollup
	fetchedAt time.Time
}

func NewService(backend SnapshotLister, ttl time.Duration, topN int, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Service{
		backend: backend,
		ttl:     ttl,
		topN:    topN,
		logger:  logger,
	}
}

// GetWorkloadAnalytics returns the current rollup, refetching the
// population when the cached one has gone stale.
func (s *Service) GetWorkloadAnalytics(ctx context.Context, sess *session.Session) (*Rollup, error) {
	s.mu.Lock()
	if s.rollup != nil && time.Since(s.fetchedAt) < s.ttl {
		rollup := s.rollup
		s.mu.Unlock()
		return rollup, nil
	}
	s.mu.Unlock()

	snapshots, err := s.backend.GetWorkloadSnapshots(ctx, sess)
	if err != nil {
		if appErr, ok := internal.IsAppError(err); ok {
			return nil, appErr
		}
		s.logger.Error("analytics fetch failed", "error", err)
		return nil, internal.ErrRemoteUnavailable.WithCause(err)
	}

	rollup := Aggregate(snapshots, s.topN)

	s.mu.Lock()
	s.rollup = rollup
	s.fetchedAt = time.Now()
	s.mu.Unlock()

	s.logger.Debug("analytics rollup refreshed",
		"users", len(snapshots),
		"overloaded", rollup.OverloadedUsers)

	return rollup, nil
}

// InvalidateRollup drops the cached rollup. Satisfies the orchestrator's
// RollupCache dependency.
func (s *Service) InvalidateRollup() {
	s.mu.Lock()
	s.rollup = nil
	s.mu.Unlock()
}
