package allocation

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"

	"github.com/teamtrackhq/workload-management/internal"
	"github.com/teamtrackhq/workload-management/internal/capacity"
	"github.com/teamtrackhq/workload-management/internal/core/datamodel/allocation"
	"github.com/teamtrackhq/workload-management/internal/gateway"
	"github.com/teamtrackhq/workload-management/internal/session"
)

// Backend is the slice of the gateway the orchestrator needs.
type Backend interface {
	AddProjectMember(ctx context.Context, sess *session.Session, projectID, userID int64, workload decimal.Decimal) (*allocation.Allocation, error)
	UpdateMemberWorkload(ctx context.Context, sess *session.Session, projectID, userID int64, workload decimal.Decimal, reason string) (*allocation.Allocation, error)
	RemoveProjectMember(ctx context.Context, sess *session.Session, projectID, userID int64) error
	GetProjectMembers(ctx context.Context, sess *session.Session, projectID int64) ([]gateway.Member, error)
	GetWorkloadHistory(ctx context.Context, sess *session.Session, projectID, userID int64) ([]allocation.WorkloadChange, error)
}

// SnapshotProvider supplies capacity snapshots for pre-flight validation
// and accepts invalidations after commits.
type SnapshotProvider interface {
	GetUserCapacity(ctx context.Context, sess *session.Session, userID int64) (*capacity.Snapshot, error)
	Invalidate(userID int64)
}

// RollupCache is any open analytics rollup that must not survive a
// workload mutation.
type RollupCache interface {
	InvalidateRollup()
}

type memberKey struct {
	projectID int64
	userID    int64
}

// Service sequences read-validate-write for allocation mutations. The
// snapshot read is not atomic with the write: the backend re-validates at
// commit time and is the sole source of truth, the pre-flight check only
// gives fast feedback and stops obviously-invalid submissions.
type Service struct {
	backend   Backend
	provider  SnapshotProvider
	validator *capacity.Validator
	rollups   RollupCache
	members   *expirable.LRU[int64, []gateway.Member]
	history   *expirable.LRU[memberKey, []allocation.WorkloadChange]
	logger    *slog.Logger
}

func NewService(backend Backend, provider SnapshotProvider, validator *capacity.Validator, rollups RollupCache, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{
		backend:   backend,
		provider:  provider,
		validator: validator,
		rollups:   rollups,
		members:   expirable.NewLRU[int64, []gateway.Member](512, nil, ttl),
		history:   expirable.NewLRU[memberKey, []allocation.WorkloadChange](512, nil, ttl),
		logger:    logger,
	}
}

// Add assigns a user to a project. Pre-flight failures resolve without
// contacting the backend; a backend rejection surfaces the server's
// message verbatim.
func (s *Service) Add(ctx context.Context, sess *session.Session, dto AddMemberDTO) (*allocation.Allocation, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Warn("add member rejected pre-flight", "error", err, "project_id", dto.ProjectID, "user_id", dto.UserID)
		return nil, err
	}

	if !dto.SkipValidation {
		if err := s.preflightAdd(ctx, sess, dto); err != nil {
			return nil, err
		}
	}

	created, err := s.backend.AddProjectMember(ctx, sess, dto.ProjectID, dto.UserID, dto.WorkloadPercentage)
	if err != nil {
		s.logger.Error("add member failed", "error", err, "project_id", dto.ProjectID, "user_id", dto.UserID)
		return nil, err
	}

	s.applyInvalidation(MutationAdd, dto.ProjectID, dto.UserID)

	s.logger.Info("member added",
		"project_id", dto.ProjectID,
		"user_id", dto.UserID,
		"workload", dto.WorkloadPercentage)

	return created, nil
}

// Update rebalances an existing allocation, validated against the user's
// other commitments only.
func (s *Service) Update(ctx context.Context, sess *session.Session, dto UpdateWorkloadDTO) (*allocation.Allocation, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Warn("update workload rejected pre-flight", "error", err, "project_id", dto.ProjectID, "user_id", dto.UserID)
		return nil, err
	}

	snapshot, err := s.provider.GetUserCapacity(ctx, sess, dto.UserID)
	if err != nil {
		if !internal.IsCode(err, internal.ErrCodeRemoteUnavailable) {
			return nil, err
		}
		// Capacity unknown: skip the advisory check, the backend still
		// re-validates at commit time.
		s.logger.Warn("snapshot unavailable, submitting without pre-flight validation", "user_id", dto.UserID)
	} else {
		result, err := s.validator.ValidateUpdate(snapshot, dto.CurrentPercentage, dto.NewPercentage)
		if err != nil {
			return nil, err
		}
		if !result.IsValid {
			return nil, internal.ErrWorkloadExceeded.WithMessage(result.Message).WithDetails(result)
		}
	}

	updated, err := s.backend.UpdateMemberWorkload(ctx, sess, dto.ProjectID, dto.UserID, dto.NewPercentage, dto.Reason)
	if err != nil {
		s.logger.Error("update workload failed", "error", err, "project_id", dto.ProjectID, "user_id", dto.UserID)
		return nil, err
	}

	s.applyInvalidation(MutationUpdate, dto.ProjectID, dto.UserID)

	s.logger.Info("workload updated",
		"project_id", dto.ProjectID,
		"user_id", dto.UserID,
		"workload", dto.NewPercentage,
		"changed_by", sess.UserID)

	return updated, nil
}

// Remove deactivates the allocation. The backend keeps the row, so
// removing an already-inactive allocation is a no-op with respect to the
// capacity invariant.
func (s *Service) Remove(ctx context.Context, sess *session.Session, projectID, userID int64) error {
	if err := s.backend.RemoveProjectMember(ctx, sess, projectID, userID); err != nil {
		s.logger.Error("remove member failed", "error", err, "project_id", projectID, "user_id", userID)
		return err
	}

	s.applyInvalidation(MutationRemove, projectID, userID)

	s.logger.Info("member removed", "project_id", projectID, "user_id", userID)
	return nil
}

// BatchAdd assigns several users to one project. Each pair is validated
// and submitted independently and sequentially; one failure never rolls
// back already-committed pairs.
func (s *Service) BatchAdd(ctx context.Context, sess *session.Session, projectID int64, items []BatchAddItem) []BatchAddResult {
	results := make([]BatchAddResult, 0, len(items))

	for _, item := range items {
		created, err := s.Add(ctx, sess, AddMemberDTO{
			ProjectID:          projectID,
			UserID:             item.UserID,
			WorkloadPercentage: item.WorkloadPercentage,
		})

		result := BatchAddResult{UserID: item.UserID}
		if err != nil {
			if appErr, ok := internal.IsAppError(err); ok {
				result.Error = appErr
			} else {
				result.Error = internal.NewInternalError("assignment failed", err)
			}
		} else {
			result.Succeeded = true
			result.Allocation = created
		}
		results = append(results, result)
	}

	return results
}

// GetProjectMembers is a read-through over the backend member list.
func (s *Service) GetProjectMembers(ctx context.Context, sess *session.Session, projectID int64) ([]gateway.Member, error) {
	if members, ok := s.members.Get(projectID); ok {
		return members, nil
	}
	members, err := s.backend.GetProjectMembers(ctx, sess, projectID)
	if err != nil {
		return nil, err
	}
	s.members.Add(projectID, members)
	return members, nil
}

// GetWorkloadHistory returns the member's audit trail, newest first as
// ordered by the backend.
func (s *Service) GetWorkloadHistory(ctx context.Context, sess *session.Session, projectID, userID int64) ([]allocation.WorkloadChange, error) {
	key := memberKey{projectID: projectID, userID: userID}
	if changes, ok := s.history.Get(key); ok {
		return changes, nil
	}
	changes, err := s.backend.GetWorkloadHistory(ctx, sess, projectID, userID)
	if err != nil {
		return nil, err
	}
	s.history.Add(key, changes)
	return changes, nil
}

func (s *Service) preflightAdd(ctx context.Context, sess *session.Session, dto AddMemberDTO) error {
	snapshot, err := s.provider.GetUserCapacity(ctx, sess, dto.UserID)
	if err != nil {
		if internal.IsCode(err, internal.ErrCodeRemoteUnavailable) {
			s.logger.Warn("snapshot unavailable, submitting without pre-flight validation", "user_id", dto.UserID)
			return nil
		}
		return err
	}

	result, err := s.validator.ValidateAddition(snapshot, dto.WorkloadPercentage)
	if err != nil {
		return err
	}
	if !result.IsValid {
		return internal.ErrWorkloadExceeded.WithMessage(result.Message).WithDetails(result)
	}
	return nil
}

// applyInvalidation walks the declared invalidation set for the mutation
// so immediately-subsequent reads in the same session see the commit.
func (s *Service) applyInvalidation(kind MutationKind, projectID, userID int64) {
	for _, key := range InvalidationSet(kind, projectID, userID) {
		switch key.Kind {
		case KindUserSnapshot:
			s.provider.Invalidate(key.UserID)
		case KindProjectMembers:
			s.members.Remove(key.ProjectID)
		case KindAnalyticsRollup:
			if s.rollups != nil {
				s.rollups.InvalidateRollup()
			}
		case KindWorkloadHistory:
			s.history.Remove(memberKey{projectID: key.ProjectID, userID: key.UserID})
		}
	}
}
