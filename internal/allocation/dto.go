package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/teamtrackhq/workload-management/internal"
	"github.com/teamtrackhq/workload-management/internal/capacity"
	"github.com/teamtrackhq/workload-management/internal/core/datamodel/allocation"
)

// AddMemberDTO is the request to assign a user to a project.
// SkipValidation bypasses the advisory pre-flight check for trusted bulk
// paths; the backend still re-validates.
type AddMemberDTO struct {
	ProjectID          int64           `json:"project_id"`
	UserID             int64           `json:"user_id"`
	WorkloadPercentage decimal.Decimal `json:"workload_percentage"`
	SkipValidation     bool            `json:"skip_validation,omitempty"`
}

func (dto AddMemberDTO) Validate() error {
	if dto.ProjectID <= 0 {
		return internal.ErrProjectNotFound
	}
	if dto.UserID <= 0 {
		return internal.ErrUserNotFound
	}
	if !dto.WorkloadPercentage.IsPositive() || dto.WorkloadPercentage.GreaterThan(capacity.FullCapacity) {
		return internal.ErrInvalidPercentage
	}
	return nil
}

// UpdateWorkloadDTO rebalances an existing allocation. CurrentPercentage
// is the allocation's own contribution, excluded from the baseline during
// validation.
type UpdateWorkloadDTO struct {
	ProjectID          int64           `json:"project_id"`
	UserID             int64           `json:"user_id"`
	CurrentPercentage  decimal.Decimal `json:"current_percentage"`
	NewPercentage      decimal.Decimal `json:"new_percentage"`
	Reason             string          `json:"reason,omitempty"`
}

func (dto UpdateWorkloadDTO) Validate() error {
	if dto.ProjectID <= 0 {
		return internal.ErrProjectNotFound
	}
	if dto.UserID <= 0 {
		return internal.ErrUserNotFound
	}
	if !dto.NewPercentage.IsPositive() || dto.NewPercentage.GreaterThan(capacity.FullCapacity) {
		return internal.ErrInvalidPercentage
	}
	return nil
}

// BatchAddItem is one (user, workload) pair of a batch assignment.
type BatchAddItem struct {
	UserID             int64           `json:"user_id"`
	WorkloadPercentage decimal.Decimal `json:"workload_percentage"`
}

// BatchAddResult reports one pair's outcome. A failure on one pair never
// rolls back already-committed pairs; partial success is expected.
type BatchAddResult struct {
	UserID     int64                  `json:"user_id"`
	Succeeded  bool                   `json:"succeeded"`
	Allocation *allocation.Allocation `json:"allocation,omitempty"`
	Error      *internal.AppError     `json:"error,omitempty"`
}
