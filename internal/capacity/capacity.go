// Package capacity tracks how much of a user's finite work capacity is
// committed across active project assignments, and validates proposed
// changes against it before they reach the backend.
package capacity

import (
	"github.com/shopspring/decimal"

	"github.com/teamtrackhq/workload-management/internal/core/datamodel/user"
)

// FullCapacity is the total capacity every user has to allocate,
// regardless of role.
var FullCapacity = decimal.NewFromInt(100)

// Severity grades a validation outcome. It is distinct from a hard
// pass/fail: a warning result is still submittable.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Rank orders severities so monotonicity can be asserted: success <
// warning < error.
func (s Severity) Rank() int {
	switch s {
	case SeveritySuccess:
		return 0
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	default:
		return 3
	}
}

// Snapshot is a point-in-time read of one user's aggregate workload,
// recomputed on demand from the active allocations. It is never persisted
// and never cached beyond a short staleness window.
type Snapshot struct {
	UserID             int64           `json:"userId"`
	UserName           string          `json:"userName"`
	Email              string          `json:"email"`
	Role               user.Role       `json:"role"`
	TotalWorkload      decimal.Decimal `json:"totalWorkload"`
	AvailableCapacity  decimal.Decimal `json:"availableCapacity"`
	ActiveProjectCount int             `json:"activeProjectCount"`
	IsOverloaded       bool            `json:"isOverloaded"`
}

// NewSnapshot derives the available/overloaded fields from a total.
// Available capacity never goes negative even when the user is overloaded.
func NewSnapshot(u user.User, totalWorkload decimal.Decimal, activeProjects int) *Snapshot {
	available := FullCapacity.Sub(totalWorkload)
	if available.IsNegative() {
		available = decimal.Zero
	}
	return &Snapshot{
		UserID:             u.ID,
		UserName:           u.Name,
		Email:              u.Email,
		Role:               u.Role,
		TotalWorkload:      totalWorkload,
		AvailableCapacity:  available,
		ActiveProjectCount: activeProjects,
		IsOverloaded:       totalWorkload.GreaterThan(FullCapacity),
	}
}

// ValidationResult is produced per validation call and never persisted.
// It always carries the numeric breakdown so the user can self-correct.
type ValidationResult struct {
	IsValid              bool            `json:"isValid"`
	Severity             Severity        `json:"severity"`
	CurrentWorkload      decimal.Decimal `json:"currentWorkload"`
	RequestedWorkload    decimal.Decimal `json:"requestedWorkload"`
	TotalAfterAssignment decimal.Decimal `json:"totalAfterAssignment"`
	AvailableCapacity    decimal.Decimal `json:"availableCapacity"`
	Message              string          `json:"message"`
}
