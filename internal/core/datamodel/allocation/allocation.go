package allocation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Allocation records what percentage of a user's capacity is committed to
// a project. Removing a member deactivates the allocation; history is
// never hard-deleted.
type Allocation struct {
	ID                 int64           `json:"id" gorm:"primaryKey"`
	ProjectID          int64           `json:"project_id" gorm:"column:project_id;uniqueIndex:idx_project_user;not null"`
	UserID             int64           `json:"user_id" gorm:"column:user_id;uniqueIndex:idx_project_user;not null"`
	WorkloadPercentage decimal.Decimal `json:"workload_percentage" gorm:"column:workload_percentage;type:decimal(5,2);not null"`
	IsActive           bool            `json:"is_active" gorm:"column:is_active;default:true"`
	JoinedDate         time.Time       `json:"joined_date" gorm:"column:joined_date;type:date"`
	LeftDate           *time.Time      `json:"left_date,omitempty" gorm:"column:left_date;type:date"`
	CreatedAt          time.Time       `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Allocation) TableName() string {
	return "allocations"
}

// WorkloadChange is one audit entry for a workload rebalance.
type WorkloadChange struct {
	ID                    int64           `json:"id" gorm:"primaryKey"`
	AllocationID          int64           `json:"allocation_id" gorm:"column:allocation_id;index;not null"`
	ChangedBy             int64           `json:"changed_by" gorm:"column:changed_by;not null"`
	OldWorkloadPercentage decimal.Decimal `json:"old_workload_percentage" gorm:"column:old_workload_percentage;type:decimal(5,2)"`
	NewWorkloadPercentage decimal.Decimal `json:"new_workload_percentage" gorm:"column:new_workload_percentage;type:decimal(5,2)"`
	Reason                string          `json:"reason,omitempty" gorm:"column:reason"`
	ChangeTimestamp       time.Time       `json:"change_timestamp" gorm:"column:change_timestamp;autoCreateTime"`
}

func (WorkloadChange) TableName() string {
	return "workload_changes"
}
