// Package backendstub is a small system-of-record implementing the
// workload backend contract, used for local development and integration
// tests. It is the final authority in those environments: every mutation
// is re-validated at commit time regardless of what the client checked.
package backendstub

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/teamtrackhq/workload-management/internal"
	"github.com/teamtrackhq/workload-management/internal/capacity"
	allocmodel "github.com/teamtrackhq/workload-management/internal/core/datamodel/allocation"
	projectmodel "github.com/teamtrackhq/workload-management/internal/core/datamodel/project"
	usermodel "github.com/teamtrackhq/workload-management/internal/core/datamodel/user"
)

// Store owns the stub's persistence. Commit-time validation lives here so
// it holds even when two clients race on the same user.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema. The goose migrations under db/migrations
// are the canonical DDL for deployed stubs; AutoMigrate covers in-memory
// test databases.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&usermodel.User{},
		&projectmodel.Project{},
		&allocmodel.Allocation{},
		&allocmodel.WorkloadChange{},
	)
}

func (s *Store) CreateUser(u *usermodel.User) error {
	return s.db.Create(u).Error
}

func (s *Store) CreateProject(p *projectmodel.Project) error {
	return s.db.Create(p).Error
}

func (s *Store) getUser(userID int64) (*usermodel.User, error) {
	var u usermodel.User
	if err := s.db.First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) getProject(projectID int64) (*projectmodel.Project, error) {
	var p projectmodel.Project
	if err := s.db.First(&p, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrProjectNotFound
		}
		return nil, err
	}
	return &p, nil
}

// activeTotal sums the user's active allocations, optionally excluding
// one allocation row (the one being edited).
func (s *Store) activeTotal(tx *gorm.DB, userID int64, excludeID int64) (decimal.Decimal, int, error) {
	var allocations []allocmodel.Allocation
	query := tx.Where("user_id = ? AND is_active = ?", userID, true)
	if excludeID > 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Find(&allocations).Error; err != nil {
		return decimal.Zero, 0, err
	}

	total := decimal.Zero
	for _, a := range allocations {
		total = total.Add(a.WorkloadPercentage)
	}
	return total, len(allocations), nil
}

// UserSnapshot recomputes the user's aggregate workload from the current
// active allocations.
func (s *Store) UserSnapshot(userID int64) (*capacity.Snapshot, error) {
	u, err := s.getUser(userID)
	if err != nil {
		return nil, err
	}

	total, count, err := s.activeTotal(s.db, userID, 0)
	if err != nil {
		return nil, err
	}
	return capacity.NewSnapshot(*u, total, count), nil
}

// AllSnapshots returns the whole population, one snapshot per user.
func (s *Store) AllSnapshots() ([]capacity.Snapshot, error) {
	var users []usermodel.User
	if err := s.db.Order("id").Find(&users).Error; err != nil {
		return nil, err
	}

	snapshots := make([]capacity.Snapshot, 0, len(users))
	for _, u := range users {
		total, count, err := s.activeTotal(s.db, u.ID, 0)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *capacity.NewSnapshot(u, total, count))
	}
	return snapshots, nil
}

// ProjectMembers lists active and inactive members with their users.
func (s *Store) ProjectMembers(projectID int64) ([]allocmodel.Allocation, []usermodel.User, error) {
	if _, err := s.getProject(projectID); err != nil {
		return nil, nil, err
	}

	var allocations []allocmodel.Allocation
	if err := s.db.Where("project_id = ?", projectID).Order("id").Find(&allocations).Error; err != nil {
		return nil, nil, err
	}

	users := make([]usermodel.User, 0, len(allocations))
	for _, a := range allocations {
		u, err := s.getUser(a.UserID)
		if err != nil {
			return nil, nil, err
		}
		users = append(users, *u)
	}
	return allocations, users, nil
}

// AddMember creates (or reactivates) an allocation after re-validating
// the capacity invariant inside the transaction.
func (s *Store) AddMember(projectID, userID int64, workload decimal.Decimal) (*allocmodel.Allocation, error) {
	if _, err := s.getProject(projectID); err != nil {
		return nil, err
	}
	if _, err := s.getUser(userID); err != nil {
		return nil, err
	}
	if !workload.IsPositive() || workload.GreaterThan(capacity.FullCapacity) {
		return nil, internal.ErrInvalidPercentage
	}

	var created *allocmodel.Allocation
	err := s.db.Transaction(func(tx *gorm.DB) error {
		total, _, err := s.activeTotal(tx, userID, 0)
		if err != nil {
			return err
		}
		if err := checkCap(total, workload); err != nil {
			return err
		}

		var existing allocmodel.Allocation
		err = tx.Where("project_id = ? AND user_id = ?", projectID, userID).First(&existing).Error
		switch {
		case err == nil && existing.IsActive:
			return internal.ErrRemoteRejected.WithMessage("user is already an active member of this project")
		case err == nil:
			// Reactivate the historical row rather than creating a duplicate.
			existing.IsActive = true
			existing.WorkloadPercentage = workload
			existing.JoinedDate = time.Now()
			existing.LeftDate = nil
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			created = &existing
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			a := allocmodel.Allocation{
				ProjectID:          projectID,
				UserID:             userID,
				WorkloadPercentage: workload,
				IsActive:           true,
				JoinedDate:         time.Now(),
			}
			if err := tx.Create(&a).Error; err != nil {
				return err
			}
			created = &a
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateWorkload rebalances an active allocation and appends an audit
// entry.
func (s *Store) UpdateWorkload(projectID, userID int64, workload decimal.Decimal, reason string, changedBy int64) (*allocmodel.Allocation, error) {
	if !workload.IsPositive() || workload.GreaterThan(capacity.FullCapacity) {
		return nil, internal.ErrInvalidPercentage
	}

	var updated *allocmodel.Allocation
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var a allocmodel.Allocation
		err := tx.Where("project_id = ? AND user_id = ? AND is_active = ?", projectID, userID, true).First(&a).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return internal.ErrAllocationNotFound
			}
			return err
		}

		total, _, err := s.activeTotal(tx, userID, a.ID)
		if err != nil {
			return err
		}
		if err := checkCap(total, workload); err != nil {
			return err
		}

		change := allocmodel.WorkloadChange{
			AllocationID:          a.ID,
			ChangedBy:             changedBy,
			OldWorkloadPercentage: a.WorkloadPercentage,
			NewWorkloadPercentage: workload,
			Reason:                reason,
			ChangeTimestamp:       time.Now(),
		}
		if err := tx.Create(&change).Error; err != nil {
			return err
		}

		a.WorkloadPercentage = workload
		if err := tx.Save(&a).Error; err != nil {
			return err
		}
		updated = &a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveMember deactivates the allocation. Removing an already-inactive
// allocation is a no-op, never a double subtraction.
func (s *Store) RemoveMember(projectID, userID int64) error {
	var a allocmodel.Allocation
	err := s.db.Where("project_id = ? AND user_id = ?", projectID, userID).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return internal.ErrAllocationNotFound
		}
		return err
	}

	if !a.IsActive {
		return nil
	}

	now := time.Now()
	a.IsActive = false
	a.LeftDate = &now
	return s.db.Save(&a).Error
}

// History returns the member's workload changes, newest first.
func (s *Store) History(projectID, userID int64) ([]allocmodel.WorkloadChange, error) {
	var a allocmodel.Allocation
	err := s.db.Where("project_id = ? AND user_id = ?", projectID, userID).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrAllocationNotFound
		}
		return nil, err
	}

	var changes []allocmodel.WorkloadChange
	err = s.db.Where("allocation_id = ?", a.ID).Order("change_timestamp DESC").Find(&changes).Error
	return changes, err
}

// checkCap is the commit-time invariant: the sum of active allocations
// must not exceed full capacity.
func checkCap(otherTotal, requested decimal.Decimal) error {
	total := otherTotal.Add(requested)
	if total.GreaterThan(capacity.FullCapacity) {
		available := capacity.FullCapacity.Sub(otherTotal)
		if available.IsNegative() {
			available = decimal.Zero
		}
		return internal.ErrRemoteRejected.WithMessage(fmt.Sprintf(
			"allocation rejected: total workload would be %s%% (current %s%%, requested %s%%, available %s%%)",
			total.StringFixed(2), otherTotal.StringFixed(2), requested.StringFixed(2), available.StringFixed(2)))
	}
	return nil
}
