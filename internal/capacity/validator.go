package capacity

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/teamtrackhq/workload-management/internal"
)

// Thresholds carries the severity boundaries. They mirror backend rules
// but are kept configurable rather than hard-coded.
type Thresholds struct {
	Warning decimal.Decimal
	HardCap decimal.Decimal
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Warning: decimal.NewFromInt(80),
		HardCap: FullCapacity,
	}
}

// Validator decides whether a proposed allocation keeps a user's total
// committed workload within bounds. It is advisory only: the backend
// independently re-validates and is the final arbiter.
type Validator struct {
	thresholds Thresholds
}

func NewValidator(thresholds Thresholds) *Validator {
	if thresholds.Warning.IsZero() && thresholds.HardCap.IsZero() {
		thresholds = DefaultThresholds()
	}
	return &Validator{thresholds: thresholds}
}

// ValidateAddition checks assigning a new allocation of requested percent
// on top of the snapshot's current total.
func (v *Validator) ValidateAddition(snapshot *Snapshot, requested decimal.Decimal) (*ValidationResult, error) {
	if err := checkPercentage(requested); err != nil {
		return nil, err
	}
	return v.grade(snapshot.TotalWorkload, requested), nil
}

// ValidateUpdate checks editing an existing allocation: the allocation's
// own current contribution is removed from the total first, so the edit
// is validated against the other commitments only.
func (v *Validator) ValidateUpdate(snapshot *Snapshot, current, requested decimal.Decimal) (*ValidationResult, error) {
	if err := checkPercentage(requested); err != nil {
		return nil, err
	}
	baseline := snapshot.TotalWorkload.Sub(current)
	return v.grade(baseline, requested), nil
}

// checkPercentage fails fast on requests outside (0, 100], independent of
// current workload.
func checkPercentage(requested decimal.Decimal) error {
	if !requested.IsPositive() || requested.GreaterThan(FullCapacity) {
		return internal.ErrInvalidPercentage.WithDetails(map[string]interface{}{
			"requestedWorkload": requested,
		})
	}
	return nil
}

func (v *Validator) grade(base, requested decimal.Decimal) *ValidationResult {
	total := base.Add(requested)

	available := v.thresholds.HardCap.Sub(base)
	if available.IsNegative() {
		available = decimal.Zero
	}

	result := &ValidationResult{
		CurrentWorkload:      base,
		RequestedWorkload:    requested,
		TotalAfterAssignment: total,
		AvailableCapacity:    available,
	}

	switch {
	case total.GreaterThan(v.thresholds.HardCap):
		result.IsValid = false
		result.Severity = SeverityError
		result.Message = fmt.Sprintf(
			"requested %s%% would bring total workload to %s%%, exceeding the %s%% cap (current %s%%, available %s%%)",
			requested.StringFixed(2), total.StringFixed(2), v.thresholds.HardCap.StringFixed(2),
			base.StringFixed(2), available.StringFixed(2))
	case total.GreaterThan(v.thresholds.Warning):
		result.IsValid = true
		result.Severity = SeverityWarning
		result.Message = fmt.Sprintf(
			"total workload would be %s%%, above the %s%% comfort threshold (available %s%%)",
			total.StringFixed(2), v.thresholds.Warning.StringFixed(2), available.StringFixed(2))
	default:
		result.IsValid = true
		result.Severity = SeveritySuccess
		result.Message = fmt.Sprintf(
			"total workload would be %s%% (available %s%%)",
			total.StringFixed(2), available.StringFixed(2))
	}

	return result
}
