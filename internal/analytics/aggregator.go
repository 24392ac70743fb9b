// Package analytics rolls up per-user capacity snapshots into system- and
// role-level utilization statistics. It never mutates state and may be
// recomputed or discarded at any time.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teamtrackhq/workload-management/internal/capacity"
	"github.com/teamtrackhq/workload-management/internal/core/datamodel/user"
)

// DefaultTopN matches the dashboard's overloaded-users widget.
const DefaultTopN = 5

var (
	overloadThreshold    = decimal.NewFromInt(100)
	utilizationThreshold = decimal.NewFromInt(60)
)

type RoleStats struct {
	TotalUsers      int             `json:"totalUsers"`
	AverageWorkload decimal.Decimal `json:"averageWorkload"`
	OverloadedCount int             `json:"overloadedCount"`
}

type SystemUtilization struct {
	TotalCapacity         decimal.Decimal `json:"totalCapacity"`
	UsedCapacity          decimal.Decimal `json:"usedCapacity"`
	UtilizationPercentage decimal.Decimal `json:"utilizationPercentage"`
}

type UserWorkload struct {
	UserID        int64           `json:"userId"`
	UserName      string          `json:"userName"`
	Role          user.Role       `json:"role"`
	TotalWorkload decimal.Decimal `json:"totalWorkload"`
}

type Rollup struct {
	OverloadedUsers    int                      `json:"overloadedUsers"`
	UnderutilizedUsers int                      `json:"underutilizedUsers"`
	FullyUtilizedUsers int                      `json:"fullyUtilizedUsers"`
	AverageWorkload    decimal.Decimal          `json:"averageWorkload"`
	RoleStats          map[user.Role]RoleStats  `json:"roleStats"`
	System             SystemUtilization        `json:"systemUtilization"`
	TopOverloaded      []UserWorkload           `json:"topOverloaded"`
	GeneratedAt        time.Time                `json:"generatedAt"`
}

// Aggregate derives the rollup from a population of snapshots.
//
// Users with zero active allocations are excluded from the utilization
// cohorts and from the average, not treated as zero-workload: counting
// idle accounts would skew the mean toward zero. They still count toward
// system capacity.
func Aggregate(snapshots []capacity.Snapshot, topN int) *Rollup {
	if topN <= 0 {
		topN = DefaultTopN
	}

	rollup := &Rollup{
		RoleStats:   make(map[user.Role]RoleStats),
		GeneratedAt: time.Now(),
	}

	assigned := 0
	assignedSum := decimal.Zero
	usedCapacity := decimal.Zero
	roleSums := make(map[user.Role]decimal.Decimal)

	for _, s := range snapshots {
		usedCapacity = usedCapacity.Add(s.TotalWorkload)

		stats := rollup.RoleStats[s.Role]
		stats.TotalUsers++
		roleSums[s.Role] = roleSums[s.Role].Add(s.TotalWorkload)
		if s.TotalWorkload.GreaterThan(overloadThreshold) {
			stats.OverloadedCount++
		}
		rollup.RoleStats[s.Role] = stats

		if s.ActiveProjectCount == 0 {
			continue
		}

		assigned++
		assignedSum = assignedSum.Add(s.TotalWorkload)

		switch {
		case s.TotalWorkload.GreaterThan(overloadThreshold):
			rollup.OverloadedUsers++
		case s.TotalWorkload.LessThan(utilizationThreshold):
			rollup.UnderutilizedUsers++
		default:
			rollup.FullyUtilizedUsers++
		}
	}

	if assigned > 0 {
		rollup.AverageWorkload = assignedSum.DivRound(decimal.NewFromInt(int64(assigned)), 2)
	}

	for role, stats := range rollup.RoleStats {
		if stats.TotalUsers > 0 {
			stats.AverageWorkload = roleSums[role].DivRound(decimal.NewFromInt(int64(stats.TotalUsers)), 2)
			rollup.RoleStats[role] = stats
		}
	}

	totalCapacity := capacity.FullCapacity.Mul(decimal.NewFromInt(int64(len(snapshots))))
	rollup.System = SystemUtilization{
		TotalCapacity: totalCapacity,
		UsedCapacity:  usedCapacity,
	}
	if totalCapacity.IsPositive() {
		rollup.System.UtilizationPercentage = usedCapacity.Div(totalCapacity).Mul(decimal.NewFromInt(100)).Round(2)
	}

	rollup.TopOverloaded = topOverloaded(snapshots, topN)

	return rollup
}

// topOverloaded sorts descending by workload, ties broken by user ID for
// determinism, and takes the first n.
func topOverloaded(snapshots []capacity.Snapshot, n int) []UserWorkload {
	ranked := make([]UserWorkload, 0, len(snapshots))
	for _, s := range snapshots {
		ranked = append(ranked, UserWorkload{
			UserID:        s.UserID,
			UserName:      s.UserName,
			Role:          s.Role,
			TotalWorkload: s.TotalWorkload,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if !ranked[i].TotalWorkload.Equal(ranked[j].TotalWorkload) {
			return ranked[i].TotalWorkload.GreaterThan(ranked[j].TotalWorkload)
		}
		return ranked[i].UserID < ranked[j].UserID
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
