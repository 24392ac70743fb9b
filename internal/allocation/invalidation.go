package allocation

// Cache invalidation is declared as data rather than scattered through
// the mutation paths, so the set invalidated by each mutation is
// auditable and testable in isolation from the UI.

type MutationKind string

const (
	MutationAdd    MutationKind = "add"
	MutationUpdate MutationKind = "update"
	MutationRemove MutationKind = "remove"
)

type KeyKind string

const (
	KindUserSnapshot    KeyKind = "user_snapshot"
	KindProjectMembers  KeyKind = "project_members"
	KindAnalyticsRollup KeyKind = "analytics_rollup"
	KindWorkloadHistory KeyKind = "workload_history"
)

// CacheKey identifies one derived cache entry affected by a mutation.
// ProjectID/UserID are zero when the kind does not scope to them.
type CacheKey struct {
	Kind      KeyKind
	ProjectID int64
	UserID    int64
}

// invalidationRules maps each mutation to the key kinds it dirties. Every
// mutation touches the user's snapshot, the project member list and any
// open rollup; only updates append to the audit history.
var invalidationRules = map[MutationKind][]KeyKind{
	MutationAdd:    {KindUserSnapshot, KindProjectMembers, KindAnalyticsRollup},
	MutationUpdate: {KindUserSnapshot, KindProjectMembers, KindAnalyticsRollup, KindWorkloadHistory},
	MutationRemove: {KindUserSnapshot, KindProjectMembers, KindAnalyticsRollup},
}

// InvalidationSet expands the rule for a mutation into concrete keys.
func InvalidationSet(kind MutationKind, projectID, userID int64) []CacheKey {
	kinds := invalidationRules[kind]
	keys := make([]CacheKey, 0, len(kinds))
	for _, k := range kinds {
		key := CacheKey{Kind: k}
		switch k {
		case KindUserSnapshot:
			key.UserID = userID
		case KindProjectMembers:
			key.ProjectID = projectID
		case KindWorkloadHistory:
			key.ProjectID = projectID
			key.UserID = userID
		}
		keys = append(keys, key)
	}
	return keys
}
