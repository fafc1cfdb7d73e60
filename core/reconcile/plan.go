package reconcile

import (
	"fmt"
	"sort"
)

// Reconcile diffs the canonical population against the provider population
// and returns one action per external id. Provider users without an external
// id are not managed by the sync and are ignored.
func Reconcile(pop Population, provider []ProviderUser, features Features) *ReconcilePlan {
	canonical := make(map[string]CanonicalUser, len(pop.Users))
	for _, u := range pop.Users {
		canonical[u.Key()] = u
	}

	providerIndex := make(map[string]ProviderUser, len(provider))
	duplicates := make(map[string][]string)
	managed := 0
	for _, p := range provider {
		if p.ExternalID == "" {
			continue
		}
		managed++
		if prev, exists := providerIndex[p.ExternalID]; exists {
			if len(duplicates[p.ExternalID]) == 0 {
				duplicates[p.ExternalID] = []string{prev.ProviderID}
			}
			duplicates[p.ExternalID] = append(duplicates[p.ExternalID], p.ProviderID)
			continue
		}
		providerIndex[p.ExternalID] = p
	}

	// Union of keys; quarantined ids only matter when the provider knows them.
	keys := make(map[string]struct{}, len(canonical)+len(providerIndex))
	for key := range canonical {
		keys[key] = struct{}{}
	}
	for key := range providerIndex {
		keys[key] = struct{}{}
	}

	sorted := make([]string, 0, len(keys))
	for key := range keys {
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)

	plan := &ReconcilePlan{
		Population: pop,
		Actions:    make([]Action, 0, len(sorted)),
		Summary: PlanSummary{
			SourceUsers:   len(pop.Users),
			ProviderUsers: managed,
			Invalid:       len(pop.Errors),
		},
	}

	for _, key := range sorted {
		user, inSource := canonical[key]
		existing, inProvider := providerIndex[key]

		var action Action
		switch {
		case len(duplicates[key]) > 0:
			action = Action{
				Type:       ActionConflict,
				ExternalID: key,
				User:       user,
				Reason:     fmt.Sprintf("external id linked to multiple provider users %v", duplicates[key]),
			}
		case !inSource && isQuarantined(pop, key):
			action = Action{
				Type:       ActionSkip,
				ExternalID: key,
				ProviderID: existing.ProviderID,
				Reason:     "source record rejected, provider user left untouched",
			}
		default:
			action = classifyUser(key, user, inSource, existing, inProvider)
		}

		if features.DeactivateOnly && (action.Type == ActionCreate || action.Type == ActionUpdate) {
			action.Reason = fmt.Sprintf("deactivate only: %s suppressed", action.Type)
			action.Type = ActionSkip
			action.Changed = nil
		}

		plan.Actions = append(plan.Actions, action)
		plan.Summary.count(action.Type)
	}

	return plan
}

// classifyUser decides the action for one external id. A disabled user is
// never otherwise mutated.
func classifyUser(key string, user CanonicalUser, inSource bool, existing ProviderUser, inProvider bool) Action {
	switch {
	case inSource && !inProvider:
		if !user.Enabled {
			return Action{Type: ActionNoOp, ExternalID: key, User: user, Reason: "disabled in source"}
		}
		return Action{Type: ActionCreate, ExternalID: key, User: user, Reason: "new in source"}

	case !inSource && inProvider:
		if !existing.Enabled {
			return Action{Type: ActionNoOp, ExternalID: key, ProviderID: existing.ProviderID, Reason: "absent from source, already disabled"}
		}
		return Action{Type: ActionDisable, ExternalID: key, ProviderID: existing.ProviderID, Reason: "absent from source"}

	case !user.Enabled:
		if !existing.Enabled {
			return Action{Type: ActionNoOp, ExternalID: key, ProviderID: existing.ProviderID, User: user, Reason: "already disabled"}
		}
		return Action{Type: ActionDisable, ExternalID: key, ProviderID: existing.ProviderID, User: user, Reason: "disabled in source"}
	}

	changed := Diff(user, existing)
	if len(changed) == 0 {
		return Action{Type: ActionNoOp, ExternalID: key, ProviderID: existing.ProviderID, User: user}
	}
	reason := fmt.Sprintf("changed: %v", changed)
	if !existing.Enabled {
		reason = "re-enabled in source, " + reason
	}
	return Action{
		Type:       ActionUpdate,
		ExternalID: key,
		ProviderID: existing.ProviderID,
		User:       user,
		Changed:    changed,
		Reason:     reason,
	}
}

// Diff returns the minimal set of fields to write so that the provider user
// matches the canonical user. Re-enabling always comes first.
func Diff(user CanonicalUser, existing ProviderUser) []Field {
	var changed []Field
	if !existing.Enabled {
		changed = append(changed, FieldEnabled)
	}
	for _, f := range attributeFields {
		if !user.Get(f).Matches(existing.Get(f)) {
			changed = append(changed, f)
		}
	}
	if !existing.Granted {
		changed = append(changed, FieldGrant)
	}
	return changed
}

func isQuarantined(pop Population, key string) bool {
	_, ok := pop.Quarantined[key]
	return ok
}

func (s *PlanSummary) count(t ActionType) {
	switch t {
	case ActionCreate:
		s.Creates++
	case ActionUpdate:
		s.Updates++
	case ActionDisable:
		s.Disables++
	case ActionNoOp:
		s.NoOps++
	case ActionSkip:
		s.Skips++
	case ActionConflict:
		s.Conflicts++
	}
}
