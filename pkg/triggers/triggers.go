// Package triggers implements C6: deciding which agent definitions a change
// event wakes. Grounded on original_source/.../agent_config.rs's
// ContextTrigger shape and §4.6's exact match order.
package triggers

import "github.com/codeready-toolchain/contextengine/pkg/models"

// Matches reports whether event wakes def, per §4.6:
//  1. schema_name must match exactly.
//  2. If all_tags is set, every element must appear in event.tags — this
//     check wins even when any_tags is also set (§4.6 note: "the first one
//     encountered gates the decision").
//  3. Else if any_tags is set, at least one element must appear.
//  4. Else schema match alone suffices.
//
// Matches is pure: the same (event, def) pair always yields the same
// result (§8 invariant 8).
func Matches(event models.ChangeEvent, def models.ContextTrigger) bool {
	if event.SchemaName != def.SchemaName {
		return false
	}

	if len(def.AllTags) > 0 {
		return containsAll(event.Tags, def.AllTags)
	}
	if len(def.AnyTags) > 0 {
		return containsAny(event.Tags, def.AnyTags)
	}
	return true
}

// MatchingDefinitions filters defs down to those whose ContextTrigger
// matches event, skipping any definition with no trigger configured.
func MatchingDefinitions(event models.ChangeEvent, defs []models.AgentDefinition) []models.AgentDefinition {
	var matched []models.AgentDefinition
	for _, d := range defs {
		if d.ContextTrigger == nil {
			continue
		}
		if Matches(event, *d.ContextTrigger) {
			matched = append(matched, d)
		}
	}
	return matched
}

func containsAll(haystack, needles []string) bool {
	set := toSet(haystack)
	for _, n := range needles {
		if _, ok := set[n]; !ok {
			return false
		}
	}
	return true
}

func containsAny(haystack, needles []string) bool {
	set := toSet(haystack)
	for _, n := range needles {
		if _, ok := set[n]; ok {
			return true
		}
	}
	return false
}

func toSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}
