package marrow

// Eager-load plumbing shared by the relation resolvers: owner batching and
// result distribution. Every owner in the batch ends the pass with a relation
// memo set, so no later access falls back to a per-instance query.

// collectBatch gathers the distinct raw declaring-key values of a batch and
// groups the owners by normalized value. Owners with absent or empty
// references are excluded from the values but returned separately so they
// still receive their empty memo.
func collectBatch(owners []*Model, keyColumn string) (values []interface{}, groups map[string][]*Model, unmatched []*Model) {
	groups = make(map[string][]*Model, len(owners))
	seen := make(map[string]bool, len(owners))

	for _, owner := range owners {
		raw, present := owner.backbone.rawByKey(keyColumn)
		if !present || isEmptyReference(raw) {
			unmatched = append(unmatched, owner)
			continue
		}
		key := matchValue(raw)
		if !seen[key] {
			seen[key] = true
			values = append(values, raw)
		}
		groups[key] = append(groups[key], owner)
	}
	return values, groups, unmatched
}

// assignSingle sets a single-cardinality memo on every owner: the matched
// instance, or an explicit nil when nothing matched.
func assignSingle(name string, groups map[string][]*Model, unmatched []*Model, results map[string]*Model) {
	for key, owners := range groups {
		match := results[key] // nil when absent
		for _, owner := range owners {
			if match == nil {
				owner.backbone.setRelationMemo(name, nil)
			} else {
				owner.backbone.setRelationMemo(name, match)
			}
		}
	}
	for _, owner := range unmatched {
		owner.backbone.setRelationMemo(name, nil)
	}
}

// assignMany sets a many-cardinality memo on every owner: the matched slice,
// or an empty one when nothing matched.
func assignMany(name string, groups map[string][]*Model, unmatched []*Model, results map[string][]*Model) {
	for key, owners := range groups {
		matches := results[key]
		if matches == nil {
			matches = []*Model{}
		}
		for _, owner := range owners {
			owner.backbone.setRelationMemo(name, matches)
		}
	}
	for _, owner := range unmatched {
		owner.backbone.setRelationMemo(name, []*Model{})
	}
}

// groupSingle indexes hydrated instances by their linking value, keeping the
// first instance per value.
func groupSingle(models []*Model, links []string) map[string]*Model {
	results := make(map[string]*Model, len(models))
	for i, m := range models {
		if _, ok := results[links[i]]; !ok {
			results[links[i]] = m
		}
	}
	return results
}

// groupMany indexes hydrated instances by their linking value, preserving
// result order within each group.
func groupMany(models []*Model, links []string) map[string][]*Model {
	results := make(map[string][]*Model, len(models))
	for i, m := range models {
		results[links[i]] = append(results[links[i]], m)
	}
	return results
}
