package watch

import (
	"fmt"
	"strings"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
)

// ─── Rule Transitions ─────────────────────────────────────────────────────────
//
// A group is either unwatched (absent from the set) or watched (present).
// Thresholds are fields of the watched state. Every transition returns a
// new RuleSet and leaves its input untouched.

// Enable watches a group, replacing any existing rule under the same key.
func Enable(set model.RuleSet, rule model.WatchRule) (model.RuleSet, error) {
	rule.GroupKey = strings.TrimSpace(rule.GroupKey)
	rule.AdsetIDs = util.DedupeIDs(rule.AdsetIDs)
	if err := validateRule(rule); err != nil {
		return set, err
	}
	if rule.GroupName == "" {
		rule.GroupName = rule.GroupKey
	}
	next := clone(set)
	next[rule.GroupKey] = rule
	return next, nil
}

// Disable stops watching a group. Disabling an unwatched group is a no-op.
func Disable(set model.RuleSet, groupKey string) model.RuleSet {
	next := clone(set)
	delete(next, strings.TrimSpace(groupKey))
	return next
}

// SetThresholds edits the limits of a watched group. A nil limit clears it.
func SetThresholds(set model.RuleSet, groupKey string, maxCPA, maxSpend *float64) (model.RuleSet, error) {
	groupKey = strings.TrimSpace(groupKey)
	rule, ok := set[groupKey]
	if !ok {
		return set, fmt.Errorf("group %q is not watched", groupKey)
	}
	rule.GroupKey = groupKey
	rule.MaxCPA = maxCPA
	rule.MaxSpend = maxSpend
	if err := validateRule(rule); err != nil {
		return set, err
	}
	next := clone(set)
	next[groupKey] = rule
	return next, nil
}

func validateRule(r model.WatchRule) error {
	var fields []string
	if r.GroupKey == "" {
		fields = append(fields, "group_key")
	}
	if len(r.AdsetIDs) == 0 {
		fields = append(fields, "adset_ids")
	}
	if len(fields) > 0 {
		return &util.ValidationError{Fields: fields, Reason: "required"}
	}
	if r.MaxCPA != nil && *r.MaxCPA < 0 {
		return &util.ValidationError{Fields: []string{"cpa"}, Reason: "must not be negative"}
	}
	if r.MaxSpend != nil && *r.MaxSpend < 0 {
		return &util.ValidationError{Fields: []string{"spend"}, Reason: "must not be negative"}
	}
	return nil
}

func clone(set model.RuleSet) model.RuleSet {
	next := make(model.RuleSet, len(set)+1)
	for k, v := range set {
		next[k] = v
	}
	return next
}
