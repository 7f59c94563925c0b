package service

import (
	"fmt"
	"sort"
	"time"

	"complaintengine/config"
	"complaintengine/models"

	"go.uber.org/zap"
)

// Ladder is an ordered escalation ladder: thresholds strictly increasing in
// both hours and level.
type Ladder []models.EscalationThreshold

// NewLadder sorts thresholds by hours and validates the ordering.
func NewLadder(thresholds []models.EscalationThreshold) (Ladder, error) {
	l := make(Ladder, len(thresholds))
	copy(l, thresholds)
	sort.SliceStable(l, func(i, j int) bool { return l[i].AfterHours < l[j].AfterHours })

	for i, t := range l {
		if t.AfterHours < 0 {
			return nil, fmt.Errorf("escalation threshold %v must not be negative", t.AfterHours)
		}
		if t.Level <= 0 {
			return nil, fmt.Errorf("escalation level %d must be positive", t.Level)
		}
		if i == 0 {
			continue
		}
		prev := l[i-1]
		if t.AfterHours <= prev.AfterHours || t.Level <= prev.Level {
			return nil, fmt.Errorf("escalation ladder must be strictly increasing: %v→%d after %v→%d",
				prev.AfterHours, prev.Level, t.AfterHours, t.Level)
		}
	}
	return l, nil
}

// LevelFor returns the highest level whose threshold is at or below overdueHours, or 0.
func (l Ladder) LevelFor(overdueHours float64) int {
	level := 0
	for _, t := range l {
		if overdueHours < t.AfterHours {
			break
		}
		level = t.Level
	}
	return level
}

// MaxLevel is the top rung of the ladder
func (l Ladder) MaxLevel() int {
	if len(l) == 0 {
		return 0
	}
	return l[len(l)-1].Level
}

// Policy is the resolved SLA for one (category, priority)
type Policy struct {
	CategoryID      string          `json:"category_id,omitempty"`
	Priority        models.Priority `json:"priority,omitempty"`
	ResolutionHours float64         `json:"resolution_hours"`
	Ladder          Ladder          `json:"ladder"`
	Default         bool            `json:"default"`
}

// Deadline returns submittedAt plus the resolution time, in calendar hours.
func (p Policy) Deadline(submittedAt time.Time) time.Time {
	return submittedAt.Add(time.Duration(p.ResolutionHours * float64(time.Hour)))
}

type policyKey struct {
	category string
	priority models.Priority
}

// SLAPolicyResolver answers (category, priority) → Policy from an immutable rule table
type SLAPolicyResolver struct {
	rules    map[policyKey]Policy
	fallback Policy
	logger   *zap.Logger
}

// NewSLAPolicyResolver validates the table and builds the lookup. Duplicate
// (category, priority) rules are rejected.
func NewSLAPolicyResolver(table *config.SLATable, logger *zap.Logger) (*SLAPolicyResolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if table.Default.ResolutionTimeHours <= 0 {
		return nil, fmt.Errorf("default SLA rule must have positive resolution hours")
	}
	defaultLadder, err := NewLadder(table.Default.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("default SLA rule: %w", err)
	}

	r := &SLAPolicyResolver{
		rules: make(map[policyKey]Policy, len(table.Rules)),
		fallback: Policy{
			CategoryID:      config.WildcardCategory,
			ResolutionHours: table.Default.ResolutionTimeHours,
			Ladder:          defaultLadder,
			Default:         true,
		},
		logger: logger.Named("sla"),
	}

	for _, rule := range table.Rules {
		if rule.ResolutionTimeHours <= 0 {
			return nil, fmt.Errorf("SLA rule %s/%s must have positive resolution hours", rule.CategoryID, rule.Priority)
		}
		ladder := defaultLadder
		if len(rule.Thresholds) > 0 {
			if ladder, err = NewLadder(rule.Thresholds); err != nil {
				return nil, fmt.Errorf("SLA rule %s/%s: %w", rule.CategoryID, rule.Priority, err)
			}
		}
		key := policyKey{category: rule.CategoryID, priority: rule.Priority}
		if _, dup := r.rules[key]; dup {
			return nil, fmt.Errorf("duplicate SLA rule %s/%s", rule.CategoryID, rule.Priority)
		}
		r.rules[key] = Policy{
			CategoryID:      rule.CategoryID,
			Priority:        rule.Priority,
			ResolutionHours: rule.ResolutionTimeHours,
			Ladder:          ladder,
		}
	}
	return r, nil
}

// Resolve returns the policy for (categoryID, priority): an exact rule, then a
// wildcard-category rule, then the default rule. Falling back to the default
// is logged as a PolicyError and never returned.
func (r *SLAPolicyResolver) Resolve(categoryID string, priority models.Priority) Policy {
	if p, ok := r.rules[policyKey{category: categoryID, priority: priority}]; ok {
		return p
	}
	if p, ok := r.rules[policyKey{category: config.WildcardCategory, priority: priority}]; ok {
		return p
	}

	perr := &models.PolicyError{CategoryID: categoryID, Priority: priority}
	r.logger.Warn("SLA rule missing", zap.Error(perr))
	p := r.fallback
	p.Priority = priority
	return p
}

// Deadline resolves the policy and returns the SLA deadline for a submission.
func (r *SLAPolicyResolver) Deadline(submittedAt time.Time, categoryID string, priority models.Priority) time.Time {
	return r.Resolve(categoryID, priority).Deadline(submittedAt)
}

// Rules returns every configured rule plus the default, sorted for display.
func (r *SLAPolicyResolver) Rules() []Policy {
	policies := make([]Policy, 0, len(r.rules)+1)
	for _, p := range r.rules {
		policies = append(policies, p)
	}
	sort.Slice(policies, func(i, j int) bool {
		if policies[i].CategoryID != policies[j].CategoryID {
			return policies[i].CategoryID < policies[j].CategoryID
		}
		return policies[i].Priority < policies[j].Priority
	})
	return append(policies, r.fallback)
}
