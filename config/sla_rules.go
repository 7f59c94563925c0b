package config

import (
	"fmt"
	"os"

	"complaintengine/models"

	"gopkg.in/yaml.v3"
)

// WildcardCategory matches every category for a rule's priority.
const WildcardCategory = "*"

// SLATable is the rule table loaded at startup. Rules without thresholds
// inherit the default rule's ladder.
type SLATable struct {
	Default models.SLARule   `yaml:"default"`
	Rules   []models.SLARule `yaml:"rules"`
}

// DefaultLadder is the escalation ladder used when no file overrides it.
func DefaultLadder() []models.EscalationThreshold {
	return []models.EscalationThreshold{
		{AfterHours: 4, Level: 1},
		{AfterHours: 24, Level: 2},
		{AfterHours: 48, Level: 3},
	}
}

// DefaultSLATable returns the built-in rule table.
func DefaultSLATable() *SLATable {
	rule := func(category string, priority models.Priority, hours float64) models.SLARule {
		return models.SLARule{CategoryID: category, Priority: priority, ResolutionTimeHours: hours}
	}
	return &SLATable{
		Default: models.SLARule{
			CategoryID:          WildcardCategory,
			ResolutionTimeHours: 72,
			Thresholds:          DefaultLadder(),
		},
		Rules: []models.SLARule{
			rule("road_damage", models.PriorityUrgent, 24),
			rule("road_damage", models.PriorityHigh, 48),
			rule("road_damage", models.PriorityMedium, 72),
			rule("road_damage", models.PriorityLow, 120),
			rule("water_supply", models.PriorityUrgent, 12),
			rule("water_supply", models.PriorityHigh, 24),
			rule("water_supply", models.PriorityMedium, 48),
			rule("water_supply", models.PriorityLow, 96),
			rule("garbage", models.PriorityUrgent, 24),
			rule("garbage", models.PriorityHigh, 48),
			rule("garbage", models.PriorityMedium, 72),
			rule("garbage", models.PriorityLow, 96),
			rule("streetlight", models.PriorityUrgent, 24),
			rule("streetlight", models.PriorityHigh, 72),
			rule("streetlight", models.PriorityMedium, 120),
			rule("streetlight", models.PriorityLow, 168),
			rule(WildcardCategory, models.PriorityUrgent, 36),
		},
	}
}

// LoadSLATable reads the YAML rule table at path. An empty path returns the built-in table.
func LoadSLATable(path string) (*SLATable, error) {
	if path == "" {
		return DefaultSLATable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read SLA rules file: %w", err)
	}
	return ParseSLATable(data)
}

// ParseSLATable decodes a YAML rule table and fills inherited ladders.
func ParseSLATable(data []byte) (*SLATable, error) {
	var table SLATable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse SLA rules: %w", err)
	}
	if table.Default.ResolutionTimeHours <= 0 {
		return nil, fmt.Errorf("SLA rules: default.resolution_hours must be positive")
	}
	if len(table.Default.Thresholds) == 0 {
		table.Default.Thresholds = DefaultLadder()
	}
	table.Default.CategoryID = WildcardCategory

	for i := range table.Rules {
		r := &table.Rules[i]
		if r.CategoryID == "" {
			return nil, fmt.Errorf("SLA rules: rule %d has no category", i)
		}
		if _, ok := models.ParsePriority(string(r.Priority)); !ok {
			return nil, fmt.Errorf("SLA rules: rule %d has invalid priority %q", i, r.Priority)
		}
		if r.ResolutionTimeHours <= 0 {
			return nil, fmt.Errorf("SLA rules: rule %d (%s/%s) resolution_hours must be positive", i, r.CategoryID, r.Priority)
		}
		if len(r.Thresholds) == 0 {
			r.Thresholds = append([]models.EscalationThreshold(nil), table.Default.Thresholds...)
		}
	}
	return &table, nil
}
