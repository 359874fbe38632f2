package tools

import (
	"fmt"
	"strings"
)

// RiskLevel classifies a tool's potential for harm. Levels are ordered:
// comparisons with <= are meaningful and used for "at most this risky"
// filtering.
type RiskLevel int

const (
	// RiskUnknown is reported when no tool definition is available to
	// classify. It never appears on a registered definition.
	RiskUnknown RiskLevel = iota - 1

	RiskSafe
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

// String returns the lowercase name of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskSafe:
		return "safe"
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// IsValid reports whether the level is one of the five registered-tool levels.
func (r RiskLevel) IsValid() bool {
	return r >= RiskSafe && r <= RiskCritical
}

// ParseRiskLevel parses a risk level name (case-insensitive).
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "safe":
		return RiskSafe, nil
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	case "critical":
		return RiskCritical, nil
	default:
		return RiskUnknown, fmt.Errorf("invalid risk level: %s", s)
	}
}

// Category tags a tool with the kind of operation it performs. Categories
// drive category-specific safety rules in the safety controller.
type Category string

const (
	CategoryDatabaseRead  Category = "database_read"
	CategoryDatabaseWrite Category = "database_write"
	CategoryDatabaseDDL   Category = "database_ddl"
	CategoryFileSystem    Category = "file_system"
	CategoryBackup        Category = "backup"
	CategoryAnalysis      Category = "analysis"
	CategoryMigration     Category = "migration"
	CategoryOptimization  Category = "optimization"
)

// AllCategories returns all valid tool categories.
func AllCategories() []Category {
	return []Category{
		CategoryDatabaseRead,
		CategoryDatabaseWrite,
		CategoryDatabaseDDL,
		CategoryFileSystem,
		CategoryBackup,
		CategoryAnalysis,
		CategoryMigration,
		CategoryOptimization,
	}
}

// IsValidCategory checks if a category is valid.
func IsValidCategory(category string) bool {
	cat := Category(strings.ToLower(category))
	for _, valid := range AllCategories() {
		if cat == valid {
			return true
		}
	}
	return false
}
