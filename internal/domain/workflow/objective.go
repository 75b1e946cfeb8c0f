package workflow

// Objective shapes how aggressively a workflow session probes its target.
// It is folded into every phase's task description.
type Objective string

const (
	// ObjectiveQuick favors speed over coverage.
	ObjectiveQuick Objective = "quick"

	// ObjectiveComprehensive favors coverage and depth over speed.
	ObjectiveComprehensive Objective = "comprehensive"

	// ObjectiveStealth minimizes noise and avoids intrusive probes.
	ObjectiveStealth Objective = "stealth"

	// ObjectiveAggressive permits intrusive checks where useful.
	ObjectiveAggressive Objective = "aggressive"
)

// String returns the string representation of the Objective.
func (o Objective) String() string { return string(o) }

// ParseObjective converts a string to an Objective. Unknown strings return
// an empty Objective; callers validate with Valid.
func ParseObjective(s string) Objective {
	switch s {
	case "quick":
		return ObjectiveQuick
	case "comprehensive":
		return ObjectiveComprehensive
	case "stealth":
		return ObjectiveStealth
	case "aggressive":
		return ObjectiveAggressive
	default:
		return ""
	}
}

// Valid reports whether the objective is one of the supported values.
func (o Objective) Valid() bool {
	switch o {
	case ObjectiveQuick, ObjectiveComprehensive, ObjectiveStealth, ObjectiveAggressive:
		return true
	default:
		return false
	}
}

// guidance returns the per-objective instruction folded into task descriptions.
func (o Objective) guidance() string {
	switch o {
	case ObjectiveQuick:
		return "Favor speed over coverage; skip long-running probes."
	case ObjectiveComprehensive:
		return "Favor coverage and depth; exhaustive enumeration is acceptable."
	case ObjectiveStealth:
		return "Minimize noise; avoid intrusive probes and rate-limit aggressively."
	case ObjectiveAggressive:
		return "Use intrusive checks where they yield higher-confidence results."
	default:
		return ""
	}
}
