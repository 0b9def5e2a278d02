package stage

import "fmt"

// Stage identifies a position in the project lifecycle.
type Stage string

const (
	Ideation       Stage = "ideation"
	Feasibility    Stage = "feasibility"
	Scoping        Stage = "scoping"
	Scheduling     Stage = "scheduling"
	DetailedDesign Stage = "detailed_design"
	Development    Stage = "development"
	Build          Stage = "build"
	Testing        Stage = "testing"
	Deployed       Stage = "deployed"
	Completed      Stage = "completed"
	Cancelled      Stage = "cancelled"
)

// RecordType names the stage record that owns a stage's form fields.
type RecordType string

const (
	RecordIdeation       RecordType = "ideation"
	RecordFeasibility    RecordType = "feasibility"
	RecordScoping        RecordType = "scoping"
	RecordScheduling     RecordType = "scheduling"
	RecordDetailedDesign RecordType = "detailed_design"
	RecordDevelopment    RecordType = "development"
	RecordTesting        RecordType = "testing"
	RecordDeployed       RecordType = "deployed"
)

var ordered = []Stage{
	Ideation,
	Feasibility,
	Scoping,
	Scheduling,
	DetailedDesign,
	Development,
	Build,
	Testing,
	Deployed,
}

var labels = map[Stage]string{
	Ideation:       "Ideation",
	Feasibility:    "Feasibility",
	Scoping:        "Scoping",
	Scheduling:     "Scheduling",
	DetailedDesign: "Detailed Design",
	Development:    "Development",
	Build:          "Build",
	Testing:        "Testing",
	Deployed:       "Deployed",
	Completed:      "Completed",
	Cancelled:      "Cancelled",
}

var colors = map[Stage]string{
	Ideation:       "#9b59b6",
	Feasibility:    "#3498db",
	Scoping:        "#1abc9c",
	Scheduling:     "#f1c40f",
	DetailedDesign: "#e67e22",
	Development:    "#2980b9",
	Build:          "#34495e",
	Testing:        "#d35400",
	Deployed:       "#27ae60",
	Completed:      "#2ecc71",
	Cancelled:      "#e74c3c",
}

// Build output is tracked on the Development record, so Build carries no
// record of its own.
var recordTypes = map[Stage]RecordType{
	Ideation:       RecordIdeation,
	Feasibility:    RecordFeasibility,
	Scoping:        RecordScoping,
	Scheduling:     RecordScheduling,
	DetailedDesign: RecordDetailedDesign,
	Development:    RecordDevelopment,
	Testing:        RecordTesting,
	Deployed:       RecordDeployed,
}

// Ordered returns the lifecycle stages in canonical progression order.
// Completed and Cancelled are not part of the progression.
func Ordered() []Stage {
	out := make([]Stage, len(ordered))
	copy(out, ordered)
	return out
}

// Next returns the stage following s in canonical order. The second return
// is false when s is the last ordered stage or not an ordered stage at all.
func Next(s Stage) (Stage, bool) {
	for i, st := range ordered {
		if st == s {
			if i+1 < len(ordered) {
				return ordered[i+1], true
			}
			return "", false
		}
	}
	return "", false
}

// RecordTypeFor returns the record type owning a stage's form fields.
// The second return is false for stages without a dedicated record.
func RecordTypeFor(s Stage) (RecordType, bool) {
	rt, ok := recordTypes[s]
	return rt, ok
}

// RecordTypes lists the record types created for every new project, in
// stage order.
func RecordTypes() []RecordType {
	var out []RecordType
	for _, s := range ordered {
		if rt, ok := recordTypes[s]; ok {
			out = append(out, rt)
		}
	}
	return out
}

// IsTerminal reports whether s admits no further transitions.
func IsTerminal(s Stage) bool {
	return s == Completed || s == Cancelled
}

// Label returns the display label for a stage.
func Label(s Stage) string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

// Color returns the display color for a stage.
func Color(s Stage) string {
	return colors[s]
}

// Parse converts a stored status value into a Stage.
func Parse(v string) (Stage, error) {
	s := Stage(v)
	if _, ok := labels[s]; !ok {
		return "", fmt.Errorf("unknown stage %q", v)
	}
	return s, nil
}

// Progress classifies a stage relative to a project's current stage.
type Progress string

const (
	ProgressCompleted  Progress = "completed"
	ProgressCurrent    Progress = "current"
	ProgressNotReached Progress = "not_reached"
	ProgressCancelled  Progress = "cancelled"
)

// position returns the 1-based position of s in the ordered progression.
// Completed sorts after every ordered stage.
func position(s Stage) int {
	for i, st := range ordered {
		if st == s {
			return i + 1
		}
	}
	if s == Completed {
		return len(ordered) + 1
	}
	return 0
}

// RelativeProgress classifies stage s against the project's stage relativeTo.
// A cancelled project (or a comparison against Cancelled) always yields
// ProgressCancelled; a completed project marks every stage completed.
func RelativeProgress(s, relativeTo Stage) Progress {
	if s == Cancelled || relativeTo == Cancelled {
		return ProgressCancelled
	}
	ps, pr := position(s), position(relativeTo)
	switch {
	case ps < pr:
		return ProgressCompleted
	case ps == pr:
		return ProgressCurrent
	default:
		return ProgressNotReached
	}
}
