package workflow

import "fmt"

// Phase enumerates the six fixed workflow phases in execution order. The
// phase machine is linear: each phase has exactly one successor and the
// final report has none.
type Phase int

const (
	// PhaseIntelligencePlanning maps the engagement and likely attack surface.
	PhaseIntelligencePlanning Phase = iota + 1

	// PhaseAutomatedScan runs broad automated discovery against the target.
	PhaseAutomatedScan

	// PhaseDeepReconnaissance enumerates the target's exposed surface in depth.
	PhaseDeepReconnaissance

	// PhaseVulnerabilityScanning probes for known vulnerabilities.
	PhaseVulnerabilityScanning

	// PhaseExploitationChainAnalysis assesses exploitability and attack paths.
	PhaseExploitationChainAnalysis

	// PhaseFinalReport consolidates the engagement into a report.
	PhaseFinalReport
)

// TotalPhases is the fixed number of phases in every workflow session.
const TotalPhases = 6

// phaseTransitions is the explicit transition table of the phase machine.
var phaseTransitions = map[Phase]Phase{
	PhaseIntelligencePlanning:      PhaseAutomatedScan,
	PhaseAutomatedScan:             PhaseDeepReconnaissance,
	PhaseDeepReconnaissance:        PhaseVulnerabilityScanning,
	PhaseVulnerabilityScanning:     PhaseExploitationChainAnalysis,
	PhaseExploitationChainAnalysis: PhaseFinalReport,
}

// phaseNames holds the display names stored alongside steps and shown to callers.
var phaseNames = map[Phase]string{
	PhaseIntelligencePlanning:      "Intelligence Planning",
	PhaseAutomatedScan:             "Automated Scan",
	PhaseDeepReconnaissance:        "Deep Reconnaissance",
	PhaseVulnerabilityScanning:     "Vulnerability Scanning",
	PhaseExploitationChainAnalysis: "Exploitation Chain Analysis",
	PhaseFinalReport:               "Final Report",
}

// FirstPhase returns the entry phase of the machine.
func FirstPhase() Phase { return PhaseIntelligencePlanning }

// Phases returns every phase in execution order.
func Phases() []Phase {
	phases := make([]Phase, 0, TotalPhases)
	for p := FirstPhase(); ; {
		phases = append(phases, p)
		next, ok := p.Next()
		if !ok {
			return phases
		}
		p = next
	}
}

// Valid reports whether p is one of the six defined phases.
func (p Phase) Valid() bool { return p >= PhaseIntelligencePlanning && p <= PhaseFinalReport }

// Ordinal returns the 1-based position of the phase in execution order.
func (p Phase) Ordinal() int { return int(p) }

// Name returns the display name of the phase.
func (p Phase) Name() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase %d", int(p))
}

// String returns the display name of the phase.
func (p Phase) String() string { return p.Name() }

// Next returns the successor phase from the transition table. The second
// return is false for the final phase.
func (p Phase) Next() (Phase, bool) {
	next, ok := phaseTransitions[p]
	return next, ok
}

// IsFinal reports whether the phase has no successor.
func (p Phase) IsFinal() bool {
	_, ok := phaseTransitions[p]
	return !ok && p.Valid()
}

// TaskDescription builds the task text delegated to the execution backend
// for this phase against the given target, with the objective's guidance
// folded in.
func (p Phase) TaskDescription(target string, objective Objective) string {
	var task string
	switch p {
	case PhaseIntelligencePlanning:
		task = fmt.Sprintf("Plan the engagement against %s: identify the likely attack surface, exposed technologies, and candidate entry points.", target)
	case PhaseAutomatedScan:
		task = fmt.Sprintf("Run broad automated scanning against %s: port discovery, service fingerprinting, and protocol detection.", target)
	case PhaseDeepReconnaissance:
		task = fmt.Sprintf("Perform deep reconnaissance on %s: enumerate subdomains, directories, virtual hosts, and exposed services.", target)
	case PhaseVulnerabilityScanning:
		task = fmt.Sprintf("Scan %s for known vulnerabilities, weak configurations, and outdated components.", target)
	case PhaseExploitationChainAnalysis:
		task = fmt.Sprintf("Analyze the exploitability of issues discovered on %s and chain candidate attack paths end to end.", target)
	case PhaseFinalReport:
		task = fmt.Sprintf("Produce a final report for the engagement against %s: summarize findings, overall risk, and remediation priorities.", target)
	default:
		task = fmt.Sprintf("Assess %s.", target)
	}

	if guidance := objective.guidance(); guidance != "" {
		task += " " + guidance
	}
	return task
}
