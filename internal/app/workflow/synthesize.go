package workflow

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/findings"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	domain "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/workflow"
)

const (
	// maxImpactLen caps the impact summary stored on a completed step.
	maxImpactLen = 160

	// maxEvidenceLen caps the raw tool output attached to alarm findings.
	maxEvidenceLen = 4000
)

// phaseOutcome is the distilled result of one successful phase: the severity
// bucket of the analysis, the mined sections, the phase finding, and any
// alarm findings raised by individual sub-invocations.
type phaseOutcome struct {
	severity   findings.Severity
	extraction findings.Extraction
	finding    *findings.Finding
	alarms     []*findings.Finding
	impact     string
}

// synthesizePhase turns a phase's execution result into findings. The
// analysis text is bucketed by keyword severity and mined for labelled
// remediation, exploitation, and verification sections; each sub-invocation
// whose raw output carries alarm keywords earns a finding of its own.
func synthesizePhase(sessionID uuid.UUID, phase domain.Phase, result *scanning.ExecutionResult) phaseOutcome {
	severity := findings.ClassifySeverity(result.Analysis)
	extraction := findings.ExtractSections(result.Analysis)

	finding := findings.NewSessionFinding(
		sessionID,
		severity,
		fmt.Sprintf("%s assessment", phase.Name()),
		result.Analysis,
		findings.WithRemediation(extraction.Remediation()),
		findings.WithExploitation(extraction.Exploitation()),
		findings.WithVerification(extraction.Verification()),
	)

	return phaseOutcome{
		severity:   severity,
		extraction: extraction,
		finding:    finding,
		alarms:     alarmFindings(sessionID, phase, result.SubInvocations),
		impact:     impactLine(result.Analysis),
	}
}

// alarmFindings raises one finding per sub-invocation whose raw output
// contains alarm keywords. The output itself is classified for severity;
// an alarm that matches no severity bucket still lands at LOW because the
// keyword hit already marks it as more than informational.
func alarmFindings(sessionID uuid.UUID, phase domain.Phase, subs []scanning.SubInvocation) []*findings.Finding {
	var alarms []*findings.Finding
	for _, sub := range subs {
		raw := sub.RawOutput()
		if !findings.ContainsAlarm(raw) {
			continue
		}

		severity := findings.ClassifySeverity(raw)
		if severity == findings.SeverityInfo {
			severity = findings.SeverityLow
		}

		alarms = append(alarms, findings.NewSessionFinding(
			sessionID,
			severity,
			fmt.Sprintf("Alarming output from %s", sub.Name),
			fmt.Sprintf("The %s sub-invocation raised alarm keywords during the %s phase.", sub.Name, phase.Name()),
			findings.WithEvidence(truncate(raw, maxEvidenceLen)),
		))
	}
	return alarms
}

// containmentFinding describes a phase failure that was caught and absorbed.
// Failures in the phases that surface actual vulnerabilities weigh MEDIUM;
// the discovery and reporting phases weigh LOW.
func containmentFinding(sessionID uuid.UUID, phase domain.Phase, reason string, timedOut bool) (*findings.Finding, findings.Severity) {
	severity := findings.SeverityLow
	if phase == domain.PhaseVulnerabilityScanning || phase == domain.PhaseExploitationChainAnalysis {
		severity = findings.SeverityMedium
	}

	verb := "failed"
	if timedOut {
		verb = "timed out"
	}

	finding := findings.NewSessionFinding(
		sessionID,
		severity,
		fmt.Sprintf("%s phase %s", phase.Name(), verb),
		fmt.Sprintf("The %s phase %s before finishing: %s. Coverage from this phase is incomplete.", phase.Name(), verb, reason),
		findings.WithRemediation("Re-run the workflow once the underlying failure is addressed."),
	)
	return finding, severity
}

// impactLine condenses analysis text into a short impact summary: the first
// non-empty line, truncated.
func impactLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return truncate(line, maxImpactLen)
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
