// Package findings provides domain types for security findings discovered
// during runs and workflow sessions, plus the keyword heuristics and
// labelled-section mining used to synthesize them from analysis text.
package findings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrFindingNotFound is returned when a finding cannot be located in storage.
var ErrFindingNotFound = errors.New("finding not found")

// Severity ranks how serious a finding is.
type Severity string

const (
	// SeverityInfo marks observations with no direct security impact.
	SeverityInfo Severity = "INFO"

	// SeverityLow marks issues with limited impact or difficult exploitation.
	SeverityLow Severity = "LOW"

	// SeverityMedium marks issues that weaken the target's security posture.
	SeverityMedium Severity = "MEDIUM"

	// SeverityHigh marks issues that are likely exploitable with real impact.
	SeverityHigh Severity = "HIGH"

	// SeverityCritical marks issues allowing full compromise of the target.
	SeverityCritical Severity = "CRITICAL"
)

// String returns the string representation of the Severity.
func (s Severity) String() string { return string(s) }

// ParseSeverity converts a string to a Severity, defaulting to INFO.
func ParseSeverity(s string) Severity {
	switch s {
	case "LOW":
		return SeverityLow
	case "MEDIUM":
		return SeverityMedium
	case "HIGH":
		return SeverityHigh
	case "CRITICAL":
		return SeverityCritical
	default:
		return SeverityInfo
	}
}

// Rank orders severities for comparison, INFO lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Weight returns the severity's contribution to a session's aggregate risk
// score. Scores sum per finding and cap at 100.
func (s Severity) Weight() int {
	switch s {
	case SeverityLow:
		return 5
	case SeverityMedium:
		return 15
	case SeverityHigh:
		return 30
	case SeverityCritical:
		return 50
	default:
		return 0
	}
}

// Finding records one discovered issue. A finding belongs to either a run or
// a workflow session and is append-only during execution; it disappears only
// through cascading deletion of its owner or an explicit per-finding delete.
type Finding struct {
	id        uuid.UUID
	runID     *uuid.UUID
	sessionID *uuid.UUID

	severity    Severity
	title       string
	description string

	evidence     string
	remediation  string
	exploitation string
	verification string

	createdAt time.Time
}

// FindingOption defines functional options for configuring a new Finding.
type FindingOption func(*Finding)

// WithEvidence attaches supporting evidence text to the finding.
func WithEvidence(evidence string) FindingOption {
	return func(f *Finding) { f.evidence = evidence }
}

// WithRemediation sets the remediation guidance for the finding.
func WithRemediation(remediation string) FindingOption {
	return func(f *Finding) { f.remediation = remediation }
}

// WithExploitation sets the exploitation notes for the finding.
func WithExploitation(exploitation string) FindingOption {
	return func(f *Finding) { f.exploitation = exploitation }
}

// WithVerification sets the verification steps for the finding.
func WithVerification(verification string) FindingOption {
	return func(f *Finding) { f.verification = verification }
}

// NewRunFinding creates a Finding owned by a run.
func NewRunFinding(runID uuid.UUID, severity Severity, title, description string, opts ...FindingOption) *Finding {
	f := &Finding{
		id:          uuid.New(),
		runID:       &runID,
		severity:    severity,
		title:       title,
		description: description,
		createdAt:   time.Now(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// NewSessionFinding creates a Finding owned by a workflow session.
func NewSessionFinding(sessionID uuid.UUID, severity Severity, title, description string, opts ...FindingOption) *Finding {
	f := &Finding{
		id:          uuid.New(),
		sessionID:   &sessionID,
		severity:    severity,
		title:       title,
		description: description,
		createdAt:   time.Now(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// ReconstructFinding creates a Finding instance from persisted data.
// This should only be used by repositories when reconstructing from storage.
func ReconstructFinding(
	id uuid.UUID,
	runID *uuid.UUID,
	sessionID *uuid.UUID,
	severity Severity,
	title string,
	description string,
	evidence string,
	remediation string,
	exploitation string,
	verification string,
	createdAt time.Time,
) *Finding {
	return &Finding{
		id:           id,
		runID:        runID,
		sessionID:    sessionID,
		severity:     severity,
		title:        title,
		description:  description,
		evidence:     evidence,
		remediation:  remediation,
		exploitation: exploitation,
		verification: verification,
		createdAt:    createdAt,
	}
}

// FindingID returns the unique identifier for this finding.
func (f *Finding) FindingID() uuid.UUID { return f.id }

// RunID returns the owning run's identifier, nil for session findings.
func (f *Finding) RunID() *uuid.UUID { return f.runID }

// SessionID returns the owning session's identifier, nil for run findings.
func (f *Finding) SessionID() *uuid.UUID { return f.sessionID }

// Severity returns the ranked seriousness of the finding.
func (f *Finding) Severity() Severity { return f.severity }

// Title returns the short display title of the finding.
func (f *Finding) Title() string { return f.title }

// Description returns the full description text.
func (f *Finding) Description() string { return f.description }

// Evidence returns the supporting evidence text.
func (f *Finding) Evidence() string { return f.evidence }

// Remediation returns the remediation guidance.
func (f *Finding) Remediation() string { return f.remediation }

// Exploitation returns the exploitation notes.
func (f *Finding) Exploitation() string { return f.exploitation }

// Verification returns the verification steps.
func (f *Finding) Verification() string { return f.verification }

// CreatedAt returns the time the finding was recorded.
func (f *Finding) CreatedAt() time.Time { return f.createdAt }

// FindingRepository defines the persistence operations for findings.
type FindingRepository interface {
	// CreateFinding persists a newly discovered finding.
	CreateFinding(ctx context.Context, finding *Finding) error

	// ListFindingsByRun retrieves all findings owned by a run, oldest first.
	ListFindingsByRun(ctx context.Context, runID uuid.UUID) ([]*Finding, error)

	// ListFindingsBySession retrieves all findings owned by a session, oldest first.
	ListFindingsBySession(ctx context.Context, sessionID uuid.UUID) ([]*Finding, error)

	// DeleteFinding removes a single finding.
	// It returns ErrFindingNotFound if no finding exists with the given ID.
	DeleteFinding(ctx context.Context, findingID uuid.UUID) error
}
