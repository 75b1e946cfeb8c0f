package workflows

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	appWorkflow "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/app/workflow"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/findings"
	domain "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/workflow"
)

// createWorkflowRequest represents the payload for submitting a workflow.
// MaxSteps is clamped by the service, not rejected here.
type createWorkflowRequest struct {
	Name      string `json:"name"`
	Target    string `json:"target" validate:"required"`
	Objective string `json:"objective" validate:"required"`
	MaxSteps  int    `json:"max_steps"`
}

// step is the wire representation of one workflow phase step.
type step struct {
	Phase           int        `json:"phase"`
	PhaseName       string     `json:"phase_name"`
	Status          string     `json:"status"`
	Impact          string     `json:"impact,omitempty"`
	RemediationHint string     `json:"remediation_hint,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// session is the wire representation of a workflow session with its steps.
type session struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	RunID        uuid.UUID  `json:"run_id"`
	Name         string     `json:"name"`
	Target       string     `json:"target"`
	Objective    string     `json:"objective"`
	MaxSteps     int        `json:"max_steps"`
	Status       string     `json:"status"`
	CurrentPhase int        `json:"current_phase"`
	Progress     float64    `json:"progress"`
	RiskScore    int        `json:"risk_score"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Steps        []step     `json:"steps"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func toStep(ds *domain.Step) step {
	s := step{
		Phase:           ds.Phase().Ordinal(),
		PhaseName:       ds.Phase().Name(),
		Status:          ds.Status().String(),
		Impact:          ds.Impact(),
		RemediationHint: ds.RemediationHint(),
		ErrorMessage:    ds.ErrorMessage(),
	}

	if t := ds.StartedAt(); !t.IsZero() {
		s.StartedAt = &t
	}
	if t := ds.CompletedAt(); !t.IsZero() {
		s.CompletedAt = &t
	}

	return s
}

func toSession(ds *domain.Session) session {
	steps := make([]step, 0, len(ds.Steps()))
	for _, st := range ds.Steps() {
		steps = append(steps, toStep(st))
	}

	s := session{
		ID:           ds.SessionID(),
		UserID:       ds.UserID(),
		RunID:        ds.RunID(),
		Name:         ds.Name(),
		Target:       ds.Target(),
		Objective:    ds.Objective().String(),
		MaxSteps:     ds.MaxSteps(),
		Status:       ds.Status().String(),
		CurrentPhase: ds.CurrentPhase().Ordinal(),
		Progress:     ds.Progress(),
		RiskScore:    ds.RiskScore(),
		ErrorMessage: ds.ErrorMessage(),
		Steps:        steps,
		CreatedAt:    ds.CreatedAt(),
	}

	if t := ds.StartedAt(); !t.IsZero() {
		s.StartedAt = &t
	}
	if t := ds.CompletedAt(); !t.IsZero() {
		s.CompletedAt = &t
	}

	return s
}

// finding is the wire representation of a finding.
type finding struct {
	ID           uuid.UUID `json:"id"`
	Severity     string    `json:"severity"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Evidence     string    `json:"evidence,omitempty"`
	Remediation  string    `json:"remediation,omitempty"`
	Exploitation string    `json:"exploitation,omitempty"`
	Verification string    `json:"verification,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toFindings(items []*findings.Finding) []finding {
	out := make([]finding, 0, len(items))
	for _, f := range items {
		out = append(out, finding{
			ID:           f.FindingID(),
			Severity:     f.Severity().String(),
			Title:        f.Title(),
			Description:  f.Description(),
			Evidence:     f.Evidence(),
			Remediation:  f.Remediation(),
			Exploitation: f.Exploitation(),
			Verification: f.Verification(),
			CreatedAt:    f.CreatedAt(),
		})
	}
	return out
}

// createWorkflowResponse represents the response for a submitted workflow.
// QueuePosition appears only when admission deferred the session.
type createWorkflowResponse struct {
	session
	QueuePosition int `json:"queue_position,omitempty"`
}

// Encode implements the web.Encoder interface.
func (cwr createWorkflowResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(cwr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// HTTPStatus overrides the default status code for submissions.
func (cwr createWorkflowResponse) HTTPStatus() int { return http.StatusCreated }

func toCreateWorkflowResponse(sub *appWorkflow.WorkflowSubmission) createWorkflowResponse {
	return createWorkflowResponse{
		session:       toSession(sub.Session),
		QueuePosition: sub.QueuePosition,
	}
}

// workflowDetailResponse bundles a session with its findings and, while it
// waits for admission, its queue position.
type workflowDetailResponse struct {
	session
	QueuePosition int       `json:"queue_position,omitempty"`
	Findings      []finding `json:"findings"`
}

// Encode implements the web.Encoder interface.
func (wdr workflowDetailResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(wdr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

func toWorkflowDetailResponse(detail *appWorkflow.WorkflowDetail) workflowDetailResponse {
	return workflowDetailResponse{
		session:       toSession(detail.Session),
		QueuePosition: detail.QueuePosition,
		Findings:      toFindings(detail.Findings),
	}
}

// sessionResponse wraps a bare session for the mutation endpoints.
type sessionResponse struct {
	session
}

// Encode implements the web.Encoder interface.
func (sr sessionResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(sr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// listWorkflowsResponse represents the response for a workflow listing.
type listWorkflowsResponse struct {
	Items []session `json:"items"`
	Count int       `json:"count"`
}

// Encode implements the web.Encoder interface.
func (lwr listWorkflowsResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(lwr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

func toListWorkflowsResponse(items []*domain.Session) listWorkflowsResponse {
	out := make([]session, 0, len(items))
	for _, ds := range items {
		out = append(out, toSession(ds))
	}
	return listWorkflowsResponse{Items: out, Count: len(out)}
}
