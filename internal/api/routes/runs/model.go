package runs

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	appScanning "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/app/scanning"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/findings"
	domain "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
)

// createRunRequest represents the payload for submitting a run.
type createRunRequest struct {
	Tool           string          `json:"tool" validate:"required"`
	ScopeID        *uuid.UUID      `json:"scope_id"`
	Target         string          `json:"target" validate:"required"`
	Params         json.RawMessage `json:"params"`
	TimeoutSeconds int             `json:"timeout_seconds" validate:"omitempty,gte=1"`
}

// createRunResponse represents the response for a submitted run.
type createRunResponse struct {
	ID        uuid.UUID `json:"id"`
	Status    string    `json:"status"`
	Tool      string    `json:"tool"`
	CreatedAt time.Time `json:"created_at"`
}

// Encode implements the web.Encoder interface.
func (crr createRunResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(crr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// HTTPStatus overrides the default status code for submissions.
func (crr createRunResponse) HTTPStatus() int { return http.StatusCreated }

// run is the wire representation of a scan run.
type run struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	ToolID       uuid.UUID       `json:"tool_id"`
	ScopeID      *uuid.UUID      `json:"scope_id,omitempty"`
	Target       string          `json:"target"`
	Params       json.RawMessage `json:"params,omitempty"`
	Status       string          `json:"status"`
	ExitCode     *int            `json:"exit_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Encode implements the web.Encoder interface.
func (r run) Encode() ([]byte, string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

func toRun(dr *domain.Run) run {
	r := run{
		ID:           dr.RunID(),
		UserID:       dr.UserID(),
		ToolID:       dr.ToolID(),
		ScopeID:      dr.ScopeID(),
		Target:       dr.Target(),
		Params:       dr.Params(),
		Status:       dr.Status().String(),
		ExitCode:     dr.ExitCode(),
		ErrorMessage: dr.ErrorMessage(),
		CreatedAt:    dr.CreatedAt(),
	}

	if t := dr.StartedAt(); !t.IsZero() {
		r.StartedAt = &t
	}
	if t := dr.CompletedAt(); !t.IsZero() {
		r.CompletedAt = &t
	}

	return r
}

// artifactSummary describes one artifact without its content. Content stays
// out of detail responses; artifacts can be megabytes of tool output.
type artifactSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

func toArtifactSummaries(artifacts []*domain.Artifact) []artifactSummary {
	items := make([]artifactSummary, 0, len(artifacts))
	for _, a := range artifacts {
		items = append(items, artifactSummary{
			ID:        a.ArtifactID(),
			Name:      a.Name(),
			Kind:      a.Kind().String(),
			SizeBytes: a.Size(),
			CreatedAt: a.CreatedAt(),
		})
	}
	return items
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

// runDetailResponse bundles a run with its artifacts summary and findings.
type runDetailResponse struct {
	Run       run               `json:"run"`
	Artifacts []artifactSummary `json:"artifacts"`
	Findings  []finding         `json:"findings"`
}

// Encode implements the web.Encoder interface.
func (rdr runDetailResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(rdr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

func toRunDetailResponse(detail *appScanning.RunDetail) runDetailResponse {
	return runDetailResponse{
		Run:       toRun(detail.Run),
		Artifacts: toArtifactSummaries(detail.Artifacts),
		Findings:  toFindings(detail.Findings),
	}
}

// listRunsResponse represents the response for a run listing.
type listRunsResponse struct {
	Items []run `json:"items"`
	Count int   `json:"count"`
}

// Encode implements the web.Encoder interface.
func (lrr listRunsResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(lrr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

func toListRunsResponse(items []*domain.Run) listRunsResponse {
	out := make([]run, 0, len(items))
	for _, dr := range items {
		out = append(out, toRun(dr))
	}
	return listRunsResponse{Items: out, Count: len(out)}
}
