package scanning

import (
	"time"

	"github.com/google/uuid"
)

// ArtifactKind identifies the type of output blob attached to a run.
type ArtifactKind string

const (
	// ArtifactKindStdout holds the accumulated standard output of the execution.
	ArtifactKindStdout ArtifactKind = "stdout"

	// ArtifactKindStderr holds the accumulated standard error of the execution.
	ArtifactKindStderr ArtifactKind = "stderr"

	// ArtifactKindAnalysis holds the free-text analysis produced by the backend.
	ArtifactKindAnalysis ArtifactKind = "analysis"

	// ArtifactKindToolMetadata holds structured metadata about sub-invocations.
	ArtifactKindToolMetadata ArtifactKind = "tool_metadata"
)

// String returns the string representation of the ArtifactKind.
func (k ArtifactKind) String() string { return string(k) }

// ParseArtifactKind converts a string to an ArtifactKind.
func ParseArtifactKind(s string) ArtifactKind {
	switch s {
	case "stdout":
		return ArtifactKindStdout
	case "stderr":
		return ArtifactKindStderr
	case "analysis":
		return ArtifactKindAnalysis
	case "tool_metadata":
		return ArtifactKindToolMetadata
	default:
		return ""
	}
}

// Artifact is a named, typed output blob attached to a run. Artifacts are
// keyed by (run, name); writing to an existing name replaces the content and
// recomputes the size.
type Artifact struct {
	id        uuid.UUID
	runID     uuid.UUID
	name      string
	kind      ArtifactKind
	content   []byte
	size      int64
	createdAt time.Time
	updatedAt time.Time
}

// NewArtifact creates a new Artifact attached to the given run.
func NewArtifact(runID uuid.UUID, name string, kind ArtifactKind, content []byte) *Artifact {
	now := time.Now()
	return &Artifact{
		id:        uuid.New(),
		runID:     runID,
		name:      name,
		kind:      kind,
		content:   content,
		size:      int64(len(content)),
		createdAt: now,
		updatedAt: now,
	}
}

// ReconstructArtifact creates an Artifact instance from persisted data.
// This should only be used by repositories when reconstructing from storage.
func ReconstructArtifact(
	id uuid.UUID,
	runID uuid.UUID,
	name string,
	kind ArtifactKind,
	content []byte,
	size int64,
	createdAt time.Time,
	updatedAt time.Time,
) *Artifact {
	return &Artifact{
		id:        id,
		runID:     runID,
		name:      name,
		kind:      kind,
		content:   content,
		size:      size,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

// ArtifactID returns the unique identifier for this artifact.
func (a *Artifact) ArtifactID() uuid.UUID { return a.id }

// RunID returns the identifier of the run this artifact belongs to.
func (a *Artifact) RunID() uuid.UUID { return a.runID }

// Name returns the artifact's unique name within its run.
func (a *Artifact) Name() string { return a.name }

// Kind returns the type of output blob this artifact holds.
func (a *Artifact) Kind() ArtifactKind { return a.kind }

// Content returns the artifact body.
func (a *Artifact) Content() []byte { return a.content }

// Size returns the byte length of the artifact body.
func (a *Artifact) Size() int64 { return a.size }

// CreatedAt returns the time the artifact was first written.
func (a *Artifact) CreatedAt() time.Time { return a.createdAt }

// UpdatedAt returns the time the artifact content was last replaced.
func (a *Artifact) UpdatedAt() time.Time { return a.updatedAt }

// SetContent replaces the artifact body and recomputes its size.
func (a *Artifact) SetContent(content []byte) {
	a.content = content
	a.size = int64(len(content))
	a.updatedAt = time.Now()
}
