package findings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSections_AllLabels(t *testing.T) {
	t.Parallel()

	text := `The admin panel accepts default credentials.

Remediation: Change the default password and enforce a lockout policy.
Rotate any credentials that may have been exposed.

Exploitation: Log in with admin/admin at /admin.

Verification: Attempt the default pair after rotation; it must be rejected.`

	ex := ExtractSections(text)

	assert.True(t, ex.Recognized())
	assert.Equal(t, "Change the default password and enforce a lockout policy.\nRotate any credentials that may have been exposed.", ex.Remediation())
	assert.Equal(t, "Log in with admin/admin at /admin.", ex.Exploitation())
	assert.Equal(t, "Attempt the default pair after rotation; it must be rejected.", ex.Verification())
	assert.Equal(t, text, ex.RawText())
}

func TestExtractSections_SectionEndsAtBlankLine(t *testing.T) {
	t.Parallel()

	text := "remediation: patch the server\n\nunrelated trailing text"

	ex := ExtractSections(text)

	assert.True(t, ex.Recognized())
	assert.Equal(t, "patch the server", ex.Remediation())
}

func TestExtractSections_FirstOccurrenceWins(t *testing.T) {
	t.Parallel()

	text := "Remediation: apply the vendor patch\n\nRemediation: reinstall the host"

	ex := ExtractSections(text)

	assert.Equal(t, "apply the vendor patch", ex.Remediation())
}

func TestExtractSections_PartialLabels(t *testing.T) {
	t.Parallel()

	text := "Exploitation: craft a POST request with a serialized payload.\n"

	ex := ExtractSections(text)

	assert.True(t, ex.Recognized())
	assert.Equal(t, "craft a POST request with a serialized payload.", ex.Exploitation())
	assert.Equal(t, fallbackRemediation, ex.Remediation())
	assert.Equal(t, fallbackVerification, ex.Verification())
}

func TestExtractSections_NoLabels(t *testing.T) {
	t.Parallel()

	text := "Open ports: 22, 80, 443. No further issues observed."

	ex := ExtractSections(text)

	assert.False(t, ex.Recognized())
	assert.Equal(t, fallbackRemediation, ex.Remediation())
	assert.Equal(t, fallbackExploitation, ex.Exploitation())
	assert.Equal(t, fallbackVerification, ex.Verification())
	assert.Equal(t, text, ex.RawText())
}

func TestExtractSections_EmptySectionFallsBack(t *testing.T) {
	t.Parallel()

	// A label followed immediately by a blank line has no body to mine.
	text := "remediation:\n\nnothing else"

	ex := ExtractSections(text)

	assert.False(t, ex.Recognized())
	assert.Equal(t, fallbackRemediation, ex.Remediation())
}

func TestExtractSections_CRLFInput(t *testing.T) {
	t.Parallel()

	text := "Verification: rerun the scan with the fix applied.\r\n\r\nAppendix follows."

	ex := ExtractSections(text)

	assert.True(t, ex.Recognized())
	assert.Equal(t, "rerun the scan with the fix applied.", ex.Verification())
}
