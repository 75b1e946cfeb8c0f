package findings

import "strings"

// Generic fallbacks used when a labelled section is absent from the text.
const (
	fallbackRemediation  = "Review the analysis output for remediation guidance."
	fallbackExploitation = "See analysis for exploitation details."
	fallbackVerification = "Manual verification recommended."
)

// Extraction is the tagged outcome of mining labelled sections out of
// analysis text. A recognized extraction found at least one label and carries
// the section bodies; an unparsed one fell back to generic strings for every
// field. Consumers that care about confidence check Recognized before
// trusting the fields.
type Extraction struct {
	recognized   bool
	remediation  string
	exploitation string
	verification string
	rawText      string
}

// ExtractSections mines remediation, exploitation, and verification sections
// out of free-text analysis. For each field it matches the first occurrence
// of the labelled header ("remediation:" and so on, case-insensitive) and
// takes the following text up to a blank line. Fields whose label is absent
// get a generic fallback. This is best-effort text mining, not a parse.
func ExtractSections(text string) Extraction {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")

	remediation, okR := extractSection(normalized, "remediation")
	exploitation, okE := extractSection(normalized, "exploitation")
	verification, okV := extractSection(normalized, "verification")

	ex := Extraction{
		recognized:   okR || okE || okV,
		remediation:  remediation,
		exploitation: exploitation,
		verification: verification,
		rawText:      text,
	}

	if !okR {
		ex.remediation = fallbackRemediation
	}
	if !okE {
		ex.exploitation = fallbackExploitation
	}
	if !okV {
		ex.verification = fallbackVerification
	}

	return ex
}

// extractSection returns the text following the first "label:" marker up to
// the first blank line, trimmed. The second return is false when the label
// is absent or its section is empty.
func extractSection(text, label string) (string, bool) {
	lower := strings.ToLower(text)
	pos := strings.Index(lower, label+":")
	if pos < 0 {
		return "", false
	}

	rest := text[pos+len(label)+1:]
	if end := strings.Index(rest, "\n\n"); end >= 0 {
		rest = rest[:end]
	}

	section := strings.TrimSpace(rest)
	if section == "" {
		return "", false
	}
	return section, true
}

// Recognized reports whether at least one labelled section was found.
func (e Extraction) Recognized() bool { return e.recognized }

// Remediation returns the mined remediation section or its generic fallback.
func (e Extraction) Remediation() string { return e.remediation }

// Exploitation returns the mined exploitation section or its generic fallback.
func (e Extraction) Exploitation() string { return e.exploitation }

// Verification returns the mined verification section or its generic fallback.
func (e Extraction) Verification() string { return e.verification }

// RawText returns the original analysis text the extraction ran over.
func (e Extraction) RawText() string { return e.rawText }
