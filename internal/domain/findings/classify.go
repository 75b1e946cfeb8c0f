package findings

import "strings"

// severityBuckets orders the keyword heuristics from most to least severe.
// Classification scans the text for each bucket in turn and the first hit
// wins, so analysis mentioning both "critical" and "low risk" lands in
// CRITICAL.
var severityBuckets = []struct {
	severity Severity
	keywords []string
}{
	{SeverityCritical, []string{
		"critical",
		"remote code execution",
		"rce",
		"sql injection",
		"command injection",
		"authentication bypass",
	}},
	{SeverityHigh, []string{
		"high severity",
		"high risk",
		"privilege escalation",
		"arbitrary file",
		"default credentials",
		"exploitable",
	}},
	{SeverityMedium, []string{
		"medium severity",
		"medium risk",
		"moderate",
		"cross-site scripting",
		"xss",
		"csrf",
		"directory listing",
		"outdated",
	}},
	{SeverityLow, []string{
		"low severity",
		"low risk",
		"information disclosure",
		"verbose error",
		"banner",
	}},
}

// ClassifySeverity buckets free-text analysis into a severity by keyword
// heuristics. Text matching no bucket classifies as INFO.
func ClassifySeverity(text string) Severity {
	lower := strings.ToLower(text)
	for _, bucket := range severityBuckets {
		for _, kw := range bucket.keywords {
			if strings.Contains(lower, kw) {
				return bucket.severity
			}
		}
	}
	return SeverityInfo
}

// alarmKeywords flag a sub-invocation's raw output as worth a finding of its
// own, independent of the phase-level analysis.
var alarmKeywords = []string{
	"vulnerable",
	"exploit",
	"cve-",
	"injection",
	"bypass",
	"disclosure",
	"weak cipher",
	"anonymous login",
	"password",
	"unauthorized",
}

// ContainsAlarm reports whether tool output carries any alarm keyword.
func ContainsAlarm(output string) bool {
	lower := strings.ToLower(output)
	for _, kw := range alarmKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
