package workflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhases_OrderAndCount(t *testing.T) {
	t.Parallel()

	phases := Phases()
	require.Len(t, phases, TotalPhases)

	want := []Phase{
		PhaseIntelligencePlanning,
		PhaseAutomatedScan,
		PhaseDeepReconnaissance,
		PhaseVulnerabilityScanning,
		PhaseExploitationChainAnalysis,
		PhaseFinalReport,
	}
	assert.Equal(t, want, phases)

	for i, p := range phases {
		assert.Equal(t, i+1, p.Ordinal())
		assert.True(t, p.Valid())
	}
}

func TestPhase_TransitionTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		phase Phase
		next  Phase
		final bool
	}{
		{PhaseIntelligencePlanning, PhaseAutomatedScan, false},
		{PhaseAutomatedScan, PhaseDeepReconnaissance, false},
		{PhaseDeepReconnaissance, PhaseVulnerabilityScanning, false},
		{PhaseVulnerabilityScanning, PhaseExploitationChainAnalysis, false},
		{PhaseExploitationChainAnalysis, PhaseFinalReport, false},
		{PhaseFinalReport, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.phase.Name(), func(t *testing.T) {
			next, ok := tt.phase.Next()
			if tt.final {
				assert.False(t, ok)
				assert.True(t, tt.phase.IsFinal())
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.next, next)
			assert.False(t, tt.phase.IsFinal())
		})
	}
}

func TestPhase_Names(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Intelligence Planning", PhaseIntelligencePlanning.Name())
	assert.Equal(t, "Automated Scan", PhaseAutomatedScan.Name())
	assert.Equal(t, "Deep Reconnaissance", PhaseDeepReconnaissance.Name())
	assert.Equal(t, "Vulnerability Scanning", PhaseVulnerabilityScanning.Name())
	assert.Equal(t, "Exploitation Chain Analysis", PhaseExploitationChainAnalysis.Name())
	assert.Equal(t, "Final Report", PhaseFinalReport.Name())

	assert.False(t, Phase(0).Valid())
	assert.False(t, Phase(7).Valid())
}

func TestPhase_TaskDescription(t *testing.T) {
	t.Parallel()

	for _, phase := range Phases() {
		task := phase.TaskDescription("api.example.com", ObjectiveStealth)
		assert.True(t, strings.Contains(task, "api.example.com"), "task for %s must name the target", phase)
		assert.True(t, strings.Contains(task, "Minimize noise"), "task for %s must carry the objective guidance", phase)
	}
}
