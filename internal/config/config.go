// Package config defines the service configuration loaded at startup.
// Infrastructure endpoints and credentials (Postgres, Kafka, the OTLP
// collector, the AI bridge key) stay in environment variables; the file
// carries the tunables an operator adjusts per deployment.
package config

import "time"

// Config represents the top-level service configuration.
type Config struct {
	Web      WebConfig      `yaml:"web"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Bridge   BridgeConfig   `yaml:"ai_bridge"`
	Catalog  CatalogConfig  `yaml:"catalog"`
}

// WebConfig holds the HTTP server settings for the public API and the
// debug endpoint.
type WebConfig struct {
	APIHost   string `yaml:"api_host"`
	DebugHost string `yaml:"debug_host"`

	ReadTimeoutSeconds int `yaml:"read_timeout_seconds"`
	// WriteTimeoutSeconds must stay zero while run streaming is served from
	// this process. SSE responses outlive any fixed write budget.
	WriteTimeoutSeconds    int `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds     int `yaml:"idle_timeout_seconds"`
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// WorkflowConfig bounds guided workflow execution. Zero values fall back to
// the orchestrator's built-in budgets.
type WorkflowConfig struct {
	PhaseTimeoutSeconds   int `yaml:"phase_timeout_seconds"`
	SessionTimeoutSeconds int `yaml:"session_timeout_seconds"`
}

// BridgeConfig bounds the request rate against the AI bridge. Zero values
// fall back to the client's built-in limits.
type BridgeConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// CatalogConfig locates the tool manifest seeded into the catalog at startup.
type CatalogConfig struct {
	ManifestPath string `yaml:"manifest_path"`
}

// Default returns the configuration used when no file is provided. A partial
// file overrides individual fields on top of these values.
func Default() *Config {
	return &Config{
		Web: WebConfig{
			APIHost:                "0.0.0.0:8600",
			DebugHost:              "0.0.0.0:8610",
			ReadTimeoutSeconds:     5,
			WriteTimeoutSeconds:    0,
			IdleTimeoutSeconds:     120,
			ShutdownTimeoutSeconds: 20,
			CORSAllowedOrigins:     []string{"*"},
		},
		Workflow: WorkflowConfig{
			PhaseTimeoutSeconds:   int((15 * time.Minute).Seconds()),
			SessionTimeoutSeconds: int((2 * time.Hour).Seconds()),
		},
		Bridge: BridgeConfig{
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Catalog: CatalogConfig{
			ManifestPath: "/app/config/tools.yaml",
		},
	}
}

// ReadTimeout returns the configured read timeout as a duration.
func (w WebConfig) ReadTimeout() time.Duration {
	return time.Duration(w.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the configured write timeout as a duration.
func (w WebConfig) WriteTimeout() time.Duration {
	return time.Duration(w.WriteTimeoutSeconds) * time.Second
}

// IdleTimeout returns the configured idle timeout as a duration.
func (w WebConfig) IdleTimeout() time.Duration {
	return time.Duration(w.IdleTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the configured shutdown grace period as a duration.
func (w WebConfig) ShutdownTimeout() time.Duration {
	return time.Duration(w.ShutdownTimeoutSeconds) * time.Second
}

// PhaseTimeout returns the per-phase budget as a duration.
func (w WorkflowConfig) PhaseTimeout() time.Duration {
	return time.Duration(w.PhaseTimeoutSeconds) * time.Second
}

// SessionTimeout returns the whole-session budget as a duration.
func (w WorkflowConfig) SessionTimeout() time.Duration {
	return time.Duration(w.SessionTimeoutSeconds) * time.Second
}
