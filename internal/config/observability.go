package config

import (
	"encoding/json"
	"fmt"
)

// TracingConfig holds OTLP span export configuration.
//
// Spans are pushed over OTLP/HTTP to a local collector agent.
// See internal/observability for the exporter wiring.
type TracingConfig struct {
	// Enabled turns span export on. Off by default; retrieval works
	// without a collector.
	Enabled bool `mapstructure:"enabled" json:"enabled"`

	// APIKey is the collector vendor API key (optional).
	APIKey string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON

	// Endpoint is the collector OTLP/HTTP endpoint (default: localhost:4318).
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`

	// Environment is the deployment environment tag (default: dev).
	Environment string `mapstructure:"environment" json:"environment"`

	// ServiceName is the service name attached to spans (default: lore).
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (t TracingConfig) MarshalJSON() ([]byte, error) {
	type alias TracingConfig
	a := alias(t)
	a.APIKey = maskSecret(a.APIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal tracing config: %w", err)
	}
	return data, nil
}
