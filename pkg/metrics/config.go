package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "patientflow"

// Config holds configuration for metrics collection.
type Config struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool

	// Registry is the Prometheus registry to use. If nil, uses prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Namespace overrides the default "patientflow" namespace for metrics.
	Namespace string
}

// DefaultConfig returns a default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Registry:  prometheus.DefaultRegisterer,
		Namespace: DefaultNamespace,
	}
}

// Build returns the Registry described by c, or nil when metrics are disabled.
func (c Config) Build() *Registry {
	if !c.Enabled {
		return nil
	}
	reg := c.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return NewRegistryWithNamespace(reg, c.Namespace)
}
