// Package config loads and validates the orchestrator configuration from
// YAML files with environment variable overrides.
package config
