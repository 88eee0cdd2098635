package config

import "fmt"

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model must not be empty")
	}

	for name, b := range c.Backends {
		switch b.Type {
		case "mcp":
			if b.URL == "" {
				return fmt.Errorf("backend %q: url is required for mcp backends", name)
			}
		case "script":
			// No endpoint needed.
		default:
			return fmt.Errorf("backend %q: unknown type %q", name, b.Type)
		}

		switch b.Auth.Kind {
		case "", "none":
			// Always authorized.
		case "oauth":
			if b.Auth.RedirectURL == "" {
				return fmt.Errorf("backend %q: oauth auth requires redirect_url", name)
			}
		case "credential":
			if len(b.Auth.CredentialFields) == 0 {
				return fmt.Errorf("backend %q: credential auth requires credential_fields", name)
			}
		default:
			return fmt.Errorf("backend %q: unknown auth kind %q", name, b.Auth.Kind)
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}

	return nil
}
