// Package config loads the service configuration from an optional YAML file
// and the process environment. The default endpoint pair is built here once
// at startup and handed to the orchestrator as an explicit value.
package config
