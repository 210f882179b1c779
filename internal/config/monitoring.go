// Monitoring configuration - logging settings.
package config

// MonitoringConfig contains logging settings.
type MonitoringConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console (empty: detect terminal)
	LogOutput string `yaml:"log_output"` // stdout, stderr, or file path
}
