package config

import "github.com/caarlos0/env/v6"

// Runtime holds process-level settings read from the environment. These win
// over the YAML file so deployments can retarget a binary without editing it.
type Runtime struct {
	ConfigPath string `env:"PORTFOLIO_CONFIG" envDefault:"configs/config.yaml"`
	LogLevel   string `env:"PORTFOLIO_LOG_LEVEL"`
	HTTPPort   string `env:"PORTFOLIO_HTTP_PORT"`
}

// LoadRuntime parses the runtime settings from the environment.
func LoadRuntime() (Runtime, error) {
	var r Runtime
	if err := env.Parse(&r); err != nil {
		return Runtime{}, err
	}
	return r, nil
}

// Apply merges the runtime overrides into a loaded configuration.
func (r Runtime) Apply(cfg *Config) {
	if r.LogLevel != "" {
		cfg.Logging.Level = r.LogLevel
	}
	if r.HTTPPort != "" {
		cfg.Server.Port = r.HTTPPort
	}
}
