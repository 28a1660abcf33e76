package main

import "github.com/codedread/spaces/internal/config"

// loadConfig loads the daemon's configuration from the environment (and an
// optional TOML overlay), applying the -port flag as a final override.
func loadConfig(tomlPath, portFlag string) (*config.Config, error) {
	cfg, err := config.Load(tomlPath)
	if err != nil {
		return nil, err
	}
	if portFlag != "" {
		cfg.Server.Port = portFlag
	}
	return cfg, nil
}
