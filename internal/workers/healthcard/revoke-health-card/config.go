// internal/workers/healthcard/revoke-health-card/config.go
package revokehealthcard

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
