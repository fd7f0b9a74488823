// internal/workers/healthcard/issue-health-card/config.go
package issuehealthcard

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
