// internal/workers/orientation/cancel-orientation/config.go
package cancelorientation

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
