// internal/workers/orientation/check-in-orientation/config.go
package checkinorientation

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
