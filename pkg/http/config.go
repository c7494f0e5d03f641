package http

import "time"

// Config holds the HTTP server configuration
type Config struct {
	Port          int
	EnableMetrics bool
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// DefaultConfig returns a default HTTP server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:          8080,
		EnableMetrics: true,
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  30 * time.Second,
	}
}
