package types

import "time"

// ServerConfig represents server configuration
type ServerConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	WebSocketPath  string        `json:"websocketPath"`
	ReadTimeout    time.Duration `json:"readTimeout"`
	WriteTimeout   time.Duration `json:"writeTimeout"`
	EnableMetrics  bool          `json:"enableMetrics"`
	ResultCapacity int           `json:"resultCapacity"`
}
