package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Cache     CacheConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	// SessionSecret signs locally-issued session tokens (HS256).
	SessionSecret string `mapstructure:"sessionSecret"`
	// JWKSURL points at the external identity provider's key set.
	// Empty disables the external scheme; session tokens still verify.
	JWKSURL string `mapstructure:"jwksURL"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
	SendBuffer  int           `mapstructure:"sendBuffer"`
}

type CacheConfig struct {
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
	// StatsTTL bounds how long a /stats response may be served from cache.
	StatsTTL time.Duration `mapstructure:"statsTTL"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}
