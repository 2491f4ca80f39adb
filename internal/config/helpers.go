package config

import (
	"net"
	"strconv"
)

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Logging.Level == "debug" && c.Logging.Format == "console"
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.HTTPPort))
}

// BodyLimit returns the request body limit in bytes
func (c *ServerConfig) BodyLimit() int {
	return c.BodyLimitMB * 1024 * 1024
}

// RedisStreamName returns the stream prefix, falling back to the subject prefix
func (c *QueueConfig) RedisStreamName() string {
	if c.RedisStream != "" {
		return c.RedisStream
	}
	return c.SubjectPrefix
}
