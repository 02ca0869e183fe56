package utils

import (
	"maps"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config is a thread-safe key/value configuration loaded from the environment
// and optional .env files
type Config struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewConfig creates a new Config from a copy of the given values
func NewConfig(values map[string]string) *Config {
	cfg := &Config{values: make(map[string]string, len(values))}
	maps.Copy(cfg.values, values)
	return cfg
}

// NewConfigFromEnv loads the given .env files plus the process environment
func NewConfigFromEnv(files ...string) *Config {
	return NewConfig(LoadEnv(files...))
}

// Get returns the value for key, or an empty string
func (c *Config) Get(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

// GetWithDefault returns the value for key, or defaultValue when the key is missing or empty
func (c *Config) GetWithDefault(key, defaultValue string) string {
	if value := c.Get(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBool parses the value for key as a boolean. Unknown values are false
func (c *Config) GetBool(key string) bool {
	value := strings.ToLower(strings.TrimSpace(c.Get(key)))

	switch value {
	case "1", "yes", "on", "enabled":
		return true
	case "0", "no", "off", "disabled", "":
		return false
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false
	}
	return parsed
}

// GetIntWithDefault parses the value for key as an integer, falling back to
// defaultValue when it is missing or malformed
func (c *Config) GetIntWithDefault(key string, defaultValue int) int {
	value := strings.TrimSpace(c.Get(key))
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// GetSeconds reads an integer number of seconds as a duration
func (c *Config) GetSeconds(key string, defaultValue time.Duration) time.Duration {
	seconds := c.GetIntWithDefault(key, -1)
	if seconds < 0 {
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}

// GetList splits a comma separated value into its trimmed, non-empty parts
func (c *Config) GetList(key string, defaultValue []string) []string {
	value := c.Get(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}

	var out []string
	for part := range strings.SplitSeq(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Set modifies a configuration value
func (c *Config) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}
