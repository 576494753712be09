package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent ragchat configuration stored as
// config.toml in the .ragchat/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version int          `toml:"version"`
	Client  ClientConfig `toml:"client"`
	Events  EventsConfig `toml:"events"`
	Log     LogConfig    `toml:"log"`
}

// ClientConfig holds settings for talking to the chat service.
type ClientConfig struct {
	// Endpoint is the full URL of the streaming chat endpoint.
	Endpoint string `toml:"endpoint,omitempty"`

	UserID string `toml:"user_id,omitempty"`

	// Timeout bounds one submission, as a Go duration string. "0s"
	// disables it.
	Timeout string `toml:"timeout,omitempty"`

	// DumpStream is a file path that receives every raw response byte.
	DumpStream string `toml:"dump_stream,omitempty"`

	// ConversationID resumes an existing conversation. Empty starts a new
	// one.
	ConversationID string `toml:"conversation_id,omitempty"`
}

// TimeoutDuration parses Timeout. An empty value means no limit.
func (c ClientConfig) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid client timeout %q: %w", c.Timeout, err)
	}
	return d, nil
}

// EventsConfig selects where turn events are published.
type EventsConfig struct {
	// Provider is "none" or "kafka".
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Pretty bool `toml:"pretty"`
	JSON   bool `toml:"json,omitempty"`
}

// Event providers.
const (
	EventsProviderNone  = "none"
	EventsProviderKafka = "kafka"
)

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"client.endpoint": {
		get: func(c *Config) string { return c.Client.Endpoint },
		set: func(c *Config, v string) error { c.Client.Endpoint = v; return nil },
	},
	"client.user_id": {
		get: func(c *Config) string { return c.Client.UserID },
		set: func(c *Config, v string) error { c.Client.UserID = v; return nil },
	},
	"client.timeout": {
		get: func(c *Config) string { return c.Client.Timeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for client.timeout: %w", err)
			}
			c.Client.Timeout = v
			return nil
		},
	},
	"client.dump_stream": {
		get: func(c *Config) string { return c.Client.DumpStream },
		set: func(c *Config, v string) error { c.Client.DumpStream = v; return nil },
	},
	"client.conversation_id": {
		get: func(c *Config) string { return c.Client.ConversationID },
		set: func(c *Config, v string) error { c.Client.ConversationID = v; return nil },
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case EventsProviderNone, EventsProviderKafka:
				c.Events.Provider = v
				return nil
			default:
				return fmt.Errorf("invalid value for events.provider: %q (available: none, kafka)", v)
			}
		},
	},
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error { c.Events.Brokers = splitList(v); return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
	"log.pretty": {
		get: func(c *Config) string { return strconv.FormatBool(c.Log.Pretty) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for log.pretty: %w", err)
			}
			c.Log.Pretty = b
			return nil
		},
	},
	"log.json": {
		get: func(c *Config) string { return strconv.FormatBool(c.Log.JSON) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for log.json: %w", err)
			}
			c.Log.JSON = b
			return nil
		},
	},
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
