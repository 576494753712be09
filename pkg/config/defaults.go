package config

const (
	defaultEndpoint = "http://localhost:5000/api/v1/chat/stream"
	defaultUserID   = "anonymous"

	// Assistant replies can be slow.
	defaultTimeout = "5m"

	defaultEventsProvider = EventsProviderNone
	defaultEventsTopic    = "ragchat.turns"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			Endpoint: defaultEndpoint,
			UserID:   defaultUserID,
			Timeout:  defaultTimeout,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
		Log: LogConfig{
			Pretty: true,
		},
	}
}
