package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --endpoint
// on both "ragchat chat" and "ragchat send").
type Flag struct {
	// Name is the long flag name (e.g. "endpoint").
	Name string

	// Shorthand is the one-letter short flag (e.g. "e"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "client.endpoint").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag and BindRegisteredFlags
// to avoid typos or drift from one command to another.
const (
	FlagEndpoint       = "endpoint"
	FlagUserID         = "user"
	FlagTimeout        = "timeout"
	FlagDumpStream     = "dump-stream"
	FlagConversation   = "conversation"
	FlagEventsProvider = "events-provider"
	FlagEventsBrokers  = "events-brokers"
	FlagEventsTopic    = "events-topic"
)

// ClientFlags holds the flags shared by commands that talk to the chat
// service.
var ClientFlags = FlagSet{
	FlagEndpoint:       {Name: "endpoint", Shorthand: "e", ViperKey: "client.endpoint", Description: "Streaming chat endpoint URL"},
	FlagUserID:         {Name: "user", Shorthand: "u", ViperKey: "client.user_id", Description: "User ID sent with every message"},
	FlagTimeout:        {Name: "timeout", Shorthand: "t", ViperKey: "client.timeout", Description: "Per-message time limit (e.g. 90s, 5m; 0s for none)"},
	FlagDumpStream:     {Name: "dump-stream", ViperKey: "client.dump_stream", Description: "Append raw response bytes to this file"},
	FlagConversation:   {Name: "conversation", Shorthand: "c", ViperKey: "client.conversation_id", Description: "Resume the conversation with this ID"},
	FlagEventsProvider: {Name: "events-provider", ViperKey: "events.provider", Description: "Turn event publisher (none, kafka)"},
	FlagEventsBrokers:  {Name: "events-brokers", ViperKey: "events.brokers", Description: "Comma separated Kafka broker addresses"},
	FlagEventsTopic:    {Name: "events-topic", ViperKey: "events.topic", Description: "Kafka topic for turn events"},
}

// ClientFlagKeys lists every key of ClientFlags.
var ClientFlagKeys = []string{
	FlagEndpoint,
	FlagUserID,
	FlagTimeout,
	FlagDumpStream,
	FlagConversation,
	FlagEventsProvider,
	FlagEventsBrokers,
	FlagEventsTopic,
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddStringFlags registers every listed flag, each bound to a throwaway
// target. Values are read back through viper after BindRegisteredFlags.
func AddStringFlags(cmd *cobra.Command, fs FlagSet, keys []string) {
	for _, key := range keys {
		var target string
		AddStringFlag(cmd, fs, key, &target)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}
