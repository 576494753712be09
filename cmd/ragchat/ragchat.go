// Package ragchatcmder
package ragchatcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/ragchat/cmd/ragchat/chat"
	configcmder "github.com/papercomputeco/ragchat/cmd/ragchat/config"
	replaycmder "github.com/papercomputeco/ragchat/cmd/ragchat/replay"
	sendcmder "github.com/papercomputeco/ragchat/cmd/ragchat/send"
	versioncmder "github.com/papercomputeco/ragchat/cmd/version"
)

const ragchatLongDesc string = `ragchat is a streaming chat client for retrieval augmented assistants.

Talk to a chat service using:
  ragchat chat            Start an interactive session
  ragchat send "message"  Send one message and print the reply
  ragchat replay          Serve scripted replies for local development`

const ragchatShortDesc string = "ragchat - streaming chat client"

func NewRagchatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ragchat",
		Short:        ragchatShortDesc,
		Long:         ragchatLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .ragchat/ config directory")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(sendcmder.NewSendCmd())
	cmd.AddCommand(replaycmder.NewReplayCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
