// Package chatcmder provides the chat command for an interactive streaming
// session with the chat service.
package chatcmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/ragchat/pkg/client"
	"github.com/papercomputeco/ragchat/pkg/config"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

type chatCommander struct {
	debug    bool
	markdown bool

	cfg    *config.Config
	logger *slog.Logger
}

const chatLongDesc string = `Start an interactive chat session.

Each line you type is sent to the chat service and the reply streams back as
it is generated. Lines starting with a slash are commands:

  /attach <path>   Attach a file to the next message
  /files           List files waiting to be sent
  /stop            Stop the reply in progress (also Ctrl+C)
  /reset           Start a new conversation
  /id              Print the conversation id
  /last            Summarize the last finished turn
  /help            Show this list
  /exit            Quit (also Ctrl+D)

Examples:
  ragchat chat
  ragchat chat --endpoint http://localhost:5000/api/v1/chat/stream
  ragchat chat --user alice --timeout 90s --markdown`

const chatShortDesc string = "Interactive streaming chat"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.ClientFlags, config.ClientFlagKeys)

			cmder.cfg = config.FromViper(v)
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.logger = client.NewLogger(cmder.cfg.Log, cmder.debug, cmd.ErrOrStderr())
			return cmder.run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	config.AddStringFlags(cmd, config.ClientFlags, config.ClientFlagKeys)
	cmd.Flags().BoolVarP(&cmder.markdown, "markdown", "m", false, "Render finished replies as markdown (terminal only)")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cl, err := client.New(c.cfg, client.WithLogger(c.logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := cl.Close(); err != nil {
			c.logger.Warn("closing chat client", "error", err)
		}
	}()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	s := newSession(cl, out, c.markdown && isTerminal(out), c.logger)

	fmt.Fprintf(out, "Chatting with %s (conversation %s)\n",
		cl.Dispatcher.Endpoint(), cl.Controller.State().ConversationID)
	fmt.Fprint(out, "Type /help for commands, Ctrl+D to quit.\n\n")

	return s.loop(ctx, readLines(in), interrupts)
}

// isTerminal reports whether w is a terminal, so markdown is never rendered
// into a pipe or file.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
