// Package sendcmder provides the send command, which submits one message
// and streams the reply to stdout.
package sendcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ragchat/pkg/attachment"
	"github.com/papercomputeco/ragchat/pkg/chat"
	"github.com/papercomputeco/ragchat/pkg/client"
	"github.com/papercomputeco/ragchat/pkg/config"
	"github.com/papercomputeco/ragchat/pkg/eventstream"
)

// ErrStopped is returned when the reply was interrupted before it finished.
var ErrStopped = errors.New("reply stopped before it finished")

type sendCommander struct {
	debug bool
	files []string

	cfg    *config.Config
	logger *slog.Logger
}

const sendLongDesc string = `Send one message and print the streamed reply.

The reply is written to stdout as it arrives. The command exits non-zero
when the request fails, the service reports an error, or the reply is
interrupted with Ctrl+C.

Examples:
  ragchat send "What changed in the last release?"
  ragchat send "Summarize this" --file report.pdf
  echo "hello" | ragchat send -`

const sendShortDesc string = "Send one message and print the reply"

func NewSendCmd() *cobra.Command {
	cmder := &sendCommander{}

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: sendShortDesc,
		Long:  sendLongDesc,
		Args:  cobra.ExactArgs(1),
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
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.logger = client.NewLogger(cmder.cfg.Log, cmder.debug, cmd.ErrOrStderr())

			message := args[0]
			if message == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading message from stdin: %w", err)
				}
				message = strings.TrimSpace(string(data))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx, message, cmd.OutOrStdout())
		},
	}

	config.AddStringFlags(cmd, config.ClientFlags, config.ClientFlagKeys)
	cmd.Flags().StringArrayVarP(&cmder.files, "file", "f", nil, "Attach a file (repeatable)")

	return cmd
}

func (c *sendCommander) run(ctx context.Context, message string, out io.Writer) error {
	files := make([]attachment.File, 0, len(c.files))
	for _, path := range c.files {
		f, err := attachment.Load(path)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	if strings.TrimSpace(message) == "" && len(files) == 0 {
		return errors.New("nothing to send: empty message and no files")
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

	w := &replyWriter{out: out}
	unsubscribe := cl.Controller.Subscribe(w.onState)
	defer unsubscribe()

	// The submission gets its own context so an interrupt stops the reply
	// through the controller rather than tearing down the request directly.
	sub, err := cl.Controller.Submit(context.WithoutCancel(ctx), message, files...)
	if err != nil {
		return err
	}
	w.follow(sub.AssistantMessageID)

	select {
	case <-sub.Done():
	case <-ctx.Done():
		cl.Controller.Stop()
	}
	waitErr := sub.Wait()

	w.onState(cl.Controller.State())
	fmt.Fprintln(out)

	switch sub.Outcome() {
	case eventstream.OutcomeCancelled:
		return ErrStopped
	case eventstream.OutcomeFailed:
		return waitErr
	}
	return nil
}

// replyWriter prints the followed message's content as it grows.
type replyWriter struct {
	mu      sync.Mutex
	out     io.Writer
	id      string
	printed int
}

func (w *replyWriter) follow(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.id = id
}

func (w *replyWriter) onState(st chat.State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.id == "" {
		return
	}
	m, ok := st.Message(w.id)
	if !ok || len(m.Content) <= w.printed {
		return
	}
	fmt.Fprint(w.out, m.Content[w.printed:])
	w.printed = len(m.Content)
}
