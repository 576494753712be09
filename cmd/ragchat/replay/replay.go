// Package replaycmder provides the replay command, which serves scripted
// streaming replies in place of the real chat service.
package replaycmder

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ragchat/pkg/config"
	"github.com/papercomputeco/ragchat/pkg/logger"
	"github.com/papercomputeco/ragchat/pkg/replay"
)

type replayCommander struct {
	listen     string
	scriptPath string
	debug      bool

	logger *slog.Logger
}

const replayLongDesc string = `Serve scripted streaming replies for local development.

The replay server accepts the same multipart requests as the chat service on
` + replay.ChatPath + ` and answers with the frames of a TOML script. Without
--script it echoes every message back.

A script looks like:

  delay = "50ms"

  [[frame]]
  type = "chunk"
  content = "Hello "

  [[frame]]
  type = "chunk"
  content = "world"

  [[frame]]
  type = "end"

Examples:
  ragchat replay
  ragchat replay --listen 127.0.0.1:5050 --script demo.toml`

const replayShortDesc string = "Serve scripted chat replies"

func NewReplayCmd() *cobra.Command {
	cmder := &replayCommander{}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: replayShortDesc,
		Long:  replayLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")

			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg := config.FromViper(v)

			cmder.logger = logger.New(
				logger.WithDebug(cmder.debug),
				logger.WithPretty(cfg.Log.Pretty),
				logger.WithJSON(cfg.Log.JSON),
				logger.WithWriter(cmd.ErrOrStderr()),
			)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run()
		},
	}

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "127.0.0.1:5000", "Address for the replay server to listen on")
	cmd.Flags().StringVarP(&cmder.scriptPath, "script", "s", "", "TOML frame script (echoes messages when empty)")

	return cmd
}

func (c *replayCommander) run() error {
	var script *replay.Script
	if c.scriptPath != "" {
		var err error
		script, err = replay.LoadScript(c.scriptPath)
		if err != nil {
			return err
		}
		c.logger.Info("loaded replay script",
			"path", c.scriptPath,
			"frames", len(script.Frames),
		)
	}

	listener, err := net.Listen("tcp", c.listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", c.listen, err)
	}

	server := replay.New(replay.Config{
		ListenAddr: c.listen,
		Script:     script,
		Logger:     c.logger,
	})
	defer server.Close()

	// Channel to capture errors from the server goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := server.RunWithListener(listener); err != nil {
			errChan <- fmt.Errorf("replay server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return nil
	}
}
