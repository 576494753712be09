// Package client assembles a ready to use chat.Controller from a resolved
// configuration: the dispatcher, the turn event publishers, the preview store
// and the optional raw stream dump.
package client

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/papercomputeco/ragchat/pkg/attachment"
	"github.com/papercomputeco/ragchat/pkg/chat"
	"github.com/papercomputeco/ragchat/pkg/config"
	"github.com/papercomputeco/ragchat/pkg/dispatch"
	"github.com/papercomputeco/ragchat/pkg/eventstream"
	"github.com/papercomputeco/ragchat/pkg/eventstream/kafka"
	"github.com/papercomputeco/ragchat/pkg/eventstream/memory"
	"github.com/papercomputeco/ragchat/pkg/eventstream/nop"
	"github.com/papercomputeco/ragchat/pkg/eventstream/worker"
	"github.com/papercomputeco/ragchat/pkg/logger"
)

// Client bundles a controller with the resources it owns.
type Client struct {
	Controller *chat.Controller
	Dispatcher *dispatch.Dispatcher
	Previews   *attachment.Previews

	// Turns records every finished turn in memory, whatever the configured
	// external publisher is.
	Turns *memory.Publisher

	dump *os.File
}

// Option customizes New.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	publisher eventstream.Publisher
	chatOpts  []chat.Option
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithPublisher replaces the publisher that events.provider would select.
func WithPublisher(p eventstream.Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithControllerOptions appends extra controller options.
func WithControllerOptions(opts ...chat.Option) Option {
	return func(o *options) {
		o.chatOpts = append(o.chatOpts, opts...)
	}
}

// New builds a Client for cfg.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.Nop()
	}

	if cfg.Client.Endpoint == "" {
		return nil, errors.New("no chat endpoint configured")
	}

	timeout, err := cfg.Client.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	external := o.publisher
	if external == nil {
		external, err = NewPublisher(cfg.Events, o.logger)
		if err != nil {
			return nil, err
		}
	}

	c := &Client{
		Dispatcher: dispatch.New(dispatch.Config{
			Endpoint: cfg.Client.Endpoint,
			Logger:   o.logger,
		}),
		Previews: attachment.NewPreviews(),
		Turns:    memory.NewPublisher(),
	}

	chatOpts := []chat.Option{
		chat.WithUserID(cfg.Client.UserID),
		chat.WithConversationID(cfg.Client.ConversationID),
		chat.WithTimeout(timeout),
		chat.WithPreviews(c.Previews),
		chat.WithPublisher(eventstream.Fanout(c.Turns, external)),
		chat.WithLogger(o.logger),
	}

	if cfg.Client.DumpStream != "" {
		f, err := os.OpenFile(cfg.Client.DumpStream, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			_ = external.Close()
			return nil, fmt.Errorf("opening stream dump: %w", err)
		}
		c.dump = f
		chatOpts = append(chatOpts, chat.WithStreamDump(f))
	}

	c.Controller = chat.NewController(c.Dispatcher, append(chatOpts, o.chatOpts...)...)
	return c, nil
}

// NewLogger builds the command logger for cfg. Records go to w so streamed
// replies on stdout stay clean.
func NewLogger(cfg config.LogConfig, debug bool, w io.Writer) *slog.Logger {
	return logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(cfg.Pretty),
		logger.WithJSON(cfg.JSON),
		logger.WithWriter(w),
	)
}

// NewPublisher returns the external turn event publisher selected by cfg.
// Kafka delivery runs behind a worker pool so finishing a turn never waits
// on the broker.
func NewPublisher(cfg config.EventsConfig, l *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.Provider {
	case "", config.EventsProviderNone:
		return nop.NewPublisher(l), nil
	case config.EventsProviderKafka:
		kp, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topic,
			Logger:  l,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		pool, err := worker.NewPool(&worker.Config{
			Publisher: kp,
			Logger:    l,
		})
		if err != nil {
			_ = kp.Close()
			return nil, fmt.Errorf("creating publisher pool: %w", err)
		}
		return pool, nil
	default:
		return nil, fmt.Errorf("unknown events provider %q", cfg.Provider)
	}
}

// Close stops any active submission, releases previews, flushes the turn
// publishers and closes the stream dump.
func (c *Client) Close() error {
	err := c.Controller.Close()
	if c.dump != nil {
		err = errors.Join(err, c.dump.Close())
	}
	return err
}
