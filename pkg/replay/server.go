// Package replay serves the streaming chat protocol from a script. It
// stands in for the real chat service during development and in tests.
package replay

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/ragchat/pkg/dispatch"
	"github.com/papercomputeco/ragchat/pkg/logger"
)

// ChatPath is the route of the streaming chat endpoint.
const ChatPath = "/api/v1/chat/stream"

// Config is the replay server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "127.0.0.1:5000")
	ListenAddr string

	// Script answers every request. Nil echoes the message back.
	Script *Script

	Logger *slog.Logger
}

// Received is one request as the server saw it.
type Received struct {
	Message        string
	ConversationID string
	UserID         string
	Streaming      bool
	Files          []ReceivedFile
}

// ReceivedFile describes an uploaded file part.
type ReceivedFile struct {
	Name     string
	MimeType string
	Size     int64
}

// Server is a scripted chat service.
type Server struct {
	config Config
	logger *slog.Logger
	app    *fiber.App

	mu       sync.Mutex
	received []Received
}

// New creates a Server and registers its routes.
func New(c Config) *Server {
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})

	s := &Server{
		config: c,
		logger: c.Logger,
		app:    app,
	}

	app.Post(ChatPath, s.handleStream)
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return s
}

// Run starts the server on the configured listening address.
func (s *Server) Run() error {
	s.logger.Info("starting replay server",
		"listen", s.config.ListenAddr,
		"path", ChatPath,
	)

	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener starts the server using the provided listener.
func (s *Server) RunWithListener(listener net.Listener) error {
	s.logger.Info("starting replay server",
		"listen", listener.Addr().String(),
		"path", ChatPath,
	)

	return s.app.Listener(listener)
}

// Close shuts the server down.
func (s *Server) Close() error {
	return s.app.Shutdown()
}

// Received returns every request received so far.
func (s *Server) Received() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Received(nil), s.received...)
}

func (s *Server) handleStream(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		s.logger.Debug("rejecting request without multipart body", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "expected a multipart/form-data body"})
	}

	rec := Received{
		Message:        firstValue(form.Value[dispatch.FieldMessage]),
		ConversationID: firstValue(form.Value[dispatch.FieldConversationID]),
		UserID:         firstValue(form.Value[dispatch.FieldUserID]),
		Streaming:      firstValue(form.Value[dispatch.FieldStreaming]) == "true",
	}
	for _, fh := range form.File[dispatch.FieldFiles] {
		rec.Files = append(rec.Files, ReceivedFile{
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Size:     fh.Size,
		})
	}

	s.mu.Lock()
	s.received = append(s.received, rec)
	s.mu.Unlock()

	s.logger.Debug("chat request received",
		"conversation_id", rec.ConversationID,
		"user_id", rec.UserID,
		"files", len(rec.Files),
	)

	script := s.config.Script
	if script != nil && script.Status != 0 && script.Status != fiber.StatusOK {
		return c.Status(script.Status).SendString(script.ErrorBody)
	}

	var (
		frames []Frame
		delay  time.Duration
	)
	if script == nil || len(script.Frames) == 0 {
		frames = EchoFrames(rec.ConversationID, rec.Message)
	} else {
		frames = script.Frames
	}
	if script != nil {
		delay = script.Delay
	}

	// Render everything up front: fasthttp recycles the request context
	// once the handler returns.
	lines := make([]string, len(frames))
	delays := make([]time.Duration, len(frames))
	for i, f := range frames {
		line, err := f.Line()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": fmt.Sprintf("frame %d: %v", i+1, err)})
		}
		lines[i] = line
		delays[i] = delay
		if f.Delay > 0 {
			delays[i] = f.Delay
		}
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")

	// io.Pipe gives per-frame flushing: fasthttp writes each chunk to the
	// socket as soon as the pipe yields it.
	pr, pw := io.Pipe()
	go s.writeFrames(pw, lines, delays)
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

func (s *Server) writeFrames(pw *io.PipeWriter, lines []string, delays []time.Duration) {
	defer pw.Close()

	for i, line := range lines {
		if delays[i] > 0 {
			time.Sleep(delays[i])
		}
		if _, err := io.WriteString(pw, line); err != nil {
			s.logger.Debug("client went away", "frames_sent", i, "error", err)
			return
		}
	}
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
