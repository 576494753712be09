// Package dispatch sends a chat message to the remote assistant service and
// hands back the streaming response body together with a cancellation token.
package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/papercomputeco/ragchat/pkg/attachment"
	"github.com/papercomputeco/ragchat/pkg/logger"
	"github.com/papercomputeco/ragchat/pkg/utils"
)

// Multipart field names understood by the chat service.
const (
	FieldMessage        = "message"
	FieldConversationID = "conversationId"
	FieldUserID         = "userId"
	FieldStreaming      = "streaming"
	FieldFiles          = "files"
)

// errorBodyLimit caps how much of an error response is kept for messages.
const errorBodyLimit = 512

// Config configures a Dispatcher.
type Config struct {
	// Endpoint is the full URL of the streaming chat endpoint.
	Endpoint string

	// Client performs the request. It must not set an overall Timeout, which
	// would cut long streams short; use a context deadline instead.
	Client *http.Client

	Logger *slog.Logger
}

// Request is one outbound chat message.
type Request struct {
	ConversationID string
	UserID         string
	Message        string
	Files          []attachment.File
}

// Stream is a live response body bound to one request.
type Stream struct {
	// Body yields the raw response bytes. Reads after the token was
	// cancelled fail with an error matching ErrCancelled.
	Body io.ReadCloser

	// Token cancels the request and unblocks pending reads on Body.
	Token *CancelToken

	StatusCode  int
	ContentType string
}

// Close cancels the request if it is still running and closes the body.
func (s *Stream) Close() error {
	s.Token.release()
	return s.Body.Close()
}

// Dispatcher issues chat requests.
type Dispatcher struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// New creates a Dispatcher for the given configuration.
func New(c Config) *Dispatcher {
	if c.Client == nil {
		c.Client = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	return &Dispatcher{
		endpoint: c.Endpoint,
		client:   c.Client,
		logger:   c.Logger,
	}
}

// Endpoint returns the URL requests are sent to.
func (d *Dispatcher) Endpoint() string {
	return d.endpoint
}

// Send posts req and returns the response stream once the service answered
// with a success status. Cancelling ctx, or the returned Stream's token,
// aborts the request at any point.
func (d *Dispatcher) Send(ctx context.Context, req Request) (*Stream, error) {
	body, contentType, err := encodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	ctx, token := NewCancelToken(ctx)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, body)
	if err != nil {
		token.release()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "text/event-stream")

	d.logger.Debug("sending chat request",
		"endpoint", d.endpoint,
		"conversation_id", req.ConversationID,
		"files", len(req.Files),
		"body_bytes", body.Len(),
	)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		// Check before release, which cancels ctx itself.
		cause := ctx.Err()
		token.release()
		if cause != nil {
			return nil, fmt.Errorf("%w: %w", ErrCancelled, cause)
		}
		return nil, &DispatchError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		resp.Body.Close()
		token.release()
		return nil, &DispatchError{
			StatusCode: resp.StatusCode,
			Body:       utils.Truncate(strings.TrimSpace(string(excerpt)), 200),
		}
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		token.release()
		return nil, ErrMissingBody
	}

	d.logger.Debug("chat stream opened",
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
	)

	return &Stream{
		Body:        &cancelAwareBody{ReadCloser: resp.Body, ctx: ctx},
		Token:       token,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// cancelAwareBody converts read failures caused by cancellation into
// ErrCancelled so callers can tell them apart from broken connections.
type cancelAwareBody struct {
	io.ReadCloser
	ctx context.Context
}

func (b *cancelAwareBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && err != io.EOF && b.ctx.Err() != nil {
		return n, fmt.Errorf("%w: %w", ErrCancelled, b.ctx.Err())
	}
	return n, err
}

// encodeRequest builds the multipart body for req.
func encodeRequest(req Request) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{FieldMessage, req.Message},
		{FieldConversationID, req.ConversationID},
		{FieldUserID, req.UserID},
		{FieldStreaming, "true"},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	for _, f := range req.Files {
		part, err := w.CreatePart(filePartHeader(f))
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, f.Reader()); err != nil {
			return nil, "", fmt.Errorf("writing file %q: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func filePartHeader(f attachment.File) textproto.MIMEHeader {
	mimeType := f.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		FieldFiles, quoteEscaper.Replace(f.Name)))
	h.Set("Content-Type", mimeType)
	return h
}
