package sse

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/papercomputeco/ragchat/pkg/logger"
)

const defaultReadSize = 4 * 1024

// Reader pulls byte buffers from a source io.Reader, runs them through a
// Decoder and a Parser and yields events one at a time. When a tee
// destination is configured every raw byte read from the source is written
// to it verbatim, which is how the chat command dumps a stream for debugging.
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐   ┌──────────────────────┐
// │ Decoder.Feed()   │──▶│ tee io.Writer (opt.) │
// └──────────────────┘   └──────────────────────┘
// │  lines
// ▼
// ┌──────────────────┐
// │ Parser.Parse()   │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐
// │      Event       │
// └──────────────────┘
type Reader struct {
	src     io.Reader
	tee     io.Writer
	decoder *Decoder
	parser  *Parser
	logger  *slog.Logger

	buf   []byte
	lines []string
	done  bool
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithTee writes every raw byte read from the source to w.
func WithTee(w io.Writer) ReaderOption {
	return func(r *Reader) {
		r.tee = w
	}
}

// WithLogger sets the logger used for per-frame diagnostics.
func WithLogger(l *slog.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = l
	}
}

// WithReadSize sets the size of the buffer passed to the source's Read.
func WithReadSize(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.buf = make([]byte, n)
		}
	}
}

// NewReader returns a Reader over src.
func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	r := &Reader{
		src:     src,
		decoder: NewDecoder(),
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.buf == nil {
		r.buf = make([]byte, defaultReadSize)
	}
	r.parser = NewParser(r.logger)

	return r
}

// Next returns the next event in the stream. It blocks in the source's Read
// until a complete frame is available. Next returns nil, nil once the source
// is exhausted; an unterminated trailing fragment is dropped at that point.
// Read errors other than io.EOF are returned as is, so a cancelled request
// surfaces its context error to the caller.
func (r *Reader) Next() (*Event, error) {
	for {
		for len(r.lines) > 0 {
			line := r.lines[0]
			r.lines = r.lines[1:]

			if ev, ok := r.parser.Parse(line); ok {
				return ev, nil
			}
		}

		if r.done {
			return nil, nil
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			if r.tee != nil {
				if _, werr := r.tee.Write(r.buf[:n]); werr != nil {
					return nil, fmt.Errorf("writing stream tee: %w", werr)
				}
			}
			r.lines = append(r.lines, r.decoder.Feed(r.buf[:n])...)
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, err
			}

			r.done = true
			if dropped := r.decoder.Finish(); dropped > 0 {
				r.logger.Debug("dropping unterminated trailing frame",
					"bytes", dropped,
				)
			}
		}
	}
}

// Anomalies returns the number of malformed frames skipped so far.
func (r *Reader) Anomalies() int {
	return r.parser.Anomalies()
}
