package sse

import (
	"bytes"
	"errors"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder converts successive byte buffers into complete lines.
//
// Bytes are decoded as UTF-8 in streaming mode: a multi-byte sequence that is
// cut off at the end of a buffer is held back until the next buffer completes
// it, and invalid bytes are replaced with U+FFFD. A leading byte order mark
// is dropped. Decoded text is split on '\n'; every line but the last fragment
// is returned and the fragment is kept as the residual for the next call to
// Feed.
//
// A Decoder is scoped to one stream and is not safe for concurrent use.
type Decoder struct {
	utf8 transform.Transformer

	// pending holds raw bytes the transformer could not decode yet.
	pending []byte

	// residual holds decoded text after the last newline.
	residual []byte

	scratch [4096]byte
}

// NewDecoder returns a Decoder with empty buffers.
func NewDecoder() *Decoder {
	return &Decoder{
		utf8: unicode.UTF8BOM.NewDecoder(),
	}
}

// Feed decodes p and returns the lines it completed, without their trailing
// newline. The returned slice is nil when p did not complete a line.
func (d *Decoder) Feed(p []byte) []string {
	if len(p) == 0 {
		return nil
	}

	d.pending = append(d.pending, p...)
	d.decodePending()

	var lines []string
	for {
		i := bytes.IndexByte(d.residual, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(d.residual[:i]))
		d.residual = d.residual[i+1:]
	}

	// Compact so the residual does not pin large, already consumed buffers.
	if len(d.residual) == 0 {
		d.residual = nil
	} else if cap(d.residual) > 2*len(d.residual)+len(d.scratch) {
		d.residual = append([]byte(nil), d.residual...)
	}

	return lines
}

// decodePending runs the UTF-8 transformer over the pending bytes, moving
// everything it can decode into the residual text.
func (d *Decoder) decodePending() {
	for len(d.pending) > 0 {
		nDst, nSrc, err := d.utf8.Transform(d.scratch[:], d.pending, false)
		d.residual = append(d.residual, d.scratch[:nDst]...)
		d.pending = d.pending[nSrc:]

		if errors.Is(err, transform.ErrShortDst) {
			continue
		}

		// transform.ErrShortSrc: the tail is an incomplete sequence that the
		// next buffer may complete. The UTF-8 decoder reports no other errors.
		break
	}

	if len(d.pending) == 0 {
		d.pending = nil
	} else {
		d.pending = append([]byte(nil), d.pending...)
	}
}

// Residual returns the decoded text that has not been terminated by a
// newline yet.
func (d *Decoder) Residual() string {
	return string(d.residual)
}

// Finish ends the stream. An unterminated trailing fragment is never treated
// as a complete line; it is discarded and its size in bytes (including any
// undecoded bytes) is returned so the caller can report the loss.
func (d *Decoder) Finish() int {
	dropped := len(d.residual) + len(d.pending)
	d.residual = nil
	d.pending = nil
	d.utf8.Reset()
	return dropped
}
