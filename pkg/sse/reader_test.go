package sse_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ragchat/pkg/sse"
)

// collect reads every event from r until end of stream.
func collect(r *sse.Reader) []sse.Event {
	var events []sse.Event
	for {
		ev, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		if ev == nil {
			return events
		}
		events = append(events, *ev)
	}
}

// chunkedReader hands out one pre-split buffer per Read call.
type chunkedReader struct {
	chunks [][]byte
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

var _ = Describe("Reader", func() {
	const stream = "data: {\"type\":\"start\"}\n" +
		"\n" +
		"data: {\"type\":\"chunk\",\"content\":\"ok\"}\n" +
		"data: {\"type\":\"chunk\",\"content\":\" there\"}\n" +
		"data: {\"type\":\"end\"}\n"

	It("yields events in wire order and nil at end of stream", func() {
		events := collect(sse.NewReader(strings.NewReader(stream)))

		Expect(events).To(HaveLen(4))
		Expect(events[0].Type).To(Equal(sse.EventStart))
		Expect(events[1].Text).To(Equal("ok"))
		Expect(events[2].Text).To(Equal(" there"))
		Expect(events[3].Type).To(Equal(sse.EventEnd))
	})

	It("keeps returning nil after the stream is exhausted", func() {
		r := sse.NewReader(strings.NewReader(""))
		for range 3 {
			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(BeNil())
		}
	})

	It("yields identical events for one-byte reads", func() {
		whole := collect(sse.NewReader(strings.NewReader(stream)))
		split := collect(sse.NewReader(iotest.OneByteReader(strings.NewReader(stream))))
		Expect(split).To(Equal(whole))
	})

	It("yields identical events for arbitrary buffer boundaries", func() {
		whole := collect(sse.NewReader(strings.NewReader(stream)))

		src := []byte(stream)
		chunks := [][]byte{src[:7], src[7:30], src[30:31], src[31:90], src[90:]}
		split := collect(sse.NewReader(&chunkedReader{chunks: chunks}, sse.WithReadSize(5)))
		Expect(split).To(Equal(whole))
	})

	It("drops an unterminated trailing frame", func() {
		r := sse.NewReader(strings.NewReader("data: {\"type\":\"chunk\",\"content\":\"a\"}\ndata: {\"type\":\"end\"}"))
		events := collect(r)

		Expect(events).To(HaveLen(1))
		Expect(events[0].Text).To(Equal("a"))
	})

	It("skips malformed frames and continues", func() {
		r := sse.NewReader(strings.NewReader("data: {oops\ndata: {\"type\":\"chunk\",\"content\":\"b\"}\n"))
		events := collect(r)

		Expect(events).To(HaveLen(1))
		Expect(events[0].Text).To(Equal("b"))
		Expect(r.Anomalies()).To(Equal(1))
	})

	It("tees the raw bytes verbatim", func() {
		var dump bytes.Buffer
		r := sse.NewReader(iotest.HalfReader(strings.NewReader(stream)), sse.WithTee(&dump))
		collect(r)

		Expect(dump.String()).To(Equal(stream))
	})

	It("returns source errors other than EOF", func() {
		boom := errors.New("connection reset")
		r := sse.NewReader(io.MultiReader(
			strings.NewReader("data: {\"type\":\"chunk\",\"content\":\"a\"}\n"),
			iotest.ErrReader(boom),
		))

		ev, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Text).To(Equal("a"))

		_, err = r.Next()
		Expect(err).To(MatchError(boom))
	})
})
