package client_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ragchat/pkg/client"
	"github.com/papercomputeco/ragchat/pkg/config"
	"github.com/papercomputeco/ragchat/pkg/eventstream"
	"github.com/papercomputeco/ragchat/pkg/eventstream/memory"
	"github.com/papercomputeco/ragchat/pkg/eventstream/nop"
	"github.com/papercomputeco/ragchat/pkg/eventstream/worker"
)

const replyBody = "data: {\"type\":\"chunk\",\"content\":\"hi\"}\n" +
	"data: {\"type\":\"end\"}\n"

var _ = Describe("New", func() {
	var (
		upstream *httptest.Server
		cfg      *config.Config
	)

	BeforeEach(func() {
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w, replyBody)
		}))
		cfg = config.NewDefaultConfig()
		cfg.Client.Endpoint = upstream.URL
	})

	AfterEach(func() {
		upstream.Close()
	})

	It("rejects an empty endpoint", func() {
		cfg.Client.Endpoint = ""
		_, err := client.New(cfg)
		Expect(err).To(MatchError(ContainSubstring("no chat endpoint")))
	})

	It("rejects an invalid timeout", func() {
		cfg.Client.Timeout = "soon"
		_, err := client.New(cfg)
		Expect(err).To(HaveOccurred())
	})

	It("records finished turns and the user id", func() {
		cfg.Client.UserID = "user_42"
		c, err := client.New(cfg)
		Expect(err).NotTo(HaveOccurred())

		sub, err := c.Controller.Submit(context.Background(), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Wait()).To(Succeed())
		lastMsg, _ := c.Controller.State().Last()
		Expect(lastMsg.Content).To(Equal("hi"))

		last, ok := c.Turns.Last()
		Expect(ok).To(BeTrue())
		Expect(last.UserID).To(Equal("user_42"))
		Expect(last.Outcome).To(Equal(eventstream.OutcomeCompleted))

		Expect(c.Close()).To(Succeed())
		Expect(c.Turns.Closed()).To(BeTrue())
	})

	It("resumes the configured conversation", func() {
		cfg.Client.ConversationID = "conv_resumed"
		c, err := client.New(cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Controller.State().ConversationID).To(Equal("conv_resumed"))

		sub, err := c.Controller.Submit(context.Background(), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Wait()).To(Succeed())

		last, ok := c.Turns.Last()
		Expect(ok).To(BeTrue())
		Expect(last.ConversationID).To(Equal("conv_resumed"))
		Expect(c.Close()).To(Succeed())
	})

	It("sends turns to an injected publisher as well", func() {
		external := memory.NewPublisher()
		c, err := client.New(cfg, client.WithPublisher(external))
		Expect(err).NotTo(HaveOccurred())

		sub, err := c.Controller.Submit(context.Background(), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Wait()).To(Succeed())
		Expect(external.Events()).To(HaveLen(1))

		Expect(c.Close()).To(Succeed())
		Expect(external.Closed()).To(BeTrue())
	})

	It("appends the raw stream to the dump file", func() {
		dump := filepath.Join(GinkgoT().TempDir(), "stream.log")
		cfg.Client.DumpStream = dump

		c, err := client.New(cfg)
		Expect(err).NotTo(HaveOccurred())

		sub, err := c.Controller.Submit(context.Background(), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Wait()).To(Succeed())
		Expect(c.Close()).To(Succeed())

		data, err := os.ReadFile(dump)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(HavePrefix(`data: {"type":"chunk","content":"hi"}`))
	})
})

var _ = Describe("NewPublisher", func() {
	It("defaults to a no-op publisher", func() {
		p, err := client.NewPublisher(config.EventsConfig{}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&nop.Publisher{}))

		p, err = client.NewPublisher(config.EventsConfig{Provider: config.EventsProviderNone}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&nop.Publisher{}))
	})

	It("wraps kafka in a worker pool", func() {
		p, err := client.NewPublisher(config.EventsConfig{
			Provider: config.EventsProviderKafka,
			Brokers:  []string{"127.0.0.1:9092"},
			Topic:    "ragchat.turns",
		}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&worker.Pool{}))
		Expect(p.Close()).To(Succeed())
	})

	It("requires kafka brokers", func() {
		_, err := client.NewPublisher(config.EventsConfig{Provider: config.EventsProviderKafka, Topic: "t"}, nil)
		Expect(err).To(MatchError(ContainSubstring("creating kafka publisher")))
	})

	It("rejects unknown providers", func() {
		_, err := client.NewPublisher(config.EventsConfig{Provider: "pigeon"}, nil)
		Expect(err).To(MatchError(ContainSubstring(`unknown events provider "pigeon"`)))
	})
})
