package chatcmder_test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/ragchat/cmd/ragchat/chat"
)

// chatService replies to every message with a fixed set of frames and
// records the uploaded file names.
type chatService struct {
	*httptest.Server

	mu            sync.Mutex
	messages      []string
	files         []string
	conversations []string
}

func newChatService(body string) *chatService {
	s := &chatService{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			s.mu.Lock()
			s.messages = append(s.messages, r.FormValue("message"))
			s.conversations = append(s.conversations, r.FormValue("conversationId"))
			for _, fh := range r.MultipartForm.File["files"] {
				s.files = append(s.files, fh.Filename)
			}
			s.mu.Unlock()
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, body)
	}))
	return s
}

func (s *chatService) conversationIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.conversations...)
}

func (s *chatService) received() ([]string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...), append([]string(nil), s.files...)
}

const okThere = "data: {\"type\":\"start\"}\n" +
	"data: {\"type\":\"chunk\",\"content\":\"ok \"}\n" +
	"data: {\"type\":\"chunk\",\"content\":\"there\"}\n" +
	"data: {\"type\":\"tool-call\",\"data\":{\"id\":\"t1\",\"name\":\"search_docs\"}}\n" +
	"data: {\"type\":\"end\"}\n"

var _ = Describe("NewChatCmd", func() {
	var (
		service   *chatService
		configDir string
	)

	BeforeEach(func() {
		configDir = GinkgoT().TempDir()
	})

	AfterEach(func() {
		if service != nil {
			service.Close()
		}
	})

	run := func(input string, extra ...string) (string, error) {
		root := &cobra.Command{Use: "ragchat", SilenceUsage: true, SilenceErrors: true}
		root.PersistentFlags().String("config-dir", "", "")
		root.AddCommand(chatcmder.NewChatCmd())

		var out bytes.Buffer
		root.SetIn(strings.NewReader(input))
		root.SetOut(&out)
		root.SetErr(io.Discard)
		args := append([]string{"chat", "--config-dir", configDir, "--endpoint", service.URL}, extra...)
		root.SetArgs(args)

		err := root.Execute()
		return out.String(), err
	}

	It("registers the client flags", func() {
		cmd := chatcmder.NewChatCmd()
		for _, name := range []string{"endpoint", "user", "timeout", "dump-stream", "conversation", "events-provider", "markdown"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
	})

	It("streams a reply and quits on end of input", func() {
		service = newChatService(okThere)

		out, err := run("hello\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("ok there"))
		Expect(out).To(ContainSubstring("search_docs"))

		messages, _ := service.received()
		Expect(messages).To(Equal([]string{"hello"}))
	})

	It("runs commands typed while a reply streams after it finishes", func() {
		service = newChatService(okThere)

		out, err := run("hello\n/last\n/exit\nnever sent\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("outcome:"))
		Expect(out).To(ContainSubstring("completed"))

		messages, _ := service.received()
		Expect(messages).To(Equal([]string{"hello"}))
	})

	It("attaches files to the next message only", func() {
		service = newChatService(okThere)
		path := filepath.Join(GinkgoT().TempDir(), "notes.txt")
		Expect(os.WriteFile(path, []byte("some notes"), 0o600)).To(Succeed())

		out, err := run("/attach " + path + "\n/files\nfirst\n/files\nsecond\n/exit\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("attached"))
		Expect(out).To(ContainSubstring("no files attached"))

		messages, files := service.received()
		Expect(messages).To(Equal([]string{"first", "second"}))
		Expect(files).To(Equal([]string{"notes.txt"}))
	})

	It("reports attach errors without sending", func() {
		service = newChatService(okThere)

		out, err := run("/attach /does/not/exist\n/exit\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("/does/not/exist"))

		messages, _ := service.received()
		Expect(messages).To(BeEmpty())
	})

	It("prints a new conversation id on reset", func() {
		service = newChatService(okThere)

		out, err := run("/id\n/reset\n/exit\n")
		Expect(err).NotTo(HaveOccurred())
		ids := regexpAll(`conv_[0-9a-f-]+`, out)
		Expect(len(ids)).To(BeNumerically(">=", 3))
		Expect(ids[1]).To(Equal(ids[0]))
		Expect(ids[2]).NotTo(Equal(ids[0]))
	})

	It("resumes the conversation given with --conversation", func() {
		service = newChatService(okThere)

		out, err := run("/id\nhello\n/exit\n", "--conversation", "conv_resumed")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("(conversation conv_resumed)"))
		Expect(service.conversationIDs()).To(Equal([]string{"conv_resumed"}))
	})

	It("shows stream errors", func() {
		service = newChatService("data: {\"type\":\"error\",\"message\":\"oops\"}\ndata: {\"type\":\"end\"}\n")

		out, err := run("hello\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("oops"))
	})

	It("shows dispatch errors", func() {
		service = &chatService{}
		service.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
		}))

		out, err := run("hello\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("503"))
	})

	It("warns about unknown commands", func() {
		service = newChatService(okThere)

		out, err := run("/dance\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("unknown command /dance"))
	})

	It("fails on an invalid timeout", func() {
		service = newChatService(okThere)

		_, err := run("", "--timeout", "soon")
		Expect(err).To(HaveOccurred())
	})
})
