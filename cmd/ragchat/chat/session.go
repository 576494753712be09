package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/ragchat/pkg/attachment"
	"github.com/papercomputeco/ragchat/pkg/chat"
	"github.com/papercomputeco/ragchat/pkg/client"
	"github.com/papercomputeco/ragchat/pkg/cliui"
	"github.com/papercomputeco/ragchat/pkg/eventstream"
)

// session drives the REPL for one chat command invocation.
type session struct {
	client   *client.Client
	markdown bool
	logger   *slog.Logger

	pending []attachment.File

	// mu serializes writes to out between the REPL and the controller's
	// subscriber.
	mu      sync.Mutex
	out     io.Writer
	replyID string
	printed int
}

func newSession(cl *client.Client, out io.Writer, markdown bool, l *slog.Logger) *session {
	s := &session{
		client:   cl,
		markdown: markdown,
		logger:   l,
		out:      out,
	}
	cl.Controller.Subscribe(s.onState)
	return s
}

// readLines delivers lines from r until EOF, then closes the channel.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func (s *session) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

// loop reads commands and messages until /exit, Ctrl+D or an idle Ctrl+C.
func (s *session) loop(ctx context.Context, lines <-chan string, interrupts <-chan os.Signal) error {
	var held []string
	for {
		var (
			line string
			ok   = true
		)

		if len(held) > 0 {
			line, held = held[0], held[1:]
		} else {
			s.printf("%s", userPrompt)
			select {
			case line, ok = <-lines:
			case <-interrupts:
				s.printf("\n")
				return nil
			case <-ctx.Done():
				return nil
			}
		}

		if !ok {
			s.printf("\n")
			return nil
		}

		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}

		if strings.HasPrefix(text, "/") {
			if quit := s.command(text); quit {
				return nil
			}
			continue
		}

		more, eof, err := s.send(ctx, text, lines, interrupts)
		held = append(held, more...)
		if err != nil {
			return err
		}
		if eof {
			return nil
		}
	}
}

// command runs a slash command and reports whether the session should end.
func (s *session) command(text string) bool {
	name, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/exit", "/quit":
		return true

	case "/help":
		s.printf("%s\n", cliui.DimStyle.Render(
			"/attach <path>  /files  /stop  /reset  /id  /last  /exit"))

	case "/attach":
		if arg == "" {
			s.printf("  %s usage: /attach <path>\n", cliui.WarnMark)
			return false
		}
		f, err := attachment.Load(arg)
		if err != nil {
			s.printf("  %s %s\n", cliui.FailMark, cliui.ErrorStyle.Render(err.Error()))
			return false
		}
		s.pending = append(s.pending, f)
		s.printf("  %s attached %s %s\n", cliui.SuccessMark,
			cliui.NameStyle.Render(f.Name),
			cliui.DimStyle.Render(fmt.Sprintf("(%s, %s)", f.MimeType, cliui.FormatBytes(f.Size()))))

	case "/files":
		if len(s.pending) == 0 {
			s.printf("  %s\n", cliui.DimStyle.Render("no files attached"))
			return false
		}
		for _, f := range s.pending {
			s.printf("  %s %s\n", cliui.NameStyle.Render(f.Name),
				cliui.DimStyle.Render(cliui.FormatBytes(f.Size())))
		}

	case "/stop":
		s.printf("  %s\n", cliui.DimStyle.Render("nothing to stop"))

	case "/reset":
		s.client.Controller.Reset()
		s.pending = nil
		s.printf("  %s new conversation %s\n", cliui.SuccessMark,
			cliui.ValueStyle.Render(s.client.Controller.State().ConversationID))

	case "/id":
		s.printf("  %s\n", s.client.Controller.State().ConversationID)

	case "/last":
		s.printLast()

	default:
		s.printf("  %s unknown command %s, try /help\n", cliui.WarnMark, name)
	}

	return false
}

// send submits text with the pending files and waits for the reply. Lines
// typed meanwhile are returned for later processing, except /stop which
// stops the reply. eof reports that input ended while streaming; the reply
// is still awaited so piped input gets its answer.
func (s *session) send(ctx context.Context, text string, lines <-chan string, interrupts <-chan os.Signal) (held []string, eof bool, err error) {
	files := s.pending
	s.pending = nil

	sub, err := s.client.Controller.Submit(ctx, text, files...)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	s.replyID = sub.AssistantMessageID
	s.printed = 0
	if !s.markdown {
		fmt.Fprint(s.out, assistantPrompt)
	}
	s.mu.Unlock()

	wait := func() error {
		for {
			select {
			case <-sub.Done():
				return sub.Wait()
			case <-interrupts:
				s.client.Controller.Stop()
			case line, ok := <-lines:
				if !ok {
					eof = true
					lines = nil
					continue
				}
				if strings.TrimSpace(line) == "/stop" {
					s.client.Controller.Stop()
					continue
				}
				held = append(held, line)
			}
		}
	}

	if s.markdown {
		_ = cliui.Step(s.out, "waiting for reply", wait)
	} else {
		_ = wait()
	}

	s.finishReply(sub)
	return held, eof, nil
}

// onState prints whatever part of the live reply has not been printed yet.
func (s *session) onState(st chat.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.printDeltaLocked(st)
}

func (s *session) printDeltaLocked(st chat.State) {
	if s.replyID == "" || s.markdown {
		return
	}
	m, ok := st.Message(s.replyID)
	if !ok || len(m.Content) <= s.printed {
		return
	}
	fmt.Fprint(s.out, m.Content[s.printed:])
	s.printed = len(m.Content)
}

func (s *session) finishReply(sub *chat.Submission) {
	st := s.client.Controller.State()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.printDeltaLocked(st)
	s.replyID = ""

	reply, _ := st.Message(sub.AssistantMessageID)
	if s.markdown && reply.Content != "" {
		rendered, err := cliui.RenderMarkdown(reply.Content)
		if err != nil {
			s.logger.Debug("rendering markdown", "error", err)
			rendered = reply.Content
		}
		fmt.Fprint(s.out, rendered)
	}
	fmt.Fprintln(s.out)

	for _, tc := range reply.ToolCalls {
		fmt.Fprintf(s.out, "  %s %s\n", cliui.DimStyle.Render("tool call:"), cliui.NameStyle.Render(tc.Name))
	}

	switch sub.Outcome() {
	case eventstream.OutcomeCancelled:
		fmt.Fprintf(s.out, "  %s\n", cliui.DimStyle.Render("(stopped)"))
	case eventstream.OutcomeFailed:
		msg := st.LastError
		if err := sub.Wait(); msg == "" && err != nil {
			msg = err.Error()
		}
		fmt.Fprintf(s.out, "  %s %s\n", cliui.FailMark, cliui.ErrorStyle.Render(msg))
	}
	fmt.Fprintln(s.out)
}

func (s *session) printLast() {
	last, ok := s.client.Turns.Last()
	if !ok {
		s.printf("  %s\n", cliui.DimStyle.Render("no finished turns yet"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "  %s %s\n", cliui.KeyStyle.Render("outcome:"), cliui.ValueStyle.Render(string(last.Outcome)))
	fmt.Fprintf(s.out, "  %s %s\n", cliui.KeyStyle.Render("duration:"), cliui.ValueStyle.Render(cliui.FormatDuration(time.Duration(last.DurationMs)*time.Millisecond)))
	fmt.Fprintf(s.out, "  %s %s\n", cliui.KeyStyle.Render("received:"), cliui.ValueStyle.Render(cliui.FormatBytes(int64(last.ContentBytes))))
	fmt.Fprintf(s.out, "  %s %d\n", cliui.KeyStyle.Render("tool calls:"), last.ToolCalls)
	if last.Error != "" {
		fmt.Fprintf(s.out, "  %s %s\n", cliui.KeyStyle.Render("error:"), cliui.ErrorStyle.Render(last.Error))
	}
}
