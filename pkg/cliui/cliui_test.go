package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ragchat/pkg/cliui"
)

var _ = Describe("cliui", func() {
	Describe("Step", func() {
		It("returns the function's error and prints the result line", func() {
			var buf bytes.Buffer
			boom := errors.New("boom")

			err := cliui.Step(&buf, "Connecting", func() error { return boom })
			Expect(err).To(MatchError(boom))
			Expect(buf.String()).To(ContainSubstring("Connecting"))
			Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
			Expect(buf.String()).To(HaveSuffix("\n"))
		})

		It("marks success", func() {
			var buf bytes.Buffer
			Expect(cliui.Step(&buf, "Loading", func() error { return nil })).To(Succeed())
			Expect(buf.String()).To(ContainSubstring(cliui.SuccessMark))
		})
	})

	DescribeTable("FormatDuration",
		func(d time.Duration, expected string) {
			Expect(cliui.FormatDuration(d)).To(Equal(expected))
		},
		Entry("milliseconds", 12*time.Millisecond, "12ms"),
		Entry("seconds", 3200*time.Millisecond, "3.2s"),
	)

	DescribeTable("FormatBytes",
		func(n int64, expected string) {
			Expect(cliui.FormatBytes(n)).To(Equal(expected))
		},
		Entry("bytes", int64(512), "512 B"),
		Entry("kibibytes", int64(1536), "1.5 KiB"),
		Entry("mebibytes", int64(3<<20), "3.0 MiB"),
	)

	It("renders markdown", func() {
		out, err := cliui.RenderMarkdown("**bold** text")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("bold"))
	})
})
