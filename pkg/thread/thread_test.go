package thread_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatgate/pkg/thread"
)

func TestThread(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Thread Suite")
}

var _ = Describe("Title", func() {
	It("uses short content verbatim", func() {
		Expect(thread.Title("hello")).To(Equal("hello"))
	})

	It("truncates to the first 30 characters", func() {
		content := strings.Repeat("a", 29) + "bcdef"
		Expect(thread.Title(content)).To(Equal(strings.Repeat("a", 29) + "b"))
	})

	It("counts characters, not bytes", func() {
		content := strings.Repeat("é", 40)
		Expect(thread.Title(content)).To(Equal(strings.Repeat("é", 30)))
	})

	It("falls back to the placeholder for empty content", func() {
		Expect(thread.Title("")).To(Equal(thread.ImageTitle))
	})
})

var _ = Describe("New", func() {
	It("creates a thread with the first message as its only entry", func() {
		now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		msg := thread.NewUserMessage("what is in this picture?", "/uploads/a.png", now)

		th := thread.New("t-1", msg)
		Expect(th.ThreadID).To(Equal("t-1"))
		Expect(th.Title).To(Equal("what is in this picture?"))
		Expect(th.Messages).To(ConsistOf(msg))
		Expect(th.CreatedAt).To(Equal(now))
		Expect(th.UpdatedAt).To(Equal(now))
	})

	It("summarizes message count", func() {
		th := thread.New("t-2", thread.NewUserMessage("", "/uploads/x.png", time.Now()))
		th.Messages = append(th.Messages, thread.NewAssistantMessage("a cat", time.Now()))

		s := th.Summarize()
		Expect(s.Title).To(Equal(thread.ImageTitle))
		Expect(s.MessageCount).To(Equal(2))
	})
})

var _ = Describe("Role", func() {
	It("accepts only user and assistant", func() {
		Expect(thread.RoleUser.Valid()).To(BeTrue())
		Expect(thread.RoleAssistant.Valid()).To(BeTrue())
		Expect(thread.Role("system").Valid()).To(BeFalse())
	})
})

var _ = Describe("Errors", func() {
	It("detects wrapped not-found errors", func() {
		err := fmt.Errorf("append: %w", thread.ErrNotFound{ThreadID: "x"})
		Expect(thread.IsNotFound(err)).To(BeTrue())
		Expect(thread.IsAlreadyExists(err)).To(BeFalse())
		Expect(err.Error()).To(ContainSubstring("thread not found: x"))
	})

	It("detects already-exists errors", func() {
		Expect(thread.IsAlreadyExists(thread.ErrAlreadyExists{ThreadID: "y"})).To(BeTrue())
	})
})

var _ = Describe("SortByUpdated", func() {
	It("orders most recently updated first", func() {
		base := time.Now()
		s := []thread.Summary{
			{ThreadID: "old", UpdatedAt: base},
			{ThreadID: "new", UpdatedAt: base.Add(2 * time.Minute)},
			{ThreadID: "mid", UpdatedAt: base.Add(time.Minute)},
		}
		thread.SortByUpdated(s)
		Expect(s[0].ThreadID).To(Equal("new"))
		Expect(s[1].ThreadID).To(Equal("mid"))
		Expect(s[2].ThreadID).To(Equal("old"))
	})
})
