// Package storagetest holds the conformance suite every thread.Storer
// driver runs from its own Ginkgo suite.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatgate/pkg/thread"
)

// DescribeStorer registers the shared thread.Storer specs. newStorer is
// called before each test and must return an empty store; the store is
// closed after the test.
func DescribeStorer(name string, newStorer func() thread.Storer) bool {
	return Describe(name+" conformance", func() {
		var (
			store thread.Storer
			ctx   context.Context
			base  time.Time
		)

		BeforeEach(func() {
			ctx = context.Background()
			base = time.Now().UTC().Truncate(time.Millisecond)
			store = newStorer()
			Expect(store).NotTo(BeNil())
		})

		AfterEach(func() {
			if store != nil {
				Expect(store.Close()).To(Succeed())
			}
		})

		userMsg := func(content string, at time.Time) thread.Message {
			return thread.NewUserMessage(content, "", at)
		}

		Describe("Get", func() {
			It("returns ErrNotFound for an unknown thread", func() {
				_, err := store.Get(ctx, "missing")
				Expect(err).To(HaveOccurred())
				Expect(thread.IsNotFound(err)).To(BeTrue())
			})
		})

		Describe("Insert", func() {
			It("stores a thread and its first message", func() {
				first := thread.NewUserMessage("describe this", "/uploads/cat.png", base)
				Expect(store.Insert(ctx, thread.New("t-1", first))).To(Succeed())

				got, err := store.Get(ctx, "t-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.ThreadID).To(Equal("t-1"))
				Expect(got.Title).To(Equal("describe this"))
				Expect(got.Messages).To(HaveLen(1))
				Expect(got.Messages[0].Role).To(Equal(thread.RoleUser))
				Expect(got.Messages[0].Content).To(Equal("describe this"))
				Expect(got.Messages[0].Image).To(Equal("/uploads/cat.png"))
				Expect(got.Messages[0].Timestamp).To(BeTemporally("~", base, time.Millisecond))
				Expect(got.CreatedAt).To(BeTemporally("~", base, time.Millisecond))
				Expect(got.UpdatedAt).To(BeTemporally("~", base, time.Millisecond))
			})

			It("rejects a duplicate thread id", func() {
				Expect(store.Insert(ctx, thread.New("dup", userMsg("one", base)))).To(Succeed())

				err := store.Insert(ctx, thread.New("dup", userMsg("two", base)))
				Expect(err).To(HaveOccurred())
				Expect(thread.IsAlreadyExists(err)).To(BeTrue())

				got, err := store.Get(ctx, "dup")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Messages).To(HaveLen(1))
				Expect(got.Messages[0].Content).To(Equal("one"))
			})

			It("keeps thread ids that share a prefix apart", func() {
				Expect(store.Insert(ctx, thread.New("a", userMsg("in a", base)))).To(Succeed())
				Expect(store.Insert(ctx, thread.New("a:b", userMsg("in a:b", base)))).To(Succeed())
				Expect(store.Insert(ctx, thread.New("a/b", userMsg("in a/b", base)))).To(Succeed())

				got, err := store.Get(ctx, "a")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Messages).To(HaveLen(1))
				Expect(got.Messages[0].Content).To(Equal("in a"))
			})
		})

		Describe("Append", func() {
			It("returns ErrNotFound for an unknown thread", func() {
				err := store.Append(ctx, "missing", userMsg("hi", base))
				Expect(thread.IsNotFound(err)).To(BeTrue())
			})

			It("preserves append order and advances updatedAt", func() {
				Expect(store.Insert(ctx, thread.New("t-2", userMsg("first", base)))).To(Succeed())
				later := base.Add(time.Second)
				Expect(store.Append(ctx, "t-2", thread.NewAssistantMessage("second", later))).To(Succeed())
				Expect(store.Append(ctx, "t-2", userMsg("third", later.Add(time.Second)))).To(Succeed())

				got, err := store.Get(ctx, "t-2")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Messages).To(HaveLen(3))
				Expect(got.Messages[0].Content).To(Equal("first"))
				Expect(got.Messages[1].Content).To(Equal("second"))
				Expect(got.Messages[1].Role).To(Equal(thread.RoleAssistant))
				Expect(got.Messages[1].Image).To(BeEmpty())
				Expect(got.Messages[2].Content).To(Equal("third"))
				Expect(got.UpdatedAt).To(BeTemporally("~", later.Add(time.Second), time.Millisecond))
				Expect(got.CreatedAt).To(BeTemporally("~", base, time.Millisecond))
				Expect(got.Title).To(Equal("first"))
			})

			It("never moves updatedAt backwards", func() {
				Expect(store.Insert(ctx, thread.New("t-3", userMsg("first", base)))).To(Succeed())
				Expect(store.Append(ctx, "t-3", userMsg("stale clock", base.Add(-time.Hour)))).To(Succeed())

				got, err := store.Get(ctx, "t-3")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Messages).To(HaveLen(2))
				Expect(got.UpdatedAt).To(BeTemporally("~", base, time.Millisecond))
			})

			It("does not lose messages under concurrent writers", func() {
				Expect(store.Insert(ctx, thread.New("busy", userMsg("seed", base)))).To(Succeed())

				const writers, perWriter = 4, 10
				var wg sync.WaitGroup
				errs := make(chan error, writers*perWriter)
				for w := 0; w < writers; w++ {
					wg.Add(1)
					go func(w int) {
						defer GinkgoRecover()
						defer wg.Done()
						for i := 0; i < perWriter; i++ {
							msg := userMsg(fmt.Sprintf("w%d-%02d", w, i), base.Add(time.Duration(i)*time.Millisecond))
							if err := store.Append(ctx, "busy", msg); err != nil {
								errs <- err
							}
						}
					}(w)
				}
				wg.Wait()
				close(errs)
				for err := range errs {
					Expect(err).NotTo(HaveOccurred())
				}

				got, err := store.Get(ctx, "busy")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Messages).To(HaveLen(1 + writers*perWriter))

				// each writer's own messages keep their relative order
				last := map[string]string{}
				for _, m := range got.Messages[1:] {
					writer := m.Content[:2]
					Expect(m.Content > last[writer]).To(BeTrue(), "out of order: %s after %s", m.Content, last[writer])
					last[writer] = m.Content
				}
			})
		})

		Describe("List", func() {
			It("returns nothing for an empty store", func() {
				summaries, err := store.List(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(summaries).To(BeEmpty())
			})

			It("orders threads by updatedAt descending", func() {
				Expect(store.Insert(ctx, thread.New("old", userMsg("old", base)))).To(Succeed())
				Expect(store.Insert(ctx, thread.New("new", userMsg("new", base.Add(time.Minute))))).To(Succeed())
				Expect(store.Insert(ctx, thread.New("bumped", userMsg("bumped", base.Add(-time.Minute))))).To(Succeed())
				Expect(store.Append(ctx, "bumped", thread.NewAssistantMessage("reply", base.Add(2*time.Minute)))).To(Succeed())

				summaries, err := store.List(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(summaries).To(HaveLen(3))
				Expect(summaries[0].ThreadID).To(Equal("bumped"))
				Expect(summaries[0].MessageCount).To(Equal(2))
				Expect(summaries[1].ThreadID).To(Equal("new"))
				Expect(summaries[2].ThreadID).To(Equal("old"))
				Expect(summaries[2].Title).To(Equal("old"))
			})
		})

		Describe("Delete", func() {
			It("reports zero for an unknown thread", func() {
				n, err := store.Delete(ctx, "missing")
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(0))
			})

			It("removes the thread and its messages", func() {
				Expect(store.Insert(ctx, thread.New("gone", userMsg("bye", base)))).To(Succeed())
				Expect(store.Append(ctx, "gone", thread.NewAssistantMessage("see you", base))).To(Succeed())

				n, err := store.Delete(ctx, "gone")
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(1))

				_, err = store.Get(ctx, "gone")
				Expect(thread.IsNotFound(err)).To(BeTrue())

				summaries, err := store.List(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(summaries).To(BeEmpty())

				// a recreated thread starts from scratch
				Expect(store.Insert(ctx, thread.New("gone", userMsg("again", base)))).To(Succeed())
				got, err := store.Get(ctx, "gone")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Messages).To(HaveLen(1))
				Expect(got.Messages[0].Content).To(Equal("again"))
			})
		})
	})
}
