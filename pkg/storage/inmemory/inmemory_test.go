package inmemory_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatgate/pkg/storage/inmemory"
	"github.com/papercomputeco/chatgate/pkg/storage/storagetest"
	"github.com/papercomputeco/chatgate/pkg/thread"
)

func TestInMemory(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "In-memory Storage Suite")
}

var _ = storagetest.DescribeStorer("inmemory", func() thread.Storer {
	return inmemory.NewDriver()
})

var _ = Describe("Driver", func() {
	It("does not share message slices with callers", func() {
		ctx := context.Background()
		d := inmemory.NewDriver()

		th := thread.New("t", thread.NewUserMessage("hi", "", time.Now()))
		Expect(d.Insert(ctx, th)).To(Succeed())
		th.Messages[0].Content = "mutated"

		got, err := d.Get(ctx, "t")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Messages[0].Content).To(Equal("hi"))

		got.Messages = append(got.Messages, thread.NewAssistantMessage("x", time.Now()))
		again, err := d.Get(ctx, "t")
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Messages).To(HaveLen(1))
	})

	It("rejects nil threads", func() {
		err := inmemory.NewDriver().Insert(context.Background(), nil)
		Expect(err).To(MatchError(ContainSubstring("nil thread")))
	})
})
