package reply_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatgate/pkg/inference"
	"github.com/papercomputeco/chatgate/pkg/reply"
)

type call struct {
	op       inference.Op
	prompt   string
	image    []byte
	language string
}

// fakeClient records calls and answers with text or err.
type fakeClient struct {
	text  string
	err   error
	calls []call
}

func (f *fakeClient) GenerateText(_ context.Context, prompt, language string) (string, error) {
	f.calls = append(f.calls, call{op: inference.OpText, prompt: prompt, language: language})
	return f.text, f.err
}

func (f *fakeClient) GenerateFromImage(_ context.Context, prompt string, image []byte, language string) (string, error) {
	f.calls = append(f.calls, call{op: inference.OpImage, prompt: prompt, image: image, language: language})
	return f.text, f.err
}

var _ = Describe("Resolver", func() {
	var (
		ctx      context.Context
		client   *fakeClient
		resolver *reply.Resolver
		dir      string
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = &fakeClient{text: "generated"}
		phrases := reply.NewPhrases(reply.Phrase{Key: "Hello", Reply: "Hello from the table"})
		resolver = reply.NewResolver(phrases, client, zap.NewNop())
		dir = GinkgoT().TempDir()
	})

	writeImage := func() string {
		path := filepath.Join(dir, "cat.png")
		Expect(os.WriteFile(path, []byte("png-bytes"), 0o600)).To(Succeed())
		return path
	}

	It("answers a phrase without calling the backend", func() {
		got := resolver.Resolve(ctx, reply.Request{Content: "  hello ", Language: "English"})
		Expect(got.Text).To(Equal("Hello from the table"))
		Expect(got.Source).To(Equal(reply.SourcePhrase))
		Expect(client.calls).To(BeEmpty())
	})

	It("prefers a phrase over an attached image", func() {
		got := resolver.Resolve(ctx, reply.Request{Content: "HELLO", ImagePath: writeImage()})
		Expect(got.Source).To(Equal(reply.SourcePhrase))
		Expect(client.calls).To(BeEmpty())
	})

	It("uses the text path for other content", func() {
		got := resolver.Resolve(ctx, reply.Request{Content: "what is go?", Language: "German"})
		Expect(got).To(Equal(reply.Reply{Text: "generated", Source: reply.SourceInference}))
		Expect(client.calls).To(HaveLen(1))
		Expect(client.calls[0].op).To(Equal(inference.OpText))
		Expect(client.calls[0].prompt).To(Equal("what is go?"))
		Expect(client.calls[0].language).To(Equal("German"))
	})

	It("sends image bytes when the file exists", func() {
		got := resolver.Resolve(ctx, reply.Request{ImagePath: writeImage(), Language: "English"})
		Expect(got.Source).To(Equal(reply.SourceInference))
		Expect(client.calls).To(HaveLen(1))
		Expect(client.calls[0].op).To(Equal(inference.OpImage))
		Expect(client.calls[0].prompt).To(BeEmpty())
		Expect(client.calls[0].image).To(Equal([]byte("png-bytes")))
	})

	It("falls back to text when the image is missing", func() {
		got := resolver.Resolve(ctx, reply.Request{
			Content:   "describe",
			ImagePath: filepath.Join(dir, "gone.png"),
		})
		Expect(got.Source).To(Equal(reply.SourceInference))
		Expect(client.calls).To(HaveLen(1))
		Expect(client.calls[0].op).To(Equal(inference.OpText))
	})

	It("answers an empty message without calling the backend", func() {
		got := resolver.Resolve(ctx, reply.Request{Content: "  ", ImagePath: filepath.Join(dir, "gone.png")})
		Expect(got.Text).To(Equal(reply.EmptyMessageReply))
		Expect(got.Source).To(Equal(reply.SourceEmpty))
		Expect(client.calls).To(BeEmpty())
	})

	Context("when inference fails", func() {
		BeforeEach(func() {
			client.err = &inference.Error{Backend: "fake", Op: inference.OpText, Err: errors.New("upstream 503")}
		})

		It("apologizes on the text path", func() {
			got := resolver.Resolve(ctx, reply.Request{Content: "hi there"})
			Expect(got.Source).To(Equal(reply.SourceApology))
			Expect(got.Text).To(HavePrefix("Sorry, I encountered an error contacting the AI service. Error: "))
			Expect(got.Text).To(ContainSubstring("upstream 503"))
			Expect(got.Err).To(HaveOccurred())
		})

		It("apologizes on the image path", func() {
			got := resolver.Resolve(ctx, reply.Request{ImagePath: writeImage()})
			Expect(got.Source).To(Equal(reply.SourceApology))
			Expect(got.Text).To(HavePrefix("Sorry, I encountered an error processing your image. Error: "))
			Expect(got.Text).To(ContainSubstring("upstream 503"))
		})
	})

	It("apologizes when no backend is configured", func() {
		r := reply.NewResolver(reply.DefaultPhrases(), inference.Unconfigured{}, zap.NewNop())
		got := r.Resolve(ctx, reply.Request{Content: "tell me a story"})
		Expect(got.Source).To(Equal(reply.SourceApology))
		Expect(got.Text).To(ContainSubstring("not configured"))
	})
})
