package reply_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatgate/pkg/reply"
)

var _ = Describe("Phrases", func() {
	table := reply.NewPhrases(
		reply.Phrase{Key: "Hello", Reply: "Hi from the table"},
		reply.Phrase{Key: "HELLO", Reply: "shadowed"},
		reply.Phrase{Key: "good night", Reply: "Sleep well"},
	)

	DescribeTable("Lookup",
		func(content string, want string, found bool) {
			got, ok := table.Lookup(content)
			Expect(ok).To(Equal(found))
			Expect(got).To(Equal(want))
		},
		Entry("exact key", "Hello", "Hi from the table", true),
		Entry("different case", "hello", "Hi from the table", true),
		Entry("padded", "  hElLo \n", "Hi from the table", true),
		Entry("multi word", "Good Night", "Sleep well", true),
		Entry("prefix only", "hello there", "", false),
		Entry("empty", "", "", false),
		Entry("whitespace", "   ", "", false),
	)

	It("keeps the first key when keys collide after folding", func() {
		got, _ := table.Lookup("hello")
		Expect(got).NotTo(Equal("shadowed"))
	})

	It("drops entries that can never match", func() {
		p := reply.NewPhrases(
			reply.Phrase{Key: "  ", Reply: "blank key"},
			reply.Phrase{Key: "quiet", Reply: ""},
			reply.Phrase{Key: "ok", Reply: "fine"},
		)
		Expect(p.Len()).To(Equal(1))
	})

	It("ships a non-empty default table", func() {
		p := reply.DefaultPhrases()
		Expect(p.Len()).To(BeNumerically(">", 0))
		_, ok := p.Lookup("HELLO")
		Expect(ok).To(BeTrue())
	})

	Describe("LoadPhrases", func() {
		var dir string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
		})

		It("loads entries in file order", func() {
			path := filepath.Join(dir, "phrases.toml")
			Expect(os.WriteFile(path, []byte(`
[[phrase]]
key = "ping"
reply = "pong"

[[phrase]]
key = "PING"
reply = "second"
`), 0o600)).To(Succeed())

			p, err := reply.LoadPhrases(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Len()).To(Equal(2))

			got, ok := p.Lookup("Ping")
			Expect(ok).To(BeTrue())
			Expect(got).To(Equal("pong"))
		})

		It("fails on a missing file", func() {
			_, err := reply.LoadPhrases(filepath.Join(dir, "nope.toml"))
			Expect(err).To(MatchError(ContainSubstring("decoding phrase file")))
		})

		It("fails on invalid toml", func() {
			path := filepath.Join(dir, "bad.toml")
			Expect(os.WriteFile(path, []byte("[[phrase]\nkey ="), 0o600)).To(Succeed())

			_, err := reply.LoadPhrases(path)
			Expect(err).To(HaveOccurred())
		})
	})
})
