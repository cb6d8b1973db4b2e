package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatgate/pkg/config"
	"github.com/papercomputeco/chatgate/pkg/inference/provider"
	"github.com/papercomputeco/chatgate/pkg/storage"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

var _ = Describe("Load", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	writeFile := func(name, body string) string {
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, []byte(body), 0o600)).To(Succeed())
		return path
	}

	It("returns defaults with nothing set", func() {
		cfg, err := config.Load(config.LoadOptions{Lookup: env(nil)})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(config.Default()))
		Expect(cfg.Server.DefaultLanguage).To(Equal("English"))
		Expect(cfg.Inference.Timeout).To(Equal(5 * time.Minute))
	})

	It("layers the toml file over defaults", func() {
		path := writeFile("chatgate.toml", `
[server]
listen = ":9000"
phrases_file = "phrases.toml"

[storage]
driver = "pebble"
pebble_dir = "/var/lib/chatgate"

[inference]
provider = "openai"
model = "gpt-4o-mini"
timeout = "90s"
temperature = 0.4
seed = 11
max_tokens = 512
context_window = 8192
`)
		cfg, err := config.Load(config.LoadOptions{File: path, Lookup: env(nil)})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Server.ListenAddr).To(Equal(":9000"))
		Expect(cfg.Server.PhrasesFile).To(Equal("phrases.toml"))
		Expect(cfg.Storage.Driver).To(Equal(storage.DriverPebble))
		Expect(cfg.Storage.PebbleDir).To(Equal("/var/lib/chatgate"))
		Expect(cfg.Inference.Provider).To(Equal(provider.OpenAI))
		Expect(cfg.Inference.Model).To(Equal("gpt-4o-mini"))
		Expect(cfg.Inference.Timeout).To(Equal(90 * time.Second))
		Expect(cfg.Inference.Temperature).To(HaveValue(Equal(0.4)))
		Expect(cfg.Inference.Seed).To(HaveValue(Equal(11)))
		Expect(cfg.Inference.MaxTokens).To(HaveValue(Equal(512)))
		Expect(cfg.Inference.ContextWindow).To(HaveValue(Equal(8192)))
		// untouched keys keep their defaults
		Expect(cfg.Upload.Dir).To(Equal("uploads"))
	})

	It("lets the environment override the file", func() {
		path := writeFile("chatgate.toml", "[server]\nlisten = \":9000\"\n")
		cfg, err := config.Load(config.LoadOptions{File: path, Lookup: env(map[string]string{
			"CHATGATE_LISTEN":            ":7000",
			"CHATGATE_DEBUG":             "true",
			"OPENAI_API_KEY":             "sk-test",
			"DATABASE_URL":               "postgres://localhost/chat",
			"CHATGATE_STORAGE_DRIVER":    "postgres",
			"CHATGATE_INFERENCE_TIMEOUT": "30s",
			"CHATGATE_UPLOAD_RATE":       "0.5",
			"UPLOAD_DIR":                 "/tmp/up",
		})})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Server.ListenAddr).To(Equal(":7000"))
		Expect(cfg.Server.Debug).To(BeTrue())
		Expect(cfg.Inference.APIKey).To(Equal("sk-test"))
		Expect(cfg.Storage.Driver).To(Equal(storage.DriverPostgres))
		Expect(cfg.Storage.PostgresDSN).To(Equal("postgres://localhost/chat"))
		Expect(cfg.Inference.Timeout).To(Equal(30 * time.Second))
		Expect(cfg.Upload.Rate).To(Equal(0.5))
		Expect(cfg.Upload.Dir).To(Equal("/tmp/up"))
	})

	It("prefers the chatgate-specific variable over the generic one", func() {
		cfg, err := config.Load(config.LoadOptions{Lookup: env(map[string]string{
			"CHATGATE_INFERENCE_API_KEY": "specific",
			"OPENAI_API_KEY":             "generic",
		})})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Inference.APIKey).To(Equal("specific"))
	})

	It("reads a .env file without overriding the process environment", func() {
		envFile := writeFile(".env", "CHATGATE_REDIS_PREFIX=from-dotenv\nCHATGATE_PHRASES_FILE=from-dotenv.toml\n")
		GinkgoT().Setenv("CHATGATE_PHRASES_FILE", "from-process.toml")
		os.Unsetenv("CHATGATE_REDIS_PREFIX")
		DeferCleanup(os.Unsetenv, "CHATGATE_REDIS_PREFIX")

		cfg, err := config.Load(config.LoadOptions{EnvFile: envFile})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Storage.RedisPrefix).To(Equal("from-dotenv"))
		Expect(cfg.Server.PhrasesFile).To(Equal("from-process.toml"))
	})

	It("ignores a missing .env file", func() {
		_, err := config.Load(config.LoadOptions{EnvFile: filepath.Join(dir, "absent.env")})
		Expect(err).NotTo(HaveOccurred())
	})

	It("fails on a missing explicit config file", func() {
		_, err := config.Load(config.LoadOptions{File: filepath.Join(dir, "absent.toml"), Lookup: env(nil)})
		Expect(err).To(MatchError(ContainSubstring("reading config file")))
	})

	DescribeTable("rejects bad values",
		func(vars map[string]string, msg string) {
			_, err := config.Load(config.LoadOptions{Lookup: env(vars)})
			Expect(err).To(MatchError(ContainSubstring(msg)))
		},
		Entry("debug", map[string]string{"CHATGATE_DEBUG": "maybe"}, "CHATGATE_DEBUG"),
		Entry("timeout", map[string]string{"CHATGATE_INFERENCE_TIMEOUT": "soon"}, "CHATGATE_INFERENCE_TIMEOUT"),
		Entry("rate", map[string]string{"CHATGATE_UPLOAD_RATE": "fast"}, "CHATGATE_UPLOAD_RATE"),
		Entry("driver", map[string]string{"CHATGATE_STORAGE_DRIVER": "mongo"}, "unknown storage driver"),
		Entry("provider", map[string]string{"CHATGATE_INFERENCE_PROVIDER": "gemini"}, "unknown inference provider"),
	)
})
