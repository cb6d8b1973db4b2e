package servecmder

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatgate/pkg/storage"
)

var _ = Describe("Serve Command", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	Describe("loadConfig", func() {
		It("lets flags win over the config file", func() {
			cfgPath := filepath.Join(tmpDir, "chatgate.toml")
			Expect(os.WriteFile(cfgPath, []byte(`
[server]
listen = ":9000"

[storage]
driver = "pebble"
pebble_dir = "/data/pebble"
`), 0o600)).To(Succeed())

			cmder := &serveCommander{}
			cmd := newServeCmd(cmder)
			Expect(cmd.ParseFlags([]string{
				"--config", cfgPath,
				"--env-file", filepath.Join(tmpDir, "none.env"),
				"--listen", "127.0.0.1:7777",
				"--provider", "none",
			})).To(Succeed())

			cfg, err := cmder.loadConfig(cmd)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Server.ListenAddr).To(Equal("127.0.0.1:7777"))
			Expect(cfg.Storage.Driver).To(Equal(storage.DriverPebble))
			Expect(cfg.Storage.PebbleDir).To(Equal("/data/pebble"))
			Expect(cfg.Inference.Provider).To(Equal("none"))
		})

		It("rejects an unknown storage driver", func() {
			cmder := &serveCommander{}
			cmd := newServeCmd(cmder)
			Expect(cmd.ParseFlags([]string{"--storage", "mongo", "--env-file", ""})).To(Succeed())

			_, err := cmder.loadConfig(cmd)
			Expect(err).To(MatchError(ContainSubstring("unknown storage driver")))
		})
	})

	It("serves until the context is cancelled", func() {
		ready := make(chan string, 1)
		cmder := &serveCommander{ready: ready}
		cmd := newServeCmd(cmder)
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{
			"--listen", "127.0.0.1:0",
			"--env-file", filepath.Join(tmpDir, "none.env"),
			"--storage", "sqlite",
			"--sqlite", filepath.Join(tmpDir, "chat.db"),
			"--upload-dir", filepath.Join(tmpDir, "uploads"),
			"--provider", "none",
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- cmd.ExecuteContext(ctx)
		}()

		var addr string
		Eventually(ready, 5*time.Second).Should(Receive(&addr))

		resp, err := http.Get("http://" + addr + "/health")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var health map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&health)).To(Succeed())
		Expect(health["status"]).To(Equal("ok"))

		Expect(filepath.Join(tmpDir, "uploads")).To(BeADirectory())
		Expect(filepath.Join(tmpDir, "chat.db")).To(BeARegularFile())

		cancel()
		Eventually(done, 10*time.Second).Should(Receive(BeNil()))
	})

	It("fails on a missing phrase file", func() {
		cmd := newServeCmd(&serveCommander{})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{
			"--env-file", "",
			"--storage", "memory",
			"--upload-dir", filepath.Join(tmpDir, "uploads"),
			"--phrases", filepath.Join(tmpDir, "missing.toml"),
		})

		err := cmd.ExecuteContext(context.Background())
		Expect(err).To(MatchError(ContainSubstring("decoding phrase file")))
	})
})
