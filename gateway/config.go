package gateway

// Config is the gateway server configuration.
type Config struct {
	// Address to listen on (e.g., ":8000")
	ListenAddr string

	// UploadDir holds uploaded images, served under /uploads/.
	UploadDir string

	// DefaultLanguage is used for frames without a "language" field.
	DefaultLanguage string

	// MaxUploadBytes caps request bodies. Zero keeps fiber's default.
	MaxUploadBytes int

	// UploadRate is uploads per second per client IP; zero disables limiting.
	UploadRate  float64
	UploadBurst int
}

func (c Config) withDefaults() Config {
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = "English"
	}
	return c
}
