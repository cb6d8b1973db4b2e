package gateway

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/papercomputeco/chatgate/pkg/llm"
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// UploadResponse is returned for a stored image. URL is what chat frames
// send back in their "image" field.
type UploadResponse struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

func (s *Server) handleUpload(c *fiber.Ctx) error {
	if !s.uploads.Allow(c.IP()) {
		s.metrics.upload("limited")
		return c.Status(fiber.StatusTooManyRequests).JSON(llm.ErrorResponse{Error: "too many uploads, slow down"})
	}

	fh, err := c.FormFile("file")
	if err != nil {
		s.metrics.upload("rejected")
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "missing file field"})
	}

	contentType := fh.Header.Get("Content-Type")
	if !allowedImageTypes[contentType] {
		s.metrics.upload("rejected")
		s.logger.Warn("rejected upload", zap.String("content_type", contentType))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
			Error: "Invalid file type: " + contentType + ". Allowed: JPEG, PNG, GIF, WebP",
		})
	}

	name := uuid.NewString() + "." + uploadExt(fh.Filename)
	path := filepath.Join(s.config.UploadDir, name)
	if err := c.SaveFile(fh, path); err != nil {
		s.metrics.upload("failed")
		s.logger.Error("failed to save upload", zap.String("path", path), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to save file"})
	}

	s.metrics.upload("stored")
	s.logger.Info("stored upload",
		zap.String("name", name),
		zap.Int64("size", fh.Size),
		zap.String("content_type", contentType),
	)
	return c.JSON(UploadResponse{URL: UploadsPrefix + name, Path: path})
}

// uploadExt keeps the client's extension, defaulting to jpg.
func uploadExt(filename string) string {
	ext := strings.TrimPrefix(filepath.Ext(filepath.Base(filename)), ".")
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		return "jpg"
	}
	return strings.ToLower(ext)
}

// limiterIdle is the minimum time a key must go unseen before its bucket is
// dropped. The pool stretches it to a bucket's full refill time when that is
// longer, so a dropped bucket is always equivalent to a full one.
const limiterIdle = 10 * time.Minute

// limiterPool keeps one token bucket per key and evicts idle buckets.
type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*limiterEntry
	rps       float64
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if burst <= 0 {
		burst = 1
	}
	idle := limiterIdle
	if rps > 0 {
		if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &limiterPool{
		m:     make(map[string]*limiterEntry),
		rps:   rps,
		burst: burst,
		idle:  idle,
		now:   time.Now,
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.sweep(now)

	if e, ok := p.m[key]; ok {
		e.lastSeen = now
		return e.limiter
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = &limiterEntry{limiter: l, lastSeen: now}
	return l
}

// sweep drops idle entries, at most once per idle period. p.mu must be held.
func (p *limiterPool) sweep(now time.Time) {
	if now.Sub(p.lastSweep) < p.idle {
		return
	}
	p.lastSweep = now
	for key, e := range p.m {
		if now.Sub(e.lastSeen) >= p.idle {
			delete(p.m, key)
		}
	}
}

// Len returns the number of tracked keys.
func (p *limiterPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// Allow reports whether key may upload now. A zero rate never limits.
func (p *limiterPool) Allow(key string) bool {
	if p.rps <= 0 {
		return true
	}
	return p.get(key).Allow()
}
