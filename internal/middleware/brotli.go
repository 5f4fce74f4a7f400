package middleware

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// BrotliConfig tunes response compression.
type BrotliConfig struct {
	Quality   int
	Skipper   func(c *gin.Context) bool
	MinLength int
}

// DefaultBrotliConfig compresses bodies of at least 1 KiB.
var DefaultBrotliConfig = BrotliConfig{
	Quality:   brotli.DefaultCompression,
	MinLength: 1024,
}

type encodeMode int

const (
	modeUndecided encodeMode = iota
	modeCompress
	modePlain
)

// brotliWriter holds the body back until it is long enough to be worth
// compressing. Short bodies go out untouched when the handler returns.
type brotliWriter struct {
	gin.ResponseWriter
	pool      *sync.Pool
	enc       *brotli.Writer
	buf       []byte
	minLength int
	mode      encodeMode
}

func (bw *brotliWriter) Write(data []byte) (int, error) {
	switch bw.mode {
	case modeCompress:
		return bw.enc.Write(data)
	case modePlain:
		return bw.ResponseWriter.Write(data)
	}

	bw.buf = append(bw.buf, data...)
	if len(bw.buf) < bw.minLength {
		return len(data), nil
	}
	// A handler that encoded its own body keeps it.
	if bw.Header().Get("Content-Encoding") != "" {
		return len(data), bw.release(modePlain)
	}
	return len(data), bw.release(modeCompress)
}

func (bw *brotliWriter) WriteString(s string) (int, error) {
	return bw.Write([]byte(s))
}

// Flush commits a still-undecided response to plain streaming, since a
// caller that flushes wants bytes on the wire now.
func (bw *brotliWriter) Flush() {
	switch bw.mode {
	case modeUndecided:
		_ = bw.release(modePlain)
	case modeCompress:
		_ = bw.enc.Flush()
	}
	bw.ResponseWriter.Flush()
}

// release fixes the encoding and writes out whatever was buffered.
func (bw *brotliWriter) release(mode encodeMode) error {
	bw.mode = mode
	pending := bw.buf
	bw.buf = nil

	if mode == modeCompress {
		h := bw.Header()
		h.Set("Content-Encoding", "br")
		h.Del("Content-Length")
		bw.enc = bw.pool.Get().(*brotli.Writer)
		bw.enc.Reset(bw.ResponseWriter)
		_, err := bw.enc.Write(pending)
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	_, err := bw.ResponseWriter.Write(pending)
	return err
}

// finish runs after the handler chain.
func (bw *brotliWriter) finish() error {
	switch bw.mode {
	case modeUndecided:
		return bw.release(modePlain)
	case modeCompress:
		err := bw.enc.Close()
		bw.enc.Reset(io.Discard)
		bw.pool.Put(bw.enc)
		bw.enc = nil
		return err
	}
	return nil
}

// Brotli compresses responses for clients that accept "br".
func Brotli() gin.HandlerFunc {
	return BrotliWithConfig(DefaultBrotliConfig)
}

// BrotliWithConfig is Brotli with explicit settings.
func BrotliWithConfig(cfg BrotliConfig) gin.HandlerFunc {
	if cfg.Quality < brotli.BestSpeed || cfg.Quality > brotli.BestCompression {
		cfg.Quality = brotli.DefaultCompression
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultBrotliConfig.MinLength
	}

	quality := cfg.Quality
	pool := &sync.Pool{
		New: func() interface{} { return brotli.NewWriterLevel(io.Discard, quality) },
	}

	return func(c *gin.Context) {
		if streamingRequest(c) || (cfg.Skipper != nil && cfg.Skipper(c)) {
			c.Next()
			return
		}
		if !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")
		bw := &brotliWriter{
			ResponseWriter: c.Writer,
			pool:           pool,
			minLength:      cfg.MinLength,
		}
		c.Writer = bw
		defer func() {
			if err := bw.finish(); err != nil {
				_ = c.Error(err)
			}
		}()
		c.Next()
	}
}

// streamingRequest reports protocols that break behind a buffering writer.
func streamingRequest(c *gin.Context) bool {
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		return true
	}
	// The upgrade handshake fails on a wrapped writer.
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

// acceptsBrotli honours q-values, so "br;q=0" opts out.
func acceptsBrotli(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(name), "br") {
			continue
		}
		q := 1.0
		for _, p := range strings.Split(params, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
			if ok && strings.EqualFold(k, "q") {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					q = f
				}
			}
		}
		return q > 0
	}
	return false
}

// SkipPaths returns a Skipper matching requests under any of the prefixes.
// Prometheus scrapes negotiate their own encoding, so /metrics is a
// typical entry.
func SkipPaths(prefixes ...string) func(c *gin.Context) bool {
	return func(c *gin.Context) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(c.Request.URL.Path, p) {
				return true
			}
		}
		return false
	}
}
