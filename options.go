package beatsync

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// DefaultPort is the content server's well-known port.
const DefaultPort = 41170

// Options configures a Session.
type Options struct {
	CacheDir    string
	Port        int
	DialTimeout time.Duration
	ReadTimeout time.Duration // bounds a single framed receive
	AckTimeout  time.Duration // bounds the disconnect-handshake wait
	QueueSize   int
	Logger      *zap.Logger
}

// Option is a functional option for configuring New.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		CacheDir:    defaultCacheDir(),
		Port:        DefaultPort,
		DialTimeout: 10 * time.Second,
		ReadTimeout: 30 * time.Second,
		AckTimeout:  30 * time.Second,
		QueueSize:   64,
		Logger:      zap.NewNop(),
	}
}

// WithCacheDir sets the session's ephemeral cache root.
func WithCacheDir(dir string) Option {
	return func(o *Options) { o.CacheDir = dir }
}

// WithPort overrides the server port used when the address carries none.
func WithPort(port int) Option {
	return func(o *Options) {
		if port > 0 {
			o.Port = port
		}
	}
}

// WithDialTimeout bounds connection establishment.
func WithDialTimeout(d time.Duration) Option {
	return func(o *Options) { o.DialTimeout = d }
}

// WithReadTimeout bounds a single framed receive. Zero disables the bound.
func WithReadTimeout(d time.Duration) Option {
	return func(o *Options) { o.ReadTimeout = d }
}

// WithAckTimeout bounds the disconnect-handshake acknowledgment wait.
func WithAckTimeout(d time.Duration) Option {
	return func(o *Options) { o.AckTimeout = d }
}

// WithQueueSize sets the request and signal channel capacities.
func WithQueueSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.QueueSize = n
		}
	}
}

// WithLogger sets the session logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *Options) {
		if log != nil {
			o.Logger = log
		}
	}
}

func defaultCacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "beatsync")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "beatsync")
	}
	return ".beatsync"
}
