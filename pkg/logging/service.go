package logging

import (
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	logger    *logrus.Logger
	setupOnce sync.Once
)

// Setup configures the process logger. DASH_DEBUG=1 enables debug output.
// Safe to call more than once.
func Setup() *logrus.Logger {
	setupOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
		logger.SetLevel(logrus.InfoLevel)
		if DebugEnabled() {
			logger.SetLevel(logrus.DebugLevel)
		}
	})
	return logger
}

func DebugEnabled() bool {
	return os.Getenv("DASH_DEBUG") == "1"
}

// For returns a logger scoped to a component.
func For(component string) *logrus.Entry {
	return Setup().WithField("component", component)
}

// RateLimiter lets at most one message per key through per interval.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
	now      func() time.Time
}

func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{
		interval: interval,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Allow reports whether a message for key may be emitted now, and if so
// starts a new quiet period for it.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if last, ok := r.last[key]; ok && now.Sub(last) < r.interval {
		return false
	}
	r.last[key] = now
	return true
}

// Warn logs through entry when the key is not suppressed.
func (r *RateLimiter) Warn(entry *logrus.Entry, key string, format string, args ...interface{}) {
	if r.Allow(key) {
		entry.Warnf(format, args...)
	}
}

func (r *RateLimiter) Error(entry *logrus.Entry, key string, format string, args ...interface{}) {
	if r.Allow(key) {
		entry.Errorf(format, args...)
	}
}
