package particle

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// EndpointKind distinguishes write-style function calls from read-style
// variable reads. The two kinds are throttled independently even when they
// share a name.
type EndpointKind string

// Endpoint kinds.
const (
	EndpointFunction EndpointKind = "function"
	EndpointVariable EndpointKind = "variable"
)

// Logger is the minimal logging interface the particle package depends on.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ThrottleConfig parameterises a Throttle.
type ThrottleConfig struct {
	// Enabled turns throttling on. When false every check allows and no
	// state is touched.
	Enabled bool

	// Window is the minimum interval between two allowed calls to the same
	// endpoint.
	Window time.Duration

	// CacheSize is the maximum number of tracked endpoints.
	CacheSize int
}

// Throttle enforces a minimum interval between calls to the same endpoint.
//
// Each tracked endpoint holds a burst-1 token bucket (golang.org/x/time/rate)
// refilling once per window: a denied check does not consume the pending
// token, and an allowed check starts a fresh window - exactly the
// last-allowed-timestamp semantics, without hand-rolled clock arithmetic.
//
// The endpoint set is capacity-bounded with no eviction. Once full, checks
// for unknown endpoints always allow (with a diagnostic) rather than
// corrupting the set or silently denying: rate limiting is best-effort past
// capacity, and operators are expected to raise the cache size instead.
//
// All evaluation is synchronous and lazy - no background timers or sweeps.
//
// Thread Safety: Check is safe for concurrent use, though submissions are
// expected to come from a single path per process.
type Throttle struct {
	cfg   ThrottleConfig
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]*rate.Limiter

	logger Logger
}

// NewThrottle creates a throttle with the given configuration.
// A nil clock selects the real-time clock; a nil logger discards diagnostics.
func NewThrottle(cfg ThrottleConfig, clk clock.Clock, logger Logger) *Throttle {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Throttle{
		cfg:     cfg,
		clock:   clk,
		entries: make(map[string]*rate.Limiter, cfg.CacheSize),
		logger:  logger,
	}
}

// Check reports whether a call to the endpoint may proceed now.
//
// A true result for a tracked endpoint consumes its window; a false result
// leaves the entry untouched, so the original spacing is preserved.
func (t *Throttle) Check(kind EndpointKind, name string) bool {
	if !t.cfg.Enabled {
		return true
	}

	key := string(kind) + ":" + name
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if lim, ok := t.entries[key]; ok {
		if !lim.AllowN(now, 1) {
			t.logger.Warn("cloud API throttle active",
				"kind", string(kind),
				"name", name,
				"window", t.cfg.Window,
			)
			return false
		}
		return true
	}

	if len(t.entries) < t.cfg.CacheSize {
		lim := rate.NewLimiter(rate.Every(t.cfg.Window), 1)
		lim.AllowN(now, 1) // consume the initial token; window starts now
		t.entries[key] = lim
		return true
	}

	// Cache full: the endpoint cannot be tracked, so it is never throttled.
	t.logger.Warn("throttle cache full, endpoint will not be throttled",
		"kind", string(kind),
		"name", name,
		"cache_size", t.cfg.CacheSize,
	)
	return true
}

// ThrottleStats is a snapshot of throttle state for diagnostics.
type ThrottleStats struct {
	Enabled   bool          `json:"enabled"`
	Window    time.Duration `json:"window_ns"`
	CacheSize int           `json:"cache_size"`
	Tracked   int           `json:"tracked"`
}

// Stats returns a snapshot of the throttle's configuration and occupancy.
func (t *Throttle) Stats() ThrottleStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ThrottleStats{
		Enabled:   t.cfg.Enabled,
		Window:    t.cfg.Window,
		CacheSize: t.cfg.CacheSize,
		Tracked:   len(t.entries),
	}
}
