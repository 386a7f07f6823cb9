package herald

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/observability"
	"github.com/xraph/herald/ratelimit"
	"github.com/xraph/herald/store"
)

// Herald is the webhook registry and dispatch engine.
type Herald struct {
	config      Config
	store       store.Store
	catalog     *catalog.Catalog
	endpointSvc *endpoint.Service
	matcher     *endpoint.Matcher
	dispatcher  *delivery.Dispatcher
	limiter     *ratelimit.Limiter
	httpClient  *http.Client
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	logger      *slog.Logger
}

// Option configures a Herald instance.
type Option func(*Herald) error

// New creates a new Herald with the given options.
func New(opts ...Option) (*Herald, error) {
	h := &Herald{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	if h.store == nil {
		return nil, ErrNoStore
	}
	h.wireServices()
	return h, nil
}

// WithStore sets the persistence backend.
func WithStore(s store.Store) Option {
	return func(h *Herald) error {
		h.store = s
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Herald) error {
		if logger == nil {
			return errors.New("herald: nil logger")
		}
		h.logger = logger
		return nil
	}
}

// WithConcurrency sets the per-dispatch fan-out limit.
func WithConcurrency(n int) Option {
	return func(h *Herald) error {
		if n <= 0 {
			return errors.New("herald: concurrency must be positive")
		}
		h.config.Concurrency = n
		return nil
	}
}

// WithRequestTimeout sets the timeout per delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Herald) error {
		if d <= 0 {
			return errors.New("herald: request timeout must be positive")
		}
		h.config.RequestTimeout = d
		return nil
	}
}

// WithDisableThreshold sets how many consecutive failures deactivate an endpoint.
func WithDisableThreshold(n int) Option {
	return func(h *Herald) error {
		if n <= 0 {
			return errors.New("herald: disable threshold must be positive")
		}
		h.config.DisableThreshold = n
		return nil
	}
}

// WithShutdownTimeout sets the default wait for in-flight deliveries on Stop.
func WithShutdownTimeout(d time.Duration) Option {
	return func(h *Herald) error {
		h.config.ShutdownTimeout = d
		return nil
	}
}

// WithAttemptLog enables or disables the delivery attempt log.
func WithAttemptLog(enabled bool) Option {
	return func(h *Herald) error {
		h.config.RecordAttempts = enabled
		return nil
	}
}

// WithRateLimiting enables or disables per-endpoint rate limits.
func WithRateLimiting(enabled bool) Option {
	return func(h *Herald) error {
		h.config.RateLimiting = enabled
		return nil
	}
}

// WithHTTPClient sets the client used for deliveries. Its Timeout, if
// any, applies in addition to the per-attempt timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Herald) error {
		h.httpClient = c
		return nil
	}
}

// WithCatalog replaces the default event catalog, e.g. one with schemas
// already attached.
func WithCatalog(c *catalog.Catalog) Option {
	return func(h *Herald) error {
		h.catalog = c
		return nil
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Herald) error {
		h.metrics = m
		return nil
	}
}

// WithTracer enables OpenTelemetry delivery spans.
func WithTracer(t *observability.Tracer) Option {
	return func(h *Herald) error {
		h.tracer = t
		return nil
	}
}
