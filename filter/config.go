// Package filter implements the per-stream state machine that decides
// whether a transformation applies to each message phase, buffers the
// body under a byte limit, runs the transformation, and converts
// failures into transport-visible replies.
package filter

import (
	"go.uber.org/zap"

	"github.com/wudi/transmute/config"
	"github.com/wudi/transmute/internal/errors"
	"github.com/wudi/transmute/internal/logging"
	"github.com/wudi/transmute/internal/metrics"
	"github.com/wudi/transmute/metadata"
	"github.com/wudi/transmute/transform"
)

// Route metadata keys under transform.MetadataNamespace.
const (
	RequestTransformationKey  = "request_transformation"
	ResponseTransformationKey = "response_transformation"
)

// Config is the compiled filter configuration: every transformation
// bundle constructed and validated. Immutable; shared by all streams
// until a reload swaps it out.
type Config struct {
	transformations map[string]*transform.Transformation
	functional      bool
	requestLimit    int64
	responseLimit   int64
	metrics         *metrics.Collector
	transformOpts   []transform.Option
}

// ConfigOption adjusts compiled-config construction.
type ConfigOption func(*Config)

// WithMetrics attaches a collector; without one a fresh collector is
// used.
func WithMetrics(c *metrics.Collector) ConfigOption {
	return func(fc *Config) { fc.metrics = c }
}

// WithTransformOptions forwards options to every compiled bundle.
func WithTransformOptions(opts ...transform.Option) ConfigOption {
	return func(fc *Config) { fc.transformOpts = opts }
}

// NewConfig compiles cfg into a filter configuration. Any invalid
// bundle aborts construction, so a bad config or reload never becomes
// live.
func NewConfig(cfg *config.Config, opts ...ConfigOption) (*Config, error) {
	fc := &Config{
		transformations: make(map[string]*transform.Transformation, len(cfg.Transformations)),
		functional:      cfg.Functional,
		requestLimit:    cfg.RequestBufferLimit,
		responseLimit:   cfg.ResponseBufferLimit,
	}
	for _, opt := range opts {
		opt(fc)
	}
	if fc.metrics == nil {
		fc.metrics = metrics.NewCollector()
	}

	if cfg.Logging.Level != "" {
		l, err := logging.New(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		logging.SetGlobal(l)
	}

	for name, tc := range cfg.Transformations {
		t, err := transform.New(name, tc, fc.transformOpts...)
		if err != nil {
			return nil, err
		}
		fc.transformations[name] = t
	}
	return fc, nil
}

// Metrics returns the collector the filters record into.
func (c *Config) Metrics() *metrics.Collector { return c.metrics }

// resolve picks the transformation for one message phase from route
// metadata. A nil result with nil error means pass-through. In
// functional mode the walk is cluster -> function -> name; a failed
// walk is an error only on the request side, since the response may
// already be committed downstream.
func (c *Config) resolve(route metadata.Value, key string, cb Callbacks, requestSide bool) (*transform.Transformation, error) {
	entry := route.FilterValue(transform.MetadataNamespace, key)

	if !c.functional {
		name, ok := entry.StringValue()
		if !ok || name == "" {
			return nil, nil
		}
		t := c.transformations[name]
		if t == nil {
			logging.Warn("route names unknown transformation",
				zap.String("key", key), zap.String("transformation", name))
			return nil, nil
		}
		return t, nil
	}

	function := cb.FunctionName()
	name, ok := entry.Field(cb.ClusterName()).Field(function).StringValue()
	if ok && name != "" {
		if t := c.transformations[name]; t != nil {
			return t, nil
		}
	}
	if requestSide {
		return nil, errors.TransformationNotFound(function)
	}
	return nil, nil
}
