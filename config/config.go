// Package config defines the transformation filter configuration: a
// named set of transformation bundles plus filter-wide settings,
// loaded from YAML and validated eagerly so a bad bundle never reaches
// request time.
package config

import (
	"fmt"

	"github.com/wudi/transmute/extract"
	"github.com/wudi/transmute/render"
)

// Body parse behaviors.
const (
	ParseAsJSON = "parse_as_json"
	DontParse   = "dont_parse"
)

// Config is the root filter configuration.
type Config struct {
	// Transformations maps bundle names to their definitions. Route
	// metadata refers to bundles by these names.
	Transformations map[string]TransformationConfig `yaml:"transformations"`

	// Functional switches route resolution to the
	// cluster -> function -> transformation mapping.
	Functional bool `yaml:"functional"`

	// Buffer limits in bytes; 0 disables the check.
	RequestBufferLimit  int64 `yaml:"request_buffer_limit"`
	ResponseBufferLimit int64 `yaml:"response_buffer_limit"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// TransformationConfig defines one transformation bundle.
type TransformationConfig struct {
	// Headers maps header names to value templates. An empty render
	// suppresses the header entirely.
	Headers map[string]string `yaml:"headers"`

	// HeadersToAppend adds values without replacing existing ones.
	HeadersToAppend []HeaderValue `yaml:"headers_to_append"`

	// HeadersToRemove lists literal header names to drop.
	HeadersToRemove []string `yaml:"headers_to_remove"`

	// Body selection: at most one of the following three.
	Body                  *string `yaml:"body"`
	MergeExtractorsToBody bool    `yaml:"merge_extractors_to_body"`
	Passthrough           bool    `yaml:"passthrough"`

	DynamicMetadataValues []DynamicMetadataValue `yaml:"dynamic_metadata_values"`

	Extractors map[string]ExtractionConfig `yaml:"extractors"`

	// ParseBodyBehavior is one of "", "parse_as_json" (default), or
	// "dont_parse".
	ParseBodyBehavior string `yaml:"parse_body_behavior"`

	// IgnoreErrorOnParse turns a body parse failure into an empty
	// parsed tree instead of a request error.
	IgnoreErrorOnParse bool `yaml:"ignore_error_on_parse"`

	// AdvancedTemplates selects path-style context access and keeps
	// extraction results out of the body tree.
	AdvancedTemplates bool `yaml:"advanced_templates"`
}

// HeaderValue is one appended header entry.
type HeaderValue struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// DynamicMetadataValue publishes a rendered value to the stream's
// metadata sink.
type DynamicMetadataValue struct {
	// MetadataNamespace defaults to the filter's own namespace.
	MetadataNamespace string `yaml:"metadata_namespace"`
	Key               string `yaml:"key"`
	Value             string `yaml:"value"`
}

// ExtractionConfig defines a named value extraction.
type ExtractionConfig struct {
	// Header names the source header; Body selects the message body.
	// Exactly one source must be set.
	Header   string `yaml:"header"`
	Body     bool   `yaml:"body"`
	Regex    string `yaml:"regex"`
	Subgroup int    `yaml:"subgroup"`
}

// Spec converts the YAML form into the extraction engine's spec.
func (e ExtractionConfig) Spec() extract.Spec {
	return extract.Spec{
		Header:   e.Header,
		Body:     e.Body,
		Regex:    e.Regex,
		Subgroup: e.Subgroup,
	}
}

// ParseBody reports whether the bundle parses the body as JSON.
func (t TransformationConfig) ParseBody() bool {
	return t.ParseBodyBehavior != DontParse
}

// Validate checks the whole configuration, including compiling every
// extraction and parsing every template. A failure here aborts
// load/reload; nothing invalid ever reaches request time.
func (c *Config) Validate() error {
	if c.RequestBufferLimit < 0 || c.ResponseBufferLimit < 0 {
		return fmt.Errorf("buffer limits must be non-negative")
	}
	for name, tc := range c.Transformations {
		if err := tc.Validate(); err != nil {
			return fmt.Errorf("transformation %q: %w", name, err)
		}
	}
	return nil
}

// Validate checks one bundle.
func (t TransformationConfig) Validate() error {
	modes := 0
	if t.Body != nil {
		modes++
	}
	if t.MergeExtractorsToBody {
		modes++
	}
	if t.Passthrough {
		modes++
	}
	if modes > 1 {
		return fmt.Errorf("body, merge_extractors_to_body, and passthrough are mutually exclusive")
	}

	switch t.ParseBodyBehavior {
	case "", ParseAsJSON, DontParse:
	default:
		return fmt.Errorf("unknown parse_body_behavior %q", t.ParseBodyBehavior)
	}

	for name, tmpl := range t.Headers {
		if err := render.Parse(name, tmpl); err != nil {
			return fmt.Errorf("header template %q: %w", name, err)
		}
	}
	for _, hv := range t.HeadersToAppend {
		if hv.Key == "" {
			return fmt.Errorf("headers_to_append entry with empty key")
		}
		if err := render.Parse(hv.Key, hv.Value); err != nil {
			return fmt.Errorf("append header template %q: %w", hv.Key, err)
		}
	}
	for _, dm := range t.DynamicMetadataValues {
		if dm.Key == "" {
			return fmt.Errorf("dynamic metadata entry with empty key")
		}
		if err := render.Parse(dm.Key, dm.Value); err != nil {
			return fmt.Errorf("dynamic metadata template %q: %w", dm.Key, err)
		}
	}
	if t.Body != nil {
		if err := render.Parse("body", *t.Body); err != nil {
			return fmt.Errorf("body template: %w", err)
		}
	}

	for name, ec := range t.Extractors {
		if ec.Body && ec.Header != "" {
			return fmt.Errorf("extractor %q: header and body sources are exclusive", name)
		}
		if !ec.Body && ec.Header == "" {
			return fmt.Errorf("extractor %q: a header or body source is required", name)
		}
		if ec.Regex == "" {
			return fmt.Errorf("extractor %q: regex is required", name)
		}
		if _, err := extract.New(ec.Spec()); err != nil {
			return fmt.Errorf("extractor %q: %w", name, err)
		}
	}

	return nil
}
