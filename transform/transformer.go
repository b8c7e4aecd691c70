// Package transform applies a validated transformation bundle to one
// message phase: it runs extractions, builds the render context, and
// applies header, body, and dynamic-metadata effects in a fixed order.
package transform

import (
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/wudi/transmute/config"
	"github.com/wudi/transmute/extract"
	"github.com/wudi/transmute/internal/bufutil"
	"github.com/wudi/transmute/internal/errors"
	"github.com/wudi/transmute/metadata"
	"github.com/wudi/transmute/render"
)

// MetadataNamespace scopes this filter's route metadata, cluster
// metadata lookups, and default dynamic-metadata publishing.
const MetadataNamespace = "transmute.filter"

// Stream gives a transformation access to the surrounding stream:
// upstream cluster metadata and the dynamic-metadata sink.
type Stream interface {
	ClusterMetadata() metadata.Value
	SetDynamicMetadata(namespace, key, value string)
}

type headerTemplate struct {
	name   string
	source string
}

type metadataTemplate struct {
	namespace string
	key       string
	source    string
}

type namedExtraction struct {
	name       string
	extraction *extract.Extraction
}

// Transformation is a compiled bundle: every template validated and
// every extraction compiled at construction. Immutable and shared
// across requests.
type Transformation struct {
	name string

	headers         []headerTemplate
	headersToAppend []headerTemplate
	headersToRemove []string
	bodyTemplate    *string
	mergeToBody     bool
	dynamicMetadata []metadataTemplate
	extractions     []namedExtraction

	parseBody         bool
	ignoreParseErrors bool
	pathMode          bool

	environ map[string]string
	rand    func() uint64
}

// Option adjusts construction, mainly so tests can pin the random
// source.
type Option func(*Transformation)

// WithRand injects the 64-bit random source used for
// replace_with_random tokens.
func WithRand(fn func() uint64) Option {
	return func(t *Transformation) { t.rand = fn }
}

// New compiles a bundle. Every contained template is parsed
// immediately and the process environment captured once; any failure
// aborts construction with a config error naming the field.
func New(name string, cfg config.TransformationConfig, opts ...Option) (*Transformation, error) {
	t := &Transformation{
		name:              name,
		headersToRemove:   cfg.HeadersToRemove,
		bodyTemplate:      cfg.Body,
		mergeToBody:       cfg.MergeExtractorsToBody,
		parseBody:         cfg.ParseBody(),
		ignoreParseErrors: cfg.IgnoreErrorOnParse,
		pathMode:          cfg.AdvancedTemplates,
		environ:           snapshotEnviron(),
		rand:              rand.Uint64,
	}
	for _, opt := range opts {
		opt(t)
	}

	// Header names sorted for deterministic application order; the
	// config map carries none.
	headerNames := make([]string, 0, len(cfg.Headers))
	for hn := range cfg.Headers {
		headerNames = append(headerNames, hn)
	}
	sort.Strings(headerNames)
	for _, hn := range headerNames {
		src := cfg.Headers[hn]
		if err := render.Parse(hn, src); err != nil {
			return nil, errors.Configf("transformation %q: failed to parse header template %q: %v", name, hn, err)
		}
		t.headers = append(t.headers, headerTemplate{name: hn, source: src})
	}

	for _, hv := range cfg.HeadersToAppend {
		if err := render.Parse(hv.Key, hv.Value); err != nil {
			return nil, errors.Configf("transformation %q: failed to parse header template %q: %v", name, hv.Key, err)
		}
		t.headersToAppend = append(t.headersToAppend, headerTemplate{name: hv.Key, source: hv.Value})
	}

	for _, dm := range cfg.DynamicMetadataValues {
		if dm.Key == "" {
			return nil, errors.Configf("transformation %q: dynamic metadata entry with empty key", name)
		}
		if err := render.Parse(dm.Key, dm.Value); err != nil {
			return nil, errors.Configf("transformation %q: failed to parse dynamic metadata template %q: %v", name, dm.Key, err)
		}
		ns := dm.MetadataNamespace
		if ns == "" {
			ns = MetadataNamespace
		}
		t.dynamicMetadata = append(t.dynamicMetadata, metadataTemplate{namespace: ns, key: dm.Key, source: dm.Value})
	}

	if cfg.Body != nil {
		if err := render.Parse("body", *cfg.Body); err != nil {
			return nil, errors.Configf("transformation %q: failed to parse body template: %v", name, err)
		}
	}

	extNames := make([]string, 0, len(cfg.Extractors))
	for en := range cfg.Extractors {
		extNames = append(extNames, en)
	}
	sort.Strings(extNames)
	for _, en := range extNames {
		ex, err := extract.New(cfg.Extractors[en].Spec())
		if err != nil {
			return nil, errors.Configf("transformation %q: extractor %q: %v", name, en, err)
		}
		t.extractions = append(t.extractions, namedExtraction{name: en, extraction: ex})
	}

	return t, nil
}

// Name returns the bundle's configured name.
func (t *Transformation) Name() string { return t.name }

// Transform applies the bundle to one message phase, mutating headers
// and body in place. requestHeaders carries the paired request's
// headers (the same block on the request side); stream may be nil.
// Header and dynamic-metadata effects observe the original body and
// Content-Length; body replacement happens last.
func (t *Transformation) Transform(headers, requestHeaders http.Header, body *bufutil.Buffer, stream Stream) error {
	var cached *string
	getBody := func() string {
		if cached == nil {
			s := body.String()
			cached = &s
		}
		return *cached
	}

	var tree []byte
	if t.parseBody && body.Len() > 0 {
		raw := getBody()
		if gjson.Valid(raw) {
			tree = []byte(raw)
		} else if t.ignoreParseErrors {
			tree = []byte("{}")
		} else {
			return errors.BodyParse(errors.Configf("body is not valid JSON"))
		}
	}

	var side map[string]string
	if t.pathMode {
		side = make(map[string]string, len(t.extractions))
	}
	for _, ne := range t.extractions {
		val := ne.extraction.Extract(headers, getBody)
		if t.pathMode {
			side[ne.name] = val
		} else {
			// Dotted names become nested containers in the tree, so
			// context() and dot access see the merged result.
			if len(tree) == 0 {
				tree = []byte("{}")
			}
			merged, err := sjson.SetBytes(tree, ne.name, val)
			if err != nil {
				return errors.Configf("transformation %q: cannot merge extraction %q", t.name, ne.name)
			}
			tree = merged
		}
	}

	cm := metadata.Null()
	if stream != nil {
		cm = stream.ClusterMetadata()
	}

	ctx := &render.Context{
		Headers:           headers,
		RequestHeaders:    requestHeaders,
		Body:              getBody,
		Extractions:       side,
		BodyTree:          tree,
		Environ:           t.environ,
		ClusterMetadata:   cm,
		MetadataNamespace: MetadataNamespace,
		Rand:              t.rand,
		PathMode:          t.pathMode,
	}

	// Body output is computed first but applied last, so header and
	// metadata templates render against the original body.
	var newBody *string
	if t.bodyTemplate != nil {
		out, err := ctx.Render("body", *t.bodyTemplate)
		if err != nil {
			return err
		}
		newBody = &out
	} else if t.mergeToBody {
		out := "{}"
		if len(tree) > 0 {
			out = string(tree)
		}
		newBody = &out
	}

	for _, dm := range t.dynamicMetadata {
		out, err := ctx.Render(dm.key, dm.source)
		if err != nil {
			return err
		}
		if out != "" && stream != nil {
			stream.SetDynamicMetadata(dm.namespace, dm.key, out)
		}
	}

	for _, ht := range t.headers {
		out, err := ctx.Render(ht.name, ht.source)
		if err != nil {
			return err
		}
		headers.Del(ht.name)
		if out != "" {
			headers.Add(ht.name, out)
		}
	}

	for _, name := range t.headersToRemove {
		headers.Del(name)
	}

	for _, ht := range t.headersToAppend {
		out, err := ctx.Render(ht.name, ht.source)
		if err != nil {
			return err
		}
		if out != "" {
			headers.Add(ht.name, out)
		}
	}

	if newBody != nil {
		headers.Del("Content-Length")
		body.Replace([]byte(*newBody))
		headers.Set("Content-Length", strconv.Itoa(body.Len()))
	}

	return nil
}

// snapshotEnviron captures the process environment once at
// construction.
func snapshotEnviron() map[string]string {
	env := os.Environ()
	out := make(map[string]string, len(env))
	for _, kv := range env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			out[kv[:i]] = kv[i+1:]
		}
	}
	return out
}
