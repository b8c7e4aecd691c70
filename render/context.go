// Package render executes transformation templates against a
// per-phase context. Templates are Go text/template sources with the
// sprig base functions plus a fixed set of context-lookup callbacks
// (header, extraction, body, clusterMetadata, ...). The callback set is
// closed; there is no runtime registration.
package render

import (
	"encoding/base64"
	"encoding/binary"
	"math/rand"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/wudi/transmute/metadata"
)

// Context is the read-only view one render pass works against. It
// merges the current phase's headers, the paired request headers, the
// lazily materialized body, extraction results, the parsed body tree,
// the config-time environment snapshot, and upstream cluster metadata.
// One Context lives for one message phase.
type Context struct {
	// Headers is the current phase's header block.
	Headers http.Header
	// RequestHeaders is the paired request's header block, visible even
	// while rendering response templates. Nil when unbound.
	RequestHeaders http.Header
	// Body materializes the raw body on first call and caches it.
	Body func() string
	// Extractions holds named extraction results. Populated only in
	// path mode; in flat mode results live in BodyTree instead.
	Extractions map[string]string
	// BodyTree is the parsed body as raw JSON, possibly with extraction
	// results merged in. Empty when no body was parsed.
	BodyTree []byte
	// Environ is the process environment snapshot taken at config time.
	Environ map[string]string
	// ClusterMetadata is the upstream cluster's metadata tree.
	ClusterMetadata metadata.Value
	// MetadataNamespace scopes clusterMetadata() lookups.
	MetadataNamespace string
	// Rand produces independent 64-bit values for replace_with_random.
	// Nil falls back to the shared process generator.
	Rand func() uint64
	// PathMode selects dot-segmented path access for the field()
	// callback instead of single literal keys.
	PathMode bool

	// tokens memoizes replace_with_random values per literal pattern.
	tokens map[string]string
}

// body returns the raw body, tolerating an unbound accessor.
func (c *Context) body() string {
	if c.Body == nil {
		return ""
	}
	return c.Body()
}

// tree returns the body tree, with "{}" standing in for nothing parsed.
func (c *Context) tree() []byte {
	if len(c.BodyTree) == 0 {
		return []byte("{}")
	}
	return c.BodyTree
}

// tokenFor returns the memoized random token for a literal pattern,
// generating and caching a fresh one on first use. Distinct patterns
// get independent tokens; the cache dies with the Context.
func (c *Context) tokenFor(pattern string) string {
	if tok, ok := c.tokens[pattern]; ok {
		return tok
	}
	gen := c.Rand
	if gen == nil {
		gen = rand.Uint64
	}

	// 128 random bits as unpadded base64: 22 characters.
	var raw [16]byte
	binary.LittleEndian.PutUint64(raw[:8], gen())
	binary.LittleEndian.PutUint64(raw[8:], gen())
	tok := base64.RawStdEncoding.EncodeToString(raw[:])

	if c.tokens == nil {
		c.tokens = make(map[string]string)
	}
	c.tokens[pattern] = tok
	return tok
}

// templateData returns the parsed body tree as the template's dot
// value. Non-object trees render against an empty object so field
// access never faults.
func (c *Context) templateData() interface{} {
	if len(c.BodyTree) == 0 {
		return map[string]interface{}{}
	}
	v := gjson.ParseBytes(c.BodyTree).Value()
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}
