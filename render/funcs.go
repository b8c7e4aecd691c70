package render

import (
	"encoding/base64"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/tidwall/gjson"
)

// FuncMap builds the template function table bound to this context:
// the sprig base set overlaid with the fixed transformation callbacks.
func (c *Context) FuncMap() template.FuncMap {
	fm := sprig.TxtFuncMap()

	fm["header"] = c.headerFunc
	fm["request_header"] = c.requestHeaderFunc
	fm["extraction"] = c.extractionFunc
	fm["context"] = c.contextFunc
	fm["body"] = c.body
	// Overrides sprig's live os.Getenv lookup: templates see the
	// config-time snapshot only.
	fm["env"] = c.envFunc
	fm["clusterMetadata"] = c.clusterMetadataFunc
	fm["base64_encode"] = base64EncodeFunc
	fm["base64_decode"] = base64DecodeFunc
	fm["substring"] = substringFunc
	fm["replace_with_random"] = c.replaceWithRandomFunc
	fm["field"] = c.fieldFunc

	return fm
}

// headerFunc returns the first occurrence of a current-phase header.
func (c *Context) headerFunc(name string) string {
	if c.Headers == nil {
		return ""
	}
	return c.Headers.Get(name)
}

// requestHeaderFunc returns a paired-request header, "" when no
// request headers are bound.
func (c *Context) requestHeaderFunc(name string) string {
	if c.RequestHeaders == nil {
		return ""
	}
	return c.RequestHeaders.Get(name)
}

func (c *Context) extractionFunc(name string) string {
	return c.Extractions[name]
}

// contextFunc renders the full parsed-body tree as JSON.
func (c *Context) contextFunc() string {
	return string(c.tree())
}

func (c *Context) envFunc(name string) string {
	return c.Environ[name]
}

// clusterMetadataFunc looks key up within this filter's namespace on
// the upstream cluster's metadata.
func (c *Context) clusterMetadataFunc(key string) string {
	return c.ClusterMetadata.FilterValue(c.MetadataNamespace, key).ScalarString()
}

func base64EncodeFunc(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// base64DecodeFunc decodes s, yielding "" rather than an error on
// invalid input.
func base64DecodeFunc(s string) string {
	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return ""
	}
	return string(out)
}

// substringFunc returns s[start:start+length]. start out of range
// yields ""; a missing, non-positive, or overflowing length extends to
// the end of the string. Non-integer arguments yield "".
func substringFunc(s string, start interface{}, length ...interface{}) string {
	st, ok := toInt(start)
	if !ok {
		return ""
	}
	if st < 0 || st >= int64(len(s)) {
		return ""
	}

	ln := int64(-1)
	if len(length) > 0 {
		ln, ok = toInt(length[0])
		if !ok {
			return ""
		}
	}
	if ln <= 0 || st+ln > int64(len(s)) {
		return s[st:]
	}
	return s[st : st+ln]
}

// replaceWithRandomFunc replaces every literal occurrence of pattern in
// s with this render context's memoized token for that pattern.
func (c *Context) replaceWithRandomFunc(s, pattern string) string {
	return strings.ReplaceAll(s, pattern, c.tokenFor(pattern))
}

// fieldFunc reads a value out of the parsed body tree. Flat mode takes
// the name as one literal key; path mode walks dot-separated segments.
func (c *Context) fieldFunc(name string) string {
	path := name
	if !c.PathMode {
		path = escapeKey(name)
	}
	res := gjson.GetBytes(c.tree(), path)
	if !res.Exists() {
		return ""
	}
	if res.Type == gjson.String {
		return res.Str
	}
	return res.Raw
}

// escapeKey quotes gjson path syntax so a flat field name with dots or
// wildcards is looked up literally.
func escapeKey(name string) string {
	var sb strings.Builder
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '.', '*', '?', '\\', '|', '#', '@':
			sb.WriteByte('\\')
		}
		sb.WriteByte(name[i])
	}
	return sb.String()
}

func toInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}
