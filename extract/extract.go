// Package extract pulls named values out of request/response headers or
// the message body via anchored regular expressions, for use as
// template input.
package extract

import (
	"net/http"
	"regexp"

	"github.com/wudi/transmute/internal/errors"
)

// Spec describes a single extraction: where to read from, the pattern,
// and which capture group to return.
type Spec struct {
	// Header names the source header. Ignored when Body is set.
	Header string
	// Body selects the message body as the source.
	Body bool
	// Regex is matched against the entire source value, not searched
	// within it.
	Regex string
	// Subgroup is the capture group to return; 0 is the whole match.
	Subgroup int
}

// Extraction is a compiled, immutable extraction. Safe for concurrent
// use across requests.
type Extraction struct {
	header string
	body   bool
	re     *regexp.Regexp
	group  int
}

// New compiles the spec. It fails with a config error when the regex
// does not compile or the subgroup exceeds the pattern's group count.
func New(spec Spec) (*Extraction, error) {
	// Anchor inside a non-capturing group so subgroup numbering is
	// preserved and the pattern must span the whole value.
	re, err := regexp.Compile(`\A(?:` + spec.Regex + `)\z`)
	if err != nil {
		return nil, errors.Configf("invalid extraction regex %q: %v", spec.Regex, err)
	}
	if spec.Subgroup < 0 || spec.Subgroup > re.NumSubexp() {
		return nil, errors.Configf("group %d requested for regex with only %d sub groups",
			spec.Subgroup, re.NumSubexp())
	}
	return &Extraction{
		header: spec.Header,
		body:   spec.Body,
		re:     re,
		group:  spec.Subgroup,
	}, nil
}

// Extract runs the extraction against one message phase. getBody
// materializes the body on first call; header lookups take the first
// occurrence, case-insensitively. A missing source or non-matching
// pattern yields "".
func (e *Extraction) Extract(h http.Header, getBody func() string) string {
	var value string
	if e.body {
		value = getBody()
	} else {
		vals := h.Values(e.header)
		if len(vals) == 0 {
			return ""
		}
		value = vals[0]
	}

	m := e.re.FindStringSubmatchIndex(value)
	if m == nil {
		return ""
	}
	// The bound was checked at construction; a short result here would
	// be an unreachable state, not a request error.
	if 2*e.group+1 >= len(m) || m[2*e.group] < 0 {
		return ""
	}
	return value[m[2*e.group]:m[2*e.group+1]]
}
