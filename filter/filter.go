package filter

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wudi/transmute/internal/bufutil"
	"github.com/wudi/transmute/internal/errors"
	"github.com/wudi/transmute/internal/logging"
	"github.com/wudi/transmute/metadata"
	"github.com/wudi/transmute/transform"
)

// Status is a filter iteration decision for one event.
type Status int

const (
	// Continue lets the event proceed down the chain.
	Continue Status = iota
	// StopIteration pauses the chain while the filter buffers.
	StopIteration
	// StopIterationNoBuffer pauses without the host buffering the data;
	// the filter keeps its own copy.
	StopIterationNoBuffer
)

// Phase tracks where one side of the exchange is.
type Phase int

const (
	PhaseInactive Phase = iota
	PhaseHeadersSeen
	PhaseBufferingBody
	PhaseTransforming
	PhaseErrored
)

// Callbacks is the host surface a Filter drives: route and upstream
// metadata, the dynamic-metadata sink, and local reply synthesis. All
// calls happen on the stream's event thread.
type Callbacks interface {
	RouteMetadata() metadata.Value
	ClusterName() string
	FunctionName() string
	ClusterMetadata() metadata.Value
	SetDynamicMetadata(namespace, key, value string)
	SendLocalReply(status int, body string, header http.Header)
}

// ResponseHeaders is the mutable response head the encode path sees.
type ResponseHeaders struct {
	StatusCode int
	Header     http.Header
}

const (
	sideRequest  = "request"
	sideResponse = "response"
)

// side is the per-direction state. Request and response sides of one
// exchange are independent instances of the same machine.
type side struct {
	phase  Phase
	active *transform.Transformation
	buf    bufutil.Buffer
	limit  int64
}

// Filter runs both sides of one exchange. Not safe for concurrent use;
// the host serializes events per stream.
type Filter struct {
	cfg *Config
	cb  Callbacks

	requestID      string
	requestHeaders http.Header

	request  side
	response side
	respHead *ResponseHeaders

	destroyed bool
}

// New creates a filter for one exchange.
func New(cfg *Config, cb Callbacks) *Filter {
	return &Filter{
		cfg:       cfg,
		cb:        cb,
		requestID: uuid.NewString(),
		request:   side{limit: cfg.requestLimit},
		response:  side{limit: cfg.responseLimit},
	}
}

// DecodeHeaders handles the request head. endStream set means no body
// follows.
func (f *Filter) DecodeHeaders(h http.Header, endStream bool) Status {
	if f.destroyed {
		return Continue
	}
	f.requestHeaders = h
	f.request.phase = PhaseHeadersSeen

	t, err := f.cfg.resolve(f.cb.RouteMetadata(), RequestTransformationKey, f.cb, true)
	if err != nil {
		return f.failRequest(err)
	}
	if t == nil {
		f.request.phase = PhaseInactive
		f.cfg.metrics.RecordPassthrough(sideRequest)
		return Continue
	}
	f.request.active = t

	if endStream {
		return f.transformRequest(h)
	}
	f.request.phase = PhaseBufferingBody
	return StopIterationNoBuffer
}

// DecodeData accumulates one request body chunk.
func (f *Filter) DecodeData(data []byte, endStream bool) Status {
	if f.destroyed || f.request.active == nil || f.request.phase == PhaseErrored {
		return Continue
	}

	f.request.buf.Append(data)
	if f.request.limit > 0 && int64(f.request.buf.Len()) > f.request.limit {
		f.request.buf.Drain()
		return f.failRequest(errors.PayloadTooLarge(f.request.limit))
	}

	if endStream {
		return f.transformRequest(f.requestHeaders)
	}
	return StopIterationNoBuffer
}

// DecodeTrailers fires when end-of-message was deferred to trailers.
func (f *Filter) DecodeTrailers(http.Header) Status {
	if f.destroyed || f.request.active == nil || f.request.phase == PhaseErrored {
		return Continue
	}
	if f.request.phase == PhaseBufferingBody || f.request.phase == PhaseHeadersSeen {
		return f.transformRequest(f.requestHeaders)
	}
	return Continue
}

// EncodeHeaders handles the response head.
func (f *Filter) EncodeHeaders(h *ResponseHeaders, endStream bool) Status {
	if f.destroyed {
		return Continue
	}
	f.respHead = h
	f.response.phase = PhaseHeadersSeen

	// A failed response-side resolution is never an error here: the
	// response may already be committed downstream.
	t, err := f.cfg.resolve(f.cb.RouteMetadata(), ResponseTransformationKey, f.cb, false)
	if err != nil || t == nil {
		f.response.phase = PhaseInactive
		f.cfg.metrics.RecordPassthrough(sideResponse)
		return Continue
	}
	f.response.active = t

	if endStream {
		return f.transformResponse()
	}
	f.response.phase = PhaseBufferingBody
	return StopIterationNoBuffer
}

// EncodeData accumulates one response body chunk.
func (f *Filter) EncodeData(data []byte, endStream bool) Status {
	if f.destroyed || f.response.active == nil || f.response.phase == PhaseErrored {
		return Continue
	}

	f.response.buf.Append(data)
	if f.response.limit > 0 && int64(f.response.buf.Len()) > f.response.limit {
		f.response.buf.Drain()
		return f.failResponse(errors.PayloadTooLarge(f.response.limit))
	}

	if endStream {
		return f.transformResponse()
	}
	return StopIterationNoBuffer
}

// EncodeTrailers fires when response end-of-message was deferred.
func (f *Filter) EncodeTrailers(http.Header) Status {
	if f.destroyed || f.response.active == nil || f.response.phase == PhaseErrored {
		return Continue
	}
	if f.response.phase == PhaseBufferingBody || f.response.phase == PhaseHeadersSeen {
		return f.transformResponse()
	}
	return Continue
}

// OnDestroy tears the exchange down: buffers are discarded and any
// later event is dropped.
func (f *Filter) OnDestroy() {
	f.destroyed = true
	f.request.buf.Drain()
	f.response.buf.Drain()
}

// RequestBody exposes the request-side buffer, post-transform.
func (f *Filter) RequestBody() *bufutil.Buffer { return &f.request.buf }

// ResponseBody exposes the response-side buffer, post-transform.
func (f *Filter) ResponseBody() *bufutil.Buffer { return &f.response.buf }

func (f *Filter) transformRequest(h http.Header) Status {
	f.request.phase = PhaseTransforming
	if err := f.request.active.Transform(h, f.requestHeaders, &f.request.buf, f.cb); err != nil {
		return f.failRequest(err)
	}
	if f.request.buf.Len() == 0 {
		h.Del("Content-Type")
	}
	f.request.phase = PhaseInactive
	f.cfg.metrics.RecordTransform(sideRequest, f.request.active.Name())
	logging.Debug("request transformed",
		zap.String("transformation", f.request.active.Name()),
		zap.String("request_id", f.requestID))
	return Continue
}

func (f *Filter) transformResponse() Status {
	f.response.phase = PhaseTransforming
	if err := f.response.active.Transform(f.respHead.Header, f.requestHeaders, &f.response.buf, f.cb); err != nil {
		return f.failResponse(err)
	}
	if f.response.buf.Len() == 0 {
		f.respHead.Header.Del("Content-Type")
	}
	f.response.phase = PhaseInactive
	f.cfg.metrics.RecordTransform(sideResponse, f.response.active.Name())
	logging.Debug("response transformed",
		zap.String("transformation", f.response.active.Name()),
		zap.String("request_id", f.requestID))
	return Continue
}

// failRequest synthesizes a terminal error reply, short-circuiting the
// rest of the chain.
func (f *Filter) failRequest(err error) Status {
	f.request.phase = PhaseErrored
	f.request.buf.Drain()
	te := classify(err)
	f.cfg.metrics.RecordError(sideRequest, te.Kind.String())
	logging.Error("request transformation failed",
		zap.String("kind", te.Kind.String()),
		zap.String("request_id", f.requestID),
		zap.Error(err))

	h := http.Header{}
	h.Set("X-Request-Id", f.requestID)
	f.cb.SendLocalReply(te.StatusCode(), te.ResponseBody(), h)
	return StopIteration
}

// failResponse overwrites the in-flight response in place; its headers
// may already be on the wire, so there is nothing to short-circuit.
func (f *Filter) failResponse(err error) Status {
	f.response.phase = PhaseErrored
	te := classify(err)
	f.cfg.metrics.RecordError(sideResponse, te.Kind.String())
	logging.Error("response transformation failed",
		zap.String("kind", te.Kind.String()),
		zap.String("request_id", f.requestID),
		zap.Error(err))

	body := te.ResponseBody()
	f.respHead.StatusCode = te.StatusCode()
	f.response.buf.Replace([]byte(body))
	f.respHead.Header.Del("Content-Type")
	f.respHead.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return Continue
}

func classify(err error) *errors.TransformError {
	if te, ok := errors.AsTransformError(err); ok {
		return te
	}
	return &errors.TransformError{Kind: errors.KindConfig, Message: "internal error"}
}
