package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCollectorRecordTransform(t *testing.T) {
	c := NewCollector()

	c.RecordTransform("request", "strip-auth")
	c.RecordTransform("request", "strip-auth")
	c.RecordTransform("response", "add-user")

	snap := c.Snapshot()

	if snap.TransformsTotal["request|strip-auth"] != 2 {
		t.Errorf("expected 2 request strip-auth transforms, got %d", snap.TransformsTotal["request|strip-auth"])
	}
	if snap.TransformsTotal["response|add-user"] != 1 {
		t.Errorf("expected 1 response add-user transform, got %d", snap.TransformsTotal["response|add-user"])
	}
}

func TestCollectorRecordError(t *testing.T) {
	c := NewCollector()

	c.RecordError("request", "body_parse")
	c.RecordError("request", "body_parse")
	c.RecordError("response", "template_syntax")

	snap := c.Snapshot()

	if snap.ErrorsTotal["request|body_parse"] != 2 {
		t.Errorf("expected 2 body_parse errors, got %d", snap.ErrorsTotal["request|body_parse"])
	}
	if snap.ErrorsTotal["response|template_syntax"] != 1 {
		t.Errorf("expected 1 template_syntax error, got %d", snap.ErrorsTotal["response|template_syntax"])
	}
}

func TestCollectorRecordPassthrough(t *testing.T) {
	c := NewCollector()

	c.RecordPassthrough("request")
	c.RecordPassthrough("request")
	c.RecordPassthrough("response")

	snap := c.Snapshot()

	if snap.PassthroughTotal["request"] != 2 {
		t.Errorf("expected 2 request passthroughs, got %d", snap.PassthroughTotal["request"])
	}
	if snap.PassthroughTotal["response"] != 1 {
		t.Errorf("expected 1 response passthrough, got %d", snap.PassthroughTotal["response"])
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	c := NewCollector()
	c.RecordTransform("request", "t1")

	snap := c.Snapshot()
	c.RecordTransform("request", "t1")

	if snap.TransformsTotal["request|t1"] != 1 {
		t.Error("snapshot must not track later increments")
	}
}

func TestWritePrometheus(t *testing.T) {
	c := NewCollector()

	c.RecordTransform("request", "strip-auth")
	c.RecordTransform("request", "strip-auth")
	c.RecordError("response", "payload_too_large")
	c.RecordPassthrough("request")

	w := httptest.NewRecorder()
	c.WritePrometheus(w)

	body := w.Body.String()

	if !strings.Contains(body, "# TYPE transmute_transforms_total counter") {
		t.Error("missing transmute_transforms_total type line")
	}
	if !strings.Contains(body, `transmute_transforms_total{side="request",transformation="strip-auth"} 2`) {
		t.Errorf("missing transform counter line, got:\n%s", body)
	}
	if !strings.Contains(body, `transmute_transform_errors_total{side="response",kind="payload_too_large"} 1`) {
		t.Errorf("missing error counter line, got:\n%s", body)
	}
	if !strings.Contains(body, `transmute_passthrough_total{side="request"} 1`) {
		t.Errorf("missing passthrough counter line, got:\n%s", body)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
}
