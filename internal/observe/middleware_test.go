package observe

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace"
)

func TestTransport_PropagatesTraceContext(t *testing.T) {
	exp := swapTracerProvider(t)
	m, _ := newTestMetrics(t)

	var traceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
	}))
	defer srv.Close()

	client := &http.Client{Transport: Transport(nil, m)}
	resp, err := client.Get(srv.URL + "/api/remove")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		t.Fatalf("traceparent %q does not have 4 fields", traceparent)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if want := spans[0].SpanContext.TraceID().String(); parts[1] != want {
		t.Errorf("propagated trace ID %q, span has %q", parts[1], want)
	}
}

func TestTransport_CreatesClientSpan(t *testing.T) {
	exp := swapTracerProvider(t)
	m, _ := newTestMetrics(t)

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}

	client := &http.Client{Transport: Transport(nil, m)}
	resp, err := client.Get(srv.URL + "/api/remove")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if want := "HTTP GET " + u.Host; spans[0].Name != want {
		t.Errorf("span name = %q, want %q", spans[0].Name, want)
	}
	if spans[0].SpanKind != trace.SpanKindClient {
		t.Errorf("span kind = %v, want client", spans[0].SpanKind)
	}
}

func TestTransport_RecordsRequestDuration(t *testing.T) {
	swapTracerProvider(t)
	m, reader := newTestMetrics(t)

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}

	client := &http.Client{Transport: Transport(nil, m)}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	met := gather(t, reader, "lipsynth.http.request.duration")
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("request.duration data is %T, want Histogram[float64]", met.Data)
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("samples = %d, want 1", dp.Count)
	}
	if got := attrString(dp.Attributes, "method"); got != http.MethodGet {
		t.Errorf("method attribute = %q, want GET", got)
	}
	if got := attrString(dp.Attributes, "host"); got != u.Host {
		t.Errorf("host attribute = %q, want %q", got, u.Host)
	}
}

func TestTransport_CapturesStatusCode(t *testing.T) {
	exp := swapTracerProvider(t)
	m, _ := newTestMetrics(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer srv.Close()

	client := &http.Client{Transport: Transport(nil, m)}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 passed through", resp.StatusCode)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	var got int64
	for _, kv := range spans[0].Attributes {
		if kv.Key == "http.response.status_code" {
			got = kv.Value.AsInt64()
		}
	}
	if got != http.StatusNotFound {
		t.Errorf("status code attribute = %d, want 404", got)
	}
}

func TestTransport_DefaultsToStdlibTransport(t *testing.T) {
	rt := Transport(nil, DefaultMetrics())

	tr, ok := rt.(*transport)
	if !ok {
		t.Fatalf("Transport returned %T, want *transport", rt)
	}
	if tr.base != http.DefaultTransport {
		t.Error("nil base should fall back to http.DefaultTransport")
	}
}
