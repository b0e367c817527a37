// Package testutil holds helpers shared by tests across packages: synthetic
// echo construction and HTTP round trips. It must not import the packages it
// helps test.
package testutil

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

// Delayed returns samples shifted right by delay zeros and followed by tail
// zeros, the ideal echo of samples off a single reflector.
func Delayed(samples []float64, delay, tail int) []float64 {
	out := make([]float64, delay+len(samples)+tail)
	copy(out[delay:], samples)
	return out
}

// MaxAbs is the largest absolute value in x, or 0 when x is empty.
func MaxAbs(x []float64) float64 {
	m := 0.0
	for _, v := range x {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// Serve runs one request against h and returns the recorder.
func Serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

// GetJSON issues a GET to h, checks the status and decodes the body into out
// when out is non-nil.
func GetJSON(t *testing.T, h http.Handler, path string, wantStatus int, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	rec := Serve(h, http.MethodGet, path)
	AssertStatusCode(t, rec.Code, wantStatus)
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q, want application/json", ct)
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v (body %q)", path, err, rec.Body.String())
		}
	}
	return rec
}
