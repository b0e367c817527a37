package testutil

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDelayed(t *testing.T) {
	assert.Equal(t, []float64{0, 0, 1, 2, 0}, Delayed([]float64{1, 2}, 2, 1))
	assert.Equal(t, []float64{1}, Delayed([]float64{1}, 0, 0))
	assert.Empty(t, Delayed(nil, 0, 0))
}

func TestMaxAbs(t *testing.T) {
	assert.Equal(t, 3.0, MaxAbs([]float64{1, -3, 2}))
	assert.Zero(t, MaxAbs(nil))
}

func TestGetJSON(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"path": "` + r.URL.Path + `"}`))
	})

	var body struct{ Path string }
	rec := GetJSON(t, h, "/api/ping", http.StatusOK, &body)
	assert.Equal(t, "/api/ping", body.Path)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServe(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := Serve(h, http.MethodPost, "/")
	AssertStatusCode(t, rec.Code, http.StatusTeapot)
}
