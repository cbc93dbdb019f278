package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerRouting(t *testing.T) {
	server := newTestServer(t, newMemHistory())
	handler := server.Handler()

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"health", http.MethodGet, "/health", http.StatusOK},
		{"unknown path", http.MethodGet, "/api/nope", http.StatusNotFound},
		{"chat wrong method", http.MethodGet, "/api/chat", http.StatusMethodNotAllowed},
		{"threads wrong method", http.MethodPost, "/api/threads", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
