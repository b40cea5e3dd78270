package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycotrack/wallet-ledger/pkg/logger"
)

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	return lines
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.InfoLevel, Output: &buf})

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(NewStructuredLogger(logg))
	router.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		logg.Info(r.Context(), "inside handler")
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	t.Run("Request id reaches handler logs", func(t *testing.T) {
		buf.Reset()
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set(chimiddleware.RequestIDHeader, "req-42")
		router.ServeHTTP(httptest.NewRecorder(), req)

		lines := logLines(t, &buf)
		require.Len(t, lines, 2)
		assert.Equal(t, "inside handler", lines[0]["message"])
		assert.Equal(t, "req-42", lines[0]["request_id"])
		assert.Equal(t, "request completed", lines[1]["message"])
		assert.Equal(t, float64(http.StatusOK), lines[1]["status"])
		assert.Equal(t, "/ok", lines[1]["path"])
	})

	t.Run("Server errors log at error level", func(t *testing.T) {
		buf.Reset()
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

		lines := logLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "error", lines[0]["level"])
		assert.Equal(t, float64(http.StatusBadGateway), lines[0]["status"])
	})
}
