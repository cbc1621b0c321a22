package statusapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEngine struct {
	lastStrategy string
	lastParams   map[string]float64
}

func (s *stubEngine) Status() map[string]interface{} {
	return map[string]interface{}{"queue_len": 3, "dry_run": true}
}

func (s *stubEngine) SetStrategyParams(strategyID string, params map[string]float64) error {
	if strategyID == "missing" {
		return errors.Errorf("策略 %s 不存在", strategyID)
	}
	s.lastStrategy = strategyID
	s.lastParams = params
	return nil
}

func serve(t *testing.T, eng Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	srv := New(Config{}, eng)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	w := serve(t, &stubEngine{}, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusSnapshot(t *testing.T) {
	w := serve(t, &stubEngine{}, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"queue_len":3`)
	assert.Contains(t, w.Body.String(), `"dry_run":true`)
}

func TestMetricsSnapshot(t *testing.T) {
	w := serve(t, &stubEngine{}, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "{"))
}

func TestSetParams(t *testing.T) {
	eng := &stubEngine{}
	w := serve(t, eng, http.MethodPost, "/strategies/gabagool/params", `{"margin_pips": 80}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gabagool", eng.lastStrategy)
	assert.Equal(t, 80.0, eng.lastParams["margin_pips"])
}

func TestSetParamsUnknownStrategy(t *testing.T) {
	w := serve(t, &stubEngine{}, http.MethodPost, "/strategies/missing/params", `{"x": 1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetParamsBadPayload(t *testing.T) {
	w := serve(t, &stubEngine{}, http.MethodPost, "/strategies/gabagool/params", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
