package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_bot/internal/ledger"
	"signal_bot/internal/registry"
	"signal_bot/internal/runner"
)

const block = "#portx\nPAIR: ETHUSDT\nSIDE: SHORT\nENTRY: 3000-3010\nSTOPLOSS: 3100\n#end"

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	svc := runner.NewService(registry.New(), ledger.NewMemory(0), func() time.Time { return now })
	r := gin.New()
	NewHandler(svc).Register(r)
	return r
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitAndList(t *testing.T) {
	r := newRouter(t)

	payload, err := json.Marshal(submitRequest{Destination: 77, Text: block})
	require.NoError(t, err)
	w := do(r, http.MethodPost, "/api/signals", string(payload))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)

	w = do(r, http.MethodGet, "/api/signals?destination=77", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Signals []struct {
			ID   string `json:"id"`
			Pair string `json:"pair"`
			Side string `json:"side"`
		} `json:"signals"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Signals, 1)
	assert.Equal(t, "ETH_USDT", list.Signals[0].Pair)
	assert.Equal(t, "SHORT", list.Signals[0].Side)

	w = do(r, http.MethodGet, "/api/signals/"+created.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodGet, "/api/signals/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	r := newRouter(t)

	w := do(r, http.MethodPost, "/api/signals", `{"destination": 1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/signals", `{"destination": 1, "text": "hello"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(r, http.MethodPost, "/api/signals", `{"destination": 1, "text": "#portx\nPAIR: BTCUSDT\nSIDE: LONG\nENTRY: 100\nSTOPLOSS: 0\n#end"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(r, http.MethodGet, "/api/signals?destination=1", "")
	var list struct {
		Signals []any `json:"signals"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list.Signals)
}

func TestRecap(t *testing.T) {
	r := newRouter(t)

	w := do(r, http.MethodGet, "/api/recap", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/recap?destination=5&hours=6", "")
	require.Equal(t, http.StatusOK, w.Code)
	var sum struct {
		Destination int64     `json:"destination"`
		Since       time.Time `json:"since"`
		Total       int       `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, int64(5), sum.Destination)
	assert.Equal(t, 0, sum.Total)
	assert.True(t, sum.Since.Equal(time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)))
}
