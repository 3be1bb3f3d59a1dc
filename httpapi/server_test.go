package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/vidquota"
	"github.com/ineyio/vidquota/provider/mock"
	"github.com/ineyio/vidquota/quota"
	"github.com/ineyio/vidquota/script"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type testEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, video vidquota.VideoProvider, opts ...Option) http.Handler {
	t.Helper()
	svc, err := vidquota.NewService(vidquota.Config{Mock: true}, video, quota.NewMemoryStore(),
		vidquota.WithClock(vidquota.ClockFunc(func() time.Time { return now })),
	)
	require.NoError(t, err)
	return New(svc, opts...).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	assert.Equal(t, rec.Code, env.Code)
	return rec, env
}

func TestGetQuota(t *testing.T) {
	h := newTestServer(t, mock.New())

	_, env := do(t, h, http.MethodGet, "/api/video/quota?user_id=u1", "")
	require.Equal(t, http.StatusOK, env.Code)

	var snap vidquota.QuotaSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, "u1", snap.UserID)
	assert.False(t, snap.IsMember)
	assert.Equal(t, "2026-03-01", snap.UsageDate)
	assert.Equal(t, int64(1), snap.Models[vidquota.ModelSeedance20].Remaining)
	assert.Equal(t, int64(3), snap.Models[vidquota.ModelSeedance18].Remaining)
}

func TestGetQuota_MissingUser(t *testing.T) {
	h := newTestServer(t, mock.New())

	_, env := do(t, h, http.MethodGet, "/api/video/quota", "")
	assert.Equal(t, http.StatusBadRequest, env.Code)
	assert.Equal(t, msgMissingParams, env.Msg)
}

func TestRecharge(t *testing.T) {
	h := newTestServer(t, mock.New())

	_, env := do(t, h, http.MethodPost, "/api/video/recharge", `{"user_id":"u1","months":2}`)
	require.Equal(t, http.StatusOK, env.Code)

	var res struct {
		vidquota.QuotaSnapshot
		RechargeMonths int     `json:"recharge_months"`
		Price          float64 `json:"price"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.IsMember)
	assert.Equal(t, 2, res.RechargeMonths)
	assert.InDelta(t, 59.8, res.Price, 0.001)
	require.NotNil(t, res.ExpiresAt)
	assert.True(t, res.ExpiresAt.Equal(now.Add(60*24*time.Hour)))
	assert.Equal(t, int64(10), res.Models[vidquota.ModelSeedance20].Limit)
}

func TestRecharge_ClampsMonths(t *testing.T) {
	tests := []struct {
		body   string
		months int
	}{
		{`{"user_id":"u1","months":-3}`, 1},
		{`{"user_id":"u1"}`, 1},
		{`{"user_id":"u1","months":99}`, 24},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			h := newTestServer(t, mock.New())

			_, env := do(t, h, http.MethodPost, "/api/video/recharge", tt.body)
			require.Equal(t, http.StatusOK, env.Code, env.Msg)

			var res struct {
				RechargeMonths int `json:"recharge_months"`
			}
			require.NoError(t, json.Unmarshal(env.Data, &res))
			assert.Equal(t, tt.months, res.RechargeMonths)
		})
	}
}

func TestGenerate_FlowAndQuotaExhausted(t *testing.T) {
	video := mock.New()
	h := newTestServer(t, video)

	_, env := do(t, h, http.MethodPost, "/api/video/generate", `{"user_id":"u1","script":"hello"}`)
	require.Equal(t, http.StatusOK, env.Code, env.Msg)

	var res vidquota.GenerateResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, vidquota.ModelSeedance20, res.Model)
	assert.Equal(t, "default", res.DigitalHuman)
	assert.Equal(t, "female", res.VoiceStyle)
	require.NotNil(t, res.VideoURL)
	assert.Equal(t, mock.SampleVideoURL, *res.VideoURL)
	assert.Equal(t, int64(0), res.Quota.Models[vidquota.ModelSeedance20].Remaining)

	_, env = do(t, h, http.MethodPost, "/api/video/generate", `{"user_id":"u1","script":"again"}`)
	assert.Equal(t, http.StatusTooManyRequests, env.Code)
	assert.Contains(t, env.Msg, "次数已用完")

	var snap vidquota.QuotaSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, int64(1), snap.Models[vidquota.ModelSeedance20].Used)
	assert.Equal(t, int64(1), video.CallCount())
}

func TestGenerate_Validation(t *testing.T) {
	video := mock.New()
	h := newTestServer(t, video)

	_, env := do(t, h, http.MethodPost, "/api/video/generate", `{"user_id":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, env.Code)
	assert.Equal(t, msgMissingParams, env.Msg)

	_, env = do(t, h, http.MethodPost, "/api/video/generate", `{"user_id":"u1","script":"x","model":"3.0"}`)
	assert.Equal(t, http.StatusBadRequest, env.Code)
	assert.Equal(t, msgUnsupportedModel, env.Msg)

	_, env = do(t, h, http.MethodPost, "/api/video/generate", `not json`)
	assert.Equal(t, http.StatusBadRequest, env.Code)

	assert.Equal(t, int64(0), video.CallCount())
}

func TestGenerate_ProviderErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"timeout", vidquota.ErrProviderTimeout, http.StatusGatewayTimeout},
		{"unavailable", vidquota.ErrProviderUnavailable, http.StatusBadGateway},
		{"bad response", vidquota.ErrBadResponse, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, mock.New(mock.WithError(tt.err)))

			_, env := do(t, h, http.MethodPost, "/api/video/generate", `{"user_id":"u1","script":"x"}`)
			assert.Equal(t, tt.code, env.Code)

			_, env = do(t, h, http.MethodGet, "/api/video/quota?user_id=u1", "")
			var snap vidquota.QuotaSnapshot
			require.NoError(t, json.Unmarshal(env.Data, &snap))
			assert.Equal(t, int64(0), snap.Models[vidquota.ModelSeedance20].Used)
		})
	}
}

func TestPanicIsRecovered(t *testing.T) {
	video := mock.New(mock.WithResponseFunc(func(vidquota.VideoRequest) (vidquota.VideoResult, error) {
		panic("boom")
	}))
	h := newTestServer(t, video)

	_, env := do(t, h, http.MethodPost, "/api/video/generate", `{"user_id":"u1","script":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, env.Code)
	assert.Equal(t, msgInternal, env.Msg)
}

func TestCreateScript(t *testing.T) {
	text := mock.NewText("标题: test")
	h := newTestServer(t, mock.New(), WithScriptWriter(script.NewWriter(text)))

	_, env := do(t, h, http.MethodPost, "/api/script/create", `{"user_id":"u1","scene":"美妆","key_info":"口红"}`)
	require.Equal(t, http.StatusOK, env.Code)

	var res script.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, []string{"标题: test"}, res.Schemes)
	assert.Equal(t, "30秒", res.Duration)

	_, env = do(t, h, http.MethodPost, "/api/script/create", `{"user_id":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, env.Code)
}

func TestCreateScript_ProviderFailure(t *testing.T) {
	h := newTestServer(t, mock.New(), WithScriptWriter(script.NewWriter(mock.NewFailingText(vidquota.ErrProviderUnavailable))))

	_, env := do(t, h, http.MethodPost, "/api/script/create", `{"user_id":"u1","scene":"s","key_info":"k"}`)
	assert.Equal(t, http.StatusBadGateway, env.Code)
}

func TestHealthAndNotFound(t *testing.T) {
	h := newTestServer(t, mock.New())

	_, env := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, env.Code)

	_, env = do(t, h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, env.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, mock.New())

	req := httptest.NewRequest(http.MethodOptions, "/api/video/generate", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestErrorResponse_DoesNotLeakInternals(t *testing.T) {
	code, msg, data := errorResponse(vidquota.StorageError("consume", context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, msgInternal, msg)
	assert.Nil(t, data)
}
