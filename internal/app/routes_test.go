package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelgen/internal/handlers"
	u "labelgen/internal/utils"
)

func testApp(t *testing.T, deps Deps) *fiber.App {
	t.Helper()
	var cfg u.Config
	cfg.Limits.MaxTemplateBytes = 1024
	cfg.PDF.TimeoutSecs = 5
	cfg.Layout = u.DefaultLayout()
	if deps.Labels == nil {
		deps.Labels = handlers.NewLabelService(cfg, nil, nil, nil, nil, nil)
	}
	return SetupApp(cfg, deps)
}

func do(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestSetupApp_NotFoundIsJSON(t *testing.T) {
	app := testApp(t, Deps{})
	resp := do(t, app, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var body struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, fiber.StatusNotFound, body.Error.Code)
	assert.Equal(t, "Not Found", body.Error.Message)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
}

func TestSetupApp_HealthProbes(t *testing.T) {
	var readyErr error
	app := testApp(t, Deps{Ready: func(context.Context) error { return readyErr }})

	resp := do(t, app, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = do(t, app, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	readyErr = errors.New("store down")
	resp = do(t, app, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestSetupApp_EncodeRoute(t *testing.T) {
	app := testApp(t, Deps{})
	req := httptest.NewRequest(http.MethodPost, "/v1/labels/encode", strings.NewReader(`{"gtin":"00012345678905","lot_number":"A1"}`))
	req.Header.Set("Content-Type", "application/json")

	resp := do(t, app, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "0100012345678905"+"10A1", out["element_string"])
	assert.Equal(t, "(01)00012345678905(10)A1", out["hri"])
}

func TestSetupApp_ChromeStatsWithoutPool(t *testing.T) {
	app := testApp(t, Deps{})
	resp := do(t, app, httptest.NewRequest(http.MethodGet, "/v1/chrome/stats", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"enabled":false`)
}

func TestSetupApp_MetricsRoute(t *testing.T) {
	app := testApp(t, Deps{})
	resp := do(t, app, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("label_cache_lookups_total 1\n"))
	})
	app = testApp(t, Deps{Metrics: metrics})
	resp = do(t, app, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "label_cache_lookups_total")
}

func TestBodyLimit(t *testing.T) {
	var cfg u.Config
	assert.Equal(t, fiber.DefaultBodyLimit, bodyLimit(cfg))

	cfg.Limits.MaxTemplateBytes = 10 * 1024 * 1024
	assert.Equal(t, 11*1024*1024, bodyLimit(cfg))
}
