package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/avasilenko/rulegen/internal/rules"
	"github.com/avasilenko/rulegen/internal/storage"
)

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *controllableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setupTestRouter(t *testing.T) (http.Handler, *controllableClock) {
	t.Helper()

	store := storage.NewMemoryStorage()
	synth := rules.New()
	clock := newControllableClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	handler := NewHandler(synth, store, WithClock(clock.Now))
	logger := zaptest.NewLogger(t)
	router := NewRouter(handler, logger, WithLogging(false))

	return router, clock
}

func performJSON(t *testing.T, router http.Handler, method, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	resp := httptest.NewRecorder()
	writeInternalError(resp, assertError("boom"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.Code)
	}
}

type assertError string

func (a assertError) Error() string { return string(a) }

func TestHealthEndpoint(t *testing.T) {
	router, clock := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected ok status, got %s", resp.Status)
	}
	if !resp.Timestamp.Equal(clock.Now()) {
		t.Fatalf("expected timestamp %s, got %s", clock.Now(), resp.Timestamp)
	}
}

func TestGetTransformsReturnsDefaults(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := performJSON(t, router, http.MethodGet, "/api/transforms", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp transformsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Transforms["css"].Transformer != "css" {
		t.Fatalf("expected default css transform, got %+v", resp.Transforms)
	}
	if resp.Transforms["vue"].Transformer != "vue" {
		t.Fatalf("expected default vue transform, got %+v", resp.Transforms)
	}
}

func TestPutTransformsUpdatesRegistry(t *testing.T) {
	router, clock := setupTestRouter(t)
	clock.Advance(time.Minute)

	payload := map[string]any{
		"transforms": map[string]any{
			"js":   map[string]any{"transformer": "babel"},
			"scss": map[string]any{"transformer": "scss"},
		},
	}
	rec := performJSON(t, router, http.MethodPut, "/api/transforms", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp transformsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Transforms) != 2 {
		t.Fatalf("expected 2 transforms, got %d", len(resp.Transforms))
	}
	if !resp.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("expected updatedAt to advance to %s, got %s", clock.Now(), resp.UpdatedAt)
	}
	if resp.Message == "" {
		t.Fatalf("expected confirmation message")
	}
}

func TestPutTransformsRejectsInvalidPayloads(t *testing.T) {
	router, _ := setupTestRouter(t)

	t.Run("malformed JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/transforms", bytes.NewReader([]byte("{")))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("empty registry", func(t *testing.T) {
		rec := performJSON(t, router, http.MethodPut, "/api/transforms", map[string]any{"transforms": map[string]any{}})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("invalid key", func(t *testing.T) {
		payload := map[string]any{
			"transforms": map[string]any{"c ss": map[string]any{"transformer": "css"}},
		}
		rec := performJSON(t, router, http.MethodPut, "/api/transforms", payload)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestSynthesizeWithInlineTransforms(t *testing.T) {
	router, _ := setupTestRouter(t)

	payload := map[string]any{
		"transforms": map[string]any{
			"css": map[string]any{"transformer": "css"},
			"js":  map[string]any{"transformer": "babel"},
		},
	}
	rec := performJSON(t, router, http.MethodPost, "/api/synthesize", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp synthesizeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Rules != 2 {
		t.Fatalf("expected 2 rules, got %d", resp.Rules)
	}
	if len(resp.Config.Module.Rules) != 2 {
		t.Fatalf("expected 2 rules in config, got %d", len(resp.Config.Module.Rules))
	}
}

func TestSynthesizeFallsBackToStoredRegistry(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := performJSON(t, router, http.MethodPost, "/api/synthesize", map[string]any{})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp synthesizeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	// default registry carries seven keys, all of which produce a rule
	if resp.Rules != 7 {
		t.Fatalf("expected 7 rules from default registry, got %d", resp.Rules)
	}
}

func TestSynthesizeAppliesSettingsOverride(t *testing.T) {
	router, _ := setupTestRouter(t)

	payload := map[string]any{
		"transforms": map[string]any{"png": map[string]any{"transformer": "url"}},
		"settings":   map[string]any{"assetDir": "cdn", "inlineLimit": 1024},
	}
	rec := performJSON(t, router, http.MethodPost, "/api/synthesize", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp synthesizeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	opts := resp.Config.Module.Rules[0].Loaders[0].Options
	if opts["name"] != "cdn/[name].[hash:8].[ext]" {
		t.Fatalf("expected overridden asset dir, got %v", opts["name"])
	}
	if opts["limit"] != float64(1024) {
		t.Fatalf("expected overridden limit, got %v", opts["limit"])
	}
}

func TestSynthesizePartialSettingsKeepConfiguredValues(t *testing.T) {
	store := storage.NewMemoryStorage()
	configured := rules.DefaultSettings()
	configured.AssetDir = "cdn/configured"
	configured.Production = true

	handler := NewHandler(rules.New(), store, WithSettings(configured))
	router := NewRouter(handler, zaptest.NewLogger(t), WithLogging(false))

	payload := map[string]any{
		"transforms": map[string]any{
			"png": map[string]any{"transformer": "url"},
			"css": map[string]any{"transformer": "css"},
		},
		"settings": map[string]any{"inlineLimit": 1024},
	}
	rec := performJSON(t, router, http.MethodPost, "/api/synthesize", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp synthesizeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	byTest := map[string]rules.Rule{}
	for _, rule := range resp.Config.Module.Rules {
		byTest[rule.Test] = rule
	}

	png := byTest[`\.png$`]
	if got := png.Loaders[0].Options["name"]; got != "cdn/configured/[name].[hash:8].[ext]" {
		t.Fatalf("expected configured asset dir to survive partial override, got %v", got)
	}
	if got := png.Loaders[0].Options["limit"]; got != float64(1024) {
		t.Fatalf("expected overridden limit, got %v", got)
	}

	// production stays on from the server configuration
	css := byTest[`\.css$`]
	if got := css.Loaders[2].Options["sourceMap"]; got != false {
		t.Fatalf("expected configured production mode to survive, got sourceMap=%v", got)
	}
}

func TestSynthesizeErrorMapping(t *testing.T) {
	router, _ := setupTestRouter(t)

	t.Run("invalid key returns 400", func(t *testing.T) {
		payload := map[string]any{
			"transforms": map[string]any{"c ss": map[string]any{"transformer": "css"}},
		}
		rec := performJSON(t, router, http.MethodPost, "/api/synthesize", payload)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("invalid options return 422", func(t *testing.T) {
		payload := map[string]any{
			"transforms": map[string]any{
				"js": map[string]any{
					"transformer": "babel",
					"options":     map[string]any{"presets": []any{1}},
				},
			},
		}
		rec := performJSON(t, router, http.MethodPost, "/api/synthesize", payload)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}

		var resp errorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if resp.Suggestion == "" {
			t.Fatalf("expected suggestion in error response")
		}
	})
}
