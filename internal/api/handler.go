package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/avasilenko/rulegen/internal/rules"
	"github.com/avasilenko/rulegen/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// Handler wires synthesizer and storage dependencies into HTTP handlers.
type Handler struct {
	synthesizer rules.Synthesizer
	storage     storage.Storage
	settings    rules.Settings

	clock func() time.Time

	mu                  sync.RWMutex
	transformsUpdatedAt time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithSettings sets the build settings used when a synthesis request carries none.
func WithSettings(settings rules.Settings) HandlerOption {
	return func(h *Handler) {
		h.settings = settings
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(synth rules.Synthesizer, store storage.Storage, opts ...HandlerOption) *Handler {
	h := &Handler{
		synthesizer: synth,
		storage:     store,
		settings:    rules.DefaultSettings(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.transformsUpdatedAt = h.clock()
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetTransforms(w http.ResponseWriter, r *http.Request) {
	_ = r
	transforms, err := h.storage.GetTransforms()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	resp := transformsResponse{
		Transforms: transforms,
		UpdatedAt:  h.currentTransformsUpdatedAt(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePutTransforms(w http.ResponseWriter, r *http.Request) {
	var req transformsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	if len(req.Transforms) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid transforms", "transforms must contain at least one entry")
		return
	}

	if err := h.storage.SetTransforms(req.Transforms); err != nil {
		if errors.Is(err, storage.ErrInvalidTransforms) {
			writeError(w, http.StatusBadRequest, "Invalid transforms", err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}

	h.markTransformsUpdated()

	transforms, err := h.storage.GetTransforms()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	resp := transformsResponse{
		Transforms: transforms,
		UpdatedAt:  h.currentTransformsUpdatedAt(),
		Message:    "Transforms updated successfully",
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	transforms := req.Transforms
	if len(transforms) == 0 {
		stored, err := h.storage.GetTransforms()
		if err != nil {
			writeInternalError(w, err)
			return
		}
		transforms = stored
	}

	settings := h.settings
	if req.Settings != nil {
		settings = req.Settings.apply(settings)
	}

	start := time.Now()
	cfg, synthErr := h.synthesizer.Synthesize(transforms, settings)
	elapsed := time.Since(start)

	if synthErr != nil {
		switch {
		case errors.Is(synthErr, rules.ErrInvalidKey), errors.Is(synthErr, rules.ErrInvalidTransform):
			writeError(w, http.StatusBadRequest, "Invalid transforms", synthErr.Error())
		case errors.Is(synthErr, rules.ErrInvalidOptions):
			suggestion := "Check that presets and plugins options are lists of strings"
			writeError(w, http.StatusUnprocessableEntity, "Cannot synthesize rules", synthErr.Error(), suggestion)
		default:
			writeInternalError(w, synthErr)
		}
		return
	}

	resp := synthesizeResponse{
		Config:          cfg,
		Rules:           len(cfg.Module.Rules),
		SynthesisTimeMs: elapsed.Milliseconds(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) currentTransformsUpdatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.transformsUpdatedAt
}

func (h *Handler) markTransformsUpdated() {
	h.mu.Lock()
	h.transformsUpdatedAt = h.clock()
	h.mu.Unlock()
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type transformsRequest struct {
	Transforms map[string]rules.Transform `json:"transforms"`
}

type synthesizeRequest struct {
	Transforms map[string]rules.Transform `json:"transforms,omitempty"`
	Settings   *settingsOverride          `json:"settings,omitempty"`
}

// settingsOverride carries the build settings a synthesis request may
// override. Fields left unset keep the server's configured values.
type settingsOverride struct {
	ExcludeDirs      []string `json:"excludeDirs,omitempty"`
	BabelPresets     []string `json:"babelPresets,omitempty"`
	BabelPlugins     []string `json:"babelPlugins,omitempty"`
	PostcssPlugins   []string `json:"postcssPlugins,omitempty"`
	AssetDir         string   `json:"assetDir,omitempty"`
	InlineLimit      int      `json:"inlineLimit,omitempty"`
	ScriptExtensions []string `json:"scriptExtensions,omitempty"`
	Production       *bool    `json:"production,omitempty"`
}

func (o *settingsOverride) apply(settings rules.Settings) rules.Settings {
	if o.ExcludeDirs != nil {
		settings.ExcludeDirs = o.ExcludeDirs
	}
	if o.BabelPresets != nil {
		settings.BabelPresets = o.BabelPresets
	}
	if o.BabelPlugins != nil {
		settings.BabelPlugins = o.BabelPlugins
	}
	if o.PostcssPlugins != nil {
		settings.PostcssPlugins = o.PostcssPlugins
	}
	if o.AssetDir != "" {
		settings.AssetDir = o.AssetDir
	}
	if o.InlineLimit > 0 {
		settings.InlineLimit = o.InlineLimit
	}
	if len(o.ScriptExtensions) > 0 {
		settings.ScriptExtensions = o.ScriptExtensions
	}
	if o.Production != nil {
		settings.Production = *o.Production
	}
	return settings
}

type synthesizeResponse struct {
	Config          rules.Config `json:"config"`
	Rules           int          `json:"rules"`
	SynthesisTimeMs int64        `json:"synthesisTimeMs"`
}

type transformsResponse struct {
	Transforms map[string]rules.Transform `json:"transforms"`
	UpdatedAt  time.Time                  `json:"updatedAt"`
	Message    string                     `json:"message,omitempty"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
