package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/tipsterhq/tipster-web/internal/errors"
)

// APIClient is the outbound client to the remote prediction API.
type APIClient interface {
	GetJSON(ctx context.Context, path string, out any) error
	PostJSON(ctx context.Context, path string, in, out any) error
}

// APIHandlers forwards view data requests to the remote API with the session's bearer
// token. Authentication failures surface as 401/403 so the view can react; recovery has
// already been triggered by the client's transport by then.
type APIHandlers struct {
	Client APIClient
	Logger *slog.Logger
}

func (h *APIHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Get proxies GET /api/{path...}.
func (h *APIHandlers) Get(w http.ResponseWriter, r *http.Request) {
	path, ok := apiPath(w, r)
	if !ok {
		return
	}

	var out json.RawMessage
	if err := h.Client.GetJSON(r.Context(), path, &out); err != nil {
		h.fail(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, out)
}

// Post proxies POST /api/{path...}.
func (h *APIHandlers) Post(w http.ResponseWriter, r *http.Request) {
	path, ok := apiPath(w, r)
	if !ok {
		return
	}

	var in json.RawMessage
	if !DecodeJSON(w, r, &in) {
		return
	}
	var out json.RawMessage
	if err := h.Client.PostJSON(r.Context(), path, in, &out); err != nil {
		h.fail(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, out)
}

func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	level := slog.LevelWarn
	if apperrors.IsAbort(err) || apperrors.IsForbidden(err) || apperrors.IsUnauthenticated(err) {
		level = slog.LevelDebug
	}
	h.logger().Log(r.Context(), level, "api request failed", "path", r.URL.Path, "error", err)
	WriteAppError(w, err)
}

func apiPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	path := strings.TrimPrefix(r.PathValue("path"), "/")
	if path == "" {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found"})
		return "", false
	}
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	return path, true
}

func writeRaw(w http.ResponseWriter, code int, body json.RawMessage) {
	if len(body) == 0 {
		body = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		return
	}
}
