package httpx

import (
	"io"
	"net/http"
)

const (
	healthResponse   = `{"status":"ok"}`
	notReadyResponse = `{"status":"initializing"}`
)

// Readiness reports whether the initial session state is known.
type Readiness interface {
	IsReady() bool
}

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, r, http.StatusOK, healthResponse)
}

// readyHandler answers 503 until the session handshake has resolved.
func readyHandler(ready Readiness) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil && !ready.IsReady() {
			writeStatus(w, r, http.StatusServiceUnavailable, notReadyResponse)
			return
		}
		writeStatus(w, r, http.StatusOK, healthResponse)
	}
}

func writeStatus(w http.ResponseWriter, r *http.Request, code int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, body); err != nil {
		return
	}
}
