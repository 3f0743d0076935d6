package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/tipsterhq/tipster-web/internal/domain/auth"
	"github.com/tipsterhq/tipster-web/internal/service"
)

const (
	cookieState    = "oauth_state"
	cookieNonce    = "oauth_nonce"
	cookieVerifier = "oauth_verifier"
	cookieReturnTo = "post_login_redirect"

	flowCookieMaxAge = 600 // 10 minutes
)

// AuthServiceInterface defines the interface for auth service operations.
type AuthServiceInterface interface {
	BeginLogin(ctx context.Context, returnTo string) (*service.BeginLoginResult, error)
	CompleteLogin(ctx context.Context, input service.CompleteLoginInput) (*service.CompleteLoginResult, error)
	CurrentUser(ctx context.Context) (*domainauth.User, error)
	Logout(ctx context.Context) error
}

// SessionView is the read side of the session manager.
type SessionView interface {
	IsReady() bool
	Token() (string, bool)
	Session() domainauth.Session
}

// PageNavigator follows the browser's page lifecycle. Full page loads go through Reload.
type PageNavigator interface {
	Location() string
	Reload(target string)
	Push(target string)
}

// AuthHandlers serves the login entry point and the OAuth callback.
type AuthHandlers struct {
	Svc     AuthServiceInterface
	Session SessionView
	// Pages is optional; when set, login, callback and logout count as full page loads.
	Pages PageNavigator

	LoginPath     string
	ReturnToParam string
	CookieDomain  string
	SecureCookies bool
	Logger        *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AuthHandlers) loginPath() string {
	if h.LoginPath == "" {
		return "/login"
	}
	return h.LoginPath
}

func (h *AuthHandlers) returnToParam() string {
	if h.ReturnToParam == "" {
		return "returnTo"
	}
	return h.ReturnToParam
}

// Login is the login entry point.
// GET /login?returnTo=<relative path>.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	returnTo := safeRedirectPath(r.URL.Query().Get(h.returnToParam()))
	h.enterPage(r.URL.RequestURI())

	if h.Session != nil {
		if _, ok := h.Session.Token(); ok {
			http.Redirect(w, r, returnTo, http.StatusFound)
			return
		}
	}

	result, err := h.Svc.BeginLogin(r.Context(), returnTo)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin login failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_failed",
			Err:     err,
		})
		return
	}

	h.setFlowCookies(w, r, flowCookies{
		State:    result.State,
		Nonce:    result.Nonce,
		Verifier: result.Verifier,
		ReturnTo: returnTo,
	})
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback completes the OAuth code flow.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if idpErr := q.Get("error"); idpErr != "" {
		h.clearFlowCookies(w, r)
		msg := idpErr
		if desc := q.Get("error_description"); desc != "" {
			msg += ": " + desc
		}
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "login_denied",
			Err:     errors.New(msg),
		})
		return
	}

	code := q.Get("code")
	state := q.Get("state")
	if code == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_code",
			Err:     errors.New("authorization code is required"),
		})
		return
	}
	if state == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_state",
			Err:     errors.New("state parameter is required"),
		})
		return
	}

	stateCookie, err := r.Cookie(cookieState)
	if err != nil || stateCookie.Value != state {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_state",
			Err:     errors.New("invalid or missing state parameter"),
		})
		return
	}
	nonceCookie, err := r.Cookie(cookieNonce)
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_nonce",
			Err:     errors.New("missing nonce parameter"),
		})
		return
	}
	var verifier string
	if c, cerr := r.Cookie(cookieVerifier); cerr == nil {
		verifier = c.Value
	}

	result, err := h.Svc.CompleteLogin(r.Context(), service.CompleteLoginInput{
		Code:     code,
		State:    state,
		Nonce:    nonceCookie.Value,
		Verifier: verifier,
	})
	if err != nil {
		h.logger().WarnContext(r.Context(), "login completion failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_completion_failed",
			Err:     err,
		})
		return
	}

	returnTo := h.postLoginRedirect(r)
	h.clearFlowCookies(w, r)
	h.logger().InfoContext(r.Context(), "login completed",
		"user_id", result.Identity.User.ID, "return_to", returnTo)

	h.enterPage(returnTo)
	http.Redirect(w, r, returnTo, http.StatusFound)
}

// Logout ends the session with the provider.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Logout(r.Context()); err != nil {
		h.logger().WarnContext(r.Context(), "logout failed", "error", err)
	}

	target := h.loginPath()
	h.enterPage(target)

	if wantsJSON(r) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "success",
			"redirect_to": target,
		})
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Status reports the session as the outbound request layer sees it.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"ready":         false,
		"authenticated": false,
	}
	if h.Pages != nil {
		resp["location"] = h.Pages.Location()
	}
	if h.Session == nil {
		WriteJSON(w, http.StatusOK, resp)
		return
	}

	resp["ready"] = h.Session.IsReady()
	if _, ok := h.Session.Token(); !ok {
		WriteJSON(w, http.StatusOK, resp)
		return
	}

	resp["authenticated"] = true
	resp["expires_at"] = h.Session.Session().ExpiresAt.UTC().Format(time.RFC3339)

	user, err := h.Svc.CurrentUser(r.Context())
	if err != nil {
		h.logger().DebugContext(r.Context(), "current user lookup failed", "error", err)
	} else if user != nil {
		resp["user"] = map[string]string{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Navigate records a navigation reported by the browser shell.
// POST /page {"path": "/matches", "full": true}.
func (h *AuthHandlers) Navigate(w http.ResponseWriter, r *http.Request) {
	if h.Pages == nil {
		WriteError(w, ErrorParams{Code: http.StatusNotImplemented, ErrCode: "no_navigator"})
		return
	}

	var body struct {
		Path string `json:"path"`
		Full bool   `json:"full"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}
	target := safeRedirectPath(body.Path)
	if body.Full {
		h.Pages.Reload(target)
	} else {
		h.Pages.Push(target)
	}
	WriteJSON(w, http.StatusOK, map[string]string{"location": h.Pages.Location()})
}

// enterPage registers a full page load unless the navigator is already there.
func (h *AuthHandlers) enterPage(target string) {
	if h.Pages == nil {
		return
	}
	if h.Pages.Location() == target {
		return
	}
	h.Pages.Reload(target)
}

func (h *AuthHandlers) secure(r *http.Request) bool {
	return h.SecureCookies || r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

type flowCookies struct {
	State    string
	Nonce    string
	Verifier string
	ReturnTo string
}

// setFlowCookies stores the per-attempt OAuth values for the callback to check.
func (h *AuthHandlers) setFlowCookies(w http.ResponseWriter, r *http.Request, c flowCookies) {
	for name, value := range map[string]string{
		cookieState:    c.State,
		cookieNonce:    c.Nonce,
		cookieVerifier: c.Verifier,
		cookieReturnTo: c.ReturnTo,
	} {
		if value == "" {
			continue
		}
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			Domain:   h.CookieDomain,
			HttpOnly: true,
			Secure:   h.secure(r),
			SameSite: http.SameSiteLaxMode,
			MaxAge:   flowCookieMaxAge,
		})
	}
}

func (h *AuthHandlers) clearFlowCookies(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{cookieState, cookieNonce, cookieVerifier, cookieReturnTo} {
		h.clearCookie(w, r, name)
	}
}

// clearCookie mirrors the attributes used when setting so browsers match the deletion.
func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   h.secure(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandlers) postLoginRedirect(r *http.Request) string {
	c, err := r.Cookie(cookieReturnTo)
	if err != nil {
		return "/"
	}
	return safeRedirectPath(c.Value)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}

// safeRedirectPath ensures the redirect is a same-origin relative path starting with a
// single "/". Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") ||
		strings.HasPrefix(candidate, "//") || strings.Contains(candidate, `\`) {
		return "/"
	}
	return candidate
}
