package httpapi

import (
	"net/http"
	"strings"

	"taskhive.org/internal/auth"
	"taskhive.org/internal/ratelimit"
)

type registerRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

type sessionResponse struct {
	Account     *auth.Account `json:"account"`
	AccessToken string        `json:"access_token"`
}

func (a *API) handleAuth(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/auth/"), "/")
	parts := strings.Split(path, "/")

	switch parts[0] {
	case "register":
		a.limitFunc(ratelimit.Register, a.register)(w, r)
	case "login":
		a.limitFunc(ratelimit.Login, a.login)(w, r)
	case "refresh":
		a.limitFunc(ratelimit.Refresh, a.refresh)(w, r)
	case "logout":
		a.logout(w, r)
	case "me":
		a.me(w, r)
	case "change-password":
		a.limitFunc(ratelimit.ChangePassword, a.changePassword)(w, r)
	case "forgot-password":
		a.limitFunc(ratelimit.ForgotPassword, a.forgotPassword)(w, r)
	case "resend-verification":
		a.limitFunc(ratelimit.ResendEmail, a.resendVerification)(w, r)
	case "deactivate":
		a.deactivateSelf(w, r)
	case "reset-password":
		if len(parts) != 2 || parts[1] == "" {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.limitFunc(ratelimit.ResetPassword, func(w http.ResponseWriter, r *http.Request) {
			a.resetPassword(w, r, parts[1])
		})(w, r)
	case "verify-email":
		if len(parts) != 2 || parts[1] == "" {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.limitFunc(ratelimit.EmailVerify, func(w http.ResponseWriter, r *http.Request) {
			a.verifyEmail(w, r, parts[1])
		})(w, r)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// register creates accounts on behalf of privileged staff; there is no open
// self-signup.
func (a *API) register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.requireGlobal(w, r, auth.RoleManager, auth.RoleAdmin, auth.RoleSuperAdmin)
	if !ok {
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	acct, err := a.sessions.Register(ctx, principal.AccountID, req.Email, req.FullName, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"account": acct})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	pair, acct, err := a.sessions.Login(ctx, req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, sessionResponse{Account: acct, AccessToken: pair.AccessToken})
}

// refresh rotates the session from the refresh cookie (or bearer header for
// non-browser clients).
func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	raw := ""
	if c, err := r.Cookie(refreshCookie); err == nil {
		raw = c.Value
	}
	if raw == "" {
		if token, err := extractBearerToken(r.Header.Get(authHeader)); err == nil {
			raw = token
		}
	}
	if raw == "" {
		writeError(w, r, http.StatusUnauthorized, "authentication failed")
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	pair, acct, err := a.sessions.Refresh(ctx, raw)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, sessionResponse{Account: acct, AccessToken: pair.AccessToken})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	if err := a.sessions.Logout(ctx, principal.AccountID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	acct, err := a.store.Credentials().FindByID(ctx, principal.AccountID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": acct})
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	if err := a.sessions.ChangePassword(ctx, principal.AccountID, req.OldPassword, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}
	// Every existing session is now dead; make the caller log in again.
	a.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_changed"})
}

func (a *API) forgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	if err := a.sessions.ForgotPassword(ctx, req.Email); err != nil {
		handleAuthError(w, r, err)
		return
	}
	// Same response for known and unknown addresses.
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset_email_sent"})
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request, token string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	if err := a.sessions.ResetPassword(ctx, token, req.Password); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_reset"})
}

func (a *API) verifyEmail(w http.ResponseWriter, r *http.Request, token string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	if err := a.sessions.VerifyEmail(ctx, token); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "email_verified"})
}

func (a *API) resendVerification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	if err := a.sessions.ResendVerification(ctx, req.Email); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "verification_email_sent"})
}

// deactivateSelf lets an account close itself; its live session dies with it.
func (a *API) deactivateSelf(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	if err := a.sessions.SetActive(ctx, principal.AccountID, principal.AccountID, false); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "deactivated"})
}
